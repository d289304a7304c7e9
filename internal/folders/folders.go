// Package folders is the organizing tree of the collection: typed folders
// under an implicit root, and tags attached to folders or music items.
package folders

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/franz/lappi/internal/notify"
	"github.com/franz/lappi/internal/store"
)

// RootID is the id of the implicit root folder. It is never stored.
const RootID int64 = 0

// maxDepth bounds chain walks; the tree is artist/album deep in practice
const maxDepth = 256

// FolderType classifies a folder
type FolderType int

const (
	Generic FolderType = iota
	Artist
	Album
)

var folderTypeNames = map[FolderType]string{
	Generic: "generic",
	Artist:  "artist",
	Album:   "album",
}

func (t FolderType) String() string {
	if name, ok := folderTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FolderType(%d)", int(t))
}

// ParseFolderType parses the text form used on the command line
func ParseFolderType(s string) (FolderType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range folderTypeNames {
		if name == s {
			return t, nil
		}
	}
	return Generic, fmt.Errorf("unknown folder type %q", s)
}

// Folder is one node of the tree. Zero file ids mean "no file".
type Folder struct {
	ID                int64
	ParentID          int64
	Name              string
	Type              FolderType
	CoverFileID       int64
	DescriptionFileID int64
}

// IsRoot reports whether f is the root folder
func (f Folder) IsRoot() bool {
	return f.ID == RootID
}

// Hierarchy gives access to folders and tags
type Hierarchy struct {
	db *notify.Coalescer
}

// New creates a hierarchy on top of db
func New(db *notify.Coalescer) *Hierarchy {
	return &Hierarchy{db: db}
}

// Root returns the synthesized root folder
func (h *Hierarchy) Root() Folder {
	return Folder{ID: RootID, ParentID: RootID, Name: "Root", Type: Generic}
}

const folderColumns = "id, parent_id, name, folder_type, cover_file_id, description_file_id"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFolder(row rowScanner) (Folder, error) {
	var (
		f           Folder
		cover, desc sql.NullInt64
	)
	if err := row.Scan(&f.ID, &f.ParentID, &f.Name, &f.Type, &cover, &desc); err != nil {
		return Folder{}, err
	}
	f.CoverFileID = cover.Int64
	f.DescriptionFileID = desc.Int64
	return f, nil
}

func getFolder(conn *store.Conn, id int64) (Folder, error) {
	row := conn.QueryRow("SELECT "+folderColumns+" FROM folders WHERE id = ?", id)
	f, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Folder{}, fmt.Errorf("folder %d not found: %w", id, err)
	}
	if err != nil {
		return Folder{}, fmt.Errorf("failed to read folder %d: %w", id, err)
	}
	return f, nil
}

// Get returns a folder. A missing folder is a storage error.
func (h *Hierarchy) Get(id int64) (Folder, error) {
	if id == RootID {
		return h.Root(), nil
	}
	var f Folder
	err := h.db.Read(func(conn *store.Conn) error {
		var err error
		f, err = getFolder(conn, id)
		return err
	})
	return f, err
}

// Parent returns the parent id of a folder. The root is its own parent.
func (h *Hierarchy) Parent(id int64) (int64, error) {
	if id == RootID {
		return RootID, nil
	}
	var parent int64
	err := h.db.Read(func(conn *store.Conn) error {
		return conn.GetField("folders", id, "parent_id", &parent)
	})
	return parent, err
}

// FindOrCreateChild returns the child of parent called name, creating it
// with the given type when it does not exist. An existing child keeps its type.
func (h *Hierarchy) FindOrCreateChild(parent int64, name string, typ FolderType) (int64, error) {
	if name == "" {
		return 0, store.Errorf("find_or_create_child", "empty folder name under %d", parent)
	}

	var (
		id      int64
		created bool
	)
	err := h.db.Store().Transaction(func(conn *store.Conn) error {
		if parent != RootID {
			if _, err := getFolder(conn, parent); err != nil {
				return err
			}
		}

		err := conn.QueryRow("SELECT id FROM folders WHERE parent_id = ? AND name = ?", parent, name).Scan(&id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to look up folder %q: %w", name, err)
		}

		id, err = conn.InsertRow("folders", []string{"parent_id", "name", "folder_type"}, parent, name, int64(typ))
		created = err == nil
		return err
	})
	if err != nil {
		return 0, err
	}

	if created {
		h.db.Mark(notify.Folders)
	}
	return id, nil
}

// Children lists the direct children of a folder ordered by name
func (h *Hierarchy) Children(id int64) ([]Folder, error) {
	var children []Folder
	err := h.db.Read(func(conn *store.Conn) error {
		if id != RootID {
			if _, err := getFolder(conn, id); err != nil {
				return err
			}
		}
		rows, err := conn.Query("SELECT "+folderColumns+" FROM folders WHERE parent_id = ? ORDER BY name, id", id)
		if err != nil {
			return fmt.Errorf("failed to list children of %d: %w", id, err)
		}
		defer rows.Close()

		for rows.Next() {
			f, err := scanFolder(rows)
			if err != nil {
				return err
			}
			children = append(children, f)
		}
		return rows.Err()
	})
	return children, err
}

// All returns every stored folder ordered by id
func (h *Hierarchy) All() ([]Folder, error) {
	var all []Folder
	err := h.db.Read(func(conn *store.Conn) error {
		rows, err := conn.Query("SELECT " + folderColumns + " FROM folders ORDER BY id")
		if err != nil {
			return fmt.Errorf("failed to list folders: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			f, err := scanFolder(rows)
			if err != nil {
				return err
			}
			all = append(all, f)
		}
		return rows.Err()
	})
	return all, err
}

// Chain returns the folders from the top level down to id, excluding the
// root. The chain of the root is empty. Each level is one store round trip.
func (h *Hierarchy) Chain(id int64) ([]Folder, error) {
	var chain []Folder
	for current := id; current != RootID; {
		if len(chain) >= maxDepth {
			return nil, store.Errorf("chain", "folder %d is deeper than %d levels, parent links form a cycle", id, maxDepth)
		}
		f, err := h.Get(current)
		if err != nil {
			return nil, err
		}
		chain = append(chain, f)
		current = f.ParentID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// ChainNames returns the folder names of Chain(id)
func (h *Hierarchy) ChainNames(id int64) ([]string, error) {
	chain, err := h.Chain(id)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(chain))
	for i, f := range chain {
		names[i] = f.Name
	}
	return names, nil
}

// FindAncestor returns the nearest folder of the given type, starting at id
// itself and walking up.
func (h *Hierarchy) FindAncestor(id int64, typ FolderType) (Folder, bool, error) {
	chain, err := h.Chain(id)
	if err != nil {
		return Folder{}, false, err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].Type == typ {
			return chain[i], true, nil
		}
	}
	return Folder{}, false, nil
}

// SetName renames a folder
func (h *Hierarchy) SetName(id int64, name string) error {
	if id == RootID {
		return store.Errorf("set_name", "the root folder cannot be renamed")
	}
	if name == "" {
		return store.Errorf("set_name", "empty folder name for %d", id)
	}
	return h.db.Write(notify.Folders, func(conn *store.Conn) error {
		return conn.SetField("folders", id, "name", name)
	})
}

// SetType changes the type of a folder. Children are not revalidated.
func (h *Hierarchy) SetType(id int64, typ FolderType) error {
	if id == RootID {
		return store.Errorf("set_type", "the root folder has no type")
	}
	return h.db.Write(notify.Folders, func(conn *store.Conn) error {
		return conn.SetField("folders", id, "folder_type", int64(typ))
	})
}

// Move reparents a folder. Moving a folder below itself is rejected.
func (h *Hierarchy) Move(id, newParent int64) error {
	if id == RootID {
		return store.Errorf("move", "the root folder cannot be moved")
	}
	chain, err := h.Chain(newParent)
	if err != nil {
		return err
	}
	for _, f := range chain {
		if f.ID == id {
			return store.Errorf("move", "folder %d cannot be moved below itself", id)
		}
	}
	return h.db.Write(notify.Folders, func(conn *store.Conn) error {
		return conn.SetField("folders", id, "parent_id", newParent)
	})
}

func nullableID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}

func (h *Hierarchy) setFileField(op string, id int64, field string, fileID int64) error {
	if id == RootID {
		return store.Errorf(op, "the root folder has no files")
	}
	return h.db.Write(notify.Folders, func(conn *store.Conn) error {
		return conn.SetField("folders", id, field, nullableID(fileID))
	})
}

// SetCover attaches an internal file as the folder cover; 0 clears it
func (h *Hierarchy) SetCover(id, fileID int64) error {
	return h.setFileField("set_cover", id, "cover_file_id", fileID)
}

// Cover returns the cover file id of a folder, if any
func (h *Hierarchy) Cover(id int64) (int64, bool, error) {
	f, err := h.Get(id)
	if err != nil {
		return 0, false, err
	}
	return f.CoverFileID, f.CoverFileID != 0, nil
}

// SetDescriptionFile attaches an internal text file describing the folder
func (h *Hierarchy) SetDescriptionFile(id, fileID int64) error {
	return h.setFileField("set_description", id, "description_file_id", fileID)
}

// DescriptionFile returns the description file id of a folder, if any
func (h *Hierarchy) DescriptionFile(id int64) (int64, bool, error) {
	f, err := h.Get(id)
	if err != nil {
		return 0, false, err
	}
	return f.DescriptionFileID, f.DescriptionFileID != 0, nil
}
