// Package library holds the domain collections built on the folder tree
// and the file registry: music items and their files, lyrics, pictures,
// folder covers and descriptions, and playlists. It also decides the
// canonical internal path of every stored asset.
package library

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/franz/lappi/internal/files"
	"github.com/franz/lappi/internal/folders"
	"github.com/franz/lappi/internal/notify"
	"github.com/franz/lappi/internal/store"
	"github.com/franz/lappi/internal/util"
)

// Well-known tag names
const (
	TagTitle = "title"
	TagTrack = "track"
	TagYear  = "year"
	TagGenre = "genre"
)

// FileType is the format of a music file
type FileType int

const (
	MP3 FileType = iota
	FLAC
	OGG
	M4A
	WAV
)

var fileTypeExts = map[FileType]string{
	MP3:  ".mp3",
	FLAC: ".flac",
	OGG:  ".ogg",
	M4A:  ".m4a",
	WAV:  ".wav",
}

// Ext returns the extension including the dot
func (t FileType) Ext() string {
	return fileTypeExts[t]
}

func (t FileType) String() string {
	return strings.TrimPrefix(t.Ext(), ".")
}

// FileTypeFromPath detects the music file type from an extension
func FileTypeFromPath(path string) (FileType, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for t, e := range fileTypeExts {
		if e == ext {
			return t, nil
		}
	}
	return 0, fmt.Errorf("music file %s: %w", path, util.ErrUnsupported)
}

// Library gives access to the domain collections
type Library struct {
	db  *notify.Coalescer
	h   *folders.Hierarchy
	reg *files.Registry
}

// New creates a library
func New(db *notify.Coalescer, h *folders.Hierarchy, reg *files.Registry) *Library {
	return &Library{db: db, h: h, reg: reg}
}

// Hierarchy returns the folder tree the library is built on
func (l *Library) Hierarchy() *folders.Hierarchy {
	return l.h
}

// Batch runs fn with change notifications held back until it returns
func (l *Library) Batch(fn func() error) error {
	return l.db.Batch(fn)
}

// Registry returns the file registry the library stores assets in
func (l *Library) Registry() *files.Registry {
	return l.reg
}

// Item is a music item
type Item struct {
	ID       int64
	Name     string
	FolderID int64
}

// CreateItem adds a music item to a folder
func (l *Library) CreateItem(folderID int64, name string) (int64, error) {
	if name == "" {
		return 0, store.Errorf("create_item", "empty item name")
	}
	if _, err := l.h.Get(folderID); err != nil {
		return 0, err
	}
	id, err := l.db.Store().InsertRow("music_items", []string{"name", "folder_id"}, name, folderID)
	if err != nil {
		return 0, err
	}
	l.db.Mark(notify.Music, id)
	return id, nil
}

// Item returns a music item. A missing item is a storage error.
func (l *Library) Item(id int64) (Item, error) {
	item := Item{ID: id}
	err := l.db.Read(func(conn *store.Conn) error {
		err := conn.QueryRow("SELECT name, folder_id FROM music_items WHERE id = ?", id).Scan(&item.Name, &item.FolderID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("music item %d not found: %w", id, err)
		}
		return err
	})
	return item, err
}

// SetItemName renames a music item
func (l *Library) SetItemName(id int64, name string) error {
	if name == "" {
		return store.Errorf("set_item_name", "empty item name")
	}
	return l.db.Write(notify.Music, func(conn *store.Conn) error {
		return conn.SetField("music_items", id, "name", name)
	}, id)
}

// MoveItem puts a music item in another folder
func (l *Library) MoveItem(id, folderID int64) error {
	if _, err := l.h.Get(folderID); err != nil {
		return err
	}
	return l.db.Write(notify.Music|notify.Folders, func(conn *store.Conn) error {
		return conn.SetField("music_items", id, "folder_id", folderID)
	}, id)
}

// AllItems lists every music item id
func (l *Library) AllItems() ([]int64, error) {
	return l.db.Store().ListAllIDs("music_items")
}

// ItemsInFolder lists the music items directly in a folder
func (l *Library) ItemsInFolder(folderID int64) ([]int64, error) {
	return l.db.Store().ListIDsWhere("music_items", "folder_id", folderID)
}

// DeleteItem removes a music item together with its music and lyrics files.
// The rows go first; the files they referenced are removed afterwards.
func (l *Library) DeleteItem(id int64) error {
	var fileIDs []int64
	if mf, ok, err := l.MusicFile(id); err != nil {
		return err
	} else if ok {
		fileIDs = append(fileIDs, mf.FileID)
	}

	lyrics, err := l.LyricsForItem(id)
	if err != nil {
		return err
	}
	for _, ly := range lyrics {
		if ly.FileID != 0 {
			fileIDs = append(fileIDs, ly.FileID)
		}
	}

	// tags, music file and lyrics rows cascade with the item
	err = l.db.Write(notify.Music|notify.Tags|notify.Playlists, func(conn *store.Conn) error {
		if _, err := conn.Exec("DELETE FROM playlist_items WHERE music_item_id = ?", id); err != nil {
			return err
		}
		return conn.DeleteRow("music_items", id)
	}, id)
	if err != nil {
		return err
	}

	for _, fileID := range fileIDs {
		if err := l.reg.Delete(fileID); err != nil {
			return err
		}
	}
	return nil
}
