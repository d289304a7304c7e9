package folders

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/franz/lappi/internal/notify"
	"github.com/franz/lappi/internal/store"
)

// ValueKind is the stored type of a tag value
type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
	KindFlag
)

// TagValue is a string, an integer or a bare flag
type TagValue struct {
	Kind ValueKind
	Str  string
	Int  int64
}

// StringValue returns a string tag value
func StringValue(s string) TagValue { return TagValue{Kind: KindString, Str: s} }

// IntValue returns an integer tag value
func IntValue(n int64) TagValue { return TagValue{Kind: KindInt, Int: n} }

// FlagValue returns a flag tag value
func FlagValue() TagValue { return TagValue{Kind: KindFlag} }

func (v TagValue) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFlag:
		return "true"
	default:
		return v.Str
	}
}

// Text returns the value as used in file names: integers as digits,
// strings verbatim, flags as nothing.
func (v TagValue) Text() string {
	if v.Kind == KindFlag {
		return ""
	}
	return v.String()
}

// ParseTagValue reads the command line form: the empty string for a flag,
// an integer when it parses as one, otherwise a string.
func ParseTagValue(s string) TagValue {
	if s == "" {
		return FlagValue()
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IntValue(n)
	}
	return StringValue(s)
}

// Owner is the music item or folder a tag belongs to
type Owner struct {
	column string
	id     int64
}

// ItemOwner addresses the tags of a music item
func ItemOwner(itemID int64) Owner { return Owner{column: "music_item_id", id: itemID} }

// FolderOwner addresses the tags of a folder
func FolderOwner(folderID int64) Owner { return Owner{column: "folder_id", id: folderID} }

// ID returns the owner's id
func (o Owner) ID() int64 { return o.id }

// IsItem reports whether the owner is a music item
func (o Owner) IsItem() bool { return o.column == "music_item_id" }

func (o Owner) String() string {
	if o.IsItem() {
		return fmt.Sprintf("item %d", o.id)
	}
	return fmt.Sprintf("folder %d", o.id)
}

// Tag is a named value
type Tag struct {
	Name  string
	Value TagValue
}

func (h *Hierarchy) markTags(owner Owner) {
	if owner.IsItem() {
		h.db.Mark(notify.Tags, owner.id)
		return
	}
	h.db.Mark(notify.Tags)
}

func checkOwner(conn *store.Conn, owner Owner) error {
	if owner.column == "" {
		return fmt.Errorf("tag owner not set")
	}
	if owner.IsItem() {
		var id int64
		return conn.GetField("music_items", owner.id, "id", &id)
	}
	if owner.id != RootID {
		_, err := getFolder(conn, owner.id)
		return err
	}
	return nil
}

func tagColumns(v TagValue) (str, num interface{}) {
	switch v.Kind {
	case KindString:
		return v.Str, nil
	case KindInt:
		return nil, v.Int
	default:
		return nil, nil
	}
}

// SetTag sets a tag, replacing any previous value of the same name
func (h *Hierarchy) SetTag(owner Owner, name string, value TagValue) error {
	if name == "" {
		return store.Errorf("set_tag", "empty tag name on %s", owner)
	}
	str, num := tagColumns(value)

	err := h.db.Store().Transaction(func(conn *store.Conn) error {
		if err := checkOwner(conn, owner); err != nil {
			return err
		}

		res, err := conn.Exec(
			fmt.Sprintf("UPDATE tags SET value_type = ?, string_value = ?, int_value = ? WHERE %s = ? AND tag_name = ?", owner.column),
			int64(value.Kind), str, num, owner.id, name)
		if err != nil {
			return fmt.Errorf("failed to update tag %s: %w", name, err)
		}
		if n, err := res.RowsAffected(); err != nil || n > 0 {
			return err
		}

		_, err = conn.InsertRow("tags",
			[]string{owner.column, "tag_name", "value_type", "string_value", "int_value"},
			owner.id, name, int64(value.Kind), str, num)
		return err
	})
	if err != nil {
		return err
	}

	h.markTags(owner)
	return nil
}

func scanValue(kind ValueKind, str sql.NullString, num sql.NullInt64) TagValue {
	switch kind {
	case KindInt:
		return IntValue(num.Int64)
	case KindFlag:
		return FlagValue()
	default:
		return StringValue(str.String)
	}
}

func readTags(conn *store.Conn, owner Owner) (map[string]TagValue, error) {
	rows, err := conn.Query(
		fmt.Sprintf("SELECT tag_name, value_type, string_value, int_value FROM tags WHERE %s = ?", owner.column),
		owner.id)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags of %s: %w", owner, err)
	}
	defer rows.Close()

	tags := make(map[string]TagValue)
	for rows.Next() {
		var (
			name string
			kind ValueKind
			str  sql.NullString
			num  sql.NullInt64
		)
		if err := rows.Scan(&name, &kind, &str, &num); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags[name] = scanValue(kind, str, num)
	}
	return tags, rows.Err()
}

// Tag returns one tag of owner
func (h *Hierarchy) Tag(owner Owner, name string) (TagValue, bool, error) {
	var (
		value TagValue
		found bool
	)
	err := h.db.Read(func(conn *store.Conn) error {
		var (
			kind ValueKind
			str  sql.NullString
			num  sql.NullInt64
		)
		err := conn.QueryRow(
			fmt.Sprintf("SELECT value_type, string_value, int_value FROM tags WHERE %s = ? AND tag_name = ?", owner.column),
			owner.id, name).Scan(&kind, &str, &num)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tag %s: %w", name, err)
		}
		value, found = scanValue(kind, str, num), true
		return nil
	})
	return value, found, err
}

// Tags returns every tag set directly on owner
func (h *Hierarchy) Tags(owner Owner) (map[string]TagValue, error) {
	var tags map[string]TagValue
	err := h.db.Read(func(conn *store.Conn) error {
		var err error
		tags, err = readTags(conn, owner)
		return err
	})
	return tags, err
}

// DeleteTag removes a tag. Removing a tag that is not set does nothing.
func (h *Hierarchy) DeleteTag(owner Owner, name string) error {
	var deleted int64
	err := h.db.Store().Do(func(conn *store.Conn) error {
		res, err := conn.Exec(fmt.Sprintf("DELETE FROM tags WHERE %s = ? AND tag_name = ?", owner.column), owner.id, name)
		if err != nil {
			return fmt.Errorf("failed to delete tag %s: %w", name, err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if deleted > 0 {
		h.markTags(owner)
	}
	return nil
}

// ItemFolder returns the folder a music item lives in
func (h *Hierarchy) ItemFolder(itemID int64) (int64, error) {
	var folder int64
	err := h.db.Read(func(conn *store.Conn) error {
		return conn.GetField("music_items", itemID, "folder_id", &folder)
	})
	return folder, err
}

// EffectiveTags returns the tags that apply to a music item: its own tags,
// then those of each enclosing folder from nearest to the root. The first
// value found for a name wins.
func (h *Hierarchy) EffectiveTags(itemID int64) (map[string]TagValue, error) {
	folder, err := h.ItemFolder(itemID)
	if err != nil {
		return nil, err
	}

	effective, err := h.Tags(ItemOwner(itemID))
	if err != nil {
		return nil, err
	}

	merge := func(owner Owner) error {
		tags, err := h.Tags(owner)
		if err != nil {
			return err
		}
		for name, value := range tags {
			if _, ok := effective[name]; !ok {
				effective[name] = value
			}
		}
		return nil
	}

	chain, err := h.Chain(folder)
	if err != nil {
		return nil, err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if err := merge(FolderOwner(chain[i].ID)); err != nil {
			return nil, err
		}
	}
	if err := merge(FolderOwner(RootID)); err != nil {
		return nil, err
	}
	return effective, nil
}

// EffectiveTag looks up one tag of a music item with inheritance
func (h *Hierarchy) EffectiveTag(itemID int64, name string) (TagValue, bool, error) {
	if v, ok, err := h.Tag(ItemOwner(itemID), name); err != nil || ok {
		return v, ok, err
	}

	folder, err := h.ItemFolder(itemID)
	if err != nil {
		return TagValue{}, false, err
	}
	chain, err := h.Chain(folder)
	if err != nil {
		return TagValue{}, false, err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if v, ok, err := h.Tag(FolderOwner(chain[i].ID), name); err != nil || ok {
			return v, ok, err
		}
	}
	return h.Tag(FolderOwner(RootID), name)
}

// SortedTags returns tags ordered by name
func SortedTags(tags map[string]TagValue) []Tag {
	out := make([]Tag, 0, len(tags))
	for name, value := range tags {
		out = append(out, Tag{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
