package store

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreOpenAndMigrate(t *testing.T) {
	store := openTestStore(t)

	version, err := store.getSchemaVersion()
	if err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}

	if version != currentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", currentSchemaVersion, version)
	}

	tables := append(store.Tables(), "schema_version")
	for _, table := range tables {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	v2Indexes := []string{
		"idx_folders_parent_name",
		"idx_tags_item_name",
		"idx_tags_folder_name",
	}
	for _, index := range v2Indexes {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", index).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query index %s: %v", index, err)
		}
		if count != 1 {
			t.Errorf("expected index %s to exist (schema v2)", index)
		}
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	id, err := store.InsertRow("internal_files", []string{"internal_path"}, "a/b.mp3")
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	store.Close()

	store, err = Open(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer store.Close()

	var got string
	if err := store.GetField("internal_files", id, "internal_path", &got); err != nil {
		t.Fatalf("GetField failed: %v", err)
	}
	if got != "a/b.mp3" {
		t.Errorf("expected a/b.mp3, got %q", got)
	}
}

func TestGetSetField(t *testing.T) {
	store := openTestStore(t)

	id, err := store.InsertRow("music_items", []string{"name", "folder_id"}, "Track", int64(0))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := store.SetField("music_items", id, "name", "Renamed"); err != nil {
		t.Fatalf("SetField failed: %v", err)
	}

	var name string
	if err := store.GetField("music_items", id, "name", &name); err != nil {
		t.Fatalf("GetField failed: %v", err)
	}
	if name != "Renamed" {
		t.Errorf("expected Renamed, got %q", name)
	}
}

func TestMissingRowIsStorageError(t *testing.T) {
	store := openTestStore(t)

	var name string
	err := store.GetField("folders", 42, "name", &name)
	if err == nil {
		t.Fatal("expected error for missing row")
	}
	if !IsStorageError(err) {
		t.Errorf("expected storage error, got %T: %v", err, err)
	}

	if err := store.SetField("folders", 42, "name", "x"); !IsStorageError(err) {
		t.Errorf("expected storage error from SetField on missing row, got %v", err)
	}
}

func TestInvalidIdentifierRejected(t *testing.T) {
	store := openTestStore(t)

	_, err := store.ListAllIDs("folders; DROP TABLE folders")
	if !IsStorageError(err) {
		t.Fatalf("expected storage error, got %v", err)
	}

	if _, err := store.ListAllIDs("folders"); err != nil {
		t.Fatalf("folders table should survive: %v", err)
	}
}

func TestFindOrInsert(t *testing.T) {
	store := openTestStore(t)

	id1, created, err := store.FindOrInsert("playlists", "name", "Favourites")
	if err != nil {
		t.Fatalf("FindOrInsert failed: %v", err)
	}
	if !created {
		t.Error("expected first call to create the row")
	}

	id2, created, err := store.FindOrInsert("playlists", "name", "Favourites")
	if err != nil {
		t.Fatalf("FindOrInsert failed: %v", err)
	}
	if created {
		t.Error("expected second call to find the existing row")
	}
	if id1 != id2 {
		t.Errorf("expected same id, got %d and %d", id1, id2)
	}
}

func TestFindOrInsertConcurrent(t *testing.T) {
	store := openTestStore(t)

	const workers = 16
	ids := make([]int64, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], _, errs[i] = store.FindOrInsert("playlists", "name", "Shared")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("worker %d got id %d, expected %d", i, ids[i], ids[0])
		}
	}

	all, err := store.ListAllIDs("playlists")
	if err != nil {
		t.Fatalf("ListAllIDs failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected exactly one playlist row, got %d", len(all))
	}
}

func TestListIDsWhere(t *testing.T) {
	store := openTestStore(t)

	for _, name := range []string{"a", "b", "c"} {
		folder := int64(1)
		if name == "c" {
			folder = 2
		}
		if _, err := store.InsertRow("music_items", []string{"name", "folder_id"}, name, folder); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	ids, err := store.ListIDsWhere("music_items", "folder_id", int64(1))
	if err != nil {
		t.Fatalf("ListIDsWhere failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 items in folder 1, got %d", len(ids))
	}

	ids, err = store.ListIDsWhere("music_items", "folder_id", int64(99))
	if err != nil {
		t.Fatalf("ListIDsWhere failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no items, got %v", ids)
	}

	empty, err := store.IsEmpty("music_items")
	if err != nil {
		t.Fatalf("IsEmpty failed: %v", err)
	}
	if empty {
		t.Error("expected music_items to be non-empty")
	}
}

func TestTableSchema(t *testing.T) {
	store := openTestStore(t)

	columns, err := store.TableSchema("internal_files")
	if err != nil {
		t.Fatalf("TableSchema failed: %v", err)
	}
	if len(columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(columns))
	}
	if columns[0].Name != "id" || !columns[0].PrimaryKey {
		t.Errorf("expected id primary key first, got %+v", columns[0])
	}
	if columns[1].Name != "internal_path" || columns[1].Type != "TEXT" || !columns[1].NotNull {
		t.Errorf("unexpected column %+v", columns[1])
	}

	if _, err := store.TableSchema("no_such_table"); !IsStorageError(err) {
		t.Errorf("expected storage error for unknown table, got %v", err)
	}
}

func TestTransactionRollback(t *testing.T) {
	store := openTestStore(t)

	err := store.Transaction(func(c *Conn) error {
		if _, err := c.InsertRow("internal_files", []string{"internal_path"}, "x.mp3"); err != nil {
			return err
		}
		// NOT NULL violation aborts the whole unit
		_, err := c.InsertRow("internal_files", []string{"internal_path"}, nil)
		return err
	})
	if !IsStorageError(err) {
		t.Fatalf("expected storage error, got %v", err)
	}

	empty, err := store.IsEmpty("internal_files")
	if err != nil {
		t.Fatalf("IsEmpty failed: %v", err)
	}
	if !empty {
		t.Error("expected rollback to leave internal_files empty")
	}
}

func TestExportImportTable(t *testing.T) {
	src := openTestStore(t)

	if _, err := src.InsertRow("music_items", []string{"name", "folder_id"}, "Track", int64(7)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := src.InsertRow("tags", []string{"music_item_id", "tag_name", "value_type", "int_value"},
		int64(1), "track", int64(1), int64(3)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// Round-trip through JSON the same way a backup file would
	exported := map[string][]Row{}
	for _, table := range []string{"music_items", "tags"} {
		err := src.ExportTable(table, func(row Row) error {
			data, err := json.Marshal(row.Map())
			if err != nil {
				return err
			}
			var decoded map[string]interface{}
			dec := json.NewDecoder(bytes.NewReader(data))
			dec.UseNumber()
			if err := dec.Decode(&decoded); err != nil {
				return err
			}
			r := Row{}
			for _, col := range row.Columns {
				r.Columns = append(r.Columns, col)
				r.Values = append(r.Values, decoded[col])
			}
			exported[table] = append(exported[table], r)
			return nil
		})
		if err != nil {
			t.Fatalf("ExportTable(%s) failed: %v", table, err)
		}
	}

	dst := openTestStore(t)
	for _, table := range []string{"music_items", "tags"} {
		if err := dst.ImportTable(table, exported[table]); err != nil {
			t.Fatalf("ImportTable(%s) failed: %v", table, err)
		}
	}

	var folder int64
	if err := dst.GetField("music_items", 1, "folder_id", &folder); err != nil {
		t.Fatalf("GetField failed: %v", err)
	}
	if folder != 7 {
		t.Errorf("expected folder_id 7, got %d", folder)
	}

	var track int64
	if err := dst.GetField("tags", 1, "int_value", &track); err != nil {
		t.Fatalf("GetField failed: %v", err)
	}
	if track != 3 {
		t.Errorf("expected int_value 3, got %d", track)
	}
}

func TestMemoryStore(t *testing.T) {
	store, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("failed to open memory store: %v", err)
	}
	defer store.Close()

	if _, err := store.InsertRow("playlists", []string{"name"}, "p"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	ids, err := store.ListAllIDs("playlists")
	if err != nil {
		t.Fatalf("ListAllIDs failed: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("expected 1 playlist, got %d", len(ids))
	}
}

func TestCheckIntegrity(t *testing.T) {
	store := openTestStore(t)
	if err := store.CheckIntegrity(); err != nil {
		t.Errorf("integrity check failed on fresh database: %v", err)
	}
	if SQLiteVersion() == "" {
		t.Error("expected a SQLite version string")
	}
}
