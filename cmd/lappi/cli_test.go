package main

import (
	"os"
	"path/filepath"
	"testing"
)

// runCLI executes the root command against the collection in dir
func runCLI(t *testing.T, dir string, args ...string) {
	t.Helper()
	full := append([]string{
		"--db", filepath.Join(dir, "lappi.db"),
		"--root", filepath.Join(dir, "library"),
		"--quiet",
	}, args...)
	rootCmd.SetArgs(full)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("lappi %v: %v", args, err)
	}
}

func TestMigrateAfterRename(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LAPPI_TEMP_DIR", filepath.Join(dir, "tmp"))
	os.MkdirAll(filepath.Join(dir, "tmp"), 0755)

	src := filepath.Join(dir, "incoming", "song.mp3")
	os.MkdirAll(filepath.Dir(src), 0755)
	if err := os.WriteFile(src, []byte("not really audio"), 0644); err != nil {
		t.Fatal(err)
	}

	runCLI(t, dir, "folder", "add", "0", "Artist", "--type", "artist")
	runCLI(t, dir, "folder", "add", "1", "Album", "--type", "album")
	runCLI(t, dir, "item", "add", "2", "Song", src)
	runCLI(t, dir, "tag", "set", "item", "1", "track", "3")

	library := filepath.Join(dir, "library")
	if _, err := os.Stat(filepath.Join(library, "Artist", "Album", "Song.mp3")); err != nil {
		t.Fatalf("imported file missing: %v", err)
	}

	runCLI(t, dir, "folder", "rename", "1", "Artist2")
	runCLI(t, dir, "migrate")

	if _, err := os.Stat(filepath.Join(library, "Artist2", "Album", "3 - Song.mp3")); err != nil {
		t.Errorf("file not at its new path: %v", err)
	}
	if _, err := os.Stat(filepath.Join(library, "Artist")); !os.IsNotExist(err) {
		t.Errorf("old artist directory not swept: %v", err)
	}

	backup := filepath.Join(dir, "backup")
	runCLI(t, dir, "export", backup)
	for _, table := range []string{"folders", "music_items", "tags", "internal_files"} {
		if _, err := os.Stat(filepath.Join(backup, table+".jsonl")); err != nil {
			t.Errorf("no dump for %s: %v", table, err)
		}
	}
}
