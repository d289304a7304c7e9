package scan

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/franz/lappi/internal/files"
	"github.com/franz/lappi/internal/folders"
	"github.com/franz/lappi/internal/library"
	"github.com/franz/lappi/internal/notify"
	"github.com/franz/lappi/internal/store"
	"github.com/franz/lappi/internal/util"
)

func newTestScanner(t *testing.T) (*Scanner, *library.Library, afero.Fs) {
	t.Helper()
	st, err := store.Open(store.MemoryPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	fsys := afero.NewMemMapFs()
	db := notify.New(st, nil)
	reg := files.New(&files.Config{
		Store:      st,
		Fs:         fsys,
		Root:       "/library",
		Persistent: true,
		Retry:      util.NoRetry(),
	})
	lib := library.New(db, folders.New(db), reg)
	return New(&Config{Library: lib, Concurrency: 2}), lib, fsys
}

// id3v23 builds a minimal ID3v2.3 tag with latin-1 text frames
func id3v23(frames map[string]string) []byte {
	var body []byte
	for id, text := range frames {
		payload := append([]byte{0}, text...)
		hdr := make([]byte, 10)
		copy(hdr, id)
		binary.BigEndian.PutUint32(hdr[4:8], uint32(len(payload)))
		body = append(body, hdr...)
		body = append(body, payload...)
	}
	size := len(body)
	header := []byte{'I', 'D', '3', 3, 0, 0,
		byte(size >> 21 & 0x7f), byte(size >> 14 & 0x7f), byte(size >> 7 & 0x7f), byte(size & 0x7f)}
	return append(header, body...)
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		path string
		want Track
	}{
		{"/in/Band/Record/01 - Intro.mp3", Track{Artist: "Band", Album: "Record", Title: "Intro", Number: 1}},
		{"/in/Band/Record/02_Second_Song.flac", Track{Artist: "Band", Album: "Record", Title: "Second Song", Number: 2}},
		{"/in/Band/Record/03.Third.ogg", Track{Artist: "Band", Album: "Record", Title: "Third", Number: 3}},
		{"/in/Record/4 Four.mp3", Track{Album: "Record", Title: "Four", Number: 4}},
		{"/in/Song Title.mp3", Track{Title: "Song Title"}},
		{"/in/A/B/C/Deep.wav", Track{Artist: "B", Album: "C", Title: "Deep"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := parsePath("/in", tt.path)
			tt.want.Path = tt.path
			if *got != tt.want {
				t.Errorf("parsePath = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestFillUnknown(t *testing.T) {
	tr := &Track{Path: "/in/x.mp3", Title: " "}
	tr.fillUnknown()
	if tr.Artist != unknownArtist || tr.Album != unknownAlbum || tr.Title != "x" {
		t.Errorf("fillUnknown = %+v", *tr)
	}
}

func TestScanImportsTree(t *testing.T) {
	ctx := context.Background()
	s, lib, fsys := newTestScanner(t)

	sources := map[string][]byte{
		"/incoming/Band/Record/01 - Intro.mp3":      []byte("audio"),
		"/incoming/Band/Record/02_Second_Song.flac": []byte("audio"),
		"/incoming/loose.ogg":                       []byte("audio"),
		"/incoming/Other/x/tagged.mp3": append(id3v23(map[string]string{
			"TPE1": "Tagged Artist",
			"TALB": "Tagged Album",
			"TIT2": "Real Title",
			"TRCK": "7",
		}), make([]byte, 64)...),
		"/incoming/notes.txt": []byte("not music"),
	}
	for path, data := range sources {
		if err := afero.WriteFile(fsys, path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	result, err := s.Scan(ctx, "/incoming")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.Imported != 4 || result.Skipped != 0 || len(result.Errors) != 0 {
		t.Fatalf("result = %+v", result)
	}

	for _, p := range []string{
		"/library/Band/Record/1 - Intro.mp3",
		"/library/Band/Record/2 - Second Song.flac",
		"/library/Unknown Artist/Unknown Album/loose.ogg",
		"/library/Tagged Artist/Tagged Album/7 - Real Title.mp3",
	} {
		if ok, _ := afero.Exists(fsys, p); !ok {
			t.Errorf("missing %s", p)
		}
	}

	band, err := lib.Hierarchy().Children(folders.RootID)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(band) != 3 {
		t.Errorf("expected 3 artists, got %d", len(band))
	}
	for _, f := range band {
		if f.Type != folders.Artist {
			t.Errorf("folder %s has type %s", f.Name, f.Type)
		}
	}

	again, err := s.Scan(ctx, "/incoming")
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if again.Imported != 0 || again.Skipped != 4 {
		t.Errorf("second scan = %+v", again)
	}
	items, _ := lib.AllItems()
	if len(items) != 4 {
		t.Errorf("expected 4 items, got %d", len(items))
	}
}

func TestScanRefusesStorageRoot(t *testing.T) {
	s, _, fsys := newTestScanner(t)
	afero.WriteFile(fsys, "/library/Band/a.mp3", []byte("audio"), 0o644)

	if _, err := s.Scan(context.Background(), "/library/Band"); err == nil {
		t.Error("scanning inside the storage root should fail")
	}
}

func TestScanCancelled(t *testing.T) {
	s, lib, fsys := newTestScanner(t)
	afero.WriteFile(fsys, "/incoming/A/B/a.mp3", []byte("audio"), 0o644)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Scan(ctx, "/incoming"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	items, _ := lib.AllItems()
	if len(items) != 0 {
		t.Errorf("cancelled scan imported %d items", len(items))
	}
}

func TestWithin(t *testing.T) {
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}

	tests := []struct {
		name   string
		root   string
		path   string
		inside bool
	}{
		{"same", "/library", "/library", true},
		{"below", "/library", "/library/Band/Record", true},
		{"sibling", "/library", "/library2", false},
		{"parent", "/library/Band", "/library", false},
		{"dotted name", "/library", "/library/..hidden", true},
		{"relative root, absolute path", "library", filepath.Join(cwd, "library", "Band"), true},
		{"relative root, outside", "library", filepath.Join(cwd, "incoming"), false},
		{"absolute root, relative path", filepath.Join(cwd, "library"), "library/Band", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := within(tt.root, tt.path)
			if err != nil {
				t.Fatalf("within: %v", err)
			}
			if got != tt.inside {
				t.Errorf("within(%q, %q) = %v, want %v", tt.root, tt.path, got, tt.inside)
			}
		})
	}
}
