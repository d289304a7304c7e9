package migrate

import (
	"context"
	"os"
	"strconv"
	"strings"
	"syscall"
	"testing"

	"github.com/spf13/afero"

	"github.com/franz/lappi/internal/files"
	"github.com/franz/lappi/internal/folders"
	"github.com/franz/lappi/internal/jobs"
	"github.com/franz/lappi/internal/library"
	"github.com/franz/lappi/internal/notify"
	"github.com/franz/lappi/internal/report"
	"github.com/franz/lappi/internal/store"
	"github.com/franz/lappi/internal/util"
)

const (
	testRoot    = "/library"
	testJournal = "/tmp/migration.jsonl"
)

// renameFailFs fails every Rename whose source is not a .part file
type renameFailFs struct {
	afero.Fs
	fail bool
}

func (f *renameFailFs) Rename(oldname, newname string) error {
	if f.fail && !strings.HasSuffix(oldname, ".part") {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: syscall.EXDEV}
	}
	return f.Fs.Rename(oldname, newname)
}

type testEnv struct {
	fs     *renameFailFs
	lib    *library.Library
	reg    *files.Registry
	engine *Engine
}

func newTestEnv(t *testing.T, persistent bool) *testEnv {
	t.Helper()
	st, err := store.Open(store.MemoryPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	fsys := &renameFailFs{Fs: afero.NewMemMapFs()}
	db := notify.New(st, nil)
	reg := files.New(&files.Config{
		Store:      st,
		Fs:         fsys,
		Root:       testRoot,
		Persistent: persistent,
		Retry:      util.NoRetry(),
	})
	lib := library.New(db, folders.New(db), reg)
	engine := New(&Config{
		Catalog:     lib,
		Files:       reg,
		Fs:          fsys,
		JournalPath: testJournal,
	})
	return &testEnv{fs: fsys, lib: lib, reg: reg, engine: engine}
}

func (e *testEnv) folder(t *testing.T, parent int64, name string, typ folders.FolderType) int64 {
	t.Helper()
	id, err := e.lib.Hierarchy().FindOrCreateChild(parent, name, typ)
	if err != nil {
		t.Fatalf("FindOrCreateChild(%s): %v", name, err)
	}
	return id
}

// track creates an item with a music file and returns the item id
func (e *testEnv) track(t *testing.T, folder int64, name string, number int64) int64 {
	t.Helper()
	item, err := e.lib.CreateItem(folder, name)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if number > 0 {
		if err := e.lib.Hierarchy().SetTag(folders.ItemOwner(item), library.TagTrack, folders.IntValue(number)); err != nil {
			t.Fatalf("SetTag: %v", err)
		}
	}
	src := "/incoming/" + name + ".mp3"
	if err := afero.WriteFile(e.fs, src, []byte("audio of "+name), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := e.lib.ImportMusicFile(context.Background(), item, src); err != nil {
		t.Fatalf("ImportMusicFile(%s): %v", name, err)
	}
	return item
}

func (e *testEnv) musicPath(t *testing.T, item int64) files.InternalPath {
	t.Helper()
	mf, ok, err := e.lib.MusicFile(item)
	if err != nil || !ok {
		t.Fatalf("MusicFile: %v %v", ok, err)
	}
	p, err := e.reg.Resolve(mf.FileID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return p
}

func (e *testEnv) exists(t *testing.T, p files.InternalPath) bool {
	t.Helper()
	ok, err := afero.Exists(e.fs, e.reg.AbsPath(p))
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	return ok
}

// assertConsistent checks that every asset sits at its canonical path
func (e *testEnv) assertConsistent(t *testing.T) {
	t.Helper()
	for _, kind := range library.AssetKinds() {
		err := e.lib.WalkAssets(kind, func(a library.Asset) error {
			current, err := e.reg.Resolve(a.FileID)
			if err != nil {
				return err
			}
			if current != a.Canonical {
				t.Errorf("file %d recorded at %s, canonical %s", a.FileID, current, a.Canonical)
			}
			if e.reg.Persistent() && !e.exists(t, current) {
				t.Errorf("file %d missing at %s", a.FileID, current)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("WalkAssets: %v", err)
		}
	}
}

// interruptAfter stops a run after a number of applied entries
type interruptAfter struct {
	limit int
	moved int
}

func (p *interruptAfter) SetProgress(_ float64, status string) {
	if strings.HasPrefix(status, "Moved") {
		p.moved++
	}
}

func (p *interruptAfter) Interrupted() bool {
	return p.moved >= p.limit
}

func TestExampleScenario(t *testing.T) {
	env := newTestEnv(t, true)
	artist := env.folder(t, folders.RootID, "Artist", folders.Artist)
	album := env.folder(t, artist, "Album", folders.Album)
	item := env.track(t, album, "Track", 1)

	if got := env.musicPath(t, item); got != "Artist/Album/1 - Track.mp3" {
		t.Fatalf("initial path = %q", got)
	}

	if err := env.lib.Hierarchy().SetName(artist, "Artist2"); err != nil {
		t.Fatalf("SetName: %v", err)
	}

	result, err := env.engine.Run(nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Planned != 1 || result.Applied != 1 || result.Conflicts != 0 {
		t.Errorf("result = %+v", result)
	}

	if got := env.musicPath(t, item); got != "Artist2/Album/1 - Track.mp3" {
		t.Errorf("path after migration = %q", got)
	}
	if !env.exists(t, "Artist2/Album/1 - Track.mp3") {
		t.Error("file not at new location")
	}
	if ok, _ := afero.DirExists(env.fs, testRoot+"/Artist"); ok {
		t.Error("empty Artist directory not swept")
	}

	again, err := env.engine.Run(nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if again.Planned != 0 || again.Applied != 0 {
		t.Errorf("second run = %+v", again)
	}
	entries, err := ReadJournal(env.fs, testJournal)
	if err != nil {
		t.Fatalf("ReadJournal: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("second journal has %d entries", len(entries))
	}
}

func TestAllAssetKindsMove(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	artist := env.folder(t, folders.RootID, "Artist", folders.Artist)
	album := env.folder(t, artist, "Album", folders.Album)
	item := env.track(t, album, "Track", 1)

	if _, err := env.lib.SaveLyrics(item, "en", "words"); err != nil {
		t.Fatalf("SaveLyrics: %v", err)
	}
	afero.WriteFile(env.fs, "/incoming/cover.png", []byte("png"), 0o644)
	if _, err := env.lib.SetFolderCover(ctx, album, "/incoming/cover.png"); err != nil {
		t.Fatalf("SetFolderCover: %v", err)
	}
	if _, err := env.lib.SaveFolderDescription(artist, "bio"); err != nil {
		t.Fatalf("SaveFolderDescription: %v", err)
	}
	afero.WriteFile(env.fs, "/incoming/photo.jpg", []byte("jpg"), 0o644)
	if _, err := env.lib.ImportPicture(ctx, artist, "/incoming/photo.jpg"); err != nil {
		t.Fatalf("ImportPicture: %v", err)
	}

	// retitling the track only moves its music and lyrics files
	if err := env.lib.SetItemName(item, "Intro"); err != nil {
		t.Fatalf("SetItemName: %v", err)
	}
	result, err := env.engine.Run(nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Planned != 2 {
		t.Errorf("planned = %d, want 2", result.Planned)
	}
	env.assertConsistent(t)

	if err := env.lib.Hierarchy().SetName(artist, "Someone Else"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	result, err = env.engine.Run(nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Planned != 5 || result.Applied != 5 {
		t.Errorf("result = %+v, want 5 planned and applied", result)
	}
	env.assertConsistent(t)

	if text, ok, err := env.lib.LyricsText(item, "en"); err != nil || !ok || text != "words" {
		t.Errorf("lyrics after move = %q %v %v", text, ok, err)
	}
}

func TestResumableAfterInterruption(t *testing.T) {
	const n, k = 5, 2

	env := newTestEnv(t, true)
	artist := env.folder(t, folders.RootID, "Artist", folders.Artist)
	album := env.folder(t, artist, "Album", folders.Album)
	for i := 1; i <= n; i++ {
		env.track(t, album, "Song "+string(rune('A'+i)), int64(i))
	}
	if err := env.lib.Hierarchy().SetName(artist, "Renamed"); err != nil {
		t.Fatalf("SetName: %v", err)
	}

	result, err := env.engine.Run(&interruptAfter{limit: k})
	if err != nil {
		t.Fatalf("interrupted Run: %v", err)
	}
	if !result.Interrupted || result.Planned != n || result.Applied != k {
		t.Fatalf("interrupted result = %+v", result)
	}

	result, err = env.engine.Run(nil)
	if err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	if result.Planned != n-k || result.Applied != n-k {
		t.Errorf("resumed result = %+v, want %d planned and applied", result, n-k)
	}
	env.assertConsistent(t)

	entries, err := env.reg.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(entries) != n {
		t.Errorf("registry has %d files, want %d", len(entries), n)
	}
	onDisk, err := afero.ReadDir(env.fs, testRoot+"/Renamed/Album")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(onDisk) != n {
		t.Errorf("%d files on disk, want %d", len(onDisk), n)
	}
}

func TestRenameFailureAbortsAndKeepsMapping(t *testing.T) {
	env := newTestEnv(t, true)
	artist := env.folder(t, folders.RootID, "Artist", folders.Artist)
	item := env.track(t, artist, "Track", 0)
	if err := env.lib.Hierarchy().SetName(artist, "Moved"); err != nil {
		t.Fatalf("SetName: %v", err)
	}

	env.fs.fail = true
	if _, err := env.engine.Run(nil); err == nil {
		t.Fatal("Run succeeded with a failing rename")
	}
	if got := env.musicPath(t, item); got != "Artist/Track.mp3" {
		t.Errorf("mapping = %q, want the original path", got)
	}
	if !env.exists(t, "Artist/Track.mp3") {
		t.Error("original file missing")
	}

	env.fs.fail = false
	if _, err := env.engine.Run(nil); err != nil {
		t.Fatalf("Run after recovery: %v", err)
	}
	env.assertConsistent(t)
}

func TestPlanResolvesCollisions(t *testing.T) {
	t.Run("target owned by a file that stays", func(t *testing.T) {
		env := newTestEnv(t, true)
		album := env.folder(t, folders.RootID, "Album", folders.Album)
		env.track(t, album, "One", 0)
		two := env.track(t, album, "Two", 0)
		env.lib.SetItemName(two, "One")

		result, err := env.engine.Run(nil)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if result.Planned != 0 || result.Conflicts != 1 {
			t.Errorf("result = %+v", result)
		}
		if got := env.musicPath(t, two); got != "Album/Two.mp3" {
			t.Errorf("dropped file moved to %q", got)
		}
	})

	t.Run("swap is a cycle", func(t *testing.T) {
		env := newTestEnv(t, true)
		album := env.folder(t, folders.RootID, "Album", folders.Album)
		one := env.track(t, album, "One", 0)
		two := env.track(t, album, "Two", 0)
		env.lib.SetItemName(one, "Two")
		env.lib.SetItemName(two, "One")

		result, err := env.engine.Run(nil)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if result.Planned != 0 || result.Conflicts != 2 {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("chain is ordered", func(t *testing.T) {
		env := newTestEnv(t, true)
		album := env.folder(t, folders.RootID, "Album", folders.Album)
		one := env.track(t, album, "One", 0)
		two := env.track(t, album, "Two", 0)
		env.lib.SetItemName(one, "Two")
		env.lib.SetItemName(two, "Three")

		result, err := env.engine.Run(nil)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if result.Planned != 2 || result.Applied != 2 || result.Conflicts != 0 {
			t.Errorf("result = %+v", result)
		}
		env.assertConsistent(t)
	})

	t.Run("two files claim one path", func(t *testing.T) {
		env := newTestEnv(t, true)
		album := env.folder(t, folders.RootID, "Album", folders.Album)
		one := env.track(t, album, "One", 0)
		two := env.track(t, album, "Two", 0)
		env.lib.SetItemName(one, "Same")
		env.lib.SetItemName(two, "Same")

		result, err := env.engine.Run(nil)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if result.Planned != 1 || result.Conflicts != 1 {
			t.Errorf("result = %+v", result)
		}
		if got := env.musicPath(t, one); got != "Album/Same.mp3" {
			t.Errorf("first claimant at %q", got)
		}
	})
}

func TestJournalFormat(t *testing.T) {
	env := newTestEnv(t, true)
	artist := env.folder(t, folders.RootID, "Artist", folders.Artist)
	item := env.track(t, artist, "Track", 2)
	env.lib.Hierarchy().SetName(artist, "Other")

	result, err := env.engine.Plan(nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if result.Planned != 1 {
		t.Fatalf("planned = %d", result.Planned)
	}

	data, err := afero.ReadFile(env.fs, testJournal)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	mf, _, _ := env.lib.MusicFile(item)
	want := `{"file_id":` + strconv.FormatInt(mf.FileID, 10) + `,"new_path":"Other/2 - Track.mp3"}` + "\n"
	if string(data) != want {
		t.Errorf("journal = %q, want %q", data, want)
	}

	// planning does not touch the files
	if got := env.musicPath(t, item); got != "Artist/2 - Track.mp3" {
		t.Errorf("Plan moved the file to %q", got)
	}
}

func TestEphemeralMode(t *testing.T) {
	env := newTestEnv(t, false)
	artist := env.folder(t, folders.RootID, "Artist", folders.Artist)
	item := env.track(t, artist, "Track", 0)
	env.lib.Hierarchy().SetName(artist, "Elsewhere")

	result, err := env.engine.Run(nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Applied != 1 {
		t.Errorf("applied = %d", result.Applied)
	}
	if got := env.musicPath(t, item); got != "Elsewhere/Track.mp3" {
		t.Errorf("mapping = %q", got)
	}
	if ok, _ := afero.DirExists(env.fs, testRoot); ok {
		t.Error("ephemeral mode touched the storage root")
	}
}

func TestJobOnHost(t *testing.T) {
	env := newTestEnv(t, true)
	artist := env.folder(t, folders.RootID, "Artist", folders.Artist)
	env.track(t, artist, "Track", 0)
	env.lib.Hierarchy().SetName(artist, "Artist2")

	host := jobs.NewHost(nil)
	job := NewJob(env.engine)
	if err := host.Register(JobID, job); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := host.Start(context.Background(), JobID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	host.Wait()

	state, err := host.State(JobID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Stage != jobs.Done || state.Progress != 1 || state.Err != "" {
		t.Errorf("state = %+v", state)
	}
	if r := job.LastResult(); r == nil || r.Applied != 1 {
		t.Errorf("last result = %+v", r)
	}
	env.assertConsistent(t)
}

func TestJournalFailureIsAudited(t *testing.T) {
	env := newTestEnv(t, true)
	artist := env.folder(t, folders.RootID, "Artist", folders.Artist)
	env.track(t, artist, "Track", 0)
	env.lib.Hierarchy().SetName(artist, "Artist2")

	logger, err := report.NewEventLogger(t.TempDir(), report.LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger: %v", err)
	}
	engine := New(&Config{
		Catalog:     env.lib,
		Files:       env.reg,
		Fs:          afero.NewReadOnlyFs(afero.NewMemMapFs()),
		JournalPath: testJournal,
		Logger:      logger,
	})

	if _, err := engine.Run(nil); err == nil {
		t.Fatal("Run with an unwritable journal succeeded")
	}
	logger.Close()

	events, err := report.ReadEvents(logger.Path())
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	found := false
	for _, e := range events {
		if e.Event == report.EventError && e.SrcPath == testJournal && e.Error != "" {
			found = true
		}
	}
	if !found {
		t.Errorf("no journal error event in %+v", events)
	}

	var summary report.SummaryReport
	summary.SummarizeRun(events, "")
	if len(summary.TopErrors) == 0 {
		t.Error("journal error missing from the run summary")
	}
}
