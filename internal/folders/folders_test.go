package folders

import (
	"sync"
	"testing"

	"github.com/franz/lappi/internal/events"
	"github.com/franz/lappi/internal/notify"
	"github.com/franz/lappi/internal/store"
)

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) Publish(events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func newTestHierarchy(t *testing.T) (*Hierarchy, *notify.Coalescer, *counter) {
	t.Helper()
	st, err := store.Open(store.MemoryPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	pub := &counter{}
	db := notify.New(st, pub)
	return New(db), db, pub
}

func createItem(t *testing.T, db *notify.Coalescer, folder int64, name string) int64 {
	t.Helper()
	id, err := db.Store().InsertRow("music_items", []string{"name", "folder_id"}, name, folder)
	if err != nil {
		t.Fatalf("failed to create item: %v", err)
	}
	return id
}

func TestRoot(t *testing.T) {
	h, _, _ := newTestHierarchy(t)

	root, err := h.Get(RootID)
	if err != nil {
		t.Fatalf("Get(root) failed: %v", err)
	}
	if !root.IsRoot() || root.Name != "Root" {
		t.Errorf("unexpected root %+v", root)
	}

	parent, err := h.Parent(RootID)
	if err != nil || parent != RootID {
		t.Errorf("Parent(root) = %d, %v", parent, err)
	}

	chain, err := h.Chain(RootID)
	if err != nil || len(chain) != 0 {
		t.Errorf("Chain(root) = %v, %v; want empty", chain, err)
	}

	ids, err := h.db.Store().ListAllIDs("folders")
	if err != nil {
		t.Fatalf("ListAllIDs failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("root must not be stored, found %v", ids)
	}
}

func TestFindOrCreateChildIdempotent(t *testing.T) {
	h, _, pub := newTestHierarchy(t)

	artist, err := h.FindOrCreateChild(RootID, "Artist", Artist)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	again, err := h.FindOrCreateChild(RootID, "Artist", Album)
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if artist != again {
		t.Errorf("expected same id, got %d and %d", artist, again)
	}

	f, err := h.Get(artist)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if f.Type != Artist {
		t.Errorf("existing folder type changed to %s", f.Type)
	}
	if pub.count() != 1 {
		t.Errorf("expected 1 notification (creation only), got %d", pub.count())
	}

	// same name under another parent is a different folder
	album, err := h.FindOrCreateChild(artist, "Artist", Album)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if album == artist {
		t.Error("same name under a different parent must be a new folder")
	}
}

func TestFindOrCreateChildConcurrent(t *testing.T) {
	h, _, _ := newTestHierarchy(t)

	const workers = 8
	ids := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := h.FindOrCreateChild(RootID, "Same", Generic)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for i := range ids {
		if ids[i] != ids[0] {
			t.Fatalf("workers got different ids: %v", ids)
		}
	}
}

func TestMissingFolderIsStorageError(t *testing.T) {
	h, _, _ := newTestHierarchy(t)

	if _, err := h.Get(42); !store.IsStorageError(err) {
		t.Errorf("Get: expected storage error, got %v", err)
	}
	if _, err := h.Parent(42); !store.IsStorageError(err) {
		t.Errorf("Parent: expected storage error, got %v", err)
	}
	if _, err := h.FindOrCreateChild(42, "x", Generic); !store.IsStorageError(err) {
		t.Errorf("FindOrCreateChild: expected storage error, got %v", err)
	}
	if _, err := h.Children(42); !store.IsStorageError(err) {
		t.Errorf("Children: expected storage error, got %v", err)
	}
	if _, err := h.Chain(42); !store.IsStorageError(err) {
		t.Errorf("Chain: expected storage error, got %v", err)
	}
}

func TestChainAndChildren(t *testing.T) {
	h, _, _ := newTestHierarchy(t)

	artist, _ := h.FindOrCreateChild(RootID, "Artist", Artist)
	album, _ := h.FindOrCreateChild(artist, "Album", Album)
	disc, _ := h.FindOrCreateChild(album, "Disc 1", Generic)
	h.FindOrCreateChild(artist, "B-Sides", Album)

	names, err := h.ChainNames(disc)
	if err != nil {
		t.Fatalf("ChainNames failed: %v", err)
	}
	want := []string{"Artist", "Album", "Disc 1"}
	if len(names) != len(want) {
		t.Fatalf("chain = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("chain[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	chain, _ := h.Chain(disc)
	if chain[0].ParentID != RootID {
		t.Errorf("top of chain should hang off the root, parent = %d", chain[0].ParentID)
	}

	children, err := h.Children(artist)
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	if len(children) != 2 || children[0].Name != "Album" || children[1].Name != "B-Sides" {
		t.Errorf("unexpected children %+v", children)
	}

	top, err := h.Children(RootID)
	if err != nil || len(top) != 1 {
		t.Errorf("Children(root) = %v, %v", top, err)
	}

	found, ok, err := h.FindAncestor(disc, Artist)
	if err != nil || !ok || found.ID != artist {
		t.Errorf("FindAncestor(Artist) = %+v, %v, %v", found, ok, err)
	}
	if _, ok, _ := h.FindAncestor(artist, Album); ok {
		t.Error("artist has no album ancestor")
	}
}

func TestChainDepthCap(t *testing.T) {
	h, db, _ := newTestHierarchy(t)

	a, _ := h.FindOrCreateChild(RootID, "a", Generic)
	b, _ := h.FindOrCreateChild(a, "b", Generic)

	// corrupt the tree behind the hierarchy's back
	if err := db.Store().SetField("folders", a, "parent_id", b); err != nil {
		t.Fatalf("SetField failed: %v", err)
	}

	if _, err := h.Chain(b); !store.IsStorageError(err) {
		t.Errorf("expected storage error for cyclic chain, got %v", err)
	}
}

func TestSetters(t *testing.T) {
	h, _, _ := newTestHierarchy(t)

	artist, _ := h.FindOrCreateChild(RootID, "Artist", Artist)
	album, _ := h.FindOrCreateChild(artist, "Album", Album)

	if err := h.SetName(artist, "Artist2"); err != nil {
		t.Fatalf("SetName failed: %v", err)
	}
	if err := h.SetType(artist, Generic); err != nil {
		t.Fatalf("SetType failed: %v", err)
	}
	f, _ := h.Get(artist)
	if f.Name != "Artist2" || f.Type != Generic {
		t.Errorf("unexpected folder after setters: %+v", f)
	}

	// children are not revalidated
	child, _ := h.Get(album)
	if child.Type != Album {
		t.Errorf("child type changed to %s", child.Type)
	}

	if err := h.SetCover(album, 5); err != nil {
		t.Fatalf("SetCover failed: %v", err)
	}
	if id, ok, err := h.Cover(album); err != nil || !ok || id != 5 {
		t.Errorf("Cover = %d, %v, %v", id, ok, err)
	}
	if err := h.SetCover(album, 0); err != nil {
		t.Fatalf("clearing cover failed: %v", err)
	}
	if _, ok, _ := h.Cover(album); ok {
		t.Error("cover should be cleared")
	}

	if err := h.SetDescriptionFile(album, 9); err != nil {
		t.Fatalf("SetDescriptionFile failed: %v", err)
	}
	if id, ok, _ := h.DescriptionFile(album); !ok || id != 9 {
		t.Errorf("DescriptionFile = %d, %v", id, ok)
	}

	if err := h.SetName(RootID, "x"); err == nil {
		t.Error("renaming root should fail")
	}
	if err := h.SetName(99, "x"); !store.IsStorageError(err) {
		t.Errorf("renaming a missing folder should be a storage error, got %v", err)
	}
}

func TestMoveRejectsCycles(t *testing.T) {
	h, _, _ := newTestHierarchy(t)

	a, _ := h.FindOrCreateChild(RootID, "a", Generic)
	b, _ := h.FindOrCreateChild(a, "b", Generic)
	c, _ := h.FindOrCreateChild(RootID, "c", Generic)

	if err := h.Move(a, b); err == nil {
		t.Error("moving a folder below its own child should fail")
	}
	if err := h.Move(b, c); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	names, _ := h.ChainNames(b)
	if len(names) != 2 || names[0] != "c" {
		t.Errorf("chain after move = %v", names)
	}
}

func TestParseFolderType(t *testing.T) {
	for _, typ := range []FolderType{Generic, Artist, Album} {
		got, err := ParseFolderType(typ.String())
		if err != nil || got != typ {
			t.Errorf("ParseFolderType(%q) = %v, %v", typ.String(), got, err)
		}
	}
	if _, err := ParseFolderType("band"); err == nil {
		t.Error("expected error for unknown type")
	}
}
