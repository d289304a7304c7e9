// Package notify coalesces collection writes into "collection changed"
// notifications.
//
// Outside a batch every Mark publishes one notification carrying just that
// call's categories. Inside a batch marks accumulate and StopBatch publishes
// their union once. Notifications are always published with no lock held.
package notify

import (
	"strings"
	"sync"

	"github.com/franz/lappi/internal/events"
	"github.com/franz/lappi/internal/store"
)

// Category is a set of changed collection areas
type Category uint8

const (
	Folders Category = 1 << iota
	Music
	Tags
	Playlists
)

func (c Category) String() string {
	var parts []string
	if c&Folders != 0 {
		parts = append(parts, "folders")
	}
	if c&Music != 0 {
		parts = append(parts, "music")
	}
	if c&Tags != 0 {
		parts = append(parts, "tags")
	}
	if c&Playlists != 0 {
		parts = append(parts, "playlists")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Change is the payload of a collection.updated event
type Change struct {
	Folders   bool    `json:"folders"`
	Music     bool    `json:"music"`
	Tags      bool    `json:"tags"`
	Playlists bool    `json:"playlists"`
	ItemIDs   []int64 `json:"item_ids,omitempty"`
}

// Categories returns the flags of c as a Category set
func (c Change) Categories() Category {
	var cat Category
	if c.Folders {
		cat |= Folders
	}
	if c.Music {
		cat |= Music
	}
	if c.Tags {
		cat |= Tags
	}
	if c.Playlists {
		cat |= Playlists
	}
	return cat
}

// pending accumulates marks until they are flushed
type pending struct {
	cat  Category
	ids  []int64
	seen map[int64]bool
}

func (p *pending) add(cat Category, ids []int64) {
	p.cat |= cat
	for _, id := range ids {
		if p.seen == nil {
			p.seen = make(map[int64]bool)
		}
		if !p.seen[id] {
			p.seen[id] = true
			p.ids = append(p.ids, id)
		}
	}
}

func (p *pending) empty() bool {
	return p.cat == 0 && len(p.ids) == 0
}

func (p *pending) change() Change {
	return Change{
		Folders:   p.cat&Folders != 0,
		Music:     p.cat&Music != 0,
		Tags:      p.cat&Tags != 0,
		Playlists: p.cat&Playlists != 0,
		ItemIDs:   p.ids,
	}
}

// Coalescer wraps the store and turns writes into notifications
type Coalescer struct {
	st  *store.Store
	pub events.Publisher

	mu       sync.Mutex
	batching bool
	pending  pending
}

// New wraps st. A nil publisher discards notifications.
func New(st *store.Store, pub events.Publisher) *Coalescer {
	if pub == nil {
		pub = events.Discard
	}
	return &Coalescer{st: st, pub: pub}
}

// Store returns the wrapped store, for read-only helpers and backups
func (c *Coalescer) Store() *store.Store {
	return c.st
}

// Mark records that cat changed, optionally for specific item ids
func (c *Coalescer) Mark(cat Category, ids ...int64) {
	c.mu.Lock()
	if c.batching {
		c.pending.add(cat, ids)
		c.mu.Unlock()
		return
	}
	var p pending
	p.add(cat, ids)
	c.mu.Unlock()

	c.publish(p)
}

// StartBatch defers notifications until StopBatch. Calling it while a
// batch is already open does nothing.
func (c *Coalescer) StartBatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batching = true
}

// StopBatch ends the batch and publishes the accumulated change, if any
func (c *Coalescer) StopBatch() {
	c.mu.Lock()
	c.batching = false
	p := c.pending
	c.pending = pending{}
	c.mu.Unlock()

	c.publish(p)
}

// InBatch reports whether a batch is open
func (c *Coalescer) InBatch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batching
}

// Batch runs fn inside a batch and always closes it. Inside an open batch
// it just runs fn, so the outer batch stays open.
func (c *Coalescer) Batch(fn func() error) error {
	if c.InBatch() {
		return fn()
	}
	c.StartBatch()
	defer c.StopBatch()
	return fn()
}

// Write runs fn in a store transaction and marks cat once it committed.
// The store lock is released before the mark.
func (c *Coalescer) Write(cat Category, fn func(conn *store.Conn) error, ids ...int64) error {
	if err := c.st.Transaction(fn); err != nil {
		return err
	}
	c.Mark(cat, ids...)
	return nil
}

// Read runs fn under the store lock without marking anything
func (c *Coalescer) Read(fn func(conn *store.Conn) error) error {
	return c.st.Do(fn)
}

func (c *Coalescer) publish(p pending) {
	if p.empty() {
		return
	}
	c.pub.Publish(events.Event{Type: events.CollectionUpdated, Data: p.change()})
}
