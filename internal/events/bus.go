// Package events is the in-process bus that carries collection and job
// notifications to whoever is listening, such as CLI progress or tests.
package events

import (
	"sync/atomic"
)

// Event types published on the bus
const (
	CollectionUpdated = "collection.updated"
	JobStateChanged   = "jobs.state_changed"
)

// Event is one notification
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Publisher is what producers depend on
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(Event)

// Publish calls f(e)
func (f PublisherFunc) Publish(e Event) { f(e) }

// Discard drops every event
var Discard Publisher = PublisherFunc(func(Event) {})

type subscribeReq struct {
	ch    chan Event
	types map[string]bool
}

// Bus fans events out to subscribers.
//
// A single goroutine owns the subscriber set; public methods talk to it
// through channels. Slow subscribers lose events rather than block producers.
type Bus struct {
	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan Event
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBus starts a bus
func NewBus() *Bus {
	b := &Bus{
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan Event),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Bus) run() {
	defer close(b.stopped)

	subs := make(map[chan Event]map[string]bool)

	for {
		select {
		case <-b.stopCh:
			// deliver what was already accepted before shutting down
			for {
				select {
				case event := <-b.publishCh:
					broadcast(subs, event)
					continue
				default:
				}
				break
			}
			for ch := range subs {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			subs[req.ch] = req.types

		case ch := <-b.unsubscribeCh:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(subs, event)

		case resp := <-b.countReqCh:
			resp <- len(subs)
		}
	}
}

func broadcast(subs map[chan Event]map[string]bool, event Event) {
	for ch, types := range subs {
		if len(types) > 0 && !types[event.Type] {
			continue
		}
		select {
		case ch <- event:
		default:
		}
	}
}

// Close stops the bus and closes every subscriber channel
func (b *Bus) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe returns a channel receiving events of the given types,
// or every event when no type is given.
func (b *Bus) Subscribe(types ...string) chan Event {
	ch := make(chan Event, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	filter := make(map[string]bool, len(types))
	for _, t := range types {
		filter[t] = true
	}

	select {
	case b.subscribeCh <- subscribeReq{ch: ch, types: filter}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel
func (b *Bus) Unsubscribe(ch chan Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// SubscriberCount returns the number of subscribers
func (b *Bus) SubscriberCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish queues an event for delivery. It never blocks on subscribers.
func (b *Bus) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}
