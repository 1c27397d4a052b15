// Package sse streams item and publish events to browsers over
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the broker.
const (
	TypeSiteChanged      = "site.changed"
	TypePublishCompleted = "publish.completed"
	TypePublishFailed    = "publish.failed"
)

// Event is one message on the stream. ID is filled in by the broker.
type Event struct {
	ID   string `json:"-"`
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ItemChange describes a change to one of the managed lists.
type ItemChange struct {
	Kind   string `json:"kind"`
	Action string `json:"action"`
	Index  int    `json:"index"`
}

// Broker fans events out to connected clients.
//
// A single loop goroutine owns the client set and the site.changed throttle;
// public methods talk to it over channels.
type Broker struct {
	siteMin time.Duration

	joinCh   chan chan []byte
	leaveCh  chan chan []byte
	eventCh  chan Event
	changeCh chan ItemChange
	countCh  chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. site.changed is emitted at most once per
// siteThrottle however many items change.
func NewBroker(siteThrottle time.Duration) *Broker {
	if siteThrottle <= 0 {
		siteThrottle = 2 * time.Second
	}
	b := &Broker{
		siteMin:  siteThrottle,
		joinCh:   make(chan chan []byte),
		leaveCh:  make(chan chan []byte),
		eventCh:  make(chan Event, 256),
		changeCh: make(chan ItemChange, 256),
		countCh:  make(chan chan int),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go b.loop()
	return b
}

// encode renders an event in wire format.
func encode(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	return []byte(fmt.Sprintf("id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, payload)), nil
}

func (b *Broker) loop() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastSite time.Time

	send := func(ev Event) {
		raw, err := encode(ev)
		if err != nil {
			return
		}
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.joinCh:
			clients[ch] = struct{}{}

		case ch := <-b.leaveCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.eventCh:
			send(ev)

		case c := <-b.changeCh:
			send(Event{Type: c.Kind + "." + c.Action, Data: c})
			if now := time.Now(); now.Sub(lastSite) >= b.siteMin {
				lastSite = now
				send(Event{Type: TypeSiteChanged, Data: map[string]string{}})
			}

		case resp := <-b.countCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel. Safe to call twice.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.joinCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leaveCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countCh <- resp:
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

// Publish broadcasts an arbitrary event.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.eventCh <- ev:
	case <-b.stopped:
	}
}

// PublishChange broadcasts "<kind>.<action>" plus a throttled site.changed.
func (b *Broker) PublishChange(c ItemChange) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- c:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
