// Package sse streams library changes to browsers as Server-Sent Events.
//
// Every message carries a sequence id. The broker keeps a short history so
// a client reconnecting with Last-Event-ID receives the commits it missed.
// Clients may subscribe to a single package with ?package=<name>.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event types sent to clients.
const (
	TypePackageCreated   = "package.created"
	TypePackageUpdated   = "package.updated"
	TypePackageCommitted = "package.committed"
	TypePackageRemoved   = "package.removed"
	TypeCatalogUpdated   = "catalog.updated"
)

// Event represents an SSE event to broadcast. Path scopes the event to one
// package; an empty Path reaches every client.
type Event struct {
	Type string `json:"type"`
	Path string `json:"-"`
	Data any    `json:"data"`
}

// PackageEvent is the payload of the package.* events.
type PackageEvent struct {
	Path string    `json:"path"`
	At   time.Time `json:"at"`
}

// packageEventTypes maps service and watcher kinds to SSE event names.
var packageEventTypes = map[string]string{
	"created":   TypePackageCreated,
	"updated":   TypePackageUpdated,
	"committed": TypePackageCommitted,
	"deleted":   TypePackageRemoved,
}

const (
	clientBuffer       = 64
	defaultHistory     = 128
	defaultHeartbeat   = 15 * time.Second
	defaultCatalogRate = 2 * time.Second
)

// Option configures a Broker.
type Option func(*Broker)

// WithHistory sets how many messages are kept for Last-Event-ID replay.
func WithHistory(n int) Option {
	return func(b *Broker) { b.historySize = n }
}

// WithHeartbeat sets the interval of keep-alive comments on open streams.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

type message struct {
	id   uint64
	path string
	raw  []byte
}

type client struct {
	ch   chan []byte
	path string
}

func (c *client) wants(m message) bool {
	return c.path == "" || m.path == "" || m.path == c.path
}

type subscribeReq struct {
	c      *client
	lastID uint64
}

// Broker manages SSE client connections and broadcasts events.
//
// A single loop goroutine owns the client set, the history ring, the
// sequence counter and the catalog throttle. Public methods talk to it over
// channels.
type Broker struct {
	catalogMin  time.Duration
	historySize int
	heartbeat   time.Duration

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. catalogThrottle bounds how often
// catalog.updated follows a package event.
func NewBroker(catalogThrottle time.Duration, opts ...Option) *Broker {
	if catalogThrottle <= 0 {
		catalogThrottle = defaultCatalogRate
	}

	b := &Broker{
		catalogMin:    catalogThrottle,
		historySize:   defaultHistory,
		heartbeat:     defaultHeartbeat,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]*client)
	history := make([]message, 0, b.historySize)
	var (
		seq         uint64
		lastCatalog time.Time
	)

	send := func(c *client, m message) {
		select {
		case c.ch <- m.raw:
		default:
			// Slow client; it can catch up through Last-Event-ID.
		}
	}

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		m := message{
			id:   seq,
			path: event.Path,
			raw:  []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload)),
		}
		if b.historySize > 0 {
			if len(history) == b.historySize {
				history = append(history[:0], history[1:]...)
			}
			history = append(history, m)
		}
		for _, c := range clients {
			if c.wants(m) {
				send(c, m)
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

		case req := <-b.subscribeCh:
			if req.lastID > 0 {
				for _, m := range history {
					if m.id > req.lastID && req.c.wants(m) {
						send(req.c, m)
					}
				}
			}
			clients[req.c.ch] = req.c

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)
			switch event.Type {
			case TypePackageCreated, TypePackageUpdated, TypePackageCommitted, TypePackageRemoved:
			default:
				continue
			}
			if now := time.Now(); now.Sub(lastCatalog) >= b.catalogMin {
				lastCatalog = now
				broadcast(Event{Type: TypeCatalogUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops the broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client and returns its channel. A non-empty path limits
// package events to that package. Messages newer than lastID still in the
// history are queued first.
func (b *Broker) Subscribe(path string, lastID uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscribeReq{c: &client{ch: ch, path: path}, lastID: lastID}:
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
	case b.unsubscribeCh <- ch:
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

// Publish sends an event to all interested clients. It returns once the
// loop has taken the event, so events are numbered in call order.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishPackageEvent publishes an archive change followed by a throttled
// catalog.updated. Unknown kinds are dropped. Its signature matches the
// catalog and service event callbacks.
func (b *Broker) PublishPackageEvent(kind, path string) {
	typ, ok := packageEventTypes[kind]
	if !ok {
		return
	}
	b.Publish(Event{Type: typ, Path: path, Data: PackageEvent{Path: path, At: time.Now().UTC()}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	path := r.URL.Query().Get("package")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(path, lastID)
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
