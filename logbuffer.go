// logbuffer.go: Listener-aware log buffering for the copilot engine
//
// Diagnostic events are produced long before any observer (a socket client,
// the zap bridge) attaches. Each category keeps a bounded ring while nobody
// listens and flushes it, in order, to the first listener that arrives.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package copilot

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
)

// LogCategory names one of the three buffered diagnostic channels.
type LogCategory string

const (
	CategoryLog   LogCategory = "log"
	CategoryDebug LogCategory = "debug"
	CategoryError LogCategory = "error"
)

// LogCategories lists the buffered categories in a fixed order.
var LogCategories = []LogCategory{CategoryLog, CategoryDebug, CategoryError}

// DefaultLogBufferSize is the per-category capacity used when none is configured.
const DefaultLogBufferSize = 100

// LogEvent is a single diagnostic record.
type LogEvent struct {
	Category  LogCategory   `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	Args      []interface{} `json:"args"`
}

// Message joins the arguments into one line.
func (e LogEvent) Message() string {
	return FormatArgs(e.Args)
}

// BufferState is the per-category listener state.
type BufferState int

const (
	// BufferCold means no listener is attached and events are retained.
	BufferCold BufferState = iota
	// BufferHot means at least one listener is attached and events are delivered immediately.
	BufferHot
)

func (s BufferState) String() string {
	switch s {
	case BufferCold:
		return "COLD"
	case BufferHot:
		return "HOT"
	default:
		return "UNKNOWN"
	}
}

// LogListener receives diagnostic events of one category.
type LogListener func(LogEvent)

// logRing is a fixed-capacity FIFO that overwrites its oldest slot when full.
type logRing struct {
	slots []LogEvent
	head  int
	count int
}

func newLogRing(capacity int) *logRing {
	return &logRing{slots: make([]LogEvent, capacity)}
}

// push appends ev and reports whether an older event was evicted.
func (r *logRing) push(ev LogEvent) bool {
	capacity := len(r.slots)
	if r.count < capacity {
		r.slots[(r.head+r.count)%capacity] = ev
		r.count++
		return false
	}
	r.slots[r.head] = ev
	r.head = (r.head + 1) % capacity
	return true
}

// drain returns the retained events oldest first and empties the ring.
func (r *logRing) drain() []LogEvent {
	if r.count == 0 {
		return nil
	}
	capacity := len(r.slots)
	out := make([]LogEvent, r.count)
	for i := 0; i < r.count; i++ {
		idx := (r.head + i) % capacity
		out[i] = r.slots[idx]
		r.slots[idx] = LogEvent{}
	}
	r.head, r.count = 0, 0
	return out
}

// resize keeps the newest events that fit in the new capacity.
func (r *logRing) resize(capacity int) int {
	events := r.drain()
	dropped := 0
	if len(events) > capacity {
		dropped = len(events) - capacity
		events = events[dropped:]
	}
	r.slots = make([]LogEvent, capacity)
	for _, ev := range events {
		r.push(ev)
	}
	return dropped
}

type logSubscription struct {
	id       uint64
	listener LogListener
	canceled atomic.Bool
}

// logDelivery is one event bound to the listeners attached when it was queued.
type logDelivery struct {
	ev   LogEvent
	subs []*logSubscription
}

type logChannel struct {
	ring      *logRing
	listeners []*logSubscription
}

// LogBufferStats reports counters for a LogBuffer.
type LogBufferStats struct {
	Recorded  int64 `json:"recorded"`
	Delivered int64 `json:"delivered"`
	Evicted   int64 `json:"evicted"`
}

// LogBuffer holds one bounded ring per category and a listener registry.
//
// While a category is COLD its events are retained up to the capacity, the
// oldest being evicted on overflow. The first listener flips the category to
// HOT and receives every retained event in arrival order before any newer one.
// When the last listener leaves the category becomes COLD again.
//
// Deliveries go through a single FIFO queue drained outside the lock, so
// listeners may record, subscribe or cancel from inside a callback. Such
// nested calls are queued and delivered once the running listener returns.
type LogBuffer struct {
	mu       sync.Mutex
	capacity int
	channels map[LogCategory]*logChannel
	nextID   uint64

	queue    []logDelivery
	draining bool

	recorded  atomic.Int64
	delivered atomic.Int64
	evicted   atomic.Int64
}

// NewLogBuffer creates a LogBuffer with the given per-category capacity.
// Non-positive capacities fall back to DefaultLogBufferSize.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultLogBufferSize
	}
	b := &LogBuffer{
		capacity: capacity,
		channels: make(map[LogCategory]*logChannel, len(LogCategories)),
	}
	for _, cat := range LogCategories {
		b.channels[cat] = &logChannel{ring: newLogRing(capacity)}
	}
	return b
}

func (b *LogBuffer) channel(cat LogCategory) *logChannel {
	ch, ok := b.channels[cat]
	if !ok {
		ch = &logChannel{ring: newLogRing(b.capacity)}
		b.channels[cat] = ch
	}
	return ch
}

// Record appends a diagnostic event. Calls with no arguments are ignored.
func (b *LogBuffer) Record(cat LogCategory, args ...interface{}) {
	if len(args) == 0 {
		return
	}
	ev := LogEvent{Category: cat, Timestamp: timecache.CachedTime(), Args: args}

	b.mu.Lock()
	b.recorded.Add(1)
	ch := b.channel(cat)
	if len(ch.listeners) == 0 {
		if ch.ring.push(ev) {
			b.evicted.Add(1)
		}
		b.mu.Unlock()
		return
	}
	subs := make([]*logSubscription, len(ch.listeners))
	copy(subs, ch.listeners)
	b.queue = append(b.queue, logDelivery{ev: ev, subs: subs})
	b.drainLocked()
}

// Subscribe attaches a listener to a category and returns a function that
// detaches it. Attaching the first listener flushes the retained events to it.
func (b *LogBuffer) Subscribe(cat LogCategory, listener LogListener) (cancel func()) {
	if listener == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	sub := &logSubscription{id: b.nextID, listener: listener}
	ch := b.channel(cat)
	ch.listeners = append(ch.listeners, sub)
	if len(ch.listeners) == 1 {
		only := []*logSubscription{sub}
		for _, ev := range ch.ring.drain() {
			b.queue = append(b.queue, logDelivery{ev: ev, subs: only})
		}
	}
	b.drainLocked()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.canceled.Store(true)
			b.unsubscribe(cat, sub.id)
		})
	}
}

// drainLocked is called with b.mu held and returns with it released. The
// first caller becomes the drainer and delivers queued events in order until
// the queue is empty; callers arriving meanwhile only enqueue.
func (b *LogBuffer) drainLocked() {
	if b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true
	finished := false
	defer func() {
		// A panicking listener must not leave the queue without a drainer.
		if !finished {
			b.mu.Lock()
			b.draining = false
			b.mu.Unlock()
		}
	}()

	for len(b.queue) > 0 {
		next := b.queue[0]
		b.queue[0] = logDelivery{}
		b.queue = b.queue[1:]
		b.mu.Unlock()

		for _, sub := range next.subs {
			if sub.canceled.Load() {
				continue
			}
			sub.listener(next.ev)
			b.delivered.Add(1)
		}

		b.mu.Lock()
	}
	b.queue = nil
	b.draining = false
	finished = true
	b.mu.Unlock()
}

func (b *LogBuffer) unsubscribe(cat LogCategory, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := b.channel(cat)
	for i, sub := range ch.listeners {
		if sub.id == id {
			ch.listeners = append(ch.listeners[:i], ch.listeners[i+1:]...)
			return
		}
	}
}

// State reports whether a category is COLD or HOT.
func (b *LogBuffer) State(cat LogCategory) BufferState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.channel(cat).listeners) > 0 {
		return BufferHot
	}
	return BufferCold
}

// Len returns the number of events retained for a category.
func (b *LogBuffer) Len(cat LogCategory) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channel(cat).ring.count
}

// Capacity returns the per-category capacity.
func (b *LogBuffer) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// SetCapacity changes the per-category capacity, keeping the newest retained events.
func (b *LogBuffer) SetCapacity(capacity int) {
	if capacity <= 0 {
		capacity = DefaultLogBufferSize
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.capacity = capacity
	for _, ch := range b.channels {
		if dropped := ch.ring.resize(capacity); dropped > 0 {
			b.evicted.Add(int64(dropped))
		}
	}
}

// Stats returns the buffer counters.
func (b *LogBuffer) Stats() LogBufferStats {
	return LogBufferStats{
		Recorded:  b.recorded.Load(),
		Delivered: b.delivered.Load(),
		Evicted:   b.evicted.Load(),
	}
}
