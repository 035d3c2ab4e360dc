package streaming

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/factlens/factlens/internal/metrics"
)

// Event is the delivery-side event fanned out to SSE and WebSocket
// subscribers while a report is being generated.
type Event struct {
	ReportID  string      `json:"report_id"`
	Type      string      `json:"type"`
	Message   string      `json:"message,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Seq       uint64      `json:"seq"`
}

// Event types published by the pipeline.
const (
	TypeStatus      = "status"
	TypeChunk       = "chunk"
	TypeReasoning   = "reasoning"
	TypeSources     = "sources"
	TypeAssessments = "assessments"
	TypeSections    = "sections"
	TypeDone        = "done"
	TypeError       = "error"
)

// Manager provides in-memory pub/sub for report events with a per-report
// ring buffer so reconnecting clients can replay from Last-Event-ID.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
}

// NewManager creates a manager whose replay rings hold capacity events.
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = 256
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe adds a subscriber channel for a report; caller must drain and
// call Unsubscribe.
func (m *Manager) Subscribe(reportID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[reportID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[reportID] = subs
	}
	subs[ch] = struct{}{}
	metrics.SSESubscribers.Inc()
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (m *Manager) Unsubscribe(reportID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[reportID]; ok {
		if _, present := subs[ch]; !present {
			return
		}
		delete(subs, ch)
		close(ch)
		metrics.SSESubscribers.Dec()
		if len(subs) == 0 {
			delete(m.subscribers, reportID)
		}
	}
}

// Publish sends an event to all subscribers of reportID (non-blocking; slow
// subscribers drop events but can recover via replay).
func (m *Manager) Publish(reportID string, evt Event) {
	evt.ReportID = reportID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	m.mu.Lock()
	rg := m.history[reportID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[reportID] = rg
	}
	rg.nextSeq++
	evt.Seq = rg.nextSeq
	rg.push(evt)
	subs := m.subscribers[reportID]
	m.mu.Unlock()

	for ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ReplaySince returns events with Seq > since (best-effort within ring
// capacity).
func (m *Manager) ReplaySince(reportID string, since uint64) []Event {
	m.mu.RLock()
	rg := m.history[reportID]
	m.mu.RUnlock()
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Drop discards the history ring for a finished report.
func (m *Manager) Drop(reportID string) {
	m.mu.Lock()
	delete(m.history, reportID)
	m.mu.Unlock()
}

// Marshal returns JSON for event payloads in SSE frames or logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// ring is a fixed-capacity ring buffer of events
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	// overwrite oldest
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
