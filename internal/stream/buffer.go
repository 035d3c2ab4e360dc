package stream

import (
	"strings"
	"sync"
	"time"
)

// DefaultFlushInterval bounds how often the render buffer releases text to
// the live message under a high-throughput token stream.
const DefaultFlushInterval = 100 * time.Millisecond

// RenderBuffer coalesces visible-stream fragments and delivers them to a sink
// at most once per interval, plus unconditionally on Close. The sink receives
// ordered deltas, so the live message text never regresses.
type RenderBuffer struct {
	mu       sync.Mutex
	pending  strings.Builder
	sink     func(delta string)
	interval time.Duration
	timer    *time.Timer
	closed   bool
}

// NewRenderBuffer creates a buffer delivering to sink. A non-positive
// interval falls back to DefaultFlushInterval.
func NewRenderBuffer(interval time.Duration, sink func(delta string)) *RenderBuffer {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &RenderBuffer{sink: sink, interval: interval}
}

// Add appends text and schedules a flush if none is pending.
func (b *RenderBuffer) Add(text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.pending.WriteString(text)
	if b.timer == nil {
		b.timer = time.AfterFunc(b.interval, b.timedFlush)
	}
}

func (b *RenderBuffer) timedFlush() {
	b.mu.Lock()
	b.timer = nil
	delta := b.drainLocked()
	b.mu.Unlock()
	if delta != "" {
		b.sink(delta)
	}
}

// Flush releases all pending text immediately.
func (b *RenderBuffer) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	delta := b.drainLocked()
	b.mu.Unlock()
	if delta != "" {
		b.sink(delta)
	}
}

// Close performs the final flush and rejects further input. Called on stream
// completion, error, or cancellation; after Close the sink has seen every
// byte ever added.
func (b *RenderBuffer) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	delta := b.drainLocked()
	b.mu.Unlock()
	if delta != "" {
		b.sink(delta)
	}
}

func (b *RenderBuffer) drainLocked() string {
	delta := b.pending.String()
	b.pending.Reset()
	return delta
}
