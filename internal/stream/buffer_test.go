package stream

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	deltas []string
}

func (r *recordingSink) append(delta string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas = append(r.deltas, delta)
}

func (r *recordingSink) text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.deltas, "")
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deltas)
}

func TestRenderBufferCloseFlushesEverything(t *testing.T) {
	sink := &recordingSink{}
	b := NewRenderBuffer(time.Hour, sink.append) // interval never fires on its own
	b.Add("one ")
	b.Add("two ")
	b.Add("three")
	require.Equal(t, 0, sink.count(), "nothing should be released before the interval")
	b.Close()
	assert.Equal(t, "one two three", sink.text())
}

func TestRenderBufferCoalescesWithinInterval(t *testing.T) {
	sink := &recordingSink{}
	b := NewRenderBuffer(30*time.Millisecond, sink.append)
	for i := 0; i < 50; i++ {
		b.Add("x")
	}
	time.Sleep(60 * time.Millisecond)
	// All 50 adds land in one (or at most two) timed flushes, not 50.
	assert.LessOrEqual(t, sink.count(), 2)
	b.Close()
	assert.Equal(t, strings.Repeat("x", 50), sink.text())
}

func TestRenderBufferAddAfterCloseIgnored(t *testing.T) {
	sink := &recordingSink{}
	b := NewRenderBuffer(time.Hour, sink.append)
	b.Add("kept")
	b.Close()
	b.Add("dropped")
	b.Close()
	assert.Equal(t, "kept", sink.text())
}

func TestRenderBufferOrderPreserved(t *testing.T) {
	sink := &recordingSink{}
	b := NewRenderBuffer(5*time.Millisecond, sink.append)
	want := ""
	for i := 0; i < 20; i++ {
		s := strings.Repeat(string(rune('a'+i%26)), 3)
		want += s
		b.Add(s)
		time.Sleep(2 * time.Millisecond)
	}
	b.Close()
	assert.Equal(t, want, sink.text())
}

func TestRenderBufferFlushReleasesImmediately(t *testing.T) {
	sink := &recordingSink{}
	b := NewRenderBuffer(time.Hour, sink.append)
	b.Add("now")
	b.Flush()
	assert.Equal(t, "now", sink.text())
	// A later Add still works after an explicit flush.
	b.Add(" and later")
	b.Close()
	assert.Equal(t, "now and later", sink.text())
}
