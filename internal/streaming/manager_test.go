package streaming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("r1", 8)
	defer m.Unsubscribe("r1", ch)

	m.Publish("r1", Event{Type: TypeChunk, Message: "hello"})

	select {
	case evt := <-ch:
		assert.Equal(t, "r1", evt.ReportID)
		assert.Equal(t, TypeChunk, evt.Type)
		assert.Equal(t, "hello", evt.Message)
		assert.Equal(t, uint64(1), evt.Seq)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishIsolatedPerReport(t *testing.T) {
	m := NewManager(16)
	a := m.Subscribe("a", 8)
	b := m.Subscribe("b", 8)
	defer m.Unsubscribe("a", a)
	defer m.Unsubscribe("b", b)

	m.Publish("a", Event{Type: TypeStatus, Message: "only a"})

	select {
	case evt := <-a:
		assert.Equal(t, "only a", evt.Message)
	case <-time.After(time.Second):
		t.Fatal("subscriber a got nothing")
	}
	select {
	case evt := <-b:
		t.Fatalf("subscriber b should not receive cross-report event, got %+v", evt)
	default:
	}
}

func TestSlowSubscriberDropsNotBlocks(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("r1", 1)
	defer m.Unsubscribe("r1", ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			m.Publish("r1", Event{Type: TypeChunk})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}

	// The slow subscriber recovers what it missed via replay.
	first := <-ch
	replayed := m.ReplaySince("r1", first.Seq)
	assert.Len(t, replayed, 9)
}

func TestReplaySince(t *testing.T) {
	m := NewManager(16)
	for i := 0; i < 5; i++ {
		m.Publish("r1", Event{Type: TypeChunk})
	}

	evts := m.ReplaySince("r1", 2)
	require.Len(t, evts, 3)
	assert.Equal(t, uint64(3), evts[0].Seq)
	assert.Equal(t, uint64(5), evts[2].Seq)

	assert.Empty(t, m.ReplaySince("r1", 5))
	assert.Empty(t, m.ReplaySince("unknown", 0))
}

func TestReplayRingOverwritesOldest(t *testing.T) {
	m := NewManager(4)
	for i := 0; i < 10; i++ {
		m.Publish("r1", Event{Type: TypeChunk})
	}

	evts := m.ReplaySince("r1", 0)
	require.Len(t, evts, 4)
	assert.Equal(t, uint64(7), evts[0].Seq)
	assert.Equal(t, uint64(10), evts[3].Seq)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("r1", 8)
	m.Unsubscribe("r1", ch)

	_, open := <-ch
	assert.False(t, open)

	// Double unsubscribe is a no-op, not a double close.
	m.Unsubscribe("r1", ch)
}

func TestDropDiscardsHistory(t *testing.T) {
	m := NewManager(16)
	m.Publish("r1", Event{Type: TypeDone})
	require.NotEmpty(t, m.ReplaySince("r1", 0))

	m.Drop("r1")
	assert.Empty(t, m.ReplaySince("r1", 0))
}
