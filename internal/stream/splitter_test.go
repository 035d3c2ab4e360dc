package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// feedAll runs every fragment through a fresh splitter and returns the
// concatenated visible and reasoning outputs including the final flush.
func feedAll(t *testing.T, fragments []string) (string, string) {
	t.Helper()
	s := NewSplitter()
	var vis, rsn strings.Builder
	for _, f := range fragments {
		v, r := s.Feed(f)
		vis.WriteString(v)
		rsn.WriteString(r)
	}
	v, r := s.Flush()
	vis.WriteString(v)
	rsn.WriteString(r)
	return vis.String(), rsn.String()
}

func TestSplitterSingleFragment(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		visible   string
		reasoning string
	}{
		{"no markers", "plain text", "plain text", ""},
		{"one span", "a<think>hidden</think>b", "ab", "hidden"},
		{"two spans", "a<think>x</think>b<think>y</think>c", "abc", "xy"},
		{"span at start", "<think>x</think>rest", "rest", "x"},
		{"span at end", "head<think>x</think>", "head", "x"},
		{"empty span", "a<think></think>b", "ab", ""},
		{"unterminated span", "a<think>dangling", "a", "dangling"},
		{"only open marker", "<think>", "", ""},
		{"empty input", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vis, rsn := feedAll(t, []string{tt.input})
			assert.Equal(t, tt.visible, vis)
			assert.Equal(t, tt.reasoning, rsn)
		})
	}
}

// TestSplitterAllBoundaries splits a marker-bearing string at every possible
// single boundary and asserts the outputs are identical regardless of where
// the boundary lands, including mid-marker.
func TestSplitterAllBoundaries(t *testing.T) {
	input := "Hello <think>secret plan</think> world<think>more</think>!"
	wantVisible := "Hello  world!"
	wantReasoning := "secret planmore"

	for i := 0; i <= len(input); i++ {
		vis, rsn := feedAll(t, []string{input[:i], input[i:]})
		if vis != wantVisible || rsn != wantReasoning {
			t.Fatalf("split at %d: visible=%q reasoning=%q", i, vis, rsn)
		}
	}
}

// TestSplitterAllBoundaryPairs exercises every two-boundary fragmentation of
// a shorter input so both markers can be cut simultaneously.
func TestSplitterAllBoundaryPairs(t *testing.T) {
	input := "a<think>bc</think>d"
	for i := 0; i <= len(input); i++ {
		for j := i; j <= len(input); j++ {
			vis, rsn := feedAll(t, []string{input[:i], input[i:j], input[j:]})
			if vis != "ad" || rsn != "bc" {
				t.Fatalf("split at (%d,%d): visible=%q reasoning=%q", i, j, vis, rsn)
			}
		}
	}
}

func TestSplitterMarkerSplitAcrossFragments(t *testing.T) {
	// The end-to-end scenario from the stream contract.
	vis, rsn := feedAll(t, []string{"Hello <thi", "nk>secret</think> world"})
	assert.Equal(t, "Hello  world", vis)
	assert.Equal(t, "secret", rsn)
}

func TestSplitterBytePerByte(t *testing.T) {
	input := "x<think>ab</think>y<think>c</think>z"
	fragments := make([]string, 0, len(input))
	for i := 0; i < len(input); i++ {
		fragments = append(fragments, input[i:i+1])
	}
	vis, rsn := feedAll(t, fragments)
	assert.Equal(t, "xyz", vis)
	assert.Equal(t, "abc", rsn)
}

func TestSplitterFalseMarkerPrefix(t *testing.T) {
	// "<th" that never completes into a marker must surface as visible text.
	vis, rsn := feedAll(t, []string{"a<th", "is is not a marker"})
	assert.Equal(t, "a<this is not a marker", vis)
	assert.Equal(t, "", rsn)
}

func TestSplitterUnterminatedFlushGoesToReasoning(t *testing.T) {
	s := NewSplitter()
	v, r := s.Feed("before<think>half done")
	assert.Equal(t, "before", v)
	assert.Equal(t, "half done", r)
	v, r = s.Flush()
	assert.Empty(t, v)
	assert.Empty(t, r)
}
