package stream

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// Splitter routes an incrementally arriving text stream into a visible answer
// stream and a reasoning stream. Spans wrapped in <think>...</think> go to
// reasoning; everything else stays visible. The markers may be split across
// fragment boundaries arbitrarily: a trailing partial marker is withheld
// until the next fragment resolves it.
//
// Splitter is not safe for concurrent use; the pipeline feeds it from a
// single goroutine in arrival order.
type Splitter struct {
	inReasoning bool
	pending     string
}

// NewSplitter returns a splitter in the visible state.
func NewSplitter() *Splitter {
	return &Splitter{}
}

// Feed consumes one fragment and returns the visible and reasoning text it
// released. Concatenating the visible returns across all Feed calls (plus a
// final Flush) reconstructs the input with all think spans removed.
func (s *Splitter) Feed(fragment string) (visible, reasoning string) {
	s.pending += fragment

	var vis, rsn strings.Builder
	for {
		marker := thinkOpen
		if s.inReasoning {
			marker = thinkClose
		}

		if idx := strings.Index(s.pending, marker); idx >= 0 {
			if s.inReasoning {
				rsn.WriteString(s.pending[:idx])
			} else {
				vis.WriteString(s.pending[:idx])
			}
			s.pending = s.pending[idx+len(marker):]
			s.inReasoning = !s.inReasoning
			continue
		}

		// No full marker: release everything except a trailing run that could
		// still grow into one.
		hold := partialMarkerSuffix(s.pending, marker)
		release := s.pending[:len(s.pending)-hold]
		s.pending = s.pending[len(s.pending)-hold:]
		if s.inReasoning {
			rsn.WriteString(release)
		} else {
			vis.WriteString(release)
		}
		return vis.String(), rsn.String()
	}
}

// Flush drains whatever is still buffered at end-of-stream. An unterminated
// think span counts as reasoning (the stream ended mid-reasoning).
func (s *Splitter) Flush() (visible, reasoning string) {
	out := s.pending
	s.pending = ""
	if s.inReasoning {
		return "", out
	}
	return out, ""
}

// partialMarkerSuffix returns the length of the longest suffix of s that is a
// proper prefix of marker.
func partialMarkerSuffix(s, marker string) int {
	max := len(marker) - 1
	if len(s) < max {
		max = len(s)
	}
	for l := max; l > 0; l-- {
		if s[len(s)-l:] == marker[:l] {
			return l
		}
	}
	return 0
}
