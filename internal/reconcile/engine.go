package reconcile

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/factlens/factlens/internal/metrics"
	"github.com/factlens/factlens/internal/models"
)

// Dispatch receives the URLs left unchecked after a reconciliation pass.
// It must not block; the link validator starts its probes asynchronously.
type Dispatch func(urls []string)

// Engine owns the ordered source-assessment list. It is the only writer:
// every other component reads snapshots. Merge identity is the exact URL
// string; display indices are recomputed on every pass and carry no
// identity.
type Engine struct {
	mu          sync.Mutex
	assessments []models.SourceAssessment
	dispatch    Dispatch
	logger      *zap.Logger
}

// NewEngine creates an engine. dispatch may be nil when no link validation
// is wanted (tests, cache replay).
func NewEngine(dispatch Dispatch, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{dispatch: dispatch, logger: logger}
}

// Reconcile folds a newly extracted batch into the running list:
//
//  1. records merge by URL — content fields overwrite, LinkStatus never does;
//  2. unseen URLs append as new records with LinkStatus unchecked;
//  3. the merged set sorts descending by numeric rating, ties keeping their
//     prior relative order;
//  4. indices are reassigned densely 1..N in the new order;
//  5. records still unchecked are handed to the dispatcher.
//
// An empty batch is a no-op and dispatches nothing. Reconciling the same
// batch twice yields identical content and indices.
func (e *Engine) Reconcile(batch []models.ExtractedSource) []models.SourceAssessment {
	e.mu.Lock()

	if len(batch) == 0 {
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap
	}

	byURL := make(map[string]int, len(e.assessments))
	for i, a := range e.assessments {
		byURL[a.URL] = i
	}

	added := 0
	for _, in := range batch {
		if i, ok := byURL[in.URL]; ok {
			e.assessments[i].Name = in.Name
			e.assessments[i].Assessment = in.Assessment
			e.assessments[i].Notes = in.Notes
			e.assessments[i].Rating = in.Rating
			continue
		}
		e.assessments = append(e.assessments, models.SourceAssessment{
			Name:       in.Name,
			URL:        in.URL,
			Assessment: in.Assessment,
			Notes:      in.Notes,
			Rating:     in.Rating,
			LinkStatus: models.LinkUnchecked,
		})
		byURL[in.URL] = len(e.assessments) - 1
		added++
	}

	sort.SliceStable(e.assessments, func(i, j int) bool {
		return RatingValue(e.assessments[i].Rating) > RatingValue(e.assessments[j].Rating)
	})
	for i := range e.assessments {
		e.assessments[i].Index = i + 1
	}

	var unchecked []string
	for _, a := range e.assessments {
		if a.LinkStatus == models.LinkUnchecked {
			unchecked = append(unchecked, a.URL)
		}
	}

	e.logger.Debug("Reconciled source batch",
		zap.Int("batch_size", len(batch)),
		zap.Int("added", added),
		zap.Int("total", len(e.assessments)),
		zap.Int("unchecked", len(unchecked)),
	)
	metrics.ReconcileBatches.Inc()
	metrics.SourcesTracked.Set(float64(len(e.assessments)))

	snap := e.snapshotLocked()
	e.mu.Unlock()

	// Dispatch outside the lock: the validator marks the checking transition
	// synchronously through ApplyLinkStatuses, which takes the same mutex.
	if e.dispatch != nil && len(unchecked) > 0 {
		e.dispatch(unchecked)
	}
	return snap
}

// ApplyLinkStatuses merges link-validation transitions back into the list by
// URL. Assessments outside the map are untouched. This is the validator's
// only write path into the shared state.
func (e *Engine) ApplyLinkStatuses(statuses map[string]models.LinkStatus) []models.SourceAssessment {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.assessments {
		if st, ok := statuses[e.assessments[i].URL]; ok {
			e.assessments[i].LinkStatus = st
		}
	}
	return e.snapshotLocked()
}

// Restore replaces the list wholesale, e.g. when resuming a persisted
// session. Indices are trusted as stored.
func (e *Engine) Restore(assessments []models.SourceAssessment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.assessments = append([]models.SourceAssessment(nil), assessments...)
	metrics.SourcesTracked.Set(float64(len(e.assessments)))
}

// Snapshot returns a copy of the current list for readers.
func (e *Engine) Snapshot() []models.SourceAssessment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() []models.SourceAssessment {
	return append([]models.SourceAssessment(nil), e.assessments...)
}

// RatingValue derives the sort key from a rating string: split on dash or
// en-dash, take the last (higher) numeric token, parse as float, default 0
// on any failure. "4–5" sorts as 5, "3" as 3, "n/a" as 0.
func RatingValue(rating string) float64 {
	s := strings.TrimSpace(rating)
	if s == "" {
		return 0
	}
	s = strings.NewReplacer("–", "-", "—", "-").Replace(s)
	parts := strings.Split(s, "-")
	last := strings.TrimSpace(parts[len(parts)-1])
	v, err := strconv.ParseFloat(last, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
