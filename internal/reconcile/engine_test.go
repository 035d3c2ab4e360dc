package reconcile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/factlens/factlens/internal/linkcheck"
	"github.com/factlens/factlens/internal/models"
)

func src(name, url, rating string) models.ExtractedSource {
	return models.ExtractedSource{Name: name, URL: url, Assessment: "a", Notes: "n", Rating: rating}
}

func TestReconcileSortsByRating(t *testing.T) {
	e := NewEngine(nil, zap.NewNop())
	got := e.Reconcile([]models.ExtractedSource{
		src("two", "https://2", "2"),
		src("fourfive", "https://45", "4–5"),
		src("three", "https://3", "3"),
		src("na", "https://na", "n/a"),
	})
	require.Len(t, got, 4)
	assert.Equal(t, []string{"https://45", "https://3", "https://2", "https://na"},
		urls(got))
	for i, a := range got {
		assert.Equal(t, i+1, a.Index)
		assert.Equal(t, models.LinkUnchecked, a.LinkStatus)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	e := NewEngine(nil, zap.NewNop())
	batch := []models.ExtractedSource{
		src("a", "https://a", "4"),
		src("b", "https://b", "2"),
	}
	first := e.Reconcile(batch)
	second := e.Reconcile(batch)
	assert.Equal(t, first, second)
}

func TestReconcileMergePreservesLinkStatus(t *testing.T) {
	e := NewEngine(nil, zap.NewNop())
	e.Reconcile([]models.ExtractedSource{src("a", "https://a", "4")})
	e.ApplyLinkStatuses(map[string]models.LinkStatus{"https://a": models.LinkValid})

	got := e.Reconcile([]models.ExtractedSource{{
		Name: "a2", URL: "https://a", Assessment: "updated", Notes: "new notes", Rating: "5",
	}})
	require.Len(t, got, 1)
	assert.Equal(t, "a2", got[0].Name)
	assert.Equal(t, "new notes", got[0].Notes)
	assert.Equal(t, "updated", got[0].Assessment)
	assert.Equal(t, "5", got[0].Rating)
	assert.Equal(t, models.LinkValid, got[0].LinkStatus, "merge must never reset link status")
}

func TestReconcileEmptyBatchIsNoOp(t *testing.T) {
	dispatched := 0
	e := NewEngine(func([]string) { dispatched++ }, zap.NewNop())
	e.Reconcile([]models.ExtractedSource{src("a", "https://a", "1")})
	require.Equal(t, 1, dispatched)

	before := e.Snapshot()
	after := e.Reconcile(nil)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, dispatched, "empty batch must not dispatch")
}

func TestReconcileDispatchesOnlyUnchecked(t *testing.T) {
	var lastDispatch []string
	e := NewEngine(func(urls []string) { lastDispatch = urls }, zap.NewNop())

	e.Reconcile([]models.ExtractedSource{src("a", "https://a", "3"), src("b", "https://b", "2")})
	assert.ElementsMatch(t, []string{"https://a", "https://b"}, lastDispatch)

	e.ApplyLinkStatuses(map[string]models.LinkStatus{
		"https://a": models.LinkValid,
		"https://b": models.LinkInvalid,
	})

	e.Reconcile([]models.ExtractedSource{src("c", "https://c", "1")})
	assert.Equal(t, []string{"https://c"}, lastDispatch)
}

func TestReconcileTiesKeepPriorOrder(t *testing.T) {
	e := NewEngine(nil, zap.NewNop())
	got := e.Reconcile([]models.ExtractedSource{
		src("first", "https://f", "3"),
		src("second", "https://s", "3"),
		src("third", "https://t", "3"),
	})
	assert.Equal(t, []string{"https://f", "https://s", "https://t"}, urls(got))
}

func TestReconcileReindexAfterReorder(t *testing.T) {
	e := NewEngine(nil, zap.NewNop())
	e.Reconcile([]models.ExtractedSource{src("low", "https://low", "1")})
	got := e.Reconcile([]models.ExtractedSource{src("high", "https://high", "5")})
	require.Len(t, got, 2)
	assert.Equal(t, "https://high", got[0].URL)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, "https://low", got[1].URL)
	assert.Equal(t, 2, got[1].Index)
}

func TestApplyLinkStatusesLeavesOthersUntouched(t *testing.T) {
	e := NewEngine(nil, zap.NewNop())
	e.Reconcile([]models.ExtractedSource{src("a", "https://a", "3"), src("b", "https://b", "2")})
	got := e.ApplyLinkStatuses(map[string]models.LinkStatus{"https://a": models.LinkChecking})
	byURL := map[string]models.LinkStatus{}
	for _, a := range got {
		byURL[a.URL] = a.LinkStatus
	}
	assert.Equal(t, models.LinkChecking, byURL["https://a"])
	assert.Equal(t, models.LinkUnchecked, byURL["https://b"])
}

func TestSnapshotIsACopy(t *testing.T) {
	e := NewEngine(nil, zap.NewNop())
	e.Reconcile([]models.ExtractedSource{src("a", "https://a", "3")})
	snap := e.Snapshot()
	snap[0].Name = "mutated"
	assert.Equal(t, "a", e.Snapshot()[0].Name)
}

func TestRatingValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"5", 5},
		{"4–5", 5},
		{"4-5", 5},
		{"2—3", 3},
		{"3.5", 3.5},
		{"n/a", 0},
		{"", 0},
		{"  4 ", 4},
		{"garbage", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RatingValue(tt.in), "rating %q", tt.in)
	}
}

// The pipeline wires the engine's dispatch straight into the validator,
// whose first act is a synchronous ApplyLinkStatuses back into the engine.
// Reconcile must therefore have released its lock before dispatching.
func TestReconcileDispatchReentersEngine(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	var validator *linkcheck.Validator
	e := NewEngine(func(urls []string) {
		validator.CheckAll(context.Background(), urls)
	}, zap.NewNop())
	validator = linkcheck.NewValidator(e, zap.NewNop())

	done := make(chan []models.SourceAssessment, 1)
	go func() {
		done <- e.Reconcile([]models.ExtractedSource{src("a", ts.URL, "4")})
	}()

	select {
	case snap := <-done:
		require.Len(t, snap, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("Reconcile blocked dispatching to the validator")
	}

	validator.Wait()
	got := e.Snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, models.LinkValid, got[0].LinkStatus)
}

func urls(list []models.SourceAssessment) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.URL
	}
	return out
}
