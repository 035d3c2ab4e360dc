package linkcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/factlens/factlens/internal/models"
)

// fakeApplier records status transitions in order, like the engine would.
type fakeApplier struct {
	mu       sync.Mutex
	statuses map[string]models.LinkStatus
	history  []map[string]models.LinkStatus
}

func newFakeApplier() *fakeApplier {
	return &fakeApplier{statuses: make(map[string]models.LinkStatus)}
}

func (f *fakeApplier) ApplyLinkStatuses(statuses map[string]models.LinkStatus) []models.SourceAssessment {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := make(map[string]models.LinkStatus, len(statuses))
	for k, v := range statuses {
		f.statuses[k] = v
		copied[k] = v
	}
	f.history = append(f.history, copied)
	return nil
}

func (f *fakeApplier) status(url string) models.LinkStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[url]
}

func TestCheckAllClassifiesProbeOutcomes(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
		case "/moved":
			w.Header().Set("Location", srv.URL+"/ok")
			w.WriteHeader(http.StatusFound)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	applier := newFakeApplier()
	v := NewValidator(applier, zaptest.NewLogger(t), WithHTTPClient(srv.Client()))

	v.CheckAll(context.Background(), []string{
		srv.URL + "/ok",
		srv.URL + "/moved",
		srv.URL + "/missing",
		srv.URL + "/broken",
	})
	v.Wait()

	assert.Equal(t, models.LinkValid, applier.status(srv.URL+"/ok"))
	assert.Equal(t, models.LinkValid, applier.status(srv.URL+"/moved"), "redirect-class counts as valid")
	assert.Equal(t, models.LinkInvalid, applier.status(srv.URL+"/missing"))
	assert.Equal(t, models.LinkInvalid, applier.status(srv.URL+"/broken"))
}

func TestCheckAllSyntacticRejectionBeforeNetwork(t *testing.T) {
	applier := newFakeApplier()
	// No HTTP client that could succeed: if these hit the network the test
	// would classify error_checking, not invalid.
	v := NewValidator(applier, zaptest.NewLogger(t))

	v.CheckAll(context.Background(), []string{
		"ftp://files.example.com/doc",
		"not a url at all",
		"//missing-scheme.example",
	})
	v.Wait()

	assert.Equal(t, models.LinkInvalid, applier.status("ftp://files.example.com/doc"))
	assert.Equal(t, models.LinkInvalid, applier.status("not a url at all"))
	assert.Equal(t, models.LinkInvalid, applier.status("//missing-scheme.example"))
}

func TestCheckAllNetworkFailureIsErrorChecking(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL + "/gone"
	srv.Close() // connection refused from here on

	applier := newFakeApplier()
	v := NewValidator(applier, zaptest.NewLogger(t), WithTimeout(time.Second))
	v.CheckAll(context.Background(), []string{url})
	v.Wait()

	assert.Equal(t, models.LinkErrorChecking, applier.status(url))
}

func TestCheckAllMarksCheckingFirst(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	applier := newFakeApplier()
	v := NewValidator(applier, zaptest.NewLogger(t), WithHTTPClient(srv.Client()))
	v.CheckAll(context.Background(), []string{srv.URL + "/slow"})

	// The checking transition is synchronous, before any probe completes.
	assert.Equal(t, models.LinkChecking, applier.status(srv.URL+"/slow"))
}

func TestCheckAllSlowProbeDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			<-release
		}
	}))
	defer srv.Close()

	applier := newFakeApplier()
	v := NewValidator(applier, zaptest.NewLogger(t), WithHTTPClient(srv.Client()))
	v.CheckAll(context.Background(), []string{srv.URL + "/slow", srv.URL + "/fast"})

	require.Eventually(t, func() bool {
		return applier.status(srv.URL+"/fast") == models.LinkValid
	}, 2*time.Second, 10*time.Millisecond, "fast probe must finish while slow one is stuck")
	assert.Equal(t, models.LinkChecking, applier.status(srv.URL+"/slow"))

	close(release)
	v.Wait()
	assert.Equal(t, models.LinkValid, applier.status(srv.URL+"/slow"))
}

func TestCheckAllTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	applier := newFakeApplier()
	v := NewValidator(applier, zaptest.NewLogger(t),
		WithHTTPClient(srv.Client()), WithTimeout(50*time.Millisecond))
	v.CheckAll(context.Background(), []string{srv.URL})
	v.Wait()

	assert.Equal(t, models.LinkErrorChecking, applier.status(srv.URL))
}

func TestCheckAllEmptySet(t *testing.T) {
	applier := newFakeApplier()
	v := NewValidator(applier, zaptest.NewLogger(t))
	v.CheckAll(context.Background(), nil)
	v.Wait()
	assert.Empty(t, applier.history)
}
