package linkcheck

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/factlens/factlens/internal/metrics"
	"github.com/factlens/factlens/internal/models"
)

// DefaultProbeTimeout bounds a single link probe.
const DefaultProbeTimeout = 8 * time.Second

// Applier merges link-status transitions back into the assessment list.
// The reconciliation engine satisfies this.
type Applier interface {
	ApplyLinkStatuses(statuses map[string]models.LinkStatus) []models.SourceAssessment
}

// Validator probes cited URLs for liveness. Probes run concurrently and
// independently: one probe's outcome never blocks or fails another's.
type Validator struct {
	client   *http.Client
	timeout  time.Duration
	limiter  *rate.Limiter
	applier  Applier
	onUpdate func(snapshot []models.SourceAssessment)
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// Option configures a Validator.
type Option func(*Validator)

// WithTimeout overrides the per-probe timeout.
func WithTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithHTTPClient injects the probe client (tests use httptest clients).
func WithHTTPClient(c *http.Client) Option {
	return func(v *Validator) { v.client = c }
}

// WithRateLimit bounds probe fan-out to n probes per second.
func WithRateLimit(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.limiter = rate.NewLimiter(rate.Limit(n), n)
		}
	}
}

// WithUpdateFunc registers a callback invoked with a fresh snapshot after
// every status transition, so the UI can show in-flight state.
func WithUpdateFunc(fn func([]models.SourceAssessment)) Option {
	return func(v *Validator) { v.onUpdate = fn }
}

// NewValidator creates a validator writing results through applier.
func NewValidator(applier Applier, logger *zap.Logger, opts ...Option) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Validator{
		client:  &http.Client{},
		timeout: DefaultProbeTimeout,
		applier: applier,
		logger:  logger,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// CheckAll transitions every given URL to checking synchronously, then
// probes each one concurrently. It returns without waiting for probes.
func (v *Validator) CheckAll(ctx context.Context, urls []string) {
	if len(urls) == 0 {
		return
	}

	checking := make(map[string]models.LinkStatus, len(urls))
	for _, u := range urls {
		checking[u] = models.LinkChecking
	}
	snap := v.applier.ApplyLinkStatuses(checking)
	v.notify(snap)

	for _, u := range urls {
		// Syntactic validation happens before any network call.
		if !isProbeable(u) {
			v.finish(u, models.LinkInvalid)
			continue
		}
		v.wg.Add(1)
		go func(target string) {
			defer v.wg.Done()
			v.finish(target, v.probe(ctx, target))
		}(u)
	}
}

// Wait blocks until all in-flight probes have finished. Tests and graceful
// shutdown use it; the pipeline never does.
func (v *Validator) Wait() {
	v.wg.Wait()
}

func (v *Validator) finish(url string, status models.LinkStatus) {
	snap := v.applier.ApplyLinkStatuses(map[string]models.LinkStatus{url: status})
	metrics.LinksChecked.WithLabelValues(string(status)).Inc()
	v.notify(snap)
}

func (v *Validator) notify(snapshot []models.SourceAssessment) {
	if v.onUpdate != nil {
		v.onUpdate(snapshot)
	}
}

// probe issues a lightweight HEAD request and classifies the outcome.
func (v *Validator) probe(ctx context.Context, target string) models.LinkStatus {
	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			return models.LinkErrorChecking
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, target, nil)
	if err != nil {
		return models.LinkInvalid
	}
	resp, err := v.client.Do(req)
	metrics.LinkCheckDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		// Network failure or timeout: a real failure cannot be distinguished
		// from a transient one here, so it is not "invalid".
		v.logger.Debug("Link probe failed", zap.String("url", target), zap.Error(err))
		return models.LinkErrorChecking
	}
	defer resp.Body.Close()

	if resp.StatusCode < 400 {
		return models.LinkValid
	}
	return models.LinkInvalid
}

// isProbeable rejects URLs that fail basic syntactic validation or lack an
// http(s) scheme.
func isProbeable(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
