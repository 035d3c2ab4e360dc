package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/factlens/factlens/internal/cache"
	"github.com/factlens/factlens/internal/db"
	"github.com/factlens/factlens/internal/linkcheck"
	"github.com/factlens/factlens/internal/metrics"
	"github.com/factlens/factlens/internal/models"
	"github.com/factlens/factlens/internal/provider"
	"github.com/factlens/factlens/internal/reconcile"
	"github.com/factlens/factlens/internal/report"
	"github.com/factlens/factlens/internal/session"
	"github.com/factlens/factlens/internal/stream"
	"github.com/factlens/factlens/internal/streaming"
	"github.com/factlens/factlens/internal/tracing"
)

// ErrUnknownProvider is returned when no provider is registered under the
// requested name.
var ErrUnknownProvider = errors.New("unknown provider")

// Archiver persists completed reports. The Postgres archive satisfies this;
// a nil Archiver disables archiving.
type Archiver interface {
	SaveReport(ctx context.Context, rec db.ReportRecord) error
}

// Deps collects the runner's collaborators. Cache and Archive are optional.
type Deps struct {
	Providers map[string]provider.Provider
	Sessions  *session.Manager
	Events    *streaming.Manager
	Cache     *cache.Store
	Archive   Archiver
	Rules     *report.Holder
	Logger    *zap.Logger
}

// Config holds runner tunables.
type Config struct {
	RenderInterval time.Duration
	ProbeTimeout   time.Duration
	ProbeRateLimit int // probes per second, 0 = unlimited
}

// Runner drives a report generation stream end to end: it consumes provider
// events, splits reasoning from visible output, paces renders, and on the
// terminal event runs redirect correction, section parsing, source
// reconciliation and link validation. At most one stream is live per
// session; starting another cancels the one in flight.
type Runner struct {
	deps Deps
	cfg  Config

	mu      sync.Mutex
	active  map[string]*run
	reports map[string]*session.Session // report id -> owning session, for snapshots
}

type run struct {
	reportID string
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRunner creates a runner.
func NewRunner(deps Deps, cfg Config) *Runner {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Rules == nil {
		deps.Rules = report.NewHolder(nil)
	}
	if cfg.RenderInterval <= 0 {
		cfg.RenderInterval = stream.DefaultFlushInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = linkcheck.DefaultProbeTimeout
	}
	return &Runner{
		deps:    deps,
		cfg:     cfg,
		active:  make(map[string]*run),
		reports: make(map[string]*session.Session),
	}
}

// Start begins a generation stream for the session and returns its report
// ID. The stream runs in the background; progress is published to the event
// manager under the report ID.
func (r *Runner) Start(sess *session.Session, req models.ReportRequest) (string, error) {
	p, ok := r.deps.Providers[req.Provider]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, req.Provider)
	}

	// A session carries at most one live stream; a new request supersedes
	// the one in flight.
	for {
		r.mu.Lock()
		prior := r.active[sess.ID]
		if prior == nil {
			break
		}
		r.mu.Unlock()
		prior.cancel()
		<-prior.done
	}

	reportID := uuid.New().String()
	now := time.Now()
	sess.AppendMessage(models.Message{
		ID:        uuid.New().String(),
		Sender:    models.SenderUser,
		Text:      req.Text,
		CreatedAt: now,
	})
	// The assistant message shares the report ID so snapshot lookups can
	// find it.
	sess.AppendMessage(models.Message{
		ID:        reportID,
		Sender:    models.SenderAssistant,
		IsLoading: true,
		CreatedAt: now,
	})
	sess.Lock()
	msgIdx := len(sess.Transcript) - 1
	sess.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	rn := &run{
		reportID: reportID,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	r.active[sess.ID] = rn
	r.reports[reportID] = sess
	r.mu.Unlock()

	go r.run(ctx, rn, sess, msgIdx, p, req)
	return reportID, nil
}

// Cancel stops the session's live stream, if any. The stream flushes what
// it has buffered and terminates its message before reporting done.
func (r *Runner) Cancel(sessionID string) bool {
	r.mu.Lock()
	rn := r.active[sessionID]
	r.mu.Unlock()
	if rn == nil {
		return false
	}
	rn.cancel()
	return true
}

// Wait blocks until the session's live stream finishes. Used by tests and
// graceful shutdown.
func (r *Runner) Wait(sessionID string) {
	r.mu.Lock()
	rn := r.active[sessionID]
	r.mu.Unlock()
	if rn != nil {
		<-rn.done
	}
}

// Snapshot is the current view of one report: its message as streamed so
// far, parsed sections once terminal, and the assessment list.
type Snapshot struct {
	Message     models.Message               `json:"message"`
	Sections    []models.ParsedReportSection `json:"sections,omitempty"`
	Assessments []models.SourceAssessment    `json:"assessments,omitempty"`
}

// SnapshotReport returns the report's current state, or false for an
// unknown report ID.
func (r *Runner) SnapshotReport(reportID string) (*Snapshot, bool) {
	r.mu.Lock()
	sess := r.reports[reportID]
	r.mu.Unlock()
	if sess == nil {
		return nil, false
	}

	sess.Lock()
	snap := &Snapshot{
		Assessments: append([]models.SourceAssessment(nil), sess.Assessments...),
	}
	for _, msg := range sess.Transcript {
		if msg.ID == reportID {
			snap.Message = msg
			break
		}
	}
	sess.Unlock()

	if !snap.Message.IsLoading && !snap.Message.IsError && snap.Message.Text != "" {
		snap.Sections = report.ParseSections(snap.Message.Text, r.deps.Rules.Current())
	}
	return snap, true
}

func (r *Runner) run(ctx context.Context, rn *run, sess *session.Session, msgIdx int, p provider.Provider, req models.ReportRequest) {
	start := time.Now()
	metrics.StreamsStarted.WithLabelValues(req.Provider, req.ReportKind).Inc()

	ctx, span := tracing.StartStreamSpan(ctx, req.Provider, req.ReportKind)
	defer span.End()

	defer func() {
		r.mu.Lock()
		delete(r.active, sess.ID)
		r.mu.Unlock()
		close(rn.done)
	}()

	msg := &sess.Transcript[msgIdx]

	// The engine is the single writer of the assessment list; the
	// validator feeds status transitions back through it.
	var validator *linkcheck.Validator
	engine := reconcile.NewEngine(func(urls []string) {
		validator.CheckAll(ctx, urls)
	}, r.deps.Logger)
	sess.Lock()
	engine.Restore(sess.Assessments)
	sess.Unlock()
	validator = linkcheck.NewValidator(engine, r.deps.Logger,
		linkcheck.WithTimeout(r.cfg.ProbeTimeout),
		linkcheck.WithRateLimit(r.cfg.ProbeRateLimit),
		linkcheck.WithUpdateFunc(func(snapshot []models.SourceAssessment) {
			sess.Lock()
			sess.Assessments = snapshot
			sess.Unlock()
			r.publish(rn.reportID, streaming.TypeAssessments, "", snapshot)
			r.deps.Sessions.ScheduleSave(sess)
		}))

	key := cache.DeriveKey(req)
	if r.deps.Cache != nil {
		if entry, ok := r.deps.Cache.Get(ctx, key); ok {
			r.publish(rn.reportID, streaming.TypeStatus, "Loaded from cache", nil)
			r.finalize(ctx, rn, sess, msg, engine, req, key, provider.FinalPayload{
				FullText:         entry.Text,
				ModelID:          entry.ModelID,
				GroundingSources: entry.GroundingSources,
				ReportKind:       entry.ReportKind,
			}, true)
			metrics.StreamsCompleted.WithLabelValues(req.Provider, req.ReportKind, "cached").Inc()
			return
		}
	}

	ch, err := p.Generate(ctx, req)
	if err != nil {
		r.fail(rn, sess, msg, err)
		metrics.StreamsCompleted.WithLabelValues(req.Provider, req.ReportKind, "error").Inc()
		return
	}

	splitter := stream.NewSplitter()
	buffer := stream.NewRenderBuffer(r.cfg.RenderInterval, func(delta string) {
		sess.Lock()
		msg.Text += delta
		sess.Unlock()
		r.publish(rn.reportID, streaming.TypeChunk, delta, nil)
		r.deps.Sessions.ScheduleSave(sess)
	})

	var (
		grounding []models.GroundingSource
		final     *provider.FinalPayload
		streamErr error
		cancelled bool
	)

loop:
	for {
		select {
		case <-ctx.Done():
			cancelled = true
			break loop
		case evt, ok := <-ch:
			if !ok {
				break loop
			}
			switch evt.Kind {
			case provider.EventStatus:
				r.publish(rn.reportID, streaming.TypeStatus, evt.Message, nil)
			case provider.EventChunk:
				metrics.ChunksReceived.Inc()
				visible, reasoning := splitter.Feed(evt.Text)
				if visible != "" {
					buffer.Add(visible)
				}
				if reasoning != "" {
					r.appendReasoning(rn, sess, msg, reasoning)
				}
			case provider.EventSources:
				grounding = evt.Sources
				r.publish(rn.reportID, streaming.TypeSources, "", evt.Sources)
			case provider.EventError:
				streamErr = evt.Err
				break loop
			case provider.EventFinal:
				final = evt.Final
				break loop
			}
		}
	}

	// Whatever the outcome, nothing buffered may be lost.
	visible, reasoning := splitter.Flush()
	if visible != "" {
		buffer.Add(visible)
	}
	if reasoning != "" {
		r.appendReasoning(rn, sess, msg, reasoning)
	}
	buffer.Close()

	switch {
	case cancelled:
		sess.Lock()
		msg.IsLoading = false
		sess.Unlock()
		r.publish(rn.reportID, streaming.TypeDone, "cancelled", nil)
		r.flushSession(sess)
		metrics.StreamsCompleted.WithLabelValues(req.Provider, req.ReportKind, "cancelled").Inc()

	case streamErr != nil:
		r.fail(rn, sess, msg, streamErr)
		metrics.StreamsCompleted.WithLabelValues(req.Provider, req.ReportKind, "error").Inc()

	case final == nil:
		r.fail(rn, sess, msg, errors.New("stream ended without a terminal event"))
		metrics.StreamsCompleted.WithLabelValues(req.Provider, req.ReportKind, "error").Inc()

	default:
		if len(final.GroundingSources) > 0 {
			grounding = final.GroundingSources
		}
		final.GroundingSources = grounding
		r.finalize(ctx, rn, sess, msg, engine, req, key, *final, false)
		metrics.StreamsCompleted.WithLabelValues(req.Provider, req.ReportKind, "ok").Inc()
		metrics.StreamDuration.WithLabelValues(req.Provider, req.ReportKind).Observe(time.Since(start).Seconds())
	}
}

// finalize runs the post-stream report pipeline: redirect correction,
// section parsing, source extraction, reconciliation and link dispatch,
// then persists the result.
func (r *Runner) finalize(ctx context.Context, rn *run, sess *session.Session, msg *models.Message, engine *reconcile.Engine, req models.ReportRequest, key string, final provider.FinalPayload, fromCache bool) {
	rules := r.deps.Rules.Current()
	corrected := report.CorrectRedirects(final.FullText, final.GroundingSources, rules)

	sess.Lock()
	msg.Text = corrected
	msg.GroundingSources = final.GroundingSources
	msg.IsLoading = false
	sess.Unlock()

	sections := report.ParseSections(corrected, rules)
	if len(sections) > 0 {
		r.publish(rn.reportID, streaming.TypeSections, "", sections)
	}

	extracted := report.ExtractSources(corrected, rules)
	if len(extracted) > 0 {
		snapshot := engine.Reconcile(extracted)
		sess.Lock()
		sess.Assessments = snapshot
		sess.Unlock()
		r.publish(rn.reportID, streaming.TypeAssessments, "", snapshot)
	}

	if r.deps.Cache != nil && !fromCache {
		if err := r.deps.Cache.Put(ctx, key, cache.Entry{
			Text:             corrected,
			GroundingSources: final.GroundingSources,
			ModelID:          final.ModelID,
			ReportKind:       req.ReportKind,
		}); err != nil {
			r.deps.Logger.Warn("Report cache write failed", zap.Error(err))
		}
	}

	if r.deps.Archive != nil && !fromCache {
		sess.Lock()
		sources := append([]models.SourceAssessment(nil), sess.Assessments...)
		sess.Unlock()
		if err := r.deps.Archive.SaveReport(ctx, db.ReportRecord{
			CacheKey:   key,
			SessionID:  sess.ID,
			Provider:   req.Provider,
			ModelID:    final.ModelID,
			ReportKind: req.ReportKind,
			Text:       corrected,
			Sources:    sources,
		}); err != nil {
			r.deps.Logger.Warn("Report archive write failed", zap.Error(err))
		}
	}

	r.flushSession(sess)
	r.publish(rn.reportID, streaming.TypeDone, "", nil)
}

func (r *Runner) fail(rn *run, sess *session.Session, msg *models.Message, err error) {
	r.deps.Logger.Warn("Report stream failed",
		zap.String("report_id", rn.reportID),
		zap.String("session_id", sess.ID),
		zap.Error(err))

	sess.Lock()
	msg.IsLoading = false
	msg.IsError = true
	sess.Unlock()

	r.publish(rn.reportID, streaming.TypeError, err.Error(), nil)
	r.flushSession(sess)
}

func (r *Runner) appendReasoning(rn *run, sess *session.Session, msg *models.Message, reasoning string) {
	sess.Lock()
	msg.Reasoning += reasoning
	sess.Unlock()
	r.publish(rn.reportID, streaming.TypeReasoning, reasoning, nil)
}

func (r *Runner) publish(reportID, typ, message string, payload interface{}) {
	r.deps.Events.Publish(reportID, streaming.Event{
		Type:    typ,
		Message: message,
		Payload: payload,
	})
}

func (r *Runner) flushSession(sess *session.Session) {
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.deps.Sessions.FlushPending(flushCtx, sess); err != nil {
		r.deps.Logger.Warn("Session flush failed",
			zap.String("session_id", sess.ID),
			zap.Error(err))
	}
}
