package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/factlens/factlens/internal/streaming"
)

// StreamingHandler serves SSE and WebSocket endpoints for report events.
type StreamingHandler struct {
	mgr    *streaming.Manager
	logger *zap.Logger
}

func NewStreamingHandler(mgr *streaming.Manager, logger *zap.Logger) *StreamingHandler {
	return &StreamingHandler{mgr: mgr, logger: logger}
}

// HandleSSE streams report events via Server-Sent Events.
// GET /v1/reports/{id}/events
func (h *StreamingHandler) HandleSSE(w http.ResponseWriter, r *http.Request, reportID string) {
	// Optional: type filter (comma-separated)
	typeFilter := parseTypeFilter(r.URL.Query().Get("types"))

	// Last-Event-ID header or query param to replay from. Presence alone
	// requests replay: 0 means "from the beginning" since sequence numbers
	// start at 1.
	var lastID uint64
	var replay bool
	if lei := r.Header.Get("Last-Event-ID"); lei != "" {
		if n, err := strconv.ParseUint(lei, 10, 64); err == nil {
			lastID, replay = n, true
		}
	}
	if q := r.URL.Query().Get("last_event_id"); q != "" && !replay {
		if n, err := strconv.ParseUint(q, 10, 64); err == nil {
			lastID, replay = n, true
		}
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch := h.mgr.Subscribe(reportID, 256)
	defer h.mgr.Unsubscribe(reportID, ch)

	fmt.Fprintf(w, ": connected to report %s\n\n", reportID)
	flusher.Flush()

	// Replay backlog since lastID (best-effort)
	if replay {
		for _, ev := range h.mgr.ReplaySince(reportID, lastID) {
			if skipType(typeFilter, ev.Type) {
				continue
			}
			writeSSE(w, ev)
		}
		flusher.Flush()
	}

	hb := time.NewTicker(15 * time.Second)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("report_id", reportID))
			return
		case evt := <-ch:
			if skipType(typeFilter, evt.Type) {
				continue
			}
			writeSSE(w, evt)
			flusher.Flush()
		case <-hb.C:
			// Keeps connections alive through proxies
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev streaming.Event) {
	if ev.Seq > 0 {
		fmt.Fprintf(w, "id: %d\n", ev.Seq)
	}
	if ev.Type != "" {
		fmt.Fprintf(w, "event: %s\n", ev.Type)
	}
	fmt.Fprintf(w, "data: %s\n\n", string(ev.Marshal()))
}

func parseTypeFilter(s string) map[string]struct{} {
	filter := map[string]struct{}{}
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			filter[t] = struct{}{}
		}
	}
	return filter
}

func skipType(filter map[string]struct{}, typ string) bool {
	if len(filter) == 0 {
		return false
	}
	_, ok := filter[typ]
	return !ok
}
