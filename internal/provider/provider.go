package provider

import (
	"context"

	"github.com/factlens/factlens/internal/models"
)

// Provider generates one report stream per request. Implementations wrap a
// vendor SDK and translate its wire format into provider-agnostic
// StreamEvents; transport details stay behind this interface.
//
// Generate must respect ctx cancellation: it stops emitting and returns once
// ctx is done. The returned channel is closed after the terminal event
// (final or error) has been delivered.
type Provider interface {
	Generate(ctx context.Context, req models.ReportRequest) (<-chan StreamEvent, error)
}

// Scripted replays a fixed event sequence; it backs pipeline tests and the
// dev-mode binary when no vendor SDK is configured.
type Scripted struct {
	Events []StreamEvent
}

func (s *Scripted) Generate(ctx context.Context, _ models.ReportRequest) (<-chan StreamEvent, error) {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		for _, ev := range s.Events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
			// Stop after the terminal event even if the script has trailing junk.
			if ev.Kind == EventFinal || ev.Kind == EventError {
				return
			}
		}
	}()
	return ch, nil
}
