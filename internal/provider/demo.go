package provider

import (
	"context"

	"github.com/factlens/factlens/internal/models"
)

const demoReport = `## Summary

The claim is **partially supported**. Two independent outlets confirm the
core event; the quoted figure could not be verified.

## Verified Facts

| Statement | Status |
|---|---|
| The event took place on the reported date | Confirmed |
| The quoted attendance figure | Unverified |

## Source Reliability

| Source | Assessment | Rating | Notes |
|---|---|---|---|
| [Example Wire](https://wire.example.com/story) | Established newsroom, primary reporting | Reliability rating - 5 | Cited by both follow-ups |
| [Example Blog](https://blog.example.com/post) | Single-author commentary | Reliability rating - 2 | Repeats the unverified figure |
`

// Demo streams a canned fact-check report. It backs the dev-mode binary so
// the full pipeline can be exercised without vendor credentials.
type Demo struct{}

// NewDemo returns the dev provider.
func NewDemo() *Demo { return &Demo{} }

// Generate replays the canned report as a realistic event sequence:
// status, a reasoning span, chunked body, grounding sources, final.
func (d *Demo) Generate(ctx context.Context, req models.ReportRequest) (<-chan StreamEvent, error) {
	events := []StreamEvent{
		Status("Searching sources"),
		Chunk("<think>Cross-checking the claim against wire coverage.</think>"),
	}
	// Chunk the body in uneven slices so downstream pacing is visible.
	for i := 0; i < len(demoReport); i += 96 {
		end := i + 96
		if end > len(demoReport) {
			end = len(demoReport)
		}
		events = append(events, Chunk(demoReport[i:end]))
	}
	events = append(events,
		Sources([]models.GroundingSource{
			{Title: "Example Wire", URI: "https://wire.example.com/story"},
			{Title: "Example Blog", URI: "https://blog.example.com/post"},
		}),
		Final(FinalPayload{
			FullText:         demoReport,
			ModelID:          "demo",
			GroundingSources: []models.GroundingSource{
				{Title: "Example Wire", URI: "https://wire.example.com/story"},
				{Title: "Example Blog", URI: "https://blog.example.com/post"},
			},
			IsInitialReport: true,
			ReportKind:      req.ReportKind,
		}),
	)
	scripted := &Scripted{Events: events}
	return scripted.Generate(ctx, req)
}
