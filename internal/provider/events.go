package provider

import (
	"github.com/factlens/factlens/internal/models"
)

// EventKind discriminates the StreamEvent union. The set is closed: the
// pipeline switches exhaustively on it at its single consumption point.
type EventKind string

const (
	EventStatus  EventKind = "status"
	EventChunk   EventKind = "chunk"
	EventSources EventKind = "sources"
	EventError   EventKind = "error"
	EventFinal   EventKind = "final"
)

// FinalPayload carries the terminal state of a successful stream.
type FinalPayload struct {
	FullText         string
	ModelID          string
	GroundingSources []models.GroundingSource
	IsInitialReport  bool
	ReportKind       string
	CacheKey         string
}

// StreamEvent is one unit of provider output. Exactly one of the payload
// fields is meaningful for a given Kind:
//
//	EventStatus  -> Message
//	EventChunk   -> Text
//	EventSources -> Sources
//	EventError   -> Err
//	EventFinal   -> Final
//
// A stream is terminated by exactly one EventFinal or EventError; EventChunk
// may repeat arbitrarily and arrival order must be preserved.
type StreamEvent struct {
	Kind    EventKind
	Message string
	Text    string
	Sources []models.GroundingSource
	Err     error
	Final   *FinalPayload
}

// Status, Chunk, Sources, Errf and Final are constructors that keep event
// literals short at call sites.

func Status(msg string) StreamEvent { return StreamEvent{Kind: EventStatus, Message: msg} }

func Chunk(text string) StreamEvent { return StreamEvent{Kind: EventChunk, Text: text} }

func Sources(srcs []models.GroundingSource) StreamEvent {
	return StreamEvent{Kind: EventSources, Sources: srcs}
}

func Error(err error) StreamEvent { return StreamEvent{Kind: EventError, Err: err} }

func Final(p FinalPayload) StreamEvent { return StreamEvent{Kind: EventFinal, Final: &p} }
