package models

import (
	"time"
)

// Sender identifies who authored a transcript message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// GroundingSource is a citation surfaced by the provider alongside an answer.
// Its lifetime is one stream's final event.
type GroundingSource struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Message is one entry in the conversation transcript. Text grows
// monotonically while the stream is live and is frozen once the message
// becomes terminal (IsLoading=false).
type Message struct {
	ID               string            `json:"id"`
	Sender           Sender            `json:"sender"`
	Text             string            `json:"text"`
	Reasoning        string            `json:"reasoning,omitempty"`
	GroundingSources []GroundingSource `json:"grounding_sources,omitempty"`
	IsLoading        bool              `json:"is_loading"`
	IsError          bool              `json:"is_error"`
	CreatedAt        time.Time         `json:"created_at"`
}

// LinkStatus is the per-source link validation state machine.
type LinkStatus string

const (
	LinkUnchecked     LinkStatus = "unchecked"
	LinkChecking      LinkStatus = "checking"
	LinkValid         LinkStatus = "valid"
	LinkInvalid       LinkStatus = "invalid"
	LinkErrorChecking LinkStatus = "error_checking"
)

// SourceAssessment is one row of the source-reliability dataset. URL is the
// merge identity; Index is a view-order artifact reassigned on every
// reconciliation pass.
type SourceAssessment struct {
	Index      int        `json:"index"`
	Name       string     `json:"name"`
	URL        string     `json:"url"`
	Assessment string     `json:"assessment"`
	Notes      string     `json:"notes"`
	Rating     string     `json:"rating"`
	LinkStatus LinkStatus `json:"link_status"`
}

// ExtractedSource is a table row as parsed from a report, before
// reconciliation assigns an index and link status.
type ExtractedSource struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Assessment string `json:"assessment"`
	Notes      string `json:"notes"`
	Rating     string `json:"rating"`
}

// ParsedReportSection is a titled slice of a completed report. Derived,
// never mutated after creation.
type ParsedReportSection struct {
	Title         string `json:"title"`
	RawHeaderLine string `json:"raw_header_line"`
	Content       string `json:"content"`
	HeadingLevel  int    `json:"heading_level"`
}

// Attachment is a user-supplied file sent with a request. Content may be
// stripped before persistence when it exceeds the session size cap.
type Attachment struct {
	Name    string `json:"name"`
	Content []byte `json:"content,omitempty"`
}

// ReportRequest is the semantic input to one generation: everything that
// participates in the cache fingerprint.
type ReportRequest struct {
	Text          string            `json:"text"`
	Attachments   []Attachment      `json:"attachments,omitempty"`
	ContextURLs   []string          `json:"context_urls,omitempty"`
	Provider      string            `json:"provider"`
	ModelID       string            `json:"model_id"`
	ReportKind    string            `json:"report_kind"`
	PromptVersion string            `json:"prompt_version"`
	Config        map[string]string `json:"config,omitempty"`
}
