package session

import (
	"errors"
	"sync"
	"time"

	"github.com/factlens/factlens/internal/models"
)

var (
	// ErrSessionNotFound is returned when a session doesn't exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when a session has expired
	ErrSessionExpired = errors.New("session expired")
)

// Session is the "current session" record: the full transcript, the latest
// assessment snapshot, and the request configuration. Large attachment
// payloads are stripped before persistence.
//
// The embedded lock covers Transcript, Assessments and UpdatedAt. Mutators
// outside this package take it via Lock/Unlock; the save path marshals a
// Snapshot so a debounced write never reads mid-mutation state.
type Session struct {
	mu sync.Mutex

	ID          string                    `json:"id"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
	ExpiresAt   time.Time                 `json:"expires_at"`
	Transcript  []models.Message          `json:"transcript"`
	Assessments []models.SourceAssessment `json:"assessments"`
	Provider    string                    `json:"provider"`
	ModelID     string                    `json:"model_id"`
	Config      map[string]string         `json:"config,omitempty"`
	Attachments []models.Attachment       `json:"attachments,omitempty"`
}

// Lock acquires the session's state lock.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session's state lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// Touch stamps UpdatedAt under the lock.
func (s *Session) Touch() {
	s.mu.Lock()
	s.UpdatedAt = time.Now()
	s.mu.Unlock()
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// AppendMessage adds a message to the transcript.
func (s *Session) AppendMessage(msg models.Message) {
	s.mu.Lock()
	s.Transcript = append(s.Transcript, msg)
	s.mu.Unlock()
}

// Snapshot returns a copy taken under the lock, safe to read or marshal
// while writers keep mutating the original. Transcript and Assessments are
// copied; attachment contents are shared (they are written once).
func (s *Session) Snapshot() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Session{
		ID:          s.ID,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		ExpiresAt:   s.ExpiresAt,
		Transcript:  append([]models.Message(nil), s.Transcript...),
		Assessments: append([]models.SourceAssessment(nil), s.Assessments...),
		Provider:    s.Provider,
		ModelID:     s.ModelID,
		Config:      s.Config,
		Attachments: append([]models.Attachment(nil), s.Attachments...),
	}
}
