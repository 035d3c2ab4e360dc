package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/factlens/factlens/internal/circuitbreaker"
	"github.com/factlens/factlens/internal/metrics"
)

const (
	// DefaultSaveDelay is the auto-save quiet period: a save scheduled by a
	// state change is replaced by any further change before it fires.
	DefaultSaveDelay = 1500 * time.Millisecond

	// DefaultMaxAttachmentBytes caps persisted attachment payloads; larger
	// contents are stripped before the session is written.
	DefaultMaxAttachmentBytes = 256 * 1024
)

// Manager handles session persistence with a Redis backend.
type Manager struct {
	client             *circuitbreaker.RedisWrapper
	logger             *zap.Logger
	ttl                time.Duration
	saveDelay          time.Duration
	maxAttachmentBytes int

	mu         sync.Mutex
	localCache map[string]*Session
	pending    map[string]*time.Timer // debounced auto-save handles by session id
}

// NewManager creates a session manager connected to Redis.
func NewManager(redisAddr string, logger *zap.Logger) (*Manager, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	client := circuitbreaker.NewRedisWrapper(redisClient, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newManager(client, logger), nil
}

// NewManagerWithClient wraps an existing Redis client (miniredis in tests).
func NewManagerWithClient(redisClient *redis.Client, logger *zap.Logger) *Manager {
	return newManager(circuitbreaker.NewRedisWrapper(redisClient, logger), logger)
}

func newManager(client *circuitbreaker.RedisWrapper, logger *zap.Logger) *Manager {
	return &Manager{
		client:             client,
		logger:             logger,
		ttl:                24 * time.Hour,
		saveDelay:          DefaultSaveDelay,
		maxAttachmentBytes: DefaultMaxAttachmentBytes,
		localCache:         make(map[string]*Session),
		pending:            make(map[string]*time.Timer),
	}
}

// SetSaveDelay overrides the auto-save quiet period (tests use short delays).
func (m *Manager) SetSaveDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.saveDelay = d
	}
}

// CreateSession creates and persists a new session.
func (m *Manager) CreateSession(ctx context.Context) (*Session, error) {
	now := time.Now()
	session := &Session{
		ID:        uuid.New().String(),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	if err := m.saveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	m.mu.Lock()
	m.localCache[session.ID] = session
	m.mu.Unlock()

	m.logger.Info("Created new session", zap.String("session_id", session.ID))
	return session, nil
}

// GetSession retrieves a session by ID. Corrupt stored JSON is deleted on
// read and reported as not-found rather than surfacing a parse error forever.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	if session, ok := m.localCache[sessionID]; ok {
		m.mu.Unlock()
		if session.IsExpired() {
			_ = m.DeleteSession(ctx, sessionID)
			return nil, ErrSessionExpired
		}
		return session, nil
	}
	m.mu.Unlock()

	key := m.sessionKey(sessionID)
	data, err := m.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		m.logger.Warn("Deleting corrupt session record",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		if delErr := m.client.Del(ctx, key).Err(); delErr != nil {
			m.logger.Warn("Failed to delete corrupt session", zap.Error(delErr))
		}
		return nil, ErrSessionNotFound
	}

	if session.IsExpired() {
		_ = m.DeleteSession(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	m.mu.Lock()
	m.localCache[sessionID] = &session
	m.mu.Unlock()
	return &session, nil
}

// UpdateSession persists a session immediately.
func (m *Manager) UpdateSession(ctx context.Context, session *Session) error {
	if session == nil {
		return fmt.Errorf("session is nil")
	}
	session.Touch()

	if err := m.saveSession(ctx, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	m.mu.Lock()
	m.localCache[session.ID] = session
	m.mu.Unlock()
	return nil
}

// ScheduleSave schedules a debounced save. Any save already pending for the
// session is replaced, so the write happens only after a quiet period.
// Failures are logged and reflected in the save-status gauge, never fatal.
func (m *Manager) ScheduleSave(session *Session) {
	if session == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.pending[session.ID]; ok {
		t.Stop()
	}
	id := session.ID
	m.pending[id] = time.AfterFunc(m.saveDelay, func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		session.Touch()
		if err := m.saveSession(ctx, session); err != nil {
			m.logger.Warn("Auto-save failed",
				zap.String("session_id", id),
				zap.Error(err),
			)
			metrics.SessionSaves.WithLabelValues("error").Inc()
			metrics.SessionSaveStatus.Set(0)
			return
		}
		metrics.SessionSaves.WithLabelValues("ok").Inc()
		metrics.SessionSaveStatus.Set(1)
	})
}

// FlushPending cancels any scheduled save for the session and writes it now.
func (m *Manager) FlushPending(ctx context.Context, session *Session) error {
	if session == nil {
		return nil
	}
	m.mu.Lock()
	if t, ok := m.pending[session.ID]; ok {
		t.Stop()
		delete(m.pending, session.ID)
	}
	m.mu.Unlock()
	return m.UpdateSession(ctx, session)
}

// DeleteSession deletes a session.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	if err := m.client.Del(ctx, m.sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	m.mu.Lock()
	delete(m.localCache, sessionID)
	if t, ok := m.pending[sessionID]; ok {
		t.Stop()
		delete(m.pending, sessionID)
	}
	m.mu.Unlock()

	m.logger.Info("Deleted session", zap.String("session_id", sessionID))
	return nil
}

// Close closes the session manager
func (m *Manager) Close() error {
	m.mu.Lock()
	for id, t := range m.pending {
		t.Stop()
		delete(m.pending, id)
	}
	m.mu.Unlock()
	return m.client.Close()
}

func (m *Manager) sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// saveSession marshals a locked snapshot of the session, so a debounced
// save racing a live stream's mutations always writes a consistent record.
func (m *Manager) saveSession(ctx context.Context, session *Session) error {
	snap := session.Snapshot()
	m.strip(snap)
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(snap.ExpiresAt)
	if ttl <= 0 {
		ttl = m.ttl
	}
	return m.client.Set(ctx, m.sessionKey(snap.ID), data, ttl).Err()
}

// strip removes oversized attachment payloads from a snapshot so a session
// record stays within storage size limits. It must only be called on a
// private copy.
func (m *Manager) strip(snap *Session) {
	for i := range snap.Attachments {
		if len(snap.Attachments[i].Content) > m.maxAttachmentBytes {
			snap.Attachments[i].Content = nil
		}
	}
}
