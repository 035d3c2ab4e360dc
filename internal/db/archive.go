package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/factlens/factlens/internal/circuitbreaker"
	"github.com/factlens/factlens/internal/metrics"
	"github.com/factlens/factlens/internal/models"
)

// Config holds database configuration
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxConnections  int
	IdleConnections int
	MaxLifetime     time.Duration
	SSLMode         string
}

// ReportRecord is one completed report headed for the archive. CacheKey is
// the natural key: regenerating the same request overwrites the prior row.
type ReportRecord struct {
	CacheKey   string    `db:"cache_key"`
	SessionID  string    `db:"session_id"`
	Provider   string    `db:"provider"`
	ModelID    string    `db:"model_id"`
	ReportKind string    `db:"report_kind"`
	Text       string    `db:"text"`
	CreatedAt  time.Time `db:"created_at"`

	Sources []models.SourceAssessment `db:"-"`
}

// Archive persists completed reports and their source assessments to
// Postgres, behind a circuit breaker so archive outages never stall the
// generation path.
type Archive struct {
	db      *sqlx.DB
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewArchive opens the connection pool and verifies it.
func NewArchive(config *Config, logger *zap.Logger) (*Archive, error) {
	if config.MaxConnections == 0 {
		config.MaxConnections = 25
	}
	if config.IdleConnections == 0 {
		config.IdleConnections = 5
	}
	if config.MaxLifetime == 0 {
		config.MaxLifetime = 5 * time.Minute
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode)

	pool, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	pool.SetMaxOpenConns(config.MaxConnections)
	pool.SetMaxIdleConns(config.IdleConnections)
	pool.SetConnMaxLifetime(config.MaxLifetime)

	return NewArchiveWithDB(pool, logger), nil
}

// NewArchiveWithDB wraps an existing pool (tests inject sqlmock here).
func NewArchiveWithDB(pool *sqlx.DB, logger *zap.Logger) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{
		db:      pool,
		breaker: circuitbreaker.NewCircuitBreaker("postgres", circuitbreaker.PostgresConfig(), logger),
		logger:  logger,
	}
}

// SaveReport upserts the report row by cache key and replaces its source
// rows, in one transaction.
func (a *Archive) SaveReport(ctx context.Context, rec ReportRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	err := a.breaker.Execute(ctx, func() error {
		tx, err := a.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO reports (cache_key, session_id, provider, model_id, report_kind, text, created_at)
			VALUES (:cache_key, :session_id, :provider, :model_id, :report_kind, :text, :created_at)
			ON CONFLICT (cache_key) DO UPDATE
			SET session_id = EXCLUDED.session_id,
			    provider = EXCLUDED.provider,
			    model_id = EXCLUDED.model_id,
			    report_kind = EXCLUDED.report_kind,
			    text = EXCLUDED.text,
			    created_at = EXCLUDED.created_at`, rec)
		if err != nil {
			return fmt.Errorf("upsert report: %w", err)
		}

		if _, err = tx.ExecContext(ctx,
			`DELETE FROM report_sources WHERE cache_key = $1`, rec.CacheKey); err != nil {
			return fmt.Errorf("clear report sources: %w", err)
		}

		for _, src := range rec.Sources {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO report_sources (cache_key, source_index, name, url, assessment, notes, rating, link_status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				rec.CacheKey, src.Index, src.Name, src.URL, src.Assessment, src.Notes, src.Rating, string(src.LinkStatus))
			if err != nil {
				return fmt.Errorf("insert report source: %w", err)
			}
		}

		return tx.Commit()
	})
	if err != nil {
		metrics.ReportsArchived.WithLabelValues("error").Inc()
		a.logger.Warn("Report archive write failed",
			zap.String("cache_key", rec.CacheKey),
			zap.Error(err))
		return err
	}

	metrics.ReportsArchived.WithLabelValues("ok").Inc()
	return nil
}

// GetReport loads an archived report and its source rows by cache key.
func (a *Archive) GetReport(ctx context.Context, cacheKey string) (*ReportRecord, error) {
	var rec ReportRecord
	err := a.breaker.Execute(ctx, func() error {
		if err := a.db.GetContext(ctx, &rec,
			`SELECT cache_key, session_id, provider, model_id, report_kind, text, created_at
			 FROM reports WHERE cache_key = $1`, cacheKey); err != nil {
			return err
		}

		rows, err := a.db.QueryxContext(ctx, `
			SELECT source_index, name, url, assessment, notes, rating, link_status
			FROM report_sources WHERE cache_key = $1 ORDER BY source_index`, cacheKey)
		if err != nil {
			return fmt.Errorf("query report sources: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var src models.SourceAssessment
			var status string
			if err := rows.Scan(&src.Index, &src.Name, &src.URL, &src.Assessment,
				&src.Notes, &src.Rating, &status); err != nil {
				return fmt.Errorf("scan report source: %w", err)
			}
			src.LinkStatus = models.LinkStatus(status)
			rec.Sources = append(rec.Sources, src)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListSessionReports returns report rows for a session, newest first,
// without source rows.
func (a *Archive) ListSessionReports(ctx context.Context, sessionID string, limit int) ([]ReportRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []ReportRecord
	err := a.breaker.Execute(ctx, func() error {
		return a.db.SelectContext(ctx, &recs,
			`SELECT cache_key, session_id, provider, model_id, report_kind, text, created_at
			 FROM reports WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2`,
			sessionID, limit)
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Ping verifies database connectivity.
func (a *Archive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close releases the connection pool.
func (a *Archive) Close() error {
	return a.db.Close()
}
