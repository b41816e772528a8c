// Package database persists finished meetings. With a direct DSN it writes
// through a pgx pool; otherwise it falls back to the Supabase PostgREST API.
package database

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/sesly/sesly-engine/internal/config"
)

// ErrNotConfigured is returned when no persistence backend is configured.
// Callers treat it as "skip the insert".
var ErrNotConfigured = errors.New("meeting persistence not configured")

// MeetingRecord is one row of the meetings table.
type MeetingRecord struct {
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	Platform      string    `json:"platform"`
	StartTime     time.Time `json:"start_time"`
	Duration      string    `json:"duration"`
	TranscriptURL string    `json:"transcript_url,omitempty"`
	ReportURL     string    `json:"report_url,omitempty"`
	SummaryText   string    `json:"summary_text,omitempty"`
}

// MeetingStore writes meeting rows.
type MeetingStore interface {
	InsertMeeting(ctx context.Context, rec MeetingRecord) error
	Close()
}

// New selects the backend from config: pgx when SUPABASE_DB_URL is set,
// PostgREST when only the project URL and key are available, disabled
// otherwise.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (MeetingStore, error) {
	switch {
	case cfg.SupabaseDBURL != "":
		return Connect(ctx, cfg.SupabaseDBURL, log)
	case cfg.SupabaseEnabled():
		return NewRESTStore(cfg.SupabaseURL, cfg.SupabaseKey(), log), nil
	default:
		return disabledStore{}, nil
	}
}

// DB wraps a pgx pool over the Supabase Postgres database.
type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// Connect opens and pings a pgx pool for the given DSN.
func Connect(ctx context.Context, databaseURL string, log zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 4
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().Str("url", maskDSN(databaseURL)).Msg("database connected")
	return &DB{Pool: pool, log: log}, nil
}

// InsertMeeting writes one meetings row.
func (db *DB) InsertMeeting(ctx context.Context, rec MeetingRecord) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO meetings (user_id, title, platform, start_time, duration, transcript_url, report_url, summary_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.UserID, rec.Title, rec.Platform, rec.StartTime, rec.Duration,
		rec.TranscriptURL, rec.ReportURL, rec.SummaryText,
	)
	return err
}

// HealthCheck pings the pool with a short deadline.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.Pool.Ping(ctx)
}

func (db *DB) Close() {
	db.log.Info().Msg("closing database pool")
	db.Pool.Close()
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}

type disabledStore struct{}

func (disabledStore) InsertMeeting(context.Context, MeetingRecord) error { return ErrNotConfigured }
func (disabledStore) Close()                                             {}
