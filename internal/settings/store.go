// Package settings persists hub registrations and engine-wide settings
// in SQLite. It is the durable half of the Manager: everything here
// survives a restart and is loaded back during Initialize.
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/graymere/hublink/internal/hub"
	"github.com/graymere/hublink/internal/infrastructure/database"
)

// DefaultPollInterval is applied when the globals table has no stored
// value, matching the engine's own fallback.
const DefaultPollInterval = hub.DefaultPollInterval

// Global setting keys in the globals table.
const (
	keyDefaultPollInterval = "default_poll_interval_ms"
	keyGracePeriod         = "grace_period_ms"
	keyDebugMode           = "debug_mode"
)

// Store reads and writes hub and global settings. Implements the
// Manager's settings store interface.
type Store struct {
	db     *database.DB
	logger hub.Logger
}

// New creates a Store over an open database. The schema is managed by
// the migrations package; callers run db.Migrate before first use.
func New(db *database.DB, logger hub.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Load reads every registered hub and the global settings, applying
// defaults for globals that have never been written.
func (s *Store) Load(ctx context.Context) (hub.Settings, error) {
	out := hub.Settings{
		DefaultPollInterval: DefaultPollInterval,
		GracePeriod:         hub.DefaultGracePeriod,
	}

	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT id, name, host, port, use_https, api_key, poll_interval_ms
		FROM hubs ORDER BY id
	`)
	if err != nil {
		return hub.Settings{}, fmt.Errorf("querying hubs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cfg        hub.HubConfig
			useHTTPS   int
			intervalMS int64
		)
		if err := rows.Scan(&cfg.ID, &cfg.Name, &cfg.Host, &cfg.Port, &useHTTPS, &cfg.APIKey, &intervalMS); err != nil {
			return hub.Settings{}, fmt.Errorf("scanning hub row: %w", err)
		}
		cfg.UseHTTPS = useHTTPS != 0
		cfg.PollInterval = time.Duration(intervalMS) * time.Millisecond
		out.Hubs = append(out.Hubs, cfg)
	}
	if err := rows.Err(); err != nil {
		return hub.Settings{}, fmt.Errorf("iterating hubs: %w", err)
	}

	if err := s.loadGlobals(ctx, &out); err != nil {
		return hub.Settings{}, err
	}
	return out, nil
}

// loadGlobals overlays stored global values onto the defaults in out.
func (s *Store) loadGlobals(ctx context.Context, out *hub.Settings) error {
	rows, err := s.db.DB.QueryContext(ctx, "SELECT key, value FROM globals")
	if err != nil {
		return fmt.Errorf("querying globals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scanning global row: %w", err)
		}
		switch key {
		case keyDefaultPollInterval:
			if ms, err := strconv.ParseInt(value, 10, 64); err == nil && ms > 0 {
				out.DefaultPollInterval = time.Duration(ms) * time.Millisecond
			}
		case keyGracePeriod:
			if ms, err := strconv.ParseInt(value, 10, 64); err == nil && ms > 0 {
				out.GracePeriod = time.Duration(ms) * time.Millisecond
			}
		case keyDebugMode:
			out.DebugMode = value == "true"
		default:
			s.logDebug("ignoring unknown global", "key", key)
		}
	}
	return rows.Err()
}

// SaveHub inserts or updates one hub registration.
func (s *Store) SaveHub(ctx context.Context, cfg hub.HubConfig) error {
	now := time.Now().UTC().Format(time.RFC3339)
	useHTTPS := 0
	if cfg.UseHTTPS {
		useHTTPS = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hubs (id, name, host, port, use_https, api_key, poll_interval_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			host = excluded.host,
			port = excluded.port,
			use_https = excluded.use_https,
			api_key = excluded.api_key,
			poll_interval_ms = excluded.poll_interval_ms,
			updated_at = excluded.updated_at
	`, cfg.ID, cfg.Name, cfg.Host, cfg.Port, useHTTPS, cfg.APIKey,
		cfg.PollInterval.Milliseconds(), now, now)
	if err != nil {
		return fmt.Errorf("saving hub %s: %w", cfg.ID, err)
	}
	return nil
}

// DeleteHub removes one hub registration. Deleting an unknown hub is
// not an error.
func (s *Store) DeleteHub(ctx context.Context, hubID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM hubs WHERE id = ?", hubID); err != nil {
		return fmt.Errorf("deleting hub %s: %w", hubID, err)
	}
	return nil
}

// SaveGlobals writes the engine-wide settings in one transaction.
func (s *Store) SaveGlobals(ctx context.Context, settings hub.Settings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	values := map[string]string{
		keyDefaultPollInterval: strconv.FormatInt(settings.DefaultPollInterval.Milliseconds(), 10),
		keyGracePeriod:         strconv.FormatInt(settings.GracePeriod.Milliseconds(), 10),
		keyDebugMode:           strconv.FormatBool(settings.DebugMode),
	}
	now := time.Now().UTC().Format(time.RFC3339)

	for key, value := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO globals (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, now); err != nil {
			return fmt.Errorf("saving global %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing globals: %w", err)
	}
	return nil
}

// HubExists reports whether a hub id is registered.
func (s *Store) HubExists(ctx context.Context, hubID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM hubs WHERE id = ?", hubID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking hub %s: %w", hubID, err)
	}
	return true, nil
}

// logDebug logs a debug message if a logger is set.
func (s *Store) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
