package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"

	"github.com/openreef/reef/pkg/model"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config holds journal configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Journal is a SQLite-backed lifecycle event log. It implements
// model.Hook.
type Journal struct {
	db     *sql.DB
	path   string
	cfg    Config
	logger zerolog.Logger
}

// NewJournal creates a new journal instance. Call Init and Migrate
// before use.
func NewJournal(cfg Config, logger zerolog.Logger) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &Journal{
		path:   cfg.Path,
		cfg:    cfg,
		logger: logger.With().Str("component", "journal").Logger(),
	}, nil
}

// Init opens the database connection and enables WAL mode.
func (j *Journal) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", j.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(j.cfg.MaxOpenConns)
	db.SetMaxIdleConns(j.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(j.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	j.db = db
	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (j *Journal) Migrate(_ context.Context) error {
	if j.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(j.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is alive.
func (j *Journal) HealthCheck(ctx context.Context) error {
	if j.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return j.db.PingContext(ctx)
}

// Attach registers the journal for all lifecycle event types.
func (j *Journal) Attach(hooks *model.Hooks) {
	hooks.RegisterHook(model.AllEventTypes(), j)
}

// HandleEvent appends the event to the log and updates the component
// state view. The journal observes, it does not gate: persistence
// failures are logged and swallowed so a full disk cannot wedge the
// lifecycle.
func (j *Journal) HandleEvent(ctx context.Context, event model.Event) error {
	if err := j.record(ctx, event); err != nil {
		j.logger.Error().Err(err).
			Str("event", string(event.Type)).
			Str("moniker", event.Moniker.String()).
			Msg("failed to record event")
	}
	return nil
}

// record persists a single event and its state effect in one
// transaction.
func (j *Journal) record(ctx context.Context, event model.Event) error {
	if j.db == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := j.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var errMsg *string
	if event.Err != nil {
		s := event.Err.Error()
		errMsg = &s
	}

	var source *string
	if event.Type == model.EventTypeCapabilityRouted {
		s := event.Source.String()
		source = &s
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, type, moniker, capability, source, reason, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		string(event.Type),
		event.Moniker.String(),
		nullable(event.Capability),
		source,
		nullable(string(event.Reason)),
		errMsg,
		event.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	if err := j.applyStateEffect(ctx, tx, event); err != nil {
		return err
	}

	return tx.Commit()
}

// applyStateEffect updates the component_states view for events that
// change lifecycle state.
func (j *Journal) applyStateEffect(ctx context.Context, tx *sql.Tx, event model.Event) error {
	moniker := event.Moniker.String()
	now := event.Timestamp.UTC()

	var query string
	var args []interface{}

	switch event.Type {
	case model.EventTypeDiscovered:
		query = `
			INSERT INTO component_states (moniker, state, started, updated_at)
			VALUES (?, ?, 0, ?)
			ON CONFLICT(moniker) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
		`
		args = []interface{}{moniker, string(model.StateDiscovered), now}

	case model.EventTypeResolved:
		// A failed resolution leaves the component discovered.
		if event.Err != nil {
			return nil
		}
		query = `
			UPDATE component_states SET state = ?, updated_at = ? WHERE moniker = ?
		`
		args = []interface{}{string(model.StateResolved), now, moniker}

	case model.EventTypeDestroyed:
		query = `
			UPDATE component_states SET state = ?, started = 0, updated_at = ? WHERE moniker = ?
		`
		args = []interface{}{string(model.StateDestroyed), now, moniker}

	case model.EventTypePurged:
		query = `
			UPDATE component_states SET state = ?, updated_at = ? WHERE moniker = ?
		`
		args = []interface{}{string(model.StatePurged), now, moniker}

	case model.EventTypeStarted:
		query = `
			UPDATE component_states SET started = 1, updated_at = ? WHERE moniker = ?
		`
		args = []interface{}{now, moniker}

	default:
		return nil
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update component state: %w", err)
	}
	return nil
}

// nullable maps an empty string to NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
