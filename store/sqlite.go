package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/lernio/mentor"
)

const defaultBusyTimeout = 5 * time.Second

// SQLiteConfig configures a SQLiteStore.
type SQLiteConfig struct {
	// Path is the database file. Required.
	Path string

	// BusyTimeout bounds how long a statement waits on a locked
	// database. Zero means 5s.
	BusyTimeout time.Duration
}

// SQLiteStore is a durable Store backed by a single SQLite file in WAL
// mode. All timestamps are persisted at second precision.
type SQLiteStore struct {
	db        *sql.DB
	closeOnce sync.Once
	closeErr  error
}

var (
	_ mentor.Store        = (*SQLiteStore)(nil)
	_ mentor.Checkpointer = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens the database at path, creating it and its schema
// as needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteConfig{Path: path})
}

// NewSQLiteStoreWithConfig opens a store with explicit settings.
func NewSQLiteStoreWithConfig(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("mentor: sqlite path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = defaultBusyTimeout
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("mentor: open sqlite: %w", err)
	}

	// SQLite allows a single writer; funnel everything through one
	// connection so writes never contend with each other.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mentor: init sqlite schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS quiz_items (
			id            TEXT PRIMARY KEY,
			topic         TEXT NOT NULL,
			prompt        TEXT NOT NULL,
			answer        TEXT NOT NULL,
			ease          REAL NOT NULL,
			interval_days INTEGER NOT NULL,
			repetitions   INTEGER NOT NULL,
			due           INTEGER NOT NULL,
			created_at    INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_quiz_items_due ON quiz_items(due);

		CREATE TABLE IF NOT EXISTS sessions (
			id             TEXT PRIMARY KEY,
			created_at     INTEGER NOT NULL,
			last_active_at INTEGER NOT NULL,
			questions      INTEGER NOT NULL,
			spend          REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active_at);

		CREATE TABLE IF NOT EXISTS budget (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			spent      REAL NOT NULL,
			cap        REAL NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	return err
}

// GetItem returns the quiz item with the given ID.
func (s *SQLiteStore) GetItem(ctx context.Context, id string) (mentor.QuizItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, topic, prompt, answer, ease, interval_days, repetitions, due, created_at
		FROM quiz_items WHERE id = ?
	`, id)

	var (
		item      mentor.QuizItem
		due       int64
		createdAt int64
	)
	err := row.Scan(&item.ID, &item.Topic, &item.Prompt, &item.Answer,
		&item.State.Ease, &item.State.IntervalDays, &item.State.Repetitions,
		&due, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return mentor.QuizItem{}, fmt.Errorf("quiz item %q: %w", id, mentor.ErrNotFound)
	}
	if err != nil {
		return mentor.QuizItem{}, fmt.Errorf("mentor: get quiz item: %w", err)
	}
	item.State.Due = time.Unix(due, 0).UTC()
	item.CreatedAt = time.Unix(createdAt, 0).UTC()
	return item, nil
}

// PutItem creates or replaces a quiz item. The creation timestamp of an
// existing item is preserved.
func (s *SQLiteStore) PutItem(ctx context.Context, item mentor.QuizItem) error {
	if item.ID == "" {
		return fmt.Errorf("mentor: quiz item id is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quiz_items (id, topic, prompt, answer, ease, interval_days, repetitions, due, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			topic         = excluded.topic,
			prompt        = excluded.prompt,
			answer        = excluded.answer,
			ease          = excluded.ease,
			interval_days = excluded.interval_days,
			repetitions   = excluded.repetitions,
			due           = excluded.due
	`, item.ID, item.Topic, item.Prompt, item.Answer,
		item.State.Ease, item.State.IntervalDays, item.State.Repetitions,
		item.State.Due.Unix(), item.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("mentor: put quiz item: %w", err)
	}
	return nil
}

// DueBefore returns the IDs of items due at or before t, soonest first.
func (s *SQLiteStore) DueBefore(ctx context.Context, t time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM quiz_items WHERE due <= ? ORDER BY due, id
	`, t.Unix())
	if err != nil {
		return nil, fmt.Errorf("mentor: query due items: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("mentor: scan due item: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mentor: iterate due items: %w", err)
	}
	return ids, nil
}

// GetSession returns the session record with the given ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (mentor.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, last_active_at, questions, spend
		FROM sessions WHERE id = ?
	`, id)

	var (
		rec        mentor.SessionRecord
		createdAt  int64
		lastActive int64
	)
	err := row.Scan(&rec.ID, &createdAt, &lastActive, &rec.Questions, &rec.Spend)
	if errors.Is(err, sql.ErrNoRows) {
		return mentor.SessionRecord{}, fmt.Errorf("session %q: %w", id, mentor.ErrNotFound)
	}
	if err != nil {
		return mentor.SessionRecord{}, fmt.Errorf("mentor: get session: %w", err)
	}
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.LastActiveAt = time.Unix(lastActive, 0).UTC()
	return rec, nil
}

// PutSession creates or replaces a session record.
func (s *SQLiteStore) PutSession(ctx context.Context, rec mentor.SessionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("mentor: session id is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, last_active_at, questions, spend)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			last_active_at = excluded.last_active_at,
			questions      = excluded.questions,
			spend          = excluded.spend
	`, rec.ID, rec.CreatedAt.Unix(), rec.LastActiveAt.Unix(), rec.Questions, rec.Spend)
	if err != nil {
		return fmt.Errorf("mentor: put session: %w", err)
	}
	return nil
}

// Sessions returns up to limit session records, most recently active first.
func (s *SQLiteStore) Sessions(ctx context.Context, limit int) ([]mentor.SessionRecord, error) {
	query := `
		SELECT id, created_at, last_active_at, questions, spend
		FROM sessions ORDER BY last_active_at DESC, id
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mentor: query sessions: %w", err)
	}
	defer rows.Close()

	var recs []mentor.SessionRecord
	for rows.Next() {
		var (
			rec        mentor.SessionRecord
			createdAt  int64
			lastActive int64
		)
		if err := rows.Scan(&rec.ID, &createdAt, &lastActive, &rec.Questions, &rec.Spend); err != nil {
			return nil, fmt.Errorf("mentor: scan session: %w", err)
		}
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		rec.LastActiveAt = time.Unix(lastActive, 0).UTC()
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mentor: iterate sessions: %w", err)
	}
	return recs, nil
}

// GetBudget returns the persisted budget snapshot.
func (s *SQLiteStore) GetBudget(ctx context.Context) (mentor.BudgetRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT spent, cap, updated_at FROM budget WHERE id = 1
	`)

	var (
		rec       mentor.BudgetRecord
		updatedAt int64
	)
	err := row.Scan(&rec.Spent, &rec.Cap, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return mentor.BudgetRecord{}, fmt.Errorf("budget snapshot: %w", mentor.ErrNotFound)
	}
	if err != nil {
		return mentor.BudgetRecord{}, fmt.Errorf("mentor: get budget: %w", err)
	}
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return rec, nil
}

// PutBudget replaces the persisted budget snapshot.
func (s *SQLiteStore) PutBudget(ctx context.Context, rec mentor.BudgetRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budget (id, spent, cap, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			spent      = excluded.spent,
			cap        = excluded.cap,
			updated_at = excluded.updated_at
	`, rec.Spent, rec.Cap, rec.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("mentor: put budget: %w", err)
	}
	return nil
}

// Checkpoint folds the WAL back into the main database file. Safe to
// call concurrently with reads and writes.
func (s *SQLiteStore) Checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(PASSIVE)`)
	if err != nil {
		return fmt.Errorf("mentor: wal checkpoint: %w", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database. Subsequent calls
// return the first result.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		// Best effort: truncate the WAL so a clean shutdown leaves a
		// bare database file behind.
		_, _ = s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`)
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
