package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pawcare/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Journal is the append-only log of booking actions, one row per dispatch
// attempt including the ones rejected locally.
type Journal struct {
	db     *sql.DB
	path   string
	logger *zerolog.Logger
}

func Open(path string, logger *zerolog.Logger) (*Journal, error) {
	// Создаем директорию для БД, если её нет
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite пишет в один поток
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Action journal initialized")
	return &Journal{db: db, path: path, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS action_journal (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            session_id TEXT NOT NULL,
            domain TEXT NOT NULL,
            booking_id TEXT NOT NULL,
            action TEXT NOT NULL,
            payload TEXT,
            outcome TEXT NOT NULL,
            error TEXT,
            created_at DATETIME NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_journal_booking ON action_journal(domain, booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_outcome ON action_journal(outcome)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_created_at ON action_journal(created_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (j *Journal) Path() string { return j.path }

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

func (j *Journal) Record(ctx context.Context, entry *models.JournalEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO action_journal (session_id, domain, booking_id, action, payload, outcome, error, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := j.db.ExecContext(ctx, query,
		entry.SessionID,
		entry.Domain,
		entry.BookingID,
		string(entry.Action),
		entry.Payload,
		entry.Outcome,
		entry.Error,
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListByBooking returns the journal of one booking, oldest first.
func (j *Journal) ListByBooking(ctx context.Context, domain, bookingID string) ([]models.JournalEntry, error) {
	query := `SELECT id, session_id, domain, booking_id, action, payload, outcome, error, created_at
              FROM action_journal
              WHERE domain = ? AND booking_id = ?
              ORDER BY created_at ASC, id ASC`
	rows, err := j.db.QueryContext(ctx, query, domain, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal: %w", err)
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		var action string
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Domain, &e.BookingID, &action, &payload, &e.Outcome, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Action = models.ActionKind(action)
		e.Payload = payload.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (j *Journal) CountByOutcome(ctx context.Context, outcome string) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM action_journal WHERE outcome = ?`, outcome).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return n, nil
}

// Prune deletes entries older than cutoff.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM action_journal WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return res.RowsAffected()
}
