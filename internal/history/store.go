// Package history keeps a SQLite ledger of row outcomes across runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	row_index   INTEGER NOT NULL,
	product     TEXT NOT NULL,
	apir        TEXT NOT NULL DEFAULT '',
	web_link    TEXT NOT NULL DEFAULT '',
	score       INTEGER NOT NULL DEFAULT 0,
	reason      TEXT NOT NULL DEFAULT '',
	pds_date    TEXT NOT NULL DEFAULT '',
	file        TEXT NOT NULL DEFAULT '',
	recorded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS outcomes_product_apir ON outcomes (product, apir, score);
`

// Entry is one recorded row outcome.
type Entry struct {
	RunID      string    `db:"run_id"`
	RowIndex   int       `db:"row_index"`
	Product    string    `db:"product"`
	APIR       string    `db:"apir"`
	WebLink    string    `db:"web_link"`
	Score      int       `db:"score"`
	Reason     string    `db:"reason"`
	PDSDate    string    `db:"pds_date"`
	File       string    `db:"file"`
	RecordedAt time.Time `db:"-"`
}

type entryRow struct {
	Entry
	RecordedAt string `db:"recorded_at"`
}

// Store is safe for sequential use by a single run; SQLite serializes writers.
type Store struct {
	db *sqlx.DB
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history db path is empty")
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends an outcome. A zero RecordedAt is stamped with the current time.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO outcomes (run_id, row_index, product, apir, web_link, score, reason, pds_date, file, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.RowIndex, key(e.Product), key(e.APIR), e.WebLink, e.Score, e.Reason, e.PDSDate, e.File,
		e.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record outcome for %q: %w", e.Product, err)
	}
	return nil
}

// LastValidated returns the most recent score-100 outcome for (product, apir).
func (s *Store) LastValidated(ctx context.Context, product, apir string) (Entry, bool, error) {
	var row entryRow
	err := s.db.GetContext(ctx, &row, `
SELECT run_id, row_index, product, apir, web_link, score, reason, pds_date, file, recorded_at
FROM outcomes
WHERE product = ? AND apir = ? AND score = 100 AND web_link != '' AND web_link != 'Not found'
ORDER BY id DESC
LIMIT 1`, key(product), key(apir))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup validated outcome for %q: %w", product, err)
	}
	e := row.Entry
	if t, err := time.Parse(time.RFC3339Nano, row.RecordedAt); err == nil {
		e.RecordedAt = t
	}
	return e, true, nil
}

// Count returns the number of recorded outcomes for runID.
func (s *Store) Count(ctx context.Context, runID string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM outcomes WHERE run_id = ?`, runID); err != nil {
		return 0, fmt.Errorf("count outcomes: %w", err)
	}
	return n, nil
}

func key(s string) string {
	return strings.TrimSpace(s)
}
