// Package ledger records one append-only entry per suppression run, for
// audit and reproducibility: the input hash, config hash, resulting
// statistics, and timestamp. It is deliberately driver-agnostic (plain
// database/sql over an already-registered driver), the same shape as
// the storage service's relational layer, so a SQLite file and a
// Postgres instance can serve the identical Store behind one interface.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Ap3pp3rs94/cellsuppress/pkg/suppress"
)

var (
	// ErrNotFound indicates no run exists with the given id.
	ErrNotFound = errors.New("ledger: run not found")
	// ErrInvalidInput indicates a Record failed validation before insert.
	ErrInvalidInput = errors.New("ledger: invalid input")
)

// Record is one completed run, as stored.
type Record struct {
	ID         string
	InputHash  string
	ConfigHash string
	Stats      suppress.Stats
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store persists and retrieves run Records. SQLite and Postgres sinks
// both implement this over database/sql; callers code against the
// interface, never the driver.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
	Ping(ctx context.Context) error
	Close() error
}

// sqlStore is the shared database/sql implementation; sqlite.go and
// pg.go each supply a constructor that opens the right driver and hands
// back this same type, differing only in placeholder syntax.
type sqlStore struct {
	db          *sql.DB
	placeholder func(n int) string // 1-indexed positional placeholder, e.g. "?" or "$1"
}

func (s *sqlStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS suppression_runs (
		id TEXT PRIMARY KEY,
		input_hash TEXT NOT NULL,
		config_hash TEXT NOT NULL,
		stats_json TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL
	)`)
	return err
}

func (s *sqlStore) Put(ctx context.Context, rec Record) error {
	if rec.ID == "" || rec.InputHash == "" || rec.ConfigHash == "" {
		return fmt.Errorf("%w: id, input_hash, and config_hash are required", ErrInvalidInput)
	}
	statsJSON, err := json.Marshal(rec.Stats)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	q := fmt.Sprintf(
		`INSERT INTO suppression_runs(id, input_hash, config_hash, stats_json, started_at, finished_at) VALUES(%s,%s,%s,%s,%s,%s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5), s.placeholder(6),
	)
	_, err = s.db.ExecContext(ctx, q, rec.ID, rec.InputHash, rec.ConfigHash, string(statsJSON), rec.StartedAt.UTC(), rec.FinishedAt.UTC())
	return err
}

func (s *sqlStore) Get(ctx context.Context, id string) (Record, error) {
	q := fmt.Sprintf(`SELECT id, input_hash, config_hash, stats_json, started_at, finished_at FROM suppression_runs WHERE id = %s`, s.placeholder(1))
	row := s.db.QueryRowContext(ctx, q, id)
	return scanRecord(row)
}

func (s *sqlStore) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf(`SELECT id, input_hash, config_hash, stats_json, started_at, finished_at FROM suppression_runs ORDER BY started_at DESC LIMIT %s`, s.placeholder(1))
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	var statsJSON string
	if err := row.Scan(&rec.ID, &rec.InputHash, &rec.ConfigHash, &statsJSON, &rec.StartedAt, &rec.FinishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(statsJSON), &rec.Stats); err != nil {
		return Record{}, fmt.Errorf("ledger: decoding stats: %w", err)
	}
	return rec, nil
}
