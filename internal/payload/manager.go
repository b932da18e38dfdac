package payload

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Manager ranks payloads per category and records their successes. It owns
// its own SQLite database, separate from scan history, so rankings survive
// a scan reset.
type Manager struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the payload database at dbPath and seeds
// empty tables from the embedded defaults. Use ":memory:" for testing.
func Open(dbPath string) (*Manager, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("payload: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("payload: ping database: %w", err)
	}

	m := &Manager{db: db, log: log.With().Str("component", "payload").Logger()}
	if err := m.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	seeds, err := DefaultSeeds()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := m.seedIfEmpty(context.Background(), seeds); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *Manager) migrate() error {
	stmts := []string{`
		CREATE TABLE IF NOT EXISTS wordlist (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			type    TEXT NOT NULL,
			payload TEXT NOT NULL,
			count   INTEGER NOT NULL DEFAULT 0,
			UNIQUE(type, payload)
		);`, `
		CREATE INDEX IF NOT EXISTS idx_wordlist_rank ON wordlist(type, count DESC, id);`, `
		CREATE TABLE IF NOT EXISTS detect (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			type          TEXT NOT NULL,
			detect_string TEXT NOT NULL,
			UNIQUE(type, detect_string)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := m.db.Exec(stmt); err != nil {
			return fmt.Errorf("payload: create table: %w", err)
		}
	}
	return nil
}

func (m *Manager) seedIfEmpty(ctx context.Context, seeds *Seeds) error {
	var n int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wordlist`).Scan(&n); err != nil {
		return fmt.Errorf("payload: count wordlist: %w", err)
	}
	if n == 0 {
		for _, list := range seeds.listNames() {
			if _, err := m.Add(ctx, list, seeds.Wordlists[list]); err != nil {
				return err
			}
		}
	}

	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM detect`).Scan(&n); err != nil {
		return fmt.Errorf("payload: count detect: %w", err)
	}
	if n == 0 {
		for _, list := range seeds.detectNames() {
			if _, err := m.AddSignatures(ctx, list, seeds.Detect[list]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Add inserts values into the permanent list for category with a zero
// count. Existing values are left untouched. It returns how many were new.
func (m *Manager) Add(ctx context.Context, category string, values []string) (int, error) {
	return m.insertOrIgnore(ctx,
		`INSERT OR IGNORE INTO wordlist (type, payload, count) VALUES (?, ?, 0)`, category, values)
}

// AddSignatures inserts content-detection strings for category.
func (m *Manager) AddSignatures(ctx context.Context, category string, signatures []string) (int, error) {
	return m.insertOrIgnore(ctx,
		`INSERT OR IGNORE INTO detect (type, detect_string) VALUES (?, ?)`, category, signatures)
}

func (m *Manager) insertOrIgnore(ctx context.Context, query, category string, values []string) (int, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("payload: begin: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		res, err := tx.ExecContext(ctx, query, category, v)
		if err != nil {
			m.log.Warn().Err(err).Str("category", category).Str("value", v).Msg("insert skipped")
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("payload: commit: %w", err)
	}
	return inserted, nil
}

// Ranked returns the payloads of category in the order they should be
// tried: staged candidates first in staging order, then permanent payloads
// by descending count with ties broken by insertion order. A value present
// in both appears once, in its staged position.
func (m *Manager) Ranked(ctx context.Context, category string) ([]Payload, error) {
	staged, err := m.staged(ctx, category)
	if err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT id, payload, count FROM wordlist WHERE type = ? ORDER BY count DESC, id ASC`, category)
	if err != nil {
		return nil, fmt.Errorf("payload: rank %s: %w", category, err)
	}
	defer rows.Close()

	seen := make(map[string]bool, len(staged))
	out := make([]Payload, 0, len(staged))
	for _, p := range staged {
		if !seen[p.Value] {
			seen[p.Value] = true
			out = append(out, p)
		}
	}
	for rows.Next() {
		p := Payload{Category: category}
		if err := rows.Scan(&p.ID, &p.Value, &p.Count); err != nil {
			return nil, fmt.Errorf("payload: rank row: %w", err)
		}
		if seen[p.Value] {
			continue
		}
		seen[p.Value] = true
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payload: iterate %s: %w", category, err)
	}
	return out, nil
}

func (m *Manager) staged(ctx context.Context, category string) ([]Payload, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, text FROM generated_text WHERE type = ? ORDER BY id`, category)
	if err != nil {
		if isMissingTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("payload: read staged %s: %w", category, err)
	}
	defer rows.Close()

	var out []Payload
	for rows.Next() {
		p := Payload{Category: category, Staged: true}
		if err := rows.Scan(&p.ID, &p.Value); err != nil {
			return nil, fmt.Errorf("payload: staged row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Top returns at most limit ranked values of category; limit <= 0 means all.
func (m *Manager) Top(ctx context.Context, category string, limit int) ([]string, error) {
	ranked, err := m.Ranked(ctx, category)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return Values(ranked), nil
}

// Words returns every ranked value of an enumeration list such as
// ListDirectory or ListCSRF.
func (m *Manager) Words(ctx context.Context, list string) ([]string, error) {
	return m.Top(ctx, list, 0)
}

// RecordSuccess increments the count of value in category, inserting it
// with a count of one when it is new (for example a generated candidate).
func (m *Manager) RecordSuccess(ctx context.Context, category, value string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO wordlist (type, payload, count) VALUES (?, ?, 1)
		ON CONFLICT(type, payload) DO UPDATE SET count = count + 1`,
		category, value)
	if err != nil {
		return fmt.Errorf("payload: record success: %w", err)
	}
	return nil
}

// ResetCounts zeroes every success count without deleting any payload.
func (m *Manager) ResetCounts(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, `UPDATE wordlist SET count = 0`); err != nil {
		return fmt.Errorf("payload: reset counts: %w", err)
	}
	return nil
}

// Stage records generated candidates for category. They are merged ahead of
// proven payloads by Ranked until PurgeStaged drops them.
func (m *Manager) Stage(ctx context.Context, category string, candidates []string) (int, error) {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS generated_text (
			id   INTEGER PRIMARY KEY AUTOINCREMENT,
			text TEXT NOT NULL,
			type TEXT NOT NULL,
			UNIQUE(type, text)
		);`)
	if err != nil {
		return 0, fmt.Errorf("payload: create staging table: %w", err)
	}
	return m.insertOrIgnore(ctx,
		`INSERT OR IGNORE INTO generated_text (type, text) VALUES (?, ?)`, category, candidates)
}

// Generate feeds the top seedLimit payloads of category to g and stages
// whatever it returns.
func (m *Manager) Generate(ctx context.Context, g Generator, category string, seedLimit int) (int, error) {
	seeds, err := m.Top(ctx, category, seedLimit)
	if err != nil {
		return 0, err
	}
	if len(seeds) == 0 {
		return 0, nil
	}
	candidates, err := g.Generate(ctx, category, seeds)
	if err != nil {
		return 0, fmt.Errorf("payload: generate %s: %w", category, err)
	}
	return m.Stage(ctx, category, candidates)
}

// PurgeStaged drops the staging table. Candidates that produced findings
// were already copied into the permanent list by RecordSuccess.
func (m *Manager) PurgeStaged(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, `DROP TABLE IF EXISTS generated_text`); err != nil {
		return fmt.Errorf("payload: purge staged: %w", err)
	}
	return nil
}

// Signatures returns the content-detection strings for category.
func (m *Manager) Signatures(ctx context.Context, category string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT detect_string FROM detect WHERE type = ? ORDER BY id`, category)
	if err != nil {
		return nil, fmt.Errorf("payload: signatures %s: %w", category, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("payload: signature row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
