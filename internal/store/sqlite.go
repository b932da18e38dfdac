package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// itemTable describes a single-column discovery table.
type itemTable struct {
	table  string
	column string
}

var itemTables = map[string]itemTable{
	OutputDirectories: {"directories_discovered", "directory"},
	OutputFiles:       {"files_discovered", "file"},
	OutputPages:       {"pages_discovered", "page"},
}

const parametersTable = "parameters_discovered"

// SQLiteStore implements Store using SQLite via modernc.org/sqlite (pure Go).
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the scan database at dbPath.
// Use ":memory:" for testing.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive across calls and
	// serializes writers on file databases.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	s := &SQLiteStore{db: db, log: log.With().Str("component", "store").Logger()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{`
		CREATE TABLE IF NOT EXISTS scans (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			host      TEXT NOT NULL,
			port      INTEGER NOT NULL
		);`, `
		CREATE TABLE IF NOT EXISTS ` + parametersTable + ` (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			scan_id    INTEGER NOT NULL,
			method     TEXT NOT NULL,
			action     TEXT NOT NULL,
			parameters TEXT NOT NULL,
			param_key  TEXT NOT NULL,
			UNIQUE(scan_id, method, action, param_key)
		);`,
	}
	for _, t := range itemTables {
		stmts = append(stmts, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			scan_id INTEGER NOT NULL,
			%s      TEXT NOT NULL,
			UNIQUE(scan_id, %s)
		);`, t.table, t.column, t.column))
	}
	for _, c := range Categories() {
		stmts = append(stmts, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			scan_id   INTEGER NOT NULL,
			method    TEXT NOT NULL,
			page      TEXT NOT NULL,
			parameter TEXT NOT NULL,
			payload   TEXT NOT NULL,
			UNIQUE(scan_id, page, parameter)
		);`, c))
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: create table: %w", err)
		}
	}
	return nil
}

// NewScan creates a scan session row.
func (s *SQLiteStore) NewScan(ctx context.Context, host string, port int) (*Scan, error) {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scans (timestamp, host, port) VALUES (?, ?, ?)`,
		now.Format(time.RFC3339), host, port)
	if err != nil {
		return nil, fmt.Errorf("store: insert scan: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: scan id: %w", err)
	}
	return &Scan{ID: id, Host: host, Port: port, StartedAt: now}, nil
}

// Scan returns the scan with the given id, or (nil, nil) when absent.
func (s *SQLiteStore) Scan(ctx context.Context, id int64) (*Scan, error) {
	return s.loadScan(ctx, `SELECT id, timestamp, host, port FROM scans WHERE id = ?`, id)
}

// LatestScan returns the most recent scan, or (nil, nil) when there is none.
func (s *SQLiteStore) LatestScan(ctx context.Context) (*Scan, error) {
	return s.loadScan(ctx, `SELECT id, timestamp, host, port FROM scans ORDER BY id DESC LIMIT 1`)
}

func (s *SQLiteStore) loadScan(ctx context.Context, query string, args ...any) (*Scan, error) {
	var (
		scan Scan
		ts   string
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&scan.ID, &ts, &scan.Host, &scan.Port)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan row: %w", err)
	}
	scan.StartedAt, err = time.Parse(time.RFC3339, ts)
	if err != nil {
		return nil, fmt.Errorf("store: parse timestamp %q: %w", ts, err)
	}
	return &scan, nil
}

// Scans lists every scan, newest first.
func (s *SQLiteStore) Scans(ctx context.Context) ([]Scan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, timestamp, host, port FROM scans ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list scans: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		var (
			scan Scan
			ts   string
		)
		if err := rows.Scan(&scan.ID, &ts, &scan.Host, &scan.Port); err != nil {
			return nil, fmt.Errorf("store: scan row: %w", err)
		}
		scan.StartedAt, _ = time.Parse(time.RFC3339, ts)
		scans = append(scans, scan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate scans: %w", err)
	}
	return scans, nil
}

// insertEach runs one INSERT OR IGNORE per row inside a transaction and
// returns the indexes of the rows that were new. A row that fails is logged
// and skipped; only begin/commit failures are returned.
func (s *SQLiteStore) insertEach(ctx context.Context, table, query string, rows [][]any) ([]int, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin %s: %w", table, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: prepare %s: %w", table, err)
	}
	defer stmt.Close()

	var inserted []int
	for i, args := range rows {
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			s.log.Warn().Err(err).Str("table", table).Interface("row", args).Msg("insert skipped")
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted = append(inserted, i)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit %s: %w", table, err)
	}
	return inserted, nil
}

// RecordItems stores discovery output for one of the item outputs.
func (s *SQLiteStore) RecordItems(ctx context.Context, scanID int64, output string, items []string) (int, error) {
	t, ok := itemTables[output]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownOutput, output)
	}
	rows := make([][]any, 0, len(items))
	for _, item := range items {
		rows = append(rows, []any{scanID, item})
	}
	query := fmt.Sprintf(`INSERT OR IGNORE INTO %s (scan_id, %s) VALUES (?, ?)`, t.table, t.column)
	inserted, err := s.insertEach(ctx, t.table, query, rows)
	return len(inserted), err
}

// RecordInjectionPoints stores parser output.
func (s *SQLiteStore) RecordInjectionPoints(ctx context.Context, scanID int64, points []InjectionPoint) (int, error) {
	rows := make([][]any, 0, len(points))
	for _, p := range points {
		rows = append(rows, []any{scanID, p.Method, p.Action, encodeParams(p.Parameters), paramKey(p.Parameters)})
	}
	query := `INSERT OR IGNORE INTO ` + parametersTable +
		` (scan_id, method, action, parameters, param_key) VALUES (?, ?, ?, ?, ?)`
	inserted, err := s.insertEach(ctx, parametersTable, query, rows)
	return len(inserted), err
}

// RecordFindings stores findings for category and returns the new ones.
func (s *SQLiteStore) RecordFindings(ctx context.Context, scanID int64, category string, findings []Finding) ([]Finding, error) {
	if !isCategory(category) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOutput, category)
	}
	rows := make([][]any, 0, len(findings))
	for _, f := range findings {
		rows = append(rows, []any{scanID, f.Method, f.Page, f.Parameter, f.Payload})
	}
	query := fmt.Sprintf(`INSERT OR IGNORE INTO %s (scan_id, method, page, parameter, payload) VALUES (?, ?, ?, ?, ?)`, category)
	inserted, err := s.insertEach(ctx, category, query, rows)
	if err != nil {
		return nil, err
	}
	out := make([]Finding, 0, len(inserted))
	for _, i := range inserted {
		out = append(out, findings[i])
	}
	return out, nil
}

// ReadPriorOutput flattens the output of an earlier stage into strings.
// Injection points render as "METHOD action p1,p2" and findings as
// "METHOD page parameter".
func (s *SQLiteStore) ReadPriorOutput(ctx context.Context, scanID int64, output string) ([]string, error) {
	var query string
	switch {
	case output == OutputParameters:
		points, err := s.InjectionPoints(ctx, scanID)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(points))
		for _, p := range points {
			out = append(out, p.Method+" "+p.Action+" "+strings.Join(p.Parameters, ","))
		}
		return out, nil
	case isCategory(output):
		query = fmt.Sprintf(`SELECT method || ' ' || page || ' ' || parameter FROM %s WHERE scan_id = ? ORDER BY id`, output)
	default:
		t, ok := itemTables[output]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownOutput, output)
		}
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE scan_id = ? ORDER BY id`, t.column, t.table)
	}

	rows, err := s.db.QueryContext(ctx, query, scanID)
	if err != nil {
		if isMissingTable(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", output, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("store: read %s row: %w", output, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate %s: %w", output, err)
	}
	return out, nil
}

// InjectionPoints returns parser output for scanID in discovery order.
func (s *SQLiteStore) InjectionPoints(ctx context.Context, scanID int64) ([]InjectionPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT method, action, parameters FROM `+parametersTable+` WHERE scan_id = ? ORDER BY id`, scanID)
	if err != nil {
		if isMissingTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read injection points: %w", err)
	}
	defer rows.Close()

	var points []InjectionPoint
	for rows.Next() {
		var (
			p      InjectionPoint
			params string
		)
		if err := rows.Scan(&p.Method, &p.Action, &params); err != nil {
			return nil, fmt.Errorf("store: injection point row: %w", err)
		}
		if p.Parameters, err = decodeParams(params); err != nil {
			return nil, fmt.Errorf("store: injection point parameters %q: %w", params, err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate injection points: %w", err)
	}
	return points, nil
}

// Findings returns every finding of scanID grouped in category order.
func (s *SQLiteStore) Findings(ctx context.Context, scanID int64) ([]Finding, error) {
	var findings []Finding
	for _, c := range Categories() {
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
			`SELECT method, page, parameter, payload FROM %s WHERE scan_id = ? ORDER BY id`, c), scanID)
		if err != nil {
			if isMissingTable(err) {
				continue
			}
			return nil, fmt.Errorf("store: read %s: %w", c, err)
		}
		for rows.Next() {
			f := Finding{ScanID: scanID, Category: c}
			if err := rows.Scan(&f.Method, &f.Page, &f.Parameter, &f.Payload); err != nil {
				rows.Close()
				return nil, fmt.Errorf("store: %s row: %w", c, err)
			}
			findings = append(findings, f)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("store: iterate %s: %w", c, err)
		}
	}
	return findings, nil
}

// Counts returns the number of discovered directories, files, pages and
// injection points for scanID, keyed by output name.
func (s *SQLiteStore) Counts(ctx context.Context, scanID int64) (map[string]int, error) {
	tables := map[string]string{OutputParameters: parametersTable}
	for name, t := range itemTables {
		tables[name] = t.table
	}
	counts := make(map[string]int, len(tables))
	for name, table := range tables {
		var n int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE scan_id = ?`, scanID).Scan(&n)
		if err != nil && !isMissingTable(err) {
			return nil, fmt.Errorf("store: count %s: %w", table, err)
		}
		counts[name] = n
	}
	return counts, nil
}

// ResetScans deletes all scan history. Payload rankings live in a separate
// database and are unaffected.
func (s *SQLiteStore) ResetScans(ctx context.Context) error {
	tables := []string{"scans", parametersTable}
	for _, t := range itemTables {
		tables = append(tables, t.table)
	}
	tables = append(tables, Categories()...)

	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+t); err != nil && !isMissingTable(err) {
			return fmt.Errorf("store: reset %s: %w", t, err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func isCategory(name string) bool {
	for _, c := range Categories() {
		if c == name {
			return true
		}
	}
	return false
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
