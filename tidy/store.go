package tidy

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists plans and corrections in a local SQLite database.
// Methods are safe for concurrent use within one process.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

const schema = `
CREATE TABLE IF NOT EXISTS plans (
	id TEXT PRIMARY KEY,
	source_path TEXT NOT NULL,
	action TEXT NOT NULL,
	destination TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	domain TEXT NOT NULL DEFAULT '',
	subfolder TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL DEFAULT 0,
	reason TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT 'rules',
	status TEXT NOT NULL DEFAULT 'pending',
	size_bytes INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	executed_at TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_plans_status ON plans(status);
CREATE INDEX IF NOT EXISTS idx_plans_source_path ON plans(source_path);
CREATE INDEX IF NOT EXISTS idx_plans_created_at ON plans(created_at);

CREATE TABLE IF NOT EXISTS corrections (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	filename TEXT NOT NULL,
	pattern TEXT NOT NULL DEFAULT '',
	keywords TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	domain TEXT NOT NULL DEFAULT '',
	subfolder TEXT NOT NULL DEFAULT '',
	times_applied INTEGER NOT NULL DEFAULT 0,
	last_applied TEXT NOT NULL DEFAULT ''
);
`

const planColumns = `id, source_path, action, destination, category, domain, subfolder,
	confidence, reason, source, status, size_bytes, created_at, executed_at, error`

// NewStore opens (or creates) the database at dbPath and ensures the
// schema exists.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database dir: %w", err)
	}
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Timestamps are stored as RFC3339 UTC text so lexicographic comparison
// in SQL matches chronological order.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SavePlan inserts or replaces a plan, filling in the ID, status and
// creation time when absent.
func (s *Store) SavePlan(p *Plan) error {
	if p.ID == "" {
		p.ID = NewPlanID()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT OR REPLACE INTO plans
		(`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SourcePath, p.Action, p.Destination, p.Category, p.Domain, p.Subfolder,
		p.Confidence, p.Reason, p.Source, p.Status, p.SizeBytes,
		formatTime(p.CreatedAt), formatTime(p.ExecutedAt), p.Error)
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*Plan, error) {
	var p Plan
	var createdAt, executedAt string
	err := row.Scan(&p.ID, &p.SourcePath, &p.Action, &p.Destination, &p.Category,
		&p.Domain, &p.Subfolder, &p.Confidence, &p.Reason, &p.Source, &p.Status,
		&p.SizeBytes, &createdAt, &executedAt, &p.Error)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.ExecutedAt = parseTime(executedAt)
	return &p, nil
}

// Plan returns the plan with the given ID, or nil when none exists.
func (s *Store) Plan(id string) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRow(`SELECT `+planColumns+` FROM plans WHERE id = ?`, id)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	return p, nil
}

// PlanBySource returns the most recent plan for the given source path,
// or nil when none exists.
func (s *Store) PlanBySource(path string) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRow(`SELECT `+planColumns+` FROM plans
		WHERE source_path = ? ORDER BY created_at DESC LIMIT 1`, path)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan by source: %w", err)
	}
	return p, nil
}

// PlansByStatus returns all plans with the given status, oldest first.
func (s *Store) PlansByStatus(status string) ([]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT `+planColumns+` FROM plans
		WHERE status = ? ORDER BY created_at ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()
	return collectPlans(rows)
}

// History returns up to limit plans, newest first, optionally filtered
// by status.
func (s *Store) History(limit int, status string) ([]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query := `SELECT ` + planColumns + ` FROM plans`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()
	return collectPlans(rows)
}

func collectPlans(rows *sql.Rows) ([]Plan, error) {
	var plans []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read plans: %w", err)
	}
	return plans, nil
}

// SetStatus updates a plan's status and error message. Executed plans
// also get their execution time recorded.
func (s *Store) SetStatus(id, status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res sql.Result
	var err error
	if status == StatusExecuted {
		res, err = s.db.Exec(`UPDATE plans SET status = ?, error = ?, executed_at = ? WHERE id = ?`,
			status, errMsg, formatTime(time.Now()), id)
	} else {
		res, err = s.db.Exec(`UPDATE plans SET status = ?, error = ? WHERE id = ?`,
			status, errMsg, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update plan status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update plan status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("plan %s not found", id)
	}
	return nil
}

// PendingSummary aggregates the pending plans.
func (s *Store) PendingSummary() (*Summary, error) {
	plans, err := s.PlansByStatus(StatusPending)
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		ByAction:   make(map[string]int),
		ByDomain:   make(map[string]int),
		ByCategory: make(map[string]int),
	}
	for _, p := range plans {
		sum.Total++
		sum.ByAction[p.Action]++
		if p.Domain != "" {
			sum.ByDomain[p.Domain]++
		}
		if p.Category != "" {
			sum.ByCategory[p.Category]++
		}
		if p.Action == ActionDelete {
			sum.BytesFreed += p.SizeBytes
		}
	}
	return sum, nil
}

// Cleanup deletes executed, rejected and failed plans older than the
// given number of days and returns how many were removed.
func (s *Store) Cleanup(olderThanDays int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := formatTime(time.Now().AddDate(0, 0, -olderThanDays))
	res, err := s.db.Exec(`DELETE FROM plans
		WHERE status IN (?, ?, ?) AND created_at < ?`,
		StatusExecuted, StatusRejected, StatusFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up plans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clean up plans: %w", err)
	}
	return n, nil
}

// SaveCorrection inserts or replaces a learned correction.
func (s *Store) SaveCorrection(c *Correction) error {
	if c.ID == "" {
		c.ID = NewPlanID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT OR REPLACE INTO corrections
		(id, created_at, filename, pattern, keywords, action, domain, subfolder, times_applied, last_applied)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, formatTime(c.CreatedAt), c.Filename, c.Pattern,
		strings.Join(c.Keywords, ","), c.Action, c.Domain, c.Subfolder,
		c.TimesApplied, formatTime(c.LastApplied))
	if err != nil {
		return fmt.Errorf("failed to save correction: %w", err)
	}
	return nil
}

// Corrections returns all learned corrections, most used first.
func (s *Store) Corrections() ([]Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT id, created_at, filename, pattern, keywords,
		action, domain, subfolder, times_applied, last_applied
		FROM corrections ORDER BY times_applied DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query corrections: %w", err)
	}
	defer rows.Close()
	var corrections []Correction
	for rows.Next() {
		var c Correction
		var createdAt, keywords, lastApplied string
		if err := rows.Scan(&c.ID, &createdAt, &c.Filename, &c.Pattern, &keywords,
			&c.Action, &c.Domain, &c.Subfolder, &c.TimesApplied, &lastApplied); err != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", err)
		}
		c.CreatedAt = parseTime(createdAt)
		c.LastApplied = parseTime(lastApplied)
		if keywords != "" {
			c.Keywords = strings.Split(keywords, ",")
		}
		corrections = append(corrections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read corrections: %w", err)
	}
	return corrections, nil
}

// TouchCorrection bumps a correction's usage counter.
func (s *Store) TouchCorrection(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE corrections
		SET times_applied = times_applied + 1, last_applied = ? WHERE id = ?`,
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update correction: %w", err)
	}
	return nil
}
