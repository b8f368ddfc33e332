// Package storage provides SQLite-backed persistence for the bounded
// data-point time series and the recent interrupt history.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Tankman61/VibeTrade/internal/models"
)

// Store wraps a SQLite database for all persistence operations. History is
// a bounded rolling window, not an audit-grade ledger: caps are enforced
// on insert and old rows are evicted.
type Store struct {
	db            *sql.DB
	maxPoints     int
	maxInterrupts int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/riskconsole/data.db.
func New(maxPoints, maxInterrupts int, dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "riskconsole", "data.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Store{db: db, maxPoints: maxPoints, maxInterrupts: maxInterrupts}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS data_points (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			source    TEXT NOT NULL,
			metric    TEXT NOT NULL,
			value     REAL NOT NULL,
			synthetic INTEGER NOT NULL DEFAULT 0,
			ts        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_points_source_ts ON data_points(source, ts DESC)`,
		`CREATE TABLE IF NOT EXISTS interrupts (
			id         TEXT PRIMARY KEY,
			score      REAL NOT NULL,
			roast_text TEXT NOT NULL,
			audio_ref  TEXT NOT NULL,
			forced     INTEGER NOT NULL DEFAULT 0,
			fired_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interrupts_fired_at ON interrupts(fired_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AddPoint appends one data point and evicts the oldest rows beyond the cap.
func (s *Store) AddPoint(point *models.DataPoint) error {
	if err := point.Validate(); err != nil {
		return fmt.Errorf("invalid data point: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO data_points (source, metric, value, synthetic, ts)
		VALUES (?,?,?,?,?)`,
		string(point.Source), point.Metric, point.Value,
		boolToInt(point.Synthetic), point.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert data point: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM data_points WHERE id NOT IN (
			SELECT id FROM data_points ORDER BY ts DESC, id DESC LIMIT ?
		)`, s.maxPoints); err != nil {
		return fmt.Errorf("failed to enforce point cap: %w", err)
	}

	return tx.Commit()
}

// RecentPoints returns up to limit points for one source, newest first.
func (s *Store) RecentPoints(source models.Source, limit int) ([]models.DataPoint, error) {
	rows, err := s.db.Query(`
		SELECT source, metric, value, synthetic, ts
		FROM data_points WHERE source = ?
		ORDER BY ts DESC, id DESC LIMIT ?`, string(source), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query data points: %w", err)
	}
	defer rows.Close()

	var points []models.DataPoint
	for rows.Next() {
		var p models.DataPoint
		var src string
		var synthetic int
		var ts int64
		if err := rows.Scan(&src, &p.Metric, &p.Value, &synthetic, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan data point: %w", err)
		}
		p.Source = models.Source(src)
		p.Synthetic = synthetic != 0
		p.Timestamp = time.Unix(0, ts)
		points = append(points, p)
	}
	return points, rows.Err()
}

// CountPoints returns the total number of stored points.
func (s *Store) CountPoints() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM data_points`).Scan(&n)
	return n, err
}

// AddInterrupt records one fired interrupt and evicts beyond the cap.
func (s *Store) AddInterrupt(ev *models.InterruptEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO interrupts (id, score, roast_text, audio_ref, forced, fired_at)
		VALUES (?,?,?,?,?,?)`,
		ev.ID, ev.Score, ev.RoastText, ev.AudioRef, boolToInt(ev.Forced), ev.FiredAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert interrupt: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM interrupts WHERE id NOT IN (
			SELECT id FROM interrupts ORDER BY fired_at DESC LIMIT ?
		)`, s.maxInterrupts); err != nil {
		return fmt.Errorf("failed to enforce interrupt cap: %w", err)
	}

	return tx.Commit()
}

// RecentInterrupts returns up to limit interrupts, newest first.
func (s *Store) RecentInterrupts(limit int) ([]models.InterruptEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, score, roast_text, audio_ref, forced, fired_at
		FROM interrupts ORDER BY fired_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query interrupts: %w", err)
	}
	defer rows.Close()

	var events []models.InterruptEvent
	for rows.Next() {
		var ev models.InterruptEvent
		var forced int
		var firedAt int64
		if err := rows.Scan(&ev.ID, &ev.Score, &ev.RoastText, &ev.AudioRef, &forced, &firedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interrupt: %w", err)
		}
		ev.Forced = forced != 0
		ev.FiredAt = time.Unix(0, firedAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountInterrupts returns the number of stored interrupts.
func (s *Store) CountInterrupts() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM interrupts`).Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
