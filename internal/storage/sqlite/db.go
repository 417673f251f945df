// Package sqlite persists scan runs and their extracted records.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"duat/internal/domain"
	"duat/internal/scan"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Scan kinds.
const (
	KindDelivery = "delivery"
	KindManpower = "manpower"
)

// ScanRun describes one completed folder scan.
type ScanRun struct {
	ID          string      `json:"id"`
	Kind        string      `json:"kind"`
	Folder      string      `json:"folder"`
	Files       int         `json:"files"`
	Processed   int         `json:"processed"`
	RecordCount int         `json:"record_count"`
	MaxWeek     int         `json:"max_week"`
	Skipped     []scan.Skip `json:"skipped"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
}

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS scan_runs (
		id           TEXT PRIMARY KEY,
		kind         TEXT NOT NULL,
		folder       TEXT NOT NULL,
		files        INTEGER NOT NULL DEFAULT 0,
		processed    INTEGER NOT NULL DEFAULT 0,
		record_count INTEGER NOT NULL DEFAULT 0,
		max_week     INTEGER NOT NULL DEFAULT 0,
		skipped      TEXT NOT NULL DEFAULT '[]',
		started_at   DATETIME NOT NULL,
		finished_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scan_runs_kind_finished ON scan_runs(kind, finished_at);

	CREATE TABLE IF NOT EXISTS delivery_records (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id    TEXT NOT NULL,
		full_date TEXT DEFAULT '',
		project   TEXT DEFAULT '',
		quantity  REAL NOT NULL DEFAULT 0,
		week      TEXT DEFAULT '',
		year      TEXT DEFAULT '',
		line      TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_delivery_run ON delivery_records(run_id);
	CREATE INDEX IF NOT EXISTS idx_delivery_project ON delivery_records(project);

	CREATE TABLE IF NOT EXISTS shift_records (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		date        TEXT DEFAULT '',
		day_of_week TEXT DEFAULT '',
		shift       TEXT DEFAULT '',
		week        TEXT DEFAULT '',
		year        TEXT DEFAULT '',
		job_count   INTEGER NOT NULL DEFAULT 0,
		data        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_shift_run ON shift_records(run_id);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, err
	}

	// Databases created before scan_runs carried max_week get the column
	// added in place. Fresh databases already have it from the schema above.
	var colCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('scan_runs') WHERE name = 'max_week'`).Scan(&colCount); err != nil {
		db.Close()
		return nil, err
	}
	if colCount == 0 {
		if _, err := db.Exec(`ALTER TABLE scan_runs ADD COLUMN max_week INTEGER NOT NULL DEFAULT 0`); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

func insertRun(tx *sql.Tx, run *ScanRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	skipped := run.Skipped
	if skipped == nil {
		skipped = []scan.Skip{}
	}
	data, err := json.Marshal(skipped)
	if err != nil {
		return fmt.Errorf("encode skip log: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO scan_runs (id, kind, folder, files, processed, record_count, max_week, skipped, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Folder, run.Files, run.Processed, run.RecordCount, run.MaxWeek,
		string(data), run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	return err
}

// SaveDeliveryRun stores run and its records in one transaction. An empty
// run ID is filled with a new UUID. The stored run is returned.
func SaveDeliveryRun(db *sql.DB, run ScanRun, records []domain.DeliveryRecord) (ScanRun, error) {
	run.Kind = KindDelivery
	run.RecordCount = len(records)

	tx, err := db.Begin()
	if err != nil {
		return run, err
	}
	defer tx.Rollback()

	if err := insertRun(tx, &run); err != nil {
		return run, err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO delivery_records (run_id, full_date, project, quantity, week, year, line)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return run, err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(run.ID, r.FullDate, r.Project, r.Quantity, r.Week, r.Year, r.Line); err != nil {
			return run, err
		}
	}
	return run, tx.Commit()
}

// SaveManpowerRun stores run and its shift records in one transaction. Each
// record is kept whole as JSON next to its indexed columns.
func SaveManpowerRun(db *sql.DB, run ScanRun, records []domain.ShiftRecord) (ScanRun, error) {
	run.Kind = KindManpower
	run.RecordCount = len(records)

	tx, err := db.Begin()
	if err != nil {
		return run, err
	}
	defer tx.Rollback()

	if err := insertRun(tx, &run); err != nil {
		return run, err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO shift_records (run_id, date, day_of_week, shift, week, year, job_count, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return run, err
	}
	defer stmt.Close()

	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return run, fmt.Errorf("encode shift record %s %s: %w", r.Date, r.Shift, err)
		}
		if _, err := stmt.Exec(run.ID, r.Date, r.DayOfWeek, r.Shift, r.Week, r.Year, len(r.Jobs), string(data)); err != nil {
			return run, err
		}
	}
	return run, tx.Commit()
}

const runColumns = `id, kind, folder, files, processed, record_count, max_week, skipped, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (ScanRun, error) {
	var run ScanRun
	var skipped string
	err := row.Scan(
		&run.ID, &run.Kind, &run.Folder, &run.Files, &run.Processed, &run.RecordCount,
		&run.MaxWeek, &skipped, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return run, err
	}
	if err := json.Unmarshal([]byte(skipped), &run.Skipped); err != nil {
		return run, fmt.Errorf("decode skip log of run %s: %w", run.ID, err)
	}
	return run, nil
}

// GetScanRun loads one run by id. It returns sql.ErrNoRows when absent.
func GetScanRun(db *sql.DB, id string) (ScanRun, error) {
	return scanRun(db.QueryRow(`SELECT `+runColumns+` FROM scan_runs WHERE id = ?`, id))
}

// GetLatestRun returns the most recently finished run of kind.
func GetLatestRun(db *sql.DB, kind string) (ScanRun, error) {
	return scanRun(db.QueryRow(
		`SELECT `+runColumns+` FROM scan_runs WHERE kind = ? ORDER BY finished_at DESC, rowid DESC LIMIT 1`,
		kind,
	))
}

// ListScanRuns returns up to limit runs, newest first.
func ListScanRuns(db *sql.DB, limit int) ([]ScanRun, error) {
	rows, err := db.Query(
		`SELECT `+runColumns+` FROM scan_runs ORDER BY finished_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ScanRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetDeliveryRecords returns the records of one run in insertion order.
func GetDeliveryRecords(db *sql.DB, runID string) ([]domain.DeliveryRecord, error) {
	rows, err := db.Query(
		`SELECT full_date, project, quantity, week, year, line
		 FROM delivery_records WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []domain.DeliveryRecord{}
	for rows.Next() {
		var r domain.DeliveryRecord
		if err := rows.Scan(&r.FullDate, &r.Project, &r.Quantity, &r.Week, &r.Year, &r.Line); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetShiftRecords returns the shift records of one run in insertion order.
func GetShiftRecords(db *sql.DB, runID string) ([]domain.ShiftRecord, error) {
	rows, err := db.Query(`SELECT data FROM shift_records WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []domain.ShiftRecord{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r domain.ShiftRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("decode shift record of run %s: %w", runID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteRunsBefore removes runs finished before cutoff along with their
// records, returning how many runs were removed.
func DeleteRunsBefore(db *sql.DB, cutoff time.Time) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	cutoff = cutoff.UTC()
	for _, q := range []string{
		`DELETE FROM delivery_records WHERE run_id IN (SELECT id FROM scan_runs WHERE finished_at < ?)`,
		`DELETE FROM shift_records WHERE run_id IN (SELECT id FROM scan_runs WHERE finished_at < ?)`,
	} {
		if _, err := tx.Exec(q, cutoff); err != nil {
			return 0, err
		}
	}
	res, err := tx.Exec(`DELETE FROM scan_runs WHERE finished_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
