package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vsharma-va/ABB-Final/internal/training"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding dataset metadata and the history of
// training runs. Trained models themselves are never persisted.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "intelliinspect.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// timeLayout is fixed-width so created_at columns sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func parseTime(field, v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", field, err)
	}
	return t, nil
}

// --- Datasets ---

func (s *Store) SaveDataset(d Dataset) error {
	_, err := s.db.Exec(`
		INSERT INTO datasets (id, original_name, created_at, total_records, total_columns, pass_rate_percent, earliest_timestamp, latest_timestamp, processed_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.OriginalName, formatTime(d.CreatedAt.UTC()), d.TotalRecords, d.TotalColumns,
		d.PassRatePercent, formatTime(d.Earliest), formatTime(d.Latest), d.ProcessedPath,
	)
	return err
}

const datasetColumns = `id, original_name, created_at, total_records, total_columns, pass_rate_percent, earliest_timestamp, latest_timestamp, processed_path`

type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(row scanner) (Dataset, error) {
	var d Dataset
	var createdAt, earliest, latest string
	if err := row.Scan(&d.ID, &d.OriginalName, &createdAt, &d.TotalRecords, &d.TotalColumns,
		&d.PassRatePercent, &earliest, &latest, &d.ProcessedPath); err != nil {
		return Dataset{}, err
	}
	var err error
	if d.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Dataset{}, err
	}
	if d.Earliest, err = parseTime("earliest_timestamp", earliest); err != nil {
		return Dataset{}, err
	}
	if d.Latest, err = parseTime("latest_timestamp", latest); err != nil {
		return Dataset{}, err
	}
	return d, nil
}

func (s *Store) GetDataset(id string) (Dataset, error) {
	d, err := scanDataset(s.db.QueryRow(`SELECT `+datasetColumns+` FROM datasets WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Dataset{}, ErrNotFound
	}
	return d, err
}

func (s *Store) ListDatasets(limit, offset int) ([]Dataset, error) {
	rows, err := s.db.Query(`SELECT `+datasetColumns+` FROM datasets ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// --- Training runs ---

func (s *Store) SaveTrainingRun(r TrainingRun) error {
	_, err := s.db.Exec(`
		INSERT INTO training_runs (id, created_at, model_kind, source, train_start, train_end, test_start, test_end, train_rows, test_rows, weight, duration_ms, status, error, metrics_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, formatTime(r.CreatedAt.UTC()), r.ModelKind, r.Source,
		formatTime(r.TrainStart), formatTime(r.TrainEnd), formatTime(r.TestStart), formatTime(r.TestEnd),
		r.TrainRows, r.TestRows, r.Weight, r.DurationMs, r.Status, r.Error, r.MetricsJSON,
	)
	return err
}

func (s *Store) ListTrainingRuns(limit, offset int) ([]TrainingRun, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, model_kind, source, train_start, train_end, test_start, test_end, train_rows, test_rows, weight, duration_ms, status, error, metrics_json
		FROM training_runs ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TrainingRun
	for rows.Next() {
		var r TrainingRun
		var createdAt, trainStart, trainEnd, testStart, testEnd string
		if err := rows.Scan(&r.ID, &createdAt, &r.ModelKind, &r.Source, &trainStart, &trainEnd, &testStart, &testEnd,
			&r.TrainRows, &r.TestRows, &r.Weight, &r.DurationMs, &r.Status, &r.Error, &r.MetricsJSON); err != nil {
			return nil, err
		}
		for _, f := range []struct {
			name string
			raw  string
			dst  *time.Time
		}{
			{"created_at", createdAt, &r.CreatedAt},
			{"train_start", trainStart, &r.TrainStart},
			{"train_end", trainEnd, &r.TrainEnd},
			{"test_start", testStart, &r.TestStart},
			{"test_end", testEnd, &r.TestEnd},
		} {
			t, err := parseTime(f.name, f.raw)
			if err != nil {
				return nil, err
			}
			*f.dst = t
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// RecordRun stores a training attempt. It satisfies training.RunRecorder.
func (s *Store) RecordRun(_ context.Context, run training.Run) error {
	r := TrainingRun{
		ID:         run.ID,
		CreatedAt:  run.StartedAt,
		ModelKind:  string(run.Kind),
		Source:     run.Source,
		TrainStart: run.Train.Start,
		TrainEnd:   run.Train.End,
		TestStart:  run.Test.Start,
		TestEnd:    run.Test.End,
		TrainRows:  run.TrainRows,
		TestRows:   run.TestRows,
		Weight:     run.Weight,
		DurationMs: run.Duration.Milliseconds(),
		Status:     "succeeded",
	}
	if run.Err != nil {
		r.Status = "failed"
		r.Error = run.Err.Error()
	}
	if run.Metrics != nil {
		b, err := json.Marshal(run.Metrics)
		if err != nil {
			return fmt.Errorf("marshalling metrics: %w", err)
		}
		r.MetricsJSON = string(b)
	}
	return s.SaveTrainingRun(r)
}
