package jobsource

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/grovetools/rulesync/logging"
	"github.com/grovetools/rulesync/pkg/models"
)

//go:embed schema.sql
var schemaSQL string

// SQLite polls a jobs table. Every write bumps the row's version, so a poll
// returns exactly the rows changed since the previous one.
type SQLite struct {
	db       *sql.DB
	interval time.Duration
	clock    clock.WithTicker
	log      *logrus.Entry

	mu   sync.Mutex
	seen int64
}

// OpenSQLite opens or creates the job database at path.
func OpenSQLite(path string, interval time.Duration) (*SQLite, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to job database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply job schema: %w", err)
	}

	return &SQLite{
		db:       db,
		interval: interval,
		clock:    clock.RealClock{},
		log:      logging.NewLogger("jobsource.sqlite"),
	}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Record writes ev. Fields ev leaves nil keep their stored value.
func (s *SQLite) Record(ctx context.Context, ev models.JobEvent) error {
	var symlinks sql.NullString
	if ev.Symlinks != nil {
		data, err := json.Marshal(ev.Symlinks)
		if err != nil {
			return fmt.Errorf("failed to encode symlinks: %w", err)
		}
		symlinks = sql.NullString{String: string(data), Valid: true}
	}
	var updatedAt sql.NullInt64
	if ev.Timestamp != nil {
		updatedAt = sql.NullInt64{Int64: ev.Timestamp.UnixMilli(), Valid: true}
	}
	var status *string
	if ev.Status != nil {
		v := string(*ev.Status)
		status = &v
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO jobs (job_id, source_path, filename, status, current_phase, message, error, output_path, category, symlinks, updated_at, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(version), 0) + 1 FROM jobs))
ON CONFLICT(job_id) DO UPDATE SET
    source_path   = COALESCE(excluded.source_path, source_path),
    filename      = COALESCE(excluded.filename, filename),
    status        = COALESCE(excluded.status, status),
    current_phase = COALESCE(excluded.current_phase, current_phase),
    message       = COALESCE(excluded.message, message),
    error         = COALESCE(excluded.error, error),
    output_path   = COALESCE(excluded.output_path, output_path),
    category      = COALESCE(excluded.category, category),
    symlinks      = COALESCE(excluded.symlinks, symlinks),
    updated_at    = COALESCE(excluded.updated_at, updated_at),
    version       = excluded.version`,
		ev.JobID, ev.SourcePath, ev.Filename, status, ev.CurrentPhase, ev.Message,
		ev.Error, ev.OutputPath, ev.Category, symlinks, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to record job %s: %w", ev.JobID, err)
	}
	return nil
}

// Poll returns the jobs changed since the previous poll as full events.
func (s *SQLite) Poll(ctx context.Context) ([]models.JobEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
SELECT job_id, source_path, filename, status, current_phase, message, error, output_path, category, symlinks, updated_at, version
FROM jobs WHERE version > ? ORDER BY version`, s.seen)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var events []models.JobEvent
	for rows.Next() {
		var id string
		var sourcePath, filename, status, phase, message, errText sql.NullString
		var outputPath, category, symlinks sql.NullString
		var updatedAt sql.NullInt64
		var version int64
		if err := rows.Scan(&id, &sourcePath, &filename, &status, &phase, &message, &errText,
			&outputPath, &category, &symlinks, &updatedAt, &version); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}

		ev := models.JobEvent{
			JobID:        id,
			SourcePath:   nullString(sourcePath),
			Filename:     nullString(filename),
			CurrentPhase: nullString(phase),
			Message:      nullString(message),
			Error:        nullString(errText),
			OutputPath:   nullString(outputPath),
			Category:     nullString(category),
		}
		if status.Valid {
			ev.Status = models.Ptr(models.JobStatus(status.String))
		}
		if symlinks.Valid {
			if err := json.Unmarshal([]byte(symlinks.String), &ev.Symlinks); err != nil {
				s.log.WithError(err).WithField("job", id).Warn("Ignoring malformed symlinks")
			}
		}
		if updatedAt.Valid {
			ev.Timestamp = models.Ptr(time.UnixMilli(updatedAt.Int64).UTC())
		}
		events = append(events, ev)
		s.seen = version
	}
	return events, rows.Err()
}

// Run polls until ctx ends. Poll failures are logged and retried on the
// next tick.
func (s *SQLite) Run(ctx context.Context, publish func(models.JobEvent)) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		events, err := s.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.WithError(err).Warn("Job poll failed")
		}
		for _, ev := range events {
			publish(ev)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
		}
	}
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
