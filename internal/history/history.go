// Package history persists completed dispatches to SQLite so they can be
// listed and inspected after the fact.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mattjoyce/ipfsbridge/internal/log"
	"github.com/mattjoyce/ipfsbridge/pkg/dispatch"
	"github.com/mattjoyce/ipfsbridge/pkg/op"
)

const (
	maxStderrBytes = 64 * 1024
	defaultLimit   = 50
	maxLimit       = 1000

	// Fixed width so timestamps order lexically.
	timeFormat = "2006-01-02T15:04:05.000000000Z"
)

// ErrNotFound is returned by Get for an unknown dispatch ID.
var ErrNotFound = errors.New("dispatch not found")

// Store implements dispatch.Recorder on top of the dispatch_log table.
type Store struct {
	db *sql.DB
}

var _ dispatch.Recorder = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Op          op.ID
	Status      dispatch.Status
	Fingerprint string
	Since       time.Time
	Limit       int
}

// Record stores rec. Stdout is not kept; stderr is capped.
func (s *Store) Record(ctx context.Context, rec dispatch.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id is empty")
	}

	stderr := capStderr(rec.Stderr)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO dispatch_log(
  id, op, line, fingerprint, runtime, status, exit_code, error, stderr, truncated,
  started_at, completed_at, duration_ms
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, rec.ID, string(rec.Op), rec.Line, rec.Fingerprint, rec.Runtime, string(rec.Status), rec.ExitCode,
		nullable(rec.Error), nullable(stderr), rec.Truncated,
		rec.StartedAt.UTC().Format(timeFormat), rec.CompletedAt.UTC().Format(timeFormat),
		rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert dispatch log: %w", err)
	}
	return nil
}

// capStderr cuts s to maxStderrBytes without splitting a UTF-8 sequence.
func capStderr(s string) string {
	if len(s) <= maxStderrBytes {
		return s
	}
	n := maxStderrBytes
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// List returns matching records, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]dispatch.Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Op != "" {
		where = append(where, "op = ?")
		args = append(args, string(f.Op))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Fingerprint != "" {
		where = append(where, "fingerprint = ?")
		args = append(args, f.Fingerprint)
	}
	if !f.Since.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, f.Since.UTC().Format(timeFormat))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	q := `SELECT ` + columns + ` FROM dispatch_log`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY started_at DESC, rowid DESC LIMIT ?;"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list dispatch log: %w", err)
	}
	defer rows.Close()

	var out []dispatch.Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatch log: %w", err)
	}
	return out, nil
}

// Get returns one record by ID.
func (s *Store) Get(ctx context.Context, id string) (*dispatch.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM dispatch_log WHERE id = ?;`, id)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Prune deletes records that started before cutoff and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dispatch_log WHERE started_at < ?;`,
		cutoff.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("prune dispatch log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune dispatch log: %w", err)
	}
	return n, nil
}

// RunPruner deletes records older than retention every interval until ctx
// is done. A zero retention disables pruning.
func (s *Store) RunPruner(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	logger := log.WithComponent("history")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := s.Prune(ctx, time.Now().Add(-retention))
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn("prune failed", "error", err)
		case n > 0:
			logger.Info("pruned dispatch history", "deleted", n, "retention", retention.String())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

const columns = `id, op, line, fingerprint, runtime, status, exit_code, error, stderr, truncated,
  started_at, completed_at, duration_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (dispatch.Record, error) {
	var (
		rec        dispatch.Record
		opS        string
		statusS    string
		errS       sql.NullString
		stderr     sql.NullString
		startedAt  string
		finishedAt string
		durationMS int64
	)
	err := row.Scan(&rec.ID, &opS, &rec.Line, &rec.Fingerprint, &rec.Runtime, &statusS, &rec.ExitCode,
		&errS, &stderr, &rec.Truncated, &startedAt, &finishedAt, &durationMS)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan dispatch log: %w", err)
	}

	rec.Op = op.ID(opS)
	rec.Status = dispatch.Status(statusS)
	rec.Error = errS.String
	rec.Stderr = stderr.String
	rec.Len = len(rec.Line)
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		rec.StartedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, finishedAt); err == nil {
		rec.CompletedAt = t
	}
	return rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
