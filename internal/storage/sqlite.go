package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"chime/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) SaveTriggerState(ctx context.Context, job string, state json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trigger_state(job, state, updated_at) VALUES(?,?,?)
		 ON CONFLICT(job) DO UPDATE SET state=excluded.state, updated_at=excluded.updated_at`,
		job, string(state), time.Now().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) LoadTriggerState(ctx context.Context, job string) (json.RawMessage, bool, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM trigger_state WHERE job = ?`, job,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return json.RawMessage(state), true, nil
}

func (s *sqliteStore) DeleteTriggerState(ctx context.Context, job string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM trigger_state WHERE job = ?`, job)
	return err
}

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(job, fire_time, started, took_ms, err) VALUES(?,?,?,?,?)`,
		r.Job, r.FireTime.Format(time.RFC3339Nano), r.Started.Format(time.RFC3339Nano),
		r.Took.Milliseconds(), nullStr(r.Error),
	)
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, job string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT job, fire_time, started, took_ms, err FROM runs`
	args := []any{}
	if job != "" {
		q += ` WHERE job = ?`
		args = append(args, job)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var fire, started string
		var tookMS int64
		var errStr sql.NullString
		if err := rows.Scan(&r.Job, &fire, &started, &tookMS, &errStr); err != nil {
			return nil, err
		}
		if r.FireTime, err = time.Parse(time.RFC3339Nano, fire); err != nil {
			return nil, fmt.Errorf("parse fire_time: %w", err)
		}
		if r.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started: %w", err)
		}
		r.Took = time.Duration(tookMS) * time.Millisecond
		r.Error = errStr.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Oldest first, matching the file driver.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
