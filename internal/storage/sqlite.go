package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"evtc_uploader/internal/model"
	"evtc_uploader/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
//
// All mutations are serialized through an internal mutex so the
// scanner's inserts and the worker's updates never interleave on the
// same row. Reads run concurrently against the same connection pool.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// InsertLog inserts a new log record and populates its ID.
func (s *SQLite) InsertLog(ctx context.Context, rec *model.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (filename, path, time, human_time, uploaded, error,
		                   report_id, permalink, boss_id, boss_name, players_json,
		                   json_available, success)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Filename, rec.Path, rec.Time.UTC().Format(timeLayout), rec.HumanTime,
		boolToInt(rec.Uploaded), boolToInt(rec.Error),
		rec.ReportID, rec.Permalink, rec.BossID, rec.BossName, rec.PlayersJSON,
		boolToInt(rec.JSONAvailable), boolToInt(rec.Success),
	)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// UpdateLog replaces an existing log record by ID. Returns ErrNotFound
// when the record no longer exists.
func (s *SQLite) UpdateLog(ctx context.Context, rec *model.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE logs SET filename = ?, path = ?, time = ?, human_time = ?,
		                 uploaded = ?, error = ?, report_id = ?, permalink = ?,
		                 boss_id = ?, boss_name = ?, players_json = ?,
		                 json_available = ?, success = ?
		 WHERE id = ?`,
		rec.Filename, rec.Path, rec.Time.UTC().Format(timeLayout), rec.HumanTime,
		boolToInt(rec.Uploaded), boolToInt(rec.Error),
		rec.ReportID, rec.Permalink, rec.BossID, rec.BossName, rec.PlayersJSON,
		boolToInt(rec.JSONAvailable), boolToInt(rec.Success),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update log %d: %w", rec.ID, ErrNotFound)
	}
	return nil
}

// GetLog returns a single log record by its ID.
func (s *SQLite) GetLog(ctx context.Context, id int64) (*model.LogRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, path, time, human_time, uploaded, error,
		        report_id, permalink, boss_id, boss_name, players_json,
		        json_available, success
		 FROM logs WHERE id = ?`, id,
	)
	rec, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("log %d: %w", id, ErrNotFound)
	}
	return rec, err
}

// ListRecentLogs returns up to limit log records, newest by time first.
func (s *SQLite) ListRecentLogs(ctx context.Context, limit int) ([]model.LogRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, path, time, human_time, uploaded, error,
		        report_id, permalink, boss_id, boss_name, players_json,
		        json_available, success
		 FROM logs ORDER BY time DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []model.LogRecord
	for rows.Next() {
		rec, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// KnownFilenames returns the set of filenames already tracked.
func (s *SQLite) KnownFilenames(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT filename FROM logs`)
	if err != nil {
		return nil, fmt.Errorf("query filenames: %w", err)
	}
	defer func() { _ = rows.Close() }()

	known := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan filename: %w", err)
		}
		known[name] = struct{}{}
	}
	return known, rows.Err()
}

// CreateWebhook inserts a new webhook rule and populates its ID.
func (s *SQLite) CreateWebhook(ctx context.Context, rule *model.WebhookRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO webhooks (name, url, raids, fractals, strikes, golems, wvw,
		                       filter, filter_min, success_only)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.Name, rule.URL,
		boolToInt(rule.Raids), boolToInt(rule.Fractals), boolToInt(rule.Strikes),
		boolToInt(rule.Golems), boolToInt(rule.WvW),
		rule.Filter, rule.FilterMin, boolToInt(rule.SuccessOnly),
	)
	if err != nil {
		return fmt.Errorf("insert webhook: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	rule.ID = id
	return nil
}

// ListWebhooks returns all configured webhook rules.
func (s *SQLite) ListWebhooks(ctx context.Context) ([]model.WebhookRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, url, raids, fractals, strikes, golems, wvw,
		        filter, filter_min, success_only
		 FROM webhooks ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query webhooks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.WebhookRule
	for rows.Next() {
		var r model.WebhookRule
		var raids, fractals, strikes, golems, wvw, successOnly int
		err := rows.Scan(&r.ID, &r.Name, &r.URL, &raids, &fractals, &strikes,
			&golems, &wvw, &r.Filter, &r.FilterMin, &successOnly)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		r.Raids = raids == 1
		r.Fractals = fractals == 1
		r.Strikes = strikes == 1
		r.Golems = golems == 1
		r.WvW = wvw == 1
		r.SuccessOnly = successOnly == 1
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// UpdateWebhook persists changes to an existing webhook rule.
func (s *SQLite) UpdateWebhook(ctx context.Context, rule *model.WebhookRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE webhooks SET name = ?, url = ?, raids = ?, fractals = ?,
		                     strikes = ?, golems = ?, wvw = ?, filter = ?,
		                     filter_min = ?, success_only = ?
		 WHERE id = ?`,
		rule.Name, rule.URL,
		boolToInt(rule.Raids), boolToInt(rule.Fractals), boolToInt(rule.Strikes),
		boolToInt(rule.Golems), boolToInt(rule.WvW),
		rule.Filter, rule.FilterMin, boolToInt(rule.SuccessOnly),
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update webhook %d: %w", rule.ID, ErrNotFound)
	}
	return nil
}

// DeleteWebhook removes a webhook rule by its ID.
func (s *SQLite) DeleteWebhook(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

// UserToken returns the persisted dps.report user token, or "" when
// none has been saved.
func (s *SQLite) UserToken(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM user_token WHERE id = 1`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query user token: %w", err)
	}
	return value, nil
}

// SetUserToken persists the dps.report user token, replacing any
// previous value.
func (s *SQLite) SetUserToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_token (id, value) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET value = excluded.value`, token,
	)
	if err != nil {
		return fmt.Errorf("set user token: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLog(row scannable) (*model.LogRecord, error) {
	var rec model.LogRecord
	var timeStr string
	var uploaded, errFlag, jsonAvailable, success int
	err := row.Scan(&rec.ID, &rec.Filename, &rec.Path, &timeStr, &rec.HumanTime,
		&uploaded, &errFlag, &rec.ReportID, &rec.Permalink, &rec.BossID,
		&rec.BossName, &rec.PlayersJSON, &jsonAvailable, &success)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan log: %w", err)
	}
	rec.Time, _ = time.Parse(timeLayout, timeStr)
	rec.Uploaded = uploaded == 1
	rec.Error = errFlag == 1
	rec.JSONAvailable = jsonAvailable == 1
	rec.Success = success == 1
	return &rec, nil
}
