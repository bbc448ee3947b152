package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-harvest/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	user_id           TEXT NOT NULL,
	id                TEXT NOT NULL,
	position          INTEGER NOT NULL,
	name              TEXT NOT NULL,
	job_title         TEXT NOT NULL DEFAULT '',
	company           TEXT NOT NULL DEFAULT '',
	email             TEXT,
	phone             TEXT,
	priority          TEXT NOT NULL DEFAULT 'low',
	source            TEXT NOT NULL DEFAULT '',
	ai_score          INTEGER,
	validation_issues TEXT,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	timestamp   DATETIME NOT NULL,
	action      TEXT NOT NULL,
	source      TEXT,
	proxy_used  TEXT,
	leads_count INTEGER,
	details     TEXT
);

CREATE TABLE IF NOT EXISTS settings (
	user_id    TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_leads_user_position ON leads(user_id, position);
CREATE INDEX IF NOT EXISTS idx_audit_logs_user_ts ON audit_logs(user_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListLeads(ctx context.Context) ([]model.Lead, error) {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, job_title, company, email, phone, priority, source, ai_score, validation_issues, created_at, updated_at
		 FROM leads WHERE user_id = ? ORDER BY position`,
		owner,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	leads := []model.Lead{}
	for rows.Next() {
		l, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) ReplaceLeads(ctx context.Context, leads []model.Lead) error {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace leads")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM leads WHERE user_id = ?`, owner); err != nil {
		return eris.Wrap(err, "sqlite: clear leads")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO leads (`+strings.Join(leadColumns, ", ")+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert lead")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, l := range leads {
		args, err := leadArgs(owner, i, l, now)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "sqlite: insert lead %s", l.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace leads")
}

func (s *SQLiteStore) UpdateLeadScores(ctx context.Context, leads []model.Lead) error {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin update scores")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, l := range leads {
		issues, err := marshalIssues(l.ValidationIssues)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE leads SET priority = ?, ai_score = ?, validation_issues = ?, updated_at = ? WHERE user_id = ? AND id = ?`,
			string(l.Priority), nullInt(l.AIScore), issues, now, owner, l.ID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update lead scores %s", l.ID)
		}
		if err := checkRowsAffected(res, "lead", l.ID); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit update scores")
}

func (s *SQLiteStore) DeleteLeads(ctx context.Context, ids []string) (int, error) {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, 0, len(ids)+1)
	args = append(args, owner)
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM leads WHERE user_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete leads")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) ClearLeads(ctx context.Context) (int, error) {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE user_id = ?`, owner)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear leads")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	details, err := marshalDetails(e.Details)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, user_id, timestamp, action, source, proxy_used, leads_count, details) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, owner, e.Timestamp.UTC(), string(e.Action), nullString(e.Source), nullString(e.ProxyUsed), nullInt(e.LeadsCount), details,
	)
	return eris.Wrap(err, "sqlite: insert audit entry")
}

func (s *SQLiteStore) ListAudit(ctx context.Context, action model.AuditAction) ([]model.AuditEntry, error) {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, user_id, timestamp, action, source, proxy_used, leads_count, details FROM audit_logs WHERE user_id = ?`
	args := []any{owner}
	if action != "" {
		query += ` AND action = ?`
		args = append(args, string(action))
	}
	query += ` ORDER BY timestamp, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit")
	}
	defer rows.Close()

	entries := []model.AuditEntry{}
	for rows.Next() {
		var (
			e             model.AuditEntry
			act           string
			source, proxy sql.NullString
			count         sql.NullInt64
			details       sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Timestamp, &act, &source, &proxy, &count, &details); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit entry")
		}
		e.Action = model.AuditAction(act)
		e.Source = source.String
		e.ProxyUsed = proxy.String
		if count.Valid {
			e.LeadsCount = model.IntPtr(int(count.Int64))
		}
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal audit details")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list audit iterate")
}

func (s *SQLiteStore) ClearAudit(ctx context.Context) (int, error) {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE user_id = ?`, owner)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear audit")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) GetSettings(ctx context.Context) (*model.Settings, error) {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return nil, err
	}

	var data string
	err = s.db.QueryRowContext(ctx, `SELECT data FROM settings WHERE user_id = ?`, owner).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get settings")
	}

	var st model.Settings
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal settings")
	}
	return &st, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, st model.Settings) error {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal settings")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings (user_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		owner, string(data), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save settings")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteLead(row scannable) (*model.Lead, error) {
	var (
		l            model.Lead
		email, phone sql.NullString
		priority     string
		score        sql.NullInt64
		issues       sql.NullString
	)
	err := row.Scan(&l.ID, &l.Name, &l.JobTitle, &l.Company, &email, &phone, &priority, &l.Source, &score, &issues, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan lead")
	}

	l.Email = email.String
	l.Phone = phone.String
	l.Priority = model.Priority(priority)
	if score.Valid {
		l.AIScore = model.IntPtr(int(score.Int64))
	}
	if issues.Valid {
		if err := json.Unmarshal([]byte(issues.String), &l.ValidationIssues); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal validation issues")
		}
	}
	return &l, nil
}

// leadArgs returns insert arguments in leadColumns order.
func leadArgs(owner string, position int, l model.Lead, now time.Time) ([]any, error) {
	issues, err := marshalIssues(l.ValidationIssues)
	if err != nil {
		return nil, err
	}
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	created := l.CreatedAt
	if created.IsZero() {
		created = now
	}
	priority := l.Priority
	if priority == "" {
		priority = model.PriorityLow
	}
	return []any{
		owner, l.ID, position, l.Name, l.JobTitle, l.Company, nullString(l.Email), nullString(l.Phone),
		string(priority), l.Source, nullInt(l.AIScore), issues, created.UTC(), now,
	}, nil
}

// marshalIssues returns nil for an unvalidated lead so the column stays NULL.
func marshalIssues(issues []model.ValidationIssue) (any, error) {
	if issues == nil {
		return nil, nil
	}
	b, err := json.Marshal(issues)
	if err != nil {
		return nil, eris.Wrap(err, "marshal validation issues")
	}
	return string(b), nil
}

func marshalDetails(details map[string]any) (any, error) {
	if len(details) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return nil, eris.Wrap(err, "marshal audit details")
	}
	return string(b), nil
}
