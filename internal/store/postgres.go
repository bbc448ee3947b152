package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-harvest/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
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
	ai_score          INTEGER CHECK (ai_score BETWEEN 1 AND 10),
	validation_issues JSONB,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id     TEXT NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL DEFAULT now(),
	action      TEXT NOT NULL,
	source      TEXT,
	proxy_used  TEXT,
	leads_count INTEGER,
	details     JSONB
);

CREATE TABLE IF NOT EXISTS settings (
	user_id    TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_user_position ON leads(user_id, position);
CREATE INDEX IF NOT EXISTS idx_audit_logs_user_ts ON audit_logs(user_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ListLeads(ctx context.Context) ([]model.Lead, error) {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, job_title, company, email, phone, priority, source, ai_score, validation_issues, created_at, updated_at
		 FROM leads WHERE user_id = $1 ORDER BY position`,
		owner,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	leads := []model.Lead{}
	for rows.Next() {
		var (
			l            model.Lead
			email, phone pgtype.Text
			priority     string
			score        pgtype.Int4
			issues       []byte
		)
		if err := rows.Scan(&l.ID, &l.Name, &l.JobTitle, &l.Company, &email, &phone, &priority, &l.Source, &score, &issues, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		l.Email = email.String
		l.Phone = phone.String
		l.Priority = model.Priority(priority)
		if score.Valid {
			l.AIScore = model.IntPtr(int(score.Int32))
		}
		if issues != nil {
			if err := json.Unmarshal(issues, &l.ValidationIssues); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal validation issues")
			}
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) ReplaceLeads(ctx context.Context, leads []model.Lead) error {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace leads")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM leads WHERE user_id = $1`, owner); err != nil {
		return eris.Wrap(err, "postgres: clear leads")
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(leads))
	for i, l := range leads {
		args, err := leadArgs(owner, i, l, now)
		if err != nil {
			return err
		}
		rows = append(rows, args)
	}

	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"leads"}, leadColumns, pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrap(err, "postgres: copy leads")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace leads")
}

func (s *PostgresStore) UpdateLeadScores(ctx context.Context, leads []model.Lead) error {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin update scores")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	for _, l := range leads {
		issues, err := marshalIssues(l.ValidationIssues)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE leads SET priority = $1, ai_score = $2, validation_issues = $3, updated_at = $4 WHERE user_id = $5 AND id = $6`,
			string(l.Priority), nullInt(l.AIScore), issues, now, owner, l.ID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: update lead scores %s", l.ID)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrNotFound, "lead %s", l.ID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit update scores")
}

func (s *PostgresStore) DeleteLeads(ctx context.Context, ids []string) (int, error) {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE user_id = $1 AND id = ANY($2)`, owner, ids)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete leads")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ClearLeads(ctx context.Context) (int, error) {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE user_id = $1`, owner)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear leads")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) AppendAudit(ctx context.Context, e model.AuditEntry) error {
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, user_id, timestamp, action, source, proxy_used, leads_count, details) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, owner, e.Timestamp.UTC(), string(e.Action), nullString(e.Source), nullString(e.ProxyUsed), nullInt(e.LeadsCount), details,
	)
	return eris.Wrap(err, "postgres: insert audit entry")
}

func (s *PostgresStore) ListAudit(ctx context.Context, action model.AuditAction) ([]model.AuditEntry, error) {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, user_id, timestamp, action, source, proxy_used, leads_count, details FROM audit_logs WHERE user_id = $1`
	args := []any{owner}
	if action != "" {
		query += ` AND action = $2`
		args = append(args, string(action))
	}
	query += ` ORDER BY timestamp, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit")
	}
	defer rows.Close()

	entries := []model.AuditEntry{}
	for rows.Next() {
		var (
			e             model.AuditEntry
			act           string
			source, proxy pgtype.Text
			count         pgtype.Int4
			details       []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Timestamp, &act, &source, &proxy, &count, &details); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit entry")
		}
		e.Action = model.AuditAction(act)
		e.Source = source.String
		e.ProxyUsed = proxy.String
		if count.Valid {
			e.LeadsCount = model.IntPtr(int(count.Int32))
		}
		if details != nil {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal audit details")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list audit iterate")
}

func (s *PostgresStore) ClearAudit(ctx context.Context) (int, error) {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM audit_logs WHERE user_id = $1`, owner)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear audit")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) GetSettings(ctx context.Context) (*model.Settings, error) {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = s.pool.QueryRow(ctx, `SELECT data FROM settings WHERE user_id = $1`, owner).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get settings")
	}

	var st model.Settings
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal settings")
	}
	return &st, nil
}

func (s *PostgresStore) SaveSettings(ctx context.Context, st model.Settings) error {
	owner, err := OwnerFrom(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal settings")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO settings (user_id, data, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		owner, data, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save settings")
}
