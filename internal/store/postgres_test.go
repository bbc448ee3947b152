package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-harvest/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func ownerCtx() context.Context {
	return WithOwner(context.Background(), "user-1")
}

func TestPostgresStore_RequiresOwner(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.ListLeads(context.Background())
	require.Error(t, err)
	assert.True(t, IsNotLoggedIn(err))

	err = s.ReplaceLeads(context.Background(), nil)
	assert.True(t, IsNotLoggedIn(err))

	_, err = s.GetSettings(context.Background())
	assert.True(t, IsNotLoggedIn(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceLeads_CopyFrom(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM leads WHERE user_id = \$1`).
		WithArgs("user-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCopyFrom(pgx.Identifier{"leads"}, leadColumns).WillReturnResult(2)
	mock.ExpectCommit()

	err := s.ReplaceLeads(ownerCtx(), []model.Lead{
		{ID: "a", Name: "Ann", Company: "Acme"},
		{ID: "b", Name: "Bob", Company: "Initech", Priority: model.PriorityHigh},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceLeads_EmptySkipsCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM leads`).
		WithArgs("user-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	require.NoError(t, s.ReplaceLeads(ownerCtx(), []model.Lead{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceLeads_DeleteError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM leads`).
		WithArgs("user-1").
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := s.ReplaceLeads(ownerCtx(), []model.Lead{{ID: "a", Name: "Ann"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clear leads")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateLeadScores_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE leads SET priority`).
		WithArgs("high", 9, pgxmock.AnyArg(), pgxmock.AnyArg(), "user-1", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.UpdateLeadScores(ownerCtx(), []model.Lead{
		{ID: "missing", Priority: model.PriorityHigh, AIScore: model.IntPtr(9), ValidationIssues: []model.ValidationIssue{}},
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "lead missing")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteLeads(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM leads WHERE user_id = \$1 AND id = ANY\(\$2\)`).
		WithArgs("user-1", []string{"a", "b"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := s.DeleteLeads(ownerCtx(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteLeads_NoIDs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.DeleteLeads(ownerCtx(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendAudit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WithArgs(pgxmock.AnyArg(), "user-1", pgxmock.AnyArg(), "SCRAPE", "LinkedIn", nil, 5, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendAudit(ownerCtx(), model.AuditEntry{
		Timestamp:  ts,
		Action:     model.ActionScrape,
		Source:     "LinkedIn",
		LeadsCount: model.IntPtr(5),
		Details:    map[string]any{"keywords": "ai"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListAudit_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM audit_logs WHERE user_id = \$1 AND action = \$2`).
		WithArgs("user-1", "DELETE").
		WillReturnError(errors.New("connection reset"))

	_, err := s.ListAudit(ownerCtx(), model.ActionDelete)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list audit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClearAudit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM audit_logs WHERE user_id = \$1`).
		WithArgs("user-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := s.ClearAudit(ownerCtx())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSettings_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM settings WHERE user_id = \$1`).
		WithArgs("user-1").
		WillReturnError(pgx.ErrNoRows)

	st, err := s.GetSettings(ownerCtx())
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSettings_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(user_id\) DO UPDATE`).
		WithArgs("user-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveSettings(ownerCtx(), model.Settings{OpenAIKey: "sk-test", DefaultSource: "LinkedIn"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS leads`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
