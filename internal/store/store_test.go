package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-harvest/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleLeads() []model.Lead {
	return []model.Lead{
		{ID: "l1", Name: "Ann Lee", JobTitle: "CTO", Company: "Acme", Email: "ann@acme.com", Phone: "(555) 123-4567", Priority: model.PriorityHigh, Source: "LinkedIn"},
		{ID: "l2", Name: "Bob Ray", JobTitle: "Engineer", Company: "Initech", Priority: model.PriorityLow, Source: "Website"},
		{ID: "l3", Name: "Cy Tan", JobTitle: "Director of Sales", Company: "Globex", Email: "cy@globex.com", Priority: model.PriorityMedium, Source: "LinkedIn"},
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("ReplaceAndListLeads", func(t *testing.T) {
		s := newStore(t)
		ctx := WithOwner(context.Background(), "u1")

		require.NoError(t, s.ReplaceLeads(ctx, sampleLeads()))

		got, err := s.ListLeads(ctx)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"l1", "l2", "l3"}, []string{got[0].ID, got[1].ID, got[2].ID})
		assert.Equal(t, "ann@acme.com", got[0].Email)
		assert.Equal(t, "", got[1].Email)
		assert.Equal(t, model.PriorityMedium, got[2].Priority)
		assert.Nil(t, got[0].AIScore)
		assert.Nil(t, got[0].ValidationIssues)
		assert.False(t, got[0].CreatedAt.IsZero())
	})

	t.Run("ReplaceOverwritesPrevious", func(t *testing.T) {
		s := newStore(t)
		ctx := WithOwner(context.Background(), "u1")

		require.NoError(t, s.ReplaceLeads(ctx, sampleLeads()))
		require.NoError(t, s.ReplaceLeads(ctx, sampleLeads()[:1]))

		got, err := s.ListLeads(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "l1", got[0].ID)
	})

	t.Run("ListEmpty", func(t *testing.T) {
		s := newStore(t)
		got, err := s.ListLeads(WithOwner(context.Background(), "nobody"))
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("OwnerIsolation", func(t *testing.T) {
		s := newStore(t)
		a := WithOwner(context.Background(), "alice")
		b := WithOwner(context.Background(), "bob")

		require.NoError(t, s.ReplaceLeads(a, sampleLeads()))
		require.NoError(t, s.ReplaceLeads(b, sampleLeads()[:1]))

		gotA, err := s.ListLeads(a)
		require.NoError(t, err)
		assert.Len(t, gotA, 3)

		n, err := s.DeleteLeads(b, []string{"l1", "l2"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		gotA, err = s.ListLeads(a)
		require.NoError(t, err)
		assert.Len(t, gotA, 3)
	})

	t.Run("ClearLeads", func(t *testing.T) {
		s := newStore(t)
		ctx := WithOwner(context.Background(), "u1")
		require.NoError(t, s.ReplaceLeads(ctx, sampleLeads()))

		n, err := s.ClearLeads(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		got, err := s.ListLeads(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("NotLoggedIn", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ListLeads(context.Background())
		assert.True(t, IsNotLoggedIn(err))
		assert.True(t, IsNotLoggedIn(s.AppendAudit(WithOwner(context.Background(), "  "), model.AuditEntry{})))
	})

	t.Run("UpdateLeadScores", func(t *testing.T) {
		s := newStore(t)
		ctx := WithOwner(context.Background(), "u1")
		require.NoError(t, s.ReplaceLeads(ctx, sampleLeads()))

		update := []model.Lead{
			{ID: "l2", Priority: model.PriorityMedium, AIScore: model.IntPtr(6), ValidationIssues: []model.ValidationIssue{}},
			{ID: "l3", Priority: model.PriorityLow, AIScore: model.IntPtr(2), ValidationIssues: []model.ValidationIssue{
				{Field: model.IssueFieldPhone, Reason: "empty"},
			}},
		}
		require.NoError(t, s.UpdateLeadScores(ctx, update))

		got, err := s.ListLeads(ctx)
		require.NoError(t, err)
		require.Len(t, got, 3)

		assert.Nil(t, got[0].ValidationIssues)
		require.NotNil(t, got[1].AIScore)
		assert.Equal(t, 6, *got[1].AIScore)
		assert.NotNil(t, got[1].ValidationIssues)
		assert.Empty(t, got[1].ValidationIssues)
		assert.Equal(t, model.PriorityLow, got[2].Priority)
		require.Len(t, got[2].ValidationIssues, 1)
		assert.Equal(t, model.IssueFieldPhone, got[2].ValidationIssues[0].Field)
	})

	t.Run("UpdateLeadScoresMissing", func(t *testing.T) {
		s := newStore(t)
		ctx := WithOwner(context.Background(), "u1")
		err := s.UpdateLeadScores(ctx, []model.Lead{{ID: "ghost", Priority: model.PriorityLow}})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("AuditAppendListClear", func(t *testing.T) {
		s := newStore(t)
		ctx := WithOwner(context.Background(), "u1")
		base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

		entries := []model.AuditEntry{
			{Timestamp: base, Action: model.ActionScrape, Source: "LinkedIn", ProxyUsed: "none", LeadsCount: model.IntPtr(5), Details: map[string]any{"keywords": "ai"}},
			{Timestamp: base.Add(time.Second), Action: model.ActionValidate, Source: "AI Validation", LeadsCount: model.IntPtr(5)},
			{Timestamp: base.Add(2 * time.Second), Action: model.ActionDelete, LeadsCount: model.IntPtr(1), Details: map[string]any{"reason": "Manual deletion"}},
		}
		for _, e := range entries {
			require.NoError(t, s.AppendAudit(ctx, e))
		}

		all, err := s.ListAudit(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, model.ActionScrape, all[0].Action)
		assert.Equal(t, "u1", all[0].UserID)
		assert.NotEmpty(t, all[0].ID)
		assert.Equal(t, "ai", all[0].Details["keywords"])
		assert.Equal(t, 5, all[0].Count())
		assert.Equal(t, "", all[2].Source)

		deletes, err := s.ListAudit(ctx, model.ActionDelete)
		require.NoError(t, err)
		require.Len(t, deletes, 1)
		assert.Equal(t, "Manual deletion", deletes[0].Details["reason"])

		n, err := s.ClearAudit(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		all, err = s.ListAudit(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("Settings", func(t *testing.T) {
		s := newStore(t)
		ctx := WithOwner(context.Background(), "u1")

		got, err := s.GetSettings(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)

		want := model.Settings{OpenAIKey: "sk-abc", UseProxies: true, RequestDelaySecs: 3, RespectRobotsTxt: true, DefaultSource: "LinkedIn"}
		require.NoError(t, s.SaveSettings(ctx, want))

		want.RequestDelaySecs = 7
		require.NoError(t, s.SaveSettings(ctx, want))

		got, err = s.GetSettings(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want, *got)
	})

	t.Run("MigrateIdempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Migrate(context.Background()))
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestOwnerFrom(t *testing.T) {
	_, err := OwnerFrom(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	id, err := OwnerFrom(WithOwner(context.Background(), " u1 "))
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
}
