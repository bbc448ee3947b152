package salesforce

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-harvest/internal/model"
)

func TestRating(t *testing.T) {
	assert.Equal(t, "Hot", Rating(model.PriorityHigh))
	assert.Equal(t, "Warm", Rating(model.PriorityMedium))
	assert.Equal(t, "Cold", Rating(model.PriorityLow))
	assert.Equal(t, "Cold", Rating(""))
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Sarah Johnson", "Sarah", "Johnson"},
		{"Mary Ann  van Dyke", "Mary Ann van", "Dyke"},
		{"Cher", "", "Cher"},
		{"  ", "", ""},
	}
	for _, tt := range tests {
		first, last := SplitName(tt.in)
		assert.Equal(t, tt.first, first, tt.in)
		assert.Equal(t, tt.last, last, tt.in)
	}
}

func TestLeadFields(t *testing.T) {
	l := model.Lead{
		Name:     "Sarah Johnson",
		JobTitle: "CTO",
		Company:  "TechVision Inc.",
		Email:    "sarah@techvision.com",
		Priority: model.PriorityHigh,
		Source:   "LinkedIn",
	}
	assert.Equal(t, map[string]any{
		"FirstName":  "Sarah",
		"LastName":   "Johnson",
		"Company":    "TechVision Inc.",
		"Title":      "CTO",
		"Email":      "sarah@techvision.com",
		"Rating":     "Hot",
		"LeadSource": "LinkedIn",
	}, LeadFields(l))
}

func TestLeadFields_DefaultsAndOmissions(t *testing.T) {
	fields := LeadFields(model.Lead{Name: "Cher", Company: "Solo", Priority: model.PriorityMedium})
	assert.Equal(t, "Cher", fields["LastName"])
	assert.Equal(t, "Warm", fields["Rating"])
	assert.Equal(t, DefaultLeadSource, fields["LeadSource"])
	for _, k := range []string{"FirstName", "Title", "Email", "Phone"} {
		assert.NotContains(t, fields, k)
	}
}

func TestFindLeadsByEmail(t *testing.T) {
	var queries []string
	mc := &mockClient{
		queryFn: func(_ context.Context, soql string, out any) error {
			queries = append(queries, soql)
			leads := out.(*[]Lead)
			*leads = []Lead{{ID: "00Q1", Email: "Sarah@TechVision.com"}}
			return nil
		},
	}

	found, err := FindLeadsByEmail(context.Background(), mc, []string{"sarah@techvision.com", "", "SARAH@techvision.com", "o'brien@x.io"})
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], "FROM Lead WHERE IsConverted = false AND Email IN ('sarah@techvision.com', 'o\\'brien@x.io')")
	assert.Equal(t, "00Q1", found["sarah@techvision.com"].ID)
}

func TestFindLeadsByEmail_Chunks(t *testing.T) {
	calls := 0
	mc := &mockClient{
		queryFn: func(_ context.Context, soql string, _ any) error {
			calls++
			assert.LessOrEqual(t, strings.Count(soql, "@"), maxInClause)
			return nil
		},
	}
	emails := make([]string, 250)
	for i := range emails {
		emails[i] = strings.Repeat("a", i+1) + "@x.io"
	}

	_, err := FindLeadsByEmail(context.Background(), mc, emails)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestFindLeadsByEmail_NoEmails(t *testing.T) {
	mc := &mockClient{
		queryFn: func(context.Context, string, any) error {
			t.Fatal("unexpected query")
			return nil
		},
	}
	found, err := FindLeadsByEmail(context.Background(), mc, []string{"", " "})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestFindLeadsByEmail_Error(t *testing.T) {
	mc := &mockClient{
		queryFn: func(context.Context, string, any) error { return errors.New("boom") },
	}
	_, err := FindLeadsByEmail(context.Background(), mc, []string{"a@b.c"})
	assert.ErrorContains(t, err, "sf: find leads by email")
}

func TestCreateLead(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var capturedObject string
		var capturedFields map[string]any
		mc := &mockClient{
			insertOneFn: func(_ context.Context, sObject string, record map[string]any) (string, error) {
				capturedObject = sObject
				capturedFields = record
				return "00QNEW", nil
			},
		}

		id, err := CreateLead(context.Background(), mc, model.Lead{Name: "Emma Rodriguez", Company: "SaaS Platform Inc."})
		require.NoError(t, err)
		assert.Equal(t, "00QNEW", id)
		assert.Equal(t, LeadObject, capturedObject)
		assert.Equal(t, "Rodriguez", capturedFields["LastName"])
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := CreateLead(context.Background(), &mockClient{}, model.Lead{Company: "Acme"})
		assert.ErrorContains(t, err, "LastName is required")
	})

	t.Run("missing company", func(t *testing.T) {
		_, err := CreateLead(context.Background(), &mockClient{}, model.Lead{Name: "A B"})
		assert.ErrorContains(t, err, "Company is required")
	})

	t.Run("propagates error", func(t *testing.T) {
		mc := &mockClient{
			insertOneFn: func(context.Context, string, map[string]any) (string, error) {
				return "", errors.New("api error")
			},
		}
		_, err := CreateLead(context.Background(), mc, model.Lead{Name: "A B", Company: "C"})
		assert.ErrorContains(t, err, "sf: create lead A B")
	})
}

func TestEscapeSoql(t *testing.T) {
	assert.Equal(t, `o\'brien`, escapeSoql("o'brien"))
	assert.Equal(t, `a\\b`, escapeSoql(`a\b`))
}
