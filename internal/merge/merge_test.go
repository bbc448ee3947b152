package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/lead-harvest/internal/model"
)

func names(leads []model.Lead) []string {
	out := make([]string, len(leads))
	for i, l := range leads {
		out[i] = l.Name + "/" + l.Company
	}
	return out
}

func TestGenerated_SuppressesDuplicates(t *testing.T) {
	existing := []model.Lead{{ID: "1", Name: "A", Company: "X"}}
	batch := []model.Lead{
		{ID: "2", Name: "A", Company: "X"},
		{ID: "3", Name: "B", Company: "Y"},
	}

	res := Generated(existing, batch)

	assert.Equal(t, []string{"A/X", "B/Y"}, names(res.Leads))
	assert.Equal(t, "1", res.Leads[0].ID)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, []string{"B/Y"}, names(res.Added))
}

func TestGenerated_PreservesOrder(t *testing.T) {
	existing := []model.Lead{{Name: "C", Company: "Z"}, {Name: "A", Company: "X"}}
	batch := []model.Lead{{Name: "E", Company: "V"}, {Name: "D", Company: "W"}}

	res := Generated(existing, batch)
	assert.Equal(t, []string{"C/Z", "A/X", "E/V", "D/W"}, names(res.Leads))
}

func TestGenerated_KeyIsExact(t *testing.T) {
	existing := []model.Lead{{Name: "A", Company: "X"}}
	batch := []model.Lead{{Name: "a", Company: "X"}, {Name: "A", Company: "Y"}}

	res := Generated(existing, batch)
	assert.Len(t, res.Leads, 3)
	assert.Zero(t, res.Duplicates)
}

func TestGenerated_DoesNotMutateInputs(t *testing.T) {
	existing := make([]model.Lead, 1, 4)
	existing[0] = model.Lead{Name: "A", Company: "X"}
	batch := []model.Lead{{Name: "B", Company: "Y"}}

	res := Generated(existing, batch)
	res.Leads[0].Name = "changed"

	assert.Equal(t, "A", existing[0].Name)
	assert.Len(t, existing, 1)
}

func TestGenerated_Empty(t *testing.T) {
	res := Generated(nil, nil)
	assert.Empty(t, res.Leads)
	assert.Zero(t, res.Duplicates)
}

func TestUnique(t *testing.T) {
	leads := []model.Lead{
		{Name: "A", Company: "X"},
		{Name: "B", Company: "Y"},
		{Name: "A", Company: "X"},
	}
	assert.Equal(t, []string{"A/X", "B/Y"}, names(Unique(leads)))
}
