package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookleaf/tracker/internal/models"
	"github.com/bookleaf/tracker/internal/normalize"
)

func day(d int) time.Time {
	return time.Date(2025, time.January, d, 0, 0, 0, 0, time.UTC)
}

func roster(names ...string) []models.Consultant {
	out := make([]models.Consultant, 0, len(names))
	for _, n := range names {
		out = append(out, models.Consultant{Name: n, Email: n + "@bookleaf.in", Active: true})
	}
	return out
}

func TestReconcileScenarioTwoConsultants(t *testing.T) {
	packages := normalize.DefaultPackages(11999, 249)
	rows := []normalize.PaymentRow{
		{Email: "a@x.com", Amount: "11999", Status: "captured", CreatedAt: "01/01/2025"},
		{Email: "b@x.com", Amount: "249", Status: "captured", CreatedAt: "02/01/2025"},
	}
	batch := normalize.NormalizePayments(rows, packages, normalize.PackageFilter{IncludeIndian: true, IncludeIntl: true})

	res, err := Reconcile(batch.Candidates, roster("C1", "C2"), NewOverrideStore(), 0)
	require.NoError(t, err)
	require.Len(t, res.Authors, 2)
	assert.Equal(t, "a@x.com", res.Authors[0].Email)
	assert.Equal(t, "C1", res.Authors[0].Consultant)
	assert.Equal(t, "b@x.com", res.Authors[1].Email)
	assert.Equal(t, "C2", res.Authors[1].Consultant)
	for _, a := range res.Authors {
		assert.Equal(t, models.StatusAssigned, a.Status)
	}
	assert.Equal(t, 2, res.NewlyAssigned)
	assert.Equal(t, Cursor(2), res.Cursor)
}

func TestReconcileDedupeKeepsLatest(t *testing.T) {
	cands := []models.Candidate{
		{Email: "a@x.com", Name: "old", PaymentDate: day(1)},
		{Email: "b@x.com", PaymentDate: day(2)},
		{Email: "a@x.com", Name: "new", PaymentDate: day(5)},
		{Email: "a@x.com", Name: "tie", PaymentDate: day(5)},
	}
	res, err := Reconcile(cands, roster("C1"), nil, 0)
	require.NoError(t, err)

	seen := map[string]int{}
	for _, a := range res.Authors {
		seen[a.Email]++
	}
	assert.Equal(t, map[string]int{"a@x.com": 1, "b@x.com": 1}, seen)
	assert.Equal(t, "b@x.com", res.Authors[0].Email)
	assert.Equal(t, "new", res.Authors[1].Name)
}

func TestReconcileRoundRobinKModN(t *testing.T) {
	consultants := roster("C0", "C1", "C2")
	consultants = append(consultants, models.Consultant{Name: "Off", Active: false})

	var cands []models.Candidate
	for i := 0; i < 10; i++ {
		// reversed input order; assignment follows payment date
		cands = append(cands, models.Candidate{Email: fmt.Sprintf("u%d@x.com", 9-i), PaymentDate: day(10 - i)})
	}
	overrides := NewOverrideStore()
	sapna := "Sapna"
	overrides.Upsert("u4@x.com", models.OverridePatch{Consultant: &sapna})

	res, err := Reconcile(cands, consultants, overrides, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.PreAssigned)
	assert.Equal(t, 9, res.NewlyAssigned)

	k := 0
	for _, a := range res.Authors {
		if a.Email == "u4@x.com" {
			assert.Equal(t, "Sapna", a.Consultant)
			continue
		}
		assert.Equal(t, fmt.Sprintf("C%d", k%3), a.Consultant, a.Email)
		k++
	}
}

func TestReconcileDeterministic(t *testing.T) {
	cands := []models.Candidate{
		{Email: "c@x.com", PaymentDate: day(3)},
		{Email: "a@x.com", PaymentDate: day(1)},
		{Email: "b@x.com", PaymentDate: day(1)},
	}
	overrides := NewOverrideStore()
	first, err := Reconcile(cands, roster("C1", "C2"), overrides, 5)
	require.NoError(t, err)
	second, err := Reconcile(cands, roster("C1", "C2"), overrides, 5)
	require.NoError(t, err)

	require.Equal(t, len(first.Authors), len(second.Authors))
	for i := range first.Authors {
		assert.Equal(t, first.Authors[i].Email, second.Authors[i].Email)
		assert.Equal(t, first.Authors[i].Consultant, second.Authors[i].Consultant)
	}
	assert.Equal(t, first.Cursor, second.Cursor)
	// equal dates keep input order
	assert.Equal(t, "a@x.com", first.Authors[0].Email)
	assert.Equal(t, "b@x.com", first.Authors[1].Email)
	assert.Equal(t, "C2", first.Authors[0].Consultant)
}

func TestReconcileOverrideWins(t *testing.T) {
	overrides := NewOverrideStore()
	consultant := "Tannu"
	status := models.StatusCompleted
	remarks := "done and dusted"
	overrides.Upsert("a@x.com", models.OverridePatch{
		Consultant: &consultant,
		Status:     &status,
		Remarks:    &remarks,
		Stages:     models.StagePatch{models.StageIntroEmail: true, models.StagePrimePlacement: true},
	})

	res, err := Reconcile([]models.Candidate{{Email: "a@x.com", Name: "Asha", PaymentDate: day(1), PackageKey: models.PackageIndian}}, roster("C1"), overrides, 0)
	require.NoError(t, err)
	a := res.Authors[0]
	assert.Equal(t, "Tannu", a.Consultant)
	assert.Equal(t, models.StatusCompleted, a.Status)
	assert.Equal(t, "done and dusted", a.Remarks)
	assert.True(t, a.Stages.IntroEmail)
	assert.True(t, a.Stages.PrimePlacement)
	assert.False(t, a.Stages.FollowUp)
	assert.Equal(t, models.PackageIndian, a.PackageKey)
	assert.Equal(t, Cursor(0), res.Cursor)
}

func TestReconcileNoActiveConsultants(t *testing.T) {
	off := []models.Consultant{{Name: "Firdaus", Active: false}}
	res, err := Reconcile([]models.Candidate{{Email: "a@x.com"}}, off, nil, 0)
	require.ErrorIs(t, err, ErrNoActiveConsultants)
	require.Len(t, res.Authors, 1)
	assert.Empty(t, res.Authors[0].Consultant)
	assert.Equal(t, 0, res.NewlyAssigned)
}

func TestAutoAssignTouchesOnlyAssigned(t *testing.T) {
	authors := []models.Author{
		{Email: "late@x.com", PaymentDate: day(9), Status: models.StatusAssigned, Consultant: "X"},
		{Email: "done@x.com", PaymentDate: day(1), Status: models.StatusCompleted, Consultant: "Keep"},
		{Email: "early@x.com", PaymentDate: day(2), Status: models.StatusAssigned},
		{Email: "wip@x.com", PaymentDate: day(3), Status: models.StatusInProgress, Consultant: "Keep"},
	}
	out, cursor, n, err := AutoAssign(authors, roster("C1", "C2"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, Cursor(2), cursor)
	assert.Equal(t, "C2", out[0].Consultant)
	assert.Equal(t, "Keep", out[1].Consultant)
	assert.Equal(t, "C1", out[2].Consultant)
	assert.Equal(t, "Keep", out[3].Consultant)
	assert.Equal(t, "X", authors[0].Consultant, "input must not be mutated")
}

func TestDiscoverTrackerOnly(t *testing.T) {
	authors := []models.Author{{Email: "a@x.com"}}
	records := []models.OverrideRecord{
		{Email: "a@x.com", Consultant: "C1"},
		{Email: "t@x.com", Name: "Tracker Person", Consultant: "C2", Status: models.StatusInProgress},
	}
	out := DiscoverTrackerOnly(authors, records)
	require.Len(t, out, 1)
	assert.Equal(t, "t@x.com", out[0].Email)
	assert.Equal(t, models.PackageOther, out[0].PackageKey)
	assert.Equal(t, "C2", out[0].Consultant)
	assert.Equal(t, models.StatusInProgress, out[0].Status)
	assert.Equal(t, "Tracker Person", out[0].Name)
}
