package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookleaf/tracker/internal/models"
	"github.com/bookleaf/tracker/internal/normalize"
)

type memAuthorRepo struct {
	saved map[string]models.Author
	fail  bool
}

func (m *memAuthorRepo) ListAuthors(ctx context.Context) ([]models.Author, error) {
	var out []models.Author
	for _, a := range m.saved {
		out = append(out, a)
	}
	return out, nil
}

func (m *memAuthorRepo) UpsertAuthors(ctx context.Context, authors []models.Author) error {
	if m.fail {
		return errors.New("db down")
	}
	if m.saved == nil {
		m.saved = map[string]models.Author{}
	}
	for _, a := range authors {
		m.saved[a.Email] = a
	}
	return nil
}

type recordingEvents struct {
	assigned []string
}

func (r *recordingEvents) PublishAuthorAssigned(ctx context.Context, a models.Author) error {
	r.assigned = append(r.assigned, a.Email+"="+a.Consultant)
	return nil
}

func newTestTracker(repo AuthorRepository, events EventPublisher) *Tracker {
	return NewTracker(TrackerOptions{
		Consultants: []models.Consultant{
			{Name: "Vandana", Email: "vandana@bookleaf.in", Active: true},
			{Name: "Sapna", Email: "sapna@bookleaf.in", Active: true},
			{Name: "Firdaus", Email: "firdaus@bookleaf.in", Active: false},
		},
		Repo:   repo,
		Events: events,
		Logger: zerolog.Nop(),
	})
}

var bothPackages = normalize.PackageFilter{IncludeIndian: true, IncludeIntl: true}

func paymentRows() []normalize.PaymentRow {
	return []normalize.PaymentRow{
		{Email: "a@x.com", Amount: "11999", Status: "captured", CreatedAt: "01/01/2025"},
		{Email: "b@x.com", Amount: "249", Status: "captured", CreatedAt: "02/01/2025"},
		{Email: "c@x.com", Amount: "11999", Status: "captured", CreatedAt: "03/01/2025"},
		{Email: "", Amount: "249", Status: "captured"},
	}
}

func TestImportPaymentsAssignsAndPersists(t *testing.T) {
	repo := &memAuthorRepo{}
	events := &recordingEvents{}
	tr := newTestTracker(repo, events)

	sum, err := tr.ImportPayments(context.Background(), paymentRows(), bothPackages)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.NewlyAssigned)
	assert.Equal(t, 1, sum.Malformed)
	assert.Equal(t, 3, sum.Total)
	assert.Len(t, repo.saved, 3)
	assert.Equal(t, []string{"a@x.com=Vandana", "b@x.com=Sapna", "c@x.com=Vandana"}, events.assigned)
	assert.Equal(t, Cursor(3), tr.Cursor())

	sapna := tr.Authors("sapna")
	require.Len(t, sapna, 1)
	assert.Equal(t, "b@x.com", sapna[0].Email)

	// the same batch again changes nothing and publishes nothing
	events.assigned = nil
	_, err = tr.ImportPayments(context.Background(), paymentRows(), bothPackages)
	require.NoError(t, err)
	assert.Empty(t, events.assigned)
}

func TestImportPaymentsKeepsPriorStateOnFailure(t *testing.T) {
	repo := &memAuthorRepo{}
	tr := newTestTracker(repo, nil)
	_, err := tr.ImportPayments(context.Background(), paymentRows()[:1], bothPackages)
	require.NoError(t, err)

	repo.fail = true
	_, err = tr.ImportPayments(context.Background(), paymentRows(), bothPackages)
	require.Error(t, err)
	assert.Len(t, tr.Authors(""), 1)
}

func TestLiveEditSurvivesReimport(t *testing.T) {
	tr := newTestTracker(nil, nil)
	ctx := context.Background()
	_, err := tr.ImportPayments(ctx, paymentRows(), bothPackages)
	require.NoError(t, err)

	_, err = tr.ChangeStatus(ctx, "c@x.com", models.StatusCompleted)
	require.NoError(t, err)
	_, err = tr.ToggleStage(ctx, "c@x.com", models.StageFilesGenerated)
	require.NoError(t, err)
	_, err = tr.Reassign(ctx, "c@x.com", "sapna")
	require.NoError(t, err)

	_, err = tr.ImportPayments(ctx, paymentRows(), bothPackages)
	require.NoError(t, err)
	a, ok := tr.Author("c@x.com")
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, a.Status)
	assert.Equal(t, "Sapna", a.Consultant)
	assert.True(t, a.Stages.FilesGenerated)

	_, err = tr.ToggleStage(ctx, "c@x.com", models.StageFilesGenerated)
	require.NoError(t, err)
	rec, _ := tr.Overrides().Get("c@x.com")
	assert.False(t, rec.Stages.FilesGenerated, "live edit can reset a stage")
}

func TestUpdateAuthorValidation(t *testing.T) {
	tr := newTestTracker(nil, nil)
	ctx := context.Background()
	_, err := tr.ImportPayments(ctx, paymentRows(), bothPackages)
	require.NoError(t, err)

	_, err = tr.ChangeStatus(ctx, "a@x.com", models.Status("archived"))
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = tr.Reassign(ctx, "a@x.com", "Nobody")
	assert.ErrorIs(t, err, ErrUnknownConsultant)
	_, err = tr.ToggleStage(ctx, "a@x.com", "teleport")
	assert.ErrorIs(t, err, ErrUnknownStage)
	_, err = tr.UpdateRemarks(ctx, "ghost@x.com", "hi")
	assert.ErrorIs(t, err, ErrAuthorNotFound)
}

func TestImportTrackerDiscoversAndUpdates(t *testing.T) {
	tr := newTestTracker(nil, nil)
	ctx := context.Background()
	_, err := tr.ImportPayments(ctx, paymentRows(), bothPackages)
	require.NoError(t, err)

	headers := []string{"Email ID", "Name", "Intro Email", "Status"}
	rows := []normalize.Row{
		normalize.NewRow(headers, []string{"A@x.com", "Asha", "yes", "in progress"}),
		normalize.NewRow(headers, []string{"new@x.com", "Newcomer", "", ""}),
		normalize.NewRow(headers, []string{"", "No Email", "yes", ""}),
	}
	sum, err := tr.ImportTracker(ctx, "sapna", rows)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Applied)
	assert.Equal(t, 1, sum.Malformed)
	assert.Equal(t, 1, sum.Updated)
	assert.Equal(t, 1, sum.Discovered)

	a, _ := tr.Author("a@x.com")
	assert.Equal(t, "Sapna", a.Consultant)
	assert.Equal(t, "Asha", a.Name)
	assert.Equal(t, models.StatusInProgress, a.Status)
	assert.True(t, a.Stages.IntroEmail)

	n, ok := tr.Author("new@x.com")
	require.True(t, ok)
	assert.Equal(t, models.PackageOther, n.PackageKey)
	assert.Equal(t, models.StatusAssigned, n.Status)

	_, err = tr.ImportTracker(ctx, "Ghost", rows)
	assert.ErrorIs(t, err, ErrUnknownConsultant)
}

func TestTrackerOnlyAuthorsSurvivePaymentImport(t *testing.T) {
	tr := newTestTracker(nil, nil)
	ctx := context.Background()
	rows := []normalize.Row{normalize.NewRow([]string{"Email"}, []string{"only@x.com"})}
	_, err := tr.ImportTracker(ctx, "Vandana", rows)
	require.NoError(t, err)

	sum, err := tr.ImportPayments(ctx, paymentRows(), bothPackages)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Total)
	a, ok := tr.Author("only@x.com")
	require.True(t, ok)
	assert.Equal(t, "Vandana", a.Consultant)
}

func TestImportTrackerFailedPersistLeavesOverridesUntouched(t *testing.T) {
	repo := &memAuthorRepo{fail: true}
	buffer := NewWriteBuffer(func(ctx context.Context, records []models.OverrideRecord) error { return nil }, time.Hour, 100, zerolog.Nop())
	tr := NewTracker(TrackerOptions{
		Consultants: []models.Consultant{{Name: "Vandana", Active: true}},
		Repo:        repo,
		Buffer:      buffer,
		Logger:      zerolog.Nop(),
	})

	headers := []string{"Email", "Status"}
	rows := []normalize.Row{normalize.NewRow(headers, []string{"new@x.com", "completed"})}
	_, err := tr.ImportTracker(context.Background(), "Vandana", rows)
	require.Error(t, err)

	_, ok := tr.Overrides().Get("new@x.com")
	assert.False(t, ok)
	assert.Equal(t, 0, buffer.Pending())
	_, ok = tr.Author("new@x.com")
	assert.False(t, ok)

	repo.fail = false
	_, err = tr.ImportTracker(context.Background(), "Vandana", rows)
	require.NoError(t, err)
	rec, ok := tr.Overrides().Get("new@x.com")
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, 1, buffer.Pending())
}

func webhook(t *testing.T, email string, paise int64) normalize.WebhookEvent {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"event": "payment.captured",
		"payload": map[string]any{"payment": map[string]any{"entity": map[string]any{
			"id": "pay_" + email, "amount": paise, "email": email, "created_at": 1735689600,
		}}},
	})
	require.NoError(t, err)
	var ev normalize.WebhookEvent
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func TestProcessWebhookContinuesCursor(t *testing.T) {
	tr := newTestTracker(nil, nil)
	ctx := context.Background()
	_, err := tr.ImportPayments(ctx, paymentRows(), bothPackages)
	require.NoError(t, err)

	out, err := tr.ProcessWebhook(ctx, webhook(t, "d@x.com", 24900))
	require.NoError(t, err)
	assert.Equal(t, WebhookAdded, out.Result)
	assert.Equal(t, "Sapna", out.Consultant)
	assert.Equal(t, Cursor(4), tr.Cursor())

	out, err = tr.ProcessWebhook(ctx, webhook(t, "D@x.com", 24900))
	require.NoError(t, err)
	assert.Equal(t, WebhookDuplicate, out.Result)

	out, err = tr.ProcessWebhook(ctx, webhook(t, "e@x.com", 50000))
	require.NoError(t, err)
	assert.Equal(t, WebhookUnknownPackage, out.Result)
	_, ok := tr.Author("e@x.com")
	assert.False(t, ok)

	recent := tr.RecentWebhooks()
	require.Len(t, recent, 3)
	assert.Equal(t, WebhookUnknownPackage, recent[0].Result)
}

func TestRecentWebhooksBounded(t *testing.T) {
	tr := newTestTracker(nil, nil)
	ev := webhook(t, "x@x.com", 24900)
	ev.Event = "payment.failed"
	for i := 0; i < 30; i++ {
		_, err := tr.ProcessWebhook(context.Background(), ev)
		require.NoError(t, err)
	}
	assert.Len(t, tr.RecentWebhooks(), recentWebhookLimit)
}

func TestAutoAssignAndClear(t *testing.T) {
	tr := newTestTracker(nil, nil)
	ctx := context.Background()
	_, err := tr.ImportPayments(ctx, paymentRows(), bothPackages)
	require.NoError(t, err)
	_, err = tr.ChangeStatus(ctx, "a@x.com", models.StatusInProgress)
	require.NoError(t, err)

	n, err := tr.AutoAssign(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	b, _ := tr.Author("b@x.com")
	c, _ := tr.Author("c@x.com")
	assert.Equal(t, "Vandana", b.Consultant)
	assert.Equal(t, "Sapna", c.Consultant)

	cleared, err := tr.ClearAssignments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, cleared)
	for _, a := range tr.Authors("") {
		assert.Empty(t, a.Consultant)
		assert.Equal(t, models.StatusAssigned, a.Status)
	}
	rec, _ := tr.Overrides().Get("a@x.com")
	assert.Empty(t, rec.Consultant)
}

func TestPromoteGoodToGoNeverTouchesCompleted(t *testing.T) {
	tr := newTestTracker(nil, nil)
	ctx := context.Background()
	_, err := tr.ImportPayments(ctx, paymentRows(), bothPackages)
	require.NoError(t, err)
	_, err = tr.ChangeStatus(ctx, "b@x.com", models.StatusCompleted)
	require.NoError(t, err)

	n, err := tr.PromoteGoodToGo(ctx, []string{"a@x.com", "b@x.com", "ghost@x.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	a, _ := tr.Author("a@x.com")
	b, _ := tr.Author("b@x.com")
	assert.Equal(t, models.StatusGoodToGo, a.Status)
	assert.Equal(t, models.StatusCompleted, b.Status)
}
