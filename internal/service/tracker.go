package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bookleaf/tracker/internal/models"
	"github.com/bookleaf/tracker/internal/normalize"
)

const recentWebhookLimit = 20

const (
	WebhookAdded          = "added"
	WebhookDuplicate      = "duplicate"
	WebhookUnknownPackage = "unknown_package"
	WebhookIgnored        = "ignored"
	WebhookMalformed      = "malformed"
	WebhookNoConsultant   = "no_consultant"
)

type AuthorRepository interface {
	ListAuthors(ctx context.Context) ([]models.Author, error)
	UpsertAuthors(ctx context.Context, authors []models.Author) error
}

// EventPublisher announces consultant assignments to downstream consumers.
type EventPublisher interface {
	PublishAuthorAssigned(ctx context.Context, author models.Author) error
}

type TrackerOptions struct {
	Consultants []models.Consultant
	Packages    normalize.PackageTable
	Overrides   *OverrideStore
	Buffer      *WriteBuffer
	Repo        AuthorRepository
	Events      EventPublisher
	Logger      zerolog.Logger
}

// Tracker owns the authoritative author collection. Every mutation runs under
// one lock so the collection, the round-robin cursor and the override store
// move together.
type Tracker struct {
	mu          sync.RWMutex
	authors     []models.Author
	index       map[string]int
	cursor      Cursor
	consultants []models.Consultant
	packages    normalize.PackageTable
	overrides   *OverrideStore
	buffer      *WriteBuffer
	repo        AuthorRepository
	events      EventPublisher
	recent      []WebhookOutcome
	logger      zerolog.Logger
	now         func() time.Time
}

func NewTracker(opts TrackerOptions) *Tracker {
	overrides := opts.Overrides
	if overrides == nil {
		overrides = NewOverrideStore()
	}
	packages := opts.Packages
	if packages == nil {
		packages = normalize.DefaultPackages(11999, 249)
	}
	return &Tracker{
		index:       map[string]int{},
		consultants: opts.Consultants,
		packages:    packages,
		overrides:   overrides,
		buffer:      opts.Buffer,
		repo:        opts.Repo,
		events:      opts.Events,
		logger:      opts.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Load restores the collection from the repository.
func (t *Tracker) Load(ctx context.Context) error {
	if t.repo == nil {
		return nil
	}
	authors, err := t.repo.ListAuthors(ctx)
	if err != nil {
		return fmt.Errorf("load authors: %w", err)
	}
	t.mu.Lock()
	t.setAuthors(authors)
	t.mu.Unlock()
	return nil
}

func (t *Tracker) Overrides() *OverrideStore { return t.overrides }

func (t *Tracker) Consultants() []models.Consultant {
	out := make([]models.Consultant, len(t.consultants))
	copy(out, t.consultants)
	return out
}

func (t *Tracker) Consultant(name string) (models.Consultant, bool) {
	for _, c := range t.consultants {
		if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
			return c, true
		}
	}
	return models.Consultant{}, false
}

func (t *Tracker) Cursor() Cursor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cursor
}

// Authors lists the collection. An empty view or "admin" sees everyone, any
// other view is a consultant name.
func (t *Tracker) Authors(view string) []models.Author {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Author, 0, len(t.authors))
	for _, a := range t.authors {
		if inView(view, a.Consultant) {
			out = append(out, a)
		}
	}
	return out
}

func (t *Tracker) Author(email string) (models.Author, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[normalize.NormalizeEmail(email)]
	if !ok {
		return models.Author{}, false
	}
	return t.authors[i], true
}

func inView(view, consultant string) bool {
	view = strings.TrimSpace(view)
	if view == "" || strings.EqualFold(view, "admin") {
		return true
	}
	return strings.EqualFold(view, consultant)
}

type ImportSummary struct {
	Rows          int  `json:"rows"`
	Candidates    int  `json:"candidates"`
	Malformed     int  `json:"malformed"`
	Ineligible    int  `json:"ineligible"`
	PreAssigned   int  `json:"pre_assigned"`
	NewlyAssigned int  `json:"newly_assigned"`
	Retained      int  `json:"retained"`
	TrackerOnly   int  `json:"tracker_only"`
	Total         int  `json:"total"`
	Cursor        int  `json:"cursor"`
	Persisted     bool `json:"persisted"`
}

// ImportPayments runs one import pass. The cursor restarts at zero so the same
// batch always yields the same assignment. Authors already known but absent
// from the batch are retained.
func (t *Tracker) ImportPayments(ctx context.Context, rows []normalize.PaymentRow, filter normalize.PackageFilter) (ImportSummary, error) {
	batch := normalize.NormalizePayments(rows, t.packages, filter)
	summary := ImportSummary{
		Rows:       len(rows),
		Candidates: len(batch.Candidates),
		Malformed:  batch.Malformed,
		Ineligible: batch.Ineligible,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	result, err := Reconcile(batch.Candidates, t.consultants, t.overrides, 0)
	if err != nil {
		return summary, err
	}
	summary.PreAssigned = result.PreAssigned
	summary.NewlyAssigned = result.NewlyAssigned

	next := result.Authors
	seen := make(map[string]struct{}, len(next))
	for _, a := range next {
		seen[a.Email] = struct{}{}
	}
	for _, a := range t.authors {
		if _, ok := seen[a.Email]; !ok {
			next = append(next, a)
			summary.Retained++
		}
	}
	discovered := DiscoverTrackerOnly(next, t.overrides.All())
	next = append(next, discovered...)
	summary.TrackerOnly = len(discovered)
	summary.Total = len(next)
	summary.Cursor = int(result.Cursor)

	changed := t.assignmentChanges(next)
	if err := t.persist(ctx, next); err != nil {
		return summary, err
	}
	summary.Persisted = t.repo != nil
	t.setAuthors(next)
	t.cursor = result.Cursor
	t.publish(ctx, changed)

	t.logger.Info().
		Int("candidates", summary.Candidates).
		Int("pre_assigned", summary.PreAssigned).
		Int("newly_assigned", summary.NewlyAssigned).
		Int("tracker_only", summary.TrackerOnly).
		Int("malformed", summary.Malformed).
		Msg("payment import reconciled")
	return summary, nil
}

type TrackerImportSummary struct {
	Rows       int `json:"rows"`
	Applied    int `json:"applied"`
	Malformed  int `json:"malformed"`
	Updated    int `json:"updated"`
	Discovered int `json:"discovered"`
}

// ImportTracker upserts one consultant's tracker sheet into the override
// store and folds the result into matching authors.
func (t *Tracker) ImportTracker(ctx context.Context, consultant string, rows []normalize.Row) (TrackerImportSummary, error) {
	c, ok := t.Consultant(consultant)
	if !ok {
		return TrackerImportSummary{}, fmt.Errorf("%w: %s", ErrUnknownConsultant, consultant)
	}
	summary := TrackerImportSummary{Rows: len(rows)}

	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.cloneAuthors()
	staged := t.overrides.Clone()
	var records []models.OverrideRecord
	for _, row := range rows {
		email, patch, err := normalize.TrackerToOverride(row, c.Name)
		if err != nil {
			summary.Malformed++
			continue
		}
		rec := staged.Upsert(email, patch)
		records = append(records, rec)
		summary.Applied++
		if i, ok := t.index[email]; ok {
			applyOverride(&next[i], rec)
			next[i].UpdatedAt = t.now()
			summary.Updated++
		}
	}
	discovered := DiscoverTrackerOnly(next, records)
	next = append(next, discovered...)
	summary.Discovered = len(discovered)

	changed := t.assignmentChanges(next)
	if err := t.persist(ctx, next); err != nil {
		return summary, err
	}
	t.overrides.Put(records...)
	t.queueOverrides(records...)
	t.setAuthors(next)
	t.publish(ctx, changed)

	t.logger.Info().
		Str("consultant", c.Name).
		Int("applied", summary.Applied).
		Int("updated", summary.Updated).
		Int("discovered", summary.Discovered).
		Msg("tracker import applied")
	return summary, nil
}

type WebhookOutcome struct {
	PaymentID  string    `json:"payment_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	Result     string    `json:"result"`
	Consultant string    `json:"consultant,omitempty"`
	At         time.Time `json:"at"`
}

// ProcessWebhook adds the payer of a captured payment as a new author. The
// cursor continues from the last pass rather than restarting.
func (t *Tracker) ProcessWebhook(ctx context.Context, ev normalize.WebhookEvent) (WebhookOutcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	outcome := WebhookOutcome{At: t.now()}
	if ev.Payload.Payment.Entity != nil {
		outcome.PaymentID = ev.Payload.Payment.Entity.ID
	}

	c, err := normalize.WebhookToCandidate(ev, t.packages)
	outcome.Email = c.Email
	switch {
	case errors.Is(err, normalize.ErrIgnoredEvent):
		outcome.Result = WebhookIgnored
		return t.record(outcome), nil
	case errors.Is(err, normalize.ErrUnknownPackage):
		outcome.Result = WebhookUnknownPackage
		return t.record(outcome), nil
	case err != nil:
		outcome.Result = WebhookMalformed
		return t.record(outcome), nil
	}

	if _, ok := t.index[c.Email]; ok {
		outcome.Result = WebhookDuplicate
		return t.record(outcome), nil
	}

	author := newAuthor(c)
	cursor := t.cursor
	if rec, ok := t.overrides.Get(c.Email); ok {
		applyOverride(&author, rec)
	} else {
		active := ActiveConsultants(t.consultants)
		if len(active) == 0 {
			outcome.Result = WebhookNoConsultant
			t.record(outcome)
			return outcome, ErrNoActiveConsultants
		}
		var picked models.Consultant
		picked, cursor = cursor.pick(active)
		author.Consultant = picked.Name
	}

	next := append(t.cloneAuthors(), author)
	if err := t.persist(ctx, []models.Author{author}); err != nil {
		return outcome, err
	}
	t.setAuthors(next)
	t.cursor = cursor
	t.publish(ctx, []models.Author{author})

	outcome.Result = WebhookAdded
	outcome.Consultant = author.Consultant
	t.logger.Info().Str("email", author.Email).Str("consultant", author.Consultant).Msg("webhook author added")
	return t.record(outcome), nil
}

func (t *Tracker) record(o WebhookOutcome) WebhookOutcome {
	t.recent = append([]WebhookOutcome{o}, t.recent...)
	if len(t.recent) > recentWebhookLimit {
		t.recent = t.recent[:recentWebhookLimit]
	}
	return o
}

// RecentWebhooks returns the latest outcomes, newest first.
func (t *Tracker) RecentWebhooks() []WebhookOutcome {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]WebhookOutcome, len(t.recent))
	copy(out, t.recent)
	return out
}

// AutoAssign is the operator's rebalance. Authors that already have an
// override keep the new consultant in it so a later import agrees.
func (t *Tracker) AutoAssign(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next, cursor, reassigned, err := AutoAssign(t.authors, t.consultants)
	if err != nil {
		return 0, err
	}
	var records []models.OverrideRecord
	for i := range next {
		if next[i].Consultant == t.authors[i].Consultant {
			continue
		}
		next[i].UpdatedAt = t.now()
		if _, ok := t.overrides.Get(next[i].Email); ok {
			consultant := next[i].Consultant
			records = append(records, t.overrides.Apply(next[i].Email, models.OverridePatch{Consultant: &consultant}))
		}
	}
	changed := t.assignmentChanges(next)
	if err := t.persist(ctx, next); err != nil {
		return 0, err
	}
	t.queueOverrides(records...)
	t.setAuthors(next)
	t.cursor = cursor
	t.publish(ctx, changed)
	t.logger.Info().Int("reassigned", reassigned).Msg("auto-assign complete")
	return reassigned, nil
}

// ClearAssignments drops every consultant and resets status to assigned, in
// the collection and in the override store.
func (t *Tracker) ClearAssignments(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.cloneAuthors()
	empty := ""
	assigned := models.StatusAssigned
	var records []models.OverrideRecord
	for i := range next {
		next[i].Consultant = ""
		next[i].Status = models.StatusAssigned
		next[i].UpdatedAt = t.now()
		if _, ok := t.overrides.Get(next[i].Email); ok {
			records = append(records, t.overrides.Apply(next[i].Email, models.OverridePatch{Consultant: &empty, Status: &assigned}))
		}
	}
	if err := t.persist(ctx, next); err != nil {
		return 0, err
	}
	t.queueOverrides(records...)
	t.setAuthors(next)
	t.cursor = 0
	return len(next), nil
}

// UpdateAuthor applies a live edit and writes the author's full workflow
// state through to the override store. Stage flags may be set false here.
func (t *Tracker) UpdateAuthor(ctx context.Context, email string, patch models.OverridePatch) (models.Author, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return models.Author{}, fmt.Errorf("%w: %s", ErrInvalidStatus, *patch.Status)
	}
	if patch.Consultant != nil && *patch.Consultant != "" {
		c, ok := t.Consultant(*patch.Consultant)
		if !ok {
			return models.Author{}, fmt.Errorf("%w: %s", ErrUnknownConsultant, *patch.Consultant)
		}
		name := c.Name
		patch.Consultant = &name
	}
	for name := range patch.Stages {
		var probe models.Stages
		if probe.Field(name) == nil {
			return models.Author{}, fmt.Errorf("%w: %s", ErrUnknownStage, name)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[normalize.NormalizeEmail(email)]
	if !ok {
		return models.Author{}, ErrAuthorNotFound
	}
	a := t.authors[i]
	prevConsultant := a.Consultant
	if patch.Name != nil && *patch.Name != "" {
		a.Name = *patch.Name
	}
	if patch.Consultant != nil {
		a.Consultant = *patch.Consultant
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.Remarks != nil {
		a.Remarks = *patch.Remarks
	}
	for name, v := range patch.Stages {
		*a.Stages.Field(name) = v
	}
	a.UpdatedAt = t.now()

	if err := t.persist(ctx, []models.Author{a}); err != nil {
		return models.Author{}, err
	}
	rec := t.overrides.Apply(a.Email, fullPatch(a))
	t.queueOverrides(rec)
	t.authors[i] = a
	if a.Consultant != prevConsultant && a.Consultant != "" {
		t.publish(ctx, []models.Author{a})
	}
	return a, nil
}

func (t *Tracker) ChangeStatus(ctx context.Context, email string, status models.Status) (models.Author, error) {
	return t.UpdateAuthor(ctx, email, models.OverridePatch{Status: &status})
}

func (t *Tracker) Reassign(ctx context.Context, email, consultant string) (models.Author, error) {
	return t.UpdateAuthor(ctx, email, models.OverridePatch{Consultant: &consultant})
}

func (t *Tracker) UpdateRemarks(ctx context.Context, email, remarks string) (models.Author, error) {
	return t.UpdateAuthor(ctx, email, models.OverridePatch{Remarks: &remarks})
}

// ToggleStage flips one stage flag.
func (t *Tracker) ToggleStage(ctx context.Context, email, stage string) (models.Author, error) {
	a, ok := t.Author(email)
	if !ok {
		return models.Author{}, ErrAuthorNotFound
	}
	field := a.Stages.Field(stage)
	if field == nil {
		return models.Author{}, fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
	return t.UpdateAuthor(ctx, email, models.OverridePatch{Stages: models.StagePatch{stage: !*field}})
}

// PromoteGoodToGo moves the given authors to good-to-go. Completed authors
// and those already good-to-go are left alone.
func (t *Tracker) PromoteGoodToGo(ctx context.Context, emails []string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.cloneAuthors()
	var promoted []models.Author
	for _, email := range emails {
		i, ok := t.index[normalize.NormalizeEmail(email)]
		if !ok {
			continue
		}
		if next[i].Status == models.StatusCompleted || next[i].Status == models.StatusGoodToGo {
			continue
		}
		next[i].Status = models.StatusGoodToGo
		next[i].UpdatedAt = t.now()
		promoted = append(promoted, next[i])
	}
	if len(promoted) == 0 {
		return 0, nil
	}
	if err := t.persist(ctx, promoted); err != nil {
		return 0, err
	}
	for _, a := range promoted {
		t.queueOverrides(t.overrides.Apply(a.Email, fullPatch(a)))
	}
	t.setAuthors(next)
	return len(promoted), nil
}

func fullPatch(a models.Author) models.OverridePatch {
	consultant := a.Consultant
	status := a.Status
	remarks := a.Remarks
	name := a.Name
	stages := make(models.StagePatch, len(models.StageNames))
	for _, s := range models.StageNames {
		stages[s] = *a.Stages.Field(s)
	}
	return models.OverridePatch{
		Name:       &name,
		Consultant: &consultant,
		Status:     &status,
		Remarks:    &remarks,
		Stages:     stages,
	}
}

func (t *Tracker) cloneAuthors() []models.Author {
	out := make([]models.Author, len(t.authors))
	copy(out, t.authors)
	return out
}

func (t *Tracker) setAuthors(authors []models.Author) {
	t.authors = authors
	t.index = make(map[string]int, len(authors))
	for i, a := range authors {
		t.index[a.Email] = i
	}
}

// assignmentChanges returns the authors in next whose consultant differs from
// the current collection.
func (t *Tracker) assignmentChanges(next []models.Author) []models.Author {
	var out []models.Author
	for _, a := range next {
		if a.Consultant == "" {
			continue
		}
		if i, ok := t.index[a.Email]; ok && t.authors[i].Consultant == a.Consultant {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (t *Tracker) persist(ctx context.Context, authors []models.Author) error {
	if t.repo == nil || len(authors) == 0 {
		return nil
	}
	if err := t.repo.UpsertAuthors(ctx, authors); err != nil {
		return fmt.Errorf("persist authors: %w", err)
	}
	return nil
}

func (t *Tracker) queueOverrides(records ...models.OverrideRecord) {
	if t.buffer == nil {
		return
	}
	for _, rec := range records {
		t.buffer.Add(rec)
	}
}

func (t *Tracker) publish(ctx context.Context, authors []models.Author) {
	if t.events == nil {
		return
	}
	for _, a := range authors {
		if err := t.events.PublishAuthorAssigned(ctx, a); err != nil {
			t.logger.Warn().Err(err).Str("email", a.Email).Msg("author.assigned publish failed")
		}
	}
}
