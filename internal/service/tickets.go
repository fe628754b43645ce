package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bookleaf/tracker/internal/freshdesk"
	"github.com/bookleaf/tracker/internal/models"
	"github.com/bookleaf/tracker/internal/normalize"
)

const (
	AdminScope      = "admin"
	defaultMaxPages = 3
	maxMaxPages     = 10
)

type SyncState string

const (
	SyncIdle        SyncState = "idle"
	SyncFetching    SyncState = "fetching"
	SyncSuccess     SyncState = "success"
	SyncRateLimited SyncState = "rate_limited"
	SyncFailed      SyncState = "failed"
)

type Freshness string

const (
	FreshnessNone      Freshness = "none"
	FreshnessFresh     Freshness = "fresh"
	FreshnessStale     Freshness = "stale"
	FreshnessVeryStale Freshness = "very_stale"
)

// TicketProvider is the help-desk API. freshdesk.Client implements it.
type TicketProvider interface {
	ListTickets(ctx context.Context, page, perPage int) ([]models.TicketFact, error)
	Agents(ctx context.Context) ([]models.Agent, error)
	UpdateResponder(ctx context.Context, ticketID, responderID int64) error
}

// TicketCache stores raw ticket facts per scope. Match results are never
// cached.
type TicketCache interface {
	Load(ctx context.Context, scope string) (models.TicketSnapshot, bool, error)
	Store(ctx context.Context, scope string, snap models.TicketSnapshot) error
}

// AuthorSource is the part of the tracker the ticket service reads and
// promotes through.
type AuthorSource interface {
	Authors(view string) []models.Author
	PromoteGoodToGo(ctx context.Context, emails []string) (int, error)
}

// RateLimitedError matches ErrRateLimited and carries the provider's hint.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s, retry after %s", ErrRateLimited, e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

type TicketOptions struct {
	Provider    TicketProvider
	Cache       TicketCache
	Authors     AuthorSource
	Consultants []models.Consultant
	MaxPages    int
	PushDelay   time.Duration
	Logger      zerolog.Logger
}

type TicketService struct {
	provider    TicketProvider
	cache       TicketCache
	authors     AuthorSource
	consultants []models.Consultant
	maxPages    int
	pushDelay   time.Duration
	logger      zerolog.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error

	mu             sync.Mutex
	state          SyncState
	lastOutcome    SyncState
	inFlight       bool
	lastError      string
	retryAfter     time.Duration
	lastSyncAt     time.Time
	autoRefresh    bool
	agentIDs       map[string]int64
	agentsResolved bool
	facts          []models.TicketFact
	fetchedAt      time.Time
}

func NewTicketService(opts TicketOptions) *TicketService {
	pages := opts.MaxPages
	if pages <= 0 {
		pages = defaultMaxPages
	}
	if pages > maxMaxPages {
		pages = maxMaxPages
	}
	return &TicketService{
		provider:    opts.Provider,
		cache:       opts.Cache,
		authors:     opts.Authors,
		consultants: opts.Consultants,
		maxPages:    pages,
		pushDelay:   opts.PushDelay,
		logger:      opts.Logger,
		now:         func() time.Time { return time.Now().UTC() },
		sleep:       sleepCtx,
		state:       SyncIdle,
		autoRefresh: true,
		agentIDs:    map[string]int64{},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// begin takes the in-flight guard. A second caller gets ErrSyncInFlight.
func (s *TicketService) begin(state SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return ErrSyncInFlight
	}
	s.inFlight = true
	s.state = state
	return nil
}

// end releases the guard and returns to idle. outcome is kept as the last
// outcome unless it is SyncIdle, which push calls use when they have none.
func (s *TicketService) end(outcome SyncState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	s.state = SyncIdle
	if outcome != SyncIdle {
		s.lastOutcome = outcome
	}
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
}

func (s *TicketService) rateLimited(retry time.Duration) *RateLimitedError {
	s.mu.Lock()
	s.retryAfter = retry
	s.autoRefresh = false
	s.mu.Unlock()
	return &RateLimitedError{RetryAfter: retry}
}

// classify maps provider errors onto the service taxonomy.
func (s *TicketService) classify(err error) (SyncState, error) {
	var rl freshdesk.RateLimitError
	switch {
	case errors.As(err, &rl):
		return SyncRateLimited, s.rateLimited(rl.RetryAfter)
	case errors.Is(err, freshdesk.ErrAuth):
		return SyncFailed, fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}
	return SyncFailed, err
}

type SyncResult struct {
	Pages         int       `json:"pages"`
	Tickets       int       `json:"tickets"`
	Matched       int       `json:"matched"`
	NeedsReassign int       `json:"needs_reassign"`
	Promoted      int       `json:"promoted"`
	FetchedAt     time.Time `json:"fetched_at"`
	CacheError    string    `json:"cache_error,omitempty"`
}

// Sync fetches up to maxPages. A failure on any page discards everything
// fetched so far and leaves the previous ticket set in place.
func (s *TicketService) Sync(ctx context.Context) (SyncResult, error) {
	if s.provider == nil {
		return SyncResult{}, ErrAuthFailure
	}
	if err := s.begin(SyncFetching); err != nil {
		return SyncResult{}, err
	}

	if err := s.resolveAgents(ctx); err != nil {
		state, err := s.classify(err)
		s.end(state, err)
		return SyncResult{}, err
	}

	var facts []models.TicketFact
	pages := 0
	for page := 1; page <= s.maxPages; page++ {
		batch, err := s.provider.ListTickets(ctx, page, freshdesk.PerPage)
		if err != nil {
			state, err := s.classify(err)
			s.end(state, err)
			s.logger.Warn().Err(err).Int("page", page).Msg("ticket sync halted")
			return SyncResult{}, err
		}
		pages++
		facts = append(facts, batch...)
		if len(batch) < freshdesk.PerPage {
			break
		}
	}

	now := s.now()
	s.mu.Lock()
	s.facts = facts
	s.fetchedAt = now
	s.lastSyncAt = now
	s.retryAfter = 0
	s.mu.Unlock()

	result := SyncResult{Pages: pages, Tickets: len(facts), FetchedAt: now}
	if err := s.storeCache(ctx, facts, now); err != nil {
		result.CacheError = err.Error()
	}

	tickets := s.match(facts, AdminScope)
	for _, t := range tickets {
		if t.IsMatched {
			result.Matched++
		}
		if t.NeedsReassign {
			result.NeedsReassign++
		}
	}
	promoted, err := s.promote(ctx, tickets)
	result.Promoted = promoted
	s.end(SyncSuccess, err)

	s.logger.Info().
		Int("pages", pages).
		Int("tickets", result.Tickets).
		Int("matched", result.Matched).
		Int("needs_reassign", result.NeedsReassign).
		Int("promoted", promoted).
		Msg("ticket sync complete")
	return result, err
}

func (s *TicketService) resolveAgents(ctx context.Context) error {
	s.mu.Lock()
	done := s.agentsResolved
	s.mu.Unlock()
	if done {
		return nil
	}
	agents, err := s.provider.Agents(ctx)
	if err != nil {
		var rl freshdesk.RateLimitError
		if errors.As(err, &rl) || errors.Is(err, freshdesk.ErrAuth) {
			return err
		}
		s.logger.Warn().Err(err).Msg("agent directory lookup failed")
		return nil
	}
	ids := ResolveAgents(s.consultants, agents)
	s.mu.Lock()
	s.agentIDs = ids
	s.agentsResolved = true
	s.mu.Unlock()
	return nil
}

// ResolveAgents maps consultant names to agent ids by email.
func ResolveAgents(consultants []models.Consultant, agents []models.Agent) map[string]int64 {
	byEmail := make(map[string]int64, len(agents))
	for _, a := range agents {
		if a.Email != "" {
			byEmail[normalize.NormalizeEmail(a.Email)] = a.ID
		}
	}
	out := map[string]int64{}
	for _, c := range consultants {
		email := normalize.NormalizeEmail(c.Email)
		if email == "" {
			continue
		}
		if id, ok := byEmail[email]; ok {
			out[c.Name] = id
		}
	}
	return out
}

// MatchTickets joins facts to authors by requester email. A matched ticket
// whose consultant has no agent id is marked AgentUnresolved instead of being
// compared.
func MatchTickets(facts []models.TicketFact, authors []models.Author, agentIDs map[string]int64) []models.Ticket {
	byEmail := make(map[string]models.Author, len(authors))
	for _, a := range authors {
		byEmail[a.Email] = a
	}
	out := make([]models.Ticket, 0, len(facts))
	for _, f := range facts {
		t := models.Ticket{TicketFact: f, Status: f.StatusCode.Label()}
		a, ok := byEmail[normalize.NormalizeEmail(f.RequesterEmail)]
		if ok {
			t.IsMatched = true
			t.MatchedAuthor = a.Name
			t.MatchedConsultant = a.Consultant
			if a.Consultant != "" {
				if id, resolved := agentIDs[a.Consultant]; resolved {
					t.ExpectedAgentID = &id
					t.NeedsReassign = f.ResponderID == nil || *f.ResponderID != id
				} else {
					t.AgentUnresolved = true
				}
			}
		}
		out = append(out, t)
	}
	return out
}

// PromotableEmails lists authors whose matched ticket is resolved or closed
// and who are neither completed nor already good-to-go.
func PromotableEmails(tickets []models.Ticket, authors []models.Author) []string {
	status := make(map[string]models.Status, len(authors))
	for _, a := range authors {
		status[a.Email] = a.Status
	}
	seen := map[string]struct{}{}
	var out []string
	for _, t := range tickets {
		if !t.IsMatched || !t.StatusCode.Terminal() {
			continue
		}
		email := normalize.NormalizeEmail(t.RequesterEmail)
		st, ok := status[email]
		if !ok || st == models.StatusCompleted || st == models.StatusGoodToGo {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	return out
}

// FreshnessOf bands the age of a snapshot for display only.
func FreshnessOf(fetchedAt, now time.Time) Freshness {
	if fetchedAt.IsZero() {
		return FreshnessNone
	}
	age := now.Sub(fetchedAt)
	switch {
	case age <= 2*time.Hour:
		return FreshnessFresh
	case age <= 30*time.Hour:
		return FreshnessStale
	}
	return FreshnessVeryStale
}

func (s *TicketService) promote(ctx context.Context, tickets []models.Ticket) (int, error) {
	if s.authors == nil {
		return 0, nil
	}
	emails := PromotableEmails(tickets, s.authors.Authors(AdminScope))
	if len(emails) == 0 {
		return 0, nil
	}
	return s.authors.PromoteGoodToGo(ctx, emails)
}

func (s *TicketService) match(facts []models.TicketFact, view string) []models.Ticket {
	var authors []models.Author
	if s.authors != nil {
		authors = s.authors.Authors(AdminScope)
	}
	s.mu.Lock()
	ids := make(map[string]int64, len(s.agentIDs))
	for k, v := range s.agentIDs {
		ids[k] = v
	}
	s.mu.Unlock()

	all := MatchTickets(facts, authors, ids)
	if view == "" || strings.EqualFold(view, AdminScope) {
		return all
	}
	out := make([]models.Ticket, 0, len(all))
	for _, t := range all {
		if strings.EqualFold(t.MatchedConsultant, view) {
			out = append(out, t)
		}
	}
	return out
}

func (s *TicketService) storeCache(ctx context.Context, facts []models.TicketFact, at time.Time) error {
	if s.cache == nil {
		return nil
	}
	snap := models.TicketSnapshot{Tickets: facts, FetchedAt: at}
	if err := s.cache.Store(ctx, AdminScope, snap); err != nil {
		s.logger.Warn().Err(err).Msg("ticket cache write failed")
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

type TicketView struct {
	Tickets   []models.Ticket `json:"tickets"`
	FetchedAt time.Time       `json:"fetched_at"`
	Freshness Freshness       `json:"freshness"`
	Source    string          `json:"source"`
}

// hydrate fills memory from the shared cache when this process holds no
// snapshot yet. It reports whether the cache supplied one.
func (s *TicketService) hydrate(ctx context.Context) (bool, error) {
	s.mu.Lock()
	empty := s.fetchedAt.IsZero()
	s.mu.Unlock()
	if !empty || s.cache == nil {
		return false, nil
	}
	snap, ok, err := s.cache.Load(ctx, AdminScope)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if !ok {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fetchedAt.IsZero() {
		return false, nil
	}
	s.facts = snap.Tickets
	s.fetchedAt = snap.FetchedAt
	return true, nil
}

// Cached returns the last good ticket set, matched against the current
// authors. Memory is preferred; the shared cache fills it after a restart.
func (s *TicketService) Cached(ctx context.Context, view string) (TicketView, error) {
	loaded, err := s.hydrate(ctx)
	if err != nil {
		return TicketView{Freshness: FreshnessNone}, err
	}
	facts, fetchedAt := s.snapshot()
	source := "memory"
	if loaded {
		source = "cache"
	}
	if fetchedAt.IsZero() {
		source = "none"
	}
	return TicketView{
		Tickets:   s.match(facts, view),
		FetchedAt: fetchedAt,
		Freshness: FreshnessOf(fetchedAt, s.now()),
		Source:    source,
	}, nil
}

func (s *TicketService) snapshot() ([]models.TicketFact, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TicketFact, len(s.facts))
	copy(out, s.facts)
	return out, s.fetchedAt
}

type PushResult struct {
	Attempted   int   `json:"attempted"`
	Pushed      int   `json:"pushed"`
	Failed      int   `json:"failed"`
	Remaining   int   `json:"remaining"`
	RateLimited bool  `json:"rate_limited"`
	RetryAfter  int64 `json:"retry_after_seconds,omitempty"`
}

// PushReassignments sends every needed reassignment with a fixed pause
// between requests. A rate limit abandons the rest and keeps what landed.
func (s *TicketService) PushReassignments(ctx context.Context) (PushResult, error) {
	if s.provider == nil {
		return PushResult{}, ErrAuthFailure
	}
	if err := s.begin(SyncFetching); err != nil {
		return PushResult{}, err
	}

	facts, fetchedAt := s.snapshot()
	var pending []models.Ticket
	for _, t := range s.match(facts, AdminScope) {
		if t.NeedsReassign {
			pending = append(pending, t)
		}
	}

	var result PushResult
	var haltErr error
	for i, t := range pending {
		if i > 0 {
			if err := s.sleep(ctx, s.pushDelay); err != nil {
				result.Remaining = len(pending) - i
				haltErr = err
				break
			}
		}
		result.Attempted++
		err := s.provider.UpdateResponder(ctx, t.ID, *t.ExpectedAgentID)
		if err == nil {
			result.Pushed++
			s.setResponder(t.ID, *t.ExpectedAgentID)
			continue
		}
		state, cerr := s.classify(err)
		if state == SyncRateLimited {
			result.RateLimited = true
			var rl *RateLimitedError
			if errors.As(cerr, &rl) {
				result.RetryAfter = int64(rl.RetryAfter / time.Second)
			}
			result.Remaining = len(pending) - i
			break
		}
		if errors.Is(cerr, ErrAuthFailure) {
			result.Remaining = len(pending) - i
			haltErr = cerr
			break
		}
		result.Failed++
		s.logger.Warn().Err(err).Int64("ticket_id", t.ID).Msg("ticket reassignment failed")
	}

	if result.Pushed > 0 {
		facts, _ := s.snapshot()
		_ = s.storeCache(ctx, facts, fetchedAt)
	}
	final := SyncIdle
	if result.RateLimited {
		final = SyncRateLimited
	}
	s.end(final, haltErr)
	return result, haltErr
}

// PushOne reassigns a single ticket if it needs it. The bool reports whether
// a request was sent.
func (s *TicketService) PushOne(ctx context.Context, ticketID int64) (models.Ticket, bool, error) {
	if s.provider == nil {
		return models.Ticket{}, false, ErrAuthFailure
	}
	facts, fetchedAt := s.snapshot()
	var target *models.Ticket
	for _, t := range s.match(facts, AdminScope) {
		if t.ID == ticketID {
			t := t
			target = &t
			break
		}
	}
	if target == nil {
		return models.Ticket{}, false, ErrTicketNotFound
	}
	if !target.NeedsReassign {
		return *target, false, nil
	}
	if err := s.begin(SyncFetching); err != nil {
		return *target, false, err
	}
	err := s.provider.UpdateResponder(ctx, target.ID, *target.ExpectedAgentID)
	if err != nil {
		state, cerr := s.classify(err)
		if state != SyncRateLimited {
			state = SyncIdle
		}
		s.end(state, cerr)
		return *target, false, cerr
	}
	s.setResponder(target.ID, *target.ExpectedAgentID)
	facts, _ = s.snapshot()
	_ = s.storeCache(ctx, facts, fetchedAt)
	s.end(SyncIdle, nil)

	id := *target.ExpectedAgentID
	target.ResponderID = &id
	target.NeedsReassign = false
	return *target, true, nil
}

func (s *TicketService) setResponder(ticketID, responderID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.facts {
		if s.facts[i].ID == ticketID {
			id := responderID
			s.facts[i].ResponderID = &id
			return
		}
	}
}

// UpsertTicket applies a provider push for one ticket: same id replaces,
// otherwise it is prepended. The merge is into the shared snapshot, so an
// unreadable cache rejects the push rather than overwrite it.
func (s *TicketService) UpsertTicket(ctx context.Context, fact models.TicketFact) (models.Ticket, error) {
	fact.RequesterEmail = normalize.NormalizeEmail(fact.RequesterEmail)
	if _, err := s.hydrate(ctx); err != nil {
		return models.Ticket{}, err
	}
	now := s.now()

	s.mu.Lock()
	replaced := false
	for i := range s.facts {
		if s.facts[i].ID == fact.ID {
			s.facts[i] = fact
			replaced = true
			break
		}
	}
	if !replaced {
		s.facts = append([]models.TicketFact{fact}, s.facts...)
	}
	s.fetchedAt = now
	facts := make([]models.TicketFact, len(s.facts))
	copy(facts, s.facts)
	s.mu.Unlock()

	_ = s.storeCache(ctx, facts, now)
	tickets := s.match([]models.TicketFact{fact}, AdminScope)
	if _, err := s.promote(ctx, tickets); err != nil {
		return tickets[0], err
	}
	return tickets[0], nil
}

// SetAutoRefresh is the manual switch; a rate limit turns it off.
func (s *TicketService) SetAutoRefresh(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoRefresh = enabled
	if enabled {
		s.retryAfter = 0
	}
}

func (s *TicketService) AutoRefreshEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoRefresh
}

func (s *TicketService) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

type SyncStatus struct {
	State                 SyncState `json:"state"`
	LastOutcome           SyncState `json:"last_outcome,omitempty"`
	InFlight              bool      `json:"in_flight"`
	LastError             string    `json:"last_error,omitempty"`
	RetryAfterSeconds     int64     `json:"retry_after_seconds,omitempty"`
	LastSyncAt            time.Time `json:"last_sync_at"`
	AutoRefresh           bool      `json:"auto_refresh"`
	FetchedAt             time.Time `json:"fetched_at"`
	Freshness             Freshness `json:"freshness"`
	TicketCount           int       `json:"ticket_count"`
	AgentsResolved        bool      `json:"agents_resolved"`
	UnresolvedConsultants []string  `json:"unresolved_consultants,omitempty"`
}

func (s *TicketService) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SyncStatus{
		State:             s.state,
		LastOutcome:       s.lastOutcome,
		InFlight:          s.inFlight,
		LastError:         s.lastError,
		RetryAfterSeconds: int64(s.retryAfter / time.Second),
		LastSyncAt:        s.lastSyncAt,
		AutoRefresh:       s.autoRefresh,
		FetchedAt:         s.fetchedAt,
		Freshness:         FreshnessOf(s.fetchedAt, s.now()),
		TicketCount:       len(s.facts),
		AgentsResolved:    s.agentsResolved,
	}
	if s.agentsResolved {
		for _, c := range s.consultants {
			if _, ok := s.agentIDs[c.Name]; !ok {
				st.UnresolvedConsultants = append(st.UnresolvedConsultants, c.Name)
			}
		}
	}
	return st
}
