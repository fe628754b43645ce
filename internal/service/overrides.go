package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bookleaf/tracker/internal/models"
	"github.com/bookleaf/tracker/internal/normalize"
)

// OverrideStore holds the last known tracker or manual state per email.
type OverrideStore struct {
	mu      sync.RWMutex
	records map[string]models.OverrideRecord
	now     func() time.Time
}

func NewOverrideStore() *OverrideStore {
	return &OverrideStore{
		records: map[string]models.OverrideRecord{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Load seeds the store from persisted records, replacing what is there.
func (s *OverrideStore) Load(records []models.OverrideRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]models.OverrideRecord, len(records))
	for _, rec := range records {
		rec.Email = normalize.NormalizeEmail(rec.Email)
		if rec.Email == "" {
			continue
		}
		s.records[rec.Email] = rec
	}
}

func (s *OverrideStore) Get(email string) (models.OverrideRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[normalize.NormalizeEmail(email)]
	return rec, ok
}

func (s *OverrideStore) All() []models.OverrideRecord {
	s.mu.RLock()
	out := make([]models.OverrideRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

// Clone returns an independent copy. Imports stage their writes on a clone
// and Put the results once persistence has succeeded.
func (s *OverrideStore) Clone() *OverrideStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := &OverrideStore{records: make(map[string]models.OverrideRecord, len(s.records)), now: s.now}
	for k, v := range s.records {
		c.records[k] = v
	}
	return c
}

// Put stores records as given, replacing any record for the same email.
func (s *OverrideStore) Put(records ...models.OverrideRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		rec.Email = normalize.NormalizeEmail(rec.Email)
		if rec.Email == "" {
			continue
		}
		s.records[rec.Email] = rec
	}
}

func (s *OverrideStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Upsert is the import path. Stage flags are OR'd forward so a reimport can
// never clear progress, and status falls back to assigned when neither side
// has one.
func (s *OverrideStore) Upsert(email string, patch models.OverridePatch) models.OverrideRecord {
	return s.write(email, patch, true)
}

// Apply is the live-edit path. Supplied stage flags are set exactly.
func (s *OverrideStore) Apply(email string, patch models.OverridePatch) models.OverrideRecord {
	return s.write(email, patch, false)
}

func (s *OverrideStore) write(email string, patch models.OverridePatch, orForward bool) models.OverrideRecord {
	email = normalize.NormalizeEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[email]
	if !ok {
		rec = models.OverrideRecord{Email: email}
	}
	if patch.Name != nil && *patch.Name != "" {
		rec.Name = *patch.Name
	}
	if patch.Consultant != nil {
		rec.Consultant = *patch.Consultant
	}
	if patch.Status != nil && *patch.Status != "" {
		rec.Status = *patch.Status
	}
	if rec.Status == "" {
		rec.Status = models.StatusAssigned
	}
	if patch.Remarks != nil {
		rec.Remarks = *patch.Remarks
	}
	for name, v := range patch.Stages {
		field := rec.Stages.Field(name)
		if field == nil {
			continue
		}
		if orForward {
			*field = *field || v
		} else {
			*field = v
		}
	}
	rec.UpdatedAt = s.now()
	s.records[email] = rec
	return rec
}

// FlushFunc persists a batch of override records.
type FlushFunc func(ctx context.Context, records []models.OverrideRecord) error

// WriteBuffer coalesces override writes per email and hands them to a
// FlushFunc on an interval, when MaxPending is reached, or on Flush.
type WriteBuffer struct {
	mu       sync.Mutex
	pending  map[string]models.OverrideRecord
	flushMu  sync.Mutex
	sink     FlushFunc
	interval time.Duration
	max      int
	kick     chan struct{}
	logger   zerolog.Logger
}

func NewWriteBuffer(sink FlushFunc, interval time.Duration, maxPending int, logger zerolog.Logger) *WriteBuffer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxPending <= 0 {
		maxPending = 50
	}
	return &WriteBuffer{
		pending:  map[string]models.OverrideRecord{},
		sink:     sink,
		interval: interval,
		max:      maxPending,
		kick:     make(chan struct{}, 1),
		logger:   logger,
	}
}

// Add queues the full current record. A pending record for the same email is
// replaced, not queued behind.
func (b *WriteBuffer) Add(rec models.OverrideRecord) {
	b.mu.Lock()
	b.pending[rec.Email] = rec
	full := len(b.pending) >= b.max
	b.mu.Unlock()
	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

func (b *WriteBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush hands every pending record to the sink. On failure the batch is put
// back unless a newer write for the same email arrived meanwhile.
func (b *WriteBuffer) Flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := make([]models.OverrideRecord, 0, len(b.pending))
	for _, rec := range b.pending {
		batch = append(batch, rec)
	}
	b.pending = map[string]models.OverrideRecord{}
	b.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].Email < batch[j].Email })
	if err := b.sink(ctx, batch); err != nil {
		b.mu.Lock()
		for _, rec := range batch {
			if _, newer := b.pending[rec.Email]; !newer {
				b.pending[rec.Email] = rec
			}
		}
		b.mu.Unlock()
		return err
	}
	return nil
}

// Run flushes until ctx is done, then makes one last attempt.
func (b *WriteBuffer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := b.Flush(final); err != nil {
				b.logger.Error().Err(err).Int("pending", b.Pending()).Msg("final override flush failed")
			}
			cancel()
			return
		case <-ticker.C:
		case <-b.kick:
		}
		if err := b.Flush(ctx); err != nil {
			b.logger.Warn().Err(err).Int("pending", b.Pending()).Msg("override flush failed")
		}
	}
}
