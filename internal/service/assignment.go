package service

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bookleaf/tracker/internal/models"
	"github.com/bookleaf/tracker/internal/utils"
)

// Cursor is the round-robin position over the active consultants. It is never
// reduced modulo the roster so that a caller can tell how many authors were
// assigned since the last reset.
type Cursor int

func (c Cursor) pick(active []models.Consultant) (models.Consultant, Cursor) {
	return active[int(c)%len(active)], c + 1
}

// OverrideLookup is the read side of the override store used during merges.
type OverrideLookup interface {
	Get(email string) (models.OverrideRecord, bool)
}

type ReconcileResult struct {
	Authors       []models.Author
	PreAssigned   int
	NewlyAssigned int
	Cursor        Cursor
}

func ActiveConsultants(consultants []models.Consultant) []models.Consultant {
	out := make([]models.Consultant, 0, len(consultants))
	for _, c := range consultants {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}

// Dedupe keeps one candidate per email: the one with the latest payment date.
// A later row only replaces an earlier one when its date is strictly greater,
// and the survivor takes the slot of the first occurrence.
func Dedupe(candidates []models.Candidate) []models.Candidate {
	pos := make(map[string]int, len(candidates))
	out := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if i, ok := pos[c.Email]; ok {
			if c.PaymentDate.After(out[i].PaymentDate) {
				out[i] = c
			}
			continue
		}
		pos[c.Email] = len(out)
		out = append(out, c)
	}
	return out
}

func sortByPaymentDate(candidates []models.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].PaymentDate.Before(candidates[j].PaymentDate)
	})
}

// Reconcile merges a payment batch against the override store and assigns
// consultants round-robin, starting from cursor, to every candidate the store
// does not know. With no active consultant the overrides are still adopted,
// the rest are left without a consultant and ErrNoActiveConsultants is
// returned next to the partial result.
func Reconcile(candidates []models.Candidate, consultants []models.Consultant, overrides OverrideLookup, cursor Cursor) (ReconcileResult, error) {
	batch := Dedupe(candidates)
	sortByPaymentDate(batch)

	active := ActiveConsultants(consultants)
	result := ReconcileResult{
		Authors: make([]models.Author, 0, len(batch)),
		Cursor:  cursor,
	}
	var err error

	for _, c := range batch {
		author := newAuthor(c)
		if rec, ok := lookupOverride(overrides, c.Email); ok {
			applyOverride(&author, rec)
			result.PreAssigned++
			result.Authors = append(result.Authors, author)
			continue
		}
		if len(active) == 0 {
			err = ErrNoActiveConsultants
			result.Authors = append(result.Authors, author)
			continue
		}
		var picked models.Consultant
		picked, result.Cursor = result.Cursor.pick(active)
		author.Consultant = picked.Name
		result.NewlyAssigned++
		result.Authors = append(result.Authors, author)
	}
	return result, err
}

// AutoAssign resets the cursor and reassigns, in payment-date order, every
// author still in the assigned state. Authors further along are untouched.
func AutoAssign(authors []models.Author, consultants []models.Consultant) ([]models.Author, Cursor, int, error) {
	active := ActiveConsultants(consultants)
	out := make([]models.Author, len(authors))
	copy(out, authors)
	if len(active) == 0 {
		return out, 0, 0, ErrNoActiveConsultants
	}

	order := make([]int, 0, len(out))
	for i, a := range out {
		if a.Status == models.StatusAssigned {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return out[order[i]].PaymentDate.Before(out[order[j]].PaymentDate)
	})

	var cursor Cursor
	for _, i := range order {
		var picked models.Consultant
		picked, cursor = cursor.pick(active)
		out[i].Consultant = picked.Name
	}
	return out, cursor, len(order), nil
}

// DiscoverTrackerOnly returns an author for every override whose email is not
// already in the collection. Such authors carry package other.
func DiscoverTrackerOnly(authors []models.Author, records []models.OverrideRecord) []models.Author {
	known := make(map[string]struct{}, len(authors))
	for _, a := range authors {
		known[a.Email] = struct{}{}
	}
	var out []models.Author
	for _, rec := range records {
		if _, ok := known[rec.Email]; ok {
			continue
		}
		author := newAuthor(models.Candidate{
			Email:      rec.Email,
			Name:       rec.Name,
			Package:    "Tracker only",
			PackageKey: models.PackageOther,
		})
		applyOverride(&author, rec)
		out = append(out, author)
		known[rec.Email] = struct{}{}
	}
	return out
}

func lookupOverride(overrides OverrideLookup, email string) (models.OverrideRecord, bool) {
	if overrides == nil {
		return models.OverrideRecord{}, false
	}
	return overrides.Get(email)
}

func newAuthor(c models.Candidate) models.Author {
	id := strings.TrimSpace(c.ID)
	if id == "" {
		id = "au_" + strconv.FormatUint(utils.HashStringToUint64(c.Email), 36)
	}
	name := c.Name
	if name == "" {
		name = "Unknown"
	}
	return models.Author{
		ID:             id,
		Email:          c.Email,
		Name:           name,
		Phone:          c.Phone,
		Package:        c.Package,
		PackageKey:     c.PackageKey,
		PaymentDate:    c.PaymentDate,
		PaymentDateRaw: c.PaymentDateRaw,
		Status:         models.StatusAssigned,
		Remarks:        c.Remarks,
		UpdatedAt:      time.Now().UTC(),
	}
}

func applyOverride(a *models.Author, rec models.OverrideRecord) {
	a.Consultant = rec.Consultant
	a.Status = rec.Status
	if a.Status == "" {
		a.Status = models.StatusAssigned
	}
	a.Remarks = rec.Remarks
	a.Stages = rec.Stages
	if rec.Name != "" {
		a.Name = rec.Name
	}
}
