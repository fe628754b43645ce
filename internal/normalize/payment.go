package normalize

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bookleaf/tracker/internal/models"
)

var (
	ErrMalformedRow   = errors.New("malformed row")
	ErrIgnoredEvent   = errors.New("ignored event")
	ErrUnknownPackage = errors.New("unknown package amount")
)

type SourceKind string

const (
	SourcePaymentExport SourceKind = "payment_export"
	SourceWebhook       SourceKind = "webhook"
)

const StatusCaptured = "captured"

type PackageInfo struct {
	Label string
	Key   models.PackageKey
}

// PackageTable maps a package price in rupees to its package.
type PackageTable map[float64]PackageInfo

func DefaultPackages(indianPrice, intlPrice float64) PackageTable {
	return PackageTable{
		indianPrice: {Label: "Indian Bestseller", Key: models.PackageIndian},
		intlPrice:   {Label: "Intl Bestseller", Key: models.PackageIntl},
	}
}

func (p PackageTable) Lookup(amount float64) (PackageInfo, bool) {
	info, ok := p[amount]
	return info, ok
}

// PackageFilter selects which packages an import pass keeps.
type PackageFilter struct {
	IncludeIndian bool
	IncludeIntl   bool
}

func (f PackageFilter) Allows(key models.PackageKey) bool {
	switch key {
	case models.PackageIndian:
		return f.IncludeIndian
	case models.PackageIntl:
		return f.IncludeIntl
	}
	return false
}

// PaymentRow is one payment export row. Notes and Card hold JSON blobs.
type PaymentRow struct {
	ID        string
	Email     string
	Amount    string
	Status    string
	CreatedAt string
	Contact   string
	Notes     string
	Card      string
}

func PaymentRowFrom(r Row) PaymentRow {
	return PaymentRow{
		ID:        r.Get("id", "payment_id"),
		Email:     r.Get("email"),
		Amount:    r.Get("amount"),
		Status:    r.Get("status"),
		CreatedAt: r.Get("created_at", "created at"),
		Contact:   r.Get("contact", "phone"),
		Notes:     r.Get("notes"),
		Card:      r.Get("card"),
	}
}

// RowToCandidate turns a payment row into a candidate. Rows without a usable
// email are ErrMalformedRow. Unknown amounts are kept with package "other".
func RowToCandidate(row PaymentRow, kind SourceKind, packages PackageTable) (models.Candidate, error) {
	email := NormalizeEmail(row.Email)
	if email == "" || !strings.Contains(email, "@") {
		return models.Candidate{}, ErrMalformedRow
	}

	amount, _ := strconv.ParseFloat(strings.TrimSpace(row.Amount), 64)
	c := models.Candidate{
		ID:             strings.TrimSpace(row.ID),
		Email:          email,
		Name:           ExtractName(row.Notes, row.Card, email),
		Phone:          strings.TrimSpace(row.Contact),
		Amount:         amount,
		PaymentDateRaw: strings.TrimSpace(row.CreatedAt),
	}
	if kind == SourceWebhook {
		c.PaymentDate = parseUnix(row.CreatedAt)
		c.Remarks = "Via webhook"
	} else {
		c.PaymentDate = ParsePaymentDate(row.CreatedAt)
	}

	if info, ok := packages.Lookup(amount); ok {
		c.Package = info.Label
		c.PackageKey = info.Key
	} else {
		c.Package = "₹" + strconv.FormatFloat(amount, 'f', -1, 64)
		c.PackageKey = models.PackageOther
	}
	return c, nil
}

// Eligible reports whether a payment export row takes part in an import pass.
func Eligible(row PaymentRow, packages PackageTable, filter PackageFilter) bool {
	if strings.TrimSpace(row.Status) != StatusCaptured {
		return false
	}
	amount, err := strconv.ParseFloat(strings.TrimSpace(row.Amount), 64)
	if err != nil {
		return false
	}
	info, ok := packages.Lookup(amount)
	return ok && filter.Allows(info.Key)
}

type PaymentBatch struct {
	Candidates []models.Candidate
	Malformed  int
	Ineligible int
}

func NormalizePayments(rows []PaymentRow, packages PackageTable, filter PackageFilter) PaymentBatch {
	var batch PaymentBatch
	for _, row := range rows {
		if !Eligible(row, packages, filter) {
			batch.Ineligible++
			continue
		}
		c, err := RowToCandidate(row, SourcePaymentExport, packages)
		if err != nil {
			batch.Malformed++
			continue
		}
		batch.Candidates = append(batch.Candidates, c)
	}
	return batch
}

// ExtractName picks the first non-empty of notes.name, notes.registered_name,
// card.name and the local part of the email.
func ExtractName(notes, card, email string) string {
	if name := jsonString(notes, "name", "registered_name"); name != "" {
		return name
	}
	if name := jsonString(card, "name"); name != "" {
		return name
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return "Unknown"
}

func jsonString(blob string, keys ...string) string {
	blob = strings.TrimSpace(blob)
	if blob == "" || blob[0] != '{' {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(blob), &m); err != nil {
		return ""
	}
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

var ddmmyyyy = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})(?:\s+(\d{1,2}):(\d{2})(?::(\d{2}))?)?`)

// ParsePaymentDate understands the export's DD/MM/YYYY [HH:MM:SS] form plus
// ISO dates and unix seconds. Unparsable input yields the zero time.
func ParsePaymentDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if m := ddmmyyyy.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		hour, _ := strconv.Atoi(m[4])
		minute, _ := strconv.Atoi(m[5])
		sec, _ := strconv.Atoi(m[6])
		return time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC)
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return parseUnix(s)
}

func parseUnix(s string) time.Time {
	sec, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
