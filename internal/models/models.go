package models

import (
	"strconv"
	"time"
)

type PackageKey string

const (
	PackageIndian PackageKey = "indian"
	PackageIntl   PackageKey = "intl"
	PackageOther  PackageKey = "other"
)

type Status string

const (
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in-progress"
	StatusGoodToGo   Status = "good-to-go"
	StatusCompleted  Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAssigned, StatusInProgress, StatusGoodToGo, StatusCompleted:
		return true
	}
	return false
}

// Stage names in pipeline order. The order is advisory only.
const (
	StageIntroEmail        = "introEmail"
	StageAuthorResponse    = "authorResponse"
	StageFollowUp          = "followUp"
	StageMarkedYes         = "markedYes"
	StageFilesGenerated    = "filesGenerated"
	StageAddressMarketing  = "addressMarketing"
	StagePrimePlacement    = "primePlacement"
	StageConfirmationEmail = "confirmationEmail"
)

var StageNames = []string{
	StageIntroEmail,
	StageAuthorResponse,
	StageFollowUp,
	StageMarkedYes,
	StageFilesGenerated,
	StageAddressMarketing,
	StagePrimePlacement,
	StageConfirmationEmail,
}

type Stages struct {
	IntroEmail        bool `json:"introEmail"`
	AuthorResponse    bool `json:"authorResponse"`
	FollowUp          bool `json:"followUp"`
	MarkedYes         bool `json:"markedYes"`
	FilesGenerated    bool `json:"filesGenerated"`
	AddressMarketing  bool `json:"addressMarketing"`
	PrimePlacement    bool `json:"primePlacement"`
	ConfirmationEmail bool `json:"confirmationEmail"`
}

// Field returns a pointer to the named stage flag, or nil for an unknown name.
func (s *Stages) Field(name string) *bool {
	switch name {
	case StageIntroEmail:
		return &s.IntroEmail
	case StageAuthorResponse:
		return &s.AuthorResponse
	case StageFollowUp:
		return &s.FollowUp
	case StageMarkedYes:
		return &s.MarkedYes
	case StageFilesGenerated:
		return &s.FilesGenerated
	case StageAddressMarketing:
		return &s.AddressMarketing
	case StagePrimePlacement:
		return &s.PrimePlacement
	case StageConfirmationEmail:
		return &s.ConfirmationEmail
	}
	return nil
}

type Author struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone"`
	Package        string     `json:"package"`
	PackageKey     PackageKey `json:"package_key"`
	PaymentDate    time.Time  `json:"payment_date"`
	PaymentDateRaw string     `json:"payment_date_raw,omitempty"`
	Consultant     string     `json:"consultant"`
	Status         Status     `json:"status"`
	Remarks        string     `json:"remarks"`
	Stages         Stages     `json:"stages"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Candidate is a normalized author-to-be produced from a payment row or webhook.
type Candidate struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone"`
	Amount         float64    `json:"amount"`
	Package        string     `json:"package"`
	PackageKey     PackageKey `json:"package_key"`
	PaymentDate    time.Time  `json:"payment_date"`
	PaymentDateRaw string     `json:"payment_date_raw,omitempty"`
	Remarks        string     `json:"remarks,omitempty"`
}

type OverrideRecord struct {
	Email      string    `json:"email"`
	Name       string    `json:"name,omitempty"`
	Consultant string    `json:"consultant"`
	Status     Status    `json:"status"`
	Remarks    string    `json:"remarks"`
	Stages     Stages    `json:"stages"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StagePatch carries only the stage flags a writer actually supplied.
type StagePatch map[string]bool

// OverridePatch is a partial override; nil fields are left untouched.
type OverridePatch struct {
	Name       *string    `json:"name,omitempty"`
	Consultant *string    `json:"consultant,omitempty"`
	Status     *Status    `json:"status,omitempty"`
	Remarks    *string    `json:"remarks,omitempty"`
	Stages     StagePatch `json:"stages,omitempty"`
}

type Consultant struct {
	Name     string `json:"name" yaml:"name"`
	FullName string `json:"full_name" yaml:"full_name"`
	Email    string `json:"email" yaml:"email"`
	Active   bool   `json:"active" yaml:"active"`
}

type TicketStatusCode int

const (
	TicketOpen     TicketStatusCode = 2
	TicketPending  TicketStatusCode = 3
	TicketResolved TicketStatusCode = 4
	TicketClosed   TicketStatusCode = 5
)

func (c TicketStatusCode) Label() string {
	switch c {
	case TicketOpen:
		return "Open"
	case TicketPending:
		return "Pending"
	case TicketResolved:
		return "Resolved"
	case TicketClosed:
		return "Closed"
	case 0:
		return "Unknown"
	}
	return "Status " + strconv.Itoa(int(c))
}

func (c TicketStatusCode) Terminal() bool {
	return c == TicketResolved || c == TicketClosed
}

// TicketFact is the raw provider data for a ticket. Only facts are cached.
type TicketFact struct {
	ID             int64            `json:"id"`
	Subject        string           `json:"subject"`
	RequesterEmail string           `json:"requester_email"`
	ResponderID    *int64           `json:"responder_id"`
	StatusCode     TicketStatusCode `json:"status_code"`
	CreatedAt      string           `json:"created_at,omitempty"`
	UpdatedAt      string           `json:"updated_at,omitempty"`
}

// Ticket is a fact joined with the current author collection.
type Ticket struct {
	TicketFact
	Status            string `json:"status"`
	IsMatched         bool   `json:"is_matched"`
	MatchedAuthor     string `json:"matched_author,omitempty"`
	MatchedConsultant string `json:"matched_consultant,omitempty"`
	ExpectedAgentID   *int64 `json:"expected_agent_id,omitempty"`
	NeedsReassign     bool   `json:"needs_reassign"`
	AgentUnresolved   bool   `json:"agent_unresolved"`
}

// TicketSnapshot is what the ticket cache stores under a scope key.
type TicketSnapshot struct {
	Tickets   []TicketFact `json:"tickets"`
	FetchedAt time.Time    `json:"fetchedAt"`
}

// Agent is a help-desk agent from the provider's directory.
type Agent struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

type Booking struct {
	ID          string        `json:"id"`
	AuthorEmail string        `json:"author_email"`
	AuthorName  string        `json:"author_name"`
	AuthorPhone string        `json:"author_phone"`
	Consultant  string        `json:"consultant"`
	Date        string        `json:"date"`
	TimeSlot    string        `json:"time_slot"`
	Notes       string        `json:"notes"`
	Status      BookingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at"`
}
