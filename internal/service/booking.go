package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bookleaf/tracker/internal/models"
	"github.com/bookleaf/tracker/internal/normalize"
	"github.com/bookleaf/tracker/internal/utils"
)

const bookingDateLayout = "2006-01-02"

// BookingToken binds an (author, consultant) pair to a shareable link. It
// only stops casual tampering.
func BookingToken(email, consultant, secret string) string {
	return utils.Djb2Base36(normalize.NormalizeEmail(email) + "|" + strings.TrimSpace(consultant) + "|" + secret)
}

// ValidateBookingToken recomputes the token and reports ErrInvalidLink on any
// mismatch.
func ValidateBookingToken(email, consultant, token, secret string) error {
	want := BookingToken(email, consultant, secret)
	if subtle.ConstantTimeCompare([]byte(want), []byte(strings.TrimSpace(token))) != 1 {
		return ErrInvalidLink
	}
	return nil
}

// TimeSlots are the half-hour starts offered every bookable day.
func TimeSlots() []string {
	var out []string
	for h := 10; h < 18; h++ {
		for _, m := range []int{0, 30} {
			out = append(out, fmt.Sprintf("%02d:%02d", h, m))
		}
	}
	return out
}

func validSlot(slot string) bool {
	for _, s := range TimeSlots() {
		if s == slot {
			return true
		}
	}
	return false
}

type BookingRepository interface {
	CreateBooking(ctx context.Context, b models.Booking) error
	ListBookings(ctx context.Context, email string) ([]models.Booking, error)
	GetBooking(ctx context.Context, id string) (models.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus, completedAt *time.Time) error
}

type BookingMailer interface {
	SendBookingConfirmation(b models.Booking, consultant models.Consultant) error
}

// AuthorDirectory is the identity lookup the booking flow needs.
type AuthorDirectory interface {
	Author(email string) (models.Author, bool)
	Consultant(name string) (models.Consultant, bool)
}

type BookingService struct {
	Repo    BookingRepository
	Authors AuthorDirectory
	Mailer  BookingMailer
	Secret  string
	BaseURL string
	Logger  zerolog.Logger
	Now     func() time.Time

	// held across the active-booking check and the insert
	insertMu sync.Mutex
}

func (s *BookingService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

type BookingLink struct {
	Email      string `json:"email"`
	Consultant string `json:"consultant"`
	Token      string `json:"token"`
	URL        string `json:"url"`
}

// Link builds the booking link for an author and their consultant.
func (s *BookingService) Link(email string) (BookingLink, error) {
	a, ok := s.Authors.Author(email)
	if !ok {
		return BookingLink{}, ErrAuthorNotFound
	}
	if a.Consultant == "" {
		return BookingLink{}, fmt.Errorf("%w: author has no consultant", ErrUnknownConsultant)
	}
	token := BookingToken(a.Email, a.Consultant, s.Secret)
	q := url.Values{}
	q.Set("book", "true")
	q.Set("author", a.Email)
	q.Set("consultant", a.Consultant)
	q.Set("token", token)
	return BookingLink{
		Email:      a.Email,
		Consultant: a.Consultant,
		Token:      token,
		URL:        strings.TrimRight(s.BaseURL, "/") + "/?" + q.Encode(),
	}, nil
}

func (s *BookingService) ValidateLink(email, consultant, token string) error {
	return ValidateBookingToken(email, consultant, token, s.Secret)
}

type BookingRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Consultant string `json:"consultant" validate:"required"`
	Token      string `json:"token" validate:"required"`
	Date       string `json:"date" validate:"required"`
	TimeSlot   string `json:"time_slot" validate:"required"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Notes      string `json:"notes" validate:"max=1000"`
}

// Book creates a confirmed booking. An author with a confirmed booking must
// complete or cancel it first.
func (s *BookingService) Book(ctx context.Context, req BookingRequest) (models.Booking, error) {
	if err := s.ValidateLink(req.Email, req.Consultant, req.Token); err != nil {
		return models.Booking{}, err
	}
	if err := s.checkSlot(req.Date, req.TimeSlot); err != nil {
		return models.Booking{}, err
	}
	email := normalize.NormalizeEmail(req.Email)

	b := models.Booking{
		ID:          uuid.NewString(),
		AuthorEmail: email,
		AuthorName:  strings.TrimSpace(req.Name),
		AuthorPhone: strings.TrimSpace(req.Phone),
		Consultant:  strings.TrimSpace(req.Consultant),
		Date:        req.Date,
		TimeSlot:    req.TimeSlot,
		Notes:       strings.TrimSpace(req.Notes),
		Status:      models.BookingConfirmed,
		CreatedAt:   s.now(),
	}
	if a, ok := s.Authors.Author(email); ok {
		if b.AuthorName == "" {
			b.AuthorName = a.Name
		}
		if b.AuthorPhone == "" {
			b.AuthorPhone = a.Phone
		}
	}
	if err := s.insert(ctx, b); err != nil {
		return models.Booking{}, err
	}

	if s.Mailer != nil {
		consultant, _ := s.Authors.Consultant(b.Consultant)
		if consultant.Name == "" {
			consultant.Name = b.Consultant
		}
		if err := s.Mailer.SendBookingConfirmation(b, consultant); err != nil {
			s.Logger.Warn().Err(err).Str("booking_id", b.ID).Msg("booking confirmation mail failed")
		}
	}
	s.Logger.Info().Str("booking_id", b.ID).Str("email", email).Str("consultant", b.Consultant).Msg("booking created")
	return b, nil
}

// insert creates b unless its author already holds a confirmed booking.
func (s *BookingService) insert(ctx context.Context, b models.Booking) error {
	s.insertMu.Lock()
	defer s.insertMu.Unlock()
	current, err := s.Current(ctx, b.AuthorEmail)
	if err != nil {
		return err
	}
	if current != nil && current.Status == models.BookingConfirmed {
		return ErrActiveBooking
	}
	if err := s.Repo.CreateBooking(ctx, b); err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

func (s *BookingService) checkSlot(date, slot string) error {
	day, err := time.Parse(bookingDateLayout, strings.TrimSpace(date))
	if err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidSlot)
	}
	if day.Weekday() == time.Sunday {
		return fmt.Errorf("%w: no bookings on Sunday", ErrInvalidSlot)
	}
	today := s.now().Truncate(24 * time.Hour)
	if day.Before(today) {
		return fmt.Errorf("%w: date is in the past", ErrInvalidSlot)
	}
	if !validSlot(slot) {
		return fmt.Errorf("%w: unknown time slot %q", ErrInvalidSlot, slot)
	}
	return nil
}

// Current is the most recently created booking for email that is not
// cancelled, or nil.
func (s *BookingService) Current(ctx context.Context, email string) (*models.Booking, error) {
	list, err := s.Repo.ListBookings(ctx, normalize.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	var current *models.Booking
	for i := range list {
		b := list[i]
		if b.Status == models.BookingCancelled {
			continue
		}
		if current == nil || b.CreatedAt.After(current.CreatedAt) {
			current = &b
		}
	}
	return current, nil
}

// UpdateStatus moves a confirmed booking to completed or cancelled.
func (s *BookingService) UpdateStatus(ctx context.Context, id string, status models.BookingStatus) (models.Booking, error) {
	b, err := s.Repo.GetBooking(ctx, id)
	if err != nil {
		return models.Booking{}, err
	}
	if b.Status != models.BookingConfirmed || (status != models.BookingCompleted && status != models.BookingCancelled) {
		return models.Booking{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, b.Status, status)
	}
	var completedAt *time.Time
	if status == models.BookingCompleted {
		at := s.now()
		completedAt = &at
	}
	if err := s.Repo.UpdateBookingStatus(ctx, id, status, completedAt); err != nil {
		return models.Booking{}, fmt.Errorf("update booking: %w", err)
	}
	b.Status = status
	b.CompletedAt = completedAt
	return b, nil
}

// MemoryBookings keeps bookings in process when no database is configured.
type MemoryBookings struct {
	mu       sync.Mutex
	bookings []models.Booking
}

func NewMemoryBookings() *MemoryBookings {
	return &MemoryBookings{}
}

func (m *MemoryBookings) CreateBooking(ctx context.Context, b models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings = append(m.bookings, b)
	return nil
}

func (m *MemoryBookings) ListBookings(ctx context.Context, email string) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if email == "" || b.AuthorEmail == email {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryBookings) GetBooking(ctx context.Context, id string) (models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.ID == id {
			return b, nil
		}
	}
	return models.Booking{}, ErrBookingNotFound
}

func (m *MemoryBookings) UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus, completedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.bookings {
		if m.bookings[i].ID == id {
			m.bookings[i].Status = status
			m.bookings[i].CompletedAt = completedAt
			return nil
		}
	}
	return ErrBookingNotFound
}
