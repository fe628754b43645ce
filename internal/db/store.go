package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookleaf/tracker/internal/models"
)

var ErrNotFound = errors.New("not found")

// ErrActiveBooking is returned when an author already has a confirmed booking.
var ErrActiveBooking = errors.New("author already has a confirmed booking")

const uniqueViolation = "23505"

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS authors (
	email            TEXT PRIMARY KEY,
	id               TEXT NOT NULL,
	name             TEXT NOT NULL DEFAULT '',
	phone            TEXT NOT NULL DEFAULT '',
	package          TEXT NOT NULL DEFAULT '',
	package_key      TEXT NOT NULL DEFAULT 'other',
	payment_date     TIMESTAMPTZ,
	payment_date_raw TEXT NOT NULL DEFAULT '',
	consultant       TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'assigned',
	remarks          TEXT NOT NULL DEFAULT '',
	stages           JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS author_overrides (
	email      TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	consultant TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'assigned',
	remarks    TEXT NOT NULL DEFAULT '',
	stages     JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS bookings (
	id           TEXT PRIMARY KEY,
	author_email TEXT NOT NULL,
	author_name  TEXT NOT NULL DEFAULT '',
	author_phone TEXT NOT NULL DEFAULT '',
	consultant   TEXT NOT NULL,
	date         TEXT NOT NULL,
	time_slot    TEXT NOT NULL,
	notes        TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS bookings_author_email_idx ON bookings (author_email, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS bookings_one_confirmed_idx ON bookings (author_email) WHERE status = 'confirmed';
`

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schema)
	return err
}

func (s *Store) ListAuthors(ctx context.Context) ([]models.Author, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, email, name, phone, package, package_key, payment_date, payment_date_raw,
			consultant, status, remarks, stages, updated_at
		FROM authors
		ORDER BY payment_date ASC NULLS FIRST, email ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Author
	for rows.Next() {
		var (
			a           models.Author
			paymentDate *time.Time
			stages      []byte
		)
		if err := rows.Scan(&a.ID, &a.Email, &a.Name, &a.Phone, &a.Package, &a.PackageKey, &paymentDate, &a.PaymentDateRaw,
			&a.Consultant, &a.Status, &a.Remarks, &stages, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if paymentDate != nil {
			a.PaymentDate = paymentDate.UTC()
		}
		if err := json.Unmarshal(stages, &a.Stages); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpsertAuthors(ctx context.Context, authors []models.Author) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, a := range authors {
			stages, err := json.Marshal(a.Stages)
			if err != nil {
				return err
			}
			batch.Queue(`
				INSERT INTO authors (email, id, name, phone, package, package_key, payment_date, payment_date_raw,
					consultant, status, remarks, stages, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
				ON CONFLICT (email) DO UPDATE SET
					id = EXCLUDED.id,
					name = EXCLUDED.name,
					phone = EXCLUDED.phone,
					package = EXCLUDED.package,
					package_key = EXCLUDED.package_key,
					payment_date = EXCLUDED.payment_date,
					payment_date_raw = EXCLUDED.payment_date_raw,
					consultant = EXCLUDED.consultant,
					status = EXCLUDED.status,
					remarks = EXCLUDED.remarks,
					stages = EXCLUDED.stages,
					updated_at = EXCLUDED.updated_at
			`, a.Email, a.ID, a.Name, a.Phone, a.Package, string(a.PackageKey), nullTime(a.PaymentDate), a.PaymentDateRaw,
				a.Consultant, string(a.Status), a.Remarks, stages, a.UpdatedAt)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *Store) ListOverrides(ctx context.Context) ([]models.OverrideRecord, error) {
	rows, err := s.Pool.Query(ctx, `SELECT email, name, consultant, status, remarks, stages, updated_at FROM author_overrides ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.OverrideRecord
	for rows.Next() {
		var (
			r      models.OverrideRecord
			stages []byte
		)
		if err := rows.Scan(&r.Email, &r.Name, &r.Consultant, &r.Status, &r.Remarks, &stages, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(stages, &r.Stages); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertOverrides writes full records; merging already happened in memory.
func (s *Store) UpsertOverrides(ctx context.Context, records []models.OverrideRecord) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range records {
			stages, err := json.Marshal(r.Stages)
			if err != nil {
				return err
			}
			batch.Queue(`
				INSERT INTO author_overrides (email, name, consultant, status, remarks, stages, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
				ON CONFLICT (email) DO UPDATE SET
					name = EXCLUDED.name,
					consultant = EXCLUDED.consultant,
					status = EXCLUDED.status,
					remarks = EXCLUDED.remarks,
					stages = EXCLUDED.stages,
					updated_at = EXCLUDED.updated_at
			`, r.Email, r.Name, r.Consultant, string(r.Status), r.Remarks, stages, r.UpdatedAt)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *Store) CreateBooking(ctx context.Context, b models.Booking) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO bookings (id, author_email, author_name, author_phone, consultant, date, time_slot, notes, status, created_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, b.ID, b.AuthorEmail, b.AuthorName, b.AuthorPhone, b.Consultant, b.Date, b.TimeSlot, b.Notes, string(b.Status), b.CreatedAt, b.CompletedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrActiveBooking
	}
	return err
}

const bookingColumns = `id, author_email, author_name, author_phone, consultant, date, time_slot, notes, status, created_at, completed_at`

func scanBooking(row pgx.Row) (models.Booking, error) {
	var b models.Booking
	err := row.Scan(&b.ID, &b.AuthorEmail, &b.AuthorName, &b.AuthorPhone, &b.Consultant, &b.Date, &b.TimeSlot, &b.Notes, &b.Status, &b.CreatedAt, &b.CompletedAt)
	return b, err
}

// ListBookings returns bookings newest first. An empty email lists all.
func (s *Store) ListBookings(ctx context.Context, email string) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings`
	var args []any
	if email != "" {
		query += ` WHERE author_email = $1`
		args = append(args, email)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) GetBooking(ctx context.Context, id string) (models.Booking, error) {
	b, err := scanBooking(s.Pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Booking{}, ErrNotFound
	}
	return b, err
}

func (s *Store) UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus, completedAt *time.Time) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE bookings SET status = $1, completed_at = $2 WHERE id = $3`, string(status), completedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
