package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tutorlink/api/internal/domain"
)

type BookingRepository interface {
	Create(ctx context.Context, b *domain.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	ListByStudent(ctx context.Context, studentID int64, limit, offset int, status *domain.BookingStatus) ([]domain.Booking, error)
	ListByTutor(ctx context.Context, tutorID int64, limit, offset int, status *domain.BookingStatus) ([]domain.Booking, error)
	// Transition is a compare-and-set on status: it commits only if the row
	// is still in the expected pre-state and reports whether it won.
	Transition(ctx context.Context, id uuid.UUID, from, to domain.BookingStatus) (bool, error)
	HasOverlap(ctx context.Context, tutorID int64, start, end time.Time) (bool, error)
	ListPendingStartedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error)
}

type bookingRepository struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) BookingRepository {
	return &bookingRepository{pool: pool}
}

const bookingCols = `id, student_id, tutor_id, start_at, duration_minutes, note, status, fee_cents, created_at, decided_at`

func (r *bookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	const q = `INSERT INTO bookings (id, student_id, tutor_id, start_at, duration_minutes, note, status, fee_cents)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.pool.QueryRow(ctx, q,
		b.ID, b.StudentID, b.TutorID, b.StartAt, b.DurationMinutes, b.Note, b.Status, b.FeeCents,
	).Scan(&b.CreatedAt)
}

func (r *bookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var b domain.Booking
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&b.ID, &b.StudentID, &b.TutorID, &b.StartAt, &b.DurationMinutes,
		&b.Note, &b.Status, &b.FeeCents, &b.CreatedAt, &b.DecidedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return &b, err
}

func (r *bookingRepository) ListByStudent(ctx context.Context, studentID int64, limit, offset int, status *domain.BookingStatus) ([]domain.Booking, error) {
	return r.list(ctx, `student_id`, studentID, limit, offset, status)
}

func (r *bookingRepository) ListByTutor(ctx context.Context, tutorID int64, limit, offset int, status *domain.BookingStatus) ([]domain.Booking, error) {
	return r.list(ctx, `tutor_id`, tutorID, limit, offset, status)
}

func (r *bookingRepository) list(ctx context.Context, ownerCol string, ownerID int64, limit, offset int, status *domain.BookingStatus) ([]domain.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := `SELECT ` + bookingCols + ` FROM bookings WHERE ` + ownerCol + `=$1`
	args := []any{ownerID}
	if status != nil {
		q += ` AND status=$2 ORDER BY start_at DESC LIMIT $3 OFFSET $4`
		args = append(args, *status, limit, offset)
	} else {
		q += ` ORDER BY start_at DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (r *bookingRepository) Transition(ctx context.Context, id uuid.UUID, from, to domain.BookingStatus) (bool, error) {
	const q = `UPDATE bookings SET status=$3, decided_at=now() WHERE id=$1 AND status=$2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, from, to)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *bookingRepository) HasOverlap(ctx context.Context, tutorID int64, start, end time.Time) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM bookings
		WHERE tutor_id=$1
		  AND status IN ('pending', 'accepted')
		  AND start_at < $3
		  AND start_at + duration_minutes * interval '1 minute' > $2
	)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, q, tutorID, start, end).Scan(&exists)
	return exists, err
}

func (r *bookingRepository) ListPendingStartedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE status='pending' AND start_at < $1 ORDER BY start_at LIMIT $2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

func scanBookings(rows pgx.Rows) ([]domain.Booking, error) {
	var bookings []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(
			&b.ID, &b.StudentID, &b.TutorID, &b.StartAt, &b.DurationMinutes,
			&b.Note, &b.Status, &b.FeeCents, &b.CreatedAt, &b.DecidedAt,
		); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
