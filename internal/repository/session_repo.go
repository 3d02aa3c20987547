package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tutorlink/api/internal/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*domain.Session, error)
	ListByParticipant(ctx context.Context, userID int64, limit, offset int) ([]domain.Session, error)
	// Start and End are compare-and-set transitions; both report whether the
	// caller won the transition.
	Start(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	End(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// Revert undoes a completed End when the cascading settle failed, so the
	// whole transition rolls back as a unit.
	RevertEnd(ctx context.Context, id uuid.UUID) error
	MarkMissed(ctx context.Context, id uuid.UUID) (bool, error)
	ListScheduledWindowElapsed(ctx context.Context, windowEnd time.Time, limit int) ([]domain.Session, error)
}

type sessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

const sessionCols = `id, booking_id, tutor_id, student_id, scheduled_start, scheduled_end, actual_start, actual_end, status, created_at, updated_at`

func (r *sessionRepository) Create(ctx context.Context, s *domain.Session) error {
	const q = `INSERT INTO sessions (id, booking_id, tutor_id, student_id, scheduled_start, scheduled_end, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return r.pool.QueryRow(ctx, q,
		s.ID, s.BookingID, s.TutorID, s.StudentID, s.ScheduledStart, s.ScheduledEnd, s.Status,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	return r.getBy(ctx, `id`, id)
}

func (r *sessionRepository) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*domain.Session, error) {
	return r.getBy(ctx, `booking_id`, bookingID)
}

func (r *sessionRepository) getBy(ctx context.Context, col string, id uuid.UUID) (*domain.Session, error) {
	q := `SELECT ` + sessionCols + ` FROM sessions WHERE ` + col + `=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var s domain.Session
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&s.ID, &s.BookingID, &s.TutorID, &s.StudentID, &s.ScheduledStart, &s.ScheduledEnd,
		&s.ActualStart, &s.ActualEnd, &s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return &s, err
}

func (r *sessionRepository) ListByParticipant(ctx context.Context, userID int64, limit, offset int) ([]domain.Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `SELECT ` + sessionCols + ` FROM sessions
		WHERE tutor_id=$1 OR student_id=$1
		ORDER BY scheduled_start DESC LIMIT $2 OFFSET $3`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (r *sessionRepository) Start(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	const q = `UPDATE sessions SET status='in_progress', actual_start=$2, updated_at=now()
		WHERE id=$1 AND status='scheduled'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, at)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *sessionRepository) End(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	const q = `UPDATE sessions SET status='completed', actual_end=$2, updated_at=now()
		WHERE id=$1 AND status='in_progress'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, at)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *sessionRepository) RevertEnd(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE sessions SET status='in_progress', actual_end=NULL, updated_at=now()
		WHERE id=$1 AND status='completed'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id)
	return err
}

func (r *sessionRepository) MarkMissed(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE sessions SET status='missed', updated_at=now() WHERE id=$1 AND status='scheduled'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *sessionRepository) ListScheduledWindowElapsed(ctx context.Context, windowEnd time.Time, limit int) ([]domain.Session, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	const q = `SELECT ` + sessionCols + ` FROM sessions
		WHERE status='scheduled' AND scheduled_end < $1
		ORDER BY scheduled_end LIMIT $2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, windowEnd, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSessions(rows pgx.Rows) ([]domain.Session, error) {
	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(
			&s.ID, &s.BookingID, &s.TutorID, &s.StudentID, &s.ScheduledStart, &s.ScheduledEnd,
			&s.ActualStart, &s.ActualEnd, &s.Status, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
