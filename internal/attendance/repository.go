// Package attendance stores join/leave records, one per user and meeting.
package attendance

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fincoach/backend/internal/meetings"
	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/apperrors"
	"github.com/fincoach/backend/pkg/database"
)

var (
	_ meetings.AttendanceStore = (*Repository)(nil)
	_ meetings.AttendanceStore = (*MongoRepository)(nil)
)

func alreadyJoined() error {
	return apperrors.New(apperrors.ErrAlreadyJoined, "You have already joined this meeting")
}

func notFound() error {
	return apperrors.NotFound("Attendance record not found")
}

// Repository handles the attendance table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attendance repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, user_id, meeting_id, join_time, leave_time, duration, status, ip_address, user_agent, created_at, updated_at`

func scan(row pgx.Row) (*models.Attendance, error) {
	var a models.Attendance
	var status string
	if err := row.Scan(&a.ID, &a.UserID, &a.MeetingID, &a.JoinTime, &a.LeaveTime, &a.Duration, &status,
		&a.IPAddress, &a.UserAgent, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = models.AttendanceStatus(status)
	return &a, nil
}

// Create inserts a row. The (user_id, meeting_id) unique key rejects a second join.
func (r *Repository) Create(ctx context.Context, a *models.Attendance) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO attendance (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.UserID, a.MeetingID, a.JoinTime, a.LeaveTime, a.Duration, string(a.Status),
		a.IPAddress, a.UserAgent, a.CreatedAt, a.UpdatedAt)
	if database.IsUniqueViolation(err) {
		return alreadyJoined()
	}
	return err
}

// Get returns the user's row for the meeting.
func (r *Repository) Get(ctx context.Context, meetingID uuid.UUID, userID string) (*models.Attendance, error) {
	a, err := scan(r.pool.QueryRow(ctx,
		`SELECT `+columns+` FROM attendance WHERE meeting_id = $1 AND user_id = $2`, meetingID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound()
	}
	return a, err
}

// Update writes leave time, duration and status.
func (r *Repository) Update(ctx context.Context, a *models.Attendance) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attendance SET leave_time = $2, duration = $3, status = $4, updated_at = $5 WHERE id = $1`,
		a.ID, a.LeaveTime, a.Duration, string(a.Status), a.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound()
	}
	return nil
}

// ListByMeeting returns every row of the meeting, earliest join first.
func (r *Repository) ListByMeeting(ctx context.Context, meetingID uuid.UUID) ([]*models.Attendance, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+columns+` FROM attendance WHERE meeting_id = $1 ORDER BY join_time ASC`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Attendance
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// DeleteByMeeting removes every row of the meeting.
func (r *Repository) DeleteByMeeting(ctx context.Context, meetingID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM attendance WHERE meeting_id = $1`, meetingID)
	return err
}

// MarkAttended sets every row of the meeting to attended.
func (r *Repository) MarkAttended(ctx context.Context, meetingID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attendance SET status = 'attended', updated_at = NOW() WHERE meeting_id = $1`, meetingID)
	return err
}
