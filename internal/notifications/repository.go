package notifications

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fincoach/backend/internal/models"
)

// LogStore records email delivery attempts.
type LogStore interface {
	Create(ctx context.Context, l *models.EmailLog) error
	ListByMeeting(ctx context.Context, meetingID uuid.UUID) ([]*models.EmailLog, error)
}

// Repository handles email_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a log row.
func (r *Repository) Create(ctx context.Context, l *models.EmailLog) error {
	var errMsg *string
	if l.ErrorMessage != "" {
		errMsg = &l.ErrorMessage
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO email_logs
		(id, meeting_id, email_type, recipient_email, subject, status, sent_at, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.MeetingID, l.EmailType, l.RecipientEmail, l.Subject, l.Status, l.SentAt, errMsg, l.CreatedAt)
	return err
}

// ListByMeeting returns email logs for a meeting, newest first.
func (r *Repository) ListByMeeting(ctx context.Context, meetingID uuid.UUID) ([]*models.EmailLog, error) {
	const q = `SELECT id, meeting_id, email_type, recipient_email, subject, status, sent_at, error_message, created_at
		FROM email_logs
		WHERE meeting_id = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.EmailLog{}
	for rows.Next() {
		var el models.EmailLog
		var errMsg *string
		if err := rows.Scan(&el.ID, &el.MeetingID, &el.EmailType, &el.RecipientEmail, &el.Subject, &el.Status, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, err
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		list = append(list, &el)
	}
	return list, rows.Err()
}
