// Package notifications sends registration confirmation emails through the
// Redis job queue and keeps a log of every delivery attempt.
package notifications

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/queue"
)

// Enqueuer queues email jobs.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) (*queue.Job, error)
}

// Notifier turns registrations into queued confirmation emails.
type Notifier struct {
	queue  Enqueuer
	logger *zap.Logger
}

// NewNotifier creates a notifier.
func NewNotifier(q Enqueuer, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{queue: q, logger: logger}
}

// RegistrationConfirmed queues a confirmation for reg.
func (n *Notifier) RegistrationConfirmed(ctx context.Context, m *models.Meeting, reg models.Registration) error {
	job, err := n.queue.EnqueueEmail(ctx, ConfirmationEmail(m, reg))
	if err != nil {
		return fmt.Errorf("enqueue confirmation: %w", err)
	}
	n.logger.Debug("confirmation queued",
		zap.String("job_id", job.ID),
		zap.String("meeting_id", m.ID.String()),
	)
	return nil
}

// ConfirmationEmail builds the confirmation email for reg.
func ConfirmationEmail(m *models.Meeting, reg models.Registration) queue.EmailPayload {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", reg.Name)
	fmt.Fprintf(&b, "You are registered for %q with %s.\n\n", m.Title, m.Expert)
	fmt.Fprintf(&b, "Date: %s\nTime: %s\nDuration: %s\nLanguage: %s\n", m.Date, m.Time, m.Duration, m.Language)
	if m.JoinURL != "" {
		fmt.Fprintf(&b, "Join link: %s\n", m.JoinURL)
	}
	b.WriteString("\nThe join button opens when the session goes live.\n")

	return queue.EmailPayload{
		EmailType:      models.EmailTypeRegistrationConfirmation,
		MeetingID:      m.ID,
		RecipientEmail: reg.Email,
		RecipientName:  reg.Name,
		Subject:        "Registration confirmed: " + m.Title,
		Body:           b.String(),
	}
}
