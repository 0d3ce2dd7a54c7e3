package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/metrics"
	"github.com/fincoach/backend/pkg/queue"
)

const dequeueTimeout = 5 * time.Second

// Worker sends queued emails. A failed send is logged, retried and finally
// dead-lettered by the queue.
type Worker struct {
	queue   *queue.Queue
	mailer  Mailer
	logs    LogStore
	metrics *metrics.Metrics
	logger  *zap.Logger
	backoff time.Duration
	now     func() time.Time
}

// NewWorker creates an email worker. logs and m may be nil.
func NewWorker(q *queue.Queue, mailer Mailer, logs LogStore, m *metrics.Metrics, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:   q,
		mailer:  mailer,
		logs:    logs,
		metrics: m,
		logger:  logger,
		backoff: queue.RetryBackoff,
		now:     time.Now,
	}
}

// Process sends the email of one job and records the outcome.
func (w *Worker) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var p queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	sendErr := w.mailer.Send(ctx, p.RecipientEmail, p.Subject, p.Body)
	now := w.now().UTC()
	entry := &models.EmailLog{
		ID:             uuid.New(),
		MeetingID:      p.MeetingID,
		EmailType:      p.EmailType,
		RecipientEmail: p.RecipientEmail,
		Subject:        p.Subject,
		Status:         models.EmailLogStatusSent,
		CreatedAt:      now,
	}
	if sendErr != nil {
		entry.Status = models.EmailLogStatusFailed
		entry.ErrorMessage = sendErr.Error()
	} else {
		entry.SentAt = &now
	}
	w.metrics.ObserveEmail(p.EmailType, entry.Status)

	if w.logs != nil {
		if err := w.logs.Create(ctx, entry); err != nil {
			w.logger.Error("email log write failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	return sendErr
}

// Run dequeues and processes email jobs until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			w.logger.Info("email worker stopping")
			return
		}
		w.step(ctx)
	}
}

// step handles at most one job and reports whether one was taken.
func (w *Worker) step(ctx context.Context) bool {
	job, key, err := w.queue.Dequeue(ctx, dequeueTimeout, queue.QueueEmails)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Warn("dequeue error", zap.Error(err))
			w.sleep(ctx)
		}
		return false
	}
	if job == nil {
		return false
	}

	w.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	if err := w.Process(ctx, job); err != nil {
		w.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
		if _, reErr := w.queue.Retry(ctx, key, job); reErr != nil {
			w.logger.Error("retry enqueue failed", zap.Error(reErr))
		}
		w.sleep(ctx)
	}
	return true
}

func (w *Worker) sleep(ctx context.Context) {
	t := time.NewTimer(w.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
