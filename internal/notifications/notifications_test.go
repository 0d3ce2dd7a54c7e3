package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fincoach/backend/internal/auth"
	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/apperrors"
	"github.com/fincoach/backend/pkg/metrics"
	"github.com/fincoach/backend/pkg/queue"
	"github.com/fincoach/backend/pkg/queue/queuetest"
)

func sampleMeeting() *models.Meeting {
	return &models.Meeting{
		ID: uuid.New(), Title: "Retirement basics", Expert: "Dana K.", Date: "2026-06-01", Time: "17:30",
		Duration: "1h", Language: "English", JoinURL: "https://meet.example.com/r",
	}
}

func TestConfirmationEmail(t *testing.T) {
	m := sampleMeeting()
	p := ConfirmationEmail(m, models.Registration{Name: "Sam", Email: "sam@example.com"})

	assert.Equal(t, models.EmailTypeRegistrationConfirmation, p.EmailType)
	assert.Equal(t, m.ID, p.MeetingID)
	assert.Equal(t, "sam@example.com", p.RecipientEmail)
	assert.Equal(t, "Registration confirmed: Retirement basics", p.Subject)
	assert.Contains(t, p.Body, "Hi Sam,")
	assert.Contains(t, p.Body, "Date: 2026-06-01")
	assert.Contains(t, p.Body, "Join link: https://meet.example.com/r")
}

func TestNotifier_Enqueues(t *testing.T) {
	lists := queuetest.New()
	n := NewNotifier(queue.NewQueue(lists, nil), nil)
	require.NoError(t, n.RegistrationConfirmed(context.Background(), sampleMeeting(), models.Registration{Email: "a@b.c"}))
	assert.Equal(t, 1, lists.Len(queue.QueueEmails))

	lists.PushErr = errors.New("redis down")
	err := n.RegistrationConfirmed(context.Background(), sampleMeeting(), models.Registration{Email: "a@b.c"})
	assert.ErrorContains(t, err, "enqueue confirmation")
}

func TestSMTPMailer(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", From: "noreply@example.com", FromName: "Sessions"})
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.NotNil(t, a)
		return nil
	}

	require.NoError(t, m.Send(context.Background(), "sam@example.com", "Hello\r\nBcc: x@y.z", "line1\nline2"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"sam@example.com"}, gotTo)
	msg := string(gotMsg)
	assert.Contains(t, msg, `From: "Sessions" <noreply@example.com>`)
	assert.Contains(t, msg, "Subject: HelloBcc: x@y.z\r\n")
	assert.True(t, strings.HasSuffix(msg, "line1\r\nline2"))

	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("421 busy") }
	assert.ErrorContains(t, m.Send(context.Background(), "sam@example.com", "s", "b"), "421 busy")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, "sam@example.com", "s", "b"), context.Canceled)
}

type fakeMailer struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (f *fakeMailer) Send(_ context.Context, to, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

type memLogs struct {
	mu   sync.Mutex
	logs []*models.EmailLog
}

func (m *memLogs) Create(_ context.Context, l *models.EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
	return nil
}

func (m *memLogs) ListByMeeting(_ context.Context, id uuid.UUID) ([]*models.EmailLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.EmailLog{}
	for _, l := range m.logs {
		if l.MeetingID == id {
			out = append(out, l)
		}
	}
	return out, nil
}

type workerEnv struct {
	lists   *queuetest.Lists
	queue   *queue.Queue
	mailer  *fakeMailer
	logs    *memLogs
	metrics *metrics.Metrics
	worker  *Worker
}

func newWorkerEnv() *workerEnv {
	e := &workerEnv{lists: queuetest.New(), mailer: &fakeMailer{}, logs: &memLogs{}}
	e.queue = queue.NewQueue(e.lists, nil)
	e.metrics = metrics.New(prometheus.NewRegistry(), "test")
	e.worker = NewWorker(e.queue, e.mailer, e.logs, e.metrics, nil)
	e.worker.backoff = 0
	return e
}

func TestWorker_SendsAndLogs(t *testing.T) {
	e := newWorkerEnv()
	ctx := context.Background()
	m := sampleMeeting()
	_, err := e.queue.EnqueueEmail(ctx, ConfirmationEmail(m, models.Registration{Name: "Sam", Email: "sam@example.com"}))
	require.NoError(t, err)

	assert.True(t, e.worker.step(ctx))
	assert.False(t, e.worker.step(ctx))

	assert.Equal(t, []string{"sam@example.com"}, e.mailer.sent)
	logs, _ := e.logs.ListByMeeting(ctx, m.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, models.EmailLogStatusSent, logs[0].Status)
	assert.NotNil(t, logs[0].SentAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.EmailsTotal.WithLabelValues(models.EmailTypeRegistrationConfirmation, "sent")))
}

func TestWorker_RetriesThenDeadLetters(t *testing.T) {
	e := newWorkerEnv()
	e.mailer.err = errors.New("mailbox unavailable")
	ctx := context.Background()
	m := sampleMeeting()
	_, err := e.queue.EnqueueEmail(ctx, ConfirmationEmail(m, models.Registration{Email: "sam@example.com"}))
	require.NoError(t, err)

	for i := 0; i < queue.MaxAttempts; i++ {
		require.True(t, e.worker.step(ctx), "attempt %d", i+1)
	}
	assert.Equal(t, 0, e.lists.Len(queue.QueueEmails))
	assert.Equal(t, 1, e.lists.Len(queue.QueueDLQ))

	logs, _ := e.logs.ListByMeeting(ctx, m.ID)
	require.Len(t, logs, queue.MaxAttempts)
	for _, l := range logs {
		assert.Equal(t, models.EmailLogStatusFailed, l.Status)
		assert.Equal(t, "mailbox unavailable", l.ErrorMessage)
		assert.Nil(t, l.SentAt)
	}
	assert.Equal(t, float64(queue.MaxAttempts), testutil.ToFloat64(e.metrics.EmailsTotal.WithLabelValues(models.EmailTypeRegistrationConfirmation, "failed")))
}

func TestWorker_RejectsUnknownJob(t *testing.T) {
	e := newWorkerEnv()
	err := e.worker.Process(context.Background(), &queue.Job{ID: "x", Type: "thumbnail"})
	assert.ErrorContains(t, err, "unknown job type")
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	e := newWorkerEnv()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.worker.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

type fakeAuthorizer struct {
	meeting *models.Meeting
}

func (f fakeAuthorizer) AuthorizeCreator(_ context.Context, id uuid.UUID, ident *auth.Identity) (*models.Meeting, error) {
	if id != f.meeting.ID {
		return nil, apperrors.NotFound("Meeting not found")
	}
	if !ident.Matches(f.meeting.Creator) {
		return nil, apperrors.Forbidden("Access denied")
	}
	return f.meeting, nil
}

func TestHandler_ListByMeeting(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := sampleMeeting()
	m.Creator = "expert@example.com"
	logs := &memLogs{}
	require.NoError(t, logs.Create(context.Background(), &models.EmailLog{ID: uuid.New(), MeetingID: m.ID, Status: "sent"}))
	h := NewHandler(fakeAuthorizer{meeting: m}, logs, nil)

	serve := func(path string, ident *auth.Identity) *httptest.ResponseRecorder {
		r := gin.New()
		r.GET("/api/meetings/:id/emails", func(c *gin.Context) {
			if ident != nil {
				c.Set(auth.ContextIdentity, ident)
			}
			h.ListByMeeting(c)
		})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := serve("/api/meetings/"+m.ID.String()+"/emails", &auth.Identity{Email: "expert@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []models.EmailLog `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)

	w = serve("/api/meetings/"+m.ID.String()+"/emails", &auth.Identity{Email: "member@example.com"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve("/api/meetings/nope/emails", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewMailer(t *testing.T) {
	assert.IsType(t, &LogMailer{}, NewMailer(SMTPConfig{}, nil))
	assert.IsType(t, &SMTPMailer{}, NewMailer(SMTPConfig{Host: "smtp.example.com", Port: 25}, nil))
	assert.NoError(t, NewLogMailer(nil).Send(context.Background(), "a@b.c", "s", "b"))
}
