package meetings

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/apperrors"
)

type memMeetings struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Meeting
}

func newMemMeetings() *memMeetings {
	return &memMeetings{byID: map[uuid.UUID]*models.Meeting{}}
}

func cloneMeeting(m *models.Meeting) *models.Meeting {
	cp := *m
	cp.Topics = append([]string(nil), m.Topics...)
	cp.Registrations = append([]models.Registration(nil), m.Registrations...)
	return &cp
}

func (s *memMeetings) Create(_ context.Context, m *models.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[m.ID] = cloneMeeting(m)
	return nil
}

func (s *memMeetings) GetByID(_ context.Context, id uuid.UUID) (*models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, apperrors.NotFound("Meeting not found")
	}
	return cloneMeeting(m), nil
}

func (s *memMeetings) Update(_ context.Context, m *models.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[m.ID]
	if !ok {
		return apperrors.NotFound("Meeting not found")
	}
	next := cloneMeeting(m)
	next.Creator = cur.Creator
	next.Registrations = cur.Registrations
	next.CreatedAt = cur.CreatedAt
	s.byID[m.ID] = next
	return nil
}

func (s *memMeetings) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

func (s *memMeetings) List(_ context.Context, q ListQuery) ([]*models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Meeting
	for _, m := range s.byID {
		if !m.IsPublic {
			continue
		}
		if q.Language != "" && m.Language != q.Language {
			continue
		}
		if q.Type != "" && m.Type != q.Type {
			continue
		}
		switch q.Scope {
		case ScopeUpcoming:
			if m.Date < q.Today || m.Status != models.MeetingStatusScheduled {
				continue
			}
		case ScopeArchived:
			if !(m.Date < q.Today || m.Status == models.MeetingStatusCompleted) {
				continue
			}
		}
		out = append(out, cloneMeeting(m))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Date+" "+out[i].Time, out[j].Date+" "+out[j].Time
		if q.Scope == ScopeArchived {
			return a > b
		}
		return a < b
	})
	if q.Offset >= len(out) {
		return []*models.Meeting{}, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *memMeetings) ListForDate(_ context.Context, date string, statuses []models.MeetingStatus) ([]*models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Meeting
	for _, m := range s.byID {
		if !m.IsPublic || m.Date != date {
			continue
		}
		for _, st := range statuses {
			if m.Status == st {
				out = append(out, cloneMeeting(m))
				break
			}
		}
	}
	return out, nil
}

func (s *memMeetings) AddRegistration(_ context.Context, id uuid.UUID, reg models.Registration) (*models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, apperrors.NotFound("Meeting not found")
	}
	if m.IsFull() {
		return nil, apperrors.New(apperrors.ErrCapacity, "Meeting is full")
	}
	if m.HasEmail(reg.Email) {
		return nil, apperrors.New(apperrors.ErrDuplicate, "You are already registered for this meeting")
	}
	m.Registrations = append(m.Registrations, reg)
	return cloneMeeting(m), nil
}

func (s *memMeetings) ListRegisteredFor(_ context.Context, email, userID string) ([]*models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Meeting
	for _, m := range s.byID {
		for _, r := range m.Registrations {
			if (email != "" && strings.EqualFold(r.Email, email)) || (userID != "" && r.UserID == userID) {
				out = append(out, cloneMeeting(m))
				break
			}
		}
	}
	return out, nil
}

type memAttendance struct {
	mu   sync.Mutex
	rows map[string]*models.Attendance
}

func newMemAttendance() *memAttendance {
	return &memAttendance{rows: map[string]*models.Attendance{}}
}

func attendanceKey(meetingID uuid.UUID, userID string) string {
	return meetingID.String() + "|" + userID
}

func (s *memAttendance) Create(_ context.Context, a *models.Attendance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := attendanceKey(a.MeetingID, a.UserID)
	if _, ok := s.rows[k]; ok {
		return alreadyJoined()
	}
	cp := *a
	s.rows[k] = &cp
	return nil
}

func (s *memAttendance) Get(_ context.Context, meetingID uuid.UUID, userID string) (*models.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[attendanceKey(meetingID, userID)]
	if !ok {
		return nil, apperrors.NotFound("attendance not found")
	}
	cp := *a
	return &cp, nil
}

func (s *memAttendance) Update(_ context.Context, a *models.Attendance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.rows[attendanceKey(a.MeetingID, a.UserID)] = &cp
	return nil
}

func (s *memAttendance) ListByMeeting(_ context.Context, meetingID uuid.UUID) ([]*models.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Attendance
	for _, a := range s.rows {
		if a.MeetingID == meetingID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memAttendance) DeleteByMeeting(_ context.Context, meetingID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, a := range s.rows {
		if a.MeetingID == meetingID {
			delete(s.rows, k)
		}
	}
	return nil
}

func (s *memAttendance) MarkAttended(_ context.Context, meetingID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.rows {
		if a.MeetingID == meetingID {
			a.Status = models.AttendanceStatusAttended
		}
	}
	return nil
}

func (s *memAttendance) count(meetingID uuid.UUID) int {
	rows, _ := s.ListByMeeting(context.Background(), meetingID)
	return len(rows)
}

type recordedEvent struct {
	MeetingID uuid.UUID
	Type      string
	Payload   interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, id uuid.UUID, eventType string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{MeetingID: id, Type: eventType, Payload: payload})
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Registration
	err  error
}

func (n *recordingNotifier) RegistrationConfirmed(_ context.Context, _ *models.Meeting, reg models.Registration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, reg)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
