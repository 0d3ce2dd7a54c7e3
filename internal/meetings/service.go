// Package meetings implements the expert session lifecycle: scheduling,
// capacity-limited registration and join/leave attendance inside the live window.
package meetings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fincoach/backend/internal/auth"
	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/apperrors"
	"github.com/fincoach/backend/pkg/metrics"
)

// Service runs meeting, registration and attendance operations.
type Service struct {
	meetings   MeetingStore
	attendance AttendanceStore
	window     LiveWindow
	maxLimit   int

	events   EventPublisher
	notifier RegistrationNotifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithEvents publishes meeting events to p.
func WithEvents(p EventPublisher) Option { return func(s *Service) { s.events = p } }

// WithNotifier sends registration confirmations through n.
func WithNotifier(n RegistrationNotifier) Option { return func(s *Service) { s.notifier = n } }

// WithMetrics counts registrations and attendance events in m.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithMaxListLimit caps the page size of listings.
func WithMaxListLimit(n int) Option { return func(s *Service) { s.maxLimit = n } }

// NewService creates a meeting service.
func NewService(meetings MeetingStore, attendance AttendanceStore, window LiveWindow, opts ...Option) *Service {
	s := &Service{
		meetings:   meetings,
		attendance: attendance,
		window:     window,
		maxLimit:   100,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates in and stores a new scheduled meeting owned by ident.
func (s *Service) Create(ctx context.Context, in CreateInput, ident *auth.Identity) (*models.Meeting, error) {
	creator := ident.Key()
	if creator == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	if strings.TrimSpace(in.Title) == "" || in.Date == "" || in.Time == "" || strings.TrimSpace(in.Expert) == "" {
		return nil, apperrors.Validation("Missing required fields: title, date, time, expert")
	}

	now := s.now().UTC()
	m := &models.Meeting{
		ID:           uuid.New(),
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		Type:         in.Type,
		Date:         strings.TrimSpace(in.Date),
		Time:         strings.TrimSpace(in.Time),
		Duration:     strings.TrimSpace(in.Duration),
		Language:     strings.TrimSpace(in.Language),
		Topics:       []string(in.Topics),
		Expert:       strings.TrimSpace(in.Expert),
		JoinURL:      strings.TrimSpace(in.JoinURL),
		MaxAttendees: in.MaxAttendees,
		Creator:      creator,
		Status:       models.MeetingStatusScheduled,
		IsPublic:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if m.Type == "" {
		m.Type = models.DefaultMeetingType
	}
	if m.Duration == "" {
		m.Duration = models.DefaultMeetingDuration
	}
	if m.Language == "" {
		m.Language = models.DefaultMeetingLanguage
	}
	if m.MaxAttendees == 0 {
		m.MaxAttendees = models.DefaultMaxAttendees
	}
	if m.Topics == nil {
		m.Topics = []string{}
	}
	if in.IsPublic != nil {
		m.IsPublic = *in.IsPublic
	}
	if err := validateMeeting(m); err != nil {
		return nil, err
	}

	if err := s.meetings.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create meeting: %w", err)
	}
	s.logger.Info("meeting created", zap.String("meeting_id", m.ID.String()), zap.String("creator", creator))
	return m, nil
}

// Update applies patch to the meeting. Only the creator may update.
// Moving a meeting to completed marks every attendance row attended.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch UpdateInput, ident *auth.Identity) (*models.Meeting, error) {
	m, err := s.authorizedMeeting(ctx, id, ident)
	if err != nil {
		return nil, err
	}
	prevStatus := m.Status

	if patch.Title != nil {
		m.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		m.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Type != nil {
		m.Type = *patch.Type
	}
	if patch.Date != nil {
		m.Date = strings.TrimSpace(*patch.Date)
	}
	if patch.Time != nil {
		m.Time = strings.TrimSpace(*patch.Time)
	}
	if patch.Duration != nil {
		m.Duration = strings.TrimSpace(*patch.Duration)
	}
	if patch.Language != nil {
		m.Language = strings.TrimSpace(*patch.Language)
	}
	if patch.Topics != nil {
		m.Topics = []string(*patch.Topics)
	}
	if patch.Expert != nil {
		m.Expert = strings.TrimSpace(*patch.Expert)
	}
	if patch.JoinURL != nil {
		m.JoinURL = strings.TrimSpace(*patch.JoinURL)
	}
	if patch.RecordingURL != nil {
		m.RecordingURL = strings.TrimSpace(*patch.RecordingURL)
	}
	if patch.MaxAttendees != nil {
		m.MaxAttendees = *patch.MaxAttendees
	}
	if patch.Status != nil {
		m.Status = *patch.Status
	}
	if patch.IsPublic != nil {
		m.IsPublic = *patch.IsPublic
	}
	if m.Title == "" || m.Date == "" || m.Time == "" || m.Expert == "" {
		return nil, apperrors.Validation("title, date, time and expert cannot be empty")
	}
	if err := validateMeeting(m); err != nil {
		return nil, err
	}
	if m.MaxAttendees < m.RegistrationCount() {
		return nil, apperrors.Validation("maxAttendees cannot be lower than the number of registrations")
	}

	m.UpdatedAt = s.now().UTC()
	if err := s.meetings.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("update meeting: %w", err)
	}
	if m.Status == models.MeetingStatusCompleted && prevStatus != models.MeetingStatusCompleted {
		if err := s.attendance.MarkAttended(ctx, m.ID); err != nil {
			return nil, fmt.Errorf("mark attended: %w", err)
		}
	}
	s.publish(ctx, m.ID, EventMeetingUpdated, m.View())
	return m, nil
}

// Delete removes the meeting and its attendance rows. Only the creator may delete.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, ident *auth.Identity) error {
	m, err := s.authorizedMeeting(ctx, id, ident)
	if err != nil {
		return err
	}
	if err := s.attendance.DeleteByMeeting(ctx, m.ID); err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	if err := s.meetings.Delete(ctx, m.ID); err != nil {
		return fmt.Errorf("delete meeting: %w", err)
	}
	s.logger.Info("meeting deleted", zap.String("meeting_id", m.ID.String()))
	s.publish(ctx, m.ID, EventMeetingDeleted, map[string]string{"id": m.ID.String()})
	return nil
}

// GoLive sets the meeting status to live. Only the creator may do this.
func (s *Service) GoLive(ctx context.Context, id uuid.UUID, ident *auth.Identity) (*models.Meeting, error) {
	m, err := s.authorizedMeeting(ctx, id, ident)
	if err != nil {
		return nil, err
	}
	m.Status = models.MeetingStatusLive
	m.UpdatedAt = s.now().UTC()
	if err := s.meetings.Update(ctx, m); err != nil {
		return nil, fmt.Errorf("go live: %w", err)
	}
	s.publish(ctx, m.ID, EventMeetingLive, m.View())
	return m, nil
}

// ListUpcoming returns public scheduled meetings from today on, soonest first.
func (s *Service) ListUpcoming(ctx context.Context, f ListFilter) ([]*models.Meeting, error) {
	return s.list(ctx, ScopeUpcoming, f)
}

// ListArchived returns public meetings dated before today or completed, newest first.
func (s *Service) ListArchived(ctx context.Context, f ListFilter) ([]*models.Meeting, error) {
	return s.list(ctx, ScopeArchived, f)
}

func (s *Service) list(ctx context.Context, scope ListScope, f ListFilter) ([]*models.Meeting, error) {
	f = f.normalize(s.maxLimit)
	list, err := s.meetings.List(ctx, ListQuery{
		Scope:    scope,
		Today:    s.window.Today(s.now()),
		Language: f.Language,
		Type:     f.Type,
		Limit:    f.Limit,
		Offset:   (f.Page - 1) * f.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	return list, nil
}

// GetLive returns the public meeting whose live window contains now, or nil.
// Only meetings dated today are considered. When several are live the earliest
// start wins, then the oldest createdAt, then the lowest id.
func (s *Service) GetLive(ctx context.Context) (*models.Meeting, error) {
	now := s.now()
	candidates, err := s.meetings.ListForDate(ctx, s.window.Today(now),
		[]models.MeetingStatus{models.MeetingStatusScheduled, models.MeetingStatusLive})
	if err != nil {
		return nil, fmt.Errorf("list today's meetings: %w", err)
	}

	type liveMeeting struct {
		m     *models.Meeting
		start time.Time
	}
	var live []liveMeeting
	for _, m := range candidates {
		if !s.window.Contains(m, now) {
			continue
		}
		start, _ := s.window.Start(m)
		live = append(live, liveMeeting{m: m, start: start})
	}
	if len(live) == 0 {
		return nil, nil
	}
	sort.Slice(live, func(i, j int) bool {
		a, b := live[i], live[j]
		if !a.start.Equal(b.start) {
			return a.start.Before(b.start)
		}
		if !a.m.CreatedAt.Equal(b.m.CreatedAt) {
			return a.m.CreatedAt.Before(b.m.CreatedAt)
		}
		return bytes.Compare(a.m.ID[:], b.m.ID[:]) < 0
	})
	return live[0].m, nil
}

// GetByID returns a meeting.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	return s.meetings.GetByID(ctx, id)
}

// AuthorizeCreator loads the meeting and checks that ident created it.
func (s *Service) AuthorizeCreator(ctx context.Context, id uuid.UUID, ident *auth.Identity) (*models.Meeting, error) {
	return s.authorizedMeeting(ctx, id, ident)
}

// AuthorizeParticipant loads the meeting and checks that ident created it or registered for it.
func (s *Service) AuthorizeParticipant(ctx context.Context, id uuid.UUID, ident *auth.Identity) (*models.Meeting, error) {
	m, err := s.authorizedMeeting(ctx, id, ident)
	if !apperrors.IsForbidden(err) {
		return m, err
	}
	m, err = s.meetings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if findRegistration(m, ident) == nil {
		return nil, apperrors.Forbidden("Access denied")
	}
	return m, nil
}

func (s *Service) authorizedMeeting(ctx context.Context, id uuid.UUID, ident *auth.Identity) (*models.Meeting, error) {
	if ident.Key() == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	m, err := s.meetings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ident.Matches(m.Creator) {
		return nil, apperrors.Forbidden("Access denied")
	}
	return m, nil
}

// Register signs the caller up for a meeting with the given form.
func (s *Service) Register(ctx context.Context, id uuid.UUID, in RegisterInput, ident *auth.Identity) (*models.Registration, error) {
	if ident.Key() == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	reg := models.Registration{
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:        strings.TrimSpace(in.Phone),
		Organization: strings.TrimSpace(in.Organization),
		Experience:   in.Experience,
		Questions:    strings.TrimSpace(in.Questions),
	}
	if reg.Name == "" || reg.Email == "" || reg.Phone == "" {
		s.metrics.ObserveRegistration(metrics.ResultRejected)
		return nil, apperrors.Validation("Name, email, and phone are required")
	}
	if reg.Experience == "" {
		reg.Experience = models.ExperienceBeginner
	}
	if !reg.Experience.Valid() {
		s.metrics.ObserveRegistration(metrics.ResultRejected)
		return nil, apperrors.Validation("experience must be one of beginner, intermediate, advanced, expert")
	}
	// Attendance rows carry the same key, so attendees can be joined back
	// even when the contact email differs from the account email.
	reg.UserID = ident.Key()
	reg.RegistrationDate = s.now().UTC()

	m, err := s.meetings.AddRegistration(ctx, id, reg)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrCapacity):
			s.metrics.ObserveRegistration(metrics.ResultFull)
		case errors.Is(err, apperrors.ErrDuplicate):
			s.metrics.ObserveRegistration(metrics.ResultDuplicate)
		}
		return nil, err
	}
	s.metrics.ObserveRegistration(metrics.ResultRegistered)
	s.logger.Info("registered for meeting", zap.String("meeting_id", id.String()), zap.String("email", reg.Email))

	if s.notifier != nil {
		if err := s.notifier.RegistrationConfirmed(ctx, m, reg); err != nil {
			s.logger.Warn("registration confirmation not queued", zap.String("meeting_id", id.String()), zap.Error(err))
		}
	}
	s.publish(ctx, m.ID, EventRegistrationCount, map[string]int{
		"registrationCount": m.RegistrationCount(),
		"availableSpots":    m.AvailableSpots(),
	})
	return &reg, nil
}

// UserRegistration is one meeting the caller registered for.
type UserRegistration struct {
	MeetingID        uuid.UUID            `json:"meetingId"`
	MeetingTitle     string               `json:"meetingTitle"`
	MeetingDate      string               `json:"meetingDate"`
	MeetingTime      string               `json:"meetingTime"`
	Status           models.MeetingStatus `json:"status"`
	RegistrationDate time.Time            `json:"registrationDate"`
}

// ListRegistrationsForUser returns every meeting the caller registered for.
func (s *Service) ListRegistrationsForUser(ctx context.Context, ident *auth.Identity) ([]UserRegistration, error) {
	if ident.Key() == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	list, err := s.meetings.ListRegisteredFor(ctx, strings.ToLower(ident.Email), ident.Key())
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	out := make([]UserRegistration, 0, len(list))
	for _, m := range list {
		reg := findRegistration(m, ident)
		if reg == nil {
			continue
		}
		out = append(out, UserRegistration{
			MeetingID:        m.ID,
			MeetingTitle:     m.Title,
			MeetingDate:      m.Date,
			MeetingTime:      m.Time,
			Status:           m.Status,
			RegistrationDate: reg.RegistrationDate,
		})
	}
	return out, nil
}

// Attendee is a registration with its attendance, if the registrant ever joined.
type Attendee struct {
	models.Registration
	Attendance *models.AttendanceSummary `json:"attendance"`
}

// GetAttendees returns the registrations of a meeting joined with attendance.
// Only the creator may list attendees.
func (s *Service) GetAttendees(ctx context.Context, id uuid.UUID, ident *auth.Identity) ([]Attendee, error) {
	m, err := s.authorizedMeeting(ctx, id, ident)
	if err != nil {
		return nil, err
	}
	rows, err := s.attendance.ListByMeeting(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	out := make([]Attendee, 0, len(m.Registrations))
	for _, reg := range m.Registrations {
		a := Attendee{Registration: reg}
		for _, row := range rows {
			if (reg.UserID != "" && row.UserID == reg.UserID) || strings.EqualFold(row.UserID, reg.Email) {
				a.Attendance = row.Summary()
				break
			}
		}
		out = append(out, a)
	}
	return out, nil
}

// JoinResult is returned when a registrant joins a live meeting.
type JoinResult struct {
	JoinURL    string             `json:"joinUrl"`
	Attendance *models.Attendance `json:"attendance"`
}

// Join records the caller's attendance. The caller must be registered, the
// meeting must be inside its live window and the caller must not have joined yet.
func (s *Service) Join(ctx context.Context, id uuid.UUID, ident *auth.Identity, meta JoinMetadata) (*JoinResult, error) {
	key := ident.Key()
	if key == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	m, err := s.meetings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if findRegistration(m, ident) == nil {
		s.metrics.ObserveAttendance(metrics.EventRejected)
		return nil, apperrors.New(apperrors.ErrUnregistered, "You must register for this meeting before joining")
	}
	now := s.now()
	if !s.window.Contains(m, now) {
		s.metrics.ObserveAttendance(metrics.EventRejected)
		return nil, apperrors.New(apperrors.ErrNotLive, "Meeting is not live yet or has ended")
	}
	if _, err := s.attendance.Get(ctx, m.ID, key); err == nil {
		s.metrics.ObserveAttendance(metrics.EventRejected)
		return nil, alreadyJoined()
	} else if !apperrors.IsNotFound(err) {
		return nil, fmt.Errorf("get attendance: %w", err)
	}

	now = now.UTC()
	a := &models.Attendance{
		ID:        uuid.New(),
		UserID:    key,
		MeetingID: m.ID,
		JoinTime:  now,
		Status:    models.AttendanceStatusJoined,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.attendance.Create(ctx, a); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyJoined) {
			s.metrics.ObserveAttendance(metrics.EventRejected)
		}
		return nil, err
	}
	s.metrics.ObserveAttendance(metrics.EventJoined)
	s.logger.Info("joined meeting", zap.String("meeting_id", m.ID.String()), zap.String("user_id", key))
	s.publish(ctx, m.ID, EventAttendanceJoined, map[string]interface{}{"userId": key, "joinTime": a.JoinTime})
	return &JoinResult{JoinURL: m.JoinURL, Attendance: a}, nil
}

// Leave closes the caller's attendance and records its duration in minutes.
func (s *Service) Leave(ctx context.Context, id uuid.UUID, ident *auth.Identity) (*models.Attendance, error) {
	key := ident.Key()
	if key == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	a, err := s.attendance.Get(ctx, id, key)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("Attendance record not found")
		}
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	a.MarkLeft(s.now().UTC())
	if err := s.attendance.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update attendance: %w", err)
	}
	s.metrics.ObserveAttendance(metrics.EventLeft)
	s.publish(ctx, id, EventAttendanceLeft, map[string]interface{}{"userId": key, "duration": a.Duration})
	return a, nil
}

func (s *Service) publish(ctx context.Context, id uuid.UUID, eventType string, payload interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, id, eventType, payload)
}

func alreadyJoined() error {
	return apperrors.New(apperrors.ErrAlreadyJoined, "You have already joined this meeting")
}

func findRegistration(m *models.Meeting, ident *auth.Identity) *models.Registration {
	return m.FindRegistration(ident.Key())
}

func validateMeeting(m *models.Meeting) error {
	if len([]rune(m.Title)) > models.MaxTitleLength {
		return apperrors.Validation(fmt.Sprintf("title cannot exceed %d characters", models.MaxTitleLength))
	}
	if len([]rune(m.Description)) > models.MaxDescriptionLength {
		return apperrors.Validation(fmt.Sprintf("description cannot exceed %d characters", models.MaxDescriptionLength))
	}
	if !m.Type.Valid() {
		return apperrors.Validation("type must be one of webinar, qna, workshop, other")
	}
	if !m.Status.Valid() {
		return apperrors.Validation("status must be one of scheduled, live, completed, cancelled")
	}
	if _, err := time.Parse(dateLayout, m.Date); err != nil {
		return apperrors.Validation("date must be YYYY-MM-DD")
	}
	if _, err := time.Parse(timeLayout, m.Time); err != nil {
		return apperrors.Validation("time must be HH:MM")
	}
	if m.MaxAttendees < 1 {
		return apperrors.Validation("maxAttendees must be at least 1")
	}
	return nil
}
