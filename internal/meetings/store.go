package meetings

import (
	"context"

	"github.com/google/uuid"

	"github.com/fincoach/backend/internal/models"
)

// ListScope selects the upcoming or archived listing.
type ListScope int

const (
	// ScopeUpcoming is public, scheduled meetings dated today or later, oldest first.
	ScopeUpcoming ListScope = iota
	// ScopeArchived is public meetings dated before today or completed, newest first.
	ScopeArchived
)

// ListQuery is what a store needs to page through a listing.
type ListQuery struct {
	Scope    ListScope
	Today    string
	Language string
	Type     models.MeetingType
	Limit    int
	Offset   int
}

// MeetingStore persists meetings with their embedded registrations.
type MeetingStore interface {
	Create(ctx context.Context, m *models.Meeting) error
	// GetByID returns an apperrors NotFound error when the meeting does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	// Update writes every field except creator, registrations and createdAt.
	Update(ctx context.Context, m *models.Meeting) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, q ListQuery) ([]*models.Meeting, error)
	// ListForDate returns public meetings on date whose status is one of statuses.
	ListForDate(ctx context.Context, date string, statuses []models.MeetingStatus) ([]*models.Meeting, error)
	// AddRegistration appends reg unless the meeting is full (ErrCapacity) or
	// already has reg.Email (ErrDuplicate). Check and append are one atomic step.
	AddRegistration(ctx context.Context, id uuid.UUID, reg models.Registration) (*models.Meeting, error)
	// ListRegisteredFor returns meetings with a registration for email or userID.
	ListRegisteredFor(ctx context.Context, email, userID string) ([]*models.Meeting, error)
}

// AttendanceStore persists join/leave records.
type AttendanceStore interface {
	// Create returns ErrAlreadyJoined when the user already has a row for the meeting.
	Create(ctx context.Context, a *models.Attendance) error
	// Get returns an apperrors NotFound error when there is no row.
	Get(ctx context.Context, meetingID uuid.UUID, userID string) (*models.Attendance, error)
	Update(ctx context.Context, a *models.Attendance) error
	ListByMeeting(ctx context.Context, meetingID uuid.UUID) ([]*models.Attendance, error)
	DeleteByMeeting(ctx context.Context, meetingID uuid.UUID) error
	// MarkAttended sets every row of the meeting to attended.
	MarkAttended(ctx context.Context, meetingID uuid.UUID) error
}

// EventPublisher fans meeting events out to live subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, meetingID uuid.UUID, eventType string, payload interface{})
}

// RegistrationNotifier is told about each successful registration.
type RegistrationNotifier interface {
	RegistrationConfirmed(ctx context.Context, m *models.Meeting, reg models.Registration) error
}

// Event types published by the service.
const (
	EventMeetingUpdated    = "meeting_updated"
	EventMeetingLive       = "meeting_live"
	EventMeetingDeleted    = "meeting_deleted"
	EventRegistrationCount = "registration_count"
	EventAttendanceJoined  = "attendance_joined"
	EventAttendanceLeft    = "attendance_left"
)

var (
	_ MeetingStore = (*Repository)(nil)
	_ MeetingStore = (*MongoRepository)(nil)
)
