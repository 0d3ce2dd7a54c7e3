package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MeetingType is the kind of expert session.
type MeetingType string

const (
	MeetingTypeWebinar  MeetingType = "webinar"
	MeetingTypeQnA      MeetingType = "qna"
	MeetingTypeWorkshop MeetingType = "workshop"
	MeetingTypeOther    MeetingType = "other"
)

// Valid reports whether t is a known meeting type.
func (t MeetingType) Valid() bool {
	switch t {
	case MeetingTypeWebinar, MeetingTypeQnA, MeetingTypeWorkshop, MeetingTypeOther:
		return true
	}
	return false
}

// MeetingStatus is the lifecycle state of a meeting.
type MeetingStatus string

const (
	MeetingStatusScheduled MeetingStatus = "scheduled"
	MeetingStatusLive      MeetingStatus = "live"
	MeetingStatusCompleted MeetingStatus = "completed"
	MeetingStatusCancelled MeetingStatus = "cancelled"
)

// Valid reports whether s is a known meeting status.
func (s MeetingStatus) Valid() bool {
	switch s {
	case MeetingStatusScheduled, MeetingStatusLive, MeetingStatusCompleted, MeetingStatusCancelled:
		return true
	}
	return false
}

// Experience is a registrant's self-declared level.
type Experience string

const (
	ExperienceBeginner     Experience = "beginner"
	ExperienceIntermediate Experience = "intermediate"
	ExperienceAdvanced     Experience = "advanced"
	ExperienceExpert       Experience = "expert"
)

// Valid reports whether e is a known experience level.
func (e Experience) Valid() bool {
	switch e {
	case ExperienceBeginner, ExperienceIntermediate, ExperienceAdvanced, ExperienceExpert:
		return true
	}
	return false
}

// Meeting defaults and limits.
const (
	DefaultMeetingType     = MeetingTypeQnA
	DefaultMeetingDuration = "1h"
	DefaultMeetingLanguage = "English"
	DefaultMaxAttendees    = 100
	MaxTitleLength         = 200
	MaxDescriptionLength   = 1000
)

// Registration is a user's signup embedded in a meeting.
type Registration struct {
	UserID           string     `json:"userId" bson:"userId"`
	Name             string     `json:"name" bson:"name"`
	Email            string     `json:"email" bson:"email"`
	Phone            string     `json:"phone" bson:"phone"`
	Organization     string     `json:"organization" bson:"organization"`
	Experience       Experience `json:"experience" bson:"experience"`
	Questions        string     `json:"questions" bson:"questions"`
	RegistrationDate time.Time  `json:"registrationDate" bson:"registrationDate"`
}

// Meeting is a scheduled expert session with capacity-limited registration.
type Meeting struct {
	ID            uuid.UUID      `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Type          MeetingType    `json:"type"`
	Date          string         `json:"date"` // YYYY-MM-DD
	Time          string         `json:"time"` // HH:MM
	Duration      string         `json:"duration"`
	Language      string         `json:"language"`
	Topics        []string       `json:"topics"`
	Expert        string         `json:"expert"`
	JoinURL       string         `json:"joinUrl"`
	RecordingURL  string         `json:"recordingUrl"`
	MaxAttendees  int            `json:"maxAttendees"`
	Registrations []Registration `json:"registrations"`
	Creator       string         `json:"creator"`
	Status        MeetingStatus  `json:"status"`
	IsPublic      bool           `json:"isPublic"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// RegistrationCount returns the number of registrations.
func (m *Meeting) RegistrationCount() int { return len(m.Registrations) }

// AvailableSpots returns the remaining capacity.
func (m *Meeting) AvailableSpots() int { return m.MaxAttendees - len(m.Registrations) }

// IsFull reports whether no more registrations fit.
func (m *Meeting) IsFull() bool { return len(m.Registrations) >= m.MaxAttendees }

// FindRegistration returns the registration matching identity by email or user id, or nil.
func (m *Meeting) FindRegistration(identity string) *Registration {
	if identity == "" {
		return nil
	}
	for i := range m.Registrations {
		r := &m.Registrations[i]
		if strings.EqualFold(r.Email, identity) || r.UserID == identity {
			return r
		}
	}
	return nil
}

// HasEmail reports whether email is already registered.
func (m *Meeting) HasEmail(email string) bool {
	for _, r := range m.Registrations {
		if strings.EqualFold(r.Email, email) {
			return true
		}
	}
	return false
}

// MeetingView is a meeting with the derived counters the API returns.
type MeetingView struct {
	*Meeting
	RegistrationCount int `json:"registrationCount"`
	AvailableSpots    int `json:"availableSpots"`
}

// View wraps m with its derived counters.
func (m *Meeting) View() MeetingView {
	return MeetingView{Meeting: m, RegistrationCount: m.RegistrationCount(), AvailableSpots: m.AvailableSpots()}
}
