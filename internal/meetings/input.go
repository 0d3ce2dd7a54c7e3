package meetings

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/fincoach/backend/internal/models"
)

// Topics accepts either a JSON list of strings or one comma-separated string.
type Topics []string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Topics) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = SplitTopics(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return errors.New("topics must be a string or a list of strings")
	}
	*t = cleanTopics(list)
	return nil
}

// SplitTopics splits a comma-separated topic string, dropping blanks.
func SplitTopics(s string) Topics {
	return cleanTopics(strings.Split(s, ","))
}

func cleanTopics(in []string) Topics {
	out := make(Topics, 0, len(in))
	for _, topic := range in {
		if topic = strings.TrimSpace(topic); topic != "" {
			out = append(out, topic)
		}
	}
	return out
}

// CreateInput is the body for creating a meeting.
type CreateInput struct {
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	Type         models.MeetingType `json:"type"`
	Date         string             `json:"date"`
	Time         string             `json:"time"`
	Duration     string             `json:"duration"`
	Language     string             `json:"language"`
	Topics       Topics             `json:"topics"`
	Expert       string             `json:"expert"`
	JoinURL      string             `json:"joinUrl"`
	MaxAttendees int                `json:"maxAttendees"`
	IsPublic     *bool              `json:"isPublic"`
}

// UpdateInput is a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	Title        *string               `json:"title"`
	Description  *string               `json:"description"`
	Type         *models.MeetingType   `json:"type"`
	Date         *string               `json:"date"`
	Time         *string               `json:"time"`
	Duration     *string               `json:"duration"`
	Language     *string               `json:"language"`
	Topics       *Topics               `json:"topics"`
	Expert       *string               `json:"expert"`
	JoinURL      *string               `json:"joinUrl"`
	RecordingURL *string               `json:"recordingUrl"`
	MaxAttendees *int                  `json:"maxAttendees"`
	Status       *models.MeetingStatus `json:"status"`
	IsPublic     *bool                 `json:"isPublic"`
}

// RegisterInput is a registrant's signup form.
type RegisterInput struct {
	Name         string            `json:"name"`
	Email        string            `json:"email"`
	Phone        string            `json:"phone"`
	Organization string            `json:"organization"`
	Experience   models.Experience `json:"experience"`
	Questions    string            `json:"questions"`
}

// JoinMetadata describes the client joining a meeting.
type JoinMetadata struct {
	IPAddress string
	UserAgent string
}

// ListFilter selects a page of upcoming or archived meetings.
type ListFilter struct {
	Language string
	Type     models.MeetingType
	Limit    int
	Page     int
}

// Default page size for meeting listings.
const DefaultListLimit = 20

func (f ListFilter) normalize(maxLimit int) ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if maxLimit > 0 && f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	return f
}
