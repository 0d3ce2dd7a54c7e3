package meetings

import (
	"fmt"
	"time"

	"github.com/fincoach/backend/internal/models"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// LiveWindow decides when a meeting counts as live: the half-open interval
// [start, start+Length) where start is the meeting's date and time read in Location.
type LiveWindow struct {
	Location *time.Location
	Length   time.Duration
}

// NewLiveWindow returns a window of length in loc. A nil loc means UTC.
func NewLiveWindow(loc *time.Location, length time.Duration) LiveWindow {
	if loc == nil {
		loc = time.UTC
	}
	return LiveWindow{Location: loc, Length: length}
}

// Start returns the meeting start instant.
func (w LiveWindow) Start(m *models.Meeting) (time.Time, error) {
	start, err := time.ParseInLocation(dateLayout+" "+timeLayout, m.Date+" "+m.Time, w.location())
	if err != nil {
		return time.Time{}, fmt.Errorf("meeting %s start: %w", m.ID, err)
	}
	return start, nil
}

// Contains reports whether now falls inside the meeting's live window.
// Meetings with an unreadable date or time are never live.
func (w LiveWindow) Contains(m *models.Meeting, now time.Time) bool {
	start, err := w.Start(m)
	if err != nil {
		return false
	}
	return !now.Before(start) && now.Before(start.Add(w.Length))
}

// Today returns the calendar date of now in the window's zone, as YYYY-MM-DD.
func (w LiveWindow) Today(now time.Time) string {
	return now.In(w.location()).Format(dateLayout)
}

func (w LiveWindow) location() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}
