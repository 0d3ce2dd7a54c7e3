package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// AttendanceStatus tracks participation in a live meeting.
type AttendanceStatus string

const (
	AttendanceStatusJoined   AttendanceStatus = "joined"
	AttendanceStatusLeft     AttendanceStatus = "left"
	AttendanceStatusAttended AttendanceStatus = "attended"
)

// Attendance is one user's join/leave record for a meeting (unique per user and meeting).
type Attendance struct {
	ID        uuid.UUID        `json:"id"`
	UserID    string           `json:"userId"`
	MeetingID uuid.UUID        `json:"meetingId"`
	JoinTime  time.Time        `json:"joinTime"`
	LeaveTime *time.Time       `json:"leaveTime"`
	Duration  int              `json:"duration"` // minutes
	Status    AttendanceStatus `json:"status"`
	IPAddress string           `json:"ipAddress,omitempty"`
	UserAgent string           `json:"userAgent,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// MarkLeft closes the attendance at now and recomputes its duration.
func (a *Attendance) MarkLeft(now time.Time) {
	a.LeaveTime = &now
	a.Status = AttendanceStatusLeft
	a.Duration = DurationMinutes(a.JoinTime, now)
	a.UpdatedAt = now
}

// DurationMinutes returns the elapsed time between join and leave in whole minutes, rounded.
func DurationMinutes(join, leave time.Time) int {
	return int(math.Round(leave.Sub(join).Minutes()))
}

// AttendanceSummary is the attendance part of an attendee listing.
type AttendanceSummary struct {
	JoinTime  time.Time        `json:"joinTime"`
	LeaveTime *time.Time       `json:"leaveTime"`
	Duration  int              `json:"duration"`
	Status    AttendanceStatus `json:"status"`
}

// Summary returns the fields shown to meeting creators.
func (a *Attendance) Summary() *AttendanceSummary {
	return &AttendanceSummary{JoinTime: a.JoinTime, LeaveTime: a.LeaveTime, Duration: a.Duration, Status: a.Status}
}
