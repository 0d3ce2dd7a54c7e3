package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailTypeRegistrationConfirmation is sent after a successful meeting registration.
const EmailTypeRegistrationConfirmation = "registration_confirmation"

// EmailLogStatus for delivery.
const (
	EmailLogStatusSent   = "sent"
	EmailLogStatusFailed = "failed"
)

// EmailLog records a delivered (or failed) notification email.
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	MeetingID      uuid.UUID  `json:"meetingId"`
	EmailType      string     `json:"emailType"`
	RecipientEmail string     `json:"recipientEmail"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}
