package models

import (
	"time"

	"github.com/google/uuid"
)

// Community is a discussion group owned by one user.
type Community struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Owner       string    `json:"owner"`
	Members     []string  `json:"members"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CommunityMessage is a message posted to a community.
type CommunityMessage struct {
	ID          uuid.UUID `json:"id"`
	CommunityID uuid.UUID `json:"community"`
	UserID      string    `json:"userId"`
	UserName    string    `json:"userName"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"createdAt"`
}
