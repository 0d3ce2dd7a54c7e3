// Package communities runs discussion groups: membership and a message board per group.
package communities

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fincoach/backend/internal/auth"
	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/apperrors"
)

const (
	maxNameLength    = 100
	maxMessageLength = 2000
)

func notFound() error { return apperrors.NotFound("Community not found") }

func nameTaken() error {
	return apperrors.New(apperrors.ErrDuplicate, "A community with this name already exists.")
}

// CreateInput is the body of POST /api/communities.
type CreateInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MessageInput is the body of POST /api/communities/:id/messages.
type MessageInput struct {
	Text     string `json:"text"`
	UserName string `json:"userName"`
}

// Service runs community operations.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a community service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

func caller(ident *auth.Identity) (string, error) {
	key := ident.Key()
	if key == "" {
		return "", apperrors.Unauthorized("authentication required")
	}
	return key, nil
}

// List returns every community.
func (s *Service) List(ctx context.Context) ([]*models.Community, error) {
	return s.store.List(ctx)
}

// Create makes a community owned by the caller, who is also its first member.
func (s *Service) Create(ctx context.Context, in CreateInput, ident *auth.Identity) (*models.Community, error) {
	owner, err := caller(ident)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.Validation("Name is required")
	}
	if len([]rune(name)) > maxNameLength {
		return nil, apperrors.Validation(fmt.Sprintf("name cannot exceed %d characters", maxNameLength))
	}
	c := &models.Community{
		ID:          uuid.New(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Owner:       owner,
		Members:     []string{owner},
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("community created", zap.String("community_id", c.ID.String()), zap.String("owner", owner))
	return c, nil
}

// Join adds the caller to the community.
func (s *Service) Join(ctx context.Context, id uuid.UUID, ident *auth.Identity) (*models.Community, error) {
	member, err := caller(ident)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.store.AddMember(ctx, id, member); err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	return s.store.GetByID(ctx, id)
}

// Leave removes the caller from the community.
func (s *Service) Leave(ctx context.Context, id uuid.UUID, ident *auth.Identity) (*models.Community, error) {
	member, err := caller(ident)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.store.RemoveMember(ctx, id, member); err != nil {
		return nil, fmt.Errorf("remove member: %w", err)
	}
	return s.store.GetByID(ctx, id)
}

// Delete removes the community. Only the owner may delete it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, ident *auth.Identity) error {
	if _, err := caller(ident); err != nil {
		return err
	}
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !ident.Matches(c.Owner) {
		return apperrors.Forbidden("Not authorized")
	}
	return s.store.Delete(ctx, id)
}

// Messages returns the community's messages, oldest first.
func (s *Service) Messages(ctx context.Context, id uuid.UUID) ([]*models.CommunityMessage, error) {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, id)
}

// PostMessage adds a message from the caller. The display name defaults to the caller's key.
func (s *Service) PostMessage(ctx context.Context, id uuid.UUID, in MessageInput, ident *auth.Identity) (*models.CommunityMessage, error) {
	author, err := caller(ident)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, apperrors.Validation("Message text is required")
	}
	if len([]rune(text)) > maxMessageLength {
		return nil, apperrors.Validation(fmt.Sprintf("message cannot exceed %d characters", maxMessageLength))
	}
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.UserName)
	if name == "" {
		name = author
	}
	msg := &models.CommunityMessage{
		ID:          uuid.New(),
		CommunityID: id,
		UserID:      author,
		UserName:    name,
		Text:        text,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.AddMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}
	return msg, nil
}
