package communities

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/database"
)

// Store persists communities, their members and messages.
type Store interface {
	// Create inserts c with its owner as first member. A taken name (case-insensitive) is ErrDuplicate.
	Create(ctx context.Context, c *models.Community) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Community, error)
	List(ctx context.Context) ([]*models.Community, error)
	AddMember(ctx context.Context, id uuid.UUID, member string) error
	RemoveMember(ctx context.Context, id uuid.UUID, member string) error
	Delete(ctx context.Context, id uuid.UUID) error
	AddMessage(ctx context.Context, msg *models.CommunityMessage) error
	ListMessages(ctx context.Context, id uuid.UUID) ([]*models.CommunityMessage, error)
}

var _ Store = (*Repository)(nil)

// Repository stores communities in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a community repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectCommunity = `SELECT c.id, c.name, c.description, c.owner, c.created_at,
	COALESCE(array_agg(m.member ORDER BY m.joined_at) FILTER (WHERE m.member IS NOT NULL), '{}')
	FROM communities c LEFT JOIN community_members m ON m.community_id = c.id`

func scanCommunity(row pgx.Row) (*models.Community, error) {
	var c models.Community
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Owner, &c.CreatedAt, &c.Members); err != nil {
		return nil, err
	}
	if c.Members == nil {
		c.Members = []string{}
	}
	return &c, nil
}

// Create inserts the community and its owner membership in one transaction.
func (r *Repository) Create(ctx context.Context, c *models.Community) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `INSERT INTO communities (id, name, description, owner, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Name, c.Description, c.Owner, c.CreatedAt)
	if database.IsUniqueViolation(err) {
		return nameTaken()
	}
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO community_members (community_id, member, joined_at) VALUES ($1, $2, $3)`,
		c.ID, c.Owner, c.CreatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByID returns a community with its members.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Community, error) {
	c, err := scanCommunity(r.pool.QueryRow(ctx, selectCommunity+` WHERE c.id = $1 GROUP BY c.id`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound()
	}
	return c, err
}

// List returns every community, oldest first.
func (r *Repository) List(ctx context.Context) ([]*models.Community, error) {
	rows, err := r.pool.Query(ctx, selectCommunity+` GROUP BY c.id ORDER BY c.created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Community{}
	for rows.Next() {
		c, err := scanCommunity(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// AddMember adds member; adding an existing member is a no-op.
func (r *Repository) AddMember(ctx context.Context, id uuid.UUID, member string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO community_members (community_id, member) VALUES ($1, $2)
		ON CONFLICT (community_id, member) DO NOTHING`, id, member)
	return err
}

// RemoveMember removes member if present.
func (r *Repository) RemoveMember(ctx context.Context, id uuid.UUID, member string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM community_members WHERE community_id = $1 AND member = $2`, id, member)
	return err
}

// Delete removes the community with its members and messages.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM communities WHERE id = $1`, id)
	return err
}

// AddMessage inserts a message.
func (r *Repository) AddMessage(ctx context.Context, msg *models.CommunityMessage) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO community_messages (id, community_id, user_id, user_name, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, msg.ID, msg.CommunityID, msg.UserID, msg.UserName, msg.Text, msg.CreatedAt)
	return err
}

// ListMessages returns the community's messages, oldest first.
func (r *Repository) ListMessages(ctx context.Context, id uuid.UUID) ([]*models.CommunityMessage, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, community_id, user_id, user_name, text, created_at
		FROM community_messages WHERE community_id = $1 ORDER BY created_at ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.CommunityMessage{}
	for rows.Next() {
		var m models.CommunityMessage
		if err := rows.Scan(&m.ID, &m.CommunityID, &m.UserID, &m.UserName, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}
