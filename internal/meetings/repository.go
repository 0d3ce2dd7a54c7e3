package meetings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/apperrors"
	"github.com/fincoach/backend/pkg/database"
)

// Repository stores meetings in PostgreSQL. Registrations live in
// meeting_registrations and are loaded with their meeting.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a meeting repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const meetingColumns = `id, title, description, type, "date", "time", duration, language, topics, expert,
	join_url, recording_url, max_attendees, creator, status, is_public, created_at, updated_at`

func scanMeeting(row pgx.Row) (*models.Meeting, error) {
	var m models.Meeting
	var typ, status string
	err := row.Scan(&m.ID, &m.Title, &m.Description, &typ, &m.Date, &m.Time, &m.Duration, &m.Language,
		&m.Topics, &m.Expert, &m.JoinURL, &m.RecordingURL, &m.MaxAttendees, &m.Creator, &status,
		&m.IsPublic, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Type = models.MeetingType(typ)
	m.Status = models.MeetingStatus(status)
	if m.Topics == nil {
		m.Topics = []string{}
	}
	m.Registrations = []models.Registration{}
	return &m, nil
}

// Create inserts a meeting without registrations.
func (r *Repository) Create(ctx context.Context, m *models.Meeting) error {
	const q = `INSERT INTO meetings (` + meetingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err := r.pool.Exec(ctx, q, m.ID, m.Title, m.Description, string(m.Type), m.Date, m.Time, m.Duration,
		m.Language, m.Topics, m.Expert, m.JoinURL, m.RecordingURL, m.MaxAttendees, m.Creator, string(m.Status),
		m.IsPublic, m.CreatedAt, m.UpdatedAt)
	return err
}

// GetByID returns a meeting with its registrations.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	m, err := scanMeeting(r.pool.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("Meeting not found")
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadRegistrations(ctx, []*models.Meeting{m}); err != nil {
		return nil, err
	}
	return m, nil
}

// Update writes the mutable meeting fields.
func (r *Repository) Update(ctx context.Context, m *models.Meeting) error {
	const q = `UPDATE meetings SET title = $2, description = $3, type = $4, "date" = $5, "time" = $6,
		duration = $7, language = $8, topics = $9, expert = $10, join_url = $11, recording_url = $12,
		max_attendees = $13, status = $14, is_public = $15, updated_at = $16
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, m.ID, m.Title, m.Description, string(m.Type), m.Date, m.Time, m.Duration,
		m.Language, m.Topics, m.Expert, m.JoinURL, m.RecordingURL, m.MaxAttendees, string(m.Status),
		m.IsPublic, m.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("Meeting not found")
	}
	return nil
}

// Delete removes a meeting. Registrations and attendance go with it.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM meetings WHERE id = $1`, id)
	return err
}

// List returns one page of upcoming or archived public meetings.
func (r *Repository) List(ctx context.Context, q ListQuery) ([]*models.Meeting, error) {
	var where []string
	args := []interface{}{q.Today}
	order := `"date" ASC, "time" ASC, created_at ASC`
	switch q.Scope {
	case ScopeArchived:
		where = append(where, "is_public", `("date" < $1 OR status = 'completed')`)
		order = `"date" DESC, "time" DESC, created_at DESC`
	default:
		where = append(where, "is_public", `"date" >= $1`, "status = 'scheduled'")
	}
	if q.Language != "" {
		args = append(args, q.Language)
		where = append(where, fmt.Sprintf("language = $%d", len(args)))
	}
	if q.Type != "" {
		args = append(args, string(q.Type))
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	args = append(args, q.Limit, q.Offset)
	sql := fmt.Sprintf(`SELECT %s FROM meetings WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		meetingColumns, strings.Join(where, " AND "), order, len(args)-1, len(args))
	return r.query(ctx, sql, args...)
}

// ListForDate returns public meetings on date with one of statuses.
func (r *Repository) ListForDate(ctx context.Context, date string, statuses []models.MeetingStatus) ([]*models.Meeting, error) {
	st := make([]string, 0, len(statuses))
	for _, s := range statuses {
		st = append(st, string(s))
	}
	return r.query(ctx, `SELECT `+meetingColumns+` FROM meetings
		WHERE is_public AND "date" = $1 AND status = ANY($2) ORDER BY "time" ASC`, date, st)
}

// ListRegisteredFor returns meetings with a registration for email or userID.
func (r *Repository) ListRegisteredFor(ctx context.Context, email, userID string) ([]*models.Meeting, error) {
	return r.query(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id IN (
		SELECT meeting_id FROM meeting_registrations
		WHERE ($1 <> '' AND lower(email) = lower($1)) OR ($2 <> '' AND user_id = $2)
	) ORDER BY "date" ASC, "time" ASC`, email, userID)
}

// AddRegistration appends reg in one transaction holding the meeting row lock,
// so concurrent signups cannot exceed capacity.
func (r *Repository) AddRegistration(ctx context.Context, id uuid.UUID, reg models.Registration) (*models.Meeting, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var maxAttendees int
	err = tx.QueryRow(ctx, `SELECT max_attendees FROM meetings WHERE id = $1 FOR UPDATE`, id).Scan(&maxAttendees)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("Meeting not found")
	}
	if err != nil {
		return nil, err
	}

	var count int
	var duplicate bool
	err = tx.QueryRow(ctx, `SELECT count(*), COALESCE(bool_or(lower(email) = lower($2)), false)
		FROM meeting_registrations WHERE meeting_id = $1`, id, reg.Email).Scan(&count, &duplicate)
	if err != nil {
		return nil, err
	}
	if count >= maxAttendees {
		return nil, apperrors.New(apperrors.ErrCapacity, "Meeting is full")
	}
	if duplicate {
		return nil, duplicateRegistration()
	}

	_, err = tx.Exec(ctx, `INSERT INTO meeting_registrations
		(meeting_id, user_id, name, email, phone, organization, experience, questions, registration_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, reg.UserID, reg.Name, reg.Email, reg.Phone, reg.Organization, string(reg.Experience), reg.Questions, reg.RegistrationDate)
	if database.IsUniqueViolation(err) {
		return nil, duplicateRegistration()
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE meetings SET updated_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return r.GetByID(ctx, id)
}

func duplicateRegistration() error {
	return apperrors.New(apperrors.ErrDuplicate, "You are already registered for this meeting")
}

func (r *Repository) query(ctx context.Context, sql string, args ...interface{}) ([]*models.Meeting, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Meeting{}
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadRegistrations(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *Repository) loadRegistrations(ctx context.Context, list []*models.Meeting) error {
	if len(list) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.Meeting, len(list))
	ids := make([]string, 0, len(list))
	for _, m := range list {
		byID[m.ID] = m
		ids = append(ids, m.ID.String())
	}
	rows, err := r.pool.Query(ctx, `SELECT meeting_id, user_id, name, email, phone, organization, experience,
		questions, registration_date FROM meeting_registrations
		WHERE meeting_id = ANY($1::uuid[]) ORDER BY position ASC`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var meetingID uuid.UUID
		var reg models.Registration
		var exp string
		if err := rows.Scan(&meetingID, &reg.UserID, &reg.Name, &reg.Email, &reg.Phone, &reg.Organization,
			&exp, &reg.Questions, &reg.RegistrationDate); err != nil {
			return err
		}
		reg.Experience = models.Experience(exp)
		if m := byID[meetingID]; m != nil {
			m.Registrations = append(m.Registrations, reg)
		}
	}
	return rows.Err()
}
