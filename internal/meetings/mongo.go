package meetings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/apperrors"
)

const collectionMeetings = "meetings"

// meetingDoc is the stored shape of a meeting, registrations embedded.
type meetingDoc struct {
	ID            string                `bson:"_id"`
	Title         string                `bson:"title"`
	Description   string                `bson:"description"`
	Type          string                `bson:"type"`
	Date          string                `bson:"date"`
	Time          string                `bson:"time"`
	Duration      string                `bson:"duration"`
	Language      string                `bson:"language"`
	Topics        []string              `bson:"topics"`
	Expert        string                `bson:"expert"`
	JoinURL       string                `bson:"joinUrl"`
	RecordingURL  string                `bson:"recordingUrl"`
	MaxAttendees  int                   `bson:"maxAttendees"`
	Registrations []models.Registration `bson:"registrations"`
	Creator       string                `bson:"creator"`
	Status        string                `bson:"status"`
	IsPublic      bool                  `bson:"isPublic"`
	CreatedAt     time.Time             `bson:"createdAt"`
	UpdatedAt     time.Time             `bson:"updatedAt"`
}

func toMeetingDoc(m *models.Meeting) meetingDoc {
	regs := m.Registrations
	if regs == nil {
		regs = []models.Registration{}
	}
	return meetingDoc{
		ID: m.ID.String(), Title: m.Title, Description: m.Description, Type: string(m.Type),
		Date: m.Date, Time: m.Time, Duration: m.Duration, Language: m.Language, Topics: m.Topics,
		Expert: m.Expert, JoinURL: m.JoinURL, RecordingURL: m.RecordingURL, MaxAttendees: m.MaxAttendees,
		Registrations: regs, Creator: m.Creator, Status: string(m.Status), IsPublic: m.IsPublic,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func (d meetingDoc) model() (*models.Meeting, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	m := &models.Meeting{
		ID: id, Title: d.Title, Description: d.Description, Type: models.MeetingType(d.Type),
		Date: d.Date, Time: d.Time, Duration: d.Duration, Language: d.Language, Topics: d.Topics,
		Expert: d.Expert, JoinURL: d.JoinURL, RecordingURL: d.RecordingURL, MaxAttendees: d.MaxAttendees,
		Registrations: d.Registrations, Creator: d.Creator, Status: models.MeetingStatus(d.Status),
		IsPublic: d.IsPublic, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
	if m.Topics == nil {
		m.Topics = []string{}
	}
	if m.Registrations == nil {
		m.Registrations = []models.Registration{}
	}
	return m, nil
}

// MongoRepository stores meetings as MongoDB documents with embedded registrations.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository creates a meeting store on db.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(collectionMeetings)}
}

// EnsureIndexes creates the listing and registration lookup indexes.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}}},
		{Keys: bson.D{{Key: "creator", Value: 1}}},
		{Keys: bson.D{{Key: "registrations.email", Value: 1}}},
		{Keys: bson.D{{Key: "registrations.userId", Value: 1}}},
	})
	return err
}

// Create inserts a meeting.
func (r *MongoRepository) Create(ctx context.Context, m *models.Meeting) error {
	_, err := r.coll.InsertOne(ctx, toMeetingDoc(m))
	return err
}

// GetByID returns a meeting.
func (r *MongoRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	var d meetingDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("Meeting not found")
	}
	if err != nil {
		return nil, err
	}
	return d.model()
}

// Update writes the mutable meeting fields.
func (r *MongoRepository) Update(ctx context.Context, m *models.Meeting) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": m.ID.String()}, bson.M{"$set": bson.M{
		"title":        m.Title,
		"description":  m.Description,
		"type":         string(m.Type),
		"date":         m.Date,
		"time":         m.Time,
		"duration":     m.Duration,
		"language":     m.Language,
		"topics":       m.Topics,
		"expert":       m.Expert,
		"joinUrl":      m.JoinURL,
		"recordingUrl": m.RecordingURL,
		"maxAttendees": m.MaxAttendees,
		"status":       string(m.Status),
		"isPublic":     m.IsPublic,
		"updatedAt":    m.UpdatedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("Meeting not found")
	}
	return nil
}

// Delete removes a meeting.
func (r *MongoRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"_id": id.String()})
	return err
}

// List returns one page of upcoming or archived public meetings.
func (r *MongoRepository) List(ctx context.Context, q ListQuery) ([]*models.Meeting, error) {
	filter := bson.M{"isPublic": true}
	sort := bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}, {Key: "createdAt", Value: 1}}
	switch q.Scope {
	case ScopeArchived:
		filter["$or"] = bson.A{
			bson.M{"date": bson.M{"$lt": q.Today}},
			bson.M{"status": string(models.MeetingStatusCompleted)},
		}
		sort = bson.D{{Key: "date", Value: -1}, {Key: "time", Value: -1}, {Key: "createdAt", Value: -1}}
	default:
		filter["date"] = bson.M{"$gte": q.Today}
		filter["status"] = string(models.MeetingStatusScheduled)
	}
	if q.Language != "" {
		filter["language"] = q.Language
	}
	if q.Type != "" {
		filter["type"] = string(q.Type)
	}
	opts := options.Find().SetSort(sort).SetSkip(int64(q.Offset))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return r.find(ctx, filter, opts)
}

// ListForDate returns public meetings on date with one of statuses.
func (r *MongoRepository) ListForDate(ctx context.Context, date string, statuses []models.MeetingStatus) ([]*models.Meeting, error) {
	st := make(bson.A, 0, len(statuses))
	for _, s := range statuses {
		st = append(st, string(s))
	}
	filter := bson.M{"isPublic": true, "date": date, "status": bson.M{"$in": st}}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "time", Value: 1}}))
}

// ListRegisteredFor returns meetings with a registration for email or userID.
func (r *MongoRepository) ListRegisteredFor(ctx context.Context, email, userID string) ([]*models.Meeting, error) {
	var or bson.A
	if email != "" {
		or = append(or, bson.M{"registrations.email": email})
	}
	if userID != "" {
		or = append(or, bson.M{"registrations.userId": userID})
	}
	if len(or) == 0 {
		return []*models.Meeting{}, nil
	}
	sort := bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}}
	return r.find(ctx, bson.M{"$or": or}, options.Find().SetSort(sort))
}

// AddRegistration pushes reg with a single conditional update: the filter only
// matches while the email is absent and the meeting has room. When nothing
// matches, the document is re-read to tell the caller why.
func (r *MongoRepository) AddRegistration(ctx context.Context, id uuid.UUID, reg models.Registration) (*models.Meeting, error) {
	filter := bson.M{
		"_id":                 id.String(),
		"registrations.email": bson.M{"$ne": reg.Email},
		"$expr": bson.M{"$lt": bson.A{
			bson.M{"$size": bson.M{"$ifNull": bson.A{"$registrations", bson.A{}}}},
			"$maxAttendees",
		}},
	}
	update := bson.M{
		"$push": bson.M{"registrations": reg},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var d meetingDoc
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d)
	if err == nil {
		return d.model()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	m, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, classifyRejectedRegistration(m, reg)
}

// classifyRejectedRegistration explains why a conditional push matched nothing.
// Capacity is reported before a duplicate email. Neither holding means the
// document changed between the two reads.
func classifyRejectedRegistration(m *models.Meeting, reg models.Registration) error {
	switch {
	case m.IsFull():
		return apperrors.New(apperrors.ErrCapacity, "Meeting is full")
	case m.HasEmail(reg.Email):
		return duplicateRegistration()
	default:
		return apperrors.New(apperrors.ErrConflict, "Meeting changed while registering, please retry")
	}
}

func (r *MongoRepository) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]*models.Meeting, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []meetingDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	list := make([]*models.Meeting, 0, len(docs))
	for _, d := range docs {
		m, err := d.model()
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, nil
}
