package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fincoach/backend/internal/models"
)

const collectionAttendance = "attendances"

type attendanceDoc struct {
	ID        string     `bson:"_id"`
	UserID    string     `bson:"userId"`
	MeetingID string     `bson:"meetingId"`
	JoinTime  time.Time  `bson:"joinTime"`
	LeaveTime *time.Time `bson:"leaveTime"`
	Duration  int        `bson:"duration"`
	Status    string     `bson:"status"`
	IPAddress string     `bson:"ipAddress"`
	UserAgent string     `bson:"userAgent"`
	CreatedAt time.Time  `bson:"createdAt"`
	UpdatedAt time.Time  `bson:"updatedAt"`
}

func toDoc(a *models.Attendance) attendanceDoc {
	return attendanceDoc{
		ID: a.ID.String(), UserID: a.UserID, MeetingID: a.MeetingID.String(), JoinTime: a.JoinTime,
		LeaveTime: a.LeaveTime, Duration: a.Duration, Status: string(a.Status), IPAddress: a.IPAddress,
		UserAgent: a.UserAgent, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func (d attendanceDoc) model() (*models.Attendance, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	meetingID, err := uuid.Parse(d.MeetingID)
	if err != nil {
		return nil, err
	}
	return &models.Attendance{
		ID: id, UserID: d.UserID, MeetingID: meetingID, JoinTime: d.JoinTime, LeaveTime: d.LeaveTime,
		Duration: d.Duration, Status: models.AttendanceStatus(d.Status), IPAddress: d.IPAddress,
		UserAgent: d.UserAgent, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}, nil
}

// MongoRepository stores attendance rows as MongoDB documents.
type MongoRepository struct {
	coll *mongo.Collection
}

// NewMongoRepository creates an attendance store on db.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(collectionAttendance)}
}

// EnsureIndexes creates the unique (userId, meetingId) index Create relies on.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "meetingId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "meetingId", Value: 1}, {Key: "joinTime", Value: 1}}},
	})
	return err
}

// Create inserts a row.
func (r *MongoRepository) Create(ctx context.Context, a *models.Attendance) error {
	_, err := r.coll.InsertOne(ctx, toDoc(a))
	if mongo.IsDuplicateKeyError(err) {
		return alreadyJoined()
	}
	return err
}

// Get returns the user's row for the meeting.
func (r *MongoRepository) Get(ctx context.Context, meetingID uuid.UUID, userID string) (*models.Attendance, error) {
	var d attendanceDoc
	err := r.coll.FindOne(ctx, bson.M{"meetingId": meetingID.String(), "userId": userID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound()
	}
	if err != nil {
		return nil, err
	}
	return d.model()
}

// Update writes leave time, duration and status.
func (r *MongoRepository) Update(ctx context.Context, a *models.Attendance) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": a.ID.String()}, bson.M{"$set": bson.M{
		"leaveTime": a.LeaveTime,
		"duration":  a.Duration,
		"status":    string(a.Status),
		"updatedAt": a.UpdatedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return notFound()
	}
	return nil
}

// ListByMeeting returns every row of the meeting, earliest join first.
func (r *MongoRepository) ListByMeeting(ctx context.Context, meetingID uuid.UUID) ([]*models.Attendance, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"meetingId": meetingID.String()},
		options.Find().SetSort(bson.D{{Key: "joinTime", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []attendanceDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	list := make([]*models.Attendance, 0, len(docs))
	for _, d := range docs {
		a, err := d.model()
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, nil
}

// DeleteByMeeting removes every row of the meeting.
func (r *MongoRepository) DeleteByMeeting(ctx context.Context, meetingID uuid.UUID) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"meetingId": meetingID.String()})
	return err
}

// MarkAttended sets every row of the meeting to attended.
func (r *MongoRepository) MarkAttended(ctx context.Context, meetingID uuid.UUID) error {
	_, err := r.coll.UpdateMany(ctx, bson.M{"meetingId": meetingID.String()}, bson.M{"$set": bson.M{
		"status":    string(models.AttendanceStatusAttended),
		"updatedAt": time.Now().UTC(),
	}})
	return err
}
