package attendance

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/apperrors"
)

func TestAttendanceDoc(t *testing.T) {
	join := time.Date(2026, 5, 4, 14, 0, 0, 0, time.UTC)
	a := &models.Attendance{
		ID: uuid.New(), UserID: "member@example.com", MeetingID: uuid.New(),
		JoinTime: join, Status: models.AttendanceStatusJoined,
	}
	a.MarkLeft(join.Add(95 * time.Minute))

	raw, err := bson.Marshal(toDoc(a))
	require.NoError(t, err)
	doc := bson.Raw(raw)
	assert.Equal(t, a.MeetingID.String(), doc.Lookup("meetingId").StringValue())
	assert.Equal(t, "left", doc.Lookup("status").StringValue())

	var back attendanceDoc
	require.NoError(t, bson.Unmarshal(raw, &back))
	got, err := back.model()
	require.NoError(t, err)
	assert.Equal(t, a.MeetingID, got.MeetingID)
	assert.Equal(t, 95, got.Duration)
	require.NotNil(t, got.LeaveTime)
	assert.True(t, got.LeaveTime.Equal(*a.LeaveTime))
}

func TestErrorKinds(t *testing.T) {
	assert.True(t, errors.Is(alreadyJoined(), apperrors.ErrAlreadyJoined))
	assert.True(t, apperrors.IsNotFound(notFound()))
}
