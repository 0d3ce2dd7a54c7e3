package recordings

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fincoach/backend/internal/auth"
	"github.com/fincoach/backend/internal/meetings"
	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/apperrors"
)

var (
	creator    = &auth.Identity{UserID: uuid.New(), Email: "expert@example.com"}
	registered = &auth.Identity{UserID: uuid.New(), Email: "member@example.com"}
	stranger   = &auth.Identity{UserID: uuid.New(), Email: "other@example.com"}
)

type fakeMeetings struct {
	m *models.Meeting
}

func (f *fakeMeetings) AuthorizeCreator(_ context.Context, id uuid.UUID, ident *auth.Identity) (*models.Meeting, error) {
	if id != f.m.ID {
		return nil, apperrors.NotFound("Meeting not found")
	}
	if !ident.Matches(f.m.Creator) {
		return nil, apperrors.Forbidden("Access denied")
	}
	return f.m, nil
}

func (f *fakeMeetings) AuthorizeParticipant(ctx context.Context, id uuid.UUID, ident *auth.Identity) (*models.Meeting, error) {
	m, err := f.AuthorizeCreator(ctx, id, ident)
	if !apperrors.IsForbidden(err) {
		return m, err
	}
	for _, r := range f.m.Registrations {
		if ident.Matches(r.Email) {
			return f.m, nil
		}
	}
	return nil, err
}

func (f *fakeMeetings) Update(ctx context.Context, id uuid.UUID, patch meetings.UpdateInput, ident *auth.Identity) (*models.Meeting, error) {
	m, err := f.AuthorizeCreator(ctx, id, ident)
	if err != nil {
		return nil, err
	}
	if patch.RecordingURL != nil {
		m.RecordingURL = *patch.RecordingURL
	}
	return m, nil
}

type fakeStore struct {
	objects map[string]string
	fail    error
}

func (s *fakeStore) PresignUpload(_ context.Context, key, _ string) (string, error) {
	return "https://signed.example.com/put/" + key, s.fail
}

func (s *fakeStore) PresignDownload(_ context.Context, key string) (string, error) {
	return "https://signed.example.com/get/" + key, s.fail
}

func (s *fakeStore) PresignExpire() time.Duration { return 15 * time.Minute }

func (s *fakeStore) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	if s.fail != nil {
		return "", s.fail
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.objects[key] = string(b)
	return s.ObjectURL(key), nil
}

func (s *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.objects[key]
	return ok, s.fail
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return s.fail
}

func (s *fakeStore) ObjectURL(key string) string { return "https://bucket.example.com/" + key }

type env struct {
	meeting *models.Meeting
	store   *fakeStore
	router  *gin.Engine
}

func newEnv(t *testing.T, withStore bool) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := &env{
		meeting: &models.Meeting{
			ID:            uuid.New(),
			Creator:       "expert@example.com",
			Registrations: []models.Registration{{Email: "member@example.com"}},
		},
		store: &fakeStore{objects: map[string]string{}},
	}
	var store ObjectStore
	if withStore {
		store = e.store
	}
	h := NewHandler(&fakeMeetings{m: e.meeting}, store, nil)

	e.router = gin.New()
	e.router.Use(func(c *gin.Context) {
		if v := c.GetHeader("X-Test-User"); v != "" {
			for _, id := range []*auth.Identity{creator, registered, stranger} {
				if id.Email == v {
					c.Set(auth.ContextIdentity, id)
				}
			}
		}
	})
	requireAuth := func(c *gin.Context) {
		if auth.IdentityFrom(c) == nil {
			c.AbortWithStatus(http.StatusUnauthorized)
		}
	}
	h.Register(e.router.Group("/api/meetings"), requireAuth)
	return e
}

func (e *env) do(method, path, contentType, body string, ident *auth.Identity) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(method, "/api/meetings/"+e.meeting.ID.String()+path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if ident != nil {
		req.Header.Set("X-Test-User", ident.Email)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var out struct {
		Data map[string]interface{} `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out.Data
}

func TestUploadURL(t *testing.T) {
	e := newEnv(t, true)
	key := "recordings/" + e.meeting.ID.String() + ".mp4"

	w, _ := e.do(http.MethodPost, "/recording/upload-url", "", "", stranger)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, data := e.do(http.MethodPost, "/recording/upload-url", "", "", creator)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://signed.example.com/put/"+key, data["uploadUrl"])
	assert.Equal(t, key, data["key"])
	assert.EqualValues(t, 900, data["expiresIn"])
	assert.Equal(t, "https://bucket.example.com/"+key, e.meeting.RecordingURL)
}

func TestUploadAndDownload(t *testing.T) {
	e := newEnv(t, true)

	w, _ := e.do(http.MethodGet, "/recording/download-url", "", "", registered)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(http.MethodPut, "/recording", "text/plain", "nope", creator)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, data := e.do(http.MethodPut, "/recording", "video/mp4", "frames", creator)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, e.meeting.RecordingURL, data["recordingUrl"])

	w, data = e.do(http.MethodGet, "/recording/download-url", "", "", registered)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, data["downloadUrl"], "/get/recordings/")

	w, _ = e.do(http.MethodGet, "/recording/download-url", "", "", stranger)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = e.do(http.MethodGet, "/recording/download-url", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDownloadBeforeObjectExists(t *testing.T) {
	e := newEnv(t, true)
	e.meeting.RecordingURL = "https://bucket.example.com/x"
	w, _ := e.do(http.MethodGet, "/recording/download-url", "", "", creator)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDelete(t *testing.T) {
	e := newEnv(t, true)
	_, _ = e.do(http.MethodPut, "/recording", "video/mp4", "frames", creator)
	require.NotEmpty(t, e.meeting.RecordingURL)

	w, _ := e.do(http.MethodDelete, "/recording", "", "", registered)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = e.do(http.MethodDelete, "/recording", "", "", creator)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, e.meeting.RecordingURL)
	assert.Empty(t, e.store.objects)
}

func TestStoreFailure(t *testing.T) {
	e := newEnv(t, true)
	e.store.fail = errors.New("access denied by bucket policy")
	w, _ := e.do(http.MethodPost, "/recording/upload-url", "", "", creator)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "bucket policy")
}

func TestUnconfiguredStorage(t *testing.T) {
	e := newEnv(t, false)
	for _, tt := range []struct{ method, path string }{
		{http.MethodPost, "/recording/upload-url"},
		{http.MethodPut, "/recording"},
		{http.MethodGet, "/recording/download-url"},
		{http.MethodDelete, "/recording"},
	} {
		w, _ := e.do(tt.method, tt.path, "video/mp4", "", creator)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, tt.path)
	}
}
