package communities

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fincoach/backend/internal/auth"
	"github.com/fincoach/backend/internal/middleware"
	"github.com/fincoach/backend/internal/models"
	"github.com/fincoach/backend/pkg/apperrors"
)

type memStore struct {
	mu          sync.Mutex
	communities map[uuid.UUID]*models.Community
	messages    []*models.CommunityMessage
}

func newMemStore() *memStore {
	return &memStore{communities: map[uuid.UUID]*models.Community{}}
}

func (s *memStore) Create(_ context.Context, c *models.Community) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.communities {
		if strings.EqualFold(existing.Name, c.Name) {
			return nameTaken()
		}
	}
	cp := *c
	cp.Members = append([]string(nil), c.Members...)
	s.communities[c.ID] = &cp
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Community, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.communities[id]
	if !ok {
		return nil, notFound()
	}
	cp := *c
	cp.Members = append([]string{}, c.Members...)
	return &cp, nil
}

func (s *memStore) List(_ context.Context) ([]*models.Community, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := []*models.Community{}
	for _, c := range s.communities {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (s *memStore) AddMember(_ context.Context, id uuid.UUID, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.communities[id]
	for _, m := range c.Members {
		if m == member {
			return nil
		}
	}
	c.Members = append(c.Members, member)
	return nil
}

func (s *memStore) RemoveMember(_ context.Context, id uuid.UUID, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.communities[id]
	kept := c.Members[:0]
	for _, m := range c.Members {
		if m != member {
			kept = append(kept, m)
		}
	}
	c.Members = kept
	return nil
}

func (s *memStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.communities, id)
	return nil
}

func (s *memStore) AddMessage(_ context.Context, msg *models.CommunityMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *memStore) ListMessages(_ context.Context, id uuid.UUID) ([]*models.CommunityMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := []*models.CommunityMessage{}
	for _, m := range s.messages {
		if m.CommunityID == id {
			list = append(list, m)
		}
	}
	return list, nil
}

var (
	owner  = &auth.Identity{UserID: uuid.New(), Email: "Owner@Example.com"}
	member = &auth.Identity{UserID: uuid.New(), Email: "member@example.com"}
)

func TestCreate(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	ctx := context.Background()

	c, err := svc.Create(ctx, CreateInput{Name: "  Index investors ", Description: "passive"}, owner)
	require.NoError(t, err)
	assert.Equal(t, "Index investors", c.Name)
	assert.Equal(t, "owner@example.com", c.Owner)
	assert.Equal(t, []string{"owner@example.com"}, c.Members)

	_, err = svc.Create(ctx, CreateInput{Name: "INDEX INVESTORS"}, member)
	assert.True(t, errors.Is(err, apperrors.ErrDuplicate))

	_, err = svc.Create(ctx, CreateInput{Name: " "}, owner)
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.Create(ctx, CreateInput{Name: strings.Repeat("x", maxNameLength+1)}, owner)
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.Create(ctx, CreateInput{Name: "x"}, nil)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestJoinLeaveIdempotent(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	ctx := context.Background()
	c, err := svc.Create(ctx, CreateInput{Name: "Budgeting"}, owner)
	require.NoError(t, err)

	got, err := svc.Join(ctx, c.ID, member)
	require.NoError(t, err)
	got, err = svc.Join(ctx, c.ID, member)
	require.NoError(t, err)
	assert.Equal(t, []string{"owner@example.com", "member@example.com"}, got.Members)

	got, err = svc.Leave(ctx, c.ID, member)
	require.NoError(t, err)
	got, err = svc.Leave(ctx, c.ID, member)
	require.NoError(t, err)
	assert.Equal(t, []string{"owner@example.com"}, got.Members)

	_, err = svc.Join(ctx, uuid.New(), member)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDeleteOwnerOnly(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	ctx := context.Background()
	c, err := svc.Create(ctx, CreateInput{Name: "Crypto skeptics"}, owner)
	require.NoError(t, err)

	assert.True(t, apperrors.IsForbidden(svc.Delete(ctx, c.ID, member)))
	require.NoError(t, svc.Delete(ctx, c.ID, owner))
	assert.True(t, apperrors.IsNotFound(svc.Delete(ctx, c.ID, owner)))
}

func TestMessages(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	ctx := context.Background()
	c, err := svc.Create(ctx, CreateInput{Name: "Taxes"}, owner)
	require.NoError(t, err)

	_, err = svc.PostMessage(ctx, c.ID, MessageInput{Text: "  "}, member)
	assert.True(t, apperrors.IsValidation(err))

	msg, err := svc.PostMessage(ctx, c.ID, MessageInput{Text: "When is the filing deadline?"}, member)
	require.NoError(t, err)
	assert.Equal(t, "member@example.com", msg.UserName)

	_, err = svc.PostMessage(ctx, c.ID, MessageInput{Text: "April", UserName: "Olive"}, owner)
	require.NoError(t, err)

	list, err := svc.Messages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Olive", list[1].UserName)

	_, err = svc.Messages(ctx, uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestHTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := auth.NewJWTService("test-secret", 1)
	r := gin.New()
	r.Use(middleware.Authenticate(jwtSvc, "token"))
	NewHandler(NewService(newMemStore(), nil), nil).Register(r.Group("/api/communities"), middleware.RequireAuth())

	do := func(method, path string, body interface{}, ident *auth.Identity) (int, json.RawMessage) {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		if ident != nil {
			token, err := jwtSvc.Generate(ident.UserID, ident.Email, ident.Role)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		_ = json.Unmarshal(w.Body.Bytes(), &env)
		return w.Code, env.Data
	}

	code, _ := do(http.MethodPost, "/api/communities", CreateInput{Name: "Savers"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, data := do(http.MethodPost, "/api/communities", CreateInput{Name: "Savers"}, owner)
	require.Equal(t, http.StatusCreated, code)
	var c models.Community
	require.NoError(t, json.Unmarshal(data, &c))

	code, _ = do(http.MethodPost, "/api/communities", CreateInput{Name: "savers"}, member)
	assert.Equal(t, http.StatusBadRequest, code)

	code, data = do(http.MethodGet, "/api/communities", nil, nil)
	require.Equal(t, http.StatusOK, code)
	var list []models.Community
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Len(t, list, 1)

	base := "/api/communities/" + c.ID.String()
	code, _ = do(http.MethodPost, base+"/join", nil, member)
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(http.MethodPost, base+"/messages", MessageInput{Text: "hi"}, member)
	assert.Equal(t, http.StatusCreated, code)
	code, _ = do(http.MethodGet, base+"/messages", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = do(http.MethodDelete, base, nil, member)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = do(http.MethodDelete, base, nil, owner)
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(http.MethodPost, "/api/communities/bogus/join", nil, member)
	assert.Equal(t, http.StatusNotFound, code)
}
