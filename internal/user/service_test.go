package user

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go-playbooks/internal/apperr"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
}

func newMemStore() *memStore { return &memStore{users: map[uuid.UUID]*User{}} }

func (m *memStore) CreateUser(_ context.Context, u *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return nil, apperr.Validation("user already exists")
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	m.users[u.ID] = u
	return u, nil
}

func (m *memStore) find(match func(*User) bool) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return u, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	return m.find(func(u *User) bool { return u.Username == username })
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	return m.find(func(u *User) bool { return u.ID == id })
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*User, error) {
	return m.find(func(u *User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *memStore) SearchUsers(_ context.Context, query string) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []User
	for _, u := range m.users {
		if strings.Contains(strings.ToLower(u.Username), strings.ToLower(query)) {
			out = append(out, *u)
		}
	}
	return out, nil
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemStore(), "test-secret")

	u, err := svc.Register(ctx, &RegisterRequest{Username: "ada", Email: "ada@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", u.Password)

	res, err := svc.Login(ctx, &LoginRequest{Username: "ada", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.ID)

	id, name, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)
	assert.Equal(t, "ada", name)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemStore(), "test-secret")
	_, err := svc.Register(ctx, &RegisterRequest{Username: "ada", Password: "correct horse"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, &LoginRequest{Username: "ada", Password: "wrong"})
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))

	_, err = svc.Login(ctx, &LoginRequest{Username: "nobody", Password: "wrong"})
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	other := NewService(newMemStore(), "other-secret")
	token, err := other.issueToken(&User{ID: uuid.New(), Username: "mallory"})
	require.NoError(t, err)

	svc := NewService(newMemStore(), "test-secret")
	_, _, err = svc.ValidateToken(token)
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := NewService(newMemStore(), "test-secret")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		ID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	ss, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, _, err = svc.ValidateToken(ss)
	assert.Error(t, err)
}
