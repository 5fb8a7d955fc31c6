package user

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/gateway"

	"github.com/google/uuid"
)

var userColumns = []string{"id", "username", "COALESCE(email, '')", "password", "created_at"}

type Repository struct {
	gw *gateway.Gateway
}

func NewRepository(gw *gateway.Gateway) *Repository {
	return &Repository{gw: gw}
}

func (r *Repository) CreateUser(ctx context.Context, u *User) (*User, error) {
	values := map[string]any{"username": u.Username, "password": u.Password}
	if u.Email != "" {
		values["email"] = strings.ToLower(u.Email)
	}
	err := r.gw.InsertReturning(ctx, "users", values, "id", "created_at").Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return nil, gateway.Wrap(err, "user")
	}
	return u, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getBy(ctx, "email", strings.ToLower(email))
}

func (r *Repository) getBy(ctx context.Context, col string, v any) (*User, error) {
	u := &User{}
	err := r.gw.From("users", userColumns...).Eq(col, v).Row(ctx).
		Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, gateway.Wrap(err, "user")
	}
	return u, nil
}

func (r *Repository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	// We limit to 10 to keep it fast
	rows, err := r.gw.From("users", "id", "username").
		ILike(query, "username").
		Order("username", true).
		Limit(10).
		Rows(ctx)
	if err != nil {
		return nil, gateway.Wrap(err, "user")
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, gateway.Wrap(err, "user")
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
