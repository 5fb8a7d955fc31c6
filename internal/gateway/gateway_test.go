package gateway

import (
	"database/sql"
	"errors"
	"testing"

	"go-playbooks/internal/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryBuildsFilteredSelect(t *testing.T) {
	g := New(nil)
	query, args, err := g.From("playbooks", "id", "title").
		Eq("is_marketplace", true).
		ILike("50%_off", "title", "description").
		Overlaps("tags", []string{"sales"}).
		Gte("price", 10.0).
		Order("created_at", false).
		Limit(20).
		ToSQL()
	require.NoError(t, err)

	assert.Contains(t, query, "SELECT id, title FROM playbooks WHERE")
	assert.Contains(t, query, "is_marketplace = $1")
	assert.Contains(t, query, "title ILIKE $2 OR description ILIKE $3")
	assert.Contains(t, query, "tags && $4")
	assert.Contains(t, query, "price >= $5")
	assert.Contains(t, query, "ORDER BY created_at DESC")
	assert.Contains(t, query, "LIMIT 20")
	assert.Equal(t, []any{true, `%50\%\_off%`, `%50\%\_off%`, []string{"sales"}, 10.0}, args)
}

func TestQuerySkipsEmptyFilters(t *testing.T) {
	query, args, err := New(nil).From("playbooks").ILike("", "title").Overlaps("tags", nil).ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM playbooks", query)
	assert.Empty(t, args)
}

func TestUUIDsAreBoundAsStrings(t *testing.T) {
	id := uuid.New()
	_, args, err := New(nil).From("playbooks", "id").Eq("owner_id", id).ToSQL()
	require.NoError(t, err)
	assert.Equal(t, []any{id.String()}, args)
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "playbook"))
	assert.True(t, apperr.Is(Wrap(sql.ErrNoRows, "playbook"), apperr.KindNotFound))
	assert.Equal(t, "playbook not found", Wrap(sql.ErrNoRows, "playbook").Error())
	assert.True(t, apperr.Is(Wrap(&pgconn.PgError{Code: "23505"}, "favorite"), apperr.KindValidation))
	assert.True(t, apperr.Is(Wrap(errors.New("boom"), "playbook"), apperr.KindDownstream))

	already := apperr.Forbidden("nope")
	assert.Same(t, already, Wrap(already, "playbook"))
}
