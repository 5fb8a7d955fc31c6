package shortid_test

import (
	"testing"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/shortid"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	for i := 0; i < 200; i++ {
		id := uuid.New()
		short := shortid.ToShortID(id)
		require.Len(t, short, shortid.Length)
		require.True(t, shortid.IsShortID(short))

		back, err := shortid.FromShortID(short)
		require.NoError(t, err)
		require.Equal(t, id, back)

		ensured, err := shortid.EnsureUUID(short)
		require.NoError(t, err)
		require.Equal(t, id, ensured)
	}
}

func TestEnsureUUIDAcceptsFullForm(t *testing.T) {
	id := uuid.New()
	got, err := shortid.EnsureUUID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestValidators(t *testing.T) {
	assert.True(t, shortid.IsUUID("123e4567-e89b-12d3-a456-426614174000"))
	assert.False(t, shortid.IsUUID("123e4567e89b12d3a456426614174000"))
	assert.False(t, shortid.IsShortID("temp_123"))
	assert.False(t, shortid.IsShortID("0000000000000000000000")) // '0' is outside the alphabet

	_, err := shortid.EnsureUUID("temp_abc")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
