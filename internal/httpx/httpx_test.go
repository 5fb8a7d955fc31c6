package httpx_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go-playbooks/internal/apperr"
	"go-playbooks/internal/httpx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createPage struct {
	PlaybookID string `json:"playbook_id" validate:"required"`
	Title      string `json:"title" validate:"required,max=200"`
	Permission string `json:"permission" validate:"omitempty,oneof=edit view"`
}

func TestDecodeReportsJSONFieldNames(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"playbook_id":"abc"}`))
	var body createPage
	err := httpx.Decode(req, &body)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, "title is required", err.Error())
}

func TestDecodeOneOf(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"playbook_id":"a","title":"b","permission":"owner"}`))
	var body createPage
	err := httpx.Decode(req, &body)
	require.Error(t, err)
	assert.Equal(t, "permission must be one of [edit view]", err.Error())
}

func TestWriteErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.WriteError(rec, apperr.Downstream("insert internal page", errors.New("timeout")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var got map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "insert internal page: timeout", got["error"])
	assert.NotContains(t, got, "data")
}

func TestWriteDataEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.WriteData(rec, http.StatusCreated, map[string]string{"id": "1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"data":{"id":"1"}}`, rec.Body.String())
}
