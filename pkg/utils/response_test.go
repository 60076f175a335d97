package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-chat/backend/pkg/apperr"
)

func TestRespondErrMapsKinds(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondErr(rec, apperr.Conflict("username already taken"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body apperr.Body
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, apperr.KindConflict, body.Kind)
	assert.Contains(t, body.Error, "username already taken")
}

func TestRespondErrHidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondErr(rec, errors.New("disk on fire"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(`{"name":"alice"}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), req, &dst))
	assert.Equal(t, "alice", dst.Name)

	bad := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(`{`))
	assert.ErrorIs(t, DecodeJSON(httptest.NewRecorder(), bad, &dst), apperr.ErrInvalidInput)
}

func TestDecodeJSONRejectsOversizedBody(t *testing.T) {
	var dst struct {
		Content string `json:"content"`
	}
	body := `{"content":"` + strings.Repeat("x", MaxJSONBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(body))

	err := DecodeJSON(httptest.NewRecorder(), req, &dst)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Contains(t, err.Error(), "exceeds")
	assert.Empty(t, dst.Content)
}

func TestSendSSEEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)
	require.NoError(t, SendSSEEvent(rec, rec, "message.created", map[string]string{"id": "m1"}))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "event: message.created\ndata: {\"id\":\"m1\"}\n\n", rec.Body.String())
}
