package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	chatservice "github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/internal/store/blob"
)

func setupRouter() *chi.Mux {
	r := chi.NewRouter()
	New(chatservice.NewService(blob.NewMemoryStore())).RegisterRoutes(r)
	return r
}

func login(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestLoginCreatesThenReturnsSameID(t *testing.T) {
	r := setupRouter()

	first := login(r, `{"name":"alice"}`)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.Code)
	}
	second := login(r, `{"name":"alice"}`)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", second.Code)
	}

	var a, b struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(first.Body).Decode(&a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.NewDecoder(second.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.ID == "" || a.ID != b.ID {
		t.Fatalf("expected the same id twice, got %q and %q", a.ID, b.ID)
	}
}

func TestLoginRejectsBadInput(t *testing.T) {
	r := setupRouter()

	for _, body := range []string{`{`, `{}`, `{"name":"x"}`} {
		if resp := login(r, body); resp.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, resp.Code)
		}
	}
}
