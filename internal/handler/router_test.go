package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zhouzirui/z-chat/backend/internal/metrics"
	"github.com/zhouzirui/z-chat/backend/internal/realtime"
	chatService "github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/internal/store/blob"
)

func setupRouter() http.Handler {
	hub := realtime.NewHub(nil, nil)
	svc := chatService.NewService(blob.NewMemoryStore(), chatService.WithPublisher(hub))
	return NewRouter(svc, hub, metrics.New(), nil, Options{MaxPhotoBytes: 1 << 20})
}

func call(r http.Handler, method, path, credential, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", credential)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func loginAs(t *testing.T, r http.Handler, name string) string {
	t.Helper()
	resp := call(r, http.MethodPost, "/session", "", `{"name":"`+name+`"}`)
	if resp.Code != http.StatusCreated && resp.Code != http.StatusOK {
		t.Fatalf("login %s: unexpected status %d", name, resp.Code)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out.ID
}

func TestLivenessAndMetrics(t *testing.T) {
	r := setupRouter()

	if resp := call(r, http.MethodGet, "/liveness", "", ""); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	resp := call(r, http.MethodGet, "/metrics", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "zchat_http_requests_total") {
		t.Fatalf("metrics output misses request counter")
	}
}

func TestProtectedRoutesRequireMatchingCredential(t *testing.T) {
	r := setupRouter()
	alice := loginAs(t, r, "alice")
	bob := loginAs(t, r, "bob")
	path := "/users/" + alice + "/conversations/"

	if resp := call(r, http.MethodGet, path, "", ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if resp := call(r, http.MethodGet, path, bob, ""); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
	if resp := call(r, http.MethodGet, path, alice, ""); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp := call(r, http.MethodGet, path, "Bearer "+alice, ""); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with bearer prefix, got %d", resp.Code)
	}
}

func TestEmptiedGroupRejectsMessages(t *testing.T) {
	r := setupRouter()
	alice := loginAs(t, r, "alice")
	loginAs(t, r, "bob")

	resp := call(r, http.MethodPut, "/users/"+alice+"/conversations/", alice, `{"targetUsername":"bob","type":"group"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var group struct {
		ID string `json:"conversationId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&group); err != nil {
		t.Fatalf("decode: %v", err)
	}

	bob := loginAs(t, r, "bob")
	for _, user := range []string{bob, alice} {
		if resp := call(r, http.MethodDelete, "/users/"+user+"/groups/"+group.ID+"/members/me", user, ""); resp.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", resp.Code)
		}
	}

	resp = call(r, http.MethodPost, "/users/"+alice+"/conversations/"+group.ID+"/messages/", alice, `{"content":"hello?"}`)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}
