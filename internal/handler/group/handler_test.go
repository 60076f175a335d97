package group

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/internal/store/blob"
)

type fixture struct {
	router            http.Handler
	svc               *chatservice.Service
	alice, bob, group string
}

func setupRouter(t *testing.T) fixture {
	t.Helper()
	svc := chatservice.NewService(blob.NewMemoryStore())
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Route("/users/{userID}", New(svc, 1<<20).RegisterRoutes)

	ctx := context.Background()
	ids := make(map[string]string)
	for _, name := range []string{"alice", "bob", "carol"} {
		u, _, err := svc.ResolveIdentity(ctx, name)
		if err != nil {
			t.Fatalf("ResolveIdentity err: %v", err)
		}
		ids[name] = u.ID
	}
	g, _, err := svc.CreateOrGetConversation(ctx, ids["alice"], "bob", chat.ConversationGroup)
	if err != nil {
		t.Fatalf("CreateOrGetConversation err: %v", err)
	}
	return fixture{router: r, svc: svc, alice: ids["alice"], bob: ids["bob"], group: g.ID}
}

func (f fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func (f fixture) path(userID, suffix string) string {
	return "/users/" + userID + "/groups/" + f.group + suffix
}

func TestAddMemberAndList(t *testing.T) {
	f := setupRouter(t)

	if resp := f.do(http.MethodPut, f.path(f.alice, "/members/"), `{"username":"carol"}`); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if resp := f.do(http.MethodPut, f.path(f.alice, "/members/"), `{"username":"carol"}`); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	if resp := f.do(http.MethodPut, f.path(f.alice, "/members/"), `{}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	resp := f.do(http.MethodGet, f.path(f.bob, "/members/"), "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var members []chat.UserSummary
	if err := json.NewDecoder(resp.Body).Decode(&members); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(members))
	}
}

func TestLastMemberLeavingClosesGroup(t *testing.T) {
	f := setupRouter(t)

	for _, user := range []string{f.bob, f.alice} {
		if resp := f.do(http.MethodDelete, f.path(user, "/members/me"), ""); resp.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", resp.Code)
		}
	}

	resp := f.do(http.MethodGet, f.path(f.alice, "/members/"), "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if body := bytes.TrimSpace(resp.Body.Bytes()); string(body) != "[]" {
		t.Fatalf("expected empty member list, got %s", body)
	}

	if resp := f.do(http.MethodPut, f.path(f.alice, "/name"), `{"name":"Revival"}`); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestSetNameAndPhoto(t *testing.T) {
	f := setupRouter(t)

	resp := f.do(http.MethodPut, f.path(f.alice, "/name"), `{"name":"Book Club"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if resp := f.do(http.MethodPut, f.path(f.alice, "/name"), `{"name":"no/slashes"}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("photo", "group.png")
	part.Write([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPut, f.path(f.bob, "/photo"), &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if resp := f.do(http.MethodPut, f.path(f.bob, "/photo"), `{}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-multipart photo, got %d", resp.Code)
	}
}
