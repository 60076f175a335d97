package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/auth"
)

type knownUsers map[string]bool

func (k knownUsers) UserExists(id string) bool { return k[id] }

type observed struct {
	method, route string
	status        int
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observed
}

func (o *recordingObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observed{method: method, route: route, status: status})
}

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }

func newProtectedRouter(limiter *auth.LimiterPool) http.Handler {
	r := chi.NewRouter()
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Use(Authenticate(auth.NewIdentifierAuthenticator(knownUsers{"u1": true, "u2": true}, false), limiter))
		r.Use(RequireSelf("userID"))
		r.Get("/conversations", ok)
	})
	return r
}

func TestAuthenticationAndSelfCheck(t *testing.T) {
	router := newProtectedRouter(auth.NewLimiterPool(0, 0))

	cases := []struct {
		name       string
		credential string
		want       int
	}{
		{name: "missing credential", credential: "", want: http.StatusUnauthorized},
		{name: "unknown user", credential: "ghost", want: http.StatusUnauthorized},
		{name: "other user", credential: "u2", want: http.StatusForbidden},
		{name: "self", credential: "u1", want: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/users/u1/conversations", nil)
			if tc.credential != "" {
				req.Header.Set("Authorization", tc.credential)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRateLimit(t *testing.T) {
	router := newProtectedRouter(auth.NewLimiterPool(0.001, 1))

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/users/u1/conversations", nil)
		req.Header.Set("Authorization", "u1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusNoContent, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS("https://chat.example")(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodOptions, "/session", nil)
	req.Header.Set("Origin", "https://chat.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://chat.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestInstrumentUsesRoutePattern(t *testing.T) {
	obs := &recordingObserver{}
	r := chi.NewRouter()
	r.Use(Instrument(obs))
	r.Use(RequestLogger(zap.NewNop()))
	r.Get("/users/{userID}/search", ok)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/u1/search", nil))

	require.Len(t, obs.seen, 1)
	assert.Equal(t, observed{method: http.MethodGet, route: "/users/{userID}/search", status: http.StatusNoContent}, obs.seen[0])
}
