package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/auth"
	"github.com/zhouzirui/z-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/z-chat/backend/internal/handler/group"
	"github.com/zhouzirui/z-chat/backend/internal/handler/profile"
	"github.com/zhouzirui/z-chat/backend/internal/handler/session"
	"github.com/zhouzirui/z-chat/backend/internal/handler/stream"
	"github.com/zhouzirui/z-chat/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/z-chat/backend/internal/middleware"
	"github.com/zhouzirui/z-chat/backend/internal/realtime"
	chatService "github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/pkg/utils"
)

// Options carries the HTTP-level settings of the router.
type Options struct {
	RequestTimeout time.Duration
	AllowedOrigin  string
	MaxPhotoBytes  int64
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter wires HTTP routes to core services. m may be nil to disable
// metrics.
func NewRouter(chatSvc *chatService.Service, hub *realtime.Hub, m *metrics.Metrics, logger *zap.Logger, opts Options) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if m != nil {
		r.Use(middlewarePkg.Instrument(m))
	}
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(middlewarePkg.CORS(opts.AllowedOrigin))

	r.Get("/liveness", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}

	limiter := auth.NewLimiterPool(opts.RateLimitRPS, opts.RateLimitBurst)
	headerAuth := auth.NewIdentifierAuthenticator(chatSvc, false)
	streamAuth := auth.NewIdentifierAuthenticator(chatSvc, true)

	sessionHandler := session.New(chatSvc)
	chatHandler := chat.New(chatSvc, opts.MaxPhotoBytes)
	groupHandler := group.New(chatSvc, opts.MaxPhotoBytes)
	profileHandler := profile.New(chatSvc, opts.MaxPhotoBytes)
	streamHandler := stream.New(hub, logger, opts.AllowedOrigin)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(opts.RequestTimeout))
		sessionHandler.RegisterRoutes(r)
	})

	r.Route("/users/{userID}", func(r chi.Router) {
		// Long-lived event streams are exempt from the request deadline.
		r.Group(func(r chi.Router) {
			r.Use(middlewarePkg.Authenticate(streamAuth, limiter))
			r.Use(middlewarePkg.RequireSelf("userID"))
			streamHandler.RegisterRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(middlewarePkg.Authenticate(headerAuth, limiter))
			r.Use(middlewarePkg.RequireSelf("userID"))
			r.Use(middleware.Timeout(opts.RequestTimeout))

			chatHandler.RegisterRoutes(r)
			groupHandler.RegisterRoutes(r)
			profileHandler.RegisterRoutes(r)
		})
	})

	return r
}
