package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"brucewnd/api/internal/auth"
	"brucewnd/api/internal/catalog"
	"brucewnd/api/internal/metrics"
	"brucewnd/api/internal/objectstore"
	"brucewnd/api/internal/search"
	"brucewnd/api/internal/session"
	"brucewnd/api/internal/validation"
)

// Catalog is the set of catalog operations the HTTP layer serves.
type Catalog interface {
	Ready(ctx context.Context) error

	Register(ctx context.Context, input catalog.RegisterInput) (catalog.UserView, error)
	Authenticate(ctx context.Context, username, password string) (catalog.UserView, error)
	LoadUser(ctx context.Context, userID int64) (catalog.UserView, error)
	GetUser(ctx context.Context, caller catalog.Caller, userID int64) (catalog.UserView, error)
	ListUsers(ctx context.Context, caller catalog.Caller) ([]catalog.UserView, error)
	DeleteUser(ctx context.Context, caller catalog.Caller, userID int64) error

	CreateComic(ctx context.Context, caller catalog.Caller, input catalog.ComicInput) (catalog.ComicDetail, error)
	UpdateComic(ctx context.Context, caller catalog.Caller, comicID int64, update catalog.ComicUpdate) (catalog.ComicDetail, error)
	DeleteComic(ctx context.Context, caller catalog.Caller, comicID int64) error
	ListComics(ctx context.Context, caller catalog.Caller) ([]catalog.ComicSummary, error)
	GetComic(ctx context.Context, caller catalog.Caller, comicID int64) (catalog.ComicDetail, error)
	GetComicByName(ctx context.Context, caller catalog.Caller, name string) (catalog.ComicDetail, error)

	ListChapters(ctx context.Context, caller catalog.Caller, comicID int64) ([]catalog.ChapterView, error)
	GetChapter(ctx context.Context, caller catalog.Caller, chapterID int64) (catalog.ChapterView, error)
	CreateChapter(ctx context.Context, caller catalog.Caller, comicID int64, input catalog.ChapterInput) (catalog.ChapterView, error)
	UpdateChapter(ctx context.Context, caller catalog.Caller, chapterID int64, update catalog.ChapterUpdate) (catalog.ChapterView, error)
	DeleteChapter(ctx context.Context, caller catalog.Caller, chapterID int64) error
	MoveChapter(ctx context.Context, caller catalog.Caller, chapterID int64, direction catalog.Direction) ([]catalog.ChapterView, error)

	AttachTags(ctx context.Context, caller catalog.Caller, comicID int64, raw []string) ([]string, error)
	DetachTag(ctx context.Context, caller catalog.Caller, comicID int64, rawName string) error
	ListTags(ctx context.Context) ([]catalog.TagView, error)

	Search(ctx context.Context, caller catalog.Caller, q search.Query) (search.Response, error)
}

// Sessions stores refresh tokens by hash.
type Sessions interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, userID int64, username string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (session.TokenData, error)
	ConsumeRefreshSession(ctx context.Context, tokenHash string) (session.TokenData, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

// Uploads presigns cover image uploads.
type Uploads interface {
	PresignUpload(ctx context.Context, fileName, contentType string) (objectstore.Upload, error)
}

// Deps wires the server. Sessions, Uploads and Gatherer are optional; the
// endpoints they back answer 503 when unset.
type Deps struct {
	Catalog     Catalog
	Tokens      *auth.Issuer
	Sessions    Sessions
	RefreshTTL  time.Duration
	Uploads     Uploads
	Validator   *validation.Validator
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
	CORSOrigins []string
}

type HTTPServer struct {
	catalog     Catalog
	tokens      *auth.Issuer
	sessions    Sessions
	refreshTTL  time.Duration
	uploads     Uploads
	validator   *validation.Validator
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	logger      *slog.Logger
	corsOrigins []string
	now         func() time.Time
}

func NewHTTPServer(deps Deps) *HTTPServer {
	s := &HTTPServer{
		catalog:     deps.Catalog,
		tokens:      deps.Tokens,
		sessions:    deps.Sessions,
		refreshTTL:  deps.RefreshTTL,
		uploads:     deps.Uploads,
		validator:   deps.Validator,
		metrics:     deps.Metrics,
		gatherer:    deps.Gatherer,
		logger:      deps.Logger,
		corsOrigins: deps.CORSOrigins,
		now:         time.Now,
	}
	if s.validator == nil {
		s.validator = validation.New()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = 30 * 24 * time.Hour
	}
	if len(s.corsOrigins) == 0 {
		s.corsOrigins = []string{"*"}
	}
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.observe)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(s.gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/auth/register", s.handleRegister)
			r.Post("/auth/login", s.handleLogin)
			r.Post("/auth/refresh", s.handleRefresh)
			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)

			r.Get("/users", s.handleListUsers)
			r.Get("/users/{userID}", s.handleGetUser)
			r.Delete("/users/{userID}", s.handleDeleteUser)

			r.Get("/comics", s.handleListComics)
			r.Post("/comics", s.handleCreateComic)
			r.Get("/comics/by-name/{name}", s.handleGetComicByName)
			r.Get("/comics/{comicID}", s.handleGetComic)
			r.Put("/comics/{comicID}", s.handleUpdateComic)
			r.Delete("/comics/{comicID}", s.handleDeleteComic)
			r.Get("/comics/{comicID}/chapters", s.handleListChapters)
			r.Post("/comics/{comicID}/chapters", s.handleCreateChapter)
			r.Post("/comics/{comicID}/tags", s.handleAttachTags)
			r.Delete("/comics/{comicID}/tags/{tagName}", s.handleDetachTag)

			r.Get("/chapters/{chapterID}", s.handleGetChapter)
			r.Put("/chapters/{chapterID}", s.handleUpdateChapter)
			r.Delete("/chapters/{chapterID}", s.handleDeleteChapter)
			r.Post("/chapters/{chapterID}/move", s.handleMoveChapter)

			r.Get("/tags", s.handleListTags)
			r.Get("/search", s.handleSearch)
			r.Post("/uploads/cover", s.handleCoverUpload)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	return r
}

// observe logs one line per request and records request metrics under the
// matched route pattern.
func (s *HTTPServer) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		requestID := chimw.GetReqID(r.Context())
		if requestID != "" {
			w.Header().Set(chimw.RequestIDHeader, requestID)
		}
		writer := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(writer, r)

		status := writer.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(started)
		s.metrics.ObserveRequest(r.Method, route, status, elapsed)
		s.logger.InfoContext(r.Context(), "http request",
			"request_id", requestID,
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]map[string]any{}
	status := "ready"
	probe := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			status = "not_ready"
			checks[name] = map[string]any{"ok": false, "error": err.Error()}
			return
		}
		checks[name] = map[string]any{"ok": true}
	}
	probe("database", s.catalog.Ready)
	if s.sessions != nil {
		probe("sessions", s.sessions.Ping)
	}

	code := http.StatusOK
	if status != "ready" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}
