package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"gagyebu/internal/core"
	"gagyebu/internal/export"
	applog "gagyebu/internal/log"
	"gagyebu/internal/middleware/ratelimit"
	"gagyebu/internal/middleware/security"
	"gagyebu/internal/middleware/trace"
	"gagyebu/internal/services"
)

const readyTimeout = 2 * time.Second

// ImportService is the import pipeline the API exposes.
type ImportService interface {
	Preview(ctx context.Context, data []byte, filename string) (services.PreviewResult, error)
	Commit(ctx context.Context, req services.CommitRequest) (services.CommitResult, error)
	ListImports(ctx context.Context, userID string) ([]core.ImportFile, error)
	ExportImport(ctx context.Context, userID, importFileID string, format export.Format) (export.Document, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	MaxUploadBytes     int64
	DefaultUserID      string
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	imports      ImportService
	pinger       Pinger
	opts         Options
	limiter      *ratelimit.Limiter
	tracer       *trace.Middleware
	logger       *applog.Logger
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, imports ImportService, pinger Pinger, opts Options, logger *applog.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.DefaultUserID == "" {
		opts.DefaultUserID = "default"
	}

	s := &Server{
		imports: imports,
		pinger:  pinger,
		opts:    opts,
		limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		logger:  logger.WithComponent(applog.ComponentHTTP),
	}

	limited := s.limiter.Middleware(ClientIP, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded", applog.FieldClientIP, ClientIP(r), applog.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})

	mux := http.NewServeMux()
	mux.Handle("POST /api/imports/preview", limited(http.HandlerFunc(s.handlePreview)))
	mux.Handle("POST /api/imports/commit", limited(http.HandlerFunc(s.handleCommit)))
	mux.HandleFunc("GET /api/imports", s.handleListImports)
	mux.HandleFunc("GET /api/imports/{id}/export", s.handleExport)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.tracer = trace.NewMiddleware(s.logger, ClientIP)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.tracer.Middleware(headers.Middleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.logger.InfoContext(ctx, "HTTP server shutting down",
			applog.FieldRequestsServed, s.tracer.Requests(),
			applog.FieldActiveClients, s.limiter.ActiveClients())
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
