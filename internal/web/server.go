// Package web is the HTTP front end: the login form, the results view and
// the operational endpoints.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"followback/pkg/analyzer"
	"followback/pkg/logger"
	"followback/pkg/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// maxFormBytes bounds the POST body
const maxFormBytes = 16 << 10

// Analyzer runs one analysis for a client address
type Analyzer interface {
	Analyze(ctx context.Context, address string, creds analyzer.Credentials) analyzer.Outcome
}

// Options configures a Server
type Options struct {
	Analyzer          Analyzer
	Metrics           *metrics.Metrics
	Logger            logger.Logger
	SecretKey         string
	FormTokenTTL      time.Duration
	TrustForwardedFor bool
	Version           string
	Clock             func() time.Time
}

// Server serves the web front end
type Server struct {
	analyzer  Analyzer
	metrics   *metrics.Metrics
	logger    logger.Logger
	tokens    *FormTokens
	keyFunc   KeyFunc
	templates *template.Template
	version   string
	clock     func() time.Time
	started   time.Time
	handler   http.Handler
}

// NewServer builds the router and parses the embedded templates
func NewServer(opts Options) (*Server, error) {
	if opts.Analyzer == nil {
		return nil, errors.New("web: analyzer is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	log := opts.Logger.WithField("component", "web")

	if opts.SecretKey == "" {
		log.Warn("no secret key configured, using a random key for this process")
	}
	tokens, err := NewFormTokens(opts.SecretKey, opts.FormTokenTTL)
	if err != nil {
		return nil, err
	}
	tokens.now = opts.Clock

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"profileURL": profileURL,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		analyzer:  opts.Analyzer,
		metrics:   opts.Metrics,
		logger:    log,
		tokens:    tokens,
		keyFunc:   ClientAddressKey(opts.TrustForwardedFor),
		templates: tmpl,
		version:   opts.Version,
		clock:     opts.Clock,
		started:   opts.Clock(),
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, accessLog(s.logger), recoverer(s.logger), securityHeaders)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/", s.handleAnalyze).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/favicon.ico", http.RedirectHandler("/static/favicon.svg", http.StatusMovedPermanently))
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	static, _ := fs.Sub(staticFS, "static")
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	return r
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       90 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Warn("server shutdown incomplete")
		}
	}()

	s.logger.InfoWithFields("server listening", map[string]interface{}{
		"address": addr,
		"version": s.version,
	})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	<-done
	return nil
}
