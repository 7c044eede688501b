// Package web implements the web ui and json api of the job diary
package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/caejd/jobdiary/app/diary"
	"github.com/caejd/jobdiary/app/service"
	"github.com/caejd/jobdiary/app/store"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

//go:generate moq -out mocks/trigger.go -pkg mocks -skip-ensure -fmt goimports . Trigger

// Store defines job storage used by the web server
type Store interface {
	ListJobs(ctx context.Context, lq store.ListQuery) (store.JobPage, error)
	SearchJobs(ctx context.Context, query string) ([]diary.Job, error)
	GetJob(ctx context.Context, id int64) (diary.Job, error)
	UpdateAnnotations(ctx context.Context, id int64, a store.Annotations) error
	Usernames(ctx context.Context) ([]string, error)
	Projects(ctx context.Context) ([]string, error)
	FindTags(ctx context.Context, prefix string, limit int) ([]string, error)
	CreateTag(ctx context.Context, tag string) error
}

// Trigger requests an immediate pass of a background loop
type Trigger interface {
	Trigger() bool
}

// Component reports the state of a background loop running in the same process
type Component interface {
	State() service.State
}

// session represents an active user session
type session struct {
	createdAt time.Time
}

// Server represents the web server
type Server struct {
	store          Store
	templates      map[string]*template.Template
	baseURL        string // base URL path for reverse proxy (e.g., /diary), empty for root
	hostname       string
	version        string
	feedbackEmail  string
	passwordHash   string // bcrypt hash, empty disables auth
	loginTTL       time.Duration
	loginLimiter   *limiter.Limiter
	csrfProtection *http.CrossOriginProtection
	sessions       map[string]session // active user sessions by token
	sessionsMu     sync.Mutex
	pollTrigger    Trigger
	components     []Component
	panicLog       log.L
}

// Config holds server configuration
type Config struct {
	Store         Store
	BaseURL       string // base URL path for reverse proxy (e.g., /diary), empty for root
	Hostname      string // hostname to display in UI
	Version       string
	FeedbackEmail string        // shown on the about page
	PasswordHash  string        // bcrypt hash for auth (empty to disable)
	LoginTTL      time.Duration // session TTL, defaults to 24h if not set
	PollTrigger   Trigger       // manual rescan, nil if the poller runs elsewhere
	Components    []Component   // background loops shown on the about page
	PanicLogger   log.L         // receives recovered request panics, lgr default if nil
}

// TemplateData holds data common for all pages
type TemplateData struct {
	BaseURL     string
	Hostname    string
	Version     string
	AuthEnabled bool
	Title       string
	CurrentYear int
}

// New creates a new web server
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("web server initialization failed: store is required")
	}

	loginTTL := cfg.LoginTTL
	if loginTTL == 0 {
		loginTTL = 24 * time.Hour
	}

	// 5 login attempts per minute from an address
	lmt := tollbooth.NewLimiter(5.0/60, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})
	lmt.SetBurst(5)
	lmt.SetIPLookup(limiter.IPLookup{Name: "RemoteAddr"})
	lmt.SetMessage("Too many login attempts, try again later")

	s := &Server{
		store:          cfg.Store,
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		hostname:       cfg.Hostname,
		version:        cfg.Version,
		feedbackEmail:  cfg.FeedbackEmail,
		passwordHash:   cfg.PasswordHash,
		loginTTL:       loginTTL,
		loginLimiter:   lmt,
		csrfProtection: http.NewCrossOriginProtection(),
		sessions:       make(map[string]session),
		pollTrigger:    cfg.PollTrigger,
		components:     cfg.Components,
		panicLog:       cfg.PanicLogger,
	}
	if s.panicLog == nil {
		s.panicLog = log.Default()
	}

	templates, err := s.parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("web server initialization failed: failed to parse HTML templates: %w", err)
	}
	s.templates = templates
	return s, nil
}

// Run starts the web server, blocking until ctx is canceled
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] starting web server on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// handler returns the http.Handler with base URL wrapping applied
func (s *Server) handler() http.Handler {
	routes := s.routes()
	if s.baseURL == "" {
		return routes
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.baseURL, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, s.baseURL+"/", http.StatusMovedPermanently)
	})
	mux.Handle(s.baseURL+"/", http.StripPrefix(s.baseURL, routes))
	return mux
}

// routes returns the http.Handler with all routes configured
func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Func(func(format string, args ...any) {
			s.panicLog.Logf("[ERROR] "+format, args...)
		})),
		rest.Throttle(1000),
		rest.AppInfo("jobdiary", "caejd", s.version),
		rest.Ping,
		rest.Trace,
		rest.SizeLimit(64*1024), // 64KB max request size
		logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler,
	)

	// must be set before any routes are defined
	if s.passwordHash != "" {
		log.Printf("[INFO] authentication enabled for web UI")
		router.Use(s.authMiddleware)
		router.HandleFunc("GET /login", s.handleLoginForm)
		router.With(s.csrfProtection.Handler, tollbooth.HTTPMiddleware(s.loginLimiter)).HandleFunc("POST /login", s.handleLogin)
		router.HandleFunc("GET /logout", s.handleLogout)
	}

	router.HandleFunc("GET /{$}", s.handleJobList)
	router.HandleFunc("GET /jobs/{id}", s.handleJobDetail)
	router.With(s.csrfProtection.Handler).HandleFunc("POST /jobs/{id}", s.handleJobUpdate)
	router.HandleFunc("GET /about", s.handleAbout)

	router.Mount("/api").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)
		api.Use(s.csrfProtection.Handler)
		api.HandleFunc("GET /tags", s.handleTagsAutocomplete)
		api.HandleFunc("POST /tags", s.handleTagCreate)
		api.HandleFunc("POST /poll", s.handlePollTrigger)
	})

	// JSON API for programmatic access
	router.Mount("/api/v1").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)
		api.HandleFunc("GET /jobs", s.handleAPIJobs)
		api.HandleFunc("GET /jobs/{id}", s.handleAPIJob)
		api.HandleFunc("GET /search", s.handleAPISearch)
		api.HandleFunc("GET /status", s.handleAPIStatus)
	})

	fsys, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Printf("[ERROR] failed to create static file system: %v", err)
		router.Handle("GET /static/", http.FileServer(http.FS(staticFS)))
	} else {
		router.HandleFiles("/static/", http.FS(fsys))
	}

	return router
}

// render renders a page template with the given status
func (s *Server) render(w http.ResponseWriter, status int, page string, data any) {
	tmpl, ok := s.templates[page]
	if !ok {
		log.Printf("[WARN] template %s not found", page)
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	buf := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(buf, "base.html", data); err != nil {
		log.Printf("[WARN] failed to execute template %s: %v", page, err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[WARN] failed to write response: %v", err)
	}
}

// parseTemplates parses each page together with the base layout
func (s *Server) parseTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)

	funcMap := template.FuncMap{
		"humanTime":   s.humanTime,
		"humanDate":   s.humanDate,
		"url":         s.url,
		"truncate":    s.truncate,
		"contains":    contains,
		"pageURL":     pageURL,
		"statusClass": statusClass,
		"join":        strings.Join,
	}

	for _, page := range []string{"list.html", "detail.html", "about.html", "login.html"} {
		tmpl, err := template.New("base.html").Funcs(funcMap).ParseFS(templatesFS, "templates/base.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		templates[page] = tmpl
	}
	return templates, nil
}

func (s *Server) newTemplateData(title string) TemplateData {
	return TemplateData{
		BaseURL:     s.baseURL,
		Hostname:    s.hostname,
		Version:     s.version,
		AuthEnabled: s.passwordHash != "",
		Title:       title,
		CurrentYear: time.Now().Year(),
	}
}

// template helper functions

func (s *Server) humanTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func (s *Server) humanDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func (s *Server) truncate(str string, n int) string {
	r := []rune(str)
	if len(r) <= n {
		return str
	}
	return string(r[:n]) + "..."
}

// url prepends the base URL to a path for reverse proxy support
func (s *Server) url(path string) string {
	return s.baseURL + path
}

// cookiePath returns the cookie path with base URL support
func (s *Server) cookiePath() string {
	if s.baseURL == "" {
		return "/"
	}
	return s.baseURL + "/"
}

func contains(list []string, v string) bool {
	return slices.Contains(list, v)
}

// statusClass maps a color name of a status to the badge css class
func statusClass(color string) string {
	return "badge badge-" + color
}
