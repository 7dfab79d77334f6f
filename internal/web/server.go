package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/csrf"

	"github.com/conorfennell/attendance/internal/attendance"
	"github.com/conorfennell/attendance/internal/auth"
	"github.com/conorfennell/attendance/internal/participation"
	"github.com/conorfennell/attendance/internal/schedule"
	gitsync "github.com/conorfennell/attendance/internal/sync"
)

//go:embed all:static
var staticFiles embed.FS

//go:embed all:templates
var templateFiles embed.FS

// timeNow is a variable for testability.
var timeNow = time.Now

// WarningSource reports recent sync failures.
type WarningSource interface {
	Warnings() []gitsync.Warning
}

// Deps are the services the HTTP layer drives.
type Deps struct {
	Auth          *auth.Service
	Schedule      *schedule.Service
	Ledger        *attendance.Ledger
	Participation *participation.Service
	Warnings      WarningSource // optional

	CSRFKey       []byte
	SecureCookies bool
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	deps      Deps
	router    *http.ServeMux
	handler   http.Handler
	templates *template.Template
	sessions  *sessionStore
}

var funcs = template.FuncMap{
	"pct": func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	"inc": func(i int) int { return i + 1 },
}

// NewServer creates and configures a new server.
func NewServer(deps Deps) *Server {
	tpl, err := template.New("").Funcs(funcs).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		log.Fatalf("Failed to parse templates: %v", err)
	}

	s := &Server{
		deps:      deps,
		router:    http.NewServeMux(),
		templates: tpl,
		sessions:  newSessionStore(),
	}
	s.routes()

	protect := csrf.Protect(deps.CSRFKey,
		csrf.Secure(deps.SecureCookies),
		csrf.Path("/"),
		csrf.FieldName("csrf_token"),
		csrf.ErrorHandler(http.HandlerFunc(csrfFailure)),
	)
	s.handler = protect(s.router)
	if !deps.SecureCookies {
		s.handler = plaintext(s.handler)
	}
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("Failed to create sub-filesystem for static assets: %v", err)
	}
	s.router.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	s.router.HandleFunc("/", s.handleIndex())
	s.router.HandleFunc("/login", s.handleLogin())
	s.router.HandleFunc("/register", s.handleRegister())
	s.router.HandleFunc("/logout", s.handleLogout())

	s.router.HandleFunc("/schedule", s.requireLogin(s.handleSchedule()))
	s.router.HandleFunc("/schedule/remove", s.requireLogin(s.handleRemoveCourse()))
	s.router.HandleFunc("/attendance", s.requireLogin(s.handleAttendance()))
	s.router.HandleFunc("/stats", s.requireLogin(s.handleStats()))
	s.router.HandleFunc("/ranking", s.requireLogin(s.handleRanking()))
}

// plaintext marks requests served without TLS so the CSRF check does not
// demand an https Referer.
func plaintext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			r = csrf.PlaintextHTTPRequest(r)
		}
		next.ServeHTTP(w, r)
	})
}

func csrfFailure(w http.ResponseWriter, r *http.Request) {
	slog.Warn("csrf check failed", "path", r.URL.Path, "reason", csrf.FailureReason(r))
	http.Error(w, "Forbidden - invalid or missing CSRF token", http.StatusForbidden)
}

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal error", "error", err)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// page is the data every template receives.
type page struct {
	Title       string
	Active      string
	Username    string
	CSRFField   template.HTML
	Warnings    []gitsync.Warning
	Error       string
	FieldErrors []schedule.FieldError
	Success     string
	Info        string
	Data        any
}

// render executes the named template into a buffer so a failing template
// never leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, p page) {
	p.CSRFField = csrf.TemplateField(r)
	if p.Username == "" {
		p.Username = currentUser(r.Context())
	}
	if p.Username != "" && s.deps.Warnings != nil {
		p.Warnings = s.deps.Warnings.Warnings()
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, p); err != nil {
		internalError(w, fmt.Errorf("render %s: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Debug("write response", "error", err)
	}
}
