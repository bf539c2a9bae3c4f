// Package web serves the sign-in flows, the guarded admin area and the
// admin API over fiber.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	auth "github.com/txnjournal/go-txn-auth"
)

//go:embed views
var viewsFS embed.FS

// DefaultCookieName holds the access token of browser sessions.
const DefaultCookieName = "txn_access_token"

const (
	sessionLocalsKey = "txn_session"
	profileLocalsKey = "txn_profile"
)

// Routes are the mount points of the server.
type Routes struct {
	Home    string
	SignIn  string
	SignUp  string
	SignOut string
	Reset   string
	Admin   string
}

// APIPrefix is where the JSON admin API lives.
func (r *Routes) APIPrefix() string {
	return strings.TrimRight(r.Admin, "/") + "/api"
}

// Views are the template names rendered on denial.
type Views struct {
	Denied  string
	Pending string
}

// SessionFactory returns a fresh provider scoped to one request.
type SessionFactory func() *auth.SessionProvider

// Server binds the access guard and the admin service to HTTP.
type Server struct {
	Routes       *Routes
	Views        *Views
	Logger       auth.Logger
	ErrorHandler fiber.ErrorHandler

	guard    *auth.AccessGuard
	admin    *auth.AdminService
	verifier auth.TokenVerifier
	sessions SessionFactory
	messages auth.MessageCatalog
	locale   string

	cookieName     string
	cookieDuration time.Duration
	now            func() time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger auth.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.Logger = logger
		}
	}
}

// WithLocale selects the locale of user-facing copy.
func WithLocale(locale string) Option {
	return func(s *Server) {
		if locale != "" {
			s.locale = locale
		}
	}
}

// WithMessages overrides the message catalog.
func WithMessages(c auth.MessageCatalog) Option {
	return func(s *Server) {
		if c != nil {
			s.messages = c
		}
	}
}

// WithCookie overrides the access token cookie name and fallback lifetime.
func WithCookie(name string, duration time.Duration) Option {
	return func(s *Server) {
		if name != "" {
			s.cookieName = name
		}
		if duration > 0 {
			s.cookieDuration = duration
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewServer wires the HTTP surface. verifier resolves bearer tokens and
// cookies into sessions, sessions backs the sign-in flows.
func NewServer(guard *auth.AccessGuard, admin *auth.AdminService, verifier auth.TokenVerifier, sessions SessionFactory, opts ...Option) *Server {
	s := &Server{
		Routes: &Routes{
			Home:    "/",
			SignIn:  "/auth/signin",
			SignUp:  "/auth/signup",
			SignOut: "/auth/signout",
			Reset:   "/auth/reset",
			Admin:   "/admin",
		},
		Views: &Views{
			Denied:  "denied",
			Pending: "pending",
		},
		Logger:         auth.DefaultLogger(),
		guard:          guard,
		admin:          admin,
		verifier:       verifier,
		sessions:       sessions,
		messages:       auth.DefaultMessages,
		locale:         auth.LocaleEnglish,
		cookieName:     DefaultCookieName,
		cookieDuration: 24 * time.Hour,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.ErrorHandler = s.defaultErrHandler
	return s
}

// NewViewEngine loads the embedded templates.
func NewViewEngine() (*django.Engine, error) {
	sub, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return nil, err
	}
	return django.NewFileSystem(http.FS(sub), ".html"), nil
}

// NewApp builds a fiber app with the views, the error handler and every
// route of s registered.
func NewApp(s *Server) (*fiber.App, error) {
	engine, err := NewViewEngine()
	if err != nil {
		return nil, err
	}
	app := fiber.New(fiber.Config{
		Views:                 engine,
		ErrorHandler:          s.ErrorHandler,
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
	})
	s.Register(app)
	return app, nil
}

// Register mounts the auth routes and the guarded admin area on r.
func (s *Server) Register(r fiber.Router) {
	r.Use(s.Authenticate)

	r.Post(s.Routes.SignIn, s.SignIn)
	r.Post(s.Routes.SignUp, s.SignUp)
	r.Post(s.Routes.SignOut, s.SignOut)
	r.Post(s.Routes.Reset, s.ResetPassword)

	admin := r.Group(s.Routes.Admin, s.GuardMiddleware(auth.RequireAdminPanel))
	admin.Get("/", s.AdminHome)

	api := admin.Group("/api")
	api.Get("/users", s.ListUsers)
	api.Get("/stats", s.UserStats)
	api.Get("/analytics", s.SystemStats)
	// batch routes first, ":id" would match "batch"
	api.Post("/users/batch/approve", s.BatchApprove)
	api.Post("/users/batch/reject", s.BatchReject)
	api.Post("/users/:id/approve", s.ApproveUser)
	api.Post("/users/:id/reject", s.RejectUser)
	api.Post("/users/:id/role", s.ChangeRole)
	api.Post("/users/:id/status", s.ChangeStatus)
}

// Session returns the session resolved for the request, if any.
func Session(c *fiber.Ctx) *auth.Session {
	session, _ := c.Locals(sessionLocalsKey).(*auth.Session)
	return session
}

// Profile returns the profile of a request the guard granted.
func Profile(c *fiber.Ctx) *auth.UserProfile {
	profile, _ := c.Locals(profileLocalsKey).(*auth.UserProfile)
	return profile
}

func (s *Server) isAPI(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Path(), s.Routes.APIPrefix())
}

// wantsHTML is true for browser navigation outside the JSON API.
func (s *Server) wantsHTML(c *fiber.Ctx) bool {
	if s.isAPI(c) {
		return false
	}
	return c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMETextHTML
}

func redirectStatus(c *fiber.Ctx) int {
	if c.Method() == fiber.MethodGet {
		return fiber.StatusFound
	}
	return fiber.StatusSeeOther
}

func (s *Server) text(code, fallback string) string {
	return s.messages.Lookup(s.locale, code, fallback)
}
