package web

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	auth "github.com/txnjournal/go-txn-auth"
)

// Authenticate resolves the bearer token or the session cookie into a
// session. Requests without a valid token continue anonymously, the guard
// decides what they may see.
func (s *Server) Authenticate(c *fiber.Ctx) error {
	token, fromCookie := s.tokenFrom(c)
	if token == "" || s.verifier == nil {
		return c.Next()
	}

	identity, err := s.verifier.Verify(c.UserContext(), token)
	if err != nil || identity == nil || identity.IsZero() {
		s.Logger.Debug("ignoring invalid access token", "path", c.Path(), "error", err)
		if fromCookie {
			s.cookieDel(c)
		}
		return c.Next()
	}

	session := &auth.Session{Identity: *identity, AccessToken: token}
	c.Locals(sessionLocalsKey, session)
	c.SetUserContext(auth.WithSession(c.UserContext(), session))
	return c.Next()
}

// GuardMiddleware admits the request only when the guard grants req.
// Anonymous browsers are sent to sign in with the requested path attached,
// API callers get 401. Every other denial is a 403 carrying the reason.
func (s *Server) GuardMiddleware(req auth.Requirement) fiber.Handler {
	return func(c *fiber.Ctx) error {
		state := auth.SessionState{Session: Session(c)}
		d := s.guard.Evaluate(c.UserContext(), state, req, c.OriginalURL())

		switch d.Kind {
		case auth.DecisionGranted:
			c.Locals(profileLocalsKey, d.Profile)
			c.SetUserContext(auth.WithProfile(c.UserContext(), d.Profile))
			return c.Next()
		case auth.DecisionDeniedUnauthenticated:
			s.Logger.Info("unauthenticated request, redirecting to sign in", "path", c.OriginalURL())
			if s.wantsHTML(c) {
				return c.Redirect(d.RedirectTo, redirectStatus(c))
			}
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error: ErrorBody{
					Code:     auth.TextCodeNotAuthenticated,
					Message:  d.Reason,
					Redirect: d.RedirectTo,
				},
			})
		}
		return s.deny(c, d)
	}
}

func (s *Server) deny(c *fiber.Ctx, d auth.Decision) error {
	code := d.Kind.String()
	if d.Kind == auth.DecisionDeniedSystemError && d.Cause != "" {
		code = d.Cause
	}

	s.Logger.Info("access denied",
		"path", c.OriginalURL(),
		"decision", d.Kind.String(),
		"code", code,
		"role", string(d.Role),
		"status", string(d.Status),
	)

	c.Status(fiber.StatusForbidden)
	if !s.wantsHTML(c) {
		return c.JSON(ErrorResponse{
			Error: ErrorBody{
				Code:     code,
				Message:  d.Reason,
				Decision: d.Kind.String(),
			},
		})
	}

	if d.Kind == auth.DecisionDeniedUnapproved {
		return c.Render(s.Views.Pending, fiber.Map{
			"locale":        s.locale,
			"title":         s.text(auth.MessagePendingTitle, "Awaiting approval"),
			"reason":        d.Reason,
			"status_label":  d.Status.Info(s.locale).DisplayName,
			"signout":       s.Routes.SignOut,
			"signout_label": s.text(auth.MessageSignOut, "Sign out"),
		})
	}

	view := fiber.Map{
		"locale": s.locale,
		"title":  s.text(auth.MessageDeniedTitle, "Access denied"),
		"reason": d.Reason,
		"home":   s.Routes.Home,
		"back":   s.text(auth.MessageBackHome, "Back to home"),
	}
	if d.Role != "" {
		view["role"] = d.Role.DisplayName(s.locale)
	}
	if d.Kind == auth.DecisionDeniedSystemError {
		view["cause"] = code
	}
	return c.Render(s.Views.Denied, view)
}

// tokenFrom prefers the Authorization header over the cookie.
func (s *Server) tokenFrom(c *fiber.Ctx) (string, bool) {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:]), false
	}
	if cookie := c.Cookies(s.cookieName); cookie != "" {
		return cookie, true
	}
	return "", false
}

func (s *Server) setCookieToken(c *fiber.Ctx, val string, expires time.Time) {
	if expires.IsZero() {
		expires = s.now().Add(s.cookieDuration)
	}
	c.Cookie(&fiber.Cookie{
		Name:     s.cookieName,
		Value:    val,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (s *Server) cookieDel(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  s.now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
