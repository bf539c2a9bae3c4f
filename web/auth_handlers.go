package web

import (
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	auth "github.com/txnjournal/go-txn-auth"
)

// SignInPayload is the sign-in form.
type SignInPayload struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r SignInPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// SignUpPayload is the registration form.
type SignUpPayload struct {
	Email             string `form:"email" json:"email"`
	Password          string `form:"password" json:"password"`
	ConfirmPassword   string `form:"confirm_password" json:"confirm_password"`
	FullName          string `form:"full_name" json:"full_name"`
	TradingExperience string `form:"trading_experience" json:"trading_experience"`
	InitialCapital    string `form:"initial_capital" json:"initial_capital"`
	Currency          string `form:"currency" json:"currency"`
	Timezone          string `form:"timezone" json:"timezone"`
}

// Validate will run validation rules
func (r SignUpPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.ConfirmPassword, validation.In(r.Password).Error("passwords do not match")),
		validation.Field(&r.InitialCapital, is.Float),
	)
}

// Input maps the form onto the provider's registration input.
func (r SignUpPayload) Input() (auth.SignUpInput, error) {
	input := auth.SignUpInput{
		Email:             strings.TrimSpace(r.Email),
		Password:          r.Password,
		FullName:          strings.TrimSpace(r.FullName),
		TradingExperience: auth.TradingExperience(r.TradingExperience),
		Currency:          r.Currency,
		Timezone:          r.Timezone,
	}
	if r.InitialCapital != "" {
		capital, err := decimal.NewFromString(r.InitialCapital)
		if err != nil {
			return input, err
		}
		input.InitialCapital = capital
	}
	return input, nil
}

// ResetPayload is the password reset request form.
type ResetPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r ResetPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// SignInResponse is returned on a successful sign in.
type SignInResponse struct {
	User      auth.Identity `json:"user"`
	ExpiresAt string        `json:"expires_at,omitempty"`
	Redirect  string        `json:"redirect"`
}

// SignIn establishes a session and stores the access token in a cookie.
// Browsers posting the form are sent back to the page they asked for.
func (s *Server) SignIn(c *fiber.Ctx) error {
	payload := new(SignInPayload)
	if err := c.BodyParser(payload); err != nil {
		return invalidPayload(err)
	}
	if err := payload.Validate(); err != nil {
		return invalidPayload(err)
	}

	provider := s.sessions()
	defer provider.Dispose()

	session, err := provider.SignIn(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return err
	}

	s.setCookieToken(c, session.AccessToken, session.ExpiresAt)
	redirect := s.resumePath(c)

	if isFormPost(c) && s.wantsHTML(c) {
		return c.Redirect(redirect, fiber.StatusSeeOther)
	}

	res := SignInResponse{User: session.Identity, Redirect: redirect}
	if !session.ExpiresAt.IsZero() {
		res.ExpiresAt = session.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return c.JSON(res)
}

// SignUp registers an identity. The profile is created on first sign in.
func (s *Server) SignUp(c *fiber.Ctx) error {
	payload := new(SignUpPayload)
	if err := c.BodyParser(payload); err != nil {
		return invalidPayload(err)
	}
	if err := payload.Validate(); err != nil {
		return invalidPayload(err)
	}
	input, err := payload.Input()
	if err != nil {
		return invalidPayload(err)
	}

	provider := s.sessions()
	defer provider.Dispose()

	identity, err := provider.SignUp(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": identity})
}

// SignOut ends the session of the request, if any, and clears the cookie.
func (s *Server) SignOut(c *fiber.Ctx) error {
	provider := s.sessions()
	defer provider.Dispose()

	if session := Session(c); session != nil {
		if err := provider.Init(c.UserContext(), session.AccessToken); err != nil {
			s.Logger.Warn("session init failed on sign out", "error", err)
		}
		provider.SignOut(c.UserContext())
	}
	s.cookieDel(c)

	if isFormPost(c) && s.wantsHTML(c) {
		return c.Redirect(s.Routes.Home, fiber.StatusSeeOther)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ResetPassword asks for a reset link. The answer is the same whether or
// not the address is registered.
func (s *Server) ResetPassword(c *fiber.Ctx) error {
	payload := new(ResetPayload)
	if err := c.BodyParser(payload); err != nil {
		return invalidPayload(err)
	}
	if err := payload.Validate(); err != nil {
		return invalidPayload(err)
	}

	provider := s.sessions()
	defer provider.Dispose()

	if err := provider.ResetPassword(c.UserContext(), payload.Email); err != nil {
		if auth.AuthErrorKindOf(err) == auth.AuthRateLimited {
			return err
		}
		s.Logger.Error("password reset request failed", "error", err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": s.text(auth.MessageResetSent, "If the address is registered, a reset link is on its way."),
	})
}

func (s *Server) resumePath(c *fiber.Ctx) string {
	query := url.Values{}
	if target := c.Query(auth.RedirectParam); target != "" {
		query.Set(auth.RedirectParam, target)
	}
	return auth.ResumePath(query, s.Routes.Home)
}

func isFormPost(c *fiber.Ctx) bool {
	ct := string(c.Request().Header.ContentType())
	return strings.HasPrefix(ct, fiber.MIMEApplicationForm) || strings.HasPrefix(ct, fiber.MIMEMultipartForm)
}
