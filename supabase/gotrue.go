package supabase

import (
	"context"
	"time"

	auth "github.com/txnjournal/go-txn-auth"
)

type gotrueUser struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

func (u gotrueUser) identity() *auth.Identity {
	return &auth.Identity{
		ID:               u.ID,
		Email:            u.Email,
		EmailConfirmedAt: u.EmailConfirmedAt,
		Metadata:         u.UserMetadata,
	}
}

type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int64      `json:"expires_in"`
	ExpiresAt    int64      `json:"expires_at"`
	User         gotrueUser `json:"user"`
}

func (t tokenResponse) session(now time.Time) *auth.Session {
	s := &auth.Session{
		Identity:     *t.User.identity(),
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
	}
	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0).UTC()
	case t.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second).UTC()
	}
	return s
}

// signUpResponse is either a bare user or a session carrying one,
// depending on whether email confirmation is enabled.
type signUpResponse struct {
	gotrueUser
	User *gotrueUser `json:"user"`
}

// SignUp implements auth.AuthBackend.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*auth.Identity, error) {
	var out signUpResponse
	resp, err := c.request(ctx).
		SetBody(map[string]any{
			"email":    email,
			"password": password,
			"data":     metadata,
		}).
		SetResult(&out).
		Post(authPrefix + "/signup")
	if err != nil {
		return nil, auth.NewAuthError(auth.AuthUnknown, transportError(err))
	}
	if resp.IsError() {
		remote := decodeError(resp)
		return nil, auth.AuthErrorFromProvider(remote.Status, remote.Message)
	}

	if out.User != nil && out.User.ID != "" {
		return out.User.identity(), nil
	}
	return out.gotrueUser.identity(), nil
}

// SignInWithPassword implements auth.AuthBackend.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	var out tokenResponse
	resp, err := c.request(ctx).
		SetQueryParam("grant_type", "password").
		SetBody(map[string]string{
			"email":    email,
			"password": password,
		}).
		SetResult(&out).
		Post(authPrefix + "/token")
	if err != nil {
		return nil, auth.NewAuthError(auth.AuthUnknown, transportError(err))
	}
	if resp.IsError() {
		remote := decodeError(resp)
		return nil, auth.AuthErrorFromProvider(remote.Status, remote.Message)
	}
	return out.session(time.Now()), nil
}

// SignOut implements auth.AuthBackend.
func (c *Client) SignOut(ctx context.Context, session *auth.Session) error {
	if session == nil || session.AccessToken == "" {
		return nil
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(session.AccessToken).
		Post(authPrefix + "/logout")
	if err != nil {
		return transportError(err)
	}
	if resp.IsError() {
		return decodeError(resp)
	}
	return nil
}

// GetUser implements auth.AuthBackend.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*auth.Identity, error) {
	if accessToken == "" {
		return nil, auth.ErrNotAuthenticated
	}
	return auth.Retry(ctx, c.retry, func() (*auth.Identity, error) {
		var out gotrueUser
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(accessToken).
			SetResult(&out).
			Get(authPrefix + "/user")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, decodeError(resp)
		}
		return out.identity(), nil
	})
}

// ResetPasswordForEmail implements auth.AuthBackend.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email string) error {
	resp, err := c.request(ctx).
		SetBody(map[string]string{"email": email}).
		Post(authPrefix + "/recover")
	if err != nil {
		return auth.NewAuthError(auth.AuthUnknown, transportError(err))
	}
	if resp.IsError() {
		remote := decodeError(resp)
		return auth.AuthErrorFromProvider(remote.Status, remote.Message)
	}
	return nil
}
