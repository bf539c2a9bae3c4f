// Package supabase talks to a hosted Supabase project: GoTrue for
// authentication and PostgREST for the profile tables and remote procedures.
package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	goerrors "github.com/goliatone/go-errors"
	auth "github.com/txnjournal/go-txn-auth"
)

const (
	headerAPIKey     = "apikey"
	headerPrefer     = "Prefer"
	acceptSingleRow  = "application/vnd.pgrst.object+json"
	defaultTimeout   = 15 * time.Second
	restPrefix       = "/rest/v1"
	authPrefix       = "/auth/v1"
	profilesTable    = "user_profiles"
	adminLogsTable   = "admin_logs"
	statusLogTable   = "user_status_history"
	rpcApproveUser   = "approve_user"
	rpcDeactivate    = "deactivate_user"
	rpcCurrentUser   = "get_current_user_info"
	preferMinimal    = "return=minimal"
	preferRepr       = "return=representation"
	preferCountExact = "count=exact"
)

// Client is a Supabase REST client. It implements auth.AuthBackend and
// auth.AdminStore.
type Client struct {
	http    *resty.Client
	anonKey string
	retry   auth.RetryPolicy
	logger  auth.Logger
}

var (
	_ auth.AuthBackend = (*Client)(nil)
	_ auth.AdminStore  = (*Client)(nil)
)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http.SetTransport(hc.Transport)
			if hc.Timeout > 0 {
				c.http.SetTimeout(hc.Timeout)
			}
		}
	}
}

// WithRetryPolicy overrides the read retry policy.
func WithRetryPolicy(p auth.RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// WithLogger sets the logger.
func WithLogger(l auth.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTimeout sets the per request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// New builds a client for the project at baseURL.
func New(baseURL, anonKey string, opts ...Option) (*Client, error) {
	cfg := &auth.Config{SupabaseURL: strings.TrimRight(baseURL, "/"), SupabaseAnonKey: anonKey}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		http: resty.New().
			SetBaseURL(cfg.SupabaseURL).
			SetHeader(headerAPIKey, anonKey).
			SetHeader("Content-Type", "application/json").
			SetTimeout(defaultTimeout),
		anonKey: anonKey,
		retry:   auth.DefaultRetryPolicy(),
		logger:  auth.DefaultLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// NewFromConfig builds a client from a validated config.
func NewFromConfig(cfg *auth.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = &auth.Config{}
	}
	opts = append([]Option{WithRetryPolicy(cfg.RetryPolicy())}, opts...)
	return New(cfg.SupabaseURL, cfg.SupabaseAnonKey, opts...)
}

// request returns a request carrying the bearer of the session in ctx, or
// the anon key when there is none.
func (c *Client) request(ctx context.Context) *resty.Request {
	token := c.anonKey
	if s, ok := auth.SessionFromContext(ctx); ok && s.AccessToken != "" {
		token = s.AccessToken
	}
	return c.http.R().SetContext(ctx).SetAuthToken(token)
}

// errorBody covers both PostgREST and GoTrue error payloads.
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Message          string          `json:"message"`
	Msg              string          `json:"msg"`
	Details          string          `json:"details"`
	Hint             string          `json:"hint"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func (b errorBody) remote(status int) *auth.RemoteError {
	code := strings.Trim(string(b.Code), `"`)
	if code == "" || code == "null" || isNumeric(code) {
		code = b.ErrorCode
	}
	msg := firstNonEmpty(b.Message, b.Msg, b.ErrorDescription, b.Error)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &auth.RemoteError{
		Status:  status,
		Code:    code,
		Message: msg,
		Details: b.Details,
		Hint:    b.Hint,
	}
}

// decodeError turns a non 2xx response into a *auth.RemoteError.
func decodeError(resp *resty.Response) *auth.RemoteError {
	var body errorBody
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			body.Message = strings.TrimSpace(string(resp.Body()))
		}
	}
	return body.remote(resp.StatusCode())
}

// transportError wraps a failure that never produced a response.
func transportError(err error) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryOperation, "supabase request failed")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
