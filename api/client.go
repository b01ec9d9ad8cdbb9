package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-admin-console/internal/utils"
	"github.com/jrsteele09/go-admin-console/navigation"
	"github.com/jrsteele09/go-admin-console/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded"

	headerRequestID = "X-Request-ID"

	maxResponseBytes = 10 << 20
)

// RequestOptions describe a single call. Body may be an io.Reader or []byte
// (sent as is), url.Values (form encoded) or any JSON serialisable value.
type RequestOptions struct {
	Method  string
	Body    any
	Headers http.Header
}

// Client calls the remote API on behalf of the signed in visitor.
type Client struct {
	baseURL    string
	provider   session.Provider
	nav        navigation.Port
	loginRoute string
	httpClient *http.Client
	logger     zerolog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLoginRoute(route string) ClientOption {
	return func(c *Client) {
		c.loginRoute = route
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(baseURL string, provider session.Provider, nav navigation.Port, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[NewClient] baseURL is required")
	}
	if provider == nil {
		return nil, errors.New("[NewClient] provider is required")
	}
	if nav == nil {
		return nil, errors.New("[NewClient] navigation port is required")
	}

	c := &Client{
		baseURL:    baseURL,
		provider:   provider,
		nav:        nav,
		loginRoute: navigation.RouteLogin,
		httpClient: http.DefaultClient,
		logger:     log.Logger,
	}

	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

// Call performs the request and decodes a successful JSON response into out.
// out may be nil when the caller does not need the body.
func (c *Client) Call(ctx context.Context, path string, opts RequestOptions, out any) error {
	// The token is read per call, the provider may rotate it between calls
	sess := c.provider.CachedSession(ctx)
	if sess == nil || sess.AccessToken == "" {
		c.logger.Info().Str("path", path).Msg("no session, redirecting to login")
		c.nav.GoTo(c.loginRoute)
		return ErrNoSession
	}

	req, err := c.newRequest(ctx, path, opts, sess.AccessToken)
	if err != nil {
		return err
	}
	requestID := req.Header.Get(headerRequestID)
	logger := c.logger.With().Str("request_id", requestID).Str("method", req.Method).Str("path", path).Logger()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn().Err(err).Msg("request did not reach the server")
		return ErrNetwork
	}
	defer resp.Body.Close()

	logger = logger.With().Int("status", resp.StatusCode).Logger()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		logger.Info().Msg("session rejected by the server, signing out")
		if err := c.provider.SignOut(ctx); err != nil {
			logger.Err(err).Msg("sign out failed")
		}
		c.nav.GoTo(c.loginRoute)
		return ErrSessionExpired

	case resp.StatusCode == http.StatusNoContent:
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		logger.Warn().Err(err).Msg("failed reading response body")
		return ErrNetwork
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			Status:     resp.StatusCode,
			Detail:     errorDetail(resp.StatusCode, body),
			RawPayload: body,
		}
		logger.Debug().Str("detail", apiErr.Detail).Msg("api error")
		return apiErr
	}

	// An empty success body reads like a 204 and leaves out untouched
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if out == nil {
		if !json.Valid(body) {
			return ErrMalformedResponse
		}
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		logger.Warn().Err(err).Msg("unparsable success response")
		return ErrMalformedResponse
	}
	return nil
}

// Call is the typed form of Client.Call. A 204 or an empty success body yields
// the zero value of T.
func Call[T any](ctx context.Context, c *Client, path string, opts RequestOptions) (T, error) {
	var out T
	if err := c.Call(ctx, path, opts, &out); err != nil {
		return *new(T), err
	}
	return out, nil
}

func Get[T any](ctx context.Context, c *Client, path string) (T, error) {
	return Call[T](ctx, c, path, RequestOptions{Method: http.MethodGet})
}

// newRequest builds a fresh request for every call so a rotated token is never
// replayed from a previous one.
func (c *Client) newRequest(ctx context.Context, path string, opts RequestOptions, token string) (*http.Request, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	headers := opts.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}

	body, err := encodeBody(opts.Body, headers)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Call] encode body")
	}

	req, err := http.NewRequestWithContext(ctx, method, utils.JoinURL(c.baseURL, path), body)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Call] new request")
	}

	req.Header = headers
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", contentTypeJSON)
	}
	if req.Header.Get(headerRequestID) == "" {
		req.Header.Set(headerRequestID, uuid.New().String())
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func encodeBody(body any, headers http.Header) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case io.Reader:
		return b, nil
	case []byte:
		return bytes.NewReader(b), nil
	case url.Values:
		setDefaultHeader(headers, "Content-Type", contentTypeForm)
		return strings.NewReader(b.Encode()), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		setDefaultHeader(headers, "Content-Type", contentTypeJSON)
		return bytes.NewReader(data), nil
	}
}

func setDefaultHeader(headers http.Header, key, value string) {
	if headers.Get(key) == "" {
		headers.Set(key, value)
	}
}

// errorDetail extracts {"detail": "..."} from body, falling back to the
// status text.
func errorDetail(status int, body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(payload.Detail, &detail); err == nil && strings.TrimSpace(detail) != "" {
			return detail
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "request failed"
}
