// Package gateway is the single conduit for credentialed calls to the
// RavenT backend.
//
// Every request goes through Gateway.Request, which attaches the bearer
// token from the session store and reacts to 401 responses by clearing the
// session and returning ErrSessionInvalid. All other failures are passed
// through unmodified: *StatusError for non-2xx responses and *NetworkError
// when no response was received. Calls are attempted exactly once.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/ravent/pkg/session"
)

// SessionStore is the part of session.Store the gateway needs.
type SessionStore interface {
	Load(ctx context.Context) (session.Session, error)
	Clear(ctx context.Context) error
}

var _ SessionStore = (*session.Store)(nil)

// Requester is implemented by Gateway; consumers depend on it so tests can
// substitute a fake transport.
type Requester interface {
	Request(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error)
}

type Gateway struct {
	baseURL string
	store   SessionStore
	client  *http.Client
	logger  zerolog.Logger
}

var _ Requester = &Gateway{}

type Option func(*Gateway)

// WithHTTPClient replaces the default client. The default has no timeout;
// the request context is the only bound on a call.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		g.client = c
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

func New(baseURL string, store SessionStore, options ...Option) (*Gateway, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway: empty base url")
	}
	if store == nil {
		return nil, errors.New("gateway: nil session store")
	}
	g := &Gateway{
		baseURL: baseURL,
		store:   store,
		client:  &http.Client{},
		logger:  log.With().Str("component", "gateway").Logger(),
	}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

func (g *Gateway) BaseURL() string { return g.baseURL }

type requestOptions struct {
	headers http.Header
	noAuth  bool
	bearer  string
}

type RequestOption func(*requestOptions)

func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		o.headers.Set(key, value)
	}
}

// WithContentType overrides the JSON default, e.g. for multipart uploads.
func WithContentType(contentType string) RequestOption {
	return WithHeader("Content-Type", contentType)
}

// WithoutAuth sends the request without an Authorization header even when
// a session exists. Used for login and registration.
func WithoutAuth() RequestOption {
	return func(o *requestOptions) {
		o.noAuth = true
	}
}

// WithBearer uses token instead of the stored access token.
func WithBearer(token string) RequestOption {
	return func(o *requestOptions) {
		o.bearer = token
	}
}

// Response is a successful (2xx) response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(r.Body, v), "decode response")
}

// Request performs one call to baseURL+path. body may be nil, an io.Reader,
// a []byte, or any value that is sent as JSON.
func (g *Gateway) Request(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	o := &requestOptions{headers: http.Header{}}
	for _, opt := range opts {
		opt(o)
	}

	reader, defaultContentType, err := encodeBody(body)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s: encode body", method, path)
	}

	url := g.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s: build request", method, path)
	}
	req.Header.Set("Accept", "application/json")
	if defaultContentType != "" {
		req.Header.Set("Content-Type", defaultContentType)
	}
	for k, vs := range o.headers {
		req.Header[k] = vs
	}

	if !o.noAuth {
		token := o.bearer
		if token == "" {
			sess, err := g.store.Load(ctx)
			if err != nil {
				g.logger.Warn().Err(err).Msg("could not load session, sending unauthenticated request")
			} else {
				token = strings.TrimSpace(sess.AccessToken)
			}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	logger := g.logger.With().Str("method", method).Str("path", path).Logger()
	logger.Debug().Bool("auth", req.Header.Get("Authorization") != "").Msg("sending request")

	resp, err := g.client.Do(req)
	if err != nil {
		logger.Debug().Err(err).Msg("request failed")
		return nil, &NetworkError{Method: method, URL: url, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := readBody(resp.Body)
	if err != nil {
		return nil, &NetworkError{Method: method, URL: url, Err: errors.Wrap(err, "read response body")}
	}

	logger.Debug().Int("status", resp.StatusCode).Int("bytes", len(respBody)).Msg("received response")

	if resp.StatusCode == http.StatusUnauthorized {
		if err := g.store.Clear(ctx); err != nil {
			logger.Error().Err(err).Msg("could not clear session after 401")
		}
		logger.Info().Msg("session invalidated by backend")
		return nil, &SessionInvalidError{Status: &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       respBody,
		}}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       respBody,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case io.Reader:
		return b, "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(buf), "application/json", nil
	}
}
