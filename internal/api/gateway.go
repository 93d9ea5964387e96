package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TokenSource supplies the bearer credential for outbound calls. An empty token
// means the call goes out unauthenticated.
type TokenSource interface {
	Token() string
}

type anonymousKey struct{}

// Anonymous marks ctx so calls made with it carry no credential. Login and
// registration use it so a rejected sign-in never invalidates the current session.
func Anonymous(ctx context.Context) context.Context {
	return context.WithValue(ctx, anonymousKey{}, true)
}

func isAnonymous(ctx context.Context) bool {
	v, _ := ctx.Value(anonymousKey{}).(bool)
	return v
}

// Gateway wraps every REST call made by the console. It attaches the current
// bearer credential, maps failures to *Error and never retries.
type Gateway struct {
	baseURL string
	client  *http.Client
	log     logrus.FieldLogger

	mu             sync.RWMutex
	tokens         TokenSource
	onUnauthorized func(token string)
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// WithTimeout bounds every call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.client.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(g *Gateway) { g.log = l }
}

// New creates a gateway for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BaseURL returns the API root.
func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// Timeout returns the bound applied to every call, zero when unbounded.
func (g *Gateway) Timeout() time.Duration {
	return g.client.Timeout
}

// Bind installs the credential source and the hook run when the API rejects a
// credential with 401. The hook receives the rejected token so the owner can
// ignore rejections of a credential it no longer holds.
func (g *Gateway) Bind(src TokenSource, onUnauthorized func(token string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens = src
	g.onUnauthorized = onUnauthorized
}

func (g *Gateway) token() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.tokens == nil {
		return ""
	}
	return g.tokens.Token()
}

func (g *Gateway) unauthorized(token string) {
	g.mu.RLock()
	hook := g.onUnauthorized
	g.mu.RUnlock()
	if hook != nil {
		hook(token)
	}
}

// Request performs method on path and returns the raw response body. A 204 or
// empty body yields a nil result.
func (g *Gateway) Request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Message: "invalid request body", Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	var token string
	if !isAnonymous(ctx) {
		token = g.token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	fields := logrus.Fields{"method": method, "path": path, "request_id": requestID}
	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.log.WithFields(fields).WithError(err).Warn("API request failed")
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		g.log.WithFields(fields).WithError(err).Warn("Failed to read API response")
		return nil, &Error{Kind: KindNetwork, Status: resp.StatusCode, Err: err}
	}

	fields["status"] = resp.StatusCode
	fields["duration"] = time.Since(start)
	if resp.StatusCode >= 400 {
		apiErr := newStatusError(resp.StatusCode, data)
		g.log.WithFields(fields).WithField("kind", apiErr.Kind).Info("API request rejected")
		if apiErr.Kind == KindUnauthorized && token != "" {
			g.unauthorized(token)
		}
		return nil, apiErr
	}
	g.log.WithFields(fields).Debug("API request completed")

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return json.RawMessage(data), nil
}

// Do performs the request and decodes the member named key of the response
// envelope into out. When the body has no such member the whole body is decoded,
// which covers endpoints that answer with the bare entity. An empty key always
// decodes the whole body; a nil out discards it.
func (g *Gateway) Do(ctx context.Context, method, path string, body any, key string, out any) error {
	raw, err := g.Request(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || raw == nil {
		return nil
	}
	return Decode(raw, key, out)
}

// Decode unwraps key from an envelope and decodes it into out.
func Decode(raw json.RawMessage, key string, out any) error {
	payload := raw
	if key != "" {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(raw, &envelope); err == nil {
			if member, ok := envelope[key]; ok {
				payload = member
			}
		}
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &Error{Kind: KindServer, Message: "unexpected response from server", Payload: raw,
			Err: fmt.Errorf("decode %q: %w", key, err)}
	}
	return nil
}

// Has reports whether the envelope in raw carries a non-null member named key.
func Has(raw json.RawMessage, key string) bool {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return false
	}
	member, ok := envelope[key]
	return ok && string(bytes.TrimSpace(member)) != "null"
}
