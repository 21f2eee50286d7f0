// Package apiclient performs round trips against the marathon backend and
// normalizes its heterogeneous responses.
//
// The backend sometimes answers an auth-gated route with an HTML login page
// and status 200 instead of a JSON 401, so a 2xx response that is not JSON is
// handled as a failure mode of its own rather than as a decoding bug:
//
//   - non-2xx: the server message is extracted and an apperror.ErrHTTPStatus
//     error is returned.
//   - 2xx, not JSON (or empty): reads of collection endpoints resolve to [],
//     everything else to {}.
//   - network failure: reads of collection endpoints resolve to [], stats
//     endpoints to zero-valued stats, everything else is returned as an error.
//
// Every soft degradation is logged, counted and reported to the optional
// degradation hook together with its classified reason.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/marathon-client/internal/apperror"
	"github.com/sakif/marathon-client/internal/metrics"
	"github.com/sakif/marathon-client/internal/model"
)

// Standard headers sent with every request.
const (
	HeaderTunnelBypass = "ngrok-skip-browser-warning"
	HeaderRequestID    = "X-Request-ID"
)

// Degradation reasons.
const (
	ReasonNetwork           = "network"
	ReasonAuthPage          = "auth_page"
	ReasonUnexpectedContent = "unexpected_content"
	ReasonEmptyBody         = "empty_body"
)

var (
	emptyCollection = json.RawMessage(`[]`)
	emptyObject     = json.RawMessage(`{}`)
	zeroStats       = mustMarshal(model.DashboardStats{})
)

// Degradation describes a failure that was resolved to an empty value.
type Degradation struct {
	Method   string
	Endpoint string
	Reason   string
	Status   int
	Err      error
}

// CallOptions overrides the defaults of a single call.
type CallOptions struct {
	Method  string // defaults to GET
	Body    any    // marshalled as JSON unless it is already []byte or json.RawMessage
	Headers map[string]string
}

// Client is safe for concurrent use. All calls share one cookie jar, which
// carries the backend session cookie.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	logger    *slog.Logger
	metrics   *metrics.Metrics
	onDegrade func(Degradation)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient uses a copy of hc as the underlying http.Client; hc itself
// is left untouched. The copy gets a fresh cookie jar when hc has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		copied := *hc
		c.http = &copied
	}
}

// WithTimeout bounds every round trip. Zero leaves requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithMetrics reports request outcomes to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithDegradationHook registers fn to be called for every soft degradation.
func WithDegradationHook(fn func(Degradation)) Option {
	return func(c *Client) { c.onDegrade = fn }
}

// New creates a Client for baseURL, which must be an absolute http(s) URL.
func New(baseURL string, logger *slog.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("apiclient: parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("apiclient: base URL %q must be http or https", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("apiclient: creating cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	next := c.http.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	c.http.Transport = &loggingTransport{next: next, logger: logger}

	return c, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Cookie returns the named cookie the jar holds for the base URL, or nil.
func (c *Client) Cookie(name string) *http.Cookie {
	for _, ck := range c.http.Jar.Cookies(c.baseURL) {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

// SetCookie stores c in the jar for the base URL, e.g. to resume a session
// cookie saved by an earlier process.
func (c *Client) SetCookie(ck *http.Cookie) {
	c.http.Jar.SetCookies(c.baseURL, []*http.Cookie{ck})
}

// Do performs Call and decodes the normalized body into out (when non-nil).
func (c *Client) Do(ctx context.Context, endpoint string, opts CallOptions, out any) error {
	body, err := c.Call(ctx, endpoint, opts)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		e := apperror.InvalidResponse(fmt.Sprintf("unexpected response from %s", endpoint))
		e.Cause = err
		return e
	}
	return nil
}

// Call performs one round trip and returns the normalized JSON body.
func (c *Client) Call(ctx context.Context, endpoint string, opts CallOptions) (json.RawMessage, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	kind := kindOf(endpoint)
	start := time.Now()

	req, err := c.newRequest(ctx, method, endpoint, opts)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// A cancelled caller is not a backend failure; nothing to degrade to.
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.metrics.ObserveRequest(method, metrics.OutcomeNetworkErr, time.Since(start))
			return nil, fmt.Errorf("apiclient: %s %s: %w", method, endpoint, ctxErr)
		}
		if fallback, ok := networkFallback(method, kind); ok {
			c.metrics.ObserveRequest(method, metrics.OutcomeSoftFailure, time.Since(start))
			c.degrade(Degradation{Method: method, Endpoint: endpoint, Reason: ReasonNetwork, Err: err})
			return fallback, nil
		}
		c.metrics.ObserveRequest(method, metrics.OutcomeNetworkErr, time.Since(start))
		c.logger.Error("API call failed",
			slog.String("method", method),
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("apiclient: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.ObserveRequest(method, metrics.OutcomeNetworkErr, time.Since(start))
		return nil, fmt.Errorf("apiclient: reading %s %s: %w", method, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.ObserveRequest(method, metrics.OutcomeHTTPError, time.Since(start))
		msg := errorMessage(body)
		c.logger.Error("API error",
			slog.String("method", method),
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
			slog.String("message", msg),
		)
		return nil, apperror.HTTPStatus(resp.StatusCode, msg)
	}

	if reason := classifyContent(resp.Header.Get("Content-Type"), body); reason != "" {
		c.metrics.ObserveRequest(method, metrics.OutcomeSoftFailure, time.Since(start))
		c.degrade(Degradation{Method: method, Endpoint: endpoint, Reason: reason, Status: resp.StatusCode})
		return contentFallback(method, kind), nil
	}

	c.metrics.ObserveRequest(method, metrics.OutcomeOK, time.Since(start))
	return json.RawMessage(body), nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, opts CallOptions) (*http.Request, error) {
	var body io.Reader
	switch b := opts.Body.(type) {
	case nil:
	case json.RawMessage:
		body = bytes.NewReader(b)
	case []byte:
		body = bytes.NewReader(b)
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("apiclient: encoding request body for %s: %w", endpoint, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: building request for %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderTunnelBypass, "true")
	req.Header.Set(HeaderRequestID, xid.New().String())
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (c *Client) degrade(d Degradation) {
	c.metrics.ObserveDegradation(d.Reason)

	attrs := []any{
		slog.String("method", d.Method),
		slog.String("endpoint", d.Endpoint),
		slog.String("reason", d.Reason),
	}
	if d.Err != nil {
		attrs = append(attrs, slog.String("error", d.Err.Error()))
	}
	switch d.Reason {
	case ReasonEmptyBody:
		c.logger.Debug("empty response body", attrs...)
	case ReasonAuthPage:
		c.logger.Warn("received HTML page instead of JSON, authentication likely required", attrs...)
	default:
		c.logger.Warn("API call degraded to empty result", attrs...)
	}

	if c.onDegrade != nil {
		c.onDegrade(d)
	}
}

// errorMessage extracts the "message" field of a JSON error body, falling
// back to the compact JSON and then to the raw text.
func errorMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	var payload map[string]any
	if err := json.Unmarshal(trimmed, &payload); err == nil {
		if msg, ok := payload["message"].(string); ok && msg != "" {
			return msg
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err == nil {
			return buf.String()
		}
	}
	return string(trimmed)
}

// classifyContent returns the degradation reason for a 2xx body, or "" when
// the body is usable JSON.
func classifyContent(contentType string, body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ReasonEmptyBody
	}
	if isJSON(contentType) {
		return ""
	}
	if looksLikeHTML(trimmed) {
		return ReasonAuthPage
	}
	return ReasonUnexpectedContent
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(len(body), 512)]))
	return strings.Contains(head, "<!doctype") || strings.Contains(head, "<html")
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
