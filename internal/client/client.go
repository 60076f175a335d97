// Package client is a Go facade over the chat HTTP API. Every call maps a
// failed response back onto the apperr sentinels, so callers can match with
// errors.Is exactly as they would against the service itself.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/pkg/apperr"
)

// DefaultTimeout bounds every non-streaming call.
const DefaultTimeout = 5 * time.Second

const idempotencyHeader = "Idempotency-Key"

// Client talks to one API base URL.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout overrides DefaultTimeout. Zero disables the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login resolves name to a user, registering it on first use, and returns a
// session bound to the resulting credential. created reports a registration.
func (c *Client) Login(ctx context.Context, name string) (sess *Session, created bool, err error) {
	var out struct {
		ID string `json:"id"`
	}
	status, err := c.doJSON(ctx, nil, http.MethodPost, "/session", map[string]string{"name": name}, &out)
	if err != nil {
		return nil, false, err
	}
	return c.As(IdentifierCredential(out.ID)), status == http.StatusCreated, nil
}

// As returns a session that acts with an existing credential.
func (c *Client) As(cred Credential) *Session {
	return &Session{c: c, cred: cred}
}

// request is one outgoing call. Exactly one of body and form may be set.
type request struct {
	method  string
	path    string
	body    any
	form    *formFile
	headers map[string]string
}

// formFile is a single-part multipart upload.
type formFile struct {
	field    string
	filename string
	data     []byte
	isFile   bool
}

func (c *Client) doJSON(ctx context.Context, cred Credential, method, path string, body, out any) (int, error) {
	return c.do(ctx, cred, request{method: method, path: path, body: body}, out)
}

func (c *Client) do(ctx context.Context, cred Credential, r request, out any) (int, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, contentType, err := encodeBody(r)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if cred != nil {
		cred.Authorize(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, transportError(ctx, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, transportError(ctx, err)
	}
	c.logger.Debug("api_call",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, apperr.FromResponse(resp.StatusCode, payload)
	}
	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s response: %w", r.method, r.path, err)
		}
	}
	return resp.StatusCode, nil
}

func encodeBody(r request) (io.Reader, string, error) {
	switch {
	case r.form != nil:
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		if r.form.isFile {
			part, err := mw.CreateFormFile(r.form.field, r.form.filename)
			if err != nil {
				return nil, "", fmt.Errorf("build multipart body: %w", err)
			}
			if _, err := part.Write(r.form.data); err != nil {
				return nil, "", fmt.Errorf("build multipart body: %w", err)
			}
		} else if err := mw.WriteField(r.form.field, string(r.form.data)); err != nil {
			return nil, "", fmt.Errorf("build multipart body: %w", err)
		}
		if err := mw.Close(); err != nil {
			return nil, "", fmt.Errorf("build multipart body: %w", err)
		}
		return &buf, mw.FormDataContentType(), nil
	case r.body != nil:
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, "", fmt.Errorf("encode request: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	default:
		return nil, "", nil
	}
}

// transportError maps deadline expiry onto apperr.ErrTimeout.
func transportError(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", apperr.ErrTimeout, err)
	}
	return fmt.Errorf("api call: %w", err)
}

func statusError(resp *http.Response) error {
	var payload []byte
	if resp.Body != nil {
		payload, _ = io.ReadAll(resp.Body)
		resp.Body.Close()
	}
	return apperr.FromResponse(resp.StatusCode, payload)
}

func escape(segments ...string) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}
