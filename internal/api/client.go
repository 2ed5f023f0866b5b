package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jwulff/debate/internal/logging"
	"github.com/jwulff/debate/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// maxErrorBody caps how much of a failed response body is kept in errors.
const maxErrorBody = 512

// Client talks to the debate backend over HTTP.
type Client struct {
	baseURL  string
	http     *http.Client
	timeout  time.Duration
	tracer   trace.Tracer
	duration metric.Float64Histogram
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every request. Zero disables the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithTelemetry records a span and a duration sample for every call.
func WithTelemetry(p telemetry.Providers) Option {
	return func(c *Client) {
		c.tracer = p.Tracer
		if h, err := p.Meter.Float64Histogram(
			"debate.client.request.duration",
			metric.WithDescription("Backend request duration in milliseconds"),
			metric.WithUnit("ms"),
		); err == nil {
			c.duration = h
		}
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	noop := telemetry.Noop()
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newDefaultHTTPClient(),
		timeout: 60 * time.Second,
		tracer:  noop.Tracer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newDefaultHTTPClient sets transport-level timeouts; the overall request
// lifetime is bounded by the per-request context.
func newDefaultHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, "health", http.MethodGet, "/health", nil, "", &resp)
	return resp, err
}

// Debate sends a claim and returns the AI's counter-argument.
func (c *Client) Debate(ctx context.Context, req DebateRequest) (DebateResponse, error) {
	body, err := jsonBody(req)
	if err != nil {
		return DebateResponse{}, err
	}
	var resp DebateResponse
	err = c.do(ctx, "debate", http.MethodPost, "/api/debate/test", body, "application/json", &resp)
	return resp, err
}

// StartVoiceSession asks the backend to issue a voice session.
func (c *Client) StartVoiceSession(ctx context.Context, req VoiceSessionRequest) (VoiceSession, error) {
	body, err := jsonBody(req)
	if err != nil {
		return VoiceSession{}, err
	}
	var resp VoiceSession
	err = c.do(ctx, "voice.start", http.MethodPost, "/api/voice/start-session", body, "application/json", &resp)
	return resp, err
}

// VoiceSessionStatus fetches the backend's view of a voice session.
func (c *Client) VoiceSessionStatus(ctx context.Context, sessionID string) (VoiceSessionStatus, error) {
	var resp VoiceSessionStatus
	err := c.do(ctx, "voice.status", http.MethodGet, "/api/voice/session/"+url.PathEscape(sessionID), nil, "", &resp)
	return resp, err
}

// EndVoiceSession deletes a voice session on the backend.
func (c *Client) EndVoiceSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, "voice.end", http.MethodDelete, "/api/voice/session/"+url.PathEscape(sessionID), nil, "", nil)
}

// UploadDocument posts r as a multipart "file" field named filename.
func (c *Client) UploadDocument(ctx context.Context, filename string, r io.Reader) (UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return UploadResponse{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return UploadResponse{}, fmt.Errorf("read document: %w", err)
	}
	if err := mw.Close(); err != nil {
		return UploadResponse{}, fmt.Errorf("close multipart: %w", err)
	}

	// Any 2xx counts as accepted; the body is only informative.
	var raw []byte
	if err := c.do(ctx, "documents.upload", http.MethodPost, "/api/documents/upload", &buf, mw.FormDataContentType(), &raw); err != nil {
		return UploadResponse{}, err
	}
	var resp UploadResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		logger := logging.WithComponent("api")
		logger.Debug().Err(err).Int("bytes", len(raw)).Str("filename", filepath.Base(filename)).
			Msg("upload accepted with an unreadable body")
	}
	return resp, nil
}

// UploadFile uploads the file at path.
func (c *Client) UploadFile(ctx context.Context, path string) (UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return UploadResponse{}, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()
	return c.UploadDocument(ctx, path, f)
}

// DeleteDocument removes a document from the knowledge base.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.do(ctx, "documents.delete", http.MethodDelete, "/api/documents/"+url.PathEscape(id), nil, "", nil)
}

// Topics lists the philosophical topics the knowledge base covers.
func (c *Client) Topics(ctx context.Context) (TopicsResponse, error) {
	var resp TopicsResponse
	err := c.do(ctx, "knowledge.topics", http.MethodGet, "/api/knowledge/topics", nil, "", &resp)
	return resp, err
}

// Search queries the knowledge base directly.
func (c *Client) Search(ctx context.Context, query string, limit int) (SearchResponse, error) {
	q := url.Values{}
	q.Set("query", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp SearchResponse
	err := c.do(ctx, "knowledge.search", http.MethodGet, "/api/knowledge/search?"+q.Encode(), nil, "", &resp)
	return resp, err
}

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return bytes.NewReader(data), nil
}

// do performs one request. A nil out discards the response body and a
// *[]byte out receives it verbatim.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "api."+op, trace.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
	))
	start := time.Now()
	defer func() {
		if c.duration != nil {
			c.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
				metric.WithAttributes(attribute.String("op", op), attribute.Bool("error", err != nil)))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, URL: target, Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, URL: target, Err: err}
	}
	if raw, ok := out.(*[]byte); ok {
		*raw = data
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: unmarshal response: %w", op, err)
	}
	return nil
}
