// Package api is the HTTP client of the remote simulation service.
//
// Endpoints:
//   - POST /simulate          multipart upload, replies {"run_id": "..."}
//   - GET  /results/{run_id}  404 while the run is in progress, then the results
//
// Results arrive either as JSON ({"data": [{"time": ..., "value": ...}]}) or as
// raw CSV text. The shape is resolved here, once, into a models.RawResult.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tejusbharadwaj/simdash/internal/models"
)

var (
	// ErrNotFound means the run has no results yet. It is the steady state
	// while a simulation is still running.
	ErrNotFound = errors.New("results not found")
	// ErrRequest wraps failures to reach the service at all.
	ErrRequest = errors.New("error making request to simulation service")
)

// Error is a non-404 error response from the service.
type Error struct {
	StatusCode int
	// Detail is the human-readable message supplied by the service, if any.
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("simulation service returned %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("simulation service returned %d", e.StatusCode)
}

// Detail extracts the service-supplied message from err, or "" if there is none.
func Detail(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return strings.TrimSpace(apiErr.Detail)
	}
	return ""
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL        string
	Timeout        time.Duration
	RateLimit      float64 // requests per second
	RateLimitBurst int
	CacheSize      int // completed results kept in memory
}

// DefaultClientConfig returns a ClientConfig pointing at a local service.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:        "http://localhost:8000",
		Timeout:        45 * time.Second,
		RateLimit:      2.0,
		RateLimitBurst: 4,
		CacheSize:      64,
	}
}

type submitResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type resultsResponse struct {
	Data []models.Sample `json:"data"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
	Error  string          `json:"error"`
}

// Client talks to the simulation service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *lru.Cache
	logger     logrus.FieldLogger
}

// NewClient builds a Client from cfg.
func NewClient(cfg ClientConfig, logger logrus.FieldLogger) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid service url %q", cfg.BaseURL)
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultClientConfig().CacheSize
	}
	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		baseURL:    strings.TrimRight(base.String(), "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		cache:      cache,
		logger:     logger,
	}, nil
}

// Submit uploads the request and returns the run id assigned by the service.
// progress, if non-nil, receives the upload percentage as the body is sent.
func (c *Client) Submit(ctx context.Context, req models.SimulationRequest, progress func(int)) (string, error) {
	body, contentType, err := encodeRequest(req)
	if err != nil {
		return "", err
	}

	var reader io.Reader = bytes.NewReader(body)
	if progress != nil {
		reader = newProgressReader(reader, int64(len(body)), progress)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/simulate", reader)
	if err != nil {
		return "", err
	}
	httpReq.ContentLength = int64(len(body))
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", decodeError(resp)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode submit response: %w", err)
	}
	if strings.TrimSpace(out.RunID) == "" {
		return "", fmt.Errorf("service did not return a run id")
	}

	c.logger.WithFields(logrus.Fields{
		"run_id": out.RunID,
		"status": out.Status,
	}).Info("Simulation submitted")
	return out.RunID, nil
}

// FetchResults returns the results of runID, or ErrNotFound while they do not
// exist yet. Completed structured results are served from cache afterwards.
func (c *Client) FetchResults(ctx context.Context, runID string) (models.RawResult, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return models.RawResult{}, fmt.Errorf("run id is required")
	}
	if cached, ok := c.cache.Get(runID); ok {
		return cached.(models.RawResult), nil
	}

	httpReq, err := c.newRequest(ctx, http.MethodGet, "/results/"+url.PathEscape(runID), nil)
	if err != nil {
		return models.RawResult{}, err
	}
	httpReq.Header.Set("Accept", "application/json, text/csv")

	resp, err := c.do(httpReq)
	if err != nil {
		return models.RawResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return models.RawResult{}, ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return models.RawResult{}, decodeError(resp)
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.RawResult{}, fmt.Errorf("failed to read results: %w", err)
	}
	raw, err := decodeResult(resp.Header.Get("Content-Type"), blob)
	if err != nil {
		return models.RawResult{}, err
	}
	if raw.Kind == models.KindSamples && len(raw.Samples) > 0 {
		c.cache.Add(runID, raw)
	}
	return raw, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	return resp, nil
}

func encodeRequest(req models.SimulationRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if req.BuildingModel.Present() {
		if err := writeFile(w, "idf_file", req.BuildingModel); err != nil {
			return nil, "", err
		}
	}
	if req.Weather != nil {
		if err := writeFile(w, "weather_file", req.Weather); err != nil {
			return nil, "", err
		}
	}
	if req.Dimensions.Complete() {
		fields := []struct {
			name  string
			value float64
		}{
			{"length", req.Dimensions.Length},
			{"width", req.Dimensions.Width},
			{"height", req.Dimensions.Height},
		}
		for _, f := range fields {
			if err := w.WriteField(f.name, strconv.FormatFloat(f.value, 'f', -1, 64)); err != nil {
				return nil, "", fmt.Errorf("failed to encode %s: %w", f.name, err)
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to encode request: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writeFile(w *multipart.Writer, field string, file *models.FileHandle) error {
	part, err := w.CreateFormFile(field, file.Name)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", field, err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return fmt.Errorf("failed to encode %s: %w", field, err)
	}
	return nil
}

// decodeResult resolves the payload shape from the declared media type.
// Delimited text types are never decoded as JSON; the first byte is only
// sniffed when the media type is missing or unknown.
func decodeResult(contentType string, blob []byte) (models.RawResult, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	trimmed := bytes.TrimSpace(blob)

	declared := true
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
	case mediaType == "text/csv" || mediaType == "text/plain":
		return models.TableResult(string(blob)), nil
	case len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '"'):
		declared = false
	default:
		return models.TableResult(string(blob)), nil
	}

	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			if !declared {
				// A quoted CSV header, not a JSON string.
				return models.TableResult(string(blob)), nil
			}
			return models.RawResult{}, fmt.Errorf("failed to decode results: %w", err)
		}
		return models.TableResult(text), nil
	}

	var out resultsResponse
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return models.RawResult{}, fmt.Errorf("failed to decode results: %w", err)
	}
	return models.SamplesResult(out.Data), nil
}

func decodeError(resp *http.Response) error {
	blob, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	apiErr := &Error{StatusCode: resp.StatusCode}

	var body errorResponse
	if json.Unmarshal(blob, &body) == nil {
		var detail string
		switch {
		case len(body.Detail) > 0 && json.Unmarshal(body.Detail, &detail) == nil:
			apiErr.Detail = detail
		case len(body.Detail) > 0 && string(body.Detail) != "null":
			apiErr.Detail = string(body.Detail)
		case body.Error != "":
			apiErr.Detail = body.Error
		}
	}
	return apiErr
}
