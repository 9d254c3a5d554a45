package influx

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/valyala/fastjson"

	"github.com/coffersTech/datalog-influx/internal/model"
)

// DefaultTimeout bounds a single write request.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Config holds configuration for creating a Client.
type Config struct {
	// URL is the base URL of the server (e.g. "http://localhost:8086").
	URL string
	// Org is the organization owning the target bucket.
	Org string
	// Token is the API token sent as "Authorization: Token <token>".
	Token string
	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration
	// Gzip compresses request bodies.
	Gzip bool
	// InsecureSkipVerify disables TLS certificate checks.
	InsecureSkipVerify bool
	// HTTPClient overrides the client built from the fields above.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client writes points through the /api/v2/write endpoint.
type Client struct {
	baseURL    string
	org        string
	token      string
	gzip       bool
	httpClient *http.Client
	logger     *slog.Logger
	parser     fastjson.ParserPool
	gzipPool   sync.Pool
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("influx: URL is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("influx: invalid URL %q: %w", cfg.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("influx: URL %q must be http or https", cfg.URL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		httpClient = &http.Client{Timeout: timeout, Transport: transport}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		org:        cfg.Org,
		token:      cfg.Token,
		gzip:       cfg.Gzip,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// WritePoints writes points into bucket with millisecond precision. Points
// that encode to nothing are dropped; if none remain no request is made.
func (c *Client) WritePoints(ctx context.Context, bucket string, points []model.Point) error {
	body := Encode(points)
	if len(body) == 0 {
		return nil
	}
	rawSize := len(body)

	if c.gzip {
		compressed, err := c.compress(body)
		if err != nil {
			return fmt.Errorf("influx: compress body: %w", err)
		}
		body = compressed
	}

	query := url.Values{}
	query.Set("org", c.org)
	query.Set("bucket", bucket)
	query.Set("precision", "ms")
	requestURL := c.baseURL + "/api/v2/write?" + query.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("influx: failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if c.gzip {
		request.Header.Set("Content-Encoding", "gzip")
	}
	if c.token != "" {
		request.Header.Set("Authorization", "Token "+c.token)
	}

	start := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("influx: write to bucket %q failed: %w", bucket, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		io.Copy(io.Discard, response.Body)
		c.logger.Debug("points written",
			"bucket", bucket,
			"points", len(points),
			"bytes", rawSize,
			"sent", len(body),
			"duration", time.Since(start),
		)
		return nil
	}

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("influx: failed to read %d response: %w", response.StatusCode, err)
	}
	return c.parseWriteError(response.StatusCode, responseBody)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) compress(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(body) / 4)

	zw, _ := c.gzipPool.Get().(*gzip.Writer)
	if zw == nil {
		zw = gzip.NewWriter(&buf)
	} else {
		zw.Reset(&buf)
	}
	defer c.gzipPool.Put(zw)

	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
