// Package httpclient provides the HTTP client used to download playlists.
//
// The client wraps the standard http.Client and adds:
//   - A bounded redirect chain
//   - Success only for 2xx final responses
//   - Transparent decompression (gzip, deflate, brotli)
//   - A response size cap applied after decompression
//   - Structured request logging
//
// There is no retry: a failed request is reported to the caller as is.
package httpclient

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// Common errors returned by the client.
var (
	ErrTooManyRedirects = errors.New("too many redirects")
	ErrResponseTooLarge = errors.New("response body exceeds maximum size limit")
)

// Default configuration values.
const (
	DefaultTimeout              = 30 * time.Second
	DefaultMaxRedirects         = 10
	DefaultMaxResponseSize      = 64 << 20
	DefaultAcceptEncodingHeader = "gzip, deflate, br"
	DefaultUserAgentHeader      = "m3uclean-httpclient/1.0"
)

// HTTP header constants.
const (
	HeaderAcceptEncoding  = "Accept-Encoding"
	HeaderContentEncoding = "Content-Encoding"
	HeaderContentType     = "Content-Type"
	HeaderLocation        = "Location"
	HeaderUserAgent       = "User-Agent"

	EncodingGzip    = "gzip"
	EncodingDeflate = "deflate"
	EncodingBrotli  = "br"
)

// StatusError is returned when the final response after redirects is not 2xx.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s from %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// Config holds the configuration for the HTTP client.
type Config struct {
	// Timeout is the overall request timeout, redirects and body included.
	Timeout time.Duration

	// MaxRedirects is the number of redirects followed before giving up.
	// Zero disables redirects.
	MaxRedirects int

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// EnableDecompression enables automatic response decompression.
	EnableDecompression bool

	// MaxResponseSize is the maximum allowed response body size in bytes.
	// This limit is applied AFTER decompression to protect against zip bombs.
	// Set to 0 to disable the limit.
	MaxResponseSize int64

	// Logger is the structured logger for request/response logging.
	Logger *slog.Logger

	// BaseClient is the underlying http.Client to use. Its CheckRedirect is
	// replaced. If nil, a default client is created.
	BaseClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:             DefaultTimeout,
		MaxRedirects:        DefaultMaxRedirects,
		UserAgent:           DefaultUserAgentHeader,
		EnableDecompression: true,
		MaxResponseSize:     DefaultMaxResponseSize,
		Logger:              slog.Default(),
	}
}

// Client downloads resources over HTTP(S).
type Client struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a client with the given configuration.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxRedirects < 0 {
		cfg.MaxRedirects = 0
	}

	var base http.Client
	if cfg.BaseClient != nil {
		base = *cfg.BaseClient
		if base.Timeout == 0 {
			base.Timeout = cfg.Timeout
		}
	} else {
		base = http.Client{Timeout: cfg.Timeout}
		if cfg.InsecureSkipVerify {
			transport := http.DefaultTransport.(*http.Transport).Clone()
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via configuration
			base.Transport = transport
		}
	}

	if cfg.InsecureSkipVerify {
		cfg.Logger.Warn("TLS certificate verification disabled for playlist downloads")
	}

	// Redirects are followed by Do so that every 3xx with a Location
	// header counts, not only the statuses net/http handles itself.
	base.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &Client{
		config: cfg,
		client: &base,
		logger: cfg.Logger,
	}
}

// NewWithDefaults creates a new client with default configuration.
func NewWithDefaults() *Client {
	return New(DefaultConfig())
}

// Do executes an HTTP request. A non-2xx final response is closed and
// reported as *StatusError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get(HeaderUserAgent) == "" && c.config.UserAgent != "" {
		req.Header.Set(HeaderUserAgent, c.config.UserAgent)
	}
	if c.config.EnableDecompression && req.Header.Get(HeaderAcceptEncoding) == "" {
		req.Header.Set(HeaderAcceptEncoding, DefaultAcceptEncodingHeader)
	}

	start := time.Now()
	resp, err := c.follow(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.Warn("request failed",
			slog.String("url", req.URL.Redacted()),
			slog.String("method", req.Method),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	finalURL := resp.Request.URL.Redacted()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		c.logger.Warn("non-success status",
			slog.String("url", finalURL),
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", duration),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: finalURL}
	}

	c.logger.Debug("request completed",
		slog.String("url", finalURL),
		slog.String("method", req.Method),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", duration),
		slog.Int64("content_length", resp.ContentLength),
	)

	if c.config.EnableDecompression {
		resp.Body = c.wrapDecompression(resp)
	}

	// Applied after decompression so a small compressed payload cannot
	// expand past the limit.
	if c.config.MaxResponseSize > 0 {
		resp.Body = newLimitedReader(resp.Body, c.config.MaxResponseSize)
	}

	return resp, nil
}

// follow sends req and follows every 3xx response that carries a Location
// header, up to MaxRedirects hops. A 3xx without Location is returned as is.
func (c *Client) follow(req *http.Request) (*http.Response, error) {
	for hop := 0; ; hop++ {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}

		location := resp.Header.Get(HeaderLocation)
		if resp.StatusCode < 300 || resp.StatusCode > 399 || location == "" {
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		if hop >= c.config.MaxRedirects {
			return nil, fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, c.config.MaxRedirects)
		}

		target, err := resp.Request.URL.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("invalid redirect location %q: %w", location, err)
		}
		if req, err = redirectRequest(req, target, resp.StatusCode); err != nil {
			return nil, err
		}

		c.logger.Debug("following redirect",
			slog.String("url", target.Redacted()),
			slog.Int("status", resp.StatusCode),
			slog.Int("hop", hop+1),
		)
	}
}

// redirectRequest builds the request for the next hop. 301, 302 and 303
// switch to GET like browsers do; other statuses keep the method and
// replay the body when it can be rewound.
func redirectRequest(prev *http.Request, target *url.URL, status int) (*http.Request, error) {
	method := prev.Method
	var body io.ReadCloser
	switch {
	case (status == http.StatusMovedPermanently || status == http.StatusFound || status == http.StatusSeeOther) &&
		method != http.MethodGet && method != http.MethodHead:
		method = http.MethodGet
	case prev.GetBody != nil:
		b, err := prev.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewinding request body: %w", err)
		}
		body = b
	}

	next, err := http.NewRequestWithContext(prev.Context(), method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating redirect request: %w", err)
	}
	next.Header = prev.Header.Clone()
	return next, nil
}

// Get performs a GET request to the specified URL.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return c.Do(req)
}

// Body is a fully read response.
type Body struct {
	Data        []byte
	ContentType string
	// FinalURL is the address after redirects, with any password redacted.
	FinalURL string
}

// Fetch performs a GET and reads the whole body.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Body, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &Body{
		Data:        data,
		ContentType: resp.Header.Get(HeaderContentType),
		FinalURL:    resp.Request.URL.Redacted(),
	}, nil
}

// wrapDecompression wraps the response body with appropriate decompression.
func (c *Client) wrapDecompression(resp *http.Response) io.ReadCloser {
	encoding := resp.Header.Get(HeaderContentEncoding)
	if encoding == "" {
		return resp.Body
	}

	switch strings.ToLower(encoding) {
	case EncodingGzip:
		reader, err := gzip.NewReader(resp.Body)
		if err != nil {
			c.logger.Warn("failed to create gzip reader, returning raw body",
				slog.String("error", err.Error()),
			)
			return resp.Body
		}
		return &decompressReader{reader: reader, closer: resp.Body}

	case EncodingDeflate:
		reader := flate.NewReader(resp.Body)
		return &decompressReader{reader: reader, closer: resp.Body}

	case EncodingBrotli:
		reader := brotli.NewReader(resp.Body)
		return &decompressReader{reader: reader, closer: resp.Body}

	default:
		c.logger.Debug("unknown content encoding, returning raw body",
			slog.String("encoding", encoding),
		)
		return resp.Body
	}
}

// decompressReader wraps a decompression reader with the original body closer.
type decompressReader struct {
	reader io.Reader
	closer io.Closer
}

func (d *decompressReader) Read(p []byte) (int, error) {
	return d.reader.Read(p)
}

func (d *decompressReader) Close() error {
	if closer, ok := d.reader.(io.Closer); ok {
		closer.Close()
	}
	return d.closer.Close()
}

// limitedReader wraps a reader with a maximum size limit.
// It returns ErrResponseTooLarge when the limit is exceeded.
type limitedReader struct {
	reader    io.Reader
	closer    io.Closer
	remaining int64
	exceeded  bool
}

func newLimitedReader(r io.ReadCloser, limit int64) *limitedReader {
	return &limitedReader{
		reader:    r,
		closer:    r,
		remaining: limit,
	}
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.exceeded {
		return 0, ErrResponseTooLarge
	}

	n, err := l.reader.Read(p)
	l.remaining -= int64(n)

	if l.remaining < 0 {
		l.exceeded = true
		return n, ErrResponseTooLarge
	}

	return n, err
}

func (l *limitedReader) Close() error {
	return l.closer.Close()
}
