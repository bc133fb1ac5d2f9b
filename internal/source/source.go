// Package source reads playlists from standard input, local files and
// HTTP(S) URLs.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"github.com/jmylchreest/m3uclean/internal/observability"
	"github.com/jmylchreest/m3uclean/internal/storage"
	"github.com/jmylchreest/m3uclean/internal/urlutil"
	"github.com/jmylchreest/m3uclean/pkg/httpclient"
	"github.com/jmylchreest/m3uclean/pkg/m3u"
)

const utf8BOM = "\ufeff"

// Document is a playlist read from a source.
type Document struct {
	// Identifier is the source as configured, with credentials redacted.
	Identifier string
	Text       string
	// Bytes is the size of the body as received, before decompression.
	Bytes  int64
	Remote bool
	// Compression is the container format the body arrived in.
	Compression m3u.Compression
	// Charset is the encoding the body was decoded from; empty means UTF-8.
	Charset string
}

// Source reads the playlist named by identifier.
type Source interface {
	Read(ctx context.Context, identifier string) (*Document, error)
}

// FetchError wraps a failure to download a remote source.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// InvalidPlaylistError reports a body that is not an M3U playlist.
type InvalidPlaylistError struct {
	Source string
	Reason string
}

func (e *InvalidPlaylistError) Error() string {
	return fmt.Sprintf("invalid playlist from %s: %s", e.Source, e.Reason)
}

// Unwrap lets errors.Is match m3u.ErrInvalidPlaylist.
func (e *InvalidPlaylistError) Unwrap() error {
	return m3u.ErrInvalidPlaylist
}

// ErrUnknownEncoding is returned for charset labels that cannot be resolved.
var ErrUnknownEncoding = errors.New("unknown encoding")

// Config configures a Resolver.
type Config struct {
	Client    *httpclient.Client
	Workspace *storage.Workspace
	// ValidateRemoteHeader rejects remote bodies that do not start with #EXTM3U.
	ValidateRemoteHeader bool
	Logger               *slog.Logger
}

// Resolver dispatches identifiers to stdin, the workspace or the HTTP client.
type Resolver struct {
	client         *httpclient.Client
	workspace      *storage.Workspace
	validateHeader bool
	encoding       string
	logger         *slog.Logger
}

// NewResolver creates a Resolver. A nil Client or Workspace is replaced with
// a default one.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Client == nil {
		cfg.Client = httpclient.NewWithDefaults()
	}
	if cfg.Workspace == nil {
		ws, err := storage.NewWorkspace(".", false)
		if err != nil {
			return nil, err
		}
		cfg.Workspace = ws
	}
	return &Resolver{
		client:         cfg.Client,
		workspace:      cfg.Workspace,
		validateHeader: cfg.ValidateRemoteHeader,
		logger:         cfg.Logger,
	}, nil
}

// WithEncoding returns a copy of r that decodes every body from the named
// charset, ignoring any charset announced by the server.
func (r *Resolver) WithEncoding(label string) Source {
	c := *r
	c.encoding = strings.TrimSpace(label)
	return &c
}

// Read implements Source.
func (r *Resolver) Read(ctx context.Context, identifier string) (*Document, error) {
	kind := urlutil.Classify(identifier)
	display := urlutil.Redact(identifier)

	logger := r.logger
	if id := observability.CorrelationIDFromContext(ctx); id != "" {
		logger = observability.WithCorrelationID(logger, id)
	}

	var (
		raw         []byte
		contentType string
		err         error
	)

	switch kind {
	case urlutil.KindRemote:
		body, fetchErr := r.fetch(ctx, logger, identifier)
		if fetchErr != nil {
			return nil, &FetchError{Source: display, Err: fetchErr}
		}
		raw, contentType = body.Data, body.ContentType
	case urlutil.KindStdin:
		raw, err = r.workspace.ReadFile(storage.StdioIdentifier)
	default:
		path, pathErr := urlutil.LocalPath(identifier)
		if pathErr != nil {
			return nil, &storage.IOError{Op: "resolve", Path: identifier, Err: pathErr}
		}
		raw, err = r.workspace.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Identifier: display,
		Bytes:      int64(len(raw)),
		Remote:     kind == urlutil.KindRemote,
	}

	label := r.encoding
	if label == "" {
		label = charsetFromContentType(contentType)
	}
	if err := decode(doc, raw, label); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", display, err)
	}

	if doc.Remote && r.validateHeader && !m3u.HasHeader(doc.Text) {
		return nil, &InvalidPlaylistError{
			Source: display,
			Reason: "response does not start with " + m3u.HeaderSentinel,
		}
	}

	logger.DebugContext(ctx, "read source",
		slog.String("source", display),
		slog.Int64("bytes", doc.Bytes),
		slog.String("compression", string(doc.Compression)),
		slog.String("charset", doc.Charset),
	)

	return doc, nil
}

func (r *Resolver) fetch(ctx context.Context, logger *slog.Logger, rawURL string) (body *httpclient.Body, err error) {
	defer observability.TimedOperationWithError(ctx, logger.With(slog.String("url", urlutil.Redact(rawURL))), "fetch", &err)()
	return r.client.Fetch(ctx, rawURL)
}

// ForEncoding returns src configured for label when src supports it.
func ForEncoding(src Source, label string) Source {
	if label == "" {
		return src
	}
	if e, ok := src.(interface{ WithEncoding(string) Source }); ok {
		return e.WithEncoding(label)
	}
	return src
}

// decode decompresses raw and converts it from label to UTF-8, filling in
// doc's Text, Compression and Charset.
func decode(doc *Document, raw []byte, label string) error {
	rd, kind, closeFn, err := m3u.Decompress(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	defer closeFn()
	doc.Compression = kind

	if label != "" {
		enc, name := charset.Lookup(label)
		if enc == nil {
			return fmt.Errorf("%w %q", ErrUnknownEncoding, label)
		}
		if name != "utf-8" {
			rd = transform.NewReader(rd, enc.NewDecoder())
			doc.Charset = name
		}
	}

	data, err := io.ReadAll(rd)
	if err != nil {
		return err
	}
	doc.Text = strings.TrimPrefix(string(data), utf8BOM)
	return nil
}

// charsetFromContentType returns the charset parameter of a Content-Type
// header value, or an empty string.
func charsetFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
