package source

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/jmylchreest/m3uclean/internal/config"
	"github.com/jmylchreest/m3uclean/internal/observability"
	"github.com/jmylchreest/m3uclean/internal/storage"
	"github.com/jmylchreest/m3uclean/pkg/httpclient"
	"github.com/jmylchreest/m3uclean/pkg/m3u"
)

const samplePlaylist = "#EXTM3U\n#EXTINF:-1 group-title=\"News\",Chan1\nhttp://a/1\n"

func newTestResolver(t *testing.T, validate bool) (*Resolver, *storage.Workspace) {
	t.Helper()

	ws, err := storage.NewWorkspace(t.TempDir(), false)
	require.NoError(t, err)

	r, err := NewResolver(Config{
		Client:               httpclient.New(httpclient.DefaultConfig()),
		Workspace:            ws,
		ValidateRemoteHeader: validate,
	})
	require.NoError(t, err)
	return r, ws
}

func TestResolver_Remote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/x-mpegurl")
		_, _ = w.Write([]byte(samplePlaylist))
	}))
	defer server.Close()

	r, _ := newTestResolver(t, true)
	doc, err := r.Read(context.Background(), server.URL+"/list.m3u?raw=1")
	require.NoError(t, err)

	assert.True(t, doc.Remote)
	assert.Equal(t, samplePlaylist, doc.Text)
	assert.Equal(t, int64(len(samplePlaylist)), doc.Bytes)
	assert.Equal(t, m3u.CompressionNone, doc.Compression)
	assert.Empty(t, doc.Charset)
}

func TestResolver_LogsCarryCorrelationID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePlaylist))
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := observability.NewLoggerWithWriter(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)
	r, err := NewResolver(Config{Client: httpclient.New(httpclient.DefaultConfig()), Logger: logger})
	require.NoError(t, err)

	ctx := observability.ContextWithCorrelationID(context.Background(), "01J9ZRUN")
	_, err = r.Read(ctx, server.URL+"/get.php?username=u&password=hunter2")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `msg="read source"`)
	assert.Contains(t, out, "operation=fetch")
	assert.Equal(t, 2, strings.Count(out, "correlation_id=01J9ZRUN"), "fetch and read lines carry the run id")
	assert.NotContains(t, out, "hunter2")
}

func TestResolver_RemoteStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	r, _ := newTestResolver(t, true)
	_, err := r.Read(context.Background(), server.URL+"/list.m3u?token=secret")
	require.Error(t, err)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.NotContains(t, fetchErr.Source, "secret")

	var statusErr *httpclient.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestResolver_RemoteMissingHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>login required</html>"))
	}))
	defer server.Close()

	t.Run("validated", func(t *testing.T) {
		r, _ := newTestResolver(t, true)
		_, err := r.Read(context.Background(), server.URL)

		var invalid *InvalidPlaylistError
		require.True(t, errors.As(err, &invalid))
		assert.True(t, errors.Is(err, m3u.ErrInvalidPlaylist))
	})

	t.Run("not validated", func(t *testing.T) {
		r, _ := newTestResolver(t, false)
		doc, err := r.Read(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, "<html>login required</html>", doc.Text)
	})
}

func TestResolver_RemoteCharset(t *testing.T) {
	encoded, err := charmap.Windows1251.NewEncoder().String("#EXTM3U\n#EXTINF:-1 group-title=\"Новости\",Первый\nhttp://a/1\n")
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/x-mpegurl; charset=windows-1251")
		_, _ = w.Write([]byte(encoded))
	}))
	defer server.Close()

	r, _ := newTestResolver(t, true)
	doc, err := r.Read(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "windows-1251", doc.Charset)
	assert.Contains(t, doc.Text, `group-title="Новости"`)
}

func TestResolver_RemoteGzipFile(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte(samplePlaylist))
	require.NoError(t, gz.Close())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	r, _ := newTestResolver(t, true)
	doc, err := r.Read(context.Background(), server.URL+"/list.m3u.gz")
	require.NoError(t, err)

	assert.Equal(t, m3u.CompressionGzip, doc.Compression)
	assert.Equal(t, samplePlaylist, doc.Text)
	assert.Equal(t, int64(buf.Len()), doc.Bytes)
}

func TestResolver_LocalFile(t *testing.T) {
	r, ws := newTestResolver(t, true)
	// Local sources are not header-validated.
	require.NoError(t, os.WriteFile(filepath.Join(ws.BaseDir(), "in.m3u"), []byte("#EXTINF:-1,A\nhttp://a\n"), 0o644))

	doc, err := r.Read(context.Background(), "in.m3u")
	require.NoError(t, err)
	assert.False(t, doc.Remote)
	assert.Equal(t, "#EXTINF:-1,A\nhttp://a\n", doc.Text)

	doc, err = r.Read(context.Background(), "file://"+filepath.Join(ws.BaseDir(), "in.m3u"))
	require.NoError(t, err)
	assert.Equal(t, "#EXTINF:-1,A\nhttp://a\n", doc.Text)
}

func TestResolver_LocalMissing(t *testing.T) {
	r, _ := newTestResolver(t, true)
	_, err := r.Read(context.Background(), "missing.m3u")

	var ioErr *storage.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestResolver_Stdin(t *testing.T) {
	ws, err := storage.NewWorkspace(t.TempDir(), false)
	require.NoError(t, err)
	ws = ws.WithStdio(strings.NewReader("\ufeff"+samplePlaylist), &bytes.Buffer{})

	r, err := NewResolver(Config{Workspace: ws})
	require.NoError(t, err)

	doc, err := r.Read(context.Background(), "-")
	require.NoError(t, err)
	assert.Equal(t, samplePlaylist, doc.Text, "byte order mark is stripped")
	assert.Equal(t, "-", doc.Identifier)
}

func TestResolver_WithEncoding(t *testing.T) {
	r, ws := newTestResolver(t, true)
	encoded, err := charmap.ISO8859_1.NewEncoder().String("#EXTINF:-1 group-title=\"Télé\",A\nhttp://a\n")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ws.BaseDir(), "latin1.m3u"), []byte(encoded), 0o644))

	doc, err := ForEncoding(r, "latin1").Read(context.Background(), "latin1.m3u")
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "Télé")

	_, err = ForEncoding(r, "no-such-charset").Read(context.Background(), "latin1.m3u")
	assert.ErrorIs(t, err, ErrUnknownEncoding)

	assert.Same(t, Source(r), ForEncoding(r, ""))
}

func TestCharsetFromContentType(t *testing.T) {
	tests := []struct {
		contentType string
		expected    string
	}{
		{"", ""},
		{"audio/x-mpegurl", ""},
		{"text/plain; charset=UTF-8", "UTF-8"},
		{"audio/x-mpegurl; charset=\"koi8-r\"", "koi8-r"},
		{"not a media type;;", ""},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			assert.Equal(t, tt.expected, charsetFromContentType(tt.contentType))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	fetchErr := &FetchError{Source: "https://example.com/list.m3u", Err: httpclient.ErrTooManyRedirects}
	assert.Equal(t, "fetching https://example.com/list.m3u: "+httpclient.ErrTooManyRedirects.Error(), fetchErr.Error())
	assert.ErrorIs(t, fetchErr, httpclient.ErrTooManyRedirects)

	invalid := &InvalidPlaylistError{Source: "x", Reason: "empty"}
	assert.Equal(t, "invalid playlist from x: empty", invalid.Error())
}
