package m3u

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"
)

// Compression identifies the container format of a playlist body.
type Compression string

const (
	CompressionNone  Compression = "none"
	CompressionGzip  Compression = "gzip"
	CompressionBzip2 Compression = "bzip2"
	CompressionXZ    Compression = "xz"
)

// DetectCompression inspects the leading magic bytes of a body.
func DetectCompression(header []byte) Compression {
	switch {
	case len(header) >= 2 && header[0] == 0x1f && header[1] == 0x8b:
		return CompressionGzip
	case len(header) >= 3 && header[0] == 'B' && header[1] == 'Z' && header[2] == 'h':
		return CompressionBzip2
	case len(header) >= 6 && header[0] == 0xfd && header[1] == '7' && header[2] == 'z' &&
		header[3] == 'X' && header[4] == 'Z' && header[5] == 0x00:
		return CompressionXZ
	default:
		return CompressionNone
	}
}

// Decompress wraps r in a decompressing reader when the body starts with a
// gzip, bzip2 or xz signature. Plain text is returned unchanged. The
// returned close function releases decoder resources; it does not close r.
func Decompress(r io.Reader) (io.Reader, Compression, func() error, error) {
	noop := func() error { return nil }

	br := bufio.NewReader(r)
	header, err := br.Peek(6)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, CompressionNone, noop, fmt.Errorf("peeking header: %w", err)
	}

	kind := DetectCompression(header)
	switch kind {
	case CompressionGzip:
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, kind, noop, fmt.Errorf("creating gzip reader: %w", err)
		}
		return gzr, kind, gzr.Close, nil
	case CompressionBzip2:
		bzr, err := bzip2.NewReader(br, nil)
		if err != nil {
			return nil, kind, noop, fmt.Errorf("creating bzip2 reader: %w", err)
		}
		return bzr, kind, bzr.Close, nil
	case CompressionXZ:
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, kind, noop, fmt.Errorf("creating xz reader: %w", err)
		}
		return xzr, kind, noop, nil
	default:
		return br, kind, noop, nil
	}
}
