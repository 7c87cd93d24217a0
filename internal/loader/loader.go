// Package loader reads the document to be indexed from a local file or an
// object store, decompressing it when needed. Loading is all-or-nothing: a
// read error anywhere means no document is returned.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/tracing"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	CompressionAuto = "auto"
	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
	CompressionLZ4  = "lz4"
)

// Options controls decoding and size limits.
type Options struct {
	Compression string
	// MaxBytes caps the decompressed document size. Zero means no limit.
	MaxBytes int64
}

// Document is a fully read document.
type Document struct {
	Text        string
	Source      string
	Compression string
	ValidUTF8   bool
	LoadTime    time.Duration
}

// Load reads all of src and returns its decompressed contents.
func Load(ctx context.Context, src Source, opts Options) (*Document, error) {
	ctx, span := tracing.StartChildSpan(ctx, "load_document")
	defer span.End()
	start := time.Now()
	logger := slog.Default().With("component", "loader", "source", src.Name())

	codec, err := resolveCompression(src.Name(), opts.Compression)
	if err != nil {
		return nil, err
	}
	span.SetAttr("compression", codec)

	rc, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", apperrors.ErrDocumentLoad, src.Name(), err)
	}
	defer rc.Close()

	r, closeDecoder, err := decoder(codec, rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s decoder for %s: %w", apperrors.ErrDocumentLoad, codec, src.Name(), err)
	}
	defer closeDecoder()

	data, err := readLimited(ctx, r, opts.MaxBytes)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: reading %s: %w", apperrors.ErrDocumentLoad, src.Name(), err)
	}

	doc := &Document{
		Text:        string(data),
		Source:      src.Name(),
		Compression: codec,
		ValidUTF8:   utf8.Valid(data),
		LoadTime:    time.Since(start),
	}
	if !doc.ValidUTF8 {
		logger.Warn("document is not valid UTF-8; non-ASCII bytes are treated as separators")
	}
	span.SetAttr("size_bytes", len(data))
	logger.Info("document loaded",
		"size", humanize.Bytes(uint64(len(data))),
		"compression", codec,
		"duration_ms", doc.LoadTime.Milliseconds(),
	)
	return doc, nil
}

// resolveCompression maps auto to a codec by the source name's suffix.
func resolveCompression(name, compression string) (string, error) {
	switch compression {
	case "", CompressionAuto:
	case CompressionNone, CompressionGzip, CompressionZstd, CompressionLZ4:
		return compression, nil
	default:
		return "", apperrors.InvalidInput("unknown compression %q", compression)
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".gz", ".gzip":
		return CompressionGzip, nil
	case ".zst", ".zstd":
		return CompressionZstd, nil
	case ".lz4":
		return CompressionLZ4, nil
	default:
		return CompressionNone, nil
	}
}

func decoder(codec string, r io.Reader) (io.Reader, func(), error) {
	noop := func() {}
	switch codec {
	case CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, noop, err
		}
		return zr, func() { zr.Close() }, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, noop, err
		}
		return zr, zr.Close, nil
	case CompressionLZ4:
		return lz4.NewReader(r), noop, nil
	default:
		return r, noop, nil
	}
}

// readLimited reads r to EOF, failing once more than maxBytes arrive or ctx
// is cancelled between chunks.
func readLimited(ctx context.Context, r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes > 0 {
		r = io.LimitReader(r, maxBytes+1)
	}
	buf := make([]byte, 0, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(buf) == cap(buf) {
			buf = append(buf, 0)[:len(buf)]
		}
		n, err := r.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if maxBytes > 0 && int64(len(buf)) > maxBytes {
			return nil, apperrors.InvalidInput("document exceeds %s limit", humanize.Bytes(uint64(maxBytes)))
		}
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
