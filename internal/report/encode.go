package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Encoding is the compression applied to a written artifact.
type Encoding string

const (
	EncodingNone Encoding = "none"
	EncodingGzip Encoding = "gzip"
	EncodingZstd Encoding = "zstd"
)

// EncodingFor picks the encoding from the name suffix.
func EncodingFor(name string) Encoding {
	switch {
	case strings.HasSuffix(name, ".gz"):
		return EncodingGzip
	case strings.HasSuffix(name, ".zst"):
		return EncodingZstd
	default:
		return EncodingNone
	}
}

// ContentEncoding is the HTTP Content-Encoding value, or "" for none.
func (e Encoding) ContentEncoding() string {
	switch e {
	case EncodingGzip:
		return "gzip"
	case EncodingZstd:
		return "zstd"
	}
	return ""
}

// Encode returns data compressed with e.
func Encode(e Encoding, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeTo(&buf, e, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeTo(w io.Writer, e Encoding, data []byte) error {
	switch e {
	case EncodingNone:
		_, err := w.Write(data)
		return err
	case EncodingGzip:
		zw, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
		if err != nil {
			return fmt.Errorf("report: gzip writer: %w", err)
		}
		if _, err := zw.Write(data); err != nil {
			_ = zw.Close()
			return fmt.Errorf("report: gzip write: %w", err)
		}
		return zw.Close()
	case EncodingZstd:
		zw, err := zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(3)),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			return fmt.Errorf("report: zstd writer: %w", err)
		}
		if _, err := zw.Write(data); err != nil {
			_ = zw.Close()
			return fmt.Errorf("report: zstd write: %w", err)
		}
		return zw.Close()
	default:
		return fmt.Errorf("report: unknown encoding %q", e)
	}
}

// Decode reverses Encode.
func Decode(e Encoding, data []byte) ([]byte, error) {
	switch e {
	case EncodingNone:
		return data, nil
	case EncodingGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("report: gzip reader: %w", err)
		}
		defer func() { _ = zr.Close() }()
		return io.ReadAll(zr)
	case EncodingZstd:
		zr, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("report: zstd reader: %w", err)
		}
		defer zr.Close()
		return zr.DecodeAll(data, nil)
	default:
		return nil, fmt.Errorf("report: unknown encoding %q", e)
	}
}
