// Package codec implements C1: decoding one encoded queue/object line (a
// base64 string wrapping a gzip stream wrapping a JSON document) into the
// JSON document it carries. Decode never returns an error to the caller —
// every failure mode is a logged, counted skip, so one poisoned line never
// fails the surrounding object (spec.md §7).
package codec

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Decoder decodes EncodedLines into JSON documents, enforcing a hard cap on
// decompressed size so peak memory per line is O(maxDecodedBytes).
type Decoder struct {
	maxDecodedBytes int
	logger          *slog.Logger
}

// NewDecoder builds a Decoder. maxDecodedBytes <= 0 disables the cap (not
// recommended in production; spec.md's default is 1 MiB).
func NewDecoder(maxDecodedBytes int, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{maxDecodedBytes: maxDecodedBytes, logger: logger}
}

// Decode turns a single EncodedLine into its JSON document. ok is false
// when the line is empty/whitespace, not valid base64, not a valid gzip
// stream, or exceeds maxDecodedBytes — every such case except the blank line
// logs a WARN, and the caller should simply skip the line.
func (d *Decoder) Decode(ctx context.Context, line string) (doc string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false
	}

	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		// Upstream reporters occasionally emit unpadded base64.
		raw, err = base64.RawStdEncoding.DecodeString(trimmed)
		if err != nil {
			d.logger.WarnContext(ctx, "codec: invalid base64", "error", err)
			return "", false
		}
	}

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		d.logger.WarnContext(ctx, "codec: invalid gzip stream", "error", err)
		return "", false
	}
	defer gz.Close()

	limit := d.maxDecodedBytes
	if limit <= 0 {
		limit = 1 << 62
	}
	limited := io.LimitReader(gz, int64(limit)+1)

	decoded, err := io.ReadAll(limited)
	if err != nil {
		d.logger.WarnContext(ctx, "codec: gzip read failed", "error", err)
		return "", false
	}
	if len(decoded) > limit {
		d.logger.WarnContext(ctx, "codec: decoded line exceeds max_decoded_bytes", "limit", limit)
		return "", false
	}

	return string(decoded), true
}
