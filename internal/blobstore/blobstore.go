// Package blobstore implements C5: streaming an object's lines from the
// object store as a lazy, finite, single-use sequence with bounded memory.
package blobstore

import (
	"bufio"
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is terminal: the Worker acks and drops the message.
var ErrObjectNotFound = errors.New("blobstore: object not found")

// ErrTransientStorage is retryable: the Worker nacks without acking.
var ErrTransientStorage = errors.New("blobstore: transient storage error")

// ObjectStore opens objects as byte streams. Implementations must map
// backend-specific "not found" responses to ErrObjectNotFound and any other
// failure to ErrTransientStorage.
type ObjectStore interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// LineStream yields an object's lines one at a time, bounded by
// maxLineBytes. Peak memory is O(longest_line + small_fixed_buffer); it
// never materializes the whole object.
type LineStream struct {
	rc      io.ReadCloser
	reader  *bufio.Reader
	maxLine int
	closed  bool
}

// Open streams (bucket, key) from store and wraps it in a LineStream bounded
// by maxLineBytes (spec.md's object_max_line_bytes).
func Open(ctx context.Context, store ObjectStore, bucket, key string, maxLineBytes int) (*LineStream, error) {
	rc, err := store.Open(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return &LineStream{
		rc:      rc,
		reader:  bufio.NewReaderSize(rc, 64*1024),
		maxLine: maxLineBytes,
	}, nil
}

// Next returns the next line (without its trailing newline), or io.EOF when
// the stream is exhausted. If the underlying stream ends mid-line, the
// final partial line is returned followed by io.EOF on the next call.
func (s *LineStream) Next() (string, error) {
	var buf []byte
	for {
		chunk, err := s.reader.ReadSlice('\n')
		buf = append(buf, chunk...)

		if len(buf) > s.maxLine {
			return "", ErrTransientStorage
		}

		switch {
		case err == nil:
			return trimNewline(buf), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(buf) == 0 {
				return "", io.EOF
			}
			return trimNewline(buf), nil
		default:
			return "", ErrTransientStorage
		}
	}
}

func trimNewline(b []byte) string {
	n := len(b)
	if n > 0 && b[n-1] == '\n' {
		n--
	}
	if n > 0 && b[n-1] == '\r' {
		n--
	}
	return string(b[:n])
}

// Close releases the underlying byte stream. Safe to call more than once.
func (s *LineStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.rc.Close()
}
