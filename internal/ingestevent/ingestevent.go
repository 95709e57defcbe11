// Package ingestevent implements C6: parsing a queue message body into a
// typed UploadEvent, and deriving the downstream stream_name from the
// object key.
package ingestevent

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wifi-pipeline/transformer/internal/model"
)

// ErrMalformedEvent wraps every structural failure extracting an
// UploadEvent from a message body: invalid JSON, missing fields, or
// shape-invalid UUID/ETag values.
var ErrMalformedEvent = errors.New("ingestevent: malformed event")

var etagPattern = regexp.MustCompile(`^[0-9A-Fa-f]{32}$`)

// s3EventEnvelope mirrors the S3 event-notification shape delivered to
// SQS/SNS/EventBridge: {"Records":[{"eventTime","requestParameters",
// "s3":{"bucket":{"name"},"object":{"key","size","eTag"}},
// "responseElements":{"x-amz-request-id"}}]}. Only the one record this
// pipeline expects per message is read; extra records are ignored.
type s3EventEnvelope struct {
	EventID string `json:"eventID,omitempty"`
	Records []struct {
		EventTime time.Time `json:"eventTime"`
		S3        struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key  string `json:"key"`
				Size int64  `json:"size"`
				ETag string `json:"eTag"`
			} `json:"object"`
		} `json:"s3"`
		ResponseElements struct {
			RequestID string `json:"x-amz-request-id"`
		} `json:"responseElements"`
	} `json:"Records"`
}

// Extract parses body into an UploadEvent. Any structural failure —
// invalid JSON, no records, or a shape-invalid event_id/request_id/etag —
// returns ErrMalformedEvent.
func Extract(body string) (model.UploadEvent, error) {
	var env s3EventEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return model.UploadEvent{}, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedEvent, err)
	}
	if len(env.Records) == 0 {
		return model.UploadEvent{}, fmt.Errorf("%w: no records", ErrMalformedEvent)
	}
	rec := env.Records[0]

	eventID := env.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	} else if _, err := uuid.Parse(eventID); err != nil {
		return model.UploadEvent{}, fmt.Errorf("%w: event_id not a UUID: %v", ErrMalformedEvent, err)
	}

	requestID := rec.ResponseElements.RequestID
	if requestID != "" {
		if _, err := uuid.Parse(requestID); err != nil {
			return model.UploadEvent{}, fmt.Errorf("%w: request_id not a UUID: %v", ErrMalformedEvent, err)
		}
	}

	if rec.S3.Bucket.Name == "" || rec.S3.Object.Key == "" {
		return model.UploadEvent{}, fmt.Errorf("%w: missing bucket or key", ErrMalformedEvent)
	}

	if !etagPattern.MatchString(rec.S3.Object.ETag) {
		return model.UploadEvent{}, fmt.Errorf("%w: etag not 32 hex characters", ErrMalformedEvent)
	}

	return model.UploadEvent{
		EventID:    eventID,
		EventTime:  rec.EventTime,
		Bucket:     rec.S3.Bucket.Name,
		ObjectKey:  rec.S3.Object.Key,
		ObjectSize: rec.S3.Object.Size,
		ETag:       rec.S3.Object.ETag,
		StreamName: deriveStreamName(rec.S3.Object.Key),
		RequestID:  requestID,
	}, nil
}

var timestampSuffixPattern = regexp.MustCompile(`-\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2}`)

// deriveStreamName implements spec.md §4.6's derivation: split on '/', take
// the last segment, strip the first "-YYYY-MM-DD-HH-MM-SS" match; if
// absent, fall back to the filename without extension; if still empty, use
// "unknown".
func deriveStreamName(objectKey string) string {
	base := path.Base(objectKey)
	if base == "" || base == "." || base == "/" {
		return "unknown"
	}

	if loc := timestampSuffixPattern.FindStringIndex(base); loc != nil {
		stripped := base[:loc[0]] + base[loc[1]:]
		if stripped != "" {
			return stripped
		}
	}

	withoutExt := strings.TrimSuffix(base, path.Ext(base))
	if withoutExt != "" {
		return withoutExt
	}

	return "unknown"
}
