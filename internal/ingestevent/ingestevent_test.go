package ingestevent

import (
	"errors"
	"testing"
)

func validBody() string {
	return `{
		"eventID": "2f1a9c3e-4b2d-4e8a-9c1a-0f3b2d5a6c7e",
		"Records": [{
			"eventTime": "2024-01-01T00:00:00Z",
			"s3": {
				"bucket": {"name": "scans-bucket"},
				"object": {"key": "uploads/device-123-2024-01-01-12-00-00.json.gz", "size": 2048, "eTag": "0123456789abcdef0123456789abcdef"}
			},
			"responseElements": {"x-amz-request-id": "3e2f1a9c-4b2d-4e8a-9c1a-0f3b2d5a6c7f"}
		}]
	}`
}

func TestExtract_HappyPath(t *testing.T) {
	evt, err := Extract(validBody())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.Bucket != "scans-bucket" || evt.ObjectKey != "uploads/device-123-2024-01-01-12-00-00.json.gz" {
		t.Fatalf("unexpected fields: %+v", evt)
	}
	if evt.StreamName != "device-123.json.gz" {
		t.Fatalf("expected derived stream_name 'device-123.json.gz', got %q", evt.StreamName)
	}
}

func TestExtract_MalformedJSON(t *testing.T) {
	_, err := Extract("not json")
	if !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent, got %v", err)
	}
}

func TestExtract_NoRecords(t *testing.T) {
	_, err := Extract(`{"Records": []}`)
	if !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent, got %v", err)
	}
}

func TestExtract_InvalidEventID(t *testing.T) {
	body := `{"eventID": "not-a-uuid", "Records": [{"s3": {"bucket": {"name": "b"}, "object": {"key": "k.json", "eTag": "0123456789abcdef0123456789abcdef"}}}]}`
	_, err := Extract(body)
	if !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent for invalid event_id, got %v", err)
	}
}

func TestExtract_InvalidETag(t *testing.T) {
	body := `{"Records": [{"s3": {"bucket": {"name": "b"}, "object": {"key": "k.json", "eTag": "not-hex"}}}]}`
	_, err := Extract(body)
	if !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent for invalid etag, got %v", err)
	}
}

func TestExtract_MissingBucketOrKey(t *testing.T) {
	body := `{"Records": [{"s3": {"bucket": {"name": ""}, "object": {"key": "", "eTag": "0123456789abcdef0123456789abcdef"}}}]}`
	_, err := Extract(body)
	if !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent for missing bucket/key, got %v", err)
	}
}

func TestDeriveStreamName(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"uploads/device-123-2024-01-01-12-00-00.json.gz", "device-123.json.gz"},
		{"uploads/plain-device.json", "plain-device"},
		{"uploads/noext", "noext"},
		{"uploads/", "uploads"},
		{"", "unknown"},
		{"folder/-2024-01-01-00-00-00.json", ".json"},
	}
	for _, c := range cases {
		t.Run(c.key, func(t *testing.T) {
			got := deriveStreamName(c.key)
			if got != c.want {
				t.Fatalf("deriveStreamName(%q) = %q, want %q", c.key, got, c.want)
			}
		})
	}
}
