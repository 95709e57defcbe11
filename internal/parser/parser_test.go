package parser

import (
	"context"
	"testing"
)

func TestParse_HappyPath(t *testing.T) {
	p := NewParser(nil)
	doc := `{
		"osName": "android",
		"dataVersion": "3",
		"connectedEvents": [
			{"timestamp": 1700000000000, "bssid": "AA:BB:CC:DD:EE:01", "rssi": "-65",
			 "location": {"latitude": 40.7, "longitude": -74.0, "accuracy": 20}}
		],
		"scanResults": [
			{"timestamp": 1700000000000,
			 "location": {"latitude": 40.7, "longitude": -74.0, "accuracy": 20},
			 "scanEntries": [
			   {"bssid": "AA:BB:CC:DD:EE:02", "rssi": -70},
			   {"bssid": "AA:BB:CC:DD:EE:03", "rssi": -200}
			 ]}
		]
	}`

	payload, ok := p.Parse(context.Background(), doc)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if len(payload.ConnectedEvents) != 1 {
		t.Fatalf("expected 1 connected event, got %d", len(payload.ConnectedEvents))
	}
	if payload.ConnectedEvents[0].RSSI.Int() != -65 {
		t.Fatalf("expected string rssi coerced to -65, got %d", payload.ConnectedEvents[0].RSSI.Int())
	}
	if len(payload.ScanResults) != 1 || len(payload.ScanResults[0].Entries) != 2 {
		t.Fatalf("unexpected scan results shape: %+v", payload.ScanResults)
	}
}

func TestParse_UnknownFieldsTolerated(t *testing.T) {
	p := NewParser(nil)
	doc := `{"osName": "ios", "somethingWeNeverHeardOf": {"a": [1,2,3]}}`

	payload, ok := p.Parse(context.Background(), doc)
	if !ok {
		t.Fatal("expected ok=true for unknown fields")
	}
	if payload.OSName != "ios" {
		t.Fatalf("expected osName to survive, got %q", payload.OSName)
	}
}

func TestParse_MissingBlocksAreEmpty(t *testing.T) {
	p := NewParser(nil)
	payload, ok := p.Parse(context.Background(), `{"osName": "ios"}`)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if payload.ConnectedEvents != nil && len(payload.ConnectedEvents) != 0 {
		t.Fatalf("expected empty connected events, got %+v", payload.ConnectedEvents)
	}
	if len(payload.ScanResults) != 0 {
		t.Fatalf("expected empty scan results, got %+v", payload.ScanResults)
	}
}

func TestParse_MalformedJSON(t *testing.T) {
	p := NewParser(nil)
	if _, ok := p.Parse(context.Background(), "not-json"); ok {
		t.Fatal("expected ok=false for malformed JSON")
	}
}

func TestParse_UncoercibleNumericFieldDropsFieldNotRecord(t *testing.T) {
	p := NewParser(nil)
	doc := `{"connectedEvents":[{"bssid":"AA:BB:CC:DD:EE:01","rssi":"not-a-number"}]}`

	payload, ok := p.Parse(context.Background(), doc)
	if !ok {
		t.Fatal("expected record to survive an uncoercible numeric field")
	}
	if len(payload.ConnectedEvents) != 1 {
		t.Fatalf("expected the record to be preserved, got %+v", payload.ConnectedEvents)
	}
	if payload.ConnectedEvents[0].RSSI.Int() != 0 {
		t.Fatalf("expected rssi to fall back to zero value, got %d", payload.ConnectedEvents[0].RSSI.Int())
	}
	if payload.ConnectedEvents[0].BSSID != "AA:BB:CC:DD:EE:01" {
		t.Fatalf("expected bssid to survive, got %q", payload.ConnectedEvents[0].BSSID)
	}
}
