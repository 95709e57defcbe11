package model

import "time"

// ConnectionStatus classifies the tier a Measurement was derived from.
type ConnectionStatus string

const (
	ConnectionStatusConnected ConnectionStatus = "CONNECTED"
	ConnectionStatusScan      ConnectionStatus = "SCAN"
)

// QualityWeight returns the fixed weight associated with a connection tier.
func (s ConnectionStatus) QualityWeight() float64 {
	if s == ConnectionStatusConnected {
		return 2.0
	}
	return 1.0
}

// Measurement is the transformer's output record: one normalized
// observation of a single access point, derived from exactly one source
// row (no cross-row aggregation). See spec.md §3 for the full invariant
// set.
type Measurement struct {
	// Identity
	BSSID                string    `json:"bssid"`
	MeasurementTimestamp time.Time `json:"measurement_timestamp"`
	EventID              string    `json:"event_id"`

	// Location block
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	Altitude          float64   `json:"altitude"`
	LocationAccuracy  float64   `json:"location_accuracy"`
	LocationProvider  string    `json:"location_provider,omitempty"`
	LocationSource    string    `json:"location_source,omitempty"`
	Speed             float64   `json:"speed"`
	Bearing           float64   `json:"bearing"`
	LocationTimestamp time.Time `json:"location_timestamp"`

	// Signal block
	SSID           string    `json:"ssid,omitempty"`
	RSSI           int       `json:"rssi"`
	Frequency      int       `json:"frequency"`
	ScanTimestamp  time.Time `json:"scan_timestamp"`

	// Connection tier
	ConnectionStatus ConnectionStatus `json:"connection_status"`
	QualityWeight    float64          `json:"quality_weight"`

	// Connected-only enrichment. Nil for SCAN-tier records.
	LinkSpeedMbps         *int    `json:"link_speed_mbps,omitempty"`
	ChannelWidth          *int    `json:"channel_width,omitempty"`
	CenterFreq0           *int    `json:"center_freq0,omitempty"`
	CenterFreq1           *int    `json:"center_freq1,omitempty"`
	Capabilities          *string `json:"capabilities,omitempty"`
	Is80211mcResponder    *bool   `json:"is_80211mc_responder,omitempty"`
	IsPasspointNetwork    *bool   `json:"is_passpoint_network,omitempty"`
	OperatorFriendlyName  *string `json:"operator_friendly_name,omitempty"`
	VenueName             *string `json:"venue_name,omitempty"`
	IsCaptive             *bool   `json:"is_captive,omitempty"`
	NumScanResults        *int    `json:"num_scan_results,omitempty"`

	// Provenance
	IngestionTimestamp time.Time `json:"ingestion_timestamp"`
	DataVersion        string    `json:"data_version,omitempty"`
	ProcessingBatchID  string    `json:"processing_batch_id"`
	QualityScore       float64   `json:"quality_score"`

	// IsMobileHotspot is set only when the optional OUI-based policy (C4,
	// spec.md §4.4) is enabled and its action is FLAG.
	IsMobileHotspot *bool `json:"is_mobile_hotspot,omitempty"`

	// Global-outlier fields are computed downstream; left nil at this
	// stage by design (spec.md §3).
	IsOutlier    *bool    `json:"is_outlier,omitempty"`
	OutlierScore *float64 `json:"outlier_score,omitempty"`
}

// SizedRecord is filled in by the publisher once a Measurement has been
// serialized, so its wire size is computed and cached exactly once (spec.md
// §4.7 invariant: "A record is serialised exactly once and its serialised
// size is cached").
type SizedRecord struct {
	Measurement Measurement
	Bytes       []byte
}

func (r *SizedRecord) Size() int { return len(r.Bytes) }

// UploadEvent is one notification that an object is available for
// processing. Immutable once constructed.
type UploadEvent struct {
	EventID    string
	EventTime  time.Time
	Bucket     string
	ObjectKey  string
	ObjectSize int64
	ETag       string
	StreamName string
	RequestID  string
}
