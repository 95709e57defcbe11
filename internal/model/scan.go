// Package model holds the wire and domain types shared across the transformer
// pipeline: the decoded device report (ScanPayload), the queue notification
// (UploadEvent), and the output measurement schema (Measurement).
package model

// ScanPayload is one decoded device report. Unknown top-level fields are
// ignored by the parser; missing blocks decode as empty slices.
type ScanPayload struct {
	OSName         string `json:"osName"`
	OSVersion      string `json:"osVersion"`
	Model          string `json:"model"`
	Manufacturer   string `json:"manufacturer"`
	AppNameVersion string `json:"appNameVersion"`
	DataVersion    string `json:"dataVersion"`

	ConnectedEvents    []ConnectedEvent    `json:"connectedEvents"`
	DisconnectedEvents []DisconnectedEvent `json:"disconnectedEvents"`
	ScanResults        []ScanResultEvent   `json:"scanResults"`
}

// Location is the GPS/location block attached to connected-events and
// scan-results.
type Location struct {
	Latitude  FlexFloat `json:"latitude"`
	Longitude FlexFloat `json:"longitude"`
	Altitude  FlexFloat `json:"altitude"`
	Accuracy  FlexFloat `json:"accuracy"`
	Provider  string    `json:"provider"`
	Source    string    `json:"source"`
	Speed     FlexFloat `json:"speed"`
	Bearing   FlexFloat `json:"bearing"`
	Timestamp FlexTime  `json:"timestamp"`
}

// ConnectedEvent is an active WiFi association report.
type ConnectedEvent struct {
	Timestamp FlexTime `json:"timestamp"`
	Location  Location `json:"location"`

	BSSID     string    `json:"bssid"`
	SSID      string    `json:"ssid"`
	RSSI      FlexInt   `json:"rssi"`
	Frequency FlexInt   `json:"frequency"`
	LinkSpeed FlexInt   `json:"linkSpeed"`

	ChannelWidth          FlexInt `json:"channelWidth"`
	CenterFreq0           FlexInt `json:"centerFreq0"`
	CenterFreq1           FlexInt `json:"centerFreq1"`
	Capabilities          string  `json:"capabilities"`
	Is80211mcResponder    bool    `json:"is80211mcResponder"`
	IsPasspointNetwork    bool    `json:"isPasspointNetwork"`
	OperatorFriendlyName  string  `json:"operatorFriendlyName"`
	VenueName             string  `json:"venueName"`
	IsCaptive             bool    `json:"isCaptive"`
}

// DisconnectedEvent is observed only for metrics; it never produces a
// Measurement.
type DisconnectedEvent struct {
	Timestamp FlexTime `json:"timestamp"`
	BSSID     string   `json:"bssid"`
	Reason    string   `json:"reason"`
}

// ScanResultEvent is one passive scan sweep, carrying one or more observed
// access points in Entries. One Measurement is emitted per entry.
type ScanResultEvent struct {
	Timestamp FlexTime   `json:"timestamp"`
	Location  Location   `json:"location"`
	Entries   []ScanEntry `json:"scanEntries"`
}

// ScanEntry is a single access point observed during a passive scan.
type ScanEntry struct {
	BSSID     string  `json:"bssid"`
	SSID      string  `json:"ssid"`
	RSSI      FlexInt `json:"rssi"`
	Frequency FlexInt `json:"frequency"`
}
