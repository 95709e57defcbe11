// Package transform implements C3: expanding one ScanPayload into the
// (unfiltered) Measurement candidates it contains. One connected-event
// becomes one CONNECTED-tier Measurement; each entry of a scan-result
// becomes one SCAN-tier Measurement. Disconnected-events never produce a
// Measurement — they are metrics-only (spec.md §4.3).
package transform

import (
	"time"

	"github.com/wifi-pipeline/transformer/internal/model"
)

// Clock is injected so tests can control "now" for ingestion_timestamp.
type Clock func() time.Time

type Transformer struct {
	now Clock
}

func NewTransformer(now Clock) *Transformer {
	if now == nil {
		now = time.Now
	}
	return &Transformer{now: now}
}

// Transform expands payload into Measurement candidates, before C4
// filtering. Every candidate shares eventID/processingBatchID/dataVersion
// for traceability (spec.md §3 invariant: all Measurements from one
// UploadEvent share the same processing_batch_id).
func (t *Transformer) Transform(payload model.ScanPayload, eventID, processingBatchID string) []model.Measurement {
	totalScanEntries := scanEntryCount(payload.ScanResults)
	out := make([]model.Measurement, 0, len(payload.ConnectedEvents)+totalScanEntries)

	for _, ce := range payload.ConnectedEvents {
		out = append(out, t.fromConnectedEvent(ce, payload, eventID, processingBatchID, totalScanEntries))
	}

	for _, sr := range payload.ScanResults {
		for _, entry := range sr.Entries {
			out = append(out, t.fromScanEntry(sr, entry, payload, eventID, processingBatchID))
		}
	}

	return out
}

func scanEntryCount(results []model.ScanResultEvent) int {
	n := 0
	for _, r := range results {
		n += len(r.Entries)
	}
	return n
}

func (t *Transformer) fromConnectedEvent(ce model.ConnectedEvent, payload model.ScanPayload, eventID, batchID string, totalScanEntries int) model.Measurement {
	m := t.baseMeasurement(ce.BSSID, ce.SSID, ce.RSSI.Int(), ce.Frequency.Int(), ce.Timestamp.Time(), ce.Location, eventID, batchID, payload.DataVersion)
	m.ConnectionStatus = model.ConnectionStatusConnected
	m.QualityWeight = model.ConnectionStatusConnected.QualityWeight()

	linkSpeed := ce.LinkSpeed.Int()
	channelWidth := ce.ChannelWidth.Int()
	cf0 := ce.CenterFreq0.Int()
	cf1 := ce.CenterFreq1.Int()
	caps := ce.Capabilities
	mc := ce.Is80211mcResponder
	passpoint := ce.IsPasspointNetwork
	operator := ce.OperatorFriendlyName
	venue := ce.VenueName
	captive := ce.IsCaptive

	m.LinkSpeedMbps = &linkSpeed
	m.ChannelWidth = &channelWidth
	m.CenterFreq0 = &cf0
	m.CenterFreq1 = &cf1
	m.Capabilities = &caps
	m.Is80211mcResponder = &mc
	m.IsPasspointNetwork = &passpoint
	m.OperatorFriendlyName = &operator
	m.VenueName = &venue
	m.IsCaptive = &captive
	m.NumScanResults = &totalScanEntries

	m.QualityScore = qualityScore(m.QualityWeight, m.LocationAccuracy)
	return m
}

func (t *Transformer) fromScanEntry(sr model.ScanResultEvent, entry model.ScanEntry, payload model.ScanPayload, eventID, batchID string) model.Measurement {
	m := t.baseMeasurement(entry.BSSID, entry.SSID, entry.RSSI.Int(), entry.Frequency.Int(), sr.Timestamp.Time(), sr.Location, eventID, batchID, payload.DataVersion)
	m.ConnectionStatus = model.ConnectionStatusScan
	m.QualityWeight = model.ConnectionStatusScan.QualityWeight()

	// Connected-only enrichment; SCAN-tier records leave this nil (spec.md §3).
	m.QualityScore = qualityScore(m.QualityWeight, m.LocationAccuracy)
	return m
}

func (t *Transformer) baseMeasurement(bssid, ssid string, rssi, frequency int, recordTimestamp time.Time, loc model.Location, eventID, batchID, dataVersion string) model.Measurement {
	return model.Measurement{
		BSSID:                bssid,
		MeasurementTimestamp: recordTimestamp,
		EventID:              eventID,

		Latitude:          loc.Latitude.Float64(),
		Longitude:         loc.Longitude.Float64(),
		Altitude:          loc.Altitude.Float64(),
		LocationAccuracy:  loc.Accuracy.Float64(),
		LocationProvider:  loc.Provider,
		LocationSource:    loc.Source,
		Speed:             loc.Speed.Float64(),
		Bearing:           loc.Bearing.Float64(),
		LocationTimestamp: loc.Timestamp.Time(),

		SSID:          ssid,
		RSSI:          rssi,
		Frequency:     frequency,
		ScanTimestamp: recordTimestamp,

		IngestionTimestamp: t.now(),
		DataVersion:        dataVersion,
		ProcessingBatchID:  batchID,
	}
}

// qualityScore is a simple, documented heuristic (spec.md leaves the exact
// formula unspecified): the connection-tier weight discounted by the
// location fix's accuracy radius, normalized by a fixed 50 m (not by the
// filter's accuracy threshold). It is never used for filtering, only as a
// downstream ranking hint.
func qualityScore(weight, accuracyMeters float64) float64 {
	if accuracyMeters < 0 {
		accuracyMeters = 0
	}
	return weight / (1.0 + accuracyMeters/50.0)
}
