package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wifi-pipeline/transformer/internal/model"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestTransform_ConnectedEventProducesEnrichedMeasurement(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTransformer(fixedClock(now))

	payload := model.ScanPayload{
		DataVersion: "3",
		ConnectedEvents: []model.ConnectedEvent{
			{BSSID: "AA:BB:CC:DD:EE:01", RSSI: -65, Frequency: 2412, LinkSpeed: 72},
		},
		ScanResults: []model.ScanResultEvent{
			{Entries: []model.ScanEntry{{BSSID: "AA:BB:CC:DD:EE:02"}}},
		},
	}

	out := tr.Transform(payload, "evt-1", "batch-1")
	require.Len(t, out, 2)
	m := out[0]
	require.Equal(t, model.ConnectionStatusConnected, m.ConnectionStatus)
	require.Equal(t, 2.0, m.QualityWeight)
	require.NotNil(t, m.LinkSpeedMbps)
	require.Equal(t, 72, *m.LinkSpeedMbps)
	require.Equal(t, "batch-1", m.ProcessingBatchID)
	require.Equal(t, "evt-1", m.EventID)
	require.True(t, m.IngestionTimestamp.Equal(now))
	require.NotNil(t, m.NumScanResults)
	require.Equal(t, 1, *m.NumScanResults)
}

func TestTransform_ScanEntryProducesUnenrichedMeasurement(t *testing.T) {
	tr := NewTransformer(nil)

	payload := model.ScanPayload{
		ScanResults: []model.ScanResultEvent{
			{Entries: []model.ScanEntry{
				{BSSID: "AA:BB:CC:DD:EE:02", RSSI: -70},
				{BSSID: "AA:BB:CC:DD:EE:03", RSSI: -72},
			}},
		},
	}

	out := tr.Transform(payload, "evt-2", "batch-2")
	require.Len(t, out, 2)
	for _, m := range out {
		require.Equal(t, model.ConnectionStatusScan, m.ConnectionStatus)
		require.Equal(t, 1.0, m.QualityWeight)
		require.Nil(t, m.LinkSpeedMbps)
		require.Nil(t, m.NumScanResults)
	}
}

func TestTransform_DisconnectedEventsProduceNoMeasurements(t *testing.T) {
	tr := NewTransformer(nil)
	payload := model.ScanPayload{
		DisconnectedEvents: []model.DisconnectedEvent{{BSSID: "AA:BB:CC:DD:EE:09"}},
	}
	out := tr.Transform(payload, "evt-3", "batch-3")
	require.Empty(t, out)
}

func TestTransform_SharedProcessingBatchID(t *testing.T) {
	tr := NewTransformer(nil)
	payload := model.ScanPayload{
		ConnectedEvents: []model.ConnectedEvent{{BSSID: "AA:BB:CC:DD:EE:01"}},
		ScanResults: []model.ScanResultEvent{
			{Entries: []model.ScanEntry{{BSSID: "AA:BB:CC:DD:EE:02"}}},
		},
	}
	out := tr.Transform(payload, "evt-4", "batch-shared")
	for _, m := range out {
		require.Equal(t, "batch-shared", m.ProcessingBatchID)
	}
}

func TestTransform_OrderPreserved(t *testing.T) {
	tr := NewTransformer(nil)
	payload := model.ScanPayload{
		ConnectedEvents: []model.ConnectedEvent{
			{BSSID: "AA:BB:CC:DD:EE:01"},
		},
		ScanResults: []model.ScanResultEvent{
			{Entries: []model.ScanEntry{
				{BSSID: "AA:BB:CC:DD:EE:02"},
				{BSSID: "AA:BB:CC:DD:EE:03"},
			}},
		},
	}
	out := tr.Transform(payload, "evt-5", "batch-5")
	want := []string{"AA:BB:CC:DD:EE:01", "AA:BB:CC:DD:EE:02", "AA:BB:CC:DD:EE:03"}
	require.Len(t, out, len(want))
	for i, bssid := range want {
		require.Equal(t, bssid, out[i].BSSID, "source order must be preserved at index %d", i)
	}
}
