// Package filter implements C4: the stage-1 sanity checks every Measurement
// candidate must pass before it reaches the batcher, plus the optional
// OUI-based mobile-hotspot policy. Checks run in the order spec.md §4.4
// lists them; the first failure drops the record with a categorized
// reason.
package filter

import (
	"regexp"
	"time"

	"github.com/wifi-pipeline/transformer/internal/config"
	"github.com/wifi-pipeline/transformer/internal/model"
	"github.com/wifi-pipeline/transformer/internal/oui"
)

// Reason categorizes why a Measurement was dropped (or flagged), for the
// caller's counters.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonBadBSSID             Reason = "bad_bssid"
	ReasonBadCoordinates       Reason = "bad_coordinates"
	ReasonRSSIOutOfRange       Reason = "filtered_rssi"
	ReasonAccuracyExceeded     Reason = "filtered_accuracy"
	ReasonTimestampImplausible Reason = "filtered_timestamp"
	ReasonMobileHotspot        Reason = "filtered_mobile_hotspot"
)

var bssidPattern = regexp.MustCompile(`^[0-9A-Fa-f]{2}(:[0-9A-Fa-f]{2}){5}$`)

var earliestPlausible = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

// Result is the outcome of running one Measurement through the filter
// chain.
type Result struct {
	Keep    bool
	Reason  Reason
	Flagged bool
}

type Filter struct {
	cfg    config.FilterConfig
	ouiSet oui.Set
	now    func() time.Time
}

func NewFilter(cfg config.FilterConfig, ouiSet oui.Set) *Filter {
	return &Filter{cfg: cfg, ouiSet: ouiSet, now: time.Now}
}

// Apply runs the sanity checks against m, returning the accept/drop
// decision. When the policy's action is FLAG, Apply mutates m in place to
// set IsMobileHotspot, but still returns Keep=true.
func (f *Filter) Apply(m *model.Measurement) Result {
	if !bssidPattern.MatchString(m.BSSID) {
		return Result{Keep: false, Reason: ReasonBadBSSID}
	}

	if !validCoordinates(m.Latitude, m.Longitude) {
		return Result{Keep: false, Reason: ReasonBadCoordinates}
	}

	if m.RSSI < -100 || m.RSSI > 0 {
		return Result{Keep: false, Reason: ReasonRSSIOutOfRange}
	}

	threshold := f.cfg.AccuracyThresholdM
	if threshold <= 0 {
		threshold = 150.0
	}
	if m.LocationAccuracy > threshold {
		return Result{Keep: false, Reason: ReasonAccuracyExceeded}
	}

	if !f.timestampPlausible(m.MeasurementTimestamp) {
		return Result{Keep: false, Reason: ReasonTimestampImplausible}
	}

	if f.cfg.MobileHotspot.Enabled && f.ouiSet != nil {
		prefix := oui.OUIFromBSSID(m.BSSID)
		if f.ouiSet.Contains(prefix) {
			switch f.cfg.MobileHotspot.Action {
			case config.HotspotActionExclude:
				return Result{Keep: false, Reason: ReasonMobileHotspot}
			case config.HotspotActionFlag:
				flagged := true
				m.IsMobileHotspot = &flagged
				return Result{Keep: true, Flagged: true}
			case config.HotspotActionLogOnly:
				return Result{Keep: true, Flagged: true}
			}
		}
	}

	return Result{Keep: true}
}

func validCoordinates(lat, lon float64) bool {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	if lat == 0 && lon == 0 {
		return false
	}
	return true
}

func (f *Filter) timestampPlausible(ts time.Time) bool {
	if ts.IsZero() {
		return false
	}
	upper := f.now().Add(24 * time.Hour)
	return !ts.Before(earliestPlausible) && !ts.After(upper)
}
