// Package oui provides the OUISet collaborator the mobile-hotspot filter
// policy consults. Per spec.md §9 Open Questions, the exact OUI list source
// is not part of the core — callers inject whichever Set implementation
// fits their deployment.
package oui

import "strings"

// Set reports whether a BSSID's OUI (its first 24 bits, i.e. the first
// three colon-separated octets) is a known mobile-hotspot vendor prefix.
type Set interface {
	Contains(oui string) bool
}

// StaticSet is a Set backed by an in-memory collection, suitable for tests
// and for composition roots that load the list from a flat file at
// startup.
type StaticSet struct {
	ouis map[string]struct{}
}

// NewStaticSet builds a StaticSet from a list of OUI prefixes
// ("AA:BB:CC"), case-insensitively.
func NewStaticSet(ouis []string) *StaticSet {
	s := &StaticSet{ouis: make(map[string]struct{}, len(ouis))}
	for _, o := range ouis {
		s.ouis[strings.ToUpper(o)] = struct{}{}
	}
	return s
}

func (s *StaticSet) Contains(oui string) bool {
	_, ok := s.ouis[strings.ToUpper(oui)]
	return ok
}

// OUIFromBSSID extracts the OUI ("AA:BB:CC") from a full BSSID
// ("AA:BB:CC:DD:EE:FF"). The caller is expected to have already validated
// the BSSID's shape.
func OUIFromBSSID(bssid string) string {
	parts := strings.Split(bssid, ":")
	if len(parts) < 3 {
		return ""
	}
	return strings.Join(parts[:3], ":")
}
