package delivery

import (
	"strings"
	"time"
)

var defaultZoneOffsets = map[string]int{
	"central":   0,
	"north":     15,
	"south":     15,
	"east":      20,
	"west":      20,
	"outskirts": 45,
}

// ZoneTable estimates delivery times as base + zone offset.
type ZoneTable struct {
	base     time.Duration
	fallback time.Duration
	offsets  map[string]time.Duration
}

// NewZoneTable builds the fixed zone lookup. Unknown zones use
// fallbackMinutes.
func NewZoneTable(baseMinutes, fallbackMinutes int) *ZoneTable {
	offsets := make(map[string]time.Duration, len(defaultZoneOffsets))
	for zone, minutes := range defaultZoneOffsets {
		offsets[zone] = time.Duration(minutes) * time.Minute
	}
	return &ZoneTable{
		base:     time.Duration(baseMinutes) * time.Minute,
		fallback: time.Duration(fallbackMinutes) * time.Minute,
		offsets:  offsets,
	}
}

// Offset returns the zone's extra travel time.
func (z *ZoneTable) Offset(zone string) time.Duration {
	if offset, ok := z.offsets[NormalizeZone(zone)]; ok {
		return offset
	}
	return z.fallback
}

// Duration is the total expected delivery time for zone.
func (z *ZoneTable) Duration(zone string) time.Duration {
	return z.base + z.Offset(zone)
}

// Estimate returns when an order dispatched at from should arrive.
func (z *ZoneTable) Estimate(zone string, from time.Time) time.Time {
	return from.Add(z.Duration(zone)).UTC()
}

// Known reports whether zone has a configured offset.
func (z *ZoneTable) Known(zone string) bool {
	_, ok := z.offsets[NormalizeZone(zone)]
	return ok
}

// NormalizeZone lower-cases and trims a zone name.
func NormalizeZone(zone string) string {
	return strings.ToLower(strings.TrimSpace(zone))
}
