package network

import (
	"math/rand"

	"github.com/paulmach/orb"
)

// Zone categorizes building footprints by land use.
type Zone uint8

const (
	ZoneResidential Zone = iota
	ZoneCommercial       // workplaces, shops, supermarkets, recreation
	ZoneSchool
)

// NumZones is the total number of zones.
const NumZones = 3

// ZoneName returns a human-readable name for a zone.
func ZoneName(z Zone) string {
	switch z {
	case ZoneResidential:
		return "residential"
	case ZoneCommercial:
		return "commercial"
	case ZoneSchool:
		return "school"
	default:
		return "unknown"
	}
}

// Buildings holds building footprint polygons keyed by zone.
type Buildings struct {
	byZone [NumZones][]orb.Polygon
}

// NewBuildings creates an empty footprint set.
func NewBuildings() *Buildings {
	return &Buildings{}
}

// Add appends a footprint to a zone.
func (b *Buildings) Add(z Zone, poly orb.Polygon) {
	if int(z) >= NumZones {
		return
	}
	b.byZone[z] = append(b.byZone[z], poly)
}

// Zone returns the footprints in a zone.
func (b *Buildings) Zone(z Zone) []orb.Polygon {
	if int(z) >= NumZones {
		return nil
	}
	return b.byZone[z]
}

// Count returns the number of footprints in a zone.
func (b *Buildings) Count(z Zone) int {
	return len(b.Zone(z))
}

// Pick returns a uniformly chosen footprint from a zone.
func (b *Buildings) Pick(z Zone, rng *rand.Rand) (orb.Polygon, bool) {
	polys := b.Zone(z)
	if len(polys) == 0 {
		return nil, false
	}
	return polys[rng.Intn(len(polys))], true
}

// ensureEveryZone moves footprints out of the most populated zone until no
// zone is empty, so every activity type has somewhere to happen.
func (b *Buildings) ensureEveryZone() {
	for z := Zone(0); z < NumZones; z++ {
		if len(b.byZone[z]) > 0 {
			continue
		}
		donor := Zone(0)
		for d := Zone(1); d < NumZones; d++ {
			if len(b.byZone[d]) > len(b.byZone[donor]) {
				donor = d
			}
		}
		n := len(b.byZone[donor])
		if n < 2 {
			continue
		}
		b.byZone[z] = append(b.byZone[z], b.byZone[donor][n-1])
		b.byZone[donor] = b.byZone[donor][:n-1]
	}
}
