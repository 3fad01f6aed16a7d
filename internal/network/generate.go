// Synthetic street network generation using simplex noise.
// Produces a jittered lattice of streets around an origin coordinate plus the
// building footprints the schedule engine needs. Real OSM ingestion lives
// outside this repository; the generator exists so that a run can be set up
// without external data.
package network

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// metresPerDegree is the length of one degree of latitude.
const metresPerDegree = 111320.0

// GenConfig holds network generation parameters.
type GenConfig struct {
	Rows, Cols   int       // lattice size in nodes
	Spacing      float64   // metres between neighbouring intersections
	Origin       orb.Point // south-west corner (lon, lat)
	Jitter       float64   // max displacement as a fraction of Spacing
	PrimaryEvery int       // every n-th row/column is a primary road
	BuildingSize float64   // building footprint side in metres
	Seed         int64     // 0 = random
}

// DefaultGenConfig returns a neighbourhood-sized network.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Rows:         20,
		Cols:         20,
		Spacing:      80,
		Origin:       orb.Point{-1.6178, 54.9783},
		Jitter:       0.25,
		PrimaryEvery: 5,
		BuildingSize: 12,
		Seed:         0,
	}
}

// SmallTestConfig returns a tiny network for tests.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Rows:         5,
		Cols:         5,
		Spacing:      100,
		Origin:       orb.Point{-1.6178, 54.9783},
		Jitter:       0.2,
		PrimaryEvery: 2,
		BuildingSize: 10,
		Seed:         42,
	}
}

// Generate builds the street network and building footprints.
func Generate(cfg GenConfig) (*Graph, *Buildings) {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	// Independent noise layers for x/y displacement and land-use zoning.
	dxNoise := opensimplex.NewNormalized(seed)
	dyNoise := opensimplex.NewNormalized(seed + 1)
	zoneNoise := opensimplex.NewNormalized(seed + 2)

	g := NewGraph()
	b := NewBuildings()

	for r := 0; r < cfg.Rows; r++ {
		for c := 0; c < cfg.Cols; c++ {
			x := float64(c) * cfg.Spacing
			y := float64(r) * cfg.Spacing
			if cfg.Jitter > 0 {
				x += (octaveNoise(dxNoise, float64(c), float64(r), 2, 0.35, 0.5)*2 - 1) * cfg.Jitter * cfg.Spacing
				y += (octaveNoise(dyNoise, float64(c), float64(r), 2, 0.35, 0.5)*2 - 1) * cfg.Jitter * cfg.Spacing
			}
			id := latticeID(r, c, cfg.Cols)
			p := offset(cfg.Origin, x, y)
			// Lattice IDs are unique so AddNode cannot fail here.
			_ = g.AddNode(Node{ID: id, Point: p})

			zone := zoneFor(octaveNoise(zoneNoise, float64(c), float64(r), 3, 0.2, 0.5))
			b.Add(zone, footprint(p, cfg.Spacing*0.2, cfg.BuildingSize))
		}
	}

	for r := 0; r < cfg.Rows; r++ {
		for c := 0; c < cfg.Cols; c++ {
			id := latticeID(r, c, cfg.Cols)
			if c+1 < cfg.Cols {
				next := latticeID(r, c+1, cfg.Cols)
				_ = g.AddEdge(Edge{From: id, To: next, Length: geo.Distance(g.Point(id), g.Point(next)), Tag: roadTag(r, cfg.PrimaryEvery)})
			}
			if r+1 < cfg.Rows {
				next := latticeID(r+1, c, cfg.Cols)
				_ = g.AddEdge(Edge{From: id, To: next, Length: geo.Distance(g.Point(id), g.Point(next)), Tag: roadTag(c, cfg.PrimaryEvery)})
			}
		}
	}

	b.ensureEveryZone()
	return g, b
}

func latticeID(r, c, cols int) NodeID {
	return NodeID(r*cols + c + 1)
}

func roadTag(line, every int) string {
	if every > 0 && line%every == 0 {
		return TagPrimary
	}
	return TagResidential
}

// zoneFor maps a normalized noise value onto a land-use zone.
func zoneFor(v float64) Zone {
	switch {
	case v > 0.62:
		return ZoneSchool
	case v > 0.5:
		return ZoneCommercial
	default:
		return ZoneResidential
	}
}

// offset moves p east by dx and north by dy metres.
func offset(p orb.Point, dx, dy float64) orb.Point {
	lat := p[1] + dy/metresPerDegree
	lon := p[0] + dx/(metresPerDegree*math.Cos(lat*math.Pi/180))
	return orb.Point{lon, lat}
}

// footprint returns a square building of the given side, set back from the
// street corner p by setback metres to the north-east.
func footprint(p orb.Point, setback, side float64) orb.Polygon {
	sw := offset(p, setback, setback)
	ne := offset(p, setback+side, setback+side)
	return orb.Polygon{orb.Ring{
		sw,
		{ne[0], sw[1]},
		ne,
		{sw[0], ne[1]},
		sw,
	}}
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
