package network

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLattice(t *testing.T) {
	cfg := SmallTestConfig()
	g, b := Generate(cfg)

	assert.Equal(t, cfg.Rows*cfg.Cols, g.Len())
	assert.Equal(t, cfg.Rows*(cfg.Cols-1)+cfg.Cols*(cfg.Rows-1), g.EdgeCount())
	assert.Len(t, g.Components(), 1)

	for _, id := range g.Nodes() {
		for _, nb := range g.Neighbors(id) {
			l, ok := g.EdgeLength(id, nb)
			require.True(t, ok)
			// Jitter moves each end by at most 20% of the spacing on each axis.
			assert.Greater(t, l, cfg.Spacing*0.3)
			assert.Less(t, l, cfg.Spacing*1.7)
			assert.Contains(t, []string{TagPrimary, TagResidential}, g.EdgeTag(id, nb))
		}
	}

	total := 0
	for z := Zone(0); z < NumZones; z++ {
		assert.NotZero(t, b.Count(z), ZoneName(z))
		total += b.Count(z)
	}
	assert.Equal(t, g.Len(), total)
}

func TestGenerateDeterministic(t *testing.T) {
	g1, b1 := Generate(SmallTestConfig())
	g2, b2 := Generate(SmallTestConfig())

	for _, id := range g1.Nodes() {
		assert.Equal(t, g1.Point(id), g2.Point(id))
	}
	for z := Zone(0); z < NumZones; z++ {
		assert.Equal(t, b1.Zone(z), b2.Zone(z))
	}
}

func TestBuildingsPick(t *testing.T) {
	_, b := Generate(SmallTestConfig())
	rng := rand.New(rand.NewSource(1))

	poly, ok := b.Pick(ZoneResidential, rng)
	require.True(t, ok)
	assert.Len(t, poly[0], 5)

	_, ok = NewBuildings().Pick(ZoneSchool, rng)
	assert.False(t, ok)
	assert.Equal(t, "unknown", ZoneName(Zone(9)))
}
