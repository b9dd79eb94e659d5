package broadphase

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/collector"
	"github.com/go-gl/mathgl/mgl64"
)

func newFilledGrid(t *testing.T, proxies []Proxy) *Grid {
	t.Helper()
	grid := NewGrid(4.0, 1024, len(proxies)+16, DefaultLayers().BroadPhase)
	state, err := grid.AddBodiesPrepare(proxies)
	if err != nil {
		t.Fatalf("AddBodiesPrepare() error = %v", err)
	}
	grid.AddBodiesFinalize(state)
	return grid
}

func overlapHitSet(c *collector.AllHit[BodyHit]) []actor.BodyID {
	ids := make([]actor.BodyID, 0, len(c.Hits))
	for _, h := range c.Hits {
		ids = append(ids, h.BodyID)
	}
	slices.Sort(ids)
	return ids
}

// ========== HASHING ==========

func TestWorldToCell(t *testing.T) {
	grid := NewGrid(1.0, 16, 0, DefaultLayers().BroadPhase)

	tests := []struct {
		name     string
		position mgl64.Vec3
		expected CellKey
	}{
		{"origin", mgl64.Vec3{0, 0, 0}, CellKey{0, 0, 0}},
		{"positive", mgl64.Vec3{1.5, 2.3, 3.7}, CellKey{1, 2, 3}},
		{"negative", mgl64.Vec3{-1.5, -2.3, -3.7}, CellKey{-2, -3, -4}},
		{"fractional", mgl64.Vec3{0.5, 0.5, 0.5}, CellKey{0, 0, 0}},
		{"large", mgl64.Vec3{100.7, -200.3, 50.1}, CellKey{100, -201, 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := grid.worldToCell(tt.position)
			if result != tt.expected {
				t.Errorf("worldToCell(%v) = %v, want %v", tt.position, result, tt.expected)
			}
		})
	}
}

func TestHashCell(t *testing.T) {
	grid := NewGrid(1.0, 16, 0, DefaultLayers().BroadPhase) // mask = 15

	tests := []struct {
		name     string
		key      CellKey
		expected int
	}{
		{"origin", CellKey{0, 0, 0}, 0},
		{"simple", CellKey{1, 2, 3}, 6},
		{"negative", CellKey{-1, -2, -3}, 10},
		{"large", CellKey{100, 200, 300}, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := grid.hashCell(tt.key)
			if result < 0 || result >= len(grid.cells) {
				t.Fatalf("hashCell(%v) = %d, out of range [0, %d)", tt.key, result, len(grid.cells))
			}
			if result != tt.expected {
				t.Errorf("hashCell(%v) = %d, want %d", tt.key, result, tt.expected)
			}
		})
	}
}

func TestHashCellDistribution(t *testing.T) {
	grid := NewGrid(1.0, 1024, 0, DefaultLayers().BroadPhase)

	cellCounts := make(map[int]int)
	for x := -50; x <= 50; x++ {
		for y := -50; y <= 50; y++ {
			for z := -50; z <= 50; z++ {
				cellCounts[grid.hashCell(CellKey{x, y, z})]++
			}
		}
	}

	minCount := int(^uint(0) >> 1)
	maxCount := 0
	for _, count := range cellCounts {
		minCount = min(minCount, count)
		maxCount = max(maxCount, count)
	}
	t.Logf("hash distribution: buckets=%d min=%d max=%d", len(cellCounts), minCount, maxCount)

	if len(cellCounts) < len(grid.cells)/2 {
		t.Errorf("only %d of %d buckets used", len(cellCounts), len(grid.cells))
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {16, 16}, {17, 32}, {1000, 1024},
	}
	for _, tt := range tests {
		if got := nextPowerOfTwo(tt.n); got != tt.want {
			t.Errorf("nextPowerOfTwo(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

// ========== MODIFICATIONS ==========

func TestGrid_LargeBodies(t *testing.T) {
	floor := actor.AABB{Min: mgl64.Vec3{-500, -1, -500}, Max: mgl64.Vec3{500, 0, 500}}
	grid := newFilledGrid(t, []Proxy{
		{ID: 0, Layer: LayerNonMoving, Bounds: floor},
		{ID: 1, Layer: LayerMoving, Bounds: actor.AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{1, 1, 1}}},
	})

	if !grid.bodies[0].large || len(grid.large) != 1 {
		t.Fatalf("floor not stored as a large body")
	}

	c := collector.NewAllHit[BodyHit]()
	grid.CollidePoint(mgl64.Vec3{300, -0.5, -300}, c, nil, nil)
	if got := overlapHitSet(c); !slices.Equal(got, []actor.BodyID{0}) {
		t.Errorf("CollidePoint() = %v, want [0]", got)
	}

	// shrinking moves the body back into the cells
	grid.NotifyBodiesAABBChanged([]Proxy{{ID: 0, Layer: LayerNonMoving, Bounds: actor.AABB{Min: mgl64.Vec3{2, 2, 2}, Max: mgl64.Vec3{3, 3, 3}}}}, true)
	if grid.bodies[0].large || len(grid.large) != 0 {
		t.Errorf("shrunk body still in the large list")
	}

	grid.RemoveBodies([]actor.BodyID{0, 1})
	c.Reset()
	grid.CollideAABox(actor.AABB{Min: mgl64.Vec3{-10, -10, -10}, Max: mgl64.Vec3{10, 10, 10}}, c, nil, nil)
	if c.HadHit() {
		t.Errorf("removed bodies still reported: %v", c.Hits)
	}
}

func TestGrid_NotifyMovesBody(t *testing.T) {
	box := actor.AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{1, 1, 1}}
	grid := newFilledGrid(t, []Proxy{{ID: 3, Layer: LayerMoving, Bounds: box}})

	grid.NotifyBodiesAABBChanged([]Proxy{{ID: 3, Layer: LayerMoving, Bounds: box.Translate(mgl64.Vec3{20, 0, 0})}}, true)

	c := collector.NewAllHit[BodyHit]()
	grid.CollidePoint(mgl64.Vec3{0.5, 0.5, 0.5}, c, nil, nil)
	if c.HadHit() {
		t.Errorf("body found at its old position")
	}
	grid.CollidePoint(mgl64.Vec3{20.5, 0.5, 0.5}, c, nil, nil)
	if len(c.Hits) != 1 || c.Hits[0].BodyID != 3 {
		t.Errorf("body not found at its new position: %v", c.Hits)
	}
}

// ========== QUERIES ==========

// A tree without margin stores the exact boxes, so it must report what the grid reports.
func TestGrid_MatchesTree(t *testing.T) {
	rng := rand.New(rand.NewSource(20))
	proxies := randomProxies(rng, 300)
	grid := newFilledGrid(t, proxies)

	tree := NewTree(0)
	for _, p := range proxies {
		tree.Insert(p.ID, p.Layer, p.Bounds, mgl64.Vec3{})
	}

	t.Run("CollideAABox", func(t *testing.T) {
		for i := 0; i < 200; i++ {
			query := randomBox(rng)
			fromGrid := collector.NewAllHit[BodyHit]()
			grid.CollideAABox(query, fromGrid, nil, nil)
			fromTree := collector.NewAllHit[BodyHit]()
			tree.CollideAABox(query, fromTree, AllObjectLayers)

			if a, b := overlapHitSet(fromGrid), overlapHitSet(fromTree); !slices.Equal(a, b) {
				t.Fatalf("query %v: grid %v, tree %v", query, a, b)
			}
		}
	})

	t.Run("CastRay", func(t *testing.T) {
		for i := 0; i < 200; i++ {
			origin := randomVec3(rng, 60)
			direction := randomVec3(rng, 120)
			fromGrid := collector.NewAllHit[CastResult]()
			grid.CastRay(origin, direction, fromGrid, nil, nil)
			fromTree := collector.NewAllHit[CastResult]()
			tree.CastRay(origin, direction, fromTree, AllObjectLayers)

			if a, b := rayHitSet(fromGrid), rayHitSet(fromTree); !slices.Equal(a, b) {
				t.Fatalf("ray %d: grid %v, tree %v", i, a, b)
			}
		}
	})
}

func TestGrid_FindCollidingPairs(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	proxies := randomProxies(rng, 150)
	grid := newFilledGrid(t, proxies)
	layers := DefaultLayers()

	var active []actor.BodyID
	for _, p := range proxies {
		if p.Layer == LayerMoving {
			active = append(active, p.ID)
		}
	}
	owner := func(body, other actor.BodyID) bool {
		return proxies[other].Layer == LayerNonMoving || body < other
	}

	found := make(map[pair]int)
	grid.FindCollidingPairs(active, 0, owner, layers.ObjectVsLayer, layers.ObjectLayerPair, func(a, b actor.BodyID) {
		found[orderedPair(a, b)]++
	})

	expected := 0
	for i, p := range proxies {
		for _, q := range proxies[i+1:] {
			if !layers.ObjectLayerPair.ShouldCollide(p.Layer, q.Layer) || !p.Bounds.Overlaps(q.Bounds) {
				continue
			}
			expected++
			if found[orderedPair(p.ID, q.ID)] != 1 {
				t.Errorf("pair (%d, %d) reported %d times", p.ID, q.ID, found[orderedPair(p.ID, q.ID)])
			}
		}
	}
	if len(found) != expected {
		t.Errorf("found %d pairs, want %d", len(found), expected)
	}
}
