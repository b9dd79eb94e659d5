package broadphase

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/collector"
	"github.com/go-gl/mathgl/mgl64"
)

// maxCellsPerBody is the span above which a body is kept in the large list, tested by every
// query instead of being stored in each cell.
const maxCellsPerBody = 64

// CellKey is the integer coordinate of a cell.
type CellKey struct {
	X, Y, Z int
}

// Cell holds the ids of the bodies overlapping it.
type Cell struct {
	bodies []actor.BodyID
}

type gridBody struct {
	present    bool
	large      bool
	layer      actor.ObjectLayer
	broadPhase BroadPhaseLayer
	bounds     actor.AABB
}

// Grid is a uniform spatial hash. Cells are hashed into a power of two table, so distinct
// cells may share a bucket; candidates are always checked against their exact bounds.
type Grid struct {
	mu       sync.RWMutex
	cellSize float64
	cells    []Cell
	cellMask int
	mapping  BroadPhaseLayerInterface
	bodies   []gridBody
	large    []actor.BodyID
}

// NewGrid creates a grid of numCells buckets (rounded up to a power of two) for body ids
// below maxBodies.
func NewGrid(cellSize float64, numCells int, maxBodies int, mapping BroadPhaseLayerInterface) *Grid {
	numCells = nextPowerOfTwo(numCells)

	cells := make([]Cell, numCells)
	for i := range cells {
		cells[i].bodies = make([]actor.BodyID, 0, 8)
	}

	return &Grid{
		cellSize: cellSize,
		cells:    cells,
		cellMask: numCells - 1,
		mapping:  mapping,
		bodies:   make([]gridBody, maxBodies),
	}
}

// nextPowerOfTwo rounds n up to a power of two
func nextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n
}

// worldToCell converts a world position to cell coordinates
func (g *Grid) worldToCell(pos mgl64.Vec3) CellKey {
	return CellKey{
		X: int(math.Floor(pos.X() / g.cellSize)),
		Y: int(math.Floor(pos.Y() / g.cellSize)),
		Z: int(math.Floor(pos.Z() / g.cellSize)),
	}
}

// hashCell maps a cell to its bucket
func (g *Grid) hashCell(key CellKey) int {
	h := (key.X * 73856093) ^ (key.Y * 19349663) ^ (key.Z * 83492791)
	return h & g.cellMask
}

func (g *Grid) cellRange(box actor.AABB) (CellKey, CellKey, int) {
	const limit = 1 << 20
	minCell := g.worldToCell(box.Min)
	maxCell := g.worldToCell(box.Max)
	dx := maxCell.X - minCell.X + 1
	dy := maxCell.Y - minCell.Y + 1
	dz := maxCell.Z - minCell.Z + 1
	if dx > limit || dy > limit || dz > limit {
		return minCell, maxCell, math.MaxInt
	}
	return minCell, maxCell, dx * dy * dz
}

func (g *Grid) forCells(minCell, maxCell CellKey, fn func(cell *Cell)) {
	for x := minCell.X; x <= maxCell.X; x++ {
		for y := minCell.Y; y <= maxCell.Y; y++ {
			for z := minCell.Z; z <= maxCell.Z; z++ {
				fn(&g.cells[g.hashCell(CellKey{x, y, z})])
			}
		}
	}
}

// ========== MODIFICATIONS ==========

func (g *Grid) insert(id actor.BodyID) {
	b := &g.bodies[id]
	minCell, maxCell, count := g.cellRange(b.bounds)
	if count > maxCellsPerBody {
		b.large = true
		g.large = append(g.large, id)
		return
	}
	b.large = false
	g.forCells(minCell, maxCell, func(cell *Cell) {
		// several cells of a body may hash to the same bucket
		if len(cell.bodies) == 0 || cell.bodies[len(cell.bodies)-1] != id {
			cell.bodies = append(cell.bodies, id)
		}
	})
}

func (g *Grid) remove(id actor.BodyID) {
	b := &g.bodies[id]
	if b.large {
		g.large = slices.DeleteFunc(g.large, func(other actor.BodyID) bool { return other == id })
		return
	}
	minCell, maxCell, _ := g.cellRange(b.bounds)
	g.forCells(minCell, maxCell, func(cell *Cell) {
		cell.bodies = slices.DeleteFunc(cell.bodies, func(other actor.BodyID) bool { return other == id })
	})
}

func (g *Grid) AddBodiesPrepare(proxies []Proxy) (*AddState, error) {
	for _, p := range proxies {
		if int(p.ID) >= len(g.bodies) {
			return nil, fmt.Errorf("body %d beyond %d: %w", p.ID, len(g.bodies), ErrInvalidLayer)
		}
		if layer := g.mapping.BroadPhaseLayer(p.Layer); int(layer) >= g.mapping.NumBroadPhaseLayers() {
			return nil, fmt.Errorf("object layer %d maps to %d: %w", p.Layer, layer, ErrInvalidLayer)
		}
	}
	return &AddState{layers: []layerAdd{{proxies: slices.Clone(proxies)}}}, nil
}

func (g *Grid) AddBodiesFinalize(state *AddState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, add := range state.layers {
		for _, p := range add.proxies {
			g.bodies[p.ID] = gridBody{
				present:    true,
				layer:      p.Layer,
				broadPhase: g.mapping.BroadPhaseLayer(p.Layer),
				bounds:     p.Bounds.ExpandDirection(p.Displacement),
			}
			g.insert(p.ID)
		}
	}
	state.layers = nil
}

func (g *Grid) AddBodiesAbort(state *AddState) {
	state.layers = nil
}

func (g *Grid) RemoveBodies(ids []actor.BodyID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		if int(id) >= len(g.bodies) || !g.bodies[id].present {
			continue
		}
		g.remove(id)
		g.bodies[id] = gridBody{}
	}
}

func (g *Grid) NotifyBodiesAABBChanged(proxies []Proxy, takeLock bool) {
	if takeLock {
		g.mu.Lock()
		defer g.mu.Unlock()
	}
	for _, p := range proxies {
		if int(p.ID) >= len(g.bodies) || !g.bodies[p.ID].present {
			continue
		}
		b := &g.bodies[p.ID]
		swept := p.Bounds.ExpandDirection(p.Displacement)
		oldMin, oldMax, _ := g.cellRange(b.bounds)
		newMin, newMax, count := g.cellRange(swept)
		if !b.large && count <= maxCellsPerBody && oldMin == newMin && oldMax == newMax {
			b.bounds = swept
			continue
		}
		g.remove(p.ID)
		b.bounds = swept
		g.insert(p.ID)
	}
}

func (g *Grid) LockModifications()   { g.mu.Lock() }
func (g *Grid) UnlockModifications() { g.mu.Unlock() }

// Optimize sorts the buckets so that queries report bodies in a stable order.
func (g *Grid) Optimize() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.cells {
		if len(g.cells[i].bodies) > 1 {
			slices.Sort(g.cells[i].bodies)
		}
	}
	slices.Sort(g.large)
}

// ========== QUERIES ==========

// candidates calls fn once per stored body that may overlap box, until fn returns false.
func (g *Grid) candidates(box actor.AABB, fn func(id actor.BodyID, b *gridBody) bool) {
	seen := make(map[actor.BodyID]struct{})
	visit := func(id actor.BodyID) bool {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
		return fn(id, &g.bodies[id])
	}

	for _, id := range g.large {
		if !visit(id) {
			return
		}
	}

	minCell, maxCell, count := g.cellRange(box)
	if count > len(g.cells) {
		// cheaper to scan the bodies than the cells
		for id := range g.bodies {
			if g.bodies[id].present && !visit(actor.BodyID(id)) {
				return
			}
		}
		return
	}

	stop := false
	g.forCells(minCell, maxCell, func(cell *Cell) {
		for _, id := range cell.bodies {
			if stop {
				return
			}
			if !visit(id) {
				stop = true
			}
		}
	})
}

func (g *Grid) overlapQuery(box actor.AABB, test func(bounds actor.AABB) bool, c collector.Collector[BodyHit], layerFilter BroadPhaseLayerFilter, objectFilter ObjectLayerFilter) {
	layerFilter, objectFilter = filters(layerFilter, objectFilter)
	g.mu.RLock()
	defer g.mu.RUnlock()
	g.candidates(box, func(id actor.BodyID, b *gridBody) bool {
		if layerFilter.ShouldCollide(b.broadPhase) && objectFilter.ShouldCollide(b.layer) && test(b.bounds) {
			c.AddHit(BodyHit{BodyID: id})
		}
		return !c.ShouldEarlyOut()
	})
}

func (g *Grid) castQuery(box actor.AABB, fraction func(bounds actor.AABB) float64, c collector.Collector[CastResult], layerFilter BroadPhaseLayerFilter, objectFilter ObjectLayerFilter) {
	layerFilter, objectFilter = filters(layerFilter, objectFilter)
	g.mu.RLock()
	defer g.mu.RUnlock()
	g.candidates(box, func(id actor.BodyID, b *gridBody) bool {
		if !layerFilter.ShouldCollide(b.broadPhase) || !objectFilter.ShouldCollide(b.layer) {
			return true
		}
		if f := fraction(b.bounds); f <= 1 && f < c.EarlyOutFraction() {
			c.AddHit(CastResult{BodyID: id, Fraction: f})
		}
		return !c.ShouldEarlyOut()
	})
}

func (g *Grid) CastRay(origin, direction mgl64.Vec3, c collector.Collector[CastResult], layerFilter BroadPhaseLayerFilter, objectFilter ObjectLayerFilter) {
	invDirection := actor.InverseDirection(direction)
	g.castQuery(actor.AABBFromPoints(origin, origin.Add(direction)), func(bounds actor.AABB) float64 {
		return bounds.RayHitFraction(origin, invDirection)
	}, c, layerFilter, objectFilter)
}

func (g *Grid) CastAABox(box actor.AABB, displacement mgl64.Vec3, c collector.Collector[CastResult], layerFilter BroadPhaseLayerFilter, objectFilter ObjectLayerFilter) {
	origin := box.Center()
	extent := box.Extent()
	invDirection := actor.InverseDirection(displacement)
	g.castQuery(box.ExpandDirection(displacement), func(bounds actor.AABB) float64 {
		expanded := actor.AABB{Min: bounds.Min.Sub(extent), Max: bounds.Max.Add(extent)}
		return expanded.RayHitFraction(origin, invDirection)
	}, c, layerFilter, objectFilter)
}

func (g *Grid) CollideAABox(box actor.AABB, c collector.Collector[BodyHit], layerFilter BroadPhaseLayerFilter, objectFilter ObjectLayerFilter) {
	g.overlapQuery(box, box.Overlaps, c, layerFilter, objectFilter)
}

func (g *Grid) CollidePoint(point mgl64.Vec3, c collector.Collector[BodyHit], layerFilter BroadPhaseLayerFilter, objectFilter ObjectLayerFilter) {
	g.overlapQuery(actor.AABB{Min: point, Max: point}, func(bounds actor.AABB) bool {
		return bounds.ContainsPoint(point)
	}, c, layerFilter, objectFilter)
}

func (g *Grid) CollideSphere(center mgl64.Vec3, radius float64, c collector.Collector[BodyHit], layerFilter BroadPhaseLayerFilter, objectFilter ObjectLayerFilter) {
	radiusSq := radius * radius
	box := actor.AABB{Min: center, Max: center}.Expand(radius)
	g.overlapQuery(box, func(bounds actor.AABB) bool {
		return bounds.ClosestPoint(center).Sub(center).LenSqr() <= radiusSq
	}, c, layerFilter, objectFilter)
}

func (g *Grid) FindCollidingPairs(active []actor.BodyID, margin float64, owner PairOwner, objectVsLayer ObjectVsBroadPhaseLayerFilter, pairFilter ObjectLayerPairFilter, fn func(body1, body2 actor.BodyID)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, id := range active {
		if int(id) >= len(g.bodies) || !g.bodies[id].present {
			continue
		}
		body := g.bodies[id]
		box := body.bounds.Expand(margin)
		g.candidates(box, func(other actor.BodyID, b *gridBody) bool {
			if other != id &&
				objectVsLayer.ShouldCollide(body.layer, b.broadPhase) &&
				pairFilter.ShouldCollide(body.layer, b.layer) &&
				box.Overlaps(b.bounds) &&
				owner(id, other) {
				fn(id, other)
			}
			return true
		})
	}
}

var _ Interface = (*Grid)(nil)
