// Package broadphase finds the bodies whose bounding boxes overlap a query or each other.
//
// Bodies are stored per broad phase layer, each layer owning a dynamic AABB tree guarded by
// a reader/writer lock: queries share the lock, structural changes (add, remove, refit,
// Optimize) take it exclusively.
package broadphase

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/collector"
	"github.com/go-gl/mathgl/mgl64"
)

// BodyHit is a body whose box overlaps a query.
type BodyHit struct {
	BodyID actor.BodyID
}

func (h BodyHit) HitFraction() float64 { return 0 }

// CastResult is a body whose box is hit by a ray or a swept box at Fraction.
type CastResult struct {
	BodyID   actor.BodyID
	Fraction float64
}

func (r CastResult) HitFraction() float64 { return r.Fraction }

// Proxy is the broad phase view of a body.
type Proxy struct {
	ID     actor.BodyID
	Layer  actor.ObjectLayer
	Bounds actor.AABB
	// Displacement is the predicted move of the body over the next step
	Displacement mgl64.Vec3
}

// PairOwner reports whether body reports its overlap with other. For every overlapping pair
// exactly one side must own it.
type PairOwner func(body, other actor.BodyID) bool

// Interface is implemented by the tree based BroadPhase and by Grid.
type Interface interface {
	AddBodiesPrepare(proxies []Proxy) (*AddState, error)
	AddBodiesFinalize(state *AddState)
	AddBodiesAbort(state *AddState)
	RemoveBodies(ids []actor.BodyID)
	NotifyBodiesAABBChanged(proxies []Proxy, takeLock bool)
	LockModifications()
	UnlockModifications()

	CastRay(origin, direction mgl64.Vec3, c collector.Collector[CastResult], layerFilter BroadPhaseLayerFilter, objectFilter ObjectLayerFilter)
	CollideAABox(box actor.AABB, c collector.Collector[BodyHit], layerFilter BroadPhaseLayerFilter, objectFilter ObjectLayerFilter)
	CollidePoint(point mgl64.Vec3, c collector.Collector[BodyHit], layerFilter BroadPhaseLayerFilter, objectFilter ObjectLayerFilter)
	CollideSphere(center mgl64.Vec3, radius float64, c collector.Collector[BodyHit], layerFilter BroadPhaseLayerFilter, objectFilter ObjectLayerFilter)
	CastAABox(box actor.AABB, displacement mgl64.Vec3, c collector.Collector[CastResult], layerFilter BroadPhaseLayerFilter, objectFilter ObjectLayerFilter)

	// FindCollidingPairs calls fn for each pair formed by a body of active and a body whose
	// boxes are closer than margin and whose layers may collide.
	FindCollidingPairs(active []actor.BodyID, margin float64, owner PairOwner, objectVsLayer ObjectVsBroadPhaseLayerFilter, pairFilter ObjectLayerPairFilter, fn func(body1, body2 actor.BodyID))

	Optimize()
}

// AddState holds bodies prepared for insertion. Preparing takes no lock.
type AddState struct {
	layers []layerAdd
}

type layerAdd struct {
	layer   BroadPhaseLayer
	proxies []Proxy
	tree    *Tree
	leaves  []NodeIndex
}

func (s *AddState) Len() int {
	n := 0
	for _, l := range s.layers {
		n += len(l.proxies)
	}
	return n
}

type tracking struct {
	layer BroadPhaseLayer
	leaf  NodeIndex
}

type layerTree struct {
	mu   sync.RWMutex
	tree *Tree
	// version increases on every structural change
	version uint64
}

// BroadPhase stores one dynamic AABB tree per broad phase layer.
type BroadPhase struct {
	layers   []layerTree
	mapping  BroadPhaseLayerInterface
	tracking []tracking
	margin   float64
	logger   *slog.Logger
}

// NewBroadPhase creates a broad phase for body ids below maxBodies.
func NewBroadPhase(maxBodies int, mapping BroadPhaseLayerInterface, logger *slog.Logger) *BroadPhase {
	if logger == nil {
		logger = slog.Default()
	}
	bp := &BroadPhase{
		layers:   make([]layerTree, mapping.NumBroadPhaseLayers()),
		mapping:  mapping,
		tracking: make([]tracking, maxBodies),
		margin:   DefaultAABBMargin,
		logger:   logger,
	}
	for i := range bp.layers {
		bp.layers[i].tree = NewTree(bp.margin)
	}
	for i := range bp.tracking {
		bp.tracking[i].leaf = NullNode
	}
	return bp
}

// Contains reports whether the body is stored.
func (bp *BroadPhase) Contains(id actor.BodyID) bool {
	return int(id) < len(bp.tracking) && bp.tracking[id].leaf != NullNode
}

// FatBounds returns the box stored for a body.
func (bp *BroadPhase) FatBounds(id actor.BodyID) (actor.AABB, bool) {
	if !bp.Contains(id) {
		return actor.AABB{}, false
	}
	t := bp.tracking[id]
	l := &bp.layers[t.layer]
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree.LeafBounds(t.leaf), true
}

// Tree exposes the tree of a layer for inspection. It must not be used concurrently with
// modifications.
func (bp *BroadPhase) Tree(layer BroadPhaseLayer) *Tree {
	return bp.layers[layer].tree
}

// ========== MODIFICATIONS ==========

// AddBodiesPrepare builds one subtree per layer for the proxies without touching the broad
// phase, so it can run concurrently with queries.
func (bp *BroadPhase) AddBodiesPrepare(proxies []Proxy) (*AddState, error) {
	byLayer := make(map[BroadPhaseLayer][]Proxy)
	for _, p := range proxies {
		if int(p.ID) >= len(bp.tracking) {
			return nil, fmt.Errorf("body %d beyond %d: %w", p.ID, len(bp.tracking), ErrInvalidLayer)
		}
		layer := bp.mapping.BroadPhaseLayer(p.Layer)
		if int(layer) >= len(bp.layers) {
			return nil, fmt.Errorf("object layer %d maps to %d: %w", p.Layer, layer, ErrInvalidLayer)
		}
		byLayer[layer] = append(byLayer[layer], p)
	}

	state := &AddState{}
	for layer := range bp.layers {
		group, ok := byLayer[BroadPhaseLayer(layer)]
		if !ok {
			continue
		}
		leaves := make([]Leaf, len(group))
		for i, p := range group {
			leaves[i] = Leaf{Body: p.ID, Layer: p.Layer, Bounds: p.Bounds, Displacement: p.Displacement}
		}
		tree, indices := BuildTree(bp.margin, leaves)
		state.layers = append(state.layers, layerAdd{layer: BroadPhaseLayer(layer), proxies: group, tree: tree, leaves: indices})
	}
	return state, nil
}

// AddBodiesFinalize grafts the prepared subtrees, locking each layer once.
func (bp *BroadPhase) AddBodiesFinalize(state *AddState) {
	for _, add := range state.layers {
		l := &bp.layers[add.layer]
		l.mu.Lock()
		offset := l.tree.Merge(add.tree)
		l.version++
		for i, p := range add.proxies {
			bp.tracking[p.ID] = tracking{layer: add.layer, leaf: add.leaves[i] + offset}
		}
		l.mu.Unlock()
	}
	state.layers = nil
}

// AddBodiesAbort drops a prepared state. Nothing was inserted yet.
func (bp *BroadPhase) AddBodiesAbort(state *AddState) {
	state.layers = nil
}

func (bp *BroadPhase) RemoveBodies(ids []actor.BodyID) {
	for _, id := range ids {
		if !bp.Contains(id) {
			continue
		}
		t := bp.tracking[id]
		l := &bp.layers[t.layer]
		l.mu.Lock()
		l.tree.Remove(t.leaf)
		l.version++
		l.mu.Unlock()
		bp.tracking[id].leaf = NullNode
	}
}

// NotifyBodiesAABBChanged refits the leaves whose bodies left their fat box. With takeLock
// false the caller must hold LockModifications.
func (bp *BroadPhase) NotifyBodiesAABBChanged(proxies []Proxy, takeLock bool) {
	if takeLock {
		bp.LockModifications()
		defer bp.UnlockModifications()
	}
	for _, p := range proxies {
		if !bp.Contains(p.ID) {
			continue
		}
		t := bp.tracking[p.ID]
		l := &bp.layers[t.layer]
		if l.tree.Update(t.leaf, p.Bounds, p.Displacement) {
			l.version++
		}
	}
}

// LockModifications takes the write lock of every layer.
func (bp *BroadPhase) LockModifications() {
	for i := range bp.layers {
		bp.layers[i].mu.Lock()
	}
}

func (bp *BroadPhase) UnlockModifications() {
	for i := len(bp.layers) - 1; i >= 0; i-- {
		bp.layers[i].mu.Unlock()
	}
}

// Optimize rebuilds every layer that changed since its last build. The new tree is built
// under the read lock and swapped in under the write lock; when the layer changed in between
// the stale generation is discarded and the rebuild is repeated under the write lock.
func (bp *BroadPhase) Optimize() {
	bp.optimize(func(t *Tree) bool { return t.Dirty() })
}

// OptimizeIfNeeded only rebuilds layers whose quality degraded.
func (bp *BroadPhase) OptimizeIfNeeded() {
	bp.optimize(func(t *Tree) bool { return t.NeedsRebuild() })
}

func (bp *BroadPhase) optimize(needed func(t *Tree) bool) {
	for i := range bp.layers {
		l := &bp.layers[i]

		l.mu.RLock()
		if !needed(l.tree) {
			l.mu.RUnlock()
			continue
		}
		version := l.version
		before := l.tree.Height()
		fresh := l.tree.Rebuilt()
		l.mu.RUnlock()

		l.mu.Lock()
		discarded := l.version != version
		if discarded {
			fresh = l.tree.Rebuilt()
		}
		l.tree = fresh
		l.version++
		l.mu.Unlock()

		bp.logger.Debug("broad phase layer rebuilt",
			slog.Int("layer", i),
			slog.Int("bodies", fresh.Len()),
			slog.Int("height_before", before),
			slog.Int("height", fresh.Height()),
			slog.Bool("discarded", discarded))
	}
}

// ========== QUERIES ==========

func filters(layerFilter BroadPhaseLayerFilter, objectFilter ObjectLayerFilter) (BroadPhaseLayerFilter, ObjectLayerFilter) {
	if layerFilter == nil {
		layerFilter = AllBroadPhaseLayers
	}
	if objectFilter == nil {
		objectFilter = AllObjectLayers
	}
	return layerFilter, objectFilter
}

// eachLayer runs query on the tree of every layer accepted by the filter, holding its read lock.
func (bp *BroadPhase) eachLayer(layerFilter BroadPhaseLayerFilter, shouldEarlyOut func() bool, query func(t *Tree)) {
	for i := range bp.layers {
		if shouldEarlyOut() {
			return
		}
		if !layerFilter.ShouldCollide(BroadPhaseLayer(i)) {
			continue
		}
		l := &bp.layers[i]
		l.mu.RLock()
		query(l.tree)
		l.mu.RUnlock()
	}
}

func (bp *BroadPhase) CastRay(origin, direction mgl64.Vec3, c collector.Collector[CastResult], layerFilter BroadPhaseLayerFilter, objectFilter ObjectLayerFilter) {
	layerFilter, objectFilter = filters(layerFilter, objectFilter)
	bp.eachLayer(layerFilter, c.ShouldEarlyOut, func(t *Tree) {
		t.CastRay(origin, direction, c, objectFilter)
	})
}

func (bp *BroadPhase) CollideAABox(box actor.AABB, c collector.Collector[BodyHit], layerFilter BroadPhaseLayerFilter, objectFilter ObjectLayerFilter) {
	layerFilter, objectFilter = filters(layerFilter, objectFilter)
	bp.eachLayer(layerFilter, c.ShouldEarlyOut, func(t *Tree) {
		t.CollideAABox(box, c, objectFilter)
	})
}

func (bp *BroadPhase) CollidePoint(point mgl64.Vec3, c collector.Collector[BodyHit], layerFilter BroadPhaseLayerFilter, objectFilter ObjectLayerFilter) {
	layerFilter, objectFilter = filters(layerFilter, objectFilter)
	bp.eachLayer(layerFilter, c.ShouldEarlyOut, func(t *Tree) {
		t.CollidePoint(point, c, objectFilter)
	})
}

func (bp *BroadPhase) CollideSphere(center mgl64.Vec3, radius float64, c collector.Collector[BodyHit], layerFilter BroadPhaseLayerFilter, objectFilter ObjectLayerFilter) {
	layerFilter, objectFilter = filters(layerFilter, objectFilter)
	bp.eachLayer(layerFilter, c.ShouldEarlyOut, func(t *Tree) {
		t.CollideSphere(center, radius, c, objectFilter)
	})
}

func (bp *BroadPhase) CastAABox(box actor.AABB, displacement mgl64.Vec3, c collector.Collector[CastResult], layerFilter BroadPhaseLayerFilter, objectFilter ObjectLayerFilter) {
	layerFilter, objectFilter = filters(layerFilter, objectFilter)
	bp.eachLayer(layerFilter, c.ShouldEarlyOut, func(t *Tree) {
		t.CastAABox(box, displacement, c, objectFilter)
	})
}

// FindCollidingPairs queries the fat box of every active body, grown by margin, against the
// layers its object layer may collide with.
func (bp *BroadPhase) FindCollidingPairs(active []actor.BodyID, margin float64, owner PairOwner, objectVsLayer ObjectVsBroadPhaseLayerFilter, pairFilter ObjectLayerPairFilter, fn func(body1, body2 actor.BodyID)) {
	for _, id := range active {
		if !bp.Contains(id) {
			continue
		}
		t := bp.tracking[id]
		home := &bp.layers[t.layer]
		home.mu.RLock()
		box := home.tree.LeafBounds(t.leaf).Expand(margin)
		objectLayer := home.tree.nodes[t.leaf].layer
		home.mu.RUnlock()

		for i := range bp.layers {
			if !objectVsLayer.ShouldCollide(objectLayer, BroadPhaseLayer(i)) {
				continue
			}
			l := &bp.layers[i]
			l.mu.RLock()
			l.tree.walk(box.Overlaps, AllObjectLayers, func(n *node) bool {
				if n.body != id && pairFilter.ShouldCollide(objectLayer, n.layer) && owner(id, n.body) {
					fn(id, n.body)
				}
				return true
			})
			l.mu.RUnlock()
		}
	}
}

var _ Interface = (*BroadPhase)(nil)
