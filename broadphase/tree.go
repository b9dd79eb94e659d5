package broadphase

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/collector"
	"github.com/go-gl/mathgl/mgl64"
)

// NodeIndex addresses a node in the tree arena.
type NodeIndex int32

// NullNode is the index of no node.
const NullNode NodeIndex = -1

const (
	// DefaultAABBMargin fattens leaf boxes so small moves do not touch the tree.
	DefaultAABBMargin = 0.1
	// displacementMultiplier scales the predicted displacement added to a leaf box.
	displacementMultiplier = 2.0
)

var errInvalidTree = errors.New("broadphase: invalid tree")

// node is a leaf (height 0), an internal node (height > 0) or a free slot (height -1, parent
// links the free list).
type node struct {
	bounds         actor.AABB
	parent         NodeIndex
	child1, child2 NodeIndex
	height         int32

	body  actor.BodyID
	layer actor.ObjectLayer
}

func (n *node) isLeaf() bool {
	return n.height == 0
}

// Tree is a dynamic bounding volume hierarchy stored in a flat arena. Leaf indices stay
// valid until the leaf is removed, including across Rebuilt.
type Tree struct {
	nodes     []node
	root      NodeIndex
	freeList  NodeIndex
	leafCount int
	margin    float64

	// updates counts structural changes since the last rebuild
	updates int
}

// NewTree returns an empty tree fattening its leaves by margin.
func NewTree(margin float64) *Tree {
	return &Tree{root: NullNode, freeList: NullNode, margin: margin}
}

func (t *Tree) allocate() NodeIndex {
	if t.freeList != NullNode {
		index := t.freeList
		t.freeList = t.nodes[index].parent
		t.nodes[index] = node{parent: NullNode, child1: NullNode, child2: NullNode, body: actor.InvalidBodyID}
		return index
	}
	t.nodes = append(t.nodes, node{parent: NullNode, child1: NullNode, child2: NullNode, body: actor.InvalidBodyID})
	return NodeIndex(len(t.nodes) - 1)
}

func (t *Tree) free(index NodeIndex) {
	t.nodes[index] = node{parent: t.freeList, child1: NullNode, child2: NullNode, height: -1, body: actor.InvalidBodyID}
	t.freeList = index
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return t.leafCount
}

// Height returns the height of the root, 0 for a single leaf and -1 for an empty tree.
func (t *Tree) Height() int {
	if t.root == NullNode {
		return -1
	}
	return int(t.nodes[t.root].height)
}

// Bounds returns the root box.
func (t *Tree) Bounds() actor.AABB {
	if t.root == NullNode {
		return actor.EmptyAABB()
	}
	return t.nodes[t.root].bounds
}

// LeafBounds returns the fat box stored for a leaf.
func (t *Tree) LeafBounds(leaf NodeIndex) actor.AABB {
	return t.nodes[leaf].bounds
}

// LeafBody returns the body stored in a leaf.
func (t *Tree) LeafBody(leaf NodeIndex) actor.BodyID {
	return t.nodes[leaf].body
}

// Dirty reports whether the tree changed since it was last built from scratch.
func (t *Tree) Dirty() bool {
	return t.updates > 0
}

// NeedsRebuild reports whether incremental changes degraded the tree enough to rebuild it.
func (t *Tree) NeedsRebuild() bool {
	if t.leafCount < 4 || t.updates == 0 {
		return false
	}
	optimal := 0
	for n := 1; n < t.leafCount; n <<= 1 {
		optimal++
	}
	return t.Height() > 2*optimal+2 || t.updates > 4*t.leafCount
}

func (t *Tree) fatten(bounds actor.AABB, displacement mgl64.Vec3) actor.AABB {
	return bounds.Expand(t.margin).ExpandDirection(displacement.Mul(displacementMultiplier))
}

// ========== MUTATION ==========

// Insert adds a leaf for body and returns its index.
func (t *Tree) Insert(body actor.BodyID, layer actor.ObjectLayer, bounds actor.AABB, displacement mgl64.Vec3) NodeIndex {
	leaf := t.allocate()
	t.nodes[leaf].bounds = t.fatten(bounds, displacement)
	t.nodes[leaf].body = body
	t.nodes[leaf].layer = layer
	t.leafCount++
	t.updates++

	t.insertNode(leaf)
	return leaf
}

// Remove deletes a leaf. The index may be reused by a later insertion.
func (t *Tree) Remove(leaf NodeIndex) {
	t.removeNode(leaf)
	t.free(leaf)
	t.leafCount--
	t.updates++
}

// Update refits a leaf when bounds swept by displacement left its fat box. It reports
// whether the tree changed.
func (t *Tree) Update(leaf NodeIndex, bounds actor.AABB, displacement mgl64.Vec3) bool {
	if t.nodes[leaf].bounds.Contains(bounds.ExpandDirection(displacement)) {
		return false
	}

	t.removeNode(leaf)
	t.nodes[leaf].bounds = t.fatten(bounds, displacement)
	t.insertNode(leaf)
	t.updates++
	return true
}

// insertNode attaches a detached leaf or subtree, picking the sibling with the smallest
// surface area increase.
func (t *Tree) insertNode(index NodeIndex) {
	if t.root == NullNode {
		t.root = index
		t.nodes[index].parent = NullNode
		return
	}

	box := t.nodes[index].bounds
	sibling := t.root
	for !t.nodes[sibling].isLeaf() {
		n := &t.nodes[sibling]
		area := n.bounds.SurfaceArea()
		combinedArea := n.bounds.Encapsulate(box).SurfaceArea()

		// Cost of a new parent for this node and the inserted one
		cost := 2.0 * combinedArea
		// Minimum cost of pushing the insertion further down
		inheritanceCost := 2.0 * (combinedArea - area)

		cost1 := t.descendCost(n.child1, box) + inheritanceCost
		cost2 := t.descendCost(n.child2, box) + inheritanceCost

		if cost < cost1 && cost < cost2 {
			break
		}
		if cost1 < cost2 {
			sibling = n.child1
		} else {
			sibling = n.child2
		}
	}

	oldParent := t.nodes[sibling].parent
	newParent := t.allocate()
	p := &t.nodes[newParent]
	p.parent = oldParent
	p.bounds = box.Encapsulate(t.nodes[sibling].bounds)
	p.height = max(t.nodes[sibling].height, t.nodes[index].height) + 1
	p.child1 = sibling
	p.child2 = index
	t.nodes[sibling].parent = newParent
	t.nodes[index].parent = newParent

	if oldParent == NullNode {
		t.root = newParent
	} else if t.nodes[oldParent].child1 == sibling {
		t.nodes[oldParent].child1 = newParent
	} else {
		t.nodes[oldParent].child2 = newParent
	}

	t.refit(t.nodes[index].parent)
}

func (t *Tree) descendCost(child NodeIndex, box actor.AABB) float64 {
	c := &t.nodes[child]
	combined := box.Encapsulate(c.bounds).SurfaceArea()
	if c.isLeaf() {
		return combined
	}
	return combined - c.bounds.SurfaceArea()
}

func (t *Tree) removeNode(index NodeIndex) {
	if index == t.root {
		t.root = NullNode
		return
	}

	parent := t.nodes[index].parent
	grandParent := t.nodes[parent].parent
	sibling := t.nodes[parent].child1
	if sibling == index {
		sibling = t.nodes[parent].child2
	}

	if grandParent == NullNode {
		t.root = sibling
		t.nodes[sibling].parent = NullNode
		t.free(parent)
		return
	}

	if t.nodes[grandParent].child1 == parent {
		t.nodes[grandParent].child1 = sibling
	} else {
		t.nodes[grandParent].child2 = sibling
	}
	t.nodes[sibling].parent = grandParent
	t.free(parent)
	t.refit(grandParent)
}

// refit walks to the root, rotating unbalanced nodes and fixing boxes and heights.
func (t *Tree) refit(index NodeIndex) {
	for index != NullNode {
		index = t.balance(index)

		n := &t.nodes[index]
		c1, c2 := &t.nodes[n.child1], &t.nodes[n.child2]
		n.height = 1 + max(c1.height, c2.height)
		n.bounds = c1.bounds.Encapsulate(c2.bounds)

		index = n.parent
	}
}

// balance rotates a child up when the heights of the subtrees of a differ by more than one
// and returns the root of the rotated subtree.
func (t *Tree) balance(a NodeIndex) NodeIndex {
	A := &t.nodes[a]
	if A.isLeaf() || A.height < 2 {
		return a
	}

	b, c := A.child1, A.child2
	diff := t.nodes[c].height - t.nodes[b].height
	switch {
	case diff > 1:
		return t.rotateUp(a, c, b)
	case diff < -1:
		return t.rotateUp(a, b, c)
	}
	return a
}

// rotateUp swaps a with its taller child up, moving the shorter grandchild under a.
func (t *Tree) rotateUp(a, up, other NodeIndex) NodeIndex {
	A := &t.nodes[a]
	U := &t.nodes[up]
	f, g := U.child1, U.child2

	U.child1 = a
	U.parent = A.parent
	A.parent = up

	if U.parent == NullNode {
		t.root = up
	} else if t.nodes[U.parent].child1 == a {
		t.nodes[U.parent].child1 = up
	} else {
		t.nodes[U.parent].child2 = up
	}

	// keep the taller grandchild under up
	if t.nodes[f].height < t.nodes[g].height {
		f, g = g, f
	}
	U.child2 = f
	if A.child1 == up {
		A.child1 = g
	} else {
		A.child2 = g
	}
	t.nodes[g].parent = a

	A.bounds = t.nodes[other].bounds.Encapsulate(t.nodes[g].bounds)
	A.height = 1 + max(t.nodes[other].height, t.nodes[g].height)
	U.bounds = A.bounds.Encapsulate(t.nodes[f].bounds)
	U.height = 1 + max(A.height, t.nodes[f].height)
	return up
}

// ========== BUILDING ==========

// Leaf is the input of a bulk build.
type Leaf struct {
	Body         actor.BodyID
	Layer        actor.ObjectLayer
	Bounds       actor.AABB
	Displacement mgl64.Vec3
}

// BuildTree creates a compact tree over leaves with a top down median split. The returned
// indices hold the leaf of each input.
func BuildTree(margin float64, leaves []Leaf) (*Tree, []NodeIndex) {
	t := NewTree(margin)
	indices := make([]NodeIndex, len(leaves))
	for i, l := range leaves {
		leaf := t.allocate()
		t.nodes[leaf].bounds = t.fatten(l.Bounds, l.Displacement)
		t.nodes[leaf].body = l.Body
		t.nodes[leaf].layer = l.Layer
		indices[i] = leaf
	}
	t.leafCount = len(leaves)
	t.root = t.build(slices.Clone(indices))
	return t, indices
}

// Rebuilt returns a freshly built copy of the tree. Leaves keep their indices, internal nodes
// are rebuilt top down.
func (t *Tree) Rebuilt() *Tree {
	fresh := &Tree{
		nodes:     make([]node, len(t.nodes)),
		root:      NullNode,
		freeList:  NullNode,
		leafCount: t.leafCount,
		margin:    t.margin,
	}
	leaves := make([]NodeIndex, 0, t.leafCount)
	for i := len(t.nodes) - 1; i >= 0; i-- {
		n := t.nodes[i]
		if n.isLeaf() {
			fresh.nodes[i] = node{bounds: n.bounds, parent: NullNode, child1: NullNode, child2: NullNode, body: n.body, layer: n.layer}
			leaves = append(leaves, NodeIndex(i))
		} else {
			fresh.free(NodeIndex(i))
		}
	}
	fresh.root = fresh.build(leaves)
	return fresh
}

func (t *Tree) build(leaves []NodeIndex) NodeIndex {
	switch len(leaves) {
	case 0:
		return NullNode
	case 1:
		return leaves[0]
	}

	centers := actor.EmptyAABB()
	for _, leaf := range leaves {
		centers = centers.EncapsulatePoint(t.nodes[leaf].bounds.Center())
	}
	axis := centers.LongestAxis()
	slices.SortFunc(leaves, func(a, b NodeIndex) int {
		return cmp.Compare(t.nodes[a].bounds.Center()[axis], t.nodes[b].bounds.Center()[axis])
	})

	// split at the spatial median, fall back to the object median when one side is empty
	median := centers.Center()[axis]
	split, _ := slices.BinarySearchFunc(leaves, median, func(leaf NodeIndex, m float64) int {
		return cmp.Compare(t.nodes[leaf].bounds.Center()[axis], m)
	})
	if split == 0 || split == len(leaves) {
		split = len(leaves) / 2
	}

	child1 := t.build(leaves[:split])
	child2 := t.build(leaves[split:])

	parent := t.allocate()
	p := &t.nodes[parent]
	p.child1, p.child2 = child1, child2
	p.bounds = t.nodes[child1].bounds.Encapsulate(t.nodes[child2].bounds)
	p.height = 1 + max(t.nodes[child1].height, t.nodes[child2].height)
	t.nodes[child1].parent = parent
	t.nodes[child2].parent = parent
	return parent
}

// Merge moves every node of other into t and attaches its root as one subtree. Leaf i of
// other becomes leaf i+offset of t.
func (t *Tree) Merge(other *Tree) (offset NodeIndex) {
	offset = NodeIndex(len(t.nodes))
	shift := func(i NodeIndex) NodeIndex {
		if i == NullNode {
			return NullNode
		}
		return i + offset
	}

	for i := range other.nodes {
		n := other.nodes[i]
		n.parent = shift(n.parent)
		n.child1 = shift(n.child1)
		n.child2 = shift(n.child2)
		t.nodes = append(t.nodes, n)
	}
	// chain the free slots of other behind ours
	for i := range other.nodes {
		if other.nodes[i].height < 0 {
			t.nodes[NodeIndex(i)+offset].parent = t.freeList
			t.freeList = NodeIndex(i) + offset
		}
	}

	if other.root != NullNode {
		t.insertNode(other.root + offset)
		t.updates++
	}
	t.leafCount += other.leafCount
	return offset
}

// ========== QUERIES ==========

func (t *Tree) walk(overlaps func(bounds actor.AABB) bool, filter ObjectLayerFilter, visit func(n *node) bool) {
	if t.root == NullNode {
		return
	}
	stack := make([]NodeIndex, 0, 64)
	stack = append(stack, t.root)
	for len(stack) > 0 {
		index := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &t.nodes[index]
		if !overlaps(n.bounds) {
			continue
		}
		if !n.isLeaf() {
			stack = append(stack, n.child1, n.child2)
			continue
		}
		if filter.ShouldCollide(n.layer) && !visit(n) {
			return
		}
	}
}

func (t *Tree) collect(overlaps func(bounds actor.AABB) bool, c collector.Collector[BodyHit], filter ObjectLayerFilter) {
	t.walk(overlaps, filter, func(n *node) bool {
		c.AddHit(BodyHit{BodyID: n.body})
		return !c.ShouldEarlyOut()
	})
}

// CollideAABox reports leaves overlapping box.
func (t *Tree) CollideAABox(box actor.AABB, c collector.Collector[BodyHit], filter ObjectLayerFilter) {
	t.collect(box.Overlaps, c, filter)
}

// CollidePoint reports leaves containing point.
func (t *Tree) CollidePoint(point mgl64.Vec3, c collector.Collector[BodyHit], filter ObjectLayerFilter) {
	t.collect(func(bounds actor.AABB) bool { return bounds.ContainsPoint(point) }, c, filter)
}

// CollideSphere reports leaves within radius of center.
func (t *Tree) CollideSphere(center mgl64.Vec3, radius float64, c collector.Collector[BodyHit], filter ObjectLayerFilter) {
	radiusSq := radius * radius
	t.collect(func(bounds actor.AABB) bool {
		return bounds.ClosestPoint(center).Sub(center).LenSqr() <= radiusSq
	}, c, filter)
}

// CastRay reports leaves hit by the segment origin + fraction * direction, fraction in [0, 1],
// visiting the closest child first.
func (t *Tree) CastRay(origin, direction mgl64.Vec3, c collector.Collector[CastResult], filter ObjectLayerFilter) {
	invDirection := actor.InverseDirection(direction)
	t.cast(func(bounds actor.AABB) float64 {
		return bounds.RayHitFraction(origin, invDirection)
	}, c, filter)
}

// CastAABox reports leaves touched by box swept along displacement.
func (t *Tree) CastAABox(box actor.AABB, displacement mgl64.Vec3, c collector.Collector[CastResult], filter ObjectLayerFilter) {
	origin := box.Center()
	extent := box.Extent()
	invDirection := actor.InverseDirection(displacement)
	t.cast(func(bounds actor.AABB) float64 {
		expanded := actor.AABB{Min: bounds.Min.Sub(extent), Max: bounds.Max.Add(extent)}
		return expanded.RayHitFraction(origin, invDirection)
	}, c, filter)
}

func (t *Tree) cast(fraction func(bounds actor.AABB) float64, c collector.Collector[CastResult], filter ObjectLayerFilter) {
	if t.root == NullNode {
		return
	}
	type entry struct {
		index    NodeIndex
		fraction float64
	}
	accept := func(f float64) bool {
		return f <= 1 && f < c.EarlyOutFraction()
	}

	rootFraction := fraction(t.nodes[t.root].bounds)
	if !accept(rootFraction) {
		return
	}
	stack := make([]entry, 0, 64)
	stack = append(stack, entry{t.root, rootFraction})
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		// the early out may have dropped since e was pushed
		if !accept(e.fraction) {
			continue
		}

		n := &t.nodes[e.index]
		if n.isLeaf() {
			if filter.ShouldCollide(n.layer) {
				c.AddHit(CastResult{BodyID: n.body, Fraction: e.fraction})
				if c.ShouldEarlyOut() {
					return
				}
			}
			continue
		}

		f1 := fraction(t.nodes[n.child1].bounds)
		f2 := fraction(t.nodes[n.child2].bounds)
		near, far := entry{n.child1, f1}, entry{n.child2, f2}
		if f2 < f1 {
			near, far = far, near
		}
		if accept(far.fraction) {
			stack = append(stack, far)
		}
		if accept(near.fraction) {
			stack = append(stack, near)
		}
	}
}

// ========== VALIDATION ==========

// Validate checks the links, boxes, heights and leaf count of the whole tree.
func (t *Tree) Validate() error {
	free := 0
	for i := t.freeList; i != NullNode; i = t.nodes[i].parent {
		if t.nodes[i].height != -1 {
			return fmt.Errorf("node %d in free list has height %d: %w", i, t.nodes[i].height, errInvalidTree)
		}
		free++
		if free > len(t.nodes) {
			return fmt.Errorf("free list loops: %w", errInvalidTree)
		}
	}

	if t.root == NullNode {
		if t.leafCount != 0 {
			return fmt.Errorf("empty tree counts %d leaves: %w", t.leafCount, errInvalidTree)
		}
		return nil
	}
	if t.nodes[t.root].parent != NullNode {
		return fmt.Errorf("root has a parent: %w", errInvalidTree)
	}

	leaves, reached, err := t.validateNode(t.root)
	if err != nil {
		return err
	}
	if leaves != t.leafCount {
		return fmt.Errorf("found %d leaves, counted %d: %w", leaves, t.leafCount, errInvalidTree)
	}
	if reached+free != len(t.nodes) {
		return fmt.Errorf("%d reachable and %d free nodes of %d: %w", reached, free, len(t.nodes), errInvalidTree)
	}
	return nil
}

func (t *Tree) validateNode(index NodeIndex) (leaves, reached int, err error) {
	n := &t.nodes[index]
	if n.isLeaf() {
		if n.child1 != NullNode || n.child2 != NullNode {
			return 0, 0, fmt.Errorf("leaf %d has children: %w", index, errInvalidTree)
		}
		return 1, 1, nil
	}
	if n.height < 0 {
		return 0, 0, fmt.Errorf("free node %d is reachable: %w", index, errInvalidTree)
	}

	for _, child := range [2]NodeIndex{n.child1, n.child2} {
		if t.nodes[child].parent != index {
			return 0, 0, fmt.Errorf("node %d is not the parent of %d: %w", index, child, errInvalidTree)
		}
		if !n.bounds.Contains(t.nodes[child].bounds) {
			return 0, 0, fmt.Errorf("node %d does not enclose %d: %w", index, child, errInvalidTree)
		}
	}
	if want := 1 + max(t.nodes[n.child1].height, t.nodes[n.child2].height); n.height != want {
		return 0, 0, fmt.Errorf("node %d has height %d, want %d: %w", index, n.height, want, errInvalidTree)
	}

	l1, r1, err := t.validateNode(n.child1)
	if err != nil {
		return 0, 0, err
	}
	l2, r2, err := t.validateNode(n.child2)
	if err != nil {
		return 0, 0, err
	}
	return l1 + l2, r1 + r2 + 1, nil
}
