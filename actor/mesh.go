package actor

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

const maxTrianglesPerLeaf = 4

// TriangleSource is implemented by shapes made of triangles (Mesh, HeightField).
// Triangle indices double as sub shape id values.
type TriangleSource interface {
	Shape
	NumTriangles() int
	// Triangle returns the vertices in local space and the active edge flags
	Triangle(index int) (v0, v1, v2 mgl64.Vec3, activeEdges uint8)
	// WalkTriangles calls fn for every triangle whose bounds may overlap box (local space)
	// until fn returns false.
	WalkTriangles(box AABB, fn func(index int) bool)
	// WalkRay calls fn for every triangle the segment origin + t*direction, t in [0,1], may
	// cross until fn returns false.
	WalkRay(origin, direction mgl64.Vec3, fn func(index int) bool)
}

type meshNode struct {
	bounds      AABB
	left, right int32
	start       int32
	count       int32 // > 0 for leaves
}

// Mesh is a static triangle soup with per triangle active edges, indexed by a BVH.
type Mesh struct {
	Vertices    []mgl64.Vec3
	Triangles   [][3]uint32
	ActiveEdges []uint8

	nodes  []meshNode
	order  []int32
	idBits uint
}

// NewMesh creates a mesh, dropping degenerate triangles. Edges shared by two triangles
// whose dihedral angle is below acos(activeEdgeCosThreshold), or that are concave, are
// marked inactive.
func NewMesh(vertices []mgl64.Vec3, triangles [][3]uint32, activeEdgeCosThreshold float64) (*Mesh, error) {
	valid := make([][3]uint32, 0, len(triangles))
	for i, tri := range triangles {
		for _, idx := range tri {
			if int(idx) >= len(vertices) {
				return nil, fmt.Errorf("triangle %d references vertex %d of %d: %w", i, idx, len(vertices), ErrDegenerate)
			}
		}
		if TriangleNormal(vertices[tri[0]], vertices[tri[1]], vertices[tri[2]]).LenSqr() <= Epsilon*Epsilon {
			continue
		}
		valid = append(valid, tri)
	}
	if len(valid) == 0 {
		return nil, ErrNoTriangles
	}

	m := &Mesh{
		Vertices:    vertices,
		Triangles:   valid,
		ActiveEdges: computeActiveEdges(vertices, valid, activeEdgeCosThreshold),
		idBits:      bitsForCount(len(valid)),
	}
	m.build()
	return m, nil
}

// ========== BVH ==========

func (m *Mesh) triangleBounds(t int32) AABB {
	tri := m.Triangles[t]
	return AABBFromPoints(m.Vertices[tri[0]], m.Vertices[tri[1]], m.Vertices[tri[2]])
}

func (m *Mesh) build() {
	m.order = make([]int32, len(m.Triangles))
	for i := range m.order {
		m.order[i] = int32(i)
	}
	centroids := make([]mgl64.Vec3, len(m.Triangles))
	for i := range m.Triangles {
		centroids[i] = m.triangleBounds(int32(i)).Center()
	}
	m.nodes = make([]meshNode, 0, 2*len(m.Triangles)/maxTrianglesPerLeaf+1)
	m.buildNode(centroids, 0, int32(len(m.order)))
}

// buildNode splits at the median of the longest centroid axis.
func (m *Mesh) buildNode(centroids []mgl64.Vec3, start, end int32) int32 {
	bounds := EmptyAABB()
	centroidBounds := EmptyAABB()
	for i := start; i < end; i++ {
		bounds = bounds.Encapsulate(m.triangleBounds(m.order[i]))
		centroidBounds = centroidBounds.EncapsulatePoint(centroids[m.order[i]])
	}

	index := int32(len(m.nodes))
	m.nodes = append(m.nodes, meshNode{bounds: bounds, left: -1, right: -1})

	if end-start <= maxTrianglesPerLeaf {
		m.nodes[index].start = start
		m.nodes[index].count = end - start
		return index
	}

	axis := centroidBounds.LongestAxis()
	slice := m.order[start:end]
	sort.Slice(slice, func(a, b int) bool {
		return centroids[slice[a]][axis] < centroids[slice[b]][axis]
	})
	mid := start + (end-start)/2

	left := m.buildNode(centroids, start, mid)
	right := m.buildNode(centroids, mid, end)
	m.nodes[index].left = left
	m.nodes[index].right = right
	return index
}

func (m *Mesh) walk(overlaps func(AABB) bool, fn func(index int) bool) {
	if len(m.nodes) == 0 {
		return
	}
	stack := make([]int32, 0, 64)
	stack = append(stack, 0)
	for len(stack) > 0 {
		n := &m.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if !overlaps(n.bounds) {
			continue
		}
		if n.count > 0 {
			for i := n.start; i < n.start+n.count; i++ {
				if !fn(int(m.order[i])) {
					return
				}
			}
			continue
		}
		stack = append(stack, n.left, n.right)
	}
}

func (m *Mesh) WalkTriangles(box AABB, fn func(index int) bool) {
	m.walk(box.Overlaps, fn)
}

func (m *Mesh) WalkRay(origin, direction mgl64.Vec3, fn func(index int) bool) {
	inv := InverseDirection(direction)
	m.walk(func(b AABB) bool {
		return b.RayHitFraction(origin, inv) <= 1.0
	}, fn)
}

// ========== SHAPE ==========

func (m *Mesh) NumTriangles() int {
	return len(m.Triangles)
}

func (m *Mesh) Triangle(index int) (mgl64.Vec3, mgl64.Vec3, mgl64.Vec3, uint8) {
	tri := m.Triangles[index]
	return m.Vertices[tri[0]], m.Vertices[tri[1]], m.Vertices[tri[2]], m.ActiveEdges[index]
}

func (m *Mesh) Type() ShapeType          { return ShapeTypeMesh }
func (m *Mesh) Category() ShapeCategory  { return CategoryMesh }
func (m *Mesh) CenterOfMass() mgl64.Vec3 { return mgl64.Vec3{} }
func (m *Mesh) SubShapeIDBits() uint     { return m.idBits }
func (m *Mesh) InnerRadius() float64     { return 0 }
func (m *Mesh) LocalBounds() AABB        { return m.nodes[0].bounds }

func (m *Mesh) WorldBounds(transform Transform, scale mgl64.Vec3) AABB {
	return boundsOf(m.LocalBounds(), transform, scale)
}

// ComputeMass is zero: meshes are only used on static or kinematic bodies
func (m *Mesh) ComputeMass(density float64) float64 {
	return 0
}

func (m *Mesh) ComputeInertia(mass float64) mgl64.Mat3 {
	return mgl64.Mat3{}
}
