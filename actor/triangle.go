package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Triangle is a standalone convex triangle, mostly used as a body shape for tests and
// as the leaf primitive of meshes and height fields.
type Triangle struct {
	V0, V1, V2 mgl64.Vec3
}

func (t *Triangle) Type() ShapeType         { return ShapeTypeTriangle }
func (t *Triangle) Category() ShapeCategory { return CategoryConvex }
func (t *Triangle) SubShapeIDBits() uint    { return 0 }
func (t *Triangle) ConvexRadius() float64   { return 0 }
func (t *Triangle) InnerRadius() float64    { return 0 }

func (t *Triangle) CenterOfMass() mgl64.Vec3 {
	return t.V0.Add(t.V1).Add(t.V2).Mul(1.0 / 3.0)
}

func (t *Triangle) LocalBounds() AABB {
	return AABBFromPoints(t.V0, t.V1, t.V2)
}

func (t *Triangle) WorldBounds(transform Transform, scale mgl64.Vec3) AABB {
	return AABBFromPoints(
		transform.Apply(MulPerElem(t.V0, scale)),
		transform.Apply(MulPerElem(t.V1, scale)),
		transform.Apply(MulPerElem(t.V2, scale)),
	)
}

// ComputeMass is zero, a triangle has no volume
func (t *Triangle) ComputeMass(density float64) float64 {
	return 0
}

func (t *Triangle) ComputeInertia(mass float64) mgl64.Mat3 {
	return mgl64.Mat3{}
}

// Normal returns the unnormalized face normal following the CCW winding.
func (t *Triangle) Normal() mgl64.Vec3 {
	return TriangleNormal(t.V0, t.V1, t.V2)
}

func (t *Triangle) SupportFunction(mode SupportMode, scale mgl64.Vec3) Support {
	return convexSupport(TriangleSupport{V0: t.V0, V1: t.V1, V2: t.V2}, mode, scale)
}

func (t *Triangle) SupportingFace(direction mgl64.Vec3, scale mgl64.Vec3) []mgl64.Vec3 {
	return scalePoints([]mgl64.Vec3{t.V0, t.V1, t.V2}, scale)
}

// TriangleNormal returns (v1 - v0) x (v2 - v0).
func TriangleNormal(v0, v1, v2 mgl64.Vec3) mgl64.Vec3 {
	return v1.Sub(v0).Cross(v2.Sub(v0))
}

// ========== ACTIVE EDGES ==========

// Edge flags, bit i covers the edge from vertex i to vertex (i+1)%3.
const (
	EdgeActive01 uint8 = 1 << iota
	EdgeActive12
	EdgeActive20
	AllEdgesActive = EdgeActive01 | EdgeActive12 | EdgeActive20
)

// DefaultActiveEdgeCosThreshold is cos(5 degrees).
var DefaultActiveEdgeCosThreshold = math.Cos(5.0 * math.Pi / 180.0)

// IsEdgeActive decides whether the edge shared by two triangles is a real feature.
// normal1 and normal2 are unit normals, edgeDirection follows the first triangle's winding.
func IsEdgeActive(normal1, normal2, edgeDirection mgl64.Vec3, cosThreshold float64) bool {
	cosAngle := normal1.Dot(normal2)

	// Back to back triangles
	if cosAngle < -0.999848 {
		return true
	}

	// Concave edges are never active
	if normal1.Cross(normal2).Dot(edgeDirection) < 0 {
		return false
	}

	return cosAngle < cosThreshold
}

type edgeKey struct {
	a, b uint32
}

func makeEdgeKey(a, b uint32) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

type edgeUse struct {
	triangle int
	edge     int
}

// computeActiveEdges returns per triangle edge flags for an indexed triangle list.
// Border edges and edges shared by more than two triangles are active.
func computeActiveEdges(vertices []mgl64.Vec3, indices [][3]uint32, cosThreshold float64) []uint8 {
	flags := make([]uint8, len(indices))
	uses := make(map[edgeKey][]edgeUse, len(indices)*3/2)
	for t, tri := range indices {
		for e := 0; e < 3; e++ {
			key := makeEdgeKey(tri[e], tri[(e+1)%3])
			uses[key] = append(uses[key], edgeUse{triangle: t, edge: e})
		}
	}

	normal := func(t int) mgl64.Vec3 {
		tri := indices[t]
		n := TriangleNormal(vertices[tri[0]], vertices[tri[1]], vertices[tri[2]])
		return NormalizedOr(n, mgl64.Vec3{0, 1, 0})
	}

	for _, list := range uses {
		if len(list) != 2 {
			for _, u := range list {
				flags[u.triangle] |= 1 << u.edge
			}
			continue
		}
		first, second := list[0], list[1]
		tri := indices[first.triangle]
		edgeDir := vertices[tri[(first.edge+1)%3]].Sub(vertices[tri[first.edge]])
		if IsEdgeActive(normal(first.triangle), normal(second.triangle), edgeDir, cosThreshold) {
			flags[first.triangle] |= 1 << first.edge
			flags[second.triangle] |= 1 << second.edge
		}
	}
	return flags
}
