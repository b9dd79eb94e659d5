package narrowphase

import (
	"math"

	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/collector"
	"github.com/akmonengine/impact/epa"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// barycentricTolerance decides whether a contact lies on a triangle edge.
	barycentricTolerance = 1.0e-3
	// faceNormalCos accepts a penetration axis as the face normal.
	faceNormalCos = 0.9998
)

// worldTriangle is a triangle of a mesh placed in world space, wound counter clockwise
// around its front face.
type worldTriangle struct {
	V0, V1, V2  mgl64.Vec3
	ActiveEdges uint8
}

func (t worldTriangle) support() actor.TriangleSupport {
	return actor.TriangleSupport{V0: t.V0, V1: t.V1, V2: t.V2}
}

func (t worldTriangle) vertices() []mgl64.Vec3 {
	return []mgl64.Vec3{t.V0, t.V1, t.V2}
}

// flipped reverses the winding while keeping each edge flag on the same edge.
func (t worldTriangle) flipped() worldTriangle {
	e := t.ActiveEdges
	return worldTriangle{
		V0: t.V0, V1: t.V2, V2: t.V1,
		ActiveEdges: (e&actor.EdgeActive20)>>2 | e&actor.EdgeActive12 | (e&actor.EdgeActive01)<<2,
	}
}

// meshTriangle fetches triangle index of a mesh in world space.
func meshTriangle(mesh actor.TriangleSource, index int, transform actor.Transform, scale mgl64.Vec3, flip bool) worldTriangle {
	v0, v1, v2, flags := mesh.Triangle(index)
	t := worldTriangle{
		V0:          transform.Apply(actor.MulPerElem(v0, scale)),
		V1:          transform.Apply(actor.MulPerElem(v1, scale)),
		V2:          transform.Apply(actor.MulPerElem(v2, scale)),
		ActiveEdges: flags,
	}
	if flip {
		return t.flipped()
	}
	return t
}

func collideConvexVsTriangles(convex actor.ConvexShape, mesh actor.TriangleSource, scaleA, scaleB mgl64.Vec3, transformA, transformB actor.Transform, creatorA, creatorB actor.SubShapeIDCreator, settings *CollideShapeSettings, c collector.Collector[CollideShapeResult]) {
	query := localBounds(convex.WorldBounds(transformA, scaleA).Expand(settings.MaxSeparationDistance), transformB, scaleB)
	flip := flipsWinding(scaleB)
	bits := mesh.SubShapeIDBits()

	aExcl, aIncl, radiusA := convexSupports(convex, scaleA, transformA)
	mesh.WalkTriangles(query, func(index int) bool {
		triangle := meshTriangle(mesh, index, transformB, scaleB, flip)
		creator := creatorB.PushID(uint32(index), bits)
		collideConvexVsTriangle(convex, aExcl, aIncl, radiusA, scaleA, transformA, triangle, creatorA, creator, settings, c)
		return !c.ShouldEarlyOut()
	})
}

// collideConvexVsTriangle reports the contact between a convex shape and one triangle,
// replacing normals coming from inactive edges with the triangle normal.
func collideConvexVsTriangle(convex actor.ConvexShape, aExcl, aIncl actor.Support, radiusA float64, scaleA mgl64.Vec3, transformA actor.Transform, triangle worldTriangle, creatorA, creatorB actor.SubShapeIDCreator, settings *CollideShapeSettings, c collector.Collector[CollideShapeResult]) {
	normal := actor.TriangleNormal(triangle.V0, triangle.V1, triangle.V2)
	if normal.LenSqr() < actor.Epsilon {
		return
	}
	normal = normal.Normalize()

	// Back facing triangles are turned around
	center := transformA.Position
	if normal.Dot(center.Sub(triangle.V0)) < 0 {
		if settings.BackFaceMode == IgnoreBackFaces {
			return
		}
		triangle = triangle.flipped()
		normal = normal.Mul(-1)
	}

	// The convex shape stays entirely above the plane
	if normal.Dot(aIncl.Support(normal.Mul(-1)).Sub(triangle.V0)) > settings.MaxSeparationDistance {
		return
	}

	tri := triangle.support()
	v := center.Sub(triangle.V0.Add(triangle.V1).Add(triangle.V2).Mul(1.0 / 3.0))
	var pointA, pointB mgl64.Vec3
	if !epa.GetPenetrationDepth(aExcl, aIncl, radiusA, tri, tri, 0, settings.CollisionTolerance, settings.PenetrationTolerance, settings.MaxSeparationDistance, &v, &pointA, &pointB) {
		return
	}
	axis := actor.NormalizedOr(v, normal.Mul(-1))

	axis, pointA, keep := resolveActiveEdge(aIncl, triangle, normal, axis, pointA, pointB, settings)
	if !keep {
		return
	}

	depth := pointA.Sub(pointB).Dot(axis)
	if -depth >= c.EarlyOutFraction() {
		return
	}

	result := CollideShapeResult{
		ContactPointOn1:  pointA,
		ContactPointOn2:  pointB,
		PenetrationAxis:  axis,
		PenetrationDepth: depth,
		SubShapeID1:      creatorA.ID(),
		SubShapeID2:      creatorB.ID(),
	}
	if settings.CollectFacesMode == CollectFaces {
		result.Shape1Face = supportingFace(convex, scaleA, transformA, axis)
		result.Shape2Face = triangle.vertices()
	}
	c.AddHit(result)
}

// resolveActiveEdge returns the axis and point on the convex shape to report, and false
// when the contact must be dropped.
//
// A contact whose closest feature on the triangle is an inactive edge (or a vertex with
// only inactive edges) gets the triangle normal, so shapes slide smoothly over the internal
// edges of a mesh.
func resolveActiveEdge(aIncl actor.Support, triangle worldTriangle, normal, axis, pointA, pointB mgl64.Vec3, settings *CollideShapeSettings) (mgl64.Vec3, mgl64.Vec3, bool) {
	if triangle.ActiveEdges == actor.AllEdgesActive || axis.Dot(normal) <= -faceNormalCos {
		return axis, pointA, true
	}

	feature := closestEdges(triangle, pointB)
	if feature == 0 || feature&triangle.ActiveEdges != 0 {
		return axis, pointA, true
	}

	m := settings.ActiveEdgeMovementDirection
	if m.LenSqr() > actor.Epsilon && m.Dot(axis.Mul(-1)) > m.Dot(normal) {
		// Moving along the edge normal, the edge is the expected contact
		return axis, pointA, settings.ActiveEdgeMode == CollideWithAll
	}

	faceAxis := normal.Mul(-1)
	return faceAxis, aIncl.Support(faceAxis), true
}

// closestEdges returns the edge flags of the triangle features point lies on.
func closestEdges(triangle worldTriangle, point mgl64.Vec3) uint8 {
	u, v, w, ok := barycentric(triangle.V0, triangle.V1, triangle.V2, point)
	if !ok {
		return 0
	}

	var edges uint8
	if w < barycentricTolerance {
		edges |= actor.EdgeActive01
	}
	if u < barycentricTolerance {
		edges |= actor.EdgeActive12
	}
	if v < barycentricTolerance {
		edges |= actor.EdgeActive20
	}
	return edges
}

// barycentric returns the weights of v0, v1 and v2 for the projection of p on the triangle.
func barycentric(v0, v1, v2, p mgl64.Vec3) (float64, float64, float64, bool) {
	e0 := v1.Sub(v0)
	e1 := v2.Sub(v0)
	d := p.Sub(v0)

	d00 := e0.Dot(e0)
	d01 := e0.Dot(e1)
	d11 := e1.Dot(e1)
	d20 := d.Dot(e0)
	d21 := d.Dot(e1)

	denom := d00*d11 - d01*d01
	if math.Abs(denom) < actor.Epsilon {
		return 0, 0, 0, false
	}
	v := (d11*d20 - d01*d21) / denom
	w := (d00*d21 - d01*d20) / denom
	return 1 - v - w, v, w, true
}
