package narrowphase

import (
	"math"

	"github.com/akmonengine/impact/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// MaxContactPoints is the size of a reduced manifold.
const MaxContactPoints = 4

// clipTolerance keeps points lying on a clipping plane.
const clipTolerance = 1e-6

// ContactManifold is the set of contact point pairs between two leaf shapes, sharing one
// normal. ContactPointsOn1[i] and ContactPointsOn2[i] are the same contact seen from
// each shape.
type ContactManifold struct {
	// WorldSpaceNormal points from shape 1 towards shape 2, normalized
	WorldSpaceNormal mgl64.Vec3
	// PenetrationDepth is the deepest penetration, negative for speculative contacts
	PenetrationDepth float64
	SubShapeID1      actor.SubShapeID
	SubShapeID2      actor.SubShapeID
	ContactPointsOn1 []mgl64.Vec3
	ContactPointsOn2 []mgl64.Vec3
}

// NewContactManifold builds the manifold of a collision result.
//
// When the result carries the supporting faces of both shapes, the face of shape 2 is
// clipped against the face of shape 1 (or the other way around), which yields up to 4
// points for resting boxes. Otherwise, or when clipping leaves nothing, the manifold holds
// the single contact of the result. Points farther apart than maxContactDistance are
// dropped.
func NewContactManifold(result CollideShapeResult, maxContactDistance float64) ContactManifold {
	m := ContactManifold{
		WorldSpaceNormal: actor.NormalizedOr(result.PenetrationAxis, mgl64.Vec3{0, -1, 0}),
		PenetrationDepth: result.PenetrationDepth,
		SubShapeID1:      result.SubShapeID1,
		SubShapeID2:      result.SubShapeID2,
	}

	if len(result.Shape1Face) >= 2 && len(result.Shape2Face) >= 2 {
		m.ContactPointsOn1, m.ContactPointsOn2 = ManifoldBetweenTwoFaces(m.WorldSpaceNormal, maxContactDistance, result.Shape1Face, result.Shape2Face)
	}
	if len(m.ContactPointsOn1) == 0 {
		m.ContactPointsOn1 = []mgl64.Vec3{result.ContactPointOn1}
		m.ContactPointsOn2 = []mgl64.Vec3{result.ContactPointOn2}
		return m
	}

	if len(m.ContactPointsOn1) > MaxContactPoints {
		m.ContactPointsOn1, m.ContactPointsOn2 = ReduceManifold(m.ContactPointsOn1, m.ContactPointsOn2, m.WorldSpaceNormal)
	}
	return m
}

// Len returns the number of contact points.
func (m *ContactManifold) Len() int {
	return len(m.ContactPointsOn1)
}

// PointDepth is the penetration of point i along the normal.
func (m *ContactManifold) PointDepth(i int) float64 {
	return m.ContactPointsOn1[i].Sub(m.ContactPointsOn2[i]).Dot(m.WorldSpaceNormal)
}

// Swapped exchanges the roles of both shapes.
func (m ContactManifold) Swapped() ContactManifold {
	return ContactManifold{
		WorldSpaceNormal: m.WorldSpaceNormal.Mul(-1),
		PenetrationDepth: m.PenetrationDepth,
		SubShapeID1:      m.SubShapeID2,
		SubShapeID2:      m.SubShapeID1,
		ContactPointsOn1: m.ContactPointsOn2,
		ContactPointsOn2: m.ContactPointsOn1,
	}
}

// ManifoldBetweenTwoFaces computes contact pairs between face1 of shape 1 and face2 of
// shape 2 using Sutherland-Hodgman clipping. normal is the unit contact normal from shape 1
// towards shape 2.
//
// The face with the most vertices is the reference: the other (incident) face is clipped
// against its side planes, then every remaining vertex is projected along the normal onto
// the reference plane. Vertices farther than maxContactDistance in front of the reference
// plane are dropped.
func ManifoldBetweenTwoFaces(normal mgl64.Vec3, maxContactDistance float64, face1, face2 []mgl64.Vec3) ([]mgl64.Vec3, []mgl64.Vec3) {
	if len(face1) >= len(face2) {
		return clipFaces(face1, face2, normal, maxContactDistance)
	}
	on2, on1 := clipFaces(face2, face1, normal.Mul(-1), maxContactDistance)
	return on1, on2
}

// clipFaces returns the points on the reference face and their incident counterparts.
// normal points from the reference shape towards the incident one.
func clipFaces(reference, incident []mgl64.Vec3, normal mgl64.Vec3, maxContactDistance float64) ([]mgl64.Vec3, []mgl64.Vec3) {
	planeNormal, ok := referenceNormal(reference, normal)
	if !ok {
		return nil, nil
	}
	clipped := clipIncidentAgainstReference(incident, reference, planeNormal)

	// Projection along normal onto the reference plane
	normalDotPlane := normal.Dot(planeNormal)
	if normalDotPlane < actor.Epsilon {
		return nil, nil
	}
	origin := reference[0]

	var onReference, onIncident []mgl64.Vec3
	for _, p := range clipped {
		distance := p.Sub(origin).Dot(planeNormal)
		if distance > maxContactDistance {
			continue
		}
		onReference = append(onReference, p.Sub(normal.Mul(distance/normalDotPlane)))
		onIncident = append(onIncident, p)
	}
	return onReference, onIncident
}

// referenceNormal is the outward normal of the reference face, facing the incident shape.
// An edge uses the part of the contact normal perpendicular to it.
func referenceNormal(reference []mgl64.Vec3, normal mgl64.Vec3) (mgl64.Vec3, bool) {
	var n mgl64.Vec3
	if len(reference) >= 3 {
		n = polygonNormal(reference)
	} else {
		edge := actor.NormalizedOr(reference[1].Sub(reference[0]), mgl64.Vec3{})
		n = normal.Sub(edge.Mul(edge.Dot(normal)))
	}
	if n.LenSqr() < actor.Epsilon {
		return mgl64.Vec3{}, false
	}
	n = n.Normalize()
	if n.Dot(normal) < 0 {
		n = n.Mul(-1)
	}
	return n, true
}

// polygonNormal is Newell's normal, which tolerates collinear first vertices.
func polygonNormal(polygon []mgl64.Vec3) mgl64.Vec3 {
	var n mgl64.Vec3
	for i, current := range polygon {
		next := polygon[(i+1)%len(polygon)]
		n = n.Add(current.Cross(next))
	}
	return n
}

// clipIncidentAgainstReference clips the incident polygon against the planes bounding the
// reference feature sideways: one plane per polygon edge, or the two end planes of an edge.
func clipIncidentAgainstReference(incident, reference []mgl64.Vec3, planeNormal mgl64.Vec3) []mgl64.Vec3 {
	output := incident

	if len(reference) == 2 {
		edge := actor.NormalizedOr(reference[1].Sub(reference[0]), mgl64.Vec3{})
		output = clipPolygonAgainstPlane(output, reference[0], edge)
		return clipPolygonAgainstPlane(output, reference[1], edge.Mul(-1))
	}

	center := computeCenter(reference)
	for i := 0; i < len(reference) && len(output) > 0; i++ {
		v1 := reference[i]
		v2 := reference[(i+1)%len(reference)]

		// Clipping plane normal, perpendicular to the edge and pointing inward
		clipNormal := v2.Sub(v1).Cross(planeNormal)
		if clipNormal.LenSqr() < actor.Epsilon {
			continue
		}
		if center.Sub(v1).Dot(clipNormal) < 0 {
			clipNormal = clipNormal.Mul(-1)
		}
		output = clipPolygonAgainstPlane(output, v1, clipNormal.Normalize())
	}
	return output
}

// clipPolygonAgainstPlane keeps the part of polygon on the positive side of the plane.
func clipPolygonAgainstPlane(polygon []mgl64.Vec3, planePoint, planeNormal mgl64.Vec3) []mgl64.Vec3 {
	if len(polygon) == 2 {
		return clipSegmentAgainstPlane(polygon[0], polygon[1], planePoint, planeNormal)
	}

	output := make([]mgl64.Vec3, 0, len(polygon)+1)
	for i := 0; i < len(polygon); i++ {
		current := polygon[i]
		next := polygon[(i+1)%len(polygon)]

		currentDist := current.Sub(planePoint).Dot(planeNormal)
		nextDist := next.Sub(planePoint).Dot(planeNormal)

		if currentDist >= -clipTolerance {
			output = append(output, current)
			if nextDist < -clipTolerance {
				output = append(output, lineIntersectPlane(current, next, planePoint, planeNormal))
			}
		} else if nextDist >= -clipTolerance {
			output = append(output, lineIntersectPlane(current, next, planePoint, planeNormal))
		}
	}
	return output
}

func clipSegmentAgainstPlane(p1, p2, planePoint, planeNormal mgl64.Vec3) []mgl64.Vec3 {
	d1 := p1.Sub(planePoint).Dot(planeNormal)
	d2 := p2.Sub(planePoint).Dot(planeNormal)
	in1, in2 := d1 >= -clipTolerance, d2 >= -clipTolerance

	switch {
	case in1 && in2:
		return []mgl64.Vec3{p1, p2}
	case in1:
		return []mgl64.Vec3{p1, lineIntersectPlane(p1, p2, planePoint, planeNormal)}
	case in2:
		return []mgl64.Vec3{lineIntersectPlane(p1, p2, planePoint, planeNormal), p2}
	}
	return nil
}

// lineIntersectPlane returns where the segment p1 p2 crosses the plane.
func lineIntersectPlane(p1, p2, planePoint, planeNormal mgl64.Vec3) mgl64.Vec3 {
	dir := p2.Sub(p1)
	denom := dir.Dot(planeNormal)
	if math.Abs(denom) < 1e-10 {
		return p1
	}

	t := -p1.Sub(planePoint).Dot(planeNormal) / denom
	return p1.Add(dir.Mul(actor.Clamp(t, 0, 1)))
}

func computeCenter(points []mgl64.Vec3) mgl64.Vec3 {
	var sum mgl64.Vec3
	if len(points) == 0 {
		return sum
	}
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Mul(1.0 / float64(len(points)))
}

// ReduceManifold keeps at most 4 contact pairs spanning the largest area: the deepest
// point, the point farthest from it, then the points on either side of that diagonal
// forming the largest triangles with it.
func ReduceManifold(on1, on2 []mgl64.Vec3, normal mgl64.Vec3) ([]mgl64.Vec3, []mgl64.Vec3) {
	if len(on1) <= MaxContactPoints {
		return on1, on2
	}

	// Work in the contact plane
	t1, t2 := actor.TangentBasis(normal)
	projected := make([]mgl64.Vec2, len(on1))
	for i, p := range on2 {
		projected[i] = mgl64.Vec2{p.Dot(t1), p.Dot(t2)}
	}

	deepest, deepestDepth := 0, -math.MaxFloat64
	for i := range on1 {
		if d := on1[i].Sub(on2[i]).Dot(normal); d > deepestDepth {
			deepest, deepestDepth = i, d
		}
	}

	farthest, farthestDist := -1, -1.0
	for i, p := range projected {
		if d := p.Sub(projected[deepest]).LenSqr(); d > farthestDist {
			farthest, farthestDist = i, d
		}
	}

	// Signed area of the triangle (deepest, farthest, i)
	diagonal := projected[farthest].Sub(projected[deepest])
	maxArea, minArea := 0.0, 0.0
	left, right := -1, -1
	for i, p := range projected {
		if i == deepest || i == farthest {
			continue
		}
		rel := p.Sub(projected[deepest])
		area := diagonal.X()*rel.Y() - diagonal.Y()*rel.X()
		if area > maxArea {
			maxArea, left = area, i
		}
		if area < minArea {
			minArea, right = area, i
		}
	}

	indices := []int{deepest}
	for _, i := range []int{farthest, left, right} {
		if i >= 0 && i != deepest {
			indices = append(indices, i)
		}
	}

	reduced1 := make([]mgl64.Vec3, 0, len(indices))
	reduced2 := make([]mgl64.Vec3, 0, len(indices))
	for _, i := range indices {
		reduced1 = append(reduced1, on1[i])
		reduced2 = append(reduced2, on2[i])
	}
	return reduced1, reduced2
}
