package narrowphase

import (
	"github.com/akmonengine/impact/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// Ray is the segment Origin + t * Direction, t in [0, 1].
type Ray struct {
	Origin    mgl64.Vec3
	Direction mgl64.Vec3
}

// PointAt returns the point at fraction t.
func (r Ray) PointAt(t float64) mgl64.Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}

// Transformed maps the ray into the space described by transform.
func (r Ray) Transformed(transform actor.Transform) Ray {
	return Ray{Origin: transform.Apply(r.Origin), Direction: transform.RotateDirection(r.Direction)}
}

// CollideShapeResult is a contact between two shapes, in world space.
type CollideShapeResult struct {
	ContactPointOn1 mgl64.Vec3
	ContactPointOn2 mgl64.Vec3
	// PenetrationAxis points from shape 1 towards shape 2, it is not normalized.
	PenetrationAxis mgl64.Vec3
	// PenetrationDepth is negative for speculative contacts.
	PenetrationDepth float64
	SubShapeID1      actor.SubShapeID
	SubShapeID2      actor.SubShapeID
	// BodyID2 is filled by queries running against the broad phase.
	BodyID2 actor.BodyID
	// Shape1Face and Shape2Face are only filled with CollectFaces.
	Shape1Face []mgl64.Vec3
	Shape2Face []mgl64.Vec3
}

// HitFraction orders contacts by depth, the deepest first.
func (r CollideShapeResult) HitFraction() float64 {
	return -r.PenetrationDepth
}

// Reversed swaps the roles of both shapes.
func (r CollideShapeResult) Reversed() CollideShapeResult {
	return CollideShapeResult{
		ContactPointOn1:  r.ContactPointOn2,
		ContactPointOn2:  r.ContactPointOn1,
		PenetrationAxis:  r.PenetrationAxis.Mul(-1),
		PenetrationDepth: r.PenetrationDepth,
		SubShapeID1:      r.SubShapeID2,
		SubShapeID2:      r.SubShapeID1,
		BodyID2:          r.BodyID2,
		Shape1Face:       r.Shape2Face,
		Shape2Face:       r.Shape1Face,
	}
}

// RayCastResult is a ray hit.
type RayCastResult struct {
	BodyID     actor.BodyID
	Fraction   float64
	SubShapeID actor.SubShapeID
}

func (r RayCastResult) HitFraction() float64 {
	return r.Fraction
}

// CollidePointResult reports a shape containing the point.
type CollidePointResult struct {
	BodyID     actor.BodyID
	SubShapeID actor.SubShapeID
}

func (r CollidePointResult) HitFraction() float64 {
	return 0
}

// ShapeCastResult is the first contact of a swept shape.
type ShapeCastResult struct {
	CollideShapeResult
	// Fraction of the sweep at which the shapes touch, 0 when they start in contact.
	Fraction      float64
	IsBackFaceHit bool
}

// HitFraction orders casts by time of impact, and initial contacts by depth.
func (r ShapeCastResult) HitFraction() float64 {
	if r.Fraction > 0 {
		return r.Fraction
	}
	return -r.PenetrationDepth
}
