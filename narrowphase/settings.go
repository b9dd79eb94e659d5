// Package narrowphase computes contacts, ray hits and shape casts between pairs of shapes.
//
// Every query dispatches on the shape categories: decorated shapes are unwrapped, compound
// shapes recurse into the children overlapping the query, meshes and height fields walk the
// triangles returned by their own spatial index, and pairs of convex shapes go through
// GJK and EPA. Hits are reported to a collector.Collector.
package narrowphase

import "github.com/go-gl/mathgl/mgl64"

const (
	// DefaultCollisionTolerance is the distance below which shapes are considered touching.
	DefaultCollisionTolerance = 1.0e-4
	// DefaultPenetrationTolerance is the EPA convergence distance.
	DefaultPenetrationTolerance = 1.0e-4
)

// ActiveEdgeMode decides what happens to contacts on edges shared by two nearly coplanar
// triangles.
type ActiveEdgeMode int

const (
	// CollideOnlyWithActive drops contacts whose normal still comes from an inactive edge
	// once the edge normal has been resolved.
	CollideOnlyWithActive ActiveEdgeMode = iota
	// CollideWithAll keeps every contact, inactive edge normals included.
	CollideWithAll
)

// BackFaceMode decides whether triangles are hit from behind.
type BackFaceMode int

const (
	IgnoreBackFaces BackFaceMode = iota
	CollideWithBackFaces
)

// CollectFacesMode decides whether results carry the supporting faces of both shapes,
// which manifold building needs to produce more than one contact point.
type CollectFacesMode int

const (
	NoFaces CollectFacesMode = iota
	CollectFaces
)

// CollideShapeSettings configures CollideShapeVsShape.
type CollideShapeSettings struct {
	ActiveEdgeMode   ActiveEdgeMode
	BackFaceMode     BackFaceMode
	CollectFacesMode CollectFacesMode

	// MaxSeparationDistance reports shapes closer than this distance as speculative
	// contacts with a negative penetration depth.
	MaxSeparationDistance float64
	CollisionTolerance    float64
	PenetrationTolerance  float64

	// ActiveEdgeMovementDirection is the movement of shape 1 relative to shape 2. When set,
	// contacts on inactive edges keep the edge normal if the movement agrees with it more
	// than with the face normal.
	ActiveEdgeMovementDirection mgl64.Vec3
}

func DefaultCollideShapeSettings() CollideShapeSettings {
	return CollideShapeSettings{
		ActiveEdgeMode:       CollideOnlyWithActive,
		BackFaceMode:         IgnoreBackFaces,
		CollectFacesMode:     NoFaces,
		CollisionTolerance:   DefaultCollisionTolerance,
		PenetrationTolerance: DefaultPenetrationTolerance,
	}
}

// RayCastSettings configures CastRay.
type RayCastSettings struct {
	BackFaceMode BackFaceMode
	// TreatConvexAsSolid reports rays starting inside a convex shape at fraction 0. When
	// false such rays only report the exit point, and only with CollideWithBackFaces.
	TreatConvexAsSolid bool
}

func DefaultRayCastSettings() RayCastSettings {
	return RayCastSettings{
		BackFaceMode:       IgnoreBackFaces,
		TreatConvexAsSolid: true,
	}
}

// ShapeCastSettings configures CastShape.
type ShapeCastSettings struct {
	CollideShapeSettings

	// BackFaceModeTriangles applies to casts against meshes and height fields.
	BackFaceModeTriangles BackFaceMode
	// ReturnDeepestPoint runs EPA when the cast starts in contact, so the result holds the
	// deepest penetration instead of an arbitrary touching point.
	ReturnDeepestPoint bool
}

func DefaultShapeCastSettings() ShapeCastSettings {
	return ShapeCastSettings{
		CollideShapeSettings:  DefaultCollideShapeSettings(),
		BackFaceModeTriangles: IgnoreBackFaces,
		ReturnDeepestPoint:    true,
	}
}
