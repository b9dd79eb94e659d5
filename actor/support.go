package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Support is the capability GJK and EPA consume: the farthest point of a convex set
// along a direction. ConvexRadius is the rounding applied around the returned core, zero
// when the support already includes it.
type Support interface {
	Support(direction mgl64.Vec3) mgl64.Vec3
	ConvexRadius() float64
}

// SupportMode selects whether a shape's support function includes its convex radius.
type SupportMode int

const (
	// ExcludeConvexRadius returns the shrunken core; ConvexRadius() reports the rounding.
	ExcludeConvexRadius SupportMode = iota
	// IncludeConvexRadius returns the full surface; ConvexRadius() is zero.
	IncludeConvexRadius
)

// PointSupport is a single point, optionally inflated into a sphere by Radius.
type PointSupport struct {
	Point  mgl64.Vec3
	Radius float64
}

func (p PointSupport) Support(direction mgl64.Vec3) mgl64.Vec3 {
	return p.Point
}

func (p PointSupport) ConvexRadius() float64 {
	return p.Radius
}

// TriangleSupport is the support function of a triangle
type TriangleSupport struct {
	V0, V1, V2 mgl64.Vec3
}

func (t TriangleSupport) Support(direction mgl64.Vec3) mgl64.Vec3 {
	d0 := t.V0.Dot(direction)
	d1 := t.V1.Dot(direction)
	d2 := t.V2.Dot(direction)
	if d0 >= d1 && d0 >= d2 {
		return t.V0
	}
	if d1 >= d2 {
		return t.V1
	}
	return t.V2
}

func (t TriangleSupport) ConvexRadius() float64 {
	return 0
}

// PolygonSupport is the support function of a convex point set.
type PolygonSupport struct {
	Vertices []mgl64.Vec3
}

func (p PolygonSupport) Support(direction mgl64.Vec3) mgl64.Vec3 {
	best := 0
	bestDot := p.Vertices[0].Dot(direction)
	for i := 1; i < len(p.Vertices); i++ {
		if d := p.Vertices[i].Dot(direction); d > bestDot {
			best, bestDot = i, d
		}
	}
	return p.Vertices[best]
}

func (p PolygonSupport) ConvexRadius() float64 {
	return 0
}

// TransformedSupport places a local support in the parent space.
type TransformedSupport struct {
	Transform Transform
	Inner     Support
}

func (t TransformedSupport) Support(direction mgl64.Vec3) mgl64.Vec3 {
	local := t.Inner.Support(t.Transform.InverseRotateDirection(direction))
	return t.Transform.Apply(local)
}

func (t TransformedSupport) ConvexRadius() float64 {
	return t.Inner.ConvexRadius()
}

// ScaledSupport applies a per-axis scale to a support function.
// The support of a diagonally scaled set along d is S * support(S * d).
type ScaledSupport struct {
	Scale mgl64.Vec3
	Inner Support
}

func (s ScaledSupport) Support(direction mgl64.Vec3) mgl64.Vec3 {
	return MulPerElem(s.Scale, s.Inner.Support(MulPerElem(s.Scale, direction)))
}

// ConvexRadius uses the smallest scale factor so the rounded core stays inside the scaled shape.
func (s ScaledSupport) ConvexRadius() float64 {
	return s.Inner.ConvexRadius() * minAbsComponent(s.Scale)
}

// MinkowskiDifference is the support of A - B.
type MinkowskiDifference struct {
	A, B Support
}

func (m MinkowskiDifference) Support(direction mgl64.Vec3) mgl64.Vec3 {
	return m.A.Support(direction).Sub(m.B.Support(direction.Mul(-1)))
}

func (m MinkowskiDifference) ConvexRadius() float64 {
	return m.A.ConvexRadius() + m.B.ConvexRadius()
}

// AddConvexRadius inflates a support by Radius, yielding the rounded surface.
type AddConvexRadius struct {
	Inner  Support
	Radius float64
}

func (a AddConvexRadius) Support(direction mgl64.Vec3) mgl64.Vec3 {
	p := a.Inner.Support(direction)
	lenSq := direction.LenSqr()
	if lenSq <= Epsilon*Epsilon {
		return p
	}
	return p.Add(direction.Mul(a.Radius / math.Sqrt(lenSq)))
}

func (a AddConvexRadius) ConvexRadius() float64 {
	return 0
}

// Inflated returns a support with its convex radius folded into the surface.
func Inflated(s Support) Support {
	if r := s.ConvexRadius(); r > 0 {
		return AddConvexRadius{Inner: s, Radius: r}
	}
	return s
}

func minAbsComponent(v mgl64.Vec3) float64 {
	a := AbsVec(v)
	m := a[0]
	if a[1] < m {
		m = a[1]
	}
	if a[2] < m {
		m = a[2]
	}
	return m
}
