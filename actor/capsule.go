package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Capsule is a segment along the Y axis inflated by Radius.
type Capsule struct {
	HalfHeight float64 // half length of the inner segment
	Radius     float64
}

func (c *Capsule) Type() ShapeType          { return ShapeTypeCapsule }
func (c *Capsule) Category() ShapeCategory  { return CategoryConvex }
func (c *Capsule) CenterOfMass() mgl64.Vec3 { return mgl64.Vec3{} }
func (c *Capsule) SubShapeIDBits() uint     { return 0 }
func (c *Capsule) ConvexRadius() float64    { return c.Radius }
func (c *Capsule) InnerRadius() float64     { return c.Radius }

func (c *Capsule) LocalBounds() AABB {
	e := mgl64.Vec3{c.Radius, c.HalfHeight + c.Radius, c.Radius}
	return AABB{Min: e.Mul(-1), Max: e}
}

func (c *Capsule) WorldBounds(transform Transform, scale mgl64.Vec3) AABB {
	// Bounds of the two end spheres
	s := maxAbsComponent(scale)
	top := transform.Apply(MulPerElem(mgl64.Vec3{0, c.HalfHeight, 0}, scale))
	bottom := transform.Apply(MulPerElem(mgl64.Vec3{0, -c.HalfHeight, 0}, scale))
	return AABBFromPoints(top, bottom).Expand(c.Radius * s)
}

func (c *Capsule) ComputeMass(density float64) float64 {
	cylinder := math.Pi * c.Radius * c.Radius * 2.0 * c.HalfHeight
	sphere := (4.0 / 3.0) * math.Pi * math.Pow(c.Radius, 3)
	return density * (cylinder + sphere)
}

func (c *Capsule) ComputeInertia(mass float64) mgl64.Mat3 {
	r2 := c.Radius * c.Radius
	h := 2.0 * c.HalfHeight
	cylinderVolume := math.Pi * r2 * h
	sphereVolume := (4.0 / 3.0) * math.Pi * r2 * c.Radius
	total := cylinderVolume + sphereVolume
	if total <= 0 {
		return mgl64.Mat3{}
	}
	mc := mass * cylinderVolume / total
	ms := mass * sphereVolume / total

	// Solid cylinder plus two hemispheres shifted to the segment ends
	iy := mc*r2/2.0 + ms*2.0*r2/5.0
	ix := mc*(r2/4.0+h*h/12.0) + ms*(2.0*r2/5.0+h*h/4.0+3.0*h*c.Radius/8.0)
	return mgl64.Diag3(mgl64.Vec3{ix, iy, ix})
}

type capsuleSupport struct {
	halfHeight float64
	radius     float64
}

func (c capsuleSupport) Support(direction mgl64.Vec3) mgl64.Vec3 {
	if direction.Y() < 0 {
		return mgl64.Vec3{0, -c.halfHeight, 0}
	}
	return mgl64.Vec3{0, c.halfHeight, 0}
}

func (c capsuleSupport) ConvexRadius() float64 {
	return c.radius
}

func (c *Capsule) SupportFunction(mode SupportMode, scale mgl64.Vec3) Support {
	return convexSupport(capsuleSupport{halfHeight: c.HalfHeight, radius: c.Radius}, mode, scale)
}

// SupportingFace returns the side segment when direction is nearly perpendicular to the axis.
func (c *Capsule) SupportingFace(direction mgl64.Vec3, scale mgl64.Vec3) []mgl64.Vec3 {
	dir := MulPerElem(direction, scale)
	lenSq := dir.LenSqr()
	if lenSq < Epsilon {
		return nil
	}
	// sin(angle) between direction and the segment must be below ~5 degrees of 90
	if dir.Y()*dir.Y() > 0.0076*lenSq {
		return nil
	}
	offset := dir.Mul(c.Radius / math.Sqrt(lenSq))
	top := mgl64.Vec3{0, c.HalfHeight, 0}
	return scalePoints([]mgl64.Vec3{top.Add(offset), top.Mul(-1).Add(offset)}, scale)
}
