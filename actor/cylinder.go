package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const cylinderFacePoints = 8

// Cylinder is centered on the origin with its axis along Y.
type Cylinder struct {
	HalfHeight   float64
	Radius       float64
	convexRadius float64
}

// NewCylinder creates a cylinder rounded by convexRadius.
func NewCylinder(halfHeight, radius, convexRadius float64) *Cylinder {
	return &Cylinder{
		HalfHeight:   halfHeight,
		Radius:       radius,
		convexRadius: Clamp(convexRadius, 0, math.Min(halfHeight, radius)),
	}
}

func (c *Cylinder) Type() ShapeType          { return ShapeTypeCylinder }
func (c *Cylinder) Category() ShapeCategory  { return CategoryConvex }
func (c *Cylinder) CenterOfMass() mgl64.Vec3 { return mgl64.Vec3{} }
func (c *Cylinder) SubShapeIDBits() uint     { return 0 }
func (c *Cylinder) ConvexRadius() float64    { return c.convexRadius }
func (c *Cylinder) InnerRadius() float64     { return math.Min(c.HalfHeight, c.Radius) }

func (c *Cylinder) LocalBounds() AABB {
	e := mgl64.Vec3{c.Radius, c.HalfHeight, c.Radius}
	return AABB{Min: e.Mul(-1), Max: e}
}

func (c *Cylinder) WorldBounds(transform Transform, scale mgl64.Vec3) AABB {
	return boundsOf(c.LocalBounds(), transform, scale)
}

func (c *Cylinder) ComputeMass(density float64) float64 {
	return density * math.Pi * c.Radius * c.Radius * 2.0 * c.HalfHeight
}

func (c *Cylinder) ComputeInertia(mass float64) mgl64.Mat3 {
	r2 := c.Radius * c.Radius
	h := 2.0 * c.HalfHeight
	ix := mass * (3.0*r2 + h*h) / 12.0
	return mgl64.Diag3(mgl64.Vec3{ix, mass * r2 / 2.0, ix})
}

type cylinderSupport struct {
	halfHeight float64
	radius     float64
	convex     float64
}

func (c cylinderSupport) Support(direction mgl64.Vec3) mgl64.Vec3 {
	y := c.halfHeight
	if direction.Y() < 0 {
		y = -y
	}
	horizontal := mgl64.Vec3{direction.X(), 0, direction.Z()}
	lenSq := horizontal.LenSqr()
	if lenSq < Epsilon*Epsilon {
		return mgl64.Vec3{0, y, 0}
	}
	h := horizontal.Mul(c.radius / math.Sqrt(lenSq))
	return mgl64.Vec3{h.X(), y, h.Z()}
}

func (c cylinderSupport) ConvexRadius() float64 {
	return c.convex
}

func (c *Cylinder) SupportFunction(mode SupportMode, scale mgl64.Vec3) Support {
	r := c.convexRadius
	core := cylinderSupport{halfHeight: c.HalfHeight - r, radius: c.Radius - r, convex: r}
	return convexSupport(core, mode, scale)
}

func (c *Cylinder) SupportingFace(direction mgl64.Vec3, scale mgl64.Vec3) []mgl64.Vec3 {
	dir := MulPerElem(direction, scale)
	horizontal := mgl64.Vec3{dir.X(), 0, dir.Z()}
	horizontalLen := horizontal.Len()

	if math.Abs(dir.Y()) > horizontalLen {
		// Top or bottom cap, approximated by a polygon
		y := c.HalfHeight
		if dir.Y() < 0 {
			y = -y
		}
		face := make([]mgl64.Vec3, cylinderFacePoints)
		for i := range face {
			angle := 2.0 * math.Pi * float64(i) / cylinderFacePoints
			if y < 0 {
				angle = -angle
			}
			face[i] = mgl64.Vec3{c.Radius * math.Cos(angle), y, -c.Radius * math.Sin(angle)}
		}
		return scalePoints(face, scale)
	}

	if horizontalLen < Epsilon {
		return nil
	}
	h := horizontal.Mul(c.Radius / horizontalLen)
	return scalePoints([]mgl64.Vec3{
		{h.X(), c.HalfHeight, h.Z()},
		{h.X(), -c.HalfHeight, h.Z()},
	}, scale)
}
