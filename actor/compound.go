package actor

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// CompoundChild places a shape inside a compound.
type CompoundChild struct {
	Shape    Shape
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

func (c CompoundChild) Transform() Transform {
	return Transform{Position: c.Position, Rotation: c.Rotation}
}

// Compound is a static set of child shapes. Each child is addressed by its index in the
// sub shape id. Bounds, volume and unit inertia are computed once, so nesting compounds costs
// nothing per query.
type Compound struct {
	Children []CompoundChild

	childBounds  []AABB
	childVolumes []float64
	bounds       AABB
	childBits    uint
	idBits       uint
	volume       float64
	unitInertia  mgl64.Mat3
	centerOfMass mgl64.Vec3
	innerRadius  float64
}

// NewCompound validates that the hierarchy fits in a SubShapeID.
func NewCompound(children []CompoundChild) (*Compound, error) {
	if len(children) == 0 {
		return nil, ErrNoChildren
	}

	c := &Compound{
		Children:  children,
		childBits: bitsForCount(len(children)),
	}
	var maxChildBits uint
	for i, child := range children {
		if child.Shape == nil {
			return nil, fmt.Errorf("compound child %d: %w", i, ErrDegenerate)
		}
		maxChildBits = max(maxChildBits, child.Shape.SubShapeIDBits())
	}
	c.idBits = c.childBits + maxChildBits
	if c.idBits > MaxSubShapeIDBits {
		return nil, fmt.Errorf("compound needs %d bits: %w", c.idBits, ErrSubShapeIDBitsExhausted)
	}

	c.childBounds = make([]AABB, len(children))
	c.childVolumes = make([]float64, len(children))
	c.bounds = EmptyAABB()
	var weighted mgl64.Vec3
	for i, child := range children {
		c.childBounds[i] = child.Shape.WorldBounds(child.Transform(), UnitScale)
		c.bounds = c.bounds.Encapsulate(c.childBounds[i])
		c.innerRadius = max(c.innerRadius, child.Shape.InnerRadius())

		c.childVolumes[i] = child.Shape.ComputeMass(1.0)
		c.volume += c.childVolumes[i]
		weighted = weighted.Add(child.Transform().Apply(child.Shape.CenterOfMass()).Mul(c.childVolumes[i]))
	}
	if c.volume > 0 {
		c.centerOfMass = weighted.Mul(1.0 / c.volume)
		c.unitInertia = c.inertia(1.0)
	}
	return c, nil
}

func (c *Compound) Type() ShapeType          { return ShapeTypeCompound }
func (c *Compound) Category() ShapeCategory  { return CategoryCompound }
func (c *Compound) CenterOfMass() mgl64.Vec3 { return c.centerOfMass }
func (c *Compound) SubShapeIDBits() uint     { return c.idBits }
func (c *Compound) ChildBits() uint          { return c.childBits }
func (c *Compound) InnerRadius() float64     { return c.innerRadius }
func (c *Compound) LocalBounds() AABB        { return c.bounds }

func (c *Compound) WorldBounds(transform Transform, scale mgl64.Vec3) AABB {
	return boundsOf(c.bounds, transform, scale)
}

// ChildTransform returns the world transform and scale of child i. Rotated children only
// support uniform scale.
func (c *Compound) ChildTransform(i int, transform Transform, scale mgl64.Vec3) (Transform, mgl64.Vec3) {
	child := c.Children[i]
	local := Transform{Position: MulPerElem(child.Position, scale), Rotation: child.Rotation}
	return transform.Mul(local), scale
}

// WalkChildren calls fn for each child whose local bounds overlap box.
func (c *Compound) WalkChildren(box AABB, fn func(index int) bool) {
	for i, b := range c.childBounds {
		if b.Overlaps(box) && !fn(i) {
			return
		}
	}
}

func (c *Compound) ComputeMass(density float64) float64 {
	return density * c.volume
}

func (c *Compound) ComputeInertia(mass float64) mgl64.Mat3 {
	return c.unitInertia.Mul(mass)
}

// inertia distributes mass by child volume and applies the parallel axis theorem.
func (c *Compound) inertia(mass float64) mgl64.Mat3 {
	var inertia mgl64.Mat3
	for i, child := range c.Children {
		childMass := mass * c.childVolumes[i] / c.volume
		r := child.Transform().Matrix()
		local := r.Mul3(child.Shape.ComputeInertia(childMass)).Mul3(r.Transpose())

		d := child.Transform().Apply(child.Shape.CenterOfMass()).Sub(c.centerOfMass)
		dd := d.Dot(d)
		shift := mgl64.Diag3(mgl64.Vec3{dd, dd, dd}).Sub(outer(d, d)).Mul(childMass)
		inertia = inertia.Add(local).Add(shift)
	}
	return inertia
}

func outer(a, b mgl64.Vec3) mgl64.Mat3 {
	// column major
	return mgl64.Mat3{
		a[0] * b[0], a[1] * b[0], a[2] * b[0],
		a[0] * b[1], a[1] * b[1], a[2] * b[1],
		a[0] * b[2], a[1] * b[2], a[2] * b[2],
	}
}
