package actor

import "github.com/go-gl/mathgl/mgl64"

// Scaled applies a per-axis scale to its inner shape.
type Scaled struct {
	inner Shape
	Scale mgl64.Vec3
}

func NewScaled(inner Shape, scale mgl64.Vec3) *Scaled {
	return &Scaled{inner: inner, Scale: scale}
}

func (s *Scaled) Inner() Shape            { return s.inner }
func (s *Scaled) Type() ShapeType         { return ShapeTypeScaled }
func (s *Scaled) Category() ShapeCategory { return CategoryDecorated }
func (s *Scaled) SubShapeIDBits() uint    { return s.inner.SubShapeIDBits() }
func (s *Scaled) InnerRadius() float64 {
	return s.inner.InnerRadius() * minAbsComponent(s.Scale)
}
func (s *Scaled) CenterOfMass() mgl64.Vec3 {
	return MulPerElem(s.inner.CenterOfMass(), s.Scale)
}
func (s *Scaled) LocalBounds() AABB {
	return s.inner.LocalBounds().Scaled(s.Scale)
}

func (s *Scaled) WorldBounds(transform Transform, scale mgl64.Vec3) AABB {
	t, sc := s.ChildTransform(transform, scale)
	return s.inner.WorldBounds(t, sc)
}

func (s *Scaled) ChildTransform(transform Transform, scale mgl64.Vec3) (Transform, mgl64.Vec3) {
	return transform, MulPerElem(scale, s.Scale)
}

func (s *Scaled) ComputeMass(density float64) float64 {
	volumeScale := s.Scale.X() * s.Scale.Y() * s.Scale.Z()
	if volumeScale < 0 {
		volumeScale = -volumeScale
	}
	return s.inner.ComputeMass(density) * volumeScale
}

// ComputeInertia scales each principal moment by the square of the other two axes.
func (s *Scaled) ComputeInertia(mass float64) mgl64.Mat3 {
	i := s.inner.ComputeInertia(mass)
	sq := MulPerElem(s.Scale, s.Scale)
	diag := i.Diag()
	// I_x ~ y² + z², approximated from the unscaled moments
	return mgl64.Diag3(mgl64.Vec3{
		diag[0] * (sq[1] + sq[2]) / 2,
		diag[1] * (sq[0] + sq[2]) / 2,
		diag[2] * (sq[0] + sq[1]) / 2,
	})
}

// RotatedTranslated places its inner shape with a fixed local offset and rotation.
type RotatedTranslated struct {
	inner    Shape
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

func NewRotatedTranslated(inner Shape, position mgl64.Vec3, rotation mgl64.Quat) *RotatedTranslated {
	return &RotatedTranslated{inner: inner, Position: position, Rotation: rotation}
}

func (r *RotatedTranslated) local() Transform {
	return Transform{Position: r.Position, Rotation: r.Rotation}
}

func (r *RotatedTranslated) Inner() Shape            { return r.inner }
func (r *RotatedTranslated) Type() ShapeType         { return ShapeTypeRotatedTranslated }
func (r *RotatedTranslated) Category() ShapeCategory { return CategoryDecorated }
func (r *RotatedTranslated) SubShapeIDBits() uint    { return r.inner.SubShapeIDBits() }
func (r *RotatedTranslated) InnerRadius() float64    { return r.inner.InnerRadius() }
func (r *RotatedTranslated) CenterOfMass() mgl64.Vec3 {
	return r.local().Apply(r.inner.CenterOfMass())
}
func (r *RotatedTranslated) LocalBounds() AABB {
	return r.inner.WorldBounds(r.local(), UnitScale)
}

func (r *RotatedTranslated) WorldBounds(transform Transform, scale mgl64.Vec3) AABB {
	t, sc := r.ChildTransform(transform, scale)
	return r.inner.WorldBounds(t, sc)
}

// ChildTransform assumes a uniform scale when the rotation is not the identity.
func (r *RotatedTranslated) ChildTransform(transform Transform, scale mgl64.Vec3) (Transform, mgl64.Vec3) {
	local := Transform{Position: MulPerElem(r.Position, scale), Rotation: r.Rotation}
	return transform.Mul(local), scale
}

func (r *RotatedTranslated) ComputeMass(density float64) float64 {
	return r.inner.ComputeMass(density)
}

func (r *RotatedTranslated) ComputeInertia(mass float64) mgl64.Mat3 {
	m := r.local().Matrix()
	return m.Mul3(r.inner.ComputeInertia(mass)).Mul3(m.Transpose())
}

// OffsetCenterOfMass shifts the center of mass without moving the collision geometry.
type OffsetCenterOfMass struct {
	inner  Shape
	Offset mgl64.Vec3
}

func NewOffsetCenterOfMass(inner Shape, offset mgl64.Vec3) *OffsetCenterOfMass {
	return &OffsetCenterOfMass{inner: inner, Offset: offset}
}

func (o *OffsetCenterOfMass) Inner() Shape            { return o.inner }
func (o *OffsetCenterOfMass) Type() ShapeType         { return ShapeTypeOffsetCenterOfMass }
func (o *OffsetCenterOfMass) Category() ShapeCategory { return CategoryDecorated }
func (o *OffsetCenterOfMass) SubShapeIDBits() uint    { return o.inner.SubShapeIDBits() }
func (o *OffsetCenterOfMass) InnerRadius() float64    { return o.inner.InnerRadius() }
func (o *OffsetCenterOfMass) LocalBounds() AABB       { return o.inner.LocalBounds() }
func (o *OffsetCenterOfMass) CenterOfMass() mgl64.Vec3 {
	return o.inner.CenterOfMass().Add(o.Offset)
}

func (o *OffsetCenterOfMass) WorldBounds(transform Transform, scale mgl64.Vec3) AABB {
	return o.inner.WorldBounds(transform, scale)
}

func (o *OffsetCenterOfMass) ChildTransform(transform Transform, scale mgl64.Vec3) (Transform, mgl64.Vec3) {
	return transform, scale
}

func (o *OffsetCenterOfMass) ComputeMass(density float64) float64 {
	return o.inner.ComputeMass(density)
}

func (o *OffsetCenterOfMass) ComputeInertia(mass float64) mgl64.Mat3 {
	return o.inner.ComputeInertia(mass)
}
