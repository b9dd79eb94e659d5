package actor

import "github.com/go-gl/mathgl/mgl64"

// Transform represents a position and an orientation in 3D space.
// A zero Rotation is treated as the identity so literal transforms stay usable.
type Transform struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// NewTransform creates an identity transform
func NewTransform() Transform {
	return Transform{
		Position: mgl64.Vec3{0, 0, 0},
		Rotation: mgl64.QuatIdent(),
	}
}

// NewTransformAt creates a transform from a position and a rotation.
func NewTransformAt(position mgl64.Vec3, rotation mgl64.Quat) Transform {
	return Transform{Position: position, Rotation: rotation}
}

func (t Transform) rotation() mgl64.Quat {
	if t.Rotation.W == 0 && t.Rotation.V == (mgl64.Vec3{}) {
		return mgl64.QuatIdent()
	}
	return t.Rotation
}

// Rot returns the rotation, substituting identity for the zero quaternion.
func (t Transform) Rot() mgl64.Quat {
	return t.rotation()
}

// Apply transforms a local point into the parent space.
func (t Transform) Apply(point mgl64.Vec3) mgl64.Vec3 {
	return t.rotation().Rotate(point).Add(t.Position)
}

// ApplyInverse transforms a parent-space point into local space.
func (t Transform) ApplyInverse(point mgl64.Vec3) mgl64.Vec3 {
	return t.rotation().Conjugate().Rotate(point.Sub(t.Position))
}

// RotateDirection rotates a local direction into the parent space.
func (t Transform) RotateDirection(direction mgl64.Vec3) mgl64.Vec3 {
	return t.rotation().Rotate(direction)
}

// InverseRotateDirection rotates a parent-space direction into local space.
func (t Transform) InverseRotateDirection(direction mgl64.Vec3) mgl64.Vec3 {
	return t.rotation().Conjugate().Rotate(direction)
}

// Mul composes t with a child transform expressed in t's local space.
func (t Transform) Mul(child Transform) Transform {
	return Transform{
		Position: t.Apply(child.Position),
		Rotation: t.rotation().Mul(child.rotation()).Normalize(),
	}
}

// Inverse returns the transform mapping parent space back to local space.
func (t Transform) Inverse() Transform {
	inv := t.rotation().Conjugate()
	return Transform{
		Position: inv.Rotate(t.Position).Mul(-1),
		Rotation: inv,
	}
}

// Matrix returns the rotation as a 3x3 matrix.
func (t Transform) Matrix() mgl64.Mat3 {
	return t.rotation().Mat4().Mat3()
}
