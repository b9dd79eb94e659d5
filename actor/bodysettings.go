package actor

import "github.com/go-gl/mathgl/mgl64"

// BodySettings describes a body before it is handed to a world.
type BodySettings struct {
	Shape    Shape
	Position mgl64.Vec3
	// Rotation defaults to identity when left zero
	Rotation mgl64.Quat

	MotionType    MotionType
	MotionQuality MotionQuality
	ObjectLayer   ObjectLayer
	IsSensor      bool
	// DisableSleeping keeps the body active whatever its velocity
	DisableSleeping bool

	Density         float64
	Restitution     float64
	StaticFriction  float64
	DynamicFriction float64
	LinearDamping   float64
	AngularDamping  float64

	LinearVelocity  mgl64.Vec3
	AngularVelocity mgl64.Vec3

	UserData any
}

// NewBodySettings returns settings with the usual friction of a dynamic body.
func NewBodySettings(shape Shape, position mgl64.Vec3, motionType MotionType) BodySettings {
	return BodySettings{
		Shape:           shape,
		Position:        position,
		Rotation:        mgl64.QuatIdent(),
		MotionType:      motionType,
		Density:         1000,
		StaticFriction:  0.6,
		DynamicFriction: 0.5,
	}
}

// Create builds the body. Its ID stays InvalidBodyID until a world adopts it.
func (s BodySettings) Create() *RigidBody {
	rb := NewRigidBody(Transform{Position: s.Position, Rotation: s.Rotation}, s.Shape, s.MotionType, s.Density)
	rb.MotionQuality = s.MotionQuality
	rb.ObjectLayer = s.ObjectLayer
	rb.IsSensor = s.IsSensor
	rb.AllowSleeping = !s.DisableSleeping
	rb.Material.Restitution = s.Restitution
	rb.Material.StaticFriction = s.StaticFriction
	rb.Material.DynamicFriction = s.DynamicFriction
	rb.Material.LinearDamping = s.LinearDamping
	rb.Material.AngularDamping = s.AngularDamping
	if s.MotionType != MotionTypeStatic {
		rb.Velocity = s.LinearVelocity
		rb.AngularVelocity = s.AngularVelocity
	}
	rb.UserData = s.UserData
	return rb
}
