package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// BodyID is the stable index of a body in the world.
type BodyID uint32

// InvalidBodyID marks an unused slot.
const InvalidBodyID BodyID = math.MaxUint32

// ObjectLayer is the collision group of a body, mapped to a broad phase layer.
type ObjectLayer uint16

// MotionType represents how a rigid body moves
type MotionType int

const (
	// MotionTypeStatic bodies are immovable and have infinite mass
	// They are not affected by forces or gravity (e.g., ground, walls)
	MotionTypeStatic MotionType = iota

	// MotionTypeKinematic bodies move only through their velocity, unaffected by contacts
	MotionTypeKinematic

	// MotionTypeDynamic bodies are affected by forces, gravity, and collisions
	// They have finite mass and can move freely
	MotionTypeDynamic
)

func (m MotionType) String() string {
	switch m {
	case MotionTypeStatic:
		return "static"
	case MotionTypeKinematic:
		return "kinematic"
	default:
		return "dynamic"
	}
}

// MotionQuality selects between discrete integration and a linear sweep.
type MotionQuality int

const (
	MotionQualityDiscrete MotionQuality = iota
	// MotionQualityLinearCast bodies are swept along their displacement after the discrete
	// bodies have moved, so they cannot tunnel through anything.
	MotionQualityLinearCast
)

type Material struct {
	Density     float64
	mass        float64
	Restitution float64 // 0= no rebound, 1= perfect restitution

	StaticFriction  float64
	DynamicFriction float64
	LinearDamping   float64 // 0.0 - 1.0, typical: 0.01
	AngularDamping  float64 // 0.0 - 1.0, typical: 0.05
}

func (material Material) GetMass() float64 {
	return material.mass
}

// RigidBody represents a rigid body in the physics simulation
type RigidBody struct {
	ID BodyID

	// Spatial properties, Position is the shape origin
	PreviousTransform Transform
	Transform         Transform

	// Linear motion
	Velocity mgl64.Vec3 // Linear velocity (m/s)

	// Angular motion
	AngularVelocity     mgl64.Vec3 // rad/s
	InertiaLocal        mgl64.Mat3
	InverseInertiaLocal mgl64.Mat3

	accumulatedForce  mgl64.Vec3
	accumulatedTorque mgl64.Vec3

	IsSleeping    bool
	SleepTimer    float64
	AllowSleeping bool

	// Physical properties
	Material      Material
	MotionType    MotionType
	MotionQuality MotionQuality
	ObjectLayer   ObjectLayer
	// IsSensor bodies report contacts but never get a response
	IsSensor bool

	// Collision shape
	Shape Shape

	UserData any

	bounds AABB
}

// NewRigidBody creates a new rigid body with the given properties
// density is used to calculate mass for dynamic bodies (ignored otherwise)
func NewRigidBody(transform Transform, shape Shape, motionType MotionType, density float64) *RigidBody {
	if transform.Rotation == (mgl64.Quat{}) {
		transform.Rotation = mgl64.QuatIdent()
	}
	rb := &RigidBody{
		ID:                InvalidBodyID,
		PreviousTransform: transform,
		Transform:         transform,
		Shape:             shape,
		MotionType:        motionType,
		AllowSleeping:     true,
	}

	if motionType == MotionTypeDynamic {
		// Dynamic bodies compute mass from shape and density
		rb.Material = Material{
			Density: density,
			mass:    shape.ComputeMass(density),
		}
		rb.InertiaLocal = shape.ComputeInertia(rb.Material.mass)
		if rb.InertiaLocal.Det() != 0 {
			rb.InverseInertiaLocal = rb.InertiaLocal.Inv()
		}
	} else {
		// Static and kinematic bodies have infinite mass
		rb.Material = Material{mass: math.Inf(1)}
	}

	rb.UpdateBounds()
	return rb
}

// ========== STATE ==========

func (rb *RigidBody) IsDynamic() bool   { return rb.MotionType == MotionTypeDynamic }
func (rb *RigidBody) IsStatic() bool    { return rb.MotionType == MotionTypeStatic }
func (rb *RigidBody) IsKinematic() bool { return rb.MotionType == MotionTypeKinematic }

// IsActive reports whether the body takes part in the simulation this step.
func (rb *RigidBody) IsActive() bool {
	return rb.MotionType != MotionTypeStatic && !rb.IsSleeping
}

// InverseMass is zero for static and kinematic bodies.
func (rb *RigidBody) InverseMass() float64 {
	if rb.MotionType != MotionTypeDynamic || rb.Material.mass <= 0 || math.IsInf(rb.Material.mass, 1) {
		return 0
	}
	return 1.0 / rb.Material.mass
}

// WorldBounds returns the bounds computed by the last UpdateBounds call.
func (rb *RigidBody) WorldBounds() AABB {
	return rb.bounds
}

func (rb *RigidBody) UpdateBounds() {
	rb.bounds = rb.Shape.WorldBounds(rb.Transform, UnitScale)
}

// CenterOfMassPosition returns the center of mass in world space.
func (rb *RigidBody) CenterOfMassPosition() mgl64.Vec3 {
	return rb.Transform.Apply(rb.Shape.CenterOfMass())
}

// PointVelocity returns the velocity of a world space point attached to the body.
func (rb *RigidBody) PointVelocity(point mgl64.Vec3) mgl64.Vec3 {
	r := point.Sub(rb.CenterOfMassPosition())
	return rb.Velocity.Add(rb.AngularVelocity.Cross(r))
}

// ApplyImpulse changes the velocities by an impulse applied at a world space point.
func (rb *RigidBody) ApplyImpulse(impulse, point mgl64.Vec3) {
	if rb.MotionType != MotionTypeDynamic {
		return
	}
	rb.Velocity = rb.Velocity.Add(impulse.Mul(rb.InverseMass()))
	r := point.Sub(rb.CenterOfMassPosition())
	rb.AngularVelocity = rb.AngularVelocity.Add(rb.GetInverseInertiaWorld().Mul3x1(r.Cross(impulse)))
}

// ========== SLEEP ==========

func (rb *RigidBody) TrySleep(dt float64, timethreshold float64, velocityThreshold float64) bool {
	if !rb.AllowSleeping {
		return false
	}
	if rb.Velocity.Len() < velocityThreshold && rb.AngularVelocity.Len() < velocityThreshold {
		rb.SleepTimer += dt
		return rb.SleepTimer >= timethreshold
	}
	rb.SleepTimer = 0.0
	return false
}

func (rb *RigidBody) Sleep() {
	rb.IsSleeping = true
	rb.SleepTimer = 0.0

	rb.ClearForces()
	rb.Velocity = mgl64.Vec3{}
	rb.AngularVelocity = mgl64.Vec3{}
}

func (rb *RigidBody) Awake() {
	rb.IsSleeping = false
	rb.SleepTimer = 0.0
}

// ========== INTEGRATION ==========

// ApplyForces integrates gravity and the accumulated forces into the velocities.
func (rb *RigidBody) ApplyForces(dt float64, gravity mgl64.Vec3) {
	if !rb.IsActive() {
		return
	}
	rb.PreviousTransform = rb.Transform
	if rb.MotionType != MotionTypeDynamic {
		return
	}

	invMass := rb.InverseMass()
	rb.Velocity = rb.Velocity.Add(gravity.Mul(dt)).Add(rb.accumulatedForce.Mul(invMass * dt))
	rb.Velocity = rb.Velocity.Mul(math.Exp(-rb.Material.LinearDamping * dt))

	angularAccel := rb.GetInverseInertiaWorld().Mul3x1(rb.accumulatedTorque)
	rb.AngularVelocity = rb.AngularVelocity.Add(angularAccel.Mul(dt))
	rb.AngularVelocity = rb.AngularVelocity.Mul(math.Exp(-rb.Material.AngularDamping * dt))

	rb.ClearForces()
}

// IntegratePosition advances the transform by the current velocities, rotating around the
// center of mass.
func (rb *RigidBody) IntegratePosition(dt float64) {
	if !rb.IsActive() {
		return
	}

	localCOM := rb.Shape.CenterOfMass()
	com := rb.Transform.Apply(localCOM).Add(rb.Velocity.Mul(dt))

	rotation := rb.Transform.Rot()
	omegaQuat := mgl64.Quat{V: rb.AngularVelocity, W: 0}
	qDot := omegaQuat.Mul(rotation).Scale(0.5)
	rotation = rotation.Add(qDot.Scale(dt)).Normalize()

	rb.Transform.Rotation = rotation
	rb.Transform.Position = com.Sub(rotation.Rotate(localCOM))
}

// Translate moves the body without touching its velocity.
func (rb *RigidBody) Translate(offset mgl64.Vec3) {
	rb.Transform.Position = rb.Transform.Position.Add(offset)
}

func (rb *RigidBody) AddForce(force mgl64.Vec3) {
	if rb.MotionType == MotionTypeDynamic {
		rb.Awake()
		rb.accumulatedForce = rb.accumulatedForce.Add(force)
	}
}

func (rb *RigidBody) AddTorque(torque mgl64.Vec3) {
	if rb.MotionType == MotionTypeDynamic {
		rb.Awake()
		rb.accumulatedTorque = rb.accumulatedTorque.Add(torque)
	}
}

func (rb *RigidBody) ClearForces() {
	rb.accumulatedForce = mgl64.Vec3{0, 0, 0}
	rb.accumulatedTorque = mgl64.Vec3{0, 0, 0}
}

// GetInertiaWorld returns R * I_local * R^T
func (rb *RigidBody) GetInertiaWorld() mgl64.Mat3 {
	R := rb.Transform.Matrix()
	return R.Mul3(rb.InertiaLocal).Mul3(R.Transpose())
}

// GetInverseInertiaWorld returns R * I_local^(-1) * R^T, zero for non dynamic bodies
func (rb *RigidBody) GetInverseInertiaWorld() mgl64.Mat3 {
	if rb.MotionType != MotionTypeDynamic {
		return mgl64.Mat3{}
	}

	R := rb.Transform.Matrix()
	return R.Mul3(rb.InverseInertiaLocal).Mul3(R.Transpose())
}
