package constraint

import (
	"math"

	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/narrowphase"
	"github.com/go-gl/mathgl/mgl64"
)

// ContactPoint is one point of a contact constraint with its accumulated impulses.
type ContactPoint struct {
	// LocalPosition1 and LocalPosition2 are the contact on each body, in body space
	LocalPosition1 mgl64.Vec3
	LocalPosition2 mgl64.Vec3

	NormalLambda  float64
	TangentLambda [2]float64

	r1, r2      mgl64.Vec3
	normalMass  float64
	tangentMass [2]float64
	// minNormalVelocity is the smallest relative normal velocity the point accepts
	minNormalVelocity float64
}

// ContactConstraint keeps two bodies from approaching along Normal more than their
// separation allows. Speculative points (positive separation) let the bodies close the gap
// within the step but not cross it.
type ContactConstraint struct {
	Body1 *actor.RigidBody
	Body2 *actor.RigidBody
	// Normal points from Body1 towards Body2
	Normal mgl64.Vec3
	Points []ContactPoint

	StaticFriction  float64
	DynamicFriction float64
	Restitution     float64

	tangents           [2]mgl64.Vec3
	invMass1, invMass2 float64
	invInertia1        mgl64.Mat3
	invInertia2        mgl64.Mat3
}

// NewContactConstraint builds the constraint of a manifold whose shape 1 belongs to body1,
// combining the materials of both bodies.
func NewContactConstraint(body1, body2 *actor.RigidBody, manifold *narrowphase.ContactManifold) *ContactConstraint {
	c := &ContactConstraint{
		Body1:           body1,
		Body2:           body2,
		Normal:          manifold.WorldSpaceNormal,
		Points:          make([]ContactPoint, manifold.Len()),
		StaticFriction:  ComputeStaticFriction(body1.Material, body2.Material),
		DynamicFriction: ComputeDynamicFriction(body1.Material, body2.Material),
		Restitution:     ComputeRestitution(body1.Material, body2.Material),
	}
	for i := range c.Points {
		c.Points[i].LocalPosition1 = body1.Transform.ApplyInverse(manifold.ContactPointsOn1[i])
		c.Points[i].LocalPosition2 = body2.Transform.ApplyInverse(manifold.ContactPointsOn2[i])
	}
	return c
}

// InheritImpulses copies the impulses of previous points lying within maxDistance of a
// point on both bodies.
func (c *ContactConstraint) InheritImpulses(previous []ContactPoint, maxDistance float64) {
	maxDistSq := maxDistance * maxDistance
	for i := range c.Points {
		p := &c.Points[i]
		for _, old := range previous {
			if p.LocalPosition1.Sub(old.LocalPosition1).LenSqr() < maxDistSq &&
				p.LocalPosition2.Sub(old.LocalPosition2).LenSqr() < maxDistSq {
				p.NormalLambda = old.NormalLambda
				p.TangentLambda = old.TangentLambda
				break
			}
		}
	}
}

// effectiveMass returns the inverse of the mass seen along direction at the offsets r1, r2.
func (c *ContactConstraint) effectiveMass(r1, r2, direction mgl64.Vec3) float64 {
	r1xd := r1.Cross(direction)
	r2xd := r2.Cross(direction)
	k := c.invMass1 + c.invMass2 +
		c.invInertia1.Mul3x1(r1xd).Dot(r1xd) +
		c.invInertia2.Mul3x1(r2xd).Dot(r2xd)
	return actor.SafeDiv(1.0, k, 0)
}

// relativeVelocity is the velocity of the point on Body2 relative to the point on Body1.
func (c *ContactConstraint) relativeVelocity(p *ContactPoint) mgl64.Vec3 {
	v1 := c.Body1.Velocity.Add(c.Body1.AngularVelocity.Cross(p.r1))
	v2 := c.Body2.Velocity.Add(c.Body2.AngularVelocity.Cross(p.r2))
	return v2.Sub(v1)
}

// applyImpulse gives +impulse to Body2 and -impulse to Body1. Non dynamic bodies are never
// written, as they may be shared with constraints solved concurrently.
func (c *ContactConstraint) applyImpulse(p *ContactPoint, impulse mgl64.Vec3) {
	if c.invMass1 > 0 {
		c.Body1.Velocity = c.Body1.Velocity.Sub(impulse.Mul(c.invMass1))
		c.Body1.AngularVelocity = c.Body1.AngularVelocity.Sub(c.invInertia1.Mul3x1(p.r1.Cross(impulse)))
	}
	if c.invMass2 > 0 {
		c.Body2.Velocity = c.Body2.Velocity.Add(impulse.Mul(c.invMass2))
		c.Body2.AngularVelocity = c.Body2.AngularVelocity.Add(c.invInertia2.Mul3x1(p.r2.Cross(impulse)))
	}
}

// ========== VELOCITY ==========

// SetupVelocity computes the effective masses and the velocity targets of every point.
//
// A point separated by d may approach at d/dt. When the bodies approach faster than both
// that speed and MinVelocityForRestitution, the target is the bounce velocity instead.
func (c *ContactConstraint) SetupVelocity(dt float64, settings Settings) {
	for _, body := range []*actor.RigidBody{c.Body1, c.Body2} {
		if body.IsDynamic() {
			clampSmallVelocities(body)
		}
	}

	c.invMass1 = c.Body1.InverseMass()
	c.invMass2 = c.Body2.InverseMass()
	c.invInertia1 = c.Body1.GetInverseInertiaWorld()
	c.invInertia2 = c.Body2.GetInverseInertiaWorld()
	c.tangents[0], c.tangents[1] = actor.TangentBasis(c.Normal)

	com1 := c.Body1.CenterOfMassPosition()
	com2 := c.Body2.CenterOfMassPosition()

	for i := range c.Points {
		p := &c.Points[i]
		world1 := c.Body1.Transform.Apply(p.LocalPosition1)
		world2 := c.Body2.Transform.Apply(p.LocalPosition2)
		p.r1 = world1.Sub(com1)
		p.r2 = world2.Sub(com2)

		p.normalMass = c.effectiveMass(p.r1, p.r2, c.Normal)
		p.tangentMass[0] = c.effectiveMass(p.r1, p.r2, c.tangents[0])
		p.tangentMass[1] = c.effectiveMass(p.r1, p.r2, c.tangents[1])

		separation := world2.Sub(world1).Dot(c.Normal)
		speculative := -math.Max(0, separation) / dt
		normalVelocity := c.relativeVelocity(p).Dot(c.Normal)

		p.minNormalVelocity = speculative
		if c.Restitution > 0 && normalVelocity < -settings.MinVelocityForRestitution && normalVelocity < speculative {
			p.minNormalVelocity = -c.Restitution * normalVelocity
		}
	}
}

// WarmStart applies the impulses inherited from the previous step, scaled by ratio.
func (c *ContactConstraint) WarmStart(ratio float64) {
	for i := range c.Points {
		p := &c.Points[i]
		p.NormalLambda *= ratio
		p.TangentLambda[0] *= ratio
		p.TangentLambda[1] *= ratio

		impulse := c.Normal.Mul(p.NormalLambda).
			Add(c.tangents[0].Mul(p.TangentLambda[0])).
			Add(c.tangents[1].Mul(p.TangentLambda[1]))
		c.applyImpulse(p, impulse)
	}
}

// SolveVelocity runs one iteration, friction first, and reports whether any impulse changed.
func (c *ContactConstraint) SolveVelocity() bool {
	applied := false

	// ========== FRICTION ==========
	for i := range c.Points {
		p := &c.Points[i]
		maxStatic := c.StaticFriction * p.NormalLambda
		if maxStatic <= 0 && p.TangentLambda == [2]float64{} {
			continue
		}

		relativeVel := c.relativeVelocity(p)
		old := p.TangentLambda
		lambda := [2]float64{
			old[0] - relativeVel.Dot(c.tangents[0])*p.tangentMass[0],
			old[1] - relativeVel.Dot(c.tangents[1])*p.tangentMass[1],
		}

		// Coulomb's law: |F_friction| <= mu * |F_normal|, sliding uses the dynamic coefficient
		magnitude := math.Hypot(lambda[0], lambda[1])
		if magnitude > maxStatic {
			scale := actor.SafeDiv(c.DynamicFriction*p.NormalLambda, magnitude, 0)
			lambda[0] *= scale
			lambda[1] *= scale
		}

		delta := [2]float64{lambda[0] - old[0], lambda[1] - old[1]}
		if delta[0] != 0 || delta[1] != 0 {
			p.TangentLambda = lambda
			c.applyImpulse(p, c.tangents[0].Mul(delta[0]).Add(c.tangents[1].Mul(delta[1])))
			applied = true
		}
	}

	// ========== NORMAL ==========
	for i := range c.Points {
		p := &c.Points[i]
		normalVelocity := c.relativeVelocity(p).Dot(c.Normal)

		// Accumulated impulses never pull the bodies together
		lambda := math.Max(0, p.NormalLambda+(p.minNormalVelocity-normalVelocity)*p.normalMass)
		delta := lambda - p.NormalLambda
		if delta != 0 {
			p.NormalLambda = lambda
			c.applyImpulse(p, c.Normal.Mul(delta))
			applied = true
		}
	}

	return applied
}

// ========== POSITION ==========

// SolvePosition pushes the bodies apart by BaumgarteFactor of the penetration exceeding
// PenetrationSlop, recomputing every point from the current transforms.
func (c *ContactConstraint) SolvePosition(settings Settings) bool {
	invMass1 := c.Body1.InverseMass()
	invMass2 := c.Body2.InverseMass()
	if invMass1 == 0 && invMass2 == 0 {
		return false
	}

	applied := false
	for i := range c.Points {
		p := &c.Points[i]
		world1 := c.Body1.Transform.Apply(p.LocalPosition1)
		world2 := c.Body2.Transform.Apply(p.LocalPosition2)

		separation := world2.Sub(world1).Dot(c.Normal) + settings.PenetrationSlop
		if separation >= 0 {
			continue
		}

		r1 := world1.Sub(c.Body1.CenterOfMassPosition())
		r2 := world2.Sub(c.Body2.CenterOfMassPosition())
		invInertia1 := c.Body1.GetInverseInertiaWorld()
		invInertia2 := c.Body2.GetInverseInertiaWorld()

		r1xn := r1.Cross(c.Normal)
		r2xn := r2.Cross(c.Normal)
		k := invMass1 + invMass2 + invInertia1.Mul3x1(r1xn).Dot(r1xn) + invInertia2.Mul3x1(r2xn).Dot(r2xn)
		lambda := actor.SafeDiv(-settings.BaumgarteFactor*separation, k, 0)
		if lambda <= 0 {
			continue
		}

		correction := c.Normal.Mul(lambda)
		if invMass1 > 0 {
			correctPosition(c.Body1, correction.Mul(-invMass1), invInertia1.Mul3x1(r1.Cross(correction.Mul(-1))))
		}
		if invMass2 > 0 {
			correctPosition(c.Body2, correction.Mul(invMass2), invInertia2.Mul3x1(r2.Cross(correction)))
		}
		applied = true
	}
	return applied
}

// correctPosition moves the center of mass by linear and rotates the body around it by the
// small angle angular.
func correctPosition(body *actor.RigidBody, linear, angular mgl64.Vec3) {
	localCOM := body.Shape.CenterOfMass()
	com := body.Transform.Apply(localCOM).Add(linear)

	rotation := body.Transform.Rot()
	// For a small angle δθ, the rotation quaternion is q_delta ≈ [1, δθ/2]
	if angular.LenSqr() > 1e-20 {
		qDelta := mgl64.Quat{W: 1.0, V: angular.Mul(0.5)}.Normalize()
		rotation = qDelta.Mul(rotation).Normalize()
	}

	body.Transform.Rotation = rotation
	body.Transform.Position = com.Sub(rotation.Rotate(localCOM))
}

var _ Constraint = (*ContactConstraint)(nil)
