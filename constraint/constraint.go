// Package constraint resolves contact manifolds into impulses and position corrections.
package constraint

import (
	"math"

	"github.com/akmonengine/impact/actor"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// DefaultPenetrationSlop is the penetration tolerated before positions are corrected.
	DefaultPenetrationSlop = 0.02
	// DefaultBaumgarteFactor is the share of the penetration removed per position iteration.
	DefaultBaumgarteFactor = 0.2
	// DefaultMinVelocityForRestitution is the approach speed below which contacts do not bounce.
	DefaultMinVelocityForRestitution = 1.0
	// DefaultWarmStartRatio scales the impulses carried over from the previous step.
	DefaultWarmStartRatio = 1.0
	// DefaultPointPreserveDistance is the distance within which a contact point keeps the
	// impulses of the previous step.
	DefaultPointPreserveDistance = 0.01
)

// Settings tune the solver.
type Settings struct {
	PenetrationSlop           float64
	BaumgarteFactor           float64
	MinVelocityForRestitution float64
	WarmStartRatio            float64
}

func DefaultSettings() Settings {
	return Settings{
		PenetrationSlop:           DefaultPenetrationSlop,
		BaumgarteFactor:           DefaultBaumgarteFactor,
		MinVelocityForRestitution: DefaultMinVelocityForRestitution,
		WarmStartRatio:            DefaultWarmStartRatio,
	}
}

// Constraint is solved in three passes: setup once per step, velocity iterations, then
// position iterations after integration.
type Constraint interface {
	SetupVelocity(dt float64, settings Settings)
	WarmStart(ratio float64)
	SolveVelocity() bool
	SolvePosition(settings Settings) bool
}

// SolveVelocities sets up and warm starts the constraints, then iterates until no impulse
// is applied or steps is reached. It returns the number of iterations run.
func SolveVelocities[C Constraint](constraints []C, dt float64, steps int, settings Settings) int {
	for _, c := range constraints {
		c.SetupVelocity(dt, settings)
	}
	for _, c := range constraints {
		c.WarmStart(settings.WarmStartRatio)
	}

	iterations := 0
	for iterations < steps {
		iterations++
		applied := false
		for _, c := range constraints {
			applied = c.SolveVelocity() || applied
		}
		if !applied {
			break
		}
	}
	return iterations
}

// SolvePositions iterates until no correction is applied or steps is reached.
func SolvePositions[C Constraint](constraints []C, steps int, settings Settings) int {
	iterations := 0
	for iterations < steps {
		iterations++
		applied := false
		for _, c := range constraints {
			applied = c.SolvePosition(settings) || applied
		}
		if !applied {
			break
		}
	}
	return iterations
}

func ComputeRestitution(matA, matB actor.Material) float64 {
	// Average, a bouncing body bounces half as much on a dead surface
	return (matA.Restitution + matB.Restitution) / 2.0
}

func ComputeStaticFriction(matA, matB actor.Material) float64 {
	return math.Sqrt(matA.StaticFriction * matB.StaticFriction)
}

func ComputeDynamicFriction(matA, matB actor.Material) float64 {
	return math.Sqrt(matA.DynamicFriction * matB.DynamicFriction)
}

func clampSmallVelocities(rb *actor.RigidBody) {
	const velocityThreshold = 1e-5

	if rb.Velocity.Len() < velocityThreshold {
		rb.Velocity = mgl64.Vec3{0, 0, 0}
	}
	if rb.AngularVelocity.Len() < velocityThreshold {
		rb.AngularVelocity = mgl64.Vec3{0, 0, 0}
	}
}
