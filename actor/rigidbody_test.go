package actor

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

// ========== CONSTRUCTION ==========

func TestMotionType_String(t *testing.T) {
	tests := []struct {
		motionType MotionType
		expected   string
	}{
		{MotionTypeStatic, "static"},
		{MotionTypeKinematic, "kinematic"},
		{MotionTypeDynamic, "dynamic"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.motionType.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNewRigidBody(t *testing.T) {
	tests := []struct {
		name            string
		shape           Shape
		motionType      MotionType
		density         float64
		expectedMass    float64
		expectedInvMass float64
	}{
		{"dynamic box", &Box{HalfExtents: mgl64.Vec3{1, 1, 1}}, MotionTypeDynamic, 2, 16, 1.0 / 16},
		{"dynamic sphere", &Sphere{Radius: 1}, MotionTypeDynamic, 1, 4.0 / 3.0 * math.Pi, 3.0 / (4.0 * math.Pi)},
		{"static box", &Box{HalfExtents: mgl64.Vec3{1, 1, 1}}, MotionTypeStatic, 2, math.Inf(1), 0},
		{"kinematic sphere", &Sphere{Radius: 1}, MotionTypeKinematic, 1, math.Inf(1), 0},
		{"zero density", &Sphere{Radius: 1}, MotionTypeDynamic, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := NewRigidBody(Transform{Position: mgl64.Vec3{1, 2, 3}}, tt.shape, tt.motionType, tt.density)

			if rb.ID != InvalidBodyID {
				t.Errorf("ID = %v, want InvalidBodyID", rb.ID)
			}
			if rb.Transform.Rotation != mgl64.QuatIdent() {
				t.Errorf("zero rotation should become identity, got %v", rb.Transform.Rotation)
			}
			if math.IsInf(tt.expectedMass, 1) {
				if !math.IsInf(rb.Material.GetMass(), 1) {
					t.Errorf("mass = %v, want +Inf", rb.Material.GetMass())
				}
			} else if !almostEqual(rb.Material.GetMass(), tt.expectedMass, 1e-9) {
				t.Errorf("mass = %v, want %v", rb.Material.GetMass(), tt.expectedMass)
			}
			if !almostEqual(rb.InverseMass(), tt.expectedInvMass, 1e-9) {
				t.Errorf("InverseMass() = %v, want %v", rb.InverseMass(), tt.expectedInvMass)
			}
			if !rb.WorldBounds().ContainsPoint(mgl64.Vec3{1, 2, 3}) {
				t.Errorf("WorldBounds() = %v should contain the position", rb.WorldBounds())
			}
		})
	}
}

func TestRigidBody_IsActive(t *testing.T) {
	static := NewRigidBody(NewTransform(), &Sphere{Radius: 1}, MotionTypeStatic, 1)
	if static.IsActive() {
		t.Error("static bodies are never active")
	}

	dynamic := NewRigidBody(NewTransform(), &Sphere{Radius: 1}, MotionTypeDynamic, 1)
	if !dynamic.IsActive() {
		t.Error("new dynamic body should be active")
	}
	dynamic.Sleep()
	if dynamic.IsActive() {
		t.Error("sleeping body should not be active")
	}
	dynamic.Awake()
	if !dynamic.IsActive() {
		t.Error("awoken body should be active")
	}
}

// ========== INTEGRATION ==========

func TestApplyForces_Gravity(t *testing.T) {
	rb := NewRigidBody(NewTransform(), &Sphere{Radius: 1}, MotionTypeDynamic, 1)
	gravity := mgl64.Vec3{0, -9.81, 0}
	dt := 1.0 / 60.0

	for i := 0; i < 60; i++ {
		rb.ApplyForces(dt, gravity)
	}

	if !vec3AlmostEqual(rb.Velocity, mgl64.Vec3{0, -9.81, 0}, 1e-9) {
		t.Errorf("Velocity after 1s = %v, want (0,-9.81,0)", rb.Velocity)
	}
	if rb.Transform.Position != (mgl64.Vec3{}) {
		t.Errorf("ApplyForces should not move the body, got %v", rb.Transform.Position)
	}
}

func TestApplyForces_NonDynamic(t *testing.T) {
	for _, motionType := range []MotionType{MotionTypeStatic, MotionTypeKinematic} {
		t.Run(motionType.String(), func(t *testing.T) {
			rb := NewRigidBody(NewTransform(), &Box{HalfExtents: mgl64.Vec3{1, 1, 1}}, motionType, 1)
			rb.Velocity = mgl64.Vec3{1, 0, 0}
			rb.ApplyForces(0.1, mgl64.Vec3{0, -9.81, 0})
			if rb.Velocity != (mgl64.Vec3{1, 0, 0}) {
				t.Errorf("Velocity = %v, want unchanged", rb.Velocity)
			}
		})
	}
}

func TestApplyForces_AccumulatedForce(t *testing.T) {
	rb := NewRigidBody(NewTransform(), &Box{HalfExtents: mgl64.Vec3{0.5, 0.5, 0.5}}, MotionTypeDynamic, 2)
	rb.AddForce(mgl64.Vec3{4, 0, 0})
	rb.ApplyForces(0.5, mgl64.Vec3{})

	// a = F/m = 4/2
	if !vec3AlmostEqual(rb.Velocity, mgl64.Vec3{1, 0, 0}, 1e-12) {
		t.Errorf("Velocity = %v, want (1,0,0)", rb.Velocity)
	}

	rb.ApplyForces(0.5, mgl64.Vec3{})
	if !vec3AlmostEqual(rb.Velocity, mgl64.Vec3{1, 0, 0}, 1e-12) {
		t.Errorf("forces should be cleared after a step, Velocity = %v", rb.Velocity)
	}
}

func TestApplyForces_Damping(t *testing.T) {
	tests := []struct {
		name    string
		damping float64
	}{
		{"no damping", 0},
		{"light damping", 0.1},
		{"heavy damping", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := NewRigidBody(NewTransform(), &Sphere{Radius: 1}, MotionTypeDynamic, 1)
			rb.Material.LinearDamping = tt.damping
			rb.Material.AngularDamping = tt.damping
			rb.Velocity = mgl64.Vec3{10, 0, 0}
			rb.AngularVelocity = mgl64.Vec3{0, 2, 0}

			rb.ApplyForces(0.1, mgl64.Vec3{})

			factor := math.Exp(-tt.damping * 0.1)
			if !almostEqual(rb.Velocity.X(), 10*factor, 1e-9) {
				t.Errorf("Velocity.X = %v, want %v", rb.Velocity.X(), 10*factor)
			}
			if !almostEqual(rb.AngularVelocity.Y(), 2*factor, 1e-9) {
				t.Errorf("AngularVelocity.Y = %v, want %v", rb.AngularVelocity.Y(), 2*factor)
			}
		})
	}
}

func TestIntegratePosition_Linear(t *testing.T) {
	rb := NewRigidBody(Transform{Position: mgl64.Vec3{0, 10, 0}}, &Sphere{Radius: 1}, MotionTypeDynamic, 1)
	rb.Velocity = mgl64.Vec3{1, -2, 3}

	rb.ApplyForces(0.5, mgl64.Vec3{})
	rb.IntegratePosition(0.5)

	if !vec3AlmostEqual(rb.Transform.Position, mgl64.Vec3{0.5, 9, 1.5}, 1e-12) {
		t.Errorf("Position = %v, want (0.5,9,1.5)", rb.Transform.Position)
	}
	if !vec3AlmostEqual(rb.PreviousTransform.Position, mgl64.Vec3{0, 10, 0}, 1e-12) {
		t.Errorf("PreviousTransform.Position = %v, want (0,10,0)", rb.PreviousTransform.Position)
	}
}

func TestIntegratePosition_Sleeping(t *testing.T) {
	rb := NewRigidBody(NewTransform(), &Sphere{Radius: 1}, MotionTypeDynamic, 1)
	rb.Sleep()
	rb.Velocity = mgl64.Vec3{5, 0, 0}
	rb.IntegratePosition(1)
	if rb.Transform.Position != (mgl64.Vec3{}) {
		t.Errorf("sleeping body moved to %v", rb.Transform.Position)
	}
}

func TestIntegratePosition_Angular(t *testing.T) {
	rb := NewRigidBody(NewTransform(), &Box{HalfExtents: mgl64.Vec3{1, 1, 1}}, MotionTypeDynamic, 1)
	rb.AngularVelocity = mgl64.Vec3{0, math.Pi / 2, 0}

	dt := 1.0 / 600.0
	for i := 0; i < 600; i++ {
		rb.IntegratePosition(dt)
	}

	// A quarter turn around Y maps +X to -Z
	got := rb.Transform.Rot().Rotate(mgl64.Vec3{1, 0, 0})
	if !vec3AlmostEqual(got, mgl64.Vec3{0, 0, -1}, 1e-2) {
		t.Errorf("rotated +X = %v, want (0,0,-1)", got)
	}
	if !almostEqual(rb.Transform.Rot().Len(), 1, 1e-9) {
		t.Errorf("rotation not normalized: |q| = %v", rb.Transform.Rot().Len())
	}
}

func TestIntegratePosition_RotatesAroundCenterOfMass(t *testing.T) {
	shape := NewOffsetCenterOfMass(&Sphere{Radius: 1}, mgl64.Vec3{1, 0, 0})
	rb := NewRigidBody(NewTransform(), shape, MotionTypeDynamic, 1)
	rb.AngularVelocity = mgl64.Vec3{0, 0, 1}

	before := rb.CenterOfMassPosition()
	for i := 0; i < 100; i++ {
		rb.IntegratePosition(0.01)
	}
	if !vec3AlmostEqual(rb.CenterOfMassPosition(), before, 1e-9) {
		t.Errorf("center of mass moved from %v to %v", before, rb.CenterOfMassPosition())
	}
}

// ========== SLEEP ==========

func TestTrySleep(t *testing.T) {
	rb := NewRigidBody(NewTransform(), &Sphere{Radius: 1}, MotionTypeDynamic, 1)
	rb.Velocity = mgl64.Vec3{0.01, 0, 0}

	dt := 0.1
	for i := 0; i < 4; i++ {
		if rb.TrySleep(dt, 0.5, 0.05) {
			t.Fatalf("sleep due too early at step %d", i)
		}
	}
	if !rb.TrySleep(dt, 0.5, 0.05) {
		t.Fatal("sleep should be due after 0.5s of rest")
	}

	t.Run("motion resets the timer", func(t *testing.T) {
		rb.Velocity = mgl64.Vec3{1, 0, 0}
		if rb.TrySleep(dt, 0.5, 0.05) {
			t.Error("moving body should not be ready to sleep")
		}
		if rb.SleepTimer != 0 {
			t.Errorf("SleepTimer = %v, want 0", rb.SleepTimer)
		}
	})

	t.Run("sleep disallowed", func(t *testing.T) {
		rb.AllowSleeping = false
		rb.Velocity = mgl64.Vec3{}
		for i := 0; i < 10; i++ {
			if rb.TrySleep(dt, 0.5, 0.05) {
				t.Fatal("AllowSleeping=false body should never sleep")
			}
		}
	})
}

func TestSleep_ClearsMotion(t *testing.T) {
	rb := NewRigidBody(NewTransform(), &Sphere{Radius: 1}, MotionTypeDynamic, 1)
	rb.Velocity = mgl64.Vec3{1, 2, 3}
	rb.AngularVelocity = mgl64.Vec3{1, 0, 0}
	rb.AddForce(mgl64.Vec3{10, 0, 0})

	rb.Sleep()
	if rb.Velocity != (mgl64.Vec3{}) || rb.AngularVelocity != (mgl64.Vec3{}) {
		t.Errorf("Sleep() left velocity %v / %v", rb.Velocity, rb.AngularVelocity)
	}

	rb.Awake()
	rb.ApplyForces(1, mgl64.Vec3{})
	if rb.Velocity != (mgl64.Vec3{}) {
		t.Errorf("force accumulated before sleeping leaked: %v", rb.Velocity)
	}
}

// ========== IMPULSES AND INERTIA ==========

func TestApplyImpulse(t *testing.T) {
	rb := NewRigidBody(NewTransform(), &Box{HalfExtents: mgl64.Vec3{1, 1, 1}}, MotionTypeDynamic, 1)
	mass := rb.Material.GetMass()

	t.Run("through the center", func(t *testing.T) {
		rb.Velocity, rb.AngularVelocity = mgl64.Vec3{}, mgl64.Vec3{}
		rb.ApplyImpulse(mgl64.Vec3{mass, 0, 0}, mgl64.Vec3{})
		if !vec3AlmostEqual(rb.Velocity, mgl64.Vec3{1, 0, 0}, 1e-12) {
			t.Errorf("Velocity = %v, want (1,0,0)", rb.Velocity)
		}
		if rb.AngularVelocity.Len() > 1e-12 {
			t.Errorf("AngularVelocity = %v, want zero", rb.AngularVelocity)
		}
	})

	t.Run("off center spins", func(t *testing.T) {
		rb.Velocity, rb.AngularVelocity = mgl64.Vec3{}, mgl64.Vec3{}
		rb.ApplyImpulse(mgl64.Vec3{mass, 0, 0}, mgl64.Vec3{0, 1, 0})
		// r x J = (0,1,0) x (m,0,0) = (0,0,-m)
		if rb.AngularVelocity.Z() >= 0 {
			t.Errorf("AngularVelocity = %v, want negative Z", rb.AngularVelocity)
		}
		// I = m*(4+4)/12 so |w| = 1.5
		if !vec3AlmostEqual(rb.PointVelocity(mgl64.Vec3{0, 1, 0}), mgl64.Vec3{1 + 1.5, 0, 0}, 1e-9) {
			t.Errorf("PointVelocity = %v, want (2.5,0,0)", rb.PointVelocity(mgl64.Vec3{0, 1, 0}))
		}
	})

	t.Run("static ignores impulses", func(t *testing.T) {
		static := NewRigidBody(NewTransform(), &Sphere{Radius: 1}, MotionTypeStatic, 1)
		static.ApplyImpulse(mgl64.Vec3{100, 0, 0}, mgl64.Vec3{})
		if static.Velocity != (mgl64.Vec3{}) {
			t.Errorf("static body velocity = %v", static.Velocity)
		}
	})
}

func TestGetInertiaWorld(t *testing.T) {
	rb := NewRigidBody(NewTransform(), &Box{HalfExtents: mgl64.Vec3{2, 1, 0.5}}, MotionTypeDynamic, 1)
	rb.Transform.Rotation = mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1})

	local := rb.InertiaLocal.Diag()
	world := rb.GetInertiaWorld()
	// A quarter turn around Z swaps the X and Y moments
	if !almostEqual(world.At(0, 0), local.Y(), 1e-9) || !almostEqual(world.At(1, 1), local.X(), 1e-9) {
		t.Errorf("world inertia diagonal = %v, local = %v", world.Diag(), local)
	}

	product := world.Mul3(rb.GetInverseInertiaWorld())
	if !product.ApproxEqualThreshold(mgl64.Ident3(), 1e-9) {
		t.Errorf("I * I^-1 = %v, want identity", product)
	}
}

func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

func vec3AlmostEqual(a, b mgl64.Vec3, epsilon float64) bool {
	return almostEqual(a.X(), b.X(), epsilon) &&
		almostEqual(a.Y(), b.Y(), epsilon) &&
		almostEqual(a.Z(), b.Z(), epsilon)
}
