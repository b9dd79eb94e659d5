package narrowphase

import (
	"math"
	"testing"

	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/collector"
	"github.com/go-gl/mathgl/mgl64"
)

func castRay(shape actor.Shape, ray Ray, position mgl64.Vec3, settings RayCastSettings) (RayCastResult, bool) {
	c := collector.NewClosestHit[RayCastResult]()
	CastRay(shape, ray, at(position), actor.UnitScale, settings, root(), c)
	return c.Hit, c.HadHit()
}

func unitCubeHull(t *testing.T) *actor.ConvexHull {
	t.Helper()
	var points []mgl64.Vec3
	for _, x := range []float64{-1, 1} {
		for _, y := range []float64{-1, 1} {
			for _, z := range []float64{-1, 1} {
				points = append(points, mgl64.Vec3{x, y, z})
			}
		}
	}
	hull, err := actor.NewConvexHull(points)
	if err != nil {
		t.Fatalf("NewConvexHull() error = %v", err)
	}
	return hull
}

// closedCube is a box mesh of half extent 1 around the origin.
func closedCube(t *testing.T) *actor.Mesh {
	t.Helper()
	vertices := []mgl64.Vec3{
		{-1, -1, -1}, {1, -1, -1}, {1, 1, -1}, {-1, 1, -1},
		{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1},
	}
	triangles := [][3]uint32{
		{0, 2, 1}, {0, 3, 2}, // -z
		{4, 5, 6}, {4, 6, 7}, // +z
		{0, 1, 5}, {0, 5, 4}, // -y
		{3, 7, 6}, {3, 6, 2}, // +y
		{0, 4, 7}, {0, 7, 3}, // -x
		{1, 2, 6}, {1, 6, 5}, // +x
	}
	mesh, err := actor.NewMesh(vertices, triangles, actor.DefaultActiveEdgeCosThreshold)
	if err != nil {
		t.Fatalf("NewMesh() error = %v", err)
	}
	return mesh
}

// ========== RAYS ==========

func TestCastRay_Convex(t *testing.T) {
	sphere := &actor.Sphere{Radius: 1}
	box := actor.NewBox(mgl64.Vec3{1, 1, 1}, 0.1)
	hull := unitCubeHull(t)
	capsule := &actor.Capsule{HalfHeight: 1, Radius: 1}

	ray := Ray{Origin: mgl64.Vec3{0, 0, 0}, Direction: mgl64.Vec3{10, 0, 0}}
	tests := []struct {
		name     string
		shape    actor.Shape
		position mgl64.Vec3
		hit      bool
		fraction float64
	}{
		{"sphere", sphere, mgl64.Vec3{5, 0, 0}, true, 0.4},
		{"box", box, mgl64.Vec3{5, 0, 0}, true, 0.4},
		{"convex hull", hull, mgl64.Vec3{5, 0, 0}, true, 0.4},
		{"capsule", capsule, mgl64.Vec3{5, 0, 0}, true, 0.4},
		{"sphere beside the ray", sphere, mgl64.Vec3{5, 2, 0}, false, 0},
		{"sphere behind the origin", sphere, mgl64.Vec3{-5, 0, 0}, false, 0},
		{"sphere past the end", sphere, mgl64.Vec3{12, 0, 0}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit, ok := castRay(tt.shape, ray, tt.position, DefaultRayCastSettings())
			if ok != tt.hit {
				t.Fatalf("hit = %v, want %v", ok, tt.hit)
			}
			if ok && math.Abs(hit.Fraction-tt.fraction) > 1e-3 {
				t.Errorf("Fraction = %v, want %v", hit.Fraction, tt.fraction)
			}
		})
	}
}

func TestCastRay_StartingInside(t *testing.T) {
	sphere := &actor.Sphere{Radius: 1}
	box := actor.NewBox(mgl64.Vec3{1, 1, 1}, 0)
	hull := unitCubeHull(t)
	ray := Ray{Origin: mgl64.Vec3{0, 0, 0}, Direction: mgl64.Vec3{2, 0, 0}}

	for _, shape := range []actor.Shape{sphere, box, hull} {
		t.Run(shape.Type().String(), func(t *testing.T) {
			settings := DefaultRayCastSettings()
			hit, ok := castRay(shape, ray, mgl64.Vec3{}, settings)
			if !ok || hit.Fraction != 0 {
				t.Errorf("solid: hit = %v at %v, want a hit at 0", ok, hit.Fraction)
			}

			settings.TreatConvexAsSolid = false
			if _, ok := castRay(shape, ray, mgl64.Vec3{}, settings); ok {
				t.Errorf("hollow without back faces should not hit")
			}

			settings.BackFaceMode = CollideWithBackFaces
			hit, ok = castRay(shape, ray, mgl64.Vec3{}, settings)
			if !ok || math.Abs(hit.Fraction-0.5) > 1e-3 {
				t.Errorf("hollow with back faces: hit = %v at %v, want the exit at 0.5", ok, hit.Fraction)
			}
		})
	}
}

func TestCastRay_Mesh(t *testing.T) {
	mesh := flatGrid(t)
	down := Ray{Origin: mgl64.Vec3{0.5, 2, 1.5}, Direction: mgl64.Vec3{0, -4, 0}}
	up := Ray{Origin: mgl64.Vec3{0.5, -2, 1.5}, Direction: mgl64.Vec3{0, 4, 0}}

	hit, ok := castRay(mesh, down, mgl64.Vec3{}, DefaultRayCastSettings())
	if !ok || math.Abs(hit.Fraction-0.5) > 1e-9 {
		t.Fatalf("down: hit = %v at %v, want 0.5", ok, hit.Fraction)
	}
	if index, _ := hit.SubShapeID.PopID(mesh.SubShapeIDBits()); index != 0 {
		t.Errorf("down: hit triangle %d, want 0", index)
	}

	if _, ok := castRay(mesh, up, mgl64.Vec3{}, DefaultRayCastSettings()); ok {
		t.Errorf("up: back face hit with IgnoreBackFaces")
	}
	settings := DefaultRayCastSettings()
	settings.BackFaceMode = CollideWithBackFaces
	if hit, ok := castRay(mesh, up, mgl64.Vec3{}, settings); !ok || math.Abs(hit.Fraction-0.5) > 1e-9 {
		t.Errorf("up: hit = %v at %v, want 0.5", ok, hit.Fraction)
	}

	// A scaled and moved mesh keeps fractions in world space
	c := collector.NewClosestHit[RayCastResult]()
	CastRay(mesh, down, at(mgl64.Vec3{-1, 1, -2}), mgl64.Vec3{2, 1, 2}, DefaultRayCastSettings(), root(), c)
	if !c.HadHit() || math.Abs(c.Hit.Fraction-0.25) > 1e-9 {
		t.Errorf("transformed: hit = %v at %v, want 0.25", c.HadHit(), c.Hit.Fraction)
	}
}

func TestCastRay_Compound(t *testing.T) {
	sphere := &actor.Sphere{Radius: 0.5}
	compound, err := actor.NewCompound([]actor.CompoundChild{
		{Shape: sphere, Position: mgl64.Vec3{2, 0, 0}, Rotation: mgl64.QuatIdent()},
		{Shape: sphere, Position: mgl64.Vec3{4, 0, 0}, Rotation: mgl64.QuatIdent()},
	})
	if err != nil {
		t.Fatalf("NewCompound() error = %v", err)
	}

	ray := Ray{Origin: mgl64.Vec3{0, 0, 0}, Direction: mgl64.Vec3{10, 0, 0}}
	all := collector.NewAllHit[RayCastResult]()
	CastRay(compound, ray, at(mgl64.Vec3{}), actor.UnitScale, DefaultRayCastSettings(), root(), all)
	if len(all.Hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(all.Hits))
	}

	hit, ok := castRay(compound, ray, mgl64.Vec3{}, DefaultRayCastSettings())
	if !ok || math.Abs(hit.Fraction-0.15) > 1e-9 {
		t.Fatalf("closest hit = %v at %v, want 0.15", ok, hit.Fraction)
	}
	if index, _ := hit.SubShapeID.PopID(compound.ChildBits()); index != 0 {
		t.Errorf("closest child = %d, want 0", index)
	}
}

func TestRayTriangle(t *testing.T) {
	v0, v1, v2 := mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0, 0, 1}, mgl64.Vec3{1, 0, 0}

	tests := []struct {
		name      string
		origin    mgl64.Vec3
		direction mgl64.Vec3
		hit       bool
		front     bool
		fraction  float64
	}{
		{"from above", mgl64.Vec3{0.2, 1, 0.2}, mgl64.Vec3{0, -2, 0}, true, true, 0.5},
		{"from below", mgl64.Vec3{0.2, -1, 0.2}, mgl64.Vec3{0, 2, 0}, true, false, 0.5},
		{"too short", mgl64.Vec3{0.2, 1, 0.2}, mgl64.Vec3{0, -0.5, 0}, false, false, 0},
		{"outside", mgl64.Vec3{0.8, 1, 0.8}, mgl64.Vec3{0, -2, 0}, false, false, 0},
		{"parallel", mgl64.Vec3{-1, 0, 0.2}, mgl64.Vec3{2, 0, 0}, false, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fraction, front, hit := rayTriangle(tt.origin, tt.direction, v0, v1, v2)
			if hit != tt.hit {
				t.Fatalf("hit = %v, want %v", hit, tt.hit)
			}
			if hit && (front != tt.front || math.Abs(fraction-tt.fraction) > 1e-12) {
				t.Errorf("got fraction %v front %v, want %v %v", fraction, front, tt.fraction, tt.front)
			}
		})
	}
}

// ========== POINTS ==========

func TestCollidePoint(t *testing.T) {
	heights := []float64{
		0, 0, 0,
		0, 1, 0,
		0, 0, 0,
	}
	hf, err := actor.NewHeightField(heights, 3, 1, mgl64.Vec3{})
	if err != nil {
		t.Fatalf("NewHeightField() error = %v", err)
	}

	tests := []struct {
		name   string
		shape  actor.Shape
		point  mgl64.Vec3
		inside bool
	}{
		{"sphere inside", &actor.Sphere{Radius: 1}, mgl64.Vec3{0.5, 0.5, 0}, true},
		{"sphere outside", &actor.Sphere{Radius: 1}, mgl64.Vec3{0.8, 0.8, 0}, false},
		{"box inside", actor.NewBox(mgl64.Vec3{1, 2, 1}, 0), mgl64.Vec3{0.9, 1.9, 0}, true},
		{"box outside", actor.NewBox(mgl64.Vec3{1, 2, 1}, 0), mgl64.Vec3{1.1, 0, 0}, false},
		{"hull inside", unitCubeHull(t), mgl64.Vec3{0.5, -0.5, 0.5}, true},
		{"hull outside", unitCubeHull(t), mgl64.Vec3{1.5, 0, 0}, false},
		{"capsule inside", &actor.Capsule{HalfHeight: 1, Radius: 0.5}, mgl64.Vec3{0, 1.4, 0}, true},
		{"capsule outside", &actor.Capsule{HalfHeight: 1, Radius: 0.5}, mgl64.Vec3{0.4, 1.4, 0}, false},
		{"closed mesh inside", closedCube(t), mgl64.Vec3{0.3, 0.2, -0.4}, true},
		{"closed mesh outside", closedCube(t), mgl64.Vec3{0.3, 1.2, -0.4}, false},
		{"height field below the bump", hf, mgl64.Vec3{1, 0.9, 1}, true},
		{"height field above the bump", hf, mgl64.Vec3{1, 1.1, 1}, false},
		{"height field outside the grid", hf, mgl64.Vec3{3, -1, 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := collector.NewAnyHit[CollidePointResult]()
			CollidePoint(tt.shape, tt.point, at(mgl64.Vec3{}), actor.UnitScale, root(), c)
			if c.HadHit() != tt.inside {
				t.Errorf("inside = %v, want %v", c.HadHit(), tt.inside)
			}
		})
	}
}

func TestCollidePoint_Compound(t *testing.T) {
	compound, err := actor.NewCompound([]actor.CompoundChild{
		{Shape: &actor.Sphere{Radius: 0.5}, Position: mgl64.Vec3{-1, 0, 0}, Rotation: mgl64.QuatIdent()},
		{Shape: actor.NewBox(mgl64.Vec3{0.5, 0.5, 0.5}, 0), Position: mgl64.Vec3{1, 0, 0}, Rotation: mgl64.QuatIdent()},
	})
	if err != nil {
		t.Fatalf("NewCompound() error = %v", err)
	}

	c := collector.NewAllHit[CollidePointResult]()
	CollidePoint(compound, mgl64.Vec3{11.2, 0.3, 0}, at(mgl64.Vec3{10, 0, 0}), actor.UnitScale, root(), c)
	if len(c.Hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(c.Hits))
	}
	if index, _ := c.Hits[0].SubShapeID.PopID(compound.ChildBits()); index != 1 {
		t.Errorf("child = %d, want 1", index)
	}

	c.Reset()
	CollidePoint(compound, mgl64.Vec3{10, 0, 0}, at(mgl64.Vec3{10, 0, 0}), actor.UnitScale, root(), c)
	if c.HadHit() {
		t.Errorf("the gap between children is not inside")
	}
}
