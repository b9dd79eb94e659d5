package actor

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

// Helper functions
func vec3Equal(a, b mgl64.Vec3, tolerance float64) bool {
	return math.Abs(a.X()-b.X()) < tolerance &&
		math.Abs(a.Y()-b.Y()) < tolerance &&
		math.Abs(a.Z()-b.Z()) < tolerance
}

func floatEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}

// ========== INERTIA ==========
func TestBoxComputeInertia(t *testing.T) {
	tests := []struct {
		name         string
		box          *Box
		mass         float64
		expectedDiag mgl64.Vec3
	}{
		{
			name:         "unit cube",
			box:          &Box{HalfExtents: mgl64.Vec3{1, 1, 1}},
			mass:         12.0,
			expectedDiag: mgl64.Vec3{8, 8, 8},
		},
		{
			name:         "rectangular box 2x3x4",
			box:          &Box{HalfExtents: mgl64.Vec3{2, 3, 4}},
			mass:         12.0,
			expectedDiag: mgl64.Vec3{100, 80, 52},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.box.ComputeInertia(tt.mass)
			if !vec3Equal(result.Diag(), tt.expectedDiag, 1e-6) {
				t.Errorf("ComputeInertia() diagonal = %v, want %v", result.Diag(), tt.expectedDiag)
			}
		})
	}
}

func TestSphereComputeInertia(t *testing.T) {
	sphere := &Sphere{Radius: 2}
	got := sphere.ComputeInertia(5)
	want := 0.4 * 5 * 4
	if !vec3Equal(got.Diag(), mgl64.Vec3{want, want, want}, 1e-9) {
		t.Errorf("ComputeInertia() = %v, want %v on the diagonal", got.Diag(), want)
	}
}

// ========== SUPPORT FUNCTIONS ==========

// supportIsExtreme checks that no sampled point of the set beats the support point.
func supportIsExtreme(t *testing.T, s Support, samples []mgl64.Vec3, direction mgl64.Vec3) {
	t.Helper()
	best := s.Support(direction).Dot(direction)
	for _, p := range samples {
		if p.Dot(direction) > best+1e-9 {
			t.Errorf("sample %v beats support %v along %v", p, s.Support(direction), direction)
		}
	}
}

func TestConvexSupportFunctions(t *testing.T) {
	directions := []mgl64.Vec3{
		{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1},
		{1, 1, 0}, {-1, 2, 3}, {0.2, -0.7, 0.1},
	}

	box := NewBox(mgl64.Vec3{1, 2, 3}, 0)
	var boxCorners []mgl64.Vec3
	for _, sx := range []float64{-1, 1} {
		for _, sy := range []float64{-2, 2} {
			for _, sz := range []float64{-3, 3} {
				boxCorners = append(boxCorners, mgl64.Vec3{sx, sy, sz})
			}
		}
	}

	capsule := &Capsule{HalfHeight: 1, Radius: 0.5}
	var capsuleSamples []mgl64.Vec3
	for i := 0; i < 64; i++ {
		d := mgl64.Vec3{math.Cos(float64(i)), math.Sin(float64(i) * 1.3), math.Sin(float64(i))}.Normalize()
		capsuleSamples = append(capsuleSamples, mgl64.Vec3{0, 1, 0}.Add(d.Mul(0.5)), mgl64.Vec3{0, -1, 0}.Add(d.Mul(0.5)))
	}

	for _, dir := range directions {
		supportIsExtreme(t, box.SupportFunction(IncludeConvexRadius, UnitScale), boxCorners, dir)
		supportIsExtreme(t, capsule.SupportFunction(IncludeConvexRadius, UnitScale), capsuleSamples, dir)
	}

	t.Run("box core plus radius reaches the surface", func(t *testing.T) {
		rounded := NewBox(mgl64.Vec3{1, 2, 3}, 0.1)
		core := rounded.SupportFunction(ExcludeConvexRadius, UnitScale)
		if !floatEqual(core.ConvexRadius(), 0.1, 1e-12) {
			t.Fatalf("ConvexRadius() = %v, want 0.1", core.ConvexRadius())
		}
		p := core.Support(mgl64.Vec3{1, 0, 0})
		if !floatEqual(p.X()+core.ConvexRadius(), 1, 1e-12) {
			t.Errorf("core support x = %v, want 0.9", p.X())
		}
	})

	t.Run("sphere with scale", func(t *testing.T) {
		sphere := &Sphere{Radius: 1}
		s := sphere.SupportFunction(IncludeConvexRadius, mgl64.Vec3{2, 2, 2})
		if p := s.Support(mgl64.Vec3{0, 1, 0}); !vec3Equal(p, mgl64.Vec3{0, 2, 0}, 1e-9) {
			t.Errorf("scaled sphere support = %v, want (0,2,0)", p)
		}
	})

	t.Run("zero direction stays finite", func(t *testing.T) {
		sphere := &Sphere{Radius: 1}
		p := sphere.SupportFunction(IncludeConvexRadius, UnitScale).Support(mgl64.Vec3{})
		for i := 0; i < 3; i++ {
			if math.IsNaN(p[i]) {
				t.Fatalf("support along zero direction = %v", p)
			}
		}
	})
}

func TestBoxSupportingFace(t *testing.T) {
	box := &Box{HalfExtents: mgl64.Vec3{1, 2, 3}}
	face := box.SupportingFace(mgl64.Vec3{0, 1, 0.1}, UnitScale)
	if len(face) != 4 {
		t.Fatalf("SupportingFace() returned %d points, want 4", len(face))
	}
	for _, p := range face {
		if !floatEqual(p.Y(), 2, 1e-12) {
			t.Errorf("face point %v not on the +Y face", p)
		}
	}
	// CCW seen from outside
	n := TriangleNormal(face[0], face[1], face[2])
	if n.Y() <= 0 {
		t.Errorf("face winding normal = %v, want +Y", n)
	}
}

// ========== CONVEX HULL ==========

func TestNewConvexHull(t *testing.T) {
	cube := []mgl64.Vec3{
		{-1, -1, -1}, {1, -1, -1}, {-1, 1, -1}, {1, 1, -1},
		{-1, -1, 1}, {1, -1, 1}, {-1, 1, 1}, {1, 1, 1},
		{0, 0, 0}, // interior point, dropped
	}

	t.Run("cube", func(t *testing.T) {
		hull, err := NewConvexHull(cube)
		if err != nil {
			t.Fatalf("NewConvexHull() error = %v", err)
		}
		if len(hull.Points) != 8 {
			t.Errorf("hull has %d points, want 8", len(hull.Points))
		}
		if len(hull.Faces) != 6 {
			t.Errorf("hull has %d faces, want 6", len(hull.Faces))
		}
		if !floatEqual(hull.Volume(), 8, 1e-9) {
			t.Errorf("Volume() = %v, want 8", hull.Volume())
		}
		if !vec3Equal(hull.CenterOfMass(), mgl64.Vec3{}, 1e-9) {
			t.Errorf("CenterOfMass() = %v, want origin", hull.CenterOfMass())
		}
		if !floatEqual(hull.InnerRadius(), 1, 1e-9) {
			t.Errorf("InnerRadius() = %v, want 1", hull.InnerRadius())
		}
	})

	t.Run("too few points", func(t *testing.T) {
		_, err := NewConvexHull([]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 1, 0}})
		if !errors.Is(err, ErrTooFewPoints) {
			t.Errorf("NewConvexHull() error = %v, want ErrTooFewPoints", err)
		}
	})

	t.Run("coplanar", func(t *testing.T) {
		_, err := NewConvexHull([]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 0, 1}, {1, 0, 1}, {2, 0, 3}})
		if !errors.Is(err, ErrDegenerate) {
			t.Errorf("NewConvexHull() error = %v, want ErrDegenerate", err)
		}
	})
}

// ========== COMPOUND ==========

func TestNewCompoundSubShapeBits(t *testing.T) {
	leaf := &Sphere{Radius: 1}

	t.Run("fits", func(t *testing.T) {
		c, err := NewCompound([]CompoundChild{{Shape: leaf}, {Shape: leaf, Position: mgl64.Vec3{3, 0, 0}}, {Shape: leaf}})
		if err != nil {
			t.Fatalf("NewCompound() error = %v", err)
		}
		if c.SubShapeIDBits() != 2 {
			t.Errorf("SubShapeIDBits() = %d, want 2", c.SubShapeIDBits())
		}
	})

	t.Run("exhausted by nesting", func(t *testing.T) {
		// 8 children use 3 bits per level, the 11th level needs 33 bits
		var shape Shape = leaf
		var err error
		for level := 0; level < 11; level++ {
			children := make([]CompoundChild, 8)
			for i := range children {
				children[i] = CompoundChild{Shape: shape, Position: mgl64.Vec3{float64(i), 0, 0}}
			}
			shape, err = NewCompound(children)
			if err != nil {
				break
			}
		}
		if !errors.Is(err, ErrSubShapeIDBitsExhausted) {
			t.Errorf("nested NewCompound() error = %v, want ErrSubShapeIDBitsExhausted", err)
		}
	})

	t.Run("no children", func(t *testing.T) {
		if _, err := NewCompound(nil); !errors.Is(err, ErrNoChildren) {
			t.Errorf("NewCompound(nil) error = %v, want ErrNoChildren", err)
		}
	})
}

func TestCompound_DeepNesting(t *testing.T) {
	// every level holds 8 copies of the level below, 8^10 spheres in total
	leaf := &Sphere{Radius: 1}
	var shape Shape = leaf
	for level := 0; level < 10; level++ {
		children := make([]CompoundChild, 8)
		for i := range children {
			children[i] = CompoundChild{Shape: shape, Position: mgl64.Vec3{float64(i), 0, 0}}
		}
		c, err := NewCompound(children)
		if err != nil {
			t.Fatalf("level %d: NewCompound() error = %v", level, err)
		}
		shape = c
	}

	if shape.SubShapeIDBits() != 30 {
		t.Errorf("SubShapeIDBits() = %d, want 30", shape.SubShapeIDBits())
	}
	bounds := shape.WorldBounds(NewTransformAt(mgl64.Vec3{0, 5, 0}, mgl64.QuatIdent()), UnitScale)
	want := AABB{Min: mgl64.Vec3{-1, 4, -1}, Max: mgl64.Vec3{71, 6, 1}}
	if !vec3Equal(bounds.Min, want.Min, 1e-9) || !vec3Equal(bounds.Max, want.Max, 1e-9) {
		t.Errorf("WorldBounds() = %v, want %v", bounds, want)
	}
	wantMass := math.Pow(8, 10) * leaf.ComputeMass(1)
	if got := shape.ComputeMass(1); math.Abs(got-wantMass) > 1e-9*wantMass {
		t.Errorf("ComputeMass() = %v, want %v", got, wantMass)
	}
}

func TestCompound_Inertia(t *testing.T) {
	leaf := &Sphere{Radius: 1}
	c, err := NewCompound([]CompoundChild{
		{Shape: leaf, Position: mgl64.Vec3{-2, 0, 0}},
		{Shape: leaf, Position: mgl64.Vec3{2, 0, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}

	// each sphere weighs 1: 0.4 around its center, plus 1 * 2^2 off the x axis
	inertia := c.ComputeInertia(2)
	want := mgl64.Vec3{0.8, 8.8, 8.8}
	for i := range 3 {
		if math.Abs(inertia.At(i, i)-want[i]) > 1e-9 {
			t.Errorf("inertia[%d][%d] = %v, want %v", i, i, inertia.At(i, i), want[i])
		}
	}
	if !vec3Equal(c.CenterOfMass(), mgl64.Vec3{}, 1e-12) {
		t.Errorf("CenterOfMass() = %v, want origin", c.CenterOfMass())
	}
}

func TestSubShapeIDRoundTrip(t *testing.T) {
	c := NewSubShapeIDCreator().PushID(5, 3).PushID(1, 1).PushID(300, 9)
	if c.NumBits() != 13 {
		t.Fatalf("NumBits() = %d, want 13", c.NumBits())
	}

	id := c.ID()
	values := []struct {
		bits uint
		want uint32
	}{{3, 5}, {1, 1}, {9, 300}}
	for _, v := range values {
		var got uint32
		got, id = id.PopID(v.bits)
		if got != v.want {
			t.Errorf("PopID(%d) = %d, want %d", v.bits, got, v.want)
		}
	}
	if !id.IsEmpty() {
		t.Errorf("remainder = %x, want empty", uint32(id))
	}
}

func TestSubShapeID_NeverAliasesRoot(t *testing.T) {
	tests := []struct {
		name  string
		build func() SubShapeIDCreator
	}{
		{"last triangle of a two triangle mesh", func() SubShapeIDCreator {
			return NewSubShapeIDCreator().PushID(1, 1)
		}},
		{"all ones at every level", func() SubShapeIDCreator {
			return NewSubShapeIDCreator().PushID(7, 3).PushID(15, 4)
		}},
		{"full budget", func() SubShapeIDCreator {
			return NewSubShapeIDCreator().PushID(math.MaxUint16, 16).PushID(1<<15-1, 15)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.build()
			if c.ID().IsEmpty() {
				t.Fatalf("ID() = %x aliases the root", uint32(c.ID()))
			}
			// popping every level lands on the root
			id := c.ID()
			for range c.NumBits() {
				_, id = id.PopID(1)
			}
			if !id.IsEmpty() {
				t.Errorf("remainder = %x after popping %d bits, want empty", uint32(id), c.NumBits())
			}
		})
	}

	// levels beyond the budget are dropped
	c := NewSubShapeIDCreator().PushID(1, 16).PushID(1, 16)
	if c.NumBits() != 16 {
		t.Errorf("NumBits() = %d, want 16", c.NumBits())
	}

	// two paths of different depth stay distinct
	short := NewSubShapeIDCreator().PushID(1, 1).ID()
	long := NewSubShapeIDCreator().PushID(1, 1).PushID(1, 1).ID()
	if short == long {
		t.Errorf("paths of depth 1 and 2 share id %x", uint32(short))
	}
}

// ========== MESH ==========

// gridMesh builds an n x n quad grid in the XZ plane at height y, triangles facing +Y.
func gridMesh(t *testing.T, n int, y float64) *Mesh {
	t.Helper()
	var vertices []mgl64.Vec3
	for z := 0; z <= n; z++ {
		for x := 0; x <= n; x++ {
			vertices = append(vertices, mgl64.Vec3{float64(x), y, float64(z)})
		}
	}
	var triangles [][3]uint32
	row := uint32(n + 1)
	for z := uint32(0); z < uint32(n); z++ {
		for x := uint32(0); x < uint32(n); x++ {
			i00 := z*row + x
			triangles = append(triangles,
				[3]uint32{i00, i00 + row, i00 + row + 1},
				[3]uint32{i00, i00 + row + 1, i00 + 1})
		}
	}
	mesh, err := NewMesh(vertices, triangles, DefaultActiveEdgeCosThreshold)
	if err != nil {
		t.Fatalf("NewMesh() error = %v", err)
	}
	return mesh
}

func TestMeshActiveEdges(t *testing.T) {
	mesh := gridMesh(t, 2, 0)

	for i := 0; i < mesh.NumTriangles(); i++ {
		v0, v1, v2, flags := mesh.Triangle(i)
		if n := TriangleNormal(v0, v1, v2); n.Y() <= 0 {
			t.Fatalf("triangle %d normal = %v, want +Y", i, n)
		}
		verts := [3]mgl64.Vec3{v0, v1, v2}
		for e := 0; e < 3; e++ {
			a, b := verts[e], verts[(e+1)%3]
			onBorder := (a.X() == b.X() && (a.X() == 0 || a.X() == 2)) ||
				(a.Z() == b.Z() && (a.Z() == 0 || a.Z() == 2))
			active := flags&(1<<e) != 0
			if active != onBorder {
				t.Errorf("triangle %d edge %d active = %v, want %v", i, e, active, onBorder)
			}
		}
	}
}

func TestMeshWalkTriangles(t *testing.T) {
	mesh := gridMesh(t, 8, 0)

	var found []int
	mesh.WalkTriangles(AABB{Min: mgl64.Vec3{2.2, -1, 3.2}, Max: mgl64.Vec3{2.8, 1, 3.8}}, func(i int) bool {
		found = append(found, i)
		return true
	})

	// Brute force: every triangle whose bounds overlap must have been visited
	box := AABB{Min: mgl64.Vec3{2.2, -1, 3.2}, Max: mgl64.Vec3{2.8, 1, 3.8}}
	visited := make(map[int]bool)
	for _, i := range found {
		visited[i] = true
	}
	for i := 0; i < mesh.NumTriangles(); i++ {
		v0, v1, v2, _ := mesh.Triangle(i)
		if AABBFromPoints(v0, v1, v2).Overlaps(box) && !visited[i] {
			t.Errorf("triangle %d overlaps the query but was not visited", i)
		}
	}
	if len(found) == 0 {
		t.Error("WalkTriangles() visited nothing")
	}
}

func TestHeightField(t *testing.T) {
	heights := []float64{
		0, 0, 0,
		0, 1, 0,
		0, 0, 0,
	}
	hf, err := NewHeightField(heights, 3, 1, mgl64.Vec3{})
	if err != nil {
		t.Fatalf("NewHeightField() error = %v", err)
	}
	if hf.NumTriangles() != 8 {
		t.Errorf("NumTriangles() = %d, want 8", hf.NumTriangles())
	}
	if h, ok := hf.HeightAt(1, 1); !ok || !floatEqual(h, 1, 1e-12) {
		t.Errorf("HeightAt(1,1) = %v, %v, want 1", h, ok)
	}
	if h, ok := hf.HeightAt(0.5, 0.5); !ok || !floatEqual(h, 0.5, 1e-12) {
		t.Errorf("HeightAt(0.5,0.5) = %v, %v, want 0.5", h, ok)
	}
	if _, ok := hf.HeightAt(-1, 0); ok {
		t.Error("HeightAt outside the grid should fail")
	}

	if _, err := NewHeightField(heights, 2, 1, mgl64.Vec3{}); !errors.Is(err, ErrInvalidHeightField) {
		t.Errorf("NewHeightField() with a bad sample count error = %v", err)
	}
}
