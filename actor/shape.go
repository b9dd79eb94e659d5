package actor

import (
	"errors"
	"math"
	"math/bits"

	"github.com/go-gl/mathgl/mgl64"
)

// DefaultConvexRadius is the rounding used by NewBox and NewCylinder when none is given.
const DefaultConvexRadius = 0.05

var (
	ErrTooFewPoints            = errors.New("actor: too few points")
	ErrDegenerate              = errors.New("actor: degenerate point set")
	ErrNoTriangles             = errors.New("actor: mesh has no valid triangles")
	ErrInvalidHeightField      = errors.New("actor: invalid height field")
	ErrSubShapeIDBitsExhausted = errors.New("actor: sub shape id bits exhausted")
	ErrNoChildren              = errors.New("actor: compound has no children")
)

// ShapeType represents the type of collision shape
type ShapeType int

const (
	ShapeTypeSphere ShapeType = iota
	ShapeTypeBox
	ShapeTypeCapsule
	ShapeTypeCylinder
	ShapeTypeConvexHull
	ShapeTypeTriangle
	ShapeTypeMesh
	ShapeTypeHeightField
	ShapeTypeCompound
	ShapeTypeScaled
	ShapeTypeRotatedTranslated
	ShapeTypeOffsetCenterOfMass
)

func (t ShapeType) String() string {
	switch t {
	case ShapeTypeSphere:
		return "Sphere"
	case ShapeTypeBox:
		return "Box"
	case ShapeTypeCapsule:
		return "Capsule"
	case ShapeTypeCylinder:
		return "Cylinder"
	case ShapeTypeConvexHull:
		return "ConvexHull"
	case ShapeTypeTriangle:
		return "Triangle"
	case ShapeTypeMesh:
		return "Mesh"
	case ShapeTypeHeightField:
		return "HeightField"
	case ShapeTypeCompound:
		return "Compound"
	case ShapeTypeScaled:
		return "Scaled"
	case ShapeTypeRotatedTranslated:
		return "RotatedTranslated"
	case ShapeTypeOffsetCenterOfMass:
		return "OffsetCenterOfMass"
	}
	return "Unknown"
}

// ShapeCategory groups shape types by how the collision dispatcher handles them.
type ShapeCategory int

const (
	CategoryConvex ShapeCategory = iota
	CategoryMesh
	CategoryCompound
	CategoryDecorated
)

// Shape is the interface that all collision shapes implement. Shapes are immutable
// after construction and may be shared by any number of bodies.
type Shape interface {
	Type() ShapeType
	Category() ShapeCategory
	// LocalBounds is the bounding box in the shape's own space
	LocalBounds() AABB
	// WorldBounds is the bounding box after scaling then transforming the shape
	WorldBounds(transform Transform, scale mgl64.Vec3) AABB
	CenterOfMass() mgl64.Vec3
	// InnerRadius is the radius of the biggest sphere fitting inside the shape
	InnerRadius() float64
	// SubShapeIDBits is the number of bits needed to address a leaf of this shape
	SubShapeIDBits() uint
	// ComputeMass calculates mass data for the shape given a density
	ComputeMass(density float64) float64
	ComputeInertia(mass float64) mgl64.Mat3
}

// ConvexShape is a shape that GJK and EPA can consume through its support function.
type ConvexShape interface {
	Shape
	ConvexRadius() float64
	SupportFunction(mode SupportMode, scale mgl64.Vec3) Support
	// SupportingFace returns the face (in local space, scaled) whose normal points most
	// towards direction. It may return a single point or nothing for round shapes.
	SupportingFace(direction mgl64.Vec3, scale mgl64.Vec3) []mgl64.Vec3
}

// Decorator wraps exactly one inner shape.
type Decorator interface {
	Shape
	Inner() Shape
	// ChildTransform maps the decorator's transform and scale to the inner shape's
	ChildTransform(transform Transform, scale mgl64.Vec3) (Transform, mgl64.Vec3)
}

// UnitScale is the neutral scale.
var UnitScale = mgl64.Vec3{1, 1, 1}

func isUnitScale(scale mgl64.Vec3) bool {
	return scale == UnitScale
}

func boundsOf(local AABB, transform Transform, scale mgl64.Vec3) AABB {
	if !isUnitScale(scale) {
		local = local.Scaled(scale)
	}
	return local.Transformed(transform)
}

func convexSupport(core Support, mode SupportMode, scale mgl64.Vec3) Support {
	s := core
	if mode == IncludeConvexRadius {
		s = Inflated(s)
	}
	if !isUnitScale(scale) {
		s = ScaledSupport{Scale: scale, Inner: s}
	}
	return s
}

func scalePoints(points []mgl64.Vec3, scale mgl64.Vec3) []mgl64.Vec3 {
	if isUnitScale(scale) {
		return points
	}
	out := make([]mgl64.Vec3, len(points))
	for i, p := range points {
		out[i] = MulPerElem(p, scale)
	}
	// A mirroring scale flips the winding
	if scale.X()*scale.Y()*scale.Z() < 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// bitsForCount returns the number of bits needed to store indices in [0, n).
func bitsForCount(n int) uint {
	if n <= 1 {
		return 0
	}
	return uint(bits.Len32(uint32(n - 1)))
}

// Box represents an oriented box collision shape
// The box is defined by its half-extents (half-width, half-height, half-depth)
type Box struct {
	HalfExtents  mgl64.Vec3
	convexRadius float64
}

// NewBox creates a box rounded by convexRadius, clamped to the smallest half extent.
func NewBox(halfExtents mgl64.Vec3, convexRadius float64) *Box {
	minExtent := math.Min(halfExtents.X(), math.Min(halfExtents.Y(), halfExtents.Z()))
	return &Box{HalfExtents: halfExtents, convexRadius: Clamp(convexRadius, 0, minExtent)}
}

func (b *Box) Type() ShapeType         { return ShapeTypeBox }
func (b *Box) Category() ShapeCategory { return CategoryConvex }
func (b *Box) CenterOfMass() mgl64.Vec3 {
	return mgl64.Vec3{}
}
func (b *Box) SubShapeIDBits() uint  { return 0 }
func (b *Box) ConvexRadius() float64 { return b.convexRadius }
func (b *Box) InnerRadius() float64 {
	return math.Min(b.HalfExtents.X(), math.Min(b.HalfExtents.Y(), b.HalfExtents.Z()))
}

func (b *Box) LocalBounds() AABB {
	return AABB{Min: b.HalfExtents.Mul(-1), Max: b.HalfExtents}
}

func (b *Box) WorldBounds(transform Transform, scale mgl64.Vec3) AABB {
	return boundsOf(b.LocalBounds(), transform, scale)
}

// ComputeMass calculates mass data for the box
func (b *Box) ComputeMass(density float64) float64 {
	// Volume = 8 * hx * hy * hz (full dimensions are 2*halfExtents)
	volume := 8.0 * b.HalfExtents.X() * b.HalfExtents.Y() * b.HalfExtents.Z()

	return density * volume
}

func (b *Box) ComputeInertia(mass float64) mgl64.Mat3 {
	x := b.HalfExtents.X() * 2
	y := b.HalfExtents.Y() * 2
	z := b.HalfExtents.Z() * 2

	// I = (m/12) * (d1² + d2²)
	factor := mass / 12.0
	return mgl64.Diag3(mgl64.Vec3{
		factor * (y*y + z*z),
		factor * (x*x + z*z),
		factor * (x*x + y*y),
	})
}

type boxSupport struct {
	halfExtents mgl64.Vec3
	radius      float64
}

func (b boxSupport) Support(direction mgl64.Vec3) mgl64.Vec3 {
	hx, hy, hz := b.halfExtents.X(), b.halfExtents.Y(), b.halfExtents.Z()

	if direction.X() < 0 {
		hx = -hx
	}
	if direction.Y() < 0 {
		hy = -hy
	}
	if direction.Z() < 0 {
		hz = -hz
	}

	return mgl64.Vec3{hx, hy, hz}
}

func (b boxSupport) ConvexRadius() float64 {
	return b.radius
}

func (b *Box) SupportFunction(mode SupportMode, scale mgl64.Vec3) Support {
	r := b.convexRadius
	core := boxSupport{
		halfExtents: b.HalfExtents.Sub(mgl64.Vec3{r, r, r}),
		radius:      r,
	}
	return convexSupport(core, mode, scale)
}

// boxFaces lists the 6 faces, vertices CCW seen from outside.
var boxFaces = [6]struct {
	normal  mgl64.Vec3
	corners [4]mgl64.Vec3
}{
	{mgl64.Vec3{1, 0, 0}, [4]mgl64.Vec3{{1, -1, -1}, {1, 1, -1}, {1, 1, 1}, {1, -1, 1}}},
	{mgl64.Vec3{-1, 0, 0}, [4]mgl64.Vec3{{-1, -1, -1}, {-1, -1, 1}, {-1, 1, 1}, {-1, 1, -1}}},
	{mgl64.Vec3{0, 1, 0}, [4]mgl64.Vec3{{-1, 1, -1}, {-1, 1, 1}, {1, 1, 1}, {1, 1, -1}}},
	{mgl64.Vec3{0, -1, 0}, [4]mgl64.Vec3{{-1, -1, -1}, {1, -1, -1}, {1, -1, 1}, {-1, -1, 1}}},
	{mgl64.Vec3{0, 0, 1}, [4]mgl64.Vec3{{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1}}},
	{mgl64.Vec3{0, 0, -1}, [4]mgl64.Vec3{{-1, -1, -1}, {-1, 1, -1}, {1, 1, -1}, {1, -1, -1}}},
}

func (b *Box) SupportingFace(direction mgl64.Vec3, scale mgl64.Vec3) []mgl64.Vec3 {
	// The face whose normal is the most parallel to the (scaled) direction
	dir := MulPerElem(direction, scale)
	bestDot := -math.MaxFloat64
	best := 0
	for i, face := range boxFaces {
		if dot := dir.Dot(face.normal); dot > bestDot {
			bestDot = dot
			best = i
		}
	}

	face := make([]mgl64.Vec3, 4)
	for i, c := range boxFaces[best].corners {
		face[i] = MulPerElem(c, b.HalfExtents)
	}
	return scalePoints(face, scale)
}

// Sphere represents a spherical collision shape
type Sphere struct {
	Radius float64
}

func (s *Sphere) Type() ShapeType          { return ShapeTypeSphere }
func (s *Sphere) Category() ShapeCategory  { return CategoryConvex }
func (s *Sphere) CenterOfMass() mgl64.Vec3 { return mgl64.Vec3{} }
func (s *Sphere) SubShapeIDBits() uint     { return 0 }
func (s *Sphere) ConvexRadius() float64    { return s.Radius }
func (s *Sphere) InnerRadius() float64     { return s.Radius }

func (s *Sphere) LocalBounds() AABB {
	r := mgl64.Vec3{s.Radius, s.Radius, s.Radius}
	return AABB{Min: r.Mul(-1), Max: r}
}

// WorldBounds is not affected by rotation, only by position and scale
func (s *Sphere) WorldBounds(transform Transform, scale mgl64.Vec3) AABB {
	radius := s.Radius * maxAbsComponent(scale)
	r := mgl64.Vec3{radius, radius, radius}
	return AABB{Min: transform.Position.Sub(r), Max: transform.Position.Add(r)}
}

// ComputeMass calculates mass data for the sphere
func (s *Sphere) ComputeMass(density float64) float64 {
	// Volume of sphere = (4/3) * π * r³
	volume := (4.0 / 3.0) * math.Pi * math.Pow(s.Radius, 3)

	return density * volume
}

func (s *Sphere) ComputeInertia(mass float64) mgl64.Mat3 {
	// I = (2/5) * m * r² on every axis
	i := (2.0 / 5.0) * mass * s.Radius * s.Radius
	return mgl64.Diag3(mgl64.Vec3{i, i, i})
}

func (s *Sphere) SupportFunction(mode SupportMode, scale mgl64.Vec3) Support {
	return convexSupport(PointSupport{Radius: s.Radius}, mode, scale)
}

// SupportingFace is empty: a sphere touches in a single point
func (s *Sphere) SupportingFace(direction mgl64.Vec3, scale mgl64.Vec3) []mgl64.Vec3 {
	return nil
}

func maxAbsComponent(v mgl64.Vec3) float64 {
	a := AbsVec(v)
	return math.Max(a[0], math.Max(a[1], a[2]))
}
