package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// AABB represents an axis-aligned bounding box
type AABB struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// EmptyAABB returns an inverted box that any Encapsulate call will replace.
func EmptyAABB() AABB {
	return AABB{
		Min: mgl64.Vec3{math.MaxFloat64, math.MaxFloat64, math.MaxFloat64},
		Max: mgl64.Vec3{-math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64},
	}
}

// AABBFromPoints returns the smallest box containing all points.
func AABBFromPoints(points ...mgl64.Vec3) AABB {
	box := EmptyAABB()
	for _, p := range points {
		box = box.EncapsulatePoint(p)
	}
	return box
}

// IsValid reports whether Min <= Max on every axis.
func (a AABB) IsValid() bool {
	return a.Min.X() <= a.Max.X() && a.Min.Y() <= a.Max.Y() && a.Min.Z() <= a.Max.Z()
}

// ContainsPoint checks if a point is inside the AABB
func (a AABB) ContainsPoint(point mgl64.Vec3) bool {
	return point.X() >= a.Min.X() && point.X() <= a.Max.X() &&
		point.Y() >= a.Min.Y() && point.Y() <= a.Max.Y() &&
		point.Z() >= a.Min.Z() && point.Z() <= a.Max.Z()
}

// Contains checks if other lies entirely inside the AABB
func (a AABB) Contains(other AABB) bool {
	return a.Min.X() <= other.Min.X() && a.Max.X() >= other.Max.X() &&
		a.Min.Y() <= other.Min.Y() && a.Max.Y() >= other.Max.Y() &&
		a.Min.Z() <= other.Min.Z() && a.Max.Z() >= other.Max.Z()
}

// Overlaps checks if two AABBs overlap
func (a AABB) Overlaps(other AABB) bool {
	// AABBs overlap if they overlap on all three axes
	return a.Max.X() >= other.Min.X() && a.Min.X() <= other.Max.X() &&
		a.Max.Y() >= other.Min.Y() && a.Min.Y() <= other.Max.Y() &&
		a.Max.Z() >= other.Min.Z() && a.Min.Z() <= other.Max.Z()
}

// Encapsulate returns the union of both boxes
func (a AABB) Encapsulate(other AABB) AABB {
	return AABB{
		Min: mgl64.Vec3{math.Min(a.Min[0], other.Min[0]), math.Min(a.Min[1], other.Min[1]), math.Min(a.Min[2], other.Min[2])},
		Max: mgl64.Vec3{math.Max(a.Max[0], other.Max[0]), math.Max(a.Max[1], other.Max[1]), math.Max(a.Max[2], other.Max[2])},
	}
}

// EncapsulatePoint grows the box to include point
func (a AABB) EncapsulatePoint(point mgl64.Vec3) AABB {
	return a.Encapsulate(AABB{Min: point, Max: point})
}

// Expand grows the box by margin on every side
func (a AABB) Expand(margin float64) AABB {
	m := mgl64.Vec3{margin, margin, margin}
	return AABB{Min: a.Min.Sub(m), Max: a.Max.Add(m)}
}

// ExpandDirection grows the box towards displacement only (swept bounds).
func (a AABB) ExpandDirection(displacement mgl64.Vec3) AABB {
	out := a
	for i := 0; i < 3; i++ {
		if displacement[i] < 0 {
			out.Min[i] += displacement[i]
		} else {
			out.Max[i] += displacement[i]
		}
	}
	return out
}

// Translate moves the box by offset
func (a AABB) Translate(offset mgl64.Vec3) AABB {
	return AABB{Min: a.Min.Add(offset), Max: a.Max.Add(offset)}
}

// Center returns the center of the box
func (a AABB) Center() mgl64.Vec3 {
	return a.Min.Add(a.Max).Mul(0.5)
}

// Extent returns the half size of the box
func (a AABB) Extent() mgl64.Vec3 {
	return a.Max.Sub(a.Min).Mul(0.5)
}

// SurfaceArea returns the area of the six faces, used as insertion cost.
func (a AABB) SurfaceArea() float64 {
	d := a.Max.Sub(a.Min)
	return 2.0 * (d.X()*d.Y() + d.Y()*d.Z() + d.Z()*d.X())
}

// Perimeter returns the sum of the edge lengths of one corner.
func (a AABB) Perimeter() float64 {
	d := a.Max.Sub(a.Min)
	return d.X() + d.Y() + d.Z()
}

// LongestAxis returns the index of the widest axis.
func (a AABB) LongestAxis() int {
	d := a.Max.Sub(a.Min)
	axis := 0
	if d[1] > d[axis] {
		axis = 1
	}
	if d[2] > d[axis] {
		axis = 2
	}
	return axis
}

// Transformed returns the bounds of the box after rotation and translation.
func (a AABB) Transformed(transform Transform) AABB {
	// Arvo's method: project the rotated extents on each world axis
	m := transform.Matrix()
	center := transform.Apply(a.Center())
	extent := a.Extent()
	var worldExtent mgl64.Vec3
	for i := 0; i < 3; i++ {
		worldExtent[i] = math.Abs(m.At(i, 0))*extent[0] + math.Abs(m.At(i, 1))*extent[1] + math.Abs(m.At(i, 2))*extent[2]
	}
	return AABB{Min: center.Sub(worldExtent), Max: center.Add(worldExtent)}
}

// Scaled returns the box scaled per axis around the origin.
func (a AABB) Scaled(scale mgl64.Vec3) AABB {
	p1 := MulPerElem(a.Min, scale)
	p2 := MulPerElem(a.Max, scale)
	return AABBFromPoints(p1, p2)
}

// RayHitFraction intersects the ray origin + t*direction with the box using the slab test.
// invDirection holds 1/direction per component. It returns math.MaxFloat64 on a miss and
// 0 when the origin is inside the box.
func (a AABB) RayHitFraction(origin, invDirection mgl64.Vec3) float64 {
	tMin := -math.MaxFloat64
	tMax := math.MaxFloat64
	for i := 0; i < 3; i++ {
		if math.IsInf(invDirection[i], 0) {
			if origin[i] < a.Min[i] || origin[i] > a.Max[i] {
				return math.MaxFloat64
			}
			continue
		}
		t1 := (a.Min[i] - origin[i]) * invDirection[i]
		t2 := (a.Max[i] - origin[i]) * invDirection[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
		if tMin > tMax {
			return math.MaxFloat64
		}
	}
	if tMax < 0 {
		return math.MaxFloat64
	}
	return math.Max(tMin, 0)
}

// InverseDirection returns 1/direction per component, using +Inf for zero components.
func InverseDirection(direction mgl64.Vec3) mgl64.Vec3 {
	var inv mgl64.Vec3
	for i := 0; i < 3; i++ {
		if direction[i] == 0 {
			inv[i] = math.Inf(1)
		} else {
			inv[i] = 1.0 / direction[i]
		}
	}
	return inv
}

// ClosestPoint returns the point of the box closest to point.
func (a AABB) ClosestPoint(point mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{
		Clamp(point[0], a.Min[0], a.Max[0]),
		Clamp(point[1], a.Min[1], a.Max[1]),
		Clamp(point[2], a.Min[2], a.Max[2]),
	}
}
