package actor

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/exp/constraints"
)

// Epsilon is the default guard used before dividing by a length or a determinant.
const Epsilon = 1.0e-12

// Clamp limits v to [lo, hi].
func Clamp[T constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SafeDiv returns num/den, or fallback when den is too small to divide by.
func SafeDiv[T constraints.Float](num, den, fallback T) T {
	if den > -T(Epsilon) && den < T(Epsilon) {
		return fallback
	}
	return num / den
}

// Sign returns -1 for negative values and 1 otherwise.
func Sign[T constraints.Float](v T) T {
	if v < 0 {
		return -1
	}
	return 1
}

// Square returns v*v.
func Square[T constraints.Float](v T) T {
	return v * v
}

// IsNearZero reports whether the squared length of v is below maxSq.
func IsNearZero(v mgl64.Vec3, maxSq float64) bool {
	return v.LenSqr() <= maxSq
}

// NormalizedOr returns v normalized, or fallback when v is (close to) zero.
func NormalizedOr(v mgl64.Vec3, fallback mgl64.Vec3) mgl64.Vec3 {
	lenSq := v.LenSqr()
	if lenSq < Epsilon*Epsilon {
		return fallback
	}
	return v.Mul(1.0 / math.Sqrt(lenSq))
}

// MulPerElem multiplies two vectors component-wise.
func MulPerElem(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

// AbsVec returns the component-wise absolute value.
func AbsVec(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{math.Abs(v[0]), math.Abs(v[1]), math.Abs(v[2])}
}

// NormalizedPerpendicular returns a unit vector perpendicular to v.
func NormalizedPerpendicular(v mgl64.Vec3) mgl64.Vec3 {
	if math.Abs(v[0]) > math.Abs(v[1]) {
		l := math.Sqrt(v[0]*v[0] + v[2]*v[2])
		if l < Epsilon {
			return mgl64.Vec3{0, 1, 0}
		}
		return mgl64.Vec3{v[2] / l, 0, -v[0] / l}
	}
	l := math.Sqrt(v[1]*v[1] + v[2]*v[2])
	if l < Epsilon {
		return mgl64.Vec3{1, 0, 0}
	}
	return mgl64.Vec3{0, v[2] / l, -v[1] / l}
}

// TangentBasis returns two unit vectors forming an orthonormal basis with normal.
func TangentBasis(normal mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	tangent1 := NormalizedPerpendicular(normal)
	tangent2 := normal.Cross(tangent1)
	return tangent1, NormalizedOr(tangent2, mgl64.Vec3{0, 0, 1})
}
