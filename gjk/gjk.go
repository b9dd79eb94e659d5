// Package gjk implements the Gilbert-Johnson-Keerthi (GJK) closest point algorithm.
//
// GJK works on the Minkowski difference A - B of two convex sets, only through their
// support functions. A simplex of at most 4 points of A - B is refined towards the
// origin: each iteration computes the point of the simplex closest to the origin,
// drops the vertices that do not span it and searches further along the opposite
// direction. The origin is inside A - B when the shapes overlap.
//
// The same machinery answers overlap tests, closest point queries and ray / shape casts
// by conservative advancement.
//
// References:
//   - Gilbert, Johnson, Keerthi: "A Fast Procedure for Computing the Distance Between
//     Complex Objects in Three-Dimensional Space" (1988)
//   - Van den Bergen: "Collision Detection in Interactive 3D Environments" (2003)
//   - Van den Bergen: "Ray Casting against General Convex Objects with Application to
//     Continuous Collision Detection" (2004)
package gjk

import (
	"math"
	"sync"

	"github.com/akmonengine/impact/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// MaxIterations caps every query. A capped query returns its best result so far.
const MaxIterations = 64

// relativeTolerance stops the closest point search once |v|² - v.w is negligible.
const relativeTolerance = 1.0e-10

// Simplex holds up to 4 points Y of A - B, with the supporting points P on A and Q on B
// that produced them (Y = P - Q).
type Simplex struct {
	Y, P, Q [4]mgl64.Vec3
	Count   int

	weights [4]float64
}

func (s *Simplex) Reset() {
	s.Count = 0
}

var SimplexPool = sync.Pool{
	New: func() interface{} {
		return &Simplex{}
	},
}

func (s *Simplex) add(y, p, q mgl64.Vec3) {
	s.Y[s.Count] = y
	s.P[s.Count] = p
	s.Q[s.Count] = q
	s.Count++
}

// closest computes the point of the simplex closest to the origin. It fails when that
// point is not closer than prevLenSq, which means the search stalled.
func (s *Simplex) closest(prevLenSq float64) (mgl64.Vec3, float64, uint32, bool) {
	var v mgl64.Vec3
	var weights [4]float64
	var set uint32

	switch s.Count {
	case 1:
		v, weights, set = s.Y[0], [4]float64{1}, 0b1
	case 2:
		v, weights, set = closestOnSegment(s.Y[0], s.Y[1])
	case 3:
		v, weights, set = closestOnTriangle(s.Y[0], s.Y[1], s.Y[2])
	case 4:
		v, weights, set = closestOnTetrahedron(s.Y[0], s.Y[1], s.Y[2], s.Y[3])
	}

	lenSq := v.LenSqr()
	if set != 0b1111 && lenSq >= prevLenSq {
		return v, lenSq, set, false
	}
	s.weights = weights
	return v, lenSq, set, true
}

// reduce keeps the vertices flagged in set.
func (s *Simplex) reduce(set uint32) {
	n := 0
	for i := 0; i < s.Count; i++ {
		if set&(1<<i) == 0 {
			continue
		}
		s.Y[n], s.P[n], s.Q[n], s.weights[n] = s.Y[i], s.P[i], s.Q[i], s.weights[i]
		n++
	}
	s.Count = n
}

// witnessPoints interpolates P and Q with the weights of the last closest point.
func (s *Simplex) witnessPoints() (mgl64.Vec3, mgl64.Vec3) {
	var a, b mgl64.Vec3
	for i := 0; i < s.Count; i++ {
		a = a.Add(s.P[i].Mul(s.weights[i]))
		b = b.Add(s.Q[i].Mul(s.weights[i]))
	}
	return a, b
}

func (s *Simplex) maxYLenSq() float64 {
	m := 0.0
	for i := 0; i < s.Count; i++ {
		m = math.Max(m, s.Y[i].LenSqr())
	}
	return m
}

func seedDirection(v mgl64.Vec3) mgl64.Vec3 {
	if v.LenSqr() <= actor.Epsilon*actor.Epsilon {
		return mgl64.Vec3{1, 0, 0}
	}
	return v
}

// Intersects reports whether a and b overlap, ignoring their convex radius. ioV seeds the
// search with a guess of A - B (positionA - positionB works) and receives a separating
// axis candidate for the next query, zero on overlap.
func (s *Simplex) Intersects(a, b actor.Support, tolerance float64, ioV *mgl64.Vec3) bool {
	tolSq := tolerance * tolerance
	v := seedDirection(*ioV)
	prevLenSq := math.MaxFloat64
	s.Count = 0

	for i := 0; i < MaxIterations; i++ {
		p := a.Support(v.Mul(-1))
		q := b.Support(v)
		w := p.Sub(q)

		// The supporting plane along -v separates the origin from A - B
		if v.Dot(w) > 0 {
			*ioV = v
			return false
		}

		s.add(w, p, q)
		closest, lenSq, set, ok := s.closest(prevLenSq)
		if !ok {
			s.Count--
			*ioV = v
			return false
		}
		if set == 0b1111 || lenSq <= tolSq {
			s.reduce(set)
			*ioV = mgl64.Vec3{}
			return true
		}
		s.reduce(set)

		// v is tiny compared to the simplex, the origin is on its boundary
		if lenSq <= actor.Epsilon*s.maxYLenSq() {
			*ioV = mgl64.Vec3{}
			return true
		}

		v = closest
		prevLenSq = lenSq
	}

	*ioV = v
	return false
}

// GetClosestPoints returns the squared distance between a and b, ignoring their convex
// radius, and the closest points on each. It returns math.MaxFloat64 as soon as the
// shapes are proven farther apart than sqrt(maxDistSq). Overlapping or touching shapes
// (within tolerance) return 0.
//
// On return ioV holds the closest point of A - B, the vector from B towards A.
func (s *Simplex) GetClosestPoints(a, b actor.Support, tolerance, maxDistSq float64, ioV *mgl64.Vec3, outPointA, outPointB *mgl64.Vec3) float64 {
	tolSq := tolerance * tolerance
	v := seedDirection(*ioV)
	lenSq := math.MaxFloat64
	s.Count = 0

	for i := 0; i < MaxIterations; i++ {
		p := a.Support(v.Mul(-1))
		q := b.Support(v)
		w := p.Sub(q)
		dot := v.Dot(w)

		// Separation along v is at least dot/|v|
		if dot > 0 && dot*dot > v.LenSqr()*maxDistSq {
			*ioV = v
			return math.MaxFloat64
		}

		// No progress possible along v
		if s.Count > 0 && lenSq-dot <= relativeTolerance*lenSq {
			break
		}

		s.add(w, p, q)
		closest, newLenSq, set, ok := s.closest(lenSq)
		if !ok {
			s.Count--
			break
		}
		s.reduce(set)
		v, lenSq = closest, newLenSq

		if set == 0b1111 || lenSq <= tolSq {
			v, lenSq = mgl64.Vec3{}, 0
			break
		}
	}

	if s.Count == 0 {
		// Only reachable when the very first support is degenerate
		*outPointA, *outPointB = a.Support(v.Mul(-1)), b.Support(v)
		*ioV = outPointA.Sub(*outPointB)
		return ioV.LenSqr()
	}

	*outPointA, *outPointB = s.witnessPoints()
	if lenSq > maxDistSq {
		*ioV = v
		return math.MaxFloat64
	}
	*ioV = v
	return lenSq
}

// CastRay sweeps a point from origin along direction (the full length of the ray, the
// fraction 1 being origin + direction) against a. It returns true when the ray hits a
// before *ioLambda and stores the hit fraction. A ray starting inside a hits at 0.
// The convex radius reported by a is added around its support.
func (s *Simplex) CastRay(origin, direction mgl64.Vec3, tolerance float64, a actor.Support, ioLambda *float64) bool {
	var pointA, pointB, axis mgl64.Vec3
	start := actor.Transform{Position: origin}
	return s.CastShape(start, direction, tolerance, a, actor.PointSupport{}, a.ConvexRadius(), 0, ioLambda, &pointA, &pointB, &axis)
}

// CastShape sweeps b, placed at start in the space of a, along direction against a.
// convexRadiusA and convexRadiusB inflate both cores, so the supports passed in should
// exclude their radius. On a hit before *ioLambda it stores the fraction, the contact
// points in the space of a with b at the hit position and the contact normal pointing
// from a towards b (not normalized, zero-length axes are replaced by -direction).
func (s *Simplex) CastShape(start actor.Transform, direction mgl64.Vec3, tolerance float64, a, b actor.Support, convexRadiusA, convexRadiusB float64, ioLambda *float64, outPointA, outPointB, outSeparatingAxis *mgl64.Vec3) bool {
	tolSq := tolerance * tolerance
	radius := convexRadiusA + convexRadiusB
	bStart := actor.TransformedSupport{Transform: start, Inner: b}

	// Minkowski difference M = A - B(start), the ray x = lambda * direction hits M
	support := func(d mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
		return a.Support(d), bStart.Support(d.Mul(-1))
	}

	lambda := 0.0
	var x mgl64.Vec3
	p0, q0 := support(direction.Mul(-1))
	v := x.Sub(p0.Sub(q0))
	lenSq := math.MaxFloat64
	allowRestart := false
	s.Count = 0

	for i := 0; i < MaxIterations; i++ {
		p, q := support(v)
		w := x.Sub(p.Sub(q))

		vDotW := v.Dot(w)
		if radius > 0 {
			vDotW -= radius * v.Len()
		}
		if vDotW > 0 {
			// Moving away from A along v: no hit
			vDotR := v.Dot(direction)
			if vDotR >= 0 {
				return false
			}

			previous := lambda
			lambda -= vDotW / vDotR
			if previous == lambda {
				break
			}
			if lambda >= *ioLambda {
				return false
			}

			x = direction.Mul(lambda)
			lenSq = math.MaxFloat64
			allowRestart = true
		}

		s.P[s.Count], s.Q[s.Count] = p, q
		s.Count++
		for k := 0; k < s.Count; k++ {
			s.Y[k] = x.Sub(s.P[k].Sub(s.Q[k]))
		}

		closest, newLenSq, set, ok := s.closest(lenSq)
		if !ok {
			// The simplex was built for another x, restart once from the last support
			if !allowRestart {
				s.Count--
				break
			}
			allowRestart = false
			s.P[0], s.Q[0] = p, q
			s.Y[0] = x.Sub(p.Sub(q))
			s.weights = [4]float64{1}
			s.Count = 1
			v = s.Y[0]
			lenSq = math.MaxFloat64
			continue
		}
		s.reduce(set)
		v, lenSq = closest, newLenSq
		if set == 0b1111 {
			v, lenSq = mgl64.Vec3{}, 0
			break
		}

		if radius > 0 {
			if lenSq <= actor.Square(radius+tolerance) {
				break
			}
		} else if lenSq <= tolSq {
			break
		}
	}

	*ioLambda = lambda

	// v = x - (pointA - pointB(start)) is the vector from A to B at the hit position
	pointA, pointBStart := s.witnessPoints()
	if s.Count == 0 {
		pointA, pointBStart = p0, q0
	}
	pointB := pointBStart.Add(direction.Mul(lambda))
	axis := v
	if axis.LenSqr() <= tolSq || axis.LenSqr() <= actor.Epsilon*actor.Epsilon {
		axis = direction.Mul(-1)
	}
	if radius > 0 {
		n := actor.NormalizedOr(axis, mgl64.Vec3{0, 1, 0})
		pointA = pointA.Add(n.Mul(convexRadiusA))
		pointB = pointB.Sub(n.Mul(convexRadiusB))
	}

	*outPointA, *outPointB, *outSeparatingAxis = pointA, pointB, axis
	return true
}
