// Package epa implements the Expanding Polytope Algorithm for computing penetration depth.
//
// GJK tells whether two convex shapes overlap. When they do, EPA grows a polytope inside
// the Minkowski difference A - B, starting from the GJK simplex, towards the part of its
// surface closest to the origin. The closest face gives the penetration axis and depth,
// and the supporting points of its vertices give the contact points on both shapes.
//
// Shapes with a convex radius are handled in two steps: GJK runs on the cores first, and
// EPA only runs on the rounded shapes when the cores themselves overlap.
//
// References:
//   - Van den Bergen: "Proximity Queries and Penetration Depth Computation on 3D Game Objects" (2001)
package epa

import (
	"math"

	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/gjk"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// maxIterations caps polytope expansion. The best face so far is reported when reached.
	maxIterations = MaxPoints

	// NormalSnapThreshold clamps nearly-zero components of the penetration axis to zero.
	NormalSnapThreshold = 1e-8

	// degenerateVolume bounds the relative volume below which a seed tetrahedron is flat.
	degenerateVolume = 1.0e-9
)

// tetrahedronDirections point at the vertices of a regular tetrahedron.
var tetrahedronDirections = [4]mgl64.Vec3{
	{0, 1, 0},
	{-1, -1, -1},
	{1, -1, -1},
	{0, -1, 1},
}

var axisDirections = [6]mgl64.Vec3{
	{1, 0, 0}, {-1, 0, 0},
	{0, 1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
}

// GetPenetrationDepth computes how far a and b interpenetrate, including their convex
// radius. aExcl/bExcl are the core supports and aIncl/bIncl the same shapes with their
// radius folded in.
//
// Shapes farther apart than radiusA + radiusB + maxSeparationDistance return false. Shapes
// whose cores are apart return the closest points moved onto the rounded surfaces, which may
// report a negative depth when they are within maxSeparationDistance. Otherwise EPA runs on
// the inclusive shapes.
//
// ioV seeds the search with a guess of A - B and receives the penetration axis, pointing
// from A towards B (the direction in which B must move to separate). The depth is
// (outPointA - outPointB) . normalize(ioV).
func GetPenetrationDepth(aExcl, aIncl actor.Support, radiusA float64, bExcl, bIncl actor.Support, radiusB float64, collisionTolerance, penetrationTolerance, maxSeparationDistance float64, ioV *mgl64.Vec3, outPointA, outPointB *mgl64.Vec3) bool {
	simplex := gjk.SimplexPool.Get().(*gjk.Simplex)
	defer gjk.SimplexPool.Put(simplex)
	simplex.Reset()

	maxDist := radiusA + radiusB + maxSeparationDistance
	var pointA, pointB mgl64.Vec3
	distSq := simplex.GetClosestPoints(aExcl, bExcl, collisionTolerance, maxDist*maxDist, ioV, &pointA, &pointB)
	if distSq == math.MaxFloat64 {
		return false
	}

	if distSq > 0 {
		// Cores apart: ioV goes from B towards A
		n := ioV.Mul(1 / math.Sqrt(distSq))
		*outPointA = pointA.Sub(n.Mul(radiusA))
		*outPointB = pointB.Add(n.Mul(radiusB))
		*ioV = n.Mul(-1)
		return true
	}

	return penetrationDepthEPA(simplex, aIncl, bIncl, collisionTolerance, penetrationTolerance, ioV, outPointA, outPointB)
}

// penetrationDepthEPA runs EPA on shapes whose convex radius is part of their support.
func penetrationDepthEPA(simplex *gjk.Simplex, a, b actor.Support, collisionTolerance, penetrationTolerance float64, ioV, outPointA, outPointB *mgl64.Vec3) bool {
	v := mgl64.Vec3{1, 0, 0}
	if !simplex.Intersects(a, b, collisionTolerance, &v) {
		return false
	}

	polytope := polytopePool.Get().(*Polytope)
	defer polytopePool.Put(polytope)
	polytope.Reset()

	support := func(direction mgl64.Vec3) {
		p := a.Support(direction)
		q := b.Support(direction.Mul(-1))
		polytope.AddPoint(p.Sub(q), p, q)
	}

	for i := 0; i < simplex.Count; i++ {
		polytope.AddPoint(simplex.Y[i], simplex.P[i], simplex.Q[i])
	}

	switch simplex.Count {
	case 1:
		// A single vertex sits on the origin and spans nothing
		polytope.Reset()
		for _, d := range tetrahedronDirections {
			support(d)
		}
	case 2:
		axis := actor.NormalizedOr(simplex.Y[1].Sub(simplex.Y[0]), mgl64.Vec3{1, 0, 0})
		rotation := mgl64.QuatRotate(2*math.Pi/3, axis)
		d1 := actor.NormalizedPerpendicular(axis)
		d2 := rotation.Rotate(d1)
		d3 := rotation.Rotate(d2)
		support(d1)
		support(d2)
		support(d3)
	case 3:
		n := simplex.Y[1].Sub(simplex.Y[0]).Cross(simplex.Y[2].Sub(simplex.Y[0]))
		support(n)
		support(n.Mul(-1))
	}

	seed, ok := buildInitialTetrahedron(polytope)
	if !ok {
		for _, d := range axisDirections {
			support(d)
		}
		if seed, ok = buildInitialTetrahedron(polytope); !ok {
			return false
		}
	}
	for i := range polytope.Y {
		if i != seed[0] && i != seed[1] && i != seed[2] && i != seed[3] {
			polytope.Expand(i)
		}
	}

	// Faces with a negative distance do not have the origin behind them. They come first
	// out of the queue and are pushed outwards until the origin is enclosed.
	best := -1
	for iter := 0; iter < maxIterations; iter++ {
		index, ok := polytope.PopClosestFace()
		if !ok {
			break
		}
		best = index

		n, dist := polytope.Face(index)
		p := a.Support(n)
		q := b.Support(n.Mul(-1))
		w := p.Sub(q)
		if w.Dot(n)-dist <= penetrationTolerance {
			break
		}

		added, ok := polytope.AddPoint(w, p, q)
		if !ok || !polytope.Expand(added) {
			break
		}
	}

	if best < 0 {
		return false
	}
	n, dist := polytope.Face(best)
	if dist < -collisionTolerance {
		// The origin lies outside A - B
		return false
	}

	_, pointA, pointB := polytope.Witness(best)
	*ioV = snapNormalToAxis(n)
	*outPointA = pointA
	*outPointB = pointB
	return true
}

// buildInitialTetrahedron seeds the polytope with the largest tetrahedron spanned by its
// points and returns their indices.
func buildInitialTetrahedron(p *Polytope) ([4]int, bool) {
	var seed [4]int
	n := len(p.Y)
	if n < 4 {
		return seed, false
	}

	scale := 0.0
	for i := 1; i < n; i++ {
		scale = math.Max(scale, p.Y[i].Sub(p.Y[0]).LenSqr())
	}
	if scale <= actor.Epsilon {
		return seed, false
	}

	best := 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				for l := k + 1; l < n; l++ {
					ab := p.Y[j].Sub(p.Y[i])
					ac := p.Y[k].Sub(p.Y[i])
					ad := p.Y[l].Sub(p.Y[i])
					if volume := math.Abs(ab.Dot(ac.Cross(ad))); volume > best {
						best = volume
						seed = [4]int{i, j, k, l}
					}
				}
			}
		}
	}
	if best <= degenerateVolume*scale*math.Sqrt(scale) {
		return seed, false
	}

	p.faces = p.faces[:0]
	p.queue.indices = p.queue.indices[:0]
	p.BuildTetrahedron(seed[0], seed[1], seed[2], seed[3])
	return seed, true
}

// CastShape sweeps b, placed at start in the space of a, along direction and reports the
// first time of impact in *ioLambda. a and b are core supports inflated by radiusA and
// radiusB. When the shapes already overlap at the start and returnDeepestPoint is set, the
// contact points and axis are those of the deepest penetration. outAxis points from a
// towards b.
func CastShape(start actor.Transform, direction mgl64.Vec3, collisionTolerance, penetrationTolerance float64, a, b actor.Support, radiusA, radiusB float64, returnDeepestPoint bool, ioLambda *float64, outPointA, outPointB, outAxis *mgl64.Vec3) bool {
	simplex := gjk.SimplexPool.Get().(*gjk.Simplex)
	hit := simplex.CastShape(start, direction, collisionTolerance, a, b, radiusA, radiusB, ioLambda, outPointA, outPointB, outAxis)
	gjk.SimplexPool.Put(simplex)
	if !hit {
		return false
	}
	if !returnDeepestPoint || *ioLambda > 0 {
		return true
	}

	bStart := actor.TransformedSupport{Transform: start, Inner: b}
	bStartIncl := actor.TransformedSupport{Transform: start, Inner: actor.AddConvexRadius{Inner: b, Radius: radiusB}}
	aIncl := actor.AddConvexRadius{Inner: a, Radius: radiusA}

	v := start.Position.Mul(-1)
	var pointA, pointB mgl64.Vec3
	if GetPenetrationDepth(a, aIncl, radiusA, bStart, bStartIncl, radiusB, collisionTolerance, penetrationTolerance, 0, &v, &pointA, &pointB) {
		*outPointA, *outPointB, *outAxis = pointA, pointB, v
	}
	return true
}

// snapNormalToAxis clamps nearly-zero components of a normal to exactly zero and
// renormalizes it, which keeps axis-aligned contacts free of tangential noise.
func snapNormalToAxis(normal mgl64.Vec3) mgl64.Vec3 {
	clamped := normal
	for i := range clamped {
		if math.Abs(clamped[i]) < NormalSnapThreshold {
			clamped[i] = 0
		}
	}

	length := clamped.Len()
	if length <= NormalSnapThreshold {
		return mgl64.Vec3{0, 1, 0}
	}
	return clamped.Mul(1 / length)
}
