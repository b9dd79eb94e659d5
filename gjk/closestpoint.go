package gjk

import (
	"github.com/akmonengine/impact/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// The sub-algorithms below return the point of a simplex closest to the origin, the
// barycentric weights of that point and a bitmask of the vertices spanning it.
// Bit i set means vertex i is kept when the simplex is reduced.

// degenerateRatio bounds sin² of the angle between two edges, below which a triangle is
// treated as a segment.
const degenerateRatio = 1.0e-12

func closestOnSegment(a, b mgl64.Vec3) (mgl64.Vec3, [4]float64, uint32) {
	ab := b.Sub(a)
	abLenSq := ab.LenSqr()
	if abLenSq <= actor.Epsilon*actor.Epsilon {
		// Both points coincide, keep the newest one
		return b, [4]float64{0, 1}, 0b10
	}

	t := -a.Dot(ab) / abLenSq
	switch {
	case t <= 0:
		return a, [4]float64{1}, 0b01
	case t >= 1:
		return b, [4]float64{0, 1}, 0b10
	}
	return a.Add(ab.Mul(t)), [4]float64{1 - t, t}, 0b11
}

// closestOnTriangle follows the Voronoi region walk of Ericson, Real-Time Collision
// Detection 5.1.5, with the query point at the origin.
func closestOnTriangle(a, b, c mgl64.Vec3) (mgl64.Vec3, [4]float64, uint32) {
	ab := b.Sub(a)
	ac := c.Sub(a)
	if n := ab.Cross(ac); n.LenSqr() <= degenerateRatio*ab.LenSqr()*ac.LenSqr() {
		return closestOnDegenerateTriangle(a, b, c)
	}

	ap := a.Mul(-1)
	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a, [4]float64{1}, 0b001
	}

	bp := b.Mul(-1)
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b, [4]float64{0, 1}, 0b010
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := actor.SafeDiv(d1, d1-d3, 0)
		return a.Add(ab.Mul(v)), [4]float64{1 - v, v}, 0b011
	}

	cp := c.Mul(-1)
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c, [4]float64{0, 0, 1}, 0b100
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := actor.SafeDiv(d2, d2-d6, 0)
		return a.Add(ac.Mul(w)), [4]float64{1 - w, 0, w}, 0b101
	}

	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := actor.SafeDiv(d4-d3, (d4-d3)+(d5-d6), 0)
		return b.Add(c.Sub(b).Mul(w)), [4]float64{0, 1 - w, w}, 0b110
	}

	denom := 1.0 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return a.Add(ab.Mul(v)).Add(ac.Mul(w)), [4]float64{1 - v - w, v, w}, 0b111
}

// closestOnDegenerateTriangle picks the best of the three edges.
func closestOnDegenerateTriangle(a, b, c mgl64.Vec3) (mgl64.Vec3, [4]float64, uint32) {
	edges := [3][2]int{{0, 1}, {1, 2}, {0, 2}}
	points := [3]mgl64.Vec3{a, b, c}

	var best mgl64.Vec3
	var bestWeights [4]float64
	var bestSet uint32
	bestLenSq := -1.0
	for _, e := range edges {
		p, w, set := closestOnSegment(points[e[0]], points[e[1]])
		if lenSq := p.LenSqr(); bestLenSq < 0 || lenSq < bestLenSq {
			best, bestLenSq = p, lenSq
			bestWeights = [4]float64{}
			bestWeights[e[0]] = w[0]
			bestWeights[e[1]] = w[1]
			bestSet = 0
			if set&1 != 0 {
				bestSet |= 1 << e[0]
			}
			if set&2 != 0 {
				bestSet |= 1 << e[1]
			}
		}
	}
	return best, bestWeights, bestSet
}

// tetrahedronFaces lists each face with the index of the vertex opposite to it.
var tetrahedronFaces = [4]struct {
	vertices [3]int
	opposite int
}{
	{[3]int{0, 1, 2}, 3},
	{[3]int{0, 2, 3}, 1},
	{[3]int{0, 3, 1}, 2},
	{[3]int{1, 3, 2}, 0},
}

// closestOnTetrahedron returns the origin with set 0xf when it is enclosed.
func closestOnTetrahedron(a, b, c, d mgl64.Vec3) (mgl64.Vec3, [4]float64, uint32) {
	points := [4]mgl64.Vec3{a, b, c, d}
	ab, ac, ad := b.Sub(a), c.Sub(a), d.Sub(a)
	volume := ab.Dot(ac.Cross(ad))
	degenerate := volume*volume <= degenerateRatio*ab.LenSqr()*ac.LenSqr()*ad.LenSqr()

	var best mgl64.Vec3
	var bestWeights [4]float64
	var bestSet uint32
	bestLenSq := -1.0
	for _, face := range tetrahedronFaces {
		p0, p1, p2 := points[face.vertices[0]], points[face.vertices[1]], points[face.vertices[2]]
		if !degenerate && !originOutsidePlane(p0, p1, p2, points[face.opposite]) {
			continue
		}

		p, w, set := closestOnTriangle(p0, p1, p2)
		if lenSq := p.LenSqr(); bestLenSq < 0 || lenSq < bestLenSq {
			best, bestLenSq = p, lenSq
			bestWeights = [4]float64{}
			bestSet = 0
			for k, vi := range face.vertices {
				bestWeights[vi] = w[k]
				if set&(1<<k) != 0 {
					bestSet |= 1 << vi
				}
			}
		}
	}
	if bestLenSq >= 0 {
		return best, bestWeights, bestSet
	}

	// Enclosed: weights of the origin by Cramer's rule
	ao := a.Mul(-1)
	wb := ao.Dot(ac.Cross(ad)) / volume
	wc := ab.Dot(ao.Cross(ad)) / volume
	wd := ab.Dot(ac.Cross(ao)) / volume
	return mgl64.Vec3{}, [4]float64{1 - wb - wc - wd, wb, wc, wd}, 0b1111
}

// originOutsidePlane reports whether the origin and d lie on opposite sides of plane abc.
func originOutsidePlane(a, b, c, d mgl64.Vec3) bool {
	n := b.Sub(a).Cross(c.Sub(a))
	signOrigin := a.Mul(-1).Dot(n)
	signD := d.Sub(a).Dot(n)
	return signOrigin*signD < 0
}
