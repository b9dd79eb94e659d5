package epa

import (
	"container/heap"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// MaxPoints bounds the vertices of the polytope.
	MaxPoints = 128
	// MaxFaces bounds the faces ever created, removed ones included.
	MaxFaces = 512
)

// visibilityEpsilon is the minimum height of a point above a face plane for the face to be
// replaced by that point.
const visibilityEpsilon = 1.0e-10

// face is a triangle of the polytope, wound counter-clockwise seen from outside.
// Normal is the outward unit normal, Distance the signed distance from the origin to the
// face plane (negative when the origin is outside the face).
type face struct {
	Vertices   [3]int
	Normal     mgl64.Vec3
	Distance   float64
	Degenerate bool
	Removed    bool
}

// edge is a directed edge between two vertex indices.
type edge struct {
	A, B int
}

// faceQueue orders live faces by Distance. Removed faces are skipped on pop.
type faceQueue struct {
	indices []int
	faces   *[]face
}

func (q faceQueue) Len() int { return len(q.indices) }
func (q faceQueue) Less(i, j int) bool {
	return (*q.faces)[q.indices[i]].Distance < (*q.faces)[q.indices[j]].Distance
}
func (q faceQueue) Swap(i, j int) { q.indices[i], q.indices[j] = q.indices[j], q.indices[i] }

func (q *faceQueue) Push(x interface{}) {
	q.indices = append(q.indices, x.(int))
}

func (q *faceQueue) Pop() interface{} {
	n := len(q.indices)
	index := q.indices[n-1]
	q.indices = q.indices[:n-1]
	return index
}

// Polytope is a convex polyhedron in the Minkowski difference A - B, grown towards the
// surface closest to the origin. Y holds the vertices, P and Q the supporting points on A
// and B (Y = P - Q).
type Polytope struct {
	Y, P, Q []mgl64.Vec3

	faces   []face
	queue   faceQueue
	visible []int
	edges   []edge
	horizon []edge
}

var polytopePool = sync.Pool{
	New: func() interface{} {
		p := &Polytope{
			Y:       make([]mgl64.Vec3, 0, MaxPoints),
			P:       make([]mgl64.Vec3, 0, MaxPoints),
			Q:       make([]mgl64.Vec3, 0, MaxPoints),
			faces:   make([]face, 0, MaxFaces),
			visible: make([]int, 0, 32),
			edges:   make([]edge, 0, 96),
			horizon: make([]edge, 0, 32),
		}
		p.queue.indices = make([]int, 0, MaxFaces)
		p.queue.faces = &p.faces
		return p
	},
}

// Reset clears the polytope, keeping its storage.
func (p *Polytope) Reset() {
	p.Y = p.Y[:0]
	p.P = p.P[:0]
	p.Q = p.Q[:0]
	p.faces = p.faces[:0]
	p.queue.indices = p.queue.indices[:0]
}

// AddPoint appends a vertex and returns its index, or false when MaxPoints is reached.
func (p *Polytope) AddPoint(y, a, b mgl64.Vec3) (int, bool) {
	if len(p.Y) >= MaxPoints {
		return -1, false
	}
	p.Y = append(p.Y, y)
	p.P = append(p.P, a)
	p.Q = append(p.Q, b)
	return len(p.Y) - 1, true
}

// addFace creates the face (i0, i1, i2) as wound and queues it.
func (p *Polytope) addFace(i0, i1, i2 int) {
	f := face{Vertices: [3]int{i0, i1, i2}}
	v0 := p.Y[i0]
	e1 := p.Y[i1].Sub(v0)
	e2 := p.Y[i2].Sub(v0)
	n := e1.Cross(e2)
	lenSq := n.LenSqr()
	if lenSq == 0 || lenSq <= 1.0e-24*e1.LenSqr()*e2.LenSqr() {
		f.Degenerate = true
		f.Distance = math.MaxFloat64
	} else {
		f.Normal = n.Mul(1 / math.Sqrt(lenSq))
		f.Distance = f.Normal.Dot(v0)
	}

	p.faces = append(p.faces, f)
	if !f.Degenerate {
		heap.Push(&p.queue, len(p.faces)-1)
	}
}

// createFaceOutward winds (i0, i1, i2) so that its normal points away from opposite.
func (p *Polytope) createFaceOutward(i0, i1, i2, opposite int) {
	n := p.Y[i1].Sub(p.Y[i0]).Cross(p.Y[i2].Sub(p.Y[i0]))
	if n.Dot(p.Y[opposite].Sub(p.Y[i0])) > 0 {
		i1, i2 = i2, i1
	}
	p.addFace(i0, i1, i2)
}

// BuildTetrahedron seeds the polytope with the tetrahedron on vertices i0..i3.
func (p *Polytope) BuildTetrahedron(i0, i1, i2, i3 int) {
	p.createFaceOutward(i0, i1, i2, i3)
	p.createFaceOutward(i0, i2, i3, i1)
	p.createFaceOutward(i0, i3, i1, i2)
	p.createFaceOutward(i1, i3, i2, i0)
}

// PopClosestFace returns the live face with the smallest Distance.
func (p *Polytope) PopClosestFace() (int, bool) {
	for p.queue.Len() > 0 {
		index := heap.Pop(&p.queue).(int)
		if !p.faces[index].Removed {
			return index, true
		}
	}
	return -1, false
}

// Expand replaces every face that sees vertex index by a fan from the horizon to it. It
// returns false, leaving the polytope untouched, when no face sees the vertex or when
// MaxFaces would be exceeded.
func (p *Polytope) Expand(index int) bool {
	w := p.Y[index]

	p.visible = p.visible[:0]
	for i := range p.faces {
		f := &p.faces[i]
		if f.Removed || f.Degenerate {
			continue
		}
		if f.Normal.Dot(w.Sub(p.Y[f.Vertices[0]])) > visibilityEpsilon {
			p.visible = append(p.visible, i)
		}
	}
	if len(p.visible) == 0 {
		return false
	}

	p.findHorizon()
	if len(p.faces)+len(p.horizon) > MaxFaces {
		return false
	}

	for _, i := range p.visible {
		p.faces[i].Removed = true
	}

	for _, e := range p.horizon {
		p.addFace(e.A, e.B, index)
	}
	return true
}

// findHorizon collects the directed edges of visible faces whose twin belongs to a face
// that stays.
func (p *Polytope) findHorizon() {
	p.edges = p.edges[:0]
	for _, i := range p.visible {
		v := p.faces[i].Vertices
		p.edges = append(p.edges, edge{v[0], v[1]}, edge{v[1], v[2]}, edge{v[2], v[0]})
	}

	p.horizon = p.horizon[:0]
	for _, e := range p.edges {
		shared := false
		for _, other := range p.edges {
			if other.A == e.B && other.B == e.A {
				shared = true
				break
			}
		}
		if !shared {
			p.horizon = append(p.horizon, e)
		}
	}
}

// Witness returns the point of face i closest to the origin, projected on its plane, and
// the matching points on A and B.
func (p *Polytope) Witness(i int) (y, pointA, pointB mgl64.Vec3) {
	f := p.faces[i]
	i0, i1, i2 := f.Vertices[0], f.Vertices[1], f.Vertices[2]
	y = f.Normal.Mul(f.Distance)

	u, v, w, ok := barycentric(p.Y[i0], p.Y[i1], p.Y[i2], y)
	if !ok {
		return p.Y[i0], p.P[i0], p.Q[i0]
	}
	pointA = p.P[i0].Mul(u).Add(p.P[i1].Mul(v)).Add(p.P[i2].Mul(w))
	pointB = p.Q[i0].Mul(u).Add(p.Q[i1].Mul(v)).Add(p.Q[i2].Mul(w))
	return y, pointA, pointB
}

// Face returns the outward normal and plane distance of face i.
func (p *Polytope) Face(i int) (mgl64.Vec3, float64) {
	return p.faces[i].Normal, p.faces[i].Distance
}

// barycentric expresses x, assumed in the plane of abc, in barycentric coordinates.
func barycentric(a, b, c, x mgl64.Vec3) (float64, float64, float64, bool) {
	v0 := b.Sub(a)
	v1 := c.Sub(a)
	v2 := x.Sub(a)
	d00 := v0.Dot(v0)
	d01 := v0.Dot(v1)
	d11 := v1.Dot(v1)
	d20 := v2.Dot(v0)
	d21 := v2.Dot(v1)
	denom := d00*d11 - d01*d01
	if math.Abs(denom) <= 1.0e-24 {
		return 1, 0, 0, false
	}
	v := (d11*d20 - d01*d21) / denom
	w := (d00*d21 - d01*d20) / denom
	return 1 - v - w, v, w, true
}
