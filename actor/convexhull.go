package actor

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// hullPlaneTolerance is relative to the size of the point cloud.
const hullPlaneTolerance = 1.0e-6

// HullFace is a planar polygon of the hull, vertices CCW seen from outside.
type HullFace struct {
	Normal   mgl64.Vec3
	Vertices []int
}

// ConvexHull is the convex hull of a point cloud. Faces are computed once at
// construction; the support function only walks the hull vertices.
type ConvexHull struct {
	Points []mgl64.Vec3
	Faces  []HullFace

	bounds       AABB
	centerOfMass mgl64.Vec3
	volume       float64
	innerRadius  float64
}

// NewConvexHull builds a hull from points. It fails with ErrTooFewPoints when fewer than
// four distinct points are given and with ErrDegenerate when they are coplanar.
// Construction is quadratic in the face count and meant for content load time.
func NewConvexHull(points []mgl64.Vec3) (*ConvexHull, error) {
	unique := make([]mgl64.Vec3, 0, len(points))
	for _, p := range points {
		duplicate := false
		for _, u := range unique {
			if u.Sub(p).LenSqr() < 1.0e-12 {
				duplicate = true
				break
			}
		}
		if !duplicate {
			unique = append(unique, p)
		}
	}
	if len(unique) < 4 {
		return nil, fmt.Errorf("convex hull with %d distinct points: %w", len(unique), ErrTooFewPoints)
	}

	bounds := AABBFromPoints(unique...)
	size := bounds.Max.Sub(bounds.Min).Len()
	tolerance := hullPlaneTolerance * size

	faces := buildHullFaces(unique, tolerance)
	if len(faces) < 4 {
		return nil, fmt.Errorf("convex hull has %d faces: %w", len(faces), ErrDegenerate)
	}

	// Keep only the points referenced by a face
	used := make(map[int]int)
	var hullPoints []mgl64.Vec3
	for f := range faces {
		for i, v := range faces[f].Vertices {
			idx, ok := used[v]
			if !ok {
				idx = len(hullPoints)
				used[v] = idx
				hullPoints = append(hullPoints, unique[v])
			}
			faces[f].Vertices[i] = idx
		}
	}

	hull := &ConvexHull{Points: hullPoints, Faces: faces, bounds: AABBFromPoints(hullPoints...)}
	hull.computeVolume()
	if hull.volume <= tolerance*tolerance*tolerance {
		return nil, fmt.Errorf("convex hull volume %g: %w", hull.volume, ErrDegenerate)
	}
	hull.computeInnerRadius()
	return hull, nil
}

func buildHullFaces(points []mgl64.Vec3, tolerance float64) []HullFace {
	var faces []HullFace
	n := len(points)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				normal := TriangleNormal(points[i], points[j], points[k])
				if normal.LenSqr() < tolerance*tolerance*tolerance*tolerance {
					continue
				}
				normal = normal.Normalize()
				d := normal.Dot(points[i])

				front, back := 0, 0
				for _, p := range points {
					dist := normal.Dot(p) - d
					if dist > tolerance {
						front++
					} else if dist < -tolerance {
						back++
					}
				}
				if front > 0 && back > 0 {
					continue
				}
				if front > 0 {
					normal = normal.Mul(-1)
					d = -d
				}
				if hasFace(faces, normal) {
					continue
				}

				var onPlane []int
				for idx, p := range points {
					if math.Abs(normal.Dot(p)-d) <= tolerance {
						onPlane = append(onPlane, idx)
					}
				}
				faces = append(faces, HullFace{Normal: normal, Vertices: sortPolygon(points, onPlane, normal)})
			}
		}
	}
	return faces
}

func hasFace(faces []HullFace, normal mgl64.Vec3) bool {
	for _, f := range faces {
		if f.Normal.Sub(normal).LenSqr() < 1.0e-10 {
			return true
		}
	}
	return false
}

// sortPolygon orders coplanar points CCW around normal and drops points lying on edges.
func sortPolygon(points []mgl64.Vec3, indices []int, normal mgl64.Vec3) []int {
	var center mgl64.Vec3
	for _, i := range indices {
		center = center.Add(points[i])
	}
	center = center.Mul(1.0 / float64(len(indices)))
	t1, t2 := TangentBasis(normal)

	angle := func(i int) float64 {
		d := points[i].Sub(center)
		return math.Atan2(d.Dot(t2), d.Dot(t1))
	}
	sort.Slice(indices, func(a, b int) bool {
		return angle(indices[a]) < angle(indices[b])
	})

	// Remove collinear vertices
	out := make([]int, 0, len(indices))
	for i, idx := range indices {
		prev := points[indices[(i+len(indices)-1)%len(indices)]]
		next := points[indices[(i+1)%len(indices)]]
		cur := points[idx]
		if cur.Sub(prev).Cross(next.Sub(cur)).Dot(normal) > 1.0e-12 {
			out = append(out, idx)
		}
	}
	if len(out) < 3 {
		return indices
	}
	return out
}

func (h *ConvexHull) computeVolume() {
	// Tetrahedra fanned from an interior reference point
	ref := h.bounds.Center()
	var volume float64
	var weighted mgl64.Vec3
	for _, f := range h.Faces {
		a := h.Points[f.Vertices[0]]
		for i := 1; i+1 < len(f.Vertices); i++ {
			b := h.Points[f.Vertices[i]]
			c := h.Points[f.Vertices[i+1]]
			v := a.Sub(ref).Dot(b.Sub(ref).Cross(c.Sub(ref))) / 6.0
			volume += v
			weighted = weighted.Add(ref.Add(a).Add(b).Add(c).Mul(v / 4.0))
		}
	}
	h.volume = volume
	if volume > 0 {
		h.centerOfMass = weighted.Mul(1.0 / volume)
	}
}

func (h *ConvexHull) computeInnerRadius() {
	h.innerRadius = math.MaxFloat64
	for _, f := range h.Faces {
		d := f.Normal.Dot(h.Points[f.Vertices[0]].Sub(h.centerOfMass))
		h.innerRadius = math.Min(h.innerRadius, d)
	}
	h.innerRadius = math.Max(h.innerRadius, 0)
}

func (h *ConvexHull) Type() ShapeType          { return ShapeTypeConvexHull }
func (h *ConvexHull) Category() ShapeCategory  { return CategoryConvex }
func (h *ConvexHull) CenterOfMass() mgl64.Vec3 { return h.centerOfMass }
func (h *ConvexHull) SubShapeIDBits() uint     { return 0 }
func (h *ConvexHull) ConvexRadius() float64    { return 0 }
func (h *ConvexHull) InnerRadius() float64     { return h.innerRadius }
func (h *ConvexHull) LocalBounds() AABB        { return h.bounds }
func (h *ConvexHull) Volume() float64          { return h.volume }

func (h *ConvexHull) WorldBounds(transform Transform, scale mgl64.Vec3) AABB {
	box := EmptyAABB()
	for _, p := range h.Points {
		box = box.EncapsulatePoint(transform.Apply(MulPerElem(p, scale)))
	}
	return box
}

func (h *ConvexHull) ComputeMass(density float64) float64 {
	return density * h.volume
}

// ComputeInertia approximates the hull by its bounding box around the center of mass.
func (h *ConvexHull) ComputeInertia(mass float64) mgl64.Mat3 {
	box := Box{HalfExtents: h.bounds.Extent()}
	return box.ComputeInertia(mass)
}

func (h *ConvexHull) SupportFunction(mode SupportMode, scale mgl64.Vec3) Support {
	return convexSupport(PolygonSupport{Vertices: h.Points}, mode, scale)
}

func (h *ConvexHull) SupportingFace(direction mgl64.Vec3, scale mgl64.Vec3) []mgl64.Vec3 {
	// Normals transform with the inverse scale
	dir := MulPerElem(direction, scale)
	best := 0
	bestDot := -math.MaxFloat64
	for i, f := range h.Faces {
		if d := f.Normal.Dot(dir); d > bestDot {
			best, bestDot = i, d
		}
	}
	face := make([]mgl64.Vec3, len(h.Faces[best].Vertices))
	for i, v := range h.Faces[best].Vertices {
		face[i] = h.Points[v]
	}
	return scalePoints(face, scale)
}
