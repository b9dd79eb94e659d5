package actor

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// HeightField is a regular grid of height samples in the XZ plane. Each cell holds two
// triangles; the grid itself serves as the spatial index.
type HeightField struct {
	Offset      mgl64.Vec3
	CellSize    float64
	SampleCount int
	Heights     []float64 // row major, index z*SampleCount + x

	activeEdges []uint8
	bounds      AABB
	idBits      uint
}

// NewHeightField validates the samples and precomputes active edges.
func NewHeightField(heights []float64, sampleCount int, cellSize float64, offset mgl64.Vec3) (*HeightField, error) {
	if sampleCount < 2 || cellSize <= 0 {
		return nil, fmt.Errorf("sample count %d, cell size %g: %w", sampleCount, cellSize, ErrInvalidHeightField)
	}
	if len(heights) != sampleCount*sampleCount {
		return nil, fmt.Errorf("%d samples for a %dx%d grid: %w", len(heights), sampleCount, sampleCount, ErrInvalidHeightField)
	}

	h := &HeightField{
		Offset:      offset,
		CellSize:    cellSize,
		SampleCount: sampleCount,
		Heights:     heights,
	}

	minH, maxH := math.MaxFloat64, -math.MaxFloat64
	for _, v := range heights {
		minH = math.Min(minH, v)
		maxH = math.Max(maxH, v)
	}
	extent := float64(sampleCount-1) * cellSize
	h.bounds = AABB{
		Min: offset.Add(mgl64.Vec3{0, minH, 0}),
		Max: offset.Add(mgl64.Vec3{extent, maxH, extent}),
	}

	vertices := make([]mgl64.Vec3, len(heights))
	for z := 0; z < sampleCount; z++ {
		for x := 0; x < sampleCount; x++ {
			vertices[z*sampleCount+x] = h.sample(x, z)
		}
	}
	indices := make([][3]uint32, h.NumTriangles())
	for t := range indices {
		indices[t] = h.triangleIndices(t)
	}
	h.activeEdges = computeActiveEdges(vertices, indices, DefaultActiveEdgeCosThreshold)
	h.idBits = bitsForCount(len(indices))
	return h, nil
}

func (h *HeightField) sample(x, z int) mgl64.Vec3 {
	return h.Offset.Add(mgl64.Vec3{
		float64(x) * h.CellSize,
		h.Heights[z*h.SampleCount+x],
		float64(z) * h.CellSize,
	})
}

func (h *HeightField) triangleIndices(t int) [3]uint32 {
	cells := h.SampleCount - 1
	cell := t / 2
	x, z := cell%cells, cell/cells
	n := h.SampleCount
	i00 := uint32(z*n + x)
	i10 := uint32(z*n + x + 1)
	i01 := uint32((z+1)*n + x)
	i11 := uint32((z+1)*n + x + 1)
	// Both triangles face +Y
	if t%2 == 0 {
		return [3]uint32{i00, i01, i11}
	}
	return [3]uint32{i00, i11, i10}
}

func (h *HeightField) NumTriangles() int {
	cells := h.SampleCount - 1
	return cells * cells * 2
}

func (h *HeightField) Triangle(index int) (mgl64.Vec3, mgl64.Vec3, mgl64.Vec3, uint8) {
	idx := h.triangleIndices(index)
	n := h.SampleCount
	v := func(i uint32) mgl64.Vec3 {
		return h.sample(int(i)%n, int(i)/n)
	}
	return v(idx[0]), v(idx[1]), v(idx[2]), h.activeEdges[index]
}

// HeightAt returns the interpolated surface height at a local x, z, and false outside the grid.
func (h *HeightField) HeightAt(x, z float64) (float64, bool) {
	fx := (x - h.Offset.X()) / h.CellSize
	fz := (z - h.Offset.Z()) / h.CellSize
	cells := float64(h.SampleCount - 1)
	if fx < 0 || fz < 0 || fx > cells || fz > cells {
		return 0, false
	}
	cx := int(math.Min(math.Floor(fx), cells-1))
	cz := int(math.Min(math.Floor(fz), cells-1))
	u, w := fx-float64(cx), fz-float64(cz)

	h00 := h.Heights[cz*h.SampleCount+cx]
	h10 := h.Heights[cz*h.SampleCount+cx+1]
	h01 := h.Heights[(cz+1)*h.SampleCount+cx]
	h11 := h.Heights[(cz+1)*h.SampleCount+cx+1]
	// Same split diagonal as triangleIndices
	if w >= u {
		return h.Offset.Y() + h00 + u*(h11-h01) + w*(h01-h00), true
	}
	return h.Offset.Y() + h00 + u*(h10-h00) + w*(h11-h10), true
}

func (h *HeightField) WalkTriangles(box AABB, fn func(index int) bool) {
	if !box.Overlaps(h.bounds) {
		return
	}
	cells := h.SampleCount - 1
	toCell := func(v, origin float64) int {
		return int(math.Floor((v - origin) / h.CellSize))
	}
	x0 := max(toCell(box.Min.X(), h.Offset.X()), 0)
	x1 := min(toCell(box.Max.X(), h.Offset.X()), cells-1)
	z0 := max(toCell(box.Min.Z(), h.Offset.Z()), 0)
	z1 := min(toCell(box.Max.Z(), h.Offset.Z()), cells-1)

	for z := z0; z <= z1; z++ {
		for x := x0; x <= x1; x++ {
			// Vertical rejection on the cell's height range
			n := h.SampleCount
			lo := math.Min(math.Min(h.Heights[z*n+x], h.Heights[z*n+x+1]), math.Min(h.Heights[(z+1)*n+x], h.Heights[(z+1)*n+x+1])) + h.Offset.Y()
			hi := math.Max(math.Max(h.Heights[z*n+x], h.Heights[z*n+x+1]), math.Max(h.Heights[(z+1)*n+x], h.Heights[(z+1)*n+x+1])) + h.Offset.Y()
			if hi < box.Min.Y() || lo > box.Max.Y() {
				continue
			}
			t := (z*cells + x) * 2
			if !fn(t) || !fn(t+1) {
				return
			}
		}
	}
}

// WalkRay visits the cells under the bounds of the segment.
func (h *HeightField) WalkRay(origin, direction mgl64.Vec3, fn func(index int) bool) {
	h.WalkTriangles(AABBFromPoints(origin, origin.Add(direction)), fn)
}

func (h *HeightField) Type() ShapeType          { return ShapeTypeHeightField }
func (h *HeightField) Category() ShapeCategory  { return CategoryMesh }
func (h *HeightField) CenterOfMass() mgl64.Vec3 { return mgl64.Vec3{} }
func (h *HeightField) SubShapeIDBits() uint     { return h.idBits }
func (h *HeightField) InnerRadius() float64     { return 0 }
func (h *HeightField) LocalBounds() AABB        { return h.bounds }

func (h *HeightField) WorldBounds(transform Transform, scale mgl64.Vec3) AABB {
	return boundsOf(h.bounds, transform, scale)
}

func (h *HeightField) ComputeMass(density float64) float64 {
	return 0
}

func (h *HeightField) ComputeInertia(mass float64) mgl64.Mat3 {
	return mgl64.Mat3{}
}
