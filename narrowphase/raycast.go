package narrowphase

import (
	"math"

	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/collector"
	"github.com/akmonengine/impact/gjk"
	"github.com/go-gl/mathgl/mgl64"
)

// CastRay reports where ray enters shape, scaled then placed by transform. Only hits closer
// than the collector's early out fraction are reported.
func CastRay(shape actor.Shape, ray Ray, transform actor.Transform, scale mgl64.Vec3, settings RayCastSettings, creator actor.SubShapeIDCreator, c collector.Collector[RayCastResult]) {
	if c.ShouldEarlyOut() {
		return
	}

	switch shape.Category() {
	case actor.CategoryDecorated:
		decorator := shape.(actor.Decorator)
		t, s := decorator.ChildTransform(transform, scale)
		CastRay(decorator.Inner(), ray, t, s, settings, creator, c)

	case actor.CategoryCompound:
		compound := shape.(*actor.Compound)
		inv := actor.InverseDirection(ray.Direction)
		for i, child := range compound.Children {
			t, s := compound.ChildTransform(i, transform, scale)
			if child.Shape.WorldBounds(t, s).RayHitFraction(ray.Origin, inv) >= math.Min(1, c.EarlyOutFraction()) {
				continue
			}
			CastRay(child.Shape, ray, t, s, settings, creator.PushID(uint32(i), compound.ChildBits()), c)
			if c.ShouldEarlyOut() {
				return
			}
		}

	case actor.CategoryMesh:
		castRayVsTriangles(shape.(actor.TriangleSource), ray, transform, scale, settings, creator, c)

	default:
		convex, ok := shape.(actor.ConvexShape)
		if !ok {
			return
		}
		fraction, hit := castRayVsConvex(convex, ray, transform, scale, settings)
		if hit && fraction < c.EarlyOutFraction() {
			c.AddHit(RayCastResult{Fraction: fraction, SubShapeID: creator.ID()})
		}
	}
}

// rayFraction picks the reported fraction from the entry and exit of a ray through a
// convex volume.
func rayFraction(entry, exit float64, inside bool, settings RayCastSettings) (float64, bool) {
	if inside {
		if settings.TreatConvexAsSolid {
			return 0, true
		}
		if settings.BackFaceMode == CollideWithBackFaces && exit <= 1 {
			return exit, true
		}
		return 0, false
	}
	if entry < 0 || entry > 1 {
		return 0, false
	}
	return entry, true
}

func castRayVsConvex(convex actor.ConvexShape, ray Ray, transform actor.Transform, scale mgl64.Vec3, settings RayCastSettings) (float64, bool) {
	origin := transform.ApplyInverse(ray.Origin)
	direction := transform.InverseRotateDirection(ray.Direction)

	switch shape := convex.(type) {
	case *actor.Sphere:
		abs := actor.AbsVec(scale)
		if abs.X() == abs.Y() && abs.Y() == abs.Z() {
			return castRayVsSphere(shape.Radius*abs.X(), origin, direction, settings)
		}
	case *actor.Box:
		he := actor.MulPerElem(shape.HalfExtents, actor.AbsVec(scale))
		return castRayVsBox(actor.AABB{Min: he.Mul(-1), Max: he}, origin, direction, settings)
	}
	return castRayVsSupport(convex.SupportFunction(actor.ExcludeConvexRadius, scale), origin, direction, settings)
}

func castRayVsSphere(radius float64, origin, direction mgl64.Vec3, settings RayCastSettings) (float64, bool) {
	a := direction.LenSqr()
	b := 2 * direction.Dot(origin)
	c := origin.LenSqr() - radius*radius
	inside := c <= 0
	if a < actor.Epsilon {
		return rayFraction(0, math.MaxFloat64, inside, settings)
	}

	disc := b*b - 4*a*c
	if disc < 0 {
		return 0, false
	}
	sqrtDisc := math.Sqrt(disc)
	return rayFraction((-b-sqrtDisc)/(2*a), (-b+sqrtDisc)/(2*a), inside, settings)
}

func castRayVsBox(box actor.AABB, origin, direction mgl64.Vec3, settings RayCastSettings) (float64, bool) {
	tMin, tMax := -math.MaxFloat64, math.MaxFloat64
	for i := 0; i < 3; i++ {
		if math.Abs(direction[i]) < actor.Epsilon {
			if origin[i] < box.Min[i] || origin[i] > box.Max[i] {
				return 0, false
			}
			continue
		}
		t1 := (box.Min[i] - origin[i]) / direction[i]
		t2 := (box.Max[i] - origin[i]) / direction[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
		if tMin > tMax {
			return 0, false
		}
	}
	return rayFraction(tMin, tMax, box.ContainsPoint(origin), settings)
}

// castRayVsSupport casts against any convex support with GJK. The exit point is found by
// casting the reversed ray from the end of the segment.
func castRayVsSupport(support actor.Support, origin, direction mgl64.Vec3, settings RayCastSettings) (float64, bool) {
	simplex := gjk.SimplexPool.Get().(*gjk.Simplex)
	defer gjk.SimplexPool.Put(simplex)

	simplex.Reset()
	lambda := 1.0
	if !simplex.CastRay(origin, direction, DefaultCollisionTolerance, support, &lambda) {
		return 0, false
	}
	if lambda > 0 {
		return lambda, true
	}

	if settings.TreatConvexAsSolid {
		return 0, true
	}
	if settings.BackFaceMode == IgnoreBackFaces {
		return 0, false
	}

	simplex.Reset()
	back := 1.0
	if !simplex.CastRay(origin.Add(direction), direction.Mul(-1), DefaultCollisionTolerance, support, &back) || back == 0 {
		// The whole segment lies inside
		return 0, false
	}
	return 1 - back, true
}

// castRayVsTriangles intersects the ray with the triangles of a mesh in its unscaled local
// space, where hit fractions are the same as in world space.
func castRayVsTriangles(mesh actor.TriangleSource, ray Ray, transform actor.Transform, scale mgl64.Vec3, settings RayCastSettings, creator actor.SubShapeIDCreator, c collector.Collector[RayCastResult]) {
	inv := inverseScale(scale)
	origin := actor.MulPerElem(transform.ApplyInverse(ray.Origin), inv)
	direction := actor.MulPerElem(transform.InverseRotateDirection(ray.Direction), inv)
	flip := flipsWinding(scale)
	bits := mesh.SubShapeIDBits()

	mesh.WalkRay(origin, direction, func(index int) bool {
		v0, v1, v2, _ := mesh.Triangle(index)
		fraction, frontFace, hit := rayTriangle(origin, direction, v0, v1, v2)
		if !hit {
			return true
		}
		if frontFace == flip && settings.BackFaceMode == IgnoreBackFaces {
			return true
		}
		if fraction < c.EarlyOutFraction() {
			c.AddHit(RayCastResult{Fraction: fraction, SubShapeID: creator.PushID(uint32(index), bits).ID()})
		}
		return !c.ShouldEarlyOut()
	})
}

// rayTriangle is the Möller-Trumbore intersection of the segment origin + t * direction,
// t in [0, 1], with a triangle. frontFace is true when the ray crosses the triangle against
// its normal.
func rayTriangle(origin, direction, v0, v1, v2 mgl64.Vec3) (float64, bool, bool) {
	e1 := v1.Sub(v0)
	e2 := v2.Sub(v0)
	p := direction.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(det) < actor.Epsilon {
		return 0, false, false
	}

	invDet := 1 / det
	s := origin.Sub(v0)
	u := s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, false, false
	}
	q := s.Cross(e1)
	v := direction.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, false, false
	}
	t := e2.Dot(q) * invDet
	if t < 0 || t > 1 {
		return 0, false, false
	}
	// det = -direction . (e1 x e2)
	return t, det > 0, true
}

// CollidePoint reports the leaves of shape containing point.
func CollidePoint(shape actor.Shape, point mgl64.Vec3, transform actor.Transform, scale mgl64.Vec3, creator actor.SubShapeIDCreator, c collector.Collector[CollidePointResult]) {
	if c.ShouldEarlyOut() {
		return
	}

	switch shape.Category() {
	case actor.CategoryDecorated:
		decorator := shape.(actor.Decorator)
		t, s := decorator.ChildTransform(transform, scale)
		CollidePoint(decorator.Inner(), point, t, s, creator, c)

	case actor.CategoryCompound:
		compound := shape.(*actor.Compound)
		for i, child := range compound.Children {
			t, s := compound.ChildTransform(i, transform, scale)
			if !child.Shape.WorldBounds(t, s).ContainsPoint(point) {
				continue
			}
			CollidePoint(child.Shape, point, t, s, creator.PushID(uint32(i), compound.ChildBits()), c)
			if c.ShouldEarlyOut() {
				return
			}
		}

	case actor.CategoryMesh:
		local := actor.MulPerElem(transform.ApplyInverse(point), inverseScale(scale))
		if pointInTriangles(shape.(actor.TriangleSource), local) {
			c.AddHit(CollidePointResult{SubShapeID: creator.ID()})
		}

	default:
		convex, ok := shape.(actor.ConvexShape)
		if ok && pointInConvex(convex, transform.ApplyInverse(point), scale) {
			c.AddHit(CollidePointResult{SubShapeID: creator.ID()})
		}
	}
}

func pointInConvex(convex actor.ConvexShape, local, scale mgl64.Vec3) bool {
	switch shape := convex.(type) {
	case *actor.Sphere:
		abs := actor.AbsVec(scale)
		if abs.X() == abs.Y() && abs.Y() == abs.Z() {
			r := shape.Radius * abs.X()
			return local.LenSqr() <= r*r
		}
	case *actor.Box:
		he := actor.MulPerElem(shape.HalfExtents, actor.AbsVec(scale))
		return actor.AABB{Min: he.Mul(-1), Max: he}.ContainsPoint(local)
	}

	simplex := gjk.SimplexPool.Get().(*gjk.Simplex)
	defer gjk.SimplexPool.Put(simplex)
	simplex.Reset()
	v := local.Mul(-1)
	return simplex.Intersects(convex.SupportFunction(actor.IncludeConvexRadius, scale), actor.PointSupport{Point: local}, DefaultCollisionTolerance, &v)
}

// pointInTriangles tests a point against the solid bounded by a mesh by counting the
// crossings of a ray leaving the bounds. Height fields are solid below their surface.
func pointInTriangles(mesh actor.TriangleSource, local mgl64.Vec3) bool {
	if hf, ok := mesh.(*actor.HeightField); ok {
		height, inside := hf.HeightAt(local.X(), local.Z())
		return inside && local.Y() <= height
	}

	bounds := mesh.LocalBounds()
	if !bounds.ContainsPoint(local) {
		return false
	}
	// Slightly skewed so the ray does not graze edges of axis aligned meshes
	length := bounds.Extent().Len()*2 + 1
	direction := mgl64.Vec3{0.0123, 1, 0.0231}.Normalize().Mul(length)

	crossings := 0
	mesh.WalkRay(local, direction, func(index int) bool {
		v0, v1, v2, _ := mesh.Triangle(index)
		if _, _, hit := rayTriangle(local, direction, v0, v1, v2); hit {
			crossings++
		}
		return true
	})
	return crossings%2 == 1
}
