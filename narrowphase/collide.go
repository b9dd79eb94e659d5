package narrowphase

import (
	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/collector"
	"github.com/akmonengine/impact/epa"
	"github.com/go-gl/mathgl/mgl64"
)

// CollideShapeVsShape reports every contact between shapeA and shapeB, both scaled then
// placed by their world transform. Sub shape ids are built from creatorA and creatorB while
// descending compound and mesh shapes. Two meshes never collide.
func CollideShapeVsShape(shapeA, shapeB actor.Shape, scaleA, scaleB mgl64.Vec3, transformA, transformB actor.Transform, creatorA, creatorB actor.SubShapeIDCreator, settings *CollideShapeSettings, c collector.Collector[CollideShapeResult]) {
	if c.ShouldEarlyOut() {
		return
	}

	switch {
	case shapeA.Category() == actor.CategoryDecorated:
		decorator := shapeA.(actor.Decorator)
		t, s := decorator.ChildTransform(transformA, scaleA)
		CollideShapeVsShape(decorator.Inner(), shapeB, s, scaleB, t, transformB, creatorA, creatorB, settings, c)

	case shapeB.Category() == actor.CategoryDecorated:
		decorator := shapeB.(actor.Decorator)
		t, s := decorator.ChildTransform(transformB, scaleB)
		CollideShapeVsShape(shapeA, decorator.Inner(), scaleA, s, transformA, t, creatorA, creatorB, settings, c)

	case shapeA.Category() == actor.CategoryCompound:
		compound := shapeA.(*actor.Compound)
		query := localBounds(shapeB.WorldBounds(transformB, scaleB).Expand(settings.MaxSeparationDistance), transformA, scaleA)
		compound.WalkChildren(query, func(i int) bool {
			t, s := compound.ChildTransform(i, transformA, scaleA)
			child := creatorA.PushID(uint32(i), compound.ChildBits())
			CollideShapeVsShape(compound.Children[i].Shape, shapeB, s, scaleB, t, transformB, child, creatorB, settings, c)
			return !c.ShouldEarlyOut()
		})

	case shapeB.Category() == actor.CategoryCompound:
		compound := shapeB.(*actor.Compound)
		query := localBounds(shapeA.WorldBounds(transformA, scaleA).Expand(settings.MaxSeparationDistance), transformB, scaleB)
		compound.WalkChildren(query, func(i int) bool {
			t, s := compound.ChildTransform(i, transformB, scaleB)
			child := creatorB.PushID(uint32(i), compound.ChildBits())
			CollideShapeVsShape(shapeA, compound.Children[i].Shape, scaleA, s, transformA, t, creatorA, child, settings, c)
			return !c.ShouldEarlyOut()
		})

	case shapeA.Category() == actor.CategoryMesh:
		if shapeB.Category() == actor.CategoryMesh {
			return
		}
		// Collide the other way around and swap the results back
		reversed := *settings
		reversed.ActiveEdgeMovementDirection = settings.ActiveEdgeMovementDirection.Mul(-1)
		CollideShapeVsShape(shapeB, shapeA, scaleB, scaleA, transformB, transformA, creatorB, creatorA, &reversed, reversedCollector{inner: c})

	case shapeB.Category() == actor.CategoryMesh:
		convex, ok := shapeA.(actor.ConvexShape)
		if !ok {
			return
		}
		collideConvexVsTriangles(convex, shapeB.(actor.TriangleSource), scaleA, scaleB, transformA, transformB, creatorA, creatorB, settings, c)

	default:
		convexA, okA := shapeA.(actor.ConvexShape)
		convexB, okB := shapeB.(actor.ConvexShape)
		if !okA || !okB {
			return
		}
		collideConvexVsConvex(convexA, convexB, scaleA, scaleB, transformA, transformB, creatorA, creatorB, settings, c)
	}
}

// convexSupports returns the core and inclusive supports of a convex shape in world space,
// and the convex radius separating them.
func convexSupports(shape actor.ConvexShape, scale mgl64.Vec3, transform actor.Transform) (actor.Support, actor.Support, float64) {
	excl := shape.SupportFunction(actor.ExcludeConvexRadius, scale)
	incl := shape.SupportFunction(actor.IncludeConvexRadius, scale)
	return actor.TransformedSupport{Transform: transform, Inner: excl},
		actor.TransformedSupport{Transform: transform, Inner: incl},
		excl.ConvexRadius()
}

func collideConvexVsConvex(a, b actor.ConvexShape, scaleA, scaleB mgl64.Vec3, transformA, transformB actor.Transform, creatorA, creatorB actor.SubShapeIDCreator, settings *CollideShapeSettings, c collector.Collector[CollideShapeResult]) {
	aExcl, aIncl, radiusA := convexSupports(a, scaleA, transformA)
	bExcl, bIncl, radiusB := convexSupports(b, scaleB, transformB)

	v := transformA.Position.Sub(transformB.Position)
	var pointA, pointB mgl64.Vec3
	if !epa.GetPenetrationDepth(aExcl, aIncl, radiusA, bExcl, bIncl, radiusB, settings.CollisionTolerance, settings.PenetrationTolerance, settings.MaxSeparationDistance, &v, &pointA, &pointB) {
		return
	}

	axis := actor.NormalizedOr(v, mgl64.Vec3{0, 1, 0})
	depth := pointA.Sub(pointB).Dot(axis)
	if -depth >= c.EarlyOutFraction() {
		return
	}

	result := CollideShapeResult{
		ContactPointOn1:  pointA,
		ContactPointOn2:  pointB,
		PenetrationAxis:  axis,
		PenetrationDepth: depth,
		SubShapeID1:      creatorA.ID(),
		SubShapeID2:      creatorB.ID(),
	}
	if settings.CollectFacesMode == CollectFaces {
		result.Shape1Face = supportingFace(a, scaleA, transformA, axis)
		result.Shape2Face = supportingFace(b, scaleB, transformB, axis.Mul(-1))
	}
	c.AddHit(result)
}

// supportingFace returns the world space face of shape pointing along direction.
func supportingFace(shape actor.ConvexShape, scale mgl64.Vec3, transform actor.Transform, direction mgl64.Vec3) []mgl64.Vec3 {
	face := shape.SupportingFace(transform.InverseRotateDirection(direction), scale)
	for i := range face {
		face[i] = transform.Apply(face[i])
	}
	return face
}

// localBounds maps a world box into the unscaled local space of a shape.
func localBounds(box actor.AABB, transform actor.Transform, scale mgl64.Vec3) actor.AABB {
	local := box.Transformed(transform.Inverse())
	if scale == actor.UnitScale {
		return local
	}
	return local.Scaled(inverseScale(scale))
}

func inverseScale(scale mgl64.Vec3) mgl64.Vec3 {
	var inv mgl64.Vec3
	for i := range scale {
		inv[i] = actor.SafeDiv(1, scale[i], 0)
	}
	return inv
}

// flipsWinding reports whether scale mirrors the shape, which reverses triangle winding.
func flipsWinding(scale mgl64.Vec3) bool {
	return scale.X()*scale.Y()*scale.Z() < 0
}

// reversedCollector swaps the shapes of every result before passing it on.
type reversedCollector struct {
	inner collector.Collector[CollideShapeResult]
}

func (r reversedCollector) AddHit(result CollideShapeResult) {
	r.inner.AddHit(result.Reversed())
}

func (r reversedCollector) EarlyOutFraction() float64 { return r.inner.EarlyOutFraction() }
func (r reversedCollector) UpdateEarlyOutFraction(fraction float64) {
	r.inner.UpdateEarlyOutFraction(fraction)
}
func (r reversedCollector) ForceEarlyOut()       { r.inner.ForceEarlyOut() }
func (r reversedCollector) ShouldEarlyOut() bool { return r.inner.ShouldEarlyOut() }
func (r reversedCollector) Reset()               { r.inner.Reset() }
