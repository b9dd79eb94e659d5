package narrowphase

import (
	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/collector"
	"github.com/akmonengine/impact/epa"
	"github.com/go-gl/mathgl/mgl64"
)

// CastShape sweeps shapeA from startA along direction (fraction 1 being startA moved by
// direction) against shapeB, and reports the first time of impact with each leaf of shapeB.
// Shape 1 of the results is the moving shape. Meshes can only be cast against.
func CastShape(shapeA actor.Shape, scaleA mgl64.Vec3, startA actor.Transform, direction mgl64.Vec3, shapeB actor.Shape, scaleB mgl64.Vec3, transformB actor.Transform, creatorA, creatorB actor.SubShapeIDCreator, settings *ShapeCastSettings, c collector.Collector[ShapeCastResult]) {
	if c.ShouldEarlyOut() {
		return
	}

	switch {
	case shapeA.Category() == actor.CategoryDecorated:
		decorator := shapeA.(actor.Decorator)
		t, s := decorator.ChildTransform(startA, scaleA)
		CastShape(decorator.Inner(), s, t, direction, shapeB, scaleB, transformB, creatorA, creatorB, settings, c)

	case shapeB.Category() == actor.CategoryDecorated:
		decorator := shapeB.(actor.Decorator)
		t, s := decorator.ChildTransform(transformB, scaleB)
		CastShape(shapeA, scaleA, startA, direction, decorator.Inner(), s, t, creatorA, creatorB, settings, c)

	case shapeA.Category() == actor.CategoryCompound:
		compound := shapeA.(*actor.Compound)
		for i, child := range compound.Children {
			t, s := compound.ChildTransform(i, startA, scaleA)
			CastShape(child.Shape, s, t, direction, shapeB, scaleB, transformB, creatorA.PushID(uint32(i), compound.ChildBits()), creatorB, settings, c)
			if c.ShouldEarlyOut() {
				return
			}
		}

	case shapeB.Category() == actor.CategoryCompound:
		compound := shapeB.(*actor.Compound)
		query := localBounds(sweptBounds(shapeA, scaleA, startA, direction, settings.MaxSeparationDistance), transformB, scaleB)
		compound.WalkChildren(query, func(i int) bool {
			t, s := compound.ChildTransform(i, transformB, scaleB)
			CastShape(shapeA, scaleA, startA, direction, compound.Children[i].Shape, s, t, creatorA, creatorB.PushID(uint32(i), compound.ChildBits()), settings, c)
			return !c.ShouldEarlyOut()
		})

	case shapeA.Category() == actor.CategoryMesh:
		return

	case shapeB.Category() == actor.CategoryMesh:
		convex, ok := shapeA.(actor.ConvexShape)
		if !ok {
			return
		}
		castConvexVsTriangles(convex, scaleA, startA, direction, shapeB.(actor.TriangleSource), scaleB, transformB, creatorA, creatorB, settings, c)

	default:
		convexA, okA := shapeA.(actor.ConvexShape)
		convexB, okB := shapeB.(actor.ConvexShape)
		if !okA || !okB {
			return
		}
		b := convexB.SupportFunction(actor.ExcludeConvexRadius, scaleB)
		static := actor.TransformedSupport{Transform: transformB, Inner: b}
		var face []mgl64.Vec3
		castConvex(convexA, scaleA, startA, direction, static, b.ConvexRadius(), func(axis mgl64.Vec3) []mgl64.Vec3 {
			if face == nil {
				face = supportingFace(convexB, scaleB, transformB, axis.Mul(-1))
			}
			return face
		}, false, creatorA, creatorB, settings, c)
	}
}

func sweptBounds(shape actor.Shape, scale mgl64.Vec3, start actor.Transform, direction mgl64.Vec3, margin float64) actor.AABB {
	return shape.WorldBounds(start, scale).ExpandDirection(direction).Expand(margin)
}

// castConvex sweeps a convex shape against a static support in world space. staticFace
// returns the face of the static shape for a penetration axis, when faces are collected.
func castConvex(convex actor.ConvexShape, scale mgl64.Vec3, start actor.Transform, direction mgl64.Vec3, static actor.Support, staticRadius float64, staticFace func(axis mgl64.Vec3) []mgl64.Vec3, backFace bool, creatorA, creatorB actor.SubShapeIDCreator, settings *ShapeCastSettings, c collector.Collector[ShapeCastResult]) {
	moving := convex.SupportFunction(actor.ExcludeConvexRadius, scale)

	lambda := actor.Clamp(c.EarlyOutFraction(), 0, 1)
	var pointStatic, pointMoving, axis mgl64.Vec3
	if !epa.CastShape(start, direction, settings.CollisionTolerance, settings.PenetrationTolerance, static, moving, staticRadius, moving.ConvexRadius(), settings.ReturnDeepestPoint, &lambda, &pointStatic, &pointMoving, &axis) {
		return
	}

	// The cast reports an axis from the static shape towards the moving one
	normal := actor.NormalizedOr(axis.Mul(-1), actor.NormalizedOr(direction, mgl64.Vec3{0, -1, 0}))
	result := ShapeCastResult{
		CollideShapeResult: CollideShapeResult{
			ContactPointOn1:  pointMoving,
			ContactPointOn2:  pointStatic,
			PenetrationAxis:  normal,
			PenetrationDepth: pointMoving.Sub(pointStatic).Dot(normal),
			SubShapeID1:      creatorA.ID(),
			SubShapeID2:      creatorB.ID(),
		},
		Fraction:      lambda,
		IsBackFaceHit: backFace,
	}
	if result.HitFraction() >= c.EarlyOutFraction() {
		return
	}

	if settings.CollectFacesMode == CollectFaces {
		hit := start
		hit.Position = start.Position.Add(direction.Mul(lambda))
		result.Shape1Face = supportingFace(convex, scale, hit, normal)
		result.Shape2Face = staticFace(normal)
	}
	c.AddHit(result)
}

func castConvexVsTriangles(convex actor.ConvexShape, scaleA mgl64.Vec3, startA actor.Transform, direction mgl64.Vec3, mesh actor.TriangleSource, scaleB mgl64.Vec3, transformB actor.Transform, creatorA, creatorB actor.SubShapeIDCreator, settings *ShapeCastSettings, c collector.Collector[ShapeCastResult]) {
	query := localBounds(sweptBounds(convex, scaleA, startA, direction, settings.MaxSeparationDistance), transformB, scaleB)
	flip := flipsWinding(scaleB)
	bits := mesh.SubShapeIDBits()

	mesh.WalkTriangles(query, func(index int) bool {
		triangle := meshTriangle(mesh, index, transformB, scaleB, flip)
		normal := actor.TriangleNormal(triangle.V0, triangle.V1, triangle.V2)
		if normal.LenSqr() < actor.Epsilon {
			return true
		}

		// Moving along the normal can only reach the back of the triangle
		backFace := direction.Dot(normal) > 0
		if backFace && settings.BackFaceModeTriangles == IgnoreBackFaces {
			return true
		}

		castConvex(convex, scaleA, startA, direction, triangle.support(), 0, func(mgl64.Vec3) []mgl64.Vec3 {
			return triangle.vertices()
		}, backFace, creatorA, creatorB.PushID(uint32(index), bits), settings, c)
		return !c.ShouldEarlyOut()
	})
}
