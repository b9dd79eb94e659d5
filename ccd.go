package impact

import (
	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/broadphase"
	"github.com/akmonengine/impact/collector"
	"github.com/akmonengine/impact/constraint"
	"github.com/akmonengine/impact/narrowphase"
)

// sweep casts a linear cast body from its position at the start of the step along its
// displacement. On a hit the body stops at the time of impact and loses its velocity into
// the surface, bounced by the combined restitution. It reports whether the body was moved
// back.
func (w *World) sweep(body *actor.RigidBody) bool {
	if body.IsSensor {
		return false
	}
	start := body.PreviousTransform.Position
	displacement := body.Transform.Position.Sub(start)
	// slow bodies cannot skip over anything the speculative contacts did not catch
	threshold := w.settings.LinearCastThreshold * body.Shape.InnerRadius()
	if displacement.LenSqr() <= threshold*threshold {
		return false
	}

	startTransform := actor.Transform{Position: start, Rotation: body.Transform.Rotation}
	settings := narrowphase.DefaultShapeCastSettings()
	settings.ActiveEdgeMode = w.settings.ActiveEdgeMode
	settings.ReturnDeepestPoint = false

	layers := w.settings.Layers
	layerFilter := broadphase.BroadPhaseLayerFilterFunc(func(layer broadphase.BroadPhaseLayer) bool {
		return layers.ObjectVsLayer.ShouldCollide(body.ObjectLayer, layer)
	})
	objectFilter := broadphase.ObjectLayerFilterFunc(func(layer actor.ObjectLayer) bool {
		return layers.ObjectLayerPair.ShouldCollide(body.ObjectLayer, layer)
	})

	closest := collector.NewClosestHit[narrowphase.ShapeCastResult]()
	creator := actor.NewSubShapeIDCreator()
	visitor := &broadPhaseVisitor[broadphase.CastResult, narrowphase.ShapeCastResult]{
		inner: closest,
		visit: func(hit broadphase.CastResult) {
			other := w.bodies[hit.BodyID]
			if other == nil || other == body || other.IsSensor {
				return
			}
			narrowphase.CastShape(body.Shape, actor.UnitScale, startTransform, displacement, other.Shape, actor.UnitScale, other.Transform,
				creator, creator, &settings, stampBody2[narrowphase.ShapeCastResult](closest, other.ID))
		},
	}
	w.broadPhase.CastAABox(body.Shape.WorldBounds(startTransform, actor.UnitScale), displacement, visitor, layerFilter, objectFilter)

	// starting in contact is left to the position solver
	if !closest.HadHit() || closest.Hit.Fraction <= 0 || closest.Hit.Fraction >= 1 {
		return false
	}
	hit := closest.Hit
	other := w.bodies[hit.BodyID2]

	body.Transform.Position = start.Add(displacement.Mul(hit.Fraction))

	normal := actor.NormalizedOr(hit.PenetrationAxis, displacement.Normalize())
	approach := body.Velocity.Sub(other.Velocity).Dot(normal)
	if approach > 0 {
		restitution := constraint.ComputeRestitution(body.Material, other.Material)
		body.Velocity = body.Velocity.Sub(normal.Mul((1 + restitution) * approach))
	}
	return true
}
