package impact

import (
	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/broadphase"
	"github.com/akmonengine/impact/collector"
	"github.com/akmonengine/impact/narrowphase"
	"github.com/go-gl/mathgl/mgl64"
)

// QueryFilter narrows a world query. The zero value accepts every body.
type QueryFilter struct {
	BroadPhaseLayer broadphase.BroadPhaseLayerFilter
	ObjectLayer     broadphase.ObjectLayerFilter
	// Body rejects single bodies when it returns false
	Body func(body *actor.RigidBody) bool
}

func (f QueryFilter) accepts(body *actor.RigidBody) bool {
	return body != nil && (f.Body == nil || f.Body(body))
}

// broadPhaseVisitor runs a narrow phase query on every broad phase hit. It shares the early
// out fraction of the narrow phase collector, so the broad phase skips the boxes that cannot
// hold a better hit.
type broadPhaseVisitor[B collector.Hit, R collector.Hit] struct {
	inner collector.Collector[R]
	visit func(hit B)
}

func (v *broadPhaseVisitor[B, R]) AddHit(hit B)              { v.visit(hit) }
func (v *broadPhaseVisitor[B, R]) EarlyOutFraction() float64 { return v.inner.EarlyOutFraction() }
func (v *broadPhaseVisitor[B, R]) UpdateEarlyOutFraction(f float64) {
	v.inner.UpdateEarlyOutFraction(f)
}
func (v *broadPhaseVisitor[B, R]) ForceEarlyOut()       { v.inner.ForceEarlyOut() }
func (v *broadPhaseVisitor[B, R]) ShouldEarlyOut() bool { return v.inner.ShouldEarlyOut() }
func (v *broadPhaseVisitor[B, R]) Reset()               {}

// bodyCollector stamps the queried body on every hit.
type bodyCollector[R collector.Hit] struct {
	collector.Collector[R]
	stamp func(result R) R
}

func (c bodyCollector[R]) AddHit(result R) {
	c.Collector.AddHit(c.stamp(result))
}

// CastRay finds the bodies hit by ray, its Direction being the full length of the ray.
func (w *World) CastRay(ray narrowphase.Ray, settings narrowphase.RayCastSettings, c collector.Collector[narrowphase.RayCastResult], filter QueryFilter) {
	visitor := &broadPhaseVisitor[broadphase.CastResult, narrowphase.RayCastResult]{
		inner: c,
		visit: func(hit broadphase.CastResult) {
			body := w.Body(hit.BodyID)
			if !filter.accepts(body) {
				return
			}
			stamped := bodyCollector[narrowphase.RayCastResult]{Collector: c, stamp: func(r narrowphase.RayCastResult) narrowphase.RayCastResult {
				r.BodyID = body.ID
				return r
			}}
			narrowphase.CastRay(body.Shape, ray, body.Transform, actor.UnitScale, settings, actor.NewSubShapeIDCreator(), stamped)
		},
	}
	w.broadPhase.CastRay(ray.Origin, ray.Direction, visitor, filter.BroadPhaseLayer, filter.ObjectLayer)
}

// CollidePoint finds the bodies containing point.
func (w *World) CollidePoint(point mgl64.Vec3, c collector.Collector[narrowphase.CollidePointResult], filter QueryFilter) {
	visitor := &broadPhaseVisitor[broadphase.BodyHit, narrowphase.CollidePointResult]{
		inner: c,
		visit: func(hit broadphase.BodyHit) {
			body := w.Body(hit.BodyID)
			if !filter.accepts(body) {
				return
			}
			stamped := bodyCollector[narrowphase.CollidePointResult]{Collector: c, stamp: func(r narrowphase.CollidePointResult) narrowphase.CollidePointResult {
				r.BodyID = body.ID
				return r
			}}
			narrowphase.CollidePoint(body.Shape, point, body.Transform, actor.UnitScale, actor.NewSubShapeIDCreator(), stamped)
		},
	}
	w.broadPhase.CollidePoint(point, visitor, filter.BroadPhaseLayer, filter.ObjectLayer)
}

// CollideShape finds the bodies closer to shape than settings.MaxSeparationDistance. Shape 1
// of every result is the query shape, BodyID2 the body hit.
func (w *World) CollideShape(shape actor.Shape, scale mgl64.Vec3, transform actor.Transform, settings narrowphase.CollideShapeSettings, c collector.Collector[narrowphase.CollideShapeResult], filter QueryFilter) {
	bounds := shape.WorldBounds(transform, scale).Expand(settings.MaxSeparationDistance)
	creator := actor.NewSubShapeIDCreator()
	visitor := &broadPhaseVisitor[broadphase.BodyHit, narrowphase.CollideShapeResult]{
		inner: c,
		visit: func(hit broadphase.BodyHit) {
			body := w.Body(hit.BodyID)
			if !filter.accepts(body) {
				return
			}
			narrowphase.CollideShapeVsShape(shape, body.Shape, scale, actor.UnitScale, transform, body.Transform,
				creator, creator, &settings, stampBody2[narrowphase.CollideShapeResult](c, body.ID))
		},
	}
	w.broadPhase.CollideAABox(bounds, visitor, filter.BroadPhaseLayer, filter.ObjectLayer)
}

// CastShape sweeps shape from start along direction and reports the bodies it hits.
func (w *World) CastShape(shape actor.Shape, scale mgl64.Vec3, start actor.Transform, direction mgl64.Vec3, settings narrowphase.ShapeCastSettings, c collector.Collector[narrowphase.ShapeCastResult], filter QueryFilter) {
	bounds := shape.WorldBounds(start, scale)
	creator := actor.NewSubShapeIDCreator()
	visitor := &broadPhaseVisitor[broadphase.CastResult, narrowphase.ShapeCastResult]{
		inner: c,
		visit: func(hit broadphase.CastResult) {
			body := w.Body(hit.BodyID)
			if !filter.accepts(body) {
				return
			}
			narrowphase.CastShape(shape, scale, start, direction, body.Shape, actor.UnitScale, body.Transform,
				creator, creator, &settings, stampBody2[narrowphase.ShapeCastResult](c, body.ID))
		},
	}
	w.broadPhase.CastAABox(bounds, direction, visitor, filter.BroadPhaseLayer, filter.ObjectLayer)
}

// stampBody2 wraps c to set BodyID2 on collide and cast results.
func stampBody2[R interface {
	narrowphase.CollideShapeResult | narrowphase.ShapeCastResult
	collector.Hit
}](c collector.Collector[R], id actor.BodyID) collector.Collector[R] {
	return bodyCollector[R]{Collector: c, stamp: func(r R) R {
		switch v := any(&r).(type) {
		case *narrowphase.CollideShapeResult:
			v.BodyID2 = id
		case *narrowphase.ShapeCastResult:
			v.BodyID2 = id
		}
		return r
	}}
}
