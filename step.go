package impact

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/broadphase"
	"github.com/akmonengine/impact/collector"
	"github.com/akmonengine/impact/constraint"
	"github.com/akmonengine/impact/job"
	"github.com/akmonengine/impact/narrowphase"
)

// collisionBatchSize is the number of active bodies searched for pairs by one job.
const collisionBatchSize = 16

// stepContext is the state shared by the jobs of one collision step. Every stage runs as
// jobs of barrier and releases the next stage once its last job is done.
type stepContext struct {
	w       *World
	dt      float64
	solver  constraint.Settings
	barrier *job.Barrier

	// active lists the bodies simulated this step, bodies woken up during the step appended
	active []actor.BodyID
	// batch is the activation batch of every body, -1 for bodies not simulated
	batch        []int32
	currentBatch int32

	activationMu    sync.Mutex
	activationQueue []actor.BodyID
	queued          []bool

	constraintsMu sync.Mutex
	constraints   []*constraint.ContactConstraint

	islands []*island

	pairs     atomic.Int64
	manifolds atomic.Int64
	sleeping  atomic.Int64
	activated int
}

func (w *World) newStepContext(dt float64) *stepContext {
	s := &stepContext{
		w:       w,
		dt:      dt,
		solver:  w.settings.solverSettings(),
		barrier: job.NewBarrier(),
		batch:   make([]int32, len(w.bodies)),
		queued:  make([]bool, len(w.bodies)),
	}
	for id, body := range w.bodies {
		s.batch[id] = -1
		if body != nil && w.inBroadPhase[id] && body.IsActive() {
			s.batch[id] = 0
			s.active = append(s.active, actor.BodyID(id))
		}
	}
	return s
}

// Step advances the simulation by dt, split in Settings.CollisionSteps steps. Events are
// sent to their subscribers once every step ran.
func (w *World) Step(dt float64) {
	if dt <= 0 {
		return
	}
	h := dt / float64(w.settings.CollisionSteps)

	for range w.settings.CollisionSteps {
		s := w.newStepContext(h)
		w.jobs.CreateJob("apply forces", s.barrier, 0, s.applyForces)
		s.barrier.Wait()

		w.stepCount++
		w.logger.Debug("step",
			slog.Uint64("step", w.stepCount),
			slog.Int("active", len(s.active)),
			slog.Int64("pairs", s.pairs.Load()),
			slog.Int64("manifolds", s.manifolds.Load()),
			slog.Int("constraints", len(s.constraints)),
			slog.Int("islands", len(s.islands)),
			slog.Int("activated", s.activated),
			slog.Int64("sleeping", s.sleeping.Load()))
	}

	w.Events.flush()
}

// fanOut runs fn on every item as parallel jobs, then next as a single job.
func fanOut[T any](s *stepContext, name string, items []T, fn func(item T), next func()) {
	cont := s.w.jobs.CreateJob(name+" done", s.barrier, 1, next)
	job.ParallelFor(s.w.jobs, s.barrier, name, items, cont, fn)
	cont.RemoveDependency()
}

// ========== FORCES ==========

func (s *stepContext) applyForces() {
	gravity := s.w.settings.Gravity
	fanOut(s, "apply forces", s.active, func(id actor.BodyID) {
		s.w.bodies[id].ApplyForces(s.dt, gravity)
	}, s.updateBroadPhase)
}

// updateBroadPhase grows the boxes of the active bodies along their predicted displacement.
func (s *stepContext) updateBroadPhase() {
	s.notifyBroadPhase(s.active)
	s.findCollisions(s.active)
}

func (s *stepContext) notifyBroadPhase(ids []actor.BodyID) {
	proxies := make([]broadphase.Proxy, len(ids))
	for i, id := range ids {
		proxies[i] = proxyOf(s.w.bodies[id], s.dt)
	}
	s.w.broadPhase.NotifyBodiesAABBChanged(proxies, true)
}

// ========== COLLISIONS ==========

func (s *stepContext) findCollisions(bodies []actor.BodyID) {
	batches := slices.Collect(slices.Chunk(bodies, collisionBatchSize))
	fanOut(s, "find collisions", batches, s.collideBatch, s.activateQueued)
}

func (s *stepContext) collideBatch(bodies []actor.BodyID) {
	layers := s.w.settings.Layers
	s.w.broadPhase.FindCollidingPairs(bodies, s.w.settings.SpeculativeContactDistance, s.owns, layers.ObjectVsLayer, layers.ObjectLayerPair, s.collidePair)
}

// owns decides which side of a pair runs the narrow phase: a body owns its pairs with
// bodies that are not simulated or were woken up later, and the lower ID wins in a batch.
func (s *stepContext) owns(body, other actor.BodyID) bool {
	b, o := s.batch[body], s.batch[other]
	return o < 0 || o > b || (o == b && body < other)
}

func (s *stepContext) collidePair(a, b actor.BodyID) {
	s.pairs.Add(1)
	if b < a {
		a, b = b, a
	}
	body1, body2 := s.w.bodies[a], s.w.bodies[b]
	if !body1.IsDynamic() && !body2.IsDynamic() {
		return
	}

	// shapes further apart than the distance they can close during the step are ignored
	relative := body1.Velocity.Sub(body2.Velocity)
	settings := narrowphase.DefaultCollideShapeSettings()
	settings.ActiveEdgeMode = s.w.settings.ActiveEdgeMode
	settings.CollectFacesMode = s.w.settings.CollectFacesMode
	settings.MaxSeparationDistance = s.w.settings.SpeculativeContactDistance + relative.Len()*s.dt
	settings.ActiveEdgeMovementDirection = relative.Mul(s.dt)

	results := collector.NewAllHit[narrowphase.CollideShapeResult]()
	creator := actor.NewSubShapeIDCreator()
	narrowphase.CollideShapeVsShape(body1.Shape, body2.Shape, actor.UnitScale, actor.UnitScale,
		body1.Transform, body2.Transform, creator, creator, &settings, results)

	accepted := results.Hits[:0]
	for _, result := range results.Hits {
		switch s.w.validateContact(body1, body2, &result) {
		case RejectAllContactsForThisBodyPair:
			return
		case RejectContact:
			continue
		}
		accepted = append(accepted, result)
	}

	for _, result := range deepestPerSubShapePair(accepted) {
		s.addManifold(body1, body2, result, settings.MaxSeparationDistance)
	}
}

// deepestPerSubShapePair keeps one result per pair of sub shapes, reusing hits.
func deepestPerSubShapePair(hits []narrowphase.CollideShapeResult) []narrowphase.CollideShapeResult {
	kept := hits[:0]
	for _, hit := range hits {
		i := slices.IndexFunc(kept, func(k narrowphase.CollideShapeResult) bool {
			return k.SubShapeID1 == hit.SubShapeID1 && k.SubShapeID2 == hit.SubShapeID2
		})
		switch {
		case i < 0:
			kept = append(kept, hit)
		case hit.PenetrationDepth > kept[i].PenetrationDepth:
			kept[i] = hit
		}
	}
	return kept
}

func (s *stepContext) addManifold(body1, body2 *actor.RigidBody, result narrowphase.CollideShapeResult, maxSeparation float64) {
	entry := &cachedManifold{manifold: narrowphase.NewContactManifold(result, maxSeparation)}
	manifold := &entry.manifold
	key := actor.SubShapeIDPair{
		Body1:     body1.ID,
		SubShape1: manifold.SubShapeID1,
		Body2:     body2.ID,
		SubShape2: manifold.SubShapeID2,
	}
	previous := s.w.contacts.insert(key, entry)
	s.manifolds.Add(1)

	settings := ContactSettings{
		CombinedStaticFriction:  constraint.ComputeStaticFriction(body1.Material, body2.Material),
		CombinedDynamicFriction: constraint.ComputeDynamicFriction(body1.Material, body2.Material),
		CombinedRestitution:     constraint.ComputeRestitution(body1.Material, body2.Material),
		IsSensor:                body1.IsSensor || body2.IsSensor,
	}
	for _, l := range s.w.contactListeners {
		if previous == nil {
			l.OnContactAdded(body1, body2, manifold, &settings)
		} else {
			l.OnContactPersisted(body1, body2, manifold, &settings)
		}
	}
	entry.isSensor = settings.IsSensor
	if settings.IsSensor {
		return
	}

	c := constraint.NewContactConstraint(body1, body2, manifold)
	c.StaticFriction = settings.CombinedStaticFriction
	c.DynamicFriction = settings.CombinedDynamicFriction
	c.Restitution = settings.CombinedRestitution
	if previous != nil && previous.constraint != nil {
		c.InheritImpulses(previous.constraint.Points, constraint.DefaultPointPreserveDistance)
	}
	entry.constraint = c

	s.constraintsMu.Lock()
	s.constraints = append(s.constraints, c)
	s.constraintsMu.Unlock()

	s.queueActivation(body1)
	s.queueActivation(body2)
}

func (w *World) validateContact(body1, body2 *actor.RigidBody, result *narrowphase.CollideShapeResult) ValidateResult {
	verdict := AcceptAllContactsForThisBodyPair
	for _, l := range w.contactListeners {
		verdict = max(verdict, l.OnContactValidate(body1, body2, result))
	}
	return verdict
}

// ========== ACTIVATION ==========

// queueActivation wakes a sleeping dynamic body up before the solve.
func (s *stepContext) queueActivation(body *actor.RigidBody) {
	if !body.IsDynamic() || !body.IsSleeping {
		return
	}
	s.activationMu.Lock()
	defer s.activationMu.Unlock()
	if !s.queued[body.ID] {
		s.queued[body.ID] = true
		s.activationQueue = append(s.activationQueue, body.ID)
	}
}

// activateQueued runs once the collision jobs of a batch are done. The bodies they woke up
// form the next batch, whose own collisions may wake up more bodies; contacts are only
// finalized once no body is left to wake up.
func (s *stepContext) activateQueued() {
	s.activationMu.Lock()
	queue := s.activationQueue
	s.activationQueue = nil
	s.activationMu.Unlock()

	if len(queue) == 0 {
		s.finalizeContacts()
		return
	}

	slices.Sort(queue)
	s.currentBatch++
	gravity := s.w.settings.Gravity
	for _, id := range queue {
		body := s.w.bodies[id]
		s.w.activate(body)
		body.ApplyForces(s.dt, gravity)
		s.batch[id] = s.currentBatch
	}
	s.active = append(s.active, queue...)
	s.activated += len(queue)

	s.notifyBroadPhase(queue)
	s.findCollisions(queue)
}

// finalizeContacts reports the manifolds that were not found again. Manifolds between two
// bodies that are not simulated are carried over silently.
func (s *stepContext) finalizeContacts() {
	shards := make([]int, contactCacheShards)
	for i := range shards {
		shards[i] = i
	}
	fanOut(s, "finalize contacts", shards, func(shard int) {
		s.w.contacts.finalize(shard, s.keepContact, s.w.contactRemoved)
	}, s.buildIslands)
}

func (s *stepContext) keepContact(key actor.SubShapeIDPair) bool {
	body1, body2 := s.w.bodies[key.Body1], s.w.bodies[key.Body2]
	return body1 != nil && body2 != nil && !body1.IsActive() && !body2.IsActive()
}

// ========== SOLVER ==========

func (s *stepContext) buildIslands() {
	s.islands = buildIslands(s.w.bodies, s.active, s.constraints)
	fanOut(s, "solve velocities", s.islands, func(isl *island) {
		constraint.SolveVelocities(isl.constraints, s.dt, s.w.settings.VelocitySteps, s.solver)
	}, s.integrate)
}

func (s *stepContext) integrate() {
	fanOut(s, "integrate", s.active, func(id actor.BodyID) {
		s.w.bodies[id].IntegratePosition(s.dt)
	}, s.castLinear)
}

// castLinear sweeps the linear cast bodies one after the other, each one against a world
// where every other body already moved.
func (s *stepContext) castLinear() {
	for _, id := range s.active {
		body := s.w.bodies[id]
		if body.IsDynamic() && body.MotionQuality == actor.MotionQualityLinearCast {
			s.w.sweep(body)
		}
	}
	fanOut(s, "solve positions", s.islands, func(isl *island) {
		constraint.SolvePositions(isl.constraints, s.w.settings.PositionSteps, s.solver)
	}, s.sleep)
}

// ========== SLEEP ==========

func (s *stepContext) sleep() {
	fanOut(s, "sleep", s.islands, s.trySleep, s.finish)
}

// trySleep puts an island to sleep once every body of it has been slow for long enough.
func (s *stepContext) trySleep(isl *island) {
	canSleep := true
	for _, body := range isl.bodies {
		if !body.TrySleep(s.dt, s.w.settings.TimeBeforeSleep, s.w.settings.SleepVelocityThreshold) {
			canSleep = false
		}
	}
	if !canSleep {
		return
	}
	for _, body := range isl.bodies {
		s.w.deactivate(body)
	}
	s.sleeping.Add(int64(len(isl.bodies)))
}

// finish refits the broad phase to the new positions.
func (s *stepContext) finish() {
	for _, id := range s.active {
		s.w.bodies[id].UpdateBounds()
	}
	s.notifyBroadPhase(s.active)
	if bp, ok := s.w.broadPhase.(interface{ OptimizeIfNeeded() }); ok {
		bp.OptimizeIfNeeded()
	}
}
