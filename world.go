// Package impact simulates rigid bodies with speculative contacts.
//
// A World owns the bodies, a broad phase and a contact cache. Step runs collision detection,
// a sequential impulse solver and integration as dependent jobs on a fixed pool of workers.
// World methods must not be called concurrently with Step, and only the queries may be
// called concurrently with each other.
package impact

import (
	"fmt"
	"log/slog"

	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/broadphase"
	"github.com/akmonengine/impact/job"
	"github.com/go-gl/mathgl/mgl64"
)

type World struct {
	settings   Settings
	logger     *slog.Logger
	jobs       *job.System
	broadPhase broadphase.Interface

	// bodies is indexed by BodyID, nil for a free slot
	bodies       []*actor.RigidBody
	inBroadPhase []bool
	freeIDs      []actor.BodyID
	numBodies    int

	contacts            *contactCache
	contactListeners    []ContactListener
	activationListeners []BodyActivationListener

	// Events receives every contact and activation notification and sends them to its
	// subscribers at the end of Step
	Events *Events

	stepCount uint64
}

// NewWorld validates settings and starts the workers.
func NewWorld(settings Settings) (*World, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	logger := settings.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &World{
		settings: settings,
		logger:   logger,
		jobs:     job.NewSystem(settings.Workers),
		contacts: newContactCache(),
	}
	switch settings.BroadPhaseKind {
	case BroadPhaseGrid:
		w.broadPhase = broadphase.NewGrid(settings.GridCellSize, settings.GridCells, settings.MaxBodies, settings.Layers.BroadPhase)
	default:
		w.broadPhase = broadphase.NewBroadPhase(settings.MaxBodies, settings.Layers.BroadPhase, logger)
	}
	w.Events = NewEvents(w.Body)
	w.contactListeners = []ContactListener{w.Events}
	w.activationListeners = []BodyActivationListener{w.Events}

	logger.Info("world created",
		slog.Int("max_bodies", settings.MaxBodies),
		slog.Int("workers", w.jobs.Workers()),
		slog.Int("broad_phase", int(settings.BroadPhaseKind)))
	return w, nil
}

// Close stops the workers.
func (w *World) Close() {
	w.jobs.Shutdown()
}

func (w *World) Settings() Settings {
	return w.settings
}

func (w *World) SetGravity(gravity mgl64.Vec3) {
	w.settings.Gravity = gravity
}

// AddContactListener registers a listener next to Events.
func (w *World) AddContactListener(listener ContactListener) {
	w.contactListeners = append(w.contactListeners, listener)
}

// AddBodyActivationListener registers a listener next to Events.
func (w *World) AddBodyActivationListener(listener BodyActivationListener) {
	w.activationListeners = append(w.activationListeners, listener)
}

// Body returns the body with the given ID, nil if there is none.
func (w *World) Body(id actor.BodyID) *actor.RigidBody {
	if int(id) >= len(w.bodies) {
		return nil
	}
	return w.bodies[id]
}

// NumBodies returns the number of bodies created and not removed.
func (w *World) NumBodies() int {
	return w.numBodies
}

// Bodies returns every body, ordered by ID.
func (w *World) Bodies() []*actor.RigidBody {
	bodies := make([]*actor.RigidBody, 0, w.numBodies)
	for _, body := range w.bodies {
		if body != nil {
			bodies = append(bodies, body)
		}
	}
	return bodies
}

// ========== BODIES ==========

// CreateBody builds a body and gives it an ID. The body is not simulated until AddBody.
func (w *World) CreateBody(settings actor.BodySettings) (*actor.RigidBody, error) {
	if settings.Shape == nil {
		return nil, fmt.Errorf("create body: %w", ErrNilShape)
	}
	var id actor.BodyID
	switch {
	case len(w.freeIDs) > 0:
		id = w.freeIDs[len(w.freeIDs)-1]
		w.freeIDs = w.freeIDs[:len(w.freeIDs)-1]
	case len(w.bodies) < w.settings.MaxBodies:
		id = actor.BodyID(len(w.bodies))
		w.bodies = append(w.bodies, nil)
		w.inBroadPhase = append(w.inBroadPhase, false)
	default:
		w.logger.Warn("body capacity exhausted", slog.Int("max_bodies", w.settings.MaxBodies))
		return nil, fmt.Errorf("create body: %w (max %d)", ErrBodyCapacityExhausted, w.settings.MaxBodies)
	}

	body := settings.Create()
	body.ID = id
	w.bodies[id] = body
	w.numBodies++
	return body, nil
}

// CreateAndAddBody creates a body and adds it to the simulation.
func (w *World) CreateAndAddBody(settings actor.BodySettings, activate bool) (*actor.RigidBody, error) {
	body, err := w.CreateBody(settings)
	if err != nil {
		return nil, err
	}
	if err := w.AddBodies([]actor.BodyID{body.ID}, activate); err != nil {
		w.destroy(body.ID)
		return nil, err
	}
	return body, nil
}

func (w *World) AddBody(id actor.BodyID, activate bool) error {
	return w.AddBodies([]actor.BodyID{id}, activate)
}

// AddBodies inserts bodies in the broad phase in one batch. Non static bodies are activated
// when activate is set, and put to sleep otherwise.
func (w *World) AddBodies(ids []actor.BodyID, activate bool) error {
	proxies := make([]broadphase.Proxy, 0, len(ids))
	for _, id := range ids {
		body := w.Body(id)
		if body == nil {
			return fmt.Errorf("add body %d: %w", id, ErrUnknownBody)
		}
		if w.inBroadPhase[id] {
			return fmt.Errorf("add body %d: %w", id, ErrBodyAlreadyAdded)
		}
		body.UpdateBounds()
		proxies = append(proxies, proxyOf(body, 0))
	}

	state, err := w.broadPhase.AddBodiesPrepare(proxies)
	if err != nil {
		return fmt.Errorf("add bodies: %w", err)
	}
	w.broadPhase.AddBodiesFinalize(state)

	for _, id := range ids {
		w.inBroadPhase[id] = true
		body := w.bodies[id]
		if body.IsStatic() {
			continue
		}
		if activate {
			w.activate(body)
		} else {
			body.Sleep()
		}
	}
	return nil
}

// RemoveBody takes a body out of the simulation and frees its ID. Its contacts are reported
// as removed.
func (w *World) RemoveBody(id actor.BodyID) error {
	if w.Body(id) == nil {
		return fmt.Errorf("remove body %d: %w", id, ErrUnknownBody)
	}
	if w.inBroadPhase[id] {
		w.broadPhase.RemoveBodies([]actor.BodyID{id})
		w.inBroadPhase[id] = false
	}
	w.contacts.removeBody(id, w.contactRemoved)
	w.destroy(id)
	return nil
}

func (w *World) destroy(id actor.BodyID) {
	w.bodies[id].ID = actor.InvalidBodyID
	w.bodies[id] = nil
	w.freeIDs = append(w.freeIDs, id)
	w.numBodies--
}

// SetTransform teleports a body, waking it up when activate is set.
func (w *World) SetTransform(id actor.BodyID, transform actor.Transform, activate bool) error {
	body := w.Body(id)
	if body == nil {
		return fmt.Errorf("set transform %d: %w", id, ErrUnknownBody)
	}
	body.Transform = transform
	body.PreviousTransform = transform
	body.UpdateBounds()
	if w.inBroadPhase[id] {
		w.broadPhase.NotifyBodiesAABBChanged([]broadphase.Proxy{proxyOf(body, 0)}, true)
	}
	if activate && body.IsSleeping && !body.IsStatic() {
		w.activate(body)
	}
	return nil
}

func (w *World) SetPosition(id actor.BodyID, position mgl64.Vec3, activate bool) error {
	body := w.Body(id)
	if body == nil {
		return fmt.Errorf("set position %d: %w", id, ErrUnknownBody)
	}
	transform := body.Transform
	transform.Position = position
	return w.SetTransform(id, transform, activate)
}

// SetLinearVelocity changes the velocity of a moving body and wakes it up for a non zero
// velocity.
func (w *World) SetLinearVelocity(id actor.BodyID, velocity mgl64.Vec3) error {
	body := w.Body(id)
	if body == nil {
		return fmt.Errorf("set velocity %d: %w", id, ErrUnknownBody)
	}
	if body.IsStatic() {
		return nil
	}
	body.Velocity = velocity
	if velocity != (mgl64.Vec3{}) && body.IsSleeping {
		w.activate(body)
	}
	return nil
}

// Activate wakes up sleeping bodies.
func (w *World) Activate(ids ...actor.BodyID) {
	for _, id := range ids {
		if body := w.Body(id); body != nil && body.IsSleeping && !body.IsStatic() {
			w.activate(body)
		}
	}
}

// Deactivate puts bodies to sleep, clearing their velocities.
func (w *World) Deactivate(ids ...actor.BodyID) {
	for _, id := range ids {
		if body := w.Body(id); body != nil && !body.IsSleeping && !body.IsStatic() {
			w.deactivate(body)
		}
	}
}

func (w *World) activate(body *actor.RigidBody) {
	body.Awake()
	for _, l := range w.activationListeners {
		l.OnBodyActivated(body.ID, body.UserData)
	}
}

func (w *World) deactivate(body *actor.RigidBody) {
	body.Sleep()
	for _, l := range w.activationListeners {
		l.OnBodyDeactivated(body.ID, body.UserData)
	}
}

// OptimizeBroadPhase rebuilds the broad phase, typically once after a level is loaded.
func (w *World) OptimizeBroadPhase() {
	w.broadPhase.Optimize()
}

func proxyOf(body *actor.RigidBody, dt float64) broadphase.Proxy {
	return broadphase.Proxy{
		ID:           body.ID,
		Layer:        body.ObjectLayer,
		Bounds:       body.WorldBounds(),
		Displacement: body.Velocity.Mul(dt),
	}
}

// ========== LISTENERS ==========

func (w *World) contactRemoved(key actor.SubShapeIDPair) {
	for _, l := range w.contactListeners {
		l.OnContactRemoved(key)
	}
}
