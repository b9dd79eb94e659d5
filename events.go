package impact

import (
	"maps"
	"sync"

	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/narrowphase"
)

const (
	TRIGGER_ENTER EventType = iota
	COLLISION_ENTER
	TRIGGER_STAY
	COLLISION_STAY
	TRIGGER_EXIT
	COLLISION_EXIT
	ON_SLEEP
	ON_WAKE
)

type EventType uint8

// Event interface - all events implement this
type Event interface {
	Type() EventType
}

// Trigger events
type TriggerEnterEvent struct {
	BodyA *actor.RigidBody
	BodyB *actor.RigidBody
}

func (e TriggerEnterEvent) Type() EventType { return TRIGGER_ENTER }

type TriggerStayEvent struct {
	BodyA *actor.RigidBody
	BodyB *actor.RigidBody
}

func (e TriggerStayEvent) Type() EventType { return TRIGGER_STAY }

type TriggerExitEvent struct {
	BodyA *actor.RigidBody
	BodyB *actor.RigidBody
}

func (e TriggerExitEvent) Type() EventType { return TRIGGER_EXIT }

// Collision events
type CollisionEnterEvent struct {
	BodyA *actor.RigidBody
	BodyB *actor.RigidBody
}

func (e CollisionEnterEvent) Type() EventType { return COLLISION_ENTER }

type CollisionStayEvent struct {
	BodyA *actor.RigidBody
	BodyB *actor.RigidBody
}

func (e CollisionStayEvent) Type() EventType { return COLLISION_STAY }

type CollisionExitEvent struct {
	BodyA *actor.RigidBody
	BodyB *actor.RigidBody
}

func (e CollisionExitEvent) Type() EventType { return COLLISION_EXIT }

// Sleep/Wake events
type SleepEvent struct {
	Body *actor.RigidBody
}

func (e SleepEvent) Type() EventType { return ON_SLEEP }

type WakeEvent struct {
	Body *actor.RigidBody
}

func (e WakeEvent) Type() EventType { return ON_WAKE }

// EventListener - callback for events
type EventListener func(event Event)

// pairKey is a body pair, bodyA having the lower ID
type pairKey struct {
	bodyA actor.BodyID
	bodyB actor.BodyID
}

// pairState tracks a body pair touching through at least one manifold.
type pairState struct {
	bodyA, bodyB *actor.RigidBody
	isTrigger    bool
	manifolds    int
}

type pairReport struct {
	state *pairState
	// entered is set when the pair started touching during the step
	entered bool
}

// Events turns contact and activation notifications into per body pair events, buffered
// during the step and sent from the goroutine calling World.Step.
type Events struct {
	mu sync.Mutex

	// Listeners by event type
	listeners map[EventType][]EventListener

	// Event buffer to send at flush
	buffer []Event
	exits  []Event

	pairs    map[pairKey]*pairState
	reported map[pairKey]pairReport

	body func(id actor.BodyID) *actor.RigidBody
}

// NewEvents creates an event manager resolving body IDs with body.
func NewEvents(body func(id actor.BodyID) *actor.RigidBody) *Events {
	return &Events{
		listeners: make(map[EventType][]EventListener),
		buffer:    make([]Event, 0, 256),
		pairs:     make(map[pairKey]*pairState),
		reported:  make(map[pairKey]pairReport),
		body:      body,
	}
}

// Subscribe adds a listener for an event type
func (e *Events) Subscribe(eventType EventType, listener EventListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[eventType] = append(e.listeners[eventType], listener)
}

func (e *Events) OnContactValidate(body1, body2 *actor.RigidBody, result *narrowphase.CollideShapeResult) ValidateResult {
	return AcceptAllContactsForThisBodyPair
}

func (e *Events) OnContactAdded(body1, body2 *actor.RigidBody, manifold *narrowphase.ContactManifold, settings *ContactSettings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touch(body1, body2, settings.IsSensor).manifolds++
}

func (e *Events) OnContactPersisted(body1, body2 *actor.RigidBody, manifold *narrowphase.ContactManifold, settings *ContactSettings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := e.touch(body1, body2, settings.IsSensor)
	// subscribed after the contact was added
	if state.manifolds == 0 {
		state.manifolds = 1
	}
}

// touch records that the pair touches during this step.
func (e *Events) touch(body1, body2 *actor.RigidBody, isSensor bool) *pairState {
	key := pairKey{bodyA: body1.ID, bodyB: body2.ID}
	state, ok := e.pairs[key]
	if !ok {
		state = &pairState{bodyA: body1, bodyB: body2, isTrigger: isSensor}
		e.pairs[key] = state
		e.reported[key] = pairReport{state: state, entered: true}
	} else if _, seen := e.reported[key]; !seen {
		e.reported[key] = pairReport{state: state}
	}
	return state
}

func (e *Events) OnContactRemoved(pair actor.SubShapeIDPair) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := pairKey{bodyA: pair.Body1, bodyB: pair.Body2}
	state, ok := e.pairs[key]
	if !ok {
		return
	}
	state.manifolds--
	if state.manifolds > 0 {
		return
	}
	delete(e.pairs, key)

	if state.isTrigger {
		e.exits = append(e.exits, TriggerExitEvent{BodyA: state.bodyA, BodyB: state.bodyB})
	} else {
		e.exits = append(e.exits, CollisionExitEvent{BodyA: state.bodyA, BodyB: state.bodyB})
	}
}

func (e *Events) OnBodyActivated(id actor.BodyID, userData any) {
	if body := e.body(id); body != nil {
		e.mu.Lock()
		e.buffer = append(e.buffer, WakeEvent{Body: body})
		e.mu.Unlock()
	}
}

func (e *Events) OnBodyDeactivated(id actor.BodyID, userData any) {
	if body := e.body(id); body != nil {
		e.mu.Lock()
		e.buffer = append(e.buffer, SleepEvent{Body: body})
		e.mu.Unlock()
	}
}

// processCollisionEvents turns the pairs reported during the step into Enter and Stay
// events, followed by the Exit events
func (e *Events) processCollisionEvents() {
	for _, report := range e.reported {
		pair := report.state
		switch {
		case report.entered && pair.isTrigger:
			e.buffer = append(e.buffer, TriggerEnterEvent{BodyA: pair.bodyA, BodyB: pair.bodyB})
		case report.entered:
			e.buffer = append(e.buffer, CollisionEnterEvent{BodyA: pair.bodyA, BodyB: pair.bodyB})
		case pair.isTrigger:
			e.buffer = append(e.buffer, TriggerStayEvent{BodyA: pair.bodyA, BodyB: pair.bodyB})
		default:
			e.buffer = append(e.buffer, CollisionStayEvent{BodyA: pair.bodyA, BodyB: pair.bodyB})
		}
	}
	clear(e.reported)

	e.buffer = append(e.buffer, e.exits...)
	clear(e.exits)
	e.exits = e.exits[:0]
}

// flush sends all buffered events and clears the buffer. Listeners run without the lock
// held and may subscribe.
func (e *Events) flush() {
	e.mu.Lock()
	e.processCollisionEvents()
	events := e.buffer
	e.buffer = make([]Event, 0, cap(events))
	listeners := maps.Clone(e.listeners)
	e.mu.Unlock()

	for _, event := range events {
		for _, listener := range listeners[event.Type()] {
			listener(event)
		}
	}
}

var (
	_ ContactListener        = (*Events)(nil)
	_ BodyActivationListener = (*Events)(nil)
)
