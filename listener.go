package impact

import (
	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/narrowphase"
)

// ValidateResult is the answer of ContactListener.OnContactValidate.
type ValidateResult int

const (
	AcceptAllContactsForThisBodyPair ValidateResult = iota
	AcceptContact
	RejectContact
	RejectAllContactsForThisBodyPair
)

// ContactSettings is the response of a contact, filled with the combined materials of both
// bodies before OnContactAdded and OnContactPersisted, which may change it.
type ContactSettings struct {
	CombinedStaticFriction  float64
	CombinedDynamicFriction float64
	CombinedRestitution     float64
	// IsSensor contacts are reported but never solved
	IsSensor bool
}

// ContactListener follows the life of every contact manifold.
//
// Callbacks run on the step workers, concurrently for different body pairs: implementations
// must lock their own state. body1 always has the lower ID. Bodies must not be modified
// from a callback.
type ContactListener interface {
	// OnContactValidate runs for every narrow phase result before a manifold is built.
	OnContactValidate(body1, body2 *actor.RigidBody, result *narrowphase.CollideShapeResult) ValidateResult
	// OnContactAdded runs the first step a manifold is found.
	OnContactAdded(body1, body2 *actor.RigidBody, manifold *narrowphase.ContactManifold, settings *ContactSettings)
	// OnContactPersisted runs for a manifold found again.
	OnContactPersisted(body1, body2 *actor.RigidBody, manifold *narrowphase.ContactManifold, settings *ContactSettings)
	// OnContactRemoved runs once a manifold is gone, or when one of its bodies is removed.
	// A manifold between two bodies that fell asleep is kept without notification.
	OnContactRemoved(pair actor.SubShapeIDPair)
}

// BodyActivationListener is told when bodies wake up or fall asleep. It is called from the
// step workers.
type BodyActivationListener interface {
	OnBodyActivated(id actor.BodyID, userData any)
	OnBodyDeactivated(id actor.BodyID, userData any)
}

// ContactListenerFuncs adapts functions to a ContactListener. Nil functions accept
// everything and ignore the notification.
type ContactListenerFuncs struct {
	Validate  func(body1, body2 *actor.RigidBody, result *narrowphase.CollideShapeResult) ValidateResult
	Added     func(body1, body2 *actor.RigidBody, manifold *narrowphase.ContactManifold, settings *ContactSettings)
	Persisted func(body1, body2 *actor.RigidBody, manifold *narrowphase.ContactManifold, settings *ContactSettings)
	Removed   func(pair actor.SubShapeIDPair)
}

func (f ContactListenerFuncs) OnContactValidate(body1, body2 *actor.RigidBody, result *narrowphase.CollideShapeResult) ValidateResult {
	if f.Validate == nil {
		return AcceptAllContactsForThisBodyPair
	}
	return f.Validate(body1, body2, result)
}

func (f ContactListenerFuncs) OnContactAdded(body1, body2 *actor.RigidBody, manifold *narrowphase.ContactManifold, settings *ContactSettings) {
	if f.Added != nil {
		f.Added(body1, body2, manifold, settings)
	}
}

func (f ContactListenerFuncs) OnContactPersisted(body1, body2 *actor.RigidBody, manifold *narrowphase.ContactManifold, settings *ContactSettings) {
	if f.Persisted != nil {
		f.Persisted(body1, body2, manifold, settings)
	}
}

func (f ContactListenerFuncs) OnContactRemoved(pair actor.SubShapeIDPair) {
	if f.Removed != nil {
		f.Removed(pair)
	}
}

// ActivationListenerFuncs adapts functions to a BodyActivationListener.
type ActivationListenerFuncs struct {
	Activated   func(id actor.BodyID, userData any)
	Deactivated func(id actor.BodyID, userData any)
}

func (f ActivationListenerFuncs) OnBodyActivated(id actor.BodyID, userData any) {
	if f.Activated != nil {
		f.Activated(id, userData)
	}
}

func (f ActivationListenerFuncs) OnBodyDeactivated(id actor.BodyID, userData any) {
	if f.Deactivated != nil {
		f.Deactivated(id, userData)
	}
}

var (
	_ ContactListener        = ContactListenerFuncs{}
	_ BodyActivationListener = ActivationListenerFuncs{}
)
