package impact

import (
	"sync"

	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/constraint"
	"github.com/akmonengine/impact/narrowphase"
)

const contactCacheShards = 16

// cachedManifold is a manifold found during a step. The constraint keeps the impulses of
// the last solve, inherited by the manifold found at the next step.
type cachedManifold struct {
	manifold   narrowphase.ContactManifold
	constraint *constraint.ContactConstraint
	isSensor   bool
}

type contactShard struct {
	mu sync.Mutex
	// previous holds the manifolds of the last step, current the ones found during this step
	previous map[actor.SubShapeIDPair]*cachedManifold
	current  map[actor.SubShapeIDPair]*cachedManifold
}

// contactCache stores two generations of manifolds, sharded to keep collision jobs from
// contending on a single lock.
type contactCache struct {
	shards [contactCacheShards]contactShard
}

func newContactCache() *contactCache {
	c := &contactCache{}
	for i := range c.shards {
		c.shards[i].previous = make(map[actor.SubShapeIDPair]*cachedManifold)
		c.shards[i].current = make(map[actor.SubShapeIDPair]*cachedManifold)
	}
	return c
}

func shardOf(key actor.SubShapeIDPair) int {
	h := uint32(key.Body1)*73856093 ^ uint32(key.Body2)*19349663 ^ uint32(key.SubShape1)*83492791 ^ uint32(key.SubShape2)
	return int(h % contactCacheShards)
}

// insert stores entry for the current step and returns the entry of the previous step, nil
// for a new contact.
func (c *contactCache) insert(key actor.SubShapeIDPair, entry *cachedManifold) *cachedManifold {
	s := &c.shards[shardOf(key)]
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.previous[key]
	s.current[key] = entry
	return previous
}

// finalize closes the step of one shard: manifolds of the previous step not found again are
// carried over when keep accepts them and reported to removed otherwise.
func (c *contactCache) finalize(shard int, keep func(key actor.SubShapeIDPair) bool, removed func(key actor.SubShapeIDPair)) {
	s := &c.shards[shard]
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.previous {
		if _, found := s.current[key]; found {
			continue
		}
		if keep(key) {
			s.current[key] = entry
			continue
		}
		removed(key)
	}
	s.previous, s.current = s.current, s.previous
	clear(s.current)
}

// removeBody drops every manifold involving id. It must not run during a step.
func (c *contactCache) removeBody(id actor.BodyID, removed func(key actor.SubShapeIDPair)) {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for key := range s.previous {
			if key.Body1 == id || key.Body2 == id {
				delete(s.previous, key)
				removed(key)
			}
		}
		s.mu.Unlock()
	}
}

// find returns the manifold stored for key after the last step.
func (c *contactCache) find(key actor.SubShapeIDPair) (*cachedManifold, bool) {
	s := &c.shards[shardOf(key)]
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.previous[key]
	return entry, ok
}

// len returns the number of manifolds stored after the last step.
func (c *contactCache) len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		n += len(s.previous)
		s.mu.Unlock()
	}
	return n
}
