package impact

import (
	"slices"
	"testing"

	"github.com/akmonengine/impact/actor"
)

func cacheKey(body1, body2 actor.BodyID) actor.SubShapeIDPair {
	return actor.SubShapeIDPair{Body1: body1, SubShape1: actor.EmptySubShapeID, Body2: body2, SubShape2: actor.EmptySubShapeID}
}

// endStep finalizes every shard like the step does
func endStep(c *contactCache, keep func(actor.SubShapeIDPair) bool) []actor.SubShapeIDPair {
	var removed []actor.SubShapeIDPair
	for shard := range contactCacheShards {
		c.finalize(shard, keep, func(key actor.SubShapeIDPair) { removed = append(removed, key) })
	}
	return removed
}

func keepNone(actor.SubShapeIDPair) bool { return false }

func TestContactCache_InsertReturnsPreviousStep(t *testing.T) {
	c := newContactCache()
	key := cacheKey(1, 2)
	first := &cachedManifold{}

	if previous := c.insert(key, first); previous != nil {
		t.Fatalf("new contact returned %v", previous)
	}
	// not visible before the step ends
	if _, ok := c.find(key); ok {
		t.Errorf("find() saw a manifold of the running step")
	}
	endStep(c, keepNone)

	second := &cachedManifold{}
	if previous := c.insert(key, second); previous != first {
		t.Errorf("insert() returned %p, want the manifold of the last step %p", previous, first)
	}
	if removed := endStep(c, keepNone); len(removed) != 0 {
		t.Errorf("persisted manifold reported removed: %v", removed)
	}
	if entry, _ := c.find(key); entry != second {
		t.Errorf("find() = %p, want %p", entry, second)
	}
}

func TestContactCache_Finalize(t *testing.T) {
	tests := []struct {
		name        string
		keep        func(actor.SubShapeIDPair) bool
		wantRemoved int
		wantLen     int
	}{
		{"lost contacts are removed", keepNone, 3, 0},
		{"sleeping contacts are kept", func(actor.SubShapeIDPair) bool { return true }, 0, 3},
		{"only kept pairs survive", func(key actor.SubShapeIDPair) bool { return key.Body1 == 0 }, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newContactCache()
			for _, key := range []actor.SubShapeIDPair{cacheKey(0, 1), cacheKey(0, 2), cacheKey(1, 2)} {
				c.insert(key, &cachedManifold{})
			}
			endStep(c, keepNone)

			removed := endStep(c, tt.keep)
			if len(removed) != tt.wantRemoved {
				t.Errorf("removed %v, want %d manifolds", removed, tt.wantRemoved)
			}
			if c.len() != tt.wantLen {
				t.Errorf("len() = %d, want %d", c.len(), tt.wantLen)
			}
			// kept manifolds survive the following steps too
			if again := endStep(c, tt.keep); len(again) != 0 {
				t.Errorf("kept manifolds removed on the next step: %v", again)
			}
		})
	}
}

func TestContactCache_RemoveBody(t *testing.T) {
	c := newContactCache()
	for _, key := range []actor.SubShapeIDPair{cacheKey(0, 1), cacheKey(1, 2), cacheKey(2, 3)} {
		c.insert(key, &cachedManifold{})
	}
	endStep(c, keepNone)

	var removed []actor.SubShapeIDPair
	c.removeBody(1, func(key actor.SubShapeIDPair) { removed = append(removed, key) })

	slices.SortFunc(removed, func(a, b actor.SubShapeIDPair) int { return int(a.Body1) - int(b.Body1) })
	want := []actor.SubShapeIDPair{cacheKey(0, 1), cacheKey(1, 2)}
	if !slices.Equal(removed, want) {
		t.Errorf("removed = %v, want %v", removed, want)
	}
	if c.len() != 1 {
		t.Errorf("len() = %d, want 1", c.len())
	}
}
