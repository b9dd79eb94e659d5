package broadphase

import (
	"errors"
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/collector"
	"github.com/go-gl/mathgl/mgl64"
)

type pair struct {
	a, b actor.BodyID
}

func orderedPair(a, b actor.BodyID) pair {
	if b < a {
		a, b = b, a
	}
	return pair{a, b}
}

func randomProxies(rng *rand.Rand, n int) []Proxy {
	proxies := make([]Proxy, n)
	for i := range proxies {
		layer := LayerMoving
		if i%4 == 0 {
			layer = LayerNonMoving
		}
		proxies[i] = Proxy{ID: actor.BodyID(i), Layer: layer, Bounds: randomBox(rng)}
	}
	return proxies
}

func newFilledBroadPhase(t *testing.T, proxies []Proxy) *BroadPhase {
	t.Helper()
	bp := NewBroadPhase(len(proxies)+16, DefaultLayers().BroadPhase, nil)
	state, err := bp.AddBodiesPrepare(proxies)
	if err != nil {
		t.Fatalf("AddBodiesPrepare() error = %v", err)
	}
	bp.AddBodiesFinalize(state)
	return bp
}

func rayHitSet(c *collector.AllHit[CastResult]) []actor.BodyID {
	ids := make([]actor.BodyID, 0, len(c.Hits))
	for _, h := range c.Hits {
		ids = append(ids, h.BodyID)
	}
	slices.Sort(ids)
	return ids
}

// ========== LAYERS ==========

func TestNewBroadPhaseLayerTable(t *testing.T) {
	tests := []struct {
		name    string
		num     int
		mapping []BroadPhaseLayer
		wantErr bool
	}{
		{"valid", 2, []BroadPhaseLayer{0, 1, 1}, false},
		{"layer out of range", 2, []BroadPhaseLayer{0, 2}, true},
		{"no layers", 0, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := NewBroadPhaseLayerTable(tt.num, tt.mapping)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidLayer) {
					t.Errorf("error = %v, want ErrInvalidLayer", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if table.BroadPhaseLayer(2) != 1 || table.BroadPhaseLayer(9) != 0 {
				t.Errorf("unexpected mapping")
			}
		})
	}
}

func TestDefaultLayers(t *testing.T) {
	layers := DefaultLayers()

	tests := []struct {
		name   string
		l1, l2 actor.ObjectLayer
		want   bool
	}{
		{"moving vs moving", LayerMoving, LayerMoving, true},
		{"moving vs non moving", LayerMoving, LayerNonMoving, true},
		{"non moving vs moving", LayerNonMoving, LayerMoving, true},
		{"non moving vs non moving", LayerNonMoving, LayerNonMoving, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := layers.ObjectLayerPair.ShouldCollide(tt.l1, tt.l2); got != tt.want {
				t.Errorf("ShouldCollide(%d, %d) = %v, want %v", tt.l1, tt.l2, got, tt.want)
			}
		})
	}

	if layers.ObjectVsLayer.ShouldCollide(LayerNonMoving, BroadPhaseLayer(0)) {
		t.Errorf("non moving bodies query the non moving tree")
	}
	if !layers.ObjectVsLayer.ShouldCollide(LayerMoving, BroadPhaseLayer(0)) {
		t.Errorf("moving bodies skip the non moving tree")
	}
}

// ========== MODIFICATIONS ==========

func TestBroadPhase_AddAndRemove(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	proxies := randomProxies(rng, 40)
	bp := newFilledBroadPhase(t, proxies)

	for _, p := range proxies {
		if !bp.Contains(p.ID) {
			t.Fatalf("body %d missing after finalize", p.ID)
		}
		fat, _ := bp.FatBounds(p.ID)
		if !fat.Contains(p.Bounds) {
			t.Errorf("fat bounds of %d do not contain its bounds", p.ID)
		}
	}
	if bp.Tree(0).Len()+bp.Tree(1).Len() != 40 {
		t.Errorf("trees hold %d + %d leaves, want 40", bp.Tree(0).Len(), bp.Tree(1).Len())
	}

	bp.RemoveBodies([]actor.BodyID{0, 1, 2})
	for _, id := range []actor.BodyID{0, 1, 2} {
		if bp.Contains(id) {
			t.Errorf("body %d still stored after removal", id)
		}
	}
	for layer := BroadPhaseLayer(0); layer < 2; layer++ {
		if err := bp.Tree(layer).Validate(); err != nil {
			t.Errorf("layer %d Validate() = %v", layer, err)
		}
	}
}

func TestBroadPhase_AddAbort(t *testing.T) {
	bp := NewBroadPhase(8, DefaultLayers().BroadPhase, nil)
	state, err := bp.AddBodiesPrepare([]Proxy{{ID: 1, Layer: LayerMoving, Bounds: actor.AABB{Max: mgl64.Vec3{1, 1, 1}}}})
	if err != nil {
		t.Fatalf("AddBodiesPrepare() error = %v", err)
	}
	if state.Len() != 1 {
		t.Errorf("state.Len() = %d, want 1", state.Len())
	}
	bp.AddBodiesAbort(state)
	if bp.Contains(1) {
		t.Errorf("aborted body was added")
	}

	if _, err := bp.AddBodiesPrepare([]Proxy{{ID: 8}}); !errors.Is(err, ErrInvalidLayer) {
		t.Errorf("body beyond capacity: error = %v", err)
	}
}

func TestBroadPhase_NotifyBodiesAABBChanged(t *testing.T) {
	box := actor.AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{1, 1, 1}}
	bp := newFilledBroadPhase(t, []Proxy{{ID: 0, Layer: LayerMoving, Bounds: box}})

	moved := box.Translate(mgl64.Vec3{10, 0, 0})
	bp.NotifyBodiesAABBChanged([]Proxy{{ID: 0, Layer: LayerMoving, Bounds: moved}}, true)

	c := collector.NewAllHit[BodyHit]()
	bp.CollidePoint(mgl64.Vec3{10.5, 0.5, 0.5}, c, nil, nil)
	if len(c.Hits) != 1 {
		t.Errorf("moved body not found at its new position")
	}
	c.Reset()
	bp.CollidePoint(mgl64.Vec3{0.5, 0.5, 0.5}, c, nil, nil)
	if c.HadHit() {
		t.Errorf("moved body still found at its old position")
	}

	bp.LockModifications()
	bp.NotifyBodiesAABBChanged([]Proxy{{ID: 0, Layer: LayerMoving, Bounds: box}}, false)
	bp.UnlockModifications()
	if fat, _ := bp.FatBounds(0); !fat.Contains(box) {
		t.Errorf("fat bounds %v do not contain %v", fat, box)
	}
}

// ========== QUERIES ==========

func TestBroadPhase_CastRayMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	proxies := randomProxies(rng, 400)
	bp := newFilledBroadPhase(t, proxies)

	// move some bodies so the trees are built incrementally too
	moved := make([]Proxy, 0, 100)
	for i := 0; i < 100; i++ {
		p := proxies[rng.Intn(len(proxies))]
		p.Bounds = randomBox(rng)
		moved = append(moved, p)
	}
	bp.NotifyBodiesAABBChanged(moved, true)

	check := func(t *testing.T) {
		for i := 0; i < 1000; i++ {
			origin := randomVec3(rng, 60)
			direction := randomVec3(rng, 120)

			c := collector.NewAllHit[CastResult]()
			bp.CastRay(origin, direction, c, nil, nil)
			got := rayHitSet(c)

			inv := actor.InverseDirection(direction)
			var want []actor.BodyID
			for _, p := range proxies {
				fat, _ := bp.FatBounds(p.ID)
				if fat.RayHitFraction(origin, inv) <= 1 {
					want = append(want, p.ID)
				}
			}
			slices.Sort(want)

			if !slices.Equal(got, want) {
				t.Fatalf("ray %d: broad phase %v, brute force %v", i, got, want)
			}
		}
	}

	t.Run("before Optimize", check)
	bp.Optimize()
	for layer := BroadPhaseLayer(0); layer < 2; layer++ {
		if err := bp.Tree(layer).Validate(); err != nil {
			t.Fatalf("layer %d Validate() = %v", layer, err)
		}
		if bp.Tree(layer).Dirty() {
			t.Errorf("layer %d still dirty after Optimize", layer)
		}
	}
	t.Run("after Optimize", check)
}

func TestBroadPhase_Filters(t *testing.T) {
	bp := newFilledBroadPhase(t, []Proxy{
		{ID: 0, Layer: LayerNonMoving, Bounds: actor.AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{1, 1, 1}}},
		{ID: 1, Layer: LayerMoving, Bounds: actor.AABB{Min: mgl64.Vec3{0, 0, 0}, Max: mgl64.Vec3{1, 1, 1}}},
	})
	query := actor.AABB{Min: mgl64.Vec3{0.2, 0.2, 0.2}, Max: mgl64.Vec3{0.8, 0.8, 0.8}}

	tests := []struct {
		name         string
		layerFilter  BroadPhaseLayerFilter
		objectFilter ObjectLayerFilter
		want         int
	}{
		{"no filter", nil, nil, 2},
		{"moving tree only", BroadPhaseLayerFilterFunc(func(l BroadPhaseLayer) bool { return l == 1 }), nil, 1},
		{"non moving objects only", nil, ObjectLayerFilterFunc(func(l actor.ObjectLayer) bool { return l == LayerNonMoving }), 1},
		{"nothing", BroadPhaseLayerFilterFunc(func(BroadPhaseLayer) bool { return false }), nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := collector.NewAllHit[BodyHit]()
			bp.CollideAABox(query, c, tt.layerFilter, tt.objectFilter)
			if len(c.Hits) != tt.want {
				t.Errorf("got %d hits, want %d", len(c.Hits), tt.want)
			}
		})
	}

	t.Run("any hit stops early", func(t *testing.T) {
		c := collector.NewAnyHit[BodyHit]()
		bp.CollideSphere(mgl64.Vec3{0.5, 0.5, 0.5}, 0.1, c, nil, nil)
		if !c.HadHit() {
			t.Errorf("no hit")
		}
	})
}

func TestBroadPhase_FindCollidingPairs(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	proxies := randomProxies(rng, 200)
	bp := newFilledBroadPhase(t, proxies)
	layers := DefaultLayers()

	var active []actor.BodyID
	isActive := make(map[actor.BodyID]bool)
	for _, p := range proxies {
		if p.Layer == LayerMoving {
			active = append(active, p.ID)
			isActive[p.ID] = true
		}
	}
	owner := func(body, other actor.BodyID) bool {
		return !isActive[other] || body < other
	}

	found := make(map[pair]int)
	bp.FindCollidingPairs(active, 0.05, owner, layers.ObjectVsLayer, layers.ObjectLayerPair, func(a, b actor.BodyID) {
		found[orderedPair(a, b)]++
	})

	want := make(map[pair]bool)
	for i, p := range proxies {
		for _, q := range proxies[i+1:] {
			if !layers.ObjectLayerPair.ShouldCollide(p.Layer, q.Layer) {
				continue
			}
			fp, _ := bp.FatBounds(p.ID)
			fq, _ := bp.FatBounds(q.ID)
			if fp.Expand(0.05).Overlaps(fq) {
				want[orderedPair(p.ID, q.ID)] = true
			}
		}
	}

	for key, count := range found {
		if count != 1 {
			t.Errorf("pair %v reported %d times", key, count)
		}
		if !want[key] {
			t.Errorf("pair %v reported but not overlapping", key)
		}
	}
	for key := range want {
		if found[key] == 0 {
			t.Errorf("pair %v missing", key)
		}
	}
}

func TestFindCollidingPairs_PredictedDisplacement(t *testing.T) {
	layers := DefaultLayers()
	tests := []struct {
		name string
		bp   Interface
	}{
		{"tree", NewBroadPhase(16, layers.BroadPhase, nil)},
		{"grid", NewGrid(1, 64, 16, layers.BroadPhase)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			floor := Proxy{ID: 0, Layer: LayerNonMoving, Bounds: actor.AABB{Min: mgl64.Vec3{-5, -0.05, -5}, Max: mgl64.Vec3{5, 0.05, 5}}}
			ball := func(y float64) actor.AABB {
				return actor.AABB{Min: mgl64.Vec3{-0.1, y - 0.1, -0.1}, Max: mgl64.Vec3{0.1, y + 0.1, 0.1}}
			}
			state, err := tt.bp.AddBodiesPrepare([]Proxy{floor, {ID: 1, Layer: LayerMoving, Bounds: ball(2)}})
			if err != nil {
				t.Fatal(err)
			}
			tt.bp.AddBodiesFinalize(state)

			// falls 0.5 per step, well beyond the leaf margin
			displacement := mgl64.Vec3{0, -0.5, 0}
			for _, y := range []float64{2, 1.5, 1, 0.5} {
				tt.bp.NotifyBodiesAABBChanged([]Proxy{{ID: 1, Layer: LayerMoving, Bounds: ball(y), Displacement: displacement}}, true)
				found := false
				tt.bp.FindCollidingPairs([]actor.BodyID{1}, 0.02, func(actor.BodyID, actor.BodyID) bool { return true },
					layers.ObjectVsLayer, layers.ObjectLayerPair, func(a, b actor.BodyID) { found = true })
				if found {
					if y > 1 {
						t.Errorf("pair found at y = %v, the swept box cannot reach the floor yet", y)
					}
					return
				}
			}
			t.Errorf("floor never paired with a body about to cross it")
		})
	}
}

func TestBroadPhase_ConcurrentQueriesAndOptimize(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	proxies := randomProxies(rng, 300)
	bp := newFilledBroadPhase(t, proxies)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			local := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				c := collector.NewAllHit[CastResult]()
				bp.CastRay(randomVec3(local, 60), randomVec3(local, 120), c, nil, nil)
			}
		}(int64(w))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		local := rand.New(rand.NewSource(99))
		for i := 0; i < 20; i++ {
			p := proxies[local.Intn(len(proxies))]
			p.Bounds = randomBox(local)
			bp.NotifyBodiesAABBChanged([]Proxy{p}, true)
			bp.Optimize()
		}
	}()
	wg.Wait()

	for layer := BroadPhaseLayer(0); layer < 2; layer++ {
		if err := bp.Tree(layer).Validate(); err != nil {
			t.Errorf("layer %d Validate() = %v", layer, err)
		}
	}
}
