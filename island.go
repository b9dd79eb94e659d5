package impact

import (
	"cmp"
	"slices"

	"github.com/akmonengine/impact/actor"
	"github.com/akmonengine/impact/constraint"
)

// island is a group of dynamic bodies linked by contacts, solved and put to sleep as a
// whole. Islands share no dynamic body, so they are solved in parallel.
type island struct {
	bodies      []*actor.RigidBody
	constraints []*constraint.ContactConstraint
}

// unionFind is a disjoint set forest with path halving and union by size.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}

// buildIslands groups the active dynamic bodies through the constraints joining two of
// them. Static and kinematic bodies never link islands. Islands are ordered by their lowest
// body ID.
func buildIslands(bodies []*actor.RigidBody, active []actor.BodyID, constraints []*constraint.ContactConstraint) []*island {
	index := make(map[actor.BodyID]int, len(active))
	dynamic := make([]actor.BodyID, 0, len(active))
	for _, id := range active {
		if bodies[id].IsDynamic() {
			index[id] = len(dynamic)
			dynamic = append(dynamic, id)
		}
	}

	uf := newUnionFind(len(dynamic))
	for _, c := range constraints {
		i1, ok1 := index[c.Body1.ID]
		i2, ok2 := index[c.Body2.ID]
		if ok1 && ok2 {
			uf.union(i1, i2)
		}
	}

	// active is sorted by batch, not by ID
	order := make([]int, len(dynamic))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int { return cmp.Compare(dynamic[a], dynamic[b]) })

	byRoot := make(map[int]*island)
	var islands []*island
	for _, i := range order {
		root := uf.find(i)
		isl, ok := byRoot[root]
		if !ok {
			isl = &island{}
			byRoot[root] = isl
			islands = append(islands, isl)
		}
		isl.bodies = append(isl.bodies, bodies[dynamic[i]])
	}

	for _, c := range constraints {
		i, ok := index[c.Body1.ID]
		if !ok {
			if i, ok = index[c.Body2.ID]; !ok {
				continue
			}
		}
		isl := byRoot[uf.find(i)]
		isl.constraints = append(isl.constraints, c)
	}
	return islands
}
