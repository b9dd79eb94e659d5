// Package collector gathers the hits of collision queries.
//
// Queries report every hit to a Collector and consult its early out fraction to prune work:
// a hit or a subtree whose fraction is not better than EarlyOutFraction cannot change the
// outcome. Ray and shape casts use the hit fraction along the cast, collide queries use the
// negated penetration depth so that deeper contacts are "earlier".
package collector

import (
	"math"
	"sort"
)

// Hit is a query result that can be ordered.
type Hit interface {
	HitFraction() float64
}

// Collector receives the hits of a query.
type Collector[R Hit] interface {
	AddHit(result R)
	// EarlyOutFraction is the fraction hits must beat to still matter.
	EarlyOutFraction() float64
	UpdateEarlyOutFraction(fraction float64)
	// ForceEarlyOut stops the query as soon as possible.
	ForceEarlyOut()
	ShouldEarlyOut() bool
	Reset()
}

const (
	// InitialEarlyOutFraction accepts any hit.
	InitialEarlyOutFraction = math.MaxFloat64
	// ShouldEarlyOutFraction rejects every hit.
	ShouldEarlyOutFraction = -math.MaxFloat64
)

// EarlyOut implements the fraction bookkeeping shared by collectors.
type EarlyOut struct {
	fraction float64
	set      bool
}

func (e *EarlyOut) EarlyOutFraction() float64 {
	if !e.set {
		return InitialEarlyOutFraction
	}
	return e.fraction
}

// UpdateEarlyOutFraction only ever lowers the fraction.
func (e *EarlyOut) UpdateEarlyOutFraction(fraction float64) {
	if fraction <= e.EarlyOutFraction() {
		e.fraction = fraction
		e.set = true
	}
}

func (e *EarlyOut) ForceEarlyOut() {
	e.fraction = ShouldEarlyOutFraction
	e.set = true
}

func (e *EarlyOut) ShouldEarlyOut() bool {
	return e.set && e.fraction <= ShouldEarlyOutFraction
}

func (e *EarlyOut) reset() {
	e.fraction = 0
	e.set = false
}

// AllHit keeps every hit.
type AllHit[R Hit] struct {
	EarlyOut
	Hits []R
}

func NewAllHit[R Hit]() *AllHit[R] {
	return &AllHit[R]{}
}

func (c *AllHit[R]) AddHit(result R) {
	c.Hits = append(c.Hits, result)
}

func (c *AllHit[R]) Reset() {
	c.EarlyOut.reset()
	c.Hits = c.Hits[:0]
}

// HadHit reports whether anything was collected.
func (c *AllHit[R]) HadHit() bool {
	return len(c.Hits) > 0
}

// Sort orders the hits by increasing fraction.
func (c *AllHit[R]) Sort() {
	sort.SliceStable(c.Hits, func(i, j int) bool {
		return c.Hits[i].HitFraction() < c.Hits[j].HitFraction()
	})
}

// ClosestHit keeps the hit with the smallest fraction.
type ClosestHit[R Hit] struct {
	EarlyOut
	Hit    R
	hadHit bool
}

func NewClosestHit[R Hit]() *ClosestHit[R] {
	return &ClosestHit[R]{}
}

func (c *ClosestHit[R]) AddHit(result R) {
	fraction := result.HitFraction()
	if c.hadHit && fraction >= c.Hit.HitFraction() {
		return
	}
	c.Hit = result
	c.hadHit = true
	c.UpdateEarlyOutFraction(fraction)
}

func (c *ClosestHit[R]) Reset() {
	var zero R
	c.EarlyOut.reset()
	c.Hit = zero
	c.hadHit = false
}

func (c *ClosestHit[R]) HadHit() bool {
	return c.hadHit
}

// AnyHit keeps the first hit and stops the query.
type AnyHit[R Hit] struct {
	EarlyOut
	Hit    R
	hadHit bool
}

func NewAnyHit[R Hit]() *AnyHit[R] {
	return &AnyHit[R]{}
}

func (c *AnyHit[R]) AddHit(result R) {
	c.Hit = result
	c.hadHit = true
	c.ForceEarlyOut()
}

func (c *AnyHit[R]) Reset() {
	var zero R
	c.EarlyOut.reset()
	c.Hit = zero
	c.hadHit = false
}

func (c *AnyHit[R]) HadHit() bool {
	return c.hadHit
}
