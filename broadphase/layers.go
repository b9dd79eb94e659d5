package broadphase

import (
	"errors"
	"fmt"

	"github.com/akmonengine/impact/actor"
)

// ErrInvalidLayer is returned when an object layer maps outside of the broad phase layers.
var ErrInvalidLayer = errors.New("broadphase: invalid layer")

// BroadPhaseLayer selects the tree a body is stored in.
type BroadPhaseLayer uint8

// BroadPhaseLayerInterface maps object layers to broad phase layers. The mapping must not
// change while bodies are stored in the broad phase.
type BroadPhaseLayerInterface interface {
	NumBroadPhaseLayers() int
	BroadPhaseLayer(layer actor.ObjectLayer) BroadPhaseLayer
}

// ObjectVsBroadPhaseLayerFilter decides if an object layer needs to query a broad phase layer.
type ObjectVsBroadPhaseLayerFilter interface {
	ShouldCollide(layer actor.ObjectLayer, broadPhaseLayer BroadPhaseLayer) bool
}

// ObjectLayerPairFilter decides if two object layers can collide.
type ObjectLayerPairFilter interface {
	ShouldCollide(layer1, layer2 actor.ObjectLayer) bool
}

// BroadPhaseLayerFilter rejects whole trees before any box is tested.
type BroadPhaseLayerFilter interface {
	ShouldCollide(layer BroadPhaseLayer) bool
}

// ObjectLayerFilter rejects single bodies by their object layer.
type ObjectLayerFilter interface {
	ShouldCollide(layer actor.ObjectLayer) bool
}

// BroadPhaseLayerFilterFunc adapts a function to a BroadPhaseLayerFilter.
type BroadPhaseLayerFilterFunc func(layer BroadPhaseLayer) bool

func (f BroadPhaseLayerFilterFunc) ShouldCollide(layer BroadPhaseLayer) bool { return f(layer) }

// ObjectLayerFilterFunc adapts a function to an ObjectLayerFilter.
type ObjectLayerFilterFunc func(layer actor.ObjectLayer) bool

func (f ObjectLayerFilterFunc) ShouldCollide(layer actor.ObjectLayer) bool { return f(layer) }

type allBroadPhaseLayers struct{}

func (allBroadPhaseLayers) ShouldCollide(BroadPhaseLayer) bool { return true }

type allObjectLayers struct{}

func (allObjectLayers) ShouldCollide(actor.ObjectLayer) bool { return true }

// AllBroadPhaseLayers and AllObjectLayers accept everything. Queries use them when given nil.
var (
	AllBroadPhaseLayers BroadPhaseLayerFilter = allBroadPhaseLayers{}
	AllObjectLayers     ObjectLayerFilter     = allObjectLayers{}
)

// ========== TABLES ==========

// BroadPhaseLayerTable is a BroadPhaseLayerInterface backed by a slice indexed by object layer.
type BroadPhaseLayerTable struct {
	numBroadPhaseLayers int
	mapping             []BroadPhaseLayer
}

// NewBroadPhaseLayerTable validates that every object layer maps to an existing broad phase layer.
func NewBroadPhaseLayerTable(numBroadPhaseLayers int, mapping []BroadPhaseLayer) (*BroadPhaseLayerTable, error) {
	if numBroadPhaseLayers <= 0 || numBroadPhaseLayers > 256 {
		return nil, fmt.Errorf("%d broad phase layers: %w", numBroadPhaseLayers, ErrInvalidLayer)
	}
	for objectLayer, layer := range mapping {
		if int(layer) >= numBroadPhaseLayers {
			return nil, fmt.Errorf("object layer %d maps to broad phase layer %d of %d: %w", objectLayer, layer, numBroadPhaseLayers, ErrInvalidLayer)
		}
	}
	return &BroadPhaseLayerTable{
		numBroadPhaseLayers: numBroadPhaseLayers,
		mapping:             append([]BroadPhaseLayer(nil), mapping...),
	}, nil
}

func (t *BroadPhaseLayerTable) NumBroadPhaseLayers() int { return t.numBroadPhaseLayers }

// NumObjectLayers is the number of mapped object layers.
func (t *BroadPhaseLayerTable) NumObjectLayers() int { return len(t.mapping) }

// BroadPhaseLayer returns layer 0 for unmapped object layers.
func (t *BroadPhaseLayerTable) BroadPhaseLayer(layer actor.ObjectLayer) BroadPhaseLayer {
	if int(layer) >= len(t.mapping) {
		return 0
	}
	return t.mapping[layer]
}

// ObjectLayerPairTable is a symmetric collision matrix between object layers.
type ObjectLayerPairTable struct {
	numLayers int
	collides  []bool
}

// NewObjectLayerPairTable returns a table where no layers collide.
func NewObjectLayerPairTable(numLayers int) *ObjectLayerPairTable {
	return &ObjectLayerPairTable{numLayers: numLayers, collides: make([]bool, numLayers*numLayers)}
}

func (t *ObjectLayerPairTable) set(layer1, layer2 actor.ObjectLayer, value bool) {
	if int(layer1) >= t.numLayers || int(layer2) >= t.numLayers {
		return
	}
	t.collides[int(layer1)*t.numLayers+int(layer2)] = value
	t.collides[int(layer2)*t.numLayers+int(layer1)] = value
}

func (t *ObjectLayerPairTable) EnableCollision(layer1, layer2 actor.ObjectLayer) {
	t.set(layer1, layer2, true)
}

func (t *ObjectLayerPairTable) DisableCollision(layer1, layer2 actor.ObjectLayer) {
	t.set(layer1, layer2, false)
}

func (t *ObjectLayerPairTable) ShouldCollide(layer1, layer2 actor.ObjectLayer) bool {
	if int(layer1) >= t.numLayers || int(layer2) >= t.numLayers {
		return false
	}
	return t.collides[int(layer1)*t.numLayers+int(layer2)]
}

// ObjectVsBroadPhaseLayerTable lets an object layer query a broad phase layer when any object
// layer stored in it can collide with it.
type ObjectVsBroadPhaseLayerTable struct {
	numBroadPhaseLayers int
	collides            []bool
}

func NewObjectVsBroadPhaseLayerTable(layers *BroadPhaseLayerTable, pairs ObjectLayerPairFilter) *ObjectVsBroadPhaseLayerTable {
	numObjectLayers := layers.NumObjectLayers()
	t := &ObjectVsBroadPhaseLayerTable{
		numBroadPhaseLayers: layers.NumBroadPhaseLayers(),
		collides:            make([]bool, numObjectLayers*layers.NumBroadPhaseLayers()),
	}
	for l1 := 0; l1 < numObjectLayers; l1++ {
		for l2 := 0; l2 < numObjectLayers; l2++ {
			if pairs.ShouldCollide(actor.ObjectLayer(l1), actor.ObjectLayer(l2)) {
				bp := layers.BroadPhaseLayer(actor.ObjectLayer(l2))
				t.collides[l1*t.numBroadPhaseLayers+int(bp)] = true
			}
		}
	}
	return t
}

func (t *ObjectVsBroadPhaseLayerTable) ShouldCollide(layer actor.ObjectLayer, broadPhaseLayer BroadPhaseLayer) bool {
	i := int(layer)*t.numBroadPhaseLayers + int(broadPhaseLayer)
	if int(broadPhaseLayer) >= t.numBroadPhaseLayers || i >= len(t.collides) {
		return false
	}
	return t.collides[i]
}

// ========== DEFAULTS ==========

// Object layers of the default configuration.
const (
	LayerNonMoving actor.ObjectLayer = iota
	LayerMoving
	numDefaultLayers
)

// Layers bundles the three tables the world needs.
type Layers struct {
	BroadPhase      BroadPhaseLayerInterface
	ObjectVsLayer   ObjectVsBroadPhaseLayerFilter
	ObjectLayerPair ObjectLayerPairFilter
}

// DefaultLayers stores non moving and moving bodies in separate trees. Non moving bodies
// never collide with each other.
func DefaultLayers() Layers {
	table, _ := NewBroadPhaseLayerTable(int(numDefaultLayers), []BroadPhaseLayer{0, 1})
	pairs := NewObjectLayerPairTable(int(numDefaultLayers))
	pairs.EnableCollision(LayerMoving, LayerMoving)
	pairs.EnableCollision(LayerMoving, LayerNonMoving)
	return Layers{
		BroadPhase:      table,
		ObjectVsLayer:   NewObjectVsBroadPhaseLayerTable(table, pairs),
		ObjectLayerPair: pairs,
	}
}
