package actor

import "math"

// SubShapeID addresses a leaf inside a hierarchy of compound, mesh and decorated shapes.
// Each level pushes its child index into the low bits that are still free. The bit above the
// last level is always zero and every bit above it is one, so no path aliases the root.
type SubShapeID uint32

// EmptySubShapeID addresses the root shape itself.
const EmptySubShapeID SubShapeID = math.MaxUint32

// MaxSubShapeIDBits is the number of bits available for the whole hierarchy. The last bit
// holds the terminating zero.
const MaxSubShapeIDBits = 31

// terminatorOnly is an id whose levels were all popped.
const terminatorOnly = ^uint32(1)

// PopID extracts the lowest level value and returns the remainder.
func (id SubShapeID) PopID(numBits uint) (uint32, SubShapeID) {
	if numBits == 0 || id == EmptySubShapeID {
		return 0, id
	}
	mask := uint32(1)<<numBits - 1
	value := uint32(id) & mask
	remainder := uint32(id)>>numBits | ^(uint32(math.MaxUint32) >> numBits)
	if remainder == terminatorOnly {
		return value, EmptySubShapeID
	}
	return value, SubShapeID(remainder)
}

// IsEmpty reports whether no level has been pushed.
func (id SubShapeID) IsEmpty() bool {
	return id == EmptySubShapeID
}

// SubShapeIDCreator builds a SubShapeID while descending a shape hierarchy.
type SubShapeIDCreator struct {
	id      SubShapeID
	numBits uint
}

// NewSubShapeIDCreator starts at the root.
func NewSubShapeIDCreator() SubShapeIDCreator {
	return SubShapeIDCreator{id: EmptySubShapeID}
}

// PushID appends value using numBits bits. Shapes validate their bit budget at
// construction, so an overflow here means a hierarchy was built by hand and the
// extra levels are dropped.
func (c SubShapeIDCreator) PushID(value uint32, numBits uint) SubShapeIDCreator {
	if numBits == 0 || c.numBits+numBits > MaxSubShapeIDBits {
		return c
	}
	mask := uint32(1)<<numBits - 1
	id := uint32(c.id)&^(mask<<c.numBits) | (value&mask)<<c.numBits
	id &^= 1 << (c.numBits + numBits)
	return SubShapeIDCreator{id: SubShapeID(id), numBits: c.numBits + numBits}
}

func (c SubShapeIDCreator) ID() SubShapeID {
	return c.id
}

func (c SubShapeIDCreator) NumBits() uint {
	return c.numBits
}

// SubShapeIDPair identifies one contact manifold of a body pair.
type SubShapeIDPair struct {
	Body1     BodyID
	SubShape1 SubShapeID
	Body2     BodyID
	SubShape2 SubShapeID
}
