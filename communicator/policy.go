package communicator

import "golang.org/x/exp/constraints"

// Policy describes how a container of type C exposes the elements of type T stored for a
// local slot.
type Policy[C, T any] interface {
	// Slot returns a view of the elements of slot. Writes to the view change the container.
	Slot(c C, slot uint32) []T
	// Fixed returns the number of elements of every slot, or false if slots differ in size.
	Fixed() (int, bool)
}

// Slice stores one element per slot.
type Slice[T any] struct{}

func (Slice[T]) Slot(c []T, slot uint32) []T { return c[slot : slot+1] }

func (Slice[T]) Fixed() (int, bool) { return 1, true }

// Blocks stores Size consecutive elements per slot.
type Blocks[T any] struct {
	Size int
}

func (b Blocks[T]) Slot(c []T, slot uint32) []T {
	off := int(slot) * b.Size
	return c[off : off+b.Size]
}

func (b Blocks[T]) Fixed() (int, bool) { return b.Size, true }

// Nested stores a slice of any length per slot.
type Nested[T any] struct{}

func (Nested[T]) Slot(c [][]T, slot uint32) []T { return c[slot] }

func (Nested[T]) Fixed() (int, bool) { return 0, false }

// GatherScatter reads values to send from a container and stores received values in it.
// j is the position of the value within the slot.
type GatherScatter[C, T any] interface {
	Gather(c C, slot uint32, j int) T
	Scatter(c C, v T, slot uint32, j int)
}

type copyGS[C, T any] struct {
	p Policy[C, T]
}

// Copy overwrites the received slots.
func Copy[C, T any](p Policy[C, T]) GatherScatter[C, T] {
	return copyGS[C, T]{p: p}
}

func (g copyGS[C, T]) Gather(c C, slot uint32, j int) T { return g.p.Slot(c, slot)[j] }

func (g copyGS[C, T]) Scatter(c C, v T, slot uint32, j int) { g.p.Slot(c, slot)[j] = v }

// Number is an element type that can be accumulated.
type Number interface {
	constraints.Integer | constraints.Float
}

type addGS[C any, T Number] struct {
	p Policy[C, T]
}

// Add accumulates the received values into the slots.
func Add[C any, T Number](p Policy[C, T]) GatherScatter[C, T] {
	return addGS[C, T]{p: p}
}

func (g addGS[C, T]) Gather(c C, slot uint32, j int) T { return g.p.Slot(c, slot)[j] }

func (g addGS[C, T]) Scatter(c C, v T, slot uint32, j int) { g.p.Slot(c, slot)[j] += v }
