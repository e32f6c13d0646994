// Package dualbuf provides a two-generation storage pair with a single
// selector bit. One generation is written by the producer while the other
// is read by the consumer that last received it.
package dualbuf

// Pair holds two generations of T. The selector is flipped only by the
// producer's publish step; Current and InFlight are therefore stable for
// the whole compute phase of a tick.
type Pair[T any] struct {
	gens     [2]T
	selector uint8
}

// New returns a pair whose generations are built by alloc.
func New[T any](alloc func() T) *Pair[T] {
	return &Pair[T]{gens: [2]T{alloc(), alloc()}}
}

// Current is the generation being written this cycle.
func (p *Pair[T]) Current() T { return p.gens[p.selector] }

// InFlight is the generation last handed to the consumer.
func (p *Pair[T]) InFlight() T { return p.gens[p.selector^1] }

// Flip swaps Current and InFlight.
func (p *Pair[T]) Flip() { p.selector ^= 1 }

// Generation reports which of the two storage instances is current, 0 or 1.
func (p *Pair[T]) Generation() int { return int(p.selector) }
