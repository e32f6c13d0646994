// Package queue holds the double-ended sequence used for waypoint buffers.
package queue

// Deque is a growable ring buffer. It is not safe for concurrent use; each
// instance is owned by exactly one writer at a time.
type Deque[T any] struct {
	items []T
	head  int
	size  int
}

// New creates an empty deque with room for capacity items.
func New[T any](capacity int) *Deque[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Deque[T]{items: make([]T, capacity)}
}

// Len returns the number of items.
func (d *Deque[T]) Len() int { return d.size }

// Empty returns true if the deque has no items.
func (d *Deque[T]) Empty() bool { return d.size == 0 }

// Cap returns the number of items the deque holds before growing.
func (d *Deque[T]) Cap() int { return len(d.items) }

// PushBack appends an item at the back.
func (d *Deque[T]) PushBack(item T) {
	if d.size == len(d.items) {
		d.grow()
	}
	d.items[(d.head+d.size)%len(d.items)] = item
	d.size++
}

// PopFront removes and returns the front item. Returns zero value if empty.
func (d *Deque[T]) PopFront() T {
	var zero T
	if d.size == 0 {
		return zero
	}
	item := d.items[d.head]
	d.items[d.head] = zero
	d.head = (d.head + 1) % len(d.items)
	d.size--
	return item
}

// Front returns the front item. Returns zero value if empty.
func (d *Deque[T]) Front() T {
	if d.size == 0 {
		var zero T
		return zero
	}
	return d.items[d.head]
}

// Back returns the back item. Returns zero value if empty.
func (d *Deque[T]) Back() T {
	if d.size == 0 {
		var zero T
		return zero
	}
	return d.items[(d.head+d.size-1)%len(d.items)]
}

// At returns the i-th item counted from the front. It panics if i is out of range.
func (d *Deque[T]) At(i int) T {
	if i < 0 || i >= d.size {
		panic("queue: index out of range")
	}
	return d.items[(d.head+i)%len(d.items)]
}

// Truncate drops everything after the first n items.
func (d *Deque[T]) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	var zero T
	for d.size > n {
		d.items[(d.head+d.size-1)%len(d.items)] = zero
		d.size--
	}
}

// Clear removes all items, keeping the allocated storage.
func (d *Deque[T]) Clear() {
	d.Truncate(0)
	d.head = 0
}

// Assign replaces the contents with a copy of other's contents.
func (d *Deque[T]) Assign(other *Deque[T]) {
	if d == other {
		return
	}
	d.Clear()
	for i := 0; i < other.size; i++ {
		d.PushBack(other.At(i))
	}
}

// Slice copies the items, front first, into dst and returns it.
func (d *Deque[T]) Slice(dst []T) []T {
	dst = dst[:0]
	for i := 0; i < d.size; i++ {
		dst = append(dst, d.At(i))
	}
	return dst
}

func (d *Deque[T]) grow() {
	items := make([]T, len(d.items)*2)
	for i := 0; i < d.size; i++ {
		items[i] = d.items[(d.head+i)%len(d.items)]
	}
	d.items = items
	d.head = 0
}
