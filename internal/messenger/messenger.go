// Package messenger implements the single-slot handoff between two pipeline
// stages. A monotonically increasing state counter tells each side whether
// the other has made progress since it last looked.
package messenger

import "sync"

// DataPacket carries one frame together with the state it was sent for.
type DataPacket[T any] struct {
	ID   int
	Data T
}

// Messenger is a one-slot mailbox. The counter advances once on every send
// and once on every release, so the producer can tell whether the consumer
// is done with the previous frame.
type Messenger[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	state   int
	data    T
	stopped bool
}

// New creates a messenger starting at state 0.
func New[T any]() *Messenger[T] {
	m := &Messenger[T]{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// State returns the current counter.
func (m *Messenger[T]) State() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SendData waits while the counter still equals packet.ID, meaning the
// consumer has not released the last frame, then stores packet.Data and
// returns the new state. After Stop it returns immediately.
func (m *Messenger[T]) SendData(packet DataPacket[T]) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.state == packet.ID && !m.stopped {
		m.cond.Wait()
	}
	if m.stopped {
		return m.state
	}
	m.data = packet.Data
	m.state++
	m.cond.Broadcast()
	return m.state
}

// ReceiveData waits until the counter differs from oldState and lends the
// stored frame. The frame stays borrowed, and the producer will not reuse
// it, until Release is called with the returned packet's ID. After Stop it
// returns the zero frame.
func (m *Messenger[T]) ReceiveData(oldState int) DataPacket[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.state == oldState && !m.stopped {
		m.cond.Wait()
	}
	if m.stopped {
		return DataPacket[T]{ID: m.state}
	}
	return DataPacket[T]{ID: m.state, Data: m.data}
}

// Release ends the borrow of the frame received as packet id and returns
// the state to pass to the next ReceiveData. A stale id is ignored.
func (m *Messenger[T]) Release(id int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || m.state != id {
		return m.state
	}
	var zero T
	m.data = zero
	m.state++
	m.cond.Broadcast()
	return m.state
}

// Stop releases every waiter. It is safe to call more than once.
func (m *Messenger[T]) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.cond.Broadcast()
}

// Stopped reports whether Stop has been called.
func (m *Messenger[T]) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}
