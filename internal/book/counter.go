package book

import (
	"fmt"
	"sync/atomic"
)

// Counter is an in-process availability ledger for one book. Quantity and
// available share one word, so every operation is a single compare-and-swap
// and never observes one count without the other.
type Counter struct {
	state atomic.Uint64
}

func pack(quantity, available int64) uint64 {
	return uint64(uint32(quantity))<<32 | uint64(uint32(available))
}

func unpack(v uint64) (quantity, available int64) {
	return int64(int32(v >> 32)), int64(int32(v))
}

func NewCounter(quantity, available int) *Counter {
	c := &Counter{}
	c.Reset(quantity, available)
	return c
}

// Take decrements available if positive and returns the new value.
func (c *Counter) Take() (int, error) {
	for {
		cur := c.state.Load()
		q, a := unpack(cur)
		if a <= 0 {
			return 0, ErrOutOfStock
		}
		if c.state.CompareAndSwap(cur, pack(q, a-1)) {
			return int(a - 1), nil
		}
	}
}

// Restore increments available, clamped at quantity.
func (c *Counter) Restore() int {
	for {
		cur := c.state.Load()
		q, a := unpack(cur)
		next := min(a+1, q)
		if c.state.CompareAndSwap(cur, pack(q, next)) {
			return int(next)
		}
	}
}

func (c *Counter) Available() int {
	_, a := unpack(c.state.Load())
	return int(a)
}

func (c *Counter) Quantity() int {
	q, _ := unpack(c.state.Load())
	return int(q)
}

// SetQuantity changes the stock, keeping the borrowed count fixed.
func (c *Counter) SetQuantity(q int) error {
	for {
		cur := c.state.Load()
		oldQ, a := unpack(cur)
		next := a + int64(q) - oldQ
		if next < 0 {
			return fmt.Errorf("%d copies on loan: %w", oldQ-a, ErrQuantityBelowBorrowed)
		}
		if c.state.CompareAndSwap(cur, pack(int64(q), next)) {
			return nil
		}
	}
}

// Reset overwrites both counts.
func (c *Counter) Reset(quantity, available int) {
	c.state.Store(pack(int64(quantity), int64(available)))
}
