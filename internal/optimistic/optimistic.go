// Package optimistic applies a change locally before the server confirms it
// and restores the last confirmed value when confirmation fails.
package optimistic

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Value pairs the shown value with the last value the server confirmed.
type Value[T any] struct {
	mu        sync.Mutex
	current   T
	confirmed T
	pending   bool
}

func NewValue[T any](confirmed T) *Value[T] {
	return &Value[T]{current: confirmed, confirmed: confirmed}
}

func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Pending reports whether an applied value still awaits confirmation.
func (v *Value[T]) Pending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pending
}

func (v *Value[T]) Apply(next T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = next
	v.pending = true
}

func (v *Value[T]) Confirm() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.confirmed = v.current
	v.pending = false
}

// ConfirmWith records the server's own version of the value, which wins over
// what was applied.
func (v *Value[T]) ConfirmWith(server T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = server
	v.confirmed = server
	v.pending = false
}

func (v *Value[T]) Rollback() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = v.confirmed
	v.pending = false
	return v.current
}

// Update applies next, runs confirm, and rolls back if confirm fails.
func (v *Value[T]) Update(ctx context.Context, next T, confirm func(context.Context, T) error) error {
	v.Apply(next)
	if err := confirm(ctx, next); err != nil {
		v.Rollback()
		return err
	}
	v.Confirm()
	return nil
}

// List is a displayed list of rows with an active flag, such as products or
// users. Rows are matched by key.
type List[K comparable, R any] struct {
	mu        sync.Mutex
	rows      []R
	key       func(R) K
	active    func(R) bool
	setActive func(R, bool) R
}

func NewList[K comparable, R any](rows []R, key func(R) K, active func(R) bool, setActive func(R, bool) R) *List[K, R] {
	copied := make([]R, len(rows))
	copy(copied, rows)
	return &List[K, R]{rows: copied, key: key, active: active, setActive: setActive}
}

func (l *List[K, R]) Rows() []R {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]R, len(l.rows))
	copy(out, l.rows)
	return out
}

// Toggle flips the active flag of the row with id right away, then asks
// confirm to persist the new state. On failure the row gets its previous
// flag back. Concurrent toggles of the same row are not coordinated: the last
// response to arrive wins.
func (l *List[K, R]) Toggle(ctx context.Context, id K, confirm func(ctx context.Context, id K, active bool) error) error {
	l.mu.Lock()
	idx := l.indexOf(id)
	if idx < 0 {
		l.mu.Unlock()
		return fmt.Errorf("row %v not in list", id)
	}
	prev := l.active(l.rows[idx])
	l.rows[idx] = l.setActive(l.rows[idx], !prev)
	l.mu.Unlock()

	if err := confirm(ctx, id, !prev); err != nil {
		log.Printf("[optimistic] WARN: toggle of %v failed, restoring: %v", id, err)
		l.mu.Lock()
		if i := l.indexOf(id); i >= 0 {
			l.rows[i] = l.setActive(l.rows[i], prev)
		}
		l.mu.Unlock()
		return err
	}
	return nil
}

func (l *List[K, R]) indexOf(id K) int {
	for i, row := range l.rows {
		if l.key(row) == id {
			return i
		}
	}
	return -1
}
