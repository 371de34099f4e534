package ownership

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Pointer is an owning reference to a per-open driver instance that can cross
// into host state and back.
type Pointer[T any] interface {
	// Get returns a non-owning reference to the value, nil once the pointer
	// has been released or dropped.
	Get() *T
	// IntoAddress moves ownership into the default registry. The receiver no
	// longer owns anything afterwards.
	IntoAddress() Address
	// Drop gives up this pointer's ownership. What that frees depends on the
	// strategy.
	Drop()
}

// FromAddress reclaims ownership of the value released at addr. It must be
// called exactly once per IntoAddress; anything else panics.
func FromAddress[T any](addr Address) Pointer[T] {
	v := defaultRegistry.Reclaim(addr)
	p, ok := v.(Pointer[T])
	if !ok {
		panic(&ContractViolation{Addr: addr, Op: fmt.Sprintf("reclaim as %T", (*T)(nil))})
	}
	return p
}

// BorrowAddress returns a non-owning reference to the value released at addr.
// Ownership stays with the registry.
func BorrowAddress[T any](addr Address) *T {
	v := defaultRegistry.Borrow(addr)
	p, ok := v.(Pointer[T])
	if !ok {
		panic(&ContractViolation{Addr: addr, Op: fmt.Sprintf("borrow as %T", (*T)(nil))})
	}
	return p.Get()
}

func closeValue(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}

// Box is exclusive ownership: one releaser, one reclaimer. Dropping a Box
// frees the value, calling Close on it if it implements io.Closer.
type Box[T any] struct {
	v *T
}

// NewBox takes ownership of v.
func NewBox[T any](v *T) *Box[T] {
	return &Box[T]{v: v}
}

// Get implements Pointer.
func (b *Box[T]) Get() *T {
	return b.v
}

// IntoAddress implements Pointer.
func (b *Box[T]) IntoAddress() Address {
	if b.v == nil {
		panic("ownership: release of an empty Box")
	}
	addr := defaultRegistry.Release(&Box[T]{v: b.v})
	b.v = nil
	return addr
}

// Drop implements Pointer.
func (b *Box[T]) Drop() {
	if b.v == nil {
		return
	}
	v := b.v
	b.v = nil
	closeValue(v)
}

type arcInner[T any] struct {
	v    *T
	refs atomic.Int64
}

// Arc is shared ownership with reference counting. Each Arc value is one
// ownership unit; releasing moves that unit into the registry without
// touching the count. The value is freed when the last unit is dropped.
type Arc[T any] struct {
	inner *arcInner[T]
}

// NewArc takes ownership of v with a count of one.
func NewArc[T any](v *T) *Arc[T] {
	inner := &arcInner[T]{v: v}
	inner.refs.Store(1)
	return &Arc[T]{inner: inner}
}

// Clone returns a new ownership unit for the same value.
func (a *Arc[T]) Clone() *Arc[T] {
	if a.inner == nil {
		panic("ownership: clone of an empty Arc")
	}
	a.inner.refs.Add(1)
	return &Arc[T]{inner: a.inner}
}

// Get implements Pointer.
func (a *Arc[T]) Get() *T {
	if a.inner == nil {
		return nil
	}
	return a.inner.v
}

// RefCount returns the number of live ownership units, including released ones.
func (a *Arc[T]) RefCount() int64 {
	if a.inner == nil {
		return 0
	}
	return a.inner.refs.Load()
}

// IntoAddress implements Pointer.
func (a *Arc[T]) IntoAddress() Address {
	if a.inner == nil {
		panic("ownership: release of an empty Arc")
	}
	addr := defaultRegistry.Release(&Arc[T]{inner: a.inner})
	a.inner = nil
	return addr
}

// Drop implements Pointer.
func (a *Arc[T]) Drop() {
	inner := a.inner
	if inner == nil {
		return
	}
	a.inner = nil
	if inner.refs.Add(-1) == 0 {
		v := inner.v
		inner.v = nil
		closeValue(v)
	}
}
