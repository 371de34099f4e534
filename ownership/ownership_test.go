package ownership

import (
	"sync"
	"testing"
)

type instance struct {
	id     int
	name   string
	closed int
}

func (i *instance) Close() error {
	i.closed++
	return nil
}

func expectViolation(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a contract violation panic")
		}
		if _, ok := r.(*ContractViolation); !ok {
			t.Fatalf("expected *ContractViolation, got %T: %v", r, r)
		}
	}()
	fn()
}

func TestRegistry_Basic(t *testing.T) {
	r := NewRegistry()

	addr := r.Release("value")
	if addr == 0 {
		t.Fatal("expected non-zero address")
	}
	if !r.Contains(addr) {
		t.Fatal("released address not tracked")
	}
	if got := r.Borrow(addr); got != "value" {
		t.Fatalf("Borrow = %v", got)
	}
	if got := r.Reclaim(addr); got != "value" {
		t.Fatalf("Reclaim = %v", got)
	}
	if r.Contains(addr) {
		t.Fatal("reclaimed address still tracked")
	}
}

func TestRegistry_DoubleReclaimPanics(t *testing.T) {
	r := NewRegistry()
	addr := r.Release(1)
	r.Reclaim(addr)
	expectViolation(t, func() { r.Reclaim(addr) })
}

func TestRegistry_UntrackedPanics(t *testing.T) {
	r := NewRegistry()
	expectViolation(t, func() { r.Reclaim(0) })
	expectViolation(t, func() { r.Reclaim(999) })
	expectViolation(t, func() { r.Borrow(0) })
}

func TestRegistry_StaleAddressAfterReuse(t *testing.T) {
	r := NewRegistry()

	a1 := r.Release("first")
	r.Reclaim(a1)
	a2 := r.Release("second")

	if a1 == a2 {
		t.Fatal("reused slot must produce a distinct address")
	}
	expectViolation(t, func() { r.Reclaim(a1) })
	if got := r.Reclaim(a2); got != "second" {
		t.Fatalf("Reclaim(a2) = %v", got)
	}
}

func TestRegistry_Len(t *testing.T) {
	r := NewRegistry()
	a := r.Release(1)
	r.Release(2)
	r.Release(3)
	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
	r.Reclaim(a)
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			addr := r.Release(id)
			if got := r.Borrow(addr); got != id {
				t.Errorf("Borrow = %v, want %d", got, id)
			}
			if got := r.Reclaim(addr); got != id {
				t.Errorf("Reclaim = %v, want %d", got, id)
			}
		}(i)
	}

	wg.Wait()
	if r.Len() != 0 {
		t.Fatalf("Len = %d after all reclaims", r.Len())
	}
}

func TestBox_RoundTrip(t *testing.T) {
	orig := instance{id: 7, name: "box"}
	b := NewBox(&instance{id: 7, name: "box"})

	addr := b.IntoAddress()
	if b.Get() != nil {
		t.Fatal("box still owns its value after release")
	}

	if got := BorrowAddress[instance](addr); got.id != 7 {
		t.Fatalf("borrowed id = %d", got.id)
	}

	p := FromAddress[instance](addr)
	got := p.Get()
	if *got != orig {
		t.Fatalf("reclaimed %+v, want %+v", *got, orig)
	}

	p.Drop()
	if got.closed != 1 {
		t.Fatalf("Close called %d times, want 1", got.closed)
	}
	p.Drop()
	if got.closed != 1 {
		t.Fatal("second Drop must be a no-op")
	}
}

func TestBox_ReclaimTwicePanics(t *testing.T) {
	addr := NewBox(&instance{}).IntoAddress()
	FromAddress[instance](addr).Drop()
	expectViolation(t, func() { FromAddress[instance](addr) })
}

func TestBox_ReclaimWrongTypePanics(t *testing.T) {
	addr := NewBox(&instance{}).IntoAddress()
	expectViolation(t, func() { FromAddress[string](addr) })
}

func TestArc_SharedCount(t *testing.T) {
	v := &instance{id: 1}
	a := NewArc(v)
	b := a.Clone()
	if a.RefCount() != 2 {
		t.Fatalf("RefCount = %d, want 2", a.RefCount())
	}

	addr := b.IntoAddress()
	if b.Get() != nil {
		t.Fatal("released Arc still owns")
	}
	if a.RefCount() != 2 {
		t.Fatalf("release must not change the count, got %d", a.RefCount())
	}

	back := FromAddress[instance](addr)
	if back.Get() != v {
		t.Fatal("reclaimed Arc points elsewhere")
	}

	back.Drop()
	if v.closed != 0 {
		t.Fatal("value freed while a unit is still alive")
	}
	if a.RefCount() != 1 {
		t.Fatalf("RefCount = %d, want 1", a.RefCount())
	}

	a.Drop()
	if v.closed != 1 {
		t.Fatalf("Close called %d times, want 1", v.closed)
	}
}

func TestArc_ConcurrentReleaseReclaim(t *testing.T) {
	v := &instance{}
	root := NewArc(v)
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(c *Arc[instance]) {
			defer wg.Done()
			addr := c.IntoAddress()
			FromAddress[instance](addr).Drop()
		}(root.Clone())
	}
	wg.Wait()

	if root.RefCount() != 1 {
		t.Fatalf("RefCount = %d, want 1", root.RefCount())
	}
	root.Drop()
	if v.closed != 1 {
		t.Fatalf("Close called %d times, want 1", v.closed)
	}
}

func TestReleaseEmptyPanics(t *testing.T) {
	b := NewBox(&instance{})
	b.IntoAddress()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic releasing an empty Box")
		}
	}()
	b.IntoAddress()
}
