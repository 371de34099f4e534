// Package ownership moves per-open driver instances across the host boundary.
//
// The host stores an integer in its per-open slot and cannot track ownership
// itself. A driver instance therefore goes through a two-phase contract:
//
//	addr := p.IntoAddress()                  // owned -> released, p is now empty
//	inst := ownership.BorrowAddress[T](addr) // non-owning access while released
//	p = ownership.FromAddress[T](addr)       // released -> owned, exactly once
//	p.Drop()
//
// Two strategies implement Pointer: Box for exclusive ownership and Arc for
// shared, reference-counted ownership.
//
// # Contract violations
//
// Reclaiming or borrowing an address that was never released, or that was
// already reclaimed, panics with *ContractViolation. Continuing would hand
// out a value nobody owns, so it is not reported as an error.
//
// # Registry
//
// Released values live in a Registry, a handle table with slot reuse.
// Addresses carry a generation so a stale address is still detected after its
// slot has been reused.
package ownership
