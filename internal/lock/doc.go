// Package lock grants page-scoped, reentrant critical sections.
//
// Go has no thread identity, so reentrancy is keyed by an Owner carried in the
// context. Every externally initiated operation (a scan pass, a fault) starts
// with WithOwner; nested calls made on its behalf reuse the owner and may take
// the same page lock again:
//
//	ctx = lock.WithOwner(ctx)
//	unlock := lock.Pages(ctx, l, a, b) // canonical address order
//	defer unlock()
//
// Two strategies are provided. Global serializes every critical section behind
// one reentrant mutex. PageTable keeps one reentrant mutex per locked page.
// Callers always lock multiple pages through Pages so that both strategies
// stay deadlock-free.
package lock
