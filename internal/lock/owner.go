package lock

import (
	"context"
	"sync/atomic"
)

// Owner identifies the holder of a reentrant lock.
type Owner uint64

var lastOwner atomic.Uint64

type ownerKey struct{}

// NewOwner returns a process-unique owner.
func NewOwner() Owner {
	return Owner(lastOwner.Add(1))
}

// WithOwner returns ctx carrying an owner. A context that already carries one
// is returned unchanged, so nested operations keep reentrancy.
func WithOwner(ctx context.Context) context.Context {
	if _, ok := OwnerFrom(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, ownerKey{}, NewOwner())
}

// OwnerFrom extracts the owner from ctx.
func OwnerFrom(ctx context.Context) (Owner, bool) {
	o, ok := ctx.Value(ownerKey{}).(Owner)
	return o, ok
}

func mustOwner(ctx context.Context) Owner {
	o, ok := OwnerFrom(ctx)
	if !ok {
		panic("lock: context carries no owner")
	}
	return o
}
