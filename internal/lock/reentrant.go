package lock

import "sync"

// reentrant is a mutex that its current owner may acquire repeatedly.
type reentrant struct {
	mu    sync.Mutex
	cond  sync.Cond
	owner Owner
	depth int
}

func newReentrant() *reentrant {
	r := &reentrant{}
	r.cond.L = &r.mu
	return r
}

func (r *reentrant) lock(o Owner) {
	r.mu.Lock()
	for r.depth > 0 && r.owner != o {
		r.cond.Wait()
	}
	r.owner = o
	r.depth++
	r.mu.Unlock()
}

func (r *reentrant) unlock(o Owner) {
	r.mu.Lock()
	if r.depth == 0 || r.owner != o {
		r.mu.Unlock()
		panic("lock: unlock of page not held by owner")
	}
	r.depth--
	if r.depth == 0 {
		r.owner = 0
		r.cond.Signal()
	}
	r.mu.Unlock()
}
