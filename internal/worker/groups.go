package worker

import (
	"context"

	"github.com/hupe1980/samepage/internal/page"
)

type group struct {
	members map[page.Addr]struct{}
}

func (g *group) rep() page.Addr {
	for a := range g.members {
		return a
	}
	return 0
}

// PageMergeNotification records that page2 joined page1's merge group.
func (w *Worker) PageMergeNotification(_ context.Context, page1, page2 page.Addr, mode page.MergeMode) {
	w.mu.Lock()
	defer w.mu.Unlock()

	g, ok := w.memberOf[page1]
	if mode == page.MergeVolatile || !ok {
		g = &group{members: map[page.Addr]struct{}{page1: {}}}
		w.memberOf[page1] = g
		w.groups[g] = struct{}{}
	}
	g.members[page2] = struct{}{}
	w.memberOf[page2] = g
}

// PageUnmergeNotification removes addr from its merge group and reports
// whether the group is now empty.
func (w *Worker) PageUnmergeNotification(_ context.Context, addr page.Addr) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	g, ok := w.memberOf[addr]
	if !ok {
		return false
	}
	delete(w.memberOf, addr)
	delete(g.members, addr)
	if len(g.members) > 0 {
		return false
	}
	delete(w.groups, g)
	return true
}

// Groups returns the number of live merge groups.
func (w *Worker) Groups() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.groups)
}

// GroupSizes returns the size of every live merge group.
func (w *Worker) GroupSizes() []int {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]int, 0, len(w.groups))
	for g := range w.groups {
		out = append(out, len(g.members))
	}
	return out
}

func (w *Worker) representatives() []page.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()

	reps := make([]page.Addr, 0, len(w.groups))
	for g := range w.groups {
		reps = append(reps, g.rep())
	}
	return reps
}
