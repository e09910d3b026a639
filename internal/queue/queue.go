package queue

import (
	"container/list"
	"sync"

	"github.com/hupe1980/samepage/internal/page"
)

// Counter receives full-scan events.
type Counter interface {
	IncFullScans()
}

// Queue is a round-robin registry of candidate pages.
// It is safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	list   *list.List
	index  map[page.Addr]*list.Element
	cursor *list.Element
	c      Counter
}

// New creates an empty queue reporting wrap-arounds to c.
func New(c Counter) *Queue {
	return &Queue{
		list:  list.New(),
		index: make(map[page.Addr]*list.Element),
		c:     c,
	}
}

// RegisterPage appends addr to the registry. Registering a page twice is a no-op.
func (q *Queue) RegisterPage(addr page.Addr) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.index[addr]; ok {
		return
	}
	q.index[addr] = q.list.PushBack(addr)
	if q.cursor == nil {
		q.cursor = q.list.Front()
	}
}

// UnregisterPage removes addr from the registry, advancing the cursor first if
// it points at addr.
func (q *Queue) UnregisterPage(addr page.Addr) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.index[addr]
	if !ok {
		return
	}
	if q.cursor == e {
		q.advanceLocked()
	}
	q.list.Remove(e)
	delete(q.index, addr)
	if q.list.Len() == 0 {
		q.cursor = nil
	}
}

// NextPage returns the page at the cursor and advances it. ok is false when
// the registry is empty.
func (q *Queue) NextPage() (addr page.Addr, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cursor == nil {
		return 0, false
	}
	addr = q.cursor.Value.(page.Addr)
	q.advanceLocked()
	return addr, true
}

// Len returns the number of registered pages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list.Len()
}

// Contains reports whether addr is registered.
func (q *Queue) Contains(addr page.Addr) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.index[addr]
	return ok
}

func (q *Queue) advanceLocked() {
	q.cursor = q.cursor.Next()
	if q.cursor == nil {
		q.cursor = q.list.Front()
		if q.c != nil {
			q.c.IncFullScans()
		}
	}
}
