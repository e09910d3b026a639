package page

// Component identifies the caller of a mediated operation.
// It is used for diagnostics only.
type Component uint8

const (
	ComponentExternal Component = iota
	ComponentAllocator
	ComponentLock
	ComponentMemory
	ComponentQueue
	ComponentStatistics
	ComponentWorker
)

func (c Component) String() string {
	switch c {
	case ComponentAllocator:
		return "allocator"
	case ComponentLock:
		return "lock"
	case ComponentMemory:
		return "memory"
	case ComponentQueue:
		return "queue"
	case ComponentStatistics:
		return "statistics"
	case ComponentWorker:
		return "worker"
	default:
		return "external"
	}
}
