package samepage

import (
	"github.com/hupe1980/samepage/internal/page"
	"github.com/hupe1980/samepage/internal/region"
	"github.com/hupe1980/samepage/internal/stats"
	"github.com/hupe1980/samepage/internal/vm"
	"github.com/hupe1980/samepage/internal/worker"
)

// PageSize is the size of a page in bytes.
var PageSize = page.Size

type (
	// Addr is a page-granular address in the service's address space.
	Addr = page.Addr

	// MergeMode is the assumed merge state of the pages passed to MergePages.
	MergeMode = page.MergeMode

	// View is a bounds-checked, page-sized view of memory.
	View = page.View

	// ChecksumFunc summarizes page content for thrashing protection.
	ChecksumFunc = page.ChecksumFunc

	// Region is a contiguous range of client-visible pages.
	Region = region.Region

	// Request describes an allocation request.
	Request = region.Request

	// RequestType identifies the protocol of a Request.
	RequestType = region.Type

	// Prot is a set of access rights.
	Prot = vm.Prot

	// Snapshot is a point-in-time copy of the deduplication counters.
	Snapshot = stats.Snapshot

	// StatisticsSink receives periodic snapshots.
	StatisticsSink = stats.Sink

	// PassResult summarizes one scan pass.
	PassResult = worker.PassResult

	// WorkerState is the scanner state.
	WorkerState = worker.State
)

const (
	MergeVolatile  = page.MergeVolatile
	MergeImmutable = page.MergeImmutable

	TypeRegion = region.TypeRegion

	ProtNone  = vm.ProtNone
	ProtRead  = vm.ProtRead
	ProtWrite = vm.ProtWrite
	ProtExec  = vm.ProtExec
	ProtRO    = vm.ProtRO
	ProtRW    = vm.ProtRW
	ProtRWX   = vm.ProtRWX

	WorkerIdle     = worker.StateIdle
	WorkerScanning = worker.StateScanning
	WorkerSleeping = worker.StateSleeping
)

// Checksum functions.
var (
	WordSum ChecksumFunc = page.WordSum
	XXHash  ChecksumFunc = page.XXHash
)
