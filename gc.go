// Package vmgc implements a conservative mark-and-sweep garbage collector
// for single-threaded 64-bit host programs. It reserves a large contiguous
// region of virtual address space up front, carves it into fixed
// size-class sub-regions, and reclaims unreachable objects by scanning the
// stack and any registered roots for bit patterns that look like pointers
// into the reserved region.
//
// vmgc is not a replacement for Go's own garbage collector and must not be
// used to manage ordinary Go values: it manages its own separate pool of
// memory returned by Alloc, intended for data structures a program wants to
// keep outside Go's GC (for example, memory shared with C, or memory whose
// lifetime a program wants to pace independently of Go's collector).
package vmgc

import (
	"unsafe"
)

var (
	inited  bool
	enabled = true

	// stackRef is the address of a local captured near the root of the
	// call stack at Init time. See the reasoning below for why vmgc uses this instead of a platform stack_bottom() syscall:
	// the mutator runs on a Go goroutine stack, not a single fixed OS
	// stack segment, so there is no mincore-probeable "stack bottom" to
	// find the way gc.c's gc_get_stackbottom does.
	stackRef uintptr

	// sinceLastGC, triggerSize, and usedSize drive the same adaptive
	// trigger heuristic as gc.c's gc_alloc_size/gc_trigger_size/gc_used_size.
	sinceLastGC int64
	triggerSize int64 = minTrigger
	usedSize    int64

	sweepCount uint64
)

// Init prepares the collector: it reserves the pool's virtual address
// range, records a reference point on the calling goroutine's stack for
// later conservative scanning, and allocates the region table's bookkeeping.
// It must be called once, early, before any call to Alloc — ideally from
// close to the top of main, the same requirement gc.h places on GC_init,
// because everything below the call depth at which Init runs is outside
// what Collect can see on the stack.
//
// Init is idempotent: a second call is a no-op returning nil.
func Init() error {
	if inited {
		return nil
	}
	if unsafe.Sizeof(uintptr(0)) != 8 {
		err := &Error{Kind: ErrUnsupportedPlatform}
		handleError(ErrUnsupportedPlatform, nil)
		return err
	}

	stackRef = initStackRef()

	if !vm.reserveFixed(base, regionSize*numRegions) {
		err := &Error{Kind: ErrReservationFailed}
		handleError(ErrReservationFailed, nil)
		return err
	}

	initRegions()

	if !initMarkWorklist() {
		vm.release(base, regionSize*numRegions)
		err := &Error{Kind: ErrReservationFailed}
		handleError(ErrReservationFailed, nil)
		return err
	}

	inited = true
	debugf("initialized: base=%#x regionSize=%#x numRegions=%d", base, regionSize, numRegions)
	return nil
}

//go:noinline
func initStackRef() uintptr {
	return currentStackPointer()
}

// Enable resumes automatic collection triggered by allocation pressure.
// Explicit Collect calls always run regardless of this setting.
func Enable() { enabled = true }

// Disable suppresses automatic collection triggered by allocation pressure.
// Explicit Collect calls still run.
func Disable() { enabled = false }

// Strdup copies s into GC-managed memory and returns it, the GC-backed
// equivalent of the C library's strdup() that gc.h names as one of its
// trivial conveniences.
func Strdup(s string) string {
	p := Alloc(uintptr(len(s)))
	if p == nil {
		return ""
	}
	buf := unsafe.Slice((*byte)(p), len(s))
	copy(buf, s)
	return unsafe.String((*byte)(p), len(s))
}
