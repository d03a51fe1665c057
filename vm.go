package vmgc

import "unsafe"

// vmSubstrate is the platform shim for the VM substrate
// collaborator: reserve/commit/release/advise over raw virtual memory. The
// stack reference point comes from currentStackPointer below, not from this
// interface. The core collector only
// ever talks to this interface, never to a syscall package directly, which
// is what keeps vm_linux.go and vm_other.go as the only two files that know
// what a real mmap call looks like.
type vmSubstrate interface {
	// reserveFixed reserves length bytes starting exactly at addr with no
	// physical backing guaranteed, returning false if the kernel could not
	// honor the fixed address.
	reserveFixed(addr, length uintptr) bool

	// reserveAnywhere reserves length bytes at a kernel-chosen address,
	// already readable and writable. Used for the mark worklist and the
	// per-region mark bitmaps, neither of which are part of the main pool.
	reserveAnywhere(length uintptr) unsafe.Pointer

	// release unmaps a range obtained from reserveFixed or reserveAnywhere.
	release(addr, length uintptr)

	// commit ensures [addr, addr+length) is readable and writable,
	// rounding down the start and up the length to page boundaries.
	commit(addr, length uintptr) bool

	// adviseDiscardable hints that the OS may drop the physical pages
	// backing [addr, addr+length); a later read observes zeros.
	adviseDiscardable(addr, length uintptr)
}

// vm is the process-global VM substrate, the platform implementation
// returned by newHostVM.
var vm vmSubstrate = newHostVM()

func alignUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

func alignDown(v, align uintptr) uintptr {
	return v &^ (align - 1)
}

// currentStackPointer returns the address of a local variable in this
// (non-inlined) frame. Calling it forces the compiler to spill any
// caller-saved registers holding pointers onto the stack before the call,
// the same trick gc.c's gc_stacktop() and gc_blocks.go's markCurrentGoroutineStack
// rely on to make conservative stack scanning see live pointers that would
// otherwise only exist in registers.
//
//go:noinline
func currentStackPointer() uintptr {
	var dummy int
	return uintptr(unsafe.Pointer(&dummy))
}
