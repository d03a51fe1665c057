//go:build !linux

package vmgc

import "unsafe"

// otherVM is the fallback VM substrate for platforms this package does not
// have a real mmap binding for. "VA reservation failed" is already an
// init-only, fatal-by-default error kind; on an unsupported platform that
// is exactly the error Init should report, rather than pretending to
// reserve 3 TiB of address space with no way to back it.
//
// This mirrors gc.c's own structure: it has a Windows branch and a
// Unix branch and nothing else, so an unported platform simply doesn't
// build a working GC_init. Here it builds, but fails cleanly at Init time.
type otherVM struct{}

func newHostVM() vmSubstrate { return otherVM{} }

func (otherVM) reserveFixed(addr, length uintptr) bool        { return false }
func (otherVM) reserveAnywhere(length uintptr) unsafe.Pointer { return nil }
func (otherVM) release(addr, length uintptr)                  {}
func (otherVM) commit(addr, length uintptr) bool               { return false }
func (otherVM) adviseDiscardable(addr, length uintptr)         {}
