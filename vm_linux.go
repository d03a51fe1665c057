//go:build linux

package vmgc

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// hostVM implements vmSubstrate on top of mmap/mprotect/madvise/munmap, the
// same four primitives gc.c's Unix branch (gc_get_memory, gc_protect_memory,
// gc_zero_memory, gc_free_memory) uses, and the same ones
// go-runtime-inside-out's mem_linux.go wraps for the Go runtime's own heap
// arena (sysReserveOS, sysMapOS, sysUnusedOS, sysFreeOS).
type hostVM struct{}

func newHostVM() vmSubstrate { return hostVM{} }

// reserveFixed mmaps length bytes at exactly addr with PROT_NONE, mirroring
// gc_get_memory's use of MAP_FIXED|MAP_NORESERVE so the OS does not commit
// physical pages or count them against overcommit limits until commit is
// called. unix.Mmap has no way to request a fixed address, so this goes
// through the raw syscall the way mem_linux.go's own asm mmap stub does.
//
// MAP_FIXED either succeeds at exactly addr or fails outright, so unlike a
// hinted mmap there's no "wrong address" case to check for. If the single
// large mapping is refused (some kernels cap one mmap call), fall back to
// reserving in regionSize-sized pieces and unwind anything already mapped
// on first failure.
func (hostVM) reserveFixed(addr, length uintptr) bool {
	if mmapFixedNone(addr, length) {
		return true
	}
	var mapped uintptr
	for mapped < length {
		step := regionSize
		if mapped+step > length {
			step = length - mapped
		}
		if !mmapFixedNone(addr+mapped, step) {
			if mapped > 0 {
				rawMunmap(addr, mapped)
			}
			return false
		}
		mapped += step
	}
	return true
}

func mmapFixedNone(addr, length uintptr) bool {
	got, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, length,
		uintptr(unix.PROT_NONE),
		uintptr(unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_NORESERVE|unix.MAP_FIXED),
		^uintptr(0), 0)
	return errno == 0 && got == addr
}

func rawMunmap(addr, length uintptr) {
	unix.Syscall6(unix.SYS_MUNMAP, addr, length, 0, 0, 0, 0)
}

// reserveAnywhere mmaps length bytes anywhere, already PROT_READ|PROT_WRITE,
// matching gc_get_mark_memory: the mark worklist and mark bitmaps are never
// PROT_NONE-guarded the way the main pool is. They're small enough (and
// allocated rarely enough) that committing them eagerly is simpler and
// cheap, so the portable unix.Mmap wrapper (no fixed address needed here)
// is enough.
func (hostVM) reserveAnywhere(length uintptr) unsafe.Pointer {
	data, err := unix.Mmap(-1, 0, int(length),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_NORESERVE)
	if err != nil {
		return nil
	}
	return unsafe.Pointer(&data[0])
}

func (hostVM) release(addr, length uintptr) {
	rawMunmap(addr, length)
}

// commit rounds [addr, addr+length) out to page boundaries and mprotects it
// readable/writable, exactly as gc_protect_memory does.
func (hostVM) commit(addr, length uintptr) bool {
	lo := alignDown(addr, pageSize)
	hi := alignUp(addr+length, pageSize)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(lo)), int(hi-lo))
	return unix.Mprotect(buf, unix.PROT_READ|unix.PROT_WRITE) == nil
}

// adviseDiscardable hints with MADV_DONTNEED, matching gc_zero_memory's
// non-Apple branch: the kernel may drop the backing pages at any time, and
// a subsequent fault brings back zeroed pages.
func (hostVM) adviseDiscardable(addr, length uintptr) {
	buf := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(length))
	unix.Madvise(buf, unix.MADV_DONTNEED)
}
