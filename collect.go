package vmgc

import (
	"math/bits"
	"unsafe"
)

// Mark worklist state. The worklist holds chunk base addresses awaiting a
// conservative scan of their contents, backed by a fixed VA reservation
// sized by markStackBytes rather than a growable Go slice: the original
// source's gc_mark keeps a bounded stack and falls back to a full re-scan
// on overflow instead of growing without limit, and that's the behavior
// reproduced here so peak mark-phase memory is a compile-time constant.
var (
	markStack    []uintptr
	markTop      int
	markOverflow bool
)

// initMarkWorklist reserves the worklist's backing storage. Called once
// from Init; a false return aborts initialization.
func initMarkWorklist() bool {
	n := int(markStackBytes / unsafe.Sizeof(uintptr(0)))
	p := vm.reserveAnywhere(markStackBytes)
	if p == nil {
		return false
	}
	markStack = unsafe.Slice((*uintptr)(p), n)
	markTop = 0
	return true
}

func pushMark(addr uintptr) {
	if markTop >= len(markStack) {
		markOverflow = true
		return
	}
	markStack[markTop] = addr
	markTop++
}

func popMark() (uintptr, bool) {
	if markTop == 0 {
		return 0, false
	}
	markTop--
	return markStack[markTop], true
}

// ensureMarkBitmap lazily reserves a region's mark bitmap, sized to cover
// every chunk the region could ever hold. It is reserved once and reused by
// every later collection.
func ensureMarkBitmap(r *region) bool {
	if r.markPtr != nil {
		return true
	}
	words := (uint64(regionSize/r.size) + 63) / 64
	p := vm.reserveAnywhere(uintptr(words) * 8)
	if p == nil {
		return false
	}
	r.markPtr = p
	return true
}

func markWordPtr(p unsafe.Pointer, bit uint32) *uint64 {
	return (*uint64)(unsafe.Add(p, uintptr(bit/64)*8))
}

func isMarkedIndex(p unsafe.Pointer, bit uint32) bool {
	return *markWordPtr(p, bit)&(1<<(bit%64)) != 0
}

func setMarkedIndex(p unsafe.Pointer, bit uint32) {
	w := markWordPtr(p, bit)
	*w |= 1 << (bit % 64)
}

// tryMark marks the chunk at addr (already a chunk base, per baseOf) if it
// was not already marked, reporting whether it did so. addr's region must
// have a live mark bitmap.
func tryMark(addr uintptr) bool {
	r := &regions[regionIndexOf(addr)]
	bit := uint32(objectIndexOf(addr) - r.startIdx)
	if isMarkedIndex(r.markPtr, bit) {
		return false
	}
	setMarkedIndex(r.markPtr, bit)
	return true
}

// markInitAll allocates (if needed) and zeroes the mark bitmap for every
// region whose bump pointer is past its start (freePtr > startPtr). Only the live prefix — the bits
// covering [startPtr, freePtr), not the region's full theoretical capacity
// — is cleared, by advising those bitmap pages discardable rather than
// writing zeros by hand: the bitmap is its own anonymous mapping, so the
// kernel handing back zero pages on next touch is exactly as correct as a
// memset and far cheaper for a region whose freePtr is still close to
// startPtr. This mirrors gc_mark_init's own "zero only the live prefix"
// comment.
func markInitAll() bool {
	for i := range regions {
		r := &regions[i]
		if r.freePtr == r.startPtr {
			continue
		}
		if !ensureMarkBitmap(r) {
			handleError(ErrMarkBitmapFailed, nil)
			return false
		}
		chunks := uint64(r.freePtr-r.startPtr) / uint64(r.size)
		words := (chunks + 63) / 64
		bytes := alignUp(uintptr(words*8), pageSize)
		if bytes == 0 {
			bytes = pageSize
		}
		vm.adviseDiscardable(uintptr(r.markPtr), bytes)
	}
	return true
}

// scanConservative treats every 8-byte-aligned word in [start, start+size)
// as a candidate pointer: if it falls inside a committed chunk of the pool
// that isn't marked yet, the chunk is marked and pushed for further
// scanning. This is the heart of a conservative design — no
// distinction is made between an actual pointer field and an integer that
// happens to look like one, so retention is over-approximate but memory
// safety never depends on a false negative.
func scanConservative(start, size uintptr) {
	end := start + size
	p := alignUp(start, 8)
	pushed := 0
	for p+8 <= end {
		w := *(*uintptr)(unsafe.Pointer(p))
		p += 8
		if !isPtr(w) {
			continue
		}
		r := &regions[regionIndexOf(w)]
		b := baseOf(w)
		if b < r.startPtr || b >= r.freePtr {
			continue
		}
		if tryMark(b) {
			pushMark(b)
			pushed++
			if pushed >= maxPushPerFrame {
				markOverflow = true
				return
			}
		}
	}
}

// markRoots scans the stack between the reference point captured at Init
// and the current call frame, then every registered root range. See
// the reasoning below for why the stack range is taken
// as whichever of (stackRef, current stack pointer) is lower-to-higher
// rather than assuming a fixed growth direction: Go does not document which
// way a goroutine's stack grows relative to these two samples, so both
// orderings are handled.
func markRoots() {
	cur := currentStackPointer()
	lo, hi := stackRef, cur
	if hi < lo {
		lo, hi = hi, lo
	}
	scanConservative(lo, hi-lo)

	for rt := roots; rt != nil; rt = rt.next {
		ptr, n := rt.rangeBytes()
		if ptr != nil && n > 0 {
			scanConservative(uintptr(ptr), n)
		}
	}
}

// drainMarkStack pops chunks and scans each one's full extent for further
// candidate pointers, restarting a bounded full rescan whenever the
// worklist overflowed instead of growing it without limit. The rescan
// covers the stack, every registered root, and every live region's full
// range — not just the pool — because an overflow can abandon its
// remaining interval mid-scan anywhere, including mid-stack or mid-root,
// and any chunk reachable only through that abandoned tail must still get
// found. Each rescan pass only ever adds marks, never removes them, so
// this terminates once a pass finds nothing new to push.
func drainMarkStack() {
	for {
		for {
			addr, ok := popMark()
			if !ok {
				break
			}
			scanConservative(addr, sizeOfAddr(addr))
		}
		if !markOverflow {
			return
		}
		markOverflow = false
		markRoots()
		for i := range regions {
			r := &regions[i]
			if r.markPtr == nil {
				continue
			}
			scanConservative(r.startPtr, r.freePtr-r.startPtr)
		}
	}
}

// sweep reclaims everything left unmarked. It walks regions from the
// highest index down (huge, then big, then small), resets each region's
// freelist and lazy-refill window to span its whole live range, and — for
// the big/huge bands every sweep, for the small band only every
// returnPeriod-th sweep — advises the OS that contiguous unmarked,
// page-aligned runs may be discarded. Bounding how often small-band pages
// get this treatment keeps sweep cheap for the common case of many small,
// short-lived allocations, where most of the real cost is the commit churn
// avoided by simply reusing the freelist instead.
func sweep() {
	sweepCount++
	periodic := sweepCount%returnPeriod == 0
	for i := numRegions - 1; i >= 0; i-- {
		r := &regions[i]
		returning := periodic || i > bigIdxOffset
		sweepRegion(r, returning)
	}
}

// sweepRegion walks the region's live range once, tracking the highest
// marked chunk (so freePtr can retreat past a dead tail, the bump
// allocator's equivalent of gc_sweep's downward walk setting freeptr at
// "the first such event") and, when returning is set, advising any
// unmarked run of at least 3 pages as discardable. An untouched region
// (freePtr == startPtr) sees a zero-iteration loop and is left exactly as
// it was.
func sweepRegion(r *region, returning bool) {
	var topMarked uintptr
	runStart := r.startPtr
	var runBytes uintptr
	bit := uint32(0)
	for p := r.startPtr; p < r.freePtr; p += r.size {
		if isMarkedIndex(r.markPtr, bit) {
			topMarked = p
			if returning && runBytes >= 3*pageSize {
				adviseRun(runStart, runBytes)
			}
			runBytes = 0
			runStart = p + r.size
		} else {
			runBytes += r.size
		}
		bit++
	}
	if returning && runBytes >= 3*pageSize {
		adviseRun(runStart, runBytes)
	}

	if topMarked != 0 {
		r.freePtr = topMarked + r.size
	} else {
		r.freePtr = r.startPtr
	}
	r.freelist = 0
	r.markStartPtr = r.startPtr
	r.markEndPtr = r.freePtr
}

func adviseRun(start, length uintptr) {
	aStart := alignUp(start, pageSize)
	aEnd := alignDown(start+length, pageSize)
	if aEnd > aStart {
		vm.adviseDiscardable(aStart, aEnd-aStart)
	}
}

// collect runs one full mark/sweep cycle. It is the shared core behind the
// public Collect and the allocation-triggered path in maybeCollect.
func collect() {
	if !markInitAll() {
		return
	}
	markOverflow = false
	markTop = 0
	markRoots()
	drainMarkStack()
	sweep()
	usedSize = liveBytes()
}

func liveBytes() int64 {
	var total int64
	for i := range regions {
		r := &regions[i]
		if r.markPtr == nil {
			continue
		}
		chunks := uint64(r.freePtr-r.startPtr) / uint64(r.size)
		words := (chunks + 63) / 64
		var marked int
		for w := uint64(0); w < words; w++ {
			word := *(*uint64)(unsafe.Add(r.markPtr, uintptr(w)*8))
			marked += bits.OnesCount64(word)
		}
		total += int64(marked) * int64(r.size)
	}
	return total
}

// Collect forces an immediate mark/sweep cycle regardless of Enable/Disable
// state, mirroring gc.c's GC_gcollect.
func Collect() {
	if !inited {
		return
	}
	collect()
}
