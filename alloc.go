package vmgc

import "unsafe"

// Alloc returns a pointer to a zero-length-tolerant, alignment-aligned
// block of at least size bytes from the GC pool. The memory is not
// zeroed by the allocator: freshly committed pages are zero
// because the kernel hands out zero pages, and pages recycled after a
// sweep's advise-discardable are zero the next time they're touched, but a
// chunk popped off the freelist or reclaimed from a lazy sweep refill may
// still hold its previous contents.
//
// Alloc returns nil on any non-fatal allocation failure (out of region
// space, a failed commit, or a requested size past the largest size
// class) and aborts the process on a fatal error (mark bitmap allocation
// failure during a collection triggered along the way).
func Alloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		size = 1
	}
	idx, ok := indexForSize(size)
	if !ok {
		handleError(ErrSizeOverflow, nil)
		return nil
	}
	return allocate(idx)
}

// allocate satisfies a request already classified to region index idx, via
// the three-tier fast path: freelist pop, lazy sweep refill, then bump
// allocation with commit-on-demand.
func allocate(idx int) unsafe.Pointer {
	r := &regions[idx]

	maybeCollect(r.size)

	// (1) Freelist pop.
	if r.freelist != 0 {
		return popFreelist(r)
	}

	// (2) Lazy sweep refill: pull up to freelistRefill unmarked chunks out
	// of [markStartPtr, markEndPtr) and onto the freelist.
	if r.markStartPtr < r.markEndPtr {
		refillFreelist(r)
		if r.freelist != 0 {
			return popFreelist(r)
		}
	}

	// (3) Bump allocate.
	ptr := r.freePtr
	if ptr >= r.endPtr {
		handleError(ErrOutOfRegionSpace, nil)
		return nil
	}
	r.freePtr = ptr + r.size

	// (5) Commit-on-demand.
	if ptr+r.size >= r.protectPtr {
		grain := protectGrainPages * pageSize
		if grain < r.size {
			grain = r.size
		}
		if !vm.commit(r.protectPtr, grain) {
			handleError(ErrCommitFailed, nil)
			return nil
		}
		r.protectPtr += grain
	}

	return unsafe.Pointer(ptr)
}

func popFreelist(r *region) unsafe.Pointer {
	head := r.freelist
	node := (*freelistNode)(unsafe.Pointer(head))
	r.freelist = unhidePointer(node.next)
	return unsafe.Pointer(head)
}

// refillFreelist walks up to freelistRefill unmarked chunks starting at
// markStartPtr, pushing each onto the freelist with a hidden next link, and
// advances markStartPtr past what it examined.
func refillFreelist(r *region) {
	ptr := r.markStartPtr
	idx := objectIndexOf(ptr) - r.startIdx
	pushed := 0
	for pushed < freelistRefill && ptr < r.markEndPtr {
		if !isMarkedIndex(r.markPtr, uint32(idx)) {
			node := (*freelistNode)(unsafe.Pointer(ptr))
			node.next = hidePointer(r.freelist)
			r.freelist = ptr
			pushed++
		}
		ptr += r.size
		idx++
	}
	r.markStartPtr = ptr
}

// maybeCollect implements the adaptive collection trigger: accumulate
// bytes allocated since the last cycle, and once they cross a
// dynamically-recomputed threshold, run a cycle and derive the next
// threshold from how much there was to scan this time.
func maybeCollect(size uintptr) {
	sinceLastGC += int64(size)
	if sinceLastGC < triggerSize {
		return
	}
	if !enabled {
		return
	}
	collect()

	stackTop := currentStackPointer()
	var stackBytes int64
	if stackTop < stackRef {
		stackBytes = int64(stackRef - stackTop)
	}

	scan := 2 * stackBytes
	for rt := roots; rt != nil; rt = rt.next {
		_, n := rt.rangeBytes()
		scan += int64(n)
	}
	scan += 2 * usedSize

	triggerSize = int64(float64(scan) / growthFactor)
	if triggerSize < minTrigger {
		triggerSize = minTrigger
	}
	sinceLastGC = 0
}

// Realloc resizes ptr in place where possible: a nil ptr is equivalent to
// Alloc(size); a size that classifies to the same region is a no-op;
// otherwise a fresh block is allocated, the overlap is copied, and the
// old block is freed. On allocation failure the old pointer remains valid
// and Realloc returns nil.
func Realloc(ptr unsafe.Pointer, size uintptr) unsafe.Pointer {
	if ptr == nil {
		return Alloc(size)
	}
	oldAddr := uintptr(ptr)
	oldIdx := regionIndexOf(oldAddr)
	newIdx, ok := indexForSize(size)
	if !ok {
		handleError(ErrSizeOverflow, nil)
		return nil
	}
	if newIdx == oldIdx {
		return ptr
	}

	newPtr := allocate(newIdx)
	if newPtr == nil {
		return nil
	}

	oldSize := regions[oldIdx].size
	copySize := size
	if oldSize < copySize {
		copySize = oldSize
	}
	copy(unsafe.Slice((*byte)(newPtr), copySize), unsafe.Slice((*byte)(ptr), copySize))
	freeNonNil(oldAddr)
	return newPtr
}

// Free pushes ptr back onto its region's freelist. Passing nil is a no-op;
// otherwise this delegates to the same non-validating path gc.c's
// GC_free_nonnull uses — freeing a pointer that vmgc did not hand out, or
// double-freeing one, is undefined behavior.
func Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	freeNonNil(uintptr(ptr))
}

func freeNonNil(addr uintptr) {
	idx := regionIndexOf(addr)
	r := &regions[idx]
	node := (*freelistNode)(unsafe.Pointer(addr))
	node.next = hidePointer(r.freelist)
	r.freelist = addr

	// Subtracting the region *index*, not the region *size*, mirrors
	// gc.c's GC_free_nonnull exactly (gc_alloc_size -= (ssize_t)idx). Kept
	// as shipped rather than "fixed" to subtract r.size, since that would
	// silently change collection pacing beyond what was asked for.
	sinceLastGC -= int64(idx)
}
