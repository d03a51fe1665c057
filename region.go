package vmgc

import (
	"math"
	"math/bits"
	"unsafe"
)

// freelistNode is the first word of a free chunk. next is stored
// bit-complemented (see hidePointer) so that conservative marking can never
// follow a freelist link and keep a dead chunk alive.
type freelistNode struct {
	next uintptr
}

// region is one size-class's slice of the reserved pool. All fields are
// private: callers only ever see addresses and sizes, never a *region.
type region struct {
	size    uintptr // chunk size in bytes
	invSize uint64  // reciprocal used by objectIndexOf's multiply-high trick

	startPtr uintptr // first address in this region, aligned up to size
	endPtr   uintptr // one past the last address in this region

	freePtr    uintptr // bump pointer: one past the last ever-allocated chunk
	protectPtr uintptr // one past the last page committed read/write

	freelist uintptr // head of the intrusive freelist; the links inside chunks are hidden-pointer encoded

	markStartPtr uintptr // [markStartPtr, markEndPtr) awaits freelist refill
	markEndPtr   uintptr

	markPtr  unsafe.Pointer // this region's mark bitmap, lazily allocated
	startIdx uint64         // objectIndexOf(startPtr), subtracted for 0-based indices
}

// regions is the process-global region table, indexed by region index. Like
// gc.c's __gc_regions array and like TinyGo's metadataStart/freeRanges
// globals in gc_blocks.go, this is deliberately a package-level singleton:
// the allocator's hot path resolves a raw address to its owning region
// purely by arithmetic on a table at a known location, and the single
// mutator thread contract makes unsynchronized access to it sound.
var regions [numRegions]region

// regionUnitForIndex returns the size-class step for region index idx. The
// comparisons are strict ('>'), matching gc.h's GC_index_unit exactly —
// see the bigIdxOffset/hugeIdxOffset doc comment in config.go for why this
// leaves regions bigIdxOffset and hugeIdxOffset structurally present but
// unreachable from indexForSize.
func regionUnitForIndex(idx int) uintptr {
	switch {
	case idx > hugeIdxOffset:
		return hugeUnit
	case idx > bigIdxOffset:
		return bigUnit
	default:
		return unit
	}
}

// unitOffset returns the region index at which the band using the given
// step conceptually starts.
func unitOffset(step uintptr) int {
	switch step {
	case unit:
		return 0
	case bigUnit:
		return bigIdxOffset
	default:
		return hugeIdxOffset
	}
}

// sizeUnitForSize picks which band a byte size falls in.
func sizeUnitForSize(size uintptr) uintptr {
	switch {
	case size > hugeUnit:
		return hugeUnit
	case size > bigUnit:
		return bigUnit
	default:
		return unit
	}
}

// indexForSize returns the region index that should satisfy an allocation
// of size bytes, or ok=false if size exceeds the largest size class (the
// "huge-size overflow" error).
func indexForSize(size uintptr) (idx int, ok bool) {
	step := sizeUnitForSize(size)
	idx = int((size-1)/step) + unitOffset(step)
	return idx, idx < numRegions
}

// reciprocal computes the 64-bit multiplier such that mulHigh64(reciprocal,
// p) approximates floor(p/size) for any p that fits in a uint64. This is
// the "128-bit-product reciprocal" trick: multiplying two
// 64-bit numbers produces a 128-bit product, and the high 64 bits of
// reciprocal(size)*p recovers p/size without a division instruction on the
// hot path. Ported directly from gc.c's gc_region_s.inv_size initializer.
func reciprocal(size uintptr) uint64 {
	return math.MaxUint64/uint64(size) + 1
}

func mulHigh64(invSize uint64, p uintptr) uint64 {
	hi, _ := bits.Mul64(invSize, uint64(p))
	return hi
}

// initRegions computes every region's band, chunk size, aligned bounds, and
// reciprocal. It does not reserve or touch any memory; that happens lazily
// per region in allocate.
func initRegions() {
	for i := range regions {
		step := regionUnitForIndex(i)
		offset := unitOffset(step)
		size := uintptr(i-offset+1) * step

		start := base + uintptr(i)*regionSize
		if rem := start % size; rem != 0 {
			start += size - rem
		}

		r := &regions[i]
		r.size = size
		r.invSize = reciprocal(size)
		r.startPtr = start
		r.endPtr = start + regionSize
		r.freePtr = start
		r.protectPtr = start
		r.markStartPtr = start
		r.markEndPtr = start
		r.freelist = 0
		r.markPtr = nil
		r.startIdx = mulHigh64(r.invSize, start)
	}
}

// isPtr reports whether p lies anywhere in the reserved pool. The
// subtraction deliberately underflows to a huge unsigned value when
// p < base, which lets a single unsigned comparison bound both sides of
// the range at once — the same trick as gc.h's GC_isptr.
func isPtr(p uintptr) bool {
	return p-base < regionSize*numRegions
}

// regionIndexOf returns the region index owning p. Only valid when
// isPtr(p) is true.
func regionIndexOf(p uintptr) int {
	return int((p - base) / regionSize)
}

// objectIndexOf returns the global chunk index of the chunk containing p,
// using the region housing p's reciprocal. Valid for any interior pointer
// within a region's bounds, not just chunk-aligned addresses.
func objectIndexOf(p uintptr) uint64 {
	r := &regions[regionIndexOf(p)]
	return mulHigh64(r.invSize, p)
}

// baseOf returns the start address of the chunk containing the interior
// pointer p.
func baseOf(p uintptr) uintptr {
	r := &regions[regionIndexOf(p)]
	return uintptr(objectIndexOf(p)) * r.size
}

// sizeOfAddr returns the chunk size of the region containing p.
func sizeOfAddr(p uintptr) uintptr {
	return regions[regionIndexOf(p)].size
}

// hidePointer and unhidePointer bit-complement a freelist link so that
// conservative marking can never follow it: the complement of any in-range
// 64-bit address is, by construction, out of range.
func hidePointer(p uintptr) uintptr { return ^p }
func unhidePointer(p uintptr) uintptr { return ^p }
