package vmgc

// Compile-time tuning constants. These mirror the #define knobs of the
// original C collector (gc.h/gc.c) and, like TinyGo's own GC constants in
// gc_blocks.go, are plain untyped constants rather than a config struct:
// the region table layout and the address-arithmetic fast path both depend
// on these being known at compile time.
const (
	// base is the fixed virtual address at which the reserved pool starts.
	// Placed at 16 TiB, above the 0xc0… range where the Go runtime puts its
	// first heap arenas (and with them goroutine stacks), so the 3 TiB
	// MAP_FIXED reservation starting here does not overlap memory the host
	// program's own allocator has already mapped.
	base = uintptr(0x100000000000)

	// regionSize is the size of a single region's virtual address slice.
	regionSize = uintptr(4) << 30 // 4 GiB

	// numRegions is the number of size-class regions. Regions are split
	// into three equally sized bands: small, big, huge.
	numRegions = 768

	// bandRegions is the number of regions per band (numRegions / 3).
	bandRegions = numRegions / 3

	// alignment is both the byte alignment of every allocation and the
	// granularity of the small-band size classes.
	alignment = 16

	// unit is the small-band size-class step.
	unit = uintptr(alignment)

	// bigUnit is the big-band size-class step.
	bigUnit = uintptr(bandRegions) * unit

	// hugeUnit is the huge-band size-class step.
	hugeUnit = uintptr(bandRegions) * bigUnit

	// bigIdxOffset and hugeIdxOffset are the region indices at which the
	// big and huge bands conceptually begin. The classification compares
	// against these with a strict '>', matching the original source
	// (gc.h: GC_index_unit, GC_unit_offset) exactly, including its
	// off-by-one: region bigIdxOffset (256) and region hugeIdxOffset (512)
	// are never produced by a size->index lookup (see region_test.go), but
	// the table still reserves them with small/big-sized chunks respectively.
	// Changing the comparison to '>=' would shift every size class boundary
	// and is deliberately not done here.
	bigIdxOffset  = bandRegions
	hugeIdxOffset = 2 * bandRegions

	// growthFactor and minTrigger drive the GC_maybe_collect heuristic:
	// after a collection, the next trigger is (scanned bytes) / growthFactor,
	// floored at minTrigger.
	growthFactor = 1.75
	minTrigger   = 100_000

	// freelistRefill bounds how many chunks are pulled out of a region's
	// mark range and pushed onto its freelist in one allocation call.
	freelistRefill = 256

	// protectGrainPages is the minimum number of pages committed at once
	// when a region's bump pointer crosses its commit frontier.
	protectGrainPages = 16

	// pageSize is the assumed OS page size. 4 KiB on every platform this
	// package targets.
	pageSize = uintptr(4096)

	// markStackBytes is the size of the dedicated VA reservation backing
	// the mark worklist.
	markStackBytes = uintptr(1) << 30 // 1 GiB

	// returnPeriod: every returnPeriod-th sweep additionally advises unused
	// pages as discardable for every region, not just big/huge ones.
	returnPeriod = 8

	// maxRootSize rejects absurdly large root registrations.
	maxRootSize = uintptr(1) << 30 // 1 GiB

	// maxPushPerFrame bounds how many children of a single object the mark
	// phase will push onto the worklist before throttling recursion depth.
	maxPushPerFrame = 1024
)
