package vmgc

import (
	"testing"
	"unsafe"
)

func TestMain(m *testing.M) {
	if err := Init(); err != nil {
		panic(err)
	}
	m.Run()
}

func TestAllocAlignment(t *testing.T) {
	p := Alloc(3)
	if p == nil {
		t.Fatal("Alloc returned nil")
	}
	if uintptr(p)%alignment != 0 {
		t.Fatalf("Alloc(3) = %#x, not %d-byte aligned", p, alignment)
	}
}

func TestAllocWritable(t *testing.T) {
	n := 64
	p := Alloc(uintptr(n))
	buf := unsafe.Slice((*byte)(p), n)
	for i := range buf {
		buf[i] = byte(i)
	}
	for i := range buf {
		if buf[i] != byte(i) {
			t.Fatalf("byte %d = %d, want %d", i, buf[i], byte(i))
		}
	}
}

func TestBaseOfInteriorPointer(t *testing.T) {
	p := Alloc(40)
	interior := unsafe.Add(p, 17)
	if got := BaseOf(interior); got != p {
		t.Fatalf("BaseOf(interior) = %#x, want %#x", got, p)
	}
}

func TestSizeOfRoundsUpToSizeClass(t *testing.T) {
	p := Alloc(1)
	if got := SizeOf(p); got < 1 || got%alignment != 0 {
		t.Fatalf("SizeOf(Alloc(1)) = %d, want a positive multiple of %d", got, alignment)
	}
}

func TestTagRoundTrip(t *testing.T) {
	p := Alloc(8)
	for tag := uintptr(0); tag < alignment; tag++ {
		tagged := SetTag(p, tag)
		if got := GetTag(tagged); got != tag {
			t.Fatalf("GetTag(SetTag(p, %d)) = %d, want %d", tag, got, tag)
		}
		if StripTag(tagged) != p {
			t.Fatalf("StripTag(SetTag(p, %d)) = %#x, want %#x", tag, StripTag(tagged), p)
		}
	}
}

func TestExtTagRoundTrip(t *testing.T) {
	p := Alloc(64)
	for _, offset := range []uintptr{0, 1, 17, 63} {
		interior := SetExtTag(p, offset)
		if got := GetExtTag(interior); got != offset {
			t.Fatalf("GetExtTag(SetExtTag(p, %d)) = %d, want %d", offset, got, offset)
		}
		if StripExtTag(interior) != p {
			t.Fatalf("StripExtTag(SetExtTag(p, %d)) = %#x, want %#x", offset, StripExtTag(interior), p)
		}
	}
}

func TestIsPtrRejectsForeignPointer(t *testing.T) {
	local := 0
	if IsPtr(unsafe.Pointer(&local)) {
		t.Fatal("IsPtr reported a stack address as pool memory")
	}
}

func TestReallocPreservesContent(t *testing.T) {
	p := Alloc(8)
	buf := unsafe.Slice((*byte)(p), 8)
	for i := range buf {
		buf[i] = byte(0xAA)
	}
	bigger := Realloc(p, 512)
	if bigger == nil {
		t.Fatal("Realloc returned nil")
	}
	grown := unsafe.Slice((*byte)(bigger), 8)
	for i, b := range grown {
		if b != 0xAA {
			t.Fatalf("byte %d = %#x after growing realloc, want 0xAA", i, b)
		}
	}
}

func TestFreeThenAllocReusesChunk(t *testing.T) {
	p := Alloc(24)
	Free(p)
	q := Alloc(24)
	if q != p {
		t.Fatalf("Alloc after Free = %#x, want the just-freed chunk %#x back off the freelist", q, p)
	}
}

// keepAlive defeats any attempt by the Go compiler to prove a root
// unreachable and drop it before Collect runs, which would invalidate
// exactly the scenario these tests are checking.
//
//go:noinline
func keepAlive(p unsafe.Pointer) {}

func TestCollectKeepsRootedObjectThenAllocAfterUnrooting(t *testing.T) {
	var rootedPtr unsafe.Pointer
	if err := RegisterRoot(unsafe.Pointer(&rootedPtr), unsafe.Sizeof(rootedPtr)); err != nil {
		t.Fatalf("RegisterRoot: %v", err)
	}

	rootedPtr = Alloc(32)
	keepAlive(rootedPtr)

	before := liveBytes()
	Collect()
	// The rooted allocation must have survived the cycle it's reachable in.
	if liveBytes() < before {
		t.Fatalf("liveBytes dropped from %d to %d across a cycle with a live root", before, liveBytes())
	}

	rootedPtr = nil
	Collect()
	Collect() // a chunk is only returned to the freelist on the sweep after it goes unmarked.

	q := Alloc(32)
	if q == nil {
		t.Fatal("Alloc after releasing the only root returned nil")
	}
}

func TestCollectIsIdempotentWhenNothingChanged(t *testing.T) {
	Collect()
	before := liveBytes()
	Collect()
	if liveBytes() != before {
		t.Fatalf("liveBytes changed from %d to %d across a Collect with no intervening allocation", before, liveBytes())
	}
}

func TestStrdup(t *testing.T) {
	s := Strdup("hello")
	if s != "hello" {
		t.Fatalf("Strdup(%q) = %q", "hello", s)
	}
}

func TestSizeOverflowReturnsNil(t *testing.T) {
	maxSize := uintptr(numRegions-1-hugeIdxOffset+1) * hugeUnit
	var called bool
	SetErrorHandler(func(e *Error) { called = true })
	defer SetErrorHandler(nil)

	if p := Alloc(maxSize + 1); p != nil {
		t.Fatal("Alloc beyond the largest size class should return nil")
	}
	if !called {
		t.Fatal("error handler was not invoked for a size overflow")
	}
}
