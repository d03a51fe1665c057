package vmgc

import "unsafe"

// root is a memory range outside the GC pool that may hold pointers into
// it. For a static root, ptr/size are snapshotted once at registration and
// ptrPtr/sizePtr point back at this node's own copies — a uniform
// representation so the mark phase never needs to special-case static
// vs. dynamic roots.
type root struct {
	ptr  unsafe.Pointer
	size uintptr

	ptrPtr   *unsafe.Pointer
	sizePtr  *uintptr
	elemSize uintptr

	next *root
}

// roots is the process-global root chain, like gc.c's gc_roots.
var roots *root

// RegisterRoot records [ptr, ptr+size) as a range the mark phase must scan
// on every collection. Use this for any non-GC-allocated memory — a global
// variable, C-allocated buffer, or similar — that may contain pointers into
// the GC pool; conservative collection does not discover such roots
// automatically.
func RegisterRoot(ptr unsafe.Pointer, size uintptr) error {
	if size > maxRootSize {
		return errRootTooLarge
	}
	r := &root{ptr: ptr, size: size, elemSize: 1}
	r.ptrPtr = &r.ptr
	r.sizePtr = &r.size
	addRoot(r)
	return nil
}

// RegisterDynamicRoot is like RegisterRoot, except the mutator may rewrite
// *ptrPtr and *sizePtr at any time between collections — useful for a
// growable slice-backed root whose backing array gets reallocated. The
// scanned range at collection time is [*ptrPtr, *ptrPtr + (*sizePtr)*elemSize).
func RegisterDynamicRoot(ptrPtr *unsafe.Pointer, sizePtr *uintptr, elemSize uintptr) error {
	r := &root{ptrPtr: ptrPtr, sizePtr: sizePtr, elemSize: elemSize}
	addRoot(r)
	return nil
}

func addRoot(r *root) {
	r.next = roots
	roots = r
}

func (r *root) rangeBytes() (unsafe.Pointer, uintptr) {
	return *r.ptrPtr, (*r.sizePtr) * r.elemSize
}
