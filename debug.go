package vmgc

import (
	"fmt"
	"os"
)

// gcDebug gates one-line tracing on the allocator's hot path, the same way
// TinyGo's runtime gates gc_blocks.go's println calls behind its own gcDebug
// constant: a real logging package would itself need to allocate, which is
// circular this close to the allocator, so tracing stays on a bare
// conditional fprintf rather than a structured logging dependency.
const gcDebug = false

func debugf(format string, args ...any) {
	if !gcDebug {
		return
	}
	fmt.Fprintf(os.Stderr, "vmgc: "+format+"\n", args...)
}
