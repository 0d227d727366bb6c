package flattener

import (
	"fmt"
	"strings"
)

// FlatName encodes an archive-relative path into a single-level file
// name. Path separators become "__" and any byte outside
// [A-Za-z0-9._-] becomes a "_XXXX" hex escape, so the result never
// contains a separator. The encoding is deterministic; it is not
// injective on its own (an original name may itself contain "__"),
// which is what the NameAllocator is for.
func FlatName(path string) string {
	var b strings.Builder
	for _, r := range path {
		switch {
		case r == '/':
			b.WriteString("__")
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			fmt.Fprintf(&b, "_%04x", r)
		}
	}
	return b.String()
}

// NameAllocator hands out pairwise-distinct flat names for one run.
// A residual collision gets a "~2", "~3", ... suffix assigned in call
// order, so the same archive always yields the same name set.
type NameAllocator struct {
	taken map[string]bool
}

func NewNameAllocator() *NameAllocator {
	return &NameAllocator{
		taken: make(map[string]bool),
	}
}

func (a *NameAllocator) Claim(name string) string {
	if !a.taken[name] {
		a.taken[name] = true
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s~%d", name, i)
		if !a.taken[candidate] {
			a.taken[candidate] = true
			return candidate
		}
	}
}
