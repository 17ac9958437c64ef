package kvindex

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
)

// nameBodyLen is the lexicographically-incrementing portion of a recipe
// file / share container name. spec.md §3 calls the fixed name "16 bytes
// (12 lexicographically-increasing lowercase letters + .rf / .sc)" while
// spec.md §4.9 says "name generation starts at 12 a's" — 12 letters plus a
// 3-byte extension (".rf"/".sc") is 15, not 16. We reconcile the two by
// using a 13-letter body (16 - len(".rf")), so "starts at all-a's" and
// "fixed 16-byte names" both hold exactly.
const nameBodyLen = 13

// RecipeExt and ContainerExt are the two allocatable name extensions.
const (
	RecipeExt    = ".rf"
	ContainerExt = ".sc"
)

// NameAllocator hands out globally-increasing 16-byte archive names
// (spec.md §4.9): "Name generation starts at 12 a's, lexicographically
// incrementing through {a..z} only." Two allocators exist server-wide, one
// for recipe files and one for share containers, each guarded by its own
// mutex (spec.md §4.9/§5).
type NameAllocator struct {
	mu   sync.Mutex
	ext  string
	next [nameBodyLen]byte
}

// NewNameAllocator returns an allocator for the given extension, starting
// at all-'a's.
func NewNameAllocator(ext string) *NameAllocator {
	na := &NameAllocator{ext: ext}
	for i := range na.next {
		na.next[i] = 'a'
	}
	return na
}

// Next returns the next name and advances the counter.
func (na *NameAllocator) Next() [16]byte {
	na.mu.Lock()
	defer na.mu.Unlock()

	var out [16]byte
	copy(out[:], na.next[:])
	copy(out[nameBodyLen:], na.ext)

	incrementLexicographic(&na.next)
	return out
}

// incrementLexicographic advances body as a base-26 lowercase-letter
// counter, least-significant (rightmost) letter first, carrying leftward.
// Overflow past "zzz...z" wraps back to all-'a' — the archive is expected
// to be recycled or re-provisioned long before 26^13 names are exhausted.
func incrementLexicographic(body *[nameBodyLen]byte) {
	for i := len(body) - 1; i >= 0; i-- {
		if body[i] < 'z' {
			body[i]++
			return
		}
		body[i] = 'a'
	}
}

// Recover scans dir for files with the given extension and advances the
// allocator past the lexicographic maximum found, implementing decision D1
// in DESIGN.md (spec.md §9's open question on cold-start name-counter
// recovery).
func (na *NameAllocator) Recover(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return cdserrors.Wrap(cdserrors.KindIO, err, "kvindex: scanning archive directory")
	}

	na.mu.Lock()
	defer na.mu.Unlock()

	var max string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, na.ext) {
			continue
		}
		body := strings.TrimSuffix(name, na.ext)
		if len(body) != nameBodyLen {
			continue
		}
		if body > max {
			max = body
		}
	}
	if max == "" {
		return nil
	}

	var body [nameBodyLen]byte
	copy(body[:], max)
	incrementLexicographic(&body)
	na.next = body
	return nil
}

// Path joins dir with name's string form.
func Path(dir string, name [16]byte) string {
	return filepath.Join(dir, string(bytesTrimZero(name[:])))
}

func bytesTrimZero(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}
