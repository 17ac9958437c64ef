// Package chunker implements the content-defined chunking collaborator
// (C4) from spec.md §4.4: a Rabin-style rolling hash over a fixed window,
// with deterministic min/avg/max bounds, plus the degenerate fixed-size
// mode.
//
// The package shape — precomputed tables built once at construction,
// an iterator-style cutpoint walk — is grounded on restic/chunker's
// table-cache-plus-Next() design (chunker/chunker.go,
// chunker/polynomials.go), but the rolling-hash recurrence itself is
// spec.md's own (base B=257, modulus M=2^23), not restic's irreducible
// Rabin polynomial scheme, so the tables and recurrence below are novel.
package chunker

import "github.com/chintran27/cdstore-go/internal/cdserrors"

const (
	// base is the rolling-hash multiplier B from spec.md §3.
	base = 257
	// modulusBits/modulus implement M = 2^23; the mod reduces to an AND
	// with modulus-1 per spec.md §4.4.
	modulusBits = 23
	modulus     = 1 << modulusBits
	modulusMask = modulus - 1
)

// Params holds the chunker configuration described in spec.md §3/§6.
// avgChunkSize must be a power of two; minChunkSize < avgChunkSize <
// maxChunkSize.
type Params struct {
	Min, Avg, Max int
	WinSize       int
}

// DefaultParams matches the client CLI defaults in spec.md §6.
var DefaultParams = Params{Min: 2048, Avg: 8192, Max: 16384, WinSize: 48}

// Chunker holds the precomputed rolling-hash tables for a fixed Params.
// A single Chunker may be reused (concurrently, read-only after
// construction) across many buffers.
type Chunker struct {
	params Params
	mask   uint32 // avg-1, requires avg a power of two
	pow    []uint32
	remove []uint32
}

// New validates params and precomputes the pow/remove tables from
// spec.md §3.
func New(p Params) (*Chunker, error) {
	if p.Avg <= 0 || p.Avg&(p.Avg-1) != 0 {
		return nil, cdserrors.New(cdserrors.KindInvalidArg, "chunker: avg chunk size must be a power of two")
	}
	if !(p.Min < p.Avg && p.Avg < p.Max) {
		return nil, cdserrors.New(cdserrors.KindInvalidArg, "chunker: require min < avg < max")
	}
	if p.WinSize <= 0 {
		return nil, cdserrors.New(cdserrors.KindInvalidArg, "chunker: window size must be positive")
	}

	c := &Chunker{
		params: p,
		mask:   uint32(p.Avg - 1),
		pow:    make([]uint32, p.WinSize),
		remove: make([]uint32, 256),
	}

	pow := uint32(1)
	for i := 0; i < p.WinSize; i++ {
		c.pow[i] = pow
		pow = (pow * base) & modulusMask
	}
	// remove[b] = (-b * B^(winSize-1)) mod M
	highPow := c.pow[p.WinSize-1]
	for b := 0; b < 256; b++ {
		c.remove[b] = (modulus - (uint32(b)*highPow)&modulusMask) & modulusMask
	}

	return c, nil
}

// anchorValue is always 0 per spec.md §3.
const anchorValue = 0

// Split returns the sequence of chunk end indices (inclusive, 0-based) for
// buf, per the variable-size algorithm in spec.md §4.4. The final chunk may
// be shorter than Min if it is a tail chunk.
func (c *Chunker) Split(buf []byte) []int {
	n := len(buf)
	if n == 0 {
		return nil
	}

	var ends []int
	prevEnd := -1

	for prevEnd < n-1 {
		start := prevEnd + c.params.Min
		limit := prevEnd + c.params.Max
		if limit > n-1 {
			limit = n - 1
		}
		if start > limit {
			// Not enough bytes left for a full Min-sized chunk: the
			// remainder becomes one tail chunk.
			ends = append(ends, n-1)
			break
		}

		fp := c.fingerprint(buf, start)
		for (fp&c.mask) != anchorValue && start < limit {
			start++
			fp = ((fp+c.remove[buf[start-c.params.WinSize]])*base + uint32(buf[start])) & modulusMask
		}

		ends = append(ends, start)
		prevEnd = start
	}

	if len(ends) == 0 || ends[len(ends)-1] != n-1 {
		ends = append(ends, n-1)
	}

	return ends
}

// fingerprint computes the rolling-hash value over the WinSize bytes ending
// at index `at` (spec.md §4.4 step 2): fp = sum(buf[at-i] * pow[i]) mod M.
func (c *Chunker) fingerprint(buf []byte, at int) uint32 {
	var fp uint32
	win := c.params.WinSize
	for i := 0; i < win; i++ {
		idx := at - i
		var b byte
		if idx >= 0 {
			b = buf[idx]
		}
		fp = (fp + uint32(b)*c.pow[i]) & modulusMask
	}
	return fp
}

// FixedSplit implements the fixed-size chunking mode from spec.md §4.4:
// chunk boundaries at avg-1, 2*avg-1, ..., with a final short tail chunk if
// the input length isn't an exact multiple.
func FixedSplit(length, avg int) []int {
	if length <= 0 {
		return nil
	}
	var ends []int
	for end := avg - 1; end < length-1; end += avg {
		ends = append(ends, end)
	}
	if len(ends) == 0 || ends[len(ends)-1] != length-1 {
		ends = append(ends, length-1)
	}
	return ends
}

// Chunk is a contiguous byte range, identified by its bounds within the
// original buffer (spec.md §3: "a contiguous byte range of the input
// stream. Immutable.").
type Chunk struct {
	Start, End int // both inclusive
}

// Size returns the chunk length in bytes.
func (c Chunk) Size() int { return c.End - c.Start + 1 }

// Bytes returns the chunk's slice of buf.
func (c Chunk) Bytes(buf []byte) []byte { return buf[c.Start : c.End+1] }

// ChunksFromEnds converts a list of end indices (as returned by Split or
// FixedSplit) into Chunk values.
func ChunksFromEnds(ends []int) []Chunk {
	chunks := make([]Chunk, len(ends))
	start := 0
	for i, end := range ends {
		chunks[i] = Chunk{Start: start, End: end}
		start = end + 1
	}
	return chunks
}
