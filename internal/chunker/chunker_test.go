package chunker

import (
	"bytes"
	"math/rand"
	"testing"
)

// S1 from spec.md §8: min=4, avg=8, max=16, win=4, input = 64 zero bytes.
// Every fingerprint over all-zero bytes is zero, which matches the anchor
// immediately, so the algorithm degenerates to a boundary every Min bytes.
func TestSplitDegenerateZeros(t *testing.T) {
	c, err := New(Params{Min: 4, Avg: 8, Max: 16, WinSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 64)

	ends := c.Split(buf)
	if len(ends) == 0 {
		t.Fatal("no chunks produced")
	}
	if ends[0] != 3 {
		t.Fatalf("first end index = %d, want 3", ends[0])
	}
	for i := 1; i < len(ends)-1; i++ {
		if ends[i]-ends[i-1] != 4 {
			t.Fatalf("end[%d]-end[%d] = %d, want 4", i, i-1, ends[i]-ends[i-1])
		}
	}
	if ends[len(ends)-1] != 63 {
		t.Fatalf("last end index = %d, want 63 (tail)", ends[len(ends)-1])
	}
}

func TestSplitBoundsAndDeterminism(t *testing.T) {
	c, err := New(DefaultParams)
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(42))
	buf := make([]byte, 5*1024*1024)
	rng.Read(buf)

	ends1 := c.Split(buf)
	ends2 := c.Split(buf)
	if len(ends1) != len(ends2) {
		t.Fatalf("non-deterministic: %d vs %d chunks", len(ends1), len(ends2))
	}
	for i := range ends1 {
		if ends1[i] != ends2[i] {
			t.Fatalf("non-deterministic at chunk %d: %d vs %d", i, ends1[i], ends2[i])
		}
	}

	start := 0
	for i, end := range ends1 {
		size := end - start + 1
		last := i == len(ends1)-1
		if !last && (size < c.params.Min || size > c.params.Max) {
			t.Fatalf("chunk %d size %d outside [%d,%d]", i, size, c.params.Min, c.params.Max)
		}
		start = end + 1
	}
	if ends1[len(ends1)-1] != len(buf)-1 {
		t.Fatalf("last chunk doesn't reach end of buffer")
	}
}

func TestFixedSplit(t *testing.T) {
	ends := FixedSplit(20, 8)
	want := []int{7, 15, 19}
	if len(ends) != len(want) {
		t.Fatalf("ends = %v, want %v", ends, want)
	}
	for i := range want {
		if ends[i] != want[i] {
			t.Fatalf("ends = %v, want %v", ends, want)
		}
	}
}

func TestChunksFromEndsReassemble(t *testing.T) {
	buf := bytes.Repeat([]byte{1, 2, 3}, 1000)
	c, err := New(DefaultParams)
	if err != nil {
		t.Fatal(err)
	}
	ends := c.Split(buf)
	chunks := ChunksFromEnds(ends)

	var out []byte
	for _, ch := range chunks {
		out = append(out, ch.Bytes(buf)...)
	}
	if !bytes.Equal(out, buf) {
		t.Fatal("reassembled chunks don't match original buffer")
	}
}
