package kvindex

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNameAllocatorIncrementsLexicographically(t *testing.T) {
	na := NewNameAllocator(RecipeExt)
	first := na.Next()
	second := na.Next()
	if string(first[:]) >= string(second[:]) {
		t.Fatalf("names did not increase: %q then %q", first, second)
	}
	if string(first[nameBodyLen:]) != RecipeExt {
		t.Fatalf("extension = %q, want %q", first[nameBodyLen:], RecipeExt)
	}
}

func TestNameAllocatorRecoverResumesPastMax(t *testing.T) {
	dir := t.TempDir()
	// Pre-seed two archive files as if from a prior server run.
	if err := os.WriteFile(filepath.Join(dir, "aaaaaaaaaaaab.rf"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "aaaaaaaaaaaaz.rf"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	na := NewNameAllocator(RecipeExt)
	if err := na.Recover(dir); err != nil {
		t.Fatal(err)
	}

	next := na.Next()
	if string(next[:nameBodyLen]) != "aaaaaaaaaaaba" {
		t.Fatalf("allocator resumed at %q, want the successor of the max (aaaaaaaaaaaaz)", next[:nameBodyLen])
	}
}
