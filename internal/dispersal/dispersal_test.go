package dispersal

import (
	"bytes"
	"testing"

	"github.com/chintran27/cdstore-go/internal/primitive"
)

func kSubsets(n, k int) [][]int {
	var out [][]int
	var pick func(start int, cur []int)
	pick = func(start int, cur []int) {
		if len(cur) == k {
			cp := append([]int{}, cur...)
			out = append(out, cp)
			return
		}
		for i := start; i < n; i++ {
			pick(i+1, append(cur, i))
		}
	}
	pick(0, nil)
	return out
}

func selectShares(all []Share, ids []int) []Share {
	out := make([]Share, len(ids))
	for i, id := range ids {
		out[i] = all[id]
	}
	return out
}

// S2 from spec.md §8: n=4, m=1, k=3, r=2, CAONT-RS, secret = 100 bytes 'A'.
func TestS2CAONTRSRoundTrip(t *testing.T) {
	codec, err := New(Params{N: 4, M: 1, R: 2, Variant: CAONTRS, Sec: primitive.High})
	if err != nil {
		t.Fatal(err)
	}
	secret := bytes.Repeat([]byte{'A'}, 100)

	shares, err := codec.Encode(secret)
	if err != nil {
		t.Fatal(err)
	}
	if len(shares) != 4 {
		t.Fatalf("got %d shares, want 4", len(shares))
	}

	for _, subset := range kSubsets(4, 3) {
		got, err := codec.Decode(selectShares(shares, subset), len(secret))
		if err != nil {
			t.Fatalf("subset %v: decode error: %v", subset, err)
		}
		if !bytes.Equal(got, secret) {
			t.Fatalf("subset %v: decoded %q, want %q", subset, got, secret)
		}
	}
}

// S3 from spec.md §8: flip a bit in one share before decoding; expect
// INTEGRITY.
func TestS3IntegrityFailure(t *testing.T) {
	codec, err := New(Params{N: 4, M: 1, R: 2, Variant: CAONTRS, Sec: primitive.High})
	if err != nil {
		t.Fatal(err)
	}
	secret := bytes.Repeat([]byte{'A'}, 100)

	shares, err := codec.Encode(secret)
	if err != nil {
		t.Fatal(err)
	}
	shares[2].Data[0] ^= 0x01

	_, err = codec.Decode(selectShares(shares, []int{0, 1, 2}), len(secret))
	if err == nil {
		t.Fatal("expected INTEGRITY error, got nil")
	}
}

func TestCRSSSRoundTripAndGroupHashVerification(t *testing.T) {
	codec, err := New(Params{N: 5, M: 2, R: 1, Variant: CRSSS, Sec: primitive.Low})
	if err != nil {
		t.Fatal(err)
	}
	secret := []byte("the quick brown fox jumps over the lazy dog, repeated for padding")

	shares, err := codec.Encode(secret)
	if err != nil {
		t.Fatal(err)
	}

	for _, subset := range kSubsets(5, 3) {
		got, err := codec.Decode(selectShares(shares, subset), len(secret))
		if err != nil {
			t.Fatalf("subset %v: %v", subset, err)
		}
		if !bytes.Equal(got, secret) {
			t.Fatalf("subset %v: mismatch", subset)
		}
	}

	shares[1].Data[0] ^= 0xFF
	if _, err := codec.Decode(selectShares(shares, []int{0, 1, 2}), len(secret)); err == nil {
		t.Fatal("expected integrity failure on corrupted CRSSS share")
	}
}

func TestAONTRSRoundTrip(t *testing.T) {
	codec, err := New(Params{N: 6, M: 3, R: 2, Variant: AONTRS, Sec: primitive.High})
	if err != nil {
		t.Fatal(err)
	}
	secret := bytes.Repeat([]byte{0x42}, 257)

	shares, err := codec.Encode(secret)
	if err != nil {
		t.Fatal(err)
	}
	for _, subset := range kSubsets(6, 3) {
		got, err := codec.Decode(selectShares(shares, subset), len(secret))
		if err != nil {
			t.Fatalf("subset %v: %v", subset, err)
		}
		if !bytes.Equal(got, secret) {
			t.Fatalf("subset %v: mismatch", subset)
		}
	}
}

func TestOldCAONTRSRoundTrip(t *testing.T) {
	codec, err := New(Params{N: 4, M: 1, R: 2, Variant: OldCAONTRS, Sec: primitive.Low})
	if err != nil {
		t.Fatal(err)
	}
	secret := []byte("convergent dispersal content")

	s1, err := codec.Encode(secret)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := codec.Encode(secret)
	if err != nil {
		t.Fatal(err)
	}
	for i := range s1 {
		if !bytes.Equal(s1[i].Data, s2[i].Data) {
			t.Fatalf("old CAONT-RS is not convergent: share %d differs across encodes", i)
		}
	}

	got, err := codec.Decode(selectShares(s1, []int{0, 1, 2}), len(secret))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, secret) {
		t.Fatal("round trip mismatch")
	}
}

// S4 from spec.md §8: the 3x3 submatrix A[{0,1,2}] of the CAONT-RS
// distribution matrix for n=4,k=3 is I by construction.
func TestS4MatrixInverseIsIdentityForSystematicRows(t *testing.T) {
	codec, err := New(Params{N: 4, M: 1, R: 2, Variant: CAONTRS, Sec: primitive.High})
	if err != nil {
		t.Fatal(err)
	}
	sub := codec.dist.Rows([]int{0, 1, 2})
	inv, err := sub.Invert()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := byte(0)
			if i == j {
				want = 1
			}
			if inv[i][j] != want {
				t.Fatalf("inv[%d][%d] = %d, want %d", i, j, inv[i][j], want)
			}
		}
	}
}

// Convergence (spec.md §8 property 3): identical content through two
// independent CAONT-RS codec instances ("two users") yields identical
// share sets.
func TestConvergenceAcrossUsers(t *testing.T) {
	paramsA := Params{N: 4, M: 1, R: 2, Variant: CAONTRS, Sec: primitive.High}
	codecA, err := New(paramsA)
	if err != nil {
		t.Fatal(err)
	}
	codecB, err := New(paramsA)
	if err != nil {
		t.Fatal(err)
	}
	secret := []byte("identical chunk content shared by two different users")

	sharesA, err := codecA.Encode(secret)
	if err != nil {
		t.Fatal(err)
	}
	sharesB, err := codecB.Encode(secret)
	if err != nil {
		t.Fatal(err)
	}
	for i := range sharesA {
		if !bytes.Equal(sharesA[i].Data, sharesB[i].Data) {
			t.Fatalf("share %d differs between users: dedup would not converge", i)
		}
	}
}
