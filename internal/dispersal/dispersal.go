// Package dispersal implements the convergent-dispersal codec (C5) from
// spec.md §4.5: four variants (CRSSS, AONT-RS, old CAONT-RS, CAONT-RS)
// sharing one encode/decode contract over internal/gf256 and
// internal/primitive.
//
// The four variants are modeled as a sum type over Variant dispatched by a
// single Codec, not a class hierarchy, per the design note in spec.md §9
// ("the four dispersal algorithms are best expressed as a sum type over
// variant with a uniform interface, not a class hierarchy").
package dispersal

import (
	"github.com/chintran27/cdstore-go/internal/cdserrors"
	"github.com/chintran27/cdstore-go/internal/gf256"
	"github.com/chintran27/cdstore-go/internal/primitive"
)

// Variant selects which of the four dispersal algorithms a Codec runs.
type Variant int

const (
	// CRSSS is the Convergent Ramp Secret Sharing Scheme.
	CRSSS Variant = iota
	// AONTRS is the All-Or-Nothing Transform with RS parity, random key.
	AONTRS
	// OldCAONTRS is the convergent AONT-RS variant with K = hash(secret),
	// verified by equality at decode rather than by CAONTRS's encrypted
	// constant-block scheme.
	OldCAONTRS
	// CAONTRS is the primary convergent AONT-RS variant (spec.md §4.5).
	CAONTRS
)

// Params holds the dispersal configuration from spec.md §3/§6.
// k = n-m must be > 1; 0 < r < k; AONT/CAONT variants require r = k-1.
type Params struct {
	N, M, R int
	Variant Variant
	Sec     primitive.Security
}

// K returns n-m, the number of shares required to reconstruct a chunk.
func (p Params) K() int { return p.N - p.M }

// Codec encodes a chunk ("secret") into N shares and decodes any K of them
// back into the chunk, per spec.md §4.5.
type Codec struct {
	params Params
	prim   *primitive.Primitive
	word   int // w: 32 for HIGH (SHA-256), 16 for LOW (MD5)
	dist   gf256.Matrix
}

// New validates params and precomputes the codec's distribution matrix.
func New(p Params) (*Codec, error) {
	k := p.K()
	if k <= 1 {
		return nil, cdserrors.New(cdserrors.KindInvalidArg, "dispersal: k = n-m must be > 1")
	}
	if p.R <= 0 || p.R >= k {
		return nil, cdserrors.New(cdserrors.KindInvalidArg, "dispersal: require 0 < r < k")
	}
	if p.Variant != CRSSS && p.R != k-1 {
		return nil, cdserrors.New(cdserrors.KindInvalidArg, "dispersal: AONT/CAONT variants require r = k-1")
	}

	prim := primitive.New(p.Sec)
	word := prim.HashSize()

	systematic := p.Variant != CRSSS
	dist, err := gf256.DistributionMatrix(p.N, k, p.M, systematic)
	if err != nil {
		return nil, err
	}

	return &Codec{params: p, prim: prim, word: word, dist: dist}, nil
}

// WordSize returns w: the secret-word / hash size in bytes (32 or 16).
func (c *Codec) WordSize() int { return c.word }

// ShareSizeFor returns the per-share size in bytes for a secret of length s,
// per the table in spec.md §4.5.
func (c *Codec) ShareSizeFor(s int) int {
	k := c.params.K()
	w := c.word
	switch c.params.Variant {
	case CRSSS:
		groupBytes := w * (k - c.params.R)
		aligned := alignUp(s, groupBytes)
		return w * (aligned / groupBytes)
	default:
		aligned := alignForAONT(s, w, k)
		return w * (((aligned / w) + 1) / k)
	}
}

// alignUp rounds s up to the next multiple of unit (unit > 0); s == 0
// yields unit.
func alignUp(s, unit int) int {
	if s%unit == 0 && s != 0 {
		return s
	}
	if s == 0 {
		return unit
	}
	return ((s / unit) + 1) * unit
}

// alignForAONT finds the smallest aligned >= s such that
// (aligned + w) % (w*k) == 0, per spec.md §4.5's AONT/CAONT alignment rule.
func alignForAONT(s, w, k int) int {
	unit := w * k
	aligned := s
	if aligned%w != 0 {
		aligned += w - aligned%w
	}
	for (aligned+w)%unit != 0 {
		aligned += w
	}
	return aligned
}

// Share is one of the n encoded byte strings produced by Encode, tagged
// with its column index in the distribution matrix (spec.md §3).
type Share struct {
	ID   int
	Data []byte
}

// Encode splits and encodes secret into c.params.N shares, per the variant
// selected at construction.
func (c *Codec) Encode(secret []byte) ([]Share, error) {
	switch c.params.Variant {
	case CRSSS:
		return c.encodeCRSSS(secret)
	default:
		return c.encodeAONT(secret)
	}
}

// Decode reconstructs a secret of length secretSize from any k of the
// received shares (identified by their distribution-matrix row index).
func (c *Codec) Decode(shares []Share, secretSize int) ([]byte, error) {
	k := c.params.K()
	if len(shares) < k {
		return nil, cdserrors.New(cdserrors.KindInvalidArg, "dispersal: need at least k shares to decode")
	}
	shares = shares[:k]

	switch c.params.Variant {
	case CRSSS:
		return c.decodeCRSSS(shares, secretSize)
	default:
		return c.decodeAONT(shares, secretSize)
	}
}

func padZero(data []byte, length int) []byte {
	if len(data) == length {
		return data
	}
	out := make([]byte, length)
	copy(out, data)
	return out
}

func xorInto(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
