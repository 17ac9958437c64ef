package dispersal

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
)

// encodeAONT dispatches to the package-construction rule for the selected
// AONT/CAONT variant, then runs the shared systematic-RS dispersal
// (spec.md §4.5: "the first k shares are the AONT package laid out
// column-major across k rows ... the last m shares are the RS parities").
func (c *Codec) encodeAONT(secret []byte) ([]Share, error) {
	w := c.word
	k := c.params.K()
	aligned := alignForAONT(len(secret), w, k)
	padded := padZero(secret, aligned)

	var pkg [][]byte // numWords+1 words, each w bytes
	var err error
	switch c.params.Variant {
	case AONTRS:
		pkg, err = c.buildAONTPackageRandomKey(padded)
	case OldCAONTRS:
		pkg, err = c.buildAONTPackageConvergentKey(padded)
	case CAONTRS:
		pkg, err = c.buildCAONTPackage(padded)
	default:
		err = cdserrors.New(cdserrors.KindInvalidArg, "dispersal: unknown AONT variant")
	}
	if err != nil {
		return nil, err
	}

	return c.dispersePackage(pkg)
}

// dispersePackage lays numWords+1 package words column-major across the k
// systematic shares and computes the m parity shares via the Cauchy block
// of the distribution matrix.
func (c *Codec) dispersePackage(pkg [][]byte) ([]Share, error) {
	k := c.params.K()
	w := c.word
	if len(pkg)%k != 0 {
		return nil, cdserrors.New(cdserrors.KindFatal, "dispersal: package length not divisible by k")
	}
	g := len(pkg) / k
	shareSize := g * w

	shares := make([]Share, c.params.N)
	for i := range shares {
		shares[i] = Share{ID: i, Data: make([]byte, shareSize)}
	}

	for col := 0; col < g; col++ {
		vec := pkg[col*k : (col+1)*k]
		out := c.dist.MulVector(vec, w)
		for i := 0; i < c.params.N; i++ {
			copy(shares[i].Data[col*w:(col+1)*w], out[i])
		}
	}

	return shares, nil
}

// decodeAONT reverses dispersePackage (RS-decode the package from any k
// shares) then recovers the secret per the selected variant's key rule.
func (c *Codec) decodeAONT(shares []Share, secretSize int) ([]byte, error) {
	k := c.params.K()
	w := c.word

	if len(shares[0].Data)%w != 0 {
		return nil, cdserrors.New(cdserrors.KindBadInput, "dispersal: share size not word-aligned")
	}
	g := len(shares[0].Data) / w

	ids := make([]int, k)
	for i, s := range shares {
		ids[i] = s.ID
	}
	inv, err := c.dist.Rows(ids).Invert()
	if err != nil {
		return nil, err
	}

	pkg := make([][]byte, g*k)
	for col := 0; col < g; col++ {
		vec := make([][]byte, k)
		for i, s := range shares {
			vec[i] = s.Data[col*w : (col+1)*w]
		}
		rows := inv.MulVector(vec, w)
		for j := 0; j < k; j++ {
			pkg[col*k+j] = rows[j]
		}
	}

	numWords := len(pkg) - 1
	main := make([]byte, numWords*w)
	for i := 0; i < numWords; i++ {
		copy(main[i*w:(i+1)*w], pkg[i])
	}
	tail := pkg[numWords]

	var secret []byte
	switch c.params.Variant {
	case AONTRS:
		secret, err = c.recoverAONTRandomKey(main, tail)
	case OldCAONTRS:
		secret, err = c.recoverAONTConvergentKey(main, tail)
	case CAONTRS:
		secret, err = c.recoverCAONT(main, tail)
	default:
		err = cdserrors.New(cdserrors.KindInvalidArg, "dispersal: unknown AONT variant")
	}
	if err != nil {
		return nil, err
	}

	if secretSize > len(secret) {
		return nil, cdserrors.New(cdserrors.KindBadInput, "dispersal: secretSize larger than recovered data")
	}
	return secret[:secretSize], nil
}

// intToWord encodes i into a w-byte block (big-endian in the first 8 bytes,
// zero elsewhere) suitable as input to the block cipher, per the
// AONT[i] = secret[i] XOR encrypt(int_to_word(i), K) rule (spec.md §4.5).
// Putting the counter in the first cipher block makes every block of the
// CBC keystream differ between word indices.
func intToWord(i, w int) []byte {
	buf := make([]byte, w)
	binary.BigEndian.PutUint64(buf[:8], uint64(i))
	return buf
}

// buildAONTPackageRandomKey implements AONT-RS encode: K is drawn from a
// cryptographic RNG (decision D3 in DESIGN.md — never a wall-clock seed).
func (c *Codec) buildAONTPackageRandomKey(padded []byte) ([][]byte, error) {
	w := c.word
	key := make([]byte, c.prim.KeySize())
	if _, err := rand.Read(key); err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindFatal, err, "dispersal: reading random AONT key")
	}
	return c.buildAONTPackage(padded, key)
}

// buildAONTPackageConvergentKey implements old CAONT-RS encode: K =
// hash(alignedSecret), making the transform convergent (spec.md §4.5).
func (c *Codec) buildAONTPackageConvergentKey(padded []byte) ([][]byte, error) {
	key := c.prim.Hash(padded)
	return c.buildAONTPackage(padded, key[:c.prim.KeySize()])
}

// buildAONTPackage is the shared per-word AONT transform used by both
// AONT-RS and old CAONT-RS: AONT[i] = secret[i] XOR encrypt(int_to_word(i), K);
// AONT[last] = K XOR hash(AONT[0..last-1]).
func (c *Codec) buildAONTPackage(padded, key []byte) ([][]byte, error) {
	w := c.word
	numWords := len(padded) / w
	pkg := make([][]byte, numWords+1)

	for i := 0; i < numWords; i++ {
		ks, err := c.prim.Encrypt(intToWord(i, w), key)
		if err != nil {
			return nil, err
		}
		pkg[i] = xorBytes(padded[i*w:(i+1)*w], ks)
	}

	main := make([]byte, numWords*w)
	for i := 0; i < numWords; i++ {
		copy(main[i*w:(i+1)*w], pkg[i])
	}
	tail := xorBytes(padZero(key, w), c.prim.Hash(main))
	pkg[numWords] = tail

	return pkg, nil
}

// recoverAONTRandomKey implements AONT-RS decode: K = AONT[last] XOR
// hash(AONT[0..last-1]); no further verification (the key was random, not
// derived from the secret, so there is nothing to check it against).
func (c *Codec) recoverAONTRandomKey(main, tail []byte) ([]byte, error) {
	key := xorBytes(tail, c.prim.Hash(main))
	return c.recoverPerWordSecret(main, key[:c.prim.KeySize()])
}

// recoverAONTConvergentKey implements old CAONT-RS decode: recovers K the
// same way, then verifies K == hash(recoveredSecret), failing INTEGRITY on
// mismatch.
func (c *Codec) recoverAONTConvergentKey(main, tail []byte) ([]byte, error) {
	key := xorBytes(tail, c.prim.Hash(main))
	secret, err := c.recoverPerWordSecret(main, key[:c.prim.KeySize()])
	if err != nil {
		return nil, err
	}
	if !bytesEqual(c.prim.Hash(secret), padZero(key, c.prim.HashSize())[:c.prim.HashSize()]) {
		return nil, cdserrors.New(cdserrors.KindIntegrity, "dispersal: old CAONT-RS key/hash mismatch")
	}
	return secret, nil
}

func (c *Codec) recoverPerWordSecret(main, key []byte) ([]byte, error) {
	w := c.word
	numWords := len(main) / w
	secret := make([]byte, len(main))
	for i := 0; i < numWords; i++ {
		ks, err := c.prim.Encrypt(intToWord(i, w), key)
		if err != nil {
			return nil, err
		}
		copy(secret[i*w:(i+1)*w], xorBytes(main[i*w:(i+1)*w], ks))
	}
	return secret, nil
}
