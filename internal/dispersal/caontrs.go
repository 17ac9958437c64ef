package dispersal

import "github.com/chintran27/cdstore-go/internal/cdserrors"

// constantBlock returns a deterministic per-length filler block,
// constantBlock[i] = i mod 256, used by CAONT-RS in place of per-word
// block-cipher calls (spec.md §4.5's primary CAONT-RS variant).
func constantBlock(length int) []byte {
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = byte(i % 256)
	}
	return buf
}

// buildCAONTPackage implements the primary CAONT-RS encode:
//
//	K    = hash(alignedSecret)
//	C    = encrypt(constantBlock[0..alignedS-1], K)
//	main = alignedSecret XOR C
//	tail = K XOR hash(main)
func (c *Codec) buildCAONTPackage(padded []byte) ([][]byte, error) {
	w := c.word
	key := c.prim.Hash(padded)[:c.prim.KeySize()]

	ciphertext, err := c.prim.Encrypt(constantBlock(len(padded)), key)
	if err != nil {
		return nil, err
	}
	main := xorBytes(padded, ciphertext)
	tail := xorBytes(padZero(key, w), c.prim.Hash(main))

	numWords := len(main) / w
	pkg := make([][]byte, numWords+1)
	for i := 0; i < numWords; i++ {
		pkg[i] = main[i*w : (i+1)*w]
	}
	pkg[numWords] = tail

	return pkg, nil
}

// recoverCAONT implements the primary CAONT-RS decode: recompute K' from
// the recovered main/tail, invert the keystream, and verify K' ==
// hash(recoveredSecret) (spec.md §4.5), failing INTEGRITY otherwise.
func (c *Codec) recoverCAONT(main, tail []byte) ([]byte, error) {
	key := xorBytes(tail, c.prim.Hash(main))[:c.prim.KeySize()]

	ciphertext, err := c.prim.Encrypt(constantBlock(len(main)), key)
	if err != nil {
		return nil, err
	}
	secret := xorBytes(main, ciphertext)

	if !bytesEqual(c.prim.Hash(secret)[:c.prim.KeySize()], key) {
		return nil, cdserrors.New(cdserrors.KindIntegrity, "dispersal: CAONT-RS key/hash mismatch")
	}
	return secret, nil
}
