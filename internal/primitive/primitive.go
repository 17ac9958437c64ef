// Package primitive implements the CryptoPrimitive collaborator from
// spec.md §4.2: a keyless hash and a padding-free, fixed-IV block cipher used
// by the dispersal codecs in internal/dispersal to derive convergent keys
// and to run the AONT/CAONT transform deterministically.
//
// This intentionally drops restic's internal/crypto authenticated-encryption
// scheme (AES-CTR + Poly1305 MAC, scrypt-derived keys): that scheme exists
// to protect a repository under a user password, which has no place here —
// convergent dispersal needs a keyed, deterministic, unauthenticated cipher
// of exactly the plaintext's length. The AES usage idiom (aes.NewCipher,
// explicit IV handling) is kept from restic's crypto package; the mode and
// contract are rewritten for spec.md.
package primitive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"

	"github.com/chintran27/cdstore-go/internal/cdserrors"
)

// Security selects the hash/cipher strength, matching the client CLI's
// HIGH/LOW flag (spec.md §6).
type Security int

const (
	// High selects SHA-256 hashing and AES-256 encryption.
	High Security = iota
	// Low selects MD5 hashing and AES-128 encryption.
	Low
	// SHA1Mode selects SHA-1 hashing (20-byte fingerprints), paired with
	// AES-128, for deployments that want smaller fingerprints than High
	// without MD5's collision weaknesses.
	SHA1Mode
)

// Primitive is the CryptoPrimitive contract: hash(data) and
// encrypt(data, key) with no padding, IV fixed at the all-zero block.
// Each goroutine must use its own Primitive instance (or share a
// stateless one — New returns a value with no mutable fields).
type Primitive struct {
	sec Security
}

// New returns a Primitive configured for the given security level.
func New(sec Security) *Primitive {
	return &Primitive{sec: sec}
}

// HashSize returns the digest size in bytes: 32 for High, 20 for SHA1Mode,
// 16 for Low.
func (p *Primitive) HashSize() int {
	switch p.sec {
	case High:
		return sha256.Size
	case SHA1Mode:
		return sha1.Size
	default:
		return md5.Size
	}
}

// KeySize returns the cipher key size in bytes: 32 for High, 16 otherwise.
func (p *Primitive) KeySize() int {
	if p.sec == High {
		return 32
	}
	return 16
}

// BlockSize returns the cipher block size in bytes (always 16, AES).
func (p *Primitive) BlockSize() int {
	return aes.BlockSize
}

// Hash returns the keyless digest of data, sized per HashSize.
func (p *Primitive) Hash(data []byte) []byte {
	switch p.sec {
	case High:
		sum := sha256.Sum256(data)
		return sum[:]
	case SHA1Mode:
		sum := sha1.Sum(data)
		return sum[:]
	default:
		sum := md5.Sum(data)
		return sum[:]
	}
}

// Encrypt implements the literal spec.md §4.2 contract: a keyed,
// deterministic, block-aligned cipher with IV=0 and no padding — used by
// the AONT transform, which must produce the identical ciphertext for
// identical (plaintext, key) pairs across independent encoder workers
// (the convergence property, spec.md §8 property 3). Internally this runs
// AES in CBC mode with an all-zero IV, matching the original
// CryptoPrimitive's EVP_aes_256_cbc/EVP_aes_128_cbc choice: CBC's chaining
// is what stops two AONT words built from mostly-zero plaintext blocks
// (intToWord's zero-padded counters, CAONT-RS's periodic constantBlock)
// from encrypting to identical ciphertext the way independent ECB blocks
// would. It fails if len(plaintext) is not a multiple of BlockSize.
func (p *Primitive) Encrypt(plaintext, key []byte) ([]byte, error) {
	if len(key) != p.KeySize() {
		return nil, cdserrors.New(cdserrors.KindInvalidArg, "primitive: wrong key size")
	}
	if len(plaintext)%p.BlockSize() != 0 {
		return nil, cdserrors.New(cdserrors.KindBadInput, "primitive: plaintext not block-aligned")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, cdserrors.Wrap(cdserrors.KindFatal, err, "primitive: aes.NewCipher")
	}
	iv := make([]byte, p.BlockSize())
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
	return out, nil
}
