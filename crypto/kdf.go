package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"hash"
	"io"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"

	"github.com/nostrc/gostr/errkind"
)

const (
	// MinScryptLogN and MaxScryptLogN bound the accepted scrypt work factor.
	MinScryptLogN = 10
	MaxScryptLogN = 22
)

// HKDFExtract runs RFC 5869 HKDF-Extract with SHA-256.
func HKDFExtract(salt, ikm []byte) []byte {
	return hkdf.Extract(sha256.New, ikm, salt)
}

// HKDFExpand runs RFC 5869 HKDF-Expand with SHA-256, producing length bytes.
func HKDFExpand(prk, info []byte, length int) ([]byte, error) {
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, info), out); err != nil {
		Zero(out)

		return nil, errkind.Wrap(err, errkind.Crypto, "hkdf expand failed")
	}

	return out, nil
}

// HMACSHA256 computes HMAC-SHA256 over the concatenation of the segments.
func HMACSHA256(key []byte, segments ...[]byte) []byte {
	mac := hmac.New(func() hash.Hash { return sha256.New() }, key)
	for _, seg := range segments {
		mac.Write(seg)
	}

	return mac.Sum(nil)
}

// ChaCha20XOR applies the IETF ChaCha20 keystream to src, writing into dst.
// dst and src may alias.
func ChaCha20XOR(key32, nonce12, dst, src []byte) error {
	if len(key32) != chacha20.KeySize {
		return errkind.Newf(errkind.InvalidArgument, "chacha20 key must be %d bytes, got %d", chacha20.KeySize, len(key32))
	}
	if len(nonce12) != chacha20.NonceSize {
		return errkind.Newf(errkind.InvalidArgument, "chacha20 nonce must be %d bytes, got %d", chacha20.NonceSize, len(nonce12))
	}
	c, err := chacha20.NewUnauthenticatedCipher(key32, nonce12)
	if err != nil {
		return errkind.Wrap(err, errkind.Crypto, "chacha20 init failed")
	}
	c.XORKeyStream(dst, src)

	return nil
}

// ScryptKey derives a 32-byte key with N=1<<logN, r=8, p=1.
func ScryptKey(password, salt []byte, logN int) ([]byte, error) {
	if logN < MinScryptLogN || logN > MaxScryptLogN {
		return nil, errkind.Newf(errkind.InvalidArgument, "scrypt log_n %d outside [%d, %d]", logN, MinScryptLogN, MaxScryptLogN)
	}
	key, err := scrypt.Key(password, salt, 1<<logN, 8, 1, 32)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Crypto, "scrypt derivation failed")
	}

	return key, nil
}

// ConstantTimeEq compares a and b without early exit on mismatch.
func ConstantTimeEq(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}

	return subtle.ConstantTimeCompare(a, b) == 1
}
