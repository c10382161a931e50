// Package crypto provides the primitives every other component builds on:
// BIP-340 Schnorr keys and signatures, x-only ECDH, the KDF/MAC/cipher set
// used by NIP-44 and NIP-49, Bech32 codecs and secure-buffer scrubbing.
package crypto

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/cockroachdb/errors"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/nostrc/gostr/errkind"
)

const (
	// KeyLen is the byte length of private keys and x-only public keys.
	KeyLen = 32
	// SigLen is the byte length of a BIP-340 signature.
	SigLen = 64
)

// GeneratePrivateKey returns a fresh 32-byte secp256k1 private key,
// uniform in [1, n-1]. It fails only if the system RNG fails.
func GeneratePrivateKey() ([]byte, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Crypto, "private key generation failed")
	}
	defer priv.Zero()

	return priv.Serialize(), nil
}

// PublicKey derives the 32-byte x-only public key from sk per BIP-340.
func PublicKey(sk []byte) ([]byte, error) {
	if len(sk) != KeyLen {
		return nil, errkind.Newf(errkind.InvalidArgument, "private key must be %d bytes, got %d", KeyLen, len(sk))
	}
	priv, pub := btcec.PrivKeyFromBytes(sk)
	defer priv.Zero()

	return schnorr.SerializePubKey(pub), nil
}

// Sign produces a 64-byte BIP-340 signature over a 32-byte message.
func Sign(sk, msg32 []byte) ([]byte, error) {
	if len(sk) != KeyLen {
		return nil, errkind.Newf(errkind.InvalidArgument, "private key must be %d bytes, got %d", KeyLen, len(sk))
	}
	if len(msg32) != 32 {
		return nil, errkind.Newf(errkind.InvalidArgument, "message must be 32 bytes, got %d", len(msg32))
	}
	priv, _ := btcec.PrivKeyFromBytes(sk)
	defer priv.Zero()
	sig, err := schnorr.Sign(priv, msg32)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.Crypto, "schnorr sign failed")
	}

	return sig.Serialize(), nil
}

// Verify checks a 64-byte BIP-340 signature against an x-only public key.
func Verify(pk, msg32, sig []byte) bool {
	if len(pk) != KeyLen || len(msg32) != 32 || len(sig) != SigLen {
		return false
	}
	pub, err := schnorr.ParsePubKey(pk)
	if err != nil {
		return false
	}
	s, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false
	}

	return s.Verify(msg32, pub)
}

// SharedX lifts the x-only public key to its even-Y point, multiplies by sk
// and returns the 32-byte x-coordinate of the result.
func SharedX(sk, pkXOnly []byte) ([]byte, error) {
	if len(sk) != KeyLen {
		return nil, errkind.Newf(errkind.InvalidArgument, "private key must be %d bytes, got %d", KeyLen, len(sk))
	}
	if len(pkXOnly) != KeyLen {
		return nil, errkind.Newf(errkind.InvalidArgument, "public key must be %d bytes, got %d", KeyLen, len(pkXOnly))
	}
	compressed := make([]byte, 0, KeyLen+1)
	compressed = append(compressed, secp256k1.PubKeyFormatCompressedEven)
	compressed = append(compressed, pkXOnly...)
	pub, err := secp256k1.ParsePubKey(compressed)
	if err != nil {
		return nil, errors.Mark(errkind.Wrap(err, errkind.Crypto, "public key is not on the curve"), errkind.InvalidArgument)
	}
	priv := secp256k1.PrivKeyFromBytes(sk)
	defer priv.Zero()

	return secp256k1.GenerateSharedSecret(priv, pub), nil
}
