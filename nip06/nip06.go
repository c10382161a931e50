// Package nip06 derives nostr keys from BIP-39 mnemonics along the
// m/44'/1237'/account'/0/0 path.
package nip06

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/cockroachdb/errors"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"

	"github.com/nostrc/gostr/crypto"
	"github.com/nostrc/gostr/errkind"
)

const hardened = uint32(0x80000000)

// derivationPath for nostr accounts, per SLIP-44 coin type 1237.
func derivationPath(account uint32) []uint32 {
	return []uint32{44 | hardened, 1237 | hardened, account | hardened, 0, 0}
}

// GenerateMnemonic produces a fresh English mnemonic of the given strength
// in bits (128 for 12 words, 256 for 24).
func GenerateMnemonic(bits int) (string, error) {
	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", errkind.Wrap(err, errkind.InvalidArgument, "entropy strength")
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", errors.Wrap(err, "building mnemonic")
	}

	return mnemonic, nil
}

// ValidateMnemonic reports whether the phrase is a well-formed English
// mnemonic with a valid checksum.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(norm.NFKD.String(mnemonic))
}

// Seed stretches a mnemonic into a 64-byte BIP-39 seed. Both phrase and
// passphrase are NFKD-normalized before hashing.
func Seed(mnemonic, passphrase string) []byte {
	password := norm.NFKD.String(mnemonic)
	salt := "mnemonic" + norm.NFKD.String(passphrase)

	return pbkdf2.Key([]byte(password), []byte(salt), 2048, 64, sha512.New)
}

// PrivateKey derives the account's nostr private key from a mnemonic.
func PrivateKey(mnemonic, passphrase string, account uint32) ([]byte, error) {
	if !ValidateMnemonic(mnemonic) {
		return nil, errkind.New(errkind.InvalidArgument, "bad mnemonic")
	}

	return PrivateKeyFromSeed(Seed(mnemonic, passphrase), account)
}

// PrivateKeyFromSeed walks the BIP-32 derivation path over a 64-byte seed.
func PrivateKeyFromSeed(seed []byte, account uint32) ([]byte, error) {
	if len(seed) != 64 {
		return nil, errkind.Newf(errkind.InvalidArgument, "seed is %d bytes, need 64", len(seed))
	}
	key, chainCode := masterKey(seed)
	defer crypto.Zero(chainCode)
	for _, index := range derivationPath(account) {
		next, nextChain, err := deriveChild(key, chainCode, index)
		crypto.Zero(key)
		crypto.Zero(chainCode)
		if err != nil {
			return nil, err
		}
		key, chainCode = next, nextChain
	}

	return key, nil
}

func masterKey(seed []byte) (key, chainCode []byte) {
	mac := hmac.New(sha512.New, []byte("Bitcoin seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)

	return sum[:32], sum[32:]
}

func deriveChild(key, chainCode []byte, index uint32) (childKey, childChain []byte, err error) {
	mac := hmac.New(sha512.New, chainCode)
	if index >= hardened {
		mac.Write([]byte{0})
		mac.Write(key)
	} else {
		priv, _ := btcec.PrivKeyFromBytes(key)
		mac.Write(priv.PubKey().SerializeCompressed())
		priv.Zero()
	}
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], index)
	mac.Write(idx[:])
	sum := mac.Sum(nil)

	il := new(big.Int).SetBytes(sum[:32])
	if il.Cmp(btcec.S256().N) >= 0 {
		return nil, nil, errkind.New(errkind.Crypto, "derived key is out of range")
	}
	il.Add(il, new(big.Int).SetBytes(key))
	il.Mod(il, btcec.S256().N)
	if il.Sign() == 0 {
		return nil, nil, errkind.New(errkind.Crypto, "derived key is zero")
	}
	childKey = make([]byte, 32)
	il.FillBytes(childKey)

	return childKey, sum[32:], nil
}
