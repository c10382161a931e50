// Package nip49 implements password-based encrypted private-key export:
// scrypt key derivation, XChaCha20-Poly1305 and the ncryptsec1 Bech32 form.
package nip49

import (
	"crypto/rand"
	"io"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/text/unicode/norm"

	"github.com/nostrc/gostr/crypto"
	"github.com/nostrc/gostr/errkind"
)

// Security is the 3-state key-handling flag. It is authenticated as
// associated data but not encrypted, so it stays visible in the payload.
type Security byte

const (
	KnownSecure   Security = 0x00
	KnownInsecure Security = 0x01
	Unknown       Security = 0x02
)

const (
	// HRP is the Bech32 human-readable prefix of encrypted keys.
	HRP = "ncryptsec"

	version byte = 0x02

	saltSize    = 16
	nonceSize   = chacha20poly1305.NonceSizeX
	payloadSize = 1 + 1 + saltSize + nonceSize + 1 + 32 + 16
)

var (
	ErrWrongPassword = errors.Mark(errors.New("nip49: wrong password"), errkind.Crypto)
	ErrMalformed     = errors.Mark(errors.New("nip49: malformed payload"), errkind.InvalidArgument)
)

// Encrypt seals a 32-byte private key under the NFKC-normalized password and
// returns the ncryptsec1 string.
func Encrypt(privkey []byte, password string, logN int, sec Security) (string, error) {
	if len(privkey) != 32 {
		return "", errkind.Newf(errkind.InvalidArgument, "nip49: private key must be 32 bytes, got %d", len(privkey))
	}
	if sec > Unknown {
		return "", errkind.Newf(errkind.InvalidArgument, "nip49: unknown security byte 0x%02x", byte(sec))
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", errkind.Wrap(err, errkind.Crypto, "nip49: salt generation failed")
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errkind.Wrap(err, errkind.Crypto, "nip49: nonce generation failed")
	}

	key, err := deriveKey(password, salt, logN)
	if err != nil {
		return "", err
	}
	defer crypto.Zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", errkind.Wrap(err, errkind.Crypto, "nip49: aead init failed")
	}

	payload := make([]byte, 0, payloadSize)
	payload = append(payload, version, byte(logN))
	payload = append(payload, salt...)
	payload = append(payload, nonce...)
	payload = append(payload, byte(sec))
	payload = aead.Seal(payload, nonce, privkey, []byte{byte(sec)})

	return crypto.Bech32Encode(HRP, payload)
}

// Decrypt opens an ncryptsec1 string, distinguishing a wrong password
// (AEAD tag mismatch) from a structurally malformed payload.
func Decrypt(code, password string) (privkey []byte, sec Security, logN int, err error) {
	hrp, payload, err := crypto.Bech32Decode(code)
	if err != nil {
		return nil, 0, 0, errors.Mark(errors.Wrap(ErrMalformed, err.Error()), errkind.InvalidArgument)
	}
	if hrp != HRP {
		return nil, 0, 0, errors.Wrapf(ErrMalformed, "hrp %q", hrp)
	}
	if len(payload) != payloadSize {
		return nil, 0, 0, errors.Wrapf(ErrMalformed, "payload is %d bytes, want %d", len(payload), payloadSize)
	}
	if payload[0] != version {
		return nil, 0, 0, errors.Wrapf(ErrMalformed, "version byte 0x%02x", payload[0])
	}
	logN = int(payload[1])
	salt := payload[2 : 2+saltSize]
	nonce := payload[2+saltSize : 2+saltSize+nonceSize]
	adByte := payload[2+saltSize+nonceSize]
	ciphertext := payload[2+saltSize+nonceSize+1:]
	if adByte > byte(Unknown) {
		return nil, 0, 0, errors.Wrapf(ErrMalformed, "security byte 0x%02x", adByte)
	}

	key, err := deriveKey(password, salt, logN)
	if err != nil {
		return nil, 0, 0, errors.Mark(errors.Wrap(ErrMalformed, err.Error()), errkind.InvalidArgument)
	}
	defer crypto.Zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, 0, 0, errkind.Wrap(err, errkind.Crypto, "nip49: aead init failed")
	}
	privkey, err = aead.Open(nil, nonce, ciphertext, []byte{adByte})
	if err != nil {
		return nil, 0, 0, ErrWrongPassword
	}

	return privkey, Security(adByte), logN, nil
}

func deriveKey(password string, salt []byte, logN int) ([]byte, error) {
	normalized := []byte(norm.NFKC.String(password))
	defer crypto.Zero(normalized)

	return crypto.ScryptKey(normalized, salt, logN)
}
