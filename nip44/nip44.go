// Package nip44 implements the NIP-44 v2 payload codec: conversation-key
// derivation, padded ChaCha20 + HMAC-SHA256 encryption and base64 framing.
package nip44

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"io"
	"math/bits"

	"github.com/cockroachdb/errors"

	"github.com/nostrc/gostr/crypto"
	"github.com/nostrc/gostr/errkind"
)

const (
	version byte = 2

	// MinPlaintextSize and MaxPlaintextSize bound the accepted plaintext.
	MinPlaintextSize = 1
	MaxPlaintextSize = 65535

	nonceSize = 32
	macSize   = 32

	minPayloadSize = 1 + nonceSize + 2 + 32 + macSize
	maxPayloadSize = 1 + nonceSize + 2 + MaxPlaintextSize + 1 + macSize
)

var (
	ErrInvalidPadding = errors.Mark(errors.New("nip44: invalid padding"), errkind.Crypto)
	ErrInvalidMac     = errors.Mark(errors.New("nip44: invalid mac"), errkind.Crypto)
	ErrInvalidVersion = errors.Mark(errors.New("nip44: unsupported version"), errkind.Crypto)
	ErrInvalidBase64  = errors.Mark(errors.New("nip44: invalid base64"), errkind.Crypto)
	ErrInvalidLength  = errors.Mark(errors.New("nip44: invalid length"), errkind.Crypto)

	conversationKeySalt = []byte("nip44-v2")
)

// ConversationKey derives the 32-byte per-peer key:
// HKDF-Extract(salt="nip44-v2", ikm=ECDH-x(sk, pk)). Callers should zero the
// result when done with the peer.
func ConversationKey(sk, pkXOnly []byte) ([]byte, error) {
	shared, err := crypto.SharedX(sk, pkXOnly)
	if err != nil {
		return nil, errors.Wrap(err, "nip44: ecdh failed")
	}
	defer crypto.Zero(shared)

	return crypto.HKDFExtract(conversationKeySalt, shared), nil
}

// Encrypt produces the base64 payload for plaintext under the conversation
// key, using a fresh random nonce.
func Encrypt(conversationKey []byte, plaintext []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errkind.Wrap(err, errkind.Crypto, "nip44: nonce generation failed")
	}

	return encrypt(conversationKey, plaintext, nonce)
}

func encrypt(conversationKey, plaintext, nonce []byte) (string, error) {
	if len(conversationKey) != 32 {
		return "", errors.Wrapf(ErrInvalidLength, "conversation key is %d bytes", len(conversationKey))
	}
	if len(plaintext) < MinPlaintextSize || len(plaintext) > MaxPlaintextSize {
		return "", errors.Wrapf(ErrInvalidLength, "plaintext is %d bytes", len(plaintext))
	}

	chachaKey, chachaNonce, hmacKey, err := messageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}
	defer crypto.Zero(chachaKey)
	defer crypto.Zero(chachaNonce)
	defer crypto.Zero(hmacKey)

	padded := pad(plaintext)
	defer crypto.Zero(padded)
	ciphertext := make([]byte, len(padded))
	if err := crypto.ChaCha20XOR(chachaKey, chachaNonce, ciphertext, padded); err != nil {
		return "", err
	}
	mac := crypto.HMACSHA256(hmacKey, nonce, ciphertext)

	payload := make([]byte, 0, 1+nonceSize+len(ciphertext)+macSize)
	payload = append(payload, version)
	payload = append(payload, nonce...)
	payload = append(payload, ciphertext...)
	payload = append(payload, mac...)

	return base64.StdEncoding.EncodeToString(payload), nil
}

// Decrypt reverses Encrypt. The MAC is checked in constant time before any
// depadding; version bytes other than 0x02 are rejected.
func Decrypt(conversationKey []byte, payload string) ([]byte, error) {
	if len(conversationKey) != 32 {
		return nil, errors.Wrapf(ErrInvalidLength, "conversation key is %d bytes", len(conversationKey))
	}
	if len(payload) > 0 && payload[0] == '#' {
		return nil, errors.Wrap(ErrInvalidVersion, "future version marker")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidBase64, err.Error())
	}
	if len(raw) < minPayloadSize || len(raw) > maxPayloadSize {
		return nil, errors.Wrapf(ErrInvalidLength, "payload is %d bytes", len(raw))
	}
	if raw[0] != version {
		return nil, errors.Wrapf(ErrInvalidVersion, "version byte 0x%02x", raw[0])
	}

	nonce := raw[1 : 1+nonceSize]
	ciphertext := raw[1+nonceSize : len(raw)-macSize]
	mac := raw[len(raw)-macSize:]

	chachaKey, chachaNonce, hmacKey, err := messageKeys(conversationKey, nonce)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(chachaKey)
	defer crypto.Zero(chachaNonce)
	defer crypto.Zero(hmacKey)

	expected := crypto.HMACSHA256(hmacKey, nonce, ciphertext)
	if !crypto.ConstantTimeEq(expected, mac) {
		return nil, ErrInvalidMac
	}

	padded := make([]byte, len(ciphertext))
	if err := crypto.ChaCha20XOR(chachaKey, chachaNonce, padded, ciphertext); err != nil {
		return nil, err
	}
	plaintext, err := unpad(padded)
	if err != nil {
		crypto.Zero(padded)

		return nil, err
	}

	return plaintext, nil
}

// messageKeys expands the conversation key into the per-message
// chacha key (32), chacha nonce (12) and hmac key (32).
func messageKeys(conversationKey, nonce []byte) (chachaKey, chachaNonce, hmacKey []byte, err error) {
	if len(nonce) != nonceSize {
		return nil, nil, nil, errors.Wrapf(ErrInvalidLength, "nonce is %d bytes", len(nonce))
	}
	okm, err := crypto.HKDFExpand(conversationKey, nonce, 76)
	if err != nil {
		return nil, nil, nil, err
	}

	return okm[0:32], okm[32:44], okm[44:76], nil
}

// calcPaddedLen is the deterministic pad schedule: 32 for short messages,
// otherwise the next multiple of a power-of-two chunk with at most 256 chunks.
func calcPaddedLen(unpaddedLen int) int {
	if unpaddedLen <= 32 {
		return 32
	}
	nextPower := 1 << bits.Len(uint(unpaddedLen-1))
	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}

	return chunk * ((unpaddedLen-1)/chunk + 1)
}

func pad(plaintext []byte) []byte {
	padded := make([]byte, 2+calcPaddedLen(len(plaintext)))
	binary.BigEndian.PutUint16(padded, uint16(len(plaintext)))
	copy(padded[2:], plaintext)

	return padded
}

func unpad(padded []byte) ([]byte, error) {
	if len(padded) < 2 {
		return nil, ErrInvalidPadding
	}
	n := int(binary.BigEndian.Uint16(padded))
	if n < MinPlaintextSize || n > len(padded)-2 || len(padded) != 2+calcPaddedLen(n) {
		return nil, ErrInvalidPadding
	}
	for _, b := range padded[2+n:] {
		if b != 0 {
			return nil, ErrInvalidPadding
		}
	}
	plaintext := make([]byte, n)
	copy(plaintext, padded[2:2+n])

	return plaintext, nil
}
