package nip44

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/nostrc/gostr/crypto"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)

	return b
}

func TestOfficialVector(t *testing.T) {
	t.Parallel()
	sk1 := mustHex(t, "0000000000000000000000000000000000000000000000000000000000000001")
	sk2 := mustHex(t, "0000000000000000000000000000000000000000000000000000000000000002")
	pk2, err := crypto.PublicKey(sk2)
	require.NoError(t, err)

	ck, err := ConversationKey(sk1, pk2)
	require.NoError(t, err)
	require.Equal(t, "c41c775356fd92eadc63ff5a0dc1da211b268cbea22316767095b2871ea1412d", hex.EncodeToString(ck))

	nonce := mustHex(t, "0000000000000000000000000000000000000000000000000000000000000001")
	payload, err := encrypt(ck, []byte("a"), nonce)
	require.NoError(t, err)
	require.Equal(t,
		"AgAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABee0G5VSK0/9YypIObAtDKfYEAjD35uVkHyB0F4DwrcNaCXlCWZKaArsGrY6M9wnuTMxWfp1RTN9Xga8no+kF5Vsb",
		payload)

	plaintext, err := Decrypt(ck, payload)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), plaintext)
}

func TestConversationKeyIsSymmetric(t *testing.T) {
	t.Parallel()
	skA, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	skB, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	pkA, err := crypto.PublicKey(skA)
	require.NoError(t, err)
	pkB, err := crypto.PublicKey(skB)
	require.NoError(t, err)

	ckAB, err := ConversationKey(skA, pkB)
	require.NoError(t, err)
	ckBA, err := ConversationKey(skB, pkA)
	require.NoError(t, err)
	require.Equal(t, ckAB, ckBA)
}

func TestRoundTripAcrossLengths(t *testing.T) {
	t.Parallel()
	ck := make([]byte, 32)
	_, err := rand.Read(ck)
	require.NoError(t, err)

	for _, n := range []int{1, 2, 31, 32, 33, 37, 64, 65, 100, 255, 256, 257, 1000, 65535} {
		plaintext := bytes.Repeat([]byte{0xab}, n)
		payload, err := Encrypt(ck, plaintext)
		require.NoError(t, err, "len %d", n)

		got, err := Decrypt(ck, payload)
		require.NoError(t, err, "len %d", n)
		require.Equal(t, plaintext, got, "len %d", n)
	}
}

func TestPadSchedule(t *testing.T) {
	t.Parallel()
	cases := map[int]int{
		1: 32, 16: 32, 32: 32,
		33: 64, 37: 64, 45: 64, 49: 64, 64: 64,
		65: 96, 100: 128, 111: 128, 200: 224, 250: 256,
		257: 320, 320: 320, 384: 384, 400: 448, 500: 512,
		1000: 1024, 65535: 65536,
	}
	for in, want := range cases {
		require.Equal(t, want, calcPaddedLen(in), "calcPaddedLen(%d)", in)
	}
}

func TestEncryptRejectsBadLengths(t *testing.T) {
	t.Parallel()
	ck := make([]byte, 32)

	_, err := Encrypt(ck, nil)
	require.True(t, errors.Is(err, ErrInvalidLength))

	_, err = Encrypt(ck, make([]byte, MaxPlaintextSize+1))
	require.True(t, errors.Is(err, ErrInvalidLength))

	_, err = Encrypt(ck[:31], []byte("x"))
	require.True(t, errors.Is(err, ErrInvalidLength))
}

func TestDecryptFailureModes(t *testing.T) {
	t.Parallel()
	ck := make([]byte, 32)
	_, err := rand.Read(ck)
	require.NoError(t, err)
	payload, err := Encrypt(ck, []byte("hello"))
	require.NoError(t, err)

	t.Run("bad base64", func(t *testing.T) {
		t.Parallel()
		_, err := Decrypt(ck, "!!!not-base64!!!")
		require.True(t, errors.Is(err, ErrInvalidBase64))
	})

	t.Run("future version marker", func(t *testing.T) {
		t.Parallel()
		_, err := Decrypt(ck, "#AgAAA")
		require.True(t, errors.Is(err, ErrInvalidVersion))
	})

	t.Run("version byte v1", func(t *testing.T) {
		t.Parallel()
		raw, decErr := decodeB64(payload)
		require.NoError(t, decErr)
		raw[0] = 1
		_, err := Decrypt(ck, encodeB64(raw))
		require.True(t, errors.Is(err, ErrInvalidVersion))
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()
		_, err := Decrypt(ck, "AgAA")
		require.True(t, errors.Is(err, ErrInvalidLength))
	})

	t.Run("flipped mac", func(t *testing.T) {
		t.Parallel()
		raw, decErr := decodeB64(payload)
		require.NoError(t, decErr)
		raw[len(raw)-1] ^= 0xff
		_, err := Decrypt(ck, encodeB64(raw))
		require.True(t, errors.Is(err, ErrInvalidMac))
	})

	t.Run("flipped ciphertext", func(t *testing.T) {
		t.Parallel()
		raw, decErr := decodeB64(payload)
		require.NoError(t, decErr)
		raw[40] ^= 0xff
		_, err := Decrypt(ck, encodeB64(raw))
		require.True(t, errors.Is(err, ErrInvalidMac))
	})

	t.Run("wrong key", func(t *testing.T) {
		t.Parallel()
		other := make([]byte, 32)
		_, err := Decrypt(other, payload)
		require.True(t, errors.Is(err, ErrInvalidMac))
	})
}

func TestUnpadRejectsNonZeroTrailer(t *testing.T) {
	t.Parallel()
	padded := pad([]byte("abc"))
	padded[len(padded)-1] = 1
	_, err := unpad(padded)
	require.True(t, errors.Is(err, ErrInvalidPadding))

	_, err = unpad([]byte{0})
	require.True(t, errors.Is(err, ErrInvalidPadding))

	zeroLen := make([]byte, 34)
	_, err = unpad(zeroLen)
	require.True(t, errors.Is(err, ErrInvalidPadding))
}

func decodeB64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func encodeB64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
