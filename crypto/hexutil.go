package crypto

import (
	"encoding/hex"

	"github.com/nostrc/gostr/errkind"
)

// IsLowerHex reports whether s is non-empty lower-case hex.
func IsLowerHex(s string) bool {
	if len(s) == 0 || len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}

// Decode32 decodes a 64-character lower-case hex string into 32 bytes.
func Decode32(s string) ([]byte, error) {
	if len(s) != 64 || !IsLowerHex(s) {
		return nil, errkind.Newf(errkind.InvalidArgument, "expected 64 lower-case hex characters, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.InvalidArgument, "invalid hex")
	}

	return b, nil
}
