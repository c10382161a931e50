package crypto

import (
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/nostrc/gostr/errkind"
)

// Bech32Encode encodes an 8-bit payload under the given HRP with the classic
// bech32 checksum. Payloads larger than the 90-character limit are permitted,
// matching how ncryptsec/nprofile strings are produced in the wild.
func Bech32Encode(hrp string, payload []byte) (string, error) {
	if hrp == "" {
		return "", errkind.New(errkind.InvalidArgument, "bech32 hrp must not be empty")
	}
	grouped, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", errkind.Wrap(err, errkind.InvalidArgument, "bech32 payload regroup failed")
	}
	s, err := bech32.Encode(hrp, grouped)
	if err != nil {
		return "", errkind.Wrap(err, errkind.InvalidArgument, "bech32 encode failed")
	}

	return s, nil
}

// Bech32mEncode is Bech32Encode with the bech32m checksum constant.
func Bech32mEncode(hrp string, payload []byte) (string, error) {
	if hrp == "" {
		return "", errkind.New(errkind.InvalidArgument, "bech32 hrp must not be empty")
	}
	grouped, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", errkind.Wrap(err, errkind.InvalidArgument, "bech32 payload regroup failed")
	}
	s, err := bech32.EncodeM(hrp, grouped)
	if err != nil {
		return "", errkind.Wrap(err, errkind.InvalidArgument, "bech32m encode failed")
	}

	return s, nil
}

// Bech32Decode decodes a bech32 string (either checksum variant) into its HRP
// and 8-bit payload. Mixed case and checksum failures are rejected.
func Bech32Decode(s string) (hrp string, payload []byte, err error) {
	hrp, grouped, err := bech32.DecodeNoLimit(strings.TrimSpace(s))
	if err != nil {
		return "", nil, errkind.Wrap(err, errkind.InvalidArgument, "bech32 decode failed")
	}
	payload, err = bech32.ConvertBits(grouped, 5, 8, false)
	if err != nil {
		return "", nil, errkind.Wrap(err, errkind.InvalidArgument, "bech32 payload regroup failed")
	}

	return hrp, payload, nil
}
