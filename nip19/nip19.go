// Package nip19 encodes and decodes the Bech32 pointer forms (npub, nsec,
// note, nprofile, nevent, naddr) and nostr: URIs.
package nip19

import (
	"encoding/binary"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/nostrc/gostr/crypto"
	"github.com/nostrc/gostr/errkind"
)

// TLV types of the composite pointer forms; kind is big-endian u32.
const (
	tlvSpecial byte = 0
	tlvRelay   byte = 1
	tlvAuthor  byte = 2
	tlvKind    byte = 3
)

type (
	// Pointer is the decoded form of any NIP-19 string.
	Pointer interface {
		Encode() (string, error)
	}

	PubKey string

	SecKey string

	Note string

	Profile struct {
		PubKey string
		Relays []string
	}

	Event struct {
		ID     string
		Relays []string
		Author string
		Kind   *int
	}

	Entity struct {
		Identifier string
		PubKey     string
		Kind       int
		Relays     []string
	}
)

// EncodePub encodes a 64-char hex public key as npub.
func EncodePub(pubkeyHex string) (string, error) {
	return encode32("npub", pubkeyHex)
}

// EncodeSec encodes a 64-char hex private key as nsec.
func EncodeSec(skHex string) (string, error) {
	return encode32("nsec", skHex)
}

// EncodeNote encodes a 64-char hex event id as note.
func EncodeNote(idHex string) (string, error) {
	return encode32("note", idHex)
}

func encode32(hrp, h string) (string, error) {
	b, err := crypto.Decode32(h)
	if err != nil {
		return "", errors.Wrapf(err, "%v payload", hrp)
	}

	return crypto.Bech32Encode(hrp, b)
}

func (p PubKey) Encode() (string, error) { return EncodePub(string(p)) }
func (s SecKey) Encode() (string, error) { return EncodeSec(string(s)) }
func (n Note) Encode() (string, error)   { return EncodeNote(string(n)) }

func (p *Profile) Encode() (string, error) {
	pk, err := crypto.Decode32(p.PubKey)
	if err != nil {
		return "", errors.Wrap(err, "nprofile pubkey")
	}
	var tlv []byte
	tlv = appendTLV(tlv, tlvSpecial, pk)
	for _, relay := range p.Relays {
		tlv = appendTLV(tlv, tlvRelay, []byte(relay))
	}

	return crypto.Bech32Encode("nprofile", tlv)
}

func (e *Event) Encode() (string, error) {
	id, err := crypto.Decode32(e.ID)
	if err != nil {
		return "", errors.Wrap(err, "nevent id")
	}
	var tlv []byte
	tlv = appendTLV(tlv, tlvSpecial, id)
	for _, relay := range e.Relays {
		tlv = appendTLV(tlv, tlvRelay, []byte(relay))
	}
	if e.Author != "" {
		author, err := crypto.Decode32(e.Author)
		if err != nil {
			return "", errors.Wrap(err, "nevent author")
		}
		tlv = appendTLV(tlv, tlvAuthor, author)
	}
	if e.Kind != nil {
		var kind [4]byte
		binary.BigEndian.PutUint32(kind[:], uint32(*e.Kind))
		tlv = appendTLV(tlv, tlvKind, kind[:])
	}

	return crypto.Bech32Encode("nevent", tlv)
}

func (a *Entity) Encode() (string, error) {
	pk, err := crypto.Decode32(a.PubKey)
	if err != nil {
		return "", errors.Wrap(err, "naddr author")
	}
	var tlv []byte
	tlv = appendTLV(tlv, tlvSpecial, []byte(a.Identifier))
	for _, relay := range a.Relays {
		tlv = appendTLV(tlv, tlvRelay, []byte(relay))
	}
	tlv = appendTLV(tlv, tlvAuthor, pk)
	var kind [4]byte
	binary.BigEndian.PutUint32(kind[:], uint32(a.Kind))
	tlv = appendTLV(tlv, tlvKind, kind[:])

	return crypto.Bech32Encode("naddr", tlv)
}

// Decode parses any supported bech32 pointer into its Pointer variant.
func Decode(code string) (Pointer, error) {
	hrp, payload, err := crypto.Bech32Decode(code)
	if err != nil {
		return nil, err
	}
	switch hrp {
	case "npub":
		if len(payload) != 32 {
			return nil, errkind.Newf(errkind.InvalidArgument, "npub payload is %d bytes", len(payload))
		}

		return PubKey(hex.EncodeToString(payload)), nil
	case "nsec":
		if len(payload) != 32 {
			return nil, errkind.Newf(errkind.InvalidArgument, "nsec payload is %d bytes", len(payload))
		}

		return SecKey(hex.EncodeToString(payload)), nil
	case "note":
		if len(payload) != 32 {
			return nil, errkind.Newf(errkind.InvalidArgument, "note payload is %d bytes", len(payload))
		}

		return Note(hex.EncodeToString(payload)), nil
	case "nprofile":
		return decodeProfile(payload)
	case "nevent":
		return decodeEvent(payload)
	case "naddr":
		return decodeEntity(payload)
	default:
		return nil, errkind.Newf(errkind.InvalidArgument, "unsupported hrp %q", hrp)
	}
}

// ParseURI accepts a NIP-21 nostr: URI (percent-encoding allowed) and
// decodes the wrapped pointer. nsec is rejected in URIs.
func ParseURI(uri string) (Pointer, error) {
	unescaped, err := url.PathUnescape(strings.TrimSpace(uri))
	if err != nil {
		return nil, errkind.Wrap(err, errkind.InvalidArgument, "bad percent-encoding")
	}
	code, ok := strings.CutPrefix(unescaped, "nostr:")
	if !ok {
		return nil, errkind.New(errkind.InvalidArgument, `missing "nostr:" scheme`)
	}
	code = strings.TrimPrefix(code, "//")
	p, err := Decode(code)
	if err != nil {
		return nil, err
	}
	if _, isSec := p.(SecKey); isSec {
		return nil, errkind.New(errkind.InvalidArgument, "nsec is not allowed in nostr: uris")
	}

	return p, nil
}

func appendTLV(tlv []byte, typ byte, value []byte) []byte {
	tlv = append(tlv, typ, byte(len(value)))

	return append(tlv, value...)
}

// iterTLV walks the length-prefixed stream; unknown types are passed through
// to the callback so callers can skip them, keeping round trips lossless for
// future extensions.
func iterTLV(payload []byte, visit func(typ byte, value []byte) error) error {
	for len(payload) > 0 {
		if len(payload) < 2 {
			return errkind.New(errkind.InvalidArgument, "truncated tlv header")
		}
		typ, length := payload[0], int(payload[1])
		if len(payload) < 2+length {
			return errkind.New(errkind.InvalidArgument, "truncated tlv value")
		}
		if err := visit(typ, payload[2:2+length]); err != nil {
			return err
		}
		payload = payload[2+length:]
	}

	return nil
}

func decodeProfile(payload []byte) (*Profile, error) {
	p := &Profile{}
	err := iterTLV(payload, func(typ byte, value []byte) error {
		switch typ {
		case tlvSpecial:
			if len(value) != 32 {
				return errkind.Newf(errkind.InvalidArgument, "nprofile pubkey is %d bytes", len(value))
			}
			p.PubKey = hex.EncodeToString(value)
		case tlvRelay:
			p.Relays = append(p.Relays, string(value))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	if p.PubKey == "" {
		return nil, errkind.New(errkind.InvalidArgument, "nprofile is missing its pubkey")
	}

	return p, nil
}

func decodeEvent(payload []byte) (*Event, error) {
	e := &Event{}
	err := iterTLV(payload, func(typ byte, value []byte) error {
		switch typ {
		case tlvSpecial:
			if len(value) != 32 {
				return errkind.Newf(errkind.InvalidArgument, "nevent id is %d bytes", len(value))
			}
			e.ID = hex.EncodeToString(value)
		case tlvRelay:
			e.Relays = append(e.Relays, string(value))
		case tlvAuthor:
			if len(value) == 32 {
				e.Author = hex.EncodeToString(value)
			}
		case tlvKind:
			if len(value) == 4 {
				kind := int(binary.BigEndian.Uint32(value))
				e.Kind = &kind
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	if e.ID == "" {
		return nil, errkind.New(errkind.InvalidArgument, "nevent is missing its id")
	}

	return e, nil
}

func decodeEntity(payload []byte) (*Entity, error) {
	a := &Entity{}
	seenSpecial := false
	err := iterTLV(payload, func(typ byte, value []byte) error {
		switch typ {
		case tlvSpecial:
			a.Identifier = string(value)
			seenSpecial = true
		case tlvRelay:
			a.Relays = append(a.Relays, string(value))
		case tlvAuthor:
			if len(value) != 32 {
				return errkind.Newf(errkind.InvalidArgument, "naddr author is %d bytes", len(value))
			}
			a.PubKey = hex.EncodeToString(value)
		case tlvKind:
			if len(value) == 4 {
				a.Kind = int(binary.BigEndian.Uint32(value))
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	if !seenSpecial || a.PubKey == "" {
		return nil, errkind.New(errkind.InvalidArgument, "naddr is missing required fields")
	}

	return a, nil
}
