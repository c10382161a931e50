package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"

	"github.com/nostrc/gostr/crypto"
	"github.com/nostrc/gostr/errkind"
)

// Event is immutable once signed or ingested; ID, PubKey and Sig are
// lower-case hex as they appear on the wire.
type Event struct {
	ID        string    `json:"id"`
	PubKey    string    `json:"pubkey"`
	CreatedAt Timestamp `json:"created_at"`
	Kind      Kind      `json:"kind"`
	Tags      Tags      `json:"tags"`
	Content   string    `json:"content"`
	Sig       string    `json:"sig"`
}

// Serialize renders the canonical id preimage
// [0,pubkey,created_at,kind,tags,content] with no insignificant whitespace.
// Its byte output is the compatibility contract with every relay.
func (e *Event) Serialize() []byte {
	buf := make([]byte, 0, 128+len(e.PubKey)+len(e.Content))
	buf = append(buf, `[0,"`...)
	buf = append(buf, e.PubKey...)
	buf = append(buf, `",`...)
	buf = strconv.AppendInt(buf, int64(e.CreatedAt), 10)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, int64(e.Kind), 10)
	buf = append(buf, ',')
	buf = appendTagsJSON(buf, e.Tags)
	buf = append(buf, ',')
	buf = appendEscaped(buf, e.Content)
	buf = append(buf, ']')

	return buf
}

// ComputeID returns SHA-256 over the canonical serialization.
func (e *Event) ComputeID() [32]byte {
	return sha256.Sum256(e.Serialize())
}

// Sign computes the id, Schnorr-signs it and populates ID, PubKey and Sig.
func (e *Event) Sign(sk []byte) error {
	pk, err := crypto.PublicKey(sk)
	if err != nil {
		return errors.Wrap(err, "failed to derive public key")
	}
	e.PubKey = hex.EncodeToString(pk)
	if e.Tags == nil {
		e.Tags = make(Tags, 0)
	}
	id := e.ComputeID()
	sig, err := crypto.Sign(sk, id[:])
	if err != nil {
		return errors.Wrap(err, "failed to sign event id")
	}
	e.ID = hex.EncodeToString(id[:])
	e.Sig = hex.EncodeToString(sig)

	return nil
}

// Verify recomputes the id, compares it to ID and checks the Schnorr
// signature against PubKey.
func (e *Event) Verify() bool {
	id := e.ComputeID()
	if e.ID != hex.EncodeToString(id[:]) {
		return false
	}
	pk, err := crypto.Decode32(e.PubKey)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(e.Sig)
	if err != nil || len(sig) != crypto.SigLen {
		return false
	}

	return crypto.Verify(pk, id[:], sig)
}

// UnmarshalJSON decodes the wire object form. Tags must be flat arrays of
// strings; nested arrays are rejected. Content is kept as an opaque string.
func (e *Event) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	if !r.IsObject() {
		return errkind.New(errkind.Protocol, "event is not a json object")
	}
	e.ID = r.Get("id").String()
	e.PubKey = r.Get("pubkey").String()
	e.CreatedAt = Timestamp(r.Get("created_at").Int())
	e.Kind = int(r.Get("kind").Int())
	e.Content = r.Get("content").String()
	e.Sig = r.Get("sig").String()
	e.Tags = e.Tags[:0]
	var tagErr error
	r.Get("tags").ForEach(func(_, tag gjson.Result) bool {
		if !tag.IsArray() {
			tagErr = errkind.New(errkind.Protocol, "tag is not an array")

			return false
		}
		var parsed Tag
		tag.ForEach(func(_, item gjson.Result) bool {
			if item.Type != gjson.String {
				tagErr = errkind.New(errkind.Protocol, "tag item is not a string")

				return false
			}
			parsed = append(parsed, item.String())

			return true
		})
		if tagErr != nil {
			return false
		}
		e.Tags = append(e.Tags, parsed)

		return true
	})

	return tagErr
}

// MarshalJSON renders the wire object form using the canonical escape rules.
func (e *Event) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 256+len(e.Content))
	buf = append(buf, `{"id":`...)
	buf = appendEscaped(buf, e.ID)
	buf = append(buf, `,"pubkey":`...)
	buf = appendEscaped(buf, e.PubKey)
	buf = append(buf, `,"created_at":`...)
	buf = strconv.AppendInt(buf, int64(e.CreatedAt), 10)
	buf = append(buf, `,"kind":`...)
	buf = strconv.AppendInt(buf, int64(e.Kind), 10)
	buf = append(buf, `,"tags":`...)
	buf = appendTagsJSON(buf, e.Tags)
	buf = append(buf, `,"content":`...)
	buf = appendEscaped(buf, e.Content)
	buf = append(buf, `,"sig":`...)
	buf = appendEscaped(buf, e.Sig)
	buf = append(buf, '}')

	return buf, nil
}

func (e *Event) String() string {
	data, _ := e.MarshalJSON()

	return string(data)
}

func appendTagsJSON(buf []byte, tags Tags) []byte {
	buf = append(buf, '[')
	for i, tag := range tags {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '[')
		for j, item := range tag {
			if j > 0 {
				buf = append(buf, ',')
			}
			buf = appendEscaped(buf, item)
		}
		buf = append(buf, ']')
	}

	return append(buf, ']')
}

const hexDigits = "0123456789abcdef"

// appendEscaped writes s as a JSON string with the minimal escape set:
// backslash, quote, \n \r \t \b \f, and \u00XX only for the remaining
// control bytes. Everything else passes through as raw UTF-8.
func appendEscaped(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			buf = append(buf, '\\', '"')
		case c == '\\':
			buf = append(buf, '\\', '\\')
		case c == '\n':
			buf = append(buf, '\\', 'n')
		case c == '\r':
			buf = append(buf, '\\', 'r')
		case c == '\t':
			buf = append(buf, '\\', 't')
		case c == '\b':
			buf = append(buf, '\\', 'b')
		case c == '\f':
			buf = append(buf, '\\', 'f')
		case c < 0x20:
			buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		default:
			buf = append(buf, c)
		}
	}

	return append(buf, '"')
}
