package crypto

import "runtime"

// Zero scrubs b with constant stores. The KeepAlive fence keeps the compiler
// from eliding the writes when b is dead afterwards.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// SecureBuffer owns key material that must not outlive its use.
type SecureBuffer struct {
	b []byte
}

// NewSecureBuffer copies src into a fresh buffer. The caller keeps ownership
// of src and should scrub it separately.
func NewSecureBuffer(src []byte) *SecureBuffer {
	s := &SecureBuffer{b: make([]byte, len(src))}
	copy(s.b, src)

	return s
}

// Bytes exposes the underlying buffer; valid until Destroy.
func (s *SecureBuffer) Bytes() []byte {
	return s.b
}

// Destroy scrubs and releases the buffer. Idempotent.
func (s *SecureBuffer) Destroy() {
	Zero(s.b)
	s.b = nil
}
