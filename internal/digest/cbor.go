package digest

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// MarshalCBOR implements cbor.Marshaler. Encodes as a CBOR byte
// string (major type 2) containing the raw 32 bytes. Without this,
// [32]byte would encode as an array of 32 small integers.
func (h Hash) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(h[:])
}

// UnmarshalCBOR implements cbor.Unmarshaler. Decodes a CBOR byte
// string into the 32-byte array.
func (h *Hash) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid content hash CBOR: %w", err)
	}
	if len(raw) != HashSize {
		return fmt.Errorf("invalid content hash: expected %d bytes, got %d", HashSize, len(raw))
	}
	copy(h[:], raw)
	return nil
}
