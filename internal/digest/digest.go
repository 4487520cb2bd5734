// Package digest computes BLAKE3 content digests for blobs and files.
//
// A Digest pairs a 32-byte hash with the content length. The pair is
// comparable and is used as a map key throughout the manifest layer:
// equal content always produces an equal Digest, which is what makes
// blob deduplication correct.
package digest

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// HashSize is the size of a content hash in bytes.
const HashSize = 32

// Hash is a 32-byte BLAKE3 digest.
type Hash [HashSize]byte

// Digest identifies a blob by content hash and byte length.
type Digest struct {
	Hash      Hash  `cbor:"hash" json:"hash"`
	SizeBytes int64 `cbor:"size" json:"size"`
}

// FromBytes computes the digest of an in-memory blob.
func FromBytes(data []byte) Digest {
	var h Hash
	sum := blake3.Sum256(data)
	copy(h[:], sum[:])
	return Digest{Hash: h, SizeBytes: int64(len(data))}
}

// FromFile computes the digest of the file at path, streaming its
// contents rather than loading them into memory.
func FromFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, 32*1024)
	n, err := io.CopyBuffer(h, f, buf)
	if err != nil {
		return Digest{}, fmt.Errorf("hash %s: %w", path, err)
	}

	var hash Hash
	copy(hash[:], h.Sum(nil))
	return Digest{Hash: hash, SizeBytes: n}, nil
}

// String returns the canonical text form "<hex hash>/<size>".
func (d Digest) String() string {
	return fmt.Sprintf("%s/%d", hex.EncodeToString(d.Hash[:]), d.SizeBytes)
}

// HexHash returns the hex-encoded hash without the size suffix.
func (d Digest) HexHash() string {
	return hex.EncodeToString(d.Hash[:])
}

// MarshalText implements encoding.TextMarshaler. Returns the
// 64-character lowercase hex representation, used by JSON output.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h[:])), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(data []byte) error {
	parsed, err := ParseHash(string(data))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parsing content hash: %w", err)
	}
	if len(decoded) != HashSize {
		return h, fmt.Errorf("content hash is %d bytes, want %d", len(decoded), HashSize)
	}
	copy(h[:], decoded)
	return h, nil
}
