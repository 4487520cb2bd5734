// Package cas stages manifest blobs into a local content-addressed
// directory, ready for a transport layer to pick up. Blobs are named
// by their hex content hash under blobs/; writes go through tmp/ and
// rename so a crashed run never leaves a partially written blob under
// its final name.
package cas

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/mosaic-build/treeline/internal/digest"
	"github.com/mosaic-build/treeline/internal/manifest"
)

// Directory names within the store root.
const (
	blobDir = "blobs"
	tmpDir  = "tmp"
)

// compressedSuffix marks zstd-compressed blobs on disk.
const compressedSuffix = ".zst"

// zstdEncoder is reused across writes; zstd.Encoder is safe for
// concurrent use via EncodeAll.
var zstdEncoder *zstd.Encoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("cas: zstd encoder initialization failed: " + err.Error())
	}
}

// Store is a staging directory for pending upload blobs.
type Store struct {
	root     string
	compress bool
}

// NewStore creates a Store rooted at the given directory, creating
// the layout if it does not exist. With compress enabled, blobs are
// zstd-compressed on disk (the name still carries the digest of the
// uncompressed content).
func NewStore(root string, compress bool) (*Store, error) {
	for _, dir := range []string{
		root,
		filepath.Join(root, blobDir),
		filepath.Join(root, tmpDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}
	return &Store{root: root, compress: compress}, nil
}

// BlobPath returns the on-disk path a digest's blob is stored under.
func (s *Store) BlobPath(d digest.Digest) string {
	name := d.HexHash()
	if s.compress {
		name += compressedSuffix
	}
	return filepath.Join(s.root, blobDir, name)
}

// PutUnit stages a materialized blob.
func (s *Store) PutUnit(unit manifest.UploadUnit) error {
	return s.write(unit.Digest, unit.Content)
}

// PutFile stages the blob for a plain file, streaming it from path.
// The digest must be the file's content digest as recorded by the
// manifest.
func (s *Store) PutFile(d digest.Digest, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return s.writeFrom(d, f)
}

func (s *Store) write(d digest.Digest, content []byte) error {
	if s.compress {
		content = zstdEncoder.EncodeAll(content, nil)
	}
	tmp, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "blob-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write blob %s: %w", d.HexHash(), err)
	}
	return s.finish(tmp, d)
}

func (s *Store) writeFrom(d digest.Digest, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "blob-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}

	var dst io.Writer = tmp
	var enc *zstd.Encoder
	if s.compress {
		enc, err = zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return fmt.Errorf("zstd writer: %w", err)
		}
		dst = enc
	}

	if _, err := io.Copy(dst, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write blob %s: %w", d.HexHash(), err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return fmt.Errorf("flush blob %s: %w", d.HexHash(), err)
		}
	}
	return s.finish(tmp, d)
}

func (s *Store) finish(tmp *os.File, d digest.Digest) error {
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.BlobPath(d)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename blob %s: %w", d.HexHash(), err)
	}
	return nil
}

// Get reads a staged blob back, decompressing if the store
// compresses. Used to verify staging and by local consumers.
func (s *Store) Get(d digest.Digest) ([]byte, error) {
	data, err := os.ReadFile(s.BlobPath(d))
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", d.HexHash(), err)
	}
	if !s.compress {
		return data, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, make([]byte, 0, d.SizeBytes))
	if err != nil {
		return nil, fmt.Errorf("decompress blob %s: %w", d.HexHash(), err)
	}
	return out, nil
}

// Has reports whether the blob for d is already staged.
func (s *Store) Has(d digest.Digest) bool {
	_, err := os.Stat(s.BlobPath(d))
	return err == nil
}
