// Package tree holds the content-addressed directory tree model.
//
// A Directory names its immediate children: files by (name, digest,
// executable flag) and subdirectories by (name, digest) only — never
// by direct reference. The digest of a directory is the digest of its
// serialized form, so identical subtree content yields an identical
// digest wherever it is mounted. A Tree carries the root Directory
// plus every descendant Directory flattened into one collection,
// which is enough to reconstruct the hierarchy recursively and keeps
// serialization free of pointer cycles.
//
// Serialization is CBOR with Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Combined with name-sorted entry lists,
// equal logical content always produces identical bytes and therefore
// identical digests.
package tree

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/mosaic-build/treeline/internal/digest"
)

// FileNode references a file child of a directory.
type FileNode struct {
	Name         string        `cbor:"name" json:"name"`
	Digest       digest.Digest `cbor:"digest" json:"digest"`
	IsExecutable bool          `cbor:"executable,omitempty" json:"executable,omitempty"`
}

// DirNode references a subdirectory child by digest.
type DirNode struct {
	Name   string        `cbor:"name" json:"name"`
	Digest digest.Digest `cbor:"digest" json:"digest"`
}

// Directory is one level of the tree. Files and Dirs must each be
// sorted by name; the walk that builds them is responsible for the
// ordering.
type Directory struct {
	Files []FileNode `cbor:"files,omitempty" json:"files,omitempty"`
	Dirs  []DirNode  `cbor:"dirs,omitempty" json:"dirs,omitempty"`
}

// Tree is the full recursive structure of one output directory: the
// root plus all descendant directories, flattened. The root is not
// repeated in Children.
type Tree struct {
	Root     Directory   `cbor:"root" json:"root"`
	Children []Directory `cbor:"children,omitempty" json:"children,omitempty"`
}

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding. Same logical data always produces identical bytes.
var encMode cbor.EncMode

// decMode accepts standard CBOR; unknown fields are ignored for
// forward compatibility.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("tree: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("tree: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal serializes the directory deterministically.
func (d *Directory) Marshal() ([]byte, error) {
	data, err := encMode.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding directory: %w", err)
	}
	return data, nil
}

// Digest returns the directory's content-addressed identity: the
// digest of its serialized form.
func (d *Directory) Digest() (digest.Digest, error) {
	data, err := d.Marshal()
	if err != nil {
		return digest.Digest{}, err
	}
	return digest.FromBytes(data), nil
}

// Marshal serializes the tree deterministically.
func (t *Tree) Marshal() ([]byte, error) {
	data, err := encMode.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encoding tree: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a serialized tree.
func Unmarshal(data []byte) (*Tree, error) {
	var t Tree
	if err := decMode.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decoding tree: %w", err)
	}
	return &t, nil
}
