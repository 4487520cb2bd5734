package manifest

import (
	"path/filepath"

	"github.com/mosaic-build/treeline/internal/digest"
	"github.com/mosaic-build/treeline/internal/event"
	"github.com/mosaic-build/treeline/internal/fsx"
	"github.com/mosaic-build/treeline/internal/tree"
)

// buildTree walks the output directory depth-first and returns its
// tree snapshot: the root directory node plus every descendant
// directory, flattened. File digests are registered in the file
// registry as the walk encounters them; the snapshot itself is
// digested and registered by the caller.
func (m *Manifest) buildTree(dir string) (*tree.Tree, error) {
	var children []tree.Directory
	root, err := m.computeDirectory(dir, &children)
	if err != nil {
		return nil, err
	}

	snapshot := &tree.Tree{Root: root, Children: children}
	event.Emit(m.opts.Events, event.Event{
		Type:  event.TreeBuilt,
		Path:  dir,
		Nodes: 1 + len(children),
	})
	return snapshot, nil
}

// computeDirectory builds the node for one directory level,
// post-order: every child directory is fully built (and appended to
// children) before the parent's entry list references it by digest.
// Entries arrive sorted from the enumerator, so the resulting node
// and its digest are independent of filesystem traversal order.
func (m *Manifest) computeDirectory(dir string, children *[]tree.Directory) (tree.Directory, error) {
	dirents, err := fsx.ReadDirSorted(dir)
	if err != nil {
		return tree.Directory{}, err
	}

	var node tree.Directory
	for _, dirent := range dirents {
		child := filepath.Join(dir, dirent.Name)
		switch {
		case dirent.Type == fsx.EntryDirectory:
			childNode, err := m.computeDirectory(child, children)
			if err != nil {
				return tree.Directory{}, err
			}
			childDigest, err := childNode.Digest()
			if err != nil {
				return tree.Directory{}, err
			}
			node.Dirs = append(node.Dirs, tree.DirNode{
				Name:   dirent.Name,
				Digest: childDigest,
			})
			*children = append(*children, childNode)

		case dirent.Type == fsx.EntryFile,
			dirent.Type == fsx.EntrySymlink && m.opts.AllowSymlinks:
			d, err := digest.FromFile(child)
			if err != nil {
				return tree.Directory{}, err
			}
			node.Files = append(node.Files, tree.FileNode{
				Name:         dirent.Name,
				Digest:       d,
				IsExecutable: fsx.IsExecutable(child),
			})
			m.digestToFile[d] = child
			if m.opts.Stats != nil {
				m.opts.Stats.AddBytesDigested(d.SizeBytes)
			}

		default:
			// Special file, or a symlink while symlink outputs are
			// disabled. Never uploadable content.
			rel, relErr := m.relativize(child)
			if relErr != nil {
				rel = child
			}
			kind := "special file"
			if dirent.Type == fsx.EntrySymlink {
				kind = "symbolic link"
			}
			return tree.Directory{}, &IllegalOutputError{Path: rel, Kind: kind}
		}
	}

	return node, nil
}
