// Package manifest converts build-action output paths into a
// content-addressed representation ready for upload to a remote
// cache.
//
// A Manifest owns two registries: digest→file-path for plain files
// (streamed from disk by whichever layer performs the upload) and
// digest→UploadUnit for synthesized blobs (serialized directory
// trees, over-budget inline content). It appends output descriptors
// to a caller-owned ActionResult but never serializes or transmits
// anything itself — transport, retry, and CAS existence checks belong
// to the surrounding upload pipeline.
//
// A Manifest is not safe for concurrent use: its registries and the
// running inline-byte counter are unsynchronized state owned by one
// unit of work. Run one manifest per action; read the registries only
// after all adds are done.
package manifest

import (
	"fmt"
	"path/filepath"

	"github.com/mosaic-build/treeline/internal/digest"
	"github.com/mosaic-build/treeline/internal/event"
	"github.com/mosaic-build/treeline/internal/fsx"
	"github.com/mosaic-build/treeline/internal/stats"
)

// InsertPolicy selects when AddContent attaches a CAS digest
// reference in addition to (or instead of) inline bytes.
type InsertPolicy int

const (
	// NeverInsert attaches no digest reference. Content that exceeds
	// the inline budget is simply dropped from the result.
	NeverInsert InsertPolicy = iota

	// AlwaysInsert attaches a digest reference on every call,
	// regardless of whether the content also rode inline.
	AlwaysInsert

	// InsertAboveLimit attaches a digest reference only when the
	// content did not fit the inline budget.
	InsertAboveLimit
)

// OutputFile describes one file output in the action result.
type OutputFile struct {
	Path         string        `json:"path"` // exec-root-relative
	Digest       digest.Digest `json:"digest"`
	IsExecutable bool          `json:"executable,omitempty"`
}

// OutputDirectory describes one directory output: its relative path
// and the digest of its serialized tree snapshot.
type OutputDirectory struct {
	Path       string        `json:"path"`
	TreeDigest digest.Digest `json:"tree_digest"`
}

// ActionResult is the caller-owned result record the manifest
// populates. The manifest appends descriptors and sets the stdout and
// stderr fields; it does not own, serialize, or transmit the record.
type ActionResult struct {
	OutputFiles       []OutputFile      `json:"output_files,omitempty"`
	OutputDirectories []OutputDirectory `json:"output_directories,omitempty"`
	StdoutRaw         []byte            `json:"stdout_raw,omitempty"`
	StdoutDigest      *digest.Digest    `json:"stdout_digest,omitempty"`
	StderrRaw         []byte            `json:"stderr_raw,omitempty"`
	StderrDigest      *digest.Digest    `json:"stderr_digest,omitempty"`
	ExitCode          int32             `json:"exit_code"`
}

// UploadUnit is a fully materialized blob pending transmission.
type UploadUnit struct {
	Content []byte
	Digest  digest.Digest
}

// NewUploadUnit builds an UploadUnit from in-memory content.
func NewUploadUnit(content []byte) UploadUnit {
	return UploadUnit{Content: content, Digest: digest.FromBytes(content)}
}

// Options configures a Manifest at construction.
type Options struct {
	// ExecRoot is the local root relative to which output paths are
	// reported in the result record.
	ExecRoot string

	// AllowSymlinks permits symbolic link outputs. When false, a
	// symlink anywhere in the declared outputs is an IllegalOutputError.
	AllowSymlinks bool

	// InlineLimit is the cumulative byte budget for content embedded
	// directly in the result record. A soft cap: content over budget
	// is not rejected, it just stops riding inline.
	InlineLimit int64

	// Events, when non-nil, receives progress events. Sends never
	// block; a full channel drops events.
	Events chan<- event.Event

	// Stats, when non-nil, receives counter updates.
	Stats *stats.Collector
}

// Manifest accumulates output metadata for one action result.
type Manifest struct {
	result       *ActionResult
	opts         Options
	digestToFile map[digest.Digest]string
	digestToUnit map[digest.Digest]UploadUnit
	inlineBytes  int64
}

// New creates a Manifest that populates result. The result record is
// populated through calls to AddFiles, AddDirectories, AddStdout, and
// AddStderr.
func New(result *ActionResult, opts Options) *Manifest {
	return &Manifest{
		result:       result,
		opts:         opts,
		digestToFile: make(map[digest.Digest]string),
		digestToUnit: make(map[digest.Digest]UploadUnit),
	}
}

// FileBlobs is the digest→path registry of plain-file blobs to
// upload, streamed from disk by the caller. Read it only after all
// adds are done.
func (m *Manifest) FileBlobs() map[digest.Digest]string {
	return m.digestToFile
}

// BlobUnits is the digest→UploadUnit registry of materialized blobs
// to upload: serialized tree snapshots and inline content that
// required a CAS reference. Read it only after all adds are done.
func (m *Manifest) BlobUnits() map[digest.Digest]UploadUnit {
	return m.digestToUnit
}

// AddFiles adds declared file outputs to the manifest. Paths the
// action never produced are skipped silently. A directory where a
// file was declared is a MismatchedOutputError; a symlink is accepted
// only when the manifest allows symlink outputs. The first fatal
// error aborts the call, leaving the remaining paths unprocessed.
//
// The policy parameter mirrors AddContent for API symmetry; plain
// file content always travels by reference through FileBlobs.
func (m *Manifest) AddFiles(paths []string, policy InsertPolicy) error {
	_ = policy
	for _, path := range paths {
		status, err := fsx.StatIfFound(path, false)
		if err != nil {
			return err
		}
		if status == nil {
			m.outputMissing(path)
			continue
		}
		switch {
		case status.IsDir:
			return m.mismatched(path, status)
		case status.IsFile:
			if err := m.addFile(path); err != nil {
				return err
			}
		case status.IsSymlink && m.opts.AllowSymlinks:
			if err := m.addFile(path); err != nil {
				return err
			}
		default:
			return m.illegal(path, status)
		}
	}
	return nil
}

// AddDirectories adds declared directory outputs to the manifest.
// Each directory produces a serialized tree snapshot registered as an
// UploadUnit, plus digest→path registrations for every file inside.
// Missing paths are skipped; a file or symlink where a directory was
// declared is a MismatchedOutputError.
func (m *Manifest) AddDirectories(paths []string) error {
	for _, path := range paths {
		status, err := fsx.StatIfFound(path, false)
		if err != nil {
			return err
		}
		if status == nil {
			m.outputMissing(path)
			continue
		}
		switch {
		case status.IsDir:
			if err := m.addDirectory(path); err != nil {
				return err
			}
		case status.IsFile, status.IsSymlink:
			return m.mismatched(path, status)
		default:
			return m.illegal(path, status)
		}
	}
	return nil
}

// Placement is the outcome of one AddContent call: the bytes that
// should ride inline in the result record (nil when the budget is
// exhausted) and, when the policy required it, the digest the content
// is separately fetchable under.
type Placement struct {
	Inline []byte
	Digest *digest.Digest
}

// AddContent applies the inline-content policy to content and returns
// where it ended up. Inline carries the actual bytes only while the
// cumulative inline budget holds; past the budget every call returns
// empty inline bytes. A digest reference is attached (and the content
// registered as an UploadUnit) when policy is AlwaysInsert, or when
// policy is InsertAboveLimit and the content did not fit.
func (m *Manifest) AddContent(content []byte, policy InsertPolicy) Placement {
	var p Placement

	withinLimit := m.inlineBytes+int64(len(content)) <= m.opts.InlineLimit
	if withinLimit {
		p.Inline = content
		m.inlineBytes += int64(len(content))
		if m.opts.Stats != nil {
			m.opts.Stats.AddBytesInlined(int64(len(content)))
		}
		event.Emit(m.opts.Events, event.Event{
			Type: event.ContentInlined,
			Size: int64(len(content)),
		})
	}

	if policy == AlwaysInsert || (policy == InsertAboveLimit && !withinLimit) {
		unit := NewUploadUnit(content)
		p.Digest = &unit.Digest
		m.digestToUnit[unit.Digest] = unit
		if m.opts.Stats != nil {
			m.opts.Stats.AddBlobsPending(1)
		}
		event.Emit(m.opts.Events, event.Event{
			Type:   event.ContentReferenced,
			Digest: unit.Digest,
			Size:   int64(len(content)),
		})
	}

	return p
}

// AddStdout places the action's stdout into the result record under
// the given policy.
func (m *Manifest) AddStdout(content []byte, policy InsertPolicy) {
	p := m.AddContent(content, policy)
	m.result.StdoutRaw = p.Inline
	m.result.StdoutDigest = p.Digest
}

// AddStderr places the action's stderr into the result record under
// the given policy.
func (m *Manifest) AddStderr(content []byte, policy InsertPolicy) {
	p := m.AddContent(content, policy)
	m.result.StderrRaw = p.Inline
	m.result.StderrDigest = p.Digest
}

func (m *Manifest) addFile(path string) error {
	d, err := digest.FromFile(path)
	if err != nil {
		return err
	}
	rel, err := m.relativize(path)
	if err != nil {
		return err
	}

	m.result.OutputFiles = append(m.result.OutputFiles, OutputFile{
		Path:         rel,
		Digest:       d,
		IsExecutable: fsx.IsExecutable(path),
	})
	m.digestToFile[d] = path

	if m.opts.Stats != nil {
		m.opts.Stats.AddFilesAdded(1)
		m.opts.Stats.AddBytesDigested(d.SizeBytes)
	}
	event.Emit(m.opts.Events, event.Event{
		Type:   event.FileAdded,
		Path:   rel,
		Digest: d,
		Size:   d.SizeBytes,
	})
	return nil
}

func (m *Manifest) addDirectory(path string) error {
	snapshot, err := m.buildTree(path)
	if err != nil {
		return err
	}

	blob, err := snapshot.Marshal()
	if err != nil {
		return err
	}
	unit := NewUploadUnit(blob)
	m.digestToUnit[unit.Digest] = unit

	rel, err := m.relativize(path)
	if err != nil {
		return err
	}
	m.result.OutputDirectories = append(m.result.OutputDirectories, OutputDirectory{
		Path:       rel,
		TreeDigest: unit.Digest,
	})

	if m.opts.Stats != nil {
		m.opts.Stats.AddDirsAdded(1)
		m.opts.Stats.AddBlobsPending(1)
		m.opts.Stats.AddTreeNodes(int64(1 + len(snapshot.Children)))
	}
	event.Emit(m.opts.Events, event.Event{
		Type:   event.DirectoryAdded,
		Path:   rel,
		Digest: unit.Digest,
		Nodes:  1 + len(snapshot.Children),
	})
	return nil
}

func (m *Manifest) relativize(path string) (string, error) {
	rel, err := filepath.Rel(m.opts.ExecRoot, path)
	if err != nil {
		return "", fmt.Errorf("rel path for %s: %w", path, err)
	}
	return rel, nil
}

func (m *Manifest) outputMissing(path string) {
	if m.opts.Stats != nil {
		m.opts.Stats.AddOutputsMissing(1)
	}
	rel, err := m.relativize(path)
	if err != nil {
		rel = path
	}
	event.Emit(m.opts.Events, event.Event{Type: event.OutputMissing, Path: rel})
}

func (m *Manifest) mismatched(path string, status *fsx.FileStatus) error {
	rel, err := m.relativize(path)
	if err != nil {
		return err
	}
	actual := status.Kind()
	expected := "directory"
	if actual == "directory" {
		expected = "file"
	}
	return &MismatchedOutputError{Path: rel, Actual: actual, Expected: expected}
}

func (m *Manifest) illegal(path string, status *fsx.FileStatus) error {
	rel, err := m.relativize(path)
	if err != nil {
		return err
	}
	return &IllegalOutputError{Path: rel, Kind: status.Kind()}
}
