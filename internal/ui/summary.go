package ui

import (
	"fmt"
	"io"
	"sort"

	"github.com/mosaic-build/treeline/internal/digest"
	"github.com/mosaic-build/treeline/internal/manifest"
	"github.com/mosaic-build/treeline/internal/stats"
)

// shortHash truncates a hex hash for display.
func shortHash(d digest.Digest) string {
	return d.HexHash()[:12]
}

// WriteSummary renders a human-readable account of a populated
// manifest: output descriptors, then the pending blob registries,
// then a one-line stats summary when a collector was attached.
func WriteSummary(w io.Writer, result *manifest.ActionResult, m *manifest.Manifest, snap *stats.Snapshot) {
	for _, of := range result.OutputFiles {
		exec := ""
		if of.IsExecutable {
			exec = " (executable)"
		}
		fmt.Fprintf(w, "file  %s  %s  %s%s\n",
			shortHash(of.Digest), stats.FormatBytes(of.Digest.SizeBytes), of.Path, exec)
	}
	for _, od := range result.OutputDirectories {
		fmt.Fprintf(w, "tree  %s  %s  %s\n",
			shortHash(od.TreeDigest), stats.FormatBytes(od.TreeDigest.SizeBytes), od.Path)
	}

	files := m.FileBlobs()
	units := m.BlobUnits()
	fmt.Fprintf(w, "pending upload: %d file blob(s), %d materialized blob(s)\n",
		len(files), len(units))

	for _, d := range sortedDigests(files) {
		fmt.Fprintf(w, "  blob %s  %s  <- %s\n",
			shortHash(d), stats.FormatBytes(d.SizeBytes), files[d])
	}
	for _, d := range sortedUnitDigests(units) {
		fmt.Fprintf(w, "  blob %s  %s  (materialized)\n",
			shortHash(d), stats.FormatBytes(d.SizeBytes))
	}

	if snap != nil {
		fmt.Fprintf(w, "%s\n", snap)
	}
}

func sortedDigests(m map[digest.Digest]string) []digest.Digest {
	ds := make([]digest.Digest, 0, len(m))
	for d := range m {
		ds = append(ds, d)
	}
	sortDigests(ds)
	return ds
}

func sortedUnitDigests(m map[digest.Digest]manifest.UploadUnit) []digest.Digest {
	ds := make([]digest.Digest, 0, len(m))
	for d := range m {
		ds = append(ds, d)
	}
	sortDigests(ds)
	return ds
}

func sortDigests(ds []digest.Digest) {
	sort.Slice(ds, func(i, j int) bool {
		return ds[i].HexHash() < ds[j].HexHash()
	})
}
