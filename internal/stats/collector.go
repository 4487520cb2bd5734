package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Collector tracks manifest-building statistics using lock-free
// atomic counters. One collector may be shared by several manifests
// (one per action) running on different goroutines.
type Collector struct {
	filesAdded     atomic.Int64
	dirsAdded      atomic.Int64
	treeNodes      atomic.Int64
	outputsMissing atomic.Int64
	bytesDigested  atomic.Int64
	bytesInlined   atomic.Int64
	blobsPending   atomic.Int64
	startTime      time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

func (c *Collector) AddFilesAdded(n int64)     { c.filesAdded.Add(n) }
func (c *Collector) AddDirsAdded(n int64)      { c.dirsAdded.Add(n) }
func (c *Collector) AddTreeNodes(n int64)      { c.treeNodes.Add(n) }
func (c *Collector) AddOutputsMissing(n int64) { c.outputsMissing.Add(n) }
func (c *Collector) AddBytesDigested(n int64)  { c.bytesDigested.Add(n) }
func (c *Collector) AddBytesInlined(n int64)   { c.bytesInlined.Add(n) }
func (c *Collector) AddBlobsPending(n int64)   { c.blobsPending.Add(n) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesAdded     int64
	DirsAdded      int64
	TreeNodes      int64
	OutputsMissing int64
	BytesDigested  int64
	BytesInlined   int64
	BlobsPending   int64
	Elapsed        time.Duration
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesAdded:     c.filesAdded.Load(),
		DirsAdded:      c.dirsAdded.Load(),
		TreeNodes:      c.treeNodes.Load(),
		OutputsMissing: c.outputsMissing.Load(),
		BytesDigested:  c.bytesDigested.Load(),
		BytesInlined:   c.bytesInlined.Load(),
		BlobsPending:   c.blobsPending.Load(),
		Elapsed:        c.Elapsed(),
	}
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"files=%d dirs=%d nodes=%d missing=%d digested=%s inlined=%s pending=%d",
		s.FilesAdded, s.DirsAdded, s.TreeNodes, s.OutputsMissing,
		FormatBytes(s.BytesDigested), FormatBytes(s.BytesInlined), s.BlobsPending,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
