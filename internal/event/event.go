package event

import (
	"time"

	"github.com/mosaic-build/treeline/internal/digest"
)

// Type identifies the kind of event.
type Type int

const (
	FileAdded Type = iota + 1
	DirectoryAdded
	TreeBuilt
	ContentInlined
	ContentReferenced
	OutputMissing
)

var typeNames = [...]string{
	FileAdded:         "FileAdded",
	DirectoryAdded:    "DirectoryAdded",
	TreeBuilt:         "TreeBuilt",
	ContentInlined:    "ContentInlined",
	ContentReferenced: "ContentReferenced",
	OutputMissing:     "OutputMissing",
}

func (t Type) String() string {
	if int(t) > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from manifest building.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // exec-root-relative path, when applicable
	Digest    digest.Digest
	Size      int64 // content bytes digested or inlined
	Nodes     int   // directory count (TreeBuilt)
}

// Emit sends e on ch without blocking. A nil channel disables
// eventing; a full channel drops the event rather than stalling the
// manifest walk.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
