// Package download implements the concurrent batch download engine: a
// bounded pool of workers that fetch remote files to disk, a shared status
// store tracking per-task and aggregate progress, batch-scoped cooperative
// cancellation, and retry of failed tasks.
package download

// Task describes one file to be fetched and written to a destination
// path. Tasks are immutable once submitted.
type Task struct {
	// ID is an opaque key, unique within a batch, used to correlate status.
	ID int64 `json:"id"`
	// URL is the fully-formed source address.
	URL string `json:"url"`
	// Destination is the absolute file path to write on success. Its
	// parent directory must already exist.
	Destination string `json:"destination"`
	// ExpectedSize is the catalog-declared byte count, used for progress
	// ratio display. Zero means unknown.
	ExpectedSize int64 `json:"expectedSize"`
	// SkipIfExists marks the task Skipped without any network activity
	// when Destination already exists.
	SkipIfExists bool `json:"skipIfExists"`
}

// State identifies where a task is in its lifecycle.
type State string

const (
	StatePending     State = "pending"
	StateDownloading State = "downloading"
	StateComplete    State = "complete"
	StateSkipped     State = "skipped"
	StateCancelled   State = "cancelled"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transition can occur from s.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateSkipped, StateCancelled, StateFailed:
		return true
	}
	return false
}

// Status is the one true state of a task at an instant. BytesDone and
// TotalBytes are meaningful while downloading; TotalBytes stays zero when
// the server did not report a length. Reason is set for failed tasks.
type Status struct {
	State      State  `json:"state"`
	BytesDone  int64  `json:"bytesDone,omitempty"`
	TotalBytes int64  `json:"totalBytes,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Counters are the aggregate batch counters. Active counts tasks
// currently downloading; the rest count terminal outcomes. BytesDone
// attributes the catalog-declared size of Complete and Skipped tasks,
// not in-flight bytes.
type Counters struct {
	TotalQueued        int   `json:"totalQueued"`
	Active             int   `json:"active"`
	Completed          int   `json:"completed"`
	Failed             int   `json:"failed"`
	Skipped            int   `json:"skipped"`
	Cancelled          int   `json:"cancelled"`
	TotalExpectedBytes int64 `json:"totalExpectedBytes"`
	BytesDone          int64 `json:"bytesDone"`
}

// Pending derives the number of tasks not yet started and not terminal.
func (c Counters) Pending() int {
	return c.TotalQueued - c.Active - c.Completed - c.Failed - c.Skipped - c.Cancelled
}

// Snapshot is a consistent read of the whole store, safe to hand to the
// consumer: order fixed at submission, statuses keyed by task id.
type Snapshot struct {
	Order    []int64          `json:"order"`
	Statuses map[int64]Status `json:"statuses"`
	Counters Counters         `json:"counters"`
}
