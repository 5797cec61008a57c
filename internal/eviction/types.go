package eviction

import (
	"context"
	"time"
)

// Candidate is an eligible file found during a single scan.
type Candidate struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
}

// ScanStats counts what a scan looked at and what it left out.
type ScanStats struct {
	Entries          int `json:"entries"`
	MetadataFailures int `json:"metadata_failures"`
	NonRegular       int `json:"non_regular"`
	ReadOnly         int `json:"read_only"`
	ModTimeFallbacks int `json:"mod_time_fallbacks"`
}

// Store is the directory whose capacity is enforced.
type Store interface {
	// Path returns the watched directory.
	Path() string

	// Writable reports whether the directory itself accepts writes.
	Writable(ctx context.Context) (bool, error)

	// Scan returns the eligible files in the directory.
	// Per-entry failures are counted in ScanStats and never returned as an error.
	Scan(ctx context.Context) ([]Candidate, ScanStats, error)

	// Delete removes a single file.
	Delete(ctx context.Context, path string) error
}

// Strategy picks the file to evict.
type Strategy interface {
	// Victim returns the candidate to delete, or false if there is none.
	Victim(candidates []Candidate) (Candidate, bool)
}

// Recorder receives the outcome of every attempted eviction.
type Recorder interface {
	Record(ctx context.Context, s Summary) error
}

// Action describes what a cycle ended up doing.
type Action string

const (
	ActionWaiting           Action = "waiting"
	ActionSkippedPermission Action = "skipped-permission"
	ActionSkippedReadOnly   Action = "skipped-readonly"
	ActionSkippedEnumerate  Action = "skipped-enumerate"
	ActionNone              Action = "none"
	ActionEvicted           Action = "evicted"
	ActionEvictFailed       Action = "evict-failed"
	ActionCancelled         Action = "cancelled"
	ActionPanicked          Action = "panicked"
)

// Attempted reports whether the action involved a deletion attempt.
func (a Action) Attempted() bool {
	return a == ActionEvicted || a == ActionEvictFailed
}

// Summary is the result of one cycle.
type Summary struct {
	Seq        int64     `json:"seq"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Eligible   int       `json:"eligible"`
	Limit      uint32    `json:"limit"`
	Action     Action    `json:"action"`
	Target     Candidate `json:"target"`
	Err        string    `json:"error,omitempty"`
	Stats      ScanStats `json:"stats"`
}

// Status is a point-in-time snapshot of a Manager.
type Status struct {
	WatchedPath      string
	Limit            uint32
	Interval         time.Duration
	Cycles           int64
	Evictions        int64
	MetadataFailures int64
	Last             Summary
}
