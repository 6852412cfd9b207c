package engine

import "sync"

// Status is the overall outcome of a migration run. A fatal abort is
// reported as an error from Migrate instead.
type Status string

const (
	StatusClean               Status = "clean"
	StatusCompletedWithErrors Status = "completed-with-errors"
)

// ItemFailure records one item that permanently failed after the job
// layer's retry budget was exhausted.
type ItemFailure struct {
	Folder string
	UID    string
	Reason string
}

// FolderFailure records one folder whose pass was aborted; its
// checkpoint was not advanced.
type FolderFailure struct {
	Folder string
	Reason string
}

// Summary accumulates the per-run progress counters surfaced to
// operators. Item and folder jobs update it concurrently.
type Summary struct {
	mu sync.Mutex

	FoldersProcessed int
	FoldersFailed    int
	Transferred      int
	Skipped          int
	Deleted          int
	Failed           int
	TagsMigrated     int

	ItemFailures   []ItemFailure
	FolderFailures []FolderFailure
}

// NewSummary returns an empty run summary.
func NewSummary() *Summary {
	return &Summary{}
}

// Status reports whether the run completed clean or with per-item or
// per-folder errors.
func (s *Summary) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Failed > 0 || s.FoldersFailed > 0 {
		return StatusCompletedWithErrors
	}
	return StatusClean
}

func (s *Summary) folderProcessed() {
	s.mu.Lock()
	s.FoldersProcessed++
	s.mu.Unlock()
}

func (s *Summary) folderFailed(folder, reason string) {
	s.mu.Lock()
	s.FoldersFailed++
	s.FolderFailures = append(s.FolderFailures, FolderFailure{Folder: folder, Reason: reason})
	s.mu.Unlock()
}

func (s *Summary) itemTransferred() {
	s.mu.Lock()
	s.Transferred++
	s.mu.Unlock()
}

func (s *Summary) itemSkipped() {
	s.mu.Lock()
	s.Skipped++
	s.mu.Unlock()
}

func (s *Summary) itemDeleted() {
	s.mu.Lock()
	s.Deleted++
	s.mu.Unlock()
}

func (s *Summary) itemFailed(folder, uid, reason string) {
	s.mu.Lock()
	s.Failed++
	s.ItemFailures = append(s.ItemFailures, ItemFailure{Folder: folder, UID: uid, Reason: reason})
	s.mu.Unlock()
}

func (s *Summary) tagMigrated() {
	s.mu.Lock()
	s.TagsMigrated++
	s.mu.Unlock()
}
