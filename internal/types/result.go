package types

import (
	"fmt"
	"time"
)

// ErrorCode classifies a per-file failure.
type ErrorCode string

const (
	CodeReadFailed       ErrorCode = "READ_FAILED"
	CodeParseFailed      ErrorCode = "PARSE_FAILED"
	CodeParentMissing    ErrorCode = "PARENT_MISSING"
	CodeStoreWriteFailed ErrorCode = "STORE_WRITE_FAILED"
	CodeConvertFailed    ErrorCode = "CONVERT_FAILED"
	CodeWriteFailed      ErrorCode = "WRITE_FAILED"
	CodeUnsafePath       ErrorCode = "UNSAFE_PATH"
	CodeCancelled        ErrorCode = "CANCELLED"
)

// FileError is the structured failure recorded on a FileResult.
type FileError struct {
	Code      ErrorCode
	Message   string
	Timestamp time.Time
}

// NewFileError wraps err with a code and the current time.
func NewFileError(code ErrorCode, err error) *FileError {
	return &FileError{Code: code, Message: err.Error(), Timestamp: time.Now()}
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FileResult is the outcome for one file. Success and Error are mutually
// exclusive; a skipped file is a success with Skipped set.
type FileResult struct {
	Path         string
	Success      bool
	Skipped      bool
	Reason       string
	NoteID       string
	AttachmentID string
	Bytes        int64
	Error        *FileError
}

// Succeeded builds a successful result.
func Succeeded(path, noteID string) FileResult {
	return FileResult{Path: path, Success: true, NoteID: noteID}
}

// SkippedResult builds a result for a file left untouched.
func SkippedResult(path, id, reason string) FileResult {
	return FileResult{Path: path, Success: true, Skipped: true, NoteID: id, Reason: reason}
}

// Failed builds a failed result.
func Failed(path string, code ErrorCode, err error) FileResult {
	return FileResult{Path: path, Error: NewFileError(code, err)}
}

// OperationError is a summary-level error entry.
type OperationError struct {
	Path    string
	Code    ErrorCode
	Message string
}

// OperationSummary aggregates the results of an import or export.
//
// ProcessedFiles always equals SuccessfulFiles + FailedFiles. SkippedFiles
// counts the subset of successes that were left untouched.
type OperationSummary struct {
	OperationID     string
	Operation       string
	Format          string
	DryRun          bool
	TotalFiles      int
	ProcessedFiles  int
	SuccessfulFiles int
	FailedFiles     int
	SkippedFiles    int
	Directories     int
	TotalBytes      int64
	StartedAt       time.Time
	Duration        time.Duration
	Aborted         bool
	Errors          []OperationError
	Warnings        []string
	Results         []FileResult
}

// NewSummary starts a summary for the operation described by oc.
func NewSummary(oc *OperationContext, format string, total int) *OperationSummary {
	return &OperationSummary{
		OperationID: oc.ID,
		Operation:   oc.Operation,
		Format:      format,
		TotalFiles:  total,
		StartedAt:   oc.StartedAt,
	}
}

// Record folds r into the counters.
func (s *OperationSummary) Record(r FileResult) {
	s.ProcessedFiles++
	if r.Success {
		s.SuccessfulFiles++
		if r.Skipped {
			s.SkippedFiles++
		}
		s.TotalBytes += r.Bytes
	} else {
		s.FailedFiles++
		if r.Error != nil {
			s.Errors = append(s.Errors, OperationError{Path: r.Path, Code: r.Error.Code, Message: r.Error.Message})
		}
	}
	s.Results = append(s.Results, r)
}

// Warn appends a non-fatal message.
func (s *OperationSummary) Warn(format string, args ...any) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

// Finish stamps the duration.
func (s *OperationSummary) Finish() {
	s.Duration = time.Since(s.StartedAt)
}

// Merge adds the counters of other into s. Used by the sync controller to
// report one summary for both directions.
func (s *OperationSummary) Merge(other *OperationSummary) {
	if other == nil {
		return
	}
	s.TotalFiles += other.TotalFiles
	s.ProcessedFiles += other.ProcessedFiles
	s.SuccessfulFiles += other.SuccessfulFiles
	s.FailedFiles += other.FailedFiles
	s.SkippedFiles += other.SkippedFiles
	s.Directories += other.Directories
	s.TotalBytes += other.TotalBytes
	s.Aborted = s.Aborted || other.Aborted
	s.Errors = append(s.Errors, other.Errors...)
	s.Warnings = append(s.Warnings, other.Warnings...)
	s.Results = append(s.Results, other.Results...)
}

// Paths returns the paths of results matching keep.
func (s *OperationSummary) Paths(keep func(FileResult) bool) []string {
	var out []string
	for _, r := range s.Results {
		if keep(r) {
			out = append(out, r.Path)
		}
	}
	return out
}

// Written reports a result that changed its destination.
func Written(r FileResult) bool {
	return r.Success && !r.Skipped
}
