// Package types holds the value objects shared across kosmokopy's
// pipeline stages: the transfer request a caller builds, the report it
// gets back, and the per-file records that flow between them.
package types

import "encoding/json"

// ConflictMode selects how the conflict resolver treats a destination
// path that already exists.
type ConflictMode int

const (
	ConflictSkip ConflictMode = iota
	ConflictOverwrite
	ConflictRename
)

func (m ConflictMode) String() string {
	switch m {
	case ConflictSkip:
		return "skip"
	case ConflictOverwrite:
		return "overwrite"
	case ConflictRename:
		return "rename"
	default:
		return "unknown"
	}
}

// ParseConflictMode parses the --conflict flag value.
func ParseConflictMode(s string) (ConflictMode, bool) {
	switch s {
	case "skip", "":
		return ConflictSkip, true
	case "overwrite":
		return ConflictOverwrite, true
	case "rename":
		return ConflictRename, true
	default:
		return ConflictSkip, false
	}
}

// TransferMode selects structure-preserving vs flattened destinations.
type TransferMode int

const (
	ModeFoldersAndFiles TransferMode = iota
	ModeFilesOnly
)

// ParseTransferMode parses the --mode flag value.
func ParseTransferMode(s string) (TransferMode, bool) {
	switch s {
	case "folders", "":
		return ModeFoldersAndFiles, true
	case "files":
		return ModeFilesOnly, true
	default:
		return ModeFoldersAndFiles, false
	}
}

// Method selects the transfer back-end.
type Method int

const (
	MethodStandard Method = iota
	MethodRsync
)

// ParseMethod parses the --method flag value.
func ParseMethod(s string) (Method, bool) {
	switch s {
	case "standard", "":
		return MethodStandard, true
	case "rsync":
		return MethodRsync, true
	default:
		return MethodStandard, false
	}
}

// EntryKind distinguishes file entries from the directories the
// enumerator visits on the way to them.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDir
)

// FileEntry is a single item produced by the enumerator. RelativePath is
// relative to the enumeration root and may be empty for single-file
// sources addressed via an explicit file list.
type FileEntry struct {
	SourcePath   string
	RelativePath string
	Size         int64
	Kind         EntryKind
}

// Status is the terminal state of a run, surfaced in the JSON report.
type Status int

const (
	StatusFinished Status = iota
	StatusCancelled
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusFinished:
		return "finished"
	case StatusCancelled:
		return "cancelled"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Report is the result surfaced to callers and printed as the CLI's one
// JSON line on stdout.
type Report struct {
	Status        Status
	Copied        uint64
	Skipped       []string
	Errors        []string
	ExcludedFiles uint64
	ExcludedDirs  uint64
	Message       string
}

// HasFileErrors reports whether any per-file error was recorded, which
// determines the process exit code.
func (r *Report) HasFileErrors() bool {
	return len(r.Errors) > 0
}

// MarshalJSON implements the report wire schema: a fatal setup
// error carries only status and message, while every other status
// carries the full counter set (message omitted when empty).
func (r Report) MarshalJSON() ([]byte, error) {
	if r.Status == StatusError {
		return json.Marshal(struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}{r.Status.String(), r.Message})
	}

	skipped := r.Skipped
	if skipped == nil {
		skipped = []string{}
	}
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}

	type wire struct {
		Status        string   `json:"status"`
		Copied        uint64   `json:"copied"`
		Skipped       []string `json:"skipped"`
		Errors        []string `json:"errors"`
		ExcludedFiles uint64   `json:"excluded_files"`
		ExcludedDirs  uint64   `json:"excluded_dirs"`
		Message       string   `json:"message,omitempty"`
	}
	return json.Marshal(wire{
		Status:        r.Status.String(),
		Copied:        r.Copied,
		Skipped:       skipped,
		Errors:        errs,
		ExcludedFiles: r.ExcludedFiles,
		ExcludedDirs:  r.ExcludedDirs,
		Message:       r.Message,
	})
}
