package models

import "fmt"

// ExecutionStatus tags the outcome of an execute call
type ExecutionStatus string

const (
	// ExecutionCompleted means every operation succeeded
	ExecutionCompleted ExecutionStatus = "completed"
	// ExecutionPartial means some operations succeeded and some failed
	ExecutionPartial ExecutionStatus = "partial"
	// ExecutionFailed means no operation succeeded
	ExecutionFailed ExecutionStatus = "failed"
	// ExecutionAborted means nothing was attempted (backup failure)
	ExecutionAborted ExecutionStatus = "aborted"
	// ExecutionCancelled means the host stopped the batch early
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// OperationFailure describes one operation that could not be performed
type OperationFailure struct {
	Index           int
	SourcePath      string
	DestinationPath string
	Err             error
}

func (f OperationFailure) Error() string {
	return fmt.Sprintf("operation #%d (%s -> %s): %v", f.Index+1, f.SourcePath, f.DestinationPath, f.Err)
}

func (f OperationFailure) Unwrap() error {
	return f.Err
}

// ExecutionResult is returned once per execute call
type ExecutionResult struct {
	BatchID    string
	Status     ExecutionStatus
	DryRun     bool
	Completed  int
	Failed     int
	Failures   []OperationFailure
	Err        error // batch-level failure, set when Status is aborted
	BackupPath string
}

// Success reports whether every operation completed
func (r *ExecutionResult) Success() bool {
	return r.Status == ExecutionCompleted
}

// Undoable reports whether at least one operation was applied for real
func (r *ExecutionResult) Undoable() bool {
	return !r.DryRun && r.Completed > 0
}

// Errors renders the batch and per-operation errors as strings
func (r *ExecutionResult) Errors() []string {
	var out []string
	if r.Err != nil {
		out = append(out, r.Err.Error())
	}
	for _, f := range r.Failures {
		out = append(out, f.Error())
	}
	return out
}

// Progress is reported after each operation of a batch
type Progress struct {
	Index     int
	Total     int
	Operation Operation
	Err       error
}

// UndoStatus tags the outcome of an undo call
type UndoStatus string

const (
	UndoCompleted UndoStatus = "completed"
	UndoPartial   UndoStatus = "partial"
	UndoFailed    UndoStatus = "failed"
	// UndoNoop means there was nothing left to undo
	UndoNoop UndoStatus = "noop"
)

// UndoFailure describes one record that could not be reversed
type UndoFailure struct {
	RecordID   int64
	SourcePath string
	TargetPath string
	Err        error
}

func (f UndoFailure) Error() string {
	return fmt.Sprintf("record %d (%s -> %s): %v", f.RecordID, f.TargetPath, f.SourcePath, f.Err)
}

func (f UndoFailure) Unwrap() error {
	return f.Err
}

// UndoResult is returned by batch reversal
type UndoResult struct {
	BatchID  string
	Status   UndoStatus
	Undone   int
	Failures []UndoFailure
	Err      error // set when records could not be loaded at all
}

// Success reports whether the batch is now fully reversed
func (r *UndoResult) Success() bool {
	return r.Status == UndoCompleted || r.Status == UndoNoop
}

// Errors renders the failures as strings
func (r *UndoResult) Errors() []string {
	var out []string
	if r.Err != nil {
		out = append(out, r.Err.Error())
	}
	for _, f := range r.Failures {
		out = append(out, f.Error())
	}
	return out
}
