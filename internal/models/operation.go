package models

import "time"

// OperationType represents the kind of file relocation
type OperationType string

const (
	OperationMove   OperationType = "move"
	OperationRename OperationType = "rename"
)

// Operation is one proposed source -> destination relocation
type Operation struct {
	SourcePath      string        `json:"source_path"`
	DestinationPath string        `json:"destination_path"`
	Type            OperationType `json:"operation_type"`
	Confidence      float64       `json:"confidence"`
	Reasoning       string        `json:"reasoning,omitempty"`
}

// OperationRecord is the persisted form of an executed operation.
// Undone only ever flips from false to true.
type OperationRecord struct {
	ID         int64         `json:"id"`
	BatchID    string        `json:"batch_id"`
	Timestamp  time.Time     `json:"timestamp"`
	Type       OperationType `json:"operation_type"`
	SourcePath string        `json:"source_path"`
	TargetPath string        `json:"target_path"`
	FileHash   string        `json:"file_hash,omitempty"`
	Undone     bool          `json:"undone"`
}

// BatchSummary aggregates the records of one batch
type BatchSummary struct {
	BatchID string
	First   time.Time
	Last    time.Time
	Total   int
	Pending int
}

// ShortBatchID returns the first 8 characters of a batch ID
func ShortBatchID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
