package models

import (
	"time"

	"github.com/google/uuid"
)

// FileInfo is what a scanner reports for a candidate file
type FileInfo struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified_time"`
}

// Suggestion is a categorization proposal for one file.
// Every string field is untrusted input.
type Suggestion struct {
	Category      string  `json:"category" yaml:"category"`
	SuggestedName string  `json:"suggested_name" yaml:"suggested_name"`
	Confidence    float64 `json:"confidence" yaml:"confidence"`
	Reasoning     string  `json:"reasoning" yaml:"reasoning"`
}

// Plan is an ordered set of proposed operations sharing one batch ID.
type Plan struct {
	BatchID       string
	BaseDirectory string
	Operations    []Operation
}

// NewPlan creates an empty plan with a freshly generated batch ID
func NewPlan(baseDir string) *Plan {
	return &Plan{
		BatchID:       uuid.NewString(),
		BaseDirectory: baseDir,
		Operations:    []Operation{},
	}
}

// WithOperations returns a copy of the plan carrying ops and the same batch ID
func (p *Plan) WithOperations(ops []Operation) *Plan {
	cp := make([]Operation, len(ops))
	copy(cp, ops)
	return &Plan{
		BatchID:       p.BatchID,
		BaseDirectory: p.BaseDirectory,
		Operations:    cp,
	}
}

// AddOperation appends an operation to the plan
func (p *Plan) AddOperation(op Operation) {
	p.Operations = append(p.Operations, op)
}

// SourcePaths returns the source of every operation in order
func (p *Plan) SourcePaths() []string {
	paths := make([]string, len(p.Operations))
	for i, op := range p.Operations {
		paths[i] = op.SourcePath
	}
	return paths
}

// Len returns the number of operations
func (p *Plan) Len() int {
	return len(p.Operations)
}
