// Package undo records every applied relocation and reverses whole batches
// on request.
package undo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/kilupskalvis/tidy/internal/fsops"
	"github.com/kilupskalvis/tidy/internal/hash"
	"github.com/kilupskalvis/tidy/internal/models"
)

// Errors recorded against individual records during reversal
var (
	ErrTargetMissing  = errors.New("moved file no longer exists")
	ErrSourceOccupied = errors.New("original location is occupied")
	ErrNoBatch        = errors.New("batch id is required")
)

// ClearPolicy selects which old records ClearHistory may delete
type ClearPolicy string

const (
	// ClearUndone removes only records that were already reversed
	ClearUndone ClearPolicy = "undone"
	// ClearAll removes every old record, giving up the ability to undo them
	ClearAll ClearPolicy = "all"
)

// ParseClearPolicy maps a configuration value to a policy. Empty means ClearUndone.
func ParseClearPolicy(s string) (ClearPolicy, error) {
	switch ClearPolicy(s) {
	case "", ClearUndone:
		return ClearUndone, nil
	case ClearAll:
		return ClearAll, nil
	}
	return "", fmt.Errorf("unknown clear policy %q", s)
}

// RecordStore is the durable storage behind the log. AppendRecord must be
// committed before it returns.
type RecordStore interface {
	AppendRecord(rec *models.OperationRecord) error
	PendingRecords(batchID string) ([]*models.OperationRecord, error)
	MarkUndone(id int64) error
	LatestPendingBatch() (string, error)
	RecentRecords(limit int) ([]*models.OperationRecord, error)
	DeleteRecordsBefore(cutoff time.Time, undoneOnly bool) (int, error)
	BatchSummaries(limit int) ([]*models.BatchSummary, error)
}

// Log is the undo log
type Log struct {
	store  RecordStore
	fs     fsops.FS
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Log over store. fs defaults to the real filesystem and a nil
// logger discards output.
func New(store RecordStore, fs fsops.FS, logger *slog.Logger) *Log {
	if fs == nil {
		fs = fsops.NewRealFS()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Log{store: store, fs: fs, logger: logger, now: time.Now}
}

// Record appends a durable record of one applied relocation
func (l *Log) Record(batchID string, opType models.OperationType, source, target, fileHash string) (*models.OperationRecord, error) {
	if batchID == "" {
		return nil, ErrNoBatch
	}
	rec := &models.OperationRecord{
		BatchID:    batchID,
		Timestamp:  l.now().UTC(),
		Type:       opType,
		SourcePath: source,
		TargetPath: target,
		FileHash:   fileHash,
	}
	if err := l.store.AppendRecord(rec); err != nil {
		return nil, fmt.Errorf("record operation: %w", err)
	}
	return rec, nil
}

// UndoBatch moves every pending file of the batch back to where it came
// from, newest first. Records that cannot be reversed are reported and
// skipped; calling it again only retries what is still pending.
func (l *Log) UndoBatch(ctx context.Context, batchID string) *models.UndoResult {
	result := &models.UndoResult{BatchID: batchID}
	if batchID == "" {
		result.Status = models.UndoFailed
		result.Err = ErrNoBatch
		return result
	}

	recs, err := l.store.PendingRecords(batchID)
	if err != nil {
		result.Status = models.UndoFailed
		result.Err = fmt.Errorf("load records: %w", err)
		return result
	}
	if len(recs) == 0 {
		result.Status = models.UndoNoop
		return result
	}

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			result.Err = err
			break
		}
		if err := l.undoOne(rec); err != nil {
			l.logger.Warn("undo failed", "record", rec.ID, "target", rec.TargetPath, "error", err)
			result.Failures = append(result.Failures, models.UndoFailure{
				RecordID:   rec.ID,
				SourcePath: rec.SourcePath,
				TargetPath: rec.TargetPath,
				Err:        err,
			})
			continue
		}
		result.Undone++
	}

	switch {
	case len(result.Failures) == 0 && result.Err == nil:
		result.Status = models.UndoCompleted
	case result.Undone > 0:
		result.Status = models.UndoPartial
	default:
		result.Status = models.UndoFailed
	}

	l.logger.Info("batch undone",
		"batch_id", batchID,
		"status", result.Status,
		"undone", result.Undone,
		"failed", len(result.Failures),
	)
	return result
}

// undoOne reverses a single record and marks it undone
func (l *Log) undoOne(rec *models.OperationRecord) error {
	exists, err := l.fs.Exists(rec.TargetPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", rec.TargetPath, err)
	}
	if !exists {
		return fmt.Errorf("%s: %w", rec.TargetPath, ErrTargetMissing)
	}

	occupied, err := l.fs.Exists(rec.SourcePath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", rec.SourcePath, err)
	}
	if occupied {
		return fmt.Errorf("%s: %w", rec.SourcePath, ErrSourceOccupied)
	}

	if rec.FileHash != "" {
		if got, err := hash.File(rec.TargetPath); err == nil && got != rec.FileHash {
			l.logger.Warn("file changed since it was moved", "path", rec.TargetPath, "record", rec.ID)
		}
	}

	if err := l.fs.MkdirAll(filepath.Dir(rec.SourcePath), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := l.fs.Move(rec.TargetPath, rec.SourcePath); err != nil {
		return fmt.Errorf("move back: %w", err)
	}

	if err := l.store.MarkUndone(rec.ID); err != nil {
		// Keep disk and log in agreement so the record can be retried
		if rbErr := l.fs.Move(rec.SourcePath, rec.TargetPath); rbErr != nil {
			l.logger.Error("cannot restore moved file after undo bookkeeping failed",
				"record", rec.ID, "path", rec.SourcePath, "error", rbErr)
		}
		return fmt.Errorf("mark undone: %w", err)
	}

	targetDir := filepath.Dir(rec.TargetPath)
	fsops.PruneEmptyDirs(l.fs, targetDir, commonDir(filepath.Dir(rec.SourcePath), targetDir))
	return nil
}

// commonDir returns the deepest directory containing both a and b
func commonDir(a, b string) string {
	for {
		if rel, err := filepath.Rel(a, b); err == nil && filepath.IsLocal(rel) {
			return a
		}
		parent := filepath.Dir(a)
		if parent == a {
			return a
		}
		a = parent
	}
}

// LatestBatch returns the most recent batch that still has pending records,
// or "" when there is none
func (l *Log) LatestBatch() (string, error) {
	batchID, err := l.store.LatestPendingBatch()
	if err != nil {
		return "", fmt.Errorf("find latest batch: %w", err)
	}
	return batchID, nil
}

// UndoLast reverses the most recent batch that still has pending records
func (l *Log) UndoLast(ctx context.Context) *models.UndoResult {
	batchID, err := l.LatestBatch()
	if err != nil {
		return &models.UndoResult{Status: models.UndoFailed, Err: err}
	}
	if batchID == "" {
		return &models.UndoResult{Status: models.UndoNoop}
	}
	return l.UndoBatch(ctx, batchID)
}

// VerifyUndoPossible reports whether every pending record's moved file is
// still where it was put. The returned paths are the ones that are missing.
func (l *Log) VerifyUndoPossible(batchID string) (bool, []string, error) {
	recs, err := l.store.PendingRecords(batchID)
	if err != nil {
		return false, nil, fmt.Errorf("load records: %w", err)
	}
	var missing []string
	for _, rec := range recs {
		exists, err := l.fs.Exists(rec.TargetPath)
		if err != nil || !exists {
			missing = append(missing, rec.TargetPath)
		}
	}
	return len(missing) == 0, missing, nil
}

// History returns up to limit records, newest first, undone or not
func (l *Log) History(limit int) ([]*models.OperationRecord, error) {
	return l.store.RecentRecords(limit)
}

// Batches summarizes up to limit batches, most recent first
func (l *Log) Batches(limit int) ([]*models.BatchSummary, error) {
	return l.store.BatchSummaries(limit)
}

// ClearHistory deletes records older than olderThan according to policy and
// returns how many were removed.
func (l *Log) ClearHistory(olderThan time.Duration, policy ClearPolicy) (int, error) {
	if policy == "" {
		policy = ClearUndone
	}
	if policy != ClearUndone && policy != ClearAll {
		return 0, fmt.Errorf("unknown clear policy %q", policy)
	}
	cutoff := l.now().UTC().Add(-olderThan)
	n, err := l.store.DeleteRecordsBefore(cutoff, policy == ClearUndone)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	l.logger.Info("history cleared", "removed", n, "policy", policy, "cutoff", cutoff)
	return n, nil
}
