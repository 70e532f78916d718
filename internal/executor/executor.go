// Package executor applies organization plans to the filesystem.
//
// One bad file never aborts a batch: each operation either succeeds and is
// recorded in the undo log, or fails and is reported in the result. The only
// batch-level failure is a backup that could not be taken, which aborts
// before anything is moved.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/kilupskalvis/tidy/internal/fsops"
	"github.com/kilupskalvis/tidy/internal/hash"
	"github.com/kilupskalvis/tidy/internal/models"
	"github.com/kilupskalvis/tidy/internal/pathsafe"
	"github.com/kilupskalvis/tidy/internal/planner"
)

var (
	ErrNilPlan          = errors.New("plan is required")
	ErrPathEscape       = errors.New("destination escapes base directory")
	ErrProtected        = errors.New("destination is in a protected location")
	ErrHashMismatch     = errors.New("file changed during move")
	ErrNoBackupManager  = errors.New("backup requested but no backup manager configured")
	ErrPlannedCollision = errors.New("destination already claimed by an earlier operation")
)

// Recorder persists applied operations
type Recorder interface {
	Record(batchID string, opType models.OperationType, source, target, fileHash string) (*models.OperationRecord, error)
}

// Backuper takes the batch-wide safety copy
type Backuper interface {
	Create(ctx context.Context, batchID, baseDir string, files []string) (*models.BackupEntry, error)
}

// Options are fixed for the lifetime of an Executor
type Options struct {
	ProtectedPaths []string
	// VerifyHashes hashes every file before and after its move
	VerifyHashes bool
}

// ExecuteOptions vary per call
type ExecuteOptions struct {
	DryRun bool
	// Backup takes a safety copy of every source before the first move
	Backup bool
	// Progress is called synchronously after each operation
	Progress func(models.Progress)
	// Cancel is polled after each operation; returning true stops the batch
	Cancel func() bool
}

// Executor runs plans
type Executor struct {
	fs      fsops.FS
	backups Backuper
	log     Recorder
	opts    Options
	logger  *slog.Logger
}

// New creates an Executor. backups may be nil when backups are never
// requested; fs defaults to the real filesystem.
func New(fs fsops.FS, backups Backuper, log Recorder, opts Options, logger *slog.Logger) *Executor {
	if fs == nil {
		fs = fsops.NewRealFS()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{fs: fs, backups: backups, log: log, opts: opts, logger: logger}
}

// Execute applies plan in order. The returned result is never nil.
func (e *Executor) Execute(ctx context.Context, plan *models.Plan, opts ExecuteOptions) *models.ExecutionResult {
	if plan == nil {
		return &models.ExecutionResult{Status: models.ExecutionAborted, DryRun: opts.DryRun, Err: ErrNilPlan}
	}
	result := &models.ExecutionResult{BatchID: plan.BatchID, DryRun: opts.DryRun}

	if err := ctx.Err(); err != nil {
		result.Status = models.ExecutionCancelled
		result.Err = err
		return result
	}

	// Operations failing the safety re-check are never attempted or backed up
	rejected := make([]error, len(plan.Operations))
	for i, op := range plan.Operations {
		rejected[i] = e.checkSafety(plan.BaseDirectory, op)
	}

	if !opts.DryRun && opts.Backup && len(plan.Operations) > 0 {
		entry, err := e.backup(ctx, plan, rejected)
		if err != nil {
			e.logger.Error("aborting batch: backup failed", "batch_id", plan.BatchID, "error", err)
			result.Status = models.ExecutionAborted
			result.Err = err
			return result
		}
		if entry != nil {
			result.BackupPath = entry.Path
		}
	}

	sim := newSimulation()
	cancelled := false
	for i, op := range plan.Operations {
		err := rejected[i]
		if err == nil {
			if opts.DryRun {
				err = sim.check(e.fs, op, e.opts.VerifyHashes)
			} else {
				err = e.apply(plan.BatchID, op)
			}
		}

		if err != nil {
			e.logger.Warn("operation failed",
				"batch_id", plan.BatchID, "index", i+1,
				"source", op.SourcePath, "destination", op.DestinationPath, "error", err)
			result.Failed++
			result.Failures = append(result.Failures, models.OperationFailure{
				Index:           i,
				SourcePath:      op.SourcePath,
				DestinationPath: op.DestinationPath,
				Err:             err,
			})
		} else {
			e.logger.Debug("operation completed",
				"batch_id", plan.BatchID, "index", i+1, "dry_run", opts.DryRun,
				"source", op.SourcePath, "destination", op.DestinationPath)
			result.Completed++
		}

		if opts.Progress != nil {
			opts.Progress(models.Progress{Index: i, Total: len(plan.Operations), Operation: op, Err: err})
		}

		if (opts.Cancel != nil && opts.Cancel()) || ctx.Err() != nil {
			cancelled = i < len(plan.Operations)-1
			if cancelled {
				result.Err = context.Canceled
				if ctxErr := ctx.Err(); ctxErr != nil {
					result.Err = ctxErr
				}
			}
			break
		}
	}

	switch {
	case cancelled:
		result.Status = models.ExecutionCancelled
	case result.Failed == 0:
		result.Status = models.ExecutionCompleted
	case result.Completed > 0:
		result.Status = models.ExecutionPartial
	default:
		result.Status = models.ExecutionFailed
	}

	e.logger.Info("batch executed",
		"batch_id", plan.BatchID,
		"status", result.Status,
		"dry_run", opts.DryRun,
		"completed", result.Completed,
		"failed", result.Failed,
	)
	return result
}

// checkSafety re-runs the path checks that must hold even if the caller
// skipped validation.
func (e *Executor) checkSafety(base string, op models.Operation) error {
	if !pathsafe.ValidateSafePath(base, op.DestinationPath) {
		return fmt.Errorf("%s: %w", op.DestinationPath, ErrPathEscape)
	}
	if pattern, ok := planner.ProtectedMatch(e.opts.ProtectedPaths, op.DestinationPath); ok {
		return fmt.Errorf("%s matches %q: %w", op.DestinationPath, pattern, ErrProtected)
	}
	return nil
}

// backup copies the sources that are still present. Vanished sources are
// left to fail as their own operations.
func (e *Executor) backup(ctx context.Context, plan *models.Plan, rejected []error) (*models.BackupEntry, error) {
	if e.backups == nil {
		return nil, ErrNoBackupManager
	}
	var files []string
	for i, op := range plan.Operations {
		if rejected[i] != nil {
			continue
		}
		exists, err := e.fs.Exists(op.SourcePath)
		if err == nil && !exists {
			continue
		}
		files = append(files, op.SourcePath)
	}
	return e.backups.Create(ctx, plan.BatchID, plan.BaseDirectory, files)
}

// apply performs one real move and records it. Every check runs before
// any directory is created, and directories created for a move that then
// fails are removed again.
func (e *Executor) apply(batchID string, op models.Operation) error {
	info, err := os.Lstat(op.SourcePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%s: %w", op.SourcePath, fsops.ErrSourceNotFound)
	case err != nil:
		return fmt.Errorf("stat source: %w", err)
	case !info.Mode().IsRegular():
		return fmt.Errorf("%s: %w", op.SourcePath, fsops.ErrNotRegularFile)
	}

	exists, err := e.fs.Exists(op.DestinationPath)
	if err != nil {
		return fmt.Errorf("stat destination: %w", err)
	}
	if exists {
		return fmt.Errorf("%s: %w", op.DestinationPath, fsops.ErrDestinationExists)
	}
	if name := filepath.Base(op.DestinationPath); len(name) > maxNameBytes {
		return fmt.Errorf("%s: %w", op.DestinationPath, syscall.ENAMETOOLONG)
	}

	var before string
	if e.opts.VerifyHashes {
		if before, err = hash.File(op.SourcePath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%s: %w", op.SourcePath, fsops.ErrSourceNotFound)
			}
			return fmt.Errorf("hash source: %w", err)
		}
	}

	destDir := filepath.Dir(op.DestinationPath)
	ancestor, err := fsops.NearestExistingAncestor(destDir)
	if err != nil {
		return fmt.Errorf("destination directory: %w", err)
	}
	if err := e.fs.MkdirAll(destDir, 0755); err != nil {
		fsops.PruneEmptyDirs(e.fs, destDir, ancestor)
		return fmt.Errorf("create destination directory: %w", err)
	}

	if err := e.fs.Move(op.SourcePath, op.DestinationPath); err != nil {
		fsops.PruneEmptyDirs(e.fs, destDir, ancestor)
		return err
	}

	var mismatch error
	if before != "" {
		after, err := hash.File(op.DestinationPath)
		if err != nil {
			mismatch = fmt.Errorf("hash destination: %w", err)
		} else if after != before {
			mismatch = fmt.Errorf("%s: %w", op.DestinationPath, ErrHashMismatch)
		}
	}

	if _, err := e.log.Record(batchID, op.Type, op.SourcePath, op.DestinationPath, before); err != nil {
		// An unrecorded move could never be undone, so take it back
		if rbErr := e.fs.Move(op.DestinationPath, op.SourcePath); rbErr != nil {
			e.logger.Error("cannot move file back after recording failed",
				"source", op.SourcePath, "destination", op.DestinationPath, "error", rbErr)
			return fmt.Errorf("record operation: %w (file left at %s: %v)", err, op.DestinationPath, rbErr)
		}
		fsops.PruneEmptyDirs(e.fs, destDir, ancestor)
		return fmt.Errorf("record operation: %w", err)
	}

	// The move stays recorded so it can still be undone
	return mismatch
}

// maxNameBytes is the file name limit of common filesystems
const maxNameBytes = 255

// simulation tracks what a real run would have done so far, so a dry run
// reports the same outcome for chained and colliding operations.
type simulation struct {
	claimed map[string]bool
	vacated map[string]bool
}

func newSimulation() *simulation {
	return &simulation{claimed: make(map[string]bool), vacated: make(map[string]bool)}
}

// check reports whether a real run would succeed at op, then records its effect
func (s *simulation) check(fs fsops.FS, op models.Operation, verifyHashes bool) error {
	src := planner.NormalizeKey(op.SourcePath)
	dst := planner.NormalizeKey(op.DestinationPath)

	if !s.claimed[src] {
		if s.vacated[src] {
			return fmt.Errorf("%s: %w", op.SourcePath, fsops.ErrSourceNotFound)
		}
		info, err := os.Lstat(op.SourcePath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%s: %w", op.SourcePath, fsops.ErrSourceNotFound)
			}
			return fmt.Errorf("stat source: %w", err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%s: %w", op.SourcePath, fsops.ErrNotRegularFile)
		}
		if verifyHashes {
			if err := fsops.CheckReadable(op.SourcePath); err != nil {
				return fmt.Errorf("hash source: %w", err)
			}
		}
		// Moving a file out needs write access to its directory
		if err := fsops.CheckWritable(filepath.Dir(op.SourcePath)); err != nil {
			return fmt.Errorf("source directory %s: %w", filepath.Dir(op.SourcePath), err)
		}
	}

	if s.claimed[dst] {
		return fmt.Errorf("%s: %w", op.DestinationPath, ErrPlannedCollision)
	}
	if !s.vacated[dst] {
		exists, err := fs.Exists(op.DestinationPath)
		if err != nil {
			return fmt.Errorf("stat destination: %w", err)
		}
		if exists {
			return fmt.Errorf("%s: %w", op.DestinationPath, fsops.ErrDestinationExists)
		}
	}

	if name := filepath.Base(op.DestinationPath); len(name) > maxNameBytes {
		return fmt.Errorf("%s: %w", op.DestinationPath, syscall.ENAMETOOLONG)
	}
	if err := fsops.CheckCreatable(filepath.Dir(op.DestinationPath)); err != nil {
		return fmt.Errorf("destination directory: %w", err)
	}

	delete(s.claimed, src)
	s.vacated[src] = true
	delete(s.vacated, dst)
	s.claimed[dst] = true
	return nil
}
