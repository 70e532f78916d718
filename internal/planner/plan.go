package planner

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/kilupskalvis/tidy/internal/models"
	"github.com/kilupskalvis/tidy/internal/pathsafe"
)

// ErrNoBaseDirectory is returned when a plan is requested without a target root
var ErrNoBaseDirectory = errors.New("base directory is required")

// Options control how destinations are computed
type Options struct {
	ConfidenceThreshold float64
	MaxFilenameLength   int
	ForceExtension      bool
}

// DefaultOptions accepts every suggestion and allows 255-byte names
func DefaultOptions() Options {
	return Options{ConfidenceThreshold: 0, MaxFilenameLength: 255}
}

// Planner builds organization plans
type Planner struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Planner. A nil logger discards output.
func New(opts Options, logger *slog.Logger) *Planner {
	if opts.MaxFilenameLength <= 0 {
		opts.MaxFilenameLength = DefaultOptions().MaxFilenameLength
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Planner{opts: opts, logger: logger}
}

// CreatePlan proposes one operation per file that has a suggestion at or
// above the confidence threshold. Operation order follows input order.
func (p *Planner) CreatePlan(files []models.FileInfo, suggestions map[string]models.Suggestion, baseDir string) (*models.Plan, error) {
	if baseDir == "" {
		return nil, ErrNoBaseDirectory
	}
	base, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	plan := models.NewPlan(base)
	for _, file := range files {
		sug, ok := lookupSuggestion(suggestions, file.Path)
		if !ok {
			continue
		}
		if math.IsNaN(sug.Confidence) || sug.Confidence < p.opts.ConfidenceThreshold {
			p.logger.Debug("skipping low-confidence suggestion",
				"path", file.Path, "confidence", sug.Confidence, "threshold", p.opts.ConfidenceThreshold)
			continue
		}

		source, err := filepath.Abs(file.Path)
		if err != nil {
			p.logger.Warn("skipping unresolvable source", "path", file.Path, "error", err)
			continue
		}

		dest := p.destination(base, source, sug)
		if dest == source {
			// Already where it belongs
			continue
		}

		opType := models.OperationMove
		if filepath.Dir(source) == filepath.Dir(dest) {
			opType = models.OperationRename
		}

		plan.AddOperation(models.Operation{
			SourcePath:      source,
			DestinationPath: dest,
			Type:            opType,
			Confidence:      sug.Confidence,
			Reasoning:       sug.Reasoning,
		})
	}

	p.logger.Info("plan created", "batch_id", plan.BatchID, "operations", plan.Len(), "files", len(files))
	return plan, nil
}

// destination computes base/category/name for one file
func (p *Planner) destination(base, source string, sug models.Suggestion) string {
	category := truncateName(pathsafe.SanitizeComponent(sug.Category), p.opts.MaxFilenameLength)

	original := filepath.Base(source)
	origExt := filepath.Ext(original)

	name := sug.SuggestedName
	if strings.TrimSpace(name) == "" {
		name = original
	}
	name = pathsafe.SanitizeComponent(name)

	if origExt != "" {
		nameExt := filepath.Ext(name)
		if nameExt == "" || (p.opts.ForceExtension && !strings.EqualFold(nameExt, origExt)) {
			name += origExt
		}
	}
	name = truncateName(name, p.opts.MaxFilenameLength)

	return filepath.Join(base, category, name)
}

func lookupSuggestion(suggestions map[string]models.Suggestion, path string) (models.Suggestion, bool) {
	if sug, ok := suggestions[path]; ok {
		return sug, true
	}
	sug, ok := suggestions[filepath.Clean(path)]
	return sug, ok
}

// truncateName shortens name to at most max bytes, keeping its extension and
// never splitting a UTF-8 sequence.
func truncateName(name string, max int) string {
	if len(name) <= max {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	room := max - len(ext)
	if room < 1 {
		ext = ""
		stem = name
		room = max
	}
	stem = truncateUTF8(stem, room)
	stem = strings.TrimRight(stem, ". ")
	if stem == "" {
		stem = pathsafe.FallbackName
	}
	return stem + ext
}

func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// NormalizeKey returns the form destinations are compared in. Case is folded
// on platforms whose default filesystems are case-insensitive.
func NormalizeKey(path string) string {
	cleaned := filepath.Clean(path)
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		return strings.ToLower(cleaned)
	}
	return cleaned
}
