package classsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/courseflow/class-sync/logging"
)

// OperationStrategy is the pluggable extension point for merge and update
// operations. The engine ships logging stubs; a real merge algorithm can
// be substituted without touching the executor.
type OperationStrategy interface {
	// Apply performs the strategy's work for one operation.
	Apply(ctx context.Context, op *ContentSyncOperation) error
}

// LoggingStrategy is the default OperationStrategy: it records that the
// operation ran and succeeds without mutating any state.
type LoggingStrategy struct {
	Name   string
	Logger *logging.Logger
}

// NewLoggingStrategy creates a no-op strategy that logs under the given name.
func NewLoggingStrategy(name string, logger *logging.Logger) *LoggingStrategy {
	if logger == nil {
		logger = logging.Default()
	}
	return &LoggingStrategy{Name: name, Logger: logger}
}

func (s *LoggingStrategy) Apply(ctx context.Context, op *ContentSyncOperation) error {
	s.Logger.InfoContext(ctx, "strategy applied",
		slog.String("strategy", s.Name),
		slog.String("operation_id", op.ID),
		slog.String("operation_type", string(op.Type)),
		slog.String("content_id", op.ContentID),
		slog.Int64("version", op.Version))
	return nil
}

// ResolutionOutcome is the policy's decision for one conflict.
type ResolutionOutcome struct {
	// Corrective is a synthesized operation the executor must run
	// immediately, or nil when no automatic correction applies.
	Corrective *ContentSyncOperation

	// ManualReview marks the conflict for operator attention; the engine
	// emits a conflict_detected event for it.
	ManualReview bool

	// Suggestions are non-binding alignment hints logged for operators.
	Suggestions []string

	// Decision names the branch taken, for logs and metrics.
	Decision string
}

// ResolutionPolicy decides whether a detected conflict is auto-resolved
// or flagged for manual review, driven by the configured resolution mode.
type ResolutionPolicy struct {
	mode   ResolutionMode
	logger *logging.Logger
	now    func() time.Time
	newID  func() string
}

// NewResolutionPolicy creates a policy for the given mode.
func NewResolutionPolicy(mode ResolutionMode, logger *logging.Logger) *ResolutionPolicy {
	if logger == nil {
		logger = logging.Default()
	}
	return &ResolutionPolicy{
		mode:   mode,
		logger: logger.WithComponent("resolution_policy"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.NewString() },
	}
}

// Mode returns the configured resolution mode.
func (p *ResolutionPolicy) Mode() ResolutionMode {
	return p.mode
}

// Resolve decides how a conflict is handled. Under merge mode,
// non-critical version mismatches get a synthesized merge operation
// targeting max(sourceVersion, targetVersion)+1, and progression gaps get
// non-binding suggestions only, since progression changes require
// pedagogical judgement. Everything else is flagged for manual review.
func (p *ResolutionPolicy) Resolve(ctx context.Context, conflict SyncConflict) ResolutionOutcome {
	if p.mode != ModeMerge || conflict.Severity == SeverityCritical {
		return p.manualReview(ctx, conflict, "resolution mode or severity requires review")
	}

	switch conflict.Type {
	case ConflictVersionMismatch:
		target := maxInt64(conflict.SourceVersion, conflict.TargetVersion) + 1
		op := &ContentSyncOperation{
			ID:             p.newID(),
			Type:           OperationMerge,
			SourceGroupID:  conflict.SourceGroupID,
			TargetGroupIDs: []string{conflict.TargetGroupID},
			ContentID:      conflict.ContentID,
			Version:        target,
			Priority:       PriorityHigh,
			Status:         StatusPending,
			ScheduledAt:    p.now(),
			Metadata: map[string]interface{}{
				"conflict_id":   conflict.ID,
				"conflict_type": string(conflict.Type),
			},
		}
		p.logger.InfoContext(ctx, "synthesized merge operation for version mismatch",
			slog.String("conflict_id", conflict.ID),
			slog.String("source_group", conflict.SourceGroupID),
			slog.String("target_group", conflict.TargetGroupID),
			slog.Int64("merge_version", target))
		return ResolutionOutcome{Corrective: op, Decision: "auto_merge"}

	case ConflictProgressionGap:
		// No state mutation here: closing a progression gap is a
		// pedagogical call, not a data repair.
		suggestions := []string{
			fmt.Sprintf("review curriculum pacing for groups %s and %s",
				conflict.SourceGroupID, conflict.TargetGroupID),
			"consider catch-up sessions for the trailing group",
		}
		p.logger.InfoContext(ctx, "progression gap detected, suggestions logged",
			slog.String("conflict_id", conflict.ID),
			slog.Any("suggestions", suggestions))
		return ResolutionOutcome{Suggestions: suggestions, Decision: "suggest_alignment"}

	default:
		return p.manualReview(ctx, conflict, fmt.Sprintf("no automatic handler for %s conflicts", conflict.Type))
	}
}

func (p *ResolutionPolicy) manualReview(ctx context.Context, conflict SyncConflict, reason string) ResolutionOutcome {
	p.logger.InfoContext(ctx, "conflict flagged for manual review",
		slog.String("conflict_id", conflict.ID),
		slog.String("conflict_type", string(conflict.Type)),
		slog.String("severity", string(conflict.Severity)),
		slog.String("reason", reason))
	return ResolutionOutcome{ManualReview: true, Decision: "manual_review"}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
