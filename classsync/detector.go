package classsync

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Detection thresholds. The version gap is measured on the groups' sync
// version logical clocks; the progression gap is measured on positions
// encoded as unit*100+lesson, so 200 means more than two full units of
// curriculum distance under a 100-lessons-per-unit encoding.
const (
	maxVersionGap     = 1
	maxProgressionGap = 200
	positionUnitSpan  = 100
)

// ConflictDetector compares two group states for a content id and emits
// zero or more conflicts. Detection is a pure comparison: it never fetches
// content bodies, which keeps it cheap and explainable. The
// content_divergence and dependency_violation types are extension points
// for future detectors.
type ConflictDetector struct {
	now   func() time.Time
	newID func() string
}

// NewConflictDetector creates a detector with real time and id sources.
func NewConflictDetector() *ConflictDetector {
	return &ConflictDetector{
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
}

// Detect returns the conflicts between a source and target group for the
// given content id. Both checks are independent and may both fire;
// version mismatch is always emitted before progression gap so callers
// can assert deterministically on the order.
func (d *ConflictDetector) Detect(source, target *ClassGroupSyncState, contentID string) []SyncConflict {
	var conflicts []SyncConflict

	if gap := absInt64(source.SyncVersion - target.SyncVersion); gap > maxVersionGap {
		conflicts = append(conflicts, SyncConflict{
			ID:            d.newID(),
			Type:          ConflictVersionMismatch,
			SourceGroupID: source.GroupID,
			TargetGroupID: target.GroupID,
			ContentID:     contentID,
			SourceVersion: source.SyncVersion,
			TargetVersion: target.SyncVersion,
			Severity:      SeverityMedium,
			Description: fmt.Sprintf("sync version gap of %d between group %s (v%d) and group %s (v%d)",
				gap, source.GroupID, source.SyncVersion, target.GroupID, target.SyncVersion),
			SuggestedResolution: ResolutionMerge,
			DetectedAt:          d.now(),
		})
	}

	if gap := absInt(encodePosition(source) - encodePosition(target)); gap > maxProgressionGap {
		conflicts = append(conflicts, SyncConflict{
			ID:            d.newID(),
			Type:          ConflictProgressionGap,
			SourceGroupID: source.GroupID,
			TargetGroupID: target.GroupID,
			ContentID:     contentID,
			SourceVersion: source.SyncVersion,
			TargetVersion: target.SyncVersion,
			Severity:      SeverityHigh,
			Description: fmt.Sprintf("curriculum position gap of %d between group %s (unit %d, lesson %d) and group %s (unit %d, lesson %d)",
				gap, source.GroupID, source.CurrentUnit, source.CurrentLesson,
				target.GroupID, target.CurrentUnit, target.CurrentLesson),
			SuggestedResolution: ResolutionManualReview,
			Strategy: &ResolutionStrategy{
				StrategyType:   "pedagogical_review",
				Action:         "review_progression",
				ReviewRequired: true,
			},
			DetectedAt: d.now(),
		})
	}

	return conflicts
}

// encodePosition flattens a curriculum position to a single comparable
// integer: unit*100+lesson.
func encodePosition(state *ClassGroupSyncState) int {
	return state.CurrentUnit*positionUnitSpan + state.CurrentLesson
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
