// Package classsync implements the content synchronization and
// conflict-resolution engine that keeps the curriculum position of
// parallel class groups aligned. It detects divergence between groups,
// resolves or escalates conflicts, supports point-in-time rollback of
// content via immutable versions, and computes progress-alignment
// actions for students joining a group mid-course.
package classsync

import (
	"time"
)

// OperationType identifies the kind of synchronization work an operation
// performs. The set is closed: dispatch is exhaustive over these variants.
type OperationType string

const (
	OperationSync     OperationType = "sync"
	OperationRollback OperationType = "rollback"
	OperationUpdate   OperationType = "update"
	OperationMerge    OperationType = "merge"
)

// IsValid returns true if the operation type is recognized.
func (t OperationType) IsValid() bool {
	switch t {
	case OperationSync, OperationRollback, OperationUpdate, OperationMerge:
		return true
	default:
		return false
	}
}

// OperationStatus tracks the lifecycle of an operation. Transitions move
// strictly forward: pending -> in_progress -> completed | failed.
type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusInProgress OperationStatus = "in_progress"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
)

// Priority orders operations for reporting purposes. Derived from the
// content type of the record being synchronized.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ConflictType classifies a detected divergence between two groups.
// content_divergence and dependency_violation are declared for future
// detectors; the base detector emits version_mismatch and progression_gap.
type ConflictType string

const (
	ConflictVersionMismatch     ConflictType = "version_mismatch"
	ConflictContentDivergence   ConflictType = "content_divergence"
	ConflictProgressionGap      ConflictType = "progression_gap"
	ConflictDependencyViolation ConflictType = "dependency_violation"
)

// Severity grades how urgently a conflict needs attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Resolution is the suggested way to settle a conflict.
type Resolution string

const (
	ResolutionMerge        Resolution = "merge"
	ResolutionOverwrite    Resolution = "overwrite"
	ResolutionManualReview Resolution = "manual_review"
	ResolutionSkip         Resolution = "skip"
)

// ResolutionMode configures how the engine reacts to detected conflicts.
type ResolutionMode string

const (
	ModeMerge   ResolutionMode = "merge"
	ModeManual  ResolutionMode = "manual"
	ModeDelayed ResolutionMode = "delayed"
)

// IsValid returns true if the resolution mode is recognized.
func (m ResolutionMode) IsValid() bool {
	switch m {
	case ModeMerge, ModeManual, ModeDelayed:
		return true
	default:
		return false
	}
}

// ContentType categorizes a content record and drives operation priority.
type ContentType string

const (
	ContentLesson     ContentType = "lesson"
	ContentAssignment ContentType = "assignment"
	ContentMaterial   ContentType = "material"
)

// ClassGroupSyncState is the per-group synchronization state. SyncVersion
// is a monotonically non-decreasing logical clock, bumped on every
// completed synchronizing mutation, and is the basis for conflict
// detection. Groups are never physically deleted by the engine; they are
// deactivated instead.
type ClassGroupSyncState struct {
	GroupID           string    `json:"group_id"`
	CourseID          string    `json:"course_id"`
	CurrentUnit       int       `json:"current_unit"`
	CurrentLesson     int       `json:"current_lesson"`
	ContentIDs        []string  `json:"content_ids"`
	LastSyncTimestamp time.Time `json:"last_sync_timestamp"`
	SyncVersion       int64     `json:"sync_version"`
	StudentIDs        []string  `json:"student_ids"`
	TeacherID         string    `json:"teacher_id"`
	IsActive          bool      `json:"is_active"`
}

// Clone returns a deep copy so cached state cannot be mutated by callers.
func (s *ClassGroupSyncState) Clone() *ClassGroupSyncState {
	if s == nil {
		return nil
	}
	out := *s
	out.ContentIDs = append([]string(nil), s.ContentIDs...)
	out.StudentIDs = append([]string(nil), s.StudentIDs...)
	return &out
}

// HasContent reports whether the group is associated with the content id.
func (s *ClassGroupSyncState) HasContent(contentID string) bool {
	for _, id := range s.ContentIDs {
		if id == contentID {
			return true
		}
	}
	return false
}

// ContentRecord is the generic live content shape consumed by the engine.
// Authoring and editing of these records is out of scope.
type ContentRecord struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Content   string      `json:"content"`
	Excerpt   string      `json:"excerpt"`
	Type      ContentType `json:"type"`
	Version   int64       `json:"version"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Clone returns a copy of the content record.
func (c *ContentRecord) Clone() *ContentRecord {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// ContentVersion is an immutable snapshot of a content record used for
// point-in-time rollback. Versions for a given content id form a total
// order by Version; once created they are never mutated.
type ContentVersion struct {
	ID            string    `json:"id"`
	ContentID     string    `json:"content_id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Excerpt       string    `json:"excerpt"`
	Version       int64     `json:"version"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	ChangeSummary string    `json:"change_summary"`
}

// ContentSyncOperation is one unit of synchronization work targeting a
// single group. TargetGroupIDs is a singleton in practice; the plural
// field is retained for batch reporting.
type ContentSyncOperation struct {
	ID             string                 `json:"id"`
	Type           OperationType          `json:"operation_type"`
	SourceGroupID  string                 `json:"source_group_id"`
	TargetGroupIDs []string               `json:"target_group_ids"`
	ContentID      string                 `json:"content_id"`
	Version        int64                  `json:"version"`
	Priority       Priority               `json:"priority"`
	Status         OperationStatus        `json:"status"`
	ScheduledAt    time.Time              `json:"scheduled_at"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
	Error          string                 `json:"error,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Clone returns a copy safe to hand to callers while the engine keeps
// mutating its own record.
func (o *ContentSyncOperation) Clone() *ContentSyncOperation {
	if o == nil {
		return nil
	}
	out := *o
	out.TargetGroupIDs = append([]string(nil), o.TargetGroupIDs...)
	if o.CompletedAt != nil {
		at := *o.CompletedAt
		out.CompletedAt = &at
	}
	if o.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(o.Metadata))
		for k, v := range o.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// ResolutionStrategy carries the optional machine-readable resolution plan
// attached to a conflict.
type ResolutionStrategy struct {
	StrategyType   string                 `json:"strategy_type"`
	Action         string                 `json:"action"`
	Parameters     map[string]interface{} `json:"parameters,omitempty"`
	ReviewRequired bool                   `json:"review_required"`
	ApprovalUsers  []string               `json:"approval_users,omitempty"`
}

// SyncConflict records a detected inconsistency between two groups' sync
// state for a given content item. Conflicts are stored keyed by id for
// later inspection and acknowledgement; the engine does not delete them.
type SyncConflict struct {
	ID                  string              `json:"id"`
	Type                ConflictType        `json:"conflict_type"`
	SourceGroupID       string              `json:"source_group_id"`
	TargetGroupID       string              `json:"target_group_id"`
	ContentID           string              `json:"content_id"`
	SourceVersion       int64               `json:"source_version"`
	TargetVersion       int64               `json:"target_version"`
	Severity            Severity            `json:"severity"`
	Description         string              `json:"description"`
	SuggestedResolution Resolution          `json:"suggested_resolution"`
	Strategy            *ResolutionStrategy `json:"resolution_strategy,omitempty"`
	DetectedAt          time.Time           `json:"detected_at"`
	Acknowledged        bool                `json:"acknowledged"`
}

// Progress is a curriculum position with its completion percentage.
type Progress struct {
	Unit       int     `json:"unit"`
	Lesson     int     `json:"lesson"`
	Percentage float64 `json:"percentage"`
}

// ContentProgressAlignment is the derived comparison between a student's
// actual progress and a target group's expected progress. It is computed
// on demand and never persisted.
type ContentProgressAlignment struct {
	GroupID          string   `json:"group_id"`
	ExpectedProgress Progress `json:"expected_progress"`
	ActualProgress   Progress `json:"actual_progress"`
	Deviation        float64  `json:"deviation"`
	AlignmentActions []string `json:"alignment_actions"`
}

// StudentProgress is the stored curriculum position of a single student.
type StudentProgress struct {
	StudentID  string    `json:"student_id"`
	Unit       int       `json:"unit"`
	Lesson     int       `json:"lesson"`
	Percentage float64   `json:"percentage"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Statistics summarizes the engine's current bookkeeping for
// introspection endpoints.
type Statistics struct {
	GroupsRegistered     int                     `json:"groups_registered"`
	GroupsActive         int                     `json:"groups_active"`
	OperationsByStatus   map[OperationStatus]int `json:"operations_by_status"`
	ConflictsBySeverity  map[Severity]int        `json:"conflicts_by_severity"`
	ConflictsOutstanding int                     `json:"conflicts_outstanding"`
}
