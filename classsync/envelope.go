package classsync

import (
	"context"
	"time"

	"github.com/google/uuid"

	syncErrors "github.com/courseflow/class-sync/errors"
)

// ErrorInfo is the error half of the uniform response envelope.
type ErrorInfo struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// ResponseMetadata is attached to successful envelopes.
type ResponseMetadata struct {
	RequestID      string        `json:"request_id"`
	Timestamp      time.Time     `json:"timestamp"`
	ProcessingTime time.Duration `json:"processing_time"`
	Version        string        `json:"version"`
}

// Response is the uniform envelope the surrounding application consumes.
// Callers always receive a definite success/failure; partial batch
// success is represented by each operation's own status and error, never
// by the top-level flag.
type Response struct {
	Success  bool              `json:"success"`
	Data     interface{}       `json:"data,omitempty"`
	Error    *ErrorInfo        `json:"error,omitempty"`
	Metadata *ResponseMetadata `json:"metadata,omitempty"`
}

// apiVersion is reported in response metadata.
const apiVersion = "1.0"

// API wraps the engine in the envelope contract: every method catches
// engine errors and converts them into the uniform response shape.
type API struct {
	engine *Engine
	now    func() time.Time
	newID  func() string
}

// NewAPI creates the envelope facade over an engine.
func NewAPI(engine *Engine) *API {
	return &API{
		engine: engine,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.NewString() },
	}
}

// Engine returns the wrapped engine for callers that prefer error returns.
func (a *API) Engine() *Engine {
	return a.engine
}

// RegisterClassGroup registers a group and returns the stored state.
func (a *API) RegisterClassGroup(ctx context.Context, state *ClassGroupSyncState) Response {
	start := a.now()
	stored, err := a.engine.RegisterClassGroup(ctx, state)
	if err != nil {
		return a.fail(err)
	}
	return a.ok(stored, start)
}

// SynchronizeContent runs a synchronization pass and returns the
// per-target operations.
func (a *API) SynchronizeContent(ctx context.Context, sourceGroupID, contentID string, targetGroupIDs ...string) Response {
	start := a.now()
	ops, err := a.engine.SynchronizeContent(ctx, sourceGroupID, contentID, targetGroupIDs...)
	if err != nil {
		return a.fail(err)
	}
	return a.ok(ops, start)
}

// BatchSynchronize synchronizes several content ids.
func (a *API) BatchSynchronize(ctx context.Context, sourceGroupID string, contentIDs []string, targetGroupIDs ...string) Response {
	start := a.now()
	ops, err := a.engine.BatchSynchronize(ctx, sourceGroupID, contentIDs, targetGroupIDs...)
	if err != nil {
		return a.fail(err)
	}
	return a.ok(ops, start)
}

// RollbackContent rolls content back to a stored version for each group.
func (a *API) RollbackContent(ctx context.Context, contentID string, targetVersion int64, groupIDs []string) Response {
	start := a.now()
	ops, err := a.engine.RollbackContent(ctx, contentID, targetVersion, groupIDs)
	if err != nil {
		return a.fail(err)
	}
	return a.ok(ops, start)
}

// CreateVersion snapshots live content as an immutable version.
func (a *API) CreateVersion(ctx context.Context, contentID, groupID, changeSummary string) Response {
	start := a.now()
	version, err := a.engine.CreateVersion(ctx, contentID, groupID, changeSummary)
	if err != nil {
		return a.fail(err)
	}
	return a.ok(version, start)
}

// AlignStudentProgress computes a student's alignment against a group.
func (a *API) AlignStudentProgress(ctx context.Context, studentID, targetGroupID string) Response {
	start := a.now()
	alignment, err := a.engine.AlignStudentProgress(ctx, studentID, targetGroupID)
	if err != nil {
		return a.fail(err)
	}
	return a.ok(alignment, start)
}

// GetActiveOperations returns all tracked operations.
func (a *API) GetActiveOperations(ctx context.Context) Response {
	start := a.now()
	return a.ok(a.engine.GetActiveOperations(), start)
}

// GetConflicts returns all recorded conflicts.
func (a *API) GetConflicts(ctx context.Context) Response {
	start := a.now()
	return a.ok(a.engine.GetConflicts(), start)
}

// GetStatistics returns engine bookkeeping counts.
func (a *API) GetStatistics(ctx context.Context) Response {
	start := a.now()
	return a.ok(a.engine.GetStatistics(ctx), start)
}

func (a *API) ok(data interface{}, start time.Time) Response {
	now := a.now()
	return Response{
		Success: true,
		Data:    data,
		Metadata: &ResponseMetadata{
			RequestID:      a.newID(),
			Timestamp:      now,
			ProcessingTime: now.Sub(start),
			Version:        apiVersion,
		},
	}
}

func (a *API) fail(err error) Response {
	code := syncErrors.CodeOf(err)
	if code == "" {
		code = syncErrors.ErrCodeStorageFailure
	}
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      string(code),
			Message:   err.Error(),
			Category:  categoryFor(code),
			Severity:  severityFor(code),
			Timestamp: a.now(),
		},
	}
}

func categoryFor(code syncErrors.ErrorCode) string {
	switch code {
	case syncErrors.ErrCodeValidationFailure:
		return "validation"
	case syncErrors.ErrCodeSourceNotFound:
		return "not_found"
	case syncErrors.ErrCodeStorageFailure:
		return "storage"
	default:
		return "operation"
	}
}

func severityFor(code syncErrors.ErrorCode) string {
	switch code {
	case syncErrors.ErrCodeValidationFailure:
		return "low"
	case syncErrors.ErrCodeStorageFailure:
		return "high"
	default:
		return "medium"
	}
}
