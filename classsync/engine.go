package classsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	syncErrors "github.com/courseflow/class-sync/errors"
	"github.com/courseflow/class-sync/logging"
)

// Engine is the content synchronization and conflict-resolution engine.
// It owns the operation pipeline: target resolution, conflict detection,
// policy-driven resolution, per-type dispatch and status tracking.
//
// Completed operations are retained in an in-memory map for status
// queries only; archiving history is the caller's responsibility.
type Engine struct {
	store    Store
	states   *StateStore
	detector *ConflictDetector
	policy   *ResolutionPolicy
	versions *VersionStore
	config   Config
	logger   *logging.Logger
	metrics  MetricsCollector
	locks    *keyedMutex
	emitter  *eventEmitter

	mergeStrategy  OperationStrategy
	updateStrategy OperationStrategy

	mu         sync.RWMutex
	operations map[string]*ContentSyncOperation
	conflicts  map[string]*SyncConflict

	now   func() time.Time
	newID func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default engine configuration.
func WithConfig(config Config) Option {
	return func(e *Engine) { e.config = config }
}

// WithLogger sets the engine logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector MetricsCollector) Option {
	return func(e *Engine) { e.metrics = collector }
}

// WithMergeStrategy replaces the default merge stub with a real strategy.
func WithMergeStrategy(strategy OperationStrategy) Option {
	return func(e *Engine) { e.mergeStrategy = strategy }
}

// WithUpdateStrategy replaces the default update stub.
func WithUpdateStrategy(strategy OperationStrategy) Option {
	return func(e *Engine) { e.updateStrategy = strategy }
}

// NewEngine creates an engine on top of the given persistent store.
func NewEngine(store Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	e := &Engine{
		store:      store,
		config:     DefaultConfig(),
		metrics:    &NoOpMetricsCollector{},
		locks:      newKeyedMutex(),
		emitter:    newEventEmitter(),
		operations: make(map[string]*ContentSyncOperation),
		conflicts:  make(map[string]*SyncConflict),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.NewString() },
	}

	for _, opt := range opts {
		opt(e)
	}

	if err := e.config.Validate(); err != nil {
		return nil, err
	}
	if e.logger == nil {
		e.logger = logging.Default()
	}
	e.logger = e.logger.WithComponent("engine")

	e.states = NewStateStore(store, e.logger)
	e.detector = NewConflictDetector()
	e.policy = NewResolutionPolicy(e.config.ConflictResolution, e.logger)
	e.versions = NewVersionStore(store, e.logger)
	if e.mergeStrategy == nil {
		e.mergeStrategy = NewLoggingStrategy("merge", e.logger)
	}
	if e.updateStrategy == nil {
		e.updateStrategy = NewLoggingStrategy("update", e.logger)
	}

	return e, nil
}

// States exposes the cached sync-state store.
func (e *Engine) States() *StateStore {
	return e.states
}

// Versions exposes the content version store.
func (e *Engine) Versions() *VersionStore {
	return e.versions
}

// RegisterClassGroup validates and registers a group for synchronization
// management and emits a group_registered event.
func (e *Engine) RegisterClassGroup(ctx context.Context, state *ClassGroupSyncState) (*ClassGroupSyncState, error) {
	if state == nil || state.GroupID == "" {
		return nil, syncErrors.New(syncErrors.OpRegister, syncErrors.ErrCodeRegistrationFailed,
			fmt.Errorf("registration payload missing group id"))
	}

	unlock := e.locks.Lock(state.GroupID)
	defer unlock()

	stored, err := e.states.Register(ctx, state)
	if err != nil {
		return nil, err
	}

	e.emitter.emit(EngineEvent{Type: EventGroupRegistered, GroupID: stored.GroupID})
	return stored, nil
}

// DeactivateGroup marks a group inactive. Inactive groups are excluded
// from target resolution; their records are never deleted.
func (e *Engine) DeactivateGroup(ctx context.Context, groupID string) error {
	unlock := e.locks.Lock(groupID)
	defer unlock()
	return e.states.Deactivate(ctx, groupID)
}

// SynchronizeContent synchronizes one content id from a source group into
// target groups. With no explicit targets, all other active groups on the
// source's course are targeted. One sync operation is built per target
// and executed sequentially; a failed operation does not roll back
// earlier successes in the same batch.
func (e *Engine) SynchronizeContent(ctx context.Context, sourceGroupID, contentID string, targetGroupIDs ...string) ([]*ContentSyncOperation, error) {
	source, err := e.states.Get(ctx, sourceGroupID)
	if err != nil {
		if IsNotFound(err) {
			return nil, syncErrors.New(syncErrors.OpSync, syncErrors.ErrCodeSourceNotFound,
				fmt.Errorf("source group %s is not registered", sourceGroupID))
		}
		return nil, syncErrors.NewWithComponent(syncErrors.OpSync, syncErrors.ErrCodeSyncFailed, "state_store", err)
	}

	targets := targetGroupIDs
	if len(targets) == 0 {
		targets, err = e.resolveCourseTargets(ctx, source)
		if err != nil {
			return nil, syncErrors.NewWithComponent(syncErrors.OpSync, syncErrors.ErrCodeSyncFailed, "state_store", err)
		}
	}

	unlock := e.locks.Lock(append([]string{sourceGroupID}, targets...)...)
	defer unlock()

	// Re-read under the lock: the version may have moved while we were
	// resolving targets.
	source, err = e.states.Get(ctx, sourceGroupID)
	if err != nil {
		return nil, syncErrors.NewWithComponent(syncErrors.OpSync, syncErrors.ErrCodeSyncFailed, "state_store", err)
	}

	priority := PriorityMedium
	if content, contentErr := e.store.GetContent(ctx, contentID); contentErr == nil {
		priority = e.config.PriorityFor(content.Type)
	}

	operations := make([]*ContentSyncOperation, 0, len(targets))
	for _, targetID := range targets {
		target, err := e.states.Get(ctx, targetID)
		if err != nil {
			if IsNotFound(err) {
				// A retiring group must not abort the batch.
				e.logger.Warn("skipping unknown target group",
					slog.String("target_group", targetID),
					slog.String("content_id", contentID))
				continue
			}
			return operations, syncErrors.NewWithComponent(syncErrors.OpSync, syncErrors.ErrCodeSyncFailed, "state_store", err)
		}

		for _, conflict := range e.detector.Detect(source, target, contentID) {
			e.handleConflict(ctx, conflict)
		}

		operations = append(operations, &ContentSyncOperation{
			ID:             e.newID(),
			Type:           OperationSync,
			SourceGroupID:  sourceGroupID,
			TargetGroupIDs: []string{targetID},
			ContentID:      contentID,
			Version:        source.SyncVersion + 1,
			Priority:       priority,
			Status:         StatusPending,
			ScheduledAt:    e.now(),
		})
	}

	// Strictly sequential execution: operation N's state mutations must
	// be visible before operation N+1 runs.
	for _, op := range operations {
		e.trackOperation(op)
		if err := e.executeOperation(ctx, op); err != nil {
			e.logger.LogError(ctx, err, "sync operation failed",
				slog.String("operation_id", op.ID),
				slog.String("target_group", op.TargetGroupIDs[0]))
		}
	}

	return cloneOperations(operations), nil
}

// BatchSynchronize synchronizes several content ids from one source.
// Requests larger than the configured max batch size are rejected rather
// than truncated.
func (e *Engine) BatchSynchronize(ctx context.Context, sourceGroupID string, contentIDs []string, targetGroupIDs ...string) ([]*ContentSyncOperation, error) {
	if len(contentIDs) == 0 {
		return nil, syncErrors.New(syncErrors.OpBatchSync, syncErrors.ErrCodeBatchSyncFailed,
			fmt.Errorf("no content ids provided"))
	}
	if len(contentIDs) > e.config.MaxBatchSize {
		return nil, syncErrors.New(syncErrors.OpBatchSync, syncErrors.ErrCodeBatchSyncFailed,
			fmt.Errorf("batch of %d content ids exceeds maximum of %d", len(contentIDs), e.config.MaxBatchSize))
	}

	var all []*ContentSyncOperation
	for _, contentID := range contentIDs {
		ops, err := e.SynchronizeContent(ctx, sourceGroupID, contentID, targetGroupIDs...)
		all = append(all, ops...)
		if err != nil {
			return all, syncErrors.Wrap(err, syncErrors.OpBatchSync, syncErrors.ErrCodeBatchSyncFailed)
		}
	}
	return all, nil
}

// RollbackContent rolls live content back to a stored version, building
// one rollback operation per group and running each through the standard
// execution pipeline. Group sync versions are not changed by rollback.
func (e *Engine) RollbackContent(ctx context.Context, contentID string, targetVersion int64, groupIDs []string) ([]*ContentSyncOperation, error) {
	if len(groupIDs) == 0 {
		return nil, syncErrors.NewValidationError(syncErrors.OpRollback,
			fmt.Errorf("at least one group id is required"))
	}

	if _, err := e.store.GetContentVersion(ctx, contentID, targetVersion); err != nil {
		if IsNotFound(err) {
			return nil, syncErrors.New(syncErrors.OpRollback, syncErrors.ErrCodeRollbackFailed,
				fmt.Errorf("version %d of content %s does not exist", targetVersion, contentID))
		}
		return nil, syncErrors.NewWithComponent(syncErrors.OpRollback, syncErrors.ErrCodeRollbackFailed, "store", err)
	}

	unlock := e.locks.Lock(groupIDs...)
	defer unlock()

	operations := make([]*ContentSyncOperation, 0, len(groupIDs))
	for _, groupID := range groupIDs {
		operations = append(operations, &ContentSyncOperation{
			ID:             e.newID(),
			Type:           OperationRollback,
			SourceGroupID:  groupID,
			TargetGroupIDs: []string{groupID},
			ContentID:      contentID,
			Version:        targetVersion,
			Priority:       PriorityUrgent,
			Status:         StatusPending,
			ScheduledAt:    e.now(),
		})
	}

	for _, op := range operations {
		e.trackOperation(op)
		if err := e.executeOperation(ctx, op); err != nil {
			e.logger.LogError(ctx, err, "rollback operation failed",
				slog.String("operation_id", op.ID),
				slog.String("content_id", contentID))
		}
	}

	return cloneOperations(operations), nil
}

// CreateVersion snapshots the current live content as an immutable
// version attributed to the given group.
func (e *Engine) CreateVersion(ctx context.Context, contentID, groupID, changeSummary string) (*ContentVersion, error) {
	return e.versions.CreateVersion(ctx, contentID, groupID, changeSummary)
}

// AlignStudentProgress computes the gap between a student's stored
// progress and the target group's expected progress.
func (e *Engine) AlignStudentProgress(ctx context.Context, studentID, targetGroupID string) (*ContentProgressAlignment, error) {
	aligner := NewProgressAligner(e.store, e.states, e.config, e.logger)
	return aligner.Align(ctx, studentID, targetGroupID)
}

// AddEventListener subscribes a handler to an engine event type and
// returns a subscription id for removal.
func (e *Engine) AddEventListener(eventType string, handler EngineEventHandler) string {
	return e.emitter.add(eventType, handler)
}

// RemoveEventListener removes a previously added handler.
func (e *Engine) RemoveEventListener(eventType, id string) {
	e.emitter.remove(eventType, id)
}

// GetActiveOperations returns every operation the engine is tracking.
func (e *Engine) GetActiveOperations() []*ContentSyncOperation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*ContentSyncOperation, 0, len(e.operations))
	for _, op := range e.operations {
		out = append(out, op.Clone())
	}
	return out
}

// GetConflicts returns every recorded conflict.
func (e *Engine) GetConflicts() []*SyncConflict {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*SyncConflict, 0, len(e.conflicts))
	for _, c := range e.conflicts {
		copied := *c
		out = append(out, &copied)
	}
	return out
}

// AcknowledgeConflict marks a recorded conflict as reviewed.
func (e *Engine) AcknowledgeConflict(conflictID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	conflict, ok := e.conflicts[conflictID]
	if !ok {
		return ErrNotFound
	}
	conflict.Acknowledged = true
	return nil
}

// GetStatistics summarizes tracked groups, operations and conflicts.
func (e *Engine) GetStatistics(ctx context.Context) Statistics {
	stats := Statistics{
		OperationsByStatus:  make(map[OperationStatus]int),
		ConflictsBySeverity: make(map[Severity]int),
	}

	e.mu.RLock()
	for _, op := range e.operations {
		stats.OperationsByStatus[op.Status]++
	}
	for _, c := range e.conflicts {
		stats.ConflictsBySeverity[c.Severity]++
		if !c.Acknowledged {
			stats.ConflictsOutstanding++
		}
	}
	e.mu.RUnlock()

	for _, state := range e.states.Snapshot() {
		stats.GroupsRegistered++
		if state.IsActive {
			stats.GroupsActive++
		}
	}

	return stats
}

// resolveCourseTargets returns the ids of all active groups sharing the
// source's course, excluding the source itself.
func (e *Engine) resolveCourseTargets(ctx context.Context, source *ClassGroupSyncState) ([]string, error) {
	states, err := e.states.ListByCourse(ctx, source.CourseID)
	if err != nil {
		return nil, err
	}
	targets := make([]string, 0, len(states))
	for _, state := range states {
		if state.GroupID == source.GroupID || !state.IsActive {
			continue
		}
		targets = append(targets, state.GroupID)
	}
	return targets, nil
}

// handleConflict records a detected conflict and applies the resolution
// policy, running any synthesized corrective operation immediately.
func (e *Engine) handleConflict(ctx context.Context, conflict SyncConflict) {
	e.mu.Lock()
	stored := conflict
	e.conflicts[conflict.ID] = &stored
	e.mu.Unlock()

	e.metrics.RecordConflictDetected(conflict.Type, conflict.Severity)

	outcome := e.policy.Resolve(ctx, conflict)
	if outcome.Corrective != nil {
		e.trackOperation(outcome.Corrective)
		if err := e.executeOperation(ctx, outcome.Corrective); err != nil {
			e.logger.LogError(ctx, err, "corrective operation failed",
				slog.String("operation_id", outcome.Corrective.ID),
				slog.String("conflict_id", conflict.ID))
		}
	}
	if outcome.ManualReview {
		e.emitter.emit(EngineEvent{Type: EventConflictDetected, GroupID: conflict.TargetGroupID, Conflict: &stored})
	}
}

// trackOperation registers an operation in the active-operations map.
func (e *Engine) trackOperation(op *ContentSyncOperation) {
	e.mu.Lock()
	e.operations[op.ID] = op
	e.mu.Unlock()
}

// executeOperation runs one operation through its lifecycle:
// pending -> in_progress -> completed | failed. The transition is strictly
// forward; there is no way back to pending.
func (e *Engine) executeOperation(ctx context.Context, op *ContentSyncOperation) error {
	start := e.now()
	e.setStatus(op, StatusInProgress)

	err := e.dispatch(ctx, op)

	duration := time.Since(start)
	e.metrics.RecordOperationDuration(op.Type, duration)

	completedAt := e.now()
	e.mu.Lock()
	op.CompletedAt = &completedAt
	if err != nil {
		op.Status = StatusFailed
		op.Error = err.Error()
	} else {
		op.Status = StatusCompleted
	}
	e.mu.Unlock()

	e.metrics.RecordOperationOutcome(op.Type, op.Status)
	if err != nil {
		e.metrics.RecordSyncError(string(op.Type), string(syncErrors.CodeOf(err)))
	}

	return err
}

// dispatch routes an operation to its handler. The operation type set is
// closed; an unknown type is a programming defect, not a runtime
// condition.
func (e *Engine) dispatch(ctx context.Context, op *ContentSyncOperation) error {
	switch op.Type {
	case OperationSync:
		return e.executeSync(ctx, op)
	case OperationRollback:
		return e.executeRollback(ctx, op)
	case OperationMerge:
		return e.mergeStrategy.Apply(ctx, op)
	case OperationUpdate:
		return e.updateStrategy.Apply(ctx, op)
	default:
		panic(fmt.Sprintf("classsync: unsupported operation type %q", op.Type))
	}
}

// executeSync copies the source content association into every target
// group and bumps the sync version and timestamp of the source and all
// touched targets to the operation's version.
func (e *Engine) executeSync(ctx context.Context, op *ContentSyncOperation) error {
	if _, err := e.store.GetContent(ctx, op.ContentID); err != nil {
		if IsNotFound(err) {
			return syncErrors.New(syncErrors.OpSync, syncErrors.ErrCodeSyncFailed,
				fmt.Errorf("content %s does not exist", op.ContentID))
		}
		return syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}

	for _, targetID := range op.TargetGroupIDs {
		if err := e.store.AssociateContent(ctx, targetID, op.ContentID); err != nil {
			return syncErrors.NewStorageError(syncErrors.OpStore, err)
		}
		e.states.AttachContent(targetID, op.ContentID)
	}

	at := e.now()
	if err := e.states.BumpVersion(ctx, op.SourceGroupID, op.Version, at); err != nil {
		return syncErrors.WrapComponent(err, syncErrors.OpSync, syncErrors.ErrCodeSyncFailed, "state_store")
	}
	for _, targetID := range op.TargetGroupIDs {
		if err := e.states.BumpVersion(ctx, targetID, op.Version, at); err != nil {
			return syncErrors.WrapComponent(err, syncErrors.OpSync, syncErrors.ErrCodeSyncFailed, "state_store")
		}
	}

	return nil
}

// executeRollback overwrites the live content record's fields from the
// requested snapshot. Rollback never changes any group's sync version,
// which makes it idempotent in content state.
func (e *Engine) executeRollback(ctx context.Context, op *ContentSyncOperation) error {
	snapshot, err := e.store.GetContentVersion(ctx, op.ContentID, op.Version)
	if err != nil {
		if IsNotFound(err) {
			return syncErrors.New(syncErrors.OpRollback, syncErrors.ErrCodeRollbackFailed,
				fmt.Errorf("version %d of content %s does not exist", op.Version, op.ContentID))
		}
		return syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}

	content, err := e.store.GetContent(ctx, op.ContentID)
	if err != nil {
		if IsNotFound(err) {
			return syncErrors.New(syncErrors.OpRollback, syncErrors.ErrCodeRollbackFailed,
				fmt.Errorf("content %s does not exist", op.ContentID))
		}
		return syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}

	content.Title = snapshot.Title
	content.Content = snapshot.Content
	content.Excerpt = snapshot.Excerpt
	content.Version = snapshot.Version
	content.UpdatedAt = e.now()

	if err := e.store.UpsertContent(ctx, content); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err)
	}

	return nil
}

// setStatus moves an operation to a new status under the engine lock.
func (e *Engine) setStatus(op *ContentSyncOperation, status OperationStatus) {
	e.mu.Lock()
	op.Status = status
	e.mu.Unlock()
}

func cloneOperations(ops []*ContentSyncOperation) []*ContentSyncOperation {
	out := make([]*ContentSyncOperation, len(ops))
	for i, op := range ops {
		out[i] = op.Clone()
	}
	return out
}
