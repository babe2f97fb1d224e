package classsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	syncErrors "github.com/courseflow/class-sync/errors"
	"github.com/courseflow/class-sync/logging"
)

// StateStore is a write-through cache of per-group sync states in front
// of the persistent store. Reads check the cache first and populate it on
// a store hit; writes go to the store and only then update the cache, so
// a failed write can never leave the cache ahead of the store.
type StateStore struct {
	store  Store
	logger *logging.Logger

	mu    sync.RWMutex
	cache map[string]*ClassGroupSyncState
}

// NewStateStore creates a state store backed by the given persistent store.
func NewStateStore(store Store, logger *logging.Logger) *StateStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &StateStore{
		store:  store,
		logger: logger.WithComponent("state_store"),
		cache:  make(map[string]*ClassGroupSyncState),
	}
}

// Get returns the sync state for a group, consulting the cache first.
func (s *StateStore) Get(ctx context.Context, groupID string) (*ClassGroupSyncState, error) {
	s.mu.RLock()
	cached, ok := s.cache[groupID]
	s.mu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	state, err := s.store.GetSyncState(ctx, groupID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[groupID] = state.Clone()
	s.mu.Unlock()

	return state, nil
}

// Register validates and persists a new group state, then caches it.
// The stored state is returned with defaults applied.
func (s *StateStore) Register(ctx context.Context, state *ClassGroupSyncState) (*ClassGroupSyncState, error) {
	if err := validateState(state); err != nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpRegister, err)
	}

	stored := state.Clone()
	if stored.SyncVersion < 1 {
		stored.SyncVersion = 1
	}
	if stored.LastSyncTimestamp.IsZero() {
		stored.LastSyncTimestamp = time.Now().UTC()
	}

	if err := s.store.UpsertSyncState(ctx, stored); err != nil {
		// Do not touch the cache on a failed write.
		return nil, syncErrors.NewWithComponent(syncErrors.OpRegister,
			syncErrors.ErrCodeRegistrationFailed, "state_store", err)
	}

	s.mu.Lock()
	s.cache[stored.GroupID] = stored.Clone()
	s.mu.Unlock()

	s.logger.Info("class group registered",
		slog.String("group_id", stored.GroupID),
		slog.String("course_id", stored.CourseID),
		slog.Int64("sync_version", stored.SyncVersion))

	return stored, nil
}

// BumpVersion advances a group's sync version to next with a
// compare-and-swap against the currently stored version. The bump is
// skipped when the stored version is already at or beyond next, which
// keeps sync versions monotonically non-decreasing.
func (s *StateStore) BumpVersion(ctx context.Context, groupID string, next int64, at time.Time) error {
	current, err := s.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if current.SyncVersion >= next {
		s.logger.Debug("skipping version bump, group already at or beyond target",
			slog.String("group_id", groupID),
			slog.Int64("current", current.SyncVersion),
			slog.Int64("target", next))
		return nil
	}

	if err := s.store.UpdateSyncVersion(ctx, groupID, current.SyncVersion, next, at); err != nil {
		// Drop the cached entry: it may be stale if a concurrent writer
		// advanced the stored version.
		s.Invalidate(groupID)
		return err
	}

	s.mu.Lock()
	if cached, ok := s.cache[groupID]; ok {
		cached.SyncVersion = next
		cached.LastSyncTimestamp = at
	}
	s.mu.Unlock()

	return nil
}

// AttachContent records a content association on the cached state after a
// successful store write so subsequent HasContent checks see it.
func (s *StateStore) AttachContent(groupID, contentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.cache[groupID]; ok && !cached.HasContent(contentID) {
		cached.ContentIDs = append(cached.ContentIDs, contentID)
	}
}

// ListByCourse returns all active groups for a course, refreshing the
// cache with what the store returns.
func (s *StateStore) ListByCourse(ctx context.Context, courseID string) ([]*ClassGroupSyncState, error) {
	states, err := s.store.ListSyncStatesByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	for _, state := range states {
		s.cache[state.GroupID] = state.Clone()
	}
	s.mu.Unlock()

	return states, nil
}

// Deactivate marks a group inactive. The group record is retained.
func (s *StateStore) Deactivate(ctx context.Context, groupID string) error {
	state, err := s.Get(ctx, groupID)
	if err != nil {
		return err
	}
	state.IsActive = false

	if err := s.store.UpsertSyncState(ctx, state); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err)
	}

	s.mu.Lock()
	s.cache[groupID] = state.Clone()
	s.mu.Unlock()

	return nil
}

// Invalidate drops a group's cached state, forcing the next read through
// to the persistent store.
func (s *StateStore) Invalidate(groupID string) {
	s.mu.Lock()
	delete(s.cache, groupID)
	s.mu.Unlock()
}

// Snapshot returns a copy of every cached group state.
func (s *StateStore) Snapshot() []*ClassGroupSyncState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ClassGroupSyncState, 0, len(s.cache))
	for _, state := range s.cache {
		out = append(out, state.Clone())
	}
	return out
}

// CachedCount returns the number of cached group states.
func (s *StateStore) CachedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

func validateState(state *ClassGroupSyncState) error {
	if state == nil {
		return fmt.Errorf("state must not be nil")
	}
	if state.GroupID == "" {
		return fmt.Errorf("group id must not be empty")
	}
	if state.CourseID == "" {
		return fmt.Errorf("course id must not be empty")
	}
	if state.CurrentUnit < 1 {
		return fmt.Errorf("current unit must be >= 1, got %d", state.CurrentUnit)
	}
	if state.CurrentLesson < 1 {
		return fmt.Errorf("current lesson must be >= 1, got %d", state.CurrentLesson)
	}
	if state.SyncVersion < 0 {
		return fmt.Errorf("sync version must not be negative, got %d", state.SyncVersion)
	}
	return nil
}
