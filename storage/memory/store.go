// Package memory provides an in-memory implementation of the classsync
// Store interface. It is the reference implementation of the store
// contract and the backing used by the engine's tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/courseflow/class-sync/classsync"
)

// Store is a thread-safe in-memory classsync.Store.
type Store struct {
	mu sync.RWMutex

	states       map[string]*classsync.ClassGroupSyncState
	contents     map[string]*classsync.ContentRecord
	versions     map[string]map[int64]*classsync.ContentVersion // content id -> version -> snapshot
	associations map[string]map[string]struct{}                 // content id -> group ids
	progress     map[string]*classsync.StudentProgress

	closed bool
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		states:       make(map[string]*classsync.ClassGroupSyncState),
		contents:     make(map[string]*classsync.ContentRecord),
		versions:     make(map[string]map[int64]*classsync.ContentVersion),
		associations: make(map[string]map[string]struct{}),
		progress:     make(map[string]*classsync.StudentProgress),
	}
}

func (s *Store) GetSyncState(ctx context.Context, groupID string) (*classsync.ClassGroupSyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[groupID]
	if !ok {
		return nil, classsync.ErrNotFound
	}
	return state.Clone(), nil
}

func (s *Store) ListSyncStatesByCourse(ctx context.Context, courseID string) ([]*classsync.ClassGroupSyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*classsync.ClassGroupSyncState
	for _, state := range s.states {
		if state.CourseID == courseID {
			out = append(out, state.Clone())
		}
	}
	return out, nil
}

func (s *Store) UpsertSyncState(ctx context.Context, state *classsync.ClassGroupSyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.GroupID] = state.Clone()
	return nil
}

func (s *Store) UpdateSyncVersion(ctx context.Context, groupID string, expected, next int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[groupID]
	if !ok {
		return classsync.ErrNotFound
	}
	if state.SyncVersion != expected {
		return classsync.ErrVersionConflict
	}
	state.SyncVersion = next
	state.LastSyncTimestamp = at
	return nil
}

func (s *Store) GetContent(ctx context.Context, contentID string) (*classsync.ContentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.contents[contentID]
	if !ok {
		return nil, classsync.ErrNotFound
	}
	return content.Clone(), nil
}

func (s *Store) UpsertContent(ctx context.Context, content *classsync.ContentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[content.ID] = content.Clone()
	return nil
}

func (s *Store) InsertContentVersion(ctx context.Context, version *classsync.ContentVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byVersion, ok := s.versions[version.ContentID]
	if !ok {
		byVersion = make(map[int64]*classsync.ContentVersion)
		s.versions[version.ContentID] = byVersion
	}
	copied := *version
	byVersion[version.Version] = &copied
	return nil
}

func (s *Store) GetContentVersion(ctx context.Context, contentID string, version int64) (*classsync.ContentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byVersion, ok := s.versions[contentID]
	if !ok {
		return nil, classsync.ErrNotFound
	}
	snapshot, ok := byVersion[version]
	if !ok {
		return nil, classsync.ErrNotFound
	}
	copied := *snapshot
	return &copied, nil
}

func (s *Store) AssociateContent(ctx context.Context, groupID, contentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups, ok := s.associations[contentID]
	if !ok {
		groups = make(map[string]struct{})
		s.associations[contentID] = groups
	}
	groups[groupID] = struct{}{}

	if state, ok := s.states[groupID]; ok && !state.HasContent(contentID) {
		state.ContentIDs = append(state.ContentIDs, contentID)
	}
	return nil
}

func (s *Store) GroupsForContent(ctx context.Context, contentID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := s.associations[contentID]
	out := make([]string, 0, len(groups))
	for groupID := range groups {
		out = append(out, groupID)
	}
	return out, nil
}

func (s *Store) GetStudentProgress(ctx context.Context, studentID string) (*classsync.StudentProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	progress, ok := s.progress[studentID]
	if !ok {
		return nil, classsync.ErrNotFound
	}
	copied := *progress
	return &copied, nil
}

// PutStudentProgress stores a student progress record. Writing progress
// is out of engine scope but needed to seed stores.
func (s *Store) PutStudentProgress(ctx context.Context, progress *classsync.StudentProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *progress
	s.progress[progress.StudentID] = &copied
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ classsync.Store = (*Store)(nil)
