package classsync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	syncErrors "github.com/courseflow/class-sync/errors"
)

// fakeStore is an in-package Store stub with injectable failures and call
// counters for exercising the cache layer.
type fakeStore struct {
	states map[string]*ClassGroupSyncState

	getCalls    int
	upsertCalls int
	casCalls    int

	failUpsert error
	failCAS    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{states: make(map[string]*ClassGroupSyncState)}
}

func (f *fakeStore) GetSyncState(_ context.Context, groupID string) (*ClassGroupSyncState, error) {
	f.getCalls++
	state, ok := f.states[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	return state.Clone(), nil
}

func (f *fakeStore) ListSyncStatesByCourse(_ context.Context, courseID string) ([]*ClassGroupSyncState, error) {
	var out []*ClassGroupSyncState
	for _, state := range f.states {
		if state.CourseID == courseID {
			out = append(out, state.Clone())
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertSyncState(_ context.Context, state *ClassGroupSyncState) error {
	f.upsertCalls++
	if f.failUpsert != nil {
		return f.failUpsert
	}
	f.states[state.GroupID] = state.Clone()
	return nil
}

func (f *fakeStore) UpdateSyncVersion(_ context.Context, groupID string, expected, next int64, at time.Time) error {
	f.casCalls++
	if f.failCAS != nil {
		return f.failCAS
	}
	state, ok := f.states[groupID]
	if !ok {
		return ErrNotFound
	}
	if state.SyncVersion != expected {
		return ErrVersionConflict
	}
	state.SyncVersion = next
	state.LastSyncTimestamp = at
	return nil
}

func (f *fakeStore) GetContent(context.Context, string) (*ContentRecord, error) {
	return nil, ErrNotFound
}

func (f *fakeStore) UpsertContent(context.Context, *ContentRecord) error { return nil }

func (f *fakeStore) InsertContentVersion(context.Context, *ContentVersion) error { return nil }

func (f *fakeStore) GetContentVersion(context.Context, string, int64) (*ContentVersion, error) {
	return nil, ErrNotFound
}

func (f *fakeStore) AssociateContent(context.Context, string, string) error { return nil }

func (f *fakeStore) GroupsForContent(context.Context, string) ([]string, error) { return nil, nil }

func (f *fakeStore) GetStudentProgress(context.Context, string) (*StudentProgress, error) {
	return nil, ErrNotFound
}

func (f *fakeStore) Close() error { return nil }

var _ Store = (*fakeStore)(nil)

func validGroup(id string) *ClassGroupSyncState {
	return &ClassGroupSyncState{
		GroupID:       id,
		CourseID:      "course-1",
		CurrentUnit:   2,
		CurrentLesson: 3,
		SyncVersion:   1,
		IsActive:      true,
	}
}

func TestRegister_AppliesDefaults(t *testing.T) {
	store := newFakeStore()
	states := NewStateStore(store, nil)

	input := validGroup("g1")
	input.SyncVersion = 0
	input.LastSyncTimestamp = time.Time{}

	stored, err := states.Register(context.Background(), input)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if stored.SyncVersion != 1 {
		t.Errorf("sync version = %d, want default 1", stored.SyncVersion)
	}
	if stored.LastSyncTimestamp.IsZero() {
		t.Errorf("expected last sync timestamp to be set")
	}
	if store.upsertCalls != 1 {
		t.Errorf("upsert calls = %d, want 1", store.upsertCalls)
	}
}

func TestRegister_ValidationFailures(t *testing.T) {
	states := NewStateStore(newFakeStore(), nil)

	tests := []struct {
		name   string
		mutate func(*ClassGroupSyncState)
	}{
		{"empty group id", func(s *ClassGroupSyncState) { s.GroupID = "" }},
		{"empty course id", func(s *ClassGroupSyncState) { s.CourseID = "" }},
		{"zero unit", func(s *ClassGroupSyncState) { s.CurrentUnit = 0 }},
		{"zero lesson", func(s *ClassGroupSyncState) { s.CurrentLesson = 0 }},
		{"negative version", func(s *ClassGroupSyncState) { s.SyncVersion = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := validGroup("g1")
			tt.mutate(state)
			_, err := states.Register(context.Background(), state)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !syncErrors.HasCode(err, syncErrors.ErrCodeValidationFailure) {
				t.Errorf("expected VALIDATION_FAILURE code, got %v", err)
			}
		})
	}
}

func TestRegister_FailedWriteDoesNotCache(t *testing.T) {
	store := newFakeStore()
	store.failUpsert = fmt.Errorf("disk full")
	states := NewStateStore(store, nil)

	_, err := states.Register(context.Background(), validGroup("g1"))
	if err == nil {
		t.Fatalf("expected write error")
	}
	if !syncErrors.HasCode(err, syncErrors.ErrCodeRegistrationFailed) {
		t.Errorf("expected REGISTRATION_FAILED code, got %v", err)
	}
	if states.CachedCount() != 0 {
		t.Fatalf("cache must stay empty after a failed write")
	}
}

func TestGet_PopulatesCache(t *testing.T) {
	store := newFakeStore()
	store.states["g1"] = validGroup("g1")
	states := NewStateStore(store, nil)

	if _, err := states.Get(context.Background(), "g1"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := states.Get(context.Background(), "g1"); err != nil {
		t.Fatalf("Get (cached): %v", err)
	}
	if store.getCalls != 1 {
		t.Errorf("store reads = %d, want 1 (second read served from cache)", store.getCalls)
	}
}

func TestGet_ReturnsClones(t *testing.T) {
	store := newFakeStore()
	store.states["g1"] = validGroup("g1")
	states := NewStateStore(store, nil)

	first, _ := states.Get(context.Background(), "g1")
	first.CurrentUnit = 99

	second, _ := states.Get(context.Background(), "g1")
	if second.CurrentUnit == 99 {
		t.Fatalf("caller mutation leaked into the cache")
	}
}

func TestGet_NotFound(t *testing.T) {
	states := NewStateStore(newFakeStore(), nil)
	_, err := states.Get(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBumpVersion_Advances(t *testing.T) {
	store := newFakeStore()
	store.states["g1"] = validGroup("g1")
	states := NewStateStore(store, nil)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := states.BumpVersion(context.Background(), "g1", 2, at); err != nil {
		t.Fatalf("BumpVersion: %v", err)
	}

	state, _ := states.Get(context.Background(), "g1")
	if state.SyncVersion != 2 {
		t.Errorf("sync version = %d, want 2", state.SyncVersion)
	}
	if !state.LastSyncTimestamp.Equal(at) {
		t.Errorf("last sync = %v, want %v", state.LastSyncTimestamp, at)
	}
}

func TestBumpVersion_NeverDecreases(t *testing.T) {
	store := newFakeStore()
	g := validGroup("g1")
	g.SyncVersion = 5
	store.states["g1"] = g
	states := NewStateStore(store, nil)

	if err := states.BumpVersion(context.Background(), "g1", 3, time.Now()); err != nil {
		t.Fatalf("BumpVersion: %v", err)
	}
	if store.casCalls != 0 {
		t.Errorf("CAS issued for a non-advancing bump")
	}

	state, _ := states.Get(context.Background(), "g1")
	if state.SyncVersion != 5 {
		t.Errorf("sync version = %d, must stay at 5", state.SyncVersion)
	}
}

func TestBumpVersion_SameVersionIsNoOp(t *testing.T) {
	store := newFakeStore()
	store.states["g1"] = validGroup("g1")
	states := NewStateStore(store, nil)

	if err := states.BumpVersion(context.Background(), "g1", 1, time.Now()); err != nil {
		t.Fatalf("BumpVersion: %v", err)
	}
	if store.casCalls != 0 {
		t.Errorf("CAS issued for an idempotent bump")
	}
}

func TestBumpVersion_CASFailureInvalidatesCache(t *testing.T) {
	store := newFakeStore()
	store.states["g1"] = validGroup("g1")
	states := NewStateStore(store, nil)

	// Warm the cache.
	if _, err := states.Get(context.Background(), "g1"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	store.failCAS = ErrVersionConflict
	err := states.BumpVersion(context.Background(), "g1", 2, time.Now())
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if states.CachedCount() != 0 {
		t.Fatalf("stale cache entry must be dropped after a CAS failure")
	}
}

func TestAttachContent(t *testing.T) {
	store := newFakeStore()
	store.states["g1"] = validGroup("g1")
	states := NewStateStore(store, nil)

	if _, err := states.Get(context.Background(), "g1"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	states.AttachContent("g1", "content-1")
	states.AttachContent("g1", "content-1") // idempotent

	state, _ := states.Get(context.Background(), "g1")
	if len(state.ContentIDs) != 1 || state.ContentIDs[0] != "content-1" {
		t.Fatalf("content ids = %v, want [content-1]", state.ContentIDs)
	}
}

func TestDeactivate(t *testing.T) {
	store := newFakeStore()
	store.states["g1"] = validGroup("g1")
	states := NewStateStore(store, nil)

	if err := states.Deactivate(context.Background(), "g1"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	state, _ := states.Get(context.Background(), "g1")
	if state.IsActive {
		t.Errorf("group still active after deactivation")
	}
	if stored := store.states["g1"]; stored.IsActive {
		t.Errorf("deactivation not persisted")
	}
}

func TestListByCourse_RefreshesCache(t *testing.T) {
	store := newFakeStore()
	store.states["g1"] = validGroup("g1")
	store.states["g2"] = validGroup("g2")
	states := NewStateStore(store, nil)

	groups, err := states.ListByCourse(context.Background(), "course-1")
	if err != nil {
		t.Fatalf("ListByCourse: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if states.CachedCount() != 2 {
		t.Errorf("cache size = %d, want 2", states.CachedCount())
	}
}
