package classsync

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned by UpdateSyncVersion when the stored
	// sync version no longer matches the expected value, meaning a
	// concurrent writer got there first.
	ErrVersionConflict = errors.New("sync version conflict")
)

// Store is the persistent-store interface consumed by the engine. It
// spans four logical collections: sync states, content records, content
// versions and group-content associations, plus the student progress
// records read by the aligner. Implementations do not need to provide
// multi-row transactional guarantees; the engine guards read-then-write
// sequences with per-group locks and the UpdateSyncVersion compare-and-swap.
type Store interface {
	// GetSyncState returns the sync state for a group, or ErrNotFound.
	GetSyncState(ctx context.Context, groupID string) (*ClassGroupSyncState, error)

	// ListSyncStatesByCourse returns all sync states sharing a course id.
	ListSyncStatesByCourse(ctx context.Context, courseID string) ([]*ClassGroupSyncState, error)

	// UpsertSyncState inserts or fully replaces a group's sync state.
	UpsertSyncState(ctx context.Context, state *ClassGroupSyncState) error

	// UpdateSyncVersion bumps a group's sync version from expected to next
	// and refreshes the last-sync timestamp. Returns ErrVersionConflict
	// when the stored version is not expected, ErrNotFound when the group
	// does not exist.
	UpdateSyncVersion(ctx context.Context, groupID string, expected, next int64, at time.Time) error

	// GetContent returns the live content record, or ErrNotFound.
	GetContent(ctx context.Context, contentID string) (*ContentRecord, error)

	// UpsertContent inserts or fully replaces a live content record.
	UpsertContent(ctx context.Context, content *ContentRecord) error

	// InsertContentVersion stores an immutable content snapshot.
	InsertContentVersion(ctx context.Context, version *ContentVersion) error

	// GetContentVersion returns one snapshot, or ErrNotFound.
	GetContentVersion(ctx context.Context, contentID string, version int64) (*ContentVersion, error)

	// AssociateContent links a content id to a group. Idempotent.
	AssociateContent(ctx context.Context, groupID, contentID string) error

	// GroupsForContent returns the ids of all groups associated with a
	// content id.
	GroupsForContent(ctx context.Context, contentID string) ([]string, error)

	// GetStudentProgress returns a student's stored curriculum position,
	// or ErrNotFound.
	GetStudentProgress(ctx context.Context, studentID string) (*StudentProgress, error)

	// Close releases any resources held by the store.
	Close() error
}

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
