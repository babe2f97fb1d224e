package classsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	syncErrors "github.com/courseflow/class-sync/errors"
	"github.com/courseflow/class-sync/logging"
)

// VersionStore creates and retrieves immutable content versions for
// point-in-time rollback. Versions for a content id form a total order by
// version number and are never mutated after creation.
type VersionStore struct {
	store  Store
	logger *logging.Logger
	now    func() time.Time
	newID  func() string
}

// NewVersionStore creates a version store over the persistent store.
func NewVersionStore(store Store, logger *logging.Logger) *VersionStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &VersionStore{
		store:  store,
		logger: logger.WithComponent("version_store"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.NewString() },
	}
}

// CreateVersion snapshots the current live content. The snapshot's
// version is the live version plus one, and the live record is advanced
// to that version so successive snapshots strictly increment. Authorship
// is attributed to the given group id for audit purposes.
func (v *VersionStore) CreateVersion(ctx context.Context, contentID, groupID, changeSummary string) (*ContentVersion, error) {
	content, err := v.store.GetContent(ctx, contentID)
	if err != nil {
		if IsNotFound(err) {
			return nil, syncErrors.New(syncErrors.OpCreateVersion, syncErrors.ErrCodeVersionCreationFailed,
				fmt.Errorf("content %s does not exist", contentID))
		}
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}

	version := &ContentVersion{
		ID:            v.newID(),
		ContentID:     contentID,
		Title:         content.Title,
		Content:       content.Content,
		Excerpt:       content.Excerpt,
		Version:       content.Version + 1,
		CreatedBy:     groupID,
		CreatedAt:     v.now(),
		ChangeSummary: changeSummary,
	}

	if err := v.store.InsertContentVersion(ctx, version); err != nil {
		return nil, syncErrors.NewWithComponent(syncErrors.OpCreateVersion,
			syncErrors.ErrCodeVersionCreationFailed, "store", err)
	}

	content.Version = version.Version
	content.UpdatedAt = version.CreatedAt
	if err := v.store.UpsertContent(ctx, content); err != nil {
		return nil, syncErrors.NewWithComponent(syncErrors.OpCreateVersion,
			syncErrors.ErrCodeVersionCreationFailed, "store", err)
	}

	v.logger.Info("content version created",
		slog.String("content_id", contentID),
		slog.Int64("version", version.Version),
		slog.String("created_by", groupID))

	return version, nil
}

// GetVersion retrieves one snapshot of a content record.
func (v *VersionStore) GetVersion(ctx context.Context, contentID string, version int64) (*ContentVersion, error) {
	snapshot, err := v.store.GetContentVersion(ctx, contentID, version)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}
	return snapshot, nil
}
