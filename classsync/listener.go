package classsync

import (
	"context"
	"log/slog"

	"github.com/courseflow/class-sync/logging"
)

// ChangeType is the kind of change a feed event describes.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Collections the engine subscribes to on the change feed.
const (
	CollectionContent     = "content"
	CollectionClassGroups = "class_groups"
)

// ChangeEvent is one notification from the external change feed. New and
// Old carry the record as generic field maps; which is populated depends
// on the change type.
type ChangeEvent struct {
	Type       ChangeType             `json:"event_type"`
	Collection string                 `json:"collection"`
	New        map[string]interface{} `json:"new,omitempty"`
	Old        map[string]interface{} `json:"old,omitempty"`
}

// ChangeFeedHandler processes one change event. A returned error is
// logged by the feed and never unsubscribes the handler.
type ChangeFeedHandler func(event ChangeEvent) error

// ChangeFeed is the external real-time feed interface consumed by the
// listener. Implementations register one handler per collection.
type ChangeFeed interface {
	// Subscribe registers a handler for a collection's change events.
	Subscribe(ctx context.Context, collection string, handler ChangeFeedHandler) error

	// Close stops delivery and releases feed resources.
	Close() error
}

// EventListener reacts to the external change feed: content updates
// re-trigger synchronization for every group using that content, and new
// groups with auto-sync enabled are registered with the engine.
//
// The listener deliberately performs no deduplication of rapid repeated
// events; bursts each trigger a full pass, which is safe because sync
// version bumps are monotonic.
type EventListener struct {
	engine *Engine
	feed   ChangeFeed
	logger *logging.Logger
}

// NewEventListener wires an engine to a change feed.
func NewEventListener(engine *Engine, feed ChangeFeed, logger *logging.Logger) *EventListener {
	if logger == nil {
		logger = logging.Default()
	}
	return &EventListener{
		engine: engine,
		feed:   feed,
		logger: logger.WithComponent("event_listener"),
	}
}

// Start subscribes to the content and class-group collections. Handler
// failures are logged and never propagated to the feed, so a single
// failed re-sync cannot tear down the subscription.
func (l *EventListener) Start(ctx context.Context) error {
	if err := l.feed.Subscribe(ctx, CollectionContent, func(event ChangeEvent) error {
		l.onContentChange(ctx, event)
		return nil
	}); err != nil {
		return err
	}

	return l.feed.Subscribe(ctx, CollectionClassGroups, func(event ChangeEvent) error {
		l.onGroupChange(ctx, event)
		return nil
	})
}

// Close shuts down the underlying feed.
func (l *EventListener) Close() error {
	return l.feed.Close()
}

// onContentChange re-triggers synchronization for every group associated
// with an updated content id, fire-and-forget.
func (l *EventListener) onContentChange(ctx context.Context, event ChangeEvent) {
	if event.Type != ChangeUpdate {
		return
	}

	contentID := stringField(event.New, "id")
	if contentID == "" {
		l.logger.Warn("content change event without id, ignoring")
		return
	}

	groupIDs, err := l.engine.store.GroupsForContent(ctx, contentID)
	if err != nil {
		l.logger.LogError(ctx, err, "failed to resolve groups for changed content",
			slog.String("content_id", contentID))
		return
	}

	for _, groupID := range groupIDs {
		if _, err := l.engine.SynchronizeContent(ctx, groupID, contentID); err != nil {
			l.logger.LogError(ctx, err, "feed-triggered synchronization failed",
				slog.String("group_id", groupID),
				slog.String("content_id", contentID))
		}
	}
}

// onGroupChange registers newly inserted groups that carry the auto-sync
// flag.
func (l *EventListener) onGroupChange(ctx context.Context, event ChangeEvent) {
	if event.Type != ChangeInsert {
		return
	}
	if !boolField(event.New, "auto_sync_enabled") {
		return
	}

	state := &ClassGroupSyncState{
		GroupID:       stringField(event.New, "id"),
		CourseID:      stringField(event.New, "course_id"),
		CurrentUnit:   intFieldDefault(event.New, "current_unit", 1),
		CurrentLesson: intFieldDefault(event.New, "current_lesson", 1),
		TeacherID:     stringField(event.New, "teacher_id"),
		SyncVersion:   1,
		IsActive:      true,
	}

	if _, err := l.engine.RegisterClassGroup(ctx, state); err != nil {
		l.logger.LogError(ctx, err, "feed-triggered group registration failed",
			slog.String("group_id", state.GroupID))
		return
	}

	l.logger.Info("group registered from change feed",
		slog.String("group_id", state.GroupID),
		slog.String("course_id", state.CourseID))
}

func stringField(record map[string]interface{}, key string) string {
	if record == nil {
		return ""
	}
	if v, ok := record[key].(string); ok {
		return v
	}
	return ""
}

func boolField(record map[string]interface{}, key string) bool {
	if record == nil {
		return false
	}
	if v, ok := record[key].(bool); ok {
		return v
	}
	return false
}

func intFieldDefault(record map[string]interface{}, key string, fallback int) int {
	if record == nil {
		return fallback
	}
	switch v := record[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		// JSON decoding yields float64 for numbers.
		return int(v)
	default:
		return fallback
	}
}
