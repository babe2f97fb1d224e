package classsync_test

import (
	"context"
	"testing"

	"github.com/courseflow/class-sync/classsync"
)

func newTestAPI(t *testing.T, opts ...classsync.Option) (*classsync.API, *classsync.Engine) {
	t.Helper()
	engine, _ := newTestEngine(t, opts...)
	return classsync.NewAPI(engine), engine
}

func TestAPI_SuccessEnvelope(t *testing.T) {
	api, _ := newTestAPI(t)

	resp := api.RegisterClassGroup(context.Background(), &classsync.ClassGroupSyncState{
		GroupID:       "g1",
		CourseID:      "course-1",
		CurrentUnit:   1,
		CurrentLesson: 1,
		IsActive:      true,
	})

	if !resp.Success {
		t.Fatalf("expected success, got error: %+v", resp.Error)
	}
	if resp.Error != nil {
		t.Errorf("success response must not carry an error")
	}
	if resp.Metadata == nil {
		t.Fatalf("success response missing metadata")
	}
	if resp.Metadata.RequestID == "" {
		t.Errorf("metadata missing request id")
	}
	if resp.Metadata.Version != "1.0" {
		t.Errorf("metadata version = %s, want 1.0", resp.Metadata.Version)
	}

	state, ok := resp.Data.(*classsync.ClassGroupSyncState)
	if !ok {
		t.Fatalf("data is %T, want *ClassGroupSyncState", resp.Data)
	}
	if state.SyncVersion != 1 {
		t.Errorf("registered version = %d, want 1", state.SyncVersion)
	}
}

func TestAPI_ValidationFailureEnvelope(t *testing.T) {
	api, _ := newTestAPI(t)

	resp := api.RegisterClassGroup(context.Background(), &classsync.ClassGroupSyncState{
		GroupID: "g1", // missing course id
	})

	if resp.Success {
		t.Fatalf("expected failure")
	}
	if resp.Data != nil {
		t.Errorf("failure response must not carry data")
	}
	if resp.Error == nil {
		t.Fatalf("failure response missing error info")
	}
	if resp.Error.Code != "VALIDATION_FAILURE" {
		t.Errorf("code = %s, want VALIDATION_FAILURE", resp.Error.Code)
	}
	if resp.Error.Category != "validation" {
		t.Errorf("category = %s, want validation", resp.Error.Category)
	}
	if resp.Error.Severity != "low" {
		t.Errorf("severity = %s, want low", resp.Error.Severity)
	}
	if resp.Error.Timestamp.IsZero() {
		t.Errorf("error missing timestamp")
	}
}

func TestAPI_SourceNotFoundEnvelope(t *testing.T) {
	api, _ := newTestAPI(t)

	resp := api.SynchronizeContent(context.Background(), "ghost", "content-1")
	if resp.Success {
		t.Fatalf("expected failure")
	}
	if resp.Error.Code != "SOURCE_NOT_FOUND" {
		t.Errorf("code = %s, want SOURCE_NOT_FOUND", resp.Error.Code)
	}
	if resp.Error.Category != "not_found" {
		t.Errorf("category = %s, want not_found", resp.Error.Category)
	}
}

func TestAPI_BatchOverMaxEnvelope(t *testing.T) {
	config := classsync.DefaultConfig()
	config.MaxBatchSize = 1
	api, engine := newTestAPI(t, classsync.WithConfig(config))

	if _, err := engine.RegisterClassGroup(context.Background(), &classsync.ClassGroupSyncState{
		GroupID: "g1", CourseID: "course-1", CurrentUnit: 1, CurrentLesson: 1, IsActive: true,
	}); err != nil {
		t.Fatalf("RegisterClassGroup: %v", err)
	}

	resp := api.BatchSynchronize(context.Background(), "g1", []string{"a", "b"})
	if resp.Success {
		t.Fatalf("expected failure for oversized batch")
	}
	if resp.Error.Code != "BATCH_SYNC_FAILED" {
		t.Errorf("code = %s, want BATCH_SYNC_FAILED", resp.Error.Code)
	}
	if resp.Error.Category != "operation" {
		t.Errorf("category = %s, want operation", resp.Error.Category)
	}
	if resp.Error.Severity != "medium" {
		t.Errorf("severity = %s, want medium", resp.Error.Severity)
	}
}

func TestAPI_QueryEndpoints(t *testing.T) {
	api, engine := newTestAPI(t)

	if _, err := engine.RegisterClassGroup(context.Background(), &classsync.ClassGroupSyncState{
		GroupID: "g1", CourseID: "course-1", CurrentUnit: 1, CurrentLesson: 1, IsActive: true,
	}); err != nil {
		t.Fatalf("RegisterClassGroup: %v", err)
	}

	ops := api.GetActiveOperations(context.Background())
	if !ops.Success {
		t.Errorf("GetActiveOperations failed: %+v", ops.Error)
	}

	conflicts := api.GetConflicts(context.Background())
	if !conflicts.Success {
		t.Errorf("GetConflicts failed: %+v", conflicts.Error)
	}

	stats := api.GetStatistics(context.Background())
	if !stats.Success {
		t.Fatalf("GetStatistics failed: %+v", stats.Error)
	}
	data, ok := stats.Data.(classsync.Statistics)
	if !ok {
		t.Fatalf("statistics data is %T", stats.Data)
	}
	if data.GroupsRegistered != 1 {
		t.Errorf("groups registered = %d, want 1", data.GroupsRegistered)
	}
}
