package classsync_test

import (
	"context"
	"testing"

	"github.com/courseflow/class-sync/classsync"
	syncErrors "github.com/courseflow/class-sync/errors"
)

func TestCreateVersion_Increments(t *testing.T) {
	engine, store := newTestEngine(t)
	seedContent(t, store, "content-1", classsync.ContentLesson, 1)

	first, err := engine.CreateVersion(context.Background(), "content-1", "g1", "first snapshot")
	if err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	if first.Version != 2 {
		t.Errorf("first snapshot version = %d, want 2", first.Version)
	}
	if first.CreatedBy != "g1" {
		t.Errorf("created by = %s, want g1", first.CreatedBy)
	}
	if first.ChangeSummary != "first snapshot" {
		t.Errorf("change summary = %q", first.ChangeSummary)
	}

	second, err := engine.CreateVersion(context.Background(), "content-1", "g2", "second snapshot")
	if err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	if second.Version != 3 {
		t.Errorf("second snapshot version = %d, want 3", second.Version)
	}

	// The live record tracks the latest snapshot version.
	content, _ := store.GetContent(context.Background(), "content-1")
	if content.Version != 3 {
		t.Errorf("live content version = %d, want 3", content.Version)
	}
}

func TestCreateVersion_SnapshotCarriesContentFields(t *testing.T) {
	engine, store := newTestEngine(t)
	seedContent(t, store, "content-1", classsync.ContentLesson, 1)

	snapshot, err := engine.CreateVersion(context.Background(), "content-1", "g1", "baseline")
	if err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	if snapshot.Title != "Fractions" || snapshot.Content != "lesson body" || snapshot.Excerpt != "intro to fractions" {
		t.Errorf("snapshot fields do not match live content: %+v", snapshot)
	}
	if snapshot.ID == "" {
		t.Errorf("snapshot missing id")
	}

	stored, err := engine.Versions().GetVersion(context.Background(), "content-1", snapshot.Version)
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if stored.Title != snapshot.Title {
		t.Errorf("stored snapshot title = %q, want %q", stored.Title, snapshot.Title)
	}
}

func TestCreateVersion_MissingContent(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.CreateVersion(context.Background(), "missing", "g1", "whatever")
	if !syncErrors.HasCode(err, syncErrors.ErrCodeVersionCreationFailed) {
		t.Fatalf("expected VERSION_CREATION_FAILED, got %v", err)
	}
}

func TestGetVersion_NotFound(t *testing.T) {
	engine, store := newTestEngine(t)
	seedContent(t, store, "content-1", classsync.ContentLesson, 1)

	_, err := engine.Versions().GetVersion(context.Background(), "content-1", 99)
	if !classsync.IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
