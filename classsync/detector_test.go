package classsync

import (
	"testing"
	"time"
)

func testDetector() *ConflictDetector {
	seq := 0
	return &ConflictDetector{
		now: func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) },
		newID: func() string {
			seq++
			return "conflict-" + string(rune('a'+seq-1))
		},
	}
}

func groupState(id string, version int64, unit, lesson int) *ClassGroupSyncState {
	return &ClassGroupSyncState{
		GroupID:       id,
		CourseID:      "course-1",
		CurrentUnit:   unit,
		CurrentLesson: lesson,
		SyncVersion:   version,
		IsActive:      true,
	}
}

func TestDetect_VersionMismatch(t *testing.T) {
	d := testDetector()
	source := groupState("g1", 5, 1, 1)
	target := groupState("g2", 2, 1, 1)

	conflicts := d.Detect(source, target, "content-1")
	if len(conflicts) != 1 {
		t.Fatalf("expected exactly one conflict, got %d", len(conflicts))
	}

	c := conflicts[0]
	if c.Type != ConflictVersionMismatch {
		t.Errorf("expected version_mismatch, got %s", c.Type)
	}
	if c.Severity != SeverityMedium {
		t.Errorf("expected medium severity, got %s", c.Severity)
	}
	if c.SuggestedResolution != ResolutionMerge {
		t.Errorf("expected merge resolution, got %s", c.SuggestedResolution)
	}
	if c.SourceVersion != 5 || c.TargetVersion != 2 {
		t.Errorf("expected versions 5/2, got %d/%d", c.SourceVersion, c.TargetVersion)
	}
}

func TestDetect_VersionGapOfOneIsFine(t *testing.T) {
	d := testDetector()
	source := groupState("g1", 3, 1, 1)
	target := groupState("g2", 2, 1, 1)

	if conflicts := d.Detect(source, target, "content-1"); len(conflicts) != 0 {
		t.Fatalf("gap of 1 should not conflict, got %d conflicts", len(conflicts))
	}
}

func TestDetect_ProgressionGap(t *testing.T) {
	d := testDetector()
	// encode(g1)=105, encode(g2)=401, gap 296 > 200
	source := groupState("g1", 1, 1, 5)
	target := groupState("g2", 1, 4, 1)

	conflicts := d.Detect(source, target, "content-1")
	if len(conflicts) != 1 {
		t.Fatalf("expected exactly one conflict, got %d", len(conflicts))
	}

	c := conflicts[0]
	if c.Type != ConflictProgressionGap {
		t.Errorf("expected progression_gap, got %s", c.Type)
	}
	if c.Severity != SeverityHigh {
		t.Errorf("expected high severity, got %s", c.Severity)
	}
	if c.SuggestedResolution != ResolutionManualReview {
		t.Errorf("expected manual_review resolution, got %s", c.SuggestedResolution)
	}
	if c.Strategy == nil || !c.Strategy.ReviewRequired {
		t.Errorf("expected review-required strategy attached")
	}
}

func TestDetect_ProgressionGapBoundary(t *testing.T) {
	d := testDetector()
	// encode(g1)=101, encode(g2)=301, gap exactly 200: no conflict.
	source := groupState("g1", 1, 1, 1)
	target := groupState("g2", 1, 3, 1)

	if conflicts := d.Detect(source, target, "content-1"); len(conflicts) != 0 {
		t.Fatalf("gap of exactly 200 should not conflict, got %d conflicts", len(conflicts))
	}
}

func TestDetect_BothConflictsInOrder(t *testing.T) {
	d := testDetector()
	source := groupState("g1", 10, 1, 1)
	target := groupState("g2", 2, 5, 1)

	conflicts := d.Detect(source, target, "content-1")
	if len(conflicts) != 2 {
		t.Fatalf("expected both conflicts, got %d", len(conflicts))
	}
	if conflicts[0].Type != ConflictVersionMismatch {
		t.Errorf("version mismatch must be emitted first, got %s", conflicts[0].Type)
	}
	if conflicts[1].Type != ConflictProgressionGap {
		t.Errorf("progression gap must be emitted second, got %s", conflicts[1].Type)
	}
}

func TestDetect_GapIsSymmetric(t *testing.T) {
	d := testDetector()
	ahead := groupState("g1", 9, 1, 1)
	behind := groupState("g2", 2, 1, 1)

	if len(d.Detect(ahead, behind, "c")) != 1 {
		t.Fatalf("expected conflict when source is ahead")
	}
	if len(d.Detect(behind, ahead, "c")) != 1 {
		t.Fatalf("expected conflict when target is ahead")
	}
}

func TestEncodePosition(t *testing.T) {
	tests := []struct {
		unit, lesson, want int
	}{
		{1, 1, 101},
		{3, 5, 305},
		{10, 10, 1010},
	}
	for _, tt := range tests {
		state := groupState("g", 1, tt.unit, tt.lesson)
		if got := encodePosition(state); got != tt.want {
			t.Errorf("encodePosition(%d,%d) = %d, want %d", tt.unit, tt.lesson, got, tt.want)
		}
	}
}
