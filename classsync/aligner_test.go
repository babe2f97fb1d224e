package classsync_test

import (
	"context"
	"testing"

	"github.com/courseflow/class-sync/classsync"
	syncErrors "github.com/courseflow/class-sync/errors"
	"github.com/courseflow/class-sync/storage/memory"
)

func seedProgress(t *testing.T, store *memory.Store, studentID string, unit, lesson int, percentage float64) {
	t.Helper()
	err := store.PutStudentProgress(context.Background(), &classsync.StudentProgress{
		StudentID:  studentID,
		Unit:       unit,
		Lesson:     lesson,
		Percentage: percentage,
	})
	if err != nil {
		t.Fatalf("PutStudentProgress: %v", err)
	}
}

func TestAlign_LaggingStudent(t *testing.T) {
	engine, store := newTestEngine(t)
	registerGroup(t, engine, "g1", 1, 3, 5)
	seedProgress(t, store, "student-1", 1, 5, 5)

	alignment, err := engine.AlignStudentProgress(context.Background(), "student-1", "g1")
	if err != nil {
		t.Fatalf("AlignStudentProgress: %v", err)
	}

	// Group at unit 3 lesson 5 of a 10x10 curriculum: 25% expected.
	if alignment.ExpectedProgress.Percentage != 25 {
		t.Errorf("expected progress = %v, want 25", alignment.ExpectedProgress.Percentage)
	}
	if alignment.ActualProgress.Percentage != 5 {
		t.Errorf("actual progress = %v, want stored 5", alignment.ActualProgress.Percentage)
	}
	if alignment.Deviation != 20 {
		t.Errorf("deviation = %v, want 20", alignment.Deviation)
	}

	// Deviation of exactly 20 does not exceed the default threshold of 20,
	// so only the acceleration action is recommended.
	want := []string{"accelerate to unit 3"}
	if len(alignment.AlignmentActions) != len(want) {
		t.Fatalf("actions = %v, want %v", alignment.AlignmentActions, want)
	}
	for i, action := range want {
		if alignment.AlignmentActions[i] != action {
			t.Errorf("action[%d] = %q, want %q", i, alignment.AlignmentActions[i], action)
		}
	}
}

func TestAlign_FarBehindGetsCatchUpFirst(t *testing.T) {
	engine, store := newTestEngine(t)
	registerGroup(t, engine, "g1", 1, 6, 1)
	seedProgress(t, store, "student-1", 1, 2, 0)

	alignment, err := engine.AlignStudentProgress(context.Background(), "student-1", "g1")
	if err != nil {
		t.Fatalf("AlignStudentProgress: %v", err)
	}

	// Stored percentage of 0 falls back to the computed position: lesson 2
	// of 100 is 2%, group at 51%, deviation 49 over the threshold.
	if alignment.Deviation <= 20 {
		t.Fatalf("deviation = %v, expected over threshold", alignment.Deviation)
	}

	actions := alignment.AlignmentActions
	if len(actions) != 3 {
		t.Fatalf("actions = %v, want catch-up pair then acceleration", actions)
	}
	if actions[0] != "schedule catch-up sessions" || actions[1] != "assign supplemental materials" {
		t.Errorf("catch-up actions missing or out of order: %v", actions)
	}
	if actions[2] != "accelerate to unit 6" {
		t.Errorf("acceleration action = %q", actions[2])
	}
}

func TestAlign_SameUnitLessonBehind(t *testing.T) {
	engine, store := newTestEngine(t)
	registerGroup(t, engine, "g1", 1, 2, 8)
	seedProgress(t, store, "student-1", 2, 3, 0)

	alignment, err := engine.AlignStudentProgress(context.Background(), "student-1", "g1")
	if err != nil {
		t.Fatalf("AlignStudentProgress: %v", err)
	}

	found := false
	for _, action := range alignment.AlignmentActions {
		if action == "progress to lesson 8" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected lesson acceleration, got %v", alignment.AlignmentActions)
	}
}

func TestAlign_StudentAheadNoActions(t *testing.T) {
	engine, store := newTestEngine(t)
	registerGroup(t, engine, "g1", 1, 2, 1)
	seedProgress(t, store, "student-1", 3, 4, 0)

	alignment, err := engine.AlignStudentProgress(context.Background(), "student-1", "g1")
	if err != nil {
		t.Fatalf("AlignStudentProgress: %v", err)
	}
	if len(alignment.AlignmentActions) != 0 {
		t.Fatalf("student ahead of group needs no actions, got %v", alignment.AlignmentActions)
	}
}

func TestAlign_MissingStudent(t *testing.T) {
	engine, _ := newTestEngine(t)
	registerGroup(t, engine, "g1", 1, 1, 1)

	_, err := engine.AlignStudentProgress(context.Background(), "ghost", "g1")
	if !syncErrors.HasCode(err, syncErrors.ErrCodeAlignmentFailed) {
		t.Fatalf("expected ALIGNMENT_FAILED, got %v", err)
	}
}

func TestAlign_MissingGroup(t *testing.T) {
	engine, store := newTestEngine(t)
	seedProgress(t, store, "student-1", 1, 1, 0)

	_, err := engine.AlignStudentProgress(context.Background(), "student-1", "ghost")
	if !syncErrors.HasCode(err, syncErrors.ErrCodeAlignmentFailed) {
		t.Fatalf("expected ALIGNMENT_FAILED, got %v", err)
	}
}

func TestAlign_PercentageClampedAt100(t *testing.T) {
	config := classsync.DefaultConfig()
	config.Curriculum = classsync.CurriculumShape{TotalUnits: 2, LessonsPerUnit: 5}
	engine, store := newTestEngine(t, classsync.WithConfig(config))
	registerGroup(t, engine, "g1", 1, 2, 5)
	seedProgress(t, store, "student-1", 9, 9, 0)

	alignment, err := engine.AlignStudentProgress(context.Background(), "student-1", "g1")
	if err != nil {
		t.Fatalf("AlignStudentProgress: %v", err)
	}
	if alignment.ActualProgress.Percentage != 100 {
		t.Errorf("actual percentage = %v, want clamped 100", alignment.ActualProgress.Percentage)
	}
}
