package classsync

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	syncErrors "github.com/courseflow/class-sync/errors"
	"github.com/courseflow/class-sync/logging"
)

// ProgressAligner computes the gap between a student's actual progress
// and a target group's expected progress and recommends alignment
// actions for students who join a group mid-course.
type ProgressAligner struct {
	store  Store
	states *StateStore
	config Config
	logger *logging.Logger
}

// NewProgressAligner creates an aligner over the given stores.
func NewProgressAligner(store Store, states *StateStore, config Config, logger *logging.Logger) *ProgressAligner {
	if logger == nil {
		logger = logging.Default()
	}
	return &ProgressAligner{
		store:  store,
		states: states,
		config: config,
		logger: logger.WithComponent("progress_aligner"),
	}
}

// Align compares the student's stored progress with the target group's
// position. Action order is fixed: catch-up recommendations first, then
// unit acceleration, then lesson acceleration, so callers can rely on it.
func (a *ProgressAligner) Align(ctx context.Context, studentID, targetGroupID string) (*ContentProgressAlignment, error) {
	progress, err := a.store.GetStudentProgress(ctx, studentID)
	if err != nil {
		if IsNotFound(err) {
			return nil, syncErrors.New(syncErrors.OpAlign, syncErrors.ErrCodeAlignmentFailed,
				fmt.Errorf("no progress record for student %s", studentID))
		}
		return nil, syncErrors.NewWithComponent(syncErrors.OpAlign, syncErrors.ErrCodeAlignmentFailed, "store", err)
	}

	group, err := a.states.Get(ctx, targetGroupID)
	if err != nil {
		if IsNotFound(err) {
			return nil, syncErrors.New(syncErrors.OpAlign, syncErrors.ErrCodeAlignmentFailed,
				fmt.Errorf("group %s is not registered", targetGroupID))
		}
		return nil, syncErrors.NewWithComponent(syncErrors.OpAlign, syncErrors.ErrCodeAlignmentFailed, "state_store", err)
	}

	expected := Progress{
		Unit:       group.CurrentUnit,
		Lesson:     group.CurrentLesson,
		Percentage: a.percentageFor(group.CurrentUnit, group.CurrentLesson),
	}

	actual := Progress{
		Unit:       progress.Unit,
		Lesson:     progress.Lesson,
		Percentage: progress.Percentage,
	}
	if actual.Percentage == 0 {
		actual.Percentage = a.percentageFor(progress.Unit, progress.Lesson)
	}

	alignment := &ContentProgressAlignment{
		GroupID:          targetGroupID,
		ExpectedProgress: expected,
		ActualProgress:   actual,
		Deviation:        math.Abs(expected.Percentage - actual.Percentage),
	}
	alignment.AlignmentActions = a.recommendActions(alignment, progress, group)

	a.logger.Debug("progress alignment computed",
		slog.String("student_id", studentID),
		slog.String("group_id", targetGroupID),
		slog.Float64("deviation", alignment.Deviation),
		slog.Any("actions", alignment.AlignmentActions))

	return alignment, nil
}

// percentageFor converts a curriculum position into a completion
// percentage against the configured curriculum shape, clamped to 100.
func (a *ProgressAligner) percentageFor(unit, lesson int) float64 {
	total := a.config.Curriculum.TotalLessons()
	if total <= 0 {
		return 0
	}
	position := (unit-1)*a.config.Curriculum.LessonsPerUnit + lesson
	pct := float64(position) / float64(total) * 100
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

func (a *ProgressAligner) recommendActions(alignment *ContentProgressAlignment, student *StudentProgress, group *ClassGroupSyncState) []string {
	var actions []string

	if alignment.Deviation > a.config.DeviationThreshold {
		actions = append(actions,
			"schedule catch-up sessions",
			"assign supplemental materials")
	}

	if group.CurrentUnit > student.Unit {
		actions = append(actions, fmt.Sprintf("accelerate to unit %d", group.CurrentUnit))
	} else if group.CurrentUnit == student.Unit && group.CurrentLesson > student.Lesson {
		actions = append(actions, fmt.Sprintf("progress to lesson %d", group.CurrentLesson))
	}

	return actions
}
