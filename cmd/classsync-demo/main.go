// Command classsync-demo walks through the engine end to end against an
// ephemeral SQLite store: group registration, content synchronization,
// conflict handling, versioning with rollback and progress alignment.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/courseflow/class-sync/classsync"
	"github.com/courseflow/class-sync/logging"
	"github.com/courseflow/class-sync/storage/sqlite"
)

func main() {
	dsn := flag.String("dsn", ":memory:", "sqlite dsn (use a file path to persist)")
	configPath := flag.String("config", "", "optional yaml config file")
	flag.Parse()

	logging.Init(logging.ConfigFromEnv())

	if err := run(*dsn, *configPath); err != nil {
		logging.Error("demo failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(dsn, configPath string) error {
	ctx := context.Background()

	config := classsync.DefaultConfig()
	if configPath != "" {
		loaded, err := classsync.LoadConfig(configPath)
		if err != nil {
			return err
		}
		config = loaded
	}

	store, err := sqlite.NewStore(dsn, logging.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	engine, err := classsync.NewEngine(store,
		classsync.WithConfig(config),
		classsync.WithLogger(logging.Default()))
	if err != nil {
		return err
	}
	api := classsync.NewAPI(engine)

	engine.AddEventListener(classsync.EventConflictDetected, func(event classsync.EngineEvent) {
		logging.Warn("conflict needs review",
			slog.String("group_id", event.GroupID),
			slog.String("conflict_id", event.Conflict.ID))
	})

	// Two parallel groups on the same course, the second one lagging.
	for _, state := range []*classsync.ClassGroupSyncState{
		{GroupID: "algebra-a", CourseID: "algebra-101", CurrentUnit: 3, CurrentLesson: 5, SyncVersion: 5, TeacherID: "t-ramirez", IsActive: true},
		{GroupID: "algebra-b", CourseID: "algebra-101", CurrentUnit: 3, CurrentLesson: 2, SyncVersion: 2, TeacherID: "t-okafor", IsActive: true},
	} {
		printResponse("register "+state.GroupID, api.RegisterClassGroup(ctx, state))
	}

	if err := store.UpsertContent(ctx, &classsync.ContentRecord{
		ID:        "lesson-3-5",
		Title:     "Factoring quadratics",
		Content:   "Factor ax^2+bx+c by grouping.",
		Excerpt:   "Factoring by grouping",
		Type:      classsync.ContentLesson,
		Version:   1,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	// The version gap between the groups triggers a merge conflict that is
	// auto-resolved under the default merge mode.
	printResponse("synchronize", api.SynchronizeContent(ctx, "algebra-a", "lesson-3-5"))
	printResponse("conflicts", api.GetConflicts(ctx))

	// Snapshot, mutate, then roll back.
	snapshot := api.CreateVersion(ctx, "lesson-3-5", "algebra-a", "pre-edit snapshot")
	printResponse("create version", snapshot)
	if version, ok := snapshot.Data.(*classsync.ContentVersion); ok {
		if err := store.UpsertContent(ctx, &classsync.ContentRecord{
			ID: "lesson-3-5", Title: "Factoring quadratics (broken edit)",
			Content: "oops", Type: classsync.ContentLesson,
			Version: version.Version + 1, UpdatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		printResponse("rollback", api.RollbackContent(ctx, "lesson-3-5", version.Version, []string{"algebra-a", "algebra-b"}))
	}

	// A transfer student joining algebra-a mid-course.
	if err := store.PutStudentProgress(ctx, &classsync.StudentProgress{
		StudentID: "s-chen", Unit: 1, Lesson: 5, Percentage: 5, UpdatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	printResponse("align s-chen", api.AlignStudentProgress(ctx, "s-chen", "algebra-a"))

	printResponse("statistics", api.GetStatistics(ctx))
	return nil
}

func printResponse(label string, resp classsync.Response) {
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		logging.Error("failed to render response", slog.String("error", err.Error()))
		return
	}
	fmt.Printf("--- %s ---\n%s\n", label, out)
}
