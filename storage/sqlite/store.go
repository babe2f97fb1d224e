// Package sqlite provides a SQLite implementation of the classsync Store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/courseflow/class-sync/classsync"
	syncErrors "github.com/courseflow/class-sync/errors"
	"github.com/courseflow/class-sync/logging"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// Operation constants for consistent error reporting
const (
	opGetState      = "sqlite.GetSyncState"
	opListStates    = "sqlite.ListSyncStatesByCourse"
	opUpsertState   = "sqlite.UpsertSyncState"
	opUpdateVersion = "sqlite.UpdateSyncVersion"
	opGetContent    = "sqlite.GetContent"
	opUpsertContent = "sqlite.UpsertContent"
	opInsertVersion = "sqlite.InsertContentVersion"
	opGetVersion    = "sqlite.GetContentVersion"
	opAssociate     = "sqlite.AssociateContent"
	opGroupsFor     = "sqlite.GroupsForContent"
	opGetProgress   = "sqlite.GetStudentProgress"
	opPutProgress   = "sqlite.PutStudentProgress"
)

// ErrStoreClosed is returned after Close has been called.
var ErrStoreClosed = errors.New("store is closed")

// Store is a SQLite-backed classsync.Store.
type Store struct {
	db     *sql.DB
	logger *logging.Logger
	closed bool
}

// NewStore opens (or creates) the SQLite database at dsn and ensures the
// schema exists. Use ":memory:" for an ephemeral store.
func NewStore(dsn string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Default()
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// sqlite tolerates exactly one writer; keep the pool at one
	// connection so statements never race on the file lock.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, logger: logger.WithComponent("sqlite_store")}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sync_states (
		group_id            TEXT PRIMARY KEY,
		course_id           TEXT NOT NULL,
		current_unit        INTEGER NOT NULL,
		current_lesson      INTEGER NOT NULL,
		content_ids         TEXT NOT NULL DEFAULT '[]',
		last_sync_timestamp TIMESTAMP NOT NULL,
		sync_version        INTEGER NOT NULL,
		student_ids         TEXT NOT NULL DEFAULT '[]',
		teacher_id          TEXT NOT NULL DEFAULT '',
		is_active           INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_sync_states_course ON sync_states(course_id);

	CREATE TABLE IF NOT EXISTS contents (
		id           TEXT PRIMARY KEY,
		title        TEXT NOT NULL,
		content      TEXT NOT NULL,
		excerpt      TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT 'lesson',
		version      INTEGER NOT NULL,
		updated_at   TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS content_versions (
		id             TEXT PRIMARY KEY,
		content_id     TEXT NOT NULL,
		title          TEXT NOT NULL,
		content        TEXT NOT NULL,
		excerpt        TEXT NOT NULL DEFAULT '',
		version        INTEGER NOT NULL,
		created_by     TEXT NOT NULL,
		created_at     TIMESTAMP NOT NULL,
		change_summary TEXT NOT NULL DEFAULT '',
		UNIQUE(content_id, version)
	);

	CREATE TABLE IF NOT EXISTS group_content (
		group_id   TEXT NOT NULL,
		content_id TEXT NOT NULL,
		PRIMARY KEY (group_id, content_id)
	);
	CREATE INDEX IF NOT EXISTS idx_group_content_content ON group_content(content_id);

	CREATE TABLE IF NOT EXISTS student_progress (
		student_id TEXT PRIMARY KEY,
		unit       INTEGER NOT NULL,
		lesson     INTEGER NOT NULL,
		percentage REAL NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) GetSyncState(ctx context.Context, groupID string) (*classsync.ClassGroupSyncState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT group_id, course_id, current_unit, current_lesson, content_ids,
		       last_sync_timestamp, sync_version, student_ids, teacher_id, is_active
		FROM sync_states WHERE group_id = ?`, groupID)
	return scanSyncState(row)
}

func (s *Store) ListSyncStatesByCourse(ctx context.Context, courseID string) ([]*classsync.ClassGroupSyncState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id, course_id, current_unit, current_lesson, content_ids,
		       last_sync_timestamp, sync_version, student_ids, teacher_id, is_active
		FROM sync_states WHERE course_id = ? ORDER BY group_id`, courseID)
	if err != nil {
		return nil, wrapStoreErr(opListStates, err)
	}
	defer rows.Close()

	var states []*classsync.ClassGroupSyncState
	for rows.Next() {
		state, err := scanSyncState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, wrapStoreErr(opListStates, rows.Err())
}

func (s *Store) UpsertSyncState(ctx context.Context, state *classsync.ClassGroupSyncState) error {
	contentIDs, err := json.Marshal(state.ContentIDs)
	if err != nil {
		return wrapStoreErr(opUpsertState, err)
	}
	studentIDs, err := json.Marshal(state.StudentIDs)
	if err != nil {
		return wrapStoreErr(opUpsertState, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_states (group_id, course_id, current_unit, current_lesson,
		                         content_ids, last_sync_timestamp, sync_version,
		                         student_ids, teacher_id, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET
			course_id = excluded.course_id,
			current_unit = excluded.current_unit,
			current_lesson = excluded.current_lesson,
			content_ids = excluded.content_ids,
			last_sync_timestamp = excluded.last_sync_timestamp,
			sync_version = excluded.sync_version,
			student_ids = excluded.student_ids,
			teacher_id = excluded.teacher_id,
			is_active = excluded.is_active`,
		state.GroupID, state.CourseID, state.CurrentUnit, state.CurrentLesson,
		string(contentIDs), state.LastSyncTimestamp, state.SyncVersion,
		string(studentIDs), state.TeacherID, boolToInt(state.IsActive))
	return wrapStoreErr(opUpsertState, err)
}

// UpdateSyncVersion performs a compare-and-swap on the sync version so
// two concurrent syncs cannot overwrite each other's bump.
func (s *Store) UpdateSyncVersion(ctx context.Context, groupID string, expected, next int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_states SET sync_version = ?, last_sync_timestamp = ?
		WHERE group_id = ? AND sync_version = ?`,
		next, at, groupID, expected)
	if err != nil {
		return wrapStoreErr(opUpdateVersion, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return wrapStoreErr(opUpdateVersion, err)
	}
	if affected == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM sync_states WHERE group_id = ?`, groupID).Scan(&exists)
		if err != nil {
			return wrapStoreErr(opUpdateVersion, err)
		}
		if exists == 0 {
			return classsync.ErrNotFound
		}
		return classsync.ErrVersionConflict
	}
	return nil
}

func (s *Store) GetContent(ctx context.Context, contentID string) (*classsync.ContentRecord, error) {
	var record classsync.ContentRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, excerpt, content_type, version, updated_at
		FROM contents WHERE id = ?`, contentID).Scan(
		&record.ID, &record.Title, &record.Content, &record.Excerpt,
		&record.Type, &record.Version, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, classsync.ErrNotFound
	}
	if err != nil {
		return nil, wrapStoreErr(opGetContent, err)
	}
	return &record, nil
}

func (s *Store) UpsertContent(ctx context.Context, content *classsync.ContentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contents (id, title, content, excerpt, content_type, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			excerpt = excluded.excerpt,
			content_type = excluded.content_type,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		content.ID, content.Title, content.Content, content.Excerpt,
		content.Type, content.Version, content.UpdatedAt)
	return wrapStoreErr(opUpsertContent, err)
}

func (s *Store) InsertContentVersion(ctx context.Context, version *classsync.ContentVersion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_versions (id, content_id, title, content, excerpt,
		                              version, created_by, created_at, change_summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		version.ID, version.ContentID, version.Title, version.Content,
		version.Excerpt, version.Version, version.CreatedBy,
		version.CreatedAt, version.ChangeSummary)
	return wrapStoreErr(opInsertVersion, err)
}

func (s *Store) GetContentVersion(ctx context.Context, contentID string, version int64) (*classsync.ContentVersion, error) {
	var snapshot classsync.ContentVersion
	err := s.db.QueryRowContext(ctx, `
		SELECT id, content_id, title, content, excerpt, version, created_by, created_at, change_summary
		FROM content_versions WHERE content_id = ? AND version = ?`,
		contentID, version).Scan(
		&snapshot.ID, &snapshot.ContentID, &snapshot.Title, &snapshot.Content,
		&snapshot.Excerpt, &snapshot.Version, &snapshot.CreatedBy,
		&snapshot.CreatedAt, &snapshot.ChangeSummary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, classsync.ErrNotFound
	}
	if err != nil {
		return nil, wrapStoreErr(opGetVersion, err)
	}
	return &snapshot, nil
}

func (s *Store) AssociateContent(ctx context.Context, groupID, contentID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_content (group_id, content_id) VALUES (?, ?)
		ON CONFLICT(group_id, content_id) DO NOTHING`, groupID, contentID)
	return wrapStoreErr(opAssociate, err)
}

func (s *Store) GroupsForContent(ctx context.Context, contentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id FROM group_content WHERE content_id = ? ORDER BY group_id`, contentID)
	if err != nil {
		return nil, wrapStoreErr(opGroupsFor, err)
	}
	defer rows.Close()

	var groupIDs []string
	for rows.Next() {
		var groupID string
		if err := rows.Scan(&groupID); err != nil {
			return nil, wrapStoreErr(opGroupsFor, err)
		}
		groupIDs = append(groupIDs, groupID)
	}
	return groupIDs, wrapStoreErr(opGroupsFor, rows.Err())
}

func (s *Store) GetStudentProgress(ctx context.Context, studentID string) (*classsync.StudentProgress, error) {
	var progress classsync.StudentProgress
	err := s.db.QueryRowContext(ctx, `
		SELECT student_id, unit, lesson, percentage, updated_at
		FROM student_progress WHERE student_id = ?`, studentID).Scan(
		&progress.StudentID, &progress.Unit, &progress.Lesson,
		&progress.Percentage, &progress.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, classsync.ErrNotFound
	}
	if err != nil {
		return nil, wrapStoreErr(opGetProgress, err)
	}
	return &progress, nil
}

// PutStudentProgress stores a student progress record. Writing progress
// is out of engine scope but needed to seed stores.
func (s *Store) PutStudentProgress(ctx context.Context, progress *classsync.StudentProgress) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO student_progress (student_id, unit, lesson, percentage, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(student_id) DO UPDATE SET
			unit = excluded.unit,
			lesson = excluded.lesson,
			percentage = excluded.percentage,
			updated_at = excluded.updated_at`,
		progress.StudentID, progress.Unit, progress.Lesson,
		progress.Percentage, progress.UpdatedAt)
	return wrapStoreErr(opPutProgress, err)
}

func (s *Store) Close() error {
	if s.closed {
		return ErrStoreClosed
	}
	s.closed = true
	return s.db.Close()
}

// scanner abstracts sql.Row and sql.Rows for shared scan code.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSyncState(row scanner) (*classsync.ClassGroupSyncState, error) {
	var (
		state      classsync.ClassGroupSyncState
		contentIDs string
		studentIDs string
		isActive   int
	)
	err := row.Scan(&state.GroupID, &state.CourseID, &state.CurrentUnit,
		&state.CurrentLesson, &contentIDs, &state.LastSyncTimestamp,
		&state.SyncVersion, &studentIDs, &state.TeacherID, &isActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, classsync.ErrNotFound
	}
	if err != nil {
		return nil, wrapStoreErr(opGetState, err)
	}

	if err := json.Unmarshal([]byte(contentIDs), &state.ContentIDs); err != nil {
		return nil, wrapStoreErr(opGetState, err)
	}
	if err := json.Unmarshal([]byte(studentIDs), &state.StudentIDs); err != nil {
		return nil, wrapStoreErr(opGetState, err)
	}
	state.IsActive = isActive != 0

	return &state, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func wrapStoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return syncErrors.NewStorageError(syncErrors.Operation(op), err)
}

var _ classsync.Store = (*Store)(nil)
