package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/internal/db"
	"taskflow/internal/domain"
	"taskflow/internal/events"
	"taskflow/internal/migrate"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	return conn
}

func seedUser(t *testing.T, r Repo, id, email, role string) domain.Identity {
	t.Helper()
	u := domain.Identity{ID: id, Email: email, Name: id, Role: role, PasswordHash: "x", CreatedAt: "2026-01-01T00:00:00.000000Z"}
	require.NoError(t, r.InsertUser(context.Background(), u))
	return u
}

func seedTask(t *testing.T, r Repo, id, by, to, ts string) domain.Task {
	t.Helper()
	task := domain.Task{
		ID: id, Title: "task " + id, AssignedBy: by, AssignedTo: to,
		Status: "assigned", Priority: "medium", Comments: []domain.Comment{},
		CreatedAt: ts, UpdatedAt: ts,
	}
	require.NoError(t, r.InsertTask(context.Background(), task))
	return task
}

func strPtr(s string) *string { return &s }

func TestUsers(t *testing.T) {
	ctx := context.Background()
	r := Repo{DB: openTestDB(t)}
	u := seedUser(t, r, "u1", "a@x.io", "manager")

	got, err := r.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, u, got)

	got, err = r.GetUserByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	_, err = r.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.GetUserByEmail(ctx, "A@X.IO")
	assert.ErrorIs(t, err, ErrNotFound)

	err = r.InsertUser(ctx, domain.Identity{ID: "u2", Email: "a@x.io", Name: "dup", Role: "intern", CreatedAt: u.CreatedAt})
	assert.ErrorIs(t, err, ErrDuplicate)

	seedUser(t, r, "u3", "b@x.io", "intern")
	users, err := r.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, "u3", users[1].ID)
}

func TestTaskRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := Repo{DB: openTestDB(t)}
	seedUser(t, r, "m", "m@x.io", "manager")
	seedUser(t, r, "d", "d@x.io", "developer")

	want := domain.Task{
		ID: "t1", Title: "Fix bug", Description: "details", AssignedBy: "m", AssignedTo: "d",
		Status: "assigned", Priority: "high", DueDate: strPtr("2026-02-01T00:00:00.000000Z"),
		Comments:  []domain.Comment{},
		CreatedAt: "2026-01-01T00:00:00.000000Z", UpdatedAt: "2026-01-01T00:00:00.000000Z",
	}
	require.NoError(t, r.InsertTask(ctx, want))
	got, err := r.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = r.GetTask(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertTaskRejectsUnknownUsers(t *testing.T) {
	r := Repo{DB: openTestDB(t)}
	seedUser(t, r, "m", "m@x.io", "manager")
	err := r.InsertTask(context.Background(), domain.Task{
		ID: "t1", Title: "x", AssignedBy: "m", AssignedTo: "ghost", Status: "assigned", Priority: "medium",
		CreatedAt: "2026-01-01T00:00:00.000000Z", UpdatedAt: "2026-01-01T00:00:00.000000Z",
	})
	assert.Error(t, err)
}

func TestListTasksParticipantFilter(t *testing.T) {
	ctx := context.Background()
	r := Repo{DB: openTestDB(t)}
	seedUser(t, r, "a", "a@x.io", "manager")
	seedUser(t, r, "b", "b@x.io", "developer")
	seedUser(t, r, "c", "c@x.io", "intern")
	seedTask(t, r, "t1", "a", "b", "2026-01-01T00:00:01.000000Z")
	seedTask(t, r, "t2", "a", "c", "2026-01-01T00:00:02.000000Z")
	seedTask(t, r, "t3", "b", "c", "2026-01-01T00:00:03.000000Z")
	seedTask(t, r, "t4", "a", "a", "2026-01-01T00:00:04.000000Z")

	ids := func(f TaskFilters) []string {
		tasks, err := r.ListTasks(ctx, f)
		require.NoError(t, err)
		out := []string{}
		for _, task := range tasks {
			out = append(out, task.ID)
		}
		return out
	}
	assert.Equal(t, []string{"t1", "t2", "t3", "t4"}, ids(TaskFilters{}))
	assert.Equal(t, []string{"t1", "t2", "t4"}, ids(TaskFilters{ParticipantID: "a"}))
	assert.Equal(t, []string{"t1", "t3"}, ids(TaskFilters{ParticipantID: "b"}))
	assert.Equal(t, []string{"t2", "t3"}, ids(TaskFilters{ParticipantID: "c"}))
	assert.Empty(t, ids(TaskFilters{ParticipantID: "nobody"}))

	_, err := r.UpdateTaskFields(ctx, "t2", domain.TaskPatch{Status: strPtr("done")}, "2026-01-02T00:00:00.000000Z", "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, ids(TaskFilters{ParticipantID: "c", Status: "done"}))
}

func TestUpdateTaskFieldsTouchesOnlySupplied(t *testing.T) {
	ctx := context.Background()
	r := Repo{DB: openTestDB(t)}
	seedUser(t, r, "a", "a@x.io", "manager")
	seedUser(t, r, "b", "b@x.io", "developer")
	orig := seedTask(t, r, "t1", "a", "b", "2026-01-01T00:00:00.000000Z")

	got, err := r.UpdateTaskFields(ctx, "t1", domain.TaskPatch{Status: strPtr("in_progress")}, "2026-01-01T01:00:00.000000Z", "b")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", got.Status)
	assert.Equal(t, orig.Title, got.Title)
	assert.Equal(t, orig.Priority, got.Priority)
	assert.Nil(t, got.DueDate)
	assert.Equal(t, "2026-01-01T01:00:00.000000Z", got.UpdatedAt)
	assert.Equal(t, orig.CreatedAt, got.CreatedAt)

	got, err = r.UpdateTaskFields(ctx, "t1", domain.TaskPatch{}, "2026-01-01T02:00:00.000000Z", "b")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", got.Status)
	assert.Equal(t, "2026-01-01T02:00:00.000000Z", got.UpdatedAt)

	_, err = r.UpdateTaskFields(ctx, "missing", domain.TaskPatch{}, "2026-01-01T02:00:00.000000Z", "b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendTaskCommentKeepsOrder(t *testing.T) {
	ctx := context.Background()
	r := Repo{DB: openTestDB(t)}
	seedUser(t, r, "a", "a@x.io", "manager")
	seedUser(t, r, "b", "b@x.io", "developer")
	seedTask(t, r, "t1", "a", "b", "2026-01-01T00:00:00.000000Z")

	// same timestamp on purpose; order must follow arrival
	for i, id := range []string{"c1", "c2", "c3"} {
		author := "a"
		if i%2 == 1 {
			author = "b"
		}
		require.NoError(t, r.AppendTaskComment(ctx, "t1", domain.Comment{
			ID: id, Text: "text " + id, Author: author, Timestamp: "2026-01-01T05:00:00.000000Z",
		}))
	}
	got, err := r.GetTask(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, got.Comments, 3)
	assert.Equal(t, "c1", got.Comments[0].ID)
	assert.Equal(t, "c2", got.Comments[1].ID)
	assert.Equal(t, "c3", got.Comments[2].ID)
	assert.Equal(t, "b", got.Comments[1].Author)
	assert.Equal(t, "2026-01-01T05:00:00.000000Z", got.UpdatedAt)

	err = r.AppendTaskComment(ctx, "missing", domain.Comment{ID: "c9", Text: "x", Author: "a", Timestamp: "2026-01-01T05:00:00.000000Z"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestEventsRecordedPerMutation(t *testing.T) {
	ctx := context.Background()
	r := Repo{DB: openTestDB(t)}
	seedUser(t, r, "a", "a@x.io", "manager")
	seedUser(t, r, "b", "b@x.io", "developer")
	seedTask(t, r, "t1", "a", "b", "2026-01-01T00:00:00.000000Z")
	_, err := r.UpdateTaskFields(ctx, "t1", domain.TaskPatch{Status: strPtr("done"), Priority: strPtr("low")}, "2026-01-01T01:00:00.000000Z", "b")
	require.NoError(t, err)
	require.NoError(t, r.AppendTaskComment(ctx, "t1", domain.Comment{ID: "c1", Text: "ok", Author: "a", Timestamp: "2026-01-01T02:00:00.000000Z"}))

	evts, err := r.LatestEvents(ctx, 10, "", "task", "t1")
	require.NoError(t, err)
	require.Len(t, evts, 3)
	assert.Equal(t, events.TaskCommented, evts[0].Type)
	assert.Equal(t, events.TaskUpdated, evts[1].Type)
	assert.Equal(t, events.TaskCreated, evts[2].Type)
	assert.Equal(t, "b", evts[1].ActorID)

	var payload struct {
		Fields []string `json:"fields"`
		Status string   `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(evts[1].Payload), &payload))
	assert.Equal(t, []string{"status", "priority"}, payload.Fields)
	assert.Equal(t, "done", payload.Status)

	only, err := r.LatestEvents(ctx, 10, events.TaskCreated, "", "")
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "a", only[0].ActorID)

	capped, err := r.LatestEvents(ctx, 2, "", "", "")
	require.NoError(t, err)
	assert.Len(t, capped, 2)
}
