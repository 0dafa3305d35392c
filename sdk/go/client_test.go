package taskflowsdk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"taskflow/internal/app"
	"taskflow/internal/server"
)

func newAPI(t *testing.T) string {
	t.Helper()
	a, err := app.Open(context.Background(), app.Options{Workspace: t.TempDir(), JWTSecret: "sdk-secret"})
	require.NoError(t, err)
	a.Engine.PasswordCost = bcrypt.MinCost
	handler, err := server.New(server.Config{
		Engine:   a.Engine,
		BasePath: "/api",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return srv.URL
}

func strPtr(s string) *string { return &s }

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	baseURL := newAPI(t)

	lead := New(baseURL)
	ls, err := lead.Register(ctx, RegisterRequest{Email: "lead@example.com", Name: "Lead", Role: "team_lead", Password: "pw1"})
	require.NoError(t, err)
	assert.Equal(t, 6, ls.User.RoleLevel)

	dev := New(baseURL)
	ds, err := dev.Register(ctx, RegisterRequest{Email: "dev@example.com", Name: "Dev", Role: "developer", Password: "pw2"})
	require.NoError(t, err)

	me, err := dev.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, ds.User.ID, me.ID)

	users, err := lead.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	task, err := lead.CreateTask(ctx, CreateTaskRequest{Title: "Write docs", Description: "API guide", AssignedTo: ds.User.ID, Priority: strPtr("low")})
	require.NoError(t, err)
	assert.Equal(t, "low", task.Priority)

	_, err = dev.CreateTask(ctx, CreateTaskRequest{Title: "Nope", AssignedTo: ls.User.ID})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "forbidden", apiErr.Code)

	updated, err := dev.UpdateTask(ctx, task.ID, TaskUpdate{Status: strPtr("done")})
	require.NoError(t, err)
	assert.Equal(t, "done", updated.Status)
	assert.Equal(t, "Write docs", updated.Title)

	c, err := dev.AddComment(ctx, task.ID, "shipped")
	require.NoError(t, err)
	assert.Equal(t, ds.User.ID, c.Author)

	got, err := lead.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, got.Comments, 1)
	require.NotNil(t, got.AssignedToUser)
	assert.Equal(t, "Dev", got.AssignedToUser.Name)

	tasks, err := dev.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.ID, tasks[0].ID)

	again := New(baseURL)
	_, err = again.Login(ctx, "dev@example.com", "wrong")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	_, err = again.Login(ctx, "dev@example.com", "pw2")
	require.NoError(t, err)
	assert.NotEmpty(t, again.BearerToken)
}
