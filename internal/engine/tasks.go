package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskflow/internal/domain"
	"taskflow/internal/engine/auth"
	"taskflow/internal/repo"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title       string
	Description string
	AssignedTo  string
	Priority    string
	DueDate     *string
}

// CreateTask lets actor assign a new task to opts.AssignedTo, provided the
// assignee is not more senior than the actor.
func (e Engine) CreateTask(ctx context.Context, actor domain.Identity, opts TaskCreateOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, badInput("title", "required")
	}
	if opts.AssignedTo == "" {
		return domain.Task{}, badInput("assigned_to", "required")
	}
	due, err := normalizeDueDate(opts.DueDate)
	if err != nil {
		return domain.Task{}, err
	}
	assignee, err := e.Store.GetUser(ctx, opts.AssignedTo)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Task{}, fmt.Errorf("assignee %s: %w", opts.AssignedTo, repo.ErrNotFound)
	}
	if err != nil {
		return domain.Task{}, err
	}
	if !e.Roles.MayAssign(actor.Role, assignee.Role) {
		return domain.Task{}, auth.ForbiddenError{Reason: "cannot assign task to this user based on role hierarchy"}
	}
	priority := opts.Priority
	if priority == "" {
		priority = DefaultPriority
	}
	now := domain.FormatTime(e.now())
	t := domain.Task{
		ID:          uuid.NewString(),
		Title:       opts.Title,
		Description: opts.Description,
		AssignedBy:  actor.ID,
		AssignedTo:  assignee.ID,
		Status:      DefaultStatus,
		Priority:    priority,
		DueDate:     due,
		Comments:    []domain.Comment{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Store.InsertTask(ctx, t); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// ListTasks returns exactly the tasks actor participates in.
func (e Engine) ListTasks(ctx context.Context, actor domain.Identity) ([]domain.Task, error) {
	tasks, err := e.Store.ListTasks(ctx, repo.TaskFilters{ParticipantID: actor.ID})
	if err != nil {
		return nil, err
	}
	res := make([]domain.Task, 0, len(tasks))
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if seen[t.ID] || !auth.MayAccess(actor.ID, t) {
			continue
		}
		seen[t.ID] = true
		res = append(res, t)
	}
	return res, nil
}

// GetTask returns the task if actor participates in it.
func (e Engine) GetTask(ctx context.Context, actor domain.Identity, id string) (domain.Task, error) {
	t, err := e.Store.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if !auth.MayAccess(actor.ID, t) {
		return domain.Task{}, auth.ForbiddenError{Reason: "access denied"}
	}
	return t, nil
}

// UpdateTask applies the supplied fields of patch. The updated timestamp
// moves even when patch is empty. Any status value is accepted.
func (e Engine) UpdateTask(ctx context.Context, actor domain.Identity, id string, patch domain.TaskPatch) (domain.Task, error) {
	if _, err := e.GetTask(ctx, actor, id); err != nil {
		return domain.Task{}, err
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return domain.Task{}, badInput("title", "must not be empty")
	}
	due, err := normalizeDueDate(patch.DueDate)
	if err != nil {
		return domain.Task{}, err
	}
	patch.DueDate = due
	return e.Store.UpdateTaskFields(ctx, id, patch, domain.FormatTime(e.now()), actor.ID)
}

// AddComment appends a comment authored by actor to the task.
func (e Engine) AddComment(ctx context.Context, actor domain.Identity, taskID, text string) (domain.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Comment{}, badInput("text", "required")
	}
	if _, err := e.GetTask(ctx, actor, taskID); err != nil {
		return domain.Comment{}, err
	}
	c := domain.Comment{
		ID:        uuid.NewString(),
		Text:      text,
		Author:    actor.ID,
		Timestamp: domain.FormatTime(e.now()),
	}
	if err := e.Store.AppendTaskComment(ctx, taskID, c); err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

// Participants returns summaries of the task's assigner and assignee. A
// participant that no longer exists comes back nil.
func (e Engine) Participants(ctx context.Context, t domain.Task) (by, to *domain.UserSummary, err error) {
	lookup := func(id string) (*domain.UserSummary, error) {
		u, err := e.Store.GetUser(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &domain.UserSummary{ID: u.ID, Name: u.Name, Role: u.Role}, nil
	}
	if by, err = lookup(t.AssignedBy); err != nil {
		return nil, nil, err
	}
	if to, err = lookup(t.AssignedTo); err != nil {
		return nil, nil, err
	}
	return by, to, nil
}

var dueDateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func normalizeDueDate(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	s := strings.TrimSpace(*raw)
	for _, layout := range dueDateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			v := domain.FormatTime(ts)
			return &v, nil
		}
	}
	return nil, badInput("due_date", "must be an RFC 3339 timestamp")
}
