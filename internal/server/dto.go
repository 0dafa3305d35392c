package server

import (
	"taskflow/internal/domain"
	"taskflow/internal/engine"
)

// Request payloads

type RegisterRequest struct {
	Email    string `json:"email" format:"email" example:"dev@example.com"`
	Name     string `json:"name" minLength:"1"`
	Role     string `json:"role" example:"developer" doc:"Must be one of the configured roles"`
	Password string `json:"password" minLength:"1"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateTaskRequest struct {
	Title       string  `json:"title" minLength:"1"`
	Description string  `json:"description"`
	AssignedTo  string  `json:"assigned_to" doc:"ID of the assignee; must not outrank the caller"`
	Priority    *string `json:"priority,omitempty" example:"high"`
	DueDate     *string `json:"due_date,omitempty" nullable:"true" example:"2026-02-01T17:00:00Z"`
}

// UpdateTaskRequest sets only the fields present. Null is the same as absent.
type UpdateTaskRequest struct {
	Status      *string `json:"status,omitempty" nullable:"true" example:"in_progress"`
	Title       *string `json:"title,omitempty" nullable:"true"`
	Description *string `json:"description,omitempty" nullable:"true"`
	Priority    *string `json:"priority,omitempty" nullable:"true"`
	DueDate     *string `json:"due_date,omitempty" nullable:"true"`
}

func (r UpdateTaskRequest) patch() domain.TaskPatch {
	return domain.TaskPatch{
		Status:      r.Status,
		Title:       r.Title,
		Description: r.Description,
		Priority:    r.Priority,
		DueDate:     r.DueDate,
	}
}

type CommentRequest struct {
	Text string `json:"text" minLength:"1"`
}

// Responses

type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	RoleLevel int    `json:"role_level"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type SessionResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type" example:"bearer"`
	User        UserResponse `json:"user"`
}

// TaskWithParticipants is a task read with its assigner and assignee. A
// participant that no longer exists is null.
type TaskWithParticipants struct {
	domain.Task
	AssignedByUser *domain.UserSummary `json:"assigned_by_user"`
	AssignedToUser *domain.UserSummary `json:"assigned_to_user"`
}

func userResponse(e engine.Engine, u domain.Identity) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		RoleLevel: e.RoleLevel(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

func mapUsers(e engine.Engine, items []domain.Identity) []UserResponse {
	out := make([]UserResponse, 0, len(items))
	for _, u := range items {
		out = append(out, userResponse(e, u))
	}
	return out
}

func sessionResponse(e engine.Engine, s engine.Session) SessionResponse {
	return SessionResponse{
		AccessToken: s.AccessToken,
		TokenType:   s.TokenType,
		User:        userResponse(e, s.User),
	}
}
