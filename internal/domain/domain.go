package domain

import "time"

// Identity is a registered person. PasswordHash never leaves the engine.
type Identity struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Comment struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Author    string `json:"author"`
	Timestamp string `json:"timestamp" format:"date-time"`
}

type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	AssignedBy  string    `json:"assigned_by"`
	AssignedTo  string    `json:"assigned_to"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	DueDate     *string   `json:"due_date,omitempty" format:"date-time"`
	Comments    []Comment `json:"comments"`
	CreatedAt   string    `json:"created_at" format:"date-time"`
	UpdatedAt   string    `json:"updated_at" format:"date-time"`
}

// TaskPatch holds the mutable task fields. Nil means "not supplied".
type TaskPatch struct {
	Status      *string
	Title       *string
	Description *string
	Priority    *string
	DueDate     *string
}

// Empty reports whether no field was supplied.
func (p TaskPatch) Empty() bool {
	return p.Status == nil && p.Title == nil && p.Description == nil && p.Priority == nil && p.DueDate == nil
}

// UserSummary is the participant block attached to task reads.
type UserSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// TimeLayout is RFC 3339 with fixed microsecond precision so stored
// timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
