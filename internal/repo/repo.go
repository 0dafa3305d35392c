package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"taskflow/internal/domain"
	"taskflow/internal/events"
)

// Repo is the SQLite storage collaborator. Every write touches a single task
// or a single user and runs in its own transaction.
type Repo struct {
	DB     *sql.DB
	Events events.Writer
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// TaskFilters narrows ListTasks. ParticipantID keeps tasks where the id is
// either assigner or assignee.
type TaskFilters struct {
	ParticipantID string
	Status        string
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// InsertUser stores a new identity. A taken email yields ErrDuplicate.
func (r Repo) InsertUser(ctx context.Context, u domain.Identity) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,email,name,role,password_hash,created_at) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Email, u.Name, u.Role, u.PasswordHash, u.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Email, ErrDuplicate)
	}
	return err
}

const userColumns = `id,email,name,role,password_hash,created_at`

func scanUser(row interface{ Scan(...any) error }) (domain.Identity, error) {
	var u domain.Identity
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Identity{}, ErrNotFound
	}
	return u, err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.Identity, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

// GetUserByEmail matches the email exactly as stored.
func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.Identity, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.Identity, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Identity
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// InsertTask stores a new task and records the creation event.
func (r Repo) InsertTask(ctx context.Context, t domain.Task) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,title,description,assigned_by,assigned_to,status,priority,due_date,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Description, t.AssignedBy, t.AssignedTo, t.Status, t.Priority, nullablePtr(t.DueDate), t.CreatedAt, t.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("task %s: %w", t.ID, ErrDuplicate)
		}
		return fmt.Errorf("insert task: %w", err)
	}
	if err := r.Events.Append(ctx, tx, events.TaskCreated, "task", t.ID, t.AssignedBy, events.EventPayload{
		"assigned_to": t.AssignedTo,
		"status":      t.Status,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

const taskColumns = `id,title,description,assigned_by,assigned_to,status,priority,due_date,created_at,updated_at`

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanTask(row interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var due sql.NullString
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.AssignedBy, &t.AssignedTo, &t.Status, &t.Priority, &due, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	if due.Valid {
		v := due.String
		t.DueDate = &v
	}
	t.Comments = []domain.Comment{}
	return t, nil
}

func getTask(ctx context.Context, q querier, id string) (domain.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err != nil {
		return domain.Task{}, err
	}
	comments, err := listComments(ctx, q, id)
	if err != nil {
		return domain.Task{}, err
	}
	t.Comments = comments
	return t, nil
}

// GetTask returns the task with its comments in append order.
func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return getTask(ctx, r.DB, id)
}

// ListTasks returns tasks in creation order, each with its comments.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var (
		clauses []string
		args    []any
	)
	if f.ParticipantID != "" {
		clauses = append(clauses, "(assigned_by=? OR assigned_to=?)")
		args = append(args, f.ParticipantID, f.ParticipantID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i := range tasks {
		comments, err := listComments(ctx, r.DB, tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].Comments = comments
	}
	return tasks, nil
}

// UpdateTaskFields overwrites only the supplied fields and always sets
// updated_at. Fields not named in the patch are left to concurrent writers.
func (r Repo) UpdateTaskFields(ctx context.Context, id string, patch domain.TaskPatch, updatedAt, actorID string) (domain.Task, error) {
	fields := []string{}
	args := []any{}
	changed := []string{}
	set := func(column string, v *string) {
		if v == nil {
			return
		}
		fields = append(fields, column+"=?")
		args = append(args, *v)
		changed = append(changed, column)
	}
	set("status", patch.Status)
	set("title", patch.Title)
	set("description", patch.Description)
	set("priority", patch.Priority)
	set("due_date", patch.DueDate)
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Task{}, ErrNotFound
	}
	payload := events.EventPayload{"fields": changed}
	if patch.Status != nil {
		payload["status"] = *patch.Status
	}
	if err := r.Events.Append(ctx, tx, events.TaskUpdated, "task", id, actorID, payload); err != nil {
		return domain.Task{}, err
	}
	t, err := getTask(ctx, tx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// AppendTaskComment adds c to the end of the task's comment sequence and
// bumps the task's updated_at to the comment timestamp.
func (r Repo) AppendTaskComment(ctx context.Context, taskID string, c domain.Comment) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET updated_at=? WHERE id=?`, c.Timestamp, taskID)
	if err != nil {
		return fmt.Errorf("touch task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO task_comments(id,task_id,text,author,ts) VALUES (?,?,?,?,?)`,
		c.ID, taskID, c.Text, c.Author, c.Timestamp); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	if err := r.Events.Append(ctx, tx, events.TaskCommented, "task", taskID, c.Author, events.EventPayload{"comment_id": c.ID}); err != nil {
		return err
	}
	return tx.Commit()
}

func listComments(ctx context.Context, q querier, taskID string) ([]domain.Comment, error) {
	rows, err := q.QueryContext(ctx, `SELECT id,text,author,ts FROM task_comments WHERE task_id=? ORDER BY seq`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	comments := []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.Text, &c.Author, &c.Timestamp); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// LatestEvents returns up to n events, newest first.
func (r Repo) LatestEvents(ctx context.Context, n int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if n <= 0 {
		n = 20
	}
	var (
		clauses []string
		args    []any
	)
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullablePtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
