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

const (
	DefaultStatus   = "assigned"
	DefaultPriority = "medium"
)

// Store is the persistence the engine needs. repo.Repo implements it.
type Store interface {
	InsertUser(ctx context.Context, u domain.Identity) error
	GetUser(ctx context.Context, id string) (domain.Identity, error)
	GetUserByEmail(ctx context.Context, email string) (domain.Identity, error)
	ListUsers(ctx context.Context) ([]domain.Identity, error)
	InsertTask(ctx context.Context, t domain.Task) error
	GetTask(ctx context.Context, id string) (domain.Task, error)
	ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error)
	UpdateTaskFields(ctx context.Context, id string, patch domain.TaskPatch, updatedAt, actorID string) (domain.Task, error)
	AppendTaskComment(ctx context.Context, taskID string, c domain.Comment) error
}

type Engine struct {
	Store  Store
	Tokens *auth.TokenCodec
	Roles  auth.Hierarchy
	Now    func() time.Time
	// PasswordCost overrides the bcrypt work factor when non-zero.
	PasswordCost int
}

func New(store Store, roles auth.Hierarchy, tokens *auth.TokenCodec) Engine {
	return Engine{
		Store:  store,
		Tokens: tokens,
		Roles:  roles,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Session is what register and login hand back.
type Session struct {
	AccessToken string
	TokenType   string
	User        domain.Identity
}

type RegisterInput struct {
	Email    string
	Name     string
	Role     string
	Password string
}

// Register creates an identity and opens a session for it.
func (e Engine) Register(ctx context.Context, in RegisterInput) (Session, error) {
	if e.Tokens == nil {
		return Session{}, errors.New("jwt secret not configured")
	}
	u, err := e.CreateIdentity(ctx, in)
	if err != nil {
		return Session{}, err
	}
	return e.openSession(u)
}

// CreateIdentity validates and stores a new identity without issuing a token.
func (e Engine) CreateIdentity(ctx context.Context, in RegisterInput) (domain.Identity, error) {
	email := strings.TrimSpace(in.Email)
	name := strings.TrimSpace(in.Name)
	switch {
	case email == "":
		return domain.Identity{}, badInput("email", "required")
	case name == "":
		return domain.Identity{}, badInput("name", "required")
	case in.Password == "":
		return domain.Identity{}, badInput("password", "required")
	}
	if !e.Roles.Known(in.Role) {
		return domain.Identity{}, badInput("role", fmt.Sprintf("unknown role %q", in.Role))
	}
	if _, err := e.Store.GetUserByEmail(ctx, email); err == nil {
		return domain.Identity{}, BadInputError{Field: "email", Reason: "email already registered"}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Identity{}, err
	}
	hash, err := e.hashPassword(in.Password)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("hash password: %w", err)
	}
	u := domain.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Role:         in.Role,
		PasswordHash: hash,
		CreatedAt:    domain.FormatTime(e.now()),
	}
	if err := e.Store.InsertUser(ctx, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return domain.Identity{}, BadInputError{Field: "email", Reason: "email already registered"}
		}
		return domain.Identity{}, err
	}
	return u, nil
}

// Login exchanges an email and password for a session. Unknown emails and
// wrong passwords fail identically.
func (e Engine) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := e.Store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, repo.ErrNotFound) {
		auth.BurnPasswordCheck(password)
		return Session{}, BadInputError{Reason: "invalid credentials"}
	}
	if err != nil {
		return Session{}, err
	}
	if !auth.VerifyPassword(password, u.PasswordHash) {
		return Session{}, BadInputError{Reason: "invalid credentials"}
	}
	return e.openSession(u)
}

func (e Engine) openSession(u domain.Identity) (Session, error) {
	if e.Tokens == nil {
		return Session{}, errors.New("jwt secret not configured")
	}
	token, err := e.Tokens.Issue(u.ID)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{AccessToken: token, TokenType: "bearer", User: u}, nil
}

func (e Engine) hashPassword(plaintext string) (string, error) {
	if e.PasswordCost > 0 {
		return auth.HashPasswordCost(plaintext, e.PasswordCost)
	}
	return auth.HashPassword(plaintext)
}

// Resolve turns a raw Authorization header value into the identity it
// names, as stored right now.
func (e Engine) Resolve(ctx context.Context, authorization string) (domain.Identity, error) {
	token, ok := auth.BearerToken(strings.TrimSpace(authorization))
	if !ok || e.Tokens == nil {
		return domain.Identity{}, auth.ErrUnauthenticated
	}
	subject, err := e.Tokens.Validate(token)
	if err != nil {
		return domain.Identity{}, auth.ErrUnauthenticated
	}
	u, err := e.Store.GetUser(ctx, subject)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Identity{}, auth.ErrUnauthenticated
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("resolve identity: %w", err)
	}
	return u, nil
}

// WhoAmI re-reads actor so callers see the stored profile.
func (e Engine) WhoAmI(ctx context.Context, actor domain.Identity) (domain.Identity, error) {
	u, err := e.Store.GetUser(ctx, actor.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Identity{}, auth.ErrUnauthenticated
	}
	return u, err
}

func (e Engine) ListUsers(ctx context.Context) ([]domain.Identity, error) {
	return e.Store.ListUsers(ctx)
}

// RoleLevel exposes the hierarchy level of role.
func (e Engine) RoleLevel(role string) int {
	return e.Roles.LevelOf(role)
}
