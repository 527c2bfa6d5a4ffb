package repository

import (
	"context"
	"time"

	"github.com/tomatrack/tomatrack/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository persists the account aggregate. Implementations assign
// the ID and timestamps on insert, write the whole document atomically,
// and enforce uniqueness of embedded (provider, uid) pairs and token
// digests, reporting violations as apperror.ErrDuplicate. Lookups that
// match nothing return apperror.ErrNotFound.
type UserRepository interface {
	InsertUser(ctx context.Context, user *model.User) error
	UpdateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	// FindUserByAuthorization matches embedded authorizations.
	FindUserByAuthorization(ctx context.Context, provider, uid string) (*model.User, error)
	// FindUserByLegacyUID matches the deprecated top-level identity pair.
	FindUserByLegacyUID(ctx context.Context, provider, uid string) (*model.User, error)
	FindUserByTokenDigest(ctx context.Context, digest string) (*model.User, error)
	// ListUsers returns users ordered by creation time. A zero Limit
	// means no limit.
	ListUsers(ctx context.Context, opts ListOptions) ([]model.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// TomatoRepository persists completed work units and answers the counting
// queries reports are built from.
type TomatoRepository interface {
	InsertTomato(ctx context.Context, tomato *model.Tomato) error
	// CountTomatoesByUser returns completed counts keyed by user ID.
	// Users without tomatoes are absent from the result.
	CountTomatoesByUser(ctx context.Context, userIDs []string) (map[string]int64, error)
	CountTomatoesSince(ctx context.Context, userID string, since time.Time) (int64, error)
	CountTomatoesBetween(ctx context.Context, userID string, from, to time.Time) (int64, error)
	// DetachTomatoesFromUser clears the user reference on every tomato
	// owned by the user. Called when an account is deleted.
	DetachTomatoesFromUser(ctx context.Context, userID string) error
}

type ProjectRepository interface {
	InsertProject(ctx context.Context, project *model.Project) error
	ListProjectsByUser(ctx context.Context, userID string) ([]model.Project, error)
	DetachProjectsFromUser(ctx context.Context, userID string) error
}

type ScoreRepository interface {
	InsertScore(ctx context.Context, score *model.Score) error
	// ListScoresByDay returns one day's snapshots ordered by tomato count
	// descending.
	ListScoresByDay(ctx context.Context, day string) ([]model.Score, error)
	DetachScoresFromUser(ctx context.Context, userID string) error
}

// Store is the full persistence surface. Each backend implements it on a
// single handle so the server can swap drivers through configuration.
type Store interface {
	UserRepository
	TomatoRepository
	ProjectRepository
	ScoreRepository
}
