// Package memory is an in-process Store used by tests and by local runs
// that do not want a database. It mirrors the constraint behavior of the
// real backends, including uniqueness of provider identities and token
// digests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/tomatrack/tomatrack/internal/apperror"
	"github.com/tomatrack/tomatrack/internal/model"
	"github.com/tomatrack/tomatrack/internal/repository"
)

type Store struct {
	mu       sync.RWMutex
	users    map[string]model.User
	tomatoes map[string]model.Tomato
	projects map[string]model.Project
	scores   map[string]model.Score
}

// Compile-time check that Store satisfies the full persistence surface.
var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    make(map[string]model.User),
		tomatoes: make(map[string]model.Tomato),
		projects: make(map[string]model.Project),
		scores:   make(map[string]model.Score),
	}
}

// Ping reports the store as always healthy.
func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// cloneUser copies a user deeply enough that callers mutating the result
// cannot reach into the store's state.
func cloneUser(u model.User) model.User {
	out := u
	if u.Volume != nil {
		v := *u.Volume
		out.Volume = &v
	}
	out.Authorizations = append([]model.Authorization(nil), u.Authorizations...)
	return out
}

// conflictLocked checks the candidate's authorizations against every other
// stored user. Caller holds at least a read lock.
func (s *Store) conflictLocked(candidate *model.User) error {
	for id, other := range s.users {
		if id == candidate.ID {
			continue
		}
		for _, a := range candidate.Authorizations {
			for _, b := range other.Authorizations {
				if a.Provider == b.Provider && a.UID == b.UID {
					return apperror.Duplicate("authorization", fmt.Sprintf("%s/%s already linked", a.Provider, a.UID))
				}
				if a.TokenDigest != "" && a.TokenDigest == b.TokenDigest {
					return apperror.Duplicate("token", "access token already in use")
				}
			}
		}
	}
	return nil
}

// ============================================================
// Users
// ============================================================

func (s *Store) InsertUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		user.ID = xid.New().String()
	}
	if _, exists := s.users[user.ID]; exists {
		return apperror.Duplicate("user", user.ID)
	}
	if err := s.conflictLocked(user); err != nil {
		return err
	}

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	s.users[user.ID] = cloneUser(*user)
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; !exists {
		return apperror.NotFound("user", user.ID)
	}
	if err := s.conflictLocked(user); err != nil {
		return err
	}

	user.UpdatedAt = time.Now()
	s.users[user.ID] = cloneUser(*user)
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	out := cloneUser(u)
	return &out, nil
}

func (s *Store) FindUserByAuthorization(ctx context.Context, provider, uid string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		for _, a := range u.Authorizations {
			if a.Provider == provider && a.UID == uid {
				out := cloneUser(u)
				return &out, nil
			}
		}
	}
	return nil, apperror.NotFound("user", provider+"/"+uid)
}

func (s *Store) FindUserByLegacyUID(ctx context.Context, provider, uid string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.LegacyProvider == provider && u.LegacyUID == uid {
			out := cloneUser(u)
			return &out, nil
		}
	}
	return nil, apperror.NotFound("user", provider+"/"+uid)
}

func (s *Store) FindUserByTokenDigest(ctx context.Context, digest string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if digest == "" {
		return nil, apperror.NotFound("user", "empty token digest")
	}
	for _, u := range s.users {
		for _, a := range u.Authorizations {
			if a.TokenDigest == digest {
				out := cloneUser(u)
				return &out, nil
			}
		}
	}
	return nil, apperror.NotFound("user", "token digest")
}

func (s *Store) ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []model.User{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(s.users, id)
	return nil
}

// ============================================================
// Tomatoes
// ============================================================

func (s *Store) InsertTomato(ctx context.Context, tomato *model.Tomato) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tomato.ID == "" {
		tomato.ID = xid.New().String()
	}
	if tomato.CreatedAt.IsZero() {
		tomato.CreatedAt = time.Now()
	}
	s.tomatoes[tomato.ID] = *tomato
	return nil
}

func (s *Store) CountTomatoesByUser(ctx context.Context, userIDs []string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}

	counts := make(map[string]int64)
	for _, tm := range s.tomatoes {
		if tm.UserID != "" && wanted[tm.UserID] {
			counts[tm.UserID]++
		}
	}
	return counts, nil
}

func (s *Store) CountTomatoesSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, tm := range s.tomatoes {
		if tm.UserID == userID && !tm.CompletedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountTomatoesBetween(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, tm := range s.tomatoes {
		if tm.UserID == userID && !tm.CompletedAt.Before(from) && tm.CompletedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (s *Store) DetachTomatoesFromUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, tm := range s.tomatoes {
		if tm.UserID == userID {
			tm.UserID = ""
			s.tomatoes[id] = tm
		}
	}
	return nil
}

// ============================================================
// Projects
// ============================================================

func (s *Store) InsertProject(ctx context.Context, project *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if project.ID == "" {
		project.ID = xid.New().String()
	}
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now()
	}
	s.projects[project.ID] = *project
	return nil
}

func (s *Store) ListProjectsByUser(ctx context.Context, userID string) ([]model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.Project{}
	for _, p := range s.projects {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DetachProjectsFromUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range s.projects {
		if p.UserID == userID {
			p.UserID = ""
			s.projects[id] = p
		}
	}
	return nil
}

// ============================================================
// Scores
// ============================================================

func (s *Store) InsertScore(ctx context.Context, score *model.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if score.ID == "" {
		score.ID = xid.New().String()
	}
	if score.CreatedAt.IsZero() {
		score.CreatedAt = time.Now()
	}
	s.scores[score.ID] = *score
	return nil
}

func (s *Store) ListScoresByDay(ctx context.Context, day string) ([]model.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.Score{}
	for _, sc := range s.scores {
		if sc.Day == day {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tomatoes == out[j].Tomatoes {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Tomatoes > out[j].Tomatoes
	})
	return out, nil
}

func (s *Store) DetachScoresFromUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sc := range s.scores {
		if sc.UserID == userID {
			sc.UserID = ""
			s.scores[id] = sc
		}
	}
	return nil
}
