// Package service contains the business logic layer of the application.
//
// Handlers parse requests and write responses, services validate and
// orchestrate, repositories read and write the store. Services take
// repository interfaces rather than concrete store types, so tests
// exercise the rules with plain function calls against fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tomatrack/tomatrack/internal/apperror"
	"github.com/tomatrack/tomatrack/internal/auth"
	"github.com/tomatrack/tomatrack/internal/model"
	"github.com/tomatrack/tomatrack/internal/repository"
)

// IdentityService links provider identities to accounts.
//
// It owns the two entry points of the login path: resolving a presented
// access token to its account (every authenticated request) and
// reconciling an OAuth callback payload into a new or existing account
// (the frontend's reconcile call).
type IdentityService struct {
	users     repository.UserRepository
	resolvers []resolverFunc
	logger    *slog.Logger
}

// IdentityService satisfies the middleware's token resolver.
var _ auth.UserResolver = (*IdentityService)(nil)

// resolverFunc locates the account owning a provider identity.
type resolverFunc func(ctx context.Context, provider, uid string) (*model.User, error)

// NewIdentityService creates an IdentityService.
//
// Identity resolution tries embedded authorizations first and falls
// back to the top-level legacy pair that v1 imports carry. The order
// matters: an account that upgraded keeps matching through its
// authorization even though the legacy fields still hold the old pair.
func NewIdentityService(users repository.UserRepository, logger *slog.Logger) *IdentityService {
	return &IdentityService{
		users: users,
		resolvers: []resolverFunc{
			users.FindUserByAuthorization,
			users.FindUserByLegacyUID,
		},
		logger: logger,
	}
}

// FindByToken resolves an opaque access token to its account.
//
// The store indexes token digests, not raw tokens, so the lookup hashes
// the presented value first. The digest index is derived data: the match
// is confirmed against the stored credential before it is trusted.
func (s *IdentityService) FindByToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.ValidationFailed("token", "access token is required")
	}

	user, err := s.users.FindUserByTokenDigest(ctx, model.TokenDigest(token))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/identity: finding user by token: %w", err)
	}

	for i := range user.Authorizations {
		if user.Authorizations[i].Token == token {
			return user, nil
		}
	}
	return nil, apperror.NotFound("user", "token")
}

// FindByProviderUID resolves a (provider, uid) identity to its account,
// trying each resolution strategy in order.
func (s *IdentityService) FindByProviderUID(ctx context.Context, provider, uid string) (*model.User, error) {
	if provider == "" || uid == "" {
		return nil, apperror.ValidationFailed("identity", "provider and uid are required")
	}

	for _, resolve := range s.resolvers {
		user, err := resolve(ctx, provider, uid)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/identity: resolving %s/%s: %w", provider, uid, err)
		}
	}
	return nil, apperror.NotFound("user", provider+"/"+uid)
}

// Reconcile absorbs an OAuth callback payload into the account base.
//
// If the identity is already linked, the owning account is refreshed
// from the payload and returned with created=false. Otherwise a new
// account is created from the payload and returned with created=true.
//
// Two first logins racing on the same identity both pass the lookup and
// one insert loses on the uniqueness constraint. That loser retries the
// lookup exactly once and reconciles into the winner's account, so both
// callers end up with the same user.
func (s *IdentityService) Reconcile(ctx context.Context, p auth.Payload) (*model.User, bool, error) {
	if err := p.Validate(); err != nil {
		return nil, false, err
	}

	user, err := s.FindByProviderUID(ctx, p.Provider, p.UID)
	switch {
	case err == nil:
		user, err = s.update(ctx, user, p)
		return user, false, err
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, false, err
	}

	user, err = s.create(ctx, p)
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, apperror.ErrDuplicate) {
		return nil, false, err
	}

	found, ferr := s.FindByProviderUID(ctx, p.Provider, p.UID)
	if ferr != nil {
		if errors.Is(ferr, apperror.ErrNotFound) {
			// The conflict was not on this identity, so it must be the
			// token, which some other account already holds. Surface the
			// duplicate rather than the failed retry.
			return nil, false, err
		}
		return nil, false, ferr
	}

	user, err = s.update(ctx, found, p)
	return user, false, err
}

// create builds a fresh account seeded from the payload's profile
// fields and its single authorization.
func (s *IdentityService) create(ctx context.Context, p auth.Payload) (*model.User, error) {
	now := time.Now()
	user := &model.User{
		Name:           p.Name,
		Email:          p.Email,
		Image:          p.Image,
		Authorizations: []model.Authorization{p.Authorization(now)},
	}

	if err := s.users.InsertUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrDuplicate) || errors.Is(err, apperror.ErrValidation) {
			return nil, err
		}
		return nil, apperror.Persistence("service/identity: creating user", err)
	}

	s.logger.Info("user created from provider identity",
		slog.String("userID", user.ID),
		slog.String("provider", p.Provider),
	)
	return user, nil
}

// update refreshes an existing account from a payload.
//
// Profile fields never overwrite what the user chose: name and email
// fill in only when blank. The avatar tracks the provider whenever one
// is supplied. The matching authorization is rewritten in place so a
// re-login rotates the stored token instead of growing the list; an
// account seen through a new provider, or resolved through its legacy
// pair, gains a fresh authorization instead.
func (s *IdentityService) update(ctx context.Context, user *model.User, p auth.Payload) (*model.User, error) {
	now := time.Now()

	if user.Name == "" && p.Name != "" {
		user.Name = p.Name
	}
	if user.Email == "" && p.Email != "" {
		user.Email = p.Email
	}
	if p.Image != "" {
		user.Image = p.Image
	}

	if a := user.AuthorizationFor(p.Provider); a != nil {
		a.UID = p.UID
		a.SetToken(p.Token)
		if p.Nickname != "" {
			a.Nickname = p.Nickname
		}
		if p.Image != "" {
			a.Image = p.Image
		}
		a.UpdatedAt = now
	} else {
		user.Authorizations = append(user.Authorizations, p.Authorization(now))
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrDuplicate) {
			return nil, err
		}
		return nil, apperror.Persistence("service/identity: updating user "+user.ID, err)
	}

	s.logger.Info("identity reconciled",
		slog.String("userID", user.ID),
		slog.String("provider", p.Provider),
	)
	return user, nil
}
