package auth

import (
	"strings"
	"time"

	"github.com/markbates/goth"

	"github.com/tomatrack/tomatrack/internal/apperror"
	"github.com/tomatrack/tomatrack/internal/model"
)

// Payload is the provider identity a frontend obtained from an OAuth
// handshake. It carries everything needed to find or create the
// matching account: the (provider, uid) pair, the access token to
// store, and whatever profile fields the provider exposed.
type Payload struct {
	Provider string `json:"provider"`
	UID      string `json:"uid"`
	Token    string `json:"token"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Image    string `json:"image"`
}

// Validate checks the fields without which an identity cannot be linked.
func (p Payload) Validate() error {
	if strings.TrimSpace(p.Provider) == "" {
		return apperror.ValidationFailed("provider", "provider is required")
	}
	if strings.TrimSpace(p.UID) == "" {
		return apperror.ValidationFailed("uid", "uid is required")
	}
	if p.Token == "" {
		return apperror.ValidationFailed("token", "access token is required")
	}
	return nil
}

// Authorization builds the credential to embed in a user document.
func (p Payload) Authorization(now time.Time) model.Authorization {
	a := model.Authorization{
		Provider:  p.Provider,
		UID:       p.UID,
		Nickname:  p.Nickname,
		Image:     p.Image,
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.SetToken(p.Token)
	return a
}

// PayloadFromGoth converts a goth.User, the shape every goth provider
// normalizes its callback data to, into a Payload. Providers that only
// report split first/last names get them joined back together.
func PayloadFromGoth(gu goth.User) Payload {
	name := gu.Name
	if name == "" {
		name = strings.TrimSpace(gu.FirstName + " " + gu.LastName)
	}
	return Payload{
		Provider: gu.Provider,
		UID:      gu.UserID,
		Token:    gu.AccessToken,
		Name:     name,
		Email:    gu.Email,
		Nickname: gu.NickName,
		Image:    gu.AvatarURL,
	}
}
