// Package model defines the data structures used throughout the application.
package model

import (
	"regexp"
	"time"
)

// Profile defaults applied at read time. Stored documents keep the zero
// value for fields the user never touched, so a default can change later
// without a data migration.
const (
	DefaultColor  = "#000000"
	DefaultVolume = 2
	DefaultImage  = "/static/default-avatar.png"

	// MinVolume and MaxVolume bound the alarm volume scale (inclusive).
	MinVolume = 0
	MaxVolume = 3

	// TomatoDuration is the length of one completed work unit. Revenue
	// estimates convert tomato counts to hours with it.
	TomatoDuration = 25 * time.Minute
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidColor reports whether s is a CSS-style six digit hex color.
func ValidColor(s string) bool {
	return colorPattern.MatchString(s)
}

// User represents one account.
//
// Identity lives in the embedded Authorizations. The top-level
// LegacyProvider/LegacyUID pair is the deprecated single-provider shape
// that accounts from the first version still carry: it stays readable for
// lookups but is never written for new accounts.
//
// Optional profile fields keep their zero value until the user sets them.
// Volume is a pointer because 0 (muted) is a valid setting and must be
// distinguishable from "never set". Readers go through the Effective*
// accessors rather than the raw fields.
type User struct {
	ID    string `json:"id" bson:"_id,omitempty"`
	Name  string `json:"name,omitempty" bson:"name,omitempty"`
	Email string `json:"email,omitempty" bson:"email,omitempty"`
	Image string `json:"image,omitempty" bson:"image,omitempty"`

	Color             string  `json:"color,omitempty" bson:"color,omitempty"`
	Volume            *int    `json:"volume,omitempty" bson:"volume,omitempty"`
	Ticking           bool    `json:"ticking,omitempty" bson:"ticking,omitempty"`
	Currency          string  `json:"currency,omitempty" bson:"currency,omitempty"`
	TimeZone          string  `json:"timeZone,omitempty" bson:"time_zone,omitempty"`
	WorkHoursPerDay   float64 `json:"workHoursPerDay,omitempty" bson:"work_hours_per_day,omitempty"`
	AverageHourlyRate float64 `json:"averageHourlyRate,omitempty" bson:"average_hourly_rate,omitempty"`

	// Deprecated identity pair from before authorizations were embedded.
	// The bson keys keep the original field names so old documents resolve.
	LegacyProvider string `json:"legacyProvider,omitempty" bson:"provider,omitempty"`
	LegacyUID      string `json:"legacyUid,omitempty" bson:"uid,omitempty"`

	// Authorizations is ordered: reconciling a known provider updates its
	// entry in place, new providers append at the end.
	Authorizations []Authorization `json:"authorizations,omitempty" bson:"authorizations,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// Authorization links one external provider identity to a user account.
// The raw access token is stored next to its BLAKE2b digest; stores index
// the digest so token lookup never indexes the secret itself.
type Authorization struct {
	Provider    string    `json:"provider" bson:"provider"`
	UID         string    `json:"uid" bson:"uid"`
	Token       string    `json:"token,omitempty" bson:"token,omitempty"`
	TokenDigest string    `json:"tokenDigest,omitempty" bson:"token_digest,omitempty"`
	Nickname    string    `json:"nickname,omitempty" bson:"nickname,omitempty"`
	Image       string    `json:"image,omitempty" bson:"image,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updated_at"`
}

// SetToken stores the raw token and keeps the digest in sync. Assigning
// Token directly would leave a stale digest and break token lookup.
func (a *Authorization) SetToken(token string) {
	a.Token = token
	if token == "" {
		a.TokenDigest = ""
		return
	}
	a.TokenDigest = TokenDigest(token)
}

// AuthorizationFor returns a pointer into the Authorizations slice for the
// given provider, or nil when the user has no entry for it. Mutations
// through the pointer are visible on the user.
func (u *User) AuthorizationFor(provider string) *Authorization {
	for i := range u.Authorizations {
		if u.Authorizations[i].Provider == provider {
			return &u.Authorizations[i]
		}
	}
	return nil
}

// EffectiveColor returns the timer color, falling back to DefaultColor.
func (u *User) EffectiveColor() string {
	if u.Color == "" {
		return DefaultColor
	}
	return u.Color
}

// EffectiveVolume returns the alarm volume, falling back to DefaultVolume
// when the user never picked one. A stored 0 means muted, not unset.
func (u *User) EffectiveVolume() int {
	if u.Volume == nil {
		return DefaultVolume
	}
	return *u.Volume
}

// EffectiveCurrency returns the ISO currency code, falling back to
// DefaultCurrencyCode.
func (u *User) EffectiveCurrency() string {
	if u.Currency == "" {
		return DefaultCurrencyCode
	}
	return u.Currency
}

// CurrencyUnit returns the display symbol for the effective currency.
func (u *User) CurrencyUnit() string {
	if c, ok := CurrencyByCode(u.EffectiveCurrency()); ok {
		return c.Unit
	}
	return currencies[DefaultCurrencyCode].Unit
}

// EffectiveImage resolves the avatar: the stored image first, then the
// first authorization that carries one, then the static placeholder.
func (u *User) EffectiveImage() string {
	if u.Image != "" {
		return u.Image
	}
	for _, a := range u.Authorizations {
		if a.Image != "" {
			return a.Image
		}
	}
	return DefaultImage
}

// DisplayName returns the stored name or, failing that, the first
// authorization nickname. Empty when the user has neither.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	for _, a := range u.Authorizations {
		if a.Nickname != "" {
			return a.Nickname
		}
	}
	return ""
}

// Location parses the user's IANA time zone. Returns nil when the zone is
// unset or unknown; there is no default zone, callers pick their own
// fallback.
func (u *User) Location() *time.Location {
	if u.TimeZone == "" {
		return nil
	}
	loc, err := time.LoadLocation(u.TimeZone)
	if err != nil {
		return nil
	}
	return loc
}

// EstimatedRevenue converts a completed tomato count into earnings using
// the user's average hourly rate. Zero when no rate is set.
func (u *User) EstimatedRevenue(tomatoes int64) float64 {
	return float64(tomatoes) * TomatoDuration.Hours() * u.AverageHourlyRate
}

// DailyTomatoGoal is how many whole tomatoes fit into the user's
// configured work day. Zero when work hours are unset.
func (u *User) DailyTomatoGoal() int {
	if u.WorkHoursPerDay <= 0 {
		return 0
	}
	return int(u.WorkHoursPerDay * time.Hour.Hours() / TomatoDuration.Hours())
}
