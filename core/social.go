package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/caasmo/identity/crypto"
	"github.com/caasmo/identity/db"
	"github.com/caasmo/identity/oauth2"
)

// SocialProfile is the provider-neutral record a social login resolves to.
type SocialProfile struct {
	Email     string
	Username  string
	FirstName string
	LastName  string
}

// usernameProbeLimit bounds the disambiguation suffix search.
const usernameProbeLimit = 1000

// LoginWithOAuth2 resolves an OAuth2 authorization code to a local user:
// it fetches the provider profile and reconciles it against the store.
func (a *App) LoginWithOAuth2(ctx context.Context, providerName, code, codeVerifier, redirectURI string) (*db.User, error) {
	provider, ok := a.Config().OAuth2Providers[providerName]
	if !ok {
		return nil, fmt.Errorf("%w: unknown oauth2 provider %q", ErrInvalidIdentity, providerName)
	}

	providerUser, err := oauth2.FetchUser(ctx, provider, code, codeVerifier, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthorizationFailed, err)
	}

	first, last := splitName(providerUser.Name)
	return a.ReconcileSocialIdentity(ctx, SocialProfile{
		Email:     providerUser.Email,
		Username:  providerUser.Username,
		FirstName: first,
		LastName:  last,
	})
}

// ReconcileSocialIdentity links an externally-authenticated profile to a
// local user. The first match wins unchanged, by email and then by the
// derived username: linking is idempotent and never re-issues credentials
// for the matched account. Otherwise a new user is created with the first
// unused username in the probe sequence base, base_0, base_1, ... and a
// placeholder password hash seeded from the username; the user is expected
// to reset it before ever using password login.
func (a *App) ReconcileSocialIdentity(ctx context.Context, profile SocialProfile) (*db.User, error) {
	if profile.Email != "" {
		user, err := a.dbAuth.GetUserByEmail(profile.Email)
		if err != nil {
			return nil, fmt.Errorf("%w: user lookup failed: %v", ErrUnknown, err)
		}
		if user != nil {
			return user, nil
		}
	}

	derived := deriveUsername(profile)
	if derived == "" {
		return nil, fmt.Errorf("%w: profile has no usable name", ErrInvalidIdentity)
	}

	existing, err := a.dbAuth.GetUserByUsername(derived)
	if err != nil {
		return nil, fmt.Errorf("%w: user lookup failed: %v", ErrUnknown, err)
	}
	if existing != nil {
		return existing, nil
	}

	username, err := a.availableUsername(derived, profile)
	if err != nil {
		return nil, err
	}

	hash, err := crypto.GenerateHash(username)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to hash placeholder password: %v", ErrUnknown, err)
	}

	user, err := a.dbAuth.CreateUser(db.User{
		ID:       uuid.NewString(),
		Username: username,
		Email:    profile.Email,
		Password: hash,
		Name:     strings.TrimSpace(profile.FirstName + " " + profile.LastName),
		Roles:    []db.Role{{Name: DefaultRoleName}},
	})
	if err != nil {
		if errors.Is(err, db.ErrConstraintUnique) {
			// lost a race with a concurrent reconcile of the same profile
			return a.ReconcileSocialIdentity(ctx, profile)
		}
		return nil, fmt.Errorf("%w: failed to create user: %v", ErrUnknown, err)
	}

	a.logger.Info("social identity reconciled", "user", user.ID, "username", username)
	return user, nil
}

// availableUsername synthesizes the new account's username from the name
// parts and scans base, base_0, base_1, ... for the first unused one. known
// is a username already verified free; it is used directly when the name
// parts give nothing different.
func (a *App) availableUsername(known string, profile SocialProfile) (string, error) {
	base := nameUsername(profile)
	if base == "" || base == known {
		return known, nil
	}

	username := base
	for i := 0; ; i++ {
		existing, err := a.dbAuth.GetUserByUsername(username)
		if err != nil {
			return "", fmt.Errorf("%w: user lookup failed: %v", ErrUnknown, err)
		}
		if existing == nil {
			return username, nil
		}
		if i >= usernameProbeLimit {
			return "", fmt.Errorf("%w: no free username near %q", ErrUnknown, base)
		}
		username = fmt.Sprintf("%s_%d", base, i)
	}
}

// deriveUsername is the lookup key for username matching: the provider
// handle when present, otherwise the name-derived username.
func deriveUsername(profile SocialProfile) string {
	if handle := normalizeUsernamePart(profile.Username); handle != "" {
		return handle
	}
	return nameUsername(profile)
}

// nameUsername joins the normalized first and last name with an underscore.
func nameUsername(profile SocialProfile) string {
	first := normalizeUsernamePart(profile.FirstName)
	last := normalizeUsernamePart(profile.LastName)
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + "_" + last
}

// normalizeUsernamePart lowercases and keeps only letters and digits.
func normalizeUsernamePart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
