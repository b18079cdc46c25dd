package core

import (
	"context"
	"fmt"

	"github.com/caasmo/identity/crypto"
	"github.com/caasmo/identity/db"
)

// SetPassword stores a new password for any user without knowing the
// current one. Only admins may call it.
func (a *App) SetPassword(ctx context.Context, actor *db.User, userId, newPassword string) (*db.User, error) {
	if actor == nil || !actor.IsAdmin() {
		return nil, ErrAuthorizationFailed
	}

	if err := validatePasswordPolicy(newPassword, a.Config().PasswordMinLength); err != nil {
		return nil, err
	}

	user, err := a.getUserById(userId)
	if err != nil {
		return nil, err
	}

	hash, err := crypto.GenerateHash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to hash password: %v", ErrUnknown, err)
	}
	if err := a.dbAuth.UpdatePassword(user.ID, hash); err != nil {
		return nil, fmt.Errorf("%w: failed to store password: %v", ErrUnknown, err)
	}

	user.Password = hash
	a.logger.Info("password set by admin", "user", user.ID, "actor", actor.ID)
	return user, nil
}

// SetRoles replaces a user's role set. Only admins may call it. Admin
// roles in the request are discarded and an existing admin grant is carried
// over, so this path can neither grant nor revoke admin.
func (a *App) SetRoles(ctx context.Context, actor *db.User, userId string, roles []db.Role) (*db.User, error) {
	if actor == nil || !actor.IsAdmin() {
		return nil, ErrAuthorizationFailed
	}

	user, err := a.getUserById(userId)
	if err != nil {
		return nil, err
	}

	merged := make([]db.Role, 0, len(roles)+1)
	for _, role := range roles {
		if role.Admin {
			continue
		}
		merged = append(merged, role)
	}
	for _, role := range user.Roles {
		if role.Admin {
			merged = append(merged, role)
		}
	}

	if err := a.dbAuth.UpdateRoles(user.ID, merged); err != nil {
		return nil, fmt.Errorf("%w: failed to store roles: %v", ErrUnknown, err)
	}

	user.Roles = merged
	a.logger.Info("roles updated", "user", user.ID, "actor", actor.ID)
	return user, nil
}

// ListUsersByRole pages through users holding the named role.
func (a *App) ListUsersByRole(ctx context.Context, actor *db.User, role string, limit, offset int) ([]*db.User, error) {
	if actor == nil || !actor.IsAdmin() {
		return nil, ErrAuthorizationFailed
	}

	users, err := a.dbAuth.ListUsersByRole(role, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: user listing failed: %v", ErrUnknown, err)
	}
	return users, nil
}

func containsAdmin(roles []db.Role) bool {
	for _, role := range roles {
		if role.Admin {
			return true
		}
	}
	return false
}
