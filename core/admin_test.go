package core

import (
	"context"
	"errors"
	"testing"

	"github.com/caasmo/identity/crypto"
	"github.com/caasmo/identity/db"
	"github.com/caasmo/identity/db/mock"
)

var adminActor = &db.User{
	ID:       "admin-1",
	Username: "root",
	Roles:    []db.Role{{Name: "admin", Admin: true}},
}

func TestSetPassword(t *testing.T) {
	ctx := context.Background()
	target := &db.User{ID: "user-7", Username: "bob"}
	lookup := func(id string) (*db.User, error) {
		if id == target.ID {
			u := *target
			return &u, nil
		}
		return nil, nil
	}

	t.Run("non admin actor", func(t *testing.T) {
		app := newTestApp(t, &mock.Db{GetUserByIdFunc: lookup})
		actor := &db.User{ID: "user-2", Roles: []db.Role{{Name: DefaultRoleName}}}
		if _, err := app.SetPassword(ctx, actor, "user-7", "newsecret"); !errors.Is(err, ErrAuthorizationFailed) {
			t.Errorf("error = %v, want ErrAuthorizationFailed", err)
		}
	})

	t.Run("policy applies to admins too", func(t *testing.T) {
		app := newTestApp(t, &mock.Db{GetUserByIdFunc: lookup})
		if _, err := app.SetPassword(ctx, adminActor, "user-7", "abc"); !errors.Is(err, ErrPolicyViolation) {
			t.Errorf("error = %v, want ErrPolicyViolation", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		var storedHash string
		mockDb := &mock.Db{
			GetUserByIdFunc: lookup,
			UpdatePasswordFunc: func(userId, newPassword string) error {
				storedHash = newPassword
				return nil
			},
		}
		app := newTestApp(t, mockDb)

		if _, err := app.SetPassword(ctx, adminActor, "user-7", "newsecret"); err != nil {
			t.Fatalf("SetPassword() error = %v", err)
		}
		if !crypto.CheckPassword("newsecret", storedHash) {
			t.Error("stored hash does not verify the new password")
		}
	})
}

func TestSetRoles(t *testing.T) {
	ctx := context.Background()

	t.Run("non admin actor", func(t *testing.T) {
		app := newTestApp(t, &mock.Db{})
		actor := &db.User{ID: "user-2"}
		if _, err := app.SetRoles(ctx, actor, "user-7", nil); !errors.Is(err, ErrAuthorizationFailed) {
			t.Errorf("error = %v, want ErrAuthorizationFailed", err)
		}
	})

	t.Run("admin target keeps admin role", func(t *testing.T) {
		target := &db.User{
			ID:       "admin-2",
			Username: "carol",
			Roles:    []db.Role{{Name: "admin", Admin: true}, {Name: DefaultRoleName}},
		}
		var stored []db.Role
		mockDb := &mock.Db{
			GetUserByIdFunc: func(id string) (*db.User, error) {
				u := *target
				return &u, nil
			},
			UpdateRolesFunc: func(userId string, roles []db.Role) error {
				stored = roles
				return nil
			},
		}
		app := newTestApp(t, mockDb)

		user, err := app.SetRoles(ctx, adminActor, "admin-2", []db.Role{{Name: "auditor"}})
		if err != nil {
			t.Fatalf("SetRoles() error = %v", err)
		}
		if !user.IsAdmin() {
			t.Error("admin target lost its admin role")
		}
		if !containsAdmin(stored) {
			t.Errorf("stored roles %v do not keep the admin role", stored)
		}
	})

	t.Run("requested admin role is discarded", func(t *testing.T) {
		// the role set is not a privilege-escalation path: an admin-flagged
		// role in the request never reaches a non-admin target
		target := &db.User{ID: "user-7", Roles: []db.Role{{Name: DefaultRoleName}}}
		var stored []db.Role
		mockDb := &mock.Db{
			GetUserByIdFunc: func(id string) (*db.User, error) {
				u := *target
				return &u, nil
			},
			UpdateRolesFunc: func(userId string, roles []db.Role) error {
				stored = roles
				return nil
			},
		}
		app := newTestApp(t, mockDb)

		user, err := app.SetRoles(ctx, adminActor, "user-7",
			[]db.Role{{Name: "auditor"}, {Name: "admin", Admin: true}})
		if err != nil {
			t.Fatalf("SetRoles() error = %v", err)
		}
		if containsAdmin(stored) || user.IsAdmin() {
			t.Errorf("stored roles = %v, the requested admin role must be dropped", stored)
		}
		if len(stored) != 1 || stored[0].Name != "auditor" {
			t.Errorf("stored roles = %v, want the auditor role only", stored)
		}
	})

	t.Run("admin target keeps admin despite admin in request", func(t *testing.T) {
		target := &db.User{
			ID:    "admin-2",
			Roles: []db.Role{{Name: "admin", Admin: true}},
		}
		var stored []db.Role
		mockDb := &mock.Db{
			GetUserByIdFunc: func(id string) (*db.User, error) {
				u := *target
				return &u, nil
			},
			UpdateRolesFunc: func(userId string, roles []db.Role) error {
				stored = roles
				return nil
			},
		}
		app := newTestApp(t, mockDb)

		if _, err := app.SetRoles(ctx, adminActor, "admin-2", []db.Role{{Name: "admin", Admin: true}}); err != nil {
			t.Fatalf("SetRoles() error = %v", err)
		}
		if len(stored) != 1 || !stored[0].Admin {
			t.Errorf("stored roles = %v, want exactly the original admin role", stored)
		}
	})
}

func TestListUsersByRole(t *testing.T) {
	ctx := context.Background()

	t.Run("non admin actor", func(t *testing.T) {
		app := newTestApp(t, &mock.Db{})
		if _, err := app.ListUsersByRole(ctx, &db.User{}, DefaultRoleName, 10, 0); !errors.Is(err, ErrAuthorizationFailed) {
			t.Errorf("error = %v, want ErrAuthorizationFailed", err)
		}
	})

	t.Run("passes paging through", func(t *testing.T) {
		var gotRole string
		var gotLimit, gotOffset int
		mockDb := &mock.Db{
			ListUsersByRoleFunc: func(role string, limit, offset int) ([]*db.User, error) {
				gotRole, gotLimit, gotOffset = role, limit, offset
				return []*db.User{{ID: "user-7"}}, nil
			},
		}
		app := newTestApp(t, mockDb)

		users, err := app.ListUsersByRole(ctx, adminActor, DefaultRoleName, 25, 50)
		if err != nil {
			t.Fatalf("ListUsersByRole() error = %v", err)
		}
		if len(users) != 1 {
			t.Errorf("got %d users, want 1", len(users))
		}
		if gotRole != DefaultRoleName || gotLimit != 25 || gotOffset != 50 {
			t.Errorf("query = (%q,%d,%d), want (%q,25,50)", gotRole, gotLimit, gotOffset, DefaultRoleName)
		}
	})
}
