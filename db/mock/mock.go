package mock

import (
	"time"

	"github.com/caasmo/identity/db"
)

// Compile-time check to ensure Db implements the DbApp interface
var _ db.DbApp = (*Db)(nil)

// Db implements db.DbApp for testing purposes.
// Use function fields to allow overriding behavior in specific tests.
type Db struct {
	// --- Mock DbAuth Methods ---
	GetUserByIdFunc       func(id string) (*db.User, error)
	GetUserByUsernameFunc func(username string) (*db.User, error)
	GetUserByEmailFunc    func(email string) (*db.User, error)
	GetUserByPhoneFunc    func(phone string) (*db.User, error)
	CreateUserFunc        func(user db.User) (*db.User, error)
	UpdatePasswordFunc    func(userId string, newPassword string) error
	UpdateRolesFunc       func(userId string, roles []db.Role) error
	ListUsersByRoleFunc   func(role string, limit, offset int) ([]*db.User, error)

	// --- Mock DbToken Methods ---
	GetTokenByValueFunc            func(token string) (*db.ValidationToken, error)
	InsertTokenFunc                func(t db.ValidationToken) (*db.ValidationToken, error)
	ConsumeTokenFunc               func(token string, reason string) (bool, error)
	InvalidateTokenFunc            func(token string) (bool, error)
	ConsumeTokenSetPasswordFunc    func(token, reason, userId, newPassword string) (bool, error)
	CountTokensByIdentitySinceFunc func(identity string, since time.Time) (int, error)
	CountTokensByUserSinceFunc     func(userId string, since time.Time) (int, error)

	// --- Mock DbQueue Methods ---
	InsertJobFunc     func(job db.Job) error
	ClaimFunc         func(limit int) ([]*db.Job, error)
	MarkCompletedFunc func(jobID int64) error
	MarkFailedFunc    func(jobID int64, errMsg string) error
}

// --- Implement DbAuth ---
func (m *Db) GetUserById(id string) (*db.User, error) {
	if m.GetUserByIdFunc != nil {
		return m.GetUserByIdFunc(id)
	}
	return nil, nil // Default: Not found
}

func (m *Db) GetUserByUsername(username string) (*db.User, error) {
	if m.GetUserByUsernameFunc != nil {
		return m.GetUserByUsernameFunc(username)
	}
	return nil, nil // Default: Not found
}

func (m *Db) GetUserByEmail(email string) (*db.User, error) {
	if m.GetUserByEmailFunc != nil {
		return m.GetUserByEmailFunc(email)
	}
	return nil, nil // Default: Not found
}

func (m *Db) GetUserByPhone(phone string) (*db.User, error) {
	if m.GetUserByPhoneFunc != nil {
		return m.GetUserByPhoneFunc(phone)
	}
	return nil, nil // Default: Not found
}

func (m *Db) CreateUser(user db.User) (*db.User, error) {
	if m.CreateUserFunc != nil {
		return m.CreateUserFunc(user)
	}
	// Default: Return the user passed in, assuming success
	return &user, nil
}

func (m *Db) UpdatePassword(userId string, newPassword string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(userId, newPassword)
	}
	return nil // Default: Success
}

func (m *Db) UpdateRoles(userId string, roles []db.Role) error {
	if m.UpdateRolesFunc != nil {
		return m.UpdateRolesFunc(userId, roles)
	}
	return nil // Default: Success
}

func (m *Db) ListUsersByRole(role string, limit, offset int) ([]*db.User, error) {
	if m.ListUsersByRoleFunc != nil {
		return m.ListUsersByRoleFunc(role, limit, offset)
	}
	return []*db.User{}, nil // Default: Empty list
}

// --- Implement DbToken ---
func (m *Db) GetTokenByValue(token string) (*db.ValidationToken, error) {
	if m.GetTokenByValueFunc != nil {
		return m.GetTokenByValueFunc(token)
	}
	return nil, nil // Default: Not found
}

func (m *Db) InsertToken(t db.ValidationToken) (*db.ValidationToken, error) {
	if m.InsertTokenFunc != nil {
		return m.InsertTokenFunc(t)
	}
	t.ID = 1
	return &t, nil // Default: Success with a mock ID
}

func (m *Db) ConsumeToken(token string, reason string) (bool, error) {
	if m.ConsumeTokenFunc != nil {
		return m.ConsumeTokenFunc(token, reason)
	}
	return true, nil // Default: This call did the flip
}

func (m *Db) InvalidateToken(token string) (bool, error) {
	if m.InvalidateTokenFunc != nil {
		return m.InvalidateTokenFunc(token)
	}
	return true, nil // Default: This call did the flip
}

func (m *Db) ConsumeTokenSetPassword(token, reason, userId, newPassword string) (bool, error) {
	if m.ConsumeTokenSetPasswordFunc != nil {
		return m.ConsumeTokenSetPasswordFunc(token, reason, userId, newPassword)
	}
	return true, nil // Default: Success
}

func (m *Db) CountTokensByIdentitySince(identity string, since time.Time) (int, error) {
	if m.CountTokensByIdentitySinceFunc != nil {
		return m.CountTokensByIdentitySinceFunc(identity, since)
	}
	return 0, nil // Default: No recent tokens
}

func (m *Db) CountTokensByUserSince(userId string, since time.Time) (int, error) {
	if m.CountTokensByUserSinceFunc != nil {
		return m.CountTokensByUserSinceFunc(userId, since)
	}
	return 0, nil // Default: No recent tokens
}

// --- Implement DbQueue ---
func (m *Db) InsertJob(job db.Job) error {
	if m.InsertJobFunc != nil {
		return m.InsertJobFunc(job)
	}
	return nil // Default: Success
}

func (m *Db) Claim(limit int) ([]*db.Job, error) {
	if m.ClaimFunc != nil {
		return m.ClaimFunc(limit)
	}
	return []*db.Job{}, nil // Default: No jobs claimed
}

func (m *Db) MarkCompleted(jobID int64) error {
	if m.MarkCompletedFunc != nil {
		return m.MarkCompletedFunc(jobID)
	}
	return nil // Default: Success
}

func (m *Db) MarkFailed(jobID int64, errMsg string) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(jobID, errMsg)
	}
	return nil // Default: Success
}

// Close implements db.DbApp.
func (m *Db) Close() {}
