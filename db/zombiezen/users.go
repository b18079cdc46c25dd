package zombiezen

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/caasmo/identity/db"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const userColumns = `id, username, email, phone, password, name, gender, roles, created, updated`

// newUserFromStmt creates a User struct from a SQLite statement
func newUserFromStmt(stmt *sqlite.Stmt) (*db.User, error) {
	created, err := db.TimeParse(stmt.GetText("created"))
	if err != nil {
		return nil, fmt.Errorf("error parsing created time: %w", err)
	}

	updated, err := db.TimeParse(stmt.GetText("updated"))
	if err != nil {
		return nil, fmt.Errorf("error parsing updated time: %w", err)
	}

	var roles []db.Role
	if rolesText := stmt.GetText("roles"); rolesText != "" {
		if err := json.Unmarshal([]byte(rolesText), &roles); err != nil {
			return nil, fmt.Errorf("error parsing roles: %w", err)
		}
	}

	return &db.User{
		ID:       stmt.GetText("id"),
		Username: stmt.GetText("username"),
		Email:    stmt.GetText("email"),
		Phone:    stmt.GetText("phone"),
		Password: stmt.GetText("password"),
		Name:     stmt.GetText("name"),
		Gender:   stmt.GetText("gender"),
		Roles:    roles,
		Created:  created,
		Updated:  updated,
	}, nil
}

func (d *Db) getUserWhere(where string, arg string) (*db.User, error) {
	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return nil, err
	}
	defer d.pool.Put(conn)

	var user *db.User // remains nil if no rows found
	err = sqlitex.Execute(conn,
		`SELECT `+userColumns+` FROM users WHERE `+where+` LIMIT 1`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var err error
				user, err = newUserFromStmt(stmt)
				return err
			},
			Args: []interface{}{arg},
		})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserById retrieves a user by id.
// A nil user with nil error indicates no matching record was found.
func (d *Db) GetUserById(id string) (*db.User, error) {
	return d.getUserWhere("id = ?", id)
}

// GetUserByUsername retrieves a user by its globally unique username.
func (d *Db) GetUserByUsername(username string) (*db.User, error) {
	return d.getUserWhere("username = ?", username)
}

// GetUserByEmail retrieves a user by email address.
func (d *Db) GetUserByEmail(email string) (*db.User, error) {
	return d.getUserWhere("email = ? AND email != ''", email)
}

// GetUserByPhone retrieves a user by phone number.
func (d *Db) GetUserByPhone(phone string) (*db.User, error) {
	return d.getUserWhere("phone = ? AND phone != ''", phone)
}

// CreateUser inserts a new user and returns the persisted record.
// Returns db.ErrConstraintUnique when username, email or phone collide with
// an existing row.
func (d *Db) CreateUser(user db.User) (*db.User, error) {
	if user.ID == "" || user.Username == "" {
		return nil, db.ErrMissingFields
	}

	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return nil, err
	}
	defer d.pool.Put(conn)

	rolesText, err := json.Marshal(user.Roles)
	if err != nil {
		return nil, fmt.Errorf("error encoding roles: %w", err)
	}

	var created *db.User
	err = sqlitex.Execute(conn,
		`INSERT INTO users (id, username, email, phone, password, name, gender, roles)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+userColumns,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var err error
				created, err = newUserFromStmt(stmt)
				return err
			},
			Args: []interface{}{
				user.ID,
				user.Username,
				user.Email,
				user.Phone,
				user.Password,
				user.Name,
				user.Gender,
				string(rolesText),
			},
		})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintUnique {
			return nil, db.ErrConstraintUnique
		}
		return nil, fmt.Errorf("user insert failed: %w", err)
	}
	return created, nil
}

// UpdatePassword stores a new password hash for the user.
func (d *Db) UpdatePassword(userId string, newPassword string) error {
	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return err
	}
	defer d.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE users
		SET password = ?,
			updated = (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []interface{}{newPassword, userId},
		})
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if conn.Changes() == 0 {
		return db.ErrUserNotFound
	}
	return nil
}

// UpdateRoles replaces the role set of the user.
func (d *Db) UpdateRoles(userId string, roles []db.Role) error {
	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return err
	}
	defer d.pool.Put(conn)

	rolesText, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("error encoding roles: %w", err)
	}

	err = sqlitex.Execute(conn,
		`UPDATE users
		SET roles = ?,
			updated = (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []interface{}{string(rolesText), userId},
		})
	if err != nil {
		return fmt.Errorf("failed to update roles: %w", err)
	}
	if conn.Changes() == 0 {
		return db.ErrUserNotFound
	}
	return nil
}

// ListUsersByRole returns users holding the named role, paginated, ordered
// by creation time.
func (d *Db) ListUsersByRole(role string, limit, offset int) ([]*db.User, error) {
	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return nil, err
	}
	defer d.pool.Put(conn)

	var users []*db.User
	err = sqlitex.Execute(conn,
		`SELECT users.id, users.username, users.email, users.phone, users.password, users.name, users.gender, users.roles, users.created, users.updated FROM users, json_each(users.roles)
		WHERE json_extract(json_each.value, '$.name') = ?
		ORDER BY users.created ASC LIMIT ? OFFSET ?`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				user, err := newUserFromStmt(stmt)
				if err != nil {
					return err
				}
				users = append(users, user)
				return nil
			},
			Args: []interface{}{role, limit, offset},
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	if users == nil {
		users = []*db.User{}
	}
	return users, nil
}
