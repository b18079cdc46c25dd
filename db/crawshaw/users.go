package crawshaw

import (
	"encoding/json"
	"fmt"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"

	"github.com/caasmo/identity/db"
)

const userColumns = `id, username, email, phone, password, name, gender, roles, created, updated`

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
	conn := d.pool.Get(nil)
	defer d.pool.Put(conn)

	var user *db.User
	fn := func(stmt *sqlite.Stmt) error {
		var err error
		user, err = newUserFromStmt(stmt)
		return err
	}
	if err := sqlitex.Exec(conn,
		`SELECT `+userColumns+` FROM users WHERE `+where+` LIMIT 1`, fn, arg); err != nil {
		return nil, err
	}
	return user, nil
}

func (d *Db) GetUserById(id string) (*db.User, error) {
	return d.getUserWhere("id = ?", id)
}

func (d *Db) GetUserByUsername(username string) (*db.User, error) {
	return d.getUserWhere("username = ?", username)
}

func (d *Db) GetUserByEmail(email string) (*db.User, error) {
	return d.getUserWhere("email = ? AND email != ''", email)
}

func (d *Db) GetUserByPhone(phone string) (*db.User, error) {
	return d.getUserWhere("phone = ? AND phone != ''", phone)
}

func (d *Db) CreateUser(user db.User) (*db.User, error) {
	if user.ID == "" || user.Username == "" {
		return nil, db.ErrMissingFields
	}

	conn := d.pool.Get(nil)
	defer d.pool.Put(conn)

	rolesText, err := json.Marshal(user.Roles)
	if err != nil {
		return nil, fmt.Errorf("error encoding roles: %w", err)
	}

	var created *db.User
	fn := func(stmt *sqlite.Stmt) error {
		var err error
		created, err = newUserFromStmt(stmt)
		return err
	}
	err = sqlitex.Exec(conn,
		`INSERT INTO users (id, username, email, phone, password, name, gender, roles)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+userColumns,
		fn,
		user.ID, user.Username, user.Email, user.Phone,
		user.Password, user.Name, user.Gender, string(rolesText))
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.SQLITE_CONSTRAINT_UNIQUE {
			return nil, db.ErrConstraintUnique
		}
		return nil, fmt.Errorf("user insert failed: %w", err)
	}
	return created, nil
}

func (d *Db) UpdatePassword(userId string, newPassword string) error {
	conn := d.pool.Get(nil)
	defer d.pool.Put(conn)

	err := sqlitex.Exec(conn,
		`UPDATE users
		SET password = ?,
			updated = (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		WHERE id = ?`, nil, newPassword, userId)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if conn.Changes() == 0 {
		return db.ErrUserNotFound
	}
	return nil
}

func (d *Db) UpdateRoles(userId string, roles []db.Role) error {
	conn := d.pool.Get(nil)
	defer d.pool.Put(conn)

	rolesText, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("error encoding roles: %w", err)
	}

	err = sqlitex.Exec(conn,
		`UPDATE users
		SET roles = ?,
			updated = (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		WHERE id = ?`, nil, string(rolesText), userId)
	if err != nil {
		return fmt.Errorf("failed to update roles: %w", err)
	}
	if conn.Changes() == 0 {
		return db.ErrUserNotFound
	}
	return nil
}

func (d *Db) ListUsersByRole(role string, limit, offset int) ([]*db.User, error) {
	conn := d.pool.Get(nil)
	defer d.pool.Put(conn)

	var users []*db.User
	fn := func(stmt *sqlite.Stmt) error {
		user, err := newUserFromStmt(stmt)
		if err != nil {
			return err
		}
		users = append(users, user)
		return nil
	}
	err := sqlitex.Exec(conn,
		`SELECT users.id, users.username, users.email, users.phone, users.password, users.name, users.gender, users.roles, users.created, users.updated FROM users, json_each(users.roles)
		WHERE json_extract(json_each.value, '$.name') = ?
		ORDER BY users.created ASC LIMIT ? OFFSET ?`, fn, role, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	if users == nil {
		users = []*db.User{}
	}
	return users, nil
}
