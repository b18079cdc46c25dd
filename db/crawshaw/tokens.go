package crawshaw

import (
	"fmt"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"

	"github.com/caasmo/identity/db"
)

const tokenColumns = `id, token, user_id, identity, valid, expires, reason, created`

func newTokenFromStmt(stmt *sqlite.Stmt) (*db.ValidationToken, error) {
	expires, err := db.TimeParse(stmt.GetText("expires"))
	if err != nil {
		return nil, fmt.Errorf("error parsing expires time: %w", err)
	}

	created, err := db.TimeParse(stmt.GetText("created"))
	if err != nil {
		return nil, fmt.Errorf("error parsing created time: %w", err)
	}

	return &db.ValidationToken{
		ID:       stmt.GetInt64("id"),
		Token:    stmt.GetText("token"),
		UserID:   stmt.GetText("user_id"),
		Identity: stmt.GetText("identity"),
		Valid:    stmt.GetInt64("valid") != 0,
		Expires:  expires,
		Reason:   stmt.GetText("reason"),
		Created:  created,
	}, nil
}

func (d *Db) GetTokenByValue(token string) (*db.ValidationToken, error) {
	conn := d.pool.Get(nil)
	defer d.pool.Put(conn)

	var tok *db.ValidationToken
	fn := func(stmt *sqlite.Stmt) error {
		var err error
		tok, err = newTokenFromStmt(stmt)
		return err
	}
	if err := sqlitex.Exec(conn,
		`SELECT `+tokenColumns+` FROM validation_tokens WHERE token = ? LIMIT 1`, fn, token); err != nil {
		return nil, err
	}
	return tok, nil
}

func (d *Db) InsertToken(t db.ValidationToken) (*db.ValidationToken, error) {
	if t.Token == "" || t.Expires.IsZero() {
		return nil, db.ErrMissingFields
	}

	conn := d.pool.Get(nil)
	defer d.pool.Put(conn)

	var created *db.ValidationToken
	fn := func(stmt *sqlite.Stmt) error {
		var err error
		created, err = newTokenFromStmt(stmt)
		return err
	}
	err := sqlitex.Exec(conn,
		`INSERT INTO validation_tokens (token, user_id, identity, valid, expires, reason)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+tokenColumns,
		fn,
		t.Token, t.UserID, t.Identity, t.Valid,
		t.Expires.UTC().Format(db.TimeFormat), t.Reason)
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.SQLITE_CONSTRAINT_UNIQUE {
			return nil, db.ErrConstraintUnique
		}
		return nil, fmt.Errorf("token insert failed: %w", err)
	}
	return created, nil
}

func (d *Db) ConsumeToken(token string, reason string) (bool, error) {
	conn := d.pool.Get(nil)
	defer d.pool.Put(conn)

	err := sqlitex.Exec(conn,
		`UPDATE validation_tokens SET valid = 0, reason = ? WHERE token = ? AND valid = 1`,
		nil, reason, token)
	if err != nil {
		return false, fmt.Errorf("failed to consume token: %w", err)
	}
	return conn.Changes() > 0, nil
}

func (d *Db) InvalidateToken(token string) (bool, error) {
	conn := d.pool.Get(nil)
	defer d.pool.Put(conn)

	err := sqlitex.Exec(conn,
		`UPDATE validation_tokens SET valid = 0 WHERE token = ? AND valid = 1`,
		nil, token)
	if err != nil {
		return false, fmt.Errorf("failed to invalidate token: %w", err)
	}
	return conn.Changes() > 0, nil
}

func (d *Db) ConsumeTokenSetPassword(token, reason, userId, newPassword string) (flipped bool, err error) {
	conn := d.pool.Get(nil)
	defer d.pool.Put(conn)

	release := sqlitex.Save(conn)
	defer func() {
		release(&err)
	}()

	err = sqlitex.Exec(conn,
		`UPDATE validation_tokens SET valid = 0, reason = ? WHERE token = ? AND valid = 1`,
		nil, reason, token)
	if err != nil {
		return false, fmt.Errorf("failed to consume token: %w", err)
	}
	if conn.Changes() == 0 {
		return false, nil
	}

	err = sqlitex.Exec(conn,
		`UPDATE users
		SET password = ?,
			updated = (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		WHERE id = ?`, nil, newPassword, userId)
	if err != nil {
		return false, fmt.Errorf("failed to set password: %w", err)
	}
	if conn.Changes() == 0 {
		err = db.ErrUserNotFound
		return false, err
	}
	return true, nil
}

func (d *Db) countTokensWhere(where string, arg string, since time.Time) (int, error) {
	conn := d.pool.Get(nil)
	defer d.pool.Put(conn)

	var count int
	fn := func(stmt *sqlite.Stmt) error {
		count = int(stmt.GetInt64("n"))
		return nil
	}
	err := sqlitex.Exec(conn,
		`SELECT COUNT(*) AS n FROM validation_tokens WHERE `+where+` AND created >= ?`,
		fn, arg, since.UTC().Format(db.TimeFormat))
	if err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}
	return count, nil
}

func (d *Db) CountTokensByIdentitySince(identity string, since time.Time) (int, error) {
	return d.countTokensWhere("identity = ? AND identity != ''", identity, since)
}

func (d *Db) CountTokensByUserSince(userId string, since time.Time) (int, error) {
	return d.countTokensWhere("user_id = ? AND user_id != ''", userId, since)
}
