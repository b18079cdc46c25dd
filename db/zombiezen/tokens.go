package zombiezen

import (
	"context"
	"fmt"
	"time"

	"github.com/caasmo/identity/db"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const tokenColumns = `id, token, user_id, identity, valid, expires, reason, created`

// newTokenFromStmt creates a ValidationToken struct from a SQLite statement
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

// GetTokenByValue retrieves a validation token by its token value.
// A nil token with nil error indicates no matching record was found.
func (d *Db) GetTokenByValue(token string) (*db.ValidationToken, error) {
	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return nil, err
	}
	defer d.pool.Put(conn)

	var tok *db.ValidationToken
	err = sqlitex.Execute(conn,
		`SELECT `+tokenColumns+` FROM validation_tokens WHERE token = ? LIMIT 1`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var err error
				tok, err = newTokenFromStmt(stmt)
				return err
			},
			Args: []interface{}{token},
		})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// InsertToken persists a new validation token and returns the stored record.
func (d *Db) InsertToken(t db.ValidationToken) (*db.ValidationToken, error) {
	if t.Token == "" || t.Expires.IsZero() {
		return nil, db.ErrMissingFields
	}

	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return nil, err
	}
	defer d.pool.Put(conn)

	var created *db.ValidationToken
	err = sqlitex.Execute(conn,
		`INSERT INTO validation_tokens (token, user_id, identity, valid, expires, reason)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+tokenColumns,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var err error
				created, err = newTokenFromStmt(stmt)
				return err
			},
			Args: []interface{}{
				t.Token,
				t.UserID,
				t.Identity,
				t.Valid,
				t.Expires.UTC().Format(db.TimeFormat),
				t.Reason,
			},
		})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintUnique {
			return nil, db.ErrConstraintUnique
		}
		return nil, fmt.Errorf("token insert failed: %w", err)
	}
	return created, nil
}

// ConsumeToken flips the valid flag false and overwrites the reason with the
// terminal annotation. The WHERE valid = 1 condition makes the flip atomic
// with respect to concurrent expiry or consumption: only one caller sees
// flipped = true.
func (d *Db) ConsumeToken(token string, reason string) (bool, error) {
	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return false, err
	}
	defer d.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE validation_tokens SET valid = 0, reason = ? WHERE token = ? AND valid = 1`,
		&sqlitex.ExecOptions{
			Args: []interface{}{reason, token},
		})
	if err != nil {
		return false, fmt.Errorf("failed to consume token: %w", err)
	}
	return conn.Changes() > 0, nil
}

// InvalidateToken flips the valid flag false if still true, keeping the
// original reason. Idempotent: a token already invalidated is left alone.
func (d *Db) InvalidateToken(token string) (bool, error) {
	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return false, err
	}
	defer d.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE validation_tokens SET valid = 0 WHERE token = ? AND valid = 1`,
		&sqlitex.ExecOptions{
			Args: []interface{}{token},
		})
	if err != nil {
		return false, fmt.Errorf("failed to invalidate token: %w", err)
	}
	return conn.Changes() > 0, nil
}

// ConsumeTokenSetPassword consumes the token and stores the new password
// hash in a single transaction. If the token was already invalid the
// transaction rolls back and the password is untouched.
func (d *Db) ConsumeTokenSetPassword(token, reason, userId, newPassword string) (flipped bool, err error) {
	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return false, err
	}
	defer d.pool.Put(conn)

	release := sqlitex.Save(conn)
	defer func() {
		release(&err)
	}()

	err = sqlitex.Execute(conn,
		`UPDATE validation_tokens SET valid = 0, reason = ? WHERE token = ? AND valid = 1`,
		&sqlitex.ExecOptions{
			Args: []interface{}{reason, token},
		})
	if err != nil {
		return false, fmt.Errorf("failed to consume token: %w", err)
	}
	if conn.Changes() == 0 {
		return false, nil
	}

	err = sqlitex.Execute(conn,
		`UPDATE users
		SET password = ?,
			updated = (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []interface{}{newPassword, userId},
		})
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
	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return 0, err
	}
	defer d.pool.Put(conn)

	var count int
	err = sqlitex.Execute(conn,
		`SELECT COUNT(*) AS n FROM validation_tokens WHERE `+where+` AND created >= ?`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = int(stmt.GetInt64("n"))
				return nil
			},
			Args: []interface{}{arg, since.UTC().Format(db.TimeFormat)},
		})
	if err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}
	return count, nil
}

// CountTokensByIdentitySince counts tokens issued for a bare contact
// identity at or after since. Used by the rate limiter.
func (d *Db) CountTokensByIdentitySince(identity string, since time.Time) (int, error) {
	return d.countTokensWhere("identity = ? AND identity != ''", identity, since)
}

// CountTokensByUserSince counts tokens issued for a bound user at or after
// since. Used by the rate limiter.
func (d *Db) CountTokensByUserSince(userId string, since time.Time) (int, error) {
	return d.countTokensWhere("user_id = ? AND user_id != ''", userId, since)
}
