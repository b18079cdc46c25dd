package zombiezen

import (
	"context"
	"fmt"
	"runtime"

	"github.com/caasmo/identity/db"
	"zombiezen.com/go/sqlite/sqlitex"
)

type Db struct {
	pool     *sqlitex.Pool
	ownsPool bool
}

// Verify interface implementations
var _ db.DbAuth = (*Db)(nil)
var _ db.DbToken = (*Db)(nil)
var _ db.DbQueue = (*Db)(nil)
var _ db.DbApp = (*Db)(nil)

// New creates a new Db instance, including creating its own pool and
// applying the schema.
func New(path string) (*Db, error) {
	initString := fmt.Sprintf("file:%s", path)
	pool, err := sqlitex.NewPool(initString, sqlitex.PoolOptions{
		PoolSize: runtime.NumCPU(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite pool at %s: %w", path, err)
	}

	d := &Db{pool: pool, ownsPool: true}
	if err := d.migrate(); err != nil {
		pool.Close()
		return nil, err
	}
	return d, nil
}

// NewWithPool creates a new Db instance using an existing pool provided by
// the user. The lifecycle of the pool is managed externally; Close is a
// no-op for the pool in that case.
func NewWithPool(pool *sqlitex.Pool) (*Db, error) {
	if pool == nil {
		return nil, fmt.Errorf("provided pool cannot be nil")
	}
	d := &Db{pool: pool, ownsPool: false}
	if err := d.migrate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Db) migrate() error {
	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return fmt.Errorf("failed to get connection for migration: %w", err)
	}
	defer d.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, Schema, nil); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (d *Db) Close() {
	if d.ownsPool && d.pool != nil {
		if err := d.pool.Close(); err != nil {
			// nothing the caller can do at this point
			fmt.Printf("error closing sqlite pool: %v\n", err)
		}
	}
}
