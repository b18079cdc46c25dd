package crawshaw

import (
	"fmt"
	"runtime"

	"crawshaw.io/sqlite/sqlitex"

	"github.com/caasmo/identity/db"
	"github.com/caasmo/identity/db/zombiezen"
)

type Db struct {
	pool     *sqlitex.Pool
	ownsPool bool
}

// Verify interface implementation (non-allocating check)
var _ db.DbApp = (*Db)(nil)

// New creates a new Db instance, including creating its own pool and
// applying the schema.
func New(path string) (*Db, error) {
	poolSize := runtime.NumCPU()
	// Enable WAL mode and set a busy timeout for better concurrency handling.
	initString := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	p, err := sqlitex.Open(initString, 0, poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite pool at %s: %w", path, err)
	}

	d := &Db{pool: p, ownsPool: true}
	if err := d.migrate(); err != nil {
		p.Close()
		return nil, err
	}
	return d, nil
}

// NewWithPool creates a new Db instance using an existing pool.
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
	conn := d.pool.Get(nil)
	if conn == nil {
		return fmt.Errorf("failed to get connection for migration")
	}
	defer d.pool.Put(conn)

	// Both drivers share one schema.
	if err := sqlitex.ExecScript(conn, zombiezen.Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close releases resources used by Db. It only closes the pool if it owns it.
func (d *Db) Close() {
	if d.ownsPool && d.pool != nil {
		if err := d.pool.Close(); err != nil {
			fmt.Printf("error closing owned sqlite pool: %v\n", err)
		}
	}
}
