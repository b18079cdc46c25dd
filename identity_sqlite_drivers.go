package identity

// Helper functions to create SQLite connection pools with the two supported
// drivers. If your application accesses the database alongside this module,
// use a single shared pool to avoid SQLITE_BUSY errors: create the pool
// here and pass it to both sides (db/zombiezen.NewWithPool or
// db/crawshaw.NewWithPool on this side).

import (
	"fmt"
	"runtime"

	crawshawPool "crawshaw.io/sqlite/sqlitex"
	zombiezenPool "zombiezen.com/go/sqlite/sqlitex"
)

// NewCrawshawPool creates a crawshaw SQLite connection pool with reasonable
// defaults.
func NewCrawshawPool(dbPath string) (*crawshawPool.Pool, error) {
	poolSize := runtime.NumCPU()
	initString := fmt.Sprintf("file:%s", dbPath)

	pool, err := crawshawPool.Open(initString, 0, poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create default crawshaw pool at %s: %w", dbPath, err)
	}
	return pool, nil
}

// NewZombiezenPool creates a zombiezen SQLite connection pool with
// reasonable defaults.
func NewZombiezenPool(dbPath string) (*zombiezenPool.Pool, error) {
	poolSize := runtime.NumCPU()
	initString := fmt.Sprintf("file:%s", dbPath)

	pool, err := zombiezenPool.NewPool(initString, zombiezenPool.PoolOptions{
		PoolSize: poolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create default zombiezen pool at %s: %w", dbPath, err)
	}
	return pool, nil
}
