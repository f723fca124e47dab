package repository

import (
	"context"
	"database/sql/driver"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

// RunLocks guards check runs with Postgres session advisory locks. The lock is
// bound to the connection that took it, so each held key pins one connection
// until Unlock.
type RunLocks struct {
	db   *sqlx.DB
	mu   sync.Mutex
	held map[string]*sqlx.Conn
}

func New(db *sqlx.DB) *RunLocks {
	return &RunLocks{db: db, held: make(map[string]*sqlx.Conn)}
}

func (r *RunLocks) TryLock(ctx context.Context, key string) (bool, error) {
	r.mu.Lock()
	_, mine := r.held[key]
	r.mu.Unlock()
	if mine {
		return false, nil
	}

	conn, err := r.db.Connx(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock connection: %w", err)
	}
	var ok bool
	if err := conn.GetContext(ctx, &ok, `SELECT pg_try_advisory_lock(hashtext($1))`, key); err != nil {
		conn.Close()
		return false, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}
	if !ok {
		conn.Close()
		return false, nil
	}

	r.mu.Lock()
	r.held[key] = conn
	r.mu.Unlock()
	return true, nil
}

func (r *RunLocks) Unlock(ctx context.Context, key string) error {
	r.mu.Lock()
	conn, ok := r.held[key]
	delete(r.held, key)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	defer conn.Close()

	var released bool
	if err := conn.GetContext(ctx, &released, `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
		// The session still holds the lock; drop it instead of returning it to the pool.
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		return fmt.Errorf("pg_advisory_unlock: %w", err)
	}
	return nil
}
