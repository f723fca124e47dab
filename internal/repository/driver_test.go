package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
)

// lockBackend is an in-memory database/sql driver answering the two advisory
// lock queries with true. It counts physical sessions.
type lockBackend struct {
	mu         sync.Mutex
	opened     int
	closed     int
	failUnlock bool
}

func (b *lockBackend) Connect(context.Context) (driver.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened++
	return &lockSession{backend: b}, nil
}

func (b *lockBackend) Driver() driver.Driver { return lockDriver{b} }

func (b *lockBackend) counts() (opened, closed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened, b.closed
}

func (b *lockBackend) db() *sqlx.DB {
	return sqlx.NewDb(sql.OpenDB(b), "pgx")
}

type lockDriver struct{ b *lockBackend }

func (d lockDriver) Open(string) (driver.Conn, error) { return d.b.Connect(context.Background()) }

type lockSession struct{ backend *lockBackend }

func (s *lockSession) Prepare(query string) (driver.Stmt, error) {
	return &lockStmt{session: s, query: query}, nil
}

func (s *lockSession) Close() error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.closed++
	return nil
}

func (s *lockSession) Begin() (driver.Tx, error) { return nil, errors.New("transactions not supported") }

type lockStmt struct {
	session *lockSession
	query   string
}

func (st *lockStmt) Close() error  { return nil }
func (st *lockStmt) NumInput() int { return -1 }

func (st *lockStmt) Exec([]driver.Value) (driver.Result, error) {
	return nil, errors.New("exec not supported")
}

func (st *lockStmt) Query([]driver.Value) (driver.Rows, error) {
	b := st.session.backend
	b.mu.Lock()
	fail := b.failUnlock && strings.Contains(st.query, "pg_advisory_unlock")
	b.mu.Unlock()
	if fail {
		return nil, errors.New("canceling statement due to statement timeout")
	}
	return &boolRows{}, nil
}

type boolRows struct{ done bool }

func (r *boolRows) Columns() []string { return []string{"locked"} }
func (r *boolRows) Close() error      { return nil }

func (r *boolRows) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	r.done = true
	dest[0] = true
	return nil
}
