package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Scope wraps a pooled connection and ensures it is released.
type Scope struct {
	Conn *pgxpool.Conn
}

// Close releases the connection to the pool.
func (s *Scope) Close() {
	if s.Conn == nil {
		return
	}
	s.Conn.Release()
}

// WithScope acquires a connection from the pool.
// The returned Scope MUST be closed with defer scope.Close().
func (db *DB) WithScope(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Scope{Conn: conn}, nil
}
