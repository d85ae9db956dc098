package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type contextKey string

const (
	// QuerierKey is the context key for the connection or transaction repositories run on.
	QuerierKey contextKey = "querier"
)

// Querier is the part of pgx used by repositories. Both *pgxpool.Conn and
// pgx.Tx satisfy it, so repository code is unaware of whether it runs inside
// a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

// GetQuerier retrieves the scoped connection or transaction from context.
// Returns nil and false if not present.
func GetQuerier(ctx context.Context) (Querier, bool) {
	q, ok := ctx.Value(QuerierKey).(Querier)
	return q, ok && q != nil
}

// SetQuerier stores a connection or transaction in context.
func SetQuerier(ctx context.Context, q Querier) context.Context {
	return context.WithValue(ctx, QuerierKey, q)
}

// ScopeProvider creates connection-scoped contexts for work that outlives a
// request, such as the retention sweep.
type ScopeProvider struct {
	db *DB
}

// NewScopeProvider creates a ScopeProvider for the given database.
func NewScopeProvider(db *DB) *ScopeProvider {
	return &ScopeProvider{db: db}
}

// WithScope returns a context carrying a freshly acquired connection.
// The cleanup function must be called when the scope is no longer needed.
func (p *ScopeProvider) WithScope(ctx context.Context) (context.Context, func(), error) {
	scope, err := p.db.WithScope(ctx)
	if err != nil {
		return nil, nil, err
	}
	return SetQuerier(ctx, scope.Conn), func() { scope.Close() }, nil
}
