package interfaces

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts a pgx pool or transaction so repositories run unchanged
// inside either.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxManager runs a function inside a database transaction. The chapter
// commit path (chapter insert + continuity save + cursor advance) must be
// one transaction so a crash can never leave a half-committed chapter.
type TxManager interface {
	WithTx(ctx context.Context, fn func(tx DBTX) error) error
}
