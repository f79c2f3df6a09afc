package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MockTx - пустая реализация pgx.Tx для unit-тестов сервисного слоя:
// хранилища в этих тестах тоже моки, поэтому транзакция никуда не ходит.
type MockTx struct {
	CommitCalls   int
	RollbackCalls int
	CommitFunc    func(ctx context.Context) error
}

func (t *MockTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }

func (t *MockTx) Commit(ctx context.Context) error {
	t.CommitCalls++
	if t.CommitFunc != nil {
		return t.CommitFunc(ctx)
	}
	return nil
}

func (t *MockTx) Rollback(ctx context.Context) error {
	t.RollbackCalls++
	return nil
}

func (t *MockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (t *MockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }

func (t *MockTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *MockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (t *MockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (t *MockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (t *MockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }

func (t *MockTx) Conn() *pgx.Conn { return nil }
