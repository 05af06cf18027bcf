package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

type txKey struct{}

// WithTx runs fn inside one transaction. Calls nested under an existing
// transaction reuse it.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := d.Bun.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, &tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Savepoint scopes fn so that its writes are rolled back on error while the
// enclosing transaction stays usable. Outside a transaction fn runs in its own.
func (d *DB) Savepoint(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	tx := txFromContext(ctx)
	if tx == nil {
		return d.WithTx(ctx, fn)
	}

	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	if err := fn(ctx); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("rollback to savepoint %s: %v (after %w)", name, rbErr, err)
		}
		_, _ = tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
		return err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint %s: %w", name, err)
	}
	return nil
}

func txFromContext(ctx context.Context) *bun.Tx {
	tx, _ := ctx.Value(txKey{}).(*bun.Tx)
	return tx
}

// idb returns the transaction carried by ctx, or the pool.
func (d *DB) idb(ctx context.Context) bun.IDB {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return d.Bun
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// violatedColumn reports whether a unique violation names the given column or index.
func violatedColumn(err error, column string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.Contains(pqErr.Constraint, column) || strings.Contains(pqErr.Detail, column)
	}
	return strings.Contains(err.Error(), column)
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
