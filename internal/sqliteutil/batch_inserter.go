// Package sqliteutil has helpers for bulk-loading sqlite databases.
package sqliteutil

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// MaxNumSqliteParameters is the maximum number of bound variables sqlite
// allows in a single statement.
const MaxNumSqliteParameters = 999

// Execable is the subset of sql.DB and sql.Tx needed to run inserts.
type Execable interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// BatchInserter accumulates rows and writes them in batches sized to stay
// under the sqlite bound-variable limit.
type BatchInserter struct {
	db                Execable
	numColumns        int
	maxBatchSize      int
	batch             []interface{}
	queryPrefix       string
	queryPlaceholders []string
}

// NewBatchInserter creates an inserter targeting the given table and
// column list.
func NewBatchInserter(db Execable, tableName string, columnNames ...string) *BatchInserter {
	numColumns := len(columnNames)
	maxBatchSize := (MaxNumSqliteParameters / numColumns) * numColumns

	placeholders := make([]string, numColumns)
	quotedColumnNames := make([]string, numColumns)
	for i, columnName := range columnNames {
		placeholders[i] = "?"
		quotedColumnNames[i] = fmt.Sprintf("%q", columnName)
	}
	rowPlaceholder := fmt.Sprintf("(%s)", strings.Join(placeholders, ","))

	queryPlaceholders := make([]string, maxBatchSize/numColumns)
	for i := range queryPlaceholders {
		queryPlaceholders[i] = rowPlaceholder
	}

	return &BatchInserter{
		db:                db,
		numColumns:        numColumns,
		maxBatchSize:      maxBatchSize,
		batch:             make([]interface{}, 0, maxBatchSize),
		queryPrefix:       fmt.Sprintf("INSERT INTO %q (%s) VALUES ", tableName, strings.Join(quotedColumnNames, ", ")),
		queryPlaceholders: queryPlaceholders,
	}
}

// Insert enqueues one row. The row is written once a full batch has
// accumulated or Flush is called.
func (bi *BatchInserter) Insert(ctx context.Context, values ...interface{}) error {
	if len(values) != bi.numColumns {
		return fmt.Errorf("expected %d values, got %d", bi.numColumns, len(values))
	}

	bi.batch = append(bi.batch, values...)

	if len(bi.batch) >= bi.maxBatchSize {
		return bi.flush(ctx, bi.maxBatchSize)
	}

	return nil
}

// Flush writes any buffered rows. Must be called once after the final
// Insert.
func (bi *BatchInserter) Flush(ctx context.Context) error {
	return bi.flush(ctx, len(bi.batch))
}

func (bi *BatchInserter) flush(ctx context.Context, n int) error {
	if n == 0 {
		return nil
	}

	batch := bi.batch[:n]
	query := bi.queryPrefix + strings.Join(bi.queryPlaceholders[:n/bi.numColumns], ",")

	if _, err := bi.db.ExecContext(ctx, query, batch...); err != nil {
		return err
	}

	bi.batch = append(bi.batch[:0], bi.batch[n:]...)
	return nil
}
