package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// InsertChunked inserts rows inside an open transaction in fixed-size chunks.
// Chunking is for store-side throughput only; atomicity comes from the
// surrounding transaction. The context is checked between chunks so a
// cancelled run rolls back instead of finishing the swap.
func InsertChunked(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]any, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = 500
	}

	var total int64
	for start := 0; start < len(rows); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return total, eris.Wrap(err, "db: insert cancelled")
		}

		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}

		n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows[start:end]))
		if err != nil {
			return total, eris.Wrapf(err, "db: chunked insert into %s", table)
		}
		total += n
	}
	return total, nil
}
