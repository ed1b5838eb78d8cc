package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// LatestRows отдает последние limit строк, от новых к старым.
// Колонка сортировки ищется по списку конвенций: timestamp, затем Timestamp.
func (s *Store) LatestRows(ctx context.Context, limit int) ([]map[string]any, error) {
	var out []map[string]any

	err := s.withConn(ctx, func(conn *sql.Conn) error {
		cols, err := s.columnSet(ctx, conn, s.table)
		if err != nil {
			return err
		}

		lastErr := fmt.Errorf("sqlstore: table %s has no ordering column (%v)", s.table, s.orderColumns)
		for _, col := range s.orderColumns {
			if _, ok := cols[col]; !ok {
				continue
			}
			query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s DESC LIMIT $1", quoteIdent(s.table), quoteIdent(col))
			rows, err := queryMaps(ctx, conn, query, limit)
			if err != nil {
				lastErr = fmt.Errorf("sqlstore: failed to query latest rows by %s: %w", col, err)
				continue
			}
			out = rows
			return nil
		}
		return lastErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Sample - первые limit строк таблицы как есть (отладка схемы).
func (s *Store) Sample(ctx context.Context, limit int) ([]map[string]any, error) {
	var out []map[string]any
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := queryMaps(ctx, conn, fmt.Sprintf("SELECT * FROM %s LIMIT $1", quoteIdent(s.table)), limit)
		if err != nil {
			return fmt.Errorf("sqlstore: failed to sample %s: %w", s.table, err)
		}
		out = rows
		return nil
	})
	return out, err
}
