package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// candidate - одна из конвенций именования для одной и той же логической колонки.
// Запрос пробуется, только если все нужные колонки реально есть в таблице.
type candidate struct {
	name    string
	columns []string
	query   string
	args    []any
}

var errNoCandidate = errors.New("sqlstore: no known column convention matches the table")

// firstCount пробует кандидатов по порядку; первый успешный COUNT побеждает.
func (s *Store) firstCount(ctx context.Context, conn *sql.Conn, candidates []candidate) (int64, error) {
	cols, err := s.columnSet(ctx, conn, s.table)
	if err != nil {
		return 0, err
	}

	lastErr := errNoCandidate
	for _, c := range candidates {
		if !hasAll(cols, c.columns) {
			continue
		}
		var n int64
		if err := conn.QueryRowContext(ctx, c.query, c.args...).Scan(&n); err != nil {
			s.logger.Debug("count candidate failed", zap.String("candidate", c.name), zap.Error(err))
			lastErr = fmt.Errorf("sqlstore: count by %s: %w", c.name, err)
			continue
		}
		return n, nil
	}
	return 0, lastErr
}

func hasAll(set map[string]struct{}, names []string) bool {
	for _, n := range names {
		if _, ok := set[n]; !ok {
			return false
		}
	}
	return true
}
