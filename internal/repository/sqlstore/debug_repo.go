package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// Info - краткая справка о подключенной базе для отладочных ручек.
// Подсчеты, которые не удалось сделать, остаются nil.
type Info struct {
	Driver     string `json:"driver"`
	Database   string `json:"database"`
	Table      string `json:"table"`
	Total      int64  `json:"total"`
	Suspicious *int64 `json:"suspicious"`
	HighRisk   *int64 `json:"highRisk"`
}

// Health - простейший SELECT 1.
func (s *Store) Health(ctx context.Context) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		var one int
		if err := conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			return fmt.Errorf("sqlstore: health check failed: %w", err)
		}
		return nil
	})
}

func (s *Store) Info(ctx context.Context) (*Info, error) {
	info := &Info{Driver: s.driver, Table: s.table}

	err := s.withConn(ctx, func(conn *sql.Conn) error {
		query := "SELECT current_database()"
		if s.driver == DriverSQLite {
			query = "SELECT file FROM pragma_database_list WHERE name = 'main'"
		}
		if err := conn.QueryRowContext(ctx, query).Scan(&info.Database); err != nil {
			return fmt.Errorf("sqlstore: failed to read database name: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if info.Total, err = s.CountTotal(ctx); err != nil {
		return nil, err
	}
	if n, err := s.CountSuspicious(ctx); err == nil {
		info.Suspicious = &n
	}
	if n, err := s.CountHighRisk(ctx); err == nil {
		info.HighRisk = &n
	}
	return info, nil
}
