package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xela07ax/aml-helpdesk/internal/domain"
)

func (s *Store) CountTotal(ctx context.Context) (int64, error) {
	var n int64
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(s.table))
		if err := conn.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return fmt.Errorf("sqlstore: failed to count rows: %w", err)
		}
		return nil
	})
	return n, err
}

// CountSuspicious считает строки с флагом отмывания под одной из трех конвенций.
func (s *Store) CountSuspicious(ctx context.Context) (int64, error) {
	var n int64
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		n, err = s.firstCount(ctx, conn, s.suspiciousCandidates())
		return err
	})
	return n, err
}

// CountHighRisk считает уникальных контрагентов с низким KYC-скором.
func (s *Store) CountHighRisk(ctx context.Context) (int64, error) {
	var n int64
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		n, err = s.firstCount(ctx, conn, s.highRiskCandidates())
		return err
	})
	return n, err
}

func (s *Store) suspiciousCandidates() []candidate {
	out := make([]candidate, 0, 3)
	for _, col := range []string{"is_laundering", "Is Laundering", "prediction"} {
		out = append(out, candidate{
			name:    col,
			columns: []string{col},
			query:   fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IN (1, '1')", quoteIdent(s.table), quoteIdent(col)),
		})
	}
	return out
}

func (s *Store) highRiskCandidates() []candidate {
	out := make([]candidate, 0, 2)
	for _, col := range []string{"account", "account_number"} {
		out = append(out, candidate{
			name:    col,
			columns: []string{col, "kyc_score"},
			query: fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s WHERE %s IS NOT NULL AND %s < $1",
				quoteIdent(col), quoteIdent(s.table), quoteIdent("kyc_score"), quoteIdent("kyc_score")),
			args: []any{s.highRiskKYC},
		})
	}
	return out
}

// EnsureSummaryTable создает таблицу сводки, если ее нет.
func (s *Store) EnsureSummaryTable(ctx context.Context) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			last_updated TIMESTAMP,
			total BIGINT NOT NULL DEFAULT 0,
			suspicious BIGINT NOT NULL DEFAULT 0,
			high_risk BIGINT NOT NULL DEFAULT 0
		)`, quoteIdent(s.summaryTable))
		if _, err := conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("sqlstore: failed to create %s: %w", s.summaryTable, err)
		}
		return nil
	})
}

// LoadSummary читает сохраненную сводку. Нет строки - (nil, nil).
func (s *Store) LoadSummary(ctx context.Context) (*domain.SummaryAggregate, error) {
	var agg *domain.SummaryAggregate
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		query := fmt.Sprintf("SELECT last_updated, total, suspicious, high_risk FROM %s WHERE id = $1",
			quoteIdent(s.summaryTable))

		var (
			updated any
			row     domain.SummaryAggregate
		)
		err := conn.QueryRowContext(ctx, query, summaryID).Scan(&updated, &row.Total, &row.Suspicious, &row.HighRisk)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("sqlstore: failed to load summary: %w", err)
		}
		if t, ok := domain.ParseTimestamp(updated); ok {
			row.LastUpdated = &t
		}
		agg = &row
		return nil
	})
	return agg, err
}

// SaveSummary делает upsert единственной строки сводки.
func (s *Store) SaveSummary(ctx context.Context, agg domain.SummaryAggregate) error {
	updated := s.now().UTC()
	if agg.LastUpdated != nil {
		updated = agg.LastUpdated.UTC()
	}

	return s.withConn(ctx, func(conn *sql.Conn) error {
		query := fmt.Sprintf(`INSERT INTO %s (id, last_updated, total, suspicious, high_risk)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				last_updated = EXCLUDED.last_updated,
				total = EXCLUDED.total,
				suspicious = EXCLUDED.suspicious,
				high_risk = EXCLUDED.high_risk`, quoteIdent(s.summaryTable))

		if _, err := conn.ExecContext(ctx, query, summaryID, updated, agg.Total, agg.Suspicious, agg.HighRisk); err != nil {
			return fmt.Errorf("sqlstore: failed to save summary: %w", err)
		}
		return nil
	})
}
