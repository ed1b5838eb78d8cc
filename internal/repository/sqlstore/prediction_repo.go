package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/xela07ax/aml-helpdesk/internal/domain"
)

// columnRename - канонические ключи и заголовки исходного датасета, которые в таблице
// называются иначе. Остальные ключи пишутся в одноименные колонки, если те есть.
var columnRename = map[string]string{
	"Receiving Currency": "receiving_currency",
	"Payment Currency":   "payment_currency",
	"Payment Format":     "payment_format",
	"Timestamp":          "timestamp",
	"From Bank":          "from_bank_txn",
	"Account":            "account",
	"To Bank":            "to_bank_txn",
	"Account.1":          "account_1",
	"Amount Received":    "amount_received",
	"Amount":             "amount",
	"Is Laundering":      "is_laundering",
}

// InsertPrediction сохраняет нормализованную запись и ответ оракула в таблицу транзакций.
// Пишутся только колонки, которые реально есть в таблице. Возвращает false, если
// писать было нечего.
func (s *Store) InsertPrediction(ctx context.Context, record domain.FeatureRecord, result *domain.OracleResult) (bool, error) {
	inserted := false

	err := s.withConn(ctx, func(conn *sql.Conn) error {
		cols, err := s.columnSet(ctx, conn, s.table)
		if err != nil {
			return err
		}

		row := make(map[string]any)
		for key, value := range record {
			col := key
			if renamed, ok := columnRename[key]; ok {
				col = renamed
			}
			if _, ok := cols[col]; ok {
				row[col] = value
			}
		}

		if result != nil {
			if _, ok := cols["is_laundering"]; ok {
				row["is_laundering"] = string(result.Prediction)
			} else if _, ok := cols["prediction"]; ok {
				row["prediction"] = string(result.Prediction)
			}
			if _, ok := cols["confidence"]; ok {
				row["confidence"] = result.Confidence
			}
			if _, ok := cols["key_factors"]; ok {
				factors := result.KeyFactors
				if factors == nil {
					factors = []string{}
				}
				raw, _ := json.Marshal(factors)
				row["key_factors"] = string(raw)
			}
		}
		if _, ok := cols["timestamp"]; ok {
			row["timestamp"] = s.now().UTC()
		}

		if len(row) == 0 {
			return nil
		}

		names := make([]string, 0, len(row))
		for name := range row {
			names = append(names, name)
		}
		sort.Strings(names)

		quoted := make([]string, len(names))
		args := make([]any, len(names))
		for i, name := range names {
			quoted[i] = quoteIdent(name)
			args[i] = row[name]
		}

		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quoteIdent(s.table), strings.Join(quoted, ", "), placeholders(len(names)))
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("sqlstore: failed to insert prediction: %w", err)
		}
		inserted = true
		return nil
	})
	return inserted, err
}
