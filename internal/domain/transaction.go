package domain

import (
	"encoding/json"
	"time"
)

// Status - производная метка строки ленты транзакций.
type Status string

const (
	StatusSuspicious  Status = "Suspicious"
	StatusUnderReview Status = "Under Review"
	StatusClean       Status = "Clean"
)

// TransactionRecord - строка ленты последних транзакций.
// Fields содержит произвольные колонки источника (БД или CSV), остальные поля вычисляются
// при каждом чтении и никогда не кэшируются.
type TransactionRecord struct {
	Fields     map[string]any
	SavedAt    *time.Time
	Prediction *string
	Confidence *float64
	KeyFactors []any
	Status     Status
}

// MarshalJSON разворачивает колонки источника в плоский объект; производные поля
// перекрывают одноименные колонки.
func (r TransactionRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+5)
	for k, v := range r.Fields {
		out[k] = v
	}

	keyFactors := r.KeyFactors
	if keyFactors == nil {
		keyFactors = []any{}
	}

	out["saved_at"] = r.SavedAt
	out["prediction"] = r.Prediction
	out["confidence"] = r.Confidence
	out["key_factors"] = keyFactors
	out["status"] = r.Status
	return json.Marshal(out)
}
