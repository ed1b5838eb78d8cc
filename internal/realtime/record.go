package realtime

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xela07ax/aml-helpdesk/internal/domain"
)

// Порог уверенности, с которого чистая по модели транзакция уходит на ручную проверку.
const ReviewConfidence = 0.85

// Конвенции именования колонок, по порядку предпочтения. Общие для БД и CSV.
var (
	savedAtColumns    = []string{"timestamp", "Timestamp", "saved_at", "transaction_date"}
	predictionColumns = []string{"is_laundering", "Is Laundering", "prediction", "pred"}
	confidenceColumns = []string{"confidence", "conf"}
	keyFactorColumns  = []string{"key_factors", "keyFactors"}
)

// NormalizeRow приводит строку любого источника к единой форме записи ленты.
// Ошибки разбора не выходят наружу: поле становится nil или пустым списком.
func NormalizeRow(row map[string]any) domain.TransactionRecord {
	rec := domain.TransactionRecord{Fields: row, KeyFactors: []any{}}

	if v, ok := firstPresent(row, savedAtColumns); ok {
		if t, ok := domain.ParseTimestamp(v); ok {
			rec.SavedAt = &t
		}
	}
	if v, ok := firstPresent(row, predictionColumns); ok {
		if s, ok := label(v); ok {
			rec.Prediction = &s
		}
	}
	if v, ok := firstPresent(row, confidenceColumns); ok {
		if f, ok := toFloat(v); ok {
			rec.Confidence = &f
		}
	}
	if v, ok := firstPresent(row, keyFactorColumns); ok {
		rec.KeyFactors = keyFactors(v)
	}

	rec.Status = DeriveStatus(rec.Prediction, rec.Confidence)
	return rec
}

// DeriveStatus - строгое упорядоченное правило: флаг отмывания важнее уверенности.
func DeriveStatus(prediction *string, confidence *float64) domain.Status {
	if prediction != nil && isPositive(*prediction) {
		return domain.StatusSuspicious
	}
	if confidence != nil && *confidence >= ReviewConfidence {
		return domain.StatusUnderReview
	}
	return domain.StatusClean
}

func isPositive(s string) bool {
	s = strings.TrimSpace(s)
	if s == "1" {
		return true
	}
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && f == 1
}

// firstPresent - первая колонка из списка с непустым значением.
func firstPresent(row map[string]any, names []string) (any, bool) {
	for _, name := range names {
		v, ok := row[name]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func label(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case []byte:
		return strings.TrimSpace(string(t)), true
	case bool:
		if t {
			return "1", true
		}
		return "0", true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int:
		return strconv.Itoa(t), true
	}
	return fmt.Sprint(v), true
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int64:
		f = float64(t)
	case int:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case []byte:
		return toFloat(string(t))
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// keyFactors принимает готовый список или JSON-текст; все остальное - пустой список.
func keyFactors(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []byte:
		return keyFactors(string(t))
	case string:
		var out []any
		if err := json.Unmarshal([]byte(t), &out); err != nil || out == nil {
			return []any{}
		}
		return out
	}
	return []any{}
}
