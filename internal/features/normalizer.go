package features

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/aml-helpdesk/internal/domain"
)

// Normalizer приводит произвольную форму аналитика к канонической записи признаков.
// Нормализация никогда не падает: в худшем случае инженерные признаки равны nil,
// а числовые поля равны 0.
type Normalizer struct {
	now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NewNormalizerAt фиксирует "текущее" время (для тестов и повторяемых пересчетов).
func NewNormalizerAt(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Normalize - обертка с текущим временем.
func Normalize(external map[string]any) domain.FeatureRecord {
	return NewNormalizer().Normalize(external)
}

func (n *Normalizer) Normalize(external map[string]any) domain.FeatureRecord {
	out := make(domain.FeatureRecord, len(external)+3)

	for extKey, value := range external {
		key, ok := ExternalToCanonical[extKey]
		if !ok {
			continue
		}
		if s, ok := value.(string); ok {
			value = strings.TrimSpace(s)
		}
		if key == KeyAccount || key == KeyBeneficiaryAccount {
			value = identifier(value)
		}
		out[key] = value
	}

	if v, ok := out[KeyIsPep]; ok {
		out[KeyIsPep] = pepFlag(v)
	}

	for _, key := range NumericKeys {
		if v, ok := out[key]; ok {
			out[key] = toNumber(v)
		}
	}

	n.engineer(out)
	return out
}

// engineer считает производные признаки. Каждый признак независим от остальных.
func (n *Normalizer) engineer(rec domain.FeatureRecord) {
	now := n.now().UTC()

	rec[KeyAge] = nil
	if dob, ok := parseDate(rec[KeyDateOfBirth]); ok {
		age := now.Year() - dob.Year()
		if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
			age--
		}
		rec[KeyAge] = age
	}

	rec[KeyTenureMonths] = nil
	if since, ok := parseDate(rec[KeyCustomerSince]); ok {
		rec[KeyTenureMonths] = (now.Year()-since.Year())*12 + int(now.Month()) - int(since.Month())
	}

	rec[KeyAmountToIncomeRatio] = nil
	amount, okAmount := rec.Float(KeyAmount)
	income, okIncome := rec.Float(KeyMonthlyIncome)
	if okAmount && okIncome && income > 0 {
		rec[KeyAmountToIncomeRatio] = amount / income
	}
}

// identifier - номер счета всегда непустой тип string (пустое значение -> "").
func identifier(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if !t {
			return ""
		}
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func pepFlag(v any) int {
	s, ok := v.(string)
	if !ok {
		if truthy(v) {
			return 1
		}
		return 0
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1", "y":
		return 1
	case "no", "false", "0", "n":
		return 0
	}
	return leadingInt(s)
}

// leadingInt разбирает целое в начале строки по основанию 10 ("12abc" -> 12), иначе 0.
func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for i, r := range s {
		if (r == '-' || r == '+') && i == 0 {
			continue
		}
		if r < '0' || r > '9' {
			break
		}
		end = i + 1
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case int:
		return t != 0
	case int64:
		return t != 0
	}
	return toNumber(v) != 0
}

// toNumber - политика "не ронять пайплайн": все, что не число, становится 0.
func toNumber(v any) float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case bool:
		if t {
			f = 1
		}
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
}

func parseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, s); err == nil {
				return d.UTC(), true
			}
		}
	}
	return time.Time{}, false
}
