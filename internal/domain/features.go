package domain

// FeatureRecord - каноническая запись признаков, которую принимает оракул скоринга.
// Значения: string, float64, int или nil. После нормализации запись не изменяется.
type FeatureRecord map[string]any

// Float возвращает числовое значение признака, если оно есть.
func (r FeatureRecord) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
