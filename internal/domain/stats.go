package domain

import "time"

// Источники, из которых пришел агрегат.
const (
	SourceMemory   = "memory"
	SourceMirror   = "mirror"
	SourceStore    = "store"
	SourceLive     = "live"
	SourceFallback = "fallback"
)

// SummaryAggregate - сводная статистика для дашборда.
type SummaryAggregate struct {
	Total       int64      `json:"total"`
	Suspicious  int64      `json:"suspicious"`
	HighRisk    int64      `json:"highRisk"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	Cached      bool       `json:"cached"`
	Source      string     `json:"source,omitempty"`
}

// FallbackSummary - нулевой агрегат, явно помеченный как заглушка.
func FallbackSummary() SummaryAggregate {
	return SummaryAggregate{Cached: false, Source: SourceFallback}
}

// IsFallback сообщает, что агрегат не был посчитан по живому хранилищу.
func (s SummaryAggregate) IsFallback() bool {
	return s.Source == SourceFallback
}
