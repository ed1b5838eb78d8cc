package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "aml"
)

// Ключи (состояние)
const (
	RedisKeySummary            = RedisNamespace + ":stats:summary"
	RedisKeyLockSummaryRefresh = RedisNamespace + ":lock:stats:refresh"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanSummaryUpdated - инстанс, пересчитавший сводку, сообщает остальным сбросить L1.
	RedisChanSummaryUpdated = RedisNamespace + ":stats:updated"
)
