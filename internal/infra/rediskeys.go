package infra

import "fmt"

const (
	// RedisNamespace — базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "ownc"
)

// Ключи кэша (read-through, TTL из конфига)
const (
	RedisKeyTransferPrefix = RedisNamespace + ":transfer:req:"
	RedisKeyDashboardStats = RedisNamespace + ":dashboard:stats"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanTransferResolved — трансляция терминальных переходов заявок.
	// Подписчики (другие инстансы консоли) сбрасывают свои кэши.
	RedisChanTransferResolved = RedisNamespace + ":transfers:resolved"
)

// GetTransferKey собирает ключ кэша одной заявки
func GetTransferKey(requestID string) string {
	return fmt.Sprintf("%s%s", RedisKeyTransferPrefix, requestID)
}
