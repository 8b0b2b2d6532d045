package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "approvalbot"
)

const (
	// RedisKeyApprovalIndex — sorted set всех заявок, score = created_at (unix)
	RedisKeyApprovalIndex = RedisNamespace + ":approvals:index"
)

// ApprovalKey — hash с полями заявки.
func ApprovalKey(id string) string {
	return fmt.Sprintf("%s:approvals:%s", RedisNamespace, id)
}

const (
	// RedisKeyBlockedUsers — set ID пользователей, которым временно нельзя
	// отправлять заявки и от которых нельзя их принимать.
	RedisKeyBlockedUsers = RedisNamespace + ":users:blocked_set"
	// RedisChannelBlocklist — pub/sub канал сигналов "U123:on" / "U123:off".
	RedisChannelBlocklist = RedisNamespace + ":users:blocklist"
)
