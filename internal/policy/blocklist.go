package policy

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/slack-approval-bot/internal/infra"
)

const resubscribeDelay = time.Second

// Blocklist — L1 кэш заблокированных пользователей, синхронизируемый с Redis.
// Источник истины: set infra.RedisKeyBlockedUsers, изменения приходят сигналами
// в infra.RedisChannelBlocklist.
type Blocklist struct {
	mu      sync.RWMutex
	blocked map[string]struct{}

	rdb    redis.UniversalClient
	logger *zap.Logger
}

func NewBlocklist(rdb redis.UniversalClient, logger *zap.Logger) *Blocklist {
	return &Blocklist{
		blocked: make(map[string]struct{}),
		rdb:     rdb,
		logger:  logger.Named("blocklist"),
	}
}

// Init перечитывает set целиком и заменяет локальное состояние.
func (b *Blocklist) Init(ctx context.Context) error {
	ids, err := b.rdb.SMembers(ctx, infra.RedisKeyBlockedUsers).Result()
	if err != nil {
		return err
	}

	fresh := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		fresh[id] = struct{}{}
	}
	b.mu.Lock()
	b.blocked = fresh
	b.mu.Unlock()
	return nil
}

func (b *Blocklist) IsBlocked(userID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blocked[userID]
	return ok
}

func (b *Blocklist) set(userID string, blocked bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if blocked {
		b.blocked[userID] = struct{}{}
	} else {
		delete(b.blocked, userID)
	}
}

// Listen держит подписку до отмены ctx. После каждого (пере)подключения
// состояние перечитывается через Init: сигналы, пришедшие в разрыве, не теряются.
func (b *Blocklist) Listen(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		b.listenOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

func (b *Blocklist) listenOnce(ctx context.Context) {
	pubsub := b.rdb.Subscribe(ctx, infra.RedisChannelBlocklist)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() == nil {
			b.logger.Error("failed to subscribe", zap.String("chan", infra.RedisChannelBlocklist), zap.Error(err))
		}
		return
	}

	if err := b.Init(ctx); err != nil {
		b.logger.Error("sync failed on reconnect", zap.Error(err))
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn("blocklist channel closed, resubscribing")
				return
			}
			userID, blocked, ok := parseSignal(msg.Payload)
			if !ok {
				b.logger.Error("invalid blocklist signal", zap.String("payload", msg.Payload))
				continue
			}
			b.set(userID, blocked)
			b.logger.Info("blocklist updated", zap.String("user_id", userID), zap.Bool("blocked", blocked))
		}
	}
}

// parseSignal разбирает "U123:on". Допустимы on/true и off/false.
func parseSignal(payload string) (userID string, blocked bool, ok bool) {
	userID, state, found := strings.Cut(payload, ":")
	if !found || userID == "" {
		return "", false, false
	}
	switch strings.ToLower(state) {
	case "on", "true":
		return userID, true, true
	case "off", "false":
		return userID, false, true
	}
	return "", false, false
}
