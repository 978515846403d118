package recon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/writerlane/agreements-backend/internal/goroutine"
	"github.com/writerlane/agreements-backend/internal/logger"
)

// FlagStore — состояние, переживающее жизнь сессии: pending-refresh флаг
// и кэш последнего известного lifetime spend. Очищается при logout.
type FlagStore interface {
	SetPendingRefresh(ctx context.Context, userID uuid.UUID) error
	// ConsumePendingRefresh атомарно читает и сбрасывает флаг: потребитель
	// ровно один, повторные чтения после потребления возвращают false.
	ConsumePendingRefresh(ctx context.Context, userID uuid.UUID) (bool, error)
	SetLastKnownLifetimeSpend(ctx context.Context, userID uuid.UUID, amount float64, currency string) error
	LastKnownLifetimeSpend(ctx context.Context, userID uuid.UUID) (float64, string, bool, error)
	ClearUser(ctx context.Context, userID uuid.UUID) error
}

const (
	pendingRefreshKeyPrefix = "recon:pending_refresh:"
	lifetimeSpendKeyPrefix  = "recon:lifetime_spend:"
	convergenceChannel      = "recon:payments"
)

// RedisFlagStore — реализация FlagStore поверх Redis.
type RedisFlagStore struct {
	client *redis.Client
}

// NewRedisFlagStore создаёт хранилище флагов.
func NewRedisFlagStore(client *redis.Client) *RedisFlagStore {
	return &RedisFlagStore{client: client}
}

// SetPendingRefresh выставляет флаг отложенного обновления.
func (s *RedisFlagStore) SetPendingRefresh(ctx context.Context, userID uuid.UUID) error {
	if err := s.client.Set(ctx, pendingRefreshKeyPrefix+userID.String(), "1", 0).Err(); err != nil {
		return fmt.Errorf("flag store: set pending refresh: %w", err)
	}
	return nil
}

// ConsumePendingRefresh читает и сбрасывает флаг одной командой.
func (s *RedisFlagStore) ConsumePendingRefresh(ctx context.Context, userID uuid.UUID) (bool, error) {
	val, err := s.client.GetDel(ctx, pendingRefreshKeyPrefix+userID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("flag store: consume pending refresh: %w", err)
	}
	return val != "", nil
}

// SetLastKnownLifetimeSpend кэширует агрегат для мгновенной отрисовки
// до первого пересчёта; пересчёт всегда замещает кэш.
func (s *RedisFlagStore) SetLastKnownLifetimeSpend(ctx context.Context, userID uuid.UUID, amount float64, currency string) error {
	val := strconv.FormatFloat(amount, 'f', 2, 64) + " " + currency
	if err := s.client.Set(ctx, lifetimeSpendKeyPrefix+userID.String(), val, 0).Err(); err != nil {
		return fmt.Errorf("flag store: set lifetime spend: %w", err)
	}
	return nil
}

// LastKnownLifetimeSpend возвращает кэшированный агрегат, если он есть.
func (s *RedisFlagStore) LastKnownLifetimeSpend(ctx context.Context, userID uuid.UUID) (float64, string, bool, error) {
	val, err := s.client.Get(ctx, lifetimeSpendKeyPrefix+userID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, fmt.Errorf("flag store: get lifetime spend: %w", err)
	}

	var amount float64
	var currency string
	if _, err := fmt.Sscanf(val, "%f %s", &amount, &currency); err != nil {
		return 0, "", false, nil
	}
	return amount, currency, true, nil
}

// ClearUser удаляет всё состояние пользователя (logout).
func (s *RedisFlagStore) ClearUser(ctx context.Context, userID uuid.UUID) error {
	keys := []string{
		pendingRefreshKeyPrefix + userID.String(),
		lifetimeSpendKeyPrefix + userID.String(),
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("flag store: clear user: %w", err)
	}
	return nil
}

// convergenceNotice — сообщение канала конвергенции между инстансами.
type convergenceNotice struct {
	Origin string    `json:"origin"`
	UserID uuid.UUID `json:"user_id"`
	Event  Event     `json:"event"`
}

// Broadcaster — канал конвергенции поверх Redis pub/sub: уведомления
// о завершённых платежах доходят до сессий на других инстансах сервера,
// не требуя от каждой из них собственной живой подписки на шлюз.
type Broadcaster struct {
	client *redis.Client
	// instanceID отличает свои сообщения от чужих: инстанс-источник уже
	// доставил событие своим клиентам напрямую.
	instanceID string
}

// NewBroadcaster создаёт канал конвергенции.
func NewBroadcaster(client *redis.Client) *Broadcaster {
	return &Broadcaster{client: client, instanceID: uuid.NewString()}
}

// Publish рассылает событие всем подписанным инстансам.
func (b *Broadcaster) Publish(ctx context.Context, userID uuid.UUID, ev Event) error {
	raw, err := json.Marshal(convergenceNotice{Origin: b.instanceID, UserID: userID, Event: ev})
	if err != nil {
		return fmt.Errorf("broadcaster: marshal: %w", err)
	}
	if err := b.client.Publish(ctx, convergenceChannel, raw).Err(); err != nil {
		return fmt.Errorf("broadcaster: publish: %w", err)
	}
	return nil
}

// Subscribe запускает приём сообщений канала; handler вызывается для
// каждого уведомления, remote=false для сообщений этого же инстанса.
// Останавливается по отмене контекста.
func (b *Broadcaster) Subscribe(ctx context.Context, handler func(userID uuid.UUID, ev Event, remote bool)) {
	sub := b.client.Subscribe(ctx, convergenceChannel)

	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		defer sub.Close()
		ch := sub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var notice convergenceNotice
				if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
					logger.Log.Warnf("broadcaster: битое сообщение канала: %v", err)
					continue
				}
				handler(notice.UserID, notice.Event, notice.Origin != b.instanceID)
			}
		}
	})
}
