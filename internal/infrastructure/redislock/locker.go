// Package redislock bloqueo por ítem compartido entre procesos sobre Redis
// (SET NX PX + liberación con compare-and-delete).
package redislock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/NESTREN/aio-warehouse-bot/internal/domain"
)

const (
	keyPrefix     = "aio-warehouse:lock:"
	defaultTTL    = 30 * time.Second
	retryInterval = 10 * time.Millisecond
)

// releaseScript borra la clave solo si sigue siendo nuestra.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Locker implementa inventory.ItemLocker.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// New construye el locker. ttl acota cuánto vive un lock si el proceso muere sin liberarlo.
func New(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Locker{client: client, ttl: ttl}
}

// Lock reintenta SET NX hasta obtener la clave o hasta que venza ctx.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	rkey := keyPrefix + key

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, rkey, token, l.ttl).Result()
		if err != nil {
			return nil, domain.Transient("lock "+key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, domain.Transient("lock "+key, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Liberar aunque el ctx del llamador ya haya vencido; si falla, el TTL expira la clave.
			rctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = releaseScript.Run(rctx, l.client, []string{rkey}, token).Err()
		})
	}, nil
}
