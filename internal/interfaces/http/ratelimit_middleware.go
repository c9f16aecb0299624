package http

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/NESTREN/aio-warehouse-bot/internal/application/dto"
)

// actorLimiter un token bucket por actor.
type actorLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// RateLimit devuelve un middleware que limita a perMinute peticiones por actor.
// perMinute <= 0 desactiva el límite. Debe usarse DESPUÉS de AuthMiddleware.
func RateLimit(perMinute int) fiber.Handler {
	if perMinute <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	al := &actorLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
	return func(c *fiber.Ctx) error {
		if !al.get(GetActor(c)).Allow() {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.ErrorResponse{
				Code:    "RATE_LIMITED",
				Message: "demasiadas peticiones, intente más tarde",
			})
		}
		return c.Next()
	}
}

func (a *actorLimiter) get(actor string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.limiters[actor]
	if !ok {
		l = rate.NewLimiter(a.limit, a.burst)
		a.limiters[actor] = l
	}
	return l
}
