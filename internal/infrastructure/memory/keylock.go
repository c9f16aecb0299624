package memory

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/NESTREN/aio-warehouse-bot/internal/domain"
)

// KeyLock mutex por clave dentro del proceso. Claves distintas nunca compiten.
// La espera respeta el deadline del ctx; al vencer devuelve un error transitorio.
type KeyLock struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

type keyEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// NewKeyLock construye el lock por clave.
func NewKeyLock() *KeyLock {
	return &KeyLock{entries: make(map[string]*keyEntry)}
}

// Lock bloquea key y devuelve la función de liberación (idempotente).
func (l *KeyLock) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &keyEntry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.drop(key, e)
		return nil, domain.Transient("lock "+key, err)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.drop(key, e)
		})
	}, nil
}

func (l *KeyLock) drop(key string, e *keyEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// held cantidad de claves con lock tomado o en espera (tests).
func (l *KeyLock) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
