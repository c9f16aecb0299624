// Package inventory contiene el Ledger: único escritor de Item.Quantity y dueño
// del historial append-only de movimientos.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NESTREN/aio-warehouse-bot/internal/application/catalog"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/entity"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/repository"
	"github.com/NESTREN/aio-warehouse-bot/pkg/logger"
)

const defaultLockTimeout = 5 * time.Second

// Ledger aplica cambios de cantidad de forma atómica: actualización de la cantidad
// y alta del movimiento van en la misma transacción, con la fila del ítem bloqueada.
type Ledger struct {
	tx          repository.TxRunner
	locker      ItemLocker
	lockTimeout time.Duration
	log         *logger.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// Option configura el Ledger.
type Option func(*Ledger)

// WithLocker añade un bloqueo por ítem previo a la transacción (KeyLock o Redis).
func WithLocker(l ItemLocker) Option {
	return func(led *Ledger) { led.locker = l }
}

// WithLockTimeout espera máxima por el bloqueo del ítem.
func WithLockTimeout(d time.Duration) Option {
	return func(led *Ledger) {
		if d > 0 {
			led.lockTimeout = d
		}
	}
}

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(led *Ledger) { led.now = now }
}

// NewLedger construye el Ledger. log puede ser nil.
func NewLedger(tx repository.TxRunner, log *logger.Logger, opts ...Option) *Ledger {
	if log == nil {
		log = logger.Nop()
	}
	l := &Ledger{
		tx:          tx,
		lockTimeout: defaultLockTimeout,
		log:         log.Component("ledger"),
		tracer:      otel.Tracer("aio-warehouse-bot/ledger"),
		now:         time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// ApplyDelta suma delta a la cantidad actual. Rechaza con InvalidOperation si el
// resultado fuese negativo; en ese caso ni el ítem ni el historial cambian.
func (l *Ledger) ApplyDelta(ctx context.Context, ref string, delta int64, actor, reason string) (int64, error) {
	if delta == 0 {
		return 0, domain.Validation("delta must not be zero")
	}
	return l.mutate(ctx, "ledger.apply_delta", ref, actor, reason, func(cur int64) (string, int64, error) {
		next := cur + delta
		if next < 0 {
			return "", 0, domain.InvalidOperation(fmt.Sprintf("insufficient stock: available %d, requested %d", cur, -delta))
		}
		return entity.MovementKindDelta, next, nil
	})
}

// SetQuantity sobrescribe la cantidad; el movimiento registra value-anterior como delta.
func (l *Ledger) SetQuantity(ctx context.Context, ref string, value int64, actor, reason string) (int64, error) {
	if value < 0 {
		return 0, domain.Validation("quantity must be a non-negative integer")
	}
	return l.mutate(ctx, "ledger.set_quantity", ref, actor, reason, func(int64) (string, int64, error) {
		return entity.MovementKindSet, value, nil
	})
}

type computeFn func(current int64) (kind string, next int64, err error)

func (l *Ledger) mutate(ctx context.Context, op, ref, actor, reason string, compute computeFn) (int64, error) {
	ctx, span := l.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("item.ref", ref),
		attribute.String("actor", actor),
	))
	defer span.End()

	qty, mov, err := l.write(ctx, ref, actor, reason, compute)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.Reason(err))
		if domain.IsRejection(err) {
			l.log.Warn().Str("op", op).Str("item", ref).Str("actor", actor).Str("reason", domain.Reason(err)).Msg("operación rechazada")
		} else {
			l.log.Error().Err(err).Str("op", op).Str("item", ref).Msg("fallo de almacenamiento")
		}
		return 0, err
	}
	span.SetAttributes(
		attribute.Int64("movement.seq", mov.Seq),
		attribute.Int64("movement.delta", mov.Delta),
		attribute.Int64("item.quantity", qty),
	)
	l.log.Debug().
		Str("op", op).
		Str("item", mov.ItemCode).
		Int64("delta", mov.Delta).
		Int64("quantity", qty).
		Int64("seq", mov.Seq).
		Str("actor", actor).
		Msg("movimiento registrado")
	return qty, nil
}

func (l *Ledger) write(ctx context.Context, ref, actor, reason string, compute computeFn) (int64, *entity.StockMovement, error) {
	if actor == "" {
		return 0, nil, domain.Validation("actor required")
	}
	key, err := l.codeKey(ctx, ref)
	if err != nil {
		return 0, nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, l.lockTimeout)
	defer cancel()
	if l.locker != nil {
		unlock, err := l.locker.Lock(lockCtx, "item:"+key)
		if err != nil {
			if !errors.Is(err, domain.ErrTransientStorage) {
				err = domain.Transient("lock item "+key, err)
			}
			return 0, nil, err
		}
		defer unlock()
	}

	var (
		qty int64
		mov *entity.StockMovement
	)
	err = l.tx.Run(ctx, func(r repository.Repos) error {
		item, err := r.Items.GetByCodeForUpdate(lockCtx, key)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.NotFound("item not found: " + ref)
		}
		kind, next, err := compute(item.Quantity)
		if err != nil {
			return err
		}
		at, err := l.timestamp(ctx, r, item.ID)
		if err != nil {
			return err
		}
		if err := r.Items.UpdateQuantity(ctx, item.ID, next, at); err != nil {
			return err
		}
		m := &entity.StockMovement{
			ID:           uuid.New().String(),
			ItemID:       item.ID,
			ItemCode:     item.Code,
			Kind:         kind,
			Delta:        next - item.Quantity,
			ResultingQty: next,
			Actor:        actor,
			Reason:       reason,
			CreatedAt:    at,
		}
		if err := r.Movements.Append(ctx, m); err != nil {
			return err
		}
		qty, mov = next, m
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return qty, mov, nil
}

// timestamp nunca retrocede respecto al último movimiento del ítem, de modo que
// el cursor (timestamp, seq) del historial es estable.
func (l *Ledger) timestamp(ctx context.Context, r repository.Repos, itemID string) (time.Time, error) {
	at := l.now().UTC().Truncate(time.Microsecond)
	last, err := r.Movements.Last(ctx, itemID)
	if err != nil {
		return time.Time{}, err
	}
	if last != nil && at.Before(last.CreatedAt) {
		at = last.CreatedAt
	}
	return at, nil
}

// codeKey resuelve la referencia (código o ID) a la clave que se bloquea.
func (l *Ledger) codeKey(ctx context.Context, ref string) (string, error) {
	var key string
	err := l.tx.View(ctx, func(r repository.Repos) error {
		item, err := catalog.FindItem(ctx, r.Items, ref)
		if err != nil {
			return err
		}
		key = item.CodeKey
		return nil
	})
	return key, err
}

// History recorre el historial del ítem del más nuevo al más antiguo, como
// máximo limit filas (0 = sin límite). before pagina con el cursor del último
// movimiento visto; las escrituras concurrentes nunca aparecen detrás de un cursor emitido.
func (l *Ledger) History(ctx context.Context, ref string, limit int, before *entity.HistoryCursor) iter.Seq2[*entity.StockMovement, error] {
	return func(yield func(*entity.StockMovement, error) bool) {
		var page []*entity.StockMovement
		err := l.tx.View(ctx, func(r repository.Repos) error {
			item, err := catalog.FindItem(ctx, r.Items, ref)
			if err != nil {
				return err
			}
			for m, err := range r.Movements.ListByItem(ctx, item.ID, before, limit) {
				if err != nil {
					return err
				}
				page = append(page, m)
			}
			return nil
		})
		if err != nil {
			yield(nil, err)
			return
		}
		for _, m := range page {
			if !yield(m, nil) {
				return
			}
		}
	}
}

// Recent últimos movimientos de todos los ítems.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*entity.StockMovement, error) {
	var list []*entity.StockMovement
	err := l.tx.View(ctx, func(r repository.Repos) error {
		var err error
		list, err = r.Movements.Recent(ctx, limit)
		return err
	})
	return list, err
}

// Verify reproduce el historial del ítem desde 0 y lo compara con la cantidad
// cacheada. Una discrepancia es ConsistencyViolation; nunca se corrige sola.
func (l *Ledger) Verify(ctx context.Context, ref string) (int64, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.verify", trace.WithAttributes(attribute.String("item.ref", ref)))
	defer span.End()

	var replayed int64
	err := l.tx.View(ctx, func(r repository.Repos) error {
		item, err := catalog.FindItem(ctx, r.Items, ref)
		if err != nil {
			return err
		}
		replayed, err = replay(ctx, r, item)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.Reason(err))
		if errors.Is(err, domain.ErrConsistencyViolation) {
			l.log.Error().Str("item", ref).Str("reason", domain.Reason(err)).Msg("historial inconsistente")
		}
		return 0, err
	}
	return replayed, nil
}

// VerifyAll verifica todos los ítems y acumula las violaciones encontradas.
func (l *Ledger) VerifyAll(ctx context.Context) (checked int, err error) {
	var violations []error
	err = l.tx.View(ctx, func(r repository.Repos) error {
		for item, err := range r.Items.Search(ctx, repository.ItemQuery{Sort: repository.SortByCode}) {
			if err != nil {
				return err
			}
			checked++
			if _, err := replay(ctx, r, item); err != nil {
				if !errors.Is(err, domain.ErrConsistencyViolation) {
					return err
				}
				l.log.Error().Str("item", item.Code).Str("reason", domain.Reason(err)).Msg("historial inconsistente")
				violations = append(violations, err)
			}
		}
		return nil
	})
	if err != nil {
		return checked, err
	}
	return checked, errors.Join(violations...)
}

func replay(ctx context.Context, r repository.Repos, item *entity.Item) (int64, error) {
	var qty int64
	for m, err := range r.Movements.Range(ctx, repository.MovementRange{ItemID: item.ID}) {
		if err != nil {
			return 0, err
		}
		qty += m.Delta
		if qty != m.ResultingQty || qty < 0 {
			return 0, domain.ConsistencyViolation(fmt.Sprintf(
				"item %s: movement %d replays to %d but recorded %d", item.Code, m.Seq, qty, m.ResultingQty))
		}
	}
	if qty != item.Quantity {
		return 0, domain.ConsistencyViolation(fmt.Sprintf(
			"item %s: history reconstructs %d but cached quantity is %d", item.Code, qty, item.Quantity))
	}
	return qty, nil
}
