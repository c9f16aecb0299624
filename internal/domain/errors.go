package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
// Cada categoría es un sentinel comparable con errors.Is; el detalle legible
// para el usuario viaja en *Error.Reason.
var (
	ErrNotFound             = errors.New("recurso no encontrado")
	ErrDuplicate            = errors.New("recurso duplicado")
	ErrValidation           = errors.New("entrada inválida")
	ErrConflict             = errors.New("conflicto con el estado actual")
	ErrInvalidOperation     = errors.New("operación no permitida")
	ErrTransientStorage     = errors.New("almacenamiento no disponible temporalmente")
	ErrConsistencyViolation = errors.New("violación de consistencia del ledger")
)

// Error es un fallo tipado: Kind es uno de los sentinels de arriba y Reason el
// mensaje que el front-end muestra tal cual.
type Error struct {
	Kind   error
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Reason
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Is permite errors.Is(err, domain.ErrValidation) y similares.
func (e *Error) Is(target error) bool { return e.Kind == target }

func (e *Error) Unwrap() error { return e.Err }

// Validation entrada mal formada; sin cambios de estado.
func Validation(reason string) error {
	return &Error{Kind: ErrValidation, Reason: reason}
}

// Validationf igual que Validation con formato.
func Validationf(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Reason: fmt.Sprintf(format, args...)}
}

// Conflict duplicado en una creación explícita o referencia que bloquea un borrado.
func Conflict(reason string) error {
	return &Error{Kind: ErrConflict, Reason: reason}
}

// InvalidOperation la operación dejaría el inventario en un estado inválido.
func InvalidOperation(reason string) error {
	return &Error{Kind: ErrInvalidOperation, Reason: reason}
}

// NotFound referencia a un ítem o bodega inexistente.
func NotFound(reason string) error {
	return &Error{Kind: ErrNotFound, Reason: reason}
}

// Transient timeout de bloqueo o almacenamiento caído; el llamador puede reintentar.
func Transient(op string, err error) error {
	return &Error{Kind: ErrTransientStorage, Reason: op, Err: err}
}

// ConsistencyViolation el historial no reconstruye la cantidad cacheada.
func ConsistencyViolation(reason string) error {
	return &Error{Kind: ErrConsistencyViolation, Reason: reason}
}

// Reason devuelve el mensaje para el usuario final.
func Reason(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Reason != "" && de.Err == nil {
		return de.Reason
	}
	return err.Error()
}

// IsRejection indica si err es un rechazo de negocio recuperable
// (no un fallo de infraestructura).
func IsRejection(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidOperation) ||
		errors.Is(err, ErrNotFound)
}
