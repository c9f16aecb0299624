package inventory

import "context"

// ItemLocker serializa escrituras por ítem antes de abrir la transacción, para que
// los llamadores concurrentes hagan cola en vez de chocar en el almacenamiento.
// Lock respeta el deadline de ctx y devuelve domain.ErrTransientStorage al vencer.
type ItemLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
