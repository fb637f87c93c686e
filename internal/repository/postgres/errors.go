package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/mautic-sync/internal/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	invalidTextRepr     = "22P02"
)

// mapError translates constraint violations into domain errors. A foreign
// key violation means the owning tenant is gone, and an id that is not a
// UUID cannot name any tenant.
func mapError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case uniqueViolation:
			return fmt.Errorf("%s: %w", op, domain.ErrConflict)
		case foreignKeyViolation, invalidTextRepr:
			return fmt.Errorf("%s: tenant %w", op, domain.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
