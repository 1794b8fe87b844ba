package catalog

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/storefront/internal/platform/db"
)

var (
	ErrNotFound         = errors.New("catalog: not found")
	ErrDuplicate        = errors.New("catalog: duplicate")
	ErrInvalidReference = errors.New("catalog: invalid reference")
	ErrCategoryCycle    = errors.New("catalog: category parent cycle")
	ErrInvalidSlug      = errors.New("catalog: invalid slug")
	ErrInvalidPrice     = errors.New("catalog: negative price")
)

// translate maps PostgreSQL failures onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	if code, name, ok := db.Constraint(err); ok {
		switch code {
		case db.CodeUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicate, name)
		case db.CodeForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrInvalidReference, name)
		}
	}
	return err
}
