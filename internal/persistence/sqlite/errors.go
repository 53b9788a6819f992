package sqlite

import (
	"fmt"

	"github.com/example/studysync/internal/persistence"
)

func errNotFound() error {
	return persistence.ErrNotFound
}

func errDuplicate(cause error) error {
	return fmt.Errorf("%w: %v", persistence.ErrDuplicate, cause)
}

func errForeignKey(cause error) error {
	return fmt.Errorf("%w: %v", persistence.ErrForeignKeyViolation, cause)
}

func errConstraint(cause error) error {
	return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, cause)
}
