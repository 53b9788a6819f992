package application

import (
	"errors"

	"github.com/example/studysync/internal/persistence"
)

// mapStoreError translates persistence sentinels into application errors at
// the service boundary.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrConstraintViolation) || errors.Is(err, persistence.ErrForeignKeyViolation) {
		vErr := &ValidationError{}
		vErr.add("request", "related records are missing or invalid")
		return vErr
	}
	return err
}
