package gormrepo

import (
	"errors"

	"gorm.io/gorm"

	"aitown/internal/app/ports"
)

// translateError maps driver errors onto the ports sentinels.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ports.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ports.ErrConflict
	default:
		return err
	}
}
