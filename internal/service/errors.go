package service

import (
	"github.com/rs/zerolog/log"

	apperrors "github.com/intranet/auth-server-go/internal/errors"
)

// storageError logs the driver error and returns the generic caller-facing
// error. AppErrors produced inside transactions pass through unchanged.
func storageError(op string, err error) error {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr
	}
	log.Error().Err(err).Str("op", op).Msg("storage operation failed")
	return apperrors.StorageUnavailable(err)
}
