package services

import (
	"errors"
	"net/http"

	"github.com/mvgalabs/staking-rewards-service/internal/db"
	"github.com/mvgalabs/staking-rewards-service/internal/types"
)

// lockedOpError maps the outcome of a position-locked operation to a service
// error. Errors already typed by the operation body are returned as is.
func lockedOpError(err error, nothingMsg string) *types.Error {
	var typedErr *types.Error
	switch {
	case errors.As(err, &typedErr):
		return typedErr
	case isSettlementPending(err):
		return types.NewConflictError(err.Error())
	case db.IsNothingLockedError(err):
		return types.NewConflictError(nothingMsg)
	case db.IsLockConflictError(err):
		return types.NewConflictError("positions are being updated by another operation, try again")
	case db.IsNotFoundError(err):
		return types.NewError(http.StatusNotFound, types.NotFound, err)
	default:
		return types.NewInternalServiceError(err)
	}
}
