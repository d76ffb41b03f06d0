package db

import "errors"

// DuplicateKeyError is an error type for duplicate key errors
type DuplicateKeyError struct {
	Key     string
	Message string
}

func (e *DuplicateKeyError) Error() string {
	return e.Message
}

func IsDuplicateKeyError(err error) bool {
	var target *DuplicateKeyError
	return errors.As(err, &target)
}

// Not found Error
type NotFoundError struct {
	Key     string
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// LockConflictError is returned when the rows of a user could not be locked
// within the lock wait timeout
type LockConflictError struct {
	Key     string
	Message string
	Err     error
}

func (e *LockConflictError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *LockConflictError) Unwrap() error {
	return e.Err
}

func IsLockConflictError(err error) bool {
	var target *LockConflictError
	return errors.As(err, &target)
}

// NothingLockedError is returned when a user has no ACTIVE position to lock
type NothingLockedError struct {
	Key string
}

func (e *NothingLockedError) Error() string {
	return "no active position to lock for " + e.Key
}

func IsNothingLockedError(err error) bool {
	var target *NothingLockedError
	return errors.As(err, &target)
}
