package ierr

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource conflict")
	ErrStorage        = errors.New("storage failure")
	ErrUpstream       = errors.New("upstream service failure")
	ErrLockTimeout    = errors.New("timed out waiting for license lock")
	ErrInternalServer = errors.New("internal server error")
)
