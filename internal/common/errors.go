// Package common holds the error kinds shared by the storage, service and
// HTTP layers. Callers wrap them with fmt.Errorf("...: %w", ...) and
// classify with errors.Is.
package common

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrSizeLimit     = errors.New("content exceeds size limit")
	ErrAuth          = errors.New("unauthorized")
	ErrRateLimited   = errors.New("rate limited")
	ErrConfiguration = errors.New("server misconfigured")
	ErrStorageIO     = errors.New("storage i/o error")

	// ErrContentMissing reports a metadata row whose content entry is gone.
	// It matches ErrNotFound.
	ErrContentMissing = fmt.Errorf("content missing: %w", ErrNotFound)
)
