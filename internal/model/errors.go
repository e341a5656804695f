package model

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")

	// Consolidation failures. None of these are fatal to a conversational turn.
	ErrMalformedDelta     = errors.New("malformed delta")
	ErrValidationDropped  = errors.New("delta entry dropped")
	ErrStorageWriteFailed = errors.New("storage write failed")
	ErrStorageReadFailed  = errors.New("storage read failed")
)
