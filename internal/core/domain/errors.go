package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrTemporary    = errors.New("temporary failure")

	ErrSubmissionFailed        = errors.New("submission failed")
	ErrDocumentAdmissionFailed = errors.New("document admission failed")
	ErrExtractionEmpty         = errors.New("extraction returned no items")
	ErrPersistenceFailed       = errors.New("persistence failed")
	ErrRunFailed               = errors.New("run failed")
	ErrRunAlreadyClaimed       = errors.New("run already claimed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
