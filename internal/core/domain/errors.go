package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTenantContextMissing = errors.New("tenant context missing")
	ErrDocumentNotFound     = errors.New("document not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrTemporary            = errors.New("temporary failure")
	ErrRetrievalUnavailable = errors.New("retrieval backend unavailable")
	ErrErasureUnconfirmed   = errors.New("tenant erasure not confirmed")
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
