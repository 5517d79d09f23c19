package storage

import (
	"errors"
	"fmt"

	"github.com/dukerupert/courtbill/internal/domain"
)

// Causes wrapped by the constructors below, for errors.Is.
var (
	ErrNotFound   = errors.New("document not found")
	ErrBadKey     = errors.New("invalid document key")
	ErrBadBackend = errors.New("unknown storage provider")
)

// ErrFileNotFound reports a missing document as ENOTFOUND.
func ErrFileNotFound(key string) error {
	return &domain.Error{Code: domain.ENOTFOUND, Op: "storage.get", Message: fmt.Sprintf("document %s not found", key), Err: ErrNotFound}
}

// ErrInvalidKey reports a key that is empty or escapes the storage root.
func ErrInvalidKey(key string) error {
	return &domain.Error{Code: domain.EINVALID, Op: "storage.resolve", Message: fmt.Sprintf("invalid document key %q", key), Err: ErrBadKey}
}

func ErrUnknownProvider(provider string) error {
	return &domain.Error{Code: domain.EINVALID, Op: "storage.new", Message: fmt.Sprintf("unknown storage provider %q", provider), Err: ErrBadBackend}
}
