package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/immxrtalbeast/watchparty/internal/domain"
	"github.com/immxrtalbeast/watchparty/internal/repository"
	"github.com/immxrtalbeast/watchparty/internal/storage"
)

// translate maps repository and storage errors onto the domain taxonomy.
// Errors already carrying a domain kind pass through unchanged.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, repository.ErrRoomNotFound),
		errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, storage.ErrFileNotFound):
		return fmt.Errorf("%s: %w: %v", op, domain.ErrNotFound, err)
	case domain.ErrorKind(err) != "internal":
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, domain.ErrStorageFailure, err)
	}
}

func invalidInput(op, msg string) error {
	return fmt.Errorf("%s: %w: %s", op, domain.ErrInvalidInput, msg)
}
