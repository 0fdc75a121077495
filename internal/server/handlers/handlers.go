// Package handlers implements the HTTP handlers of the song API.
//
// Handlers are plain functions taking a context and a request struct; the
// server package decodes the request and encodes the response.
package handlers

import (
	"context"
	"errors"

	apierrors "github.com/maruel/songdb/internal/errors"
	"github.com/maruel/songdb/internal/storage"
)

// Validatable is implemented by every request type.
type Validatable interface {
	Validate() error
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// toAPIError maps a catalog error to the status it is reported with.
func toAPIError(err error) error {
	var apiErr *apierrors.APIError
	switch {
	case errors.As(err, &apiErr):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return apierrors.NotFound("Song").Wrap(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apierrors.Timeout(err)
	case storage.IsStorageError(err):
		return apierrors.Storage(err)
	default:
		return apierrors.InternalWithError("Internal error", err)
	}
}
