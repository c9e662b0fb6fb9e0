package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/matheus3301/crmsync/internal/crm"
	intsync "github.com/matheus3301/crmsync/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps a domain error onto a gRPC status.
func toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	code := codes.Internal
	var apiErr *crm.APIError
	switch {
	case errors.Is(err, intsync.ErrHalted), errors.Is(err, crm.ErrSessionExpired):
		code = codes.Unauthenticated
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound:
		code = codes.NotFound
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest:
		code = codes.InvalidArgument
	case crm.IsTransient(err):
		code = codes.Unavailable
	}
	return grpcstatus.Error(code, fmt.Sprintf("%s: %v", op, err))
}
