package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrOnlyCensoredFiles = fmt.Errorf("censored directory contains directories")
	ErrEmptyWords        = fmt.Errorf("no words have been found")

	ErrValidation     = fmt.Errorf("validation error")
	ErrNotFound       = fmt.Errorf("not found")
	ErrPersistence    = fmt.Errorf("persistence error")
	ErrDelivery       = fmt.Errorf("delivery error")
	ErrRateLimited    = fmt.Errorf("rate limited")
	ErrUnknownEvent   = fmt.Errorf("unknown event")
	ErrNotJoined      = fmt.Errorf("%w: connection has not joined a group", ErrValidation)
	ErrOutboxFull     = fmt.Errorf("%w: outbox full", ErrDelivery)
	ErrOutboxClosed   = fmt.Errorf("%w: connection closed", ErrDelivery)
	ErrUnknownStorage = fmt.Errorf("unknown storage driver")
)

// Wire codes carried by the "error" event.
const (
	CodeValidation  = "validation_error"
	CodeNotFound    = "not_found"
	CodePersistence = "persistence_error"
	CodeRateLimited = "rate_limited"
	CodeUnknown     = "unknown_event"
	CodeInternal    = "internal"
)

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func New(text string) error { return stderrors.New(text) }

// Validation wraps a formatted message with ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps a formatted message with ErrNotFound.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Persistence wraps a storage failure. The cause is kept for logs only.
func Persistence(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, cause)
}

// Code classifies err into the protocol error code sent to clients.
func Code(err error) string {
	switch {
	case stderrors.Is(err, ErrValidation):
		return CodeValidation
	case stderrors.Is(err, ErrNotFound):
		return CodeNotFound
	case stderrors.Is(err, ErrPersistence):
		return CodePersistence
	case stderrors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case stderrors.Is(err, ErrUnknownEvent):
		return CodeUnknown
	default:
		return CodeInternal
	}
}

// Message returns the client-facing text for err.
// Storage and internal causes are never leaked to the wire.
func Message(err error) string {
	switch Code(err) {
	case CodePersistence:
		return "storage unavailable, please retry"
	case CodeInternal:
		return "internal error"
	default:
		return err.Error()
	}
}

// MapToGRPCError converts a domain error into a gRPC status error.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	switch Code(err) {
	case CodeValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case CodeNotFound:
		return status.Error(codes.NotFound, err.Error())
	case CodeRateLimited:
		return status.Error(codes.ResourceExhausted, err.Error())
	case CodePersistence:
		return status.Error(codes.Unavailable, Message(err))
	case CodeUnknown:
		return status.Error(codes.Unimplemented, err.Error())
	default:
		return status.Error(codes.Internal, Message(err))
	}
}
