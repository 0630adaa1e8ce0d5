package errx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// PostgresErrorMessage describes dataset query failures.
	PostgresErrorMessage = "dataset query failed"
	// PostgresNotFoundMessage describes an empty single-row lookup.
	PostgresNotFoundMessage = "dataset record not found"
	// ConfigurationErrorMessage is used for wiring defects that cannot be fixed per turn.
	ConfigurationErrorMessage = "assistant misconfigured"
)

// ErrIntentNotRegistered marks an intent the router accepts but the dispatch
// table has no handler for. It is a deployment defect and aborts the turn.
var ErrIntentNotRegistered = errors.New("intent has no registered handler")

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// WrapRedis maps Redis errors to an AppError with an appropriate status code.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	}
	return New(err, http.StatusBadGateway, RedisErrorMessage)
}

// WrapPostgres maps dataset query errors to an AppError.
func WrapPostgres(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return New(err, http.StatusNotFound, PostgresNotFoundMessage)
	}
	return New(err, http.StatusBadGateway, PostgresErrorMessage)
}

// Unregistered builds the configuration-defect error for an intent.
func Unregistered(intent string) error {
	return New(fmt.Errorf("%w: %s", ErrIntentNotRegistered, intent), http.StatusInternalServerError, ConfigurationErrorMessage)
}

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the safe message carried by err, or SystemErrorMessage.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return SystemErrorMessage
}
