package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/whale-scanner/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryConfiguration represents caller or configuration errors that
	// must never be retried (4xx)
	CategoryConfiguration ErrorCategory = "configuration"
	// CategoryValidation represents request validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryTransient represents backend errors that may succeed on retry
	CategoryTransient ErrorCategory = "transient"
	// CategoryAggregate represents a whole aggregation failing because every
	// requested chain failed
	CategoryAggregate ErrorCategory = "aggregate"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategorySystem represents internal errors (5xx)
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Configuration errors (fatal, never retried)

// NewConfigurationError creates a generic configuration error
func NewConfigurationError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConfiguration,
		StatusCode: http.StatusBadRequest,
		Code:       "CONFIGURATION_ERROR",
		Message:    message,
	}
}

// NewInvalidAddressError creates an invalid address error
func NewInvalidAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConfiguration,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_ADDRESS",
		Message:    fmt.Sprintf("invalid address format: %s", address),
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewUnknownChainError creates an error for a chain id missing from the registry
func NewUnknownChainError(chainID types.ChainID) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConfiguration,
		StatusCode: http.StatusBadRequest,
		Code:       "UNKNOWN_CHAIN",
		Message:    fmt.Sprintf("unknown chain: %s", chainID),
		Details: map[string]interface{}{
			"chainId": string(chainID),
		},
	}
}

// NewNotConnectedError creates an error for a data call before Connect
func NewNotConnectedError(backend string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConfiguration,
		StatusCode: http.StatusBadRequest,
		Code:       "NOT_CONNECTED",
		Message:    fmt.Sprintf("%s client used before Connect", backend),
		Details: map[string]interface{}{
			"backend": backend,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// Transient errors (retry may succeed)

// NewTransientError creates a transient backend error
func NewTransientError(backend string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransient,
		StatusCode: http.StatusBadGateway,
		Code:       "BACKEND_ERROR",
		Message:    fmt.Sprintf("data backend error: %s", backend),
		Cause:      cause,
		Details: map[string]interface{}{
			"backend": backend,
		},
	}
}

// NewProviderTimeoutError creates a backend timeout error
func NewProviderTimeoutError(backend string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransient,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "BACKEND_TIMEOUT",
		Message:    fmt.Sprintf("data backend timeout: %s", backend),
		Details: map[string]interface{}{
			"backend": backend,
		},
	}
}

// NewProviderRateLimitError creates a backend rate limit error
func NewProviderRateLimitError(backend string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransient,
		StatusCode: http.StatusTooManyRequests,
		Code:       "BACKEND_RATE_LIMIT",
		Message:    fmt.Sprintf("data backend rate limit exceeded: %s", backend),
		Details: map[string]interface{}{
			"backend": backend,
		},
	}
}

// Aggregate errors

// NewAggregateFailureError creates the error returned when every requested
// chain failed. warnings carries one entry per failed chain.
func NewAggregateFailureError(warnings []string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAggregate,
		StatusCode: http.StatusBadGateway,
		Code:       "ALL_CHAINS_FAILED",
		Message:    fmt.Sprintf("all %d requested chains failed", len(warnings)),
		Details: map[string]interface{}{
			"warnings": warnings,
		},
	}
}

// System errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(service string) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "SERVICE_UNAVAILABLE",
		Message:    fmt.Sprintf("service unavailable: %s", service),
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	// Default to internal error
	return NewInternalError("unexpected error", err)
}

// categorizeServiceError categorizes a ServiceError
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	switch err.Code {
	case "INVALID_ADDRESS", "INVALID_PARAMETER", "UNKNOWN_CHAIN", "CONFIGURATION_ERROR":
		return &CategorizedError{
			Category:   CategoryConfiguration,
			StatusCode: http.StatusBadRequest,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	case "NOT_FOUND", "ADDRESS_NOT_FOUND":
		return &CategorizedError{
			Category:   CategoryNotFound,
			StatusCode: http.StatusNotFound,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	case "RATE_LIMIT_EXCEEDED":
		return &CategorizedError{
			Category:   CategoryRateLimit,
			StatusCode: http.StatusTooManyRequests,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	case "BACKEND_ERROR", "BACKEND_TIMEOUT", "BACKEND_RATE_LIMIT":
		return &CategorizedError{
			Category:   CategoryTransient,
			StatusCode: http.StatusBadGateway,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	default:
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       err.Code,
			Message:    err.Message,
			Details:    err.Details,
		}
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsConfiguration determines if an error is a fatal configuration error
func IsConfiguration(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.Category == CategoryConfiguration || catErr.Category == CategoryValidation
}

// IsTransient determines if an error is transient
func IsTransient(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.Category == CategoryTransient
}

// IsAggregateFailure determines if an error is a whole-aggregation failure
func IsAggregateFailure(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.Category == CategoryAggregate
}

// AggregateWarnings extracts the per-chain warnings from an aggregate
// failure, nil for any other error
func AggregateWarnings(err error) []string {
	catErr := Categorize(err)
	if catErr == nil || catErr.Category != CategoryAggregate {
		return nil
	}
	if w, ok := catErr.Details["warnings"].([]string); ok {
		return w
	}
	return nil
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryTransient:
		return true
	case CategorySystem:
		// Some system errors are retryable
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 500
}
