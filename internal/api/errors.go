package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/whale-scanner/internal/datasource"
	"github.com/whale-scanner/internal/errors"
	"github.com/whale-scanner/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondCategorized maps any error onto the wire format through the error
// taxonomy: callers get 400s, failed upstreams 502s, full aggregation
// failures 502 with the per-chain warnings in the details.
func respondCategorized(w http.ResponseWriter, err error) {
	categorized := errors.Categorize(err)
	respondError(w, categorized.StatusCode, categorized.Code, categorized.Message, categorized.Details)
}

// mapDataSourceError translates the data source sentinels used by the
// address endpoints into categorized errors
func mapDataSourceError(err error, address string) error {
	switch {
	case stderrors.Is(err, datasource.ErrAddressNotFound):
		return errors.NewNotFoundError("address", address)
	case stderrors.Is(err, datasource.ErrInvalidAddress):
		return errors.NewInvalidParameterError("address", "not a valid hex address")
	case stderrors.Is(err, datasource.ErrAddressRequired):
		return errors.NewInvalidParameterError("address", "address is required")
	case stderrors.Is(err, datasource.ErrUnsupportedChain):
		return errors.NewInvalidParameterError("chain", "chain is not supported by the data source")
	case stderrors.Is(err, datasource.ErrProviderRateLimit):
		return errors.NewRateLimitError(1)
	case stderrors.Is(err, datasource.ErrProviderTimeout),
		stderrors.Is(err, datasource.ErrProviderUnavailable),
		stderrors.Is(err, datasource.ErrNotConnected):
		return errors.NewTransientError("explorer", err)
	default:
		return err
	}
}
