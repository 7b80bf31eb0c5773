package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whale-scanner/internal/types"
)

func TestCategoryPredicates(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		configuration bool
		transient     bool
		aggregate     bool
		retryable     bool
	}{
		{"configuration", NewConfigurationError("bad threshold"), true, false, false, false},
		{"unknown chain", NewUnknownChainError(types.ChainID("solana")), true, false, false, false},
		{"invalid parameter", NewInvalidParameterError("range", "empty"), true, false, false, false},
		{"not connected", NewNotConnectedError("protocol"), true, false, false, false},
		{"transient", NewTransientError("rest", stderrors.New("connection reset")), false, true, false, true},
		{"timeout", NewProviderTimeoutError("protocol"), false, true, false, true},
		{"backend rate limit", NewProviderRateLimitError("rest"), false, true, false, true},
		{"aggregate", NewAggregateFailureError([]string{"Ethereum: timeout"}), false, false, true, false},
		{"internal", NewInternalError("boom", nil), false, false, false, false},
		{"unavailable", NewServiceUnavailableError("redis"), false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.configuration, IsConfiguration(tt.err), "IsConfiguration")
			assert.Equal(t, tt.transient, IsTransient(tt.err), "IsTransient")
			assert.Equal(t, tt.aggregate, IsAggregateFailure(tt.err), "IsAggregateFailure")
			assert.Equal(t, tt.retryable, IsRetryable(tt.err), "IsRetryable")
		})
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("scan ethereum: %w", NewTransientError("rest", stderrors.New("503")))
	assert.True(t, IsTransient(wrapped))
	assert.False(t, IsConfiguration(wrapped))
	assert.Equal(t, http.StatusBadGateway, GetHTTPStatusCode(wrapped))
}

func TestAggregateWarnings(t *testing.T) {
	warnings := []string{"Ethereum: timeout", "Base: connect refused"}
	err := NewAggregateFailureError(warnings)

	assert.Equal(t, warnings, AggregateWarnings(err))
	assert.Nil(t, AggregateWarnings(NewInternalError("boom", nil)))
	assert.Nil(t, AggregateWarnings(nil))
}

func TestCategorizeForeignError(t *testing.T) {
	cat := Categorize(stderrors.New("something odd"))
	require.NotNil(t, cat)
	assert.Equal(t, CategorySystem, cat.Category)
	assert.Equal(t, http.StatusInternalServerError, cat.StatusCode)
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := stderrors.New("dial tcp: connection refused")
	err := NewTransientError("protocol", cause)
	assert.ErrorIs(t, err, cause)
}

func TestToServiceError(t *testing.T) {
	svc := NewUnknownChainError(types.ChainID("dogechain")).ToServiceError()
	assert.Equal(t, "UNKNOWN_CHAIN", svc.Code)
	assert.Contains(t, svc.Message, "dogechain")
}
