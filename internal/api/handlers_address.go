package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/whale-scanner/internal/errors"
	"github.com/whale-scanner/internal/logging"
	"github.com/whale-scanner/internal/types"
)

// AddressResponse is the payload of GET /api/v1/address/{address}
type AddressResponse struct {
	Chain  types.ChainID        `json:"chain"`
	Info   *types.AddressInfo   `json:"info"`
	Tokens []types.TokenBalance `json:"tokens"`
}

// handleGetAddress handles GET /api/v1/address/{address} - Explorer metadata
// and token holdings for one address on one chain
func (s *Server) handleGetAddress(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address := vars["address"]

	if !types.IsValidAddress(address) {
		respondCategorized(w, errors.NewInvalidParameterError("address", "not a valid hex address"))
		return
	}
	address = types.NormalizeAddress(address)

	chainID := types.ChainEthereum
	if chainStr := strings.TrimSpace(r.URL.Query().Get("chain")); chainStr != "" {
		chainID = types.ChainID(strings.ToLower(chainStr))
	}
	if !s.registry.Has(chainID) {
		respondCategorized(w, errors.NewUnknownChainError(chainID))
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"address": address,
		"chain":   string(chainID),
	})

	client := s.clients.NewClient()
	if err := client.Connect(ctx); err != nil {
		logger.WithError(err).Warn("Address lookup could not connect data source")
		respondCategorized(w, mapDataSourceError(err, address))
		return
	}
	defer client.Disconnect()

	info, err := client.GetAddressInfo(ctx, chainID, address)
	if err != nil {
		logger.WithError(err).Warn("Address info lookup failed")
		respondCategorized(w, mapDataSourceError(err, address))
		return
	}

	// Token holdings are best-effort; the metadata alone is still useful
	tokens, err := client.GetTokensByAddress(ctx, chainID, address)
	if err != nil {
		logger.WithError(err).Warn("Token holdings lookup failed, returning metadata only")
		tokens = nil
	}
	if tokens == nil {
		tokens = []types.TokenBalance{}
	}

	respondJSON(w, http.StatusOK, AddressResponse{
		Chain:  chainID,
		Info:   info,
		Tokens: tokens,
	})
}
