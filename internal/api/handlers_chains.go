package api

import (
	"net/http"

	"github.com/whale-scanner/internal/chains"
)

// ChainsResponse is the payload of GET /api/v1/chains
type ChainsResponse struct {
	Chains []chains.Chain `json:"chains"`
	Count  int            `json:"count"`
}

// handleGetChains handles GET /api/v1/chains - List the supported chains
func (s *Server) handleGetChains(w http.ResponseWriter, r *http.Request) {
	list := s.registry.List()
	respondJSON(w, http.StatusOK, ChainsResponse{
		Chains: list,
		Count:  len(list),
	})
}
