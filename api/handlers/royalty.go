package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atelierlabs/atelier/api/metrics"
	"github.com/atelierlabs/atelier/royalty"
)

// GetRoyaltySummary returns a work's earned, claimed, and claimable balances
// plus a per-derivative breakdown.
func GetRoyaltySummary(w http.ResponseWriter, r *http.Request) {
	workID := r.URL.Query().Get("workId")
	if workID == "" {
		http.Error(w, "workId query parameter is required", http.StatusBadRequest)
		return
	}

	summary, err := engine.Summary(r.Context(), workID)
	if err != nil {
		if writeRoyaltyError(w, err) {
			return
		}
		http.Error(w, internalError("Failed to get royalty summary", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}

// ClaimRequest is the request body for withdrawing earned royalties.
type ClaimRequest struct {
	WorkID string `json:"workId"`
	Amount int64  `json:"amount"`
}

// ClaimRoyalty withdraws part of a work's claimable balance. The balance
// check and the increment happen atomically, so concurrent claims cannot
// overdraw.
func ClaimRoyalty(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.WorkID == "" {
		http.Error(w, "workId is required", http.StatusBadRequest)
		return
	}

	result, err := engine.Claim(r.Context(), req.WorkID, req.Amount)
	if err != nil {
		if errors.Is(err, royalty.ErrInsufficientClaimable) {
			metrics.RecordClaimInsufficient()
		} else {
			metrics.RecordClaim(0, err)
		}
		if writeRoyaltyError(w, err) {
			return
		}
		http.Error(w, internalError("Failed to claim royalties", err), http.StatusInternalServerError)
		return
	}
	metrics.RecordClaim(result.Claimed, nil)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// DistributeRequest is the request body for a manual distribution run.
type DistributeRequest struct {
	WorkID            string `json:"workId"`
	Amount            int64  `json:"amount"`
	TransactionDigest string `json:"transactionDigest"`
}

// DistributeResponse reports the per-work credit amounts of one run.
type DistributeResponse struct {
	Distribution map[string]int64 `json:"distribution"`
}

// DistributeRoyalty runs the royalty cascade for a revenue amount against a
// work's ancestor chain. Keyed on the transaction digest: replays are no-ops.
func DistributeRoyalty(w http.ResponseWriter, r *http.Request) {
	var req DistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.WorkID == "" {
		http.Error(w, "workId is required", http.StatusBadRequest)
		return
	}
	if req.TransactionDigest == "" {
		http.Error(w, "transactionDigest is required", http.StatusBadRequest)
		return
	}

	result, err := engine.Distribute(r.Context(), req.WorkID, req.Amount, req.TransactionDigest)
	metrics.RecordDistribution(result, err)
	if err != nil {
		if writeRoyaltyError(w, err) {
			return
		}
		http.Error(w, internalError("Failed to distribute royalties", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(DistributeResponse{Distribution: result})
}
