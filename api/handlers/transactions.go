package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/atelierlabs/atelier/api/metrics"
	"github.com/atelierlabs/atelier/royalty"
)

// PaymentRequest is the request body for settling a completed pay transaction.
type PaymentRequest struct {
	WorkID            string             `json:"workId"`
	TransactionDigest string             `json:"transactionDigest"`
	Transfers         []royalty.Transfer `json:"transfers"`
}

// PaymentResponse reports the attributed events and the distribution run.
type PaymentResponse struct {
	Events       []royalty.RevenueEvent `json:"events"`
	Distribution map[string]int64       `json:"distribution"`
}

// ExecutePayment settles a paid transaction: classifies each transfer as sale
// or royalty revenue, records the audit events, and runs one royalty
// distribution over the total. Replays under the same digest are no-ops.
func ExecutePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
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
	if len(req.Transfers) == 0 {
		http.Error(w, "transfers are required", http.StatusBadRequest)
		return
	}

	events, distribution, err := engine.ProcessPayment(r.Context(), req.WorkID, req.TransactionDigest, req.Transfers)
	if err != nil {
		if writeRoyaltyError(w, err) {
			return
		}
		http.Error(w, internalError("Failed to process payment", err), http.StatusInternalServerError)
		return
	}

	for _, ev := range events {
		metrics.RecordRevenueEvent(string(ev.Type), ev.Flagged)
	}
	metrics.RecordDistribution(distribution, nil)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(PaymentResponse{
		Events:       events,
		Distribution: distribution,
	})
}
