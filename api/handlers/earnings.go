package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/atelierlabs/atelier/api/handlers/dberror"
	"github.com/atelierlabs/atelier/royalty/pgstore"
)

// EarningsTransactionsResponse is the response for a creator's revenue feed.
type EarningsTransactionsResponse struct {
	Transactions []pgstore.EventRecord `json:"transactions"`
}

// GetEarningsStats returns a creator's revenue totals split into direct
// sales and cascaded royalties.
func GetEarningsStats(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		http.Error(w, "address query parameter is required", http.StatusBadRequest)
		return
	}

	stats, err := dberror.Retry(r.Context(), dberror.DefaultRetryConfig(), func() (*pgstore.RevenueStats, error) {
		return store.StatsByCreator(r.Context(), address)
	})
	if err != nil {
		http.Error(w, internalError("Failed to get earnings stats", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

// GetEarningsTransactions returns the revenue events landing on a creator's
// works, newest first.
func GetEarningsTransactions(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		http.Error(w, "address query parameter is required", http.StatusBadRequest)
		return
	}

	params := ParsePagination(r, 50)
	records, err := store.EventsByCreator(r.Context(), address, params.Limit, params.Offset)
	if err != nil {
		http.Error(w, internalError("Failed to list earnings transactions", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(EarningsTransactionsResponse{Transactions: records})
}
