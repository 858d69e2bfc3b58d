package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atelierlabs/atelier/royalty"
)

// LineageResponse is the full family tree view of one work.
type LineageResponse struct {
	WorkID    string          `json:"workId"`
	Ancestors []*royalty.Work `json:"ancestors"` // immediate parent first, origin last
	Children  []*royalty.Work `json:"children"`
}

// GetLineage returns a work's ancestor chain and direct derivatives.
func GetLineage(w http.ResponseWriter, r *http.Request) {
	workID := chi.URLParam(r, "workId")
	if workID == "" {
		http.Error(w, "work ID is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	ancestors, err := engine.Ancestors(ctx, workID)
	if err != nil {
		if writeRoyaltyError(w, err) {
			return
		}
		http.Error(w, internalError("Failed to resolve lineage", err), http.StatusInternalServerError)
		return
	}

	children, err := store.GetChildren(ctx, workID)
	if err != nil {
		http.Error(w, internalError("Failed to list derivatives", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(LineageResponse{
		WorkID:    workID,
		Ancestors: ancestors,
		Children:  children,
	})
}
