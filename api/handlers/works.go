package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atelierlabs/atelier/api/handlers/dberror"
	"github.com/atelierlabs/atelier/royalty"
)

// WorkListResponse is the response for listing works.
type WorkListResponse struct {
	Works   []*royalty.Work `json:"works"`
	Total   int             `json:"total"`
	HasMore bool            `json:"has_more"`
}

// ListWorks returns a paginated list of works, optionally filtered by creator.
func ListWorks(w http.ResponseWriter, r *http.Request) {
	params := ParsePagination(r, 50)
	creator := r.URL.Query().Get("creator")

	type listResult struct {
		works []*royalty.Work
		total int
	}
	result, err := dberror.Retry(r.Context(), dberror.DefaultRetryConfig(), func() (listResult, error) {
		works, total, err := store.ListWorks(r.Context(), creator, params.Limit, params.Offset)
		return listResult{works, total}, err
	})
	if err != nil {
		http.Error(w, internalError("Failed to list works", err), http.StatusInternalServerError)
		return
	}
	works, total := result.works, result.total

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(WorkListResponse{
		Works:   works,
		Total:   total,
		HasMore: params.Offset+len(works) < total,
	})
}

// GetWork returns a single work by ID.
func GetWork(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "work ID is required", http.StatusBadRequest)
		return
	}

	work, err := store.GetWork(r.Context(), id)
	if err != nil {
		if writeRoyaltyError(w, err) {
			return
		}
		http.Error(w, internalError("Failed to get work", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(work)
}

// SyncWorkRequest is the request body for syncing a work from the chain.
type SyncWorkRequest struct {
	royalty.Work
}

// SyncWork upserts a work's chain-owned fields and its lineage edge. Royalty
// balances are never written through this endpoint.
func SyncWork(w http.ResponseWriter, r *http.Request) {
	var req SyncWorkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	if req.Creator == "" {
		http.Error(w, "creator is required", http.StatusBadRequest)
		return
	}
	if req.RoyaltyRatio < 0 || req.RoyaltyRatio > 100 {
		http.Error(w, "royaltyRatio must be between 0 and 100", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if err := store.UpsertWork(ctx, &req.Work); err != nil {
		http.Error(w, internalError("Failed to sync work", err), http.StatusInternalServerError)
		return
	}
	if req.ParentID != "" {
		if err := store.PutEdge(ctx, req.ID, req.ParentID); err != nil {
			http.Error(w, internalError("Failed to record lineage edge", err), http.StatusInternalServerError)
			return
		}
	}

	work, err := store.GetWork(ctx, req.ID)
	if err != nil {
		http.Error(w, internalError("Failed to read back work", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(work)
}

// RevokeWorkRequest is the request body for toggling revocation.
type RevokeWorkRequest struct {
	Revoked bool `json:"revoked"`
}

// RevokeWork flips a work's revocation flag. Revocation hides the work from
// new licensing but leaves earned balances claimable.
func RevokeWork(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "work ID is required", http.StatusBadRequest)
		return
	}

	var req RevokeWorkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := store.SetRevoked(r.Context(), id, req.Revoked); err != nil {
		if writeRoyaltyError(w, err) {
			return
		}
		http.Error(w, internalError("Failed to revoke work", err), http.StatusInternalServerError)
		return
	}

	work, err := store.GetWork(r.Context(), id)
	if err != nil {
		http.Error(w, internalError("Failed to read back work", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(work)
}
