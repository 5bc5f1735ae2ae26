package server

import (
	"net/http"

	"github.com/civilens/civilens/internal/civilens"
	"github.com/civilens/civilens/internal/complaint"
)

type ComplaintListResponse struct {
	Complaints []civilens.Complaint `json:"complaints"`
}

func handleListComplaints(store *complaint.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		list, err := store.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list complaints")
			return
		}
		writeJSON(w, http.StatusOK, ComplaintListResponse{Complaints: list})
	}
}
