// Package feedback records laboratory results that users measured for a
// predicted mix.
package feedback

import (
	"encoding/json"
	"net/http"
	"strconv"

	"SmartMix/internal/auth"
	"SmartMix/internal/logging"
	"SmartMix/internal/mix"
	"SmartMix/internal/repo"
	"SmartMix/internal/validation"
)

const (
	DefaultLimit = 50
	maxLimit     = 500
)

type FeedbackHandler struct {
	Repo repo.Repository
}

type CreateRequest struct {
	Mix           mix.Design `json:"mix"`
	PredictedCS28 float64    `json:"predicted_cs28" validate:"gte=0,lte=200"`
	MeasuredCS28  float64    `json:"measured_cs28" validate:"gt=0,lte=200"`
	Note          string     `json:"note" validate:"max=1000"`
}

func (h *FeedbackHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validation.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sessionID, _ := auth.SessionID(r.Context())
	id, err := h.Repo.CreateFeedback(r.Context(), repo.Feedback{
		SessionID:     sessionID,
		Mix:           req.Mix,
		PredictedCS28: req.PredictedCS28,
		MeasuredCS28:  req.MeasuredCS28,
		Note:          req.Note,
	})
	if err != nil {
		logging.Error().Err(err).Msg("store feedback")
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]int64{"id": id})
}

// List returns the latest entries, newest first. ?limit= caps the count.
func (h *FeedbackHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := uint64(DefaultLimit)
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil || n == 0 || n > maxLimit {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	items, err := h.Repo.LatestFeedback(r.Context(), limit)
	if err != nil {
		logging.Error().Err(err).Msg("list feedback")
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(items)
}
