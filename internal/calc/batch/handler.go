package batch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"SmartMix/internal/calc/predict"
	"SmartMix/internal/metrics"
	"SmartMix/internal/validation"
)

type Handler struct {
	Pipeline *predict.Pipeline
}

func (h *Handler) Calc(w http.ResponseWriter, r *http.Request) {
	var input Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if len(input.Items) > MaxItems {
		http.Error(w, fmt.Sprintf("at most %d items per batch", MaxItems), http.StatusRequestEntityTooLarge)
		return
	}
	if err := validation.Struct(&input); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	res, err := Predict(h.Pipeline, input.Items)
	if err != nil {
		predict.WriteError(w, err)
		return
	}
	elapsed := time.Since(start).Seconds() / float64(res.Count)
	for _, item := range res.Results {
		metrics.RecordPrediction(elapsed, item.Corrected)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}
