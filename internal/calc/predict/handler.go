package predict

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"SmartMix/internal/logging"
	"SmartMix/internal/metrics"
	"SmartMix/internal/mix"
	"SmartMix/internal/model"
	"SmartMix/internal/sink"
	"SmartMix/internal/validation"
)

// Forwarder receives the flattened record of a computed mix.
type Forwarder interface {
	Send(ctx context.Context, record map[string]string) sink.Status
}

// Submission is the per-request state of one analysis run.
type Submission struct {
	ID      string      `json:"id"`
	Result  Result      `json:"result"`
	Profile []Point     `json:"strength_profile"`
	Sync    sink.Status `json:"sync"`
}

type Handler struct {
	Pipeline *Pipeline
	Sink     Forwarder
}

func (h *Handler) Calc(w http.ResponseWriter, r *http.Request) {
	var input mix.Design
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validation.Struct(&input); err != nil {
		metrics.Predictions.WithLabelValues("bad_input").Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	res, err := h.Pipeline.Predict(input)
	if err != nil {
		WriteError(w, err)
		return
	}
	metrics.RecordPrediction(time.Since(start).Seconds(), res.Corrected)

	sub := Submission{
		ID:      uuid.NewString(),
		Result:  res,
		Profile: res.StrengthProfile(),
	}
	if h.Sink != nil {
		rec := res.Record()
		rec["submission_id"] = sub.ID
		sub.Sync = h.Sink.Send(r.Context(), rec)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}

// WriteError maps pipeline errors to HTTP statuses.
func WriteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mix.ErrInputShape):
		metrics.Predictions.WithLabelValues("bad_input").Inc()
		http.Error(w, "Input shape mismatch", http.StatusBadRequest)
	case errors.Is(err, model.ErrModelUnavailable), errors.Is(err, model.ErrOutputShape):
		metrics.Predictions.WithLabelValues("error").Inc()
		logging.Error().Err(err).Msg("prediction unavailable")
		http.Error(w, "Model unavailable", http.StatusServiceUnavailable)
	default:
		metrics.Predictions.WithLabelValues("error").Inc()
		logging.Error().Err(err).Msg("prediction failed")
		http.Error(w, "Calculation error", http.StatusInternalServerError)
	}
}
