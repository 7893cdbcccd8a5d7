package recommend

import (
	"encoding/json"
	"errors"
	"net/http"

	"SmartMix/internal/dataset"
	"SmartMix/internal/metrics"
	"SmartMix/internal/validation"
)

const noMatchMessage = "no match found"

// Query is the optimizer request. Tolerance and K fall back to the
// handler defaults when omitted.
type Query struct {
	Target    float64  `json:"target" validate:"gt=0"`
	Tolerance *float64 `json:"tolerance,omitempty" validate:"omitempty,gte=0"`
	K         int      `json:"k,omitempty" validate:"gte=0,lte=100"`
}

type Response struct {
	Target    float64       `json:"target"`
	Tolerance float64       `json:"tolerance"`
	Count     int           `json:"count"`
	Matches   []dataset.Row `json:"matches"`
	Message   string        `json:"message,omitempty"`
}

type Handler struct {
	Dataset   *dataset.Dataset
	Tolerance float64
	K         int
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Query, float64, bool) {
	var q Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return q, 0, false
	}
	if err := validation.Struct(&q); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return q, 0, false
	}
	tol := h.Tolerance
	if q.Tolerance != nil {
		tol = *q.Tolerance
	}
	if q.K == 0 {
		q.K = h.K
	}
	return q, tol, true
}

func (h *Handler) Calc(w http.ResponseWriter, r *http.Request) {
	q, tol, ok := h.decode(w, r)
	if !ok {
		return
	}
	matches := Recommend(h.Dataset, q.Target, tol, q.K)
	resp := Response{Target: q.Target, Tolerance: tol, Count: len(matches), Matches: matches}
	if len(matches) == 0 {
		resp.Message = noMatchMessage
		metrics.Recommendations.WithLabelValues("empty").Inc()
	} else {
		metrics.Recommendations.WithLabelValues("match").Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) Best(w http.ResponseWriter, r *http.Request) {
	q, tol, ok := h.decode(w, r)
	if !ok {
		return
	}
	row, err := Best(h.Dataset, q.Target, tol)
	if errors.Is(err, ErrNoMatch) {
		metrics.Recommendations.WithLabelValues("empty").Inc()
		http.Error(w, noMatchMessage, http.StatusNotFound)
		return
	}
	metrics.Recommendations.WithLabelValues("match").Inc()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(row)
}
