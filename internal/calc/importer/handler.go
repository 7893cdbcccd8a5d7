package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"

	"SmartMix/internal/calc/predict"
	"SmartMix/internal/dataset"
	"SmartMix/internal/logging"
	"SmartMix/internal/metrics"
	"SmartMix/internal/mix"
	"SmartMix/internal/validation"
)

const maxUpload = 10 << 20

var (
	errInvalidFile = errors.New("invalid file")
	errEmptySheet  = errors.New("empty sheet")
)

type Handler struct {
	Pipeline *predict.Pipeline
}

type ImportResult struct {
	Count   int              `json:"count"`
	Skipped int              `json:"skipped"`
	Results []predict.Result `json:"results"`
}

// Import predicts every data row of the first sheet of an uploaded xlsx.
// Columns follow mix.FeatureNames; the first row is a header.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "File required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	rows, err := readSheet(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := Run(h.Pipeline, rows[1:])
	if err != nil {
		predict.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func readSheet(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errInvalidFile
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil || len(rows) < 2 {
		return nil, errEmptySheet
	}
	return rows, nil
}

// Run predicts each row. Rows that do not parse or fail validation are
// skipped; a pipeline failure aborts the import.
func Run(p *predict.Pipeline, rows [][]string) (ImportResult, error) {
	log := logging.With().Str("component", "importer").Logger()
	out := ImportResult{Results: make([]predict.Result, 0, len(rows))}
	for i, row := range rows {
		design, err := parseRow(row)
		if err == nil {
			err = validation.Struct(&design)
		}
		if err != nil {
			out.Skipped++
			log.Debug().Int("row", i+2).Err(err).Msg("row skipped")
			continue
		}
		start := time.Now()
		res, err := p.Predict(design)
		if err != nil {
			return ImportResult{}, err
		}
		metrics.RecordPrediction(time.Since(start).Seconds(), res.Corrected)
		out.Results = append(out.Results, res)
	}
	out.Count = len(out.Results)
	return out, nil
}

func parseRow(row []string) (mix.Design, error) {
	if len(row) < mix.FeatureCount {
		return mix.Design{}, fmt.Errorf("expected %d columns, got %d", mix.FeatureCount, len(row))
	}
	x := make([]float64, mix.FeatureCount)
	for i := range x {
		v, err := dataset.ParseNumber(row[i])
		if err != nil {
			return mix.Design{}, fmt.Errorf("%s: %w", mix.FeatureNames[i], err)
		}
		x[i] = v
	}
	return mix.FromVector(x)
}
