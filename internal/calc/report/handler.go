package report

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"SmartMix/internal/calc/predict"
	"SmartMix/internal/logging"
	"SmartMix/internal/metrics"
	"SmartMix/internal/mix"
	"SmartMix/internal/validation"
)

const disclaimer = "Research prototype. Predicted values are estimates from a model trained " +
	"on laboratory data and do not replace standard testing of trial batches."

type Input struct {
	Project string     `json:"project"`
	Author  string     `json:"author"`
	Title   string     `json:"title"`
	Notes   string     `json:"notes"`
	Mix     mix.Design `json:"mix"`
}

type Handler struct {
	Pipeline *predict.Pipeline
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var input Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := validation.Struct(&input); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if input.Title == "" {
		input.Title = "Mix Design Report"
	}

	start := time.Now()
	res, err := h.Pipeline.Predict(input.Mix)
	if err != nil {
		predict.WriteError(w, err)
		return
	}
	metrics.RecordPrediction(time.Since(start).Seconds(), res.Corrected)

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=\"mix-report.pdf\"")
	if err := Render(w, input, res, time.Now()); err != nil {
		logging.Error().Err(err).Msg("report generation failed")
		http.Error(w, "Report generation error", http.StatusInternalServerError)
		return
	}
}

var inputLabels = [mix.FeatureCount]string{
	"Cement (kg/m3)",
	"Water (kg/m3)",
	"Natural coarse aggregate (kg/m3)",
	"Natural fine aggregate (kg/m3)",
	"Recycled coarse aggregate (%)",
	"Mixed recycled aggregate (%)",
	"Silica fume (kg/m3)",
	"Fly ash (kg/m3)",
	"Fiber (kg/m3)",
	"Water/cement ratio",
	"Superplasticizer (kg/m3)",
}

// Render writes a one-page A4 report for res.
func Render(w io.Writer, in Input, res predict.Result, now time.Time) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, in.Title)
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 11)
	if in.Project != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Project: %s", in.Project))
		pdf.Ln(6)
	}
	if in.Author != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Author: %s", in.Author))
		pdf.Ln(6)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Date: %s", now.Format("2006-01-02")))
	pdf.Ln(10)

	section(pdf, "Mix proportions")
	for i, v := range res.Input.Vector() {
		row(pdf, inputLabels[i], formatValue(v))
	}
	pdf.Ln(4)

	section(pdf, "Predicted properties")
	row(pdf, "Compressive strength 7 d (MPa)", formatValue(res.SevenDay))
	row(pdf, "Compressive strength 28 d (MPa)", formatValue(res.TwentyEightDay))
	row(pdf, "Compressive strength 90 d (MPa)", formatValue(res.NinetyDay))
	row(pdf, "Split tensile strength (MPa)", formatValue(res.SplitTensile))
	row(pdf, "Elastic modulus (GPa)", formatValue(res.ElasticModulus))
	row(pdf, "Water absorption (%)", formatValue(res.WaterAbsorption))
	row(pdf, "Ultrasonic pulse velocity (m/s)", formatValue(res.UPV))
	row(pdf, "CO2 (kg/m3)", formatValue(res.CO2))
	row(pdf, "Cost", formatValue(res.Cost))
	row(pdf, "Sustainability index", fmt.Sprintf("%.4f", res.Sustainability))
	pdf.Ln(4)

	if len(res.Corrected) > 0 {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.MultiCell(0, 5, "Estimated from 28-day strength: "+strings.Join(res.Corrected, ", "), "", "L", false)
		pdf.Ln(2)
	}
	if in.Notes != "" {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, in.Notes, "", "L", false)
		pdf.Ln(2)
	}

	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, disclaimer, "", "L", false)
	return pdf.Output(w)
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
}

func row(pdf *gofpdf.Fpdf, label, value string) {
	pdf.CellFormat(110, 6, label, "1", 0, "L", false, 0, "")
	pdf.CellFormat(50, 6, value, "1", 1, "R", false, 0, "")
}

func formatValue(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
