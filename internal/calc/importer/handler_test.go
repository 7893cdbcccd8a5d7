package importer

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xuri/excelize/v2"

	"SmartMix/internal/calc/predict"
	"SmartMix/internal/mix"
	"SmartMix/internal/model"
)

type fixedModel struct{}

func (fixedModel) Predict([]float64) ([]float64, error) {
	out := make([]float64, model.MinOutputs)
	out[0], out[1], out[2] = 30, 42, 50
	out[3], out[5], out[6], out[7] = 3.5, 31, 3.2, 4500
	return out, nil
}
func (fixedModel) Outputs() int { return model.MinOutputs }
func (fixedModel) Close() error { return nil }

func pipeline() *predict.Pipeline {
	sc := &model.Scaler{Mean: make([]float64, mix.FeatureCount), Scale: make([]float64, mix.FeatureCount)}
	for i := range sc.Scale {
		sc.Scale[i] = 1
	}
	return predict.NewPipeline(&model.Assets{Scaler: sc, Model: fixedModel{}, Schema: model.DefaultSchema()}, predict.DefaultFallbacks())
}

func workbook(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	header := make([]any, mix.FeatureCount)
	for i, name := range mix.FeatureNames {
		header[i] = name
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		t.Fatalf("header: %v", err)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func upload(t *testing.T, h *Handler, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if content != nil {
		part, err := mw.CreateFormFile("file", "mixes.xlsx")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		part.Write(content)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/user/tools/predict/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.Import(rec, req)
	return rec
}

func defaultRow() []any {
	out := make([]any, mix.FeatureCount)
	for i, v := range mix.Default().Vector() {
		out[i] = v
	}
	return out
}

func TestImportSkipsBadRows(t *testing.T) {
	short := []any{350, 160}
	text := defaultRow()
	text[0] = "lots"
	outOfRange := defaultRow()
	outOfRange[0] = 5000

	rec := upload(t, &Handler{Pipeline: pipeline()}, workbook(t, defaultRow(), short, text, outOfRange, defaultRow()))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res ImportResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Count != 2 || res.Skipped != 3 || len(res.Results) != 2 {
		t.Fatalf("unexpected import result: count=%d skipped=%d", res.Count, res.Skipped)
	}
	if res.Results[0].Input != mix.Default() || res.Results[0].TwentyEightDay != 42 {
		t.Fatalf("unexpected first result: %+v", res.Results[0])
	}
}

func TestImportRejects(t *testing.T) {
	h := &Handler{Pipeline: pipeline()}
	if rec := upload(t, h, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing file: expected 400, got %d", rec.Code)
	}
	if rec := upload(t, h, []byte("not a workbook")); rec.Code != http.StatusBadRequest {
		t.Errorf("garbage file: expected 400, got %d", rec.Code)
	}
	if rec := upload(t, h, workbook(t)); rec.Code != http.StatusBadRequest {
		t.Errorf("header only: expected 400, got %d", rec.Code)
	}
}

func TestImportWithoutModel(t *testing.T) {
	rec := upload(t, &Handler{}, workbook(t, defaultRow()))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
