package predict

import (
	"errors"
	"math"
	"testing"

	"SmartMix/internal/mix"
	"SmartMix/internal/model"
)

// stubModel returns out for every call and remembers the features it saw.
type stubModel struct {
	out  []float64
	seen []float64
}

func (s *stubModel) Predict(features []float64) ([]float64, error) {
	s.seen = append([]float64(nil), features...)
	return append([]float64(nil), s.out...), nil
}
func (s *stubModel) Outputs() int { return len(s.out) }
func (s *stubModel) Close() error { return nil }

func identityScaler() *model.Scaler {
	sc := &model.Scaler{Mean: make([]float64, mix.FeatureCount), Scale: make([]float64, mix.FeatureCount)}
	for i := range sc.Scale {
		sc.Scale[i] = 1
	}
	return sc
}

// plausible is a raw output where nothing needs correcting.
func plausible() []float64 {
	out := make([]float64, model.MinOutputs)
	out[0] = 30    // 7d
	out[1] = 42    // 28d
	out[2] = 50    // 90d
	out[3] = 3.5   // split tensile
	out[5] = 31    // elastic modulus
	out[6] = 3.2   // absorption
	out[7] = 4500  // upv
	out[11] = 320  // co2
	out[13] = 85.5 // cost
	out[16] = 0.0131
	return out
}

func newPipeline(out []float64, fb Fallbacks) (*Pipeline, *stubModel) {
	m := &stubModel{out: out}
	return NewPipeline(&model.Assets{Scaler: identityScaler(), Model: m, Schema: model.DefaultSchema()}, fb), m
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPredictPassThrough(t *testing.T) {
	p, _ := newPipeline(plausible(), DefaultFallbacks())
	res, err := p.Predict(mix.Default())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(res.Corrected) != 0 {
		t.Fatalf("expected no corrections, got %v", res.Corrected)
	}
	raw := plausible()
	checks := map[string][2]float64{
		"7d":  {res.SevenDay, raw[0]},
		"28d": {res.TwentyEightDay, raw[1]},
		"90d": {res.NinetyDay, raw[2]},
		"sts": {res.SplitTensile, raw[3]},
		"em":  {res.ElasticModulus, raw[5]},
		"abs": {res.WaterAbsorption, raw[6]},
		"upv": {res.UPV, raw[7]},
		"co2": {res.CO2, raw[11]},
		"cst": {res.Cost, raw[13]},
		"sus": {res.Sustainability, raw[16]},
	}
	for name, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s: got %v want %v", name, c[0], c[1])
		}
	}
}

func TestPredictFallbacks(t *testing.T) {
	raw := make([]float64, model.MinOutputs)
	raw[1] = 40
	raw[11], raw[13], raw[16] = 300, 70, 0.02

	p, _ := newPipeline(raw, DefaultFallbacks())
	res, err := p.Predict(mix.Default())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	root := math.Sqrt(40)
	if !near(res.SevenDay, 0.72*40) {
		t.Errorf("7d: got %v", res.SevenDay)
	}
	if !near(res.NinetyDay, 1.15*40) {
		t.Errorf("90d: got %v", res.NinetyDay)
	}
	if !near(res.SplitTensile, 0.55*root) {
		t.Errorf("split tensile: got %v", res.SplitTensile)
	}
	if !near(res.ElasticModulus, 4.7*root) {
		t.Errorf("elastic modulus: got %v", res.ElasticModulus)
	}
	if res.UPV != 4200 {
		t.Errorf("upv: got %v", res.UPV)
	}
	if res.WaterAbsorption != 4.5 {
		t.Errorf("absorption: got %v", res.WaterAbsorption)
	}
	if res.CO2 != 300 || res.Cost != 70 || res.Sustainability != 0.02 {
		t.Errorf("pass-through outputs changed: %+v", res)
	}

	want := []string{"seven_day", "ninety_day", "split_tensile", "elastic_modulus", "upv", "water_absorption"}
	if len(res.Corrected) != len(want) {
		t.Fatalf("corrected: got %v want %v", res.Corrected, want)
	}
	for i := range want {
		if res.Corrected[i] != want[i] {
			t.Fatalf("corrected: got %v want %v", res.Corrected, want)
		}
	}

	if res.Vector[0] != res.SevenDay || res.Vector[7] != 4200 || res.Vector[1] != 40 {
		t.Fatalf("corrected vector not written back: %v", res.Vector)
	}
	if len(res.Vector) != model.MinOutputs {
		t.Fatalf("vector length changed: %d", len(res.Vector))
	}
}

func TestFloorsAreStrict(t *testing.T) {
	raw := plausible()
	raw[0] = 5    // exactly at the floor
	raw[2] = 42   // equal to S28
	raw[7] = 1000 // exactly at the floor

	p, _ := newPipeline(raw, DefaultFallbacks())
	res, _ := p.Predict(mix.Default())
	if !near(res.SevenDay, 0.72*42) {
		t.Errorf("7d at floor should fall back, got %v", res.SevenDay)
	}
	if !near(res.NinetyDay, 1.15*42) {
		t.Errorf("90d equal to S28 should fall back, got %v", res.NinetyDay)
	}
	if res.UPV != 4200 {
		t.Errorf("upv at floor should fall back, got %v", res.UPV)
	}
}

func TestLinearUPVFallback(t *testing.T) {
	raw := plausible()
	raw[7] = 0

	fb := DefaultFallbacks()
	fb.UPVIntercept, fb.UPVSlope = 3500, 20
	p, _ := newPipeline(raw, fb)
	res, _ := p.Predict(mix.Default())
	if !near(res.UPV, 3500+20*42) {
		t.Fatalf("linear upv: got %v", res.UPV)
	}
}

func TestPredictDeterministic(t *testing.T) {
	raw := plausible()
	raw[0], raw[3] = 0, 0
	p, _ := newPipeline(raw, DefaultFallbacks())

	a, _ := p.Predict(mix.Default())
	b, _ := p.Predict(mix.Default())
	if a.SevenDay != b.SevenDay || a.SplitTensile != b.SplitTensile || len(a.Corrected) != len(b.Corrected) {
		t.Fatalf("results differ: %+v vs %+v", a, b)
	}
	for i := range a.Vector {
		if a.Vector[i] != b.Vector[i] {
			t.Fatalf("vector differs at %d", i)
		}
	}
}

func TestNinetyDayNotBelowAnchor(t *testing.T) {
	for _, s28 := range []float64{5, 20, 42, 80} {
		for _, r90 := range []float64{0, s28 / 2, s28, s28 + 1} {
			raw := plausible()
			raw[1], raw[2] = s28, r90
			p, _ := newPipeline(raw, DefaultFallbacks())
			res, _ := p.Predict(mix.Default())
			if res.NinetyDay < res.TwentyEightDay {
				t.Fatalf("s28=%v raw90=%v: 90d %v below 28d", s28, r90, res.NinetyDay)
			}
		}
	}
}

func TestSqrtFallbacksMonotonic(t *testing.T) {
	prevSTS, prevEM := -1.0, -1.0
	for _, s28 := range []float64{0, 10, 20, 35, 50, 80} {
		raw := make([]float64, model.MinOutputs)
		raw[1] = s28
		p, _ := newPipeline(raw, DefaultFallbacks())
		res, _ := p.Predict(mix.Default())
		if res.SplitTensile < prevSTS || res.ElasticModulus < prevEM {
			t.Fatalf("s28=%v: fallbacks decreased (%v, %v)", s28, res.SplitTensile, res.ElasticModulus)
		}
		prevSTS, prevEM = res.SplitTensile, res.ElasticModulus
	}
}

func TestNegativeAnchorDoesNotProduceNaN(t *testing.T) {
	raw := make([]float64, model.MinOutputs)
	raw[1] = -3
	p, _ := newPipeline(raw, DefaultFallbacks())
	res, _ := p.Predict(mix.Default())
	if math.IsNaN(res.SplitTensile) || math.IsNaN(res.ElasticModulus) {
		t.Fatalf("NaN in fallback: %+v", res)
	}
}

func TestScalerApplied(t *testing.T) {
	m := &stubModel{out: plausible()}
	sc := identityScaler()
	sc.Mean[0], sc.Scale[0] = 300, 50
	p := NewPipeline(&model.Assets{Scaler: sc, Model: m, Schema: model.DefaultSchema()}, DefaultFallbacks())

	if _, err := p.Predict(mix.Default()); err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if m.seen[0] != 1 { // (350-300)/50
		t.Fatalf("model saw unscaled cement: %v", m.seen[0])
	}
	if m.seen[1] != 160 {
		t.Fatalf("identity feature changed: %v", m.seen[1])
	}
}

func TestPredictErrors(t *testing.T) {
	p, _ := newPipeline(plausible(), DefaultFallbacks())
	if _, err := p.PredictVector(make([]float64, 10)); !errors.Is(err, mix.ErrInputShape) {
		t.Fatalf("expected ErrInputShape, got %v", err)
	}

	var nilPipeline *Pipeline
	if _, err := nilPipeline.Predict(mix.Default()); !errors.Is(err, model.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if _, err := NewPipeline(nil, DefaultFallbacks()).Predict(mix.Default()); !errors.Is(err, model.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable for missing assets, got %v", err)
	}

	short, _ := newPipeline(make([]float64, 5), DefaultFallbacks())
	if _, err := short.Predict(mix.Default()); !errors.Is(err, model.ErrOutputShape) {
		t.Fatalf("expected ErrOutputShape, got %v", err)
	}
}

func TestDefaultMixScenario(t *testing.T) {
	raw := plausible()
	raw[0] = 4.2
	p, _ := newPipeline(raw, DefaultFallbacks())

	res, err := p.Predict(mix.Design{
		Cement: 350, Water: 160, NCA: 1100, NFA: 700, WCRatio: 0.45, Superplasticizer: 2.0,
	})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if res.TwentyEightDay != raw[1] {
		t.Fatalf("28d should pass through: got %v want %v", res.TwentyEightDay, raw[1])
	}
	if !near(res.SevenDay, 0.72*raw[1]) {
		t.Fatalf("7d should be 0.72*S28: got %v", res.SevenDay)
	}
}

func TestRecordAndProfile(t *testing.T) {
	p, _ := newPipeline(plausible(), DefaultFallbacks())
	res, _ := p.Predict(mix.Default())

	rec := res.Record()
	if rec["cement"] != "350" || rec["wc_ratio"] != "0.45" {
		t.Fatalf("inputs not flattened: %v", rec)
	}
	if rec["cs_28d"] != "42" || rec["sustainability"] != "0.0131" {
		t.Fatalf("outputs not flattened: %v", rec)
	}

	prof := res.StrengthProfile()
	if len(prof) != 3 || prof[0].AgeDays != 7 || prof[2].Strength != res.NinetyDay {
		t.Fatalf("unexpected profile: %+v", prof)
	}
}
