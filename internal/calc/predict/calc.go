package predict

import (
	"fmt"
	"math"
	"strconv"

	"SmartMix/internal/mix"
	"SmartMix/internal/model"
)

// Fallbacks are the closed-form estimates used when a model output is
// implausible. Every estimate is anchored on the 28-day strength S28.
type Fallbacks struct {
	SevenDayFloor       float64 `yaml:"seven_day_floor"`
	SevenDayRatio       float64 `yaml:"seven_day_ratio"`
	NinetyDayRatio      float64 `yaml:"ninety_day_ratio"`
	SplitTensileFloor   float64 `yaml:"split_tensile_floor"`
	SplitTensileCoeff   float64 `yaml:"split_tensile_coeff"`
	ElasticModulusFloor float64 `yaml:"elastic_modulus_floor"`
	ElasticModulusCoeff float64 `yaml:"elastic_modulus_coeff"`
	UPVFloor            float64 `yaml:"upv_floor"`
	UPVConstant         float64 `yaml:"upv_constant"`
	// UPVIntercept + UPVSlope*S28 replaces UPVConstant when UPVSlope is non-zero.
	UPVIntercept       float64 `yaml:"upv_intercept"`
	UPVSlope           float64 `yaml:"upv_slope"`
	AbsorptionFloor    float64 `yaml:"absorption_floor"`
	AbsorptionConstant float64 `yaml:"absorption_constant"`
}

// DefaultFallbacks returns the calibrated constants.
func DefaultFallbacks() Fallbacks {
	return Fallbacks{
		SevenDayFloor:       5,
		SevenDayRatio:       0.72,
		NinetyDayRatio:      1.15,
		SplitTensileFloor:   1,
		SplitTensileCoeff:   0.55,
		ElasticModulusFloor: 5,
		ElasticModulusCoeff: 4.7,
		UPVFloor:            1000,
		UPVConstant:         4200,
		AbsorptionFloor:     0.1,
		AbsorptionConstant:  4.5,
	}
}

func (f Fallbacks) upv(s28 float64) float64 {
	if f.UPVSlope != 0 {
		return f.UPVIntercept + f.UPVSlope*s28
	}
	return f.UPVConstant
}

// Result is the corrected prediction for one mix.
type Result struct {
	Input           mix.Design `json:"input"`
	SevenDay        float64    `json:"cs_7d"`
	TwentyEightDay  float64    `json:"cs_28d"`
	NinetyDay       float64    `json:"cs_90d"`
	SplitTensile    float64    `json:"split_tensile"`
	ElasticModulus  float64    `json:"elastic_modulus"`
	WaterAbsorption float64    `json:"water_absorption"`
	UPV             float64    `json:"upv"`
	CO2             float64    `json:"co2"`
	Cost            float64    `json:"cost"`
	Sustainability  float64    `json:"sustainability"`
	// Corrected names the outputs replaced by a fallback estimate.
	Corrected []string `json:"corrected"`
	// Vector is the model output with the corrected values written back.
	Vector []float64 `json:"vector"`
}

// Point is one (age, strength) sample of the strength-gain curve.
type Point struct {
	AgeDays  int     `json:"age_days"`
	Strength float64 `json:"strength_mpa"`
}

// StrengthProfile returns the 7/28/90-day strengths.
func (r Result) StrengthProfile() []Point {
	return []Point{
		{AgeDays: 7, Strength: r.SevenDay},
		{AgeDays: 28, Strength: r.TwentyEightDay},
		{AgeDays: 90, Strength: r.NinetyDay},
	}
}

// Record flattens inputs and outputs into string key/value pairs.
func (r Result) Record() map[string]string {
	rec := make(map[string]string, mix.FeatureCount+10)
	for i, v := range r.Input.Vector() {
		rec[mix.FeatureNames[i]] = formatFloat(v)
	}
	rec["cs_7d"] = formatFloat(r.SevenDay)
	rec["cs_28d"] = formatFloat(r.TwentyEightDay)
	rec["cs_90d"] = formatFloat(r.NinetyDay)
	rec["split_tensile"] = formatFloat(r.SplitTensile)
	rec["elastic_modulus"] = formatFloat(r.ElasticModulus)
	rec["water_absorption"] = formatFloat(r.WaterAbsorption)
	rec["upv"] = formatFloat(r.UPV)
	rec["co2"] = formatFloat(r.CO2)
	rec["cost"] = formatFloat(r.Cost)
	rec["sustainability"] = formatFloat(r.Sustainability)
	return rec
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Pipeline scales a mix, runs the model and corrects implausible outputs.
// It holds only read-only assets and is safe for concurrent use.
type Pipeline struct {
	scaler    *model.Scaler
	model     model.Regressor
	schema    model.Schema
	fallbacks Fallbacks
}

// NewPipeline binds loaded assets to a fallback table.
func NewPipeline(assets *model.Assets, fb Fallbacks) *Pipeline {
	if assets == nil {
		return &Pipeline{fallbacks: fb}
	}
	return &Pipeline{
		scaler:    assets.Scaler,
		model:     assets.Model,
		schema:    assets.Schema,
		fallbacks: fb,
	}
}

// Predict runs one mix through the pipeline.
func (p *Pipeline) Predict(d mix.Design) (Result, error) {
	return p.PredictVector(d.Vector())
}

// PredictVector is Predict for a raw feature vector in mix.FeatureNames order.
func (p *Pipeline) PredictVector(x []float64) (Result, error) {
	if p == nil || p.scaler == nil || p.model == nil {
		return Result{}, model.ErrModelUnavailable
	}
	design, err := mix.FromVector(x)
	if err != nil {
		return Result{}, err
	}
	scaled, err := p.scaler.Transform(x)
	if err != nil {
		return Result{}, err
	}
	raw, err := p.model.Predict(scaled)
	if err != nil {
		return Result{}, fmt.Errorf("model predict: %w", err)
	}
	if err := p.schema.Validate(len(raw)); err != nil {
		return Result{}, err
	}
	return p.correct(design, raw), nil
}

func (p *Pipeline) correct(design mix.Design, raw []float64) Result {
	s, fb := p.schema, p.fallbacks
	s28 := raw[s.TwentyEightDay]
	root := math.Sqrt(math.Max(s28, 0))

	vec := make([]float64, len(raw))
	copy(vec, raw)
	var corrected []string

	pick := func(name string, idx int, ok bool, estimate float64) float64 {
		if ok {
			return raw[idx]
		}
		vec[idx] = estimate
		corrected = append(corrected, name)
		return estimate
	}

	res := Result{
		Input:           design,
		TwentyEightDay:  s28,
		SevenDay:        pick("seven_day", s.SevenDay, raw[s.SevenDay] > fb.SevenDayFloor, fb.SevenDayRatio*s28),
		NinetyDay:       pick("ninety_day", s.NinetyDay, raw[s.NinetyDay] > s28, fb.NinetyDayRatio*s28),
		SplitTensile:    pick("split_tensile", s.SplitTensile, raw[s.SplitTensile] > fb.SplitTensileFloor, fb.SplitTensileCoeff*root),
		ElasticModulus:  pick("elastic_modulus", s.ElasticModulus, raw[s.ElasticModulus] > fb.ElasticModulusFloor, fb.ElasticModulusCoeff*root),
		UPV:             pick("upv", s.UPV, raw[s.UPV] > fb.UPVFloor, fb.upv(s28)),
		WaterAbsorption: pick("water_absorption", s.WaterAbsorption, raw[s.WaterAbsorption] > fb.AbsorptionFloor, fb.AbsorptionConstant),
		CO2:             raw[s.CO2],
		Cost:            raw[s.Cost],
		Sustainability:  raw[s.Sustainability],
	}
	res.Corrected = corrected
	if res.Corrected == nil {
		res.Corrected = []string{}
	}
	res.Vector = vec
	return res
}
