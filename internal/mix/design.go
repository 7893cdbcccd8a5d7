package mix

import (
	"errors"
	"fmt"
)

// FeatureCount is the number of inputs the scaler and model were fitted on.
const FeatureCount = 11

// ErrInputShape is returned when a feature vector does not have FeatureCount entries.
var ErrInputShape = errors.New("input shape mismatch")

// FeatureNames lists the model inputs in the order the scaler was fitted on.
var FeatureNames = [FeatureCount]string{
	"cement",
	"water",
	"nca",
	"nfa",
	"rca_pct",
	"mrca_pct",
	"silica_fume",
	"fly_ash",
	"fiber",
	"wc_ratio",
	"superplasticizer",
}

// Design is one concrete formulation. Quantities are kg/m³ unless noted.
type Design struct {
	Cement           float64 `json:"cement" validate:"gte=200,lte=600"`
	Water            float64 `json:"water" validate:"gte=100,lte=300"`
	NCA              float64 `json:"nca" validate:"gte=0,lte=1500"`
	NFA              float64 `json:"nfa" validate:"gte=0,lte=1200"`
	RCAPct           float64 `json:"rca_pct" validate:"gte=0,lte=100"`
	MRCAPct          float64 `json:"mrca_pct" validate:"gte=0,lte=100"`
	SilicaFume       float64 `json:"silica_fume" validate:"gte=0,lte=150"`
	FlyAsh           float64 `json:"fly_ash" validate:"gte=0,lte=250"`
	Fiber            float64 `json:"fiber" validate:"gte=0,lte=10"`
	WCRatio          float64 `json:"wc_ratio" validate:"gte=0.2,lte=0.8"`
	Superplasticizer float64 `json:"superplasticizer" validate:"gte=0,lte=20"`
}

// Default is the mix the input form starts from.
func Default() Design {
	return Design{
		Cement:           350,
		Water:            160,
		NCA:              1100,
		NFA:              700,
		WCRatio:          0.45,
		Superplasticizer: 2.0,
	}
}

// Vector returns the inputs in FeatureNames order.
func (d Design) Vector() []float64 {
	return []float64{
		d.Cement,
		d.Water,
		d.NCA,
		d.NFA,
		d.RCAPct,
		d.MRCAPct,
		d.SilicaFume,
		d.FlyAsh,
		d.Fiber,
		d.WCRatio,
		d.Superplasticizer,
	}
}

// FromVector is the inverse of Vector.
func FromVector(v []float64) (Design, error) {
	if len(v) != FeatureCount {
		return Design{}, fmt.Errorf("%w: got %d features, want %d", ErrInputShape, len(v), FeatureCount)
	}
	return Design{
		Cement:           v[0],
		Water:            v[1],
		NCA:              v[2],
		NFA:              v[3],
		RCAPct:           v[4],
		MRCAPct:          v[5],
		SilicaFume:       v[6],
		FlyAsh:           v[7],
		Fiber:            v[8],
		WCRatio:          v[9],
		Superplasticizer: v[10],
	}, nil
}
