package batch

import (
	"errors"
	"fmt"

	"SmartMix/internal/calc/predict"
	"SmartMix/internal/mix"
)

// MaxItems bounds a single batch request.
const MaxItems = 500

var ErrEmpty = errors.New("no items")

type Input struct {
	Items []mix.Design `json:"items" validate:"required,min=1,max=500,dive"`
}

type Output struct {
	Count   int              `json:"count"`
	Results []predict.Result `json:"results"`
}

// ItemError reports the position of the first failing design.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Predict runs every design through p in order and stops at the first failure.
func Predict(p *predict.Pipeline, items []mix.Design) (Output, error) {
	if len(items) == 0 {
		return Output{}, ErrEmpty
	}
	out := Output{Results: make([]predict.Result, 0, len(items))}
	for i, item := range items {
		res, err := p.Predict(item)
		if err != nil {
			return Output{}, &ItemError{Index: i, Err: err}
		}
		out.Results = append(out.Results, res)
	}
	out.Count = len(out.Results)
	return out, nil
}
