package recommend

import (
	"errors"
	"math"
	"sort"

	"SmartMix/internal/dataset"
)

const (
	DefaultTolerance = 2.5
	DefaultK         = 5
)

// ErrNoMatch means no recorded mix lies inside the strength band.
var ErrNoMatch = errors.New("no matching mix")

// Recommend returns up to k rows whose 28-day strength lies in
// [target-tolerance, target+tolerance], most sustainable first. Rows with
// equal sustainability keep their dataset order. An empty result is valid.
func Recommend(ds *dataset.Dataset, target, tolerance float64, k int) []dataset.Row {
	if k <= 0 {
		k = DefaultK
	}
	if tolerance < 0 {
		tolerance = 0
	}
	lo, hi := target-tolerance, target+tolerance

	matches := make([]dataset.Row, 0)
	ds.Each(func(_ int, r dataset.Row) {
		if r.CS28 >= lo && r.CS28 <= hi {
			matches = append(matches, r)
		}
	})

	sort.SliceStable(matches, func(i, j int) bool {
		return moreSustainable(matches[i].Sustainability, matches[j].Sustainability)
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// moreSustainable orders descending with NaN last.
func moreSustainable(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	return math.IsNaN(b) || a > b
}

// Best returns the single most sustainable row in the band.
func Best(ds *dataset.Dataset, target, tolerance float64) (dataset.Row, error) {
	rows := Recommend(ds, target, tolerance, 1)
	if len(rows) == 0 {
		return dataset.Row{}, ErrNoMatch
	}
	return rows[0], nil
}
