package model

import (
	"encoding/json"
	"fmt"
	"os"

	"SmartMix/internal/mix"
)

// Node is one split or leaf of a regression tree. Left < 0 marks a leaf.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

// Tree is a flat node array rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Forest averages the leaf vectors of its trees.
type Forest struct {
	NFeatures int    `json:"n_features"`
	NOutputs  int    `json:"n_outputs"`
	Trees     []Tree `json:"trees"`
}

var _ Regressor = (*Forest)(nil)

// LoadForest reads a tree ensemble exported as JSON.
func LoadForest(path string) (*Forest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read forest: %w", err)
	}
	var f Forest
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode forest: %w", err)
	}
	if err := f.check(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Forest) check() error {
	if f.NFeatures <= 0 || f.NOutputs <= 0 {
		return fmt.Errorf("forest declares %d features, %d outputs", f.NFeatures, f.NOutputs)
	}
	if len(f.Trees) == 0 {
		return fmt.Errorf("forest has no trees")
	}
	for ti, tree := range f.Trees {
		n := len(tree.Nodes)
		if n == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, node := range tree.Nodes {
			if node.Left < 0 {
				if len(node.Value) != f.NOutputs {
					return fmt.Errorf("tree %d node %d: leaf has %d values, want %d", ti, ni, len(node.Value), f.NOutputs)
				}
				continue
			}
			// children must point forward, which also rules out cycles
			if node.Left <= ni || node.Left >= n || node.Right <= ni || node.Right >= n {
				return fmt.Errorf("tree %d node %d: child index out of range", ti, ni)
			}
			if node.Feature < 0 || node.Feature >= f.NFeatures {
				return fmt.Errorf("tree %d node %d: feature %d out of range", ti, ni, node.Feature)
			}
		}
	}
	return nil
}

// Outputs is the length of every prediction vector.
func (f *Forest) Outputs() int {
	return f.NOutputs
}

// Predict walks every tree (x <= threshold goes left) and averages the leaves.
func (f *Forest) Predict(features []float64) ([]float64, error) {
	if len(features) != f.NFeatures {
		return nil, fmt.Errorf("%w: got %d features, model expects %d", mix.ErrInputShape, len(features), f.NFeatures)
	}
	out := make([]float64, f.NOutputs)
	for _, tree := range f.Trees {
		i := 0
		for tree.Nodes[i].Left >= 0 {
			node := tree.Nodes[i]
			if features[node.Feature] <= node.Threshold {
				i = node.Left
			} else {
				i = node.Right
			}
		}
		for j, v := range tree.Nodes[i].Value {
			out[j] += v
		}
	}
	n := float64(len(f.Trees))
	for j := range out {
		out[j] /= n
	}
	return out, nil
}

// Close is a no-op; the forest holds no external resources.
func (f *Forest) Close() error {
	return nil
}
