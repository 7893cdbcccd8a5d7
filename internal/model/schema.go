package model

import "fmt"

// MinOutputs is the shortest output vector the default schema accepts.
const MinOutputs = 17

// Schema names the positions of the model's output vector.
type Schema struct {
	SevenDay        int `yaml:"seven_day"`
	TwentyEightDay  int `yaml:"twenty_eight_day"`
	NinetyDay       int `yaml:"ninety_day"`
	SplitTensile    int `yaml:"split_tensile"`
	Flexural        int `yaml:"flexural"`
	ElasticModulus  int `yaml:"elastic_modulus"`
	WaterAbsorption int `yaml:"water_absorption"`
	UPV             int `yaml:"upv"`
	Shrinkage       int `yaml:"shrinkage"`
	Carbonation     int `yaml:"carbonation"`
	CO2             int `yaml:"co2"`
	Cost            int `yaml:"cost"`
	Sustainability  int `yaml:"sustainability"`
}

// DefaultSchema is the output layout the model was trained with.
func DefaultSchema() Schema {
	return Schema{
		SevenDay:        0,
		TwentyEightDay:  1,
		NinetyDay:       2,
		SplitTensile:    3,
		Flexural:        4,
		ElasticModulus:  5,
		WaterAbsorption: 6,
		UPV:             7,
		Shrinkage:       8,
		Carbonation:     9,
		CO2:             11,
		Cost:            13,
		Sustainability:  16,
	}
}

// Field is one named output position.
type Field struct {
	Name  string
	Index int
}

// Fields lists the mapping in a stable order.
func (s Schema) Fields() []Field {
	return []Field{
		{"seven_day", s.SevenDay},
		{"twenty_eight_day", s.TwentyEightDay},
		{"ninety_day", s.NinetyDay},
		{"split_tensile", s.SplitTensile},
		{"flexural", s.Flexural},
		{"elastic_modulus", s.ElasticModulus},
		{"water_absorption", s.WaterAbsorption},
		{"upv", s.UPV},
		{"shrinkage", s.Shrinkage},
		{"carbonation", s.Carbonation},
		{"co2", s.CO2},
		{"cost", s.Cost},
		{"sustainability", s.Sustainability},
	}
}

// Validate checks the mapping against the model's declared output count.
func (s Schema) Validate(outputs int) error {
	seen := make(map[int]string)
	for _, f := range s.Fields() {
		if f.Index < 0 {
			return fmt.Errorf("%w: %s mapped to negative index %d", ErrOutputShape, f.Name, f.Index)
		}
		if f.Index >= outputs {
			return fmt.Errorf("%w: %s mapped to index %d, model has %d outputs", ErrOutputShape, f.Name, f.Index, outputs)
		}
		if other, dup := seen[f.Index]; dup {
			return fmt.Errorf("%w: %s and %s share index %d", ErrOutputShape, other, f.Name, f.Index)
		}
		seen[f.Index] = f.Name
	}
	return nil
}
