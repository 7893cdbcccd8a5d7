package model

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"SmartMix/internal/mix"
)

// OrtRegressor runs an ONNX export of the model through onnxruntime.
// Tensors are allocated once, so Predict calls are serialised.
type OrtRegressor struct {
	mu       sync.Mutex
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	output   *ort.Tensor[float32]
	features int
	outputs  int
}

var _ Regressor = (*OrtRegressor)(nil)

// NewOrtRegressor opens modelPath. libPath points at the onnxruntime shared
// library; empty means the platform default search path.
func NewOrtRegressor(modelPath, libPath string) (*OrtRegressor, error) {
	if !ort.IsInitialized() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("init onnxruntime: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect onnx model: %w", err)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, fmt.Errorf("onnx model has %d inputs, %d outputs; want 1 input", len(inputs), len(outputs))
	}
	nIn := lastDim(inputs[0].Dimensions)
	nOut := lastDim(outputs[0].Dimensions)
	if nIn <= 0 || nOut <= 0 {
		return nil, fmt.Errorf("onnx model has dynamic feature/output dims %v -> %v", inputs[0].Dimensions, outputs[0].Dimensions)
	}

	in, err := ort.NewTensor(ort.NewShape(1, nIn), make([]float32, nIn))
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, nOut))
	if err != nil {
		in.Destroy()
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(modelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.Value{in}, []ort.Value{out}, nil)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("onnx session: %w", err)
	}

	return &OrtRegressor{
		session:  session,
		input:    in,
		output:   out,
		features: int(nIn),
		outputs:  int(nOut),
	}, nil
}

func lastDim(s ort.Shape) int64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

// Outputs is the length of every prediction vector.
func (o *OrtRegressor) Outputs() int {
	return o.outputs
}

// Predict runs one inference on a single scaled feature row.
func (o *OrtRegressor) Predict(features []float64) ([]float64, error) {
	if len(features) != o.features {
		return nil, fmt.Errorf("%w: got %d features, model expects %d", mix.ErrInputShape, len(features), o.features)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil, ErrModelUnavailable
	}

	data := o.input.GetData()
	for i, v := range features {
		data[i] = float32(v)
	}
	if err := o.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	raw := o.output.GetData()
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out, nil
}

// Close releases the session and tensors.
func (o *OrtRegressor) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	err := o.session.Destroy()
	o.input.Destroy()
	o.output.Destroy()
	o.session = nil
	return err
}
