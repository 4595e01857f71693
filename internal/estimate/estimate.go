package estimate

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"gpu-fitcheck/internal/model"
)

const (
	// FloatBytes assumes every activation and weight is float32.
	FloatBytes = 4.0
	bytesPerMB = 1024 * 1024
	mbPerGB    = 1024.0
)

var ErrInvalidBatchSize = errors.New("batch size must not be negative")

type LayerFootprint struct {
	Name     string
	Kind     string
	Shape    model.Shape
	Elements int64
	MB       float64
}

type Result struct {
	Model     string
	BatchSize int
	Layers    []LayerFootprint

	// ActivationMB is the per-sample activation footprint.
	ActivationMB float64
	ParameterMB  float64
	Parameters   int64
	TotalMB      float64
	TotalGB      float64
}

// BatchActivationMB is the activation footprint for the whole batch.
func (r Result) BatchActivationMB() float64 {
	return float64(r.BatchSize) * r.ActivationMB
}

type Estimator struct {
	Logger zerolog.Logger
}

func New(logger zerolog.Logger) *Estimator {
	return &Estimator{Logger: logger}
}

// Estimate sums activation and parameter memory for one forward pass.
func (e *Estimator) Estimate(batchSize int, m model.Model) (Result, error) {
	if batchSize < 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidBatchSize, batchSize)
	}

	res := Result{Model: m.Name(), BatchSize: batchSize}
	for i, layer := range m.Layers() {
		shape, err := model.Primary(layer.Output)
		if err != nil {
			return Result{}, fmt.Errorf("layer %d (%s): %w", i, layer.Name, err)
		}
		elems, err := shape.PerSample()
		if err != nil {
			return Result{}, fmt.Errorf("layer %d (%s) shape %s: %w", i, layer.Name, shape, err)
		}
		mb := float64(elems) * FloatBytes / bytesPerMB
		res.Layers = append(res.Layers, LayerFootprint{
			Name:     layer.Name,
			Kind:     layer.Kind,
			Shape:    shape,
			Elements: elems,
			MB:       mb,
		})
		res.ActivationMB += mb

		e.Logger.Debug().
			Str("layer", layer.Name).
			Str("shape", shape.String()).
			Float64("mb", mb).
			Msg("layer activation memory")
	}

	res.Parameters = m.TrainableParams() + m.NonTrainableParams()
	res.ParameterMB = float64(res.Parameters) * FloatBytes / bytesPerMB
	res.TotalMB = float64(batchSize)*res.ActivationMB + res.ParameterMB
	res.TotalGB = res.TotalMB / mbPerGB

	e.Logger.Info().
		Str("model", res.Model).
		Int("batch_size", batchSize).
		Float64("features_mb", res.BatchActivationMB()).
		Float64("parameters_mb", res.ParameterMB).
		Float64("total_gb", res.TotalGB).
		Msg("model memory estimated")

	return res, nil
}

// GB returns only the total estimate in gigabytes.
func (e *Estimator) GB(batchSize int, m model.Model) (float64, error) {
	res, err := e.Estimate(batchSize, m)
	if err != nil {
		return 0, err
	}
	return res.TotalGB, nil
}

// MaxBatchSize is the largest batch whose estimate still fits in
// availableGB. It returns -1 when the parameters alone do not fit and
// math.MaxInt when the model has no activation memory.
func MaxBatchSize(res Result, availableGB float64) int {
	availableMB := availableGB * mbPerGB
	if res.ParameterMB > availableMB {
		return -1
	}
	if res.ActivationMB == 0 {
		return math.MaxInt
	}
	n := math.Floor((availableMB - res.ParameterMB) / res.ActivationMB)
	if n >= math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}
