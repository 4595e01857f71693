package feasibility

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"gpu-fitcheck/internal/estimate"
	"gpu-fitcheck/internal/gpuinfo"
	"gpu-fitcheck/internal/model"
)

var (
	ErrNoGPU           = errors.New("no gpu reported")
	ErrMissingProperty = errors.New("gpu record lacks usable memory.total")
)

const (
	VerdictFits   = "model can run"
	VerdictTooBig = "Model too large, lower batch size, or change input data size"
	mbPerGB       = 1024.0
)

type Verdict struct {
	Fits     bool
	ModelGB  float64
	GPUGB    float64
	GPU      gpuinfo.Record
	Estimate estimate.Result

	// MaxBatch is the largest batch that fits the GPU, see estimate.MaxBatchSize.
	MaxBatch int
}

type Checker struct {
	Provider  gpuinfo.Provider
	Estimator *estimate.Estimator
	Out       io.Writer
	Logger    zerolog.Logger

	// GPUIndex picks the record to compare against; 0 is the first GPU.
	GPUIndex int
}

// Check compares the model estimate at batchSize against the selected GPU's
// total memory. Equal sizes fit.
func (c *Checker) Check(ctx context.Context, batchSize int, m model.Model) (Verdict, error) {
	records, err := c.Provider.Query(ctx)
	if err != nil {
		return Verdict{}, fmt.Errorf("query %s: %w", c.Provider.Name(), err)
	}
	if c.GPUIndex < 0 || c.GPUIndex >= len(records) {
		return Verdict{}, fmt.Errorf("%w: want index %d, %s reported %d", ErrNoGPU, c.GPUIndex, c.Provider.Name(), len(records))
	}
	gpu := records[c.GPUIndex]

	res, err := c.Estimator.Estimate(batchSize, m)
	if err != nil {
		return Verdict{}, err
	}
	fmt.Fprintln(c.Out, "model size GB :", res.TotalGB)

	totalMB, err := gpu.Float(gpuinfo.PropMemoryTotal)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrMissingProperty, err)
	}
	gpuGB := totalMB / mbPerGB
	fmt.Fprintln(c.Out, "GPU RAM GB:", gpuGB)

	v := Verdict{
		Fits:     res.TotalGB <= gpuGB,
		ModelGB:  res.TotalGB,
		GPUGB:    gpuGB,
		GPU:      gpu,
		Estimate: res,
		MaxBatch: estimate.MaxBatchSize(res, gpuGB),
	}
	if v.Fits {
		fmt.Fprintln(c.Out, VerdictFits)
	} else {
		fmt.Fprintln(c.Out, VerdictTooBig)
	}

	c.Logger.Info().
		Str("provider", c.Provider.Name()).
		Str("gpu", gpu[gpuinfo.PropName]).
		Float64("model_gb", v.ModelGB).
		Float64("gpu_gb", v.GPUGB).
		Bool("fits", v.Fits).
		Int("max_batch", v.MaxBatch).
		Msg("feasibility checked")

	return v, nil
}
