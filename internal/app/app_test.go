package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpu-fitcheck/internal/config"
	"gpu-fitcheck/internal/feasibility"
	"gpu-fitcheck/internal/gpuinfo"
	"gpu-fitcheck/internal/hostmem"
	nvmlwrap "gpu-fitcheck/internal/nvml"
	"gpu-fitcheck/internal/smi"
)

const cnn = `
name: cnn
layers:
  - name: input_1
    kind: InputLayer
    output_shape: [[null, 224, 224, 3]]
  - name: conv
    kind: Conv2D
    output_shape: [null, 224, 224, 64]
    trainable_params: 1792
`

func writeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cnn.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cnn), 0o644))
	return path
}

func newApp(cfg config.Config, out *bytes.Buffer, totalMB string) *App {
	return New(Options{
		Config:   cfg,
		Logger:   zerolog.Nop(),
		Out:      out,
		Provider: &gpuinfo.Static{Records: []gpuinfo.Record{{"index": "0", "name": "A100", "memory.total": totalMB}}},
	})
}

func TestProviderSelection(t *testing.T) {
	cfg := config.FromEnv()

	cfg.Provider = "nvidia-smi"
	cfg.Strict = true
	p := New(Options{Config: cfg, Logger: zerolog.Nop()}).provider
	require.IsType(t, &smi.Reader{}, p)
	assert.True(t, p.(*smi.Reader).Strict)

	cfg.Provider = "NVML"
	assert.IsType(t, &nvmlwrap.Client{}, New(Options{Config: cfg}).provider)

	cfg.Provider = "host"
	assert.IsType(t, &hostmem.Provider{}, New(Options{Config: cfg}).provider)
}

func TestCheck(t *testing.T) {
	cfg := config.Config{ModelPath: writeModel(t), BatchSize: 8, Output: config.OutputTable}

	var out bytes.Buffer
	v, err := newApp(cfg, &out, "40960").Check(context.Background())
	require.NoError(t, err)
	assert.True(t, v.Fits)
	assert.Contains(t, out.String(), feasibility.VerdictFits)
	assert.Contains(t, out.String(), "conv")
	assert.Contains(t, out.String(), "FITS")

	out.Reset()
	v, err = newApp(cfg, &out, "100").Check(context.Background())
	require.NoError(t, err)
	assert.False(t, v.Fits)
	assert.Contains(t, out.String(), feasibility.VerdictTooBig)
}

func TestCheckWithoutModel(t *testing.T) {
	var out bytes.Buffer
	_, err := newApp(config.Config{BatchSize: 1}, &out, "1024").Check(context.Background())
	assert.ErrorIs(t, err, ErrNoModel)
}

func TestEstimate(t *testing.T) {
	var out bytes.Buffer
	res, err := newApp(config.Config{ModelPath: writeModel(t), BatchSize: 2}, &out, "0").Estimate()
	require.NoError(t, err)

	// (224*224*3 + 224*224*64) floats per sample
	assert.Equal(t, int64(224*224*3), res.Layers[0].Elements)
	assert.Equal(t, int64(224*224*64), res.Layers[1].Elements)
	assert.Contains(t, out.String(), "Minimum memory required")
}

func TestGPUs(t *testing.T) {
	var out bytes.Buffer
	cfg := config.Config{Properties: []string{"index", "name", "memory.total"}}
	recs, err := newApp(cfg, &out, "40960").GPUs(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Contains(t, out.String(), "A100")
	assert.Contains(t, out.String(), "40960")
}
