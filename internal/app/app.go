package app

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"gpu-fitcheck/internal/config"
	"gpu-fitcheck/internal/estimate"
	"gpu-fitcheck/internal/feasibility"
	"gpu-fitcheck/internal/gpuinfo"
	"gpu-fitcheck/internal/hostmem"
	"gpu-fitcheck/internal/model"
	nvmlwrap "gpu-fitcheck/internal/nvml"
	"gpu-fitcheck/internal/report"
	"gpu-fitcheck/internal/smi"
)

var ErrNoModel = errors.New("no model descriptor given")

type Options struct {
	Config config.Config
	Logger zerolog.Logger
	Out    io.Writer

	// Provider overrides the one selected by Config.Provider.
	Provider gpuinfo.Provider
}

type App struct {
	cfg      config.Config
	log      zerolog.Logger
	out      io.Writer
	provider gpuinfo.Provider
	est      *estimate.Estimator
}

func New(opts Options) *App {
	provider := opts.Provider
	if provider == nil {
		provider = newProvider(opts.Config, opts.Logger)
	}
	return &App{
		cfg:      opts.Config,
		log:      opts.Logger,
		out:      opts.Out,
		provider: provider,
		est:      estimate.New(opts.Logger),
	}
}

func newProvider(cfg config.Config, logger zerolog.Logger) gpuinfo.Provider {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case config.ProviderNVML:
		return nvmlwrap.New(cfg.Properties)
	case config.ProviderHost:
		return hostmem.New()
	default:
		r := smi.New(cfg.SMIPath)
		if len(cfg.Properties) > 0 {
			r.Properties = cfg.Properties
		}
		r.NoHeader = cfg.NoHeader
		r.NoUnits = cfg.NoUnits
		r.Strict = cfg.Strict
		r.Logger = logger
		return r
	}
}

func (a *App) Close() error { return a.provider.Close() }

func (a *App) loadModel() (model.Model, error) {
	if strings.TrimSpace(a.cfg.ModelPath) == "" {
		return nil, ErrNoModel
	}
	m, err := model.Load(a.cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	a.log.Debug().Str("model", m.Name()).Int("layers", len(m.Layers())).Msg("model loaded")
	return m, nil
}

// Estimate prints the memory estimate of the configured model.
func (a *App) Estimate() (estimate.Result, error) {
	m, err := a.loadModel()
	if err != nil {
		return estimate.Result{}, err
	}
	res, err := a.est.Estimate(a.cfg.BatchSize, m)
	if err != nil {
		return estimate.Result{}, err
	}
	if err := report.Layers(a.out, res); err != nil {
		return estimate.Result{}, err
	}
	return res, nil
}

// GPUs prints the properties reported by the provider.
func (a *App) GPUs(ctx context.Context) ([]gpuinfo.Record, error) {
	a.log.Info().Str("provider", a.provider.Name()).Msg("gpu provider selected")
	recs, err := a.provider.Query(ctx)
	if err != nil {
		return nil, err
	}
	props := a.cfg.Properties
	if a.provider.Name() == "host" {
		props = []string{gpuinfo.PropName, gpuinfo.PropIndex, gpuinfo.PropMemoryTotal, gpuinfo.PropMemoryUsed, gpuinfo.PropMemoryFree}
	}
	if err := report.GPUs(a.out, recs, props); err != nil {
		return nil, err
	}
	return recs, nil
}

// Check runs the feasibility check of the configured model against the
// configured GPU.
func (a *App) Check(ctx context.Context) (feasibility.Verdict, error) {
	a.log.Info().Str("provider", a.provider.Name()).Msg("gpu provider selected")
	m, err := a.loadModel()
	if err != nil {
		return feasibility.Verdict{}, err
	}
	c := &feasibility.Checker{
		Provider:  a.provider,
		Estimator: a.est,
		Out:       a.out,
		Logger:    a.log,
		GPUIndex:  a.cfg.GPUIndex,
	}
	v, err := c.Check(ctx, a.cfg.BatchSize, m)
	if err != nil {
		return feasibility.Verdict{}, err
	}
	if a.cfg.Output == config.OutputTable {
		if err := report.Layers(a.out, v.Estimate); err != nil {
			return v, err
		}
	}
	report.Verdict(a.out, v)
	return v, nil
}
