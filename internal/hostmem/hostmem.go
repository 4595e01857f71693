// Package hostmem reports system RAM as a single pseudo-GPU, for hosts with
// unified memory or no NVIDIA tooling.
package hostmem

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"gpu-fitcheck/internal/gpuinfo"
)

const bytesPerMiB = 1024 * 1024

type Provider struct {
	virtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	now           func() time.Time
}

func New() *Provider {
	return &Provider{virtualMemory: mem.VirtualMemoryWithContext, now: time.Now}
}

func (p *Provider) Name() string { return "host" }

func (p *Provider) Close() error { return nil }

func (p *Provider) Query(ctx context.Context) ([]gpuinfo.Record, error) {
	vm, err := p.virtualMemory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get system memory info: %w", err)
	}
	return []gpuinfo.Record{{
		gpuinfo.PropTimestamp:   p.now().Format("2006/01/02 15:04:05.000"),
		gpuinfo.PropName:        "host",
		gpuinfo.PropIndex:       "0",
		gpuinfo.PropMemoryTotal: strconv.FormatUint(vm.Total/bytesPerMiB, 10),
		gpuinfo.PropMemoryUsed:  strconv.FormatUint(vm.Used/bytesPerMiB, 10),
		gpuinfo.PropMemoryFree:  strconv.FormatUint(vm.Available/bytesPerMiB, 10),
	}}, nil
}
