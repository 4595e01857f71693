package hostmem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpu-fitcheck/internal/gpuinfo"
)

func TestQueryReportsMiB(t *testing.T) {
	p := &Provider{
		virtualMemory: func(context.Context) (*mem.VirtualMemoryStat, error) {
			return &mem.VirtualMemoryStat{
				Total:     32 * 1024 * bytesPerMiB,
				Used:      8 * 1024 * bytesPerMiB,
				Available: 24 * 1024 * bytesPerMiB,
			}, nil
		},
		now: func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	}

	recs, err := p.Query(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)

	total, err := recs[0].Float(gpuinfo.PropMemoryTotal)
	require.NoError(t, err)
	assert.Equal(t, 32768.0, total)
	assert.Equal(t, "24576", recs[0][gpuinfo.PropMemoryFree])
	assert.Equal(t, "host", recs[0][gpuinfo.PropName])
	assert.Equal(t, "2024/01/02 03:04:05.000", recs[0][gpuinfo.PropTimestamp])
}

func TestQueryError(t *testing.T) {
	p := &Provider{
		virtualMemory: func(context.Context) (*mem.VirtualMemoryStat, error) {
			return nil, errors.New("no /proc")
		},
		now: time.Now,
	}
	_, err := p.Query(context.Background())
	assert.ErrorContains(t, err, "no /proc")
}

func TestLiveQuery(t *testing.T) {
	recs, err := New().Query(context.Background())
	require.NoError(t, err)
	total, err := recs[0].Float(gpuinfo.PropMemoryTotal)
	require.NoError(t, err)
	assert.Greater(t, total, 0.0)
}
