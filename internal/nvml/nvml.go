package nvmlwrap

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"gpu-fitcheck/internal/gpuinfo"
)

// timestampLayout matches the timestamp column printed by nvidia-smi.
const timestampLayout = "2006/01/02 15:04:05.000"

const bytesPerMiB = 1024 * 1024

// Client reports the same properties as the nvidia-smi reader, read
// directly through NVML (go-nvml cgo bindings).
type Client struct {
	Properties []string

	initialized bool
	now         func() time.Time
}

func New(properties []string) *Client {
	if len(properties) == 0 {
		properties = gpuinfo.DefaultProperties()
	}
	return &Client{Properties: properties, now: time.Now}
}

func (c *Client) Init() error {
	if c.initialized {
		return nil
	}
	ret := nvml.Init()
	if ret != nvml.SUCCESS {
		return fmt.Errorf("nvml init failed: %s", nvml.ErrorString(ret))
	}
	c.initialized = true
	return nil
}

func (c *Client) Shutdown() {
	if !c.initialized {
		return
	}
	_ = nvml.Shutdown()
	c.initialized = false
}

func (c *Client) Name() string { return "nvml" }

func (c *Client) Close() error {
	c.Shutdown()
	return nil
}

func (c *Client) Query(ctx context.Context) ([]gpuinfo.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.Init(); err != nil {
		return nil, err
	}

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("nvml device get count failed: %s", nvml.ErrorString(ret))
	}

	records := make([]gpuinfo.Record, 0, count)
	for i := 0; i < count; i++ {
		dev, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			return nil, fmt.Errorf("nvml get handle index=%d failed: %s", i, nvml.ErrorString(ret))
		}

		name, _ := dev.GetName()
		memInfo, ret := dev.GetMemoryInfo()
		if ret != nvml.SUCCESS {
			return nil, fmt.Errorf("nvml memory info index=%d failed: %s", i, nvml.ErrorString(ret))
		}
		util, _ := dev.GetUtilizationRates()

		records = append(records, project(c.Properties, deviceState{
			Timestamp:     c.now(),
			Index:         i,
			Name:          name,
			MemTotalBytes: memInfo.Total,
			MemUsedBytes:  memInfo.Used,
			MemFreeBytes:  memInfo.Free,
			UtilGPU:       util.Gpu,
			UtilMem:       util.Memory,
		}))
	}
	return records, nil
}

type deviceState struct {
	Timestamp     time.Time
	Index         int
	Name          string
	MemTotalBytes uint64
	MemUsedBytes  uint64
	MemFreeBytes  uint64
	UtilGPU       uint32
	UtilMem       uint32
}

// project renders the requested properties the way nvidia-smi prints them
// with nounits. Properties NVML cannot answer are left out of the record.
func project(props []string, s deviceState) gpuinfo.Record {
	rec := gpuinfo.Record{}
	for _, p := range props {
		switch p {
		case gpuinfo.PropTimestamp:
			rec[p] = s.Timestamp.Format(timestampLayout)
		case gpuinfo.PropName, "gpu_name":
			rec[p] = s.Name
		case gpuinfo.PropIndex:
			rec[p] = strconv.Itoa(s.Index)
		case gpuinfo.PropMemoryTotal:
			rec[p] = strconv.FormatUint(s.MemTotalBytes/bytesPerMiB, 10)
		case gpuinfo.PropMemoryUsed:
			rec[p] = strconv.FormatUint(s.MemUsedBytes/bytesPerMiB, 10)
		case gpuinfo.PropMemoryFree:
			rec[p] = strconv.FormatUint(s.MemFreeBytes/bytesPerMiB, 10)
		case gpuinfo.PropUtilGPU:
			rec[p] = strconv.FormatUint(uint64(s.UtilGPU), 10)
		case gpuinfo.PropUtilMemory:
			rec[p] = strconv.FormatUint(uint64(s.UtilMem), 10)
		}
	}
	return rec
}
