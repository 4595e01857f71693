package gpuinfo

import (
	"fmt"
	"strconv"
	"strings"
)

// Property names understood by nvidia-smi --query-gpu.
const (
	PropTimestamp   = "timestamp"
	PropName        = "name"
	PropIndex       = "index"
	PropMemoryTotal = "memory.total"
	PropMemoryUsed  = "memory.used"
	PropMemoryFree  = "memory.free"
	PropUtilGPU     = "utilization.gpu"
	PropUtilMemory  = "utilization.memory"
)

// DefaultProperties returns a fresh copy of the default query list.
func DefaultProperties() []string {
	return []string{
		PropTimestamp,
		PropName,
		PropIndex,
		PropMemoryTotal,
		PropMemoryUsed,
		PropMemoryFree,
		PropUtilGPU,
		PropUtilMemory,
	}
}

// Record maps a property name to the raw value reported for one GPU.
type Record map[string]string

func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Float parses a numeric property. Values reported with units
// (e.g. "16384 MiB", "12 %") are accepted; the unit is dropped.
func (r Record) Float(key string) (float64, error) {
	raw, ok := r[key]
	if !ok {
		return 0, fmt.Errorf("property %q not reported", key)
	}
	v := strings.TrimSpace(raw)
	if i := strings.IndexByte(v, ' '); i > 0 {
		v = v[:i]
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("property %q: %w", key, err)
	}
	return f, nil
}
