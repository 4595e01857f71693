package smi

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpu-fitcheck/internal/gpuinfo"
)

// fakeSMI writes a shell script that records its arguments and prints body.
func fakeSMI(t *testing.T, body string, exitCode int) (bin string, argsFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	dir := t.TempDir()
	bin = filepath.Join(dir, "nvidia-smi")
	argsFile = filepath.Join(dir, "args")
	outFile := filepath.Join(dir, "out")
	require.NoError(t, os.WriteFile(outFile, []byte(body), 0o644))

	script := "#!/bin/sh\n" +
		"echo \"$@\" > '" + argsFile + "'\n" +
		"cat '" + outFile + "'\n"
	if exitCode != 0 {
		script += "echo 'fake failure' >&2\nexit " + strconv.Itoa(exitCode) + "\n"
	}
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin, argsFile
}

func TestCommand(t *testing.T) {
	r := New("")
	assert.Equal(t,
		"nvidia-smi --query-gpu=timestamp,name,index,memory.total,memory.used,memory.free,utilization.gpu,utilization.memory --format=csv,noheader,nounits",
		r.Command())

	r = New("/opt/bin/nvidia-smi")
	r.Properties = []string{"index", "memory.total"}
	r.NoHeader = false
	r.NoUnits = false
	assert.Equal(t, "/opt/bin/nvidia-smi --query-gpu=index,memory.total --format=csv", r.Command())
}

func TestQueryPairsValuesWithProperties(t *testing.T) {
	out := "\n" +
		"2024/05/01 10:00:00.000, NVIDIA A100-SXM4-40GB, 0, 40960, 1024, 39936, 3, 1\n" +
		"\n" +
		"2024/05/01 10:00:00.001, NVIDIA A100-SXM4-40GB, 1, 40960, 0, 40960, 0, 0\n" +
		"\n"
	bin, argsFile := fakeSMI(t, out, 0)

	r := New(bin)
	recs, err := r.Query(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, gpuinfo.Record{
		"timestamp":          "2024/05/01 10:00:00.000",
		"name":               "NVIDIA A100-SXM4-40GB",
		"index":              "0",
		"memory.total":       "40960",
		"memory.used":        "1024",
		"memory.free":        "39936",
		"utilization.gpu":    "3",
		"utilization.memory": "1",
	}, recs[0])
	assert.Equal(t, "1", recs[1]["index"])
	assert.Equal(t, "0", recs[1]["memory.used"])

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(args), "--query-gpu=timestamp,name,index,memory.total")
	assert.Contains(t, string(args), "--format=csv,noheader,nounits")
}

func TestParseSkipsHeader(t *testing.T) {
	r := New("")
	r.Properties = []string{"index", "memory.total"}
	r.NoHeader = false

	recs, err := r.Parse([]byte("index, memory.total [MiB]\n0, 16384 MiB\n1, 8192 MiB\n"))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, gpuinfo.Record{"index": "0", "memory.total": "16384 MiB"}, recs[0])

	v, err := recs[1].Float("memory.total")
	require.NoError(t, err)
	assert.Equal(t, 8192.0, v)
}

func TestParseLengthMismatch(t *testing.T) {
	r := New("")
	r.Properties = []string{"index", "name", "memory.total"}

	recs, err := r.Parse([]byte("0, Tesla T4\n1, Tesla T4, 15360, extra\n"))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, gpuinfo.Record{"index": "0", "name": "Tesla T4"}, recs[0])
	assert.Equal(t, gpuinfo.Record{"index": "1", "name": "Tesla T4", "memory.total": "15360"}, recs[1])

	r.Strict = true
	_, err = r.Parse([]byte("0, Tesla T4\n"))
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestParseEmptyOutput(t *testing.T) {
	recs, err := New("").Parse([]byte("\n\n"))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestQueryFailures(t *testing.T) {
	bin, _ := fakeSMI(t, "", 9)
	_, err := New(bin).Query(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fake failure")

	missing := filepath.Join(t.TempDir(), "no-such-smi")
	_, err = New(missing).Query(context.Background())
	assert.Error(t, err)
}
