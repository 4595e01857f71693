package smi

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"gpu-fitcheck/internal/gpuinfo"
)

const DefaultBinary = "nvidia-smi"

var ErrMalformedRecord = errors.New("nvidia-smi record does not match requested properties")

// Reader queries GPU properties by running nvidia-smi through a shell.
type Reader struct {
	BinaryPath string
	Properties []string
	NoHeader   bool
	NoUnits    bool

	// Strict rejects lines whose value count differs from the number of
	// requested properties. Otherwise values are paired positionally and
	// the surplus on either side is dropped.
	Strict bool

	Shell  string
	Logger zerolog.Logger
}

func New(binaryPath string) *Reader {
	if strings.TrimSpace(binaryPath) == "" {
		binaryPath = DefaultBinary
	}
	return &Reader{
		BinaryPath: binaryPath,
		Properties: gpuinfo.DefaultProperties(),
		NoHeader:   true,
		NoUnits:    true,
		Shell:      "sh",
		Logger:     zerolog.Nop(),
	}
}

func (r *Reader) Name() string { return "nvidia-smi" }

func (r *Reader) Close() error { return nil }

func (r *Reader) properties() []string {
	if len(r.Properties) == 0 {
		return gpuinfo.DefaultProperties()
	}
	return r.Properties
}

// Command is the shell command line Query runs.
func (r *Reader) Command() string {
	format := "--format=csv"
	if r.NoHeader {
		format += ",noheader"
	}
	if r.NoUnits {
		format += ",nounits"
	}
	return fmt.Sprintf("%s --query-gpu=%s %s", r.BinaryPath, strings.Join(r.properties(), ","), format)
}

// Query runs the tool once and blocks until it exits. There is no timeout
// beyond what ctx imposes.
func (r *Reader) Query(ctx context.Context) ([]gpuinfo.Record, error) {
	out, err := r.run(ctx)
	if err != nil {
		return nil, err
	}
	return r.Parse(out)
}

func (r *Reader) run(ctx context.Context) ([]byte, error) {
	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}
	line := r.Command()
	r.Logger.Debug().Str("cmd", line).Msg("querying gpu properties")

	cmd := exec.CommandContext(ctx, shell, "-c", line)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		se := strings.TrimSpace(stderr.String())
		r.Logger.Error().Err(err).Str("cmd", line).Str("stderr", se).Msg("gpu property query failed")
		return nil, fmt.Errorf("nvidia-smi failed: %w: %s", err, se)
	}
	return out, nil
}

// Parse turns tool output into one record per non-blank line. When the
// output carries a header, its first line is skipped.
func (r *Reader) Parse(out []byte) ([]gpuinfo.Record, error) {
	props := r.properties()
	scanner := bufio.NewScanner(bytes.NewReader(out))
	records := []gpuinfo.Record{}
	headerPending := !r.NoHeader
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if headerPending {
			headerPending = false
			continue
		}

		values := strings.Split(line, ", ")
		if len(values) != len(props) {
			if r.Strict {
				return nil, fmt.Errorf("%w: line %d has %d values, want %d", ErrMalformedRecord, lineNo, len(values), len(props))
			}
			r.Logger.Warn().
				Int("line", lineNo).
				Int("values", len(values)).
				Int("properties", len(props)).
				Msg("gpu record length mismatch, pairing positionally")
		}

		n := min(len(values), len(props))
		rec := make(gpuinfo.Record, n)
		for i := 0; i < n; i++ {
			rec[props[i]] = strings.TrimSpace(values[i])
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
