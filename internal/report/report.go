package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"gpu-fitcheck/internal/estimate"
	"gpu-fitcheck/internal/feasibility"
	"gpu-fitcheck/internal/gpuinfo"
)

var (
	fitStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff00")).Bold(true)
	noFitStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff0000")).Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
)

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w, tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
		Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.Off}},
	})))
}

// Layers renders the per-layer activation breakdown followed by totals.
func Layers(w io.Writer, res estimate.Result) error {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Memory estimate for %s (batch %d)", res.Model, res.BatchSize)))

	table := newTable(w)
	table.Header([]string{"LAYER", "KIND", "SHAPE", "ELEMENTS", "MB/SAMPLE"})
	for _, l := range res.Layers {
		if err := table.Append([]string{
			l.Name,
			l.Kind,
			l.Shape.String(),
			strconv.FormatInt(l.Elements, 10),
			fmt.Sprintf("%.6f", l.MB),
		}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(w, "Memory for features in MB is: %.4f\n", res.BatchActivationMB())
	fmt.Fprintf(w, "Memory for parameters in MB is: %.2f (%d params)\n", res.ParameterMB, res.Parameters)
	fmt.Fprintf(w, "Minimum memory required to work with this model is: %.2f GB\n", res.TotalGB)
	return nil
}

// GPUs renders one row per record, columns in props order.
func GPUs(w io.Writer, records []gpuinfo.Record, props []string) error {
	if len(props) == 0 {
		props = gpuinfo.DefaultProperties()
	}
	table := newTable(w)
	table.Header(props)
	for _, rec := range records {
		row := make([]string, len(props))
		for i, p := range props {
			v, ok := rec[p]
			if !ok {
				v = "-"
			}
			row[i] = v
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

// Verdict prints a coloured one-line summary of a feasibility check.
func Verdict(w io.Writer, v feasibility.Verdict) {
	if v.Fits {
		fmt.Fprintln(w, fitStyle.Render(fmt.Sprintf("FITS: %.2f GB of %.2f GB", v.ModelGB, v.GPUGB)))
		return
	}
	msg := fmt.Sprintf("DOES NOT FIT: %.2f GB needed, %.2f GB available", v.ModelGB, v.GPUGB)
	if v.MaxBatch < 0 {
		msg += "; parameters alone exceed GPU memory"
	} else {
		msg += fmt.Sprintf("; largest batch that fits: %d", v.MaxBatch)
	}
	fmt.Fprintln(w, noFitStyle.Render(msg))
}
