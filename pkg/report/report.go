// Package report writes an interactive HTML report of a simulation: intensity
// profiles through the phantom and the noise power spectrum.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"xraysim/pkg/simulation"
	"xraysim/pkg/spectrum"
	"xraysim/pkg/visualization"
)

// Report holds the series shown in the HTML page
type Report struct {
	Title string

	// RowProfile and ColProfile run through the image centre
	RowProfile []float64
	ColProfile []float64

	// Primary profiles are the noise-free counterparts, for reference
	PrimaryRowProfile []float64
	PrimaryColProfile []float64

	NPS *spectrum.NPS

	Metrics simulation.ImageMetrics
}

// Build extracts the report series from a simulation result
func Build(title string, res *simulation.Result) (*Report, error) {
	rows, cols := res.Image.Dims()
	midRow, midCol := rows/2, cols/2

	r := &Report{
		Title:   title,
		Metrics: simulation.Analyze(res.Image, res.Thickness),
	}

	img := visualization.NewViewer(res.Image)
	primary := visualization.NewViewer(res.Primary)

	var err error
	if r.RowProfile, err = img.Profile("row", midRow); err != nil {
		return nil, err
	}
	if r.ColProfile, err = img.Profile("col", midCol); err != nil {
		return nil, err
	}
	if r.PrimaryRowProfile, err = primary.Profile("row", midRow); err != nil {
		return nil, err
	}
	if r.PrimaryColProfile, err = primary.Profile("col", midCol); err != nil {
		return nil, err
	}

	r.NPS, err = spectrum.NoisePower(res.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to compute noise power spectrum: %w", err)
	}

	return r, nil
}

// Render writes the report as a standalone HTML page
func (r *Report) Render(w io.Writer) error {
	page := components.NewPage()
	page.PageTitle = r.Title

	page.AddCharts(
		r.profileChart("Centre row profile", "column (px)", r.RowProfile, r.PrimaryRowProfile),
		r.profileChart("Centre column profile", "row (px)", r.ColProfile, r.PrimaryColProfile),
		r.npsChart(),
	)

	return page.Render(w)
}

// Save renders the report into filename
func (r *Report) Save(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if err := r.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to render report: %w", err)
	}

	return f.Close()
}

func (r *Report) profileChart(title, xName string, noisy, primary []float64) *charts.Line {
	line := newLine(title, fmt.Sprintf("mean %.3f, SNR %.1f, CNR %.2f", r.Metrics.Mean, r.Metrics.SNR, r.Metrics.CNR))
	line.SetGlobalOptions(
		charts.WithXAxisOpts(opts.XAxis{Name: xName}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: "intensity",
			Type: "value",
			Min:  0,
			Max:  1,
		}),
	)

	x := make([]int, len(noisy))
	for i := range x {
		x[i] = i
	}
	line.SetXAxis(x).
		AddSeries("image", lineData(noisy)).
		AddSeries("primary", lineData(primary))

	return line
}

func (r *Report) npsChart() *charts.Line {
	line := newLine("Noise power spectrum", "radially averaged")
	line.SetGlobalOptions(
		charts.WithXAxisOpts(opts.XAxis{Name: "cycles/px"}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:  "power",
			Type:  "log",
			Scale: opts.Bool(true),
		}),
	)

	x := make([]string, len(r.NPS.Frequency))
	for i, f := range r.NPS.Frequency {
		x[i] = fmt.Sprintf("%.3f", f)
	}
	line.SetXAxis(x).AddSeries("NPS", lineData(r.NPS.Power))

	return line
}

func newLine(title, subtitle string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			BackgroundColor: "#ffffff",
			Width:           "100%",
			Height:          "400px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(true),
			Top:  "bottom",
		}),
		charts.WithDataZoomOpts(opts.DataZoom{
			Type:       "inside",
			Start:      0,
			End:        100,
			XAxisIndex: []int{0},
		}),
	)
	return line
}

func lineData(values []float64) []opts.LineData {
	data := make([]opts.LineData, len(values))
	for i, v := range values {
		data[i] = opts.LineData{Value: v}
	}
	return data
}
