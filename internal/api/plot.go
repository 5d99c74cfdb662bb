package api

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// renderLossCurve draws the per-round training log-loss as a PNG.
func renderLossCurve(curve []float64) ([]byte, error) {
	if len(curve) == 0 {
		return nil, fmt.Errorf("empty loss curve")
	}

	p := plot.New()
	p.Title.Text = "Training log-loss"
	p.X.Label.Text = "Boosting round"
	p.Y.Label.Text = "Log-loss"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(curve))
	for i, v := range curve {
		pts[i].X = float64(i + 1)
		pts[i].Y = v
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.Color = color.RGBA{R: 20, G: 80, B: 200, A: 255}
	line.Width = vg.Points(1.5)
	p.Add(line)

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
