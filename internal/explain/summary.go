package explain

import (
	"encoding/csv"
	"fmt"
	"image/color"
	"os"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// WriteSummaryCSV writes feature,mean_abs_shap rows in the given order.
func WriteSummaryCSV(path string, imp []Importance) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	w := csv.NewWriter(file)
	if err := w.Write([]string{"feature", "mean_abs_shap"}); err != nil {
		file.Close()
		return err
	}
	for _, im := range imp {
		if err := w.Write([]string{im.Feature, strconv.FormatFloat(im.MeanAbs, 'g', -1, 64)}); err != nil {
			file.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SavePlot draws the top features as a horizontal bar chart, largest at
// the top. The image format follows the file extension.
func SavePlot(path, title string, imp []Importance, top int) error {
	if top > 0 && len(imp) > top {
		imp = imp[:top]
	}
	if len(imp) == 0 {
		return fmt.Errorf("explain: nothing to plot")
	}

	// bars are drawn bottom-up
	n := len(imp)
	values := make(plotter.Values, n)
	names := make([]string, n)
	for i, im := range imp {
		values[n-1-i] = im.MeanAbs
		names[n-1-i] = im.Feature
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "mean(|SHAP value|) (log-odds)"

	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return fmt.Errorf("bar chart: %w", err)
	}
	bars.Horizontal = true
	bars.Color = color.RGBA{R: 30, G: 136, B: 229, A: 255}
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalY(names...)

	height := vg.Length(n)*vg.Points(18) + vg.Inch
	return p.Save(7*vg.Inch, height, path)
}
