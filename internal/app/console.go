package app

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/FlavioCFOliveira/frauddetection/internal/explain"
	"github.com/FlavioCFOliveira/frauddetection/internal/metrics"
	"github.com/FlavioCFOliveira/frauddetection/internal/registry"
)

const rule = "============================================================="

var (
	bannerColor = color.New(color.FgCyan, color.Bold)
	stepColor   = color.New(color.FgBlue, color.Bold)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	failColor   = color.New(color.FgRed)
	headColor   = color.New(color.Bold)
)

// console serializes the colored report lines written by concurrent stages.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *console) banner(title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bannerColor.Fprintln(c.w, rule)
	bannerColor.Fprintf(c.w, "  %s\n", title)
	bannerColor.Fprintln(c.w, rule)
	fmt.Fprintln(c.w)
}

func (c *console) step(n int, title string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stepColor.Fprintf(c.w, "--- Step %d: %s ---\n", n, title)
}

func (c *console) ok(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	okColor.Fprintf(c.w, "✓ "+format+"\n", args...)
}

func (c *console) warn(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	warnColor.Fprintf(c.w, format+"\n", args...)
}

func (c *console) fail(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	failColor.Fprintf(c.w, "✗ "+format+"\n", args...)
}

func (c *console) evaluation(dataset, model string, ev metrics.Evaluation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w)
	headColor.Fprintf(c.w, "%s %s\n", dataset, model)
	fmt.Fprint(c.w, ev.String())
}

func (c *console) importance(ex *explain.Explanation, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	headColor.Fprintf(c.w, "Top features (%s %s, mean |SHAP|):\n", ex.Kind, ex.Model)
	for i, im := range ex.Summary {
		if i == n {
			break
		}
		fmt.Fprintf(c.w, "  %2d. %-30s %.6f\n", i+1, im.Feature, im.MeanAbs)
	}
	fmt.Fprintf(c.w, "  plot: %s\n  csv:  %s\n", ex.PlotPath, ex.CSVPath)
}

func formatMetric(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", v)
}

func (c *console) models(records []registry.ModelRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(records) == 0 {
		warnColor.Fprintln(c.w, "No models registered")
		return
	}
	header := fmt.Sprintf("%-10s %-7s %-8s %-8s %-8s %-19s %s", "dataset", "model", "roc_auc", "pr_auc", "accuracy", "created", "path")
	headColor.Fprintln(c.w, header)
	fmt.Fprintln(c.w, strings.Repeat("-", len(header)))
	for _, r := range records {
		fmt.Fprintf(c.w, "%-10s %-7s %-8s %-8s %-8s %-19s %s\n",
			r.Dataset, r.Model,
			formatMetric(r.ROCAUC), formatMetric(r.PRAUC), formatMetric(r.Accuracy),
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Path)
	}
}
