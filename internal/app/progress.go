package app

import (
	"io"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/FlavioCFOliveira/frauddetection/internal/config"
	"github.com/FlavioCFOliveira/frauddetection/internal/dataprep"
	"github.com/FlavioCFOliveira/frauddetection/internal/model"
)

func newProgressBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("it"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// trainingTotal is the iteration budget of both models of a dataset.
func trainingTotal(cfg *config.Config) int {
	return cfg.Training.LogReg.MaxIter + cfg.Training.Boosting.NEstimators
}

// progressCallback advances a bar shared by the models of one dataset.
// Models that stop early leave the bar short; the owner finishes it.
type progressCallback struct {
	model.BaseCallback
	bar *progressbar.ProgressBar
}

func (p progressCallback) OnIterationEnd(name string, iter int, loss float64) {
	_ = p.bar.Add(1)
}

// progress owns the bar of one dataset. A nil writer disables it.
type progress struct {
	bar *progressbar.ProgressBar
}

func newProgress(w io.Writer, cfg *config.Config, kind dataprep.Kind) *progress {
	if w == nil {
		return &progress{}
	}
	return &progress{bar: newProgressBar(w, trainingTotal(cfg), "training "+string(kind))}
}

func (p *progress) callbacks(dataprep.Kind, string) []model.Callback {
	if p.bar == nil {
		return nil
	}
	return []model.Callback{progressCallback{bar: p.bar}}
}

func (p *progress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
