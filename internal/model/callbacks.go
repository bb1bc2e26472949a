package model

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/FlavioCFOliveira/frauddetection/internal/opt"
)

// Callback observes a training loop. Iterations are gradient steps for the
// logistic regression and trees for gradient boosting.
type Callback interface {
	OnTrainBegin(model string, iterations int)
	OnIterationEnd(model string, iter int, loss float64)
	OnTrainEnd(model string)
}

// Stopper is implemented by callbacks that can end training early.
type Stopper interface {
	ShouldStop() bool
}

// BaseCallback provides default empty implementations for Callback.
type BaseCallback struct{}

func (c BaseCallback) OnTrainBegin(model string, iterations int)           {}
func (c BaseCallback) OnIterationEnd(model string, iter int, loss float64) {}
func (c BaseCallback) OnTrainEnd(model string)                             {}

type callbacks []Callback

func (cs callbacks) begin(model string, iterations int) {
	for _, c := range cs {
		c.OnTrainBegin(model, iterations)
	}
}

// iteration reports the loss and returns true when a Stopper asks to stop.
func (cs callbacks) iteration(model string, iter int, loss float64) bool {
	stop := false
	for _, c := range cs {
		c.OnIterationEnd(model, iter, loss)
		if s, ok := c.(Stopper); ok && s.ShouldStop() {
			stop = true
		}
	}
	return stop
}

func (cs callbacks) end(model string) {
	for _, c := range cs {
		c.OnTrainEnd(model)
	}
}

// SchedulerCallback feeds the training loss to a learning rate scheduler.
type SchedulerCallback struct {
	BaseCallback
	scheduler *opt.ReduceLROnPlateau
}

// NewSchedulerCallback wraps scheduler.
func NewSchedulerCallback(scheduler *opt.ReduceLROnPlateau) *SchedulerCallback {
	return &SchedulerCallback{scheduler: scheduler}
}

func (c *SchedulerCallback) OnIterationEnd(model string, iter int, loss float64) {
	c.scheduler.StepWithLoss(loss)
}

// EarlyStopping stops training when the loss has stopped improving.
type EarlyStopping struct {
	BaseCallback
	Patience  int
	Threshold float64

	bestLoss     float64
	numBadEpochs int
	Stopped      bool
	StoppedAt    int
}

// NewEarlyStopping stops after patience iterations without an improvement
// larger than threshold.
func NewEarlyStopping(patience int, threshold float64) *EarlyStopping {
	return &EarlyStopping{
		Patience:  patience,
		Threshold: threshold,
		bestLoss:  math.Inf(1),
	}
}

func (c *EarlyStopping) OnTrainBegin(model string, iterations int) {
	c.bestLoss = math.Inf(1)
	c.numBadEpochs = 0
	c.Stopped = false
	c.StoppedAt = 0
}

func (c *EarlyStopping) OnIterationEnd(model string, iter int, loss float64) {
	if loss < c.bestLoss-c.Threshold {
		c.bestLoss = loss
		c.numBadEpochs = 0
	} else {
		c.numBadEpochs++
	}

	if !c.Stopped && c.numBadEpochs >= c.Patience {
		c.Stopped = true
		c.StoppedAt = iter
	}
}

// ShouldStop implements Stopper.
func (c *EarlyStopping) ShouldStop() bool { return c.Stopped }

// Logger logs training progress every Interval iterations.
type Logger struct {
	BaseCallback
	Log      *zap.Logger
	Interval int
}

func (c Logger) OnTrainBegin(model string, iterations int) {
	c.Log.Debug("training started", zap.String("model", model), zap.Int("iterations", iterations))
}

func (c Logger) OnIterationEnd(model string, iter int, loss float64) {
	if c.Interval > 0 && iter%c.Interval == 0 {
		c.Log.Debug("training progress", zap.String("model", model), zap.Int("iter", iter), zap.Float64("loss", loss))
	}
}

func (c Logger) OnTrainEnd(model string) {
	c.Log.Debug("training finished", zap.String("model", model))
}

// CSVLogger logs training progress to a CSV file.
type CSVLogger struct {
	BaseCallback
	Filename string
	Append   bool

	file   *os.File
	writer *csv.Writer
	start  time.Time
	err    error
}

// NewCSVLogger creates a new CSVLogger.
func NewCSVLogger(filename string, append bool) *CSVLogger {
	return &CSVLogger{
		Filename: filename,
		Append:   append,
	}
}

// Err returns the first error met while writing the log.
func (c *CSVLogger) Err() error { return c.err }

func (c *CSVLogger) OnTrainBegin(model string, iterations int) {
	mode := os.O_CREATE | os.O_WRONLY
	if c.Append {
		mode |= os.O_APPEND
	} else {
		mode |= os.O_TRUNC
	}

	file, err := os.OpenFile(c.Filename, mode, 0644)
	if err != nil {
		c.err = fmt.Errorf("csv logger: open %s: %w", c.Filename, err)
		return
	}
	c.file = file
	c.writer = csv.NewWriter(file)
	c.start = time.Now()

	// Write header if not appending or if file is empty
	info, err := file.Stat()
	if err == nil && (info.Size() == 0 || !c.Append) {
		c.write([]string{"model", "iteration", "loss", "time_seconds"})
	}
}

func (c *CSVLogger) OnIterationEnd(model string, iter int, loss float64) {
	if c.writer == nil {
		return
	}
	c.write([]string{
		model,
		strconv.Itoa(iter),
		strconv.FormatFloat(loss, 'f', 6, 64),
		strconv.FormatFloat(time.Since(c.start).Seconds(), 'f', 2, 64),
	})
}

func (c *CSVLogger) OnTrainEnd(model string) {
	if c.file != nil {
		c.writer.Flush()
		if err := c.file.Close(); err != nil && c.err == nil {
			c.err = err
		}
		c.file = nil
		c.writer = nil
	}
}

func (c *CSVLogger) write(record []string) {
	if err := c.writer.Write(record); err != nil && c.err == nil {
		c.err = fmt.Errorf("csv logger: %w", err)
	}
	c.writer.Flush()
}
