// Package dataprep loads, cleans and feature engineers the transaction datasets.
package dataprep

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/FlavioCFOliveira/frauddetection/internal/frame"
	"github.com/FlavioCFOliveira/frauddetection/internal/ipgeo"
	"github.com/FlavioCFOliveira/frauddetection/internal/logging"
)

// Paths locates the three input files.
type Paths struct {
	FraudData  string
	IPData     string
	CreditData string
}

var fraudSchema = frame.Schema{
	"user_id":        frame.Float,
	"signup_time":    frame.Time,
	"purchase_time":  frame.Time,
	"purchase_value": frame.Float,
	"device_id":      frame.String,
	"source":         frame.String,
	"browser":        frame.String,
	"sex":            frame.String,
	"age":            frame.Float,
	"ip_address":     frame.Float,
	"class":          frame.Float,
}

var ipSchema = frame.Schema{
	ipgeo.LowerColumn:   frame.Float,
	ipgeo.UpperColumn:   frame.Float,
	ipgeo.CountryColumn: frame.String,
}

// Processor handles all data loading, cleaning and feature engineering.
type Processor struct {
	paths  Paths
	logger *zap.Logger
}

// NewProcessor returns a processor reading from paths.
func NewProcessor(paths Paths, logger *zap.Logger) *Processor {
	return &Processor{paths: paths, logger: logging.OrNop(logger)}
}

// Process runs the processing stage of the given dataset.
func (p *Processor) Process(ctx context.Context, k Kind) (*Data, error) {
	if k == Ecommerce {
		return p.ProcessEcommerce(ctx)
	}
	return p.ProcessCredit(ctx)
}

// ProcessEcommerce loads the e-commerce transactions, attaches countries
// and derives the time and behaviour features.
func (p *Processor) ProcessEcommerce(ctx context.Context) (*Data, error) {
	start := time.Now()

	raw, err := frame.ReadCSV(p.paths.FraudData, fraudSchema)
	if err != nil {
		return nil, fmt.Errorf("load fraud data: %w", err)
	}
	ipFrame, err := frame.ReadCSV(p.paths.IPData, ipSchema)
	if err != nil {
		return nil, fmt.Errorf("load ip data: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table, err := ipgeo.FromFrame(ipFrame)
	if err != nil {
		return nil, err
	}

	df, err := CleanEcommerce(raw, table)
	if err != nil {
		return nil, fmt.Errorf("clean fraud data: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	df, err = EngineerEcommerce(df)
	if err != nil {
		return nil, fmt.Errorf("engineer fraud features: %w", err)
	}

	p.logger.Info("processed e-commerce data",
		zap.String("dataset", string(Ecommerce)),
		zap.Int("raw_rows", raw.Len()),
		zap.Int("rows", df.Len()),
		zap.Int("ip_ranges", table.Len()),
		zap.Duration("duration", time.Since(start)))

	return &Data{Kind: Ecommerce, Raw: raw, Processed: df, IPMapping: table}, nil
}

// ProcessCredit loads the credit card transactions and removes duplicates.
func (p *Processor) ProcessCredit(ctx context.Context) (*Data, error) {
	start := time.Now()

	raw, err := frame.ReadCSV(p.paths.CreditData, nil)
	if err != nil {
		return nil, fmt.Errorf("load credit data: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	df := CleanCredit(raw)

	p.logger.Info("processed credit card data",
		zap.String("dataset", string(Credit)),
		zap.Int("raw_rows", raw.Len()),
		zap.Int("rows", df.Len()),
		zap.Duration("duration", time.Since(start)))

	return &Data{Kind: Credit, Raw: raw, Processed: df}, nil
}

// CleanEcommerce truncates IP addresses to integers, removes duplicate rows
// and rows without a user or timestamps, and adds the country column.
func CleanEcommerce(raw *frame.Frame, table *ipgeo.Table) (*frame.Frame, error) {
	ips, err := raw.Floats("ip_address")
	if err != nil {
		return nil, err
	}

	df := raw.Take(identity(raw.Len()))
	truncated := make([]float64, len(ips))
	for i, ip := range ips {
		truncated[i] = float64(int64(ip))
	}
	if err := df.AddFloat("ip_address", truncated); err != nil {
		return nil, err
	}

	df = df.DropDuplicates()
	df, err = df.DropMissing("user_id", "signup_time", "purchase_time")
	if err != nil {
		return nil, err
	}

	ips, _ = df.Floats("ip_address")
	countries := make([]string, len(ips))
	for i, ip := range ips {
		countries[i] = table.Lookup(int64(ip))
	}
	if err := df.AddString("country", countries); err != nil {
		return nil, err
	}
	return df, nil
}

// CleanCredit removes duplicate rows.
func CleanCredit(raw *frame.Frame) *frame.Frame {
	return raw.DropDuplicates()
}

func identity(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
