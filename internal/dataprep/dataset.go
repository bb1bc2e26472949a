package dataprep

import (
	"fmt"

	"github.com/FlavioCFOliveira/frauddetection/internal/frame"
	"github.com/FlavioCFOliveira/frauddetection/internal/ipgeo"
)

// Kind names one of the two supported datasets.
type Kind string

const (
	Ecommerce Kind = "ecommerce"
	Credit    Kind = "credit"
)

// ParseKind validates a dataset name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Ecommerce, Credit:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown dataset %q (want %s or %s)", s, Ecommerce, Credit)
}

// Descriptor describes how a processed dataset is turned into model inputs.
type Descriptor struct {
	Kind        Kind
	Target      string
	Identifiers []string
	Categorical []string
}

// DescriptorFor returns the descriptor of a dataset.
func DescriptorFor(k Kind) Descriptor {
	if k == Ecommerce {
		return Descriptor{
			Kind:        Ecommerce,
			Target:      "class",
			Identifiers: []string{"user_id", "signup_time", "purchase_time", "device_id", "ip_address"},
			Categorical: []string{"source", "browser", "sex", "country"},
		}
	}
	return Descriptor{Kind: Credit, Target: "Class"}
}

// Split separates the feature columns from the binary target.
func (d Descriptor) Split(f *frame.Frame) (*frame.Frame, []int, error) {
	target, err := f.Floats(d.Target)
	if err != nil {
		return nil, nil, fmt.Errorf("%s target: %w", d.Kind, err)
	}
	drop := append([]string{d.Target}, d.Identifiers...)
	X, err := f.Drop(drop...)
	if err != nil {
		return nil, nil, fmt.Errorf("%s features: %w", d.Kind, err)
	}

	y := make([]int, len(target))
	for i, v := range target {
		if v != 0 && v != 1 {
			return nil, nil, fmt.Errorf("%s target row %d: non-binary label %v", d.Kind, i, v)
		}
		y[i] = int(v)
	}
	return X, y, nil
}

// Data is the output of a processing stage.
type Data struct {
	Kind      Kind
	Raw       *frame.Frame
	Processed *frame.Frame
	IPMapping *ipgeo.Table
}

// Descriptor returns the descriptor matching the data.
func (d *Data) Descriptor() Descriptor { return DescriptorFor(d.Kind) }
