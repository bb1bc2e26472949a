// Package config loads the pipeline configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the fraud detection pipeline.
type Config struct {
	Data struct {
		Dir        string `yaml:"dir"`
		FraudData  string `yaml:"fraud_data"`
		IPData     string `yaml:"ip_data"`
		CreditData string `yaml:"credit_data"`
	} `yaml:"data"`

	Output struct {
		Dir       string `yaml:"dir"`
		ModelsDir string `yaml:"models_dir"`
		PlotsDir  string `yaml:"plots_dir"`
		Registry  string `yaml:"registry"`
		TrainLog  bool   `yaml:"train_log"`
	} `yaml:"output"`

	Training struct {
		TestSize    float64        `yaml:"test_size"`
		RandomState int64          `yaml:"random_state"`
		SmoteK      int            `yaml:"smote_k"`
		LogReg      LogRegConfig   `yaml:"logreg"`
		Boosting    BoostingConfig `yaml:"boosting"`
	} `yaml:"training"`

	Explain struct {
		SampleSize  int `yaml:"sample_size"`
		TopFeatures int `yaml:"top_features"`
	} `yaml:"explain"`

	Logging struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"logging"`
}

// LogRegConfig configures the logistic regression model.
type LogRegConfig struct {
	MaxIter      int     `yaml:"max_iter"`
	LearningRate float64 `yaml:"learning_rate"`
	Tol          float64 `yaml:"tol"`
	C            float64 `yaml:"c"`
	ClassWeight  string  `yaml:"class_weight"`
}

// BoostingConfig configures the gradient boosted trees.
type BoostingConfig struct {
	NEstimators    int     `yaml:"n_estimators"`
	LearningRate   float64 `yaml:"learning_rate"`
	MaxDepth       int     `yaml:"max_depth"`
	ScalePosWeight float64 `yaml:"scale_pos_weight"`
	Lambda         float64 `yaml:"lambda"`
	Gamma          float64 `yaml:"gamma"`
	MinChildWeight float64 `yaml:"min_child_weight"`
	MaxBins        int     `yaml:"max_bins"`
}

// LoadConfig reads the config at path. An empty path searches the default
// locations and falls back to built-in defaults when none exists.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/frauddetection/config.yaml"),
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Defaults go in first so explicit zeros in the file are kept.
	config := defaults()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(config)
	applyDefaults(config)

	return config, nil
}

// Default returns the built-in configuration with environment overrides applied.
func Default() *Config {
	config := defaults()
	mergeWithEnv(config)
	applyDefaults(config)
	return config
}

// FraudDataPath returns the resolved path of the e-commerce transactions file.
func (c *Config) FraudDataPath() string { return c.resolve(c.Data.FraudData) }

// IPDataPath returns the resolved path of the IP range table.
func (c *Config) IPDataPath() string { return c.resolve(c.Data.IPData) }

// CreditDataPath returns the resolved path of the credit card transactions file.
func (c *Config) CreditDataPath() string { return c.resolve(c.Data.CreditData) }

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Data.Dir, p)
}

// defaults returns the built-in values of every setting a YAML file may
// override, including ones whose zero value is meaningful.
func defaults() *Config {
	config := &Config{}

	t := &config.Training
	t.TestSize = 0.2
	t.RandomState = 42
	t.SmoteK = 5
	t.LogReg = LogRegConfig{
		MaxIter:      1000,
		LearningRate: 0.1,
		Tol:          1e-4,
		C:            1.0,
		ClassWeight:  "balanced",
	}
	t.Boosting = BoostingConfig{
		NEstimators:    150,
		LearningRate:   0.1,
		MaxDepth:       5,
		ScalePosWeight: 1,
		Lambda:         1,
		MinChildWeight: 1,
		MaxBins:        256,
	}

	config.Explain.SampleSize = 1000
	config.Explain.TopFeatures = 20
	return config
}

// applyDefaults fills the paths and names left empty after loading; output
// paths follow the final output directory.
func applyDefaults(config *Config) {
	if config.Data.Dir == "" {
		config.Data.Dir = "data"
	}
	if config.Data.FraudData == "" {
		config.Data.FraudData = "raw/fraud_data.csv"
	}
	if config.Data.IPData == "" {
		config.Data.IPData = "raw/ipaddress_to_country.csv"
	}
	if config.Data.CreditData == "" {
		config.Data.CreditData = "raw/creditcard.csv"
	}

	if config.Output.Dir == "" {
		config.Output.Dir = "outputs"
	}
	if config.Output.ModelsDir == "" {
		config.Output.ModelsDir = filepath.Join(config.Output.Dir, "models")
	}
	if config.Output.PlotsDir == "" {
		config.Output.PlotsDir = filepath.Join(config.Output.Dir, "plots")
	}
	if config.Output.Registry == "" {
		config.Output.Registry = filepath.Join(config.Output.Dir, "registry.db")
	}

	if config.Training.LogReg.ClassWeight == "" {
		config.Training.LogReg.ClassWeight = "balanced"
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if dir := os.Getenv("FRAUD_DATA_DIR"); dir != "" {
		config.Data.Dir = dir
	}
	if dir := os.Getenv("FRAUD_OUTPUT_DIR"); dir != "" {
		config.Output.Dir = dir
		config.Output.ModelsDir = ""
		config.Output.PlotsDir = ""
		config.Output.Registry = ""
	}
	if level := os.Getenv("FRAUD_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}
