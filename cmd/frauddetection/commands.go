package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FlavioCFOliveira/frauddetection/internal/app"
	"github.com/FlavioCFOliveira/frauddetection/internal/config"
	"github.com/FlavioCFOliveira/frauddetection/internal/dataprep"
	"github.com/FlavioCFOliveira/frauddetection/internal/logging"
	"github.com/FlavioCFOliveira/frauddetection/internal/synth"
)

// globals holds the state shared by every subcommand.
type globals struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func (g *globals) app(cmd *cobra.Command) *app.App {
	return app.New(g.cfg, g.logger,
		app.WithOutput(cmd.OutOrStdout()),
		app.WithProgress(cmd.ErrOrStderr()))
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "frauddetection",
		Short: "Fraud detection on e-commerce and credit card transactions",
		Long: `Trains a logistic regression and a gradient boosted tree classifier on
two transaction datasets, balances the classes with SMOTE, evaluates the
models on a stratified hold-out split and explains the boosted models with
SHAP values.

Run without a subcommand to execute the full pipeline.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(g.configPath)
			if err != nil {
				return err
			}
			if verrs := cfg.Validate(); len(verrs) > 0 {
				errs := make([]error, len(verrs))
				for i, e := range verrs {
					errs[i] = e
				}
				return fmt.Errorf("invalid config: %w", errors.Join(errs...))
			}

			level := cfg.Logging.Level
			if g.verbose {
				level = "debug"
			}
			logger, err := logging.New(level, cfg.Logging.Development)
			if err != nil {
				return err
			}
			g.cfg, g.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if g.logger != nil {
				_ = g.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.app(cmd).Run(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to the YAML config file")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newRunCmd(g),
		newTrainCmd(g),
		newExplainCmd(g),
		newModelsCmd(g),
		newSynthCmd(g),
	)
	return root
}

func newRunCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process both datasets, train, evaluate, save and explain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.app(cmd).Run(cmd.Context())
		},
	}
}

func newTrainCmd(g *globals) *cobra.Command {
	var dataset string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Process, train, evaluate and save the models of one dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := dataprep.ParseKind(dataset)
			if err != nil {
				return err
			}
			_, err = g.app(cmd).Train(cmd.Context(), kind)
			return err
		},
	}
	cmd.Flags().StringVarP(&dataset, "dataset", "d", "", "dataset to train: ecommerce or credit")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}

func newExplainCmd(g *globals) *cobra.Command {
	var dataset, modelPath string
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Explain a saved model with SHAP values",
		Long: `Explains the most recent boosted model registered for the dataset, or the
pipeline saved at --model, on a sample of the processed dataset. The summary
is written as <dataset>_shap_summary.png and .csv under the plots directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := dataprep.ParseKind(dataset)
			if err != nil {
				return err
			}
			_, err = g.app(cmd).Explain(cmd.Context(), kind, modelPath)
			return err
		},
	}
	cmd.Flags().StringVarP(&dataset, "dataset", "d", "", "dataset to explain: ecommerce or credit")
	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "saved pipeline to explain (default: latest registered boosted model)")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}

func newModelsCmd(g *globals) *cobra.Command {
	var dataset string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List registered models and their test metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := g.app(cmd).Models(cmd.Context(), dataset)
			return err
		},
	}
	cmd.Flags().StringVarP(&dataset, "dataset", "d", "", "only list models of this dataset")
	return cmd
}

func newSynthCmd(g *globals) *cobra.Command {
	opts := synth.DefaultOptions()
	var out string
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write synthetic versions of the three input files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = g.cfg.Data.Dir
			}
			files, err := synth.Write(out, opts)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, path := range []string{files.FraudData, files.IPData, files.CreditData} {
				color.New(color.FgGreen).Fprintf(w, "✓ Wrote %s\n", filepath.Clean(path))
			}
			g.logger.Info("synthetic data written",
				zap.String("dir", out),
				zap.Int("rows", opts.Rows),
				zap.Int64("seed", opts.Seed))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory, files go under <out>/raw (default: data.dir)")
	cmd.Flags().IntVarP(&opts.Rows, "rows", "n", opts.Rows, "rows per transaction file")
	cmd.Flags().Int64Var(&opts.Seed, "seed", opts.Seed, "random seed")
	cmd.Flags().Float64Var(&opts.EcommerceFraudRate, "ecommerce-fraud-rate", opts.EcommerceFraudRate, "share of fraudulent e-commerce purchases")
	cmd.Flags().Float64Var(&opts.CreditFraudRate, "credit-fraud-rate", opts.CreditFraudRate, "share of fraudulent card transactions")
	return cmd
}
