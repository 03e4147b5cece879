package main

import (
	"context"
	"fmt"

	"github.com/chaniweb/backend/config"
	"github.com/chaniweb/backend/internal/app"
	"github.com/chaniweb/backend/internal/domain"
	"github.com/chaniweb/backend/internal/infrastructure/catalog"
	"github.com/chaniweb/backend/internal/infrastructure/logging"
	"github.com/chaniweb/backend/internal/usecase"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// options holds the persistent flags and what they resolve to
type options struct {
	catalogPath string
	outputJSON  bool
	noColor     bool
	verbose     bool

	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "pricecmp",
		Short: "Compare supermarket prices from a catalog export",
		Long: `pricecmp groups equivalent products across supermarkets and ranks them
by price per canonical unit (kg, l, unit, m).

The catalog is a JSON, YAML or XLSX export of the products table.
Matching settings come from config.yaml and CHANIWEB_MATCHING_* variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			opts.cfg = cfg

			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			opts.logger = logging.New(logging.Config{
				Level:       level,
				Format:      "console",
				Output:      cmd.ErrOrStderr(),
				ServiceName: "pricecmp",
			})

			if opts.noColor {
				color.NoColor = true
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.catalogPath, "catalog", "", "catalog file (.json, .yaml, .yml or .xlsx)")
	flags.BoolVar(&opts.outputJSON, "json", false, "output in JSON format")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	_ = rootCmd.MarkPersistentFlagRequired("catalog")

	rootCmd.AddCommand(newGroupsCmd(opts))
	rootCmd.AddCommand(newCompareCmd(opts))

	return rootCmd
}

// load reads the catalog file and builds the engine from the matching config
func (o *options) load(ctx context.Context) (*domain.Catalog, *usecase.ComparisonEngine, error) {
	snapshot, err := catalog.NewFileProvider(o.catalogPath, o.logger).FetchCatalog(ctx)
	if err != nil {
		return nil, nil, err
	}

	matching := o.cfg.Matching
	if o.verbose {
		matching.EnableDebugLogging = true
	}
	engine := usecase.BuildComparisonEngine(app.EngineConfig(matching), o.logger)

	o.logger.Debug().
		Int("listings", snapshot.Len()).
		Str("fingerprint", snapshot.Fingerprint()).
		Msg("catalog loaded")

	return snapshot, engine, nil
}
