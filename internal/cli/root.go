/*
Package cli implements pacerctl, the offline companion to pacerd.

Commands that touch athlete records open the SQLite database named by
--db (default: the configured store_path), so they share state with a
pacerd running on the sqlite driver.
*/
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/pacer/internal/adapters/repository"
	service "github.com/okian/pacer/internal/app"
	"github.com/okian/pacer/internal/config"
	"github.com/okian/pacer/pkg/logger"
)

// globals carries the persistent flags.
type globals struct {
	db      string
	verbose bool
}

// NewRootCmd builds the pacerctl command tree.
func NewRootCmd(version string) *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "pacerctl",
		Short: "Fitness-index estimation from the command line",
		Long: `pacerctl imports FIT activities, runs history backtests, exports
history to parquet and prints training paces without a running server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.db, "db", "", "SQLite database path (default: configured store_path)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log progress to stderr")

	root.AddCommand(
		newSegmentCmd(),
		newImportCmd(g),
		newPredictCmd(g),
		newBacktestCmd(g),
		newExportCmd(g),
		newZonesCmd(),
	)
	return root
}

// open returns a service over the sqlite store. The caller must Stop it.
func (g *globals) open(ctx context.Context, errOut io.Writer) (*service.Service, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	path := cfg.StorePath
	if g.db != "" {
		path = g.db
	}

	log := logger.Nop()
	if g.verbose {
		if err := logger.InitWithWriter(errOut); err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		_ = logger.SetLevelString(cfg.LogLevel)
		log = logger.Get()
	}

	store, err := repository.NewSQLiteStore(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return service.New(
		service.WithStore(store),
		service.WithLogger(log),
		service.WithCoefficients(cfg.Coefficients),
		service.WithGeneratorTimeout(time.Duration(cfg.GeneratorTimeoutMS)*time.Millisecond),
		service.WithBacktestConcurrency(cfg.BacktestConcurrency),
	), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
