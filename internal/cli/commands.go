package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/pacer/internal/adapters/export"
	"github.com/okian/pacer/internal/adapters/fitfile"
	service "github.com/okian/pacer/internal/app"
	"github.com/okian/pacer/internal/domain/types"
	"github.com/okian/pacer/internal/domain/vdot"
)

func newSegmentCmd() *cobra.Command {
	var anySport bool
	cmd := &cobra.Command{
		Use:   "segment <file.fit>",
		Short: "Find the best sustained segment in a FIT activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			act, err := fitfile.ReadFile(args[0], fitfile.Options{AllowAnySport: anySport})
			if err != nil {
				return err
			}
			svc := service.New()
			defer func() { _ = svc.Stop(context.Background()) }()
			res, err := svc.SegmentOf(act.Stream)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().BoolVar(&anySport, "any-sport", false, "Accept non-running activities")
	return cmd
}

func newImportCmd(g *globals) *cobra.Command {
	var workoutType string
	cmd := &cobra.Command{
		Use:   "import <athlete> <file.fit>...",
		Short: "Import FIT activities as workouts with streams",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := g.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Stop(context.Background()) }()

			for _, path := range args[1:] {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				w, err := svc.ImportFIT(ctx, args[0], f, types.WorkoutType(workoutType))
				_ = f.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%.2f mi\t%.1f min\n",
					w.ID, w.Date.Format(time.DateOnly), w.DistanceMiles, w.DurationMinutes)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workoutType, "type", "", "Workout type for the imported runs")
	return cmd
}

func newPredictCmd(g *globals) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "predict <athlete>",
		Short: "Print the fused fitness index and race predictions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var at time.Time
			if asOf != "" {
				t, err := time.Parse(time.DateOnly, asOf)
				if err != nil {
					return fmt.Errorf("--as-of: %w", err)
				}
				at = t
			}
			svc, err := g.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Stop(context.Background()) }()

			res, err := svc.Predict(cmd.Context(), args[0], at)
			if err != nil {
				return err
			}
			if res.Prediction == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "insufficient data")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), res.Prediction)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "Estimate as of YYYY-MM-DD (default: now)")
	return cmd
}

func newBacktestCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "backtest <athlete>",
		Short: "Rebuild monthly history from the first recorded activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Stop(context.Background()) }()

			rep, err := svc.Backtest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "processed=%d skipped=%d failed=%d\n", rep.Processed, rep.Skipped, rep.Failed)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, e := range rep.Entries {
				fmt.Fprintf(tw, "%s\t%.1f\t%s\t%s\n", e.Date.Format("2006-01"), e.FitnessIndex, e.Confidence, e.Source)
			}
			return tw.Flush()
		},
	}
}

func newExportCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "export <athlete> <out.parquet>",
		Short: "Write an athlete's history to a parquet file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Stop(context.Background()) }()

			entries, err := svc.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := export.WriteHistoryFile(args[1], entries); err != nil {
				if errors.Is(err, export.ErrNoEntries) {
					return fmt.Errorf("athlete %s: %w", args[0], err)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d entries to %s\n", len(entries), args[1])
			return nil
		},
	}
}

func newZonesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "zones <index>",
		Short: "Print training paces for a fitness index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			z, err := vdot.ToPaceZones(idx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "index\t%.1f (%s)\n", z.Index, vdot.Label(z.Index))
			fmt.Fprintf(tw, "easy\t%s-%s\n", pace(z.Easy.Fast), pace(z.Easy.Slow))
			fmt.Fprintf(tw, "marathon\t%s\n", pace(z.Marathon))
			fmt.Fprintf(tw, "steady\t%s\n", pace(z.Steady))
			fmt.Fprintf(tw, "threshold\t%s\n", pace(z.Threshold))
			fmt.Fprintf(tw, "interval\t%s\n", pace(z.Interval))
			fmt.Fprintf(tw, "repetition\t%s\n", pace(z.Repetition))
			return tw.Flush()
		},
	}
}

// pace formats seconds per mile as m:ss/mi.
func pace(secondsPerMile float64) string {
	s := int(secondsPerMile + 0.5)
	return fmt.Sprintf("%d:%02d/mi", s/60, s%60)
}
