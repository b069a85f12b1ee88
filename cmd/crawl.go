package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/location-crawler/internal/location"
)

func newCrawlCmd() *cobra.Command {
	var (
		typeFlag string
		start    int
		end      int
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Resolves location identifiers into chunk files",
		Long: `Scans identifiers of one location type in ascending index order and
appends every resolved record to its chunk file. Without --start the scan
resumes after the last recorded index. A failure stops the run; running the
command again picks up from the failed index.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			typ := appInstance.Config().LocationType()
			if typeFlag != "" {
				if typ, err = location.ParseType(typeFlag); err != nil {
					return err
				}
			}
			cfg := appInstance.CrawlConfig(typ)
			if cmd.Flags().Changed("start") {
				cfg.StartIndex = &start
			}
			if cmd.Flags().Changed("end") {
				cfg.EndIndex = &end
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine, err := appInstance.Engine(ctx, cfg)
			if err != nil {
				return fmt.Errorf("build crawler: %w", err)
			}
			summary, err := engine.Run(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: fetched %d, written %d, absent %d, resume at chunk %d index %d (%s)\n",
				summary.Type, summary.Fetched, summary.Written, summary.Absent,
				summary.Final.ChunkStart, summary.Final.ScrapeIndex, summary.StopReason)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run crawler: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&typeFlag, "type", "", "location type to crawl (defaults to location.location_type)")
	cmd.Flags().IntVar(&start, "start", 0, "first index to scan; aligned down to its chunk")
	cmd.Flags().IntVar(&end, "end", 0, "exclusive upper bound on scanned indices")
	return cmd
}
