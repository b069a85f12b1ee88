// Package cmd defines and implements the CLI commands for the location-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/location-crawler/internal/app"
	"github.com/JakeFAU/location-crawler/internal/chunk"
	"github.com/JakeFAU/location-crawler/internal/config"
	"github.com/JakeFAU/location-crawler/internal/crawler"
	"github.com/JakeFAU/location-crawler/internal/export"
	"github.com/JakeFAU/location-crawler/internal/location"
	"github.com/JakeFAU/location-crawler/internal/sitemap"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use. Tests inject a
// fake through newApp.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	CrawlConfig(typ location.Type) crawler.Config
	Engine(ctx context.Context, cfg crawler.Config) (*crawler.Engine, error)
	ChunkStore(typ location.Type) (*chunk.Store, error)
	SitemapDownloader(ctx context.Context) (*sitemap.Downloader, error)
	LocalWriter(ctx context.Context, dir string) (*export.Writer, error)
	PublishWriter(ctx context.Context) (*export.Writer, error)
	RecordSink(ctx context.Context) (export.RecordSink, error)
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	return app.NewApp(ctx, cfgPath)
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "location-crawler",
		Short: "Enumerates location identifiers and records their names.",
		Long: `location-crawler walks the integer index space of each location type,
resolving every identifier to its display name and area. Results are written
to append-only chunk files so that an interrupted crawl resumes where it
stopped. Further subcommands mirror the site's sitemaps, combine chunks and
build mapping reports.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Build the application once flags are parsed and hand it to the
		// subcommand through the holder placed in the context by run.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			holder, ok := cmd.Context().Value(appKey).(*appHolder)
			if !ok {
				return errors.New("command context has no application holder")
			}
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			zap.ReplaceGlobals(appInstance.Logger())
			holder.app = appInstance
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(
		newCrawlCmd(),
		newSitemapsCmd(),
		newCombineCmd(),
		newMappingsCmd(),
		newExportCmd(),
	)
	return cmd
}

// appHolder carries the App out of cobra so it is closed even when RunE fails,
// which skips the post-run hooks.
type appHolder struct {
	app App
}

func resolveApp(ctx context.Context) (App, error) {
	holder, ok := ctx.Value(appKey).(*appHolder)
	if !ok || holder.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return holder.app, nil
}

// run executes root and closes whatever App the command built.
func run(ctx context.Context, root *cobra.Command) error {
	holder := &appHolder{}
	err := root.ExecuteContext(context.WithValue(ctx, appKey, holder))
	if holder.app != nil {
		holder.app.Close()
	}
	return err
}

// Execute is the main entry point.
func Execute() {
	if err := run(context.Background(), newRootCmd()); err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
