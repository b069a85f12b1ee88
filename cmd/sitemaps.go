package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSitemapsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sitemaps",
		Short: "Mirrors the site's sitemap files",
		Long: `Downloads the sitemap index and every category sitemap it lists for the
configured sitemap.types. Files already on disk are kept unless
sitemap.overwrite is set. The crawl command reads them back to skip indices
the site does not publish.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			downloader, err := appInstance.SitemapDownloader(cmd.Context())
			if err != nil {
				return err
			}
			result, err := downloader.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("download sitemaps: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded %d sitemaps, skipped %d\n", len(result.Downloaded), result.Skipped)
			return nil
		},
	}
}
