package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/location-crawler/internal/export"
	"github.com/JakeFAU/location-crawler/internal/storage"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Publishes combined files and reports to the export backend",
		Long: `Copies each combined file, its mappings and its duplicate report to
export.backend (a local directory or a GCS bucket). When export.postgres_dsn
is set the records are also upserted into export.records_table.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			appInstance, err := resolveApp(ctx)
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			key, err := export.ParseKey(cfg.Mappings.Key)
			if err != nil {
				return err
			}
			combined, err := appInstance.LocalWriter(ctx, cfg.CombinedDir())
			if err != nil {
				return err
			}
			publish, err := appInstance.PublishWriter(ctx)
			if err != nil {
				return err
			}
			sink, err := appInstance.RecordSink(ctx)
			if err != nil {
				return err
			}
			for _, typ := range cfg.ExportTypes() {
				recs, err := combined.ReadCombined(ctx, typ)
				if errors.Is(err, storage.ErrNotFound) {
					appInstance.Logger().Warn("no combined file, run combine first", zap.String("type", string(typ)))
					continue
				}
				if err != nil {
					return err
				}
				if _, err := publish.WriteCombined(ctx, typ, recs); err != nil {
					return err
				}
				stem := string(typ) + "-all"
				if _, err := publish.WriteMappings(ctx, stem, recs, key); err != nil {
					return err
				}
				if _, err := publish.WriteDuplicates(ctx, stem, recs); err != nil {
					return err
				}
				upserted := 0
				if sink != nil {
					if upserted, err = sink.UpsertRecords(ctx, recs); err != nil {
						return fmt.Errorf("upsert %s: %w", typ, err)
					}
				}
				appInstance.Logger().Info("exported",
					zap.String("type", string(typ)),
					zap.Int("records", len(recs)),
					zap.Int("upserted", upserted),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d records exported\n", typ, len(recs))
			}
			return nil
		},
	}
}
