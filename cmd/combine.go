package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/location-crawler/internal/export"
)

func newCombineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "combine",
		Short: "Concatenates chunk files into one file per type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			writer, err := appInstance.LocalWriter(cmd.Context(), cfg.CombinedDir())
			if err != nil {
				return err
			}
			for _, typ := range cfg.ExportTypes() {
				store, err := appInstance.ChunkStore(typ)
				if err != nil {
					return err
				}
				recs, err := export.Combine(store)
				if err != nil {
					return fmt.Errorf("combine %s: %w", typ, err)
				}
				uri, err := writer.WriteCombined(cmd.Context(), typ, recs)
				if err != nil {
					return err
				}
				appInstance.Logger().Info("combined chunks",
					zap.String("type", string(store.Type())),
					zap.String("dir", store.Dir()),
					zap.Int("records", len(recs)),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d records -> %s\n", typ, len(recs), uri)
			}
			return nil
		},
	}
}
