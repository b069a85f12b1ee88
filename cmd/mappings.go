package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/location-crawler/internal/export"
	"github.com/JakeFAU/location-crawler/internal/storage"
)

func newMappingsCmd() *cobra.Command {
	var keyFlag string
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Builds name mappings and duplicate reports from combined files",
		Long: `Reads each <TYPE>-all.json written by combine and groups its records by
the mapping key. Groups with one record and groups with several are also
written separately, next to a report of names shared by distinct identifiers.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			raw := cfg.Mappings.Key
			if keyFlag != "" {
				raw = keyFlag
			}
			key, err := export.ParseKey(raw)
			if err != nil {
				return err
			}
			combined, err := appInstance.LocalWriter(cmd.Context(), cfg.CombinedDir())
			if err != nil {
				return err
			}
			out, err := appInstance.LocalWriter(cmd.Context(), cfg.MappingsDir())
			if err != nil {
				return err
			}
			for _, typ := range cfg.ExportTypes() {
				recs, err := combined.ReadCombined(cmd.Context(), typ)
				if errors.Is(err, storage.ErrNotFound) {
					appInstance.Logger().Warn("no combined file, run combine first", zap.String("type", string(typ)))
					continue
				}
				if err != nil {
					return err
				}
				stem := string(typ) + "-all"
				uris, err := out.WriteMappings(cmd.Context(), stem, recs, key)
				if err != nil {
					return err
				}
				dupes, err := out.WriteDuplicates(cmd.Context(), stem, recs)
				if err != nil {
					return err
				}
				if dupes != "" {
					uris = append(uris, dupes)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d files\n", typ, len(uris))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&keyFlag, "key", "", "record field to group by (defaults to mappings.key)")
	return cmd
}
