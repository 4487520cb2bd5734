package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mosaic-build/treeline/internal/cas"
	"github.com/mosaic-build/treeline/internal/config"
	"github.com/mosaic-build/treeline/internal/stats"
)

func packCmd() *cobra.Command {
	var outDir string
	var compress bool

	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Digest declared outputs and stage pending blobs into a local CAS directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cleanup, err := setupLogging()
			if err != nil {
				return err
			}
			defer cleanup()

			cfg, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}
			if !cmd.Flags().Changed("out") && cfg.Defaults.CASDir != nil {
				outDir = *cfg.Defaults.CASDir
			}
			if !cmd.Flags().Changed("compress") && cfg.Defaults.Compress != nil {
				compress = *cfg.Defaults.Compress
			}
			if outDir == "" {
				return fmt.Errorf("--out is required (or set cas_dir in the config file)")
			}

			m, result, collector, err := buildManifest(cmd)
			if err != nil {
				return err
			}

			store, err := cas.NewStore(outDir, compress)
			if err != nil {
				return err
			}

			staged := 0
			for d, path := range m.FileBlobs() {
				if store.Has(d) {
					continue
				}
				if err := store.PutFile(d, path); err != nil {
					return err
				}
				staged++
			}
			for d, unit := range m.BlobUnits() {
				if store.Has(d) {
					continue
				}
				if err := store.PutUnit(unit); err != nil {
					return err
				}
				staged++
			}

			slog.Info("staged pending blobs",
				"cas", outDir,
				"staged", staged,
				"bytes_digested", stats.FormatBytes(collector.Snapshot().BytesDigested),
			)
			return printManifest(m, result, collector)
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "CAS staging directory")
	cmd.Flags().BoolVar(&compress, "compress", false, "zstd-compress staged blobs")
	return cmd
}
