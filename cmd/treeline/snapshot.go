package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mosaic-build/treeline/internal/config"
	"github.com/mosaic-build/treeline/internal/event"
	"github.com/mosaic-build/treeline/internal/manifest"
	"github.com/mosaic-build/treeline/internal/stats"
	"github.com/mosaic-build/treeline/internal/ui"
)

func snapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Digest declared outputs and report the pending upload set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cleanup, err := setupLogging()
			if err != nil {
				return err
			}
			defer cleanup()

			m, result, collector, err := buildManifest(cmd)
			if err != nil {
				return err
			}
			return printManifest(m, result, collector)
		},
	}
}

// buildManifest runs the shared snapshot pipeline: config defaults,
// flag parsing, then AddFiles/AddDirectories/stdout/stderr placement.
func buildManifest(cmd *cobra.Command) (*manifest.Manifest, *manifest.ActionResult, *stats.Collector, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config", "error", err)
	}
	applyConfigDefaults(cmd, cfg.Defaults)

	inlineLimit, err := config.ParseSize(flags.inlineLimit)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid --inline-limit: %w", err)
	}
	policy, err := parsePolicy(flags.policyName)
	if err != nil {
		return nil, nil, nil, err
	}

	execRoot, err := filepath.Abs(flags.execRoot)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve root %s: %w", flags.execRoot, err)
	}

	collector := stats.NewCollector()
	events := make(chan event.Event, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			slog.Debug("treeline.event",
				"type", ev.Type.String(),
				"path", ev.Path,
				"size", ev.Size,
			)
		}
	}()

	result := &manifest.ActionResult{}
	m := manifest.New(result, manifest.Options{
		ExecRoot:      execRoot,
		AllowSymlinks: flags.allowSymlinks,
		InlineLimit:   inlineLimit,
		Events:        events,
		Stats:         collector,
	})

	err = addOutputs(m, execRoot, policy)
	close(events)
	<-done
	if err != nil {
		return nil, nil, nil, err
	}
	return m, result, collector, nil
}

func addOutputs(m *manifest.Manifest, execRoot string, policy manifest.InsertPolicy) error {
	if err := m.AddFiles(resolvePaths(execRoot, flags.files), policy); err != nil {
		return err
	}
	if err := m.AddDirectories(resolvePaths(execRoot, flags.dirs)); err != nil {
		return err
	}
	if flags.stdoutFile != "" {
		content, err := os.ReadFile(flags.stdoutFile)
		if err != nil {
			return fmt.Errorf("read stdout file: %w", err)
		}
		m.AddStdout(content, policy)
	}
	if flags.stderrFile != "" {
		content, err := os.ReadFile(flags.stderrFile)
		if err != nil {
			return fmt.Errorf("read stderr file: %w", err)
		}
		m.AddStderr(content, policy)
	}
	return nil
}

// resolvePaths anchors relative declared outputs at the exec root.
func resolvePaths(execRoot string, paths []string) []string {
	resolved := make([]string, len(paths))
	for i, p := range paths {
		if filepath.IsAbs(p) {
			resolved[i] = p
		} else {
			resolved[i] = filepath.Join(execRoot, p)
		}
	}
	return resolved
}

func parsePolicy(name string) (manifest.InsertPolicy, error) {
	switch name {
	case "always":
		return manifest.AlwaysInsert, nil
	case "above-limit":
		return manifest.InsertAboveLimit, nil
	case "never":
		return manifest.NeverInsert, nil
	default:
		return 0, fmt.Errorf("unknown insert policy %q (use always, above-limit, or never)", name)
	}
}

// jsonReport is the --json output shape.
type jsonReport struct {
	Result       *manifest.ActionResult `json:"result"`
	FileBlobs    map[string]string      `json:"file_blobs"`    // hex hash -> path
	PendingBlobs []string               `json:"pending_blobs"` // hex hashes of materialized units
}

func printManifest(m *manifest.Manifest, result *manifest.ActionResult, collector *stats.Collector) error {
	if flags.jsonOut {
		report := jsonReport{
			Result:    result,
			FileBlobs: make(map[string]string, len(m.FileBlobs())),
		}
		for d, path := range m.FileBlobs() {
			report.FileBlobs[d.HexHash()] = path
		}
		for d := range m.BlobUnits() {
			report.PendingBlobs = append(report.PendingBlobs, d.HexHash())
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	snap := collector.Snapshot()
	ui.WriteSummary(os.Stdout, result, m, &snap)
	return nil
}
