// Package main provides the build-index CLI for producing the
// manifest.json a "manifest" tiling dataset reads at startup.
//
// It walks a directory of raster files, opens each one to read its
// georeferencing, and writes the list of (path, bounds) entries in walk
// order; tileindex.NewManifest sorts them for its binary search on load.
//
// Usage:
//
//	build-index --dir ./data/custom-dem --out ./data/custom-dem/manifest.json
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jcom-dev/elevation-service/internal/raster"
	"github.com/jcom-dev/elevation-service/internal/tileindex"
)

var (
	dir     string
	out     string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "build-index",
		Short: "Build a manifest.json covering every raster under a directory",
		Long: `Build a manifest.json for a manifest-tiled dataset.

This command:
  1. Walks dir for .tif/.tiff/.hgt raster files
  2. Opens each one to read its georeferencing
  3. Writes a manifest.json listing every raster's path and geographic bounds

The resulting file is consumed by tileindex.LoadManifest at service startup.`,
		RunE: runBuildIndex,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

			if dir == "" {
				return fmt.Errorf("--dir is required")
			}
			if out == "" {
				out = filepath.Join(dir, "manifest.json")
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&dir, "dir", "", "Directory of raster files to index")
	rootCmd.PersistentFlags().StringVar(&out, "out", "", "Output manifest path (default: <dir>/manifest.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBuildIndex(cmd *cobra.Command, args []string) error {
	var entries []tileindex.ManifestEntry
	var totalBytes uint64

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".tif" && ext != ".tiff" && ext != ".hgt" {
			return nil
		}

		reader, err := raster.Open(path)
		if err != nil {
			slog.Warn("skipping unreadable raster", "path", path, "error", err)
			return nil
		}
		defer reader.Close()

		minLon, minLat, maxLon, maxLat := reader.Metadata().Bounds()
		entries = append(entries, tileindex.ManifestEntry{
			Path:   path,
			MinLat: minLat,
			MinLon: minLon,
			MaxLat: maxLat,
			MaxLon: maxLon,
		})

		size := "unknown size"
		if info, statErr := d.Info(); statErr == nil {
			totalBytes += uint64(info.Size())
			size = humanize.Bytes(uint64(info.Size()))
		}
		slog.Debug("indexed raster", "path", path, "size", size, "min_lat", minLat, "min_lon", minLon, "max_lat", maxLat, "max_lon", maxLon)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", dir, err)
	}

	if len(entries) == 0 {
		return fmt.Errorf("no raster files found under %s", dir)
	}

	slog.Info("rasters scanned", "count", len(entries), "total_size", humanize.Bytes(totalBytes))

	data, err := json.MarshalIndent(struct {
		Rasters []tileindex.ManifestEntry `json:"rasters"`
	}{Rasters: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	slog.Info("manifest written", "path", out, "rasters", len(entries))
	return nil
}
