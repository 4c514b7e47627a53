package main

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	dupefy "github.com/anatolykoptev/go-dupefy"
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
}

func newScanCmd(app *appConfig) *cobra.Command {
	var (
		dir        string
		threshold  float64
		timeWindow float64
		asJSON     bool
		useMtime   bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Group near-duplicate images in a local directory",
		Long: `Scan a directory tree for near-duplicate photos.

Capture times come from EXIF; files without EXIF fall back to their
modification time unless --mtime=false, in which case they never group.

Examples:
  # Default threshold (0.85) and 24h window
  dupefy scan --dir ~/Pictures/2024-06

  # Stricter matching inside a one-hour burst, as JSON
  dupefy scan --dir ./burst --threshold 0.95 --time-window 1 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			images, err := collectImages(dir, useMtime)
			if err != nil {
				return err
			}
			slog.Info("dupefy: scanning", "dir", dir, "images", len(images))

			engine := dupefy.NewEngine(dupefy.Config{Concurrency: app.cfg.Concurrency})
			stderr := cmd.ErrOrStderr()
			progress := dupefy.ReporterFunc(func(percent int, message string) {
				fmt.Fprintf(stderr, "[%3d%%] %s\n", percent, message)
			})

			res, err := engine.Run(cmd.Context(), images,
				dupefy.Params{Threshold: threshold, TimeWindowHours: timeWindow}, progress)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			return writeTable(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to scan recursively")
	cmd.Flags().Float64Var(&threshold, "threshold", dupefy.DefaultThreshold, "Minimum similarity in (0,1]")
	cmd.Flags().Float64Var(&timeWindow, "time-window", dupefy.DefaultTimeWindowHours, "Maximum capture-time gap in hours")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&useMtime, "mtime", true, "Use file modification time when EXIF has no capture time")
	return cmd
}

// collectImages reads every image file under dir. IDs are slash-separated
// paths relative to dir so that output is stable across platforms.
func collectImages(dir string, useMtime bool) ([]dupefy.ImageRecord, error) {
	var images []dupefy.ImageRecord
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !imageExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}

		rec := dupefy.ImageRecord{
			ID:         filepath.ToSlash(rel),
			Content:    data,
			Filename:   d.Name(),
			DisplayURL: path,
		}
		if t, ok := dupefy.CaptureTime(data); ok {
			rec.CapturedAt = t
		} else if useMtime {
			if info, err := d.Info(); err == nil {
				rec.CapturedAt = info.ModTime()
			}
		}
		images = append(images, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return images, nil
}

func writeTable(w io.Writer, res *dupefy.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tPRIMARY\tSIMILARITY\tQUALITY\tBLUR\tFILE")
	for _, g := range res.Groups {
		for _, img := range g.Images {
			primary := ""
			if img.IsPrimary {
				primary = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.1f\t%.1f\t%s\n",
				g.GroupID, primary, img.Similarity, img.QualityScore, img.BlurScore, img.AssetID)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d groups, %d of %d images analyzed, %d skipped\n",
		len(res.Groups), res.Analyzed, res.Total, len(res.Skipped))
	return err
}
