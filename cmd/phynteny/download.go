package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/phynteny/phynteny-go/internal/category"
)

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the PHROG annotation table",
		Long: `Download the PHROG annotation table that maps PHROG identifiers to
functional categories. The table is stored in ~/.phynteny/ unless --output
is given, and every other command finds it there automatically.`,
		Example: `  phynteny download
  phynteny download --output /data/phrogs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd)
		},
	}
	cmd.Flags().String("output", "", "Output directory (default: --data-dir)")
	cmd.Flags().String("url", category.AnnotationTableURL(), "Annotation table URL")
	cmd.Flags().Bool("force", false, "Download even if the table already exists")
	return cmd
}

func runDownload(cmd *cobra.Command) error {
	destDir := viper.GetString("output")
	if destDir == "" {
		dir, err := dataDir()
		if err != nil {
			return err
		}
		destDir = dir
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", destDir, err)
	}

	dest := filepath.Join(destDir, category.AnnotationTableName())
	if viper.GetBool("force") {
		os.Remove(dest)
	}
	n, err := downloadFile(viper.GetString("url"), dest, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("download annotation table: %w", err)
	}
	if n < 0 {
		logger.Info("annotation table already present", zap.String("path", dest))
		return nil
	}

	if _, err := category.LoadAnnotationTable(dest); err != nil {
		return fmt.Errorf("downloaded table is unreadable: %w", err)
	}
	logger.Info("download complete", zap.String("path", dest), zap.String("size", formatSize(n)))
	return nil
}

// downloadFile downloads url to destPath through a temporary file, reporting
// progress on progress. It returns -1 when destPath already exists.
func downloadFile(url, destPath string, progress io.Writer) (int64, error) {
	if _, err := os.Stat(destPath); err == nil {
		return -1, nil
	}

	client := &http.Client{
		Timeout: 10 * time.Minute,
	}

	resp, err := client.Get(url)
	if err != nil {
		return 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}

	pw := &progressWriter{
		out:       progress,
		total:     resp.ContentLength,
		lastPrint: time.Now(),
	}

	_, err = io.Copy(f, io.TeeReader(resp.Body, pw))
	f.Close()

	if err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("download failed: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("rename file: %w", err)
	}
	return pw.downloaded, nil
}

// progressWriter tracks download progress.
type progressWriter struct {
	out        io.Writer
	total      int64
	downloaded int64
	lastPrint  time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.downloaded += int64(n)

	// Print progress every second
	if pw.out != nil && time.Since(pw.lastPrint) > time.Second {
		if pw.total > 0 {
			pct := float64(pw.downloaded) / float64(pw.total) * 100
			fmt.Fprintf(pw.out, "\r    Progress: %s / %s (%.1f%%)  ",
				formatSize(pw.downloaded), formatSize(pw.total), pct)
		} else {
			fmt.Fprintf(pw.out, "\r    Progress: %s  ", formatSize(pw.downloaded))
		}
		pw.lastPrint = time.Now()
	}

	return n, nil
}

// formatSize formats bytes as human-readable size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
