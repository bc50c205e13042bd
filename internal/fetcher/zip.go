package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadbatch/internal/resilience"
)

// leadExtensions are the file types ingest can read.
var leadExtensions = map[string]bool{
	".csv":  true,
	".tsv":  true,
	".txt":  true,
	".xlsx": true,
}

// ExtractLeadFile unpacks the single lead file in a zip archive into destDir.
// Directories, dotfiles and macOS resource forks are ignored; any other count
// than one lead file is a configuration error.
func ExtractLeadFile(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: open zip")
	}
	defer r.Close() //nolint:errcheck

	var leads []*zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		base := filepath.Base(f.Name)
		if strings.HasPrefix(base, ".") {
			continue
		}
		if leadExtensions[strings.ToLower(filepath.Ext(base))] {
			leads = append(leads, f)
		}
	}

	if len(leads) != 1 {
		return "", resilience.NewFatalConfigError(
			"zip input must contain exactly one .csv, .tsv or .xlsx file", eris.Errorf("found %d in %s", len(leads), zipPath))
	}
	return extractZIPEntry(leads[0], destDir)
}

// extractZIPEntry extracts a single zip.File to the destination directory.
func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	// Sanitize against zip slip
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("fetcher: illegal zip path %q", f.Name)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "fetcher: create zip parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "fetcher: open zip entry")
	}
	defer rc.Close() //nolint:errcheck

	if _, err := writeFile(destPath, io.LimitReader(rc, int64(f.UncompressedSize64))); err != nil {
		return "", err
	}
	return destPath, nil
}
