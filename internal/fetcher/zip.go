package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIPSingle extracts the single file from a ZIP that contains exactly
// one file. The file is written to destDir under prefix+name. Entries larger
// than maxBytes are rejected when maxBytes is positive.
func ExtractZIPSingle(zipPath, destDir, prefix string, maxBytes int64) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	// Filter to only files (skip directories)
	var files []*zip.File
	for _, f := range r.File {
		if !f.FileInfo().IsDir() {
			files = append(files, f)
		}
	}

	if len(files) != 1 {
		return "", eris.Errorf("zip: expected exactly 1 file, got %d", len(files))
	}

	return extractZIPEntry(files[0], destDir, prefix, maxBytes)
}

// extractZIPEntry writes f into destDir, flattening any directories in its name.
func extractZIPEntry(f *zip.File, destDir, prefix string, maxBytes int64) (string, error) {
	// Sanitize against zip slip
	if filepath.IsAbs(f.Name) || strings.HasPrefix(f.Name, "/") || slices.Contains(strings.Split(f.Name, "/"), "..") {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}
	destPath := filepath.Join(destDir, prefix+filepath.Base(f.Name))
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}
	if maxBytes > 0 && f.UncompressedSize64 > uint64(maxBytes) {
		return "", eris.Errorf("zip: %q is larger than %d bytes", f.Name, maxBytes)
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	var src io.Reader = rc
	if maxBytes > 0 {
		src = io.LimitReader(rc, maxBytes+1)
	}
	n, err := io.Copy(out, src)
	if err != nil {
		return "", eris.Wrap(err, "zip: write file")
	}
	if maxBytes > 0 && n > maxBytes {
		_ = os.Remove(destPath)
		return "", eris.Errorf("zip: %q is larger than %d bytes", f.Name, maxBytes)
	}

	return destPath, nil
}
