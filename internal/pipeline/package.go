package pipeline

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"zepdf/internal/services"
)

// packagePages bundles a multi-file engine output (one file per page) into
// a single zip archive so the pipeline still yields one terminal artifact.
// Entries are named page_N.<ext> in page order, matching the engine's own
// numbering.
func packagePages(paths []string, dir string) (string, int, error) {
	// Order by the page number embedded in the engine's filenames, not
	// lexically; page-10 follows page-9 whether or not the engine zero-pads.
	sort.SliceStable(paths, func(i, j int) bool {
		pi, pj := pageIndex(paths[i]), pageIndex(paths[j])
		if pi != pj {
			return pi < pj
		}
		return paths[i] < paths[j]
	})

	zipPath := filepath.Join(dir, "pages.zip")
	out, err := os.Create(zipPath)
	if err != nil {
		return "", 0, services.Wrap(services.ErrResource, "", "package pages", "create archive", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for i, path := range paths {
		entry, err := zw.Create(fmt.Sprintf("page_%d%s", i+1, filepath.Ext(path)))
		if err != nil {
			return "", 0, services.Wrap(services.ErrResource, "", "package pages", "create entry", err)
		}
		file, err := os.Open(path)
		if err != nil {
			return "", 0, services.Wrap(services.ErrResource, "", "package pages", "open page", err)
		}
		_, err = io.Copy(entry, file)
		file.Close()
		if err != nil {
			return "", 0, services.Wrap(services.ErrResource, "", "package pages", "write page", err)
		}
	}
	if err := zw.Close(); err != nil {
		return "", 0, services.Wrap(services.ErrResource, "", "package pages", "finalize archive", err)
	}
	if err := out.Close(); err != nil {
		return "", 0, services.Wrap(services.ErrResource, "", "package pages", "flush archive", err)
	}

	// Page files are intermediates once archived.
	for _, path := range paths {
		_ = os.Remove(path)
	}
	return zipPath, len(paths), nil
}

// pageIndex extracts the trailing page number from a filename stem, e.g.
// page-12 from page-12.png. Files without one sort first.
func pageIndex(path string) int {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	end := len(stem)
	for end > 0 && stem[end-1] >= '0' && stem[end-1] <= '9' {
		end--
	}
	if end == len(stem) {
		return -1
	}
	n, err := strconv.Atoi(stem[end:])
	if err != nil {
		return -1
	}
	return n
}
