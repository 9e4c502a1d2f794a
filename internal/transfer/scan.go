package transfer

import (
	"io/fs"
	"os"
	"path/filepath"
)

// countFiles walks every source and counts the regular files that the run
// will try to transfer. Unreadable paths are skipped; the caller floors the
// result at one.
func countFiles(sources []string, onSkip func(path string, err error)) int {
	total := 0
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			onSkip(src, err)
			continue
		}
		if info.Mode().IsRegular() {
			total++
			continue
		}
		if !info.IsDir() {
			continue
		}

		_ = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				onSkip(path, err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				total++
			}
			return nil
		})
	}
	return total
}

// splitEntries separates a directory listing into regular files and
// subdirectories, preserving the lexical order of os.ReadDir. Symlinks and
// special files are returned separately so they can be reported.
func splitEntries(entries []os.DirEntry) (files, dirs, other []os.DirEntry) {
	for _, e := range entries {
		switch {
		case e.IsDir():
			dirs = append(dirs, e)
		case e.Type().IsRegular():
			files = append(files, e)
		default:
			other = append(other, e)
		}
	}
	return files, dirs, other
}
