package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DefaultKeep is the number of log files retained by CleanupOld.
const DefaultKeep = 5

// CleanupOld keeps the newest keep *.log files in dir (by modification
// time) and removes the rest. It returns the removed paths. A missing
// directory is not an error.
func CleanupOld(dir string, keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.log"))
	if err != nil {
		return nil, fmt.Errorf("glob logs: %w", err)
	}
	type entry struct {
		path string
		mod  int64
	}
	files := make([]entry, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, entry{path: m, mod: info.ModTime().UnixNano()})
	}
	if len(files) <= keep {
		return nil, nil
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].mod != files[j].mod {
			return files[i].mod > files[j].mod
		}
		return files[i].path > files[j].path
	})

	var removed []string
	for _, f := range files[keep:] {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove %s: %w", f.path, err)
		}
		removed = append(removed, f.path)
	}
	return removed, nil
}
