package store

import (
	"fmt"
	"os"
)

// writeFileAtomic writes data to a sibling temp file and renames it over
// path, so a crash mid-write never leaves a truncated store behind. Callers
// hold the relevant store lock, which keeps the temp name from colliding.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
