package pipeline

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/ppiankov/headcheck/internal/table"
)

// Persist writes columns of result to path. An existing file keeps its rows
// and other columns; the named columns are merged in by row index, replacing
// same-named ones. Otherwise result is written in full.
func Persist(path string, result *table.Table, columns ...string) error {
	existing, err := table.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := result.Save(path); err != nil {
			return fmt.Errorf("persist %s: %w", path, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("persist %s: %w", path, err)
	}

	if err := existing.MergeColumns(result, columns...); err != nil {
		return fmt.Errorf("persist %s: %w", path, err)
	}
	if err := existing.Save(path); err != nil {
		return fmt.Errorf("persist %s: %w", path, err)
	}
	return nil
}
