package analytics

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

// findParquetFiles walks dir recursively (analytics files are organized in
// date-partitioned subdirectories) and returns every *.parquet file found.
func findParquetFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".parquet" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return files, nil
}

func hasParquetFiles(dir string) bool {
	files, err := findParquetFiles(dir)
	return err == nil && len(files) > 0
}

// readRows reads every row of type T out of every Parquet file in dir.
func readRows[T any](dir string) ([]T, error) {
	files, err := findParquetFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("analytics: listing %s: %w", dir, err)
	}

	var out []T
	for _, path := range files {
		rows, err := readFile[T](path)
		if err != nil {
			return nil, fmt.Errorf("analytics: reading %s: %w", path, err)
		}
		out = append(out, rows...)
	}
	return out, nil
}

func readFile[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := parquet.NewGenericReader[T](f)
	defer reader.Close()

	rows := make([]T, 0, reader.NumRows())
	buf := make([]T, 512)
	for {
		n, err := reader.Read(buf)
		rows = append(rows, buf[:n]...)
		if err != nil {
			break
		}
	}
	return rows, nil
}

// readSearchRows reads every search row for experimentID out of an index's
// searches directory.
func readSearchRows(searchesDir, experimentID string) ([]searchRow, error) {
	all, err := readRows[searchRow](searchesDir)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, row := range all {
		if row.ExperimentID == experimentID {
			out = append(out, row)
		}
	}
	return out, nil
}

// readPreSearchRows reads search rows for a time window, used for
// pre-experiment CUPED covariates.
func readPreSearchRows(searchesDir string, windowStartMs, windowEndMs int64) ([]preSearchRow, error) {
	all, err := readRows[preSearchRow](searchesDir)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, row := range all {
		if row.TimestampMs >= windowStartMs && row.TimestampMs < windowEndMs {
			out = append(out, row)
		}
	}
	return out, nil
}

// readEventRows reads every insight event row out of an index's events
// directory with a non-empty query_id.
func readEventRows(eventsDir string) ([]eventRow, error) {
	all, err := readRows[eventRow](eventsDir)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, row := range all {
		if row.QueryID != "" {
			out = append(out, row)
		}
	}
	return out, nil
}
