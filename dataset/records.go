// Package dataset - Labeled image directory accessor.
//
// A dataset directory holds files named "<label>_<anything>.<ext>". Records are
// listed once, sorted by file name, and images are only decoded when an item
// or batch is requested.
package dataset

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Record is one labeled image on disk.
type Record struct {
	// Path is the path to the image file.
	Path string
	// Label is the integer class parsed from the file name prefix.
	Label int
}

// PathsLabels lists every file in dir and derives its label from the name.
//
// Arguments:
//   - dir: Directory containing "<label>_*.ext" files.
//
// Returns:
//   - []Record: Records sorted by file name.
//   - error: An error if the directory cannot be read or a name has no integer prefix.
//
// @example
// records, err := dataset.PathsLabels("food-11/training")
func PathsLabels(dir string) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list dataset dir %s", dir)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	records := make([]Record, 0, len(names))
	for _, name := range names {
		label, err := ParseLabel(name)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{
			Path:  filepath.Join(dir, name),
			Label: label,
		})
	}
	return records, nil
}

// ParseLabel returns the integer before the first underscore of name.
func ParseLabel(name string) (int, error) {
	prefix, _, found := strings.Cut(name, "_")
	if !found {
		return 0, errors.Errorf("file name %q has no <label>_ prefix", name)
	}
	label, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, errors.Wrapf(err, "file name %q has a non integer label", name)
	}
	return label, nil
}
