package figure

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/google/uuid"
)

// Exporter writes the figures of one run under a shared run id, so repeated
// runs into the same directory never overwrite each other.
type Exporter struct {
	Dir   string
	RunID uuid.UUID
}

// NewExporter returns an exporter with a fresh run id.
func NewExporter(dir string) *Exporter {
	return &Exporter{Dir: dir, RunID: uuid.New()}
}

// Path returns the PNG path of the named figure.
func (e *Exporter) Path(name string) string {
	return filepath.Join(e.Dir, fmt.Sprintf("%s-%s.png", name, e.RunID.String()[:8]))
}

// Save writes f as the named figure and returns its path.
func (e *Exporter) Save(name string, f *Figure) (string, error) {
	path := e.Path(name)
	if err := f.SavePNG(path); err != nil {
		return "", err
	}
	log.Printf("💾 saved %s", path)
	return path, nil
}
