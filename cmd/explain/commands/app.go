package commands

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-explain/config"
	"github.com/nvr-ai/go-explain/dataset"
	"github.com/nvr-ai/go-explain/figure"
	"github.com/nvr-ai/go-explain/models"
	"github.com/nvr-ai/go-explain/profiler"
)

// app is the state shared by the stages of one invocation.
type app struct {
	cfg      config.Config
	ds       *dataset.Dataset
	clf      *models.Classifier
	prof     *profiler.StageProfiler
	exporter *figure.Exporter
}

// newApp loads the configuration, applies flag overrides, lists the dataset
// and prepares the classifier.
func newApp(cmd *cobra.Command, f *flags) (*app, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, f, &cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prof := profiler.New()

	done := prof.StartOperation("load dataset")
	dir := filepath.Join(cfg.DatasetDir, cfg.Split)
	records, err := dataset.PathsLabels(dir)
	done()
	if err != nil {
		return nil, err
	}
	log.Printf("📂 %d images in %s", len(records), dir)

	done = prof.StartOperation("load classifier")
	clf, err := loadClassifier(cfg, f)
	done()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:  cfg,
		ds:   dataset.New(records, dataset.ModeEval, dataset.WithSize(cfg.Architecture.InputSize)),
		clf:  clf,
		prof: prof,
	}
	if cfg.OutputDir != "" {
		a.exporter = figure.NewExporter(cfg.OutputDir)
	}
	if !cfg.Show && a.exporter == nil {
		log.Printf("⚠️  neither --show nor --output-dir is set, figures will not be kept")
	}
	return a, nil
}

// applyFlags copies explicitly set persistent flags over cfg.
func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("checkpoint") {
		cfg.Checkpoint = f.checkpoint
	}
	if changed("dataset") {
		cfg.DatasetDir = f.datasetDir
	}
	if changed("split") {
		cfg.Split = f.split
	}
	if changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if changed("show") {
		cfg.Show = f.show
	}
	if changed("indices") {
		cfg.Saliency.Indices = append([]int(nil), f.indices...)
		cfg.Filters.Indices = append([]int(nil), f.indices...)
		cfg.Lime.Indices = append([]int(nil), f.indices...)
	}
}

func loadClassifier(cfg config.Config, f *flags) (*models.Classifier, error) {
	var state models.StateDict
	if f.randomWeights {
		log.Printf("🎲 using random weights (seed %d)", f.seed)
		state = models.RandomStateDict(cfg.Architecture, f.seed)
	} else {
		var err error
		state, err = models.LoadCheckpoint(cfg.Checkpoint, cfg.Architecture)
		if err != nil {
			return nil, err
		}
		log.Printf("✅ loaded checkpoint %s", cfg.Checkpoint)
	}
	return models.NewClassifier(cfg.Architecture, state)
}

// batch loads the images at indices, checking them against the dataset size.
func (a *app) batch(indices []int) (*dataset.Batch, error) {
	if len(indices) == 0 {
		return nil, errors.New("no indices to explain")
	}
	for _, i := range indices {
		if i < 0 || i >= a.ds.Len() {
			return nil, errors.Errorf("index %d out of range [0, %d)", i, a.ds.Len())
		}
	}
	return a.ds.Batch(indices)
}

// emit saves and/or shows a figure.
func (a *app) emit(name string, fig *figure.Figure) error {
	if a.exporter != nil {
		if _, err := a.exporter.Save(name, fig); err != nil {
			return errors.Wrapf(err, "save %s", name)
		}
	}
	if a.cfg.Show {
		if err := figure.ShowFigure(fig); err != nil {
			return errors.Wrapf(err, "show %s", name)
		}
	}
	return nil
}

// title labels a panel with its dataset index and class.
func title(index, label int) string {
	return fmt.Sprintf("#%d %s", index, models.Food11Classes.LookupName(label))
}

func (a *app) report() {
	a.prof.Report(os.Stdout)
}
