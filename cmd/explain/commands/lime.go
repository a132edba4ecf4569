package commands

import (
	"log"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-explain/figure"
	"github.com/nvr-ai/go-explain/images"
	"github.com/nvr-ai/go-explain/inference"
	"github.com/nvr-ai/go-explain/lime"
	"github.com/nvr-ai/go-explain/segmentation"
)

// KernelWidth is the LIME kernel width for superpixel on/off vectors.
const KernelWidth = 0.25

func limeCmd(appOf func() *app) *cobra.Command {
	var (
		samples   int
		onnxModel string
	)

	cmd := &cobra.Command{
		Use:   "lime",
		Short: "Plot LIME superpixel explanations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appOf()
			if cmd.Flags().Changed("samples") {
				a.cfg.Lime.NumSamples = samples
			}
			if cmd.Flags().Changed("onnx-model") {
				a.cfg.Lime.ONNXModel = onnxModel
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.runLime()
		},
	}

	cmd.Flags().IntVar(&samples, "samples", 0, "perturbed samples per image")
	cmd.Flags().StringVar(&onnxModel, "onnx-model", "", "classify perturbations with this ONNX export")
	return cmd
}

type sessionMetrics struct {
	session *inference.Session
}

func (m sessionMetrics) CollectMetrics() map[string]float64 {
	runs, mean := m.session.Metrics()
	return map[string]float64{
		"onnx_runs":    float64(runs),
		"onnx_mean_ms": float64(mean.Microseconds()) / 1000,
	}
}

// classifier returns the function used to score perturbations and a release
// function for it.
func (a *app) classifier() (lime.ClassifierFunc, func(), error) {
	lc := a.cfg.Lime
	if lc.ONNXModel == "" {
		return a.clf.Predict, func() {}, nil
	}

	arch := a.cfg.Architecture
	args := inference.DefaultSessionArgs(lc.ONNXModel)
	args.LibraryPath = lc.ONNXLibrary
	args.BatchSize = lc.BatchSize
	args.Channels = arch.InputChannels
	args.Size = arch.InputSize
	args.Classes = arch.Classes

	session, err := inference.NewSession(args)
	if err != nil {
		return nil, nil, err
	}
	a.prof.AddMetricsCollector(sessionMetrics{session: session})
	return session.Predict, func() {
		if err := session.Close(); err != nil {
			log.Printf("❌ %v", err)
		}
	}, nil
}

// runLime explains every image against its true label.
func (a *app) runLime() error {
	done := a.prof.StartOperation("lime")
	defer done()

	lc := a.cfg.Lime
	b, err := a.batch(lc.Indices)
	if err != nil {
		return err
	}

	classify, release, err := a.classifier()
	if err != nil {
		return err
	}
	defer release()

	seg := segmentation.DefaultOptions()
	seg.Segments = lc.Segments
	seg.Compactness = lc.Compactness
	seg.Sigma = lc.Sigma

	opts := lime.DefaultOptions()
	opts.TopLabels = lc.TopLabels
	opts.NumSamples = lc.NumSamples
	opts.BatchSize = lc.BatchSize
	opts.Seed = lc.Seed
	opts.Rand = rand.New(rand.NewSource(lc.Seed))
	opts.Progress = true

	mask := lime.DefaultMaskOptions()
	mask.NumFeatures = lc.NumFeatures
	mask.MinWeight = lc.MinWeight

	c, s := a.cfg.Architecture.InputChannels, a.cfg.Architecture.InputSize
	explainer := lime.NewExplainer(KernelWidth)
	fig := figure.New("lime", 1, b.Len())
	for i, label := range b.Labels {
		img := images.CHWToHWC(b.Sample(i), c, s, s)
		opts.Labels = []int{label}

		exp, err := explainer.ExplainInstance(img, s, s, classify, seg.Segment, opts)
		if err != nil {
			return err
		}
		out, _, err := exp.ImageAndMask(label, mask)
		if err != nil {
			return err
		}

		log.Printf("🍋 %s: %d superpixels, score %.3f, top labels %v",
			title(b.Indices[i], label), exp.NumSegments, exp.Score[label], exp.TopLabels)
		a.prof.RecordMetric("lime_score", exp.Score[label])

		if err := fig.Set(0, i, images.FromHWC(out, s, s), title(b.Indices[i], label)); err != nil {
			return err
		}
	}
	return a.emit("lime", fig)
}
