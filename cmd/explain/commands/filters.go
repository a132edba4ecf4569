package commands

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-explain/figure"
	"github.com/nvr-ai/go-explain/filters"
	"github.com/nvr-ai/go-explain/images"
)

func filtersCmd(appOf func() *app) *cobra.Command {
	var (
		layer, filter, iterations int
		lr                        float64
	)

	cmd := &cobra.Command{
		Use:   "filters",
		Short: "Plot filter activations and the filter visualization",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appOf()
			fc := &a.cfg.Filters
			if cmd.Flags().Changed("layer") {
				fc.Layer = layer
			}
			if cmd.Flags().Changed("filter") {
				fc.Filter = filter
			}
			if cmd.Flags().Changed("iterations") {
				fc.Iterations = iterations
			}
			if cmd.Flags().Changed("lr") {
				fc.LearningRate = lr
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.runFilters()
		},
	}

	cmd.Flags().IntVar(&layer, "layer", 0, "cnn layer index")
	cmd.Flags().IntVar(&filter, "filter", 0, "filter (channel) of the layer")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "gradient ascent steps")
	cmd.Flags().Float64Var(&lr, "lr", 0, "Adam learning rate")
	return cmd
}

// runFilters draws the optimized input of the filter, then the images with
// their activation maps.
func (a *app) runFilters() error {
	done := a.prof.StartOperation("filters")
	defer done()

	fc := a.cfg.Filters
	b, err := a.batch(fc.Indices)
	if err != nil {
		return err
	}

	res, err := filters.Explain(a.clf, b.Images, filters.Options{
		Layer:        fc.Layer,
		Filter:       fc.Filter,
		Iterations:   fc.Iterations,
		LearningRate: fc.LearningRate,
	})
	if err != nil {
		return err
	}
	if n := len(res.Objective); n > 0 {
		log.Printf("📈 filter %d of layer %d: activation %.4f -> %.4f over %d steps",
			fc.Filter, fc.Layer, res.Objective[0], res.Objective[n-1], n)
		a.prof.RecordMetric("filter_activation", res.Objective[n-1])
	}

	c, s := a.cfg.Architecture.InputChannels, a.cfg.Architecture.InputSize
	vis := figure.New(fmt.Sprintf("layer %d filter %d", fc.Layer, fc.Filter), 1, 1)
	visData := images.MinMax(res.Visualization.Data().([]float32))
	if err := vis.Set(0, 0, images.FromCHW(visData, c, s, s), "visualization"); err != nil {
		return err
	}
	if err := a.emit("filter-visualization", vis); err != nil {
		return err
	}

	shape := res.Activations.Shape()
	h, w := shape[1], shape[2]
	acts := res.Activations.Data().([]float32)
	fig := figure.New(fmt.Sprintf("layer %d filter %d activations", fc.Layer, fc.Filter), 2, b.Len())
	for i, label := range b.Labels {
		if err := fig.Set(0, i, images.FromCHW(b.Sample(i), c, s, s), title(b.Indices[i], label)); err != nil {
			return err
		}
		heat, err := figure.Heatmap(acts[i*h*w:(i+1)*h*w], h, w, nil)
		if err != nil {
			return err
		}
		if err := fig.Set(1, i, heat, "activation"); err != nil {
			return err
		}
	}
	return a.emit("filter-activations", fig)
}
