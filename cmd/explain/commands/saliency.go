package commands

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-explain/figure"
	"github.com/nvr-ai/go-explain/images"
	"github.com/nvr-ai/go-explain/saliency"
)

func saliencyCmd(appOf func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "saliency",
		Short: "Plot gradient saliency maps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return appOf().runSaliency()
		},
	}
}

// runSaliency draws the images on the first row and their saliency maps below.
func (a *app) runSaliency() error {
	done := a.prof.StartOperation("saliency")
	defer done()

	b, err := a.batch(a.cfg.Saliency.Indices)
	if err != nil {
		return err
	}
	maps, err := saliency.Compute(a.clf, b.Images, b.Labels)
	if err != nil {
		return err
	}

	c, s := a.cfg.Architecture.InputChannels, a.cfg.Architecture.InputSize
	stride := c * s * s
	data := maps.Data().([]float32)

	fig := figure.New("saliency", 2, b.Len())
	for i, label := range b.Labels {
		if err := fig.Set(0, i, images.FromCHW(b.Sample(i), c, s, s), title(b.Indices[i], label)); err != nil {
			return err
		}
		if err := fig.Set(1, i, images.FromCHW(data[i*stride:(i+1)*stride], c, s, s), "saliency"); err != nil {
			return err
		}
	}

	log.Printf("🔍 saliency maps for %d images", b.Len())
	return a.emit("saliency", fig)
}
