package commands

import "github.com/spf13/cobra"

// flags holds the persistent flag values shared by all subcommands.
type flags struct {
	configPath    string
	checkpoint    string
	datasetDir    string
	split         string
	outputDir     string
	indices       []int
	show          bool
	randomWeights bool
	seed          int64
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	var a *app

	root := &cobra.Command{
		Use:          "explain",
		Short:        "Explain a Food-11 image classifier",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a, err = newApp(cmd, f)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a != nil {
				a.report()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "YAML run configuration")
	pf.StringVar(&f.checkpoint, "checkpoint", "", "PyTorch checkpoint (.pth)")
	pf.StringVar(&f.datasetDir, "dataset", "", "dataset root directory")
	pf.StringVar(&f.split, "split", "", "dataset split directory under the root")
	pf.StringVarP(&f.outputDir, "output-dir", "o", "", "write figures as PNG into this directory")
	pf.IntSliceVar(&f.indices, "indices", nil, "dataset indices to explain")
	pf.BoolVar(&f.show, "show", false, "display figures in a window")
	pf.BoolVar(&f.randomWeights, "random-weights", false, "use randomly initialised weights instead of a checkpoint")
	pf.Int64Var(&f.seed, "seed", 1, "seed for --random-weights")

	appOf := func() *app { return a }
	root.AddCommand(
		saliencyCmd(appOf),
		filtersCmd(appOf),
		limeCmd(appOf),
		allCmd(appOf),
	)
	return root
}
