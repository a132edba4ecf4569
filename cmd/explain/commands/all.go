package commands

import "github.com/spf13/cobra"

func allCmd(appOf func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run the saliency, filters and lime stages in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appOf()
			for _, stage := range []func() error{a.runSaliency, a.runFilters, a.runLime} {
				if err := stage(); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
