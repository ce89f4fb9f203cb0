package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mediascribe/internal/domain"
)

func (p *program) newModelsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List whisper.cpp models and their download state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := p.catalog()
			fmt.Fprintf(cmd.OutOrStdout(), "Model directory: %s\n", catalog.Dir())
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIER\tNAME\tSIZE\tSTATE")
			for _, model := range catalog.List() {
				state := "missing"
				if model.Downloaded {
					state = model.LocalPath
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", model.Tier, model.Name, model.SizeLabel, state)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "download <tier>",
		Short: "Download the model for one tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := domain.ParseModelTier(args[0])
			if err != nil {
				return err
			}
			path, err := p.catalog().Download(cmd.Context(), tier)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model %s saved to %s\n", tier, path)
			return nil
		},
	})
	return cmd
}
