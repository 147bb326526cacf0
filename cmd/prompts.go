package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPromptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prompts",
		Short: "List the processing options offered to visitors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLABEL\tDEFAULT")
			for _, p := range cfg.Prompts {
				def := ""
				if p.ID == cfg.DefaultPrompt {
					def = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Label, def)
			}
			return w.Flush()
		},
	}
}
