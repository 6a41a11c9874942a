package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tb0hdan/polyprompt-mcp/pkg/config"
)

var showUnavailable bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the model catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		reg := cfg.Registry()
		list := reg.Available()
		if showUnavailable {
			list = reg.List()
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPROVIDER\tUPSTREAM\tIN $/1K\tOUT $/1K\tAVAILABLE")
		for _, m := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%g\t%t\n",
				m.ID, m.Provider, m.UpstreamID, m.CostPer1kInput, m.CostPer1kOutput, m.Available)
		}
		return w.Flush()
	},
}

func init() {
	modelsCmd.Flags().BoolVar(&showUnavailable, "all", false, "include unavailable models")
	rootCmd.AddCommand(modelsCmd)
}
