package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/evcorridor/core/demand"
)

var yearsCmd = &cobra.Command{
	Use:   "years",
	Short: "List the supported forecast years and their demand multiplier",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, y := range demand.Years() {
			s, err := demand.YearScalar(y)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%.2f\n", y, s)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(yearsCmd)
}
