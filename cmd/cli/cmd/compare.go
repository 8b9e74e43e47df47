package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"costplan/core/store"
)

var compareCmd = &cobra.Command{
	Use:   "compare <base-result-id> <head-result-id>",
	Short: "Diff two persisted results",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var cmp store.Comparison
		err := call("POST", "/v1/results/compare", map[string]string{
			"base_result_id": args[0],
			"head_result_id": args[1],
		}, &cmp)
		if err != nil {
			return err
		}
		return printComparison(os.Stdout, &cmp)
	},
}
