package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"costplan/core/types"
)

var resultCmd = &cobra.Command{
	Use:   "result <job-id>",
	Short: "Show the persisted cost result of a completed job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result types.Result
		if err := call("GET", "/v1/jobs/"+args[0]+"/result", nil, &result); err != nil {
			return err
		}
		return printResult(os.Stdout, &result)
	},
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the available usage profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp map[string]interface{}
		if err := call("GET", "/internal/usage/profiles", nil, &resp); err != nil {
			return err
		}
		return printJSON(os.Stdout, resp)
	},
}
