package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the state of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var job map[string]interface{}
		if err := call("GET", "/v1/jobs/"+args[0], nil, &job); err != nil {
			return err
		}
		return printJob(os.Stdout, job)
	},
}
