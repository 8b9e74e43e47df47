package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"costplan/core/orchestrator"
)

var (
	submitUpload  string
	submitRegion  string
	submitProfile string
	submitKey     string
	submitWait    bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit an uploaded IaC bundle for estimation",
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitUpload, "upload", "", "upload reference of the IaC bundle (required)")
	submitCmd.Flags().StringVar(&submitRegion, "region", "", "estimation region (required)")
	submitCmd.Flags().StringVar(&submitProfile, "profile", "", "usage profile name")
	submitCmd.Flags().StringVar(&submitKey, "idempotency-key", "", "idempotency key for safe resubmission")
	submitCmd.Flags().BoolVar(&submitWait, "wait", false, "block until the job reaches a terminal state")
	submitCmd.MarkFlagRequired("upload")
	submitCmd.MarkFlagRequired("region")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	var job map[string]interface{}
	err := call("POST", "/v1/jobs", orchestrator.SubmitRequest{
		UploadReference: submitUpload,
		Region:          submitRegion,
		UsageProfile:    submitProfile,
		IdempotencyKey:  submitKey,
	}, &job)
	if err != nil {
		return err
	}

	jobID, _ := job["job_id"].(string)
	if !submitWait {
		return printJob(os.Stdout, job)
	}

	for {
		time.Sleep(time.Second)
		if err := call("GET", "/v1/jobs/"+jobID, nil, &job); err != nil {
			return err
		}
		state, _ := job["current_state"].(string)
		if state == "COMPLETED" || state == "FAILED" {
			break
		}
		fmt.Fprintf(os.Stderr, "job %s: %s (%v%%)\n", jobID, state, job["progress"])
	}
	return printJob(os.Stdout, job)
}
