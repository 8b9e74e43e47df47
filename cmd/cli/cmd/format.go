package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"costplan/core/store"
	"costplan/core/types"
)

// printJSON renders any payload as indented JSON.
func printJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// printJob renders one job as a key/value table.
func printJob(w io.Writer, job map[string]interface{}) error {
	if outputFormat == "json" {
		return printJSON(w, job)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, key := range []string{"job_id", "current_state", "progress", "region", "usage_profile", "error_message", "result_reference"} {
		if v, ok := job[key]; ok && v != "" && v != nil {
			fmt.Fprintf(tw, "%s\t%v\n", key, v)
		}
	}
	return tw.Flush()
}

// printResult renders the cost model: per-resource scenarios, the
// service aggregation, and the total.
func printResult(w io.Writer, result *types.Result) error {
	if outputFormat == "json" {
		return printJSON(w, result)
	}

	model := result.Model
	fmt.Fprintf(w, "Result %s (job %s)\n", result.ID, result.JobID)
	fmt.Fprintf(w, "Plan hash %s, pricing snapshot %s, confidence %s\n\n",
		result.PlanHash, result.PricingSnapshot, model.OverallConfidence)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tSERVICE\tMIN\tEXPECTED\tMAX\tCONFIDENCE")
	for _, rc := range model.ResourceCosts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rc.Address, rc.Service,
			rc.Scenario.Min.StringFixed(2),
			rc.Scenario.Expected.StringFixed(2),
			rc.Scenario.Max.StringFixed(2),
			rc.Confidence)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(model.AggregatedByService) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SERVICE\tEXPECTED/MONTH\tRESOURCES")
		for _, agg := range model.AggregatedByService {
			fmt.Fprintf(tw, "%s\t%s\t%d\n",
				agg.GroupValue, agg.Scenario.Expected.StringFixed(2), agg.ResourceCount)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "\nTotal %s %s/month (min %s, max %s)\n",
		model.Currency,
		model.Total.Scenario.Expected.StringFixed(2),
		model.Total.Scenario.Min.StringFixed(2),
		model.Total.Scenario.Max.StringFixed(2))
	return nil
}

// printComparison renders a result diff.
func printComparison(w io.Writer, cmp *store.Comparison) error {
	if outputFormat == "json" {
		return printJSON(w, cmp)
	}

	fmt.Fprintf(w, "Base %s -> head %s\n", cmp.BaseResultID, cmp.HeadResultID)
	fmt.Fprintf(w, "Total %s -> %s (delta %s, %s%%)\n\n",
		cmp.TotalBefore.StringFixed(2), cmp.TotalAfter.StringFixed(2),
		cmp.TotalDelta.StringFixed(2), cmp.DeltaPercent)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANGE\tRESOURCE\tBEFORE\tAFTER\tDELTA")
	for _, r := range cmp.Resources {
		if r.ChangeType == store.ChangeUnchanged {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ChangeType, r.Address,
			r.Before.StringFixed(2), r.After.StringFixed(2), r.Delta.StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d added, %d removed, %d changed, %d unchanged\n",
		cmp.AddedCount, cmp.RemovedCount, cmp.ChangedCount, cmp.UnchangedCount)
	return nil
}

// printGate renders a gate verdict.
func printGate(w io.Writer, gate *store.GateResult) error {
	if outputFormat == "json" {
		return printJSON(w, gate)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE\tPASSED\tMESSAGE")
	for _, r := range gate.Results {
		fmt.Fprintf(tw, "%s\t%t\t%s\n", r.RuleName, r.Passed, r.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	verdict := "PASSED"
	if !gate.Passed {
		verdict = "FAILED"
	}
	fmt.Fprintf(w, "\nGate %s for result %s\n", verdict, gate.ResultID)
	return nil
}
