package cmd

import (
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"costplan/core/store"
	"costplan/core/types"
)

var (
	gateMaxCost       string
	gateMinConfidence string
	gateMaxIncrease   string
	gateBaseline      string
)

var gateCmd = &cobra.Command{
	Use:   "gate <result-id>",
	Short: "Evaluate cost guardrails against a result",
	Long: `Evaluate a gate policy against a persisted result.

The process exits 0 when the gate passes and 1 when it fails, so the
command slots directly into CI pipelines.`,
	Args: cobra.ExactArgs(1),
	RunE: runGate,
}

func init() {
	gateCmd.Flags().StringVar(&gateMaxCost, "max-monthly-cost", "", "expected monthly cost ceiling")
	gateCmd.Flags().StringVar(&gateMinConfidence, "min-confidence", "", "lowest acceptable confidence (LOW, MEDIUM, HIGH)")
	gateCmd.Flags().StringVar(&gateMaxIncrease, "max-increase-pct", "", "allowed cost increase vs the baseline, in percent")
	gateCmd.Flags().StringVar(&gateBaseline, "baseline", "", "baseline result id for --max-increase-pct")
}

func runGate(cmd *cobra.Command, args []string) error {
	policy := store.GatePolicy{
		MinConfidence:    types.Confidence(gateMinConfidence),
		BaselineResultID: gateBaseline,
	}
	if gateMaxCost != "" {
		ceiling, err := decimal.NewFromString(gateMaxCost)
		if err != nil {
			return err
		}
		policy.MaxMonthlyCost = &ceiling
	}
	if gateMaxIncrease != "" {
		limit, err := decimal.NewFromString(gateMaxIncrease)
		if err != nil {
			return err
		}
		policy.MaxIncreasePct = &limit
	}

	var gate store.GateResult
	if err := call("POST", "/v1/results/"+args[0]+"/gate", policy, &gate); err != nil {
		return err
	}
	if err := printGate(os.Stdout, &gate); err != nil {
		return err
	}
	exitCode = gate.ExitCode
	return nil
}
