package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"evater/api/internal/distribute"
	"evater/api/internal/exam"
)

var (
	planLength       string
	planDifficulty   string
	planInstructions []string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the question-type distribution for a test request",
	Example: `  evater plan --length Short --difficulty Easy --instruction "mcq only"
  evater plan --length Long --difficulty Hard --instruction "no true/false"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := exam.ParseLength(planLength)
		if err != nil {
			return err
		}
		d, err := exam.ParseDifficulty(planDifficulty)
		if err != nil {
			return err
		}
		res, err := distribute.New(cfg.Distribution).Plan(distribute.Request{
			Length:       l,
			Difficulty:   d,
			Instructions: planInstructions,
		})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"total":    res.Total(),
			"plan":     res.Plan,
			"guidance": res.Guidance,
		})
	},
}

func init() {
	planCmd.Flags().StringVar(&planLength, "length", "Short", "Short or Long")
	planCmd.Flags().StringVar(&planDifficulty, "difficulty", "Medium", "Easy, Medium or Hard")
	planCmd.Flags().StringArrayVar(&planInstructions, "instruction", nil, "special instruction (repeatable)")
}
