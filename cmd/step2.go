package main

import (
	"github.com/spf13/cobra"

	"github.com/ragbench/genread/internal/model"
)

var step2Params stageParams

var step2Cmd = &cobra.Command{
	Use:   "step2",
	Short: "Answer using the retrieved backgrounds",
	Long:  "Reads the stage-1 output file for the same dataset, split, and prompt variant, substitutes the retrieved background into the answer template, and prompts the completion model for the final answer.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStage(cmd.Context(), model.StageAnswer, step2Params)
	},
}

func init() {
	step2Cmd.Flags().StringVar(&step2Params.dataset, "dataset", "", "dataset name (nq, webq, tqa, twiki, sqa, fever, fm2, wizard)")
	step2Cmd.Flags().StringVar(&step2Params.split, "split", "", "dataset split (train, dev, test)")
	step2Cmd.Flags().StringVar(&step2Params.promptType, "prompt-type", "single_doc", "prompt template file (single_doc, multi_doc)")
	step2Cmd.Flags().StringVar(&step2Params.engine, "engine", "", "completion model (default from config)")
	_ = step2Cmd.MarkFlagRequired("dataset")
	_ = step2Cmd.MarkFlagRequired("split")

	step2Cmd.PreRun = func(_ *cobra.Command, _ []string) { applyStageDefaults(&step2Params) }

	rootCmd.AddCommand(step2Cmd)
}
