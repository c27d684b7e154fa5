package main

import (
	"github.com/spf13/cobra"

	"github.com/ragbench/genread/internal/model"
)

var step1Params stageParams

var step1Cmd = &cobra.Command{
	Use:   "step1",
	Short: "Generate background passages and retrieve the pages they cite",
	Long:  "For each benchmark example, prompts the completion model to write a background passage with hyperlinks, extracts the linked topics, fetches their encyclopedia pages, and appends one record per example to the backgrounds output file.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStage(cmd.Context(), model.StageGenerate, step1Params)
	},
}

func init() {
	step1Cmd.Flags().StringVar(&step1Params.dataset, "dataset", "", "dataset name (nq, webq, tqa, twiki, sqa, fever, fm2, wizard)")
	step1Cmd.Flags().StringVar(&step1Params.split, "split", "", "dataset split (train, dev, test)")
	step1Cmd.Flags().StringVar(&step1Params.promptType, "prompt-type", "single_doc", "prompt template file (single_doc, multi_doc)")
	step1Cmd.Flags().StringVar(&step1Params.engine, "engine", "", "completion model (default from config)")
	step1Cmd.Flags().IntVar(&step1Params.numSequences, "num-sequence", 0, "sampled generations per example (default from config)")
	step1Cmd.Flags().Float64Var(&step1Params.temperature, "temperature", 0, "sampling temperature, 0 for greedy")
	_ = step1Cmd.MarkFlagRequired("dataset")
	_ = step1Cmd.MarkFlagRequired("split")

	step1Cmd.PreRun = func(_ *cobra.Command, _ []string) { applyStageDefaults(&step1Params) }

	rootCmd.AddCommand(step1Cmd)
}

// applyStageDefaults fills unset flags from config.
func applyStageDefaults(p *stageParams) {
	if p.engine == "" {
		p.engine = cfg.OpenAI.Model
	}
	if p.numSequences <= 0 {
		p.numSequences = cfg.Inference.NumSequences
	}
}
