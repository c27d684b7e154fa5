package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/ragbench/genread/internal/eval"
	"github.com/ragbench/genread/internal/model"
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Score a finished output file",
	Long:  "Re-runs evaluation over an output file without touching any external service: recall for stage-1 backgrounds, exact match, accuracy, or F1 plus Rouge-L for stage-2 answers depending on datatype.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		file, _ := cmd.Flags().GetString("file")
		datatype, _ := cmd.Flags().GetString("datatype")
		stage, _ := cmd.Flags().GetString("stage")
		report, _ := cmd.Flags().GetString("report")

		res, err := eval.File(cmd.Context(), file, model.Datatype(datatype), model.Stage(stage))
		if err != nil {
			return err
		}

		if report != "" {
			if err := eval.AppendReport(report, "", res); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	evalCmd.Flags().String("file", "", "output file to score")
	evalCmd.Flags().String("datatype", string(model.DatatypeQA), `datatype ("question answering", "fact checking", "dialogue system")`)
	evalCmd.Flags().String("stage", string(model.StageAnswer), "stage the file was produced by (step1, step2)")
	evalCmd.Flags().String("report", "", "append the metrics line to this JSONL report file")
	_ = evalCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(evalCmd)
}
