package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ragbench/genread/internal/cost"
	"github.com/ragbench/genread/internal/dataset"
	"github.com/ragbench/genread/internal/eval"
	"github.com/ragbench/genread/internal/infer"
	"github.com/ragbench/genread/internal/model"
	"github.com/ragbench/genread/internal/prompt"
	"github.com/ragbench/genread/internal/resilience"
	"github.com/ragbench/genread/internal/store"
	"github.com/ragbench/genread/pkg/completion"
	"github.com/ragbench/genread/pkg/wiki"
)

// stageParams collects the command-line parameters shared by step1 and
// step2.
type stageParams struct {
	dataset      string
	split        string
	promptType   string
	engine       string
	numSequences int
	temperature  float64
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "genread.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func newCompletionClient() completion.Client {
	opts := []completion.Option{
		completion.WithBaseURL(cfg.OpenAI.BaseURL),
		completion.WithRetry(resilience.RetryConfig{
			MaxAttempts: cfg.Inference.CompletionRetries,
			Delay:       cfg.Inference.RetryDelay(),
		}),
	}
	if cfg.OpenAI.RateLimit > 0 {
		opts = append(opts, completion.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.OpenAI.RateLimit), 1)))
	}
	return completion.NewClient(cfg.OpenAI.Key, opts...)
}

func newWikiClient() wiki.Client {
	opts := []wiki.Option{
		wiki.WithBaseURL(cfg.Wiki.BaseURL),
		wiki.WithRetry(resilience.RetryConfig{
			MaxAttempts: cfg.Inference.FetchRetries,
			Delay:       cfg.Inference.RetryDelay(),
		}),
	}
	if cfg.Wiki.TimeoutSecs > 0 {
		opts = append(opts, wiki.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Wiki.TimeoutSecs) * time.Second,
		}))
	}
	return wiki.NewClient(opts...)
}

// outputFolder derives the stage's output directory name from the run
// parameters. Sampled stage-1 runs are filed under a folder naming the
// sampling settings so greedy and sampled outputs never collide.
func outputFolder(stage model.Stage, p stageParams) string {
	if stage == model.StageGenerate && p.temperature > 0 {
		return fmt.Sprintf("backgrounds-sample(n=%d,temp=%g)-%s/%s", p.numSequences, p.temperature, p.engine, p.dataset)
	}
	if stage == model.StageGenerate {
		return fmt.Sprintf("backgrounds-greedy-%s-%s/%s", p.engine, p.promptType, p.dataset)
	}
	return fmt.Sprintf("finaloutput-greedy-%s-%s/%s", p.engine, p.promptType, p.dataset)
}

// inputFile returns the example source for a stage and prompt variant.
// Stage 2 reads the stage-1 output written for the same variant.
func inputFile(stage model.Stage, p stageParams, pid prompt.PID) string {
	if stage == model.StageGenerate {
		return filepath.Join(cfg.Data.InputDir, p.dataset, fmt.Sprintf("%s-%s.jsonl", p.dataset, p.split))
	}
	folder := fmt.Sprintf("backgrounds-greedy-%s-%s/%s", p.engine, p.promptType, p.dataset)
	return filepath.Join(cfg.Data.OutputDir, folder, fmt.Sprintf("%s-%s-p%s.jsonl", p.dataset, p.split, pid))
}

// runStage executes one pipeline stage for every prompt template that
// matches the dataset's datatype, then scores and records each finished
// output file.
func runStage(ctx context.Context, stage model.Stage, p stageParams) error {
	datatype, err := model.DatatypeFor(p.dataset)
	if err != nil {
		return err
	}
	maxTokens := model.MaxTokensFor(stage, datatype)

	templatePath := filepath.Join(cfg.Prompt.Dir, p.promptType+".jsonl")
	templates, err := prompt.LoadFile(templatePath)
	if err != nil {
		return err
	}
	matched := prompt.Match(templates, datatype, stage)
	if len(matched) == 0 {
		return eris.Errorf("no %s templates for %q in %s", stage, datatype, templatePath)
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	runner := infer.New(newCompletionClient(), newWikiClient(), st, cost.NewCalculator(cfg.Pricing))

	for _, tmpl := range matched {
		if err := runVariant(ctx, runner, st, stage, p, datatype, tmpl, maxTokens); err != nil {
			return err
		}
	}
	return nil
}

// runVariant runs one prompt template end to end: inference, evaluation,
// and the run-store record.
func runVariant(
	ctx context.Context,
	runner *infer.Runner,
	st store.Store,
	stage model.Stage,
	p stageParams,
	datatype model.Datatype,
	tmpl prompt.Template,
	maxTokens int,
) error {
	log := zap.L().With(
		zap.String("dataset", p.dataset),
		zap.String("split", p.split),
		zap.String("stage", string(stage)),
		zap.String("pid", string(tmpl.PID)),
	)

	examples, err := dataset.ReadFile(inputFile(stage, p, tmpl.PID))
	if err != nil {
		return err
	}

	folder := filepath.Join(cfg.Data.OutputDir, outputFolder(stage, p))
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return eris.Wrapf(err, "create output folder %s", folder)
	}
	outfile := filepath.Join(folder, fmt.Sprintf("%s-%s-p%s.jsonl", p.dataset, p.split, tmpl.PID))

	run, err := st.CreateRun(ctx, model.Run{
		Dataset:    p.dataset,
		Split:      p.split,
		Stage:      stage,
		Engine:     p.engine,
		PromptID:   string(tmpl.PID),
		OutputFile: outfile,
		Total:      len(examples),
	})
	if err != nil {
		return eris.Wrap(err, "create run")
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("starting stage")

	job := infer.Job{
		Examples:   examples,
		Assembler:  prompt.NewAssembler(tmpl.Prompt, prompt.PlaceholderPolicy(cfg.Prompt.PlaceholderPolicy)),
		OutputFile: outfile,
		Model:      p.engine,
		MaxTokens:  maxTokens,
		BatchSize:  cfg.Inference.BatchSize,
		ParseURLs:  stage == model.StageGenerate,
		RunID:      run.ID,
	}
	if stage == model.StageGenerate {
		job.NumSequences = p.numSequences
		job.Temperature = p.temperature
	}

	res, err := runner.Run(ctx, job)
	if err != nil {
		if failErr := st.FailRun(ctx, run.ID, err.Error()); failErr != nil {
			log.Warn("failed to record run failure", zap.Error(failErr))
		}
		return err
	}

	result := &model.RunResult{
		InputTokens:   res.InputTokens,
		OutputTokens:  res.OutputTokens,
		EstimatedCost: res.EstimatedCost,
	}

	// Stage 1 is scored by recall for question answering only; stage 2
	// always has a protocol for its datatype.
	if stage == model.StageAnswer || datatype == model.DatatypeQA {
		evalRes, evalErr := eval.File(ctx, outfile, datatype, stage)
		if evalErr != nil {
			return evalErr
		}
		result.Scores = evalRes.Scores
		result.AvgLength = evalRes.AvgLength

		report := reportFile(folder, stage, p)
		if err := eval.AppendReport(report, tmpl.Prompt, evalRes); err != nil {
			return err
		}
		for name, score := range evalRes.Scores {
			fmt.Printf("%s: %.4f\n", name, score)
		}
		fmt.Printf("avg length: %.1f\n", evalRes.AvgLength)
	}

	if err := st.CompleteRun(ctx, run.ID, result); err != nil {
		log.Warn("failed to record run completion", zap.Error(err))
	}
	log.Info("stage complete",
		zap.String("outputfile", outfile),
		zap.Int("processed", res.Processed),
		zap.Float64("estimated_cost", res.EstimatedCost),
	)
	return nil
}

func reportFile(folder string, stage model.Stage, p stageParams) string {
	if stage == model.StageGenerate {
		return filepath.Join(folder, fmt.Sprintf("%s-recall-%s.jsonl", p.dataset, p.promptType))
	}
	return filepath.Join(folder, fmt.Sprintf("%s-metrics.jsonl", p.dataset))
}
