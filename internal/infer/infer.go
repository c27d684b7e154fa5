// Package infer runs the batch inference loop: render prompts for a
// mini-batch of examples, request completions once for the whole batch,
// optionally chase the hyperlinks in each generation, and append one
// output record per example. Output files are append-only and line
// count is the sole resume signal, so an interrupted run restarts by
// reprocessing at most one mini-batch.
package infer

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ragbench/genread/internal/cost"
	"github.com/ragbench/genread/internal/extract"
	"github.com/ragbench/genread/internal/model"
	"github.com/ragbench/genread/internal/prompt"
	"github.com/ragbench/genread/internal/store"
	"github.com/ragbench/genread/pkg/completion"
	"github.com/ragbench/genread/pkg/wiki"
)

// defaultBatchSize is the number of examples sent per completion request.
const defaultBatchSize = 5

// Job describes one inference pass over a dataset split.
type Job struct {
	Examples  []model.Example
	Assembler prompt.Assembler

	OutputFile string

	Model        string
	MaxTokens    int
	BatchSize    int
	NumSequences int
	Temperature  float64

	// ParseURLs enables the extract-and-fetch path for stage-1 runs.
	// Stage-2 runs write the raw completions directly.
	ParseURLs bool

	// RunID, when set, mirrors progress into the run store.
	RunID string
}

// Result summarizes a finished pass.
type Result struct {
	Processed     int
	Skipped       int
	InputTokens   int
	OutputTokens  int
	EstimatedCost float64
}

// Runner drives inference jobs. Mini-batches are strictly sequential
// and the output file has exactly one writer, so records land in input
// order and no locking is needed.
type Runner struct {
	completions completion.Client
	pages       wiki.Client
	runs        store.Store
	costs       *cost.Calculator
}

// New creates a Runner. The store may be nil when run tracking is not
// wanted (the eval command, tests).
func New(completions completion.Client, pages wiki.Client, runs store.Store, costs *cost.Calculator) *Runner {
	if costs == nil {
		costs = cost.NewCalculator(nil)
	}
	return &Runner{
		completions: completions,
		pages:       pages,
		runs:        runs,
		costs:       costs,
	}
}

// Run executes the job. On resume the examples already covered by the
// output file are skipped; on a fresh start the header line is written
// first. A completion failure aborts the run with the partial output
// intact for the next resume.
func (r *Runner) Run(ctx context.Context, job Job) (*Result, error) {
	if job.BatchSize <= 0 {
		job.BatchSize = defaultBatchSize
	}
	if job.NumSequences <= 0 {
		job.NumSequences = 1
	}

	log := zap.L().With(
		zap.String("output", job.OutputFile),
		zap.String("model", job.Model),
		zap.Bool("parse_urls", job.ParseURLs),
	)

	out, skipped, err := r.openOutput(job)
	if err != nil {
		return nil, err
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	remaining := job.Examples
	if skipped >= len(remaining) {
		remaining = nil
	} else {
		remaining = remaining[skipped:]
	}
	if skipped > 0 {
		log.Info("infer: resuming run",
			zap.Int("skipped", skipped),
			zap.Int("remaining", len(remaining)),
		)
	}

	res := &Result{Skipped: skipped}
	total := len(job.Examples)

	for start := 0; start < len(remaining); start += job.BatchSize {
		end := start + job.BatchSize
		if end > len(remaining) {
			end = len(remaining)
		}
		batch := remaining[start:end]

		if err := r.runBatch(ctx, job, batch, w, res); err != nil {
			return nil, err
		}
		if err := w.Flush(); err != nil {
			return nil, eris.Wrapf(err, "infer: flush %s", job.OutputFile)
		}

		res.Processed += len(batch)
		r.reportProgress(ctx, job, log, skipped+res.Processed, total)
	}

	if err := w.Flush(); err != nil {
		return nil, eris.Wrapf(err, "infer: flush %s", job.OutputFile)
	}
	log.Info("infer: run complete",
		zap.Int("processed", res.Processed),
		zap.Int("skipped", res.Skipped),
		zap.Int("input_tokens", res.InputTokens),
		zap.Int("output_tokens", res.OutputTokens),
		zap.Float64("estimated_cost", res.EstimatedCost),
	)
	return res, nil
}

// runBatch renders, completes, and writes one mini-batch.
func (r *Runner) runBatch(ctx context.Context, job Job, batch []model.Example, w *bufio.Writer, res *Result) error {
	prompts := make([]string, 0, len(batch))
	for _, ex := range batch {
		rendered, err := job.Assembler.Render(ex)
		if err != nil {
			return eris.Wrapf(err, "infer: render prompt for %q", ex.Question)
		}
		prompts = append(prompts, rendered)
	}

	resp, err := r.completions.Complete(ctx, completion.Request{
		Model:       job.Model,
		Prompts:     prompts,
		MaxTokens:   job.MaxTokens,
		Temperature: job.Temperature,
		N:           job.NumSequences,
	})
	if err != nil {
		return eris.Wrap(err, "infer: completion request")
	}
	res.InputTokens += resp.Usage.PromptTokens
	res.OutputTokens += resp.Usage.CompletionTokens
	res.EstimatedCost += r.costs.Completion(job.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	groups, err := groupGenerations(resp.Texts, len(batch), job.NumSequences)
	if err != nil {
		return err
	}

	for i, ex := range batch {
		var record any
		if job.ParseURLs {
			rec, recErr := r.retrieveRecord(ctx, ex, groups[i])
			if recErr != nil {
				return recErr
			}
			record = rec
		} else {
			record = model.AnswerRecord{
				Question: ex.Question,
				Answer:   ex.Answer,
				Output:   groups[i],
			}
		}
		if err := writeLine(w, record); err != nil {
			return eris.Wrapf(err, "infer: write record for %q", ex.Question)
		}
	}
	return nil
}

// retrieveRecord runs the extract-and-fetch path for one example's
// generations and assembles its stage-1 output record.
func (r *Runner) retrieveRecord(ctx context.Context, ex model.Example, generations []string) (*model.BackgroundRecord, error) {
	rec := &model.BackgroundRecord{
		Question:          ex.Question,
		Answer:            ex.Answer,
		GPT3Response:      generations,
		URLResponse:       make([][]string, 0, len(generations)),
		ExtractedTopic:    []string{},
		Output:            make([]string, 0, len(generations)),
		FetchedPageTitles: make([][]string, 0, len(generations)),
		FetchedPageTexts:  make([][]string, 0, len(generations)),
	}

	for gi, generation := range generations {
		urls := extract.URLs(generation)
		topics := make([]string, 0, len(urls))
		for _, u := range urls {
			topics = append(topics, extract.Topic(u))
		}

		pages, err := r.pages.FetchPages(ctx, topics)
		if err != nil {
			return nil, eris.Wrapf(err, "infer: fetch pages for %q", ex.Question)
		}

		rec.URLResponse = append(rec.URLResponse, urls)
		if gi == 0 {
			// The topic list is recorded once, from the first generation.
			rec.ExtractedTopic = topics
		}
		rec.Output = append(rec.Output, strings.Join(pages.Pages, " "))
		rec.FetchedPageTitles = append(rec.FetchedPageTitles, pages.Titles)
		rec.FetchedPageTexts = append(rec.FetchedPageTexts, pages.Pages)
	}
	return rec, nil
}

// openOutput opens the output file for appending. An existing file with
// content resumes; the number of examples its lines already cover comes
// back as skipped. A fresh (or empty) file gets the header line.
func (r *Runner) openOutput(job Job) (*os.File, int, error) {
	lines, err := countLines(job.OutputFile)
	if err != nil {
		return nil, 0, err
	}

	out, err := os.OpenFile(job.OutputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "infer: open %s", job.OutputFile)
	}

	if lines == 0 {
		header, err := json.Marshal(model.Header{Prompt: job.Assembler.Template})
		if err != nil {
			out.Close()
			return nil, 0, eris.Wrap(err, "infer: marshal header")
		}
		if _, err := out.Write(append(header, '\n')); err != nil {
			out.Close()
			return nil, 0, eris.Wrapf(err, "infer: write header to %s", job.OutputFile)
		}
		return out, 0, nil
	}

	// Line 1 is the header, so lines-1 examples are already done.
	return out, lines - 1, nil
}

func (r *Runner) reportProgress(ctx context.Context, job Job, log *zap.Logger, processed, total int) {
	log.Info("infer: progress",
		zap.Int("processed", processed),
		zap.Int("total", total),
	)
	if r.runs == nil || job.RunID == "" {
		return
	}
	if err := r.runs.UpdateRunProgress(ctx, job.RunID, processed, total); err != nil {
		log.Warn("infer: failed to update run progress", zap.Error(err))
	}
}

// groupGenerations partitions the flat prompt-major completion list into
// per-example groups: example i owns texts [i*n, (i+1)*n).
func groupGenerations(texts []string, examples, n int) ([][]string, error) {
	if len(texts) != examples*n {
		return nil, eris.Errorf("infer: got %d generations for %d examples x %d sequences", len(texts), examples, n)
	}
	groups := make([][]string, examples)
	for i := range groups {
		groups[i] = texts[i*n : (i+1)*n]
	}
	return groups, nil
}

func writeLine(w *bufio.Writer, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return eris.Wrap(err, "infer: marshal record")
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// countLines returns the number of newline-terminated lines in path, or
// zero when the file does not exist.
func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, eris.Wrapf(err, "infer: open %s", path)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, eris.Wrapf(err, "infer: count lines in %s", path)
	}
	return n, nil
}
