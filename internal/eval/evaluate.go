package eval

import (
	"context"
	"encoding/json"
	"os"
	"runtime"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/ragbench/genread/internal/dataset"
	"github.com/ragbench/genread/internal/model"
)

// Result holds the scores for one output file.
type Result struct {
	OutputFile string             `json:"outputfile"`
	Scores     map[string]float64 `json:"scores"`
	AvgLength  float64            `json:"length"`
	Count      int                `json:"count"`
}

type recordScore struct {
	scores map[string]float64
	length int
}

// File scores a finished output file. Stage 1 is scored by answer recall
// over the generated backgrounds; stage 2 by the datatype's protocol:
// exact match for question answering, accuracy for fact checking, and
// unigram F1 plus Rouge-L for dialogue.
func File(ctx context.Context, path string, datatype model.Datatype, stage model.Stage) (*Result, error) {
	records, err := dataset.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, eris.Errorf("eval: %s holds no records", path)
	}

	scores := make([]recordScore, len(records))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, rec := range records {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			scores[i] = scoreRecord(rec, datatype, stage)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "eval: score records")
	}

	out := &Result{
		OutputFile: path,
		Scores:     map[string]float64{},
		Count:      len(records),
	}
	totalLength := 0
	for _, s := range scores {
		totalLength += s.length
		for k, v := range s.scores {
			out.Scores[k] += v
		}
	}
	n := float64(len(records))
	for k := range out.Scores {
		out.Scores[k] /= n
	}
	out.AvgLength = float64(totalLength) / n
	return out, nil
}

func scoreRecord(rec model.Example, datatype model.Datatype, stage model.Stage) recordScore {
	prediction := ""
	if len(rec.Output) > 0 {
		prediction = rec.Output[0]
	}
	s := recordScore{
		scores: map[string]float64{},
		length: wordCount(prediction),
	}

	if stage == model.StageGenerate {
		if recallHit(rec.Output, rec.Answer) {
			s.scores["recall"] = 1
		} else {
			s.scores["recall"] = 0
		}
		return s
	}

	switch datatype {
	case model.DatatypeQA:
		if exactMatch(prediction, rec.Answer) {
			s.scores["exact match"] = 1
		} else {
			s.scores["exact match"] = 0
		}
	case model.DatatypeFact:
		if factCorrect(prediction, rec.Answer) {
			s.scores["accuracy"] = 1
		} else {
			s.scores["accuracy"] = 0
		}
	case model.DatatypeDialogue:
		s.scores["f1-score"] = unigramF1(prediction, rec.Answer)
		s.scores["rouge-l"] = rougeL(prediction, rec.Answer)
	}
	return s
}

// AppendReport appends one metrics line to a JSONL report file, creating
// it if needed.
func AppendReport(reportPath, prompt string, res *Result) error {
	line := map[string]any{
		"outputfile": res.OutputFile,
		"prompt":     prompt,
		"length":     res.AvgLength,
	}
	for k, v := range res.Scores {
		line[k] = v
	}

	data, err := json.Marshal(line)
	if err != nil {
		return eris.Wrap(err, "eval: marshal report line")
	}

	f, err := os.OpenFile(reportPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "eval: open report %s", reportPath)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return eris.Wrapf(err, "eval: write report %s", reportPath)
	}
	return nil
}
