package infer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragbench/genread/internal/model"
	"github.com/ragbench/genread/internal/prompt"
	"github.com/ragbench/genread/internal/store"
	"github.com/ragbench/genread/pkg/completion"
	"github.com/ragbench/genread/pkg/wiki"
)

type fakeCompletion struct {
	mu       sync.Mutex
	requests []completion.Request
	respond  func(req completion.Request) (*completion.Response, error)
}

func (f *fakeCompletion) Complete(_ context.Context, req completion.Request) (*completion.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(req)
	}
	texts := make([]string, 0, len(req.Prompts)*req.N)
	for _, p := range req.Prompts {
		for j := 0; j < req.N; j++ {
			texts = append(texts, "completion for "+p)
		}
	}
	return &completion.Response{Texts: texts}, nil
}

type fakeWiki struct {
	mu      sync.Mutex
	queries [][]string
	pages   map[string][]string // topic -> page texts
	titles  map[string][]string
}

func (f *fakeWiki) FetchPages(_ context.Context, topics []string) (*wiki.PageResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, topics)
	f.mu.Unlock()

	out := &wiki.PageResult{Pages: []string{}, Titles: []string{}}
	for _, topic := range topics {
		if pages, ok := f.pages[topic]; ok {
			out.Pages = append(out.Pages, pages...)
			out.Titles = append(out.Titles, f.titles[topic]...)
		}
	}
	return out, nil
}

type progressStore struct {
	store.Store
	mu      sync.Mutex
	updates [][2]int
}

func (s *progressStore) UpdateRunProgress(_ context.Context, _ string, processed, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, [2]int{processed, total})
	return nil
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func examples(questions ...string) []model.Example {
	exs := make([]model.Example, 0, len(questions))
	for _, q := range questions {
		exs = append(exs, model.Example{Question: q, Answer: []string{"answer to " + q}})
	}
	return exs
}

func TestRunFreshWritesHeaderThenRecords(t *testing.T) {
	t.Parallel()

	comp := &fakeCompletion{}
	outfile := filepath.Join(t.TempDir(), "out.jsonl")
	runner := New(comp, &fakeWiki{}, nil, nil)

	res, err := runner.Run(context.Background(), Job{
		Examples:   examples("q1", "q2", "q3"),
		Assembler:  prompt.NewAssembler("Question: {query} Answer:", ""),
		OutputFile: outfile,
		Model:      "text-davinci-003",
		MaxTokens:  10,
		BatchSize:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 0, res.Skipped)

	// 3 examples at batch size 2 means two completion requests
	require.Len(t, comp.requests, 2)
	assert.Len(t, comp.requests[0].Prompts, 2)
	assert.Len(t, comp.requests[1].Prompts, 1)
	assert.Equal(t, "Question: q1 Answer:", comp.requests[0].Prompts[0])

	lines := readLines(t, outfile)
	require.Len(t, lines, 4)

	var header model.Header
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &header))
	assert.Equal(t, "Question: {query} Answer:", header.Prompt)

	for i, q := range []string{"q1", "q2", "q3"} {
		var rec model.AnswerRecord
		require.NoError(t, json.Unmarshal([]byte(lines[i+1]), &rec))
		assert.Equal(t, q, rec.Question)
		assert.Equal(t, []string{"answer to " + q}, rec.Answer)
		require.Len(t, rec.Output, 1)
	}
}

func TestRunBatchOrdering(t *testing.T) {
	t.Parallel()

	comp := &fakeCompletion{
		respond: func(req completion.Request) (*completion.Response, error) {
			return &completion.Response{Texts: []string{"a0", "a1", "b0", "b1"}}, nil
		},
	}
	outfile := filepath.Join(t.TempDir(), "out.jsonl")
	runner := New(comp, &fakeWiki{}, nil, nil)

	_, err := runner.Run(context.Background(), Job{
		Examples:     examples("qa", "qb"),
		Assembler:    prompt.NewAssembler("{query}", ""),
		OutputFile:   outfile,
		NumSequences: 2,
	})
	require.NoError(t, err)

	lines := readLines(t, outfile)
	require.Len(t, lines, 3)

	var recA, recB model.AnswerRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &recA))
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &recB))
	assert.Equal(t, []string{"a0", "a1"}, recA.Output)
	assert.Equal(t, []string{"b0", "b1"}, recB.Output)
}

func TestRunResumeSkipsWrittenExamples(t *testing.T) {
	t.Parallel()

	outfile := filepath.Join(t.TempDir(), "out.jsonl")
	existing := `{"prompt": "{query}"}
{"question": "q1", "answer": ["answer to q1"], "output": ["old1"]}
{"question": "q2", "answer": ["answer to q2"], "output": ["old2"]}
`
	require.NoError(t, os.WriteFile(outfile, []byte(existing), 0o644))

	comp := &fakeCompletion{}
	runner := New(comp, &fakeWiki{}, nil, nil)

	res, err := runner.Run(context.Background(), Job{
		Examples:   examples("q1", "q2", "q3", "q4"),
		Assembler:  prompt.NewAssembler("{query}", ""),
		OutputFile: outfile,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 2, res.Processed)

	// Only the examples beyond the written lines hit the service
	require.Len(t, comp.requests, 1)
	assert.Equal(t, []string{"q3", "q4"}, comp.requests[0].Prompts)

	lines := readLines(t, outfile)
	require.Len(t, lines, 5)

	var rec model.AnswerRecord
	require.NoError(t, json.Unmarshal([]byte(lines[3]), &rec))
	assert.Equal(t, "q3", rec.Question)
	require.NoError(t, json.Unmarshal([]byte(lines[4]), &rec))
	assert.Equal(t, "q4", rec.Question)
}

func TestRunResumeNothingLeft(t *testing.T) {
	t.Parallel()

	outfile := filepath.Join(t.TempDir(), "out.jsonl")
	existing := `{"prompt": "{query}"}
{"question": "q1", "answer": [], "output": ["old"]}
`
	require.NoError(t, os.WriteFile(outfile, []byte(existing), 0o644))

	comp := &fakeCompletion{}
	runner := New(comp, &fakeWiki{}, nil, nil)

	res, err := runner.Run(context.Background(), Job{
		Examples:   examples("q1"),
		Assembler:  prompt.NewAssembler("{query}", ""),
		OutputFile: outfile,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Processed)
	assert.Empty(t, comp.requests)
}

func TestRunEmptyExistingFileTreatedAsFresh(t *testing.T) {
	t.Parallel()

	outfile := filepath.Join(t.TempDir(), "out.jsonl")
	require.NoError(t, os.WriteFile(outfile, []byte(""), 0o644))

	runner := New(&fakeCompletion{}, &fakeWiki{}, nil, nil)

	res, err := runner.Run(context.Background(), Job{
		Examples:   examples("q1"),
		Assembler:  prompt.NewAssembler("{query}", ""),
		OutputFile: outfile,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 1, res.Processed)

	lines := readLines(t, outfile)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"prompt"`)
}

func TestRunStage1RetrievesBackgrounds(t *testing.T) {
	t.Parallel()

	comp := &fakeCompletion{
		respond: func(req completion.Request) (*completion.Response, error) {
			return &completion.Response{
				Texts: []string{"Read https://en.wikipedia.org/wiki/Albert_Einstein#Early_life for details."},
				Usage: completion.Usage{PromptTokens: 100, CompletionTokens: 50},
			}, nil
		},
	}
	pages := &fakeWiki{
		pages:  map[string][]string{"Albert_Einstein": {"Albert Einstein was a physicist"}},
		titles: map[string][]string{"Albert_Einstein": {"Albert Einstein"}},
	}
	outfile := filepath.Join(t.TempDir(), "out.jsonl")
	runner := New(comp, pages, nil, nil)

	res, err := runner.Run(context.Background(), Job{
		Examples:   examples("who developed relativity"),
		Assembler:  prompt.NewAssembler("{query}", ""),
		OutputFile: outfile,
		Model:      "text-davinci-003",
		ParseURLs:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, 100, res.InputTokens)
	assert.Equal(t, 50, res.OutputTokens)
	assert.Greater(t, res.EstimatedCost, 0.0)

	require.Len(t, pages.queries, 1)
	assert.Equal(t, []string{"Albert_Einstein"}, pages.queries[0])

	lines := readLines(t, outfile)
	require.Len(t, lines, 2)

	var rec model.BackgroundRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "who developed relativity", rec.Question)
	require.Len(t, rec.GPT3Response, 1)
	assert.Contains(t, rec.GPT3Response[0], "Albert_Einstein")
	assert.Equal(t, [][]string{{"https://en.wikipedia.org/wiki/Albert_Einstein#Early_life"}}, rec.URLResponse)
	assert.Equal(t, []string{"Albert_Einstein"}, rec.ExtractedTopic)
	assert.Equal(t, []string{"Albert Einstein was a physicist"}, rec.Output)
	assert.Equal(t, [][]string{{"Albert Einstein"}}, rec.FetchedPageTitles)
	assert.Equal(t, [][]string{{"Albert Einstein was a physicist"}}, rec.FetchedPageTexts)
}

func TestRunStage1NoLinksInGeneration(t *testing.T) {
	t.Parallel()

	comp := &fakeCompletion{
		respond: func(req completion.Request) (*completion.Response, error) {
			return &completion.Response{Texts: []string{"no links here"}}, nil
		},
	}
	pages := &fakeWiki{}
	outfile := filepath.Join(t.TempDir(), "out.jsonl")
	runner := New(comp, pages, nil, nil)

	_, err := runner.Run(context.Background(), Job{
		Examples:   examples("q"),
		Assembler:  prompt.NewAssembler("{query}", ""),
		OutputFile: outfile,
		ParseURLs:  true,
	})
	require.NoError(t, err)

	lines := readLines(t, outfile)
	var rec model.BackgroundRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, [][]string{{}}, rec.URLResponse)
	assert.Empty(t, rec.ExtractedTopic)
	assert.Equal(t, []string{""}, rec.Output)
}

func TestRunCompletionFailureAborts(t *testing.T) {
	t.Parallel()

	comp := &fakeCompletion{
		respond: func(req completion.Request) (*completion.Response, error) {
			return nil, eris.New("service down")
		},
	}
	outfile := filepath.Join(t.TempDir(), "out.jsonl")
	runner := New(comp, &fakeWiki{}, nil, nil)

	_, err := runner.Run(context.Background(), Job{
		Examples:   examples("q1"),
		Assembler:  prompt.NewAssembler("{query}", ""),
		OutputFile: outfile,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service down")

	// Header survives so the run resumes from example 0
	lines := readLines(t, outfile)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"prompt"`)
}

func TestRunMirrorsProgressToStore(t *testing.T) {
	t.Parallel()

	comp := &fakeCompletion{}
	st := &progressStore{}
	outfile := filepath.Join(t.TempDir(), "out.jsonl")
	runner := New(comp, &fakeWiki{}, st, nil)

	_, err := runner.Run(context.Background(), Job{
		Examples:   examples("q1", "q2", "q3"),
		Assembler:  prompt.NewAssembler("{query}", ""),
		OutputFile: outfile,
		BatchSize:  2,
		RunID:      "run-1",
	})
	require.NoError(t, err)

	require.Len(t, st.updates, 2)
	assert.Equal(t, [2]int{2, 3}, st.updates[0])
	assert.Equal(t, [2]int{3, 3}, st.updates[1])
}

func TestGroupGenerations(t *testing.T) {
	t.Parallel()

	groups, err := groupGenerations([]string{"a0", "a1", "b0", "b1"}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a0", "a1"}, {"b0", "b1"}}, groups)

	_, err = groupGenerations([]string{"a0", "a1", "b0"}, 2, 2)
	assert.Error(t, err)
}
