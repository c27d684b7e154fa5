package eval

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragbench/genread/internal/model"
)

func writeOutput(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFile_Stage1Recall(t *testing.T) {
	t.Parallel()

	path := writeOutput(t,
		`{"prompt": "Generate a background document: {query}"}`,
		`{"question": "who wrote hamlet", "answer": ["William Shakespeare"], "output": ["Hamlet was written by William Shakespeare."]}`,
		`{"question": "capital of france", "answer": ["Paris"], "output": ["France is a country in Europe."]}`,
	)

	res, err := File(context.Background(), path, model.DatatypeQA, model.StageGenerate)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.InDelta(t, 0.5, res.Scores["recall"], 1e-9)
	assert.Greater(t, res.AvgLength, 0.0)
}

func TestFile_Stage2ExactMatch(t *testing.T) {
	t.Parallel()

	path := writeOutput(t,
		`{"prompt": "Q: {query} A:"}`,
		`{"question": "capital of france", "answer": ["Paris"], "output": [" Paris."]}`,
		`{"question": "who wrote hamlet", "answer": ["William Shakespeare"], "output": ["Shakespeare"]}`,
	)

	res, err := File(context.Background(), path, model.DatatypeQA, model.StageAnswer)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.Scores["exact match"], 1e-9)
}

func TestFile_Stage2FactAccuracy(t *testing.T) {
	t.Parallel()

	path := writeOutput(t,
		`{"prompt": "Claim: {query} True or false?"}`,
		`{"question": "claim one", "answer": ["SUPPORTS"], "output": ["true"]}`,
		`{"question": "claim two", "answer": ["REFUTES"], "output": ["true"]}`,
	)

	res, err := File(context.Background(), path, model.DatatypeFact, model.StageAnswer)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.Scores["accuracy"], 1e-9)
}

func TestFile_Stage2Dialogue(t *testing.T) {
	t.Parallel()

	path := writeOutput(t,
		`{"prompt": "Conversation: {query}"}`,
		`{"question": "tell me about tea", "answer": ["I like tea"], "output": ["I like tea"]}`,
	)

	res, err := File(context.Background(), path, model.DatatypeDialogue, model.StageAnswer)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Scores["f1-score"], 1e-9)
	assert.InDelta(t, 1.0, res.Scores["rouge-l"], 1e-9)
}

func TestFile_EmptyFile(t *testing.T) {
	t.Parallel()

	path := writeOutput(t, `{"prompt": "only a header"}`)
	_, err := File(context.Background(), path, model.DatatypeQA, model.StageAnswer)
	require.Error(t, err)
}

func TestAppendReport(t *testing.T) {
	t.Parallel()

	reportPath := filepath.Join(t.TempDir(), "metrics.jsonl")
	res := &Result{
		OutputFile: "out.jsonl",
		Scores:     map[string]float64{"exact match": 0.75},
		AvgLength:  3.5,
		Count:      4,
	}

	require.NoError(t, AppendReport(reportPath, "Q: {query} A:", res))
	require.NoError(t, AppendReport(reportPath, "Q: {query} A:", res))

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &line))
	assert.Equal(t, "out.jsonl", line["outputfile"])
	assert.Equal(t, "Q: {query} A:", line["prompt"])
	assert.InDelta(t, 0.75, line["exact match"].(float64), 1e-9)
}
