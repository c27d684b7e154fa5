package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ragbench/genread/internal/config"
	"github.com/ragbench/genread/internal/model"
)

func setTestConfig(t *testing.T) {
	t.Helper()
	orig := cfg
	cfg = &config.Config{}
	cfg.Data.InputDir = "indatasets"
	cfg.Data.OutputDir = "."
	cfg.OpenAI.Model = "text-davinci-003"
	cfg.Inference.NumSequences = 1
	t.Cleanup(func() { cfg = orig })
}

func TestOutputFolderGreedy(t *testing.T) {
	setTestConfig(t)

	p := stageParams{dataset: "nq", engine: "text-davinci-003", promptType: "single_doc"}
	assert.Equal(t, "backgrounds-greedy-text-davinci-003-single_doc/nq", outputFolder(model.StageGenerate, p))
	assert.Equal(t, "finaloutput-greedy-text-davinci-003-single_doc/nq", outputFolder(model.StageAnswer, p))
}

func TestOutputFolderSampled(t *testing.T) {
	setTestConfig(t)

	p := stageParams{dataset: "nq", engine: "text-davinci-003", promptType: "single_doc", numSequences: 10, temperature: 0.7}
	assert.Equal(t, "backgrounds-sample(n=10,temp=0.7)-text-davinci-003/nq", outputFolder(model.StageGenerate, p))
}

func TestInputFile(t *testing.T) {
	setTestConfig(t)

	p := stageParams{dataset: "nq", split: "dev", engine: "text-davinci-003", promptType: "single_doc"}
	assert.Equal(t, "indatasets/nq/nq-dev.jsonl", inputFile(model.StageGenerate, p, "1"))
	assert.Equal(t,
		"backgrounds-greedy-text-davinci-003-single_doc/nq/nq-dev-p1.jsonl",
		inputFile(model.StageAnswer, p, "1"),
	)
}

func TestReportFile(t *testing.T) {
	setTestConfig(t)

	p := stageParams{dataset: "nq", promptType: "single_doc"}
	assert.Equal(t, "out/nq-recall-single_doc.jsonl", reportFile("out", model.StageGenerate, p))
	assert.Equal(t, "out/nq-metrics.jsonl", reportFile("out", model.StageAnswer, p))
}

func TestApplyStageDefaults(t *testing.T) {
	setTestConfig(t)

	p := stageParams{}
	applyStageDefaults(&p)
	assert.Equal(t, "text-davinci-003", p.engine)
	assert.Equal(t, 1, p.numSequences)

	p = stageParams{engine: "text-curie-001", numSequences: 5}
	applyStageDefaults(&p)
	assert.Equal(t, "text-curie-001", p.engine)
	assert.Equal(t, 5, p.numSequences)
}

func TestInitStoreUnknownDriver(t *testing.T) {
	setTestConfig(t)
	cfg.Store.Driver = "oracle"

	_, err := initStore(t.Context())
	assert.Error(t, err)
}
