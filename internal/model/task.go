package model

import "github.com/rotisserie/eris"

// Datatype selects the evaluation protocol for a dataset.
type Datatype string

const (
	DatatypeQA       Datatype = "question answering"
	DatatypeFact     Datatype = "fact checking"
	DatatypeDialogue Datatype = "dialogue system"
)

// Stage identifies a pipeline pass.
type Stage string

const (
	StageGenerate Stage = "step1" // generate background + retrieve
	StageAnswer   Stage = "step2" // generate final answer
)

// DatatypeFor maps a dataset name onto its evaluation protocol.
// Unknown datasets are a structural error, surfaced at startup.
func DatatypeFor(dataset string) (Datatype, error) {
	switch dataset {
	case "nq", "webq", "tqa", "twiki", "sqa":
		return DatatypeQA, nil
	case "fever", "fm2":
		return DatatypeFact, nil
	case "wizard":
		return DatatypeDialogue, nil
	default:
		return "", eris.Errorf("model: unknown dataset %q", dataset)
	}
}

// MaxTokensFor returns the completion budget for a stage and datatype.
// Stage 1 generates whole background passages; stage 2 emits short answers
// except for dialogue, which needs a full utterance.
func MaxTokensFor(stage Stage, datatype Datatype) int {
	if stage == StageGenerate {
		return 300
	}
	if datatype == DatatypeDialogue {
		return 50
	}
	return 10
}
