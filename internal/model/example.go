package model

// Example is a single benchmark item: a question plus its reference answers.
// Stage-2 inputs are stage-1 output records, so an Example may also carry
// the background text produced by an earlier pass.
type Example struct {
	Question string   `json:"question"`
	Answer   []string `json:"answer"`

	// Output holds per-generation background text when the example was
	// read back from a stage-1 output file.
	Output []string `json:"output,omitempty"`

	// TopPassagesConcat holds pre-retrieved passages for retrieval
	// baselines that substitute {top_passages_concat}.
	TopPassagesConcat []string `json:"top_passages_concat,omitempty"`
}

// Header is the first line of every output file. It records the prompt
// template the file was generated with and is never an Example.
type Header struct {
	Prompt string `json:"prompt"`
}

// BackgroundRecord is the stage-1 output line for one Example: the raw
// completions, the hyperlinks they contained, and the encyclopedia text
// retrieved for them. Slices indexed by generation.
type BackgroundRecord struct {
	Question          string     `json:"question"`
	Answer            []string   `json:"answer"`
	GPT3Response      []string   `json:"gpt3_response"`
	URLResponse       [][]string `json:"url_response"`
	ExtractedTopic    []string   `json:"extracted_topic"`
	Output            []string   `json:"output"`
	FetchedPageTitles [][]string `json:"fetched_page_titles"`
	FetchedPageTexts  [][]string `json:"fetched_page_texts"`
}

// AnswerRecord is the stage-2 output line for one Example.
type AnswerRecord struct {
	Question string   `json:"question"`
	Answer   []string `json:"answer"`
	Output   []string `json:"output"`
}
