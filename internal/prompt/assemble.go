package prompt

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ragbench/genread/internal/model"
)

const (
	queryPlaceholder      = "{query}"
	passagesPlaceholder   = "{top_passages_concat}"
	backgroundPlaceholder = "{background}"

	// maxPromptWords bounds the rendered prompt. Retrieved passages are
	// already truncated upstream; this is the last line of defense
	// against blowing the context window.
	maxPromptWords = 1000
)

// PlaceholderPolicy decides what happens when a template references a
// background placeholder the example cannot fill.
type PlaceholderPolicy string

const (
	// PolicyVerbatim leaves the placeholder text in the prompt. Matches
	// the historical output format.
	PolicyVerbatim PlaceholderPolicy = "verbatim"
	// PolicyBlank substitutes an empty string.
	PolicyBlank PlaceholderPolicy = "blank"
	// PolicyError fails the render.
	PolicyError PlaceholderPolicy = "error"
)

// Assembler renders a template against examples.
type Assembler struct {
	Template string
	Policy   PlaceholderPolicy
}

// NewAssembler creates an Assembler; an empty policy means PolicyVerbatim.
func NewAssembler(template string, policy PlaceholderPolicy) Assembler {
	if policy == "" {
		policy = PolicyVerbatim
	}
	return Assembler{Template: template, Policy: policy}
}

// Render substitutes {query} with the example's question and fills the
// background placeholder, if the template has one, from the example's
// first retrieved passage. The result is a single line with runs of
// whitespace collapsed, capped at maxPromptWords words.
func (a Assembler) Render(ex model.Example) (string, error) {
	rendered := strings.ReplaceAll(a.Template, queryPlaceholder, ex.Question)

	switch {
	case strings.Contains(rendered, passagesPlaceholder):
		result, err := a.fill(rendered, passagesPlaceholder, ex.TopPassagesConcat)
		if err != nil {
			return "", err
		}
		rendered = result
	case strings.Contains(rendered, backgroundPlaceholder):
		result, err := a.fill(rendered, backgroundPlaceholder, ex.Output)
		if err != nil {
			return "", err
		}
		rendered = result
	}

	return capWords(strings.Join(strings.Fields(rendered), " ")), nil
}

func (a Assembler) fill(rendered, placeholder string, source []string) (string, error) {
	if len(source) > 0 && source[0] != "" {
		return strings.ReplaceAll(rendered, placeholder, flatten(source[0])), nil
	}

	switch a.Policy {
	case PolicyBlank:
		return strings.ReplaceAll(rendered, placeholder, ""), nil
	case PolicyError:
		return "", eris.Errorf("prompt: no source for placeholder %s", placeholder)
	default:
		return rendered, nil
	}
}

// flatten collapses a passage to one trimmed line.
func flatten(s string) string {
	s = strings.ReplaceAll(s, "\n\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func capWords(s string) string {
	words := strings.Split(s, " ")
	if len(words) <= maxPromptWords {
		return s
	}
	return strings.Join(words[:maxPromptWords], " ")
}
