// Package prompt loads prompt template files and renders them against
// benchmark examples.
package prompt

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/ragbench/genread/internal/model"
)

// Template is one prompt variant from a template file. A file holds
// variants for several datatypes and stages; callers select by matching
// Type and Task.
type Template struct {
	Type   string `json:"type" yaml:"type"`
	Task   string `json:"task" yaml:"task"`
	Prompt string `json:"prompt" yaml:"prompt"`
	PID    PID    `json:"pid" yaml:"pid"`
}

// PID is a template identifier. Template files written by hand use bare
// integers, generated ones use strings; both decode to the string form
// used in output file names.
type PID string

func (p *PID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = PID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return eris.Wrap(err, "prompt: decode pid")
	}
	*p = PID(n.String())
	return nil
}

func (p *PID) UnmarshalYAML(value *yaml.Node) error {
	*p = PID(value.Value)
	return nil
}

// LoadFile reads a template file. JSONL files carry one template object
// per line; YAML files carry a template list. Any other extension is a
// structural error.
func LoadFile(path string) ([]Template, error) {
	switch filepath.Ext(path) {
	case ".jsonl":
		return loadJSONL(path)
	case ".yaml", ".yml":
		return loadYAML(path)
	default:
		return nil, eris.Errorf("prompt: unsupported template file %q", path)
	}
}

func loadJSONL(path string) ([]Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "prompt: open %s", path)
	}
	defer f.Close()

	var templates []Template
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var tmpl Template
		if err := json.Unmarshal([]byte(text), &tmpl); err != nil {
			return nil, eris.Wrapf(err, "prompt: %s line %d", path, line)
		}
		templates = append(templates, tmpl)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "prompt: scan %s", path)
	}
	return templates, nil
}

func loadYAML(path string) ([]Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "prompt: read %s", path)
	}
	var templates []Template
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, eris.Wrapf(err, "prompt: parse %s", path)
	}
	return templates, nil
}

// Match returns the templates for a datatype and stage, in file order.
func Match(templates []Template, datatype model.Datatype, stage model.Stage) []Template {
	var out []Template
	for _, tmpl := range templates {
		if tmpl.Type == string(datatype) && tmpl.Task == string(stage) {
			out = append(out, tmpl)
		}
	}
	return out
}
