// Package dataset reads benchmark input files. Inputs are either a JSON
// array or newline-delimited JSON; both hold Example records, optionally
// preceded by a {"prompt": ...} header when the file is itself the output
// of an earlier pipeline stage.
package dataset

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ragbench/genread/internal/model"
)

// ReadFile loads the examples from path. The file extension selects the
// format; anything but .json or .jsonl is a structural error.
func ReadFile(path string) ([]model.Example, error) {
	var raw []json.RawMessage
	var err error

	switch filepath.Ext(path) {
	case ".json":
		raw, err = readArray(path)
	case ".jsonl":
		raw, err = readLines(path)
	default:
		return nil, eris.Errorf("dataset: unsupported input file %q", path)
	}
	if err != nil {
		return nil, err
	}

	raw = skipHeader(raw)

	examples := make([]model.Example, 0, len(raw))
	for i, msg := range raw {
		var ex model.Example
		if err := json.Unmarshal(msg, &ex); err != nil {
			return nil, eris.Wrapf(err, "dataset: %s record %d", path, i)
		}
		examples = append(examples, ex)
	}
	return examples, nil
}

func readArray(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", path)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrapf(err, "dataset: parse %s", path)
	}
	return raw, nil
}

func readLines(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close()

	var raw []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		raw = append(raw, json.RawMessage(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "dataset: scan %s", path)
	}
	return raw, nil
}

// ReadPrompt returns the prompt template recorded in the file's header
// line, or "" when the first record is a regular Example.
func ReadPrompt(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		return "", scanner.Err()
	}

	var first map[string]json.RawMessage
	if err := json.Unmarshal(scanner.Bytes(), &first); err != nil {
		return "", nil
	}
	if len(first) != 1 {
		return "", nil
	}
	var header model.Header
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return "", nil
	}
	return header.Prompt, nil
}

// skipHeader drops a leading record that contains only a prompt field.
func skipHeader(raw []json.RawMessage) []json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var first map[string]json.RawMessage
	if err := json.Unmarshal(raw[0], &first); err != nil {
		return raw
	}
	if len(first) == 1 {
		if _, ok := first["prompt"]; ok {
			return raw[1:]
		}
	}
	return raw
}
