// Package output renders lookup results for the command line.
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"regioncd/app/internal/region"
)

// Format selects how results are written.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a user supplied format name.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", eris.Errorf("unknown output format %q", raw)
	}
}

var (
	textEscaper   = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)
	textUnescaper = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\r`, "\r")
)

// WriteResults writes results in the given format.
// Text output is one "code<TAB>name" line per result. The first tab separates the
// fields; line breaks and backslashes inside a name are escaped.
func WriteResults(w io.Writer, format Format, results []region.Result) error {
	if results == nil {
		results = []region.Result{}
	}

	if format != FormatText {
		return Encode(w, format, results)
	}

	buffered := bufio.NewWriter(w)
	for _, result := range results {
		if result.Name == "" {
			fmt.Fprintln(buffered, result.Code)
			continue
		}
		fmt.Fprintf(buffered, "%s\t%s\n", result.Code, textEscaper.Replace(result.Name))
	}
	return eris.Wrap(buffered.Flush(), "writing results")
}

// ReadResults parses output produced by WriteResults.
func ReadResults(r io.Reader, format Format) ([]region.Result, error) {
	results := make([]region.Result, 0)

	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&results); err != nil {
			return nil, eris.Wrap(err, "decoding json results")
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&results); err != nil && err != io.EOF {
			return nil, eris.Wrap(err, "decoding yaml results")
		}
	case FormatText:
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSuffix(scanner.Text(), "\r")
			if line == "" {
				continue
			}
			code, name, _ := strings.Cut(line, "\t")
			results = append(results, region.Result{Code: code, Name: textUnescaper.Replace(name)})
		}
		if err := scanner.Err(); err != nil {
			return nil, eris.Wrap(err, "reading text results")
		}
	default:
		return nil, eris.Errorf("unknown output format %q", format)
	}

	return results, nil
}

// Encode writes any value as JSON or YAML. Text falls back to its default formatting.
func Encode(w io.Writer, format Format, v any) error {
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetEscapeHTML(false)
		encoder.SetIndent("", "  ")
		return eris.Wrap(encoder.Encode(v), "encoding json")
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(v); err != nil {
			return eris.Wrap(err, "encoding yaml")
		}
		return eris.Wrap(encoder.Close(), "closing yaml encoder")
	default:
		_, err := fmt.Fprintln(w, v)
		return eris.Wrap(err, "writing output")
	}
}
