package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

type printer struct {
	format string
	w      io.Writer
}

func newPrinter(format string, w io.Writer) (printer, error) {
	switch strings.ToLower(format) {
	case formatJSON, "":
		return printer{format: formatJSON, w: w}, nil
	case formatYAML, "yml":
		return printer{format: formatYAML, w: w}, nil
	default:
		return printer{}, fmt.Errorf("unknown output format %q (json|yaml)", format)
	}
}

func (p printer) print(v any) error {
	if p.format == formatYAML {
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		return enc.Close()
	}

	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}

func (p printer) raw(s string) error {
	_, err := fmt.Fprintln(p.w, s)

	return err
}
