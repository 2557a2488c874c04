// Copyright 2025 The fwid Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package format renders fwid command results as aligned tables for people
// or as JSON documents for scripts.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/vulntor/fwid/pkg/engine"
	"github.com/vulntor/fwid/pkg/scanexec"
)

// OutputMode selects table or JSON rendering.
type OutputMode string

const (
	ModeJSON  OutputMode = "json"
	ModeTable OutputMode = "table"
)

// Options controls how a Formatter renders.
type Options struct {
	Mode  OutputMode
	Quiet bool
	Color bool
	// Explain adds each decision's evidence and logic tree to scan output.
	Explain bool
}

// Formatter is the single output path of every fwid command. Results go to
// stdout; summaries, hints and errors go to stderr unless the mode is JSON,
// in which case stdout carries exactly one JSON document.
type Formatter interface {
	PrintJSON(data any) error
	PrintTable(headers []string, rows [][]string) error
	PrintSummary(message string) error

	// PrintError reports an error no command handled itself.
	PrintError(err error) error
	// PrintTotalFailureSummary reports a failed operation with hints.
	PrintTotalFailureSummary(operation string, err error, errorCode string, suggestions []string) error

	PrintPlan(plan *engine.QueryPlan) error
	PrintScan(result *scanexec.Result) error

	Mode() OutputMode
}

type formatter struct {
	opts   Options
	stdout io.Writer
	stderr io.Writer
}

// New returns a Formatter writing to stdout and stderr. An unknown mode
// renders tables.
func New(stdout, stderr io.Writer, opts Options) Formatter {
	if opts.Mode != ModeJSON {
		opts.Mode = ModeTable
	}
	return &formatter{opts: opts, stdout: stdout, stderr: stderr}
}

func (f *formatter) Mode() OutputMode { return f.opts.Mode }

func (f *formatter) isJSON() bool { return f.opts.Mode == ModeJSON }

func (f *formatter) PrintJSON(data any) error {
	enc := json.NewEncoder(f.stdout)
	enc.SetIndent("", "  ")
	// Version constraints such as "<2.0" must stay readable.
	enc.SetEscapeHTML(false)
	return enc.Encode(data)
}

// PrintTable writes rows under headers. In JSON mode every row becomes an
// object keyed by header.
func (f *formatter) PrintTable(headers []string, rows [][]string) error {
	if f.isJSON() {
		return f.PrintJSON(rowObjects(headers, rows))
	}

	head := make([]string, len(headers))
	for i, h := range headers {
		head[i] = h
		if f.opts.Color {
			head[i] = color.New(color.Bold).Sprint(strings.ToUpper(h))
		}
	}

	w := tabwriter.NewWriter(f.stdout, 0, 0, 2, ' ', 0)
	for _, line := range append([][]string{head}, rows...) {
		if _, err := fmt.Fprintln(w, strings.Join(line, "\t")); err != nil {
			return err
		}
	}
	return w.Flush()
}

func rowObjects(headers []string, rows [][]string) []map[string]string {
	items := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		item := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(row) {
				item[h] = row[i]
			}
		}
		items = append(items, item)
	}
	return items
}

// PrintSummary writes a closing line. JSON mode moves it to stderr so that
// stdout stays parseable; quiet mode drops it.
func (f *formatter) PrintSummary(message string) error {
	switch {
	case f.opts.Quiet:
		return nil
	case f.isJSON():
		_, err := fmt.Fprintln(f.stderr, message)
		return err
	case f.opts.Color:
		_, err := color.New(color.FgGreen).Fprintln(f.stdout, message)
		return err
	default:
		_, err := fmt.Fprintln(f.stdout, message)
		return err
	}
}

// PrintError reports err with its error code. JSON mode writes the same
// failure envelope as PrintTotalFailureSummary, without an operation.
func (f *formatter) PrintError(err error) error {
	if err == nil {
		return nil
	}
	code := scanexec.ErrorCode(err)

	if f.isJSON() {
		return f.PrintJSON(map[string]any{
			"success":    false,
			"error":      err.Error(),
			"error_code": code,
		})
	}

	line := fmt.Sprintf("Error: %v [%s]", err, code)
	if f.opts.Color {
		line = color.RedString("%s", line)
	}
	_, writeErr := fmt.Fprintln(f.stderr, line)
	return writeErr
}

// ValidateMode rejects output modes other than json and table.
func ValidateMode(mode string) error {
	switch OutputMode(strings.ToLower(mode)) {
	case ModeJSON, ModeTable:
		return nil
	}
	return fmt.Errorf("invalid output mode: %s (must be 'json' or 'table')", mode)
}

// ParseMode maps a flag value to an OutputMode, defaulting to table.
func ParseMode(mode string) OutputMode {
	if strings.EqualFold(mode, string(ModeJSON)) {
		return ModeJSON
	}
	return ModeTable
}
