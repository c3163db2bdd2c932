package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// formatSuggestionsText formats CLISuggestion results as aligned columns.
func formatSuggestionsText(w io.Writer, ss []CLISuggestion) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tDETAIL\tDESCRIPTION")
	for _, s := range ss {
		detail := s.Detail
		if detail == "" {
			detail = s.Type
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Kind, detail, firstLine(s.Description))
	}
	tw.Flush()
}

// formatModulesText formats CLIModule results as aligned columns.
func formatModulesText(w io.Writer, mods []CLIModule) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPATH\tLUA\tREQUIRES")
	for _, m := range mods {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Name, m.Path, m.LuaVersion, strings.Join(m.Requires, ","))
	}
	tw.Flush()
}

// formatWarmText formats CLIWarmResult as readable text.
func formatWarmText(w io.Writer, r CLIWarmResult) {
	fmt.Fprintf(w, "Root: %s\n", r.Root)
	if r.Database != "" {
		fmt.Fprintf(w, "Database: %s\n", r.Database)
	}
	fmt.Fprintf(w, "Modules: %d (analysed: %d, reused: %d)\n", r.Modules, r.Analysed, r.Reused)
	if len(r.Missing) > 0 {
		fmt.Fprintln(w, "Missing:")
		for _, m := range r.Missing {
			fmt.Fprintf(w, "  %s\n", m)
		}
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLISuggestion:
		formatSuggestionsText(w, v)
	case []CLIModule:
		formatModulesText(w, v)
	case CLIWarmResult:
		formatWarmText(w, v)
	case []string:
		for _, name := range v {
			fmt.Fprintln(w, name)
		}
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	return writeResult(os.Stdout, flagFormat, result)
}

func writeResult(w io.Writer, format string, result CLIResult) error {
	if format == "text" {
		return outputResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
