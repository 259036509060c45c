package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nsxbet/sqlguard/pkg/gate"
	"github.com/nsxbet/sqlguard/pkg/reviewer"
	"github.com/nsxbet/sqlguard/pkg/risk"
)

// classificationReport is the printed form of a risk.Classification.
type classificationReport struct {
	Engine     string   `json:"engine" yaml:"engine"`
	Tier       string   `json:"tier" yaml:"tier"`
	Readonly   bool     `json:"readonly" yaml:"readonly"`
	Modify     bool     `json:"modify" yaml:"modify"`
	Dangerous  bool     `json:"dangerous" yaml:"dangerous"`
	Source     string   `json:"source" yaml:"source"`
	Statements []string `json:"statements" yaml:"statements"`
	Nested     []string `json:"nested,omitempty" yaml:"nested,omitempty"`
	ParseError string   `json:"parse_error,omitempty" yaml:"parse_error,omitempty"`

	Review []statementReport `json:"review,omitempty" yaml:"review,omitempty"`
}

// statementReport is the printed form of a reviewer.StatementResult.
type statementReport struct {
	Index      int      `json:"index" yaml:"index"`
	Line       int      `json:"line" yaml:"line"`
	Tier       string   `json:"tier" yaml:"tier"`
	Source     string   `json:"source" yaml:"source"`
	Statements []string `json:"statements" yaml:"statements"`
	Text       string   `json:"text" yaml:"text"`
}

func newStatementReports(results []*reviewer.StatementResult) []statementReport {
	reports := make([]statementReport, 0, len(results))
	for _, r := range results {
		labels := r.Classification.Extraction.Labels()
		if labels == nil {
			labels = []string{}
		}
		reports = append(reports, statementReport{
			Index:      r.Index,
			Line:       r.Line,
			Tier:       r.Classification.Tier.String(),
			Source:     r.Classification.Extraction.Source.String(),
			Statements: labels,
			Text:       r.Text,
		})
	}
	return reports
}

func newClassificationReport(c risk.Classification) *classificationReport {
	report := &classificationReport{
		Engine:     c.Engine.String(),
		Tier:       c.Tier.String(),
		Readonly:   c.Readonly,
		Modify:     c.Modify,
		Dangerous:  c.Dangerous,
		Source:     c.Extraction.Source.String(),
		Statements: c.Extraction.Statements,
		Nested:     c.Extraction.Nested,
	}
	if report.Statements == nil {
		report.Statements = []string{}
	}
	if c.Extraction.Err != nil {
		report.ParseError = c.Extraction.Err.Error()
	}
	return report
}

// textWriter is implemented by values with a plain text rendering.
type textWriter interface {
	writeText(w io.Writer) error
}

func writeReport(w io.Writer, format string, v textWriter) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		return encoder.Encode(v)
	case "text":
		return v.writeText(w)
	default:
		return errors.Errorf("unsupported output format: %s", format)
	}
}

func (r *classificationReport) writeText(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tier:       %s\n", r.Tier)
	fmt.Fprintf(&sb, "Readonly:   %t\n", r.Readonly)
	fmt.Fprintf(&sb, "Modify:     %t\n", r.Modify)
	fmt.Fprintf(&sb, "Dangerous:  %t\n", r.Dangerous)
	fmt.Fprintf(&sb, "Engine:     %s\n", r.Engine)
	fmt.Fprintf(&sb, "Source:     %s\n", r.Source)
	fmt.Fprintf(&sb, "Statements: %s\n", joinOrNone(r.Statements))
	if len(r.Nested) > 0 {
		fmt.Fprintf(&sb, "Nested:     %s\n", strings.Join(r.Nested, ", "))
	}
	if r.ParseError != "" {
		fmt.Fprintf(&sb, "Parse error: %s\n", r.ParseError)
	}
	if _, err := io.WriteString(w, sb.String()); err != nil {
		return err
	}
	if len(r.Review) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "#\tLINE\tTIER\tSTATEMENT")
	for _, stmt := range r.Review {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", stmt.Index+1, stmt.Line, stmt.Tier, abbreviate(stmt.Text, 60))
	}
	return tw.Flush()
}

// abbreviate collapses whitespace in s and cuts it to at most n runes.
func abbreviate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func joinOrNone(labels []string) string {
	if len(labels) == 0 {
		return "(none)"
	}
	return strings.Join(labels, ", ")
}

// queryReport is the printed form of a gate.Result.
type queryReport struct {
	Columns []string `json:"columns" yaml:"columns"`
	Rows    [][]any  `json:"rows" yaml:"rows"`
}

func newQueryReport(r *gate.Result) queryReport {
	report := queryReport{Columns: r.Columns, Rows: r.Rows}
	if report.Rows == nil {
		report.Rows = [][]any{}
	}
	return report
}

func (r queryReport) writeText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(r.Columns, "\t"))
	for _, row := range r.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
			} else {
				cells[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	fmt.Fprintf(tw, "(%d row(s))\n", len(r.Rows))
	return tw.Flush()
}

// execReport is the printed form of an executed statement.
type execReport struct {
	RowsAffected int64 `json:"rows_affected" yaml:"rows_affected"`
}

func (r execReport) writeText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d row(s) affected\n", r.RowsAffected)
	return err
}

// bindingsReport lists database bindings.
type bindingsReport struct {
	Bindings []bindingReport `json:"bindings" yaml:"bindings"`
}

type bindingReport struct {
	Name   string `json:"name" yaml:"name"`
	Key    string `json:"key" yaml:"key"`
	Driver string `json:"driver" yaml:"driver"`
	Engine string `json:"engine" yaml:"engine"`
}

func (r bindingsReport) writeText(w io.Writer) error {
	if len(r.Bindings) == 0 {
		_, err := fmt.Fprintln(w, "No database bindings found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKEY\tDRIVER\tENGINE")
	for _, b := range r.Bindings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.Name, b.Key, b.Driver, b.Engine)
	}
	return tw.Flush()
}
