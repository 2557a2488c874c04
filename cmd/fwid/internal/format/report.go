package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/vulntor/fwid/pkg/engine"
	"github.com/vulntor/fwid/pkg/scanexec"
	"github.com/vulntor/fwid/pkg/stringutil"
)

// maxCellWidth bounds free-text table cells (evidence details, errors).
const maxCellWidth = 96

// ScanReport is the JSON envelope of a scan run.
type ScanReport struct {
	Success         bool              `json:"success"`
	RunID           string            `json:"run_id"`
	SpecificationID string            `json:"specification_id"`
	Status          string            `json:"status"`
	Summary         ScanSummary       `json:"summary"`
	Targets         []TargetReport    `json:"targets"`
	Plan            *engine.QueryPlan `json:"plan,omitempty"`
}

// ScanSummary counts verdicts across targets.
type ScanSummary struct {
	Targets       int `json:"targets"`
	Match         int `json:"match"`
	NoMatch       int `json:"no_match"`
	Indeterminate int `json:"indeterminate"`
	Failed        int `json:"failed"`
}

// TargetReport is one target's entry in a ScanReport.
type TargetReport struct {
	Target   string           `json:"target"`
	Digest   string           `json:"digest,omitempty"`
	Decision *engine.Decision `json:"decision,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// NewScanReport builds the JSON envelope for result.
func NewScanReport(result *scanexec.Result) (ScanReport, error) {
	report := ScanReport{
		Success:         result.Status == "completed",
		RunID:           result.RunID,
		SpecificationID: result.SpecificationID,
		Status:          result.Status,
		Plan:            result.Plan,
		Targets:         make([]TargetReport, 0, len(result.Decisions)),
	}

	tally := result.Tally()
	report.Summary = ScanSummary{
		Targets:       len(result.Decisions),
		Match:         tally[engine.Match],
		NoMatch:       tally[engine.NoMatch],
		Indeterminate: tally[engine.Indeterminate],
		Failed:        len(result.Failed()),
	}

	for _, d := range result.Decisions {
		entry := TargetReport{Target: d.Target, Decision: d.Decision, Error: d.Error}
		if d.Decision != nil {
			digest, err := d.Decision.Digest()
			if err != nil {
				return ScanReport{}, fmt.Errorf("digest decision for %s: %w", d.Target, err)
			}
			entry.Digest = digest
		}
		report.Targets = append(report.Targets, entry)
	}
	return report, nil
}

// PrintScan renders result as a verdict table, or as a ScanReport in JSON
// mode. With Options.Explain set, every decision's evidence and logic tree follow
// the table.
func (f *formatter) PrintScan(result *scanexec.Result) error {
	if result == nil {
		return fmt.Errorf("no scan result")
	}

	if f.isJSON() {
		report, err := NewScanReport(result)
		if err != nil {
			return err
		}
		return f.PrintJSON(report)
	}

	headers := []string{"Target", "Verdict", "Matched", "Not Matched", "Unknown", "Missing Required"}
	rows := make([][]string, 0, len(result.Decisions))
	for _, d := range result.Decisions {
		if d.Decision == nil {
			rows = append(rows, []string{d.Target, f.colorize("error", color.FgRed), "-", "-", "-", stringutil.Ellipsis(d.Error, maxCellWidth)})
			continue
		}
		matched, notMatched, unknown := d.Decision.Counts()
		missing := strings.Join(d.Decision.MissingRequired(), ",")
		if missing == "" {
			missing = "-"
		}
		rows = append(rows, []string{
			d.Target,
			f.verdict(d.Decision.Verdict),
			strconv.Itoa(matched),
			strconv.Itoa(notMatched),
			strconv.Itoa(unknown),
			missing,
		})
	}
	if err := f.PrintTable(headers, rows); err != nil {
		return err
	}

	if f.opts.Explain {
		for _, d := range result.Decisions {
			if d.Decision == nil {
				continue
			}
			if err := f.printExplanation(d.Decision); err != nil {
				return err
			}
		}
	}

	tally := result.Tally()
	return f.PrintSummary(fmt.Sprintf("\n%s: %d targets, %d match, %d no_match, %d indeterminate, %d failed (run %s)",
		result.SpecificationID, len(result.Decisions),
		tally[engine.Match], tally[engine.NoMatch], tally[engine.Indeterminate],
		len(result.Failed()), result.RunID))
}

func (f *formatter) printExplanation(d *engine.Decision) error {
	if _, err := fmt.Fprintf(f.stdout, "\n%s: %s\n", d.Target, f.verdict(d.Verdict)); err != nil {
		return err
	}

	headers := []string{"Probe", "Field", "Outcome", "Detail"}
	rows := make([][]string, 0, len(d.Evidence))
	for _, ev := range d.Evidence {
		rows = append(rows, []string{ev.ProbeID, string(ev.Protocol) + ":" + ev.Field, f.outcome(ev.Outcome), stringutil.Ellipsis(ev.Detail, maxCellWidth)})
	}
	if err := f.PrintTable(headers, rows); err != nil {
		return err
	}

	var sb strings.Builder
	writeTree(&sb, d.Explanation, "", true, true)
	_, err := fmt.Fprint(f.stdout, sb.String())
	return err
}

// writeTree draws an explanation as an indented tree:
//
//	and: unknown
//	├── leaf http_server_header: matched
//	└── leaf tls_cert_cn: unknown
func writeTree(sb *strings.Builder, node *engine.Explanation, prefix string, last, root bool) {
	if node == nil {
		return
	}
	label := string(node.Kind)
	if node.ProbeID != "" {
		label += " " + node.ProbeID
	}
	line := fmt.Sprintf("%s: %s\n", label, node.Outcome)

	childPrefix := prefix
	if root {
		sb.WriteString(line)
	} else {
		branch := "├── "
		if last {
			branch = "└── "
			childPrefix += "    "
		} else {
			childPrefix += "│   "
		}
		sb.WriteString(prefix + branch + line)
	}

	for i, child := range node.Children {
		writeTree(sb, child, childPrefix, i == len(node.Children)-1, false)
	}
}

// PrintPlan renders the queries of plan.
func (f *formatter) PrintPlan(plan *engine.QueryPlan) error {
	if plan == nil {
		return fmt.Errorf("no query plan")
	}
	if f.isJSON() {
		return f.PrintJSON(plan)
	}

	headers := []string{"Probe", "Protocol", "Field", "Independent", "Shared With", "Correlates"}
	rows := make([][]string, 0, len(plan.Queries))
	for _, q := range plan.Queries {
		rows = append(rows, []string{
			q.ProbeID,
			string(q.Protocol),
			q.Field,
			strconv.FormatBool(q.Independent),
			dashIfEmpty(q.SharedWith),
			dashIfEmpty(q.Correlates),
		})
	}
	if err := f.PrintTable(headers, rows); err != nil {
		return err
	}
	return f.PrintSummary(fmt.Sprintf("\n%s: %d queries over %d fields", plan.SpecificationID, len(plan.Queries), len(plan.Fields())))
}

func (f *formatter) verdict(v engine.Verdict) string {
	switch v {
	case engine.Match:
		return f.colorize(v.String(), color.FgGreen)
	case engine.NoMatch:
		return f.colorize(v.String(), color.FgRed)
	default:
		return f.colorize(v.String(), color.FgYellow)
	}
}

func (f *formatter) outcome(o engine.Outcome) string {
	switch o {
	case engine.Matched:
		return f.colorize(o.String(), color.FgGreen)
	case engine.NotMatched:
		return f.colorize(o.String(), color.FgRed)
	default:
		return f.colorize(o.String(), color.FgYellow)
	}
}

func (f *formatter) colorize(s string, attr color.Attribute) string {
	if !f.opts.Color {
		return s
	}
	return color.New(attr).Sprint(s)
}

func dashIfEmpty(list []string) string {
	if len(list) == 0 {
		return "-"
	}
	return strings.Join(list, ",")
}
