package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/score"
)

// Renderer writes reports
type Renderer struct {
	out io.Writer
}

// NewRenderer creates a renderer printing summaries to out
func NewRenderer(out io.Writer) *Renderer {
	if out == nil {
		out = os.Stderr
	}
	return &Renderer{out: out}
}

// MarshalReport encodes a report as indented JSON
func MarshalReport(report *model.Report) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// RenderJSON writes the report to path; "-" writes to stdout
func (r *Renderer) RenderJSON(report *model.Report, path string) error {
	data, err := MarshalReport(report)
	if err != nil {
		return err
	}
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// RenderSummary prints the per-principle scores and the metric outcomes
func (r *Renderer) RenderSummary(report *model.Report) {
	s := report.Summary
	fmt.Fprintf(r.out, "\n%s  (metrics v%s, %d metrics)\n", report.Request.ObjectIdentifier, report.MetricVersion, report.TotalMetrics)
	fmt.Fprintln(r.out, strings.Repeat("-", 60))
	for _, key := range append(append([]string{}, score.Principles...), score.Overall) {
		if _, ok := s.ScoreTotal[key]; !ok {
			continue
		}
		fmt.Fprintf(r.out, "%-5s %6s / %-6s %6.2f%%  maturity %d  passed %d/%d\n",
			key,
			humanize.Ftoa(s.ScoreEarned[key]),
			humanize.Ftoa(s.ScoreTotal[key]),
			s.ScorePercent[key],
			s.Maturity[key],
			s.StatusPassed[key],
			s.StatusTotal[key])
	}
	fmt.Fprintln(r.out)

	for _, res := range report.Results {
		mark := "✗"
		if res.Passed() {
			mark = "✓"
		}
		fmt.Fprintf(r.out, "%s %-14s %-5s/%-5s %s\n", mark, res.MetricIdentifier,
			humanize.Ftoa(res.Score.Earned), humanize.Ftoa(res.Score.Total), res.MetricName)
	}
}
