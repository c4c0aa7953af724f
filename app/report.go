package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"batteryflow/domain/core"
	"batteryflow/domain/run"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// ReportWriter persists finished run manifests and their HTML summaries
type ReportWriter struct {
	dir string
}

// NewReportWriter writes reports under dir
func NewReportWriter(dir string) *ReportWriter {
	return &ReportWriter{dir: dir}
}

// ManifestPath returns where the manifest of runID is stored
func (w *ReportWriter) ManifestPath(runID core.RunID) string {
	return filepath.Join(w.dir, runID.String()+".json")
}

// ReportPath returns where the HTML report of runID is stored
func (w *ReportWriter) ReportPath(runID core.RunID) string {
	return filepath.Join(w.dir, runID.String()+".html")
}

// Write stores the manifest JSON and the rendered report
func (w *ReportWriter) Write(m *run.Manifest) error {
	snap := m.Snapshot()
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return core.NewResourceError(w.dir, err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := writeFileAtomic(w.ManifestPath(snap.RunID), data); err != nil {
		return err
	}
	return writeFileAtomic(w.ReportPath(snap.RunID), RenderReport(snap))
}

// LoadManifest reads back a stored manifest
func (w *ReportWriter) LoadManifest(runID core.RunID) (*run.Manifest, error) {
	data, err := os.ReadFile(w.ManifestPath(runID))
	if os.IsNotExist(err) {
		return nil, core.NewNotFoundError("run", runID.String())
	}
	if err != nil {
		return nil, core.NewResourceError(w.ManifestPath(runID), err)
	}
	var m run.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, core.NewDataFormatError(w.ManifestPath(runID), err.Error())
	}
	return &m, nil
}

// LoadReport reads back a stored HTML report
func (w *ReportWriter) LoadReport(runID core.RunID) ([]byte, error) {
	data, err := os.ReadFile(w.ReportPath(runID))
	if os.IsNotExist(err) {
		return nil, core.NewNotFoundError("report", runID.String())
	}
	if err != nil {
		return nil, core.NewResourceError(w.ReportPath(runID), err)
	}
	return data, nil
}

// RenderReport renders a manifest as a standalone HTML page
func RenderReport(m *run.Manifest) []byte {
	md := ReportMarkdown(m)
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: "Run " + m.RunID.String(),
	})
	return markdown.ToHTML(md, p, r)
}

// ReportMarkdown summarizes task states and ledger rows as markdown
func ReportMarkdown(m *run.Manifest) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s\n\n", m.DAGID)
	fmt.Fprintf(&b, "- Run: `%s`\n", m.RunID)
	fmt.Fprintf(&b, "- State: **%s**\n", m.State)
	fmt.Fprintf(&b, "- Input: `%s` (sample %d, seed %d)\n", m.Fingerprint.InputPath, m.Fingerprint.SampleSize, m.Fingerprint.Seed)
	fmt.Fprintf(&b, "- Fingerprint: `%s`\n", m.Fingerprint.Fingerprint.Short())
	fmt.Fprintf(&b, "- Started: %s\n", m.CreatedAt.Time().UTC().Format("2006-01-02 15:04:05 MST"))
	if m.FinishedAt != nil {
		fmt.Fprintf(&b, "- Duration: %s\n", m.FinishedAt.Time().Sub(m.CreatedAt.Time()).Round(time.Millisecond))
	}

	b.WriteString("\n## Tasks\n\n")
	b.WriteString("| Task | State | Attempts | Duration (ms) | Error |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, id := range m.Order {
		t, ok := m.Tasks[id]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %s |\n", id, t.State, t.Attempts, t.DurationMs, escapeCell(t.Error))
	}

	if len(m.Metrics) > 0 {
		b.WriteString("\n## Metrics\n\n")
		b.WriteString("| Model | Dataset | MSE | RMSE | R2 | Adjusted R2 |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, r := range m.Metrics {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				r.Model, r.Dataset, num(r.MSE), num(r.RMSE), num(r.R2), num(r.AdjustedR2))
		}
	}
	return b.Bytes()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return core.NewResourceError(path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return core.NewResourceError(path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return core.NewResourceError(path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return core.NewResourceError(path, err)
	}
	return nil
}
