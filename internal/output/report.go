package output

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/audio"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ttypes"
	"gopkg.in/yaml.v3"
)

// ReportFileName is the report written next to the audio files
const ReportFileName = "report.yaml"

// RunMeta describes the settings a batch was converted with.
type RunMeta struct {
	Engine string `yaml:"engine,omitempty"`
	Voice  string `yaml:"voice,omitempty"`
	Prompt string `yaml:"prompt,omitempty"`
}

// Report summarizes one converted batch.
type Report struct {
	Batch       string       `yaml:"batch"`
	Source      string       `yaml:"source"`
	Status      string       `yaml:"status"`
	GeneratedAt time.Time    `yaml:"generated_at"`
	Run         RunMeta      `yaml:"run"`
	Done        int          `yaml:"done"`
	Failed      int          `yaml:"failed"`
	Duration    string       `yaml:"duration"`
	Size        string       `yaml:"size"`
	MergeMode   string       `yaml:"merge_mode,omitempty"`
	MergedFile  string       `yaml:"merged_file,omitempty"`
	Lines       []LineReport `yaml:"lines"`
}

// LineReport is one line of the report.
type LineReport struct {
	ID       string `yaml:"id"`
	Status   string `yaml:"status"`
	Text     string `yaml:"text"`
	Error    string `yaml:"error,omitempty"`
	StartMs  *int   `yaml:"start_ms,omitempty"`
	EndMs    *int   `yaml:"end_ms,omitempty"`
	Duration string `yaml:"duration,omitempty"`
	File     string `yaml:"file,omitempty"`
}

// NewReport builds the report of a batch. sizes maps line IDs to their
// decoded PCM length; lines missing from it report no duration.
func NewReport(b ttypes.FileBatch, sizes map[string]int, meta RunMeta) Report {
	done, failed := b.Counts()
	r := Report{
		Batch:       b.ID,
		Source:      b.Name,
		Status:      b.Status.String(),
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
		Run:         meta,
		Done:        done,
		Failed:      failed,
		Lines:       make([]LineReport, 0, len(b.Lines)),
	}

	total := 0
	for _, l := range b.Lines {
		lr := LineReport{
			ID:      l.ID,
			Status:  l.Status.String(),
			Text:    l.Text,
			Error:   l.Error,
			StartMs: l.StartTimeMs,
			EndMs:   l.EndTimeMs,
		}
		if n, ok := sizes[l.ID]; ok {
			total += n
			lr.Duration = audio.Duration(n).Round(time.Millisecond).String()
		}
		r.Lines = append(r.Lines, lr)
	}

	r.Duration = audio.Duration(total).Round(time.Millisecond).String()
	r.Size = humanize.Bytes(uint64(total))
	return r
}

// WriteFile marshals the report to path.
func (r Report) WriteFile(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteFile.
func ReadReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("failed to parse report: %w", err)
	}
	return r, nil
}
