// Package output writes the deliverables of a converted batch: one WAV per
// successful line, a merged WAV, and a YAML report next to them.
package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/audio"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ingest"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ttypes"
)

// MergeMode selects how the merged file is produced.
type MergeMode string

const (
	MergeAuto   MergeMode = "auto"
	MergeConcat MergeMode = "concat"
	MergeTimed  MergeMode = "timed"
	MergeNone   MergeMode = "none"
)

// ErrInvalidMergeMode is returned by ParseMergeMode for unknown values
var ErrInvalidMergeMode = errors.New("invalid merge mode")

// ParseMergeMode parses a merge mode name. The empty string means auto.
func ParseMergeMode(s string) (MergeMode, error) {
	switch m := MergeMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MergeAuto, nil
	case MergeAuto, MergeConcat, MergeTimed, MergeNone:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q (want auto, concat, timed or none)", ErrInvalidMergeMode, s)
	}
}

// Resolve picks the concrete mode for a batch. Auto uses the timed merge
// when the batch carries subtitle timing.
func (m MergeMode) Resolve(b ttypes.FileBatch) MergeMode {
	if m != MergeAuto && m != "" {
		return m
	}
	if b.HasTiming() {
		return MergeTimed
	}
	return MergeConcat
}

// Store writes batch deliverables under Dir/<basename>/.
type Store struct {
	Dir       string
	Merge     MergeMode
	SkipLines bool
	Meta      RunMeta
	Logger    *log.Logger
}

// Result lists what Write produced.
type Result struct {
	Dir        string
	LineFiles  []string
	MergedFile string
	ReportFile string
	Report     Report
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, merge MergeMode) *Store {
	if dir == "" {
		dir = "output"
	}
	return &Store{Dir: dir, Merge: merge, Logger: log.Default()}
}

// Write stores every deliverable of a batch. A line whose audio cannot be
// decoded is skipped and reported; the rest of the batch is still written.
// A batch with no successful lines gets a report and no merged file.
func (s *Store) Write(b ttypes.FileBatch) (Result, error) {
	base := ingest.BaseName(b.Name)
	dir := filepath.Join(s.Dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	res := Result{Dir: dir}
	var errs []error

	sizes := make(map[string]int, len(b.Lines))
	written := make(map[string]bool, len(b.Lines))
	for _, l := range b.Lines {
		if l.Status != ttypes.StatusDone {
			continue
		}
		pcm, err := audio.DecodePayload(l.AudioData)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %s: %w", l.ID, err))
			continue
		}
		sizes[l.ID] = len(pcm)

		if s.SkipLines {
			continue
		}
		path := filepath.Join(dir, l.ID+".wav")
		if err := os.WriteFile(path, audio.EncodeWAV(pcm), 0o644); err != nil {
			errs = append(errs, fmt.Errorf("line %s: %w", l.ID, err))
			continue
		}
		res.LineFiles = append(res.LineFiles, path)
		written[l.ID] = true
	}

	mode := s.Merge.Resolve(b)
	if mode != MergeNone {
		path, err := s.writeMerged(dir, base, b, mode)
		switch {
		case errors.Is(err, audio.ErrNoSuccessfulLines):
			s.logger().Warn("nothing to merge", "batch", b.Name)
		case err != nil:
			errs = append(errs, err)
		default:
			res.MergedFile = path
		}
	}

	res.Report = NewReport(b, sizes, s.Meta)
	for i := range res.Report.Lines {
		if written[res.Report.Lines[i].ID] {
			res.Report.Lines[i].File = res.Report.Lines[i].ID + ".wav"
		}
	}
	if res.MergedFile != "" {
		res.Report.MergedFile = filepath.Base(res.MergedFile)
		res.Report.MergeMode = string(mode)
	}

	reportPath := filepath.Join(dir, ReportFileName)
	if err := res.Report.WriteFile(reportPath); err != nil {
		errs = append(errs, err)
	} else {
		res.ReportFile = reportPath
	}

	s.logger().Info("batch written",
		"batch", b.Name,
		"dir", dir,
		"lines", len(res.LineFiles),
		"merged", res.MergedFile != "",
	)
	return res, errors.Join(errs...)
}

func (s *Store) writeMerged(dir, base string, b ttypes.FileBatch, mode MergeMode) (string, error) {
	var (
		pcm  []byte
		err  error
		name string
	)
	switch mode {
	case MergeTimed:
		pcm, err = audio.MergeTimed(b)
		name = base + "_timed_merged.wav"
	default:
		pcm, err = audio.MergeConcat(b)
		name = base + "_merged.wav"
	}
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, name)
	wav := audio.EncodeWAV(pcm)
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return "", fmt.Errorf("failed to write merged file: %w", err)
	}
	s.logger().Debug("merged file written",
		"path", path,
		"size", humanize.Bytes(uint64(len(wav))),
		"duration", audio.Duration(len(pcm)).Round(time.Millisecond),
	)
	return path, nil
}

func (s *Store) logger() *log.Logger {
	if s.Logger == nil {
		return log.Default()
	}
	return s.Logger
}
