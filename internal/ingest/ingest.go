// Package ingest turns script files into batches of line records.
//
// Plain text files yield one line per non-blank line. SubRip files yield one
// line per subtitle block and carry its start and end times, which later
// select the timed merge.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ttypes"
)

// batchIDPrefix marks batch identifiers produced by this package
const batchIDPrefix = "batch_"

var (
	// ErrUnsupportedFormat is returned for files that are neither .txt nor .srt
	ErrUnsupportedFormat = errors.New("unsupported input format")

	// ErrNoLines is returned when a file parses to zero lines
	ErrNoLines = errors.New("input contains no lines")
)

// Format identifies an input file format.
type Format string

const (
	FormatText Format = "txt"
	FormatSRT  Format = "srt"
)

// FormatOf returns the format implied by the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return FormatText, nil
	case ".srt":
		return FormatSRT, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

// Supported reports whether path has an extension the loader understands.
func Supported(path string) bool {
	_, err := FormatOf(path)
	return err == nil
}

// LoadFile reads and parses one file into a Pending batch. On an I/O or parse
// failure it still returns a batch, marked Error with no lines, so callers
// can report it next to the batches that did load.
func LoadFile(path string) (ttypes.FileBatch, error) {
	b := ttypes.FileBatch{
		ID:     newBatchID(),
		Name:   filepath.Base(path),
		Status: ttypes.StatusPending,
	}

	format, err := FormatOf(path)
	if err != nil {
		b.Status = ttypes.StatusError
		return b, err
	}

	f, err := os.Open(path)
	if err != nil {
		b.Status = ttypes.StatusError
		return b, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	lines, err := Parse(f, format)
	if err != nil {
		b.Status = ttypes.StatusError
		return b, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	b.Lines = lines
	return b, nil
}

// Parse reads line records of the given format from r.
func Parse(r io.Reader, format Format) ([]ttypes.Line, error) {
	var (
		lines []ttypes.Line
		err   error
	)
	switch format {
	case FormatText:
		lines, err = parseText(r)
	case FormatSRT:
		lines, err = parseSRT(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	return lines, nil
}

// BaseName strips the directory and extension from a batch name.
func BaseName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func newBatchID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf(batchIDPrefix+"%d", time.Now().UnixNano())
	}
	return batchIDPrefix + id.String()
}

// lineID zero-pads n to at least three digits.
func lineID(n int) string {
	return fmt.Sprintf("%03d", n)
}
