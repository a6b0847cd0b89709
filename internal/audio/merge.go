package audio

import (
	"errors"
	"fmt"
	"math"

	"github.com/charmbracelet/log"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ttypes"
)

// TailPaddingMs is the silence appended after the latest subtitle end in a timed merge.
const TailPaddingMs = 2000

// ErrNoSuccessfulLines is returned when a merge has no Done lines to work with.
var ErrNoSuccessfulLines = errors.New("no successfully converted lines to merge")

// MergeConcat decodes every Done line in order and joins the PCM with no gaps.
func MergeConcat(batch ttypes.FileBatch) ([]byte, error) {
	var chunks [][]byte
	total := 0
	for _, line := range batch.Lines {
		if line.Status != ttypes.StatusDone {
			continue
		}
		pcm, err := DecodePayload(line.AudioData)
		if err != nil {
			return nil, fmt.Errorf("line %s: %w", line.ID, err)
		}
		chunks = append(chunks, pcm)
		total += len(pcm)
	}
	if len(chunks) == 0 {
		return nil, ErrNoSuccessfulLines
	}

	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out, nil
}

// CanvasBytes returns the even-aligned PCM length covering totalMs.
func CanvasBytes(totalMs int) int {
	n := int(math.Ceil(float64(totalMs) / 1000 * BytesPerSecond))
	if n%2 != 0 {
		n++
	}
	return n
}

// StartByte returns the canvas offset for a subtitle start time.
func StartByte(startMs int) int {
	return int(math.Round(float64(startMs) / 1000 * BytesPerSecond))
}

// MergeTimed places every Done line that carries an end time onto a silent
// canvas at its subtitle start. Later lines overwrite earlier ones where
// they overlap; chunks running past the canvas are cut at its end.
func MergeTimed(batch ttypes.FileBatch) ([]byte, error) {
	var lines []ttypes.Line
	maxEnd := 0
	for _, line := range batch.Lines {
		if line.Status != ttypes.StatusDone || line.EndTimeMs == nil {
			continue
		}
		if len(lines) == 0 || *line.EndTimeMs > maxEnd {
			maxEnd = *line.EndTimeMs
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, ErrNoSuccessfulLines
	}

	canvas := make([]byte, CanvasBytes(maxEnd+TailPaddingMs))

	for _, line := range lines {
		pcm, err := DecodePayload(line.AudioData)
		if err != nil {
			return nil, fmt.Errorf("line %s: %w", line.ID, err)
		}

		start := 0
		if line.StartTimeMs != nil {
			start = StartByte(*line.StartTimeMs)
		}
		if start < 0 {
			start = 0
		}
		if start >= len(canvas) {
			log.Debug("timed merge: line starts past canvas end", "line", line.ID, "start", start, "canvas", len(canvas))
			continue
		}

		n := copy(canvas[start:], pcm)
		if n < len(pcm) {
			log.Debug("timed merge: truncated line tail", "line", line.ID, "dropped", len(pcm)-n)
		}
	}

	return canvas, nil
}
