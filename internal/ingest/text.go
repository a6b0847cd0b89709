package ingest

import (
	"bufio"
	"io"
	"strings"

	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ttypes"
)

// maxLineSize bounds a single script line
const maxLineSize = 1 << 20

const bom = "\ufeff"

func parseText(r io.Reader) ([]ttypes.Line, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var lines []ttypes.Line
	for scanner.Scan() {
		text := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), bom))
		if text == "" {
			continue
		}
		lines = append(lines, ttypes.Line{
			ID:     lineID(len(lines) + 1),
			Text:   text,
			Status: ttypes.StatusPending,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
