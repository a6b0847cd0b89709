package ingest

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ttypes"
)

// timingPattern matches "00:01:02,500 --> 00:01:04,000". A dot is accepted
// in place of the comma since some editors emit it.
var timingPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})\s*-->\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})`)

type srtBlock struct {
	index   int
	startMs int
	endMs   int
	text    []string
}

func parseSRT(r io.Reader) ([]ttypes.Line, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		blocks []srtBlock
		cur    *srtBlock
		lineNo int
		// pending holds a numeric line seen before its timing line
		pending = -1
	)

	flush := func() {
		if cur != nil && len(cur.text) > 0 {
			blocks = append(blocks, *cur)
		}
		cur = nil
		pending = -1
	}

	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if lineNo == 1 {
			raw = strings.TrimSpace(strings.TrimPrefix(raw, bom))
		}

		if raw == "" {
			flush()
			continue
		}

		if cur == nil {
			if m := timingPattern.FindStringSubmatch(raw); m != nil {
				start, end := groupsToMs(m[1:5]), groupsToMs(m[5:9])
				if end < start {
					return nil, fmt.Errorf("line %d: subtitle ends before it starts", lineNo)
				}
				cur = &srtBlock{index: pending, startMs: start, endMs: end}
				continue
			}
			if n, err := strconv.Atoi(raw); err == nil && pending < 0 {
				pending = n
				continue
			}
			return nil, fmt.Errorf("line %d: expected subtitle timing, got %q", lineNo, raw)
		}

		cur.text = append(cur.text, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	explicit := make(map[int]bool, len(blocks))
	for _, b := range blocks {
		if b.index >= 0 {
			explicit[b.index] = true
		}
	}

	// blocks without an index take the next number no other block claims
	lines := make([]ttypes.Line, 0, len(blocks))
	seen := make(map[int]bool, len(blocks))
	prev := 0
	for _, b := range blocks {
		n := b.index
		if n < 0 {
			n = prev + 1
			for seen[n] || explicit[n] {
				n++
			}
		} else if seen[n] {
			return nil, fmt.Errorf("duplicate subtitle index %d", n)
		}
		seen[n] = true
		prev = n
		id := lineID(n)

		lines = append(lines, ttypes.Line{
			ID:          id,
			Text:        strings.Join(b.text, " "),
			Status:      ttypes.StatusPending,
			StartTimeMs: ttypes.IntPtr(b.startMs),
			EndTimeMs:   ttypes.IntPtr(b.endMs),
		})
	}
	return lines, nil
}

// groupsToMs converts hours, minutes, seconds and a fraction to milliseconds.
// The fraction is read as a decimal so "5" means 500ms.
func groupsToMs(g []string) int {
	h, _ := strconv.Atoi(g[0])
	m, _ := strconv.Atoi(g[1])
	s, _ := strconv.Atoi(g[2])

	frac := g[3]
	for len(frac) < 3 {
		frac += "0"
	}
	ms, _ := strconv.Atoi(frac)

	return ((h*60+m)*60+s)*1000 + ms
}
