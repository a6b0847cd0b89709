package engines

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/audio"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/tts"
)

// MockEngine is an offline Synthesizer and Rewriter. It renders a short tone
// whose length follows the text, so timed merges and reports look realistic
// without network access.
type MockEngine struct {
	msPerRune  int
	minMs      int
	latency    time.Duration
	blockWords []string

	synthCalls   atomic.Int64
	rewriteCalls atomic.Int64
}

// CacheScope identifies the rendering settings for cache keys.
func (e *MockEngine) CacheScope() string {
	return "mock/" + strconv.Itoa(e.msPerRune) + "/" + strconv.Itoa(e.minMs)
}

// MockConfig holds configuration for the mock engine.
type MockConfig struct {
	// MsPerRune sets the rendered duration per character (defaults to 60)
	MsPerRune int

	// MinMs is the shortest rendered line (defaults to 300)
	MinMs int

	// Latency simulates network time per call
	Latency time.Duration

	// BlockWords makes any line containing one of them fail as content blocked.
	// Rewrite masks them, so a blocked line recovers on the next attempt.
	BlockWords []string
}

// NewMockEngine creates a new mock engine.
func NewMockEngine(config MockConfig) *MockEngine {
	if config.MsPerRune == 0 {
		config.MsPerRune = 60
	}
	if config.MinMs == 0 {
		config.MinMs = 300
	}

	words := make([]string, 0, len(config.BlockWords))
	for _, w := range config.BlockWords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words = append(words, w)
		}
	}

	return &MockEngine{
		msPerRune:  config.MsPerRune,
		minMs:      config.MinMs,
		latency:    config.Latency,
		blockWords: words,
	}
}

// Synthesize renders a tone for text and returns it base64 encoded.
func (e *MockEngine) Synthesize(ctx context.Context, text, voiceID string, _ tts.Credentials) ([]byte, error) {
	e.synthCalls.Add(1)
	if err := e.sleep(ctx); err != nil {
		return nil, tts.NewTransportError("synthesize", 0, "", err)
	}

	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyResponse
	}
	if w := e.blockedWord(text); w != "" {
		return nil, &tts.ContentBlockedError{Reason: "SAFETY", Details: "mock block word " + w}
	}

	return audio.EncodePayload(e.render(text, voiceID)), nil
}

// Rewrite masks every block word.
func (e *MockEngine) Rewrite(ctx context.Context, text string, _ tts.Credentials) (string, error) {
	e.rewriteCalls.Add(1)
	if err := e.sleep(ctx); err != nil {
		return "", tts.NewTransportError("rewrite", 0, "", err)
	}

	out := text
	for _, w := range e.blockWords {
		out = replaceFold(out, w, "...")
	}
	if strings.TrimSpace(out) == "" {
		return "", tts.ErrEmptyResult
	}
	return out, nil
}

// Calls returns how many synthesis and rewrite calls were made.
func (e *MockEngine) Calls() (synth, rewrite int64) {
	return e.synthCalls.Load(), e.rewriteCalls.Load()
}

// DurationFor returns the rendered length for text.
func (e *MockEngine) DurationFor(text string) time.Duration {
	ms := utf8.RuneCountInString(text) * e.msPerRune
	if ms < e.minMs {
		ms = e.minMs
	}
	return time.Duration(ms) * time.Millisecond
}

func (e *MockEngine) render(text, voiceID string) []byte {
	samples := int(e.DurationFor(text).Milliseconds()) * audio.SampleRate / 1000

	// each voice gets its own pitch
	h := fnv.New32a()
	_, _ = h.Write([]byte(voiceID))
	freq := 180 + float64(h.Sum32()%220)

	pcm := make([]byte, samples*audio.BytesPerSample)
	for i := 0; i < samples; i++ {
		v := 0.25 * math.Sin(2*math.Pi*freq*float64(i)/audio.SampleRate)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return pcm
}

func (e *MockEngine) blockedWord(text string) string {
	lower := strings.ToLower(text)
	for _, w := range e.blockWords {
		if strings.Contains(lower, w) {
			return w
		}
	}
	return ""
}

func (e *MockEngine) sleep(ctx context.Context) error {
	if e.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(e.latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// replaceFold replaces ASCII case-insensitive occurrences of old (already lower case).
func replaceFold(s, old, repl string) string {
	lower := strings.ToLower(s)
	if len(lower) != len(s) {
		return strings.ReplaceAll(lower, old, repl)
	}

	var sb strings.Builder
	for {
		i := strings.Index(lower, old)
		if i < 0 {
			sb.WriteString(s)
			return sb.String()
		}
		sb.WriteString(s[:i])
		sb.WriteString(repl)
		s = s[i+len(old):]
		lower = lower[i+len(old):]
	}
}
