package tts

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ttypes"
)

// scriptedSynth returns the scripted errors in order, then succeeds.
type scriptedSynth struct {
	mu     sync.Mutex
	errs   []error
	texts  []string
	voices []string
}

func (s *scriptedSynth) Synthesize(ctx context.Context, text, voiceID string, creds Credentials) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := len(s.texts)
	s.texts = append(s.texts, text)
	s.voices = append(s.voices, voiceID)
	if call < len(s.errs) && s.errs[call] != nil {
		return nil, s.errs[call]
	}
	return []byte("AAAA"), nil
}

func (s *scriptedSynth) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.texts)
}

type scriptedRewriter struct {
	result string
	err    error
	inputs []string
}

func (r *scriptedRewriter) Rewrite(ctx context.Context, text string, creds Credentials) (string, error) {
	r.inputs = append(r.inputs, text)
	return r.result, r.err
}

type countingRecorder struct {
	mu       sync.Mutex
	attempts map[ErrorKind]int
	rewrites int
	started  int
	finished []string
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{attempts: make(map[ErrorKind]int)}
}

func (r *countingRecorder) SynthesisAttempt(kind ErrorKind, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[kind]++
}

func (r *countingRecorder) Rewrite(ErrorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rewrites++
}

func (r *countingRecorder) LineStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *countingRecorder) LineFinished(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, status)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestConverter(s Synthesizer, r Rewriter, opts ...Option) *Converter {
	opts = append([]Option{WithLogger(quietLogger()), WithRetryDelay(0)}, opts...)
	return NewConverter(s, r, opts...)
}

func blocked() error {
	return &ContentBlockedError{Reason: "SAFETY"}
}

func transport() error {
	return NewTransportError("synthesize", 503, "unavailable", nil)
}

func pendingLine(id, text string) ttypes.Line {
	return ttypes.Line{ID: id, Text: text, Status: ttypes.StatusPending}
}

func TestConvertFirstAttemptSucceeds(t *testing.T) {
	synth := &scriptedSynth{}
	rw := &scriptedRewriter{result: "unused"}
	rec := newCountingRecorder()
	c := newTestConverter(synth, rw, WithRecorder(rec))

	got := c.Convert(context.Background(), pendingLine("001", "Hello"), Request{VoiceID: "Kore"})

	if got.Status != ttypes.StatusDone {
		t.Fatalf("expected Done, got %s (%s)", got.Status, got.Error)
	}
	if synth.calls() != 1 {
		t.Errorf("expected 1 synthesis call, got %d", synth.calls())
	}
	if len(rw.inputs) != 0 {
		t.Errorf("expected 0 rewrite calls, got %d", len(rw.inputs))
	}
	if string(got.AudioData) != "AAAA" {
		t.Errorf("payload not stored as delivered: %q", got.AudioData)
	}
	if got.Text != "Hello" {
		t.Errorf("text changed to %q", got.Text)
	}
	if rec.started != 1 || len(rec.finished) != 1 || rec.finished[0] != "Done" {
		t.Errorf("unexpected recorder state %+v", rec)
	}
}

func TestConvertRewriteAfterBlock(t *testing.T) {
	synth := &scriptedSynth{errs: []error{blocked(), blocked()}}
	rw := &scriptedRewriter{result: "A gentler line"}
	c := newTestConverter(synth, rw)

	got := c.Convert(context.Background(), pendingLine("002", "A harsh line"), Request{VoiceID: "Kore"})

	if got.Status != ttypes.StatusDone {
		t.Fatalf("expected Done, got %s (%s)", got.Status, got.Error)
	}
	if len(rw.inputs) != 1 {
		t.Fatalf("expected exactly 1 rewrite call, got %d", len(rw.inputs))
	}
	if rw.inputs[0] != "A harsh line" {
		t.Errorf("rewrite received %q", rw.inputs[0])
	}
	if synth.calls() != 3 || synth.calls() > MaxAttempts {
		t.Errorf("expected 3 synthesis calls, got %d", synth.calls())
	}
	if got.Text != "A gentler line" {
		t.Errorf("expected stored text to be the rewrite, got %q", got.Text)
	}
	if synth.texts[0] != "A harsh line" || synth.texts[1] != "A gentler line" {
		t.Errorf("unexpected synthesis inputs %q", synth.texts)
	}
}

func TestConvertRewriteSkipsDelay(t *testing.T) {
	synth := &scriptedSynth{errs: []error{blocked()}}
	rw := &scriptedRewriter{result: "rewritten"}
	c := newTestConverter(synth, rw, WithRetryDelay(time.Hour))

	done := make(chan ttypes.Line, 1)
	go func() {
		done <- c.Convert(context.Background(), pendingLine("001", "text"), Request{VoiceID: "Kore"})
	}()

	select {
	case got := <-done:
		if got.Status != ttypes.StatusDone {
			t.Fatalf("expected Done, got %s", got.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("rewrite path waited for the retry delay")
	}
}

func TestConvertExhaustsAttempts(t *testing.T) {
	synth := &scriptedSynth{errs: []error{transport(), transport(), transport(), transport(), transport(), transport()}}
	rw := &scriptedRewriter{result: "unused"}
	c := newTestConverter(synth, rw)

	got := c.Convert(context.Background(), pendingLine("003", "text"), Request{VoiceID: "Kore"})

	if got.Status != ttypes.StatusError {
		t.Fatalf("expected Error, got %s", got.Status)
	}
	if synth.calls() != MaxAttempts {
		t.Errorf("expected %d synthesis calls, got %d", MaxAttempts, synth.calls())
	}
	if len(rw.inputs) != 0 {
		t.Errorf("transport failures must not trigger a rewrite")
	}
	if got.AudioData != nil {
		t.Error("failed line must not carry audio")
	}
	if !strings.Contains(got.Error, "status 503") || strings.Contains(got.Error, "rewrite") {
		t.Errorf("unexpected error message %q", got.Error)
	}
}

func TestConvertRewriteOnlyOnce(t *testing.T) {
	errs := make([]error, MaxAttempts)
	for i := range errs {
		errs[i] = blocked()
	}
	synth := &scriptedSynth{errs: errs}
	rw := &scriptedRewriter{result: "still blocked"}
	c := newTestConverter(synth, rw)

	got := c.Convert(context.Background(), pendingLine("004", "original"), Request{VoiceID: "Kore"})

	if got.Status != ttypes.StatusError {
		t.Fatalf("expected Error, got %s", got.Status)
	}
	if len(rw.inputs) != 1 {
		t.Errorf("expected 1 rewrite call, got %d", len(rw.inputs))
	}
	if synth.calls() != MaxAttempts {
		t.Errorf("expected %d synthesis calls, got %d", MaxAttempts, synth.calls())
	}
	if got.Text != "still blocked" {
		t.Errorf("expected last working text, got %q", got.Text)
	}
	if !strings.HasSuffix(got.Error, rewriteNote) {
		t.Errorf("expected rewrite annotation, got %q", got.Error)
	}
}

func TestConvertRewriteFailureFallsThrough(t *testing.T) {
	tests := []struct {
		name string
		rw   *scriptedRewriter
	}{
		{"transport", &scriptedRewriter{err: NewTransportError("rewrite", 500, "", nil)}},
		{"empty result", &scriptedRewriter{err: ErrEmptyResult}},
		{"blank text", &scriptedRewriter{result: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synth := &scriptedSynth{errs: []error{blocked()}}
			c := newTestConverter(synth, tt.rw)

			got := c.Convert(context.Background(), pendingLine("005", "keep me"), Request{VoiceID: "Kore"})

			if got.Status != ttypes.StatusDone {
				t.Fatalf("expected Done, got %s", got.Status)
			}
			if synth.calls() != 2 {
				t.Errorf("expected 2 synthesis calls, got %d", synth.calls())
			}
			if synth.texts[1] != "keep me" || got.Text != "keep me" {
				t.Errorf("working text changed after failed rewrite: %q", synth.texts)
			}
		})
	}
}

func TestConvertWithoutRewriter(t *testing.T) {
	synth := &scriptedSynth{errs: []error{blocked()}}
	c := newTestConverter(synth, nil)

	got := c.Convert(context.Background(), pendingLine("001", "text"), Request{VoiceID: "Kore"})
	if got.Status != ttypes.StatusDone || synth.calls() != 2 {
		t.Errorf("expected Done after 2 calls, got %s after %d", got.Status, synth.calls())
	}
}

func TestConvertBlockedWithoutRewriterHasNoRewriteNote(t *testing.T) {
	errs := make([]error, MaxAttempts)
	for i := range errs {
		errs[i] = blocked()
	}
	synth := &scriptedSynth{errs: errs}
	c := newTestConverter(synth, nil)

	got := c.Convert(context.Background(), pendingLine("001", "text"), Request{VoiceID: "Kore"})
	if got.Status != ttypes.StatusError {
		t.Fatalf("expected Error, got %s", got.Status)
	}
	if strings.Contains(got.Error, rewriteNote) {
		t.Errorf("no rewrite happened, got %q", got.Error)
	}
}

func TestConvertNoRewriteOnFinalAttempt(t *testing.T) {
	synth := &scriptedSynth{errs: []error{transport(), transport(), transport(), transport(), blocked()}}
	rw := &scriptedRewriter{result: "never voiced"}
	c := newTestConverter(synth, rw)

	got := c.Convert(context.Background(), pendingLine("006", "last try"), Request{VoiceID: "Kore"})

	if got.Status != ttypes.StatusError {
		t.Fatalf("expected Error, got %s", got.Status)
	}
	if synth.calls() != MaxAttempts {
		t.Errorf("expected %d synthesis calls, got %d", MaxAttempts, synth.calls())
	}
	if len(rw.inputs) != 0 {
		t.Errorf("expected no rewrite on the final attempt, got %d", len(rw.inputs))
	}
	if got.Text != "last try" {
		t.Errorf("expected the last synthesized text, got %q", got.Text)
	}
	if strings.Contains(got.Error, rewriteNote) {
		t.Errorf("unexpected rewrite annotation %q", got.Error)
	}
}

func TestConvertPromptPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "Hello"},
		{"Say dramatically:", "Say dramatically: Hello"},
	}

	for _, tt := range tests {
		synth := &scriptedSynth{}
		c := newTestConverter(synth, nil)
		c.Convert(context.Background(), pendingLine("001", "Hello"), Request{VoiceID: "Puck", PromptPrefix: tt.prefix})

		if synth.texts[0] != tt.want {
			t.Errorf("prefix %q: synthesized %q, want %q", tt.prefix, synth.texts[0], tt.want)
		}
		if synth.voices[0] != "Puck" {
			t.Errorf("voice not passed through: %q", synth.voices[0])
		}
	}
}

func TestConvertPublishesUpdates(t *testing.T) {
	synth := &scriptedSynth{errs: []error{blocked()}}
	rw := &scriptedRewriter{result: "softer"}
	c := newTestConverter(synth, rw)

	var updates []ttypes.Line
	req := Request{
		VoiceID:  "Kore",
		OnUpdate: func(l ttypes.Line) { updates = append(updates, l) },
	}

	c.Convert(context.Background(), pendingLine("001", "harsh"), req)

	if len(updates) != 3 {
		t.Fatalf("expected 3 updates, got %d", len(updates))
	}
	if updates[0].Status != ttypes.StatusConverting {
		t.Errorf("first update should enter Converting, got %s", updates[0].Status)
	}
	if updates[1].Text != "softer" || updates[1].Status != ttypes.StatusConverting {
		t.Errorf("second update should carry rewritten text, got %+v", updates[1])
	}
	if updates[2].Status != ttypes.StatusDone {
		t.Errorf("last update should be Done, got %s", updates[2].Status)
	}

	// status never reverts across published snapshots
	rank := map[ttypes.Status]int{
		ttypes.StatusPending:    0,
		ttypes.StatusConverting: 1,
		ttypes.StatusDone:       2,
		ttypes.StatusError:      2,
	}
	for i := 1; i < len(updates); i++ {
		if rank[updates[i].Status] < rank[updates[i-1].Status] {
			t.Errorf("status reverted from %s to %s", updates[i-1].Status, updates[i].Status)
		}
	}
}

func TestConvertAlreadyConvertingIsNoop(t *testing.T) {
	synth := &scriptedSynth{}
	c := newTestConverter(synth, nil)

	var updates []ttypes.Line
	line := ttypes.Line{ID: "001", Text: "x", Status: ttypes.StatusConverting}
	c.Convert(context.Background(), line, Request{VoiceID: "Kore", OnUpdate: func(l ttypes.Line) { updates = append(updates, l) }})

	if len(updates) != 1 || updates[0].Status != ttypes.StatusDone {
		t.Errorf("expected a single Done update, got %+v", updates)
	}
}

func TestConvertTerminalLineUnchanged(t *testing.T) {
	synth := &scriptedSynth{}
	c := newTestConverter(synth, nil)

	for _, status := range []ttypes.Status{ttypes.StatusDone, ttypes.StatusError} {
		line := ttypes.Line{ID: "001", Text: "x", Status: status, Error: "earlier"}
		got := c.Convert(context.Background(), line, Request{VoiceID: "Kore"})
		if got.Status != status || got.Error != "earlier" {
			t.Errorf("terminal line %s was modified: %+v", status, got)
		}
	}
	if synth.calls() != 0 {
		t.Errorf("terminal lines must not be synthesized, got %d calls", synth.calls())
	}
}

func TestConvertCanceledDuringDelay(t *testing.T) {
	synth := &scriptedSynth{errs: []error{transport(), transport()}}
	c := newTestConverter(synth, nil, WithRetryDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan ttypes.Line, 1)
	go func() {
		done <- c.Convert(ctx, pendingLine("001", "text"), Request{VoiceID: "Kore"})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case got := <-done:
		if got.Status != ttypes.StatusError {
			t.Fatalf("expected Error, got %s", got.Status)
		}
		if !strings.Contains(got.Error, context.Canceled.Error()) {
			t.Errorf("expected cancellation cause, got %q", got.Error)
		}
		if synth.calls() != 1 {
			t.Errorf("expected 1 synthesis call before cancel, got %d", synth.calls())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Convert did not return after cancel")
	}
}

func TestConvertRetriesEmptyResponse(t *testing.T) {
	synth := &scriptedSynth{errs: []error{ErrEmptyResponse, errors.New("unexpected")}}
	rec := newCountingRecorder()
	c := newTestConverter(synth, &scriptedRewriter{result: "unused"}, WithRecorder(rec))

	got := c.Convert(context.Background(), pendingLine("001", "text"), Request{VoiceID: "Kore"})
	if got.Status != ttypes.StatusDone {
		t.Fatalf("expected Done, got %s", got.Status)
	}
	if rec.attempts[KindEmptyResponse] != 1 || rec.attempts[KindUnknown] != 1 || rec.attempts[""] != 1 {
		t.Errorf("unexpected attempt counts %v", rec.attempts)
	}
	if rec.rewrites != 0 {
		t.Errorf("expected no rewrites, got %d", rec.rewrites)
	}
}
