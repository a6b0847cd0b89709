package tts

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ttypes"
)

const (
	// MaxAttempts is the synthesis call budget for one conversion run
	MaxAttempts = 5

	// RetryDelay is the wait between attempts, skipped right after a successful rewrite
	RetryDelay = 2 * time.Second

	rewriteNote = " (text rewrite was attempted)"
)

// Request carries the per-run settings shared by every line of a batch.
type Request struct {
	VoiceID      string
	PromptPrefix string
	Credentials  Credentials

	// OnUpdate receives a snapshot of the line after every state change.
	// It may be nil.
	OnUpdate func(ttypes.Line)
}

// Converter drives one line through synthesis with retry and a single
// rewrite escalation on moderation rejections.
type Converter struct {
	synth    Synthesizer
	rewriter Rewriter
	logger   *log.Logger
	recorder Recorder
	delay    time.Duration
}

// Option configures a Converter
type Option func(*Converter)

// WithLogger sets the logger used for per-attempt diagnostics
func WithLogger(l *log.Logger) Option {
	return func(c *Converter) {
		c.logger = l
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(c *Converter) {
		c.recorder = r
	}
}

// WithRetryDelay overrides the wait between attempts
func WithRetryDelay(d time.Duration) Option {
	return func(c *Converter) {
		c.delay = d
	}
}

// NewConverter creates a converter. The rewriter may be nil, in which case
// moderation rejections go straight to the retry path.
func NewConverter(synth Synthesizer, rewriter Rewriter, opts ...Option) *Converter {
	c := &Converter{
		synth:    synth,
		rewriter: rewriter,
		logger:   log.Default(),
		recorder: nopRecorder{},
		delay:    RetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert runs the retry state machine for one line and returns its terminal
// state. A line that is already terminal comes back unchanged.
//
// Cancelling ctx aborts the wait between attempts and is passed to the
// collaborators; the line then ends in Error with the cancellation cause.
func (c *Converter) Convert(ctx context.Context, line ttypes.Line, req Request) ttypes.Line {
	if line.Status.IsTerminal() {
		return line
	}

	publish := func() {
		if req.OnUpdate != nil {
			req.OnUpdate(line.Clone())
		}
	}

	c.recorder.LineStarted()
	defer func() {
		c.recorder.LineFinished(line.Status.String())
	}()

	if line.Status != ttypes.StatusConverting {
		line.Status = ttypes.StatusConverting
		publish()
	}

	working := line.Text
	rewriteUsed := false
	var lastErr error

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		started := time.Now()
		payload, err := c.synth.Synthesize(ctx, composePrompt(req.PromptPrefix, working), req.VoiceID, req.Credentials)
		kind := KindOf(err)
		c.recorder.SynthesisAttempt(kind, time.Since(started))

		if err == nil {
			line.Status = ttypes.StatusDone
			line.AudioData = payload
			line.Text = working
			line.Error = ""
			c.logger.Debug("line converted", "line", line.ID, "attempt", attempt, "rewritten", rewriteUsed)
			publish()
			return line
		}

		lastErr = err
		c.logger.Warn("synthesis attempt failed", "line", line.ID, "attempt", attempt, "kind", kind, "err", err)

		// a rewrite on the final attempt could never be voiced
		if kind == KindContentBlocked && !rewriteUsed && c.rewriter != nil && attempt < MaxAttempts {
			rewriteUsed = true
			if rewritten, ok := c.rewrite(ctx, line.ID, working, req.Credentials); ok {
				working = rewritten
				line.Text = working
				publish()
				continue
			}
		}

		if attempt == MaxAttempts {
			break
		}
		if err := c.wait(ctx); err != nil {
			lastErr = err
			break
		}
	}

	line.Status = ttypes.StatusError
	line.AudioData = nil
	line.Text = working
	line.Error = failureMessage(lastErr, rewriteUsed)
	c.logger.Error("line failed", "line", line.ID, "err", line.Error)
	publish()
	return line
}

func (c *Converter) rewrite(ctx context.Context, lineID, text string, creds Credentials) (string, bool) {
	if c.rewriter == nil {
		return "", false
	}

	rewritten, err := c.rewriter.Rewrite(ctx, text, creds)
	c.recorder.Rewrite(KindOf(err))
	if err != nil {
		c.logger.Warn("text rewrite failed", "line", lineID, "err", err)
		return "", false
	}
	if rewritten == "" {
		c.logger.Warn("text rewrite failed", "line", lineID, "err", ErrEmptyResult)
		return "", false
	}

	c.logger.Info("text rewritten after moderation block", "line", lineID)
	return rewritten, true
}

func (c *Converter) wait(ctx context.Context) error {
	if c.delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(c.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func composePrompt(prefix, text string) string {
	if prefix == "" {
		return text
	}
	return prefix + " " + text
}

func failureMessage(err error, rewriteUsed bool) string {
	msg := "conversion failed"
	if err != nil {
		msg = err.Error()
	}
	if rewriteUsed {
		msg += rewriteNote
	}
	return msg
}
