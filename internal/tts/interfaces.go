package tts

import (
	"context"
	"time"
)

// Credentials carries what a collaborator needs to authenticate.
type Credentials struct {
	APIKey string
}

// Synthesizer defines the contract for speech synthesis backends.
// Implementations include the hosted Gemini client and the offline mock.
type Synthesizer interface {
	// Synthesize voices text and returns the encoded audio payload exactly as
	// the backend delivered it (base64 PCM, mono, 16-bit, 24 kHz).
	// Failures must be one of *ContentBlockedError, ErrEmptyResponse or
	// *TransportError so the converter can classify them.
	Synthesize(ctx context.Context, text, voiceID string, creds Credentials) ([]byte, error)
}

// Rewriter rephrases text that was rejected by moderation while keeping its meaning.
type Rewriter interface {
	// Rewrite returns the rephrased text.
	// Failures must be *TransportError or ErrEmptyResult.
	Rewrite(ctx context.Context, text string, creds Credentials) (string, error)
}

// Recorder receives conversion events for metrics.
// Implementations must be safe for concurrent use.
type Recorder interface {
	// SynthesisAttempt is called after every synthesis call.
	SynthesisAttempt(kind ErrorKind, elapsed time.Duration)

	// Rewrite is called after every rewrite call.
	Rewrite(kind ErrorKind)

	// LineStarted and LineFinished bracket one conversion run.
	LineStarted()
	LineFinished(status string)
}

type nopRecorder struct{}

func (nopRecorder) SynthesisAttempt(ErrorKind, time.Duration) {}
func (nopRecorder) Rewrite(ErrorKind)                         {}
func (nopRecorder) LineStarted()                              {}
func (nopRecorder) LineFinished(string)                       {}
