// Package ttypes contains the line and batch records shared by the converter,
// the scheduler, the assemblers and the output store.
// This package is used to break import cycles between tts, batch, audio, and output packages.
package ttypes

// Status is the conversion state of a line or a file batch.
type Status string

const (
	// StatusPending means the record was created but conversion has not started
	StatusPending Status = "Pending"

	// StatusConverting means synthesis is in flight
	StatusConverting Status = "Converting"

	// StatusDone means the record reached its successful terminal state.
	// For a batch it means every line is terminal, including failed ones.
	StatusDone Status = "Done"

	// StatusError means the record reached its failed terminal state.
	// Batches only use it for file-level I/O failures.
	StatusError Status = "Error"
)

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true for Done and Error.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusError
}

// Line is a single unit of text to be voiced.
type Line struct {
	// ID is unique within the parent batch and names the per-line output file
	ID string `yaml:"id"`

	// Text is the text that produced AudioData once the line is Done.
	// A successful rewrite replaces it.
	Text string `yaml:"text"`

	Status Status `yaml:"status"`

	// AudioData holds the payload exactly as delivered by the synthesizer.
	// It is set iff Status is Done.
	AudioData []byte `yaml:"-"`

	// Error is the terminal failure message when Status is Error
	Error string `yaml:"error,omitempty"`

	// Subtitle timing in milliseconds, nil when the source carried none
	StartTimeMs *int `yaml:"start_ms,omitempty"`
	EndTimeMs   *int `yaml:"end_ms,omitempty"`
}

// Clone returns a deep copy of the line so callers never alias repository state.
func (l Line) Clone() Line {
	c := l
	if l.AudioData != nil {
		c.AudioData = append([]byte(nil), l.AudioData...)
	}
	if l.StartTimeMs != nil {
		v := *l.StartTimeMs
		c.StartTimeMs = &v
	}
	if l.EndTimeMs != nil {
		v := *l.EndTimeMs
		c.EndTimeMs = &v
	}
	return c
}

// FileBatch is the ordered set of lines parsed from one input file.
type FileBatch struct {
	ID     string
	Name   string
	Status Status

	// Lines keep parse order; order drives concatenation and file naming.
	Lines []Line
}

// Clone returns a deep copy of the batch.
func (b FileBatch) Clone() FileBatch {
	c := b
	c.Lines = make([]Line, len(b.Lines))
	for i, l := range b.Lines {
		c.Lines[i] = l.Clone()
	}
	return c
}

// HasTiming reports whether any line carries an end timestamp.
func (b FileBatch) HasTiming() bool {
	for _, l := range b.Lines {
		if l.EndTimeMs != nil {
			return true
		}
	}
	return false
}

// AllTerminal reports whether every line reached Done or Error.
func (b FileBatch) AllTerminal() bool {
	for _, l := range b.Lines {
		if !l.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Counts returns how many lines are Done and how many are Error.
func (b FileBatch) Counts() (done, failed int) {
	for _, l := range b.Lines {
		switch l.Status {
		case StatusDone:
			done++
		case StatusError:
			failed++
		}
	}
	return done, failed
}

// IntPtr is a small helper for optional timings.
func IntPtr(v int) *int {
	return &v
}

// EngineType represents the available synthesis backends
type EngineType string

const (
	// EngineNone indicates no engine was selected
	EngineNone EngineType = ""

	// EngineGemini is the hosted speech generation API
	EngineGemini EngineType = "gemini"

	// EngineMock is the offline deterministic engine used for dry runs and tests
	EngineMock EngineType = "mock"
)

// String returns the string representation of the engine type
func (e EngineType) String() string {
	if e == EngineNone {
		return "none"
	}
	return string(e)
}
