package tts

import (
	"fmt"
	"strings"

	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ttypes"
)

// ValidateEngineSelection resolves the engine to use.
// The CLI argument takes precedence over the configured value and an
// explicit selection is required.
func ValidateEngineSelection(cliArg, configured string) (ttypes.EngineType, error) {
	engineType := strings.ToLower(strings.TrimSpace(cliArg))
	if engineType == "" {
		engineType = strings.ToLower(strings.TrimSpace(configured))
	}

	if engineType == "" {
		return ttypes.EngineNone, fmt.Errorf("%w\n\nOr set a default in your config file:\n  engine: gemini  # or \"mock\"", ErrNoEngineConfigured)
	}

	switch engineType {
	case "gemini", "google":
		return ttypes.EngineGemini, nil
	case "mock", "offline":
		return ttypes.EngineMock, nil
	default:
		return ttypes.EngineNone, fmt.Errorf("%w: %s\n\nSupported engines:\n  - gemini (hosted speech generation)\n  - mock (offline test tones)", ErrInvalidEngine, engineType)
	}
}

// ValidateRequest checks that a request carries what the engine needs before
// any line is dispatched.
func ValidateRequest(engine ttypes.EngineType, req Request) error {
	if strings.TrimSpace(req.VoiceID) == "" {
		return ErrMissingVoice
	}
	if engine == ttypes.EngineGemini && req.Credentials.APIKey == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY or api_key in the config file", ErrMissingCredentials)
	}
	return nil
}
