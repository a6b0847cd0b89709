package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/tts"
	"golang.org/x/time/rate"
)

const (
	DefaultGeminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiSpeechModel  = "gemini-2.5-flash-preview-tts"
	DefaultGeminiRewriteModel = "gemini-2.5-flash"

	rewriteInstruction = "Rewrite the following narration line so it keeps its meaning and tone " +
		"but avoids wording that automated content filters may reject. " +
		"Reply with the rewritten line only, no quotes or commentary."
)

// blockingFinishReasons are candidate finish reasons that mean moderation refused the text.
var blockingFinishReasons = map[string]bool{
	"SAFETY":             true,
	"PROHIBITED_CONTENT": true,
	"BLOCKLIST":          true,
	"SPII":               true,
	"IMAGE_SAFETY":       true,
}

// GeminiEngine implements tts.Synthesizer and tts.Rewriter on the Gemini
// generateContent API. Speech comes back as base64 PCM in inlineData.
type GeminiEngine struct {
	baseURL      string
	speechModel  string
	rewriteModel string
	client       *http.Client

	// Rate limiting shared by synthesis and rewrite calls
	rateLimiter *rate.Limiter
}

// CacheScope identifies the speech model for cache keys.
func (e *GeminiEngine) CacheScope() string {
	return "gemini/" + e.speechModel
}

// GeminiConfig holds configuration for the Gemini engine.
type GeminiConfig struct {
	// BaseURL of the API, defaults to DefaultGeminiBaseURL
	BaseURL string

	// SpeechModel and RewriteModel default to the DefaultGemini* constants
	SpeechModel  string
	RewriteModel string

	// Timeout per HTTP request (defaults to 90s)
	Timeout time.Duration

	// RequestsPerMinute caps outgoing calls (defaults to 60)
	RequestsPerMinute int

	// HTTPClient overrides the client built from Timeout
	HTTPClient *http.Client
}

// NewGeminiEngine creates a new Gemini engine.
func NewGeminiEngine(config GeminiConfig) *GeminiEngine {
	if config.BaseURL == "" {
		config.BaseURL = DefaultGeminiBaseURL
	}
	if config.SpeechModel == "" {
		config.SpeechModel = DefaultGeminiSpeechModel
	}
	if config.RewriteModel == "" {
		config.RewriteModel = DefaultGeminiRewriteModel
	}
	if config.Timeout == 0 {
		config.Timeout = 90 * time.Second
	}
	if config.RequestsPerMinute == 0 {
		config.RequestsPerMinute = 60
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &GeminiEngine{
		baseURL:      strings.TrimRight(config.BaseURL, "/"),
		speechModel:  config.SpeechModel,
		rewriteModel: config.RewriteModel,
		client:       client,
		rateLimiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1),
	}
}

type geminiPart struct {
	Text       string        `json:"text,omitempty"`
	InlineData *geminiInline `json:"inlineData,omitempty"`
}

type geminiInline struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoice `json:"prebuiltVoiceConfig"`
}

type prebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason        string `json:"blockReason"`
		BlockReasonMessage string `json:"blockReasonMessage"`
	} `json:"promptFeedback"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Synthesize voices text with a prebuilt voice and returns the base64 PCM
// payload as delivered.
func (e *GeminiEngine) Synthesize(ctx context.Context, text, voiceID string, creds tts.Credentials) ([]byte, error) {
	req := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: text}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoice{VoiceName: voiceID}},
			},
		},
	}

	resp, err := e.generate(ctx, "synthesize", e.speechModel, creds, req)
	if err != nil {
		return nil, err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, &tts.ContentBlockedError{
			Reason:  resp.PromptFeedback.BlockReason,
			Details: resp.PromptFeedback.BlockReasonMessage,
		}
	}

	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				return []byte(p.InlineData.Data), nil
			}
		}
		if blockingFinishReasons[c.FinishReason] {
			return nil, &tts.ContentBlockedError{Reason: c.FinishReason, Details: "candidate finished without audio"}
		}
		// OTHER with no audio is how the speech models report a silent refusal
		if c.FinishReason == "OTHER" {
			return nil, &tts.ContentBlockedError{Reason: c.FinishReason, Details: "no audio returned"}
		}
	}

	return nil, tts.ErrEmptyResponse
}

// Rewrite asks the text model for a moderation-safe paraphrase.
func (e *GeminiEngine) Rewrite(ctx context.Context, text string, creds tts.Credentials) (string, error) {
	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: rewriteInstruction}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: text}}}},
	}

	resp, err := e.generate(ctx, "rewrite", e.rewriteModel, creds, req)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			break
		}
	}

	out := strings.Trim(strings.TrimSpace(sb.String()), `"`)
	if out == "" {
		return "", tts.ErrEmptyResult
	}
	return out, nil
}

func (e *GeminiEngine) generate(ctx context.Context, op, model string, creds tts.Credentials, body geminiRequest) (*geminiResponse, error) {
	if err := e.rateLimiter.Wait(ctx); err != nil {
		return nil, tts.NewTransportError(op, 0, "rate limit wait cancelled", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", op, err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", e.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, tts.NewTransportError(op, 0, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", creds.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, tts.NewTransportError(op, 0, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, tts.NewTransportError(op, resp.StatusCode, "read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		var eb geminiErrorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
			msg = eb.Error.Message
		}
		return nil, tts.NewTransportError(op, resp.StatusCode, msg, nil)
	}

	var out geminiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, tts.NewTransportError(op, resp.StatusCode, "decode response", err)
	}
	return &out, nil
}
