package engines

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/tts"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) *GeminiEngine {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGeminiEngine(GeminiConfig{BaseURL: srv.URL, RequestsPerMinute: 60000})
}

func TestGeminiEngine_Synthesize(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiRequest

	e := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"audio/L16;rate=24000","data":"AAECAw=="}}]},"finishReason":"STOP"}]}`)
	})

	payload, err := e.Synthesize(context.Background(), "Hello", "Kore", tts.Credentials{APIKey: "secret"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(payload) != "AAECAw==" {
		t.Errorf("payload not returned as delivered: %q", payload)
	}
	if gotPath != "/models/"+DefaultGeminiSpeechModel+":generateContent" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("api key not sent, got %q", gotKey)
	}
	if gotBody.GenerationConfig == nil || gotBody.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Kore" {
		t.Errorf("voice not sent: %+v", gotBody.GenerationConfig)
	}
	if gotBody.Contents[0].Parts[0].Text != "Hello" {
		t.Errorf("text not sent: %+v", gotBody.Contents)
	}
}

func TestGeminiEngine_SynthesizeClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   tts.ErrorKind
		reason string
	}{
		{
			name:   "prompt blocked",
			status: 200,
			body:   `{"promptFeedback":{"blockReason":"PROHIBITED_CONTENT"}}`,
			want:   tts.KindContentBlocked,
			reason: "PROHIBITED_CONTENT",
		},
		{
			name:   "safety finish",
			status: 200,
			body:   `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`,
			want:   tts.KindContentBlocked,
			reason: "SAFETY",
		},
		{
			name:   "other finish without audio",
			status: 200,
			body:   `{"candidates":[{"content":{"parts":[]},"finishReason":"OTHER"}]}`,
			want:   tts.KindContentBlocked,
			reason: "OTHER",
		},
		{
			name:   "no audio",
			status: 200,
			body:   `{"candidates":[{"content":{"parts":[{"text":"hi"}]},"finishReason":"STOP"}]}`,
			want:   tts.KindEmptyResponse,
		},
		{
			name:   "quota",
			status: 429,
			body:   `{"error":{"code":429,"message":"Resource exhausted","status":"RESOURCE_EXHAUSTED"}}`,
			want:   tts.KindTransport,
		},
		{
			name:   "server error with plain body",
			status: 500,
			body:   `internal`,
			want:   tts.KindTransport,
		},
		{
			name:   "malformed json",
			status: 200,
			body:   `{`,
			want:   tts.KindTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := e.Synthesize(context.Background(), "text", "Kore", tts.Credentials{APIKey: "k"})
			if got := tts.KindOf(err); got != tt.want {
				t.Fatalf("KindOf() = %v, want %v (err %v)", got, tt.want, err)
			}

			var blocked *tts.ContentBlockedError
			if tt.reason != "" && (!errors.As(err, &blocked) || blocked.Reason != tt.reason) {
				t.Errorf("expected block reason %q, got %v", tt.reason, err)
			}

			var transport *tts.TransportError
			if tt.want == tts.KindTransport && tt.status != 200 {
				if !errors.As(err, &transport) || transport.StatusCode != tt.status {
					t.Errorf("expected status %d in transport error, got %v", tt.status, err)
				}
			}
		})
	}
}

func TestGeminiEngine_ErrorMessageFromBody(t *testing.T) {
	e := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
	})

	_, err := e.Synthesize(context.Background(), "text", "Kore", tts.Credentials{})
	if err == nil || !strings.Contains(err.Error(), "API key not valid") {
		t.Errorf("expected API message in error, got %v", err)
	}
}

func TestGeminiEngine_Rewrite(t *testing.T) {
	var gotBody geminiRequest
	var gotPath string

	e := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"  \"A calmer line\"\n"}]}}]}`)
	})

	got, err := e.Rewrite(context.Background(), "An angry line", tts.Credentials{APIKey: "k"})
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	if got != "A calmer line" {
		t.Errorf("Rewrite() = %q", got)
	}
	if gotPath != "/models/"+DefaultGeminiRewriteModel+":generateContent" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotBody.SystemInstruction == nil || gotBody.GenerationConfig != nil {
		t.Errorf("unexpected rewrite request %+v", gotBody)
	}
}

func TestGeminiEngine_RewriteEmpty(t *testing.T) {
	e := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"   "}]}}]}`)
	})

	_, err := e.Rewrite(context.Background(), "text", tts.Credentials{})
	if !errors.Is(err, tts.ErrEmptyResult) {
		t.Errorf("expected ErrEmptyResult, got %v", err)
	}
}

func TestGeminiEngine_CanceledContext(t *testing.T) {
	e := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Synthesize(ctx, "text", "Kore", tts.Credentials{})
	if tts.KindOf(err) != tts.KindCanceled {
		t.Errorf("expected canceled kind, got %v", err)
	}
}
