package audio

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Fixed output format: mono, signed 16-bit little-endian, 24 kHz.
const (
	SampleRate     = 24000
	Channels       = 1
	BitsPerSample  = 16
	BytesPerSample = BitsPerSample / 8

	// BytesPerSecond is SampleRate * Channels * BytesPerSample.
	BytesPerSecond = SampleRate * Channels * BytesPerSample
)

// DecodePayload turns a synthesized payload into raw PCM bytes.
// Payloads are standard base64, with or without padding.
func DecodePayload(payload []byte) ([]byte, error) {
	s := strings.TrimSpace(string(payload))
	if s == "" {
		return []byte{}, nil
	}

	enc := base64.StdEncoding
	if !strings.HasSuffix(s, "=") && len(s)%4 != 0 {
		enc = base64.RawStdEncoding
	}

	pcm, err := enc.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio payload: %w", err)
	}
	return pcm, nil
}

// EncodePayload is the inverse of DecodePayload.
func EncodePayload(pcm []byte) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(pcm)))
	base64.StdEncoding.Encode(out, pcm)
	return out
}

// Duration returns the play time of n PCM bytes in the fixed format.
func Duration(n int) time.Duration {
	return time.Duration(n) * time.Second / BytesPerSecond
}
