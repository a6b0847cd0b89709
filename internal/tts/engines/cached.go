package engines

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/cache"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/tts"
)

// PayloadCache is the part of the cache manager the decorator needs.
type PayloadCache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

// CachedSynthesizer checks the cache before calling the wrapped synthesizer
// and stores successful payloads. Failures are never cached.
type CachedSynthesizer struct {
	next  tts.Synthesizer
	cache PayloadCache
	scope string
}

// Cached wraps next with a payload cache. Entries are keyed under scope, so
// engines and models sharing one cache never see each other's payloads.
func Cached(next tts.Synthesizer, c PayloadCache, scope string) *CachedSynthesizer {
	return &CachedSynthesizer{next: next, cache: c, scope: scope}
}

// Synthesize implements tts.Synthesizer.
func (s *CachedSynthesizer) Synthesize(ctx context.Context, text, voiceID string, creds tts.Credentials) ([]byte, error) {
	key := cache.Key(s.scope, text, voiceID)
	if payload, ok := s.cache.Get(key); ok {
		log.Debug("synthesis cache hit", "key", key)
		return payload, nil
	}

	payload, err := s.next.Synthesize(ctx, text, voiceID, creds)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Put(key, payload); err != nil {
		log.Warn("failed to cache payload", "key", key, "err", err)
	}
	return payload, nil
}
