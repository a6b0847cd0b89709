package cache

import (
	"testing"
)

func TestKey(t *testing.T) {
	// "é" precomposed and decomposed
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"

	if Key("mock", composed, "Kore") != Key("mock", decomposed, "Kore") {
		t.Error("expected NFC-equivalent text to share a key")
	}
	if Key("mock", "  hello ", "Kore") != Key("mock", "hello", "Kore") {
		t.Error("expected surrounding whitespace to be ignored")
	}
	if Key("mock", "hello", "Kore") == Key("mock", "hello", "Puck") {
		t.Error("expected different voices to produce different keys")
	}
	if Key("mock", "hello", "Kore") == Key("gemini/tts", "hello", "Kore") {
		t.Error("expected different scopes to produce different keys")
	}
	if len(Key("mock", "hello", "Kore")) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(Key("mock", "hello", "Kore")))
	}
}

func TestManager_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DiskPath = dir

	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := m.Put("k", []byte("payload")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	m2, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m2.Close()

	if got, ok := m2.Get("k"); !ok || string(got) != "payload" {
		t.Fatalf("expected disk hit, got %q, %v", got, ok)
	}
	if got, ok := m2.Get("k"); !ok || string(got) != "payload" {
		t.Fatalf("expected memory hit, got %q, %v", got, ok)
	}

	s := m2.Detailed()
	if s.L2Hits != 1 || s.L1Hits != 1 || s.Promotions != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestManager_MemoryOnly(t *testing.T) {
	m, err := NewManager(Config{MemoryCapacity: 1024})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	_ = m.Put("k", []byte("v"))
	if _, ok := m.Get("k"); !ok {
		t.Error("expected memory hit")
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("expected miss")
	}

	stats := m.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.ItemCount != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	if err := m.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if m.Size() != 0 {
		t.Errorf("expected empty cache, got %d bytes", m.Size())
	}
}
