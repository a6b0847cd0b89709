package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when cache data on disk cannot be read back
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Level represents the cache tier
type Level int

const (
	// LevelMemory is the in-process LRU tier
	LevelMemory Level = iota

	// LevelDisk is the persistent tier
	LevelDisk
)

// String returns the string representation of the cache level
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "L1-Memory"
	case LevelDisk:
		return "L2-Disk"
	default:
		return "Unknown"
	}
}

// Stats holds cache performance counters
type Stats struct {
	Capacity  int64 // Maximum capacity in bytes
	Size      int64 // Current size in bytes
	ItemCount int64

	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64 // hits / (hits + misses)

	LastEvict time.Time
}

func (s *Stats) updateHitRate() {
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
}

// Config holds configuration for the cache tiers
type Config struct {
	// MemoryCapacity bounds the L1 tier in bytes
	MemoryCapacity int64

	// DiskCapacity bounds the L2 tier in bytes, measured after compression
	DiskCapacity int64

	// DiskPath is the directory holding L2 files; empty disables the disk tier
	DiskPath string

	// CompressionLevel is the zstd level (1-22); 0 disables compression
	CompressionLevel int

	// TTL expires disk entries older than this when the cache is opened; 0 keeps everything
	TTL time.Duration
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		MemoryCapacity:   64 * 1024 * 1024,  // 64MB
		DiskCapacity:     512 * 1024 * 1024, // 512MB
		CompressionLevel: 3,
		TTL:              30 * 24 * time.Hour,
	}
}

// Key derives the cache key for a synthesis call. Scope names the engine
// and model that produced the payload. Text is NFC-normalized and trimmed
// so visually identical lines share an entry.
func Key(scope, text, voice string) string {
	normalized := norm.NFC.String(strings.TrimSpace(text))
	hash := sha256.Sum256([]byte(scope + "|" + normalized + "|" + voice))
	return hex.EncodeToString(hash[:16])
}

// Cache defines the interface shared by both tiers and the manager
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
	Clear() error
	Size() int64
	Stats() Stats
}
