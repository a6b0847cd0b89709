package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Manager coordinates the memory and disk tiers. Reads check L1 then L2 and
// promote disk hits into memory; writes go to both.
type Manager struct {
	l1 *MemoryCache
	l2 *DiskCache // nil when the disk tier is disabled

	mu    sync.Mutex
	stats ManagerStats
}

// ManagerStats aggregates hits across tiers.
type ManagerStats struct {
	Hits       int64
	Misses     int64
	L1Hits     int64
	L2Hits     int64
	Promotions int64
	Expired    int
	L1         Stats
	L2         Stats
}

// NewManager creates a cache manager. Disk entries older than config.TTL
// are removed on open.
func NewManager(config Config) (*Manager, error) {
	if config.MemoryCapacity <= 0 {
		config.MemoryCapacity = DefaultConfig().MemoryCapacity
	}

	m := &Manager{l1: NewMemoryCache(config.MemoryCapacity)}

	if config.DiskPath != "" {
		if config.DiskCapacity <= 0 {
			config.DiskCapacity = DefaultConfig().DiskCapacity
		}
		l2, err := NewDiskCache(config.DiskPath, config.DiskCapacity, config.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		if config.TTL > 0 {
			m.stats.Expired = l2.RemoveOlderThan(time.Now().Add(-config.TTL))
			if m.stats.Expired > 0 {
				log.Debug("expired cached payloads", "count", m.stats.Expired, "path", config.DiskPath)
			}
		}
		m.l2 = l2
	}

	return m, nil
}

// Get retrieves a payload from the cache hierarchy.
func (m *Manager) Get(key string) ([]byte, bool) {
	if data, ok := m.l1.Get(key); ok {
		m.record(func(s *ManagerStats) { s.L1Hits++; s.Hits++ })
		return data, true
	}

	if m.l2 != nil {
		if data, ok := m.l2.Get(key); ok {
			// promotion is best-effort
			_ = m.l1.Put(key, data)
			m.record(func(s *ManagerStats) { s.L2Hits++; s.Hits++; s.Promotions++ })
			return data, true
		}
	}

	m.record(func(s *ManagerStats) { s.Misses++ })
	return nil, false
}

// Put stores a payload in both tiers. An item too large for memory still
// lands on disk.
func (m *Manager) Put(key string, value []byte) error {
	if err := m.l1.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return fmt.Errorf("L1 cache error: %w", err)
	}
	if m.l2 != nil {
		if err := m.l2.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
			return fmt.Errorf("L2 cache error: %w", err)
		}
	}
	return nil
}

// Delete removes an entry from all tiers.
func (m *Manager) Delete(key string) error {
	err := m.l1.Delete(key)
	if m.l2 != nil {
		err = errors.Join(err, m.l2.Delete(key))
	}
	return err
}

// Clear removes all entries from all tiers.
func (m *Manager) Clear() error {
	err := m.l1.Clear()
	if m.l2 != nil {
		err = errors.Join(err, m.l2.Clear())
	}
	return err
}

// Size returns the combined size of both tiers.
func (m *Manager) Size() int64 {
	size := m.l1.Size()
	if m.l2 != nil {
		size += m.l2.Size()
	}
	return size
}

// Stats returns combined statistics with a hit rate across tiers.
func (m *Manager) Stats() Stats {
	s := m.Detailed()
	stats := Stats{
		Capacity:  s.L1.Capacity + s.L2.Capacity,
		Size:      s.L1.Size + s.L2.Size,
		ItemCount: s.L2.ItemCount,
		Hits:      s.Hits,
		Misses:    s.Misses,
		Evictions: s.L1.Evictions + s.L2.Evictions,
	}
	if m.l2 == nil {
		stats.ItemCount = s.L1.ItemCount
	}
	stats.updateHitRate()
	return stats
}

// Detailed returns per-tier statistics.
func (m *Manager) Detailed() ManagerStats {
	m.mu.Lock()
	s := m.stats
	m.mu.Unlock()

	s.L1 = m.l1.Stats()
	if m.l2 != nil {
		s.L2 = m.l2.Stats()
	}
	return s
}

// Close saves the disk index.
func (m *Manager) Close() error {
	if m.l2 == nil {
		return nil
	}
	if err := m.l2.Close(); err != nil {
		return fmt.Errorf("failed to close disk cache: %w", err)
	}
	return nil
}

func (m *Manager) record(fn func(*ManagerStats)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.stats)
}
