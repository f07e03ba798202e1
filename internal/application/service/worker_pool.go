package service

import (
	"fmt"
	"sync"

	"github.com/crewsync/crewsync/internal/domain/model"
)

// WorkerPool manages per-capability concurrency limits. It tracks how
// many concurrent executions each capability can sustain so a burst of
// ready tasks of one kind cannot starve the rest.
type WorkerPool struct {
	maxPerCapability map[model.Capability]int
	current          map[model.Capability]int
	mu               sync.Mutex
}

// WorkerPoolConfig holds per-capability concurrency limits
type WorkerPoolConfig struct {
	MaxPerCapability map[model.Capability]int
}

// NewWorkerPool creates a pool where every capability defaults to one
// concurrent execution
func NewWorkerPool() *WorkerPool {
	return &WorkerPool{
		maxPerCapability: make(map[model.Capability]int),
		current:          make(map[model.Capability]int),
	}
}

// NewWorkerPoolWithConfig creates a pool with custom limits
func NewWorkerPoolWithConfig(config WorkerPoolConfig) *WorkerPool {
	pool := NewWorkerPool()
	for capability, max := range config.MaxPerCapability {
		pool.maxPerCapability[capability] = max
	}
	return pool
}

// TryAcquire attempts to take a slot for the capability.
// Returns false when the pool is full for that capability.
func (p *WorkerPool) TryAcquire(capability model.Capability) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	max, exists := p.maxPerCapability[capability]
	if !exists {
		max = 1
	}
	if p.current[capability] >= max {
		return false
	}
	p.current[capability]++
	return true
}

// Release returns a slot for the capability
func (p *WorkerPool) Release(capability model.Capability) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current[capability] > 0 {
		p.current[capability]--
	}
}

// SetLimit updates the maximum concurrent executions for a capability
func (p *WorkerPool) SetLimit(capability model.Capability, max int) error {
	if max < 1 {
		return fmt.Errorf("max must be >= 1, got: %d", max)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.maxPerCapability[capability] = max
	return nil
}

// GetCurrent returns the active execution count for a capability
func (p *WorkerPool) GetCurrent(capability model.Capability) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.current[capability]
}

// GetMax returns the concurrency limit for a capability
func (p *WorkerPool) GetMax(capability model.Capability) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	max, exists := p.maxPerCapability[capability]
	if !exists {
		return 1
	}
	return max
}

// CapabilityStats represents usage for a single capability
type CapabilityStats struct {
	Capability model.Capability
	Current    int
	Max        int
}

// IsAvailable checks if the capability has free slots
func (s CapabilityStats) IsAvailable() bool {
	return s.Current < s.Max
}

// GetStats returns usage statistics for all configured capabilities
func (p *WorkerPool) GetStats() map[model.Capability]CapabilityStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := make(map[model.Capability]CapabilityStats)
	for capability, max := range p.maxPerCapability {
		stats[capability] = CapabilityStats{
			Capability: capability,
			Current:    p.current[capability],
			Max:        max,
		}
	}
	return stats
}
