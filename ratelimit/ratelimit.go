package ratelimit

import (
	"sync"
	"time"
)

// Config holds configuration for rate limiting
type Config struct {
	MaxRequests     int           // Maximum number of requests allowed
	WindowSize      time.Duration // Time window for rate limiting
	CleanupInterval time.Duration // How often idle keys are dropped
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		MaxRequests:     10,
		WindowSize:      time.Second,
		CleanupInterval: 5 * time.Minute,
	}
}

// Limiter implements sliding window rate limiting per key. Idle keys are
// dropped while serving Allow, no background goroutine is needed.
type Limiter struct {
	config      Config
	mu          sync.Mutex
	requests    map[string][]time.Time
	lastCleanup time.Time
	now         func() time.Time
}

func New(config Config) *Limiter {
	if config.MaxRequests <= 0 || config.WindowSize <= 0 {
		def := DefaultConfig()
		config.MaxRequests, config.WindowSize = def.MaxRequests, def.WindowSize
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = config.WindowSize
	}
	return &Limiter{
		config:   config,
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Allow records a request from key and reports whether it fits the window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.config.WindowSize)
	if now.Sub(l.lastCleanup) >= l.config.CleanupInterval {
		l.cleanup(cutoff)
		l.lastCleanup = now
	}

	valid := expire(l.requests[key], cutoff)
	if len(valid) >= l.config.MaxRequests {
		l.requests[key] = valid
		return false
	}
	l.requests[key] = append(valid, now)
	return true
}

// Count returns the requests of key inside the current window.
func (l *Limiter) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(expire(l.requests[key], l.now().Add(-l.config.WindowSize)))
}

func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.requests, key)
}

func (l *Limiter) cleanup(cutoff time.Time) {
	for key, reqs := range l.requests {
		if valid := expire(reqs, cutoff); len(valid) == 0 {
			delete(l.requests, key)
		} else {
			l.requests[key] = valid
		}
	}
}

// expire drops timestamps not after cutoff. Timestamps are appended in
// order so the survivors are a suffix.
func expire(reqs []time.Time, cutoff time.Time) []time.Time {
	for i, ts := range reqs {
		if ts.After(cutoff) {
			return reqs[i:]
		}
	}
	return reqs[:0]
}
