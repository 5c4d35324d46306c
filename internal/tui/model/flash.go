package model

import (
	"sync"
	"time"
)

// Level ranks a flash message.
type Level int

const (
	Info Level = iota
	Err
)

// Flash holds transient notification messages.
type Flash struct {
	mu      sync.RWMutex
	message string
	level   Level
	expires time.Time
	now     func() time.Time
}

func (f *Flash) clock() time.Time {
	if f.now != nil {
		return f.now()
	}
	return time.Now()
}

// Set stores an informational flash message that expires after d.
func (f *Flash) Set(msg string, d time.Duration) {
	f.set(msg, Info, d)
}

// Error stores an error flash message that expires after d.
func (f *Flash) Error(msg string, d time.Duration) {
	f.set(msg, Err, d)
}

func (f *Flash) set(msg string, level Level, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.level = level
	f.expires = f.clock().Add(d)
}

// Get returns the current flash message and its level, or empty if expired.
func (f *Flash) Get() (string, Level) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.clock().After(f.expires) {
		return "", Info
	}
	return f.message, f.level
}
