package operations

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker tracks the progress of a step execution
type ProgressTracker struct {
	mu        sync.RWMutex
	Step      string
	Total     int
	Current   int
	StartTime time.Time
	Message   string
}

// NewProgressTracker creates a new progress tracker for a step
func NewProgressTracker(step string, total int) *ProgressTracker {
	return &ProgressTracker{
		Step:      step,
		Total:     total,
		StartTime: time.Now(),
	}
}

// Update sets the current progress and message
func (p *ProgressTracker) Update(current int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Current = current
	p.Message = message
}

// Increment advances the progress by one
func (p *ProgressTracker) Increment(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Current++
	p.Message = message
}

// GetProgress returns the current progress values
func (p *ProgressTracker) GetProgress() (current, total int, percentage float64, message string) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	current = p.Current
	total = p.Total
	message = p.Message
	if total > 0 {
		percentage = float64(current) / float64(total) * 100
	}
	return
}

// GetETA estimates the remaining time based on progress so far
func (p *ProgressTracker) GetETA() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.Current == 0 || p.Total == 0 {
		return "calculating..."
	}

	elapsed := time.Since(p.StartTime)
	rate := float64(p.Current) / elapsed.Seconds()
	remaining := float64(p.Total-p.Current) / rate

	if remaining < 60 {
		return fmt.Sprintf("%.0f seconds", remaining)
	}
	if remaining < 3600 {
		return fmt.Sprintf("%.1f minutes", remaining/60)
	}
	return fmt.Sprintf("%.1f hours", remaining/3600)
}

// IsComplete returns true when the tracker has reached its total
func (p *ProgressTracker) IsComplete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.Total > 0 && p.Current >= p.Total
}

// GetElapsedTime returns the time since tracking started
func (p *ProgressTracker) GetElapsedTime() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return time.Since(p.StartTime)
}

// GetElapsedTimeString returns a human-readable elapsed time
func (p *ProgressTracker) GetElapsedTimeString() string {
	elapsed := p.GetElapsedTime()

	if elapsed < time.Minute {
		return fmt.Sprintf("%.0f seconds", elapsed.Seconds())
	}
	if elapsed < time.Hour {
		return fmt.Sprintf("%.1f minutes", elapsed.Minutes())
	}
	return fmt.Sprintf("%.1f hours", elapsed.Hours())
}
