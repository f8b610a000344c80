package api

import (
	"context"
	"sync"

	"perptrader/internal/events"
)

// dedupeWindowMs suppresses identical back-to-back log lines arriving
// within this window, which the scan loop produces when several symbols
// fail the same way.
const dedupeWindowMs = 500

// LogBuffer is a bounded ring of advisory log lines served by the API.
type LogBuffer struct {
	mu      sync.Mutex
	max     int
	entries []events.LogEntry
	lastMsg string
	lastAt  int64
}

func NewLogBuffer(max int) *LogBuffer {
	if max < 1 {
		max = 200
	}
	return &LogBuffer{max: max}
}

// Add appends an entry unless it duplicates the previous one inside the
// dedupe window. Reports whether the entry was kept.
func (b *LogBuffer) Add(e events.LogEntry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e.Message == b.lastMsg && e.Time-b.lastAt < dedupeWindowMs {
		return false
	}
	b.lastMsg = e.Message
	b.lastAt = e.Time

	b.entries = append(b.entries, e)
	if len(b.entries) > b.max {
		b.entries = b.entries[len(b.entries)-b.max:]
	}
	return true
}

// Entries returns a copy, newest first.
func (b *LogBuffer) Entries() []events.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.LogEntry, len(b.entries))
	for i, e := range b.entries {
		out[len(b.entries)-1-i] = e
	}
	return out
}

// Collect consumes the advisory log stream until the context ends.
func (b *LogBuffer) Collect(ctx context.Context, bus *events.Bus) {
	ch, unsub := bus.Subscribe(events.EventAdvisorLog, 128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			if entry, valid := raw.(events.LogEntry); valid {
				b.Add(entry)
			}
		}
	}
}
