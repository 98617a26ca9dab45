package logger

import (
	"encoding/json"
	"sync"
)

const defaultBufferSize = 500

// Broadcaster is the interface for broadcasting messages.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Entry represents a parsed log entry for streaming.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Streamer implements io.Writer and forwards log entries to a WebSocket
// hub while keeping a ring buffer of recent entries for late joiners.
type Streamer struct {
	hub    Broadcaster
	buffer *RingBuffer[Entry]
	mu     sync.RWMutex
}

// NewStreamer creates a new log streamer. Hub can be nil initially and
// set later with SetHub (the hub depends on the logger, not vice versa).
func NewStreamer(bufferSize int) *Streamer {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Streamer{
		buffer: NewRingBuffer[Entry](bufferSize),
	}
}

// SetHub sets the broadcaster hub for sending messages.
func (s *Streamer) SetHub(hub Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hub = hub
}

// Write implements io.Writer. It receives JSON log entries from zerolog.
func (s *Streamer) Write(p []byte) (n int, err error) {
	n = len(p)

	entry, parseErr := parseEntry(p)
	if parseErr != nil {
		return n, nil //nolint:nilerr // malformed entries are dropped silently
	}

	s.buffer.Push(entry)

	s.mu.RLock()
	hub := s.hub
	s.mu.RUnlock()

	if hub != nil {
		_ = hub.Broadcast("logs:entry", entry)
	}

	return n, nil
}

// Recent returns all buffered log entries, oldest first.
func (s *Streamer) Recent() []Entry {
	return s.buffer.GetAll()
}

// parseEntry parses a zerolog JSON entry into an Entry.
func parseEntry(data []byte) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Fields: make(map[string]any),
	}

	if ts, ok := raw["time"].(string); ok {
		entry.Timestamp = ts
		delete(raw, "time")
	}
	if level, ok := raw["level"].(string); ok {
		entry.Level = level
		delete(raw, "level")
	}
	if component, ok := raw["component"].(string); ok {
		entry.Component = component
		delete(raw, "component")
	}
	if msg, ok := raw["message"].(string); ok {
		entry.Message = msg
		delete(raw, "message")
	}

	for k, v := range raw {
		entry.Fields[k] = v
	}

	return entry, nil
}
