package service

import (
	"sync"
	"time"

	"bgageek-backend/internal/chrono"
	"bgageek-backend/internal/pipeline"
)

const DefaultLogCapacity = 200

type LogLine struct {
	Time     time.Time         `json:"time"`
	Message  string            `json:"message"`
	Severity pipeline.Severity `json:"severity"`
}

// LogBuffer is a pipeline.LogSink that remembers the most recent lines, older
// lines are overwritten once it is full.
type LogBuffer struct {
	clock chrono.TimeAPI

	mutex sync.Mutex
	lines []LogLine
	// next is the index the next line is written to
	next int
	full bool
}

func NewLogBuffer(capacity int, clock chrono.TimeAPI) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LogBuffer{
		clock: clock,
		lines: make([]LogLine, capacity),
	}
}

func (l *LogBuffer) Log(message string, severity pipeline.Severity) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.lines[l.next] = LogLine{
		Time:     l.clock.Now(),
		Message:  message,
		Severity: severity,
	}
	l.next++
	if l.next == len(l.lines) {
		l.next = 0
		l.full = true
	}
}

// Lines returns the buffered lines, oldest first.
func (l *LogBuffer) Lines() []LogLine {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if !l.full {
		return append([]LogLine{}, l.lines[:l.next]...)
	}
	out := make([]LogLine, 0, len(l.lines))
	out = append(out, l.lines[l.next:]...)
	out = append(out, l.lines[:l.next]...)
	return out
}
