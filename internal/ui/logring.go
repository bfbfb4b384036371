package ui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultLogLines is how many log lines the display keeps
const DefaultLogLines = 5

// LogRing is a logrus hook keeping the last few messages for the display
type LogRing struct {
	mu    sync.Mutex
	lines []string
	size  int
}

// NewLogRing keeps up to size lines, DefaultLogLines when size is not positive
func NewLogRing(size int) *LogRing {
	if size <= 0 {
		size = DefaultLogLines
	}
	return &LogRing{size: size}
}

// Levels implements logrus.Hook; debug output stays out of the display
func (r *LogRing) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
	}
}

// Fire implements logrus.Hook
func (r *LogRing) Fire(e *logrus.Entry) error {
	line := fmt.Sprintf("%s %s", strings.ToUpper(e.Level.String()[:4]), e.Message)
	if stage, ok := e.Data["stage"]; ok {
		line += fmt.Sprintf(" %v", stage)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if len(r.lines) > r.size {
		r.lines = r.lines[len(r.lines)-r.size:]
	}
	return nil
}

// Lines returns the kept lines, oldest first
func (r *LogRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}
