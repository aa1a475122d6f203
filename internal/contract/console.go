package contract

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// Color variables for console labels.
var (
	InfoColor  = color.New(color.FgCyan)           // InfoColor marks routine lifecycle messages.
	ErrorColor = color.New(color.FgRed, color.Bold) // ErrorColor marks failures that ended an event.
)

// Console is the worker's developer console. It is safe for concurrent use,
// since fetch events log from many goroutines at once.
type Console struct {
	mu       sync.Mutex
	w        io.Writer
	useColor bool
}

// NewConsole returns a console writing to w.
func NewConsole(w io.Writer, useColor bool) *Console {
	return &Console{w: w, useColor: useColor}
}

// Log writes an informational line.
func (c *Console) Log(format string, args ...any) {
	c.write(InfoColor, "log", fmt.Sprintf(format, args...))
}

// Error writes a failure line for msg caused by err.
func (c *Console) Error(msg string, err error) {
	c.write(ErrorColor, "error", fmt.Sprintf("%s: %v", msg, err))
}

func (c *Console) write(label *color.Color, level, line string) {
	if c == nil || c.w == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tag := "[" + level + "]"
	if c.useColor {
		tag = label.Sprint(tag)
	}
	_, _ = fmt.Fprintf(c.w, "%s %s\n", tag, line)
}
