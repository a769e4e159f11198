package logging

import (
	"strings"
	"sync"
)

// captureSize is how many recent lines the capture keeps.
const captureSize = 64

// LogCaptureWriter is a thread-safe writer that keeps the most recent lines in a ring.
type LogCaptureWriter struct {
	mu    sync.RWMutex
	lines [captureSize]string
	next  int
	count int
}

// GlobalLogCapture receives the server logger's INFO+ lines.
var GlobalLogCapture = &LogCaptureWriter{}

// Write implements io.Writer. slog text handlers write one record per call.
func (w *LogCaptureWriter) Write(p []byte) (n int, err error) {
	line := strings.TrimSpace(string(p))
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines[w.next] = line
	w.next = (w.next + 1) % captureSize
	w.count = min(w.count+1, captureSize)
	return len(p), nil
}

// GetLastLine returns the most recent log line.
func (w *LogCaptureWriter) GetLastLine() string {
	lines := w.Lines(1)
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

// Lines returns up to n recent lines, oldest first.
func (w *LogCaptureWriter) Lines(n int) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n = min(max(n, 0), w.count)
	out := make([]string, n)
	start := (w.next - n + captureSize) % captureSize
	for i := range n {
		out[i] = w.lines[(start+i)%captureSize]
	}
	return out
}
