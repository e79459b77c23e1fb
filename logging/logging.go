package logging

import (
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

const maxLogSize = 2 * 1024 * 1024 // 2MB

// Level gates the optional debug output. Everything logged through the
// stdlib logger is info and above; Debugf lines only appear when the
// configured level is debug.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
)

var (
	levelMu  sync.Mutex
	minLevel = LevelInfo
)

// ParseLevel maps the LOG_LEVEL config value to a Level. Anything other
// than "debug" is info.
func ParseLevel(s string) Level {
	if strings.EqualFold(s, "debug") {
		return LevelDebug
	}
	return LevelInfo
}

func setLevel(l Level) {
	levelMu.Lock()
	minLevel = l
	levelMu.Unlock()
}

// Debugf logs through the stdlib logger when the configured level allows
// it. Used for request tracing that would drown the log at info.
func Debugf(format string, v ...any) {
	levelMu.Lock()
	enabled := minLevel <= LevelDebug
	levelMu.Unlock()
	if enabled {
		log.Printf("Debug: "+format, v...)
	}
}

// RotatingWriter appends to a single log file and swaps it for a .1 backup
// once it exceeds maxLogSize.
type RotatingWriter struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64
}

// Setup applies the configured level and routes the stdlib logger to
// stdout plus a rotating file at logPath.
func Setup(logPath, level string) (*RotatingWriter, error) {
	setLevel(ParseLevel(level))

	if info, err := os.Stat(logPath); err == nil && info.Size() > maxLogSize {
		os.Truncate(logPath, 0)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	size := int64(0)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	rw := &RotatingWriter{
		file:    f,
		path:    logPath,
		size:    size,
		maxSize: maxLogSize,
	}

	log.SetOutput(io.MultiWriter(os.Stdout, rw))

	return rw, nil
}

func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err = w.file.Write(p)
	w.size += int64(n)

	if w.size > w.maxSize {
		w.rotate()
	}

	return n, err
}

func (w *RotatingWriter) rotate() {
	w.file.Close()

	// Keep one backup
	os.Rename(w.path, w.path+".1")

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return
	}

	w.file = f
	w.size = 0
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
