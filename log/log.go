package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

var (
	WarningLog *log.Logger
	InfoLog    *log.Logger
	ErrorLog   *log.Logger
	DebugLog   *log.Logger
)

var debugEnabled = os.Getenv("DEBUG") == "true" || os.Getenv("DEBUG") == "1"

const coordinatorLogName = "structfan.log"

var globalLogFile *os.File

// Loggers write to stderr until Initialize points them at the log file, so
// code that logs before (or without) Initialize never hits a nil logger.
func init() {
	initLoggers(os.Stderr)
}

// Initialize should be called once at the beginning of the program to set up
// logging. defer Close() after calling this function. The coordinator's own
// log is written to structfan.log inside dir; per-subject job logs live next
// to it but are owned by the scheduler. If dir is empty or unwritable the
// loggers fall back to stderr.
func Initialize(dir string) {
	if dir == "" {
		dir = os.TempDir()
	}
	logPath := filepath.Join(dir, coordinatorLogName)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		initLoggers(os.Stderr)
		fmt.Fprintf(os.Stderr, "Warning: using stderr for logging: %v\n", err)
		return
	}

	initLoggers(f)
	globalLogFile = f
}

func initLoggers(w io.Writer) {
	InfoLog = log.New(w, "INFO:", log.Ldate|log.Ltime|log.Lshortfile)
	WarningLog = log.New(w, "WARNING:", log.Ldate|log.Ltime|log.Lshortfile)
	ErrorLog = log.New(w, "ERROR:", log.Ldate|log.Ltime|log.Lshortfile)
	if debugEnabled {
		DebugLog = log.New(w, "DEBUG:", log.Ldate|log.Ltime|log.Lshortfile)
	} else {
		DebugLog = log.New(io.Discard, "", 0)
	}
}

func Close() {
	if globalLogFile != nil {
		_ = globalLogFile.Close()
	}
}

// Every is used to log at most once every timeout duration.
type Every struct {
	timeout time.Duration
	timer   *time.Timer
}

func NewEvery(timeout time.Duration) *Every {
	return &Every{timeout: timeout}
}

// ShouldLog returns true if the timeout has passed since the last log.
func (e *Every) ShouldLog() bool {
	if e.timer == nil {
		e.timer = time.NewTimer(e.timeout)
		e.timer.Reset(e.timeout)
		return true
	}

	select {
	case <-e.timer.C:
		e.timer.Reset(e.timeout)
		return true
	default:
		return false
	}
}

// IsDebugEnabled returns true if debug logging is enabled.
func IsDebugEnabled() bool {
	return debugEnabled
}
