// Package logger is the area based, leveled file logger used across the
// interpreter and its hosts. All calls are no-ops until Initialize runs.
package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antibyte/retrobasic/pkg/configuration"
)

// LogLevel orders log entries by severity.
type LogLevel int32

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	}
	return fmt.Sprintf("LEVEL(%d)", int32(l))
}

func parseLogLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	}
	return INFO
}

// LogArea names a subsystem that can be switched on and off separately.
type LogArea string

const (
	AreaInterpreter LogArea = "interpreter"
	AreaDebugger    LogArea = "debugger"
	AreaConsole     LogArea = "console"
	AreaWebSocket   LogArea = "websocket"
	AreaAuth        LogArea = "auth"
	AreaStore       LogArea = "store"
	AreaSecurity    LogArea = "security"
	AreaConfig      LogArea = "config"
	AreaGeneral     LogArea = "general"
)

var areas = []LogArea{
	AreaInterpreter, AreaDebugger, AreaConsole, AreaWebSocket,
	AreaAuth, AreaStore, AreaSecurity, AreaConfig, AreaGeneral,
}

// ListAreas returns every known area.
func ListAreas() []LogArea {
	return append([]LogArea(nil), areas...)
}

// Settings configure a logger. Initialize reads them from the [Debug]
// section.
type Settings struct {
	Enabled       bool
	Level         LogLevel
	Path          string
	MaxSizeMB     int64
	RotationCount int
	Areas         map[LogArea]bool
}

// SettingsFromConfig reads the [Debug] section. Areas are switched with
// log_<area> keys.
func SettingsFromConfig() Settings {
	s := Settings{
		Enabled:       configuration.GetBool("Debug", "enable_debug_logging", true),
		Level:         parseLogLevel(configuration.GetString("Debug", "log_level", "INFO")),
		Path:          configuration.GetString("Debug", "log_file", "logs/retrobasic.log"),
		MaxSizeMB:     int64(configuration.GetInt("Debug", "max_log_size_mb", 10)),
		RotationCount: configuration.GetInt("Debug", "log_rotation_count", 3),
		Areas:         make(map[LogArea]bool, len(areas)),
	}
	for _, a := range areas {
		s.Areas[a] = configuration.GetBool("Debug", "log_"+string(a), false)
	}
	return s
}

// Logger writes formatted entries to a size-rotated file.
type Logger struct {
	enabled atomic.Bool
	level   atomic.Int32
	areas   map[LogArea]*atomic.Bool

	mu        sync.Mutex
	file      *os.File
	size      int64
	path      string
	maxBytes  int64
	keepFiles int
}

var (
	global   atomic.Pointer[Logger]
	initOnce sync.Once
)

// Initialize sets up the global logger from the configuration.
func Initialize() error {
	var err error
	initOnce.Do(func() {
		var l *Logger
		if l, err = New(SettingsFromConfig()); err == nil {
			global.Store(l)
		}
	})
	return err
}

// InitializeWith replaces the global logger.
func InitializeWith(s Settings) error {
	l, err := New(s)
	if err != nil {
		return err
	}
	if old := global.Swap(l); old != nil {
		old.Close()
	}
	return nil
}

// New opens the log file named in s, creating its directory.
func New(s Settings) (*Logger, error) {
	l := &Logger{
		areas:     make(map[LogArea]*atomic.Bool, len(areas)),
		path:      s.Path,
		maxBytes:  s.MaxSizeMB * 1024 * 1024,
		keepFiles: s.RotationCount,
	}
	l.enabled.Store(s.Enabled)
	l.level.Store(int32(s.Level))
	for _, a := range areas {
		flag := new(atomic.Bool)
		flag.Store(s.Areas[a])
		l.areas[a] = flag
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	l.file = f
	if st, err := f.Stat(); err == nil {
		l.size = st.Size()
	}
	return l, nil
}

// SetArea switches an area at runtime.
func (l *Logger) SetArea(area LogArea, on bool) {
	if flag, ok := l.areas[area]; ok {
		flag.Store(on)
	}
}

// AreaEnabled reports whether entries for area are written.
func (l *Logger) AreaEnabled(area LogArea) bool {
	flag, ok := l.areas[area]
	return ok && flag.Load()
}

func (l *Logger) accepts(level LogLevel, area LogArea) bool {
	return l.enabled.Load() && LogLevel(l.level.Load()) <= level && l.AreaEnabled(area)
}

// write formats one entry. skip counts the frames between the caller of
// the package function and write.
func (l *Logger) write(skip int, level LogLevel, area LogArea, msg string) {
	_, file, line, _ := runtime.Caller(skip)
	entry := fmt.Sprintf("[%s] %s [%s:%d] [%s] %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"), level,
		filepath.Base(file), line, strings.ToUpper(string(area)), msg)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	n, err := l.file.WriteString(entry)
	if err != nil {
		return
	}
	l.size += int64(n)
	if l.maxBytes > 0 && l.size > l.maxBytes {
		if err := l.rotateLocked(); err != nil {
			log.Printf("[ERROR] [GENERAL] log rotation failed: %v", err)
		}
	}
}

// rotateLocked renames path.N to path.N+1, keeping keepFiles old files,
// and reopens path empty.
func (l *Logger) rotateLocked() error {
	l.file.Close()
	l.file = nil

	if l.keepFiles > 0 {
		os.Remove(fmt.Sprintf("%s.%d", l.path, l.keepFiles))
		for i := l.keepFiles - 1; i >= 1; i-- {
			os.Rename(fmt.Sprintf("%s.%d", l.path, i), fmt.Sprintf("%s.%d", l.path, i+1))
		}
		os.Rename(l.path, l.path+".1")
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	l.file, l.size = f, 0
	return nil
}

// Close syncs and closes the file. Later entries are dropped.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Sync()
		l.file.Close()
		l.file = nil
	}
}

func logf(level LogLevel, area LogArea, format string, args ...interface{}) {
	l := global.Load()
	if l == nil || !l.accepts(level, area) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.write(3, level, area, msg)
	if level >= WARN {
		log.Printf("[%s] [%s] %s", level, strings.ToUpper(string(area)), msg)
	}
}

func Debug(area LogArea, format string, args ...interface{}) { logf(DEBUG, area, format, args...) }
func Info(area LogArea, format string, args ...interface{})  { logf(INFO, area, format, args...) }
func Warn(area LogArea, format string, args ...interface{})  { logf(WARN, area, format, args...) }
func Error(area LogArea, format string, args ...interface{}) { logf(ERROR, area, format, args...) }

// Fatal logs regardless of area switches and exits.
func Fatal(area LogArea, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l := global.Load(); l != nil {
		l.write(2, FATAL, area, msg)
		l.Close()
	}
	log.Fatalf("[FATAL] [%s] %s", strings.ToUpper(string(area)), msg)
}

// Shorthands for the busiest areas.
func WebSocketDebug(format string, args ...interface{}) { logf(DEBUG, AreaWebSocket, format, args...) }
func WebSocketInfo(format string, args ...interface{})  { logf(INFO, AreaWebSocket, format, args...) }
func WebSocketWarn(format string, args ...interface{})  { logf(WARN, AreaWebSocket, format, args...) }
func WebSocketError(format string, args ...interface{}) { logf(ERROR, AreaWebSocket, format, args...) }

func AuthDebug(format string, args ...interface{}) { logf(DEBUG, AreaAuth, format, args...) }
func AuthInfo(format string, args ...interface{})  { logf(INFO, AreaAuth, format, args...) }
func AuthWarn(format string, args ...interface{})  { logf(WARN, AreaAuth, format, args...) }
func AuthError(format string, args ...interface{}) { logf(ERROR, AreaAuth, format, args...) }

func SecurityWarn(format string, args ...interface{}) { logf(WARN, AreaSecurity, format, args...) }
func ConfigInfo(format string, args ...interface{})   { logf(INFO, AreaConfig, format, args...) }

// SetArea switches an area of the global logger.
func SetArea(area LogArea, on bool) {
	if l := global.Load(); l != nil {
		l.SetArea(area, on)
	}
}

// AreaEnabled reports whether the global logger writes area.
func AreaEnabled(area LogArea) bool {
	l := global.Load()
	return l != nil && l.AreaEnabled(area)
}

// Close closes the global logger's file.
func Close() {
	if l := global.Load(); l != nil {
		l.Close()
	}
}
