// Package logx provides agent-tagged logging with env-controlled debug output.
package logx

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level identifies the severity of a log line.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger writes timestamped, agent-tagged log lines to stderr. Stdout stays
// reserved for the CLI's own conversational output.
type Logger struct {
	agentID string
	logger  *log.Logger
}

// debug switches are process-wide; per-agent filtering happens at call time
// so loggers created before configuration still honor it.
type debugSettings struct {
	domains     map[string]bool // nil means every domain
	logDir      string
	enabled     bool
	fileLogging bool
}

//nolint:gochecknoglobals // Process-wide debug switches
var (
	debugMu sync.RWMutex
	debug   = debugSettings{logDir: "logs"}
)

// Debug output is driven by the environment:
//
//	DEBUG=1                             enable debug for all agents
//	DEBUG=1 DEBUG_DOMAINS=review,chat   enable debug only for listed agents
//	DEBUG=1 DEBUG_FILE=1                also write debug output to files
//	DEBUG=1 DEBUG_LOG_DIR=/tmp/logs     debug file directory (default ./logs)
func init() { //nolint:gochecknoinits // Env-driven debug switches must be live before any logger
	debugMu.Lock()
	defer debugMu.Unlock()

	debug.enabled = boolEnv("DEBUG")
	debug.fileLogging = boolEnv("DEBUG_FILE")
	if dir := os.Getenv("DEBUG_LOG_DIR"); dir != "" {
		debug.logDir = dir
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debug.domains = splitDomains(strings.Split(domains, ","))
	}
}

func boolEnv(name string) bool {
	v := os.Getenv(name)
	return v == "1" || strings.EqualFold(v, "true")
}

func splitDomains(domains []string) map[string]bool {
	set := make(map[string]bool, len(domains))
	for _, d := range domains {
		set[strings.TrimSpace(d)] = true
	}
	return set
}

// NewLogger creates a logger tagged with the given agent ID.
func NewLogger(agentID string) *Logger {
	return &Logger{
		agentID: agentID,
		logger:  log.New(os.Stderr, "", 0),
	}
}

// SetDebugConfig overrides the env-derived debug switches, creating the debug
// file directory when file logging is turned on.
func SetDebugConfig(enabled, fileLogging bool, logDir string) {
	debugMu.Lock()
	defer debugMu.Unlock()

	debug.enabled = enabled
	debug.fileLogging = fileLogging
	if logDir != "" {
		debug.logDir = logDir
	}

	if fileLogging && debug.logDir != "" {
		if err := os.MkdirAll(debug.logDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to create log directory %s: %v\n", debug.logDir, err)
		}
	}
}

// SetDebugDomains restricts debug output to the listed agent domains.
// An empty list re-enables all domains.
func SetDebugDomains(domains []string) {
	debugMu.Lock()
	defer debugMu.Unlock()

	if len(domains) == 0 {
		debug.domains = nil
		return
	}
	debug.domains = splitDomains(domains)
}

// IsDebugEnabled reports whether debug logging is on at all.
func IsDebugEnabled() bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	return debug.enabled
}

// IsDebugEnabledForDomain reports whether debug logging is on for one agent domain.
func IsDebugEnabledForDomain(domain string) bool {
	debugMu.RLock()
	defer debugMu.RUnlock()

	if !debug.enabled {
		return false
	}
	return debug.domains == nil || debug.domains[domain]
}

func stamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

func (l *Logger) log(level Level, format string, args ...any) {
	l.logger.Printf("[%s] [%s] %s: %s", stamp(), l.agentID, level, fmt.Sprintf(format, args...))
}

// Debug logs only when debugging is enabled for this logger's agent domain.
func (l *Logger) Debug(format string, args ...any) {
	if IsDebugEnabledForDomain(l.agentID) {
		l.log(LevelDebug, format, args...)
	}
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// DebugToFile appends a debug line to a named file under the debug log
// directory, in addition to the normal console debug line. Used for large
// payloads like raw prompts that would drown the console.
func (l *Logger) DebugToFile(filename, format string, args ...any) {
	debugMu.RLock()
	enabled, fileLogging, logDir := debug.enabled, debug.fileLogging, debug.logDir
	debugMu.RUnlock()

	if !enabled {
		return
	}
	l.Debug(format, args...)
	if !fileLogging {
		return
	}

	line := fmt.Sprintf("[%s] [%s] DEBUG: %s\n", stamp(), l.agentID, fmt.Sprintf(format, args...))
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return
	}

	path := filepath.Join(logDir, filename)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to open debug log %s: %v\n", path, err)
		return
	}
	defer f.Close() //nolint:errcheck // Best-effort debug sink
	if _, err := f.WriteString(line); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write debug log to %s: %v\n", path, err)
	}
}

// GetAgentID returns the agent ID this logger is tagged with.
func (l *Logger) GetAgentID() string {
	return l.agentID
}

// WithAgentID returns a copy of this logger tagged with a different agent ID.
func (l *Logger) WithAgentID(agentID string) *Logger {
	return &Logger{agentID: agentID, logger: l.logger}
}

//nolint:gochecknoglobals // Shared fallback logger
var defaultLogger = NewLogger("system")

func Debugf(format string, args ...any) {
	defaultLogger.Debug(format, args...)
}

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error, for call sites that need both:
//
//	return logx.Errorf("setup failed: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs and returns fmt.Errorf("%s: %w", msg, err). Returns nil for nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
