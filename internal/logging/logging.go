package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Level represents a logging level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	PROGRESS // Special level that always displays
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case PROGRESS:
		return "PROGRESS"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name to a Level, defaulting to INFO
func ParseLevel(name string) Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Format represents the log output format
type Format int

const (
	Text Format = iota
	JSON
)

// ParseFormat maps a format name to a Format, defaulting to Text
func ParseFormat(name string) Format {
	if strings.EqualFold(strings.TrimSpace(name), "json") {
		return JSON
	}
	return Text
}

// previewLength is how much of a matched secret is echoed to the operator log
const previewLength = 20

// Logger handles structured logging
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	level  Level
	format Format
}

// LogConfig contains logger configuration
type LogConfig struct {
	Level  Level
	Format Format
}

var (
	defaultLogger = &Logger{
		out:    os.Stdout,
		level:  INFO,
		format: Text,
	}

	// Color definitions
	debugColor    = color.New(color.FgCyan)
	infoColor     = color.New(color.FgGreen)
	warnColor     = color.New(color.FgYellow)
	errorColor    = color.New(color.FgRed)
	progressColor = color.New(color.FgBlue, color.Bold)
)

// Configure sets up the default logger
func Configure(config LogConfig) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.level = config.Level
	defaultLogger.format = config.Format
}

// SetOutput redirects the default logger and returns the previous writer
func SetOutput(w io.Writer) io.Writer {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	prev := defaultLogger.out
	defaultLogger.out = w
	return prev
}

type logEntry struct {
	Timestamp string      `json:"timestamp"`
	Level     string      `json:"level"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
}

func (l *Logger) log(level Level, msg string, data interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Always show PROGRESS level, otherwise respect level setting
	if level != PROGRESS && level < l.level {
		return
	}

	timestamp := time.Now().Format("2006/01/02 15:04:05")

	if l.format == JSON {
		entry := logEntry{
			Timestamp: timestamp,
			Level:     level.String(),
			Message:   msg,
			Data:      data,
		}
		if err := json.NewEncoder(l.out).Encode(entry); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode log entry: %v\n", err)
		}
		return
	}

	var levelColor *color.Color
	switch level {
	case DEBUG:
		levelColor = debugColor
	case INFO:
		levelColor = infoColor
	case WARN:
		levelColor = warnColor
	case ERROR:
		levelColor = errorColor
	case PROGRESS:
		levelColor = progressColor
	default:
		levelColor = infoColor
	}

	levelStr := levelColor.Sprintf("%-5s", level.String())
	fmt.Fprintf(l.out, "%s %s: %s", timestamp, levelStr, msg)
	if data != nil {
		fmt.Fprintf(l.out, " %+v", data)
	}
	fmt.Fprintln(l.out)
}

func (l *Logger) Debug(msg string, data ...interface{}) {
	l.log(DEBUG, msg, firstOrNil(data))
}

func (l *Logger) Info(msg string, data ...interface{}) {
	l.log(INFO, msg, firstOrNil(data))
}

func (l *Logger) Warn(msg string, data ...interface{}) {
	l.log(WARN, msg, firstOrNil(data))
}

func (l *Logger) Error(msg string, err error, data ...interface{}) {
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	l.log(ERROR, msg, firstOrNil(data))
}

func (l *Logger) Progress(msg string, data interface{}) {
	l.log(PROGRESS, msg, data)
}

// firstOrNil returns the first element of data if present, nil otherwise
func firstOrNil(data []interface{}) interface{} {
	if len(data) > 0 {
		return data[0]
	}
	return nil
}

// Preview shortens a matched value for operator-facing output
func Preview(match string) string {
	if len(match) > previewLength {
		return match[:previewLength] + "..."
	}
	return match
}

// ScanStart logs the start of a scan run
func (l *Logger) ScanStart(runID string, regions []string, output string) {
	l.Info("Starting secret scan", map[string]interface{}{
		"run_id":  runID,
		"regions": regions,
		"output":  output,
	})
}

// RegionStart logs the start of a region pipeline
func (l *Logger) RegionStart(region string) {
	l.Info("Fetching details from region", map[string]interface{}{
		"region": region,
	})
}

// RegionComplete logs the completion of a region pipeline
func (l *Logger) RegionComplete(region string, instances, templates, matched int) {
	l.Info("Region scan completed", map[string]interface{}{
		"region":            region,
		"instances":         instances,
		"templates":         templates,
		"matched_resources": matched,
	})
}

// RegionError logs a region pipeline failure
func (l *Logger) RegionError(region string, err error) {
	l.Error("Region scan failed", err, map[string]interface{}{
		"region": region,
	})
}

// MatchFound logs a single detector hit with the matched value truncated
func (l *Logger) MatchFound(region, resourceID, source, detector, match string) {
	l.Info("Matched", map[string]interface{}{
		"region":   region,
		"resource": resourceID,
		"source":   source,
		"detector": detector,
		"match":    Preview(match),
	})
}

// ScanComplete logs the completion of a scan run
func (l *Logger) ScanComplete(runID string, completed, failed, matched int, elapsed time.Duration) {
	l.Info("Secret scan complete", map[string]interface{}{
		"run_id":            runID,
		"regions_completed": completed,
		"regions_failed":    failed,
		"matched_resources": matched,
		"duration_ms":       elapsed.Milliseconds(),
	})
}

// PoolStats logs how the worker pool ran the region tasks
func (l *Logger) PoolStats(runID string, peakWorkers, failedTasks, avgTaskMs int64) {
	l.Debug("Region worker pool stats", map[string]interface{}{
		"run_id":        runID,
		"peak_workers":  peakWorkers,
		"failed_tasks":  failedTasks,
		"avg_region_ms": avgTaskMs,
	})
}

// Default logger methods
func Debug(msg string, data ...interface{}) {
	defaultLogger.Debug(msg, data...)
}

func Info(msg string, data ...interface{}) {
	defaultLogger.Info(msg, data...)
}

func Warn(msg string, data ...interface{}) {
	defaultLogger.Warn(msg, data...)
}

func Error(msg string, err error, data ...interface{}) {
	defaultLogger.Error(msg, err, data...)
}

func Progress(msg string, data ...interface{}) {
	defaultLogger.Progress(msg, firstOrNil(data))
}

func ScanStart(runID string, regions []string, output string) {
	defaultLogger.ScanStart(runID, regions, output)
}

func RegionStart(region string) {
	defaultLogger.RegionStart(region)
}

func RegionComplete(region string, instances, templates, matched int) {
	defaultLogger.RegionComplete(region, instances, templates, matched)
}

func RegionError(region string, err error) {
	defaultLogger.RegionError(region, err)
}

func MatchFound(region, resourceID, source, detector, match string) {
	defaultLogger.MatchFound(region, resourceID, source, detector, match)
}

func ScanComplete(runID string, completed, failed, matched int, elapsed time.Duration) {
	defaultLogger.ScanComplete(runID, completed, failed, matched, elapsed)
}

func PoolStats(runID string, peakWorkers, failedTasks, avgTaskMs int64) {
	defaultLogger.PoolStats(runID, peakWorkers, failedTasks, avgTaskMs)
}
