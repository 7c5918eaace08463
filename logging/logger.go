// Package logging provides the daemon's leveled, colorized logger. Every
// record is also persisted to the local buffer so it can be forwarded to the
// cloud store later, matching the original collector's behavior of treating
// its own log as just another stream of facts to ship upstream.
package logging

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Level mirrors the original collector's four-level palette.
type Level string

const (
	Info    Level = "info"
	Warning Level = "warning"
	Danger  Level = "danger"
	Success Level = "success"
)

var levelColor = map[Level]*color.Color{
	Info:    color.New(color.FgCyan),
	Warning: color.New(color.FgYellow),
	Danger:  color.New(color.FgRed),
	Success: color.New(color.FgGreen),
}

var levelToLogrus = map[Level]logrus.Level{
	Info:    logrus.InfoLevel,
	Warning: logrus.WarnLevel,
	Danger:  logrus.ErrorLevel,
	Success: logrus.InfoLevel,
}

// Record is one persisted log line, shaped for both the local buffer's
// "logs" table and the cloud store's "logs" table.
type Record struct {
	ID       int64
	Time     time.Time
	Message  string
	Level    Level
	DaemonID int64
}

// Sink is the subset of localbuffer.Buffer that the logger needs: append a
// log row, and drain rows older than a cutoff for forwarding.
type Sink interface {
	InsertLog(rec Record) error
	SelectLogsBefore(cutoff time.Time) ([]Record, error)
	DeleteLogsBefore(cutoff time.Time) error
}

// CloudSink is the subset of cloudstore.Store the logger forwards into.
type CloudSink interface {
	UpsertLogs(records []Record) error
}

// Logger writes colorized, leveled messages to the console, to a structured
// logrus entry, and to the local buffer for later forwarding.
type Logger struct {
	daemonID int64
	out      *logrus.Logger
	buffer   Sink
}

// New builds a Logger bound to the given daemon ID and local buffer sink.
func New(daemonID int64, buffer Sink) *Logger {
	out := logrus.New()
	out.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{daemonID: daemonID, out: out, buffer: buffer}
}

// SetDaemonID rebinds the logger to a daemon identity resolved after
// construction (e.g. once the configuration key has been looked up against
// the cloud store).
func (l *Logger) SetDaemonID(daemonID int64) {
	l.daemonID = daemonID
}

func (l *Logger) write(level Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	caller := callerFuncName()
	line := fmt.Sprintf("[%s] %s", caller, msg)

	c := levelColor[level]
	c.Println(line)

	l.out.WithField("caller", caller).Log(levelToLogrus[level], msg)

	if l.buffer == nil {
		return
	}
	rec := Record{Time: time.Now(), Message: line, Level: level, DaemonID: l.daemonID}
	if err := l.buffer.InsertLog(rec); err != nil {
		l.out.WithError(err).Error("logging: failed to persist log record to local buffer")
	}
}

func (l *Logger) Info(format string, args ...interface{})    { l.write(Info, format, args...) }
func (l *Logger) Warning(format string, args ...interface{}) { l.write(Warning, format, args...) }
func (l *Logger) Danger(format string, args ...interface{})  { l.write(Danger, format, args...) }
func (l *Logger) Success(format string, args ...interface{}) { l.write(Success, format, args...) }

// Forward drains local log records not newer than now into the cloud store,
// then deletes them from the local buffer — mirroring Logger.py's forward():
// copy-then-delete, never the reverse, so a crash mid-forward just re-sends.
func (l *Logger) Forward(cloud CloudSink) error {
	if l.buffer == nil {
		return nil
	}
	cutoff := time.Now()
	records, err := l.buffer.SelectLogsBefore(cutoff)
	if err != nil {
		return fmt.Errorf("logging: select local logs: %w", err)
	}
	if len(records) == 0 {
		return nil
	}
	if err := cloud.UpsertLogs(records); err != nil {
		return fmt.Errorf("logging: forward logs to cloud: %w", err)
	}
	if err := l.buffer.DeleteLogsBefore(cutoff); err != nil {
		return fmt.Errorf("logging: purge forwarded local logs: %w", err)
	}
	return nil
}

// callerFuncName skips three frames (itself, write, and the level helper) to
// find the function that called Info/Warning/..., reproducing Python's
// inspect.stack()[1][3] caller-name capture.
func callerFuncName() string {
	pc, _, _, ok := runtime.Caller(3)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}
	name := fn.Name()
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}
