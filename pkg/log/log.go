// Package log provides the leveled logger the binaries and examples
// hook into a connection's OnLog slot. The core itself never writes
// logs; it only emits typed events.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is the sink interface consumers implement or inject.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

// ColorLogger writes leveled, color-tagged lines to a writer.
type ColorLogger struct {
	mu     sync.Mutex
	out    io.Writer
	level  Level
	prefix string

	debugTag *color.Color
	infoTag  *color.Color
	warnTag  *color.Color
	errorTag *color.Color
}

type Config struct {
	Level  Level
	Prefix string
	Writer io.Writer // defaults to stderr
}

func NewColorLogger(config Config) *ColorLogger {
	out := config.Writer
	if out == nil {
		out = os.Stderr
	}
	return &ColorLogger{
		out:      out,
		level:    config.Level,
		prefix:   config.Prefix,
		debugTag: color.New(color.FgCyan),
		infoTag:  color.New(color.FgGreen),
		warnTag:  color.New(color.FgYellow),
		errorTag: color.New(color.FgRed),
	}
}

func (l *ColorLogger) Debug(msg string) {
	l.write(LevelDebug, l.debugTag, "DEBUG", msg)
}

func (l *ColorLogger) Info(msg string) {
	l.write(LevelInfo, l.infoTag, "INFO", msg)
}

func (l *ColorLogger) Warn(msg string) {
	l.write(LevelWarn, l.warnTag, "WARN", msg)
}

func (l *ColorLogger) Error(msg string) {
	l.write(LevelError, l.errorTag, "ERROR", msg)
}

func (l *ColorLogger) write(level Level, tag *color.Color, name, msg string) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "[%s] ", tag.Sprint(name))
	if l.prefix != "" {
		fmt.Fprintf(l.out, "%s ", l.prefix)
	}
	fmt.Fprintln(l.out, msg)
}
