package types

import "time"

type Level int8

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// Event defines a single log event.
type Event interface {
	Msg(msg string)
	Msgf(format string, v ...any)
	Err(err error) Event
	Interface(key string, value any) Event
	Str(key, value string) Event
	Int(key string, value int) Event
	Dur(key string, value time.Duration) Event
}

// Context defines a logging context.
type Context interface {
	Str(key, value string) Context
	Int(key string, value int) Context
	Interface(key string, value any) Context
	Timestamp() Context
	Logger() Logger
}

// Logger defines the logging interface.
type Logger interface {
	Debug() Event
	Info() Event
	Warn() Event
	Error() Event
	Fatal() Event
	With() Context
}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug() Event { return nopEvent{} }
func (nopLogger) Info() Event { return nopEvent{} }
func (nopLogger) Warn() Event { return nopEvent{} }
func (nopLogger) Error() Event { return nopEvent{} }
func (nopLogger) Fatal() Event { return nopEvent{} }
func (nopLogger) With() Context { return nopContext{} }

type nopEvent struct{}

func (nopEvent) Msg(string) {}
func (nopEvent) Msgf(string, ...any) {}
func (e nopEvent) Err(error) Event { return e }
func (e nopEvent) Interface(string, any) Event { return e }
func (e nopEvent) Str(string, string) Event { return e }
func (e nopEvent) Int(string, int) Event { return e }
func (e nopEvent) Dur(string, time.Duration) Event { return e }

type nopContext struct{}

func (c nopContext) Str(string, string) Context { return c }
func (c nopContext) Int(string, int) Context { return c }
func (c nopContext) Interface(string, any) Context { return c }
func (c nopContext) Timestamp() Context { return c }
func (nopContext) Logger() Logger { return nopLogger{} }
