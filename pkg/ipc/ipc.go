// Package ipc is a bidirectional inter-process messaging core. Two
// processes exchange framed messages and request/response invocations
// over a local named-pipe, TCP-loopback, or WebSocket stream. Every
// user-visible callback for a connection runs on that connection's
// dedicated delivery goroutine, in the order the transport observed
// the events. The one exception is an invoke callback resolved with
// LocalDisconnect, by Disconnect or by an invoke made after
// disconnecting: it runs on the calling goroutine.
package ipc

import (
	"strings"

	"github.com/twitchtv/twitch-native-ipc/internal/transport"
	"github.com/twitchtv/twitch-native-ipc/pkg/ipc/frame"
)

// Handle identifies a peer connection or an in-flight invoke (promise
// id). 0 is reserved; the high bit of a promise id is the response
// flag.
type Handle uint32

// ResponseFlag is the high bit of a promise id, set on responses to
// correlate them with their request.
const ResponseFlag = Handle(frame.ResponseFlag)

// Payload is one message body. The core treats it as opaque bytes.
type Payload = []byte

// LogLevel filters the events handed to an OnLog handler.
type LogLevel int8

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarning
	LogError
	LogNone
)

// LogLevelFromString parses a case-insensitive level name, returning
// LogNone for anything unrecognized.
func LogLevelFromString(value string) LogLevel {
	switch {
	case strings.EqualFold(value, "debug"):
		return LogDebug
	case strings.EqualFold(value, "info"):
		return LogInfo
	case strings.EqualFold(value, "warning"):
		return LogWarning
	case strings.EqualFold(value, "error"):
		return LogError
	}
	return LogNone
}

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "DEBUG"
	case LogInfo:
		return "INFO"
	case LogWarning:
		return "WARNING"
	case LogError:
		return "ERROR"
	case LogNone:
		return "NONE"
	}
	return "UNKNOWN"
}

// InvokeResultCode tells an invoke callback how its request ended.
type InvokeResultCode int8

const (
	// Good carries the peer's response payload.
	Good InvokeResultCode = iota
	// RemoteDisconnect means the target peer went away before
	// responding.
	RemoteDisconnect
	// LocalDisconnect means this side disconnected or shut down.
	LocalDisconnect
)

// Client-form handler shapes.
type (
	// PromiseCallback resolves an invoke: exactly one call, with Good
	// and the response body, or a disconnect code and a nil body.
	PromiseCallback func(resultCode InvokeResultCode, result Payload)

	// ResultCallback sends the response from a callback-form invoked
	// handler. It may be called from any goroutine, at any later
	// time; after the connection closes it becomes a no-op.
	ResultCallback func(result Payload)

	OnHandler                 func()
	OnDataHandler             func(message Payload)
	OnInvokedPromiseIDHandler func(conn Handle, promiseID Handle, message Payload)
	OnInvokedImmediateHandler func(message Payload) Payload
	OnInvokedCallbackHandler  func(message Payload, callback ResultCallback)
	OnResultHandler           func(promiseID Handle, message Payload)
	OnLogHandler              func(level LogLevel, message string, category string)
)

// Server-form handler shapes: as above with the originating peer's
// connection handle prepended.
type (
	ServerOnHandler                 func(conn Handle)
	ServerOnDataHandler             func(conn Handle, message Payload)
	ServerOnInvokedPromiseIDHandler func(conn Handle, promiseID Handle, message Payload)
	ServerOnInvokedImmediateHandler func(conn Handle, message Payload) Payload
	ServerOnInvokedCallbackHandler  func(conn Handle, message Payload, callback ResultCallback)
	ServerOnResultHandler           func(conn Handle, promiseID Handle, message Payload)
	ServerOnLogHandler              func(conn Handle, level LogLevel, message string, category string)
)

const defaultCategory = "connection"

func levelFromTransport(level transport.Level) LogLevel {
	switch level {
	case transport.LevelDebug:
		return LogDebug
	case transport.LevelInfo:
		return LogInfo
	case transport.LevelWarning:
		return LogWarning
	}
	return LogError
}

func levelToTransport(level LogLevel) transport.Level {
	switch level {
	case LogDebug:
		return transport.LevelDebug
	case LogInfo:
		return transport.LevelInfo
	case LogWarning:
		return transport.LevelWarning
	}
	return transport.LevelError
}
