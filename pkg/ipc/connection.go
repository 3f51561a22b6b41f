package ipc

import (
	"sync"
	"sync/atomic"
)

// Connection is the client-form surface shared by client connections
// and the single-peer server facade.
type Connection interface {
	// Connect starts the transport. Idempotent while a transport is
	// live; a no-op once the connection is closing.
	Connect()
	// Disconnect tears the transport down and resolves every pending
	// invoke with LocalDisconnect. Idempotent.
	Disconnect()
	// Close disconnects, waits out any in-flight reply closures, and
	// stops the delivery goroutine. The connection is unusable
	// afterwards.
	Close()

	// Send delivers a fire-and-forget message.
	Send(message Payload)
	// Invoke sends a request and returns its promise id; the response
	// arrives through the OnResult handler. The single-peer server
	// sends nothing and returns 0 before it has accepted a peer.
	Invoke(message Payload) Handle
	// InvokeWithCallback sends a request; onResult fires at most once
	// with the response or a disconnect code. It never fires when the
	// call is made after Close, or on a single-peer server before it
	// has accepted a peer: the request is dropped in both cases.
	InvokeWithCallback(message Payload, onResult PromiseCallback)
	// SendResult answers a request received through the promise-id
	// invoked handler.
	SendResult(conn Handle, promiseID Handle, message Payload)

	OnReceived(handler OnDataHandler)
	OnInvokedPromiseID(handler OnInvokedPromiseIDHandler)
	OnInvokedImmediate(handler OnInvokedImmediateHandler)
	OnInvokedCallback(handler OnInvokedCallbackHandler)
	OnResult(handler OnResultHandler)
	OnConnect(handler OnHandler)
	OnDisconnect(handler OnHandler)
	OnError(handler OnHandler)
	OnLog(handler OnLogHandler, level LogLevel)
	SetLogLevel(level LogLevel)
}

// connectionBase carries the state every connection engine shares:
// endpoint, lifetime shield, transport lock, shutdown latch, and the
// promise-id allocator.
type connectionBase struct {
	endpoint     string
	shield       *lambdaShield
	transportMu  sync.Mutex
	shuttingDown atomic.Bool

	rolloverMu sync.Mutex
	lastHandle atomic.Uint32

	logMu      sync.Mutex
	logLevel   LogLevel
	logEmitter func(conn Handle, level LogLevel, message, category string)
}

func (b *connectionBase) initBase(endpoint string) {
	b.endpoint = endpoint
	b.shield = newLambdaShield()
	b.logLevel = LogNone
}

// nextHandle allocates a promise id: never 0, never with the response
// flag set. On reaching the flag bit the counter resets under a mutex
// and allocation continues from 1.
func (b *connectionBase) nextHandle() Handle {
	h := b.lastHandle.Add(1)
	if h >= uint32(ResponseFlag) {
		b.rolloverMu.Lock()
		if b.lastHandle.Load() >= uint32(ResponseFlag) {
			b.lastHandle.Store(0)
		}
		b.rolloverMu.Unlock()
		h = b.lastHandle.Add(1)
	}
	return Handle(h)
}

func (b *connectionBase) getLogLevel() LogLevel {
	b.logMu.Lock()
	defer b.logMu.Unlock()
	return b.logLevel
}

func (b *connectionBase) setLogLevelLocked(level LogLevel) {
	b.logMu.Lock()
	b.logLevel = level
	b.logMu.Unlock()
}

// adjustLogLevelForHandler applies the OnLog defaulting rule: an
// explicit level wins; otherwise a still-unset level becomes Warning
// since a log handler that can never fire is useless.
func (b *connectionBase) adjustLogLevelForHandler(level LogLevel) {
	b.logMu.Lock()
	if level != LogNone {
		b.logLevel = level
	} else if b.logLevel == LogNone {
		b.logLevel = LogWarning
	}
	b.logMu.Unlock()
}

func (b *connectionBase) logDebug(message string) {
	b.logEmitter(0, LogDebug, message, defaultCategory)
}

func (b *connectionBase) logInfo(message string) {
	b.logEmitter(0, LogInfo, message, defaultCategory)
}

func (b *connectionBase) logWarning(message string) {
	b.logEmitter(0, LogWarning, message, defaultCategory)
}

func (b *connectionBase) logError(message string) {
	b.logEmitter(0, LogError, message, defaultCategory)
}
