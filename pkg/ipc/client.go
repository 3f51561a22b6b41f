package ipc

import (
	"strconv"
	"sync"

	"github.com/twitchtv/twitch-native-ipc/internal/transport"
)

// ClientConnection dials an endpoint and auto-reconnects until
// disconnected. Construct one with NewClientConnection or a TCP or
// WebSocket factory variant.
type ClientConnection struct {
	connectionBase
	queue        *operationQueue
	newTransport func() *transport.Client
	transport    *transport.Client

	// Outbound traffic before the first Connect is buffered here and
	// flushed into the transport write queue when it exists.
	pending       []bufferedFrame
	connectCalled bool

	callbacks   map[Handle]PromiseCallback
	callbacksMu sync.Mutex

	receivedHandler         OnDataHandler
	invokedPromiseIDHandler OnInvokedPromiseIDHandler
	invokedImmediateHandler OnInvokedImmediateHandler
	invokedCallbackHandler  OnInvokedCallbackHandler
	resultHandler           OnResultHandler
	connectHandler          OnHandler
	disconnectHandler       OnHandler
	errorHandler            OnHandler
	logHandler              OnLogHandler
}

type bufferedFrame struct {
	conn      Handle
	requestID Handle
	message   Payload
}

func newClientConnection(newTransport func() *transport.Client, endpoint string) *ClientConnection {
	c := &ClientConnection{
		queue:        newOperationQueue(),
		newTransport: newTransport,
		callbacks:    make(map[Handle]PromiseCallback),
	}
	c.initBase(endpoint)
	c.logEmitter = c.handleLog
	return c
}

var _ Connection = (*ClientConnection)(nil)

func (c *ClientConnection) Connect() {
	c.logInfo("`connect`")

	if c.endpoint == "" {
		c.logError("No endpoint specified.")
		return
	}

	c.transportMu.Lock()
	defer c.transportMu.Unlock()
	if c.transport != nil {
		c.logDebug("`connect` called but already connected")
		return
	}
	if c.shuttingDown.Load() {
		c.logDebug("`connect` called but already shutting down")
		return
	}

	t := c.newTransport()
	t.OnData(func(conn, requestID uint32, body []byte) {
		c.handleData(Handle(conn), Handle(requestID), body)
	})
	t.OnDisconnect(func(uint32) {
		c.logInfo("`onDisconnect` called")
		c.handleRemoteDisconnected()
	})
	t.OnConnect(func(uint32) {
		c.logInfo("`onConnect` called")
		c.handleRemoteConnected()
	})
	t.OnError(func(uint32) {
		c.logError("Got onError callback")
		c.handleError()
	})
	t.OnLog(func(conn uint32, level transport.Level, message string) {
		c.handleLog(Handle(conn), levelFromTransport(level), message, "transport")
	}, levelToTransport(c.getLogLevel()))

	c.transport = t
	c.connectCalled = true
	for _, f := range c.pending {
		t.Send(uint32(f.conn), uint32(f.requestID), f.message)
	}
	c.pending = nil

	switch t.Connect(c.endpoint) {
	case transport.ResultConnected:
		c.logInfo("Connected immediately")
	case transport.ResultConnecting:
		c.logInfo("Waiting to connect")
	case transport.ResultShuttingDown:
		c.logInfo("Connect cancelled.")
		c.transport = nil
		t.Close()
	case transport.ResultFailed:
		c.logWarning("Connect failed.")
		c.transport = nil
		t.Close()
	}
}

func (c *ClientConnection) Disconnect() {
	c.logInfo("`disconnect`")

	c.transportMu.Lock()
	if c.shuttingDown.Load() {
		c.transportMu.Unlock()
		return
	}
	t := c.transport
	c.transport = nil
	c.pending = nil
	if t != nil {
		t.Close()
	}
	callbacks := c.takeAllCallbacks()
	c.transportMu.Unlock()

	for _, cb := range callbacks {
		cb(LocalDisconnect, nil)
	}
}

func (c *ClientConnection) Close() {
	c.Disconnect()
	c.shield.drain()
	c.shuttingDown.Store(true)
	c.queue.stop()
}

func (c *ClientConnection) Send(message Payload) {
	c.logDebug("Sending message of length " + strconv.Itoa(len(message)))
	c.transportMu.Lock()
	defer c.transportMu.Unlock()
	c.sendLocked(0, 0, message)
}

func (c *ClientConnection) Invoke(message Payload) Handle {
	promiseID := c.nextHandle()
	c.logDebug("Sending invoke of length " + strconv.Itoa(len(message)))
	c.transportMu.Lock()
	defer c.transportMu.Unlock()
	c.sendLocked(0, promiseID, message)
	return promiseID
}

func (c *ClientConnection) InvokeWithCallback(message Payload, onResult PromiseCallback) {
	c.logDebug("Sending invoke of length " + strconv.Itoa(len(message)))
	promiseID := c.nextHandle()

	c.transportMu.Lock()
	if c.shuttingDown.Load() {
		c.transportMu.Unlock()
		return
	}
	if c.transport != nil || !c.connectCalled {
		c.putCallback(promiseID, onResult)
		c.sendLocked(0, promiseID, message)
		c.transportMu.Unlock()
		return
	}
	c.transportMu.Unlock()
	onResult(LocalDisconnect, nil)
}

func (c *ClientConnection) SendResult(conn Handle, promiseID Handle, message Payload) {
	c.logDebug("Sending invoke result " + strconv.FormatUint(uint64(promiseID), 10) +
		" of length " + strconv.Itoa(len(message)))
	c.transportMu.Lock()
	defer c.transportMu.Unlock()
	c.sendLocked(conn, promiseID|ResponseFlag, message)
}

// sendLocked queues a frame on the live transport, or buffers it if
// Connect has not created one yet. Called with transportMu held.
func (c *ClientConnection) sendLocked(conn Handle, requestID Handle, message Payload) {
	if c.shuttingDown.Load() {
		return
	}
	if c.transport != nil {
		c.transport.Send(uint32(conn), uint32(requestID), message)
		return
	}
	if !c.connectCalled {
		c.pending = append(c.pending, bufferedFrame{conn: conn, requestID: requestID, message: message})
	}
}

func (c *ClientConnection) putCallback(promiseID Handle, cb PromiseCallback) {
	c.callbacksMu.Lock()
	c.callbacks[promiseID] = cb
	c.callbacksMu.Unlock()
}

func (c *ClientConnection) takeCallback(promiseID Handle) (PromiseCallback, bool) {
	c.callbacksMu.Lock()
	defer c.callbacksMu.Unlock()
	cb, ok := c.callbacks[promiseID]
	if ok {
		delete(c.callbacks, promiseID)
	}
	return cb, ok
}

func (c *ClientConnection) takeAllCallbacks() map[Handle]PromiseCallback {
	c.callbacksMu.Lock()
	defer c.callbacksMu.Unlock()
	callbacks := c.callbacks
	c.callbacks = make(map[Handle]PromiseCallback)
	return callbacks
}

func (c *ClientConnection) handleRemoteConnected() {
	c.queue.enqueue(func() {
		if c.connectHandler != nil {
			c.connectHandler()
		}
	})
}

// handleRemoteDisconnected resolves the expired invokes and raises
// the disconnect event as one delivery operation, so no other event
// lands between them.
func (c *ClientConnection) handleRemoteDisconnected() {
	expired := c.takeAllCallbacks()
	c.queue.enqueue(func() {
		for _, cb := range expired {
			cb(RemoteDisconnect, nil)
		}
		if c.disconnectHandler != nil {
			c.disconnectHandler()
		}
	})
}

func (c *ClientConnection) handleData(conn Handle, handle Handle, message Payload) {
	c.queue.enqueue(func() {
		switch {
		case handle == 0:
			if c.receivedHandler != nil {
				c.receivedHandler(message)
			}
		case handle&ResponseFlag != 0:
			promiseID := handle &^ ResponseFlag
			if cb, ok := c.takeCallback(promiseID); ok {
				c.logDebug("Processing invoke result " + strconv.FormatUint(uint64(promiseID), 10) +
					" of length " + strconv.Itoa(len(message)))
				cb(Good, message)
				return
			}
			if c.resultHandler != nil {
				c.logDebug("Processing invoke result " + strconv.FormatUint(uint64(promiseID), 10) +
					" of length " + strconv.Itoa(len(message)) + " with global handler")
				c.resultHandler(promiseID, message)
			} else {
				c.logDebug("Could not process invoke result " + strconv.FormatUint(uint64(promiseID), 10))
			}
		default:
			promiseID := handle
			c.logDebug("Received invoke request " + strconv.FormatUint(uint64(promiseID), 10) +
				" of length " + strconv.Itoa(len(message)))
			switch {
			case c.invokedPromiseIDHandler != nil:
				c.invokedPromiseIDHandler(conn, promiseID, message)
			case c.invokedImmediateHandler != nil:
				result := c.invokedImmediateHandler(message)
				c.logDebug("Sending invoke result " + strconv.FormatUint(uint64(promiseID), 10) +
					" of length " + strconv.Itoa(len(result)))
				c.transportMu.Lock()
				c.sendLocked(conn, promiseID|ResponseFlag, result)
				c.transportMu.Unlock()
			case c.invokedCallbackHandler != nil:
				shield := c.shield
				c.invokedCallbackHandler(message, func(result Payload) {
					if !shield.acquire() {
						return
					}
					defer shield.release()
					c.logDebug("Sending invoke result " + strconv.FormatUint(uint64(promiseID), 10) +
						" of length " + strconv.Itoa(len(result)))
					c.transportMu.Lock()
					c.sendLocked(conn, promiseID|ResponseFlag, result)
					c.transportMu.Unlock()
				})
			}
		}
	})
}

func (c *ClientConnection) handleError() {
	c.queue.enqueue(func() {
		if c.errorHandler != nil {
			c.errorHandler()
		}
	})
}

func (c *ClientConnection) handleLog(_ Handle, level LogLevel, message, category string) {
	if c.logHandler != nil && level >= c.getLogLevel() {
		c.queue.enqueue(func() {
			// check again in case this changed since we were enqueued
			if c.logHandler != nil && level >= c.getLogLevel() {
				c.logHandler(level, message, category)
			}
		})
	}
}

func (c *ClientConnection) OnReceived(handler OnDataHandler) {
	c.receivedHandler = handler
}

func (c *ClientConnection) OnInvokedPromiseID(handler OnInvokedPromiseIDHandler) {
	c.invokedPromiseIDHandler = handler
	c.invokedImmediateHandler = nil
	c.invokedCallbackHandler = nil
}

func (c *ClientConnection) OnInvokedImmediate(handler OnInvokedImmediateHandler) {
	c.invokedPromiseIDHandler = nil
	c.invokedImmediateHandler = handler
	c.invokedCallbackHandler = nil
}

func (c *ClientConnection) OnInvokedCallback(handler OnInvokedCallbackHandler) {
	c.invokedPromiseIDHandler = nil
	c.invokedImmediateHandler = nil
	c.invokedCallbackHandler = handler
}

func (c *ClientConnection) OnResult(handler OnResultHandler) {
	c.resultHandler = handler
}

func (c *ClientConnection) OnConnect(handler OnHandler) {
	c.connectHandler = handler
}

func (c *ClientConnection) OnDisconnect(handler OnHandler) {
	c.disconnectHandler = handler
}

func (c *ClientConnection) OnError(handler OnHandler) {
	c.errorHandler = handler
}

func (c *ClientConnection) OnLog(handler OnLogHandler, level LogLevel) {
	c.adjustLogLevelForHandler(level)
	c.logHandler = handler
}

func (c *ClientConnection) SetLogLevel(level LogLevel) {
	c.setLogLevelLocked(level)
	c.transportMu.Lock()
	if c.transport != nil {
		c.transport.SetLogLevel(levelToTransport(level))
	}
	c.transportMu.Unlock()
}
