package ipc

import (
	"strconv"
	"sync"

	"github.com/twitchtv/twitch-native-ipc/internal/transport"
)

// ServerConnection accepts any number of peers on one endpoint and
// addresses them by connection handle. Construct one with
// NewMultiServerConnection or a TCP or WebSocket factory variant.
type ServerConnection struct {
	connectionBase
	queue        *operationQueue
	newTransport func() *transport.Server
	transport    *transport.Server

	pending       []bufferedFrame
	connectCalled bool

	callbacks   map[Handle]map[Handle]PromiseCallback
	callbacksMu sync.Mutex

	receivedHandler         ServerOnDataHandler
	invokedPromiseIDHandler ServerOnInvokedPromiseIDHandler
	invokedImmediateHandler ServerOnInvokedImmediateHandler
	invokedCallbackHandler  ServerOnInvokedCallbackHandler
	resultHandler           ServerOnResultHandler
	connectHandler          ServerOnHandler
	disconnectHandler       ServerOnHandler
	errorHandler            ServerOnHandler
	logHandler              ServerOnLogHandler
}

func newServerConnection(newTransport func() *transport.Server, endpoint string) *ServerConnection {
	s := &ServerConnection{
		queue:        newOperationQueue(),
		newTransport: newTransport,
		callbacks:    make(map[Handle]map[Handle]PromiseCallback),
	}
	s.initBase(endpoint)
	s.logEmitter = s.handleLog
	return s
}

func (s *ServerConnection) Connect() {
	s.logInfo("`connect`")

	if s.endpoint == "" {
		s.logError("No endpoint specified.")
		return
	}

	s.transportMu.Lock()
	defer s.transportMu.Unlock()
	if s.transport != nil {
		s.logDebug("`connect` called but already connected")
		return
	}
	if s.shuttingDown.Load() {
		s.logDebug("`connect` called but already shutting down")
		return
	}

	t := s.newTransport()
	t.OnData(func(conn, requestID uint32, body []byte) {
		s.handleData(Handle(conn), Handle(requestID), body)
	})
	t.OnNoPeer(func(conn, requestID uint32) {
		s.handleNoPeerForRequest(Handle(conn), Handle(requestID))
	})
	t.OnConnect(func(conn uint32) {
		s.logInfoHandle(Handle(conn), "`onConnect` called")
		s.handleRemoteConnected(Handle(conn))
	})
	t.OnDisconnect(func(conn uint32) {
		s.logInfoHandle(Handle(conn), "`onDisconnect` called")
		s.handleRemoteDisconnected(Handle(conn))
	})
	t.OnLog(func(conn uint32, level transport.Level, message string) {
		s.handleLog(Handle(conn), levelFromTransport(level), message, "transport")
	}, levelToTransport(s.getLogLevel()))

	s.transport = t
	s.connectCalled = true
	for _, f := range s.pending {
		t.Send(uint32(f.conn), uint32(f.requestID), f.message)
	}
	s.pending = nil

	if err := t.Listen(s.endpoint); err != nil {
		s.logError("Failed to start server")
		s.transport = nil
		t.Close()
		s.handleError(0)
	}
}

func (s *ServerConnection) Disconnect() {
	s.logInfo("`disconnect`")

	s.transportMu.Lock()
	if s.shuttingDown.Load() {
		s.transportMu.Unlock()
		return
	}
	t := s.transport
	s.transport = nil
	s.pending = nil
	if t != nil {
		t.Close()
	}
	callbacks := s.takeAllCallbacks()
	s.transportMu.Unlock()

	for _, peerCallbacks := range callbacks {
		for _, cb := range peerCallbacks {
			cb(LocalDisconnect, nil)
		}
	}
}

func (s *ServerConnection) Close() {
	s.Disconnect()
	s.shield.drain()
	s.shuttingDown.Store(true)
	s.queue.stop()
}

// ActiveConnections returns the number of currently accepted peers.
func (s *ServerConnection) ActiveConnections() int {
	s.transportMu.Lock()
	defer s.transportMu.Unlock()
	if s.transport != nil && !s.shuttingDown.Load() {
		return s.transport.ActiveConnections()
	}
	return 0
}

// Broadcast sends a fire-and-forget message to every connected peer.
func (s *ServerConnection) Broadcast(message Payload) {
	s.transportMu.Lock()
	defer s.transportMu.Unlock()
	if s.transport != nil && !s.shuttingDown.Load() {
		s.transport.Broadcast(message)
	}
}

func (s *ServerConnection) Send(conn Handle, message Payload) {
	s.logDebugHandle(conn, "Sending message of length "+strconv.Itoa(len(message)))
	s.transportMu.Lock()
	defer s.transportMu.Unlock()
	s.sendLocked(conn, 0, message)
}

func (s *ServerConnection) Invoke(conn Handle, message Payload) Handle {
	s.logDebugHandle(conn, "Sending invoke of length "+strconv.Itoa(len(message)))
	promiseID := s.nextHandle()
	s.transportMu.Lock()
	defer s.transportMu.Unlock()
	s.sendLocked(conn, promiseID, message)
	return promiseID
}

func (s *ServerConnection) InvokeWithCallback(conn Handle, message Payload, onResult PromiseCallback) {
	s.logDebugHandle(conn, "Sending invoke of length "+strconv.Itoa(len(message)))
	promiseID := s.nextHandle()

	s.transportMu.Lock()
	if s.shuttingDown.Load() {
		s.transportMu.Unlock()
		return
	}
	if s.transport != nil || !s.connectCalled {
		s.putCallback(conn, promiseID, onResult)
		s.sendLocked(conn, promiseID, message)
		s.transportMu.Unlock()
		return
	}
	s.transportMu.Unlock()
	onResult(LocalDisconnect, nil)
}

func (s *ServerConnection) SendResult(conn Handle, promiseID Handle, message Payload) {
	s.logDebugHandle(conn, "Sending invoke result of length "+strconv.Itoa(len(message)))
	s.transportMu.Lock()
	defer s.transportMu.Unlock()
	s.sendLocked(conn, promiseID|ResponseFlag, message)
}

func (s *ServerConnection) sendLocked(conn Handle, requestID Handle, message Payload) {
	if s.shuttingDown.Load() {
		return
	}
	if s.transport != nil {
		s.transport.Send(uint32(conn), uint32(requestID), message)
		return
	}
	if !s.connectCalled {
		s.pending = append(s.pending, bufferedFrame{conn: conn, requestID: requestID, message: message})
	}
}

func (s *ServerConnection) putCallback(conn, promiseID Handle, cb PromiseCallback) {
	s.callbacksMu.Lock()
	peerCallbacks, ok := s.callbacks[conn]
	if !ok {
		peerCallbacks = make(map[Handle]PromiseCallback)
		s.callbacks[conn] = peerCallbacks
	}
	peerCallbacks[promiseID] = cb
	s.callbacksMu.Unlock()
}

func (s *ServerConnection) takeCallback(conn, promiseID Handle) (PromiseCallback, bool) {
	s.callbacksMu.Lock()
	defer s.callbacksMu.Unlock()
	peerCallbacks, ok := s.callbacks[conn]
	if !ok {
		return nil, false
	}
	cb, ok := peerCallbacks[promiseID]
	if ok {
		delete(peerCallbacks, promiseID)
	}
	return cb, ok
}

func (s *ServerConnection) takePeerCallbacks(conn Handle) map[Handle]PromiseCallback {
	s.callbacksMu.Lock()
	defer s.callbacksMu.Unlock()
	peerCallbacks := s.callbacks[conn]
	delete(s.callbacks, conn)
	return peerCallbacks
}

func (s *ServerConnection) takeAllCallbacks() map[Handle]map[Handle]PromiseCallback {
	s.callbacksMu.Lock()
	defer s.callbacksMu.Unlock()
	callbacks := s.callbacks
	s.callbacks = make(map[Handle]map[Handle]PromiseCallback)
	return callbacks
}

// handleNoPeerForRequest rejects one pending invoke whose target peer
// disappeared before the write queue drained.
func (s *ServerConnection) handleNoPeerForRequest(conn, promiseID Handle) {
	if cb, ok := s.takeCallback(conn, promiseID); ok {
		s.logDebugHandle(conn, "Rejecting invoke for missing client")
		s.queue.enqueue(func() {
			cb(RemoteDisconnect, nil)
		})
	}
}

func (s *ServerConnection) handleRemoteConnected(conn Handle) {
	s.queue.enqueue(func() {
		if s.connectHandler != nil {
			s.connectHandler(conn)
		}
	})
}

func (s *ServerConnection) handleRemoteDisconnected(conn Handle) {
	expired := s.takePeerCallbacks(conn)
	s.queue.enqueue(func() {
		for _, cb := range expired {
			cb(RemoteDisconnect, nil)
		}
		if s.disconnectHandler != nil {
			s.disconnectHandler(conn)
		}
	})
}

func (s *ServerConnection) handleData(conn Handle, handle Handle, message Payload) {
	s.queue.enqueue(func() {
		switch {
		case handle == 0:
			if s.receivedHandler != nil {
				s.receivedHandler(conn, message)
			}
		case handle&ResponseFlag != 0:
			promiseID := handle &^ ResponseFlag
			if cb, ok := s.takeCallback(conn, promiseID); ok {
				s.logDebugHandle(conn, "Processing invoke result "+strconv.FormatUint(uint64(promiseID), 10)+
					" of length "+strconv.Itoa(len(message)))
				cb(Good, message)
				return
			}
			if s.resultHandler != nil {
				s.logDebugHandle(conn, "Processing invoke result "+strconv.FormatUint(uint64(promiseID), 10)+
					" of length "+strconv.Itoa(len(message))+" with global handler")
				s.resultHandler(conn, promiseID, message)
			} else {
				s.logDebugHandle(conn, "Could not process invoke result "+strconv.FormatUint(uint64(promiseID), 10))
			}
		default:
			promiseID := handle
			s.logDebugHandle(conn, "Received invoke request "+strconv.FormatUint(uint64(promiseID), 10)+
				" of length "+strconv.Itoa(len(message)))
			switch {
			case s.invokedPromiseIDHandler != nil:
				s.invokedPromiseIDHandler(conn, promiseID, message)
			case s.invokedImmediateHandler != nil:
				result := s.invokedImmediateHandler(conn, message)
				s.logDebugHandle(conn, "Sending invoke result "+strconv.FormatUint(uint64(promiseID), 10)+
					" of length "+strconv.Itoa(len(result)))
				s.transportMu.Lock()
				s.sendLocked(conn, promiseID|ResponseFlag, result)
				s.transportMu.Unlock()
			case s.invokedCallbackHandler != nil:
				shield := s.shield
				s.invokedCallbackHandler(conn, message, func(result Payload) {
					if !shield.acquire() {
						return
					}
					defer shield.release()
					s.logDebugHandle(conn, "Sending invoke result "+strconv.FormatUint(uint64(promiseID), 10)+
						" of length "+strconv.Itoa(len(result)))
					s.transportMu.Lock()
					s.sendLocked(conn, promiseID|ResponseFlag, result)
					s.transportMu.Unlock()
				})
			}
		}
	})
}

func (s *ServerConnection) handleError(conn Handle) {
	s.queue.enqueue(func() {
		if s.errorHandler != nil {
			s.errorHandler(conn)
		}
	})
}

func (s *ServerConnection) handleLog(conn Handle, level LogLevel, message, category string) {
	if s.logHandler != nil && level >= s.getLogLevel() {
		s.queue.enqueue(func() {
			// check again in case this changed since we were enqueued
			if s.logHandler != nil && level >= s.getLogLevel() {
				s.logHandler(conn, level, message, category)
			}
		})
	}
}

func (s *ServerConnection) logDebugHandle(conn Handle, message string) {
	s.handleLog(conn, LogDebug, message, defaultCategory)
}

func (s *ServerConnection) logInfoHandle(conn Handle, message string) {
	s.handleLog(conn, LogInfo, message, defaultCategory)
}

func (s *ServerConnection) OnReceived(handler ServerOnDataHandler) {
	s.receivedHandler = handler
}

func (s *ServerConnection) OnInvokedPromiseID(handler ServerOnInvokedPromiseIDHandler) {
	s.invokedPromiseIDHandler = handler
	s.invokedImmediateHandler = nil
	s.invokedCallbackHandler = nil
}

func (s *ServerConnection) OnInvokedImmediate(handler ServerOnInvokedImmediateHandler) {
	s.invokedPromiseIDHandler = nil
	s.invokedImmediateHandler = handler
	s.invokedCallbackHandler = nil
}

func (s *ServerConnection) OnInvokedCallback(handler ServerOnInvokedCallbackHandler) {
	s.invokedPromiseIDHandler = nil
	s.invokedImmediateHandler = nil
	s.invokedCallbackHandler = handler
}

func (s *ServerConnection) OnResult(handler ServerOnResultHandler) {
	s.resultHandler = handler
}

func (s *ServerConnection) OnConnect(handler ServerOnHandler) {
	s.connectHandler = handler
}

func (s *ServerConnection) OnDisconnect(handler ServerOnHandler) {
	s.disconnectHandler = handler
}

func (s *ServerConnection) OnError(handler ServerOnHandler) {
	s.errorHandler = handler
}

func (s *ServerConnection) OnLog(handler ServerOnLogHandler, level LogLevel) {
	s.adjustLogLevelForHandler(level)
	s.logHandler = handler
}

func (s *ServerConnection) SetLogLevel(level LogLevel) {
	s.setLogLevelLocked(level)
	s.transportMu.Lock()
	if s.transport != nil {
		s.transport.SetLogLevel(levelToTransport(level))
	}
	s.transportMu.Unlock()
}
