package ipc

import "sync/atomic"

// SingleServerConnection is a single-peer facade over the multi-peer
// server: it latches onto each newly accepted peer (the factories
// build it on a server where a new peer displaces the previous one)
// and filters received, invoked and result events from any other
// peer, so it exposes the client-form Connection surface. Connect,
// disconnect and error events are passed on for every peer. On-wire
// behavior is identical to the multi server.
type SingleServerConnection struct {
	conn    *ServerConnection
	latched atomic.Uint32
}

var _ Connection = (*SingleServerConnection)(nil)

func newSingleServerConnection(conn *ServerConnection) *SingleServerConnection {
	s := &SingleServerConnection{conn: conn}
	conn.OnConnect(func(handle Handle) {
		s.latched.Store(uint32(handle))
	})
	return s
}

func (s *SingleServerConnection) handle() Handle {
	return Handle(s.latched.Load())
}

func (s *SingleServerConnection) Connect() {
	s.conn.Connect()
}

func (s *SingleServerConnection) Disconnect() {
	s.conn.Disconnect()
}

func (s *SingleServerConnection) Close() {
	s.conn.Close()
}

func (s *SingleServerConnection) Send(message Payload) {
	if conn := s.handle(); conn != 0 {
		s.conn.Send(conn, message)
	}
}

func (s *SingleServerConnection) Invoke(message Payload) Handle {
	if conn := s.handle(); conn != 0 {
		return s.conn.Invoke(conn, message)
	}
	return 0
}

func (s *SingleServerConnection) InvokeWithCallback(message Payload, onResult PromiseCallback) {
	if conn := s.handle(); conn != 0 {
		s.conn.InvokeWithCallback(conn, message, onResult)
	}
}

func (s *SingleServerConnection) SendResult(conn Handle, promiseID Handle, message Payload) {
	if latched := s.handle(); latched != 0 && latched == conn {
		s.conn.SendResult(latched, promiseID, message)
	}
}

func (s *SingleServerConnection) OnReceived(handler OnDataHandler) {
	if handler == nil {
		s.conn.OnReceived(nil)
		return
	}
	s.conn.OnReceived(func(conn Handle, message Payload) {
		if latched := s.handle(); latched != 0 && latched == conn {
			handler(message)
		}
	})
}

func (s *SingleServerConnection) OnInvokedPromiseID(handler OnInvokedPromiseIDHandler) {
	if handler == nil {
		s.conn.OnInvokedCallback(nil)
		return
	}
	s.conn.OnInvokedPromiseID(func(conn Handle, promiseID Handle, message Payload) {
		if latched := s.handle(); latched != 0 && latched == conn {
			handler(latched, promiseID, message)
		}
	})
}

func (s *SingleServerConnection) OnInvokedImmediate(handler OnInvokedImmediateHandler) {
	if handler == nil {
		s.conn.OnInvokedCallback(nil)
		return
	}
	s.conn.OnInvokedImmediate(func(conn Handle, message Payload) Payload {
		if latched := s.handle(); latched != 0 && latched == conn {
			return handler(message)
		}
		return nil
	})
}

func (s *SingleServerConnection) OnInvokedCallback(handler OnInvokedCallbackHandler) {
	if handler == nil {
		s.conn.OnInvokedCallback(nil)
		return
	}
	s.conn.OnInvokedCallback(func(conn Handle, message Payload, callback ResultCallback) {
		if latched := s.handle(); latched != 0 && latched == conn {
			handler(message, callback)
		}
	})
}

func (s *SingleServerConnection) OnResult(handler OnResultHandler) {
	if handler == nil {
		s.conn.OnResult(nil)
		return
	}
	s.conn.OnResult(func(conn Handle, promiseID Handle, message Payload) {
		if latched := s.handle(); latched != 0 && latched == conn {
			handler(promiseID, message)
		}
	})
}

func (s *SingleServerConnection) OnConnect(handler OnHandler) {
	if handler == nil {
		s.conn.OnConnect(func(handle Handle) {
			s.latched.Store(uint32(handle))
		})
		return
	}
	s.conn.OnConnect(func(handle Handle) {
		s.latched.Store(uint32(handle))
		handler()
	})
}

func (s *SingleServerConnection) OnDisconnect(handler OnHandler) {
	if handler == nil {
		s.conn.OnDisconnect(nil)
		return
	}
	s.conn.OnDisconnect(func(Handle) {
		handler()
	})
}

func (s *SingleServerConnection) OnError(handler OnHandler) {
	if handler == nil {
		s.conn.OnError(nil)
		return
	}
	s.conn.OnError(func(Handle) {
		handler()
	})
}

func (s *SingleServerConnection) OnLog(handler OnLogHandler, level LogLevel) {
	if handler == nil {
		s.conn.OnLog(nil, level)
		return
	}
	s.conn.OnLog(func(_ Handle, level LogLevel, message, category string) {
		handler(level, message, category)
	}, level)
}

func (s *SingleServerConnection) SetLogLevel(level LogLevel) {
	s.conn.SetLogLevel(level)
}
