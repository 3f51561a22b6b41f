package transport

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Client dials an endpoint and keeps redialing until it succeeds or
// the transport is closed. One goroutine runs the connect/reconnect
// state machine and the read loop; a second drains the write queue
// while a stream is established.
type Client struct {
	dial func(endpoint string) (StreamConn, error)

	mu       sync.Mutex
	status   status
	endpoint string
	conn     StreamConn

	wq         *writeQueue
	lastHandle atomic.Uint32

	stop        chan struct{}
	done        chan struct{}
	started     chan struct{}
	startedOnce sync.Once

	onConnect    HandleFunc
	onDisconnect HandleFunc
	onData       DataFunc
	onError      HandleFunc
	onLog        LogFunc

	logMu    sync.Mutex
	logLevel Level
}

// ClientConfig configures a client transport.
type ClientConfig struct {
	// Dial establishes one stream to the endpoint.
	Dial func(endpoint string) (StreamConn, error)
}

func NewClient(config ClientConfig) *Client {
	return &Client{
		dial:     config.Dial,
		wq:       newWriteQueue(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		started:  make(chan struct{}),
		logLevel: LevelWarning,
	}
}

func (t *Client) OnConnect(fn HandleFunc)    { t.onConnect = fn }
func (t *Client) OnDisconnect(fn HandleFunc) { t.onDisconnect = fn }
func (t *Client) OnData(fn DataFunc)         { t.onData = fn }
func (t *Client) OnError(fn HandleFunc)      { t.onError = fn }

func (t *Client) OnLog(fn LogFunc, level Level) {
	t.SetLogLevel(level)
	t.onLog = fn
}

func (t *Client) SetLogLevel(level Level) {
	t.logMu.Lock()
	t.logLevel = level
	t.logMu.Unlock()
}

func (t *Client) logf(conn uint32, level Level, message string) {
	if t.onLog == nil {
		return
	}
	t.logMu.Lock()
	min := t.logLevel
	t.logMu.Unlock()
	if level >= min {
		t.onLog(conn, level, message)
	}
}

// Connect starts the transport goroutine and returns once the initial
// dial attempt has completed; any retries after it run asynchronously.
// The result says how far the attempt got.
func (t *Client) Connect(endpoint string) ConnectResult {
	t.logf(0, LevelInfo, "Connecting to "+endpoint)

	t.mu.Lock()
	t.status = statusConnecting
	t.endpoint = endpoint
	t.mu.Unlock()

	go t.run()
	<-t.started

	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.status {
	case statusConnecting:
		return ResultConnecting
	case statusConnected:
		return ResultConnected
	case statusDisconnected, statusDisconnecting:
		return ResultShuttingDown
	}
	return ResultFailed
}

// Send queues a frame. Frames queued while disconnected are delivered
// after the next successful (re)establishment.
func (t *Client) Send(conn, requestID uint32, body []byte) {
	t.wq.push(conn, requestID, body)
}

// Close signals the transport goroutines and waits for them to exit.
func (t *Client) Close() {
	t.mu.Lock()
	switch t.status {
	case statusConnected, statusWriteFailed:
		t.status = statusDisconnecting
	case statusConnecting:
		t.status = statusDisconnected
	}
	conn := t.conn
	t.mu.Unlock()

	t.logf(0, LevelDebug, "Waiting for disconnect to complete")
	close(t.stop)
	if conn != nil {
		conn.Close()
	}
	<-t.done

	t.mu.Lock()
	t.status = statusDisconnected
	t.mu.Unlock()
}

func (t *Client) signalStarted() {
	t.startedOnce.Do(func() { close(t.started) })
}

func (t *Client) getStatus() status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Client) run() {
	defer close(t.done)
	defer t.signalStarted()

	// Retry cadence: the counter grows by one per failed dial and is
	// capped at 1000; the delay is counter/10 milliseconds, so the
	// schedule ramps from 2ms to a 100ms ceiling.
	retryDelay := 20

	for {
		conn, err := t.dial(t.endpoint)
		if err != nil {
			var perm *PermanentError
			if errors.As(err, &perm) {
				t.logf(0, LevelError, perm.Error())
				t.mu.Lock()
				if t.status == statusConnecting {
					t.status = statusDisconnected
				}
				t.mu.Unlock()
				return
			}
			t.signalStarted()
			if t.getStatus() != statusConnecting {
				return
			}
			if retryDelay < 1000 {
				retryDelay++
			}
			select {
			case <-time.After(time.Duration(retryDelay/10) * time.Millisecond):
				continue
			case <-t.stop:
				return
			}
		}

		t.mu.Lock()
		if t.status != statusConnecting {
			t.mu.Unlock()
			conn.Close()
			return
		}
		t.status = statusConnected
		t.conn = conn
		p := newPeer(conn, nextConnHandle(&t.lastHandle))
		t.mu.Unlock()

		t.signalStarted()
		t.logf(0, LevelInfo, "Successfully connected to "+t.endpoint)
		if t.onConnect != nil {
			t.onConnect(0)
		}

		writerStop := make(chan struct{})
		writerDone := make(chan struct{})
		go t.writeLoop(p, writerStop, writerDone)

		t.readLoop(p)

		close(writerStop)
		<-writerDone

		t.mu.Lock()
		t.conn = nil
		remoteClosed := t.status == statusConnected
		if remoteClosed {
			t.status = statusConnecting
		}
		finished := t.status
		t.mu.Unlock()

		if remoteClosed {
			t.logf(0, LevelDebug, "Disconnected by server")
			if t.onDisconnect != nil {
				t.onDisconnect(0)
			}
			continue
		}

		t.logf(0, LevelInfo, "Connection finished with status "+finished.String())
		return
	}
}

func (t *Client) readLoop(p *peer) {
	buf := make([]byte, 64*1024)
	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			p.dec.Feed(buf[:n], func(requestID uint32, body []byte) {
				if t.onData != nil {
					t.onData(p.handle, requestID, body)
				}
			})
		}
		if err != nil {
			if peerClosed(err) {
				t.logf(p.handle, LevelInfo, "Stream closed by peer: "+err.Error())
			} else if !locallyClosed(err) {
				t.logf(p.handle, LevelWarning, "Stream closed with error: "+err.Error())
			}
			p.conn.Close()
			return
		}
	}
}

func (t *Client) writeLoop(p *peer, stop, done chan struct{}) {
	defer close(done)
	for {
		for {
			e, ok := t.wq.pop()
			if !ok {
				break
			}
			// A frame addressed to a prior establishment of this
			// stream is stale; drop it.
			if e.conn != 0 && e.conn != p.handle {
				continue
			}
			if _, err := p.conn.Write(e.frame); err != nil {
				if peerClosed(err) || locallyClosed(err) {
					p.conn.Close()
					return
				}
				t.logf(0, LevelError, "Write failed: "+err.Error())
				t.mu.Lock()
				if t.status == statusConnected {
					t.status = statusWriteFailed
				}
				t.mu.Unlock()
				if t.onError != nil {
					t.onError(0)
				}
				p.conn.Close()
				return
			}
		}
		select {
		case <-t.wq.wake:
		case <-stop:
			return
		}
	}
}
