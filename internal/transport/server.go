package transport

import (
	"sync"
	"sync/atomic"

	"github.com/twitchtv/twitch-native-ipc/pkg/ipc/frame"
)

// Server binds an endpoint and serves any number of accepted peers.
// One goroutine accepts, one drains the write queue, and each peer
// gets a read goroutine feeding the frame decoder.
type Server struct {
	listen         func(endpoint string, allowMultiuser bool) (Listener, error)
	latestOnly     bool
	allowMultiuser bool

	mu       sync.Mutex
	status   status
	listener Listener

	peersMu    sync.Mutex
	peers      map[uint32]*peer
	lastHandle atomic.Uint32

	wq         *writeQueue
	stop       chan struct{}
	writerDone chan struct{}
	acceptDone chan struct{}
	readers    sync.WaitGroup
	closeOnce  sync.Once

	onConnect    HandleFunc
	onDisconnect HandleFunc
	onData       DataFunc
	onNoPeer     NoPeerFunc
	onLog        LogFunc

	logMu    sync.Mutex
	logLevel Level
}

// ServerConfig configures a server transport.
type ServerConfig struct {
	// Listen binds the endpoint and returns the acceptor.
	Listen func(endpoint string, allowMultiuser bool) (Listener, error)

	// LatestOnly shuts down all existing peers whenever a new one is
	// accepted, keeping at most one live connection.
	LatestOnly bool

	// AllowMultiuser grants every local user read+write on the
	// endpoint (pipe transport only).
	AllowMultiuser bool
}

func NewServer(config ServerConfig) *Server {
	return &Server{
		listen:         config.Listen,
		latestOnly:     config.LatestOnly,
		allowMultiuser: config.AllowMultiuser,
		peers:          make(map[uint32]*peer),
		wq:             newWriteQueue(),
		stop:           make(chan struct{}),
		writerDone:     make(chan struct{}),
		acceptDone:     make(chan struct{}),
		logLevel:       LevelWarning,
	}
}

func (t *Server) OnConnect(fn HandleFunc)    { t.onConnect = fn }
func (t *Server) OnDisconnect(fn HandleFunc) { t.onDisconnect = fn }
func (t *Server) OnData(fn DataFunc)         { t.onData = fn }
func (t *Server) OnNoPeer(fn NoPeerFunc)     { t.onNoPeer = fn }

func (t *Server) OnLog(fn LogFunc, level Level) {
	t.SetLogLevel(level)
	t.onLog = fn
}

func (t *Server) SetLogLevel(level Level) {
	t.logMu.Lock()
	t.logLevel = level
	t.logMu.Unlock()
}

func (t *Server) logf(conn uint32, level Level, message string) {
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

// Listen binds the endpoint and starts serving. A bind or listen
// failure leaves the transport in a terminal listen-failed state.
func (t *Server) Listen(endpoint string) error {
	t.logf(0, LevelInfo, "Listening on endpoint "+endpoint)

	l, err := t.listen(endpoint, t.allowMultiuser)
	if err != nil {
		t.mu.Lock()
		t.status = statusListenFailed
		t.mu.Unlock()
		t.logf(0, LevelError, "Bind failed: "+err.Error())
		return err
	}

	t.mu.Lock()
	t.status = statusListening
	t.listener = l
	t.mu.Unlock()

	go t.acceptLoop(l)
	go t.writeLoop()
	t.logf(0, LevelInfo, "Started successfully")
	return nil
}

// Send queues a frame for one peer.
func (t *Server) Send(conn, requestID uint32, body []byte) {
	t.wq.push(conn, requestID, body)
}

// Broadcast queues a fire-and-forget frame for every current peer.
func (t *Server) Broadcast(body []byte) {
	for _, p := range t.snapshotPeers() {
		t.Send(p.handle, 0, body)
	}
}

// ActiveConnections returns the number of live peers.
func (t *Server) ActiveConnections() int {
	t.peersMu.Lock()
	defer t.peersMu.Unlock()
	return len(t.peers)
}

// Close stops accepting, shuts down every peer write-side first, and
// waits for all transport goroutines. Peer teardown during Close does
// not raise disconnect events.
func (t *Server) Close() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		if t.status == statusListening {
			t.status = statusDisconnecting
		}
		listener := t.listener
		t.listener = nil
		t.mu.Unlock()

		t.logf(0, LevelInfo, "Shutting down")
		close(t.stop)
		if listener == nil {
			t.mu.Lock()
			t.status = statusDisconnected
			t.mu.Unlock()
			return
		}
		listener.Close()
		<-t.acceptDone

		t.peersMu.Lock()
		peers := t.peers
		t.peers = make(map[uint32]*peer)
		t.peersMu.Unlock()
		for _, p := range peers {
			p.conn.CloseWrite()
			p.conn.Close()
		}

		t.readers.Wait()
		<-t.writerDone

		t.mu.Lock()
		t.status = statusDisconnected
		t.mu.Unlock()
	})
}

func (t *Server) snapshotPeers() []*peer {
	t.peersMu.Lock()
	defer t.peersMu.Unlock()
	peers := make([]*peer, 0, len(t.peers))
	for _, p := range t.peers {
		peers = append(peers, p)
	}
	return peers
}

func (t *Server) getPeer(handle uint32) *peer {
	t.peersMu.Lock()
	defer t.peersMu.Unlock()
	return t.peers[handle]
}

// removePeer takes the peer out of the table; the caller only raises
// the disconnect event if it was still present.
func (t *Server) removePeer(handle uint32) bool {
	t.peersMu.Lock()
	defer t.peersMu.Unlock()
	if _, ok := t.peers[handle]; !ok {
		return false
	}
	delete(t.peers, handle)
	return true
}

func (t *Server) stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

func (t *Server) acceptLoop(l Listener) {
	defer close(t.acceptDone)
	for {
		conn, err := l.Accept()
		if err != nil {
			if t.stopped() || locallyClosed(err) {
				return
			}
			t.logf(0, LevelWarning, "Accept failed: "+err.Error())
			continue
		}

		if t.latestOnly {
			t.peersMu.Lock()
			existing := t.peers
			t.peers = make(map[uint32]*peer)
			t.peersMu.Unlock()
			for _, p := range existing {
				p.conn.CloseWrite()
				p.conn.Close()
				if t.onDisconnect != nil {
					t.onDisconnect(p.handle)
				}
			}
		}

		p := newPeer(conn, nextConnHandle(&t.lastHandle))
		t.peersMu.Lock()
		t.peers[p.handle] = p
		t.peersMu.Unlock()

		t.logf(p.handle, LevelDebug, "Client connected")
		if t.onConnect != nil {
			t.onConnect(p.handle)
		}

		t.readers.Add(1)
		go t.readPeer(p)
	}
}

func (t *Server) readPeer(p *peer) {
	defer t.readers.Done()
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
			if !t.stopped() && t.removePeer(p.handle) {
				if t.onDisconnect != nil {
					t.onDisconnect(p.handle)
				}
			}
			return
		}
	}
}

func (t *Server) writeLoop() {
	defer close(t.writerDone)
	for {
		for {
			e, ok := t.wq.pop()
			if !ok {
				break
			}
			p := t.getPeer(e.conn)
			if p == nil {
				// The peer vanished before the queue drained. A
				// request still has a pending callback upstream;
				// a response for a missing peer is just dropped.
				if frame.IsRequest(e.requestID) && t.onNoPeer != nil {
					t.onNoPeer(e.conn, e.requestID)
				}
				continue
			}
			if _, err := p.conn.Write(e.frame); err != nil {
				if !peerClosed(err) && !locallyClosed(err) {
					t.logf(p.handle, LevelError, "Write failed: "+err.Error())
				}
				p.conn.Close()
				if !t.stopped() && t.removePeer(p.handle) {
					if t.onDisconnect != nil {
						t.onDisconnect(p.handle)
					}
				}
			}
		}
		select {
		case <-t.wq.wake:
		case <-t.stop:
			return
		}
	}
}
