package transport

import (
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket carrier for the frame protocol. Frames are written as
// binary messages; the reader feeds message bytes straight into the
// decoder, so message boundaries need not align with frame boundaries.

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WSDial establishes one WebSocket stream to the endpoint.
func WSDial(endpoint string) (StreamConn, error) {
	host, port, err := splitEndpoint(endpoint, false)
	if err != nil {
		return nil, &PermanentError{Err: err}
	}
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, strconv.Itoa(port)), Path: "/"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

// WSListen binds the endpoint and upgrades inbound HTTP connections.
// The multiuser flag has no meaning for WebSocket.
func WSListen(endpoint string, _ bool) (Listener, error) {
	host, port, err := splitEndpoint(endpoint, true)
	if err != nil {
		return nil, err
	}
	l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}

	wl := &wsListener{
		connCh: make(chan StreamConn, 16),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", wl.handleUpgrade)
	wl.server = &http.Server{Handler: mux}
	go wl.server.Serve(l)
	return wl, nil
}

type wsListener struct {
	server *http.Server
	connCh chan StreamConn
	mu     sync.Mutex
	closed bool
}

func (w *wsListener) handleUpgrade(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		conn.Close()
		return
	}
	select {
	case w.connCh <- &wsConn{conn: conn}:
	default:
		conn.Close()
	}
}

func (w *wsListener) Accept() (StreamConn, error) {
	conn, ok := <-w.connCh
	if !ok {
		return nil, net.ErrClosed
	}
	return conn, nil
}

func (w *wsListener) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.connCh)
	w.mu.Unlock()
	return w.server.Close()
}

// wsConn adapts a websocket connection to the byte-stream interface
// the transports consume.
type wsConn struct {
	conn    *websocket.Conn
	reader  io.Reader
	writeMu sync.Mutex
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			messageType, r, err := c.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// CloseWrite sends the close handshake so the peer reads EOF.
func (c *wsConn) CloseWrite() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(time.Second)
	return c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
