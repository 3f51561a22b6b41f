package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitChan[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for " + what)
		var zero T
		return zero
	}
}

func TestTCPTransportRoundTrip(t *testing.T) {
	server := NewServer(ServerConfig{Listen: TCPListen})
	type frameEvent struct {
		conn      uint32
		requestID uint32
		body      string
	}
	serverFrames := make(chan frameEvent, 4)
	serverConnects := make(chan uint32, 1)
	server.OnConnect(func(conn uint32) { serverConnects <- conn })
	server.OnData(func(conn, requestID uint32, body []byte) {
		serverFrames <- frameEvent{conn: conn, requestID: requestID, body: string(body)}
	})
	require.NoError(t, server.Listen(":9410"))
	defer server.Close()

	client := NewClient(ClientConfig{Dial: TCPDial})
	clientFrames := make(chan frameEvent, 4)
	client.OnData(func(conn, requestID uint32, body []byte) {
		clientFrames <- frameEvent{conn: conn, requestID: requestID, body: string(body)}
	})
	client.Connect(":9410")
	defer client.Close()

	peer := waitChan(t, serverConnects, "server accept")
	require.NotZero(t, peer)

	client.Send(0, 7, []byte("to server"))
	got := waitChan(t, serverFrames, "server data")
	assert.Equal(t, peer, got.conn)
	assert.Equal(t, uint32(7), got.requestID)
	assert.Equal(t, "to server", got.body)

	server.Send(peer, 0, []byte("to client"))
	back := waitChan(t, clientFrames, "client data")
	assert.Equal(t, uint32(0), back.requestID)
	assert.Equal(t, "to client", back.body)

	assert.Equal(t, 1, server.ActiveConnections())
}

func TestServerNoPeerSynthesizedForRequestsOnly(t *testing.T) {
	server := NewServer(ServerConfig{Listen: TCPListen})
	type noPeerEvent struct {
		conn      uint32
		requestID uint32
	}
	noPeer := make(chan noPeerEvent, 4)
	server.OnNoPeer(func(conn, requestID uint32) {
		noPeer <- noPeerEvent{conn: conn, requestID: requestID}
	})
	require.NoError(t, server.Listen(":9411"))
	defer server.Close()

	// A response for a missing peer is dropped silently; a request
	// must surface so its pending callback can be rejected.
	server.Send(99, 5|0x80000000, []byte("response"))
	server.Send(99, 5, []byte("request"))

	got := waitChan(t, noPeer, "no-peer event")
	assert.Equal(t, uint32(99), got.conn)
	assert.Equal(t, uint32(5), got.requestID)

	select {
	case extra := <-noPeer:
		t.Fatalf("unexpected extra no-peer event: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClientInvalidEndpointFailsFast(t *testing.T) {
	client := NewClient(ClientConfig{Dial: TCPDial})
	logs := make(chan string, 4)
	client.OnLog(func(_ uint32, level Level, message string) {
		if level == LevelError {
			select {
			case logs <- message:
			default:
			}
		}
	}, LevelError)

	result := client.Connect("no-port-here")
	defer client.Close()

	assert.Equal(t, ResultShuttingDown, result)
	msg := waitChan(t, logs, "permanent dial error log")
	assert.Contains(t, msg, "invalid address")
}

func TestClientRetriesUntilServerAppears(t *testing.T) {
	client := NewClient(ClientConfig{Dial: TCPDial})
	connected := make(chan struct{}, 1)
	client.OnConnect(func(uint32) { connected <- struct{}{} })
	result := client.Connect(":9412")
	defer client.Close()
	assert.Equal(t, ResultConnecting, result)

	// Let a few retry cycles elapse before the endpoint exists.
	time.Sleep(150 * time.Millisecond)

	server := NewServer(ServerConfig{Listen: TCPListen})
	require.NoError(t, server.Listen(":9412"))
	defer server.Close()

	waitChan(t, connected, "client connect after server start")
}

func TestClientSendBeforeEstablishmentIsQueued(t *testing.T) {
	server := NewServer(ServerConfig{Listen: TCPListen})
	bodies := make(chan string, 4)
	server.OnData(func(_, _ uint32, body []byte) { bodies <- string(body) })
	require.NoError(t, server.Listen(":9413"))
	defer server.Close()

	client := NewClient(ClientConfig{Dial: TCPDial})
	client.Send(0, 0, []byte("queued early"))
	client.Connect(":9413")
	defer client.Close()

	assert.Equal(t, "queued early", waitChan(t, bodies, "queued frame"))
}

func TestLatestOnlyKeepsOnePeer(t *testing.T) {
	server := NewServer(ServerConfig{Listen: TCPListen, LatestOnly: true})
	var mu sync.Mutex
	var disconnected []uint32
	connects := make(chan uint32, 4)
	server.OnConnect(func(conn uint32) {
		// The displaced client reconnects, so accepts keep coming;
		// never block the accept loop on the test channel.
		select {
		case connects <- conn:
		default:
		}
	})
	server.OnDisconnect(func(conn uint32) {
		mu.Lock()
		disconnected = append(disconnected, conn)
		mu.Unlock()
	})
	require.NoError(t, server.Listen(":9414"))
	defer server.Close()

	c1 := NewClient(ClientConfig{Dial: TCPDial})
	c1.Connect(":9414")
	defer c1.Close()
	first := waitChan(t, connects, "first accept")

	c2 := NewClient(ClientConfig{Dial: TCPDial})
	c2.Connect(":9414")
	defer c2.Close()
	waitChan(t, connects, "second accept")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, h := range disconnected {
			if h == first {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return server.ActiveConnections() == 1
	}, 5*time.Second, 10*time.Millisecond)
}
