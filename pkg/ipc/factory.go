package ipc

import (
	"runtime"

	"github.com/twitchtv/twitch-native-ipc/internal/transport"
)

// The factory maps a bare pipe endpoint name onto the platform's
// rendezvous path. TCP and WebSocket endpoints are "addr:port"
// strings and pass through untouched.
func pipeNameForEndpoint(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	if runtime.GOOS == "windows" {
		return `\\.\pipe\` + endpoint
	}
	return "/tmp/" + endpoint
}

func newPipeClientTransport() *transport.Client {
	return transport.NewClient(transport.ClientConfig{Dial: transport.PipeDial})
}

func newTCPClientTransport() *transport.Client {
	return transport.NewClient(transport.ClientConfig{Dial: transport.TCPDial})
}

func newWSClientTransport() *transport.Client {
	return transport.NewClient(transport.ClientConfig{Dial: transport.WSDial})
}

func newPipeServerTransport(latestOnly, allowMultiuser bool) func() *transport.Server {
	return func() *transport.Server {
		return transport.NewServer(transport.ServerConfig{
			Listen:         transport.PipeListen,
			LatestOnly:     latestOnly,
			AllowMultiuser: allowMultiuser,
		})
	}
}

func newTCPServerTransport(latestOnly bool) func() *transport.Server {
	return func() *transport.Server {
		return transport.NewServer(transport.ServerConfig{
			Listen:     transport.TCPListen,
			LatestOnly: latestOnly,
		})
	}
}

func newWSServerTransport(latestOnly bool) func() *transport.Server {
	return func() *transport.Server {
		return transport.NewServer(transport.ServerConfig{
			Listen:     transport.WSListen,
			LatestOnly: latestOnly,
		})
	}
}

// NewClientConnection dials the named pipe endpoint.
func NewClientConnection(endpoint string) *ClientConnection {
	return newClientConnection(newPipeClientTransport, pipeNameForEndpoint(endpoint))
}

// NewServerConnection serves the named pipe endpoint for a single
// peer at a time; a newly accepted peer displaces the previous one.
func NewServerConnection(endpoint string, allowMultiuserAccess bool) *SingleServerConnection {
	return newSingleServerConnection(
		newServerConnection(newPipeServerTransport(true, allowMultiuserAccess), pipeNameForEndpoint(endpoint)))
}

// NewMultiServerConnection serves the named pipe endpoint for any
// number of peers.
func NewMultiServerConnection(endpoint string, allowMultiuserAccess bool) *ServerConnection {
	return newServerConnection(newPipeServerTransport(false, allowMultiuserAccess), pipeNameForEndpoint(endpoint))
}

// NewClientConnectionTCP dials a TCP "addr:port" endpoint; an empty
// addr means loopback.
func NewClientConnectionTCP(endpoint string) *ClientConnection {
	return newClientConnection(newTCPClientTransport, endpoint)
}

// NewServerConnectionTCP serves a TCP endpoint for a single peer at a
// time.
func NewServerConnectionTCP(endpoint string) *SingleServerConnection {
	return newSingleServerConnection(
		newServerConnection(newTCPServerTransport(true), endpoint))
}

// NewMultiServerConnectionTCP serves a TCP endpoint for any number of
// peers.
func NewMultiServerConnectionTCP(endpoint string) *ServerConnection {
	return newServerConnection(newTCPServerTransport(false), endpoint)
}

// NewClientConnectionWebSocket dials a WebSocket "addr:port" endpoint.
func NewClientConnectionWebSocket(endpoint string) *ClientConnection {
	return newClientConnection(newWSClientTransport, endpoint)
}

// NewServerConnectionWebSocket serves a WebSocket endpoint for a
// single peer at a time.
func NewServerConnectionWebSocket(endpoint string) *SingleServerConnection {
	return newSingleServerConnection(
		newServerConnection(newWSServerTransport(true), endpoint))
}

// NewMultiServerConnectionWebSocket serves a WebSocket endpoint for
// any number of peers.
func NewMultiServerConnectionWebSocket(endpoint string) *ServerConnection {
	return newServerConnection(newWSServerTransport(false), endpoint)
}
