package transport

import (
	"fmt"
	"net"
	"os"
	"runtime"
)

// The pipe transport serves filesystem endpoints over Unix-domain
// sockets. The factory maps bare endpoint names onto platform paths;
// this layer sees the full path.

// PipeDial establishes one stream to the pipe at path.
func PipeDial(path string) (StreamConn, error) {
	if runtime.GOOS == "windows" {
		return nil, &PermanentError{Err: fmt.Errorf("pipe transport is not supported on windows")}
	}
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	return conn.(*net.UnixConn), nil
}

// PipeListen binds the pipe at path. Any stale socket file left by a
// crashed server is removed before binding. With allowMultiuser every
// local user gets read+write on the endpoint; otherwise other users
// may observe it but not connect.
func PipeListen(path string, allowMultiuser bool) (Listener, error) {
	if runtime.GOOS == "windows" {
		return nil, fmt.Errorf("pipe transport is not supported on windows")
	}
	os.Remove(path)
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	mode := os.FileMode(0644)
	if allowMultiuser {
		mode = 0666
	}
	if err := os.Chmod(path, mode); err != nil {
		l.Close()
		return nil, err
	}
	return pipeListener{netListener{l: l}, path}, nil
}

// pipeListener removes the socket file once the endpoint closes.
type pipeListener struct {
	netListener
	path string
}

func (p pipeListener) Close() error {
	err := p.netListener.Close()
	os.Remove(p.path)
	return err
}
