package server

import (
	"errors"
	"net"

	"github.com/zircuit-labs/zkr-taskworker/xerrors/stacktrace"
)

// availablePort asks the kernel for a free TCP port.
func availablePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, stacktrace.Wrap(err)
	}
	defer l.Close()

	if addr, ok := l.Addr().(*net.TCPAddr); ok {
		return addr.Port, nil
	}
	return 0, stacktrace.Wrap(errors.New("listener address is not tcp"))
}
