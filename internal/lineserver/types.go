package lineserver

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// State is the lifecycle position of a Session.
type State int32

const (
	StateActive State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Remote identifies the peer end of a client connection.
type Remote struct {
	Host string
	Port int
}

func (r Remote) String() string {
	if r.Port == 0 {
		return r.Host
	}
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

func remoteOf(addr net.Addr) Remote {
	if addr == nil {
		return Remote{}
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return Remote{Host: tcp.IP.String(), Port: tcp.Port}
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return Remote{Host: addr.String()}
	}
	p, _ := strconv.Atoi(port)
	return Remote{Host: host, Port: p}
}

func portOf(addr net.Addr) int {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return remoteOf(addr).Port
}

// ClientInfo is a point-in-time view of one registered client.
type ClientInfo struct {
	ID     uint64 `json:"id"`
	Remote string `json:"remote"`
	State  string `json:"state"`
}

var (
	ErrUnknownClient  = errors.New("unknown client")
	ErrServerRunning  = errors.New("server already running")
	ErrTooManyClients = errors.New("too many clients")
)

// BindError reports that the listening socket could not be opened.
type BindError struct {
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind port %d: %v", e.Port, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// WriteError reports a failed write or flush to one client.
type WriteError struct {
	ClientID uint64
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to client %d: %v", e.ClientID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// BroadcastError collects the recipients a broadcast could not reach.
type BroadcastError struct {
	Failures []*WriteError
}

func (e *BroadcastError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("broadcast: %d failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *BroadcastError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}
