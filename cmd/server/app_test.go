package main

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/andy6609/tcp-line-server/internal/lineserver"
)

type fakeServer struct {
	mu      sync.Mutex
	message lineserver.MessageFunc
	ids     []uint64
	sent    map[uint64][]string
	gone    map[uint64]bool
}

func (f *fakeServer) OnServerStarted(lineserver.StartedFunc)         {}
func (f *fakeServer) OnServerClosed(lineserver.ClosedFunc)           {}
func (f *fakeServer) OnClientConnected(lineserver.ConnectFunc)       {}
func (f *fakeServer) OnClientDisconnected(lineserver.DisconnectFunc) {}
func (f *fakeServer) OnMessageReceived(fn lineserver.MessageFunc)    { f.message = fn }
func (f *fakeServer) ListClientIDs() []uint64                        { return f.ids }

func (f *fakeServer) SendLine(id uint64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[id] {
		return fmt.Errorf("send_line to client %d: %w", id, lineserver.ErrUnknownClient)
	}
	if f.sent == nil {
		f.sent = make(map[uint64][]string)
	}
	f.sent[id] = append(f.sent[id], text)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestApp_RelaySkipsSenderAndVanishedClients(t *testing.T) {
	srv := &fakeServer{ids: []uint64{1, 2, 3}, gone: map[uint64]bool{3: true}}
	newApp(srv, quietLogger(), true).attach()

	srv.message("hello", 1)

	assert.Empty(t, srv.sent[1])
	assert.Equal(t, []string{"1: hello"}, srv.sent[2])
	assert.Empty(t, srv.sent[3])
}

func TestApp_NoRelayByDefault(t *testing.T) {
	srv := &fakeServer{ids: []uint64{1, 2}}
	newApp(srv, quietLogger(), false).attach()

	srv.message("hello", 1)
	assert.Empty(t, srv.sent)
}

func TestFormatRelay(t *testing.T) {
	assert.Equal(t, "42: hi there", formatRelay(42, "hi there"))
}
