package main

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/andy6609/tcp-line-server/internal/lineserver"
)

// lineServer is what the sample application needs from the core.
type lineServer interface {
	OnServerStarted(lineserver.StartedFunc)
	OnServerClosed(lineserver.ClosedFunc)
	OnClientConnected(lineserver.ConnectFunc)
	OnClientDisconnected(lineserver.DisconnectFunc)
	OnMessageReceived(lineserver.MessageFunc)
	ListClientIDs() []uint64
	SendLine(id uint64, text string) error
}

// app logs every server event and, in relay mode, forwards each line to
// every other connected client as "<id>: <text>".
type app struct {
	srv    lineServer
	logger *slog.Logger
	relay  bool
}

func newApp(srv lineServer, logger *slog.Logger, relay bool) *app {
	return &app{srv: srv, logger: logger, relay: relay}
}

func (a *app) attach() {
	a.srv.OnServerStarted(func(port int) {
		a.logger.Info("listening", "port", port, "relay", a.relay)
	})
	a.srv.OnServerClosed(func(port int) {
		a.logger.Info("stopped listening", "port", port)
	})
	a.srv.OnClientConnected(func(id uint64, remote lineserver.Remote) {
		a.logger.Debug("event: connected", "client_id", id, "remote", remote.String())
	})
	a.srv.OnClientDisconnected(func(id uint64, remote lineserver.Remote) {
		a.logger.Debug("event: disconnected", "client_id", id, "remote", remote.String())
	})
	a.srv.OnMessageReceived(a.onMessage)
}

func (a *app) onMessage(text string, from uint64) {
	a.logger.Debug("event: message", "client_id", from, "bytes", len(text))
	if !a.relay {
		return
	}
	line := formatRelay(from, text)
	for _, id := range a.srv.ListClientIDs() {
		if id == from {
			continue
		}
		if err := a.srv.SendLine(id, line); err != nil && !errors.Is(err, lineserver.ErrUnknownClient) {
			a.logger.Warn("relay failed", "client_id", id, "error", err)
		}
	}
}

func formatRelay(from uint64, text string) string {
	return strconv.FormatUint(from, 10) + ": " + text
}
