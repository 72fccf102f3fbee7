// Package admin exposes an HTTP control surface for a running line server:
// Prometheus metrics, health, the client list, kick and broadcast.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andy6609/tcp-line-server/internal/lineserver"
)

const maxBroadcastBody = 64 << 10

// Controller is the part of *lineserver.Server the admin surface drives.
type Controller interface {
	IsRunning() bool
	ClientCount() int
	Clients() []lineserver.ClientInfo
	Kick(id uint64) error
	BroadcastLine(text string) (int, error)
}

var _ Controller = (*lineserver.Server)(nil)

type Server struct {
	ctl    Controller
	logger *slog.Logger
	srv    *http.Server
}

func New(addr string, ctl Controller, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{ctl: ctl, logger: logger}

	router := httprouter.New()
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.GET("/healthz", s.handleHealth)
	router.GET("/clients", s.handleClients)
	router.POST("/clients/:id/kick", s.handleKick)
	router.POST("/broadcast", s.handleBroadcast)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// ListenAndServe blocks until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("admin server listening", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type clientsResponse struct {
	Count   int                     `json:"count"`
	Clients []lineserver.ClientInfo `json:"clients"`
}

type broadcastResponse struct {
	Delivered int      `json:"delivered"`
	Failed    []uint64 `json:"failed,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	if !s.ctl.IsRunning() {
		http.Error(w, "not running", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleClients(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	clients := s.ctl.Clients()
	writeJSON(w, http.StatusOK, clientsResponse{Count: len(clients), Clients: clients})
}

func (s *Server) handleKick(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	id, err := strconv.ParseUint(ps.ByName("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid client id"})
		return
	}
	if err := s.ctl.Kick(id); err != nil {
		if errors.Is(err, lineserver.ErrUnknownClient) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	s.logger.Info("client kicked via admin", "client_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBroadcastBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "read body"})
		return
	}
	text := strings.TrimRight(string(body), "\r\n")

	delivered, err := s.ctl.BroadcastLine(text)
	resp := broadcastResponse{Delivered: delivered}

	var be *lineserver.BroadcastError
	if errors.As(err, &be) {
		for _, f := range be.Failures {
			resp.Failed = append(resp.Failed, f.ClientID)
		}
	} else if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
