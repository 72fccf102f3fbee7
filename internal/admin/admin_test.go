package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andy6609/tcp-line-server/internal/lineserver"
)

type fakeController struct {
	running   bool
	clients   []lineserver.ClientInfo
	kicked    []uint64
	broadcast []string
	failed    []uint64
}

func (f *fakeController) IsRunning() bool                  { return f.running }
func (f *fakeController) ClientCount() int                 { return len(f.clients) }
func (f *fakeController) Clients() []lineserver.ClientInfo { return f.clients }

func (f *fakeController) Kick(id uint64) error {
	for _, c := range f.clients {
		if c.ID == id {
			f.kicked = append(f.kicked, id)
			return nil
		}
	}
	return fmt.Errorf("kick client %d: %w", id, lineserver.ErrUnknownClient)
}

func (f *fakeController) BroadcastLine(text string) (int, error) {
	f.broadcast = append(f.broadcast, text)
	if len(f.failed) == 0 {
		return len(f.clients), nil
	}
	be := &lineserver.BroadcastError{}
	for _, id := range f.failed {
		be.Failures = append(be.Failures, &lineserver.WriteError{ClientID: id, Err: errors.New("reset")})
	}
	return len(f.clients) - len(f.failed), be
}

func newTestAdmin(t *testing.T, ctl *fakeController) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "admin_test_total"}))
	return New(":0", ctl, reg, nil).Handler()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	ctl := &fakeController{running: true}
	h := newTestAdmin(t, ctl)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", "").Code)

	ctl.running = false
	assert.Equal(t, http.StatusServiceUnavailable, do(h, http.MethodGet, "/healthz", "").Code)
}

func TestClients(t *testing.T) {
	ctl := &fakeController{clients: []lineserver.ClientInfo{
		{ID: 1, Remote: "127.0.0.1:50000", State: "active"},
		{ID: 4, Remote: "127.0.0.1:50001", State: "closing"},
	}}
	rec := do(newTestAdmin(t, ctl), http.MethodGet, "/clients", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp clientsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, ctl.clients, resp.Clients)
}

func TestKick(t *testing.T) {
	ctl := &fakeController{clients: []lineserver.ClientInfo{{ID: 3}}}
	h := newTestAdmin(t, ctl)

	assert.Equal(t, http.StatusNoContent, do(h, http.MethodPost, "/clients/3/kick", "").Code)
	assert.Equal(t, []uint64{3}, ctl.kicked)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPost, "/clients/9/kick", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/clients/abc/kick", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodGet, "/clients/3/kick", "").Code)
}

func TestBroadcast(t *testing.T) {
	ctl := &fakeController{clients: []lineserver.ClientInfo{{ID: 1}, {ID: 2}, {ID: 3}}}
	h := newTestAdmin(t, ctl)

	rec := do(h, http.MethodPost, "/broadcast", "maintenance at noon\n")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp broadcastResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Delivered)
	assert.Empty(t, resp.Failed)
	assert.Equal(t, []string{"maintenance at noon"}, ctl.broadcast)

	ctl.failed = []uint64{2}
	rec = do(h, http.MethodPost, "/broadcast", "again")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = broadcastResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Delivered)
	assert.Equal(t, []uint64{2}, resp.Failed)
}

func TestMetrics(t *testing.T) {
	rec := do(newTestAdmin(t, &fakeController{}), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin_test_total")
}
