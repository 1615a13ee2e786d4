package admission

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"admission-gateway/middleware/admission/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_ServeAndShutdown(t *testing.T) {
	gate, err := New(Options{
		Blocklist:        infra.NewBlocklist(nil),
		Limiter:          infra.NewRateLimiter(),
		BlockedEndpoints: []string{"/admin"},
	})
	require.NoError(t, err)

	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "app")
	})
	srv := NewServer("127.0.0.1:0", gate, app, WithHTTPServer(func(s *http.Server) {
		s.ReadHeaderTimeout = time.Second
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 5*time.Millisecond)
	base := "http://" + srv.Addr().String()

	resp, err := http.Get(base + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "app", string(body))

	resp, err = http.Get(base + "/admin/panel")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}
