package launcher_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/framelink/internal/config"
	"github.com/danmuck/framelink/internal/launcher"
	"github.com/danmuck/framelink/internal/protocol"
	"github.com/danmuck/framelink/internal/protocol/session"
	"github.com/danmuck/framelink/internal/sdk"
	"github.com/danmuck/framelink/internal/testutil/testlog"
	"github.com/danmuck/framelink/internal/testutil/tlstest"
	"github.com/danmuck/framelink/internal/transport"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type results struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (r *results) add(m protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *results) all() []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Message(nil), r.msgs...)
}

func runClient(t *testing.T, cfg session.Config, ch transport.Channel, token string, res *results) *sdk.Client {
	t.Helper()
	c, err := sdk.New(cfg, ch, sdk.WithLogger(testlog.Logger(t)), sdk.WithResult(res.add))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx, token) }()
	t.Cleanup(func() {
		cancel()
		<-c.Done()
	})
	return c
}

func waitState(t *testing.T, c *sdk.Client, want session.State) session.Snapshot {
	t.Helper()
	var snap session.Snapshot
	require.Eventually(t, func() bool {
		var err error
		snap, err = c.Snapshot(context.Background())
		return err == nil && snap.State == want
	}, 3*time.Second, 5*time.Millisecond, "waiting for %s", want)
	return snap
}

func TestClientOverWebSocket(t *testing.T) {
	testlog.Start(t)
	cfg := config.DefaultLauncherConfig()
	cfg.Tokens = []string{"abc123"}
	l, err := launcher.New(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(l.HTTPRouter())
	defer srv.Close()

	res := &results{}
	sessCfg := session.Config{
		PeerURL:    srv.URL + config.DefaultWebSocketPath,
		HostOrigin: config.DefaultAllowedOrigin,
		RequestIDs: true,
	}
	c := runClient(t, sessCfg, transport.NewWebSocket(config.DefaultAllowedOrigin), "abc123", res)
	waitState(t, c, session.StateAuthenticated)

	id, err := c.CallAction(context.Background(), "echo", map[string]any{"n": 2})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Eventually(t, func() bool { return len(res.all()) == 1 }, 3*time.Second, 5*time.Millisecond)

	got := res.all()[0]
	assert.Equal(t, "echo", got.String(protocol.FieldOriginalAction))
	assert.Equal(t, id, got.String(protocol.FieldRequestID))
	assert.Equal(t, protocol.ResultStatusOK, got.String(protocol.FieldStatus))
	assert.Equal(t, map[string]any{"n": float64(2)}, got[protocol.FieldResult])
}

func TestClientOverWebSocketBadToken(t *testing.T) {
	testlog.Start(t)
	cfg := config.DefaultLauncherConfig()
	cfg.Tokens = []string{"abc123"}
	l, err := launcher.New(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(l.HTTPRouter())
	defer srv.Close()

	sessCfg := session.Config{PeerURL: srv.URL + config.DefaultWebSocketPath, HostOrigin: config.DefaultAllowedOrigin}
	c := runClient(t, sessCfg, transport.NewWebSocket(config.DefaultAllowedOrigin), "stolen", &results{})
	snap := waitState(t, c, session.StateAuthenticationFailed)
	assert.Equal(t, "Invalid token", snap.LastFailure)

	_, err = c.CallAction(context.Background(), "getStatus", nil)
	assert.ErrorIs(t, err, sdk.ErrNotAuthenticated)
}

func TestClientRejectedByOriginPolicy(t *testing.T) {
	testlog.Start(t)
	cfg := config.DefaultLauncherConfig()
	cfg.Tokens = []string{"abc123"}
	l, err := launcher.New(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(l.HTTPRouter())
	defer srv.Close()

	sessCfg := session.Config{PeerURL: srv.URL + config.DefaultWebSocketPath, HostOrigin: "http://intruder.example"}
	c := runClient(t, sessCfg, transport.NewWebSocket("http://intruder.example"), "abc123", &results{})
	snap := waitState(t, c, session.StateInitializationFailed)
	assert.Equal(t, session.DetailPeerLoadFailed, snap.LastFailure)
}

func TestClientOverSandbox(t *testing.T) {
	testlog.Start(t)
	script := filepath.Join(t.TempDir(), "handler.js")
	require.NoError(t, os.WriteFile(script, []byte(config.HandlerTemplate), 0o644))

	cfg := config.DefaultLauncherConfig()
	cfg.Tokens = []string{"unused"}
	cfg.HandlerScript = script
	l, err := launcher.New(cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(l.HTTPRouter())
	defer srv.Close()

	res := &results{}
	sessCfg := session.Config{PeerURL: srv.URL + config.DefaultHandlerPath}
	c := runClient(t, sessCfg, transport.NewSandbox(session.DefaultHostOrigin), "temp-auth-key", res)
	waitState(t, c, session.StateAuthenticated)

	_, err = c.CallAction(context.Background(), "getStatus", nil)
	require.NoError(t, err)
	_, err = c.CallAction(context.Background(), "nope", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(res.all()) == 2 }, 3*time.Second, 5*time.Millisecond)

	all := res.all()
	assert.Equal(t, protocol.ResultStatusOK, all[0].String(protocol.FieldStatus))
	peerOrigin, err := protocol.OriginOf(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, peerOrigin, all[0][protocol.FieldResult].(map[string]any)["origin"])
	assert.Equal(t, "unknown action: nope", all[1].String(protocol.FieldError))
}

func TestClientOverSecureWebSocket(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t)
	const host = "https://app.example"

	cfg := config.DefaultLauncherConfig()
	cfg.Tokens = []string{"abc123"}
	cfg.PublicOrigin = "https://launcher.example"
	cfg.AllowedOrigins = []string{host}
	cfg.SecurityMode = "production"
	l, err := launcher.New(cfg)
	require.NoError(t, err)
	srv := httptest.NewUnstartedServer(l.HTTPRouter())
	srv.TLS = ca.ServerConfig(t)
	srv.StartTLS()
	defer srv.Close()

	res := &results{}
	sessCfg := session.Config{
		PeerURL:      "wss" + strings.TrimPrefix(srv.URL, "https") + config.DefaultWebSocketPath,
		HostOrigin:   host,
		SecurityMode: session.SecurityModeProduction,
	}
	dialer := &websocket.Dialer{TLSClientConfig: ca.ClientConfig(), HandshakeTimeout: 3 * time.Second}
	c := runClient(t, sessCfg, transport.NewWebSocket(host, transport.WithDialer(dialer)), "abc123", res)
	waitState(t, c, session.StateAuthenticated)

	_, err = c.CallAction(context.Background(), "getStatus", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(res.all()) == 1 }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, protocol.ResultStatusOK, res.all()[0].String(protocol.FieldStatus))
}

func TestClientRejectsUntrustedCertificate(t *testing.T) {
	testlog.Start(t)
	cfg := config.DefaultLauncherConfig()
	cfg.Tokens = []string{"abc123"}
	l, err := launcher.New(cfg)
	require.NoError(t, err)
	srv := httptest.NewUnstartedServer(l.HTTPRouter())
	srv.TLS = tlstest.NewAuthority(t).ServerConfig(t)
	srv.StartTLS()
	defer srv.Close()

	other := tlstest.NewAuthority(t)
	dialer := &websocket.Dialer{TLSClientConfig: other.ClientConfig(), HandshakeTimeout: 3 * time.Second}
	sessCfg := session.Config{PeerURL: srv.URL + config.DefaultWebSocketPath, HostOrigin: config.DefaultAllowedOrigin}
	c := runClient(t, sessCfg, transport.NewWebSocket(config.DefaultAllowedOrigin, transport.WithDialer(dialer)), "abc123", &results{})
	waitState(t, c, session.StateInitializationFailed)
}
