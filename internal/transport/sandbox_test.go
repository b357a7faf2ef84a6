package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/framelink/internal/protocol"
	"github.com/danmuck/framelink/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const launcherScript = `
parent.postMessage({ type: "probe" }, "http://evil.example");
self.onmessage = function (event) {
  var msg = event.data;
  if (msg.type === "authenticate") {
    if (msg.token === "good") {
      parent.postMessage({ type: "auth_success" }, event.origin);
    } else {
      parent.postMessage({ type: "auth_failure", reason: "Invalid token" }, event.origin);
    }
    return;
  }
  if (msg.type === "api_call") {
    parent.postMessage({ type: "api_result", originalAction: msg.action, echo: msg.payload.value }, "*");
  }
};
console.log("launcher ready at", location.origin);
`

func serveScript(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSandboxHandshake(t *testing.T) {
	testlog.Start(t)
	srv := serveScript(t, http.StatusOK, launcherScript)
	peerOrigin, err := protocol.OriginOf(srv.URL)
	require.NoError(t, err)

	s := NewSandbox(testHostOrigin, WithSandboxLogger(testlog.Logger(t)))
	defer s.Close()
	require.NoError(t, s.Create(context.Background(), srv.URL+"/launcher-iframe-handler.html"))

	// The probe targets another origin and never arrives.
	ev := nextEvent(t, s.Events())
	require.Equal(t, EventLoaded, ev.Kind, "err=%v", ev.Err)
	assert.Equal(t, peerOrigin, ev.Origin)

	require.NoError(t, s.Send(protocol.Authenticate("good"), peerOrigin))
	ev = nextEvent(t, s.Events())
	require.Equal(t, EventMessage, ev.Kind)
	assert.Equal(t, peerOrigin, ev.Origin)
	assert.Equal(t, protocol.TypeAuthSuccess, ev.Data.(map[string]any)["type"])

	require.NoError(t, s.Send(protocol.APICall("echo", map[string]any{"value": "hi"}, ""), peerOrigin))
	ev = nextEvent(t, s.Events())
	data := ev.Data.(map[string]any)
	assert.Equal(t, protocol.TypeAPIResult, data["type"])
	assert.Equal(t, "echo", data["originalAction"])
	assert.Equal(t, "hi", data["echo"])

	require.NoError(t, s.Send(protocol.Authenticate("bad"), peerOrigin))
	ev = nextEvent(t, s.Events())
	data = ev.Data.(map[string]any)
	assert.Equal(t, protocol.TypeAuthFailure, data["type"])
	assert.Equal(t, "Invalid token", data["reason"])
}

func TestSandboxAddEventListener(t *testing.T) {
	testlog.Start(t)
	srv := serveScript(t, http.StatusOK, `
addEventListener("message", function (e) {
  parent.postMessage({ type: "api_result", originalAction: e.data.action }, "`+testHostOrigin+`");
});
`)
	peerOrigin, _ := protocol.OriginOf(srv.URL)
	s := NewSandbox(testHostOrigin)
	defer s.Close()
	require.NoError(t, s.Create(context.Background(), srv.URL))
	require.Equal(t, EventLoaded, nextEvent(t, s.Events()).Kind)

	require.NoError(t, s.Send(protocol.APICall("getStatus", nil, ""), peerOrigin))
	ev := nextEvent(t, s.Events())
	assert.Equal(t, "getStatus", ev.Data.(map[string]any)["originalAction"])
}

func TestSandboxLoadFailures(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "http error", status: http.StatusNotFound, body: "missing"},
		{name: "syntax error", status: http.StatusOK, body: "self.onmessage = function ("},
		{name: "runtime error", status: http.StatusOK, body: "undefinedThing.call();"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := serveScript(t, tc.status, tc.body)
			s := NewSandbox(testHostOrigin)
			defer s.Close()
			require.NoError(t, s.Create(context.Background(), srv.URL))
			ev := nextEvent(t, s.Events())
			assert.Equal(t, EventLoadFailed, ev.Kind)
			assert.Error(t, ev.Err)
			peerOrigin, _ := protocol.OriginOf(srv.URL)
			assert.ErrorIs(t, s.Send(protocol.Authenticate("x"), peerOrigin), ErrPeerNotReady)
		})
	}
}

func TestSandboxPostBeforeLoadArrivesFirst(t *testing.T) {
	testlog.Start(t)
	srv := serveScript(t, http.StatusOK, `parent.postMessage({ type: "auth_success" }, "*");`)
	s := NewSandbox(testHostOrigin)
	defer s.Close()
	require.NoError(t, s.Create(context.Background(), srv.URL))

	ev := nextEvent(t, s.Events())
	require.Equal(t, EventMessage, ev.Kind)
	assert.Equal(t, protocol.TypeAuthSuccess, ev.Data.(map[string]any)["type"])
	assert.Equal(t, EventLoaded, nextEvent(t, s.Events()).Kind)
}

func TestSandboxRejectsBadURL(t *testing.T) {
	testlog.Start(t)
	s := NewSandbox(testHostOrigin)
	defer s.Close()
	assert.ErrorIs(t, s.Create(context.Background(), "file:///etc/passwd"), protocol.ErrInvalidOrigin)
}

const handlerPage = `<!doctype html>
<html>
<head>
  <script src="/vendor/analytics.js"></script>
  <script type="application/json" id="cfg">{"ignored": true}</script>
  <script>var greeting = "hi";</script>
</head>
<body>
  <script type="text/javascript">
    self.onmessage = function (event) {
      parent.postMessage({ type: "api_result", originalAction: event.data.action, greeting: greeting }, event.origin);
    };
  </script>
</body>
</html>`

func TestInlineScripts(t *testing.T) {
	code, err := inlineScripts(handlerPage)
	require.NoError(t, err)
	assert.Contains(t, code, `var greeting = "hi";`)
	assert.Contains(t, code, "self.onmessage")
	assert.NotContains(t, code, "ignored")
	assert.Less(t, strings.Index(code, "greeting ="), strings.Index(code, "self.onmessage"))

	_, err = inlineScripts(`<html><body><script src="/x.js"></script></body></html>`)
	assert.ErrorIs(t, err, errNoInlineScript)
}

func TestIsHTML(t *testing.T) {
	assert.True(t, isHTML("text/html; charset=utf-8", "var x = 1;"))
	assert.True(t, isHTML("", "  <!doctype html><html></html>"))
	assert.False(t, isHTML("text/javascript", "self.onmessage = null;"))
}

func TestSandboxRunsHTMLHandlerPage(t *testing.T) {
	testlog.Start(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(handlerPage))
	}))
	t.Cleanup(srv.Close)
	peerOrigin, err := protocol.OriginOf(srv.URL)
	require.NoError(t, err)

	s := NewSandbox(testHostOrigin, WithSandboxLogger(testlog.Logger(t)))
	defer s.Close()
	require.NoError(t, s.Create(context.Background(), srv.URL+"/launcher-iframe-handler.html"))
	require.Equal(t, EventLoaded, nextEvent(t, s.Events()).Kind)

	require.NoError(t, s.Send(protocol.APICall("getStatus", nil, ""), peerOrigin))
	ev := nextEvent(t, s.Events())
	data := ev.Data.(map[string]any)
	assert.Equal(t, "getStatus", data["originalAction"])
	assert.Equal(t, "hi", data["greeting"])
}
